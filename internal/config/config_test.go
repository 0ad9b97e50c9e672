package config

import (
	"testing"
	"time"
)

type mapEnv map[string]string

func (m mapEnv) Getenv(key string) string { return m[key] }

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{"MASTER_SECRET": "secret"})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Port != 3000 {
		t.Fatalf("expected default port 3000, got %d", cfg.Port)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("expected release mode, got %q", cfg.GinMode)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("expected 24h session TTL, got %v", cfg.SessionTTL)
	}
	if cfg.ReapInterval != 10*time.Minute {
		t.Fatalf("expected 10m reap interval, got %v", cfg.ReapInterval)
	}
}

func TestLoadConfig_MissingSecret(t *testing.T) {
	if _, err := LoadConfigFromEnv(mapEnv{}); err == nil {
		t.Fatalf("expected error without MASTER_SECRET")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{
		"MASTER_SECRET":         "secret",
		"PORT":                  "8080",
		"GIN_MODE":              "debug",
		"DATABASE_URL":          "postgres://localhost/collab",
		"REDIS_ADDR":            "localhost:6379",
		"SESSION_TTL_SECONDS":   "60",
		"REAP_INTERVAL_SECONDS": "5",
	})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.DatabaseURL == "" || cfg.RedisAddr == "" {
		t.Fatalf("expected backend URLs set")
	}
	if cfg.SessionTTL != time.Minute {
		t.Fatalf("expected 60s TTL, got %v", cfg.SessionTTL)
	}
	if cfg.ReapInterval != 5*time.Second {
		t.Fatalf("expected 5s reap interval, got %v", cfg.ReapInterval)
	}
}

func TestLoadConfig_InvalidPort(t *testing.T) {
	if _, err := LoadConfigFromEnv(mapEnv{"MASTER_SECRET": "s", "PORT": "not-a-port"}); err == nil {
		t.Fatalf("expected error for bad port")
	}
	if _, err := LoadConfigFromEnv(mapEnv{"MASTER_SECRET": "s", "PORT": "70000"}); err == nil {
		t.Fatalf("expected error for out-of-range port")
	}
}

func TestLoadConfig_InvalidTTL(t *testing.T) {
	if _, err := LoadConfigFromEnv(mapEnv{"MASTER_SECRET": "s", "SESSION_TTL_SECONDS": "-1"}); err == nil {
		t.Fatalf("expected error for negative TTL")
	}
}
