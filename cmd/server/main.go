package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"snipcollab/internal/auth"
	"snipcollab/internal/config"
	"snipcollab/internal/hub"
	"snipcollab/internal/server"
	"snipcollab/internal/snippet"
	"snipcollab/internal/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	gin.SetMode(cfg.GinMode)
	ctx := context.Background()

	snippets := snippet.NewRegistry()

	var updateLog store.UpdateLog
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		updateLog = store.NewRedisLog(rdb, store.DefaultLogCap)
		log.Printf("update log backed by redis at %s", cfg.RedisAddr)
	} else {
		updateLog = store.NewMemoryLog(store.DefaultLogCap)
	}

	var sessions store.SessionStore
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		sessions, err = store.NewPostgresStore(ctx, pool, store.Options{
			Access: snippets,
			Log:    updateLog,
			TTL:    cfg.SessionTTL,
		})
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		log.Print("sessions backed by postgres")
	} else {
		sessions = store.NewMemoryStore(store.Options{
			Access: snippets,
			Log:    updateLog,
			TTL:    cfg.SessionTTL,
		})
	}

	reaper := store.NewReaper(sessions, cfg.ReapInterval)
	defer reaper.Close()

	tokenCfg := auth.TokenConfig{
		Secret: cfg.MasterSecret,
		Expiry: cfg.TokenExpiry,
		Issuer: "snipcollab",
	}

	router := server.NewRouter(server.Deps{
		Store:       sessions,
		Snippets:    snippets,
		Hub:         hub.New(),
		TokenConfig: tokenCfg,
	})

	log.Printf("listening on %s", fmt.Sprintf(":%d", cfg.Port))
	log.Fatal(server.Run(cfg, router))
}
