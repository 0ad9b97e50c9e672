package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"snipcollab/internal/model"
)

// DefaultTTL is how long a session may stay idle before the reaper removes
// it. last_activity is the sole liveness signal.
const DefaultTTL = 24 * time.Hour

// DefaultLogCap bounds the per-session update log. Insertion past the cap
// evicts the oldest entry.
const DefaultLogCap = 100

var (
	// ErrAccessDenied means the caller may not read the snippet backing the
	// session. Not retryable without re-authorization.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound means the session token is unknown.
	ErrNotFound = errors.New("session not found")

	// ErrExpired means the session sat idle past its TTL. Lookup of an
	// expired session also deletes it.
	ErrExpired = errors.New("session expired")
)

// SessionStore is the single shared mutable resource of the subsystem. Every
// mutation is an atomic read-modify-write against the persisted record, so
// two participants acting within the same polling window never lose updates.
type SessionStore interface {
	// Create opens collaborative editing on a snippet. Idempotent per
	// snippet: if a live session already exists the caller joins it
	// instead of creating a duplicate.
	Create(ctx context.Context, snippetID, hostUserID string) (model.Session, error)

	// Join adds userID to the session's participants.
	Join(ctx context.Context, token, userID string) (model.Session, error)

	// Get returns a snapshot without modifying membership.
	Get(ctx context.Context, token string) (model.Session, error)

	// Leave removes the user and their cursor. It never deletes the
	// session, even when it becomes empty; that is the reaper's job.
	Leave(ctx context.Context, token, userID string) error

	// Touch refreshes last_activity.
	Touch(ctx context.Context, token string) error

	// UpdateCursor overwrites the prior cursor entry for userID.
	UpdateCursor(ctx context.Context, token, userID string, line, ch int) error

	// Delete hard-deletes the session and its update log.
	Delete(ctx context.Context, token string) error

	// Reap deletes every session idle longer than the TTL and returns how
	// many were removed. Meant for a background sweep, not request paths.
	Reap(ctx context.Context, now time.Time) (int, error)

	// AppendUpdate stamps the update with a strictly increasing arrival
	// timestamp, appends it to the session's log (evicting FIFO past the
	// cap), bumps the session version for text changes, and touches the
	// session. The stamped update is returned for broadcasting.
	AppendUpdate(ctx context.Context, token string, u model.Update) (model.Update, error)

	// UpdatesSince returns log entries with timestamp strictly greater
	// than since, oldest first.
	UpdatesSince(ctx context.Context, token string, since int64) ([]model.Update, error)
}

// NewSessionToken returns the 64-hex-char token clients use as the session
// handle. Globally unique, immutable after creation.
func NewSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
