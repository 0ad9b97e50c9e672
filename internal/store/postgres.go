package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"snipcollab/internal/model"
	"snipcollab/internal/snippet"
)

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS collab_sessions (
	id UUID PRIMARY KEY,
	snippet_id TEXT NOT NULL UNIQUE,
	host_user_id TEXT NOT NULL,
	token TEXT NOT NULL UNIQUE,
	participants TEXT[] NOT NULL,
	cursors JSONB NOT NULL DEFAULT '{}'::jsonb,
	version INTEGER NOT NULL DEFAULT 0,
	last_activity BIGINT NOT NULL,
	created_at BIGINT NOT NULL
)`

// PostgresStore keeps one row per live session. Mutations run inside a
// transaction holding the row lock, which gives the same atomic
// read-modify-write the memory store gets from its mutex. The update log
// lives in the injected UpdateLog (volatile is fine), not in Postgres.
type PostgresStore struct {
	pool   *pgxpool.Pool
	log    UpdateLog
	access snippet.AccessChecker
	ttl    time.Duration
	now    func() time.Time
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, opts Options) (*PostgresStore, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = NewMemoryLog(DefaultLogCap)
	}
	if _, err := pool.Exec(ctx, sessionsSchema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresStore{
		pool:   pool,
		log:    opts.Log,
		access: opts.Access,
		ttl:    opts.TTL,
		now:    opts.Now,
	}, nil
}

func (s *PostgresStore) Create(ctx context.Context, snippetID, hostUserID string) (model.Session, error) {
	now := s.now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Session{}, err
	}
	defer tx.Rollback(ctx)

	existing, err := s.scanSession(tx.QueryRow(ctx,
		`SELECT id, snippet_id, host_user_id, token, participants, cursors, version, last_activity, created_at
		 FROM collab_sessions WHERE snippet_id = $1 FOR UPDATE`, snippetID))
	switch {
	case err == nil:
		if s.expired(existing, now) {
			if err := s.deleteTx(ctx, tx, existing.Token); err != nil {
				return model.Session{}, err
			}
		} else {
			if !s.allowed(ctx, snippetID, hostUserID) && !existing.HasParticipant(hostUserID) {
				return model.Session{}, ErrAccessDenied
			}
			if _, err := tx.Exec(ctx,
				`UPDATE collab_sessions
				 SET participants = CASE WHEN $2 = ANY(participants) THEN participants ELSE array_append(participants, $2) END,
				     last_activity = $3
				 WHERE token = $1`, existing.Token, hostUserID, now.UnixMilli()); err != nil {
				return model.Session{}, err
			}
			if err := tx.Commit(ctx); err != nil {
				return model.Session{}, err
			}
			return s.Get(ctx, existing.Token)
		}
	case errors.Is(err, pgx.ErrNoRows):
		// No live session for the snippet; create one below.
	default:
		return model.Session{}, err
	}

	if !s.allowed(ctx, snippetID, hostUserID) {
		return model.Session{}, ErrAccessDenied
	}

	token, err := NewSessionToken()
	if err != nil {
		return model.Session{}, err
	}
	sess := model.Session{
		ID:           uuid.NewString(),
		SnippetID:    snippetID,
		HostUserID:   hostUserID,
		Token:        token,
		Participants: []string{hostUserID},
		Cursors:      map[string]model.CursorPosition{},
		LastActivity: now.UnixMilli(),
		CreatedAt:    now.UnixMilli(),
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO collab_sessions (id, snippet_id, host_user_id, token, participants, cursors, version, last_activity, created_at)
		 VALUES ($1, $2, $3, $4, $5, '{}'::jsonb, 0, $6, $6)`,
		sess.ID, sess.SnippetID, sess.HostUserID, sess.Token, sess.Participants, sess.LastActivity); err != nil {
		return model.Session{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

func (s *PostgresStore) Join(ctx context.Context, token, userID string) (model.Session, error) {
	err := s.mutate(ctx, token, func(tx pgx.Tx, sess model.Session, nowMillis int64) error {
		_, err := tx.Exec(ctx,
			`UPDATE collab_sessions
			 SET participants = CASE WHEN $2 = ANY(participants) THEN participants ELSE array_append(participants, $2) END,
			     last_activity = $3
			 WHERE token = $1`, token, userID, nowMillis)
		return err
	})
	if err != nil {
		return model.Session{}, err
	}
	return s.Get(ctx, token)
}

func (s *PostgresStore) Get(ctx context.Context, token string) (model.Session, error) {
	now := s.now()

	sess, err := s.scanSession(s.pool.QueryRow(ctx,
		`SELECT id, snippet_id, host_user_id, token, participants, cursors, version, last_activity, created_at
		 FROM collab_sessions WHERE token = $1`, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, err
	}
	if s.expired(sess, now) {
		_ = s.Delete(ctx, token)
		return model.Session{}, ErrExpired
	}
	return sess, nil
}

func (s *PostgresStore) Leave(ctx context.Context, token, userID string) error {
	return s.mutate(ctx, token, func(tx pgx.Tx, sess model.Session, nowMillis int64) error {
		_, err := tx.Exec(ctx,
			`UPDATE collab_sessions
			 SET participants = array_remove(participants, $2),
			     cursors = cursors - $2,
			     last_activity = $3
			 WHERE token = $1`, token, userID, nowMillis)
		return err
	})
}

func (s *PostgresStore) Touch(ctx context.Context, token string) error {
	return s.mutate(ctx, token, func(tx pgx.Tx, sess model.Session, nowMillis int64) error {
		_, err := tx.Exec(ctx,
			`UPDATE collab_sessions SET last_activity = $2 WHERE token = $1`, token, nowMillis)
		return err
	})
}

func (s *PostgresStore) UpdateCursor(ctx context.Context, token, userID string, line, ch int) error {
	return s.mutate(ctx, token, func(tx pgx.Tx, sess model.Session, nowMillis int64) error {
		pos, err := json.Marshal(model.CursorPosition{Line: line, Ch: ch, UpdatedAt: nowMillis})
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE collab_sessions
			 SET cursors = jsonb_set(cursors, ARRAY[$2], $3::jsonb),
			     last_activity = $4
			 WHERE token = $1`, token, userID, pos, nowMillis)
		return err
	})
}

func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM collab_sessions WHERE token = $1`, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return s.log.Drop(ctx, token)
}

func (s *PostgresStore) Reap(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.ttl).UnixMilli()
	rows, err := s.pool.Query(ctx,
		`DELETE FROM collab_sessions WHERE last_activity < $1 RETURNING token`, cutoff)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return 0, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	for _, token := range tokens {
		_ = s.log.Drop(ctx, token)
	}
	return len(tokens), nil
}

func (s *PostgresStore) AppendUpdate(ctx context.Context, token string, u model.Update) (model.Update, error) {
	err := s.mutate(ctx, token, func(tx pgx.Tx, sess model.Session, nowMillis int64) error {
		if u.Type == model.UpdateTextChange {
			_, err := tx.Exec(ctx,
				`UPDATE collab_sessions SET version = version + 1, last_activity = $2 WHERE token = $1`,
				token, nowMillis)
			return err
		}
		_, err := tx.Exec(ctx,
			`UPDATE collab_sessions SET last_activity = $2 WHERE token = $1`, token, nowMillis)
		return err
	})
	if err != nil {
		return model.Update{}, err
	}
	return s.log.Append(ctx, token, u)
}

func (s *PostgresStore) UpdatesSince(ctx context.Context, token string, since int64) ([]model.Update, error) {
	if _, err := s.Get(ctx, token); err != nil {
		return nil, err
	}
	return s.log.Since(ctx, token, since)
}

// mutate wraps one session mutation in a transaction holding the row lock,
// with the shared not-found/expired handling.
func (s *PostgresStore) mutate(ctx context.Context, token string, fn func(tx pgx.Tx, sess model.Session, nowMillis int64) error) error {
	now := s.now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	sess, err := s.scanSession(tx.QueryRow(ctx,
		`SELECT id, snippet_id, host_user_id, token, participants, cursors, version, last_activity, created_at
		 FROM collab_sessions WHERE token = $1 FOR UPDATE`, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if s.expired(sess, now) {
		if err := s.deleteTx(ctx, tx, token); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		return ErrExpired
	}

	if err := fn(tx, sess, now.UnixMilli()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) deleteTx(ctx context.Context, tx pgx.Tx, token string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM collab_sessions WHERE token = $1`, token); err != nil {
		return err
	}
	return s.log.Drop(ctx, token)
}

func (s *PostgresStore) scanSession(row pgx.Row) (model.Session, error) {
	var sess model.Session
	var cursors []byte
	if err := row.Scan(&sess.ID, &sess.SnippetID, &sess.HostUserID, &sess.Token,
		&sess.Participants, &cursors, &sess.Version, &sess.LastActivity, &sess.CreatedAt); err != nil {
		return model.Session{}, err
	}
	sess.Cursors = make(map[string]model.CursorPosition)
	if len(cursors) > 0 {
		if err := json.Unmarshal(cursors, &sess.Cursors); err != nil {
			return model.Session{}, fmt.Errorf("decode cursors: %w", err)
		}
	}
	return sess, nil
}

func (s *PostgresStore) expired(sess model.Session, now time.Time) bool {
	return now.UnixMilli()-sess.LastActivity > s.ttl.Milliseconds()
}

func (s *PostgresStore) allowed(ctx context.Context, snippetID, userID string) bool {
	return s.access != nil && s.access.CanView(ctx, snippetID, userID)
}
