package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"snipcollab/internal/model"
	"snipcollab/internal/snippet"
)

// MemoryStore is the in-memory SessionStore. All record mutations happen
// under one write lock, which gives the atomic read-modify-write the
// concurrency model requires.
type MemoryStore struct {
	mu             sync.RWMutex
	byToken        map[string]*model.Session
	tokenBySnippet map[string]string
	log            UpdateLog
	access         snippet.AccessChecker
	ttl            time.Duration
	now            func() time.Time
}

// Options configures a MemoryStore. Zero fields fall back to defaults.
type Options struct {
	Access snippet.AccessChecker
	Log    UpdateLog
	TTL    time.Duration
	Now    func() time.Time
}

func NewMemoryStore(opts Options) *MemoryStore {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = NewMemoryLog(DefaultLogCap)
	}
	return &MemoryStore{
		byToken:        make(map[string]*model.Session),
		tokenBySnippet: make(map[string]string),
		log:            opts.Log,
		access:         opts.Access,
		ttl:            opts.TTL,
		now:            opts.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, snippetID, hostUserID string) (model.Session, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if token, ok := s.tokenBySnippet[snippetID]; ok {
		if sess, live := s.byToken[token]; live && !s.expiredLocked(sess, now) {
			if !s.allowedLocked(ctx, snippetID, hostUserID) && !sess.HasParticipant(hostUserID) {
				return model.Session{}, ErrAccessDenied
			}
			s.addParticipantLocked(sess, hostUserID, now)
			return snapshot(sess), nil
		}
		// Stale index entry; fall through and create fresh.
		s.deleteLocked(ctx, token)
	}

	if !s.allowedLocked(ctx, snippetID, hostUserID) {
		return model.Session{}, ErrAccessDenied
	}

	token, err := NewSessionToken()
	if err != nil {
		return model.Session{}, err
	}
	sess := &model.Session{
		ID:           uuid.NewString(),
		SnippetID:    snippetID,
		HostUserID:   hostUserID,
		Token:        token,
		Participants: []string{hostUserID},
		Cursors:      make(map[string]model.CursorPosition),
		Version:      0,
		LastActivity: now.UnixMilli(),
		CreatedAt:    now.UnixMilli(),
	}
	s.byToken[token] = sess
	s.tokenBySnippet[snippetID] = token
	return snapshot(sess), nil
}

func (s *MemoryStore) Join(ctx context.Context, token, userID string) (model.Session, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.liveLocked(ctx, token, now)
	if err != nil {
		return model.Session{}, err
	}
	s.addParticipantLocked(sess, userID, now)
	return snapshot(sess), nil
}

func (s *MemoryStore) Get(ctx context.Context, token string) (model.Session, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.liveLocked(ctx, token, now)
	if err != nil {
		return model.Session{}, err
	}
	return snapshot(sess), nil
}

func (s *MemoryStore) Leave(ctx context.Context, token, userID string) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.liveLocked(ctx, token, now)
	if err != nil {
		return err
	}
	for i, p := range sess.Participants {
		if p == userID {
			sess.Participants = append(sess.Participants[:i], sess.Participants[i+1:]...)
			break
		}
	}
	delete(sess.Cursors, userID)
	sess.LastActivity = now.UnixMilli()
	return nil
}

func (s *MemoryStore) Touch(ctx context.Context, token string) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.liveLocked(ctx, token, now)
	if err != nil {
		return err
	}
	sess.LastActivity = now.UnixMilli()
	return nil
}

func (s *MemoryStore) UpdateCursor(ctx context.Context, token, userID string, line, ch int) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.liveLocked(ctx, token, now)
	if err != nil {
		return err
	}
	sess.Cursors[userID] = model.CursorPosition{Line: line, Ch: ch, UpdatedAt: now.UnixMilli()}
	sess.LastActivity = now.UnixMilli()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byToken[token]; !ok {
		return ErrNotFound
	}
	s.deleteLocked(ctx, token)
	return nil
}

func (s *MemoryStore) Reap(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.ttl).UnixMilli()
	var stale []string
	for token, sess := range s.byToken {
		if sess.LastActivity < cutoff {
			stale = append(stale, token)
		}
	}
	for _, token := range stale {
		s.deleteLocked(ctx, token)
	}
	return len(stale), nil
}

func (s *MemoryStore) AppendUpdate(ctx context.Context, token string, u model.Update) (model.Update, error) {
	now := s.now()

	s.mu.Lock()
	sess, err := s.liveLocked(ctx, token, now)
	if err != nil {
		s.mu.Unlock()
		return model.Update{}, err
	}
	if u.Type == model.UpdateTextChange {
		sess.Version++
	}
	sess.LastActivity = now.UnixMilli()
	s.mu.Unlock()

	return s.log.Append(ctx, token, u)
}

func (s *MemoryStore) UpdatesSince(ctx context.Context, token string, since int64) ([]model.Update, error) {
	now := s.now()

	s.mu.Lock()
	_, err := s.liveLocked(ctx, token, now)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.log.Since(ctx, token, since)
}

// liveLocked resolves a token to its record, deleting and reporting expired
// sessions. Callers hold the write lock.
func (s *MemoryStore) liveLocked(ctx context.Context, token string, now time.Time) (*model.Session, error) {
	sess, ok := s.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	if s.expiredLocked(sess, now) {
		s.deleteLocked(ctx, token)
		return nil, ErrExpired
	}
	return sess, nil
}

func (s *MemoryStore) expiredLocked(sess *model.Session, now time.Time) bool {
	return now.UnixMilli()-sess.LastActivity > s.ttl.Milliseconds()
}

func (s *MemoryStore) deleteLocked(ctx context.Context, token string) {
	if sess, ok := s.byToken[token]; ok {
		if s.tokenBySnippet[sess.SnippetID] == token {
			delete(s.tokenBySnippet, sess.SnippetID)
		}
		delete(s.byToken, token)
	}
	_ = s.log.Drop(ctx, token)
}

func (s *MemoryStore) allowedLocked(ctx context.Context, snippetID, userID string) bool {
	return s.access != nil && s.access.CanView(ctx, snippetID, userID)
}

func (s *MemoryStore) addParticipantLocked(sess *model.Session, userID string, now time.Time) {
	if !sess.HasParticipant(userID) {
		sess.Participants = append(sess.Participants, userID)
	}
	sess.LastActivity = now.UnixMilli()
}

func snapshot(sess *model.Session) model.Session {
	out := *sess
	out.Participants = append([]string(nil), sess.Participants...)
	sort.Strings(out.Participants)
	out.Cursors = make(map[string]model.CursorPosition, len(sess.Cursors))
	for k, v := range sess.Cursors {
		out.Cursors[k] = v
	}
	return out
}
