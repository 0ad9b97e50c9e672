package store

import (
	"context"
	"sync"
	"time"

	"snipcollab/internal/model"
)

// UpdateLog is the bounded per-session FIFO broadcast buffer. It is a
// best-effort channel, not a durable log, so implementations may be volatile.
// Append must stamp a strictly increasing timestamp per session and evict the
// oldest entry atomically once the cap is exceeded, so no reader ever
// observes a gap introduced by a race between eviction and read.
type UpdateLog interface {
	Append(ctx context.Context, token string, u model.Update) (model.Update, error)
	Since(ctx context.Context, token string, since int64) ([]model.Update, error)
	Drop(ctx context.Context, token string) error
}

// MemoryLog keeps the update log in process memory.
type MemoryLog struct {
	mu     sync.Mutex
	cap    int
	now    func() time.Time
	logs   map[string][]model.Update
	lastTs map[string]int64
}

// NewMemoryLog creates a log capped at capacity entries per session.
func NewMemoryLog(capacity int) *MemoryLog {
	if capacity <= 0 {
		capacity = DefaultLogCap
	}
	return &MemoryLog{
		cap:    capacity,
		now:    time.Now,
		logs:   make(map[string][]model.Update),
		lastTs: make(map[string]int64),
	}
}

// SetNow swaps the clock, for tests.
func (l *MemoryLog) SetNow(now func() time.Time) { l.now = now }

func (l *MemoryLog) Append(_ context.Context, token string, u model.Update) (model.Update, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now().UnixMilli()
	if last := l.lastTs[token]; ts <= last {
		// Equal-millisecond arrivals are nudged forward so the since
		// cursor never skips an entry.
		ts = last + 1
	}
	l.lastTs[token] = ts

	u.Timestamp = ts
	u.SessionToken = token

	entries := append(l.logs[token], u)
	if len(entries) > l.cap {
		entries = append(entries[:0:0], entries[len(entries)-l.cap:]...)
	}
	l.logs[token] = entries
	return u, nil
}

func (l *MemoryLog) Since(_ context.Context, token string, since int64) ([]model.Update, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.logs[token]
	out := make([]model.Update, 0, len(entries))
	for _, u := range entries {
		if u.Timestamp > since {
			out = append(out, u)
		}
	}
	return out, nil
}

func (l *MemoryLog) Drop(_ context.Context, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.logs, token)
	delete(l.lastTs, token)
	return nil
}

// Len reports the current log size for a session, for tests.
func (l *MemoryLog) Len(token string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.logs[token])
}
