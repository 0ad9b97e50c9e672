package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"snipcollab/internal/model"
)

// appendScript stamps a strictly increasing per-session timestamp, pushes the
// entry, and trims to the cap in one atomic step, so eviction can never race
// a reader into observing a gap.
var appendScript = redis.NewScript(`
local last = tonumber(redis.call('GET', KEYS[2]) or '0')
local ts = tonumber(ARGV[2])
if ts <= last then ts = last + 1 end
redis.call('SET', KEYS[2], ts)
local u = cjson.decode(ARGV[1])
u['timestamp'] = ts
redis.call('LPUSH', KEYS[1], cjson.encode(u))
redis.call('LTRIM', KEYS[1], 0, tonumber(ARGV[3]) - 1)
return ts
`)

// RedisLog holds the update log in Redis lists, one per session token. The
// log is a best-effort broadcast channel, so losing it on a Redis restart is
// acceptable.
type RedisLog struct {
	rdb *redis.Client
	cap int
	now func() time.Time
}

func NewRedisLog(rdb *redis.Client, capacity int) *RedisLog {
	if capacity <= 0 {
		capacity = DefaultLogCap
	}
	return &RedisLog{rdb: rdb, cap: capacity, now: time.Now}
}

func (l *RedisLog) listKey(token string) string  { return "collab:log:" + token }
func (l *RedisLog) clockKey(token string) string { return "collab:log:" + token + ":ts" }

func (l *RedisLog) Append(ctx context.Context, token string, u model.Update) (model.Update, error) {
	u.SessionToken = token
	payload, err := json.Marshal(u)
	if err != nil {
		return model.Update{}, err
	}

	ts, err := appendScript.Run(ctx, l.rdb,
		[]string{l.listKey(token), l.clockKey(token)},
		payload, l.now().UnixMilli(), l.cap,
	).Int64()
	if err != nil {
		return model.Update{}, fmt.Errorf("redis log append: %w", err)
	}
	u.Timestamp = ts
	return u, nil
}

func (l *RedisLog) Since(ctx context.Context, token string, since int64) ([]model.Update, error) {
	raw, err := l.rdb.LRange(ctx, l.listKey(token), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis log range: %w", err)
	}

	// LPUSH stores newest first; walk backwards to return oldest first.
	out := make([]model.Update, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var u model.Update
		if err := json.Unmarshal([]byte(raw[i]), &u); err != nil {
			continue
		}
		if u.Timestamp > since {
			out = append(out, u)
		}
	}
	return out, nil
}

func (l *RedisLog) Drop(ctx context.Context, token string) error {
	return l.rdb.Del(ctx, l.listKey(token), l.clockKey(token)).Err()
}
