// README: Rolling-window throttles for promo attempts (in-process and Redis).
package promo

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 60 * time.Second
)

// Limiter admits at most N attempts per key within a rolling window. A
// rejected attempt is not counted.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (retryAfter time.Duration, ok bool, err error)
}

// WindowLimiter keeps attempt timestamps in memory, one slice per key.
type WindowLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	attempts map[string][]time.Time
}

func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	if limit <= 0 {
		limit = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &WindowLimiter{limit: limit, window: window, attempts: make(map[string][]time.Time)}
}

func (l *WindowLimiter) Allow(_ context.Context, key string, now time.Time) (time.Duration, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.attempts[key][:0]
	for _, at := range l.attempts[key] {
		if now.Sub(at) < l.window {
			kept = append(kept, at)
		}
	}
	if len(kept) >= l.limit {
		l.attempts[key] = kept
		return kept[0].Add(l.window).Sub(now), false, nil
	}
	l.attempts[key] = append(kept, now)
	return 0, true, nil
}

// Forget drops the history of key, e.g. when its session is closed.
func (l *WindowLimiter) Forget(key string) {
	l.mu.Lock()
	delete(l.attempts, key)
	l.mu.Unlock()
}

// slidingWindowScript trims expired members, then either records the attempt
// or returns the score of the oldest counted attempt.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return {0, tonumber(oldest[2])}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, 0}
`)

// RedisLimiter shares the attempt window across API replicas.
type RedisLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{redis: client, limit: limit, window: window, prefix: "promo:attempts:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) (time.Duration, bool, error) {
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(now.UnixNano(), 10)
	res, err := slidingWindowScript.Run(ctx, l.redis,
		[]string{l.prefix + key},
		nowMs, l.window.Milliseconds(), l.limit, member,
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("promo limiter: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("promo limiter: unexpected reply %v", res)
	}
	if res[0] == 1 {
		return 0, true, nil
	}
	oldest := time.UnixMilli(res[1])
	return oldest.Add(l.window).Sub(now), false, nil
}

var (
	_ Limiter = (*WindowLimiter)(nil)
	_ Limiter = (*RedisLimiter)(nil)
)
