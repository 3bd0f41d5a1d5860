package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Budget is the number of submissions allowed inside a sliding window.
type Budget struct {
	Max    int
	Window time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// slideScript trims expired members, admits the attempt only while under
// the budget and reports when the oldest admitted attempt leaves the window.
// Rejected attempts are not recorded.
var slideScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < max then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)
local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, count, reset}
`)

// Limiter is a Redis sorted-set sliding window. Scores are unix
// milliseconds.
type Limiter struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

func (l Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Allow records an attempt for key against b.
func (l Limiter) Allow(ctx context.Context, key string, b Budget) (Decision, error) {
	now := l.now()
	if l.Client == nil || b.Max <= 0 || b.Window <= 0 {
		return Decision{Allowed: true, Remaining: b.Max, ResetAt: now.Add(b.Window)}, nil
	}
	res, err := slideScript.Run(ctx, l.Client, []string{l.Prefix + key},
		now.UnixMilli(), b.Window.Milliseconds(), b.Max, uuid.NewString()).Int64Slice()
	if err != nil {
		return Decision{ResetAt: now.Add(b.Window)}, err
	}
	remaining := b.Max - int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   res[0] == 1,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(res[2]),
	}, nil
}
