package redisrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when the limiter denies a request.
var ErrRateLimited = errors.New("rate limited")

// Sliding window over a sorted set of hit timestamps.
// KEYS[1] = window key
// ARGV[1] = now in ms, ARGV[2] = window in ms, ARGV[3] = limit, ARGV[4] = hit id
// Returns {allowed, hits in window, ms until the oldest hit leaves the window}.
const luaSlidingWindow = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)

local hits = redis.call('ZCARD', key)
if hits <= limit then
  return {1, hits, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local wait = window - (now - (tonumber(oldest[2]) or now))
if wait < 0 then wait = 0 end
return {0, hits, wait}
`

// Decision is the outcome of one limiter hit.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// SlidingWindowLimiter counts hits per key over a moving window. Denied hits
// still count, so a client hammering the endpoint stays blocked.
type SlidingWindowLimiter struct {
	rdb    redis.Scripter
	prefix string
	limit  int
	window time.Duration
	script *redis.Script
	now    func() time.Time
}

func NewSlidingWindowLimiter(rdb redis.Scripter, prefix string, limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		rdb:    rdb,
		prefix: prefix,
		limit:  limit,
		window: window,
		script: redis.NewScript(luaSlidingWindow),
		now:    time.Now,
	}
}

// Allow records a hit for the caller identified by suffix.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, suffix string) (Decision, error) {
	const op = "redisrepo.SlidingWindowLimiter.Allow"

	res, err := l.script.Run(
		ctx,
		l.rdb,
		[]string{l.prefix + ":" + suffix},
		l.now().UnixMilli(), l.window.Milliseconds(), l.limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("%s: unexpected script reply %v", op, res)
	}

	d := Decision{
		Allowed:    res[0] == 1,
		Limit:      l.limit,
		Remaining:  max(l.limit-int(res[1]), 0),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}

	return d, nil
}
