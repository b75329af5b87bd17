package rate_limiting_strategies

import (
	"context"
	"fmt"
	"time"

	"github.com/aryangodara/secure_gate"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	_ secure_gate.Strategy = &slidingWindowLimiter{}
)

// slidingWindowScript prunes expired members, counts what is left and adds
// the new member only when the count is under the limit. Scores are unix
// milliseconds. Members scored after now are kept.
//
// KEYS[1] key, ARGV[1] now, ARGV[2] window, ARGV[3] limit, ARGV[4] member.
// Returns {allowed, count, oldest}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
	oldest = math.min(tonumber(first[2]), now)
end

if count >= limit then
	return {0, count, oldest}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1, oldest}
`)

type slidingWindowLimiter struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewSlidingWindowLimiter initializes a new sliding window rate limiter backed
// by a Redis sorted set per key, so several processes share one budget.
func NewSlidingWindowLimiter(client redis.UniversalClient, now func() time.Time) secure_gate.Strategy {
	if now == nil {
		now = time.Now
	}
	return &slidingWindowLimiter{
		client: client,
		now:    now,
	}
}

// Execute performs rate limiting using a sliding window strategy.
func (s *slidingWindowLimiter) Execute(ctx context.Context, r *secure_gate.Request) (*secure_gate.Result, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	window := r.Duration.Milliseconds()
	if window < 1 {
		window = 1
	}

	// every request needs an UUID
	item := uuid.New()

	values, err := slidingWindowScript.Run(ctx, s.client, []string{r.Key},
		now.UnixMilli(), window, r.Limit, item.String()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to execute sliding window script for key %v: %w", r.Key, err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected sliding window reply for key %v: %v", r.Key, values)
	}

	retryAt := time.UnixMilli(values[2]).Add(r.Duration)

	if values[0] == 0 {
		return &secure_gate.Result{
			State:         secure_gate.Deny,
			TotalRequests: uint64(values[1]),
			ExpiresAt:     retryAt,
			RetryAt:       retryAt,
		}, nil
	}

	return &secure_gate.Result{
		State:         secure_gate.Allow,
		TotalRequests: uint64(values[1]),
		ExpiresAt:     now.Add(r.Duration),
		RetryAt:       retryAt,
	}, nil
}

// Reset deletes the sorted set for key.
func (s *slidingWindowLimiter) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %v: %w", key, err)
	}
	return nil
}
