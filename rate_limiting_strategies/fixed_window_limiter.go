package rate_limiting_strategies

import (
	"context"
	"fmt"
	"time"

	"github.com/aryangodara/secure_gate"
	"github.com/redis/go-redis/v9"
)

var (
	_ secure_gate.Strategy = &fixedWindowLimiter{}
)

// fixedWindowScript increments the counter only while it is under the limit
// and starts the window TTL on the first attempt.
//
// KEYS[1] key, ARGV[1] window (ms), ARGV[2] limit. Returns {allowed, count, pttl}.
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])

local current = tonumber(redis.call('GET', key) or '0')
local ttl = redis.call('PTTL', key)

if current >= limit then
	if ttl < 0 then
		ttl = window
	end
	return {0, current, ttl}
end

current = redis.call('INCR', key)
if ttl < 0 then
	redis.call('PEXPIRE', key, window)
	ttl = window
end
return {1, current, ttl}
`)

type fixedWindowLimiter struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewFixedWindowLimiter creates a new fixed window rate limiter. The window
// starts at the first attempt for a key and resets as a whole when it
// expires, so a burst of up to twice the limit can straddle a boundary.
func NewFixedWindowLimiter(client redis.UniversalClient, now func() time.Time) secure_gate.Strategy {
	if now == nil {
		now = time.Now
	}
	return &fixedWindowLimiter{
		client: client,
		now:    now,
	}
}

// Execute performs rate limiting using a fixed window strategy.
func (f *fixedWindowLimiter) Execute(ctx context.Context, r *secure_gate.Request) (*secure_gate.Result, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	window := r.Duration.Milliseconds()
	if window < 1 {
		window = 1
	}

	values, err := fixedWindowScript.Run(ctx, f.client, []string{r.Key}, window, r.Limit).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("error executing fixed window script for key %v: %w", r.Key, err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected fixed window reply for key %v: %v", r.Key, values)
	}

	expirationTime := f.now().Add(time.Duration(values[2]) * time.Millisecond)

	state := secure_gate.Allow
	if values[0] == 0 {
		state = secure_gate.Deny
	}

	return &secure_gate.Result{
		State:         state,
		TotalRequests: uint64(values[1]),
		ExpiresAt:     expirationTime,
		RetryAt:       expirationTime,
	}, nil
}

// Reset deletes the counter for key.
func (f *fixedWindowLimiter) Reset(ctx context.Context, key string) error {
	if err := f.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("error deleting key %v: %w", key, err)
	}
	return nil
}
