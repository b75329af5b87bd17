package rate_limiting_strategies

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aryangodara/secure_gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemorySlidingWindowLimiter_Execute(t *testing.T) {
	tt := []struct {
		desc        string
		runs        int
		limit       uint64
		timeAdvance time.Duration
		state       secure_gate.State
		total       uint64
	}{
		{desc: "allows up to the limit", runs: 5, limit: 5, state: secure_gate.Allow, total: 5},
		{desc: "denies the call after the limit", runs: 6, limit: 5, state: secure_gate.Deny, total: 5},
		{desc: "denied calls are not recorded", runs: 50, limit: 5, state: secure_gate.Deny, total: 5},
		{desc: "zero limit denies", runs: 1, limit: 0, state: secure_gate.Deny, total: 0},
		{desc: "old attempts slide out", runs: 100, limit: 100, timeAdvance: time.Second, state: secure_gate.Allow, total: 60},
	}

	for _, ts := range tt {
		t.Run(ts.desc, func(t *testing.T) {
			clock := newTestClock()
			limiter := NewMemorySlidingWindowLimiter(clock.Now)
			req := &secure_gate.Request{Key: "some-user", Limit: ts.limit, Duration: time.Minute}

			var res *secure_gate.Result
			var err error
			for _i := 0; _i < ts.runs; _i++ {
				res, err = limiter.Execute(context.Background(), req)
				clock.Advance(ts.timeAdvance)
			}

			require.NoError(t, err)
			assert.Equal(t, ts.state, res.State)
			assert.Equal(t, ts.total, res.TotalRequests)
		})
	}
}

func TestMemorySlidingWindowLimiter_WindowElapsedAllowsWithoutReset(t *testing.T) {
	clock := newTestClock()
	limiter := NewMemorySlidingWindowLimiter(clock.Now)
	ctx := context.Background()
	req := &secure_gate.Request{Key: "signin-a@b.co", Limit: 3, Duration: 15 * time.Minute}

	for _i := 0; _i < 3; _i++ {
		res, err := limiter.Execute(ctx, req)
		require.NoError(t, err)
		require.True(t, res.Allowed())
	}

	clock.Advance(14 * time.Minute)
	res, err := limiter.Execute(ctx, req)
	require.NoError(t, err)
	require.False(t, res.Allowed())
	assert.True(t, res.RetryAt.Equal(clock.Now().Add(time.Minute)), "retry hint points at the oldest attempt leaving the window")

	clock.Advance(time.Minute)
	res, err = limiter.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Allowed())
	assert.Equal(t, uint64(1), res.TotalRequests)
}

func TestMemorySlidingWindowLimiter_ResetAndIsolation(t *testing.T) {
	clock := newTestClock()
	limiter := NewMemorySlidingWindowLimiter(clock.Now)
	ctx := context.Background()
	alice := &secure_gate.Request{Key: "signin-alice@example.com", Limit: 2, Duration: time.Minute}
	bob := &secure_gate.Request{Key: "signin-bob@example.com", Limit: 2, Duration: time.Minute}

	for _i := 0; _i < 3; _i++ {
		_, err := limiter.Execute(ctx, alice)
		require.NoError(t, err)
	}
	res, err := limiter.Execute(ctx, alice)
	require.NoError(t, err)
	require.False(t, res.Allowed())

	res, err = limiter.Execute(ctx, bob)
	require.NoError(t, err)
	assert.True(t, res.Allowed(), "keys are isolated")

	require.NoError(t, limiter.Reset(ctx, alice.Key))
	require.NoError(t, limiter.Reset(ctx, alice.Key))
	require.NoError(t, limiter.Reset(ctx, "missing"))

	res, err = limiter.Execute(ctx, alice)
	require.NoError(t, err)
	assert.True(t, res.Allowed())
	assert.Equal(t, uint64(1), res.TotalRequests)
}

func TestMemorySlidingWindowLimiter_ClockMovingBackwardsDoesNotUndercount(t *testing.T) {
	clock := newTestClock()
	limiter := NewMemorySlidingWindowLimiter(clock.Now)
	ctx := context.Background()
	req := &secure_gate.Request{Key: "k", Limit: 3, Duration: time.Minute}

	for _i := 0; _i < 3; _i++ {
		res, err := limiter.Execute(ctx, req)
		require.NoError(t, err)
		require.True(t, res.Allowed())
	}

	clock.Advance(-10 * time.Minute)
	res, err := limiter.Execute(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Allowed())
	assert.Equal(t, uint64(3), res.TotalRequests)
}

func TestMemorySlidingWindowLimiter_ConcurrentCallsRespectLimit(t *testing.T) {
	limiter := NewMemorySlidingWindowLimiter(time.Now)
	req := &secure_gate.Request{Key: "burst", Limit: 25, Duration: time.Minute}

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for _i := 0; _i < 200; _i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Execute(context.Background(), req)
			if err == nil && res.Allowed() {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(25), allowed.Load())
}

func TestMemorySlidingWindowLimiter_Sweep(t *testing.T) {
	clock := newTestClock()
	strategy := NewMemorySlidingWindowLimiter(clock.Now)
	sweeper, ok := strategy.(secure_gate.Sweeper)
	require.True(t, ok)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := strategy.Execute(ctx, &secure_gate.Request{Key: fmt.Sprintf("short-%d", i), Limit: 1, Duration: time.Minute})
		require.NoError(t, err)
	}
	_, err := strategy.Execute(ctx, &secure_gate.Request{Key: "long", Limit: 1, Duration: time.Hour})
	require.NoError(t, err)

	assert.Equal(t, 0, sweeper.Sweep(ctx))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 10, sweeper.Sweep(ctx))

	res, err := strategy.Execute(ctx, &secure_gate.Request{Key: "long", Limit: 1, Duration: time.Hour})
	require.NoError(t, err)
	assert.False(t, res.Allowed(), "sweep keeps entries with live attempts")
}
