package secure_gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RateLimiter throttles attempts per logical key (for example "signin-<email>")
// on top of a Strategy. It is a best-effort throttle in front of the backend,
// which keeps its own limits and remains the authoritative control. With the
// in-memory strategy the state is per process and is lost on restart.
type RateLimiter struct {
	strategy Strategy
	logger   *slog.Logger
}

// NewRateLimiter wraps strategy. A nil logger falls back to slog.Default.
func NewRateLimiter(strategy Strategy, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		strategy: strategy,
		logger:   logger,
	}
}

// Check evaluates one attempt for key and records it when it is under maxAttempts.
func (l *RateLimiter) Check(ctx context.Context, key string, maxAttempts uint64, window time.Duration) (*Result, error) {
	req := &Request{
		Key:      key,
		Limit:    maxAttempts,
		Duration: window,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	result, err := l.strategy.Execute(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to check rate limit for key %v: %w", key, err)
	}
	return result, nil
}

// IsAllowed reports whether an attempt for key is admitted. Store failures
// and invalid arguments deny the attempt.
func (l *RateLimiter) IsAllowed(ctx context.Context, key string, maxAttempts uint64, window time.Duration) bool {
	result, err := l.Check(ctx, key, maxAttempts, window)
	if err != nil {
		l.logger.Error("rate limit check failed", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return result.Allowed()
}

// Reset clears every recorded attempt for key. Unknown keys are a no-op.
func (l *RateLimiter) Reset(ctx context.Context, key string) error {
	if err := l.strategy.Reset(ctx, key); err != nil {
		return fmt.Errorf("failed to reset rate limit for key %v: %w", key, err)
	}
	return nil
}

// RunJanitor evicts idle entries every interval until ctx is done. It returns
// immediately when the strategy keeps no local state.
func (l *RateLimiter) RunJanitor(ctx context.Context, interval time.Duration) {
	sweeper, ok := l.strategy.(Sweeper)
	if !ok || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sweeper.Sweep(ctx); n > 0 {
				l.logger.Debug("evicted idle rate limit entries", slog.Int("count", n))
			}
		}
	}
}
