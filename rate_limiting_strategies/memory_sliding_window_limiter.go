package rate_limiting_strategies

import (
	"context"
	"sync"
	"time"

	"github.com/aryangodara/secure_gate"
)

var (
	_ secure_gate.Strategy = &memorySlidingWindowLimiter{}
	_ secure_gate.Sweeper  = &memorySlidingWindowLimiter{}
)

type windowEntry struct {
	attempts []time.Time
	// window of the most recent call, used by Sweep
	window time.Duration
}

// live drops attempts at or before cutoff and returns the oldest one kept.
// Attempts after now (clock moved backwards) are kept and counted.
func (e *windowEntry) live(cutoff time.Time) (oldest time.Time) {
	kept := e.attempts[:0]
	for _, t := range e.attempts {
		if !t.After(cutoff) {
			continue
		}
		if oldest.IsZero() || t.Before(oldest) {
			oldest = t
		}
		kept = append(kept, t)
	}
	e.attempts = kept
	return oldest
}

type memorySlidingWindowLimiter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time
}

// NewMemorySlidingWindowLimiter creates a sliding window limiter that keeps
// attempt timestamps in process memory. Entries can be dropped at any time;
// losing one only resets throttling for that key.
func NewMemorySlidingWindowLimiter(now func() time.Time) secure_gate.Strategy {
	if now == nil {
		now = time.Now
	}
	return &memorySlidingWindowLimiter{
		entries: make(map[string]*windowEntry),
		now:     now,
	}
}

// Execute performs rate limiting using a sliding window strategy.
func (m *memorySlidingWindowLimiter) Execute(_ context.Context, r *secure_gate.Request) (*secure_gate.Result, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.entries[r.Key]
	if !ok {
		entry = &windowEntry{}
	}
	entry.window = r.Duration

	oldest := entry.live(now.Add(-r.Duration))
	count := uint64(len(entry.attempts))

	if count >= r.Limit {
		if ok && count == 0 {
			delete(m.entries, r.Key)
		}
		retryAt := now
		if !oldest.IsZero() {
			retryAt = oldest.Add(r.Duration)
		}
		return &secure_gate.Result{
			State:         secure_gate.Deny,
			TotalRequests: count,
			ExpiresAt:     retryAt,
			RetryAt:       retryAt,
		}, nil
	}

	entry.attempts = append(entry.attempts, now)
	m.entries[r.Key] = entry
	if oldest.IsZero() || now.Before(oldest) {
		oldest = now
	}

	return &secure_gate.Result{
		State:         secure_gate.Allow,
		TotalRequests: count + 1,
		ExpiresAt:     now.Add(r.Duration),
		RetryAt:       oldest.Add(r.Duration),
	}, nil
}

// Reset removes the entry for key.
func (m *memorySlidingWindowLimiter) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Sweep drops entries whose attempts all fell out of their last window and
// returns how many were removed.
func (m *memorySlidingWindowLimiter) Sweep(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, entry := range m.entries {
		entry.live(now.Add(-entry.window))
		if len(entry.attempts) == 0 {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}
