package secure_gate

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRequest is returned by strategies for requests without a key or a positive window.
var ErrInvalidRequest = errors.New("invalid rate limit request")

// Request defines a request to be rate-limited. Limit and Duration are
// supplied per call, so one key may be checked under different policies.
type Request struct {
	Key      string
	Limit    uint64
	Duration time.Duration
}

// Validate reports whether the request can be evaluated.
func (r *Request) Validate() error {
	if r == nil || r.Key == "" || r.Duration <= 0 {
		return ErrInvalidRequest
	}
	return nil
}

// State represents the result of rate limiting.
type State int64

const (
	Deny State = iota
	Allow
)

// State strings for HTTP headers
var stateStrings = map[State]string{
	Allow: "Allow",
	Deny:  "Deny",
}

func (s State) String() string {
	return stateStrings[s]
}

// Result is the outcome of a rate limit check.
type Result struct {
	State         State
	TotalRequests uint64
	ExpiresAt     time.Time
	// RetryAt is when the oldest counted attempt leaves the window.
	RetryAt time.Time
}

// Allowed reports whether the attempt was admitted and recorded.
func (r *Result) Allowed() bool {
	return r != nil && r.State == Allow
}

// Strategy interface defines the contract for rate limiting strategies.
//
// Execute counts the attempts for r.Key inside the trailing window and, only
// when that count is below r.Limit, records a new attempt. The check and the
// record happen as one operation. Denied attempts are not recorded.
type Strategy interface {
	Execute(ctx context.Context, r *Request) (*Result, error)
	Reset(ctx context.Context, key string) error
}

// Sweeper is implemented by strategies that keep entries in process memory
// and can drop keys without live attempts.
type Sweeper interface {
	Sweep(ctx context.Context) int
}
