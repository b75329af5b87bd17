package gate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aryangodara/secure_gate"
	"github.com/aryangodara/secure_gate/validators"
)

// Budget is an attempt ceiling over a sliding window.
type Budget struct {
	MaxAttempts uint64
	Window      time.Duration
}

var (
	// DefaultSignInBudget allows 5 sign-in attempts per email per 15 minutes.
	DefaultSignInBudget = Budget{MaxAttempts: 5, Window: 15 * time.Minute}
	// DefaultSignUpBudget allows 3 sign-up attempts per email per hour.
	DefaultSignUpBudget = Budget{MaxAttempts: 3, Window: time.Hour}
)

type phase string

const (
	phaseValidating   phase = "validating"
	phaseRateChecking phase = "rate_checking"
	phaseDelegating   phase = "delegating"
	phaseSuccess      phase = "success"
	phaseFailed       phase = "failed"
)

// SignInKey is the limiter key for sign-in attempts by email.
func SignInKey(email string) string {
	return "signin-" + email
}

// SignUpKey is the limiter key for sign-up attempts by email.
func SignUpKey(email string) string {
	return "signup-" + email
}

// AuthGate validates credentials, applies the local throttle and only then
// calls the backend. Each call runs validate, throttle, delegate in order and
// stops at the first failure; nothing is retried automatically.
type AuthGate struct {
	backend  Backend
	limiter  *secure_gate.RateLimiter
	logger   *slog.Logger
	notifier Notifier
	policy   validators.Policy
	signIn   Budget
	signUp   Budget
	now      func() time.Time
	inFlight atomic.Int64
}

// Option configures an AuthGate.
type Option func(*AuthGate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *AuthGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(g *AuthGate) {
		if notifier != nil {
			g.notifier = notifier
		}
	}
}

func WithPasswordPolicy(policy validators.Policy) Option {
	return func(g *AuthGate) { g.policy = policy }
}

func WithSignInBudget(b Budget) Option {
	return func(g *AuthGate) { g.signIn = b }
}

func WithSignUpBudget(b Budget) Option {
	return func(g *AuthGate) { g.signUp = b }
}

// WithClock sets the clock used to turn retry instants into wait hints.
func WithClock(now func() time.Time) Option {
	return func(g *AuthGate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewAuthGate builds a gate in front of backend. Notifications default to
// the logger.
func NewAuthGate(backend Backend, limiter *secure_gate.RateLimiter, opts ...Option) *AuthGate {
	g := &AuthGate{
		backend: backend,
		limiter: limiter,
		logger:  slog.Default(),
		policy:  validators.DefaultPolicy(),
		signIn:  DefaultSignInBudget,
		signUp:  DefaultSignUpBudget,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.notifier == nil {
		g.notifier = LogNotifier{Logger: g.logger}
	}
	return g
}

// IsLoading reports whether any sign-in or sign-up call is in flight.
func (g *AuthGate) IsLoading() bool {
	return g.inFlight.Load() > 0
}

// SecureSignIn signs in through the backend. A successful sign-in clears the
// email's throttle so earlier typos are not held against the user.
func (g *AuthGate) SecureSignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	logger := g.logger.With(slog.String("op", "signin"))
	category := CategoryAuthentication

	g.trace(ctx, logger, phaseValidating)
	if !validators.ValidateEmail(email) {
		return nil, g.failed(ctx, logger, &Error{
			Kind:     ErrInvalidInput,
			Category: category,
			Message:  "Please enter a valid email address.",
		})
	}

	g.trace(ctx, logger, phaseRateChecking)
	key := SignInKey(email)
	if err := g.throttle(ctx, logger, key, g.signIn, category, "sign-in"); err != nil {
		return nil, err
	}

	g.trace(ctx, logger, phaseDelegating)
	result, err := g.backend.SignIn(ctx, email, password)
	if err == nil && result == nil {
		err = errEmptyResult
	}
	if err != nil {
		g.logBackendError(ctx, logger, err)
		return nil, g.failed(ctx, logger, backendFailure(ErrAuthentication, category, err))
	}

	if err := g.limiter.Reset(ctx, key); err != nil {
		logger.WarnContext(ctx, "failed to reset sign-in throttle", slog.Any("error", err))
	}

	g.trace(ctx, logger, phaseSuccess)
	return result, nil
}

// SecureSignUp registers a new account through the backend. All password
// rule violations are reported together in one error.
func (g *AuthGate) SecureSignUp(ctx context.Context, email, password, displayName string) (*AuthResult, error) {
	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	logger := g.logger.With(slog.String("op", "signup"))
	category := CategoryRegistration

	g.trace(ctx, logger, phaseValidating)
	if !validators.ValidateEmail(email) {
		return nil, g.failed(ctx, logger, &Error{
			Kind:     ErrInvalidInput,
			Category: category,
			Message:  "Please enter a valid email address.",
		})
	}
	if res := g.policy.Validate(password); !res.IsValid {
		return nil, g.failed(ctx, logger, &Error{
			Kind:     ErrInvalidInput,
			Category: category,
			Message:  strings.Join(res.Errors, ". ") + ".",
			Details:  res.Errors,
		})
	}

	g.trace(ctx, logger, phaseRateChecking)
	if err := g.throttle(ctx, logger, SignUpKey(email), g.signUp, category, "sign-up"); err != nil {
		return nil, err
	}

	g.trace(ctx, logger, phaseDelegating)
	result, err := g.backend.SignUp(ctx, email, password, strings.TrimSpace(displayName))
	if err == nil && result == nil {
		err = errEmptyResult
	}
	if err != nil {
		g.logBackendError(ctx, logger, err)
		return nil, g.failed(ctx, logger, backendFailure(ErrRegistration, category, err))
	}

	g.trace(ctx, logger, phaseSuccess)
	return result, nil
}

func (g *AuthGate) throttle(ctx context.Context, logger *slog.Logger, key string, budget Budget, category, action string) error {
	res, err := g.limiter.Check(ctx, key, budget.MaxAttempts, budget.Window)
	if err != nil {
		logger.ErrorContext(ctx, "rate limit check failed", slog.Any("error", err))
		return g.failed(ctx, logger, &Error{
			Kind:     ErrRateLimited,
			Category: category,
			Message:  "Too many " + action + " attempts. Please try again later.",
		})
	}
	if res.Allowed() {
		return nil
	}

	wait := res.RetryAt.Sub(g.now())
	if wait < 0 {
		wait = 0
	}
	return g.failed(ctx, logger, &Error{
		Kind:       ErrRateLimited,
		Category:   category,
		Message:    waitHint(action, wait),
		RetryAfter: wait,
	})
}

func (g *AuthGate) failed(ctx context.Context, logger *slog.Logger, e *Error) error {
	logger.InfoContext(ctx, "gate call failed",
		slog.String("phase", string(phaseFailed)),
		slog.String("kind", e.Kind.Error()),
	)
	return fail(ctx, g.notifier, e)
}

func (g *AuthGate) trace(ctx context.Context, logger *slog.Logger, p phase) {
	logger.DebugContext(ctx, "gate phase", slog.String("phase", string(p)))
}

func (g *AuthGate) logBackendError(ctx context.Context, logger *slog.Logger, err error) {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return
	}
	logger.ErrorContext(ctx, "backend call failed", slog.Any("error", err))
}
