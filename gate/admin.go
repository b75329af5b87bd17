package gate

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Decision is the admin decision for the current principal. IsAdmin is false
// until a decision has been resolved.
type Decision struct {
	IsAdmin   bool
	IsLoading bool
}

// ResolveAdmin answers whether principal holds admin privilege. It returns
// false for a nil principal without calling the backend, and treats a failed
// backend check as false. The result is the backend decision OR'ed with the
// local profile role.
//
// The local role is trusted on its own: a stale or tampered profile that
// says "admin" grants access without backend confirmation.
func ResolveAdmin(ctx context.Context, checker AdminChecker, principal *Principal, profile *Profile, logger *slog.Logger) bool {
	if principal == nil {
		return false
	}
	if logger == nil {
		logger = slog.Default()
	}
	return checkBackend(ctx, checker, *principal, logger) || hasAdminRole(profile)
}

func checkBackend(ctx context.Context, checker AdminChecker, principal Principal, logger *slog.Logger) bool {
	if checker == nil {
		return false
	}
	ok, err := checker.IsAdmin(ctx, principal)
	if err != nil {
		logger.WarnContext(ctx, "admin check failed, denying",
			slog.String("principal", principal.ID),
			slog.Any("error", err),
		)
		return false
	}
	return ok
}

func hasAdminRole(profile *Profile) bool {
	return profile != nil && profile.Role == AdminRole
}

// AdminSecurity caches the admin decision for one session. The decision is
// recomputed when the principal changes and never outlives the process.
type AdminSecurity struct {
	checker  AdminChecker
	logger   *slog.Logger
	notifier Notifier
	group    singleflight.Group

	mu        sync.RWMutex
	principal *Principal
	profile   *Profile
	backend   bool
	resolved  bool
	loading   bool
	gen       uint64
}

// AdminOption configures an AdminSecurity.
type AdminOption func(*AdminSecurity)

func WithAdminLogger(logger *slog.Logger) AdminOption {
	return func(a *AdminSecurity) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithAdminNotifier(notifier Notifier) AdminOption {
	return func(a *AdminSecurity) {
		if notifier != nil {
			a.notifier = notifier
		}
	}
}

// NewAdminSecurity returns a session-scoped decision cache with no principal.
func NewAdminSecurity(checker AdminChecker, opts ...AdminOption) *AdminSecurity {
	a := &AdminSecurity{
		checker:  checker,
		logger:   slog.Default(),
		resolved: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.notifier == nil {
		a.notifier = LogNotifier{Logger: a.logger}
	}
	return a
}

// SetPrincipal records the current principal and profile. A new principal
// identity resets the decision and asks the backend again; a profile update
// for the same principal only re-evaluates the local role.
func (a *AdminSecurity) SetPrincipal(ctx context.Context, principal *Principal, profile *Profile) Decision {
	a.mu.Lock()
	same := samePrincipal(a.principal, principal)
	a.principal = clonePrincipal(principal)
	a.profile = cloneProfile(profile)
	if same && (a.resolved || a.loading) {
		d := a.decisionLocked()
		a.mu.Unlock()
		return d
	}

	a.gen++
	a.backend = false
	a.resolved = principal == nil
	a.loading = principal != nil
	gen := a.gen
	a.mu.Unlock()

	if principal != nil {
		a.refresh(ctx, gen, *principal)
	}
	return a.Decision()
}

// Decision returns the current cached decision.
func (a *AdminSecurity) Decision() Decision {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.decisionLocked()
}

func (a *AdminSecurity) IsAdmin() bool {
	return a.Decision().IsAdmin
}

func (a *AdminSecurity) IsLoading() bool {
	return a.Decision().IsLoading
}

// RequireAdmin guards a privileged operation. It returns
// ErrAuthenticationRequired without a principal and ErrAuthorization when the
// principal is not an admin. A pending decision is resolved first.
func (a *AdminSecurity) RequireAdmin(ctx context.Context) error {
	a.mu.RLock()
	principal := clonePrincipal(a.principal)
	resolved := a.resolved
	gen := a.gen
	a.mu.RUnlock()

	if principal == nil {
		return fail(ctx, a.notifier, &Error{
			Kind:     ErrAuthenticationRequired,
			Category: CategoryAuthenticationRequired,
			Message:  "Please sign in to continue.",
		})
	}
	if !resolved {
		a.refresh(ctx, gen, *principal)
	}

	if !a.Decision().IsAdmin {
		a.logger.WarnContext(ctx, "admin access denied", slog.String("principal", principal.ID))
		return fail(ctx, a.notifier, &Error{
			Kind:     ErrAuthorization,
			Category: CategoryAuthorization,
			Message:  "Admin access required.",
		})
	}
	return nil
}

// refresh asks the backend once per principal even when several callers wait
// on the same decision. Results for a superseded principal are dropped.
func (a *AdminSecurity) refresh(ctx context.Context, gen uint64, principal Principal) {
	v, _, _ := a.group.Do(principal.ID, func() (interface{}, error) {
		return checkBackend(ctx, a.checker, principal, a.logger), nil
	})
	isAdmin, _ := v.(bool)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen {
		return
	}
	a.backend = isAdmin
	a.resolved = true
	a.loading = false
	if !isAdmin && hasAdminRole(a.profile) {
		a.logger.WarnContext(ctx, "admin granted by local profile role only", slog.String("principal", principal.ID))
	}
}

func (a *AdminSecurity) decisionLocked() Decision {
	return Decision{
		IsAdmin:   a.principal != nil && a.resolved && (a.backend || hasAdminRole(a.profile)),
		IsLoading: a.loading,
	}
}

func samePrincipal(a, b *Principal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

func clonePrincipal(p *Principal) *Principal {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func cloneProfile(p *Profile) *Profile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
