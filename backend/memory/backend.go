// Package memory is an in-process identity backend for tests and local
// demos. Passwords are stored as bcrypt hashes and tokens are opaque.
package memory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aryangodara/secure_gate/gate"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	_ gate.Backend           = &Backend{}
	_ gate.AdminChecker      = &Backend{}
	_ gate.ProfileReader     = &Backend{}
	_ gate.PrincipalResolver = &Backend{}
)

// ErrUnknownUser is returned by SetRole for an email that was never registered.
var ErrUnknownUser = errors.New("unknown user")

const (
	defaultRole     = "student"
	defaultTokenTTL = time.Hour
)

type user struct {
	id          string
	email       string
	displayName string
	role        string
	hash        []byte
}

type token struct {
	userID    string
	expiresAt time.Time
}

// Backend keeps users, profiles and sessions in memory.
type Backend struct {
	mu       sync.RWMutex
	users    map[string]*user
	byID     map[string]*user
	tokens   map[string]token
	adminErr error
	cost     int
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(b *Backend) { b.cost = cost }
}

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(b *Backend) { b.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

func New(opts ...Option) *Backend {
	b := &Backend{
		users:  make(map[string]*user),
		byID:   make(map[string]*user),
		tokens: make(map[string]token),
		cost:   bcrypt.DefaultCost,
		ttl:    defaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp registers a user with the default role and signs them in.
func (b *Backend) SignUp(_ context.Context, email, password, displayName string) (*gate.AuthResult, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	key := normalizeEmail(email)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.users[key]; ok {
		return nil, &gate.RejectedError{Message: "User already registered", Status: http.StatusUnprocessableEntity}
	}

	u := &user{
		id:          uuid.NewString(),
		email:       key,
		displayName: displayName,
		role:        defaultRole,
		hash:        hash,
	}
	b.users[key] = u
	b.byID[u.id] = u

	return b.issueLocked(u), nil
}

// SignIn verifies the password and issues a new session.
func (b *Backend) SignIn(_ context.Context, email, password string) (*gate.AuthResult, error) {
	b.mu.RLock()
	u, ok := b.users[normalizeEmail(email)]
	b.mu.RUnlock()

	if !ok {
		return nil, invalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return nil, invalidCredentials()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueLocked(u), nil
}

func invalidCredentials() error {
	return &gate.RejectedError{Message: "Invalid login credentials", Status: http.StatusBadRequest}
}

func (b *Backend) issueLocked(u *user) *gate.AuthResult {
	access := uuid.NewString()
	expiresAt := b.now().Add(b.ttl)
	b.tokens[access] = token{userID: u.id, expiresAt: expiresAt}

	return &gate.AuthResult{
		Principal: principalOf(u, access),
		Session: &gate.Session{
			AccessToken:  access,
			RefreshToken: uuid.NewString(),
			ExpiresAt:    expiresAt,
		},
	}
}

func principalOf(u *user, accessToken string) gate.Principal {
	return gate.Principal{
		ID:          u.id,
		Email:       u.email,
		DisplayName: u.displayName,
		AccessToken: accessToken,
	}
}

// Principal resolves a live access token.
func (b *Backend) Principal(_ context.Context, accessToken string) (*gate.Principal, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.tokens[accessToken]
	if !ok || !b.now().Before(t.expiresAt) {
		return nil, &gate.RejectedError{Message: "Invalid or expired session", Status: http.StatusUnauthorized}
	}
	u := b.byID[t.userID]
	p := principalOf(u, accessToken)
	return &p, nil
}

// IsAdmin reports the stored role, or the injected failure.
func (b *Backend) IsAdmin(_ context.Context, principal gate.Principal) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.adminErr != nil {
		return false, b.adminErr
	}
	u, ok := b.byID[principal.ID]
	return ok && u.role == gate.AdminRole, nil
}

// Profile returns the principal's profile record.
func (b *Backend) Profile(_ context.Context, principal gate.Principal) (*gate.Profile, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	u, ok := b.byID[principal.ID]
	if !ok {
		return nil, fmt.Errorf("profile %v: %w", principal.ID, ErrUnknownUser)
	}
	return &gate.Profile{UserID: u.id, Role: u.role, DisplayName: u.displayName}, nil
}

// SetRole changes the role of a registered user.
func (b *Backend) SetRole(email, role string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[normalizeEmail(email)]
	if !ok {
		return fmt.Errorf("set role for %v: %w", email, ErrUnknownUser)
	}
	u.role = role
	return nil
}

// FailAdminCheck makes IsAdmin return err until called again with nil.
func (b *Backend) FailAdminCheck(err error) {
	b.mu.Lock()
	b.adminErr = err
	b.mu.Unlock()
}
