package gate

import (
	"context"
	"time"
)

// AdminRole is the profile role that grants elevated privilege.
const AdminRole = "admin"

// Principal is the authenticated identity an operation runs for.
type Principal struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	AccessToken string `json:"-"`
}

// Profile is the principal's profile record as stored by the backend.
type Profile struct {
	UserID      string `json:"id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name,omitempty"`
}

// Session is a backend-issued session.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthResult is returned by successful sign-in and sign-up calls. Session is
// nil when the backend requires confirmation before the first sign-in.
type AuthResult struct {
	Principal Principal `json:"user"`
	Session   *Session  `json:"session,omitempty"`
}

// Backend is the identity service's sign-in and sign-up primitives. Errors
// the user can act on are reported as *RejectedError.
type Backend interface {
	SignIn(ctx context.Context, email, password string) (*AuthResult, error)
	SignUp(ctx context.Context, email, password, displayName string) (*AuthResult, error)
}

// AdminChecker is the server-side is_admin check for a principal.
type AdminChecker interface {
	IsAdmin(ctx context.Context, principal Principal) (bool, error)
}

// ProfileReader loads a principal's profile record.
type ProfileReader interface {
	Profile(ctx context.Context, principal Principal) (*Profile, error)
}

// PrincipalResolver maps an access token back to its principal.
type PrincipalResolver interface {
	Principal(ctx context.Context, accessToken string) (*Principal, error)
}
