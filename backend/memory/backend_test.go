package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aryangodara/secure_gate/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBackend_SignUpAndSignIn(t *testing.T) {
	b := New(WithBcryptCost(bcrypt.MinCost))
	ctx := context.Background()

	signedUp, err := b.SignUp(ctx, "Learner@Example.com", "Str0ng!pass", "Learner")
	require.NoError(t, err)
	assert.Equal(t, "learner@example.com", signedUp.Principal.Email)
	require.NotNil(t, signedUp.Session)

	_, err = b.SignUp(ctx, "learner@example.com", "Other!pass1", "")
	var rejected *gate.RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "User already registered", rejected.Message)

	signedIn, err := b.SignIn(ctx, "learner@example.com", "Str0ng!pass")
	require.NoError(t, err)
	assert.Equal(t, signedUp.Principal.ID, signedIn.Principal.ID)
	assert.NotEqual(t, signedUp.Session.AccessToken, signedIn.Session.AccessToken)

	_, err = b.SignIn(ctx, "learner@example.com", "wrong")
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "Invalid login credentials", rejected.Message)

	_, err = b.SignIn(ctx, "nobody@example.com", "wrong")
	require.True(t, errors.As(err, &rejected))
}

func TestBackend_PrincipalAndRoles(t *testing.T) {
	now := time.Date(2024, time.June, 23, 10, 0, 0, 0, time.UTC)
	b := New(WithBcryptCost(bcrypt.MinCost), WithTokenTTL(time.Hour), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	res, err := b.SignUp(ctx, "staff@example.com", "Str0ng!pass", "Staff")
	require.NoError(t, err)

	p, err := b.Principal(ctx, res.Session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.Principal.ID, p.ID)

	profile, err := b.Profile(ctx, *p)
	require.NoError(t, err)
	assert.Equal(t, "student", profile.Role)

	isAdmin, err := b.IsAdmin(ctx, *p)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	require.NoError(t, b.SetRole("staff@example.com", gate.AdminRole))
	isAdmin, err = b.IsAdmin(ctx, *p)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	b.FailAdminCheck(errors.New("rpc down"))
	_, err = b.IsAdmin(ctx, *p)
	assert.Error(t, err)

	assert.ErrorIs(t, b.SetRole("ghost@example.com", gate.AdminRole), ErrUnknownUser)

	now = now.Add(time.Hour)
	_, err = b.Principal(ctx, res.Session.AccessToken)
	assert.Error(t, err, "expired tokens are rejected")
	_, err = b.Principal(ctx, "made-up")
	assert.Error(t, err)
}
