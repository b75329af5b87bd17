package gate

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidInput is returned for a malformed email or a password that fails policy.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRateLimited is returned when the local throttle for the key is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrAuthentication is returned when the backend rejects a sign-in.
	ErrAuthentication = errors.New("authentication failed")
	// ErrRegistration is returned when the backend rejects a sign-up.
	ErrRegistration = errors.New("registration failed")
	// ErrAuthenticationRequired is returned by privileged operations without a principal.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrAuthorization is returned when the principal lacks the required privilege.
	ErrAuthorization = errors.New("authorization failed")
)

// Notification categories.
const (
	CategoryAuthentication         = "Authentication Error"
	CategoryRegistration           = "Registration Error"
	CategoryAuthenticationRequired = "Authentication Required"
	CategoryAuthorization          = "Access Denied"
)

const genericMessage = "An unexpected error occurred. Please try again."

var errEmptyResult = errors.New("backend returned no result")

// Error is what the gates return to callers. Kind is one of the sentinel
// errors above and is reachable through errors.Is.
type Error struct {
	Kind     error
	Category string
	Message  string

	// Details lists individual rule violations for invalid input.
	Details []string

	RetryAfter time.Duration

	// Status is the backend's HTTP status for a rejection, zero otherwise.
	Status int
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// RejectedError is returned by backends when they refuse an operation for a
// reason the user can act on. Message is shown to the user as is.
type RejectedError struct {
	Message string
	Status  int
}

func (e *RejectedError) Error() string {
	return e.Message
}

// backendFailure passes rejection messages through and hides everything else.
func backendFailure(kind error, category string, err error) *Error {
	e := &Error{Kind: kind, Category: category, Message: genericMessage}
	var rejected *RejectedError
	if errors.As(err, &rejected) && rejected.Message != "" {
		e.Message = rejected.Message
		e.Status = rejected.Status
	}
	return e
}

func waitHint(action string, wait time.Duration) string {
	if wait <= time.Minute {
		seconds := int(math.Ceil(wait.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		return fmt.Sprintf("Too many %s attempts. Please try again in %d %s.", action, seconds, plural(seconds, "second"))
	}
	minutes := int(math.Ceil(wait.Minutes()))
	return fmt.Sprintf("Too many %s attempts. Please try again in %d %s.", action, minutes, plural(minutes, "minute"))
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}
