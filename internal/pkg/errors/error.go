package xerrors

import (
	"errors"
	"fmt"
	"time"
)

// Credential errors
var (
	ErrInvalidCredentials    = errors.New("invalid login credentials")
	ErrEmailNotConfirmed     = errors.New("email not confirmed")
	ErrUserAlreadyRegistered = errors.New("user already registered")
	ErrWeakPassword          = errors.New("password does not meet requirements")
)

// MFA errors
var (
	ErrMFAInvalidCode      = errors.New("invalid verification code")
	ErrMFAChallengeExpired = errors.New("verification challenge expired")
	ErrAssuranceNotMet     = errors.New("session assurance level not upgraded to aal2")
	ErrNoVerifiedFactor    = errors.New("no verified second factor")
	ErrMFANotPending       = errors.New("no second-factor login in progress")
)

// Session errors
var (
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrNoCurrentSession    = errors.New("current session is not known")
	ErrSessionSuperseded   = errors.New("session was signed out while the login was in flight")
	ErrNoProviderSession   = errors.New("no active provider session")
	ErrRateLimited         = errors.New("too many failed attempts")
	ErrProviderUnavailable = errors.New("auth provider unavailable")
)

// Common reusable application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal server error")
)

// RateLimitError is returned when the local login throttle rejects an
// attempt before any network call is made.
type RateLimitError struct {
	Identifier string
	Remaining  time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many failed attempts, try again in %d seconds", int(e.Remaining.Round(time.Second).Seconds()))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}

// IsCredentialError reports whether err belongs to the user-correctable
// credential class (bad password, unconfirmed email, duplicate account).
func IsCredentialError(err error) bool {
	return Is(err, ErrInvalidCredentials) || Is(err, ErrEmailNotConfirmed) ||
		Is(err, ErrUserAlreadyRegistered) || Is(err, ErrWeakPassword)
}

// IsMFAError reports whether err belongs to the second-factor class.
func IsMFAError(err error) bool {
	return Is(err, ErrMFAInvalidCode) || Is(err, ErrMFAChallengeExpired) ||
		Is(err, ErrAssuranceNotMet) || Is(err, ErrNoVerifiedFactor) || Is(err, ErrMFANotPending)
}
