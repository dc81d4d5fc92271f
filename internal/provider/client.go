// Package provider is the boundary to the hosted auth provider. Everything
// the rest of the service knows about users, sessions and factors comes
// through the types in this package.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	xerrors "authgate-service/internal/pkg/errors"
)

type Client interface {
	SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error)
	SignUp(ctx context.Context, email, password, redirectTo string) (*AuthResponse, error)
	// SignOut clears local storage for local and global scope even when the
	// remote call fails; the remote error is still returned.
	SignOut(ctx context.Context, scope SignOutScope) error
	GetSession(ctx context.Context) (*Session, error)
	GetUser(ctx context.Context) (*User, error)
	OnAuthStateChange(fn Listener) (unsubscribe func())
	UpdateUser(ctx context.Context, attrs UserAttributes) (*User, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	Resend(ctx context.Context, typ OTPType, email, redirectTo string) error
	SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error)
	SetSession(ctx context.Context, accessToken, refreshToken string) (*AuthResponse, error)
	DeleteAccount(ctx context.Context) error
	MFA() MFA
}

type MFA interface {
	Enroll(ctx context.Context, factorType FactorType, friendlyName string) (*Enrollment, error)
	Challenge(ctx context.Context, factorID string) (*Challenge, error)
	Verify(ctx context.Context, factorID, challengeID, code string) (*AuthResponse, error)
	Unenroll(ctx context.Context, factorID string) error
	ListFactors(ctx context.Context) (*FactorList, error)
	GetAuthenticatorAssuranceLevel(ctx context.Context) (*AAL, error)
}

// Storage persists the serialized session. storage.Store satisfies it.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Error is a rejection returned by the provider.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.Status, e.Message)
}

// Unwrap maps provider error codes onto the service's error taxonomy.
func (e *Error) Unwrap() error {
	switch e.Code {
	case "invalid_credentials", "invalid_grant":
		return xerrors.ErrInvalidCredentials
	case "email_not_confirmed":
		return xerrors.ErrEmailNotConfirmed
	case "user_already_exists", "email_exists":
		return xerrors.ErrUserAlreadyRegistered
	case "weak_password":
		return xerrors.ErrWeakPassword
	case "mfa_verification_failed", "mfa_verification_rejected":
		return xerrors.ErrMFAInvalidCode
	case "mfa_challenge_expired":
		return xerrors.ErrMFAChallengeExpired
	case "insufficient_aal":
		return xerrors.ErrAssuranceNotMet
	case "session_not_found", "session_expired", "bad_jwt", "no_authorization",
		"refresh_token_not_found", "refresh_token_already_used", "user_not_found":
		return xerrors.ErrNotAuthenticated
	case "over_request_rate_limit", "over_email_send_rate_limit":
		return xerrors.ErrRateLimited
	}
	switch {
	case e.Status >= http.StatusInternalServerError:
		return xerrors.ErrProviderUnavailable
	case e.Status == http.StatusUnauthorized:
		return xerrors.ErrNotAuthenticated
	case e.Status == http.StatusTooManyRequests:
		return xerrors.ErrRateLimited
	case e.Status == http.StatusNotFound:
		return xerrors.ErrNotFound
	}
	return nil
}

// IsAuthRejection reports a 4xx from the provider, as opposed to a transport
// failure or a provider outage.
func IsAuthRejection(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Status >= 400 && pe.Status < 500
}
