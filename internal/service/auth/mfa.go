// internal/service/auth/mfa.go
package auth

import (
	"context"

	domain "authgate-service/internal/domain/auth"
	xerrors "authgate-service/internal/pkg/errors"
	"authgate-service/internal/provider"
	"authgate-service/internal/tabsync"
)

// EnrollTOTP registers an unverified TOTP factor and returns the secret the
// authenticator app needs.
func (m *Machine) EnrollTOTP(ctx context.Context, friendlyName string) (*provider.Enrollment, error) {
	if _, _, err := m.requireUser(); err != nil {
		return nil, err
	}

	enrollment, err := m.provider.MFA().Enroll(ctx, provider.FactorTOTP, friendlyName)
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to enroll factor")
	}
	return enrollment, nil
}

// VerifyEnrollment proves the new factor with a first code. The session is
// upgraded to aal2 by the provider as a side effect.
func (m *Machine) VerifyEnrollment(ctx context.Context, factorID, code string) error {
	user, _, err := m.requireUser()
	if err != nil {
		return err
	}

	mfa := m.provider.MFA()
	challenge, err := mfa.Challenge(ctx, factorID)
	if err != nil {
		return m.fail(err)
	}
	if _, err := mfa.Verify(ctx, factorID, challenge.ID, code); err != nil {
		return m.fail(err)
	}
	m.refreshUser(ctx)

	m.records.LogActivity(user.ID, domain.EventMFAEnabled, m.device.UserAgent,
		map[string]interface{}{"factor_id": factorID})
	m.records.LogSecurityEvent(user.ID, domain.SecurityMFAEnabled,
		map[string]interface{}{"factor_id": factorID})
	m.broadcaster.Broadcast(ctx, tabsync.AuthChange, nil)
	return nil
}

func (m *Machine) UnenrollFactor(ctx context.Context, factorID string) error {
	user, _, err := m.requireUser()
	if err != nil {
		return err
	}

	if err := m.provider.MFA().Unenroll(ctx, factorID); err != nil {
		return m.fail(err)
	}
	m.refreshUser(ctx)

	m.records.LogActivity(user.ID, domain.EventMFADisabled, m.device.UserAgent,
		map[string]interface{}{"factor_id": factorID})
	m.records.LogSecurityEvent(user.ID, domain.SecurityMFADisabled,
		map[string]interface{}{"factor_id": factorID})
	m.broadcaster.Broadcast(ctx, tabsync.AuthChange, nil)
	return nil
}

func (m *Machine) ListFactors(ctx context.Context) (*provider.FactorList, error) {
	if _, _, err := m.requireUser(); err != nil {
		return nil, err
	}
	return m.provider.MFA().ListFactors(ctx)
}

// AssuranceLevel is a live query; it is not cached in State.
func (m *Machine) AssuranceLevel(ctx context.Context) (*provider.AAL, error) {
	return m.provider.MFA().GetAuthenticatorAssuranceLevel(ctx)
}

// refreshUser pulls the user from the provider so factor lists in State are
// current. Failure leaves the old copy.
func (m *Machine) refreshUser(ctx context.Context) {
	user, err := m.provider.GetUser(ctx)
	if err != nil {
		return
	}
	m.store.Dispatch(userUpdated{user: user})
}
