// internal/service/auth/account.go
package auth

import (
	"context"
	"sort"

	domain "authgate-service/internal/domain/auth"
	xerrors "authgate-service/internal/pkg/errors"
	"authgate-service/internal/provider"
	"authgate-service/internal/routes"
	"authgate-service/internal/tabsync"
)

// SettingsKey is where user settings live inside the provider's user metadata.
const SettingsKey = "settings"

// ========== Credentials ==========

func (m *Machine) UpdatePassword(ctx context.Context, password string) error {
	user, _, err := m.requireUser()
	if err != nil {
		return err
	}

	updated, err := m.provider.UpdateUser(ctx, provider.UserAttributes{Password: password})
	if err != nil {
		return m.fail(err)
	}
	m.store.Dispatch(userUpdated{user: updated})

	m.records.LogActivity(user.ID, domain.EventPasswordChange, m.device.UserAgent, nil)
	m.records.LogSecurityEvent(user.ID, domain.SecurityPasswordChange, nil)
	return nil
}

// UpdateEmail starts an email change. The provider sends a confirmation to
// the new address; until then the user keeps the old one.
func (m *Machine) UpdateEmail(ctx context.Context, email string) error {
	user, _, err := m.requireUser()
	if err != nil {
		return err
	}

	updated, err := m.provider.UpdateUser(ctx, provider.UserAttributes{Email: email})
	if err != nil {
		return m.fail(err)
	}
	m.store.Dispatch(userUpdated{user: updated})

	m.records.LogSecurityEvent(user.ID, domain.SecurityEmailChange,
		map[string]interface{}{"old_email": user.Email, "new_email": email})
	m.broadcaster.Broadcast(ctx, tabsync.ProfileUpdate, nil)
	return nil
}

// ResetPassword sends a recovery email. It needs no signed-in user.
func (m *Machine) ResetPassword(ctx context.Context, email string) error {
	if err := m.provider.ResetPasswordForEmail(ctx, email, m.redirect(routes.ResetPassword)); err != nil {
		return xerrors.Wrap(err, "failed to send reset email")
	}
	return nil
}

func (m *Machine) ResendVerification(ctx context.Context, email string) error {
	if err := m.provider.Resend(ctx, provider.OTPSignup, email, m.redirect(routes.AuthConfirm)); err != nil {
		return xerrors.Wrap(err, "failed to resend verification")
	}
	return nil
}

// ========== Profile ==========

// UpdateProfile merges data into the user's metadata and tells the other
// tabs to refresh their copy of the user.
func (m *Machine) UpdateProfile(ctx context.Context, data map[string]interface{}) error {
	user, _, err := m.requireUser()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return xerrors.ErrInvalidInput
	}

	updated, err := m.provider.UpdateUser(ctx, provider.UserAttributes{Data: data})
	if err != nil {
		return m.fail(err)
	}
	m.store.Dispatch(userUpdated{user: updated})

	fields := make([]string, 0, len(data))
	for k := range data {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	m.records.LogActivity(user.ID, domain.EventProfileUpdate, m.device.UserAgent,
		map[string]interface{}{"fields": fields})
	m.broadcaster.Broadcast(ctx, tabsync.ProfileUpdate, nil)
	return nil
}

func (m *Machine) UpdateSettings(ctx context.Context, settings map[string]interface{}) error {
	if _, _, err := m.requireUser(); err != nil {
		return err
	}
	if len(settings) == 0 {
		return xerrors.ErrInvalidInput
	}

	updated, err := m.provider.UpdateUser(ctx, provider.UserAttributes{
		Data: map[string]interface{}{SettingsKey: settings},
	})
	if err != nil {
		return m.fail(err)
	}
	m.store.Dispatch(userUpdated{user: updated})

	m.broadcaster.Broadcast(ctx, tabsync.SettingsUpdate, map[string]interface{}{SettingsKey: settings})
	return nil
}
