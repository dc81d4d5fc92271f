// internal/service/auth/logout.go
package auth

import (
	"context"

	domain "authgate-service/internal/domain/auth"
	xerrors "authgate-service/internal/pkg/errors"
	"authgate-service/internal/provider"
	"authgate-service/internal/tabsync"

	"go.uber.org/zap"
)

// Logout ends the browser's session. The tab is ANONYMOUS afterwards even
// when the provider call fails; that failure is still returned.
func (m *Machine) Logout(ctx context.Context) error {
	st := m.store.Snapshot()
	if st.User == nil && st.MFAPending == nil {
		return nil
	}

	m.stopHeartbeat()
	if st.User != nil {
		if st.CurrentSessionID != "" {
			if err := m.records.DeleteSession(ctx, st.User.ID, st.CurrentSessionID); err != nil {
				m.logger.Warn("failed to delete session row", zap.Error(err))
			}
		}
		m.records.LogActivity(st.User.ID, domain.EventLogout, m.device.UserAgent, nil)
	}
	m.clearCurrentSession(ctx)

	remoteErr := m.provider.SignOut(ctx, provider.ScopeLocal)
	m.store.Dispatch(signedOut{})
	m.broadcaster.Broadcast(ctx, tabsync.Logout, nil)

	if remoteErr != nil {
		m.logger.Warn("remote sign-out failed", zap.Error(remoteErr))
		return xerrors.Wrap(remoteErr, "remote sign-out failed")
	}
	return nil
}

// DeleteAccount removes the user at the provider and signs every tab out.
func (m *Machine) DeleteAccount(ctx context.Context) error {
	user, _, err := m.requireUser()
	if err != nil {
		return err
	}

	if err := m.provider.DeleteAccount(ctx); err != nil {
		return m.fail(xerrors.Wrap(err, "failed to delete account"))
	}
	m.records.LogSecurityEvent(user.ID, domain.SecurityAccountDeleted, nil)

	m.stopHeartbeat()
	m.clearCurrentSession(ctx)
	if err := m.provider.SignOut(ctx, provider.ScopeLocal); err != nil {
		m.logger.Warn("sign-out after account deletion failed", zap.Error(err))
	}
	m.store.Dispatch(signedOut{})
	m.broadcaster.Broadcast(ctx, tabsync.Logout, nil)

	m.logger.Info("account deleted", zap.String("user_id", user.ID))
	return nil
}
