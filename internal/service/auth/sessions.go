// internal/service/auth/sessions.go
package auth

import (
	"context"

	domain "authgate-service/internal/domain/auth"
	"authgate-service/internal/pkg/device"
	xerrors "authgate-service/internal/pkg/errors"
	"authgate-service/internal/provider"
)

// SignOutAllOtherSessions revokes every provider session of the user except
// this browser's, then drops their rows.
func (m *Machine) SignOutAllOtherSessions(ctx context.Context) (int64, error) {
	user, st, err := m.requireUser()
	if err != nil {
		return 0, err
	}
	if st.CurrentSessionID == "" {
		return 0, xerrors.ErrNoCurrentSession
	}

	if err := m.provider.SignOut(ctx, provider.ScopeOthers); err != nil {
		return 0, m.fail(xerrors.Wrap(err, "failed to revoke other sessions"))
	}

	removed, err := m.records.DeleteOtherSessions(ctx, user.ID, st.CurrentSessionID)
	if err != nil {
		return 0, xerrors.Wrap(err, "failed to delete session rows")
	}
	m.records.LogSecurityEvent(user.ID, domain.SecuritySignOutOthers,
		map[string]interface{}{"sessions_removed": removed})
	return removed, nil
}

// SignOutSession removes one session row. The current one is a full logout.
func (m *Machine) SignOutSession(ctx context.Context, id string) error {
	user, st, err := m.requireUser()
	if err != nil {
		return err
	}
	if id == "" {
		return xerrors.ErrInvalidInput
	}
	if id == st.CurrentSessionID {
		return m.Logout(ctx)
	}

	if err := m.records.DeleteSession(ctx, user.ID, id); err != nil {
		return err
	}
	m.records.LogSecurityEvent(user.ID, domain.SecuritySessionRevoked,
		map[string]interface{}{"session_id": id})
	return nil
}

// ListSessions returns the user's session rows with this browser's marked.
func (m *Machine) ListSessions(ctx context.Context) ([]domain.Session, error) {
	user, st, err := m.requireUser()
	if err != nil {
		return nil, err
	}

	rows, err := m.records.ListSessions(ctx, user.ID)
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to list sessions")
	}

	session, err := m.provider.GetSession(ctx)
	active := err == nil && session != nil
	markCurrent(rows, st.CurrentSessionID, m.device, active)
	return rows, nil
}

// markCurrent flags the row for this browser. Without a known id it falls
// back to the most recent row with the same device and browser.
func markCurrent(rows []domain.Session, currentID string, info device.Info, active bool) {
	for i := range rows {
		rows[i].IsCurrent = false
	}
	if !active {
		return
	}

	if currentID != "" {
		for i := range rows {
			if rows[i].ID == currentID {
				rows[i].IsCurrent = true
				return
			}
		}
	}

	best := -1
	for i := range rows {
		if rows[i].DeviceName != info.DeviceName || rows[i].Browser != info.Browser {
			continue
		}
		if best < 0 || rows[i].LastActive.After(rows[best].LastActive) {
			best = i
		}
	}
	if best >= 0 {
		rows[best].IsCurrent = true
	}
}
