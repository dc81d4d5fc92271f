// internal/service/auth/broadcast.go
package auth

import (
	"context"

	"authgate-service/internal/routes"
	"authgate-service/internal/tabsync"

	"go.uber.org/zap"
)

// HandleBroadcast reacts to a message from another tab of the same browser.
// Nothing here broadcasts in turn.
func (m *Machine) HandleBroadcast(ctx context.Context, msg tabsync.Message) {
	m.logger.Debug("sync message received",
		zap.String("type", string(msg.Type)),
		zap.String("from", msg.Sender))

	switch msg.Type {
	case tabsync.Logout:
		st := m.store.Snapshot()
		if st.User == nil && st.MFAPending == nil {
			return
		}
		m.stopHeartbeat()
		m.store.Dispatch(signedOut{})
		m.navigator.Navigate(routes.Login)

	case tabsync.Login:
		if m.CurrentView() != routes.Login {
			return
		}
		if err := m.Initialize(ctx); err != nil {
			m.logger.Warn("failed to pick up login from another tab", zap.Error(err))
			return
		}
		st := m.store.Snapshot()
		switch {
		case st.MFAPending != nil:
			m.navigator.Navigate(routes.MFAVerify)
		case st.User != nil:
			m.navigator.Navigate(routes.Dashboard)
		}

	case tabsync.AuthChange:
		m.stopHeartbeat()
		m.store.Dispatch(reloaded{})
		m.navigator.Reload()
		if err := m.Initialize(ctx); err != nil {
			m.logger.Warn("failed to reload auth state", zap.Error(err))
		}

	case tabsync.ProfileUpdate, tabsync.SettingsUpdate:
		if m.store.Snapshot().User == nil {
			return
		}
		m.refreshUser(ctx)
		m.navigator.Notify(msg)
	}
}

// Attach subscribes the machine to a listener such as a tabsync.Broadcaster.
// Handling runs on the machine's own context so a closed tab stops reacting.
func (m *Machine) Attach(listen func(tabsync.Handler)) {
	listen(func(msg tabsync.Message) {
		if m.ctx.Err() != nil {
			return
		}
		m.HandleBroadcast(m.ctx, msg)
	})
}
