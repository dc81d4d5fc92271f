// internal/service/auth/machine.go
package auth

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	domain "authgate-service/internal/domain/auth"
	"authgate-service/internal/pkg/device"
	xerrors "authgate-service/internal/pkg/errors"
	"authgate-service/internal/pkg/ratelimit"
	"authgate-service/internal/provider"
	"authgate-service/internal/routes"
	"authgate-service/internal/tabsync"

	"go.uber.org/zap"
)

// CurrentSessionKey holds the session row id for the browser in shared
// storage, next to the provider's own token.
const CurrentSessionKey = "authgate-current-session"

// RecordWriter is the bookkeeping the machine performs around a login.
type RecordWriter interface {
	CreateSession(ctx context.Context, userID string, info device.Info) string
	TouchSession(ctx context.Context, id string)
	DeleteSession(ctx context.Context, userID, id string) error
	DeleteOtherSessions(ctx context.Context, userID, keepID string) (int64, error)
	ListSessions(ctx context.Context, userID string) ([]domain.Session, error)
	LogActivity(userID string, eventType domain.EventType, userAgent string, metadata map[string]interface{})
	LogSecurityEvent(userID, eventType string, details map[string]interface{})
}

// Broadcaster tells the browser's other tabs what happened here.
type Broadcaster interface {
	Broadcast(ctx context.Context, typ tabsync.MessageType, payload map[string]interface{})
}

// Navigator drives the tab's view.
type Navigator interface {
	Navigate(to string)
	Reload()
	Notify(msg tabsync.Message)
}

type Config struct {
	SiteURL           string
	HeartbeatInterval time.Duration
	Limiter           ratelimit.Config
}

// Machine is one tab's authentication state machine.
type Machine struct {
	cfg         Config
	provider    provider.Client
	storage     provider.Storage
	records     RecordWriter
	broadcaster Broadcaster
	navigator   Navigator
	device      device.Info
	limiter     *ratelimit.Limiter
	logger      *zap.Logger

	store       *Store
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc

	hbMu     sync.Mutex
	hbCancel context.CancelFunc

	viewMu sync.RWMutex
	view   string

	closeOnce sync.Once
}

func NewMachine(
	cfg Config,
	client provider.Client,
	storage provider.Storage,
	records RecordWriter,
	broadcaster Broadcaster,
	navigator Navigator,
	info device.Info,
	logger *zap.Logger,
) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if broadcaster == nil {
		broadcaster = noopBroadcaster{}
	}
	if navigator == nil {
		navigator = noopNavigator{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		cfg:         cfg,
		provider:    client,
		storage:     storage,
		records:     records,
		broadcaster: broadcaster,
		navigator:   navigator,
		device:      info,
		limiter:     ratelimit.New(cfg.Limiter),
		logger:      logger,
		store:       NewStore(),
		ctx:         ctx,
		cancel:      cancel,
	}

	m.unsubscribe = client.OnAuthStateChange(func(ev provider.AuthEvent) {
		st, applied := m.store.Dispatch(providerEvent{event: ev})
		if applied && ev.Type == provider.EventSignedOut {
			m.stopHeartbeat()
		}
		m.logger.Debug("provider event",
			zap.String("event", string(ev.Type)),
			zap.Uint64("seq", ev.Seq),
			zap.Bool("applied", applied),
			zap.String("status", string(st.Status)))
	})

	return m
}

// Close stops the heartbeat and detaches from the provider. It does not sign
// anything out.
func (m *Machine) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		m.stopHeartbeat()
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
	})
}

// ========== Accessors ==========

func (m *Machine) Snapshot() State {
	return m.store.Snapshot()
}

func (m *Machine) Subscribe(fn func(State)) func() {
	return m.store.Subscribe(fn)
}

func (m *Machine) ClearError() {
	m.store.Dispatch(errorCleared{})
}

// SetView records the path the tab is showing.
func (m *Machine) SetView(path string) {
	m.viewMu.Lock()
	m.view = routes.PathOf(path)
	m.viewMu.Unlock()
}

func (m *Machine) CurrentView() string {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	return m.view
}

// RemainingAttempts reports how many failed logins email has left before the
// local lockout.
func (m *Machine) RemainingAttempts(email string) int {
	return m.limiter.RemainingAttempts(email)
}

// SetClock replaces the limiter clock.
func (m *Machine) SetClock(now func() time.Time) {
	m.limiter.SetClock(now)
}

// ========== Helpers ==========

// fail records err on the state. Errors the user can correct leave the
// status as it was; anything else moves the tab to ERROR.
func (m *Machine) fail(err error) error {
	if xerrors.IsCredentialError(err) || xerrors.IsMFAError(err) || xerrors.Is(err, xerrors.ErrRateLimited) {
		m.store.Dispatch(errorRaised{err: err})
	} else {
		m.store.Dispatch(failed{err: err})
		m.logger.Error("auth operation failed", zap.Error(err))
	}
	return err
}

func (m *Machine) requireUser() (*provider.User, State, error) {
	st := m.store.Snapshot()
	if st.User == nil {
		return nil, st, xerrors.ErrNotAuthenticated
	}
	return st.User, st, nil
}

func (m *Machine) redirect(path string) string {
	return m.cfg.SiteURL + path
}

type currentSession struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

func (m *Machine) saveCurrentSession(ctx context.Context, userID, sessionID string) {
	if m.storage == nil {
		return
	}
	data, _ := json.Marshal(currentSession{UserID: userID, SessionID: sessionID})
	if err := m.storage.Set(ctx, CurrentSessionKey, string(data)); err != nil {
		m.logger.Warn("failed to store current session id", zap.Error(err))
	}
}

// loadCurrentSession returns the stored row id if it belongs to userID.
func (m *Machine) loadCurrentSession(ctx context.Context, userID string) string {
	if m.storage == nil {
		return ""
	}
	raw, ok, err := m.storage.Get(ctx, CurrentSessionKey)
	if err != nil || !ok {
		return ""
	}
	var cs currentSession
	if err := json.Unmarshal([]byte(raw), &cs); err != nil || cs.UserID != userID {
		return ""
	}
	return cs.SessionID
}

func (m *Machine) clearCurrentSession(ctx context.Context) {
	if m.storage == nil {
		return
	}
	if err := m.storage.Remove(ctx, CurrentSessionKey); err != nil {
		m.logger.Warn("failed to clear current session id", zap.Error(err))
	}
}

// ========== Heartbeat ==========

func (m *Machine) startHeartbeat() {
	if m.cfg.HeartbeatInterval <= 0 {
		return
	}
	m.hbMu.Lock()
	defer m.hbMu.Unlock()
	if m.hbCancel != nil || m.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.hbCancel = cancel
	go m.heartbeat(ctx)
}

func (m *Machine) stopHeartbeat() {
	m.hbMu.Lock()
	defer m.hbMu.Unlock()
	if m.hbCancel != nil {
		m.hbCancel()
		m.hbCancel = nil
	}
}

func (m *Machine) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := m.store.Snapshot()
			if st.User == nil || st.CurrentSessionID == "" {
				continue
			}
			m.records.TouchSession(ctx, st.CurrentSessionID)
		}
	}
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(context.Context, tabsync.MessageType, map[string]interface{}) {}

type noopNavigator struct{}

func (noopNavigator) Navigate(string)        {}
func (noopNavigator) Reload()                {}
func (noopNavigator) Notify(tabsync.Message) {}
