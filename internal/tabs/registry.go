// Package tabs owns the per-tab state machines. Tabs are grouped by browser;
// tabs of one browser share provider storage and a sync channel but never
// share auth state.
package tabs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	wstypes "authgate-service/internal/domain/websocket"
	"authgate-service/internal/pkg/device"
	xerrors "authgate-service/internal/pkg/errors"
	"authgate-service/internal/pkg/storage"
	"authgate-service/internal/provider"
	"authgate-service/internal/service/auth"
	"authgate-service/internal/tabsync"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Sender delivers messages to a tab's live connection.
type Sender interface {
	SendToTab(tabID string, msg *wstypes.WSMessage) bool
	IsTabConnected(tabID string) bool
}

// ClientFactory builds a provider client over a browser's storage.
type ClientFactory func(storage provider.Storage) provider.Client

type Config struct {
	Machine     auth.Config
	IdleTTL     time.Duration
	StorageTTL  time.Duration
	SyncChannel string
}

type Tab struct {
	ID        string
	BrowserID string
	Device    device.Info
	Machine   *auth.Machine
	CreatedAt time.Time

	broadcaster *tabsync.Broadcaster
	unsubscribe func()
	lastSeen    atomic.Int64
}

func (t *Tab) Touch(now time.Time) {
	t.lastSeen.Store(now.UnixNano())
}

func (t *Tab) LastSeen() time.Time {
	return time.Unix(0, t.lastSeen.Load())
}

func (t *Tab) close() {
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
	t.Machine.Close()
	t.broadcaster.Close()
}

type browser struct {
	storage storage.Store
	tabs    map[string]struct{}
	// lastUsed is when the browser last opened or closed a tab.
	lastUsed time.Time
}

type Registry struct {
	cfg       Config
	newClient ClientFactory
	records   auth.RecordWriter
	redis     *redis.Client
	sender    Sender
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	tabs     map[string]*Tab
	browsers map[string]*browser
}

// NewRegistry keeps browser storage in Redis when client is non-nil and in
// memory otherwise.
func NewRegistry(
	cfg Config,
	newClient ClientFactory,
	records auth.RecordWriter,
	client *redis.Client,
	sender Sender,
	logger *zap.Logger,
) *Registry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.StorageTTL <= 0 {
		cfg.StorageTTL = 30 * 24 * time.Hour
	}
	if cfg.SyncChannel == "" {
		cfg.SyncChannel = "auth-sync"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = noopSender{}
	}

	return &Registry{
		cfg:       cfg,
		newClient: newClient,
		records:   records,
		redis:     client,
		sender:    sender,
		logger:    logger,
		now:       time.Now,
		tabs:      make(map[string]*Tab),
		browsers:  make(map[string]*browser),
	}
}

// Open starts a tab for browserID, minting a browser id when it is empty,
// and runs the initial session check. An initialization failure is kept in
// the tab's state, not returned.
func (r *Registry) Open(ctx context.Context, browserID, userAgent string) (*Tab, error) {
	if browserID == "" {
		browserID = ulid.Make().String()
	}
	tabID := ulid.Make().String()
	logger := r.logger.With(zap.String("tab_id", tabID), zap.String("browser_id", browserID))

	store := r.browserStorage(browserID, tabID)
	client := r.newClient(store)

	transports := []tabsync.Transport{}
	if r.redis != nil {
		transports = append(transports, tabsync.NewRedisTransport(r.redis, r.cfg.SyncChannel, browserID, logger))
	}
	transports = append(transports, tabsync.NewStorageTransport(store, logger))
	bc := tabsync.NewBroadcaster(tabID, logger, transports...)

	info := device.Parse(userAgent)
	m := auth.NewMachine(r.cfg.Machine, client, store, r.records, bc, &navigator{tabID: tabID, sender: r.sender}, info, logger)

	t := &Tab{
		ID:          tabID,
		BrowserID:   browserID,
		Device:      info,
		Machine:     m,
		CreatedAt:   r.now(),
		broadcaster: bc,
	}
	t.Touch(r.now())
	t.unsubscribe = m.Subscribe(func(st auth.State) {
		r.sender.SendToTab(tabID, StateMessage(st))
	})
	m.Attach(bc.Listen)

	r.mu.Lock()
	r.tabs[tabID] = t
	r.mu.Unlock()

	if err := m.Initialize(ctx); err != nil {
		logger.Warn("tab initialization failed", zap.Error(err))
	}
	logger.Info("tab opened", zap.String("device", info.Label()))
	return t, nil
}

// browserStorage returns the browser's storage and reserves tabID in it so
// the browser cannot be evicted while the tab is being built.
func (r *Registry) browserStorage(browserID, tabID string) storage.Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.browsers[browserID]
	if !ok {
		var store storage.Store
		if r.redis != nil {
			store = storage.NewRedisStore(r.redis, browserID, r.cfg.StorageTTL, r.logger)
		} else {
			store = storage.NewMemoryStore()
		}
		b = &browser{storage: store, tabs: make(map[string]struct{})}
		r.browsers[browserID] = b
	}
	b.tabs[tabID] = struct{}{}
	b.lastUsed = r.now()
	return b.storage
}

// Get returns the tab if it belongs to browserID.
func (r *Registry) Get(browserID, tabID string) (*Tab, error) {
	r.mu.RLock()
	t, ok := r.tabs[tabID]
	r.mu.RUnlock()
	if !ok || t.BrowserID != browserID {
		return nil, xerrors.ErrNotFound
	}
	t.Touch(r.now())
	return t, nil
}

// Lookup finds a tab by id alone, for connections already bound to it.
func (r *Registry) Lookup(tabID string) (*Tab, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tabs[tabID]
	return t, ok
}

// Close tears the tab down. In memory mode the browser's storage outlives
// its tabs until Sweep evicts it; Redis keeps its own copy, so the browser
// entry goes with its last tab.
func (r *Registry) Close(tabID string) {
	r.mu.Lock()
	t, ok := r.tabs[tabID]
	if ok {
		delete(r.tabs, tabID)
		if b, exists := r.browsers[t.BrowserID]; exists {
			delete(b.tabs, tabID)
			b.lastUsed = r.now()
			if len(b.tabs) == 0 && r.redis != nil {
				delete(r.browsers, t.BrowserID)
			}
		}
	}
	r.mu.Unlock()

	if ok {
		t.close()
		if d, isDisconnecter := r.sender.(disconnecter); isDisconnecter {
			d.DisconnectTab(tabID, "tab closed")
		}
		r.logger.Info("tab closed", zap.String("tab_id", tabID), zap.String("browser_id", t.BrowserID))
	}
}

// Sweep closes disconnected tabs idle for longer than the TTL and returns
// how many it closed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.cfg.IdleTTL)

	r.mu.RLock()
	var idle []string
	for id, t := range r.tabs {
		if t.LastSeen().Before(cutoff) && !r.sender.IsTabConnected(id) {
			idle = append(idle, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range idle {
		r.Close(id)
	}
	r.evictBrowsers()
	return len(idle)
}

// evictBrowsers drops browsers without tabs whose storage has outlived the
// storage TTL, the in-memory counterpart of the Redis key expiry.
func (r *Registry) evictBrowsers() {
	cutoff := r.now().Add(-r.cfg.StorageTTL)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, b := range r.browsers {
		if len(b.tabs) == 0 && b.lastUsed.Before(cutoff) {
			delete(r.browsers, id)
		}
	}
}

// Run sweeps until ctx is done, then closes every tab.
func (r *Registry) Run(ctx context.Context) {
	interval := r.cfg.IdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Shutdown()
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info("idle tabs closed", zap.Int("count", n))
			}
		}
	}
}

func (r *Registry) Shutdown() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.tabs))
	for id := range r.tabs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Close(id)
	}
}

type Stats struct {
	Tabs     int `json:"tabs"`
	Browsers int `json:"browsers"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Tabs: len(r.tabs), Browsers: len(r.browsers)}
}

// SetClock replaces the registry clock.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// disconnecter is implemented by senders that can drop a live connection.
type disconnecter interface {
	DisconnectTab(tabID, reason string)
}

type noopSender struct{}

func (noopSender) SendToTab(string, *wstypes.WSMessage) bool { return false }
func (noopSender) IsTabConnected(string) bool                { return false }
