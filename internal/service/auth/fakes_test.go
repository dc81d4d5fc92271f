package auth

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	domain "authgate-service/internal/domain/auth"
	"authgate-service/internal/pkg/device"
	"authgate-service/internal/pkg/storage"
	"authgate-service/internal/provider"
	"authgate-service/internal/provider/providertest"
	"authgate-service/internal/tabsync"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap/zaptest"
)

const (
	chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	testPass = "correct-horse"
)

// fakeRecords is a synchronous RecordWriter.
type fakeRecords struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	activity []domain.ActivityLogEntry
	security []domain.SecurityEvent
	touches  int

	// noRows makes CreateSession fail the way the records writer does.
	noRows bool
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{sessions: make(map[string]domain.Session)}
}

func (r *fakeRecords) CreateSession(_ context.Context, userID string, info device.Info) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.noRows {
		return ""
	}
	now := time.Now()
	s := domain.Session{
		ID:         ulid.Make().String(),
		UserID:     userID,
		DeviceName: info.DeviceName,
		Browser:    info.Browser,
		LastActive: now,
		CreatedAt:  now,
	}
	r.sessions[s.ID] = s
	return s.ID
}

func (r *fakeRecords) TouchSession(_ context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.LastActive = time.Now()
		r.sessions[id] = s
		r.touches++
	}
}

func (r *fakeRecords) DeleteSession(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.UserID == userID {
		delete(r.sessions, id)
	}
	return nil
}

func (r *fakeRecords) DeleteOtherSessions(_ context.Context, userID, keepID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.UserID == userID && id != keepID {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeRecords) ListSessions(_ context.Context, userID string) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Session{}
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActive.After(out[j].LastActive) })
	return out, nil
}

func (r *fakeRecords) LogActivity(userID string, eventType domain.EventType, userAgent string, metadata map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activity = append(r.activity, domain.ActivityLogEntry{
		UserID:    userID,
		EventType: eventType,
		UserAgent: userAgent,
		Metadata:  metadata,
	})
}

func (r *fakeRecords) LogSecurityEvent(userID, eventType string, details map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.security = append(r.security, domain.SecurityEvent{UserID: userID, EventType: eventType, Details: details})
}

func (r *fakeRecords) activityTypes() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.activity))
	for _, a := range r.activity {
		out = append(out, a.EventType)
	}
	return out
}

func (r *fakeRecords) lastActivity() domain.ActivityLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activity[len(r.activity)-1]
}

func (r *fakeRecords) securityTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.security))
	for _, s := range r.security {
		out = append(out, s.EventType)
	}
	return out
}

func (r *fakeRecords) failSessionRows() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noRows = true
}

func (r *fakeRecords) sessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *fakeRecords) touchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.touches
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []tabsync.MessageType
}

func (b *fakeBroadcaster) Broadcast(_ context.Context, typ tabsync.MessageType, _ map[string]interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, typ)
}

func (b *fakeBroadcaster) types() []tabsync.MessageType {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tabsync.MessageType(nil), b.sent...)
}

type fakeNavigator struct {
	mu       sync.Mutex
	visits   []string
	reloads  int
	notified []tabsync.MessageType
}

func (n *fakeNavigator) Navigate(to string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visits = append(n.visits, to)
}

func (n *fakeNavigator) Reload() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reloads++
}

func (n *fakeNavigator) Notify(msg tabsync.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, msg.Type)
}

func (n *fakeNavigator) navigations() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.visits...)
}

func (n *fakeNavigator) reloadCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reloads
}

func (n *fakeNavigator) notifications() []tabsync.MessageType {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]tabsync.MessageType(nil), n.notified...)
}

// tab bundles one machine with its collaborators.
type tab struct {
	*Machine
	client    *providertest.Client
	broadcast *fakeBroadcaster
	nav       *fakeNavigator
}

// browser is a set of tabs sharing storage and bookkeeping.
type browser struct {
	backend *providertest.Backend
	storage *storage.MemoryStore
	records *fakeRecords
	cfg     Config
}

func newBrowser(backend *providertest.Backend, records *fakeRecords) *browser {
	return &browser{
		backend: backend,
		storage: storage.NewMemoryStore(),
		records: records,
		cfg:     Config{SiteURL: "https://app.test"},
	}
}

func (b *browser) open(t *testing.T) *tab {
	t.Helper()
	client := b.backend.NewClient(b.storage)
	bc := &fakeBroadcaster{}
	nav := &fakeNavigator{}
	m := NewMachine(b.cfg, client, b.storage, b.records, bc, nav, device.Parse(chromeUA), zaptest.NewLogger(t))
	t.Cleanup(m.Close)
	return &tab{Machine: m, client: client, broadcast: bc, nav: nav}
}

// openWith builds a tab over an arbitrary client and broadcaster.
func (b *browser) openWith(t *testing.T, client provider.Client, bc Broadcaster) (*Machine, *fakeNavigator) {
	t.Helper()
	nav := &fakeNavigator{}
	m := NewMachine(b.cfg, client, b.storage, b.records, bc, nav, device.Parse(chromeUA), zaptest.NewLogger(t))
	t.Cleanup(m.Close)
	return m, nav
}

// racingClient signs the tab out right after the factor lookup, the way a
// SIGNED_OUT from elsewhere can land while a login is still in flight.
type racingClient struct {
	provider.Client
	after func()
}

func (c racingClient) MFA() provider.MFA {
	return racingMFA{MFA: c.Client.MFA(), after: c.after}
}

type racingMFA struct {
	provider.MFA
	after func()
}

func (m racingMFA) ListFactors(ctx context.Context) (*provider.FactorList, error) {
	list, err := m.MFA.ListFactors(ctx)
	m.after()
	return list, err
}

func deviceInfo() device.Info {
	return device.Parse(chromeUA)
}
