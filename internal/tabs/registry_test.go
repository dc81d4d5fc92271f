package tabs

import (
	"context"
	"sync"
	"testing"
	"time"

	wstypes "authgate-service/internal/domain/websocket"
	xerrors "authgate-service/internal/pkg/errors"
	"authgate-service/internal/provider"
	"authgate-service/internal/provider/providertest"
	"authgate-service/internal/routes"
	"authgate-service/internal/service/auth"
	"authgate-service/internal/service/records"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	testPass = "correct-horse"
)

type recordingSender struct {
	mu        sync.Mutex
	sent      map[string][]*wstypes.WSMessage
	connected map[string]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{
		sent:      make(map[string][]*wstypes.WSMessage),
		connected: make(map[string]bool),
	}
}

func (s *recordingSender) SendToTab(tabID string, msg *wstypes.WSMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[tabID] = append(s.sent[tabID], msg)
	return true
}

func (s *recordingSender) IsTabConnected(tabID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected[tabID]
}

func (s *recordingSender) setConnected(tabID string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected[tabID] = on
}

func (s *recordingSender) navigations(tabID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, msg := range s.sent[tabID] {
		if msg.Type == wstypes.EventTypeNavigate {
			out = append(out, msg.Data.(wstypes.NavigateData).To)
		}
	}
	return out
}

func (s *recordingSender) lastState(tabID string) (wstypes.StateData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.sent[tabID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == wstypes.EventTypeAuthState {
			return msgs[i].Data.(wstypes.StateData), true
		}
	}
	return wstypes.StateData{}, false
}

func newTestRegistry(t *testing.T, backend *providertest.Backend, client *redis.Client, sender Sender) *Registry {
	t.Helper()
	logger := zaptest.NewLogger(t)
	writer := records.NewMemoryWriter(logger)
	t.Cleanup(writer.Close)

	factory := func(s provider.Storage) provider.Client { return backend.NewClient(s) }
	r := NewRegistry(Config{
		Machine: auth.Config{SiteURL: "https://app.test"},
		IdleTTL: time.Minute,
	}, factory, writer, client, sender, logger)
	t.Cleanup(r.Shutdown)
	return r
}

func TestOpenMintsBrowserAndStartsAnonymous(t *testing.T) {
	sender := newRecordingSender()
	r := newTestRegistry(t, providertest.NewBackend(), nil, sender)

	tab, err := r.Open(context.Background(), "", chromeUA)
	require.NoError(t, err)

	assert.NotEmpty(t, tab.BrowserID)
	assert.Equal(t, "Chrome on Desktop", tab.Device.Label())
	st := tab.Machine.Snapshot()
	assert.False(t, st.IsLoading)
	assert.Nil(t, st.User)

	data, ok := sender.lastState(tab.ID)
	require.True(t, ok)
	assert.False(t, data.IsAuthenticated)
	assert.Equal(t, Stats{Tabs: 1, Browsers: 1}, r.Stats())
}

func TestGetChecksBrowser(t *testing.T) {
	r := newTestRegistry(t, providertest.NewBackend(), nil, nil)
	tab, err := r.Open(context.Background(), "browser-a", chromeUA)
	require.NoError(t, err)

	got, err := r.Get("browser-a", tab.ID)
	require.NoError(t, err)
	assert.Same(t, tab, got)

	_, err = r.Get("browser-b", tab.ID)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	r.Close(tab.ID)
	_, err = r.Get("browser-a", tab.ID)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestLoginReachesOtherTabOnLoginScreen(t *testing.T) {
	backend := providertest.NewBackend()
	backend.AddUser("ada@example.com", testPass, true)
	sender := newRecordingSender()
	r := newTestRegistry(t, backend, nil, sender)
	ctx := context.Background()

	a, err := r.Open(ctx, "browser-a", chromeUA)
	require.NoError(t, err)
	b, err := r.Open(ctx, "browser-a", chromeUA)
	require.NoError(t, err)
	other, err := r.Open(ctx, "browser-b", chromeUA)
	require.NoError(t, err)

	b.Machine.SetView(routes.Login)
	other.Machine.SetView(routes.Login)

	_, err = a.Machine.Login(ctx, "ada@example.com", testPass)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(sender.navigations(b.ID)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{routes.Dashboard}, sender.navigations(b.ID))
	assert.NotNil(t, b.Machine.Snapshot().User)

	assert.Nil(t, other.Machine.Snapshot().User)
	assert.Empty(t, sender.navigations(other.ID))
	assert.Empty(t, sender.navigations(a.ID))
}

func TestLogoutReachesOtherTab(t *testing.T) {
	backend := providertest.NewBackend()
	backend.AddUser("ada@example.com", testPass, true)
	sender := newRecordingSender()
	r := newTestRegistry(t, backend, nil, sender)
	ctx := context.Background()

	a, err := r.Open(ctx, "browser-a", chromeUA)
	require.NoError(t, err)
	_, err = a.Machine.Login(ctx, "ada@example.com", testPass)
	require.NoError(t, err)

	b, err := r.Open(ctx, "browser-a", chromeUA)
	require.NoError(t, err)
	require.NotNil(t, b.Machine.Snapshot().User)

	require.NoError(t, a.Machine.Logout(ctx))

	assert.Eventually(t, func() bool {
		return b.Machine.Snapshot().User == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{routes.Login}, sender.navigations(b.ID))
}

func TestRedisBackedTabsShareSession(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backend := providertest.NewBackend()
	backend.AddUser("ada@example.com", testPass, true)
	sender := newRecordingSender()
	r := newTestRegistry(t, backend, client, sender)
	ctx := context.Background()

	a, err := r.Open(ctx, "browser-a", chromeUA)
	require.NoError(t, err)
	_, err = a.Machine.Login(ctx, "ada@example.com", testPass)
	require.NoError(t, err)

	b, err := r.Open(ctx, "browser-a", chromeUA)
	require.NoError(t, err)
	st := b.Machine.Snapshot()
	require.NotNil(t, st.User)
	assert.Equal(t, "ada@example.com", st.User.Email)
	assert.Equal(t, a.Machine.Snapshot().CurrentSessionID, st.CurrentSessionID)

	c, err := r.Open(ctx, "browser-b", chromeUA)
	require.NoError(t, err)
	assert.Nil(t, c.Machine.Snapshot().User)
}

func TestSweepClosesIdleDisconnectedTabs(t *testing.T) {
	sender := newRecordingSender()
	r := newTestRegistry(t, providertest.NewBackend(), nil, sender)
	ctx := context.Background()

	now := time.Now()
	r.SetClock(func() time.Time { return now })

	idle, err := r.Open(ctx, "browser-a", chromeUA)
	require.NoError(t, err)
	live, err := r.Open(ctx, "browser-a", chromeUA)
	require.NoError(t, err)
	sender.setConnected(live.ID, true)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, r.Sweep())

	_, ok := r.Lookup(idle.ID)
	assert.False(t, ok)
	_, ok = r.Lookup(live.ID)
	assert.True(t, ok)
}

func TestSweepEvictsBrowsersPastStorageTTL(t *testing.T) {
	sender := newRecordingSender()
	r := newTestRegistry(t, providertest.NewBackend(), nil, sender)
	ctx := context.Background()

	now := time.Now()
	r.SetClock(func() time.Time { return now })

	for i := 0; i < 100; i++ {
		tab, err := r.Open(ctx, "", chromeUA)
		require.NoError(t, err)
		r.Close(tab.ID)
	}
	kept, err := r.Open(ctx, "browser-kept", chromeUA)
	require.NoError(t, err)
	sender.setConnected(kept.ID, true)
	assert.Equal(t, Stats{Tabs: 1, Browsers: 101}, r.Stats())

	// Inside the storage TTL a returning browser still finds its storage.
	now = now.Add(24 * time.Hour)
	r.Sweep()
	assert.Equal(t, 101, r.Stats().Browsers)

	now = now.Add(31 * 24 * time.Hour)
	r.Sweep()
	assert.Equal(t, Stats{Tabs: 1, Browsers: 1}, r.Stats())
	_, ok := r.Lookup(kept.ID)
	assert.True(t, ok)
}

func TestRedisBrowserLeavesWithLastTab(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backend := providertest.NewBackend()
	backend.AddUser("ada@example.com", testPass, true)
	r := newTestRegistry(t, backend, client, newRecordingSender())
	ctx := context.Background()

	a, err := r.Open(ctx, "browser-a", chromeUA)
	require.NoError(t, err)
	_, err = a.Machine.Login(ctx, "ada@example.com", testPass)
	require.NoError(t, err)

	r.Close(a.ID)
	assert.Equal(t, Stats{}, r.Stats())

	b, err := r.Open(ctx, "browser-a", chromeUA)
	require.NoError(t, err)
	require.NotNil(t, b.Machine.Snapshot().User)
	assert.Equal(t, "ada@example.com", b.Machine.Snapshot().User.Email)
}

func TestStateDataCarriesPendingFactor(t *testing.T) {
	backend := providertest.NewBackend()
	backend.AddUser("ada@example.com", testPass, true)
	factorID := backend.AddVerifiedTOTP("ada@example.com", "123456")
	sender := newRecordingSender()
	r := newTestRegistry(t, backend, nil, sender)
	ctx := context.Background()

	tab, err := r.Open(ctx, "browser-a", chromeUA)
	require.NoError(t, err)
	res, err := tab.Machine.Login(ctx, "ada@example.com", testPass)
	require.NoError(t, err)
	require.True(t, res.NeedsMFA)

	data, ok := sender.lastState(tab.ID)
	require.True(t, ok)
	assert.Equal(t, factorID, data.MFAFactorID)
	assert.False(t, data.IsAuthenticated)
	assert.Nil(t, data.User)
}
