package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"authgate-service/internal/domain/auth"
	"authgate-service/internal/pkg/device"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSessions struct{ *MemorySessionRepository }

func (failingSessions) Create(context.Context, *auth.Session) error {
	return errors.New("db down")
}

type failingActivity struct{}

func (failingActivity) Append(context.Context, *auth.ActivityLogEntry) error {
	return errors.New("db down")
}

func (failingActivity) ListRecent(context.Context, string, []auth.EventType, int) ([]auth.ActivityLogEntry, error) {
	return nil, errors.New("db down")
}

func TestCreateSessionAndList(t *testing.T) {
	w := NewMemoryWriter(nil)
	defer w.Close()
	ctx := context.Background()

	id := w.CreateSession(ctx, "user-1", device.Info{DeviceName: "Desktop", Browser: "Chrome"})
	require.NotEmpty(t, id)
	other := w.CreateSession(ctx, "user-1", device.Info{DeviceName: "Mobile", Browser: "Safari"})
	w.CreateSession(ctx, "user-2", device.Info{DeviceName: "Desktop", Browser: "Edge"})

	sessions, err := w.ListSessions(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	n, err := w.DeleteOtherSessions(ctx, "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sessions, err = w.ListSessions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)

	assert.Error(t, w.DeleteSession(ctx, "user-1", other))
	assert.Error(t, w.DeleteSession(ctx, "user-2", id), "rows of another user are not deletable")
	require.NoError(t, w.DeleteSession(ctx, "user-1", id))
}

func TestCreateSessionFailureReturnsEmptyID(t *testing.T) {
	w := NewWriter(failingSessions{NewMemorySessionRepository()}, NewMemoryActivityRepository(), NewMemorySecurityEventRepository(), Config{}, nil)
	defer w.Close()

	assert.Empty(t, w.CreateSession(context.Background(), "user-1", device.Info{}))
}

func TestTouchSessionUpdatesLastActive(t *testing.T) {
	sessions := NewMemorySessionRepository()
	w := NewWriter(sessions, NewMemoryActivityRepository(), NewMemorySecurityEventRepository(), Config{}, nil)
	defer w.Close()
	ctx := context.Background()

	later := time.Now().Add(time.Hour)
	w.now = func() time.Time { return later }

	id := w.CreateSession(ctx, "user-1", device.Info{})
	w.TouchSession(ctx, id)
	w.TouchSession(ctx, "missing")

	list, err := sessions.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].LastActive.Equal(later))
}

func TestLogsAreWrittenInBackground(t *testing.T) {
	activity := NewMemoryActivityRepository()
	security := NewMemorySecurityEventRepository()
	w := NewWriter(NewMemorySessionRepository(), activity, security, Config{}, nil)

	w.LogActivity("user-1", auth.EventLogin, "UA", map[string]interface{}{"mfa": true})
	w.LogActivity("user-1", auth.EventLogout, "UA", nil)
	w.LogActivity("", auth.EventLogin, "UA", nil)
	w.LogSecurityEvent("user-1", auth.SecurityMFAEnabled, nil)
	w.Close()

	ctx := context.Background()
	entries, err := activity.ListRecent(ctx, "user-1", nil, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, auth.EventLogout, entries[0].EventType)

	logins, err := w.RecentActivity(ctx, "user-1", []auth.EventType{auth.EventLogin}, 10)
	require.NoError(t, err)
	require.Len(t, logins, 1)
	assert.Equal(t, true, logins[0].Metadata["mfa"])

	events, err := w.RecentSecurityEvents(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// writes after close are ignored
	w.LogActivity("user-1", auth.EventLogin, "UA", nil)
	entries, _ = activity.ListRecent(ctx, "user-1", nil, 10)
	assert.Len(t, entries, 2)
}

func TestLogFailuresAreSwallowed(t *testing.T) {
	w := NewWriter(NewMemorySessionRepository(), failingActivity{}, NewMemorySecurityEventRepository(), Config{}, nil)

	assert.NotPanics(t, func() {
		w.LogActivity("user-1", auth.EventLogin, "UA", nil)
		w.Close()
	})
	assert.Zero(t, w.Dropped())
}
