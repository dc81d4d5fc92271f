package guard

import (
	"context"
	"errors"
	"testing"

	"authgate-service/internal/pkg/storage"
	"authgate-service/internal/provider"
	"authgate-service/internal/provider/providertest"
	"authgate-service/internal/routes"
	"authgate-service/internal/service/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	user := &provider.User{ID: "u1"}
	aal1 := &provider.AAL{Current: provider.AAL1, Next: provider.AAL1}
	stepUp := &provider.AAL{Current: provider.AAL1, Next: provider.AAL2}
	aal2 := &provider.AAL{Current: provider.AAL2, Next: provider.AAL2}

	tests := []struct {
		name   string
		state  auth.State
		aal    *provider.AAL
		aalErr error
		want   Decision
	}{
		{
			name:  "loading shows placeholder",
			state: auth.State{IsLoading: true, User: user},
			aal:   aal2,
			want:  Decision{Outcome: Placeholder, Reason: "loading"},
		},
		{
			name:  "anonymous goes to login with from",
			state: auth.State{Status: auth.StatusAnonymous},
			want:  Decision{Outcome: Redirect, To: "/login?from=%2Fsettings", Reason: "unauthenticated"},
		},
		{
			name:  "pending second factor goes to mfa",
			state: auth.State{Status: auth.StatusMFAPending, MFAPending: &auth.MFAPending{FactorID: "f1"}},
			want:  Decision{Outcome: Redirect, To: "/mfa-verify?from=%2Fsettings", Reason: "mfa_required"},
		},
		{
			name:  "primary-only session with factor goes to mfa",
			state: auth.State{Status: auth.StatusAuthenticated, User: user},
			aal:   stepUp,
			want:  Decision{Outcome: Redirect, To: "/mfa-verify?from=%2Fsettings", Reason: "mfa_required"},
		},
		{
			name:   "unknown assurance admits nothing",
			state:  auth.State{Status: auth.StatusAuthenticated, User: user},
			aalErr: errors.New("timeout"),
			want:   Decision{Outcome: Placeholder, Reason: "assurance_unknown"},
		},
		{
			name:  "aal1 without factor is admitted",
			state: auth.State{Status: auth.StatusAuthenticated, User: user},
			aal:   aal1,
			want:  Decision{Outcome: Allow},
		},
		{
			name:  "aal2 is admitted",
			state: auth.State{Status: auth.StatusAuthenticated, User: user},
			aal:   aal2,
			want:  Decision{Outcome: Allow},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.state, tt.aal, tt.aalErr, routes.Settings))
		})
	}
}

func TestEvaluateEntry(t *testing.T) {
	assert.Equal(t, Allow, EvaluateEntry(auth.State{}, "").Outcome)
	assert.Equal(t, Placeholder, EvaluateEntry(auth.State{IsLoading: true}, "").Outcome)

	d := EvaluateEntry(auth.State{User: &provider.User{ID: "u1"}}, "/profile")
	assert.Equal(t, Redirect, d.Outcome)
	assert.Equal(t, "/profile", d.To)
}

func newMachine(t *testing.T, backend *providertest.Backend, store *storage.MemoryStore) *auth.Machine {
	t.Helper()
	m := auth.NewMachine(auth.Config{}, backend.NewClient(store), store, noRecords{}, nil, nil, deviceInfo, nil)
	t.Cleanup(m.Close)
	return m
}

// A stale reload of a primary-only session must not reach the dashboard or
// fall back to the login screen.
func TestReloadWithPrimaryOnlySessionGoesToMFA(t *testing.T) {
	ctx := context.Background()
	backend := providertest.NewBackend()
	backend.AddUser("a@x.com", "correct-horse", true)
	backend.AddVerifiedTOTP("a@x.com", "654321")
	store := storage.NewMemoryStore()

	first := newMachine(t, backend, store)
	res, err := first.Login(ctx, "a@x.com", "correct-horse")
	require.NoError(t, err)
	require.True(t, res.NeedsMFA)

	reloaded := newMachine(t, backend, store)
	assert.Equal(t, Placeholder, Check(ctx, reloaded, routes.Dashboard).Outcome)

	require.NoError(t, reloaded.Initialize(ctx))
	d := Check(ctx, reloaded, routes.Dashboard)
	assert.Equal(t, Redirect, d.Outcome)
	assert.Equal(t, routes.WithFrom(routes.MFAVerify, routes.Dashboard), d.To)

	require.NoError(t, reloaded.CompleteMFALogin(ctx, "654321"))
	assert.True(t, Check(ctx, reloaded, routes.Dashboard).Allowed())
}

func TestCheckFailsClosedWhenAssuranceUnavailable(t *testing.T) {
	ctx := context.Background()
	backend := providertest.NewBackend()
	backend.AddUser("a@x.com", "correct-horse", true)
	store := storage.NewMemoryStore()

	m := newMachine(t, backend, store)
	_, err := m.Login(ctx, "a@x.com", "correct-horse")
	require.NoError(t, err)
	require.True(t, Check(ctx, m, routes.Profile).Allowed())

	backend.SetAALError(errors.New("provider down"))
	assert.Equal(t, Placeholder, Check(ctx, m, routes.Profile).Outcome)
}

func TestForView(t *testing.T) {
	ctx := context.Background()
	backend := providertest.NewBackend()
	backend.AddUser("a@x.com", "correct-horse", true)
	store := storage.NewMemoryStore()
	m := newMachine(t, backend, store)
	require.NoError(t, m.Initialize(ctx))

	assert.True(t, ForView(ctx, m, routes.Login, "").Allowed())
	assert.Equal(t, routes.Login, ForView(ctx, m, routes.MFAVerify, "").To)
	assert.Equal(t, "/login?from=%2Fdashboard", ForView(ctx, m, routes.Dashboard, "").To)

	_, err := m.Login(ctx, "a@x.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "/settings", ForView(ctx, m, routes.Login, "/settings").To)
	assert.True(t, ForView(ctx, m, routes.Dashboard, "").Allowed())
	assert.True(t, ForView(ctx, m, routes.AuthCallback, "").Allowed())
}
