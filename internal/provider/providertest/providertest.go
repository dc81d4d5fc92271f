// Package providertest is an in-memory auth provider for tests. A Backend
// holds accounts and provider sessions; each tab gets its own Client over a
// shared Storage, the way browser tabs share localStorage.
package providertest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"authgate-service/internal/pkg/jwt"
	"authgate-service/internal/provider"

	"github.com/oklog/ulid/v2"
)

const Secret = "providertest-secret"

type account struct {
	user     provider.User
	password string
	totpCode string
}

// Backend is the provider's server side.
type Backend struct {
	gen *jwt.Generator

	mu         sync.Mutex
	accounts   map[string]*account // by email
	sessions   map[string]string   // provider session id -> user id
	challenges map[string]string   // challenge id -> factor id
	calls      map[string]int
	hooks      map[string]func()

	signOutErr     error
	aalErr         error
	factorsErr     error
	skipAALUpgrade bool
	autoConfirm    bool
}

func NewBackend() *Backend {
	return &Backend{
		gen:        jwt.NewGenerator(Secret, "providertest", time.Hour),
		accounts:   make(map[string]*account),
		sessions:   make(map[string]string),
		challenges: make(map[string]string),
		calls:      make(map[string]int),
		hooks:      make(map[string]func()),
	}
}

// AddUser registers an account. Unconfirmed accounts can still sign in; the
// caller is expected to notice and sign out.
func (b *Backend) AddUser(email, password string, confirmed bool) provider.User {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	u := provider.User{
		ID:         ulid.Make().String(),
		Email:      email,
		Identities: []provider.Identity{{ID: ulid.Make().String(), Provider: "email"}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if confirmed {
		u.EmailConfirmedAt = &now
	}
	b.accounts[email] = &account{user: u, password: password}
	return u
}

// AddVerifiedTOTP gives the account a verified factor accepting code.
func (b *Backend) AddVerifiedTOTP(email, code string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.accounts[email]
	f := provider.Factor{
		ID:         ulid.Make().String(),
		FactorType: provider.FactorTOTP,
		Status:     provider.FactorVerified,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	acc.user.Factors = append(acc.user.Factors, f)
	acc.totpCode = code
	return f.ID
}

// SetSignOutError makes every remote sign-out fail with err.
func (b *Backend) SetSignOutError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signOutErr = err
}

// SetAALError makes assurance-level queries fail with err.
func (b *Backend) SetAALError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aalErr = err
}

// SetListFactorsError makes factor listing fail with err.
func (b *Backend) SetListFactorsError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.factorsErr = err
}

// SkipAALUpgrade makes MFA verification succeed without upgrading the
// session to aal2.
func (b *Backend) SkipAALUpgrade(skip bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.skipAALUpgrade = skip
}

func (b *Backend) SetAutoConfirm(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.autoConfirm = on
}

// OnCall runs fn at the start of the named operation, before it takes effect.
func (b *Backend) OnCall(op string, fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks[op] = fn
}

func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// ActiveSessions counts live provider sessions of userID.
func (b *Backend) ActiveSessions(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, uid := range b.sessions {
		if uid == userID {
			n++
		}
	}
	return n
}

// IssueTokens confirms the account and mints a token pair, as an email link
// or OAuth redirect would.
func (b *Backend) IssueTokens(email string) (access, refresh string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	acc := b.accounts[email]
	now := time.Now()
	acc.user.EmailConfirmedAt = &now
	s := b.newSessionLocked(acc, jwt.AAL1, "otp")
	return s.AccessToken, s.RefreshToken
}

func (b *Backend) enter(op string) {
	b.mu.Lock()
	b.calls[op]++
	hook := b.hooks[op]
	b.mu.Unlock()

	if hook != nil {
		hook()
	}
}

func (b *Backend) newSessionLocked(acc *account, aal string, methods ...string) *provider.Session {
	sid := ulid.Make().String()
	b.sessions[sid] = acc.user.ID
	return b.sessionForLocked(acc, sid, aal, methods...)
}

func (b *Backend) sessionForLocked(acc *account, sid, aal string, methods ...string) *provider.Session {
	token, err := b.gen.Generate(acc.user.ID, acc.user.Email, sid, aal, methods...)
	if err != nil {
		panic(err)
	}
	u := acc.user
	return &provider.Session{
		AccessToken:  token,
		RefreshToken: sid,
		TokenType:    "bearer",
		ExpiresIn:    3600,
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		User:         &u,
	}
}

func (b *Backend) accountByIDLocked(id string) *account {
	for _, acc := range b.accounts {
		if acc.user.ID == id {
			return acc
		}
	}
	return nil
}

func rejection(status int, code, msg string) error {
	return &provider.Error{Status: status, Code: code, Message: msg}
}

// Client is one tab's handle on the Backend.
type Client struct {
	backend  *Backend
	storage  provider.Storage
	verifier *jwt.Verifier

	mu        sync.Mutex
	seq       uint64
	listeners map[int]provider.Listener
	nextID    int
}

func (b *Backend) NewClient(storage provider.Storage) *Client {
	return &Client{
		backend:   b,
		storage:   storage,
		verifier:  jwt.NewVerifier(Secret),
		listeners: make(map[int]provider.Listener),
	}
}

func (c *Client) MFA() provider.MFA { return (*mfa)(c) }

func (c *Client) OnAuthStateChange(fn provider.Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) emit(typ provider.EventType, s *provider.Session) uint64 {
	c.mu.Lock()
	c.seq++
	ev := provider.AuthEvent{Type: typ, Session: s, Seq: c.seq}
	fns := make([]provider.Listener, 0, len(c.listeners))
	for i := 0; i < c.nextID; i++ {
		if fn, ok := c.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
	return ev.Seq
}

func (c *Client) commit(ctx context.Context, s *provider.Session, typ provider.EventType) (*provider.AuthResponse, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	if err := c.storage.Set(ctx, provider.StorageKey, string(data)); err != nil {
		return nil, err
	}
	seq := c.emit(typ, s)
	return &provider.AuthResponse{User: s.User, Session: s, Seq: seq}, nil
}

func (c *Client) load(ctx context.Context) (*provider.Session, error) {
	raw, ok, err := c.storage.Get(ctx, provider.StorageKey)
	if err != nil || !ok {
		return nil, err
	}
	var s provider.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) require(ctx context.Context) (*provider.Session, *jwt.Claims, error) {
	s, err := c.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if s == nil {
		return nil, nil, rejection(http.StatusUnauthorized, "no_authorization", "no session")
	}
	claims, err := c.verifier.Verify(s.AccessToken)
	if err != nil {
		return nil, nil, rejection(http.StatusUnauthorized, "bad_jwt", err.Error())
	}
	return s, claims, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*provider.AuthResponse, error) {
	b := c.backend
	b.enter("SignInWithPassword")

	b.mu.Lock()
	acc, ok := b.accounts[email]
	if !ok || acc.password != password {
		b.mu.Unlock()
		return nil, rejection(http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
	}
	s := b.newSessionLocked(acc, jwt.AAL1, "password")
	b.mu.Unlock()

	return c.commit(ctx, s, provider.EventSignedIn)
}

func (c *Client) SignUp(ctx context.Context, email, password, redirectTo string) (*provider.AuthResponse, error) {
	b := c.backend
	b.enter("SignUp")

	b.mu.Lock()
	if existing, ok := b.accounts[email]; ok {
		// The provider hides existing accounts behind a user with no identities.
		u := existing.user
		u.Identities = []provider.Identity{}
		b.mu.Unlock()
		return &provider.AuthResponse{User: &u}, nil
	}
	autoConfirm := b.autoConfirm
	b.mu.Unlock()

	u := b.AddUser(email, password, autoConfirm)
	if !autoConfirm {
		return &provider.AuthResponse{User: &u}, nil
	}

	b.mu.Lock()
	s := b.newSessionLocked(b.accounts[email], jwt.AAL1, "password")
	b.mu.Unlock()
	return c.commit(ctx, s, provider.EventSignedIn)
}

func (c *Client) SignOut(ctx context.Context, scope provider.SignOutScope) error {
	b := c.backend
	b.enter("SignOut")

	s, _ := c.load(ctx)
	b.mu.Lock()
	remoteErr := b.signOutErr
	if s != nil && remoteErr == nil {
		claims, err := c.verifier.Inspect(s.AccessToken)
		if err == nil {
			for sid, uid := range b.sessions {
				switch {
				case scope == provider.ScopeOthers && uid == claims.Subject && sid != claims.SessionID,
					scope == provider.ScopeGlobal && uid == claims.Subject,
					(scope == provider.ScopeLocal || scope == "") && sid == claims.SessionID:
					delete(b.sessions, sid)
				}
			}
		}
	}
	b.mu.Unlock()

	if scope == provider.ScopeOthers {
		return remoteErr
	}
	_ = c.storage.Remove(ctx, provider.StorageKey)
	c.emit(provider.EventSignedOut, nil)
	return remoteErr
}

func (c *Client) GetSession(ctx context.Context) (*provider.Session, error) {
	c.backend.enter("GetSession")
	return c.load(ctx)
}

func (c *Client) GetUser(ctx context.Context) (*provider.User, error) {
	b := c.backend
	b.enter("GetUser")

	_, claims, err := c.require(ctx)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.accountByIDLocked(claims.Subject)
	if acc == nil {
		return nil, rejection(http.StatusNotFound, "user_not_found", "user not found")
	}
	u := acc.user
	return &u, nil
}

func (c *Client) UpdateUser(ctx context.Context, attrs provider.UserAttributes) (*provider.User, error) {
	b := c.backend
	b.enter("UpdateUser")

	s, claims, err := c.require(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	acc := b.accountByIDLocked(claims.Subject)
	if acc == nil {
		b.mu.Unlock()
		return nil, rejection(http.StatusNotFound, "user_not_found", "user not found")
	}
	if attrs.Password != "" {
		if len(attrs.Password) < 8 {
			b.mu.Unlock()
			return nil, rejection(http.StatusUnprocessableEntity, "weak_password", "Password should be at least 8 characters")
		}
		acc.password = attrs.Password
	}
	if attrs.Email != "" {
		acc.user.NewEmail = attrs.Email
	}
	if attrs.Data != nil {
		if acc.user.UserMetadata == nil {
			acc.user.UserMetadata = map[string]interface{}{}
		}
		for k, v := range attrs.Data {
			acc.user.UserMetadata[k] = v
		}
	}
	acc.user.UpdatedAt = time.Now()
	u := acc.user
	b.mu.Unlock()

	s.User = &u
	data, _ := json.Marshal(s)
	if err := c.storage.Set(ctx, provider.StorageKey, string(data)); err != nil {
		return nil, err
	}
	c.emit(provider.EventUserUpdated, s)
	return &u, nil
}

func (c *Client) ResetPasswordForEmail(_ context.Context, email, redirectTo string) error {
	c.backend.enter("ResetPasswordForEmail")
	return nil
}

func (c *Client) Resend(_ context.Context, typ provider.OTPType, email, redirectTo string) error {
	c.backend.enter("Resend")
	return nil
}

func (c *Client) SignInWithOAuth(_ context.Context, name, redirectTo string) (string, error) {
	c.backend.enter("SignInWithOAuth")
	q := url.Values{"provider": {name}, "redirect_to": {redirectTo}}
	return "https://provider.test/auth/v1/authorize?" + q.Encode(), nil
}

func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*provider.AuthResponse, error) {
	b := c.backend
	b.enter("SetSession")

	claims, err := c.verifier.Verify(accessToken)
	if err != nil {
		return nil, rejection(http.StatusUnauthorized, "bad_jwt", err.Error())
	}

	b.mu.Lock()
	acc := b.accountByIDLocked(claims.Subject)
	if acc == nil {
		b.mu.Unlock()
		return nil, rejection(http.StatusNotFound, "user_not_found", "user not found")
	}
	u := acc.user
	b.mu.Unlock()

	s := &provider.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    claims.ExpiresAt.Unix(),
		User:         &u,
	}
	return c.commit(ctx, s, provider.EventSignedIn)
}

func (c *Client) DeleteAccount(ctx context.Context) error {
	b := c.backend
	b.enter("DeleteAccount")

	_, claims, err := c.require(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for email, acc := range b.accounts {
		if acc.user.ID == claims.Subject {
			delete(b.accounts, email)
		}
	}
	return nil
}

type mfa Client

func (m *mfa) client() *Client { return (*Client)(m) }

func (m *mfa) Enroll(ctx context.Context, factorType provider.FactorType, friendlyName string) (*provider.Enrollment, error) {
	c := m.client()
	b := c.backend
	b.enter("Enroll")

	_, claims, err := c.require(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.accountByIDLocked(claims.Subject)
	f := provider.Factor{
		ID:           ulid.Make().String(),
		FriendlyName: friendlyName,
		FactorType:   factorType,
		Status:       provider.FactorUnverified,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	acc.user.Factors = append(acc.user.Factors, f)
	if acc.totpCode == "" {
		acc.totpCode = "123456"
	}
	return &provider.Enrollment{
		ID:           f.ID,
		Type:         factorType,
		FriendlyName: friendlyName,
		TOTP: provider.TOTPEnrollment{
			Secret: "JBSWY3DPEHPK3PXP",
			URI:    fmt.Sprintf("otpauth://totp/providertest:%s?secret=JBSWY3DPEHPK3PXP", acc.user.Email),
		},
	}, nil
}

func (m *mfa) Challenge(ctx context.Context, factorID string) (*provider.Challenge, error) {
	c := m.client()
	b := c.backend
	b.enter("Challenge")

	if _, _, err := c.require(ctx); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := ulid.Make().String()
	b.challenges[id] = factorID
	return &provider.Challenge{ID: id, ExpiresAt: time.Now().Add(5 * time.Minute).Unix()}, nil
}

func (m *mfa) Verify(ctx context.Context, factorID, challengeID, code string) (*provider.AuthResponse, error) {
	c := m.client()
	b := c.backend
	b.enter("Verify")

	_, claims, err := c.require(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.challenges[challengeID] != factorID {
		b.mu.Unlock()
		return nil, rejection(http.StatusUnprocessableEntity, "mfa_challenge_expired", "challenge not found")
	}
	acc := b.accountByIDLocked(claims.Subject)
	if acc == nil || code != acc.totpCode {
		b.mu.Unlock()
		return nil, rejection(http.StatusUnprocessableEntity, "mfa_verification_failed", "Invalid TOTP code entered")
	}
	delete(b.challenges, challengeID)
	for i := range acc.user.Factors {
		if acc.user.Factors[i].ID == factorID {
			acc.user.Factors[i].Status = provider.FactorVerified
		}
	}
	aal := jwt.AAL2
	if b.skipAALUpgrade {
		aal = jwt.AAL1
	}
	s := b.sessionForLocked(acc, claims.SessionID, aal, "password", "totp")
	b.mu.Unlock()

	return c.commit(ctx, s, provider.EventMFAChallengeVerified)
}

func (m *mfa) Unenroll(ctx context.Context, factorID string) error {
	c := m.client()
	b := c.backend
	b.enter("Unenroll")

	_, claims, err := c.require(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.accountByIDLocked(claims.Subject)
	for i, f := range acc.user.Factors {
		if f.ID == factorID {
			acc.user.Factors = append(acc.user.Factors[:i], acc.user.Factors[i+1:]...)
			return nil
		}
	}
	return rejection(http.StatusNotFound, "mfa_factor_not_found", "factor not found")
}

func (m *mfa) ListFactors(ctx context.Context) (*provider.FactorList, error) {
	c := m.client()
	c.backend.enter("ListFactors")
	c.backend.mu.Lock()
	factorsErr := c.backend.factorsErr
	c.backend.mu.Unlock()
	if factorsErr != nil {
		return nil, factorsErr
	}

	u, err := c.GetUser(ctx)
	if err != nil {
		return nil, err
	}
	list := &provider.FactorList{All: u.Factors, TOTP: u.VerifiedTOTP()}
	if list.All == nil {
		list.All = []provider.Factor{}
	}
	if list.TOTP == nil {
		list.TOTP = []provider.Factor{}
	}
	return list, nil
}

func (m *mfa) GetAuthenticatorAssuranceLevel(ctx context.Context) (*provider.AAL, error) {
	c := m.client()
	b := c.backend
	b.enter("GetAuthenticatorAssuranceLevel")

	b.mu.Lock()
	aalErr := b.aalErr
	b.mu.Unlock()
	if aalErr != nil {
		return nil, aalErr
	}

	s, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return &provider.AAL{}, nil
	}
	claims, err := c.verifier.Verify(s.AccessToken)
	if err != nil {
		return nil, rejection(http.StatusUnauthorized, "bad_jwt", err.Error())
	}

	b.mu.Lock()
	acc := b.accountByIDLocked(claims.Subject)
	var u provider.User
	if acc != nil {
		u = acc.user
	}
	b.mu.Unlock()

	current := provider.AssuranceLevel(claims.AssuranceLevel())
	next := current
	if len(u.VerifiedTOTP()) > 0 {
		next = provider.AAL2
	}
	return &provider.AAL{Current: current, Next: next}, nil
}

var _ provider.Client = (*Client)(nil)
