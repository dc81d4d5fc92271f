// internal/provider/gotrue.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	xerrors "authgate-service/internal/pkg/errors"
	"authgate-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

// StorageKey is where the serialized session lives in browser storage.
const StorageKey = "authgate-auth-token"

type Config struct {
	URL       string
	AnonKey   string
	JWTSecret string
	Timeout   time.Duration
}

// GoTrueClient talks to a GoTrue-compatible auth API. One client exists per
// tab; tabs of the same browser pass the same Storage, so a session written
// by one tab is read by the others. The session is never cached in memory.
type GoTrueClient struct {
	authURL  string
	restURL  string
	apiKey   string
	timeout  time.Duration
	http     *http.Client
	storage  Storage
	verifier *jwt.Verifier
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	seq       uint64
	listeners []listenerEntry
	nextID    int
}

type listenerEntry struct {
	id int
	fn Listener
}

func NewGoTrueClient(cfg Config, httpClient *http.Client, storage Storage, logger *zap.Logger) *GoTrueClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.URL, "/")
	return &GoTrueClient{
		authURL:  base + "/auth/v1",
		restURL:  base + "/rest/v1",
		apiKey:   cfg.AnonKey,
		timeout:  cfg.Timeout,
		http:     httpClient,
		storage:  storage,
		verifier: jwt.NewVerifier(cfg.JWTSecret),
		logger:   logger,
		now:      time.Now,
	}
}

func (c *GoTrueClient) MFA() MFA { return (*goTrueMFA)(c) }

// ========== Events ==========

func (c *GoTrueClient) OnAuthStateChange(fn Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// emit stamps the next sequence number and delivers the event outside the
// lock so listeners may call back into the client.
func (c *GoTrueClient) emit(typ EventType, session *Session) uint64 {
	c.mu.Lock()
	c.seq++
	ev := AuthEvent{Type: typ, Session: session, Seq: c.seq}
	listeners := make([]listenerEntry, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l.fn(ev)
	}
	return ev.Seq
}

// ========== Password auth ==========

func (c *GoTrueClient) SignInWithPassword(ctx context.Context, email, password string) (*AuthResponse, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, c.authURL+"/token?grant_type=password", "", body, &s); err != nil {
		return nil, err
	}
	return c.commitSession(ctx, &s, EventSignedIn)
}

// SignUp returns a session only when the project auto-confirms email.
// Otherwise the response carries the unconfirmed user alone.
func (c *GoTrueClient) SignUp(ctx context.Context, email, password, redirectTo string) (*AuthResponse, error) {
	endpoint := c.authURL + "/signup"
	if redirectTo != "" {
		endpoint += "?redirect_to=" + url.QueryEscape(redirectTo)
	}

	var raw json.RawMessage
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, endpoint, "", body, &raw); err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode signup response: %w", err)
	}
	if s.AccessToken != "" {
		return c.commitSession(ctx, &s, EventSignedIn)
	}

	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("failed to decode signup user: %w", err)
	}
	return &AuthResponse{User: &u}, nil
}

func (c *GoTrueClient) SignOut(ctx context.Context, scope SignOutScope) error {
	if scope == "" {
		scope = ScopeLocal
	}

	session, err := c.loadSession(ctx)
	if err != nil {
		c.logger.Warn("failed to read stored session during sign-out", zap.Error(err))
	}

	var remoteErr error
	if session != nil {
		remoteErr = c.do(ctx, http.MethodPost, c.authURL+"/logout?scope="+string(scope), session.AccessToken, nil, nil)
		// The session is already gone on the provider's side.
		if xerrors.Is(remoteErr, xerrors.ErrNotAuthenticated) || xerrors.Is(remoteErr, xerrors.ErrNotFound) {
			remoteErr = nil
		}
	}

	if scope == ScopeOthers {
		return remoteErr
	}

	if err := c.storage.Remove(ctx, StorageKey); err != nil {
		c.logger.Error("failed to clear stored session", zap.Error(err))
	}
	c.emit(EventSignedOut, nil)
	return remoteErr
}

// ========== Session ==========

// GetSession returns the stored session, refreshing it first when the
// access token has expired. A refresh the provider rejects clears storage
// and yields no session.
func (c *GoTrueClient) GetSession(ctx context.Context) (*Session, error) {
	session, err := c.loadSession(ctx)
	if err != nil || session == nil {
		return nil, err
	}
	if !session.Expired(c.now()) {
		return session, nil
	}

	refreshed, err := c.refresh(ctx, session.RefreshToken)
	if err != nil {
		if IsAuthRejection(err) {
			c.logger.Info("stored session could not be refreshed", zap.Error(err))
			if rmErr := c.storage.Remove(ctx, StorageKey); rmErr != nil {
				c.logger.Error("failed to clear stored session", zap.Error(rmErr))
			}
			c.emit(EventSignedOut, nil)
			return nil, nil
		}
		return nil, err
	}

	resp, err := c.commitSession(ctx, refreshed, EventTokenRefreshed)
	if err != nil {
		return nil, err
	}
	return resp.Session, nil
}

func (c *GoTrueClient) GetUser(ctx context.Context) (*User, error) {
	session, err := c.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	var u User
	if err := c.do(ctx, http.MethodGet, c.authURL+"/user", session.AccessToken, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SetSession adopts tokens handed back by an email link or OAuth redirect.
func (c *GoTrueClient) SetSession(ctx context.Context, accessToken, refreshToken string) (*AuthResponse, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "access and refresh tokens are required")
	}

	claims, err := c.verifier.Inspect(accessToken)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, err.Error())
	}

	var expiresAt int64
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Unix()
	}
	session := &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
	}

	if session.Expired(c.now()) {
		session, err = c.refresh(ctx, refreshToken)
		if err != nil {
			return nil, err
		}
	} else {
		var u User
		if err := c.do(ctx, http.MethodGet, c.authURL+"/user", accessToken, nil, &u); err != nil {
			return nil, err
		}
		session.User = &u
		session.ExpiresIn = int(time.Until(time.Unix(expiresAt, 0)).Seconds())
	}

	return c.commitSession(ctx, session, EventSignedIn)
}

// ========== Account ==========

func (c *GoTrueClient) UpdateUser(ctx context.Context, attrs UserAttributes) (*User, error) {
	session, err := c.requireSession(ctx)
	if err != nil {
		return nil, err
	}

	var u User
	if err := c.do(ctx, http.MethodPut, c.authURL+"/user", session.AccessToken, attrs, &u); err != nil {
		return nil, err
	}

	session.User = &u
	if err := c.saveSession(ctx, session); err != nil {
		return nil, err
	}
	c.emit(EventUserUpdated, session)
	return &u, nil
}

func (c *GoTrueClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	endpoint := c.authURL + "/recover"
	if redirectTo != "" {
		endpoint += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.do(ctx, http.MethodPost, endpoint, "", map[string]string{"email": email}, nil)
}

func (c *GoTrueClient) Resend(ctx context.Context, typ OTPType, email, redirectTo string) error {
	endpoint := c.authURL + "/resend"
	if redirectTo != "" {
		endpoint += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	body := map[string]string{"type": string(typ), "email": email}
	return c.do(ctx, http.MethodPost, endpoint, "", body, nil)
}

// SignInWithOAuth builds the authorize URL the browser must visit. No request
// is made here; the provider handshake happens in the browser.
func (c *GoTrueClient) SignInWithOAuth(_ context.Context, provider, redirectTo string) (string, error) {
	if provider == "" {
		return "", xerrors.Wrap(xerrors.ErrInvalidInput, "oauth provider is required")
	}
	q := url.Values{}
	q.Set("provider", provider)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return c.authURL + "/authorize?" + q.Encode(), nil
}

// DeleteAccount calls the project's delete_user RPC. The caller signs out
// afterwards.
func (c *GoTrueClient) DeleteAccount(ctx context.Context) error {
	session, err := c.requireSession(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, c.restURL+"/rpc/delete_user", session.AccessToken, map[string]string{}, nil)
}

// ========== MFA ==========

type goTrueMFA GoTrueClient

func (m *goTrueMFA) client() *GoTrueClient { return (*GoTrueClient)(m) }

func (m *goTrueMFA) Enroll(ctx context.Context, factorType FactorType, friendlyName string) (*Enrollment, error) {
	c := m.client()
	session, err := c.requireSession(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]string{"factor_type": string(factorType)}
	if friendlyName != "" {
		body["friendly_name"] = friendlyName
	}
	var e Enrollment
	if err := c.do(ctx, http.MethodPost, c.authURL+"/factors", session.AccessToken, body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (m *goTrueMFA) Challenge(ctx context.Context, factorID string) (*Challenge, error) {
	c := m.client()
	session, err := c.requireSession(ctx)
	if err != nil {
		return nil, err
	}

	var ch Challenge
	path := fmt.Sprintf("%s/factors/%s/challenge", c.authURL, url.PathEscape(factorID))
	if err := c.do(ctx, http.MethodPost, path, session.AccessToken, map[string]string{}, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// Verify upgrades the session. The returned session replaces the stored one.
func (m *goTrueMFA) Verify(ctx context.Context, factorID, challengeID, code string) (*AuthResponse, error) {
	c := m.client()
	session, err := c.requireSession(ctx)
	if err != nil {
		return nil, err
	}

	var s Session
	path := fmt.Sprintf("%s/factors/%s/verify", c.authURL, url.PathEscape(factorID))
	body := map[string]string{"challenge_id": challengeID, "code": code}
	if err := c.do(ctx, http.MethodPost, path, session.AccessToken, body, &s); err != nil {
		return nil, err
	}
	return c.commitSession(ctx, &s, EventMFAChallengeVerified)
}

func (m *goTrueMFA) Unenroll(ctx context.Context, factorID string) error {
	c := m.client()
	session, err := c.requireSession(ctx)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("%s/factors/%s", c.authURL, url.PathEscape(factorID))
	return c.do(ctx, http.MethodDelete, path, session.AccessToken, nil, nil)
}

// ListFactors reads the user fresh from the provider so that a factor
// enrolled from another device is visible.
func (m *goTrueMFA) ListFactors(ctx context.Context) (*FactorList, error) {
	u, err := m.client().GetUser(ctx)
	if err != nil {
		return nil, err
	}

	list := &FactorList{All: u.Factors, TOTP: u.VerifiedTOTP()}
	if list.All == nil {
		list.All = []Factor{}
	}
	if list.TOTP == nil {
		list.TOTP = []Factor{}
	}
	return list, nil
}

// GetAuthenticatorAssuranceLevel reads the current level from the access
// token. The next level is aal2 whenever the session's user has a verified
// factor.
func (m *goTrueMFA) GetAuthenticatorAssuranceLevel(ctx context.Context) (*AAL, error) {
	c := m.client()
	session, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return &AAL{}, nil
	}

	claims, err := c.verifier.Verify(session.AccessToken)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrNotAuthenticated, err.Error())
	}

	current := AssuranceLevel(claims.AssuranceLevel())
	next := current
	if len(session.User.VerifiedTOTP()) > 0 {
		next = AAL2
	}

	methods := make([]AMREntry, 0, len(claims.AMR))
	for _, a := range claims.AMR {
		methods = append(methods, AMREntry{Method: a.Method, Timestamp: a.Timestamp})
	}
	return &AAL{Current: current, Next: next, CurrentMethods: methods}, nil
}

// ========== Helpers ==========

func (c *GoTrueClient) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, &Error{Status: http.StatusUnauthorized, Code: "refresh_token_not_found", Message: "no refresh token"}
	}
	var s Session
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, c.authURL+"/token?grant_type=refresh_token", "", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *GoTrueClient) commitSession(ctx context.Context, s *Session, event EventType) (*AuthResponse, error) {
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = c.now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	if err := c.saveSession(ctx, s); err != nil {
		return nil, err
	}
	seq := c.emit(event, s)
	return &AuthResponse{User: s.User, Session: s, Seq: seq}, nil
}

func (c *GoTrueClient) requireSession(ctx context.Context) (*Session, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, xerrors.ErrNoProviderSession
	}
	return session, nil
}

func (c *GoTrueClient) loadSession(ctx context.Context) (*Session, error) {
	raw, ok, err := c.storage.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored session: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		c.logger.Warn("discarding malformed stored session", zap.Error(err))
		_ = c.storage.Remove(ctx, StorageKey)
		return nil, nil
	}
	return &s, nil
}

func (c *GoTrueClient) saveSession(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := c.storage.Set(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// do sends one request under the caller's context plus the configured
// per-call timeout.
func (c *GoTrueClient) do(ctx context.Context, method, endpoint, accessToken string, body, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	bearer := accessToken
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, errors.Join(xerrors.ErrProviderUnavailable, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, errors.Join(xerrors.ErrProviderUnavailable, err))
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func parseError(status int, data []byte) *Error {
	e := &Error{Status: status, Message: http.StatusText(status)}

	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return e
	}

	switch {
	case body.ErrorCode != "":
		e.Code = body.ErrorCode
	case body.Error != "":
		e.Code = body.Error
	default:
		var code string
		if json.Unmarshal(body.Code, &code) == nil {
			e.Code = code
		}
	}

	for _, m := range []string{body.Msg, body.Message, body.ErrorDescription} {
		if m != "" {
			e.Message = m
			break
		}
	}

	// Older deployments report an unconfirmed email as a generic grant error.
	if e.Code == "invalid_grant" && strings.Contains(strings.ToLower(e.Message), "email not confirmed") {
		e.Code = "email_not_confirmed"
	}
	return e
}
