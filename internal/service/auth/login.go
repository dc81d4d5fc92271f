// internal/service/auth/login.go
package auth

import (
	"context"

	domain "authgate-service/internal/domain/auth"
	xerrors "authgate-service/internal/pkg/errors"
	"authgate-service/internal/provider"
	"authgate-service/internal/routes"
	"authgate-service/internal/tabsync"

	"go.uber.org/zap"
)

// ========== Initialization ==========

// Initialize reads the persisted provider session and settles the tab into
// ANONYMOUS, MFA_PENDING or AUTHENTICATED. It records nothing: a restored
// session is not a new login.
func (m *Machine) Initialize(ctx context.Context) error {
	st, _ := m.store.Dispatch(loadingStarted{})
	seq := st.ProviderSeq

	session, err := m.provider.GetSession(ctx)
	if err != nil {
		return m.fail(xerrors.Wrap(err, "failed to read session"))
	}
	if session == nil || session.User == nil {
		m.store.Dispatch(signedOut{})
		return nil
	}

	aal, err := m.provider.MFA().GetAuthenticatorAssuranceLevel(ctx)
	if err != nil {
		return m.fail(xerrors.Wrap(err, "failed to read assurance level"))
	}
	if aal.NeedsStepUp() {
		factorID := ""
		if totp := session.User.VerifiedTOTP(); len(totp) > 0 {
			factorID = totp[0].ID
		} else if factors, err := m.provider.MFA().ListFactors(ctx); err == nil && len(factors.TOTP) > 0 {
			factorID = factors.TOTP[0].ID
		}
		m.store.Dispatch(mfaRequired{factorID: factorID, userID: session.User.ID, seq: seq})
		return nil
	}

	if _, applied := m.store.Dispatch(authenticated{user: session.User, session: session, seq: seq}); !applied {
		return nil
	}
	if id := m.loadCurrentSession(ctx, session.User.ID); id != "" {
		m.store.Dispatch(sessionRecorded{id: id})
	}
	m.startHeartbeat()
	return nil
}

// ========== Password login ==========

// Login signs in with email and password. A locked-out email is rejected
// before anything is sent to the provider.
func (m *Machine) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	if m.limiter.IsLocked(email) {
		err := &xerrors.RateLimitError{Identifier: email, Remaining: m.limiter.RemainingTime(email)}
		m.store.Dispatch(errorRaised{err: err})
		return nil, err
	}

	m.endCurrentLogin(ctx)
	m.store.Dispatch(authStarted{})

	resp, err := m.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		switch {
		case xerrors.Is(err, xerrors.ErrEmailNotConfirmed):
			m.store.Dispatch(signedOut{})
			return &domain.LoginResult{NeedsVerification: true}, nil
		case xerrors.Is(err, xerrors.ErrInvalidCredentials):
			m.limiter.RecordAttempt(email, false)
			if m.limiter.IsLocked(email) {
				m.logger.Warn("login locked out", zap.String("email", email))
			}
		}
		return nil, m.fail(err)
	}

	if !resp.User.EmailConfirmed() {
		if err := m.provider.SignOut(ctx, provider.ScopeLocal); err != nil {
			m.logger.Warn("failed to drop unconfirmed session", zap.Error(err))
		}
		m.store.Dispatch(signedOut{})
		return &domain.LoginResult{NeedsVerification: true}, nil
	}
	m.limiter.RecordAttempt(email, true)

	return m.afterFirstFactor(ctx, resp, "password")
}

// Register creates an account. When the provider requires confirmation no
// session is returned and the caller is told to check their email.
func (m *Machine) Register(ctx context.Context, email, password string) (*domain.RegisterResult, error) {
	m.endCurrentLogin(ctx)
	m.store.Dispatch(authStarted{})

	resp, err := m.provider.SignUp(ctx, email, password, m.redirect(routes.AuthConfirm))
	if err != nil {
		return nil, m.fail(err)
	}
	if resp.User != nil && resp.User.Identities != nil && len(resp.User.Identities) == 0 {
		return nil, m.fail(xerrors.ErrUserAlreadyRegistered)
	}
	if resp.Session == nil {
		m.store.Dispatch(signedOut{})
		return &domain.RegisterResult{NeedsVerification: true}, nil
	}

	if err := m.commitLogin(ctx, resp.User, resp.Session, resp.Seq, map[string]interface{}{"method": "signup"}); err != nil {
		return nil, err
	}
	return &domain.RegisterResult{}, nil
}

// endCurrentLogin logs out whatever user or pending factor the tab holds
// before a new login starts. A failed remote sign-out is only logged.
func (m *Machine) endCurrentLogin(ctx context.Context) {
	st := m.store.Snapshot()
	if st.User == nil && st.MFAPending == nil {
		return
	}
	if err := m.Logout(ctx); err != nil {
		m.logger.Warn("previous login not fully ended", zap.Error(err))
	}
}

// afterFirstFactor moves a fresh provider session to MFA_PENDING when the
// user has a verified TOTP factor, and commits it otherwise.
func (m *Machine) afterFirstFactor(ctx context.Context, resp *provider.AuthResponse, method string) (*domain.LoginResult, error) {
	factors, err := m.provider.MFA().ListFactors(ctx)
	if err != nil {
		// Without the factor list the session's assurance is unknown; it
		// must not be restored on the next reload.
		if signOutErr := m.provider.SignOut(ctx, provider.ScopeLocal); signOutErr != nil {
			m.logger.Warn("failed to drop unverified session", zap.Error(signOutErr))
		}
		return nil, m.fail(xerrors.Wrap(err, "failed to list factors"))
	}

	if len(factors.TOTP) > 0 {
		factorID := factors.TOTP[0].ID
		if _, applied := m.store.Dispatch(mfaRequired{factorID: factorID, userID: resp.User.ID, seq: resp.Seq}); !applied {
			return nil, xerrors.ErrSessionSuperseded
		}
		return &domain.LoginResult{NeedsMFA: true, FactorID: factorID}, nil
	}

	if err := m.commitLogin(ctx, resp.User, resp.Session, resp.Seq, map[string]interface{}{"method": method}); err != nil {
		return nil, err
	}
	return &domain.LoginResult{}, nil
}

// commitLogin is the single place a user becomes AUTHENTICATED through an
// explicit login. Everything after the commit is best effort.
func (m *Machine) commitLogin(ctx context.Context, user *provider.User, session *provider.Session, seq uint64, metadata map[string]interface{}) error {
	if _, applied := m.store.Dispatch(authenticated{user: user, session: session, seq: seq}); !applied {
		m.logger.Info("login superseded by sign-out", zap.Uint64("seq", seq))
		return xerrors.ErrSessionSuperseded
	}

	if id := m.records.CreateSession(ctx, user.ID, m.device); id != "" {
		m.store.Dispatch(sessionRecorded{id: id})
		m.saveCurrentSession(ctx, user.ID, id)
	}
	m.records.LogActivity(user.ID, domain.EventLogin, m.device.UserAgent, metadata)
	m.broadcaster.Broadcast(ctx, tabsync.Login, nil)
	m.startHeartbeat()

	m.logger.Info("user signed in",
		zap.String("user_id", user.ID),
		zap.String("device", m.device.Label()))
	return nil
}

// ========== Second factor ==========

// CompleteMFALogin finishes a login held in MFA_PENDING. The user is only
// committed once the provider confirms the session reached aal2.
func (m *Machine) CompleteMFALogin(ctx context.Context, code string) error {
	st := m.store.Snapshot()
	if st.MFAPending == nil {
		return xerrors.ErrMFANotPending
	}
	pending := *st.MFAPending
	if pending.FactorID == "" {
		return m.fail(xerrors.ErrNoVerifiedFactor)
	}

	key := mfaLimiterKey(pending.UserID)
	if m.limiter.IsLocked(key) {
		err := &xerrors.RateLimitError{Identifier: key, Remaining: m.limiter.RemainingTime(key)}
		m.store.Dispatch(errorRaised{err: err})
		return err
	}

	m.store.Dispatch(mfaVerifyStarted{})

	mfa := m.provider.MFA()
	challenge, err := mfa.Challenge(ctx, pending.FactorID)
	if err != nil {
		return m.fail(err)
	}

	resp, err := mfa.Verify(ctx, pending.FactorID, challenge.ID, code)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrMFAInvalidCode) {
			m.records.LogActivity(pending.UserID, domain.EventFailedLogin, m.device.UserAgent,
				map[string]interface{}{"mfa": true})
			m.limiter.RecordAttempt(key, false)
			if m.limiter.IsLocked(key) {
				m.records.LogSecurityEvent(pending.UserID, domain.SecurityRepeatedFailure,
					map[string]interface{}{"factor_id": pending.FactorID})
			}
		}
		return m.fail(err)
	}

	aal, err := mfa.GetAuthenticatorAssuranceLevel(ctx)
	if err != nil {
		return m.fail(xerrors.Wrap(err, "failed to confirm assurance level"))
	}
	if aal.Current != provider.AAL2 {
		return m.fail(xerrors.ErrAssuranceNotMet)
	}

	user := resp.User
	if user == nil && resp.Session != nil {
		user = resp.Session.User
	}
	if user == nil {
		if user, err = m.provider.GetUser(ctx); err != nil {
			return m.fail(err)
		}
	}

	m.limiter.RecordAttempt(key, true)
	return m.commitLogin(ctx, user, resp.Session, resp.Seq, map[string]interface{}{"mfa": true})
}

// mfaLimiterKey keeps second-factor failures apart from password failures
// in the tab's limiter.
func mfaLimiterKey(userID string) string {
	return "mfa:" + userID
}

// CancelMFA abandons a pending second factor and drops the half-made
// provider session.
func (m *Machine) CancelMFA(ctx context.Context) error {
	st := m.store.Snapshot()
	if st.MFAPending == nil {
		return nil
	}

	err := m.provider.SignOut(ctx, provider.ScopeLocal)
	m.store.Dispatch(signedOut{})
	if err != nil {
		m.logger.Warn("remote sign-out failed while cancelling mfa", zap.Error(err))
		return xerrors.Wrap(err, "failed to sign out")
	}
	return nil
}

// ========== Redirect flows ==========

// SignInWithOAuth returns the provider URL the tab should be sent to.
func (m *Machine) SignInWithOAuth(ctx context.Context, name string) (string, error) {
	return m.provider.SignInWithOAuth(ctx, name, m.redirect(routes.AuthCallback))
}

// HandleOAuthCallback adopts the tokens the provider redirected back with.
func (m *Machine) HandleOAuthCallback(ctx context.Context, accessToken, refreshToken string) (*domain.LoginResult, error) {
	return m.adoptSession(ctx, accessToken, refreshToken, "oauth")
}

// ConfirmEmail adopts the session carried by an email confirmation link.
func (m *Machine) ConfirmEmail(ctx context.Context, accessToken, refreshToken string) (*domain.LoginResult, error) {
	return m.adoptSession(ctx, accessToken, refreshToken, "email_confirmation")
}

// HandleRecovery adopts the session carried by a password reset link so the
// new password can be set.
func (m *Machine) HandleRecovery(ctx context.Context, accessToken, refreshToken string) (*domain.LoginResult, error) {
	return m.adoptSession(ctx, accessToken, refreshToken, "recovery")
}

func (m *Machine) adoptSession(ctx context.Context, accessToken, refreshToken, method string) (*domain.LoginResult, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, xerrors.ErrInvalidInput
	}

	m.endCurrentLogin(ctx)
	m.store.Dispatch(authStarted{})

	resp, err := m.provider.SetSession(ctx, accessToken, refreshToken)
	if err != nil {
		return nil, m.fail(err)
	}
	return m.afterFirstFactor(ctx, resp, method)
}
