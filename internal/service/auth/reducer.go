// internal/service/auth/reducer.go
package auth

import (
	"authgate-service/internal/provider"
)

// Action is anything Store.Dispatch accepts.
type Action interface {
	isAction()
}

type (
	loadingStarted   struct{}
	authStarted      struct{}
	mfaVerifyStarted struct{}
	reloaded         struct{}
	mfaRequired      struct {
		factorID string
		userID   string
		seq      uint64
	}
	authenticated struct {
		user    *provider.User
		session *provider.Session
		seq     uint64
	}
	sessionRecorded struct{ id string }
	providerEvent   struct{ event provider.AuthEvent }
	signedOut       struct{}
	failed          struct{ err error }
	errorRaised     struct{ err error }
	errorCleared    struct{}
	userUpdated     struct{ user *provider.User }
)

func (loadingStarted) isAction()   {}
func (authStarted) isAction()      {}
func (mfaVerifyStarted) isAction() {}
func (reloaded) isAction()         {}
func (mfaRequired) isAction()      {}
func (authenticated) isAction()    {}
func (sessionRecorded) isAction()  {}
func (providerEvent) isAction()    {}
func (signedOut) isAction()        {}
func (failed) isAction()           {}
func (errorRaised) isAction()      {}
func (errorCleared) isAction()     {}
func (userUpdated) isAction()      {}

// reduce is the only place State changes. It returns false when the action
// does not apply, in which case the returned State is s unchanged.
func reduce(s State, a Action) (State, bool) {
	switch a := a.(type) {
	case loadingStarted:
		if s.IsLoading {
			return s, false
		}
		s.IsLoading = true
		return s, true

	case authStarted:
		// A new login owns the tab; nothing of an earlier user survives it.
		next := s.anonymous()
		next.Status = StatusAuthenticating
		next.IsLoading = true
		return next, true

	case mfaVerifyStarted:
		if s.MFAPending == nil {
			return s, false
		}
		s.Status = StatusMFAPending
		s.IsLoading = true
		s.Error = ""
		return s, true

	case reloaded:
		next := s.anonymous()
		next.IsLoading = true
		return next, true

	case mfaRequired:
		if a.seq < s.SignedOutSeq {
			return s, false
		}
		next := s.anonymous()
		next.Status = StatusMFAPending
		next.MFAPending = &MFAPending{FactorID: a.factorID, UserID: a.userID}
		return next, true

	case authenticated:
		if a.user == nil || a.seq < s.SignedOutSeq {
			return s, false
		}
		s.Status = StatusAuthenticated
		s.User = a.user
		s.Session = a.session
		s.MFAPending = nil
		s.IsLoading = false
		s.Error = ""
		if a.seq > s.ProviderSeq {
			s.ProviderSeq = a.seq
		}
		return s, true

	case sessionRecorded:
		if s.User == nil || a.id == "" {
			return s, false
		}
		s.CurrentSessionID = a.id
		return s, true

	case providerEvent:
		return applyProviderEvent(s, a.event)

	case signedOut:
		if s.Status == StatusAnonymous && s.User == nil && s.MFAPending == nil && !s.IsLoading && s.Error == "" {
			return s, false
		}
		return s.anonymous(), true

	case failed:
		s.Status = StatusError
		s.IsLoading = false
		s.Error = a.err.Error()
		return s, true

	case errorRaised:
		if s.Status == StatusAuthenticating {
			s.Status = StatusAnonymous
		}
		s.IsLoading = false
		s.Error = a.err.Error()
		return s, true

	case errorCleared:
		if s.Error == "" && s.Status != StatusError {
			return s, false
		}
		s.Error = ""
		if s.Status == StatusError {
			s.Status = StatusAnonymous
			if s.User != nil {
				s.Status = StatusAuthenticated
			}
		}
		return s, true

	case userUpdated:
		if s.User == nil || a.user == nil {
			return s, false
		}
		s.User = a.user
		if s.Session != nil {
			session := *s.Session
			session.User = a.user
			s.Session = &session
		}
		return s, true
	}

	return s, false
}

// applyProviderEvent treats the provider as the source of truth for the
// session and user fields of a committed user. It never commits a user by
// itself: a SIGNED_IN during a login that still owes a second factor only
// advances the sequence.
func applyProviderEvent(s State, ev provider.AuthEvent) (State, bool) {
	if ev.Seq != 0 && ev.Seq <= s.ProviderSeq {
		return s, false
	}
	if ev.Seq > s.ProviderSeq {
		s.ProviderSeq = ev.Seq
	}

	switch ev.Type {
	case provider.EventSignedOut:
		next := s.anonymous()
		next.SignedOutSeq = ev.Seq
		return next, true

	case provider.EventSignedIn, provider.EventTokenRefreshed,
		provider.EventUserUpdated, provider.EventMFAChallengeVerified:
		if s.User == nil || ev.Session == nil {
			return s, true
		}
		s.Session = ev.Session
		if ev.Session.User != nil {
			s.User = ev.Session.User
		}
		return s, true
	}

	return s, true
}
