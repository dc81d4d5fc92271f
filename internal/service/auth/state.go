// internal/service/auth/state.go
package auth

import (
	"authgate-service/internal/provider"
)

type Status string

const (
	StatusAnonymous      Status = "ANONYMOUS"
	StatusAuthenticating Status = "AUTHENTICATING"
	StatusMFAPending     Status = "MFA_PENDING"
	StatusAuthenticated  Status = "AUTHENTICATED"
	StatusError          Status = "ERROR"
)

// MFAPending describes a login that passed the password but still owes a
// second factor. UserID is kept for bookkeeping only; the user is not
// committed to State until the factor succeeds.
type MFAPending struct {
	FactorID string `json:"factor_id"`
	UserID   string `json:"-"`
}

// State is one tab's view of authentication. Values are snapshots; nothing
// inside is mutated after it has been published.
type State struct {
	Status           Status            `json:"status"`
	User             *provider.User    `json:"-"`
	Session          *provider.Session `json:"-"`
	IsLoading        bool              `json:"is_loading"`
	Error            string            `json:"error,omitempty"`
	MFAPending       *MFAPending       `json:"mfa_pending,omitempty"`
	CurrentSessionID string            `json:"current_session_id,omitempty"`

	// Version increases on every applied action.
	Version uint64 `json:"version"`
	// ProviderSeq is the newest provider event applied; SignedOutSeq the
	// newest SIGNED_OUT. Explicit commits older than SignedOutSeq are stale.
	ProviderSeq  uint64 `json:"-"`
	SignedOutSeq uint64 `json:"-"`
}

// IsAuthenticated is exactly "a user is committed".
func (s State) IsAuthenticated() bool {
	return s.User != nil
}

// initialState is what a tab holds before Initialize has answered.
func initialState() State {
	return State{Status: StatusAnonymous, IsLoading: true}
}

// anonymous resets everything except the counters.
func (s State) anonymous() State {
	return State{
		Status:       StatusAnonymous,
		Version:      s.Version,
		ProviderSeq:  s.ProviderSeq,
		SignedOutSeq: s.SignedOutSeq,
	}
}
