// Package guard decides what a tab may see.
//
// The gate is three-valued: a tab with no user goes to the login screen, a
// tab whose session still owes a second factor goes to the MFA screen, and
// only a fully verified tab is admitted. While the state machine is still
// loading nothing is admitted.
package guard

import (
	"context"

	"authgate-service/internal/provider"
	"authgate-service/internal/routes"
	"authgate-service/internal/service/auth"
)

type Outcome string

const (
	Placeholder Outcome = "placeholder"
	Redirect    Outcome = "redirect"
	Allow       Outcome = "allow"
)

// Reasons attached to a Decision.
const (
	ReasonLoading          = "loading"
	ReasonMFARequired      = "mfa_required"
	ReasonUnauthenticated  = "unauthenticated"
	ReasonAssuranceUnknown = "assurance_unknown"
	ReasonAuthenticated    = "authenticated"
)

type Decision struct {
	Outcome Outcome `json:"outcome"`
	To      string  `json:"to,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

func (d Decision) Allowed() bool {
	return d.Outcome == Allow
}

// Source is what the guard reads: the tab's state and a live assurance
// level query.
type Source interface {
	Snapshot() auth.State
	AssuranceLevel(ctx context.Context) (*provider.AAL, error)
}

// Evaluate is the pure decision for a protected location. aal and aalErr
// are only consulted once a user is committed; an unknown assurance level
// admits nothing.
func Evaluate(st auth.State, aal *provider.AAL, aalErr error, requested string) Decision {
	switch {
	case st.IsLoading:
		return Decision{Outcome: Placeholder, Reason: ReasonLoading}
	case st.MFAPending != nil:
		return Decision{Outcome: Redirect, To: routes.WithFrom(routes.MFAVerify, requested), Reason: ReasonMFARequired}
	case st.User == nil:
		return Decision{Outcome: Redirect, To: routes.WithFrom(routes.Login, requested), Reason: ReasonUnauthenticated}
	case aalErr != nil || aal == nil:
		return Decision{Outcome: Placeholder, Reason: ReasonAssuranceUnknown}
	case aal.NeedsStepUp():
		return Decision{Outcome: Redirect, To: routes.WithFrom(routes.MFAVerify, requested), Reason: ReasonMFARequired}
	}
	return Decision{Outcome: Allow}
}

// Check runs Evaluate against a live source. The assurance level is only
// queried when a user is committed.
func Check(ctx context.Context, src Source, requested string) Decision {
	st := src.Snapshot()
	if st.IsLoading || st.MFAPending != nil || st.User == nil {
		return Evaluate(st, nil, nil, requested)
	}
	aal, err := src.AssuranceLevel(ctx)
	return Evaluate(st, aal, err, requested)
}

// EvaluateEntry decides for the anonymous-only screens. A committed user is
// sent on to where they were going; everyone else may stay.
func EvaluateEntry(st auth.State, from string) Decision {
	switch {
	case st.IsLoading:
		return Decision{Outcome: Placeholder, Reason: ReasonLoading}
	case st.User != nil && st.MFAPending == nil:
		return Decision{Outcome: Redirect, To: routes.PostLogin(from), Reason: ReasonAuthenticated}
	}
	return Decision{Outcome: Allow}
}

// ForView picks the right gate for path.
func ForView(ctx context.Context, src Source, path, from string) Decision {
	switch {
	case routes.IsProtected(path):
		return Check(ctx, src, path)
	case routes.IsAnonymousEntry(path):
		return EvaluateEntry(src.Snapshot(), from)
	case path == routes.MFAVerify:
		st := src.Snapshot()
		if st.IsLoading {
			return Decision{Outcome: Placeholder, Reason: ReasonLoading}
		}
		if st.MFAPending == nil {
			if st.User != nil {
				return Decision{Outcome: Redirect, To: routes.PostLogin(from), Reason: ReasonAuthenticated}
			}
			return Decision{Outcome: Redirect, To: routes.Login, Reason: ReasonUnauthenticated}
		}
	}
	return Decision{Outcome: Allow}
}
