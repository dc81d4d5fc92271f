package provider

import (
	"time"
)

type AssuranceLevel string

const (
	AAL1 AssuranceLevel = "aal1"
	AAL2 AssuranceLevel = "aal2"
)

type FactorType string

const FactorTOTP FactorType = "totp"

type FactorStatus string

const (
	FactorVerified   FactorStatus = "verified"
	FactorUnverified FactorStatus = "unverified"
)

type EventType string

const (
	EventSignedIn             EventType = "SIGNED_IN"
	EventSignedOut            EventType = "SIGNED_OUT"
	EventTokenRefreshed       EventType = "TOKEN_REFRESHED"
	EventUserUpdated          EventType = "USER_UPDATED"
	EventMFAChallengeVerified EventType = "MFA_CHALLENGE_VERIFIED"
)

// SignOutScope selects which provider sessions a sign-out revokes.
type SignOutScope string

const (
	ScopeLocal  SignOutScope = "local"
	ScopeGlobal SignOutScope = "global"
	ScopeOthers SignOutScope = "others"
)

// OTPType selects which email Resend delivers again.
type OTPType string

const (
	OTPSignup      OTPType = "signup"
	OTPEmailChange OTPType = "email_change"
)

type Identity struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

type Factor struct {
	ID           string       `json:"id"`
	FriendlyName string       `json:"friendly_name,omitempty"`
	FactorType   FactorType   `json:"factor_type"`
	Status       FactorStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (f Factor) Verified() bool {
	return f.Status == FactorVerified
}

type User struct {
	ID               string                 `json:"id"`
	Email            string                 `json:"email"`
	NewEmail         string                 `json:"new_email,omitempty"`
	EmailConfirmedAt *time.Time             `json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time             `json:"last_sign_in_at,omitempty"`
	UserMetadata     map[string]interface{} `json:"user_metadata,omitempty"`
	Identities       []Identity             `json:"identities,omitempty"`
	Factors          []Factor               `json:"factors,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

func (u *User) EmailConfirmed() bool {
	return u != nil && u.EmailConfirmedAt != nil && !u.EmailConfirmedAt.IsZero()
}

// VerifiedTOTP returns the verified TOTP factors, oldest first.
func (u *User) VerifiedTOTP() []Factor {
	if u == nil {
		return nil
	}
	var out []Factor
	for _, f := range u.Factors {
		if f.FactorType == FactorTOTP && f.Verified() {
			out = append(out, f)
		}
	}
	return out
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *User  `json:"user"`
}

// expiryMargin refreshes tokens slightly before they lapse.
const expiryMargin = 10 * time.Second

func (s *Session) Expired(now time.Time) bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return !now.Add(expiryMargin).Before(time.Unix(s.ExpiresAt, 0))
}

// AuthResponse is the narrowed result of any call that may create a session.
// Seq is the sequence number of the event the call emitted, zero if none.
type AuthResponse struct {
	User    *User
	Session *Session
	Seq     uint64
}

type AuthEvent struct {
	Type    EventType
	Session *Session
	Seq     uint64
}

type Listener func(AuthEvent)

type UserAttributes struct {
	Email    string                 `json:"email,omitempty"`
	Password string                 `json:"password,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

type TOTPEnrollment struct {
	QRCode string `json:"qr_code"`
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

type Enrollment struct {
	ID           string         `json:"id"`
	Type         FactorType     `json:"type"`
	FriendlyName string         `json:"friendly_name,omitempty"`
	TOTP         TOTPEnrollment `json:"totp"`
}

type Challenge struct {
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type FactorList struct {
	All  []Factor `json:"all"`
	TOTP []Factor `json:"totp"`
}

type AMREntry struct {
	Method    string `json:"method"`
	Timestamp int64  `json:"timestamp"`
}

// AAL reports the session's assurance level. Both levels are empty when
// there is no session.
type AAL struct {
	Current        AssuranceLevel `json:"current_level"`
	Next           AssuranceLevel `json:"next_level"`
	CurrentMethods []AMREntry     `json:"current_authentication_methods"`
}

// NeedsStepUp reports a session that must still pass a second factor.
func (a *AAL) NeedsStepUp() bool {
	return a != nil && a.Next == AAL2 && a.Current != AAL2
}
