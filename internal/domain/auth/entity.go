// internal/domain/auth/entity.go
package auth

import (
	"time"
)

// EventType is the activity_logs.event_type enum.
type EventType string

const (
	EventLogin          EventType = "login"
	EventLogout         EventType = "logout"
	EventFailedLogin    EventType = "failed_login"
	EventPasswordChange EventType = "password_change"
	EventMFAEnabled     EventType = "mfa_enabled"
	EventMFADisabled    EventType = "mfa_disabled"
	EventProfileUpdate  EventType = "profile_update"
)

// Security event types. The first four mirror activity events.
const (
	SecurityPasswordChange  = "password_change"
	SecurityMFAEnabled      = "mfa_enabled"
	SecurityMFADisabled     = "mfa_disabled"
	SecurityEmailChange     = "email_change"
	SecuritySignOutOthers   = "sign_out_others"
	SecuritySessionRevoked  = "session_revoked"
	SecurityAccountDeleted  = "account_deleted"
	SecurityRepeatedFailure = "repeated_mfa_failure"
)

// Session is this service's bookkeeping row for one signed-in browser. It is
// distinct from the provider's own session and tokens.
type Session struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	DeviceName string    `json:"device_name" db:"device_name"`
	Browser    string    `json:"browser" db:"browser"`
	LastActive time.Time `json:"last_active" db:"last_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	IsCurrent  bool      `json:"is_current" db:"-"`
}

// ActivityLogEntry is append-only.
type ActivityLogEntry struct {
	ID        string                 `json:"id" db:"id"`
	UserID    string                 `json:"user_id" db:"user_id"`
	EventType EventType              `json:"event_type" db:"event_type"`
	UserAgent string                 `json:"user_agent" db:"user_agent"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}

// SecurityEvent is append-only.
type SecurityEvent struct {
	ID        string                 `json:"id" db:"id"`
	UserID    string                 `json:"user_id" db:"user_id"`
	EventType string                 `json:"event_type" db:"event_type"`
	Details   map[string]interface{} `json:"details,omitempty" db:"details"`
	Notified  bool                   `json:"notified" db:"notified"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}
