// Package tabsync relays small tagged messages between tabs of the same
// browser. Delivery is best-effort and at-most-once. Messages are not ordered
// across senders and nothing is acknowledged or retried; a message sent while
// a tab is not listening is lost.
package tabsync

import (
	"context"
	"time"
)

type MessageType string

const (
	Logout         MessageType = "LOGOUT"
	Login          MessageType = "LOGIN"
	AuthChange     MessageType = "AUTH_CHANGE"
	ProfileUpdate  MessageType = "PROFILE_UPDATE"
	SettingsUpdate MessageType = "SETTINGS_UPDATE"
)

func (t MessageType) Valid() bool {
	switch t {
	case Logout, Login, AuthChange, ProfileUpdate, SettingsUpdate:
		return true
	}
	return false
}

type Message struct {
	ID      string                 `json:"id"`
	Type    MessageType            `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Sender  string                 `json:"sender"`
	SentAt  time.Time              `json:"sent_at"`
}

type Handler func(Message)

// Transport is one delivery path between tabs.
type Transport interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
	Subscribe(fn Handler) (cancel func(), err error)
}
