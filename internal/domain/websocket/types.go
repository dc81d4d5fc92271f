// internal/domain/websocket/types.go
package websocket

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType represents different real-time event types
type EventType string

const (
	// Connection events
	EventTypePing         EventType = "ping"
	EventTypePong         EventType = "pong"
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	EventTypeError        EventType = "error"

	// Auth state (server -> client)
	EventTypeAuthState EventType = "auth:state"

	// Navigation directives (server -> client)
	EventTypeNavigate EventType = "nav:navigate"
	EventTypeReload   EventType = "nav:reload"

	// Notices relayed from other tabs (server -> client)
	EventTypeSyncNotice EventType = "sync:notice"

	// Tab events (client -> server)
	EventTypeView       EventType = "tab:view"
	EventTypeClearError EventType = "auth:clear_error"

	// Subscription events
	EventTypeSubscribe   EventType = "subscribe"
	EventTypeUnsubscribe EventType = "unsubscribe"
)

// WSMessage is the universal message format
type WSMessage struct {
	Type      EventType              `json:"type"`
	Data      interface{}            `json:"data,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	ID        string                 `json:"id,omitempty"`
}

// Subscription channels that clients can subscribe to
type ChannelType string

const (
	ChannelAuth       ChannelType = "auth"
	ChannelNavigation ChannelType = "navigation"
	ChannelSync       ChannelType = "sync"
)

// ChannelFor is the channel an outgoing event is delivered on.
func ChannelFor(t EventType) ChannelType {
	switch t {
	case EventTypeNavigate, EventTypeReload:
		return ChannelNavigation
	case EventTypeSyncNotice:
		return ChannelSync
	}
	return ChannelAuth
}

type SubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

type UnsubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// StateData is the part of a tab's auth state the page may see.
type StateData struct {
	Status           string      `json:"status"`
	IsAuthenticated  bool        `json:"is_authenticated"`
	IsLoading        bool        `json:"is_loading"`
	Error            string      `json:"error,omitempty"`
	MFAFactorID      string      `json:"mfa_factor_id,omitempty"`
	CurrentSessionID string      `json:"current_session_id,omitempty"`
	User             interface{} `json:"user,omitempty"`
	Version          uint64      `json:"version"`
}

type NavigateData struct {
	To string `json:"to"`
}

// NoticeData relays a PROFILE_UPDATE or SETTINGS_UPDATE from another tab.
type NoticeData struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// ViewRequest tells the server which path the tab is showing.
type ViewRequest struct {
	Path string `json:"path"`
	From string `json:"from,omitempty"`
}

// Helper to create messages
func NewMessage(eventType EventType, data interface{}) *WSMessage {
	return &WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		ID:        ulid.Make().String(),
	}
}

func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ParseMessage(data []byte) (*WSMessage, error) {
	var msg WSMessage
	err := json.Unmarshal(data, &msg)
	return &msg, err
}
