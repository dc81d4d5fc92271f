package websocket

import (
	"context"
	"testing"

	wstypes "authgate-service/internal/domain/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type viewHandler struct{}

func (viewHandler) HandleMessage(context.Context, *Client, *wstypes.WSMessage) error { return nil }

func (viewHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{wstypes.EventTypeView, wstypes.EventTypeClearError}
}

func TestHandlerRegistryRoutesTabEvents(t *testing.T) {
	r := NewHandlerRegistry()
	r.Register(viewHandler{})

	h, ok := r.GetHandler(wstypes.EventTypeView)
	require.True(t, ok)
	assert.IsType(t, viewHandler{}, h)

	_, ok = r.GetHandler(wstypes.EventTypePing)
	assert.False(t, ok)
}

func TestHandlerRegistryRejectsSecondClaim(t *testing.T) {
	r := NewHandlerRegistry()
	r.Register(viewHandler{})
	assert.Panics(t, func() { r.Register(viewHandler{}) })
}
