// internal/websocket/handler/tab.go
package handlers

import (
	"context"
	"fmt"

	wstypes "authgate-service/internal/domain/websocket"
	"authgate-service/internal/guard"
	"authgate-service/internal/routes"
	"authgate-service/internal/tabs"
	ws "authgate-service/internal/websocket"

	"go.uber.org/zap"
)

// TabLookup resolves the tab a connection is bound to.
type TabLookup interface {
	Lookup(tabID string) (*tabs.Tab, bool)
}

// TabHandler answers a tab's view changes with a guard decision and lets the
// page dismiss an auth error.
type TabHandler struct {
	tabs   TabLookup
	logger *zap.Logger
}

func NewTabHandler(lookup TabLookup, logger *zap.Logger) *TabHandler {
	return &TabHandler{tabs: lookup, logger: logger}
}

func (h *TabHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{
		wstypes.EventTypeView,
		wstypes.EventTypeClearError,
	}
}

func (h *TabHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	tab, ok := h.tabs.Lookup(client.TabID())
	if !ok {
		client.SendError("tab_not_found", "Tab is not open", "")
		return ws.ErrTabNotFound
	}

	switch msg.Type {
	case wstypes.EventTypeView:
		return h.handleView(ctx, client, tab, msg)

	case wstypes.EventTypeClearError:
		tab.Machine.ClearError()
		return nil

	default:
		return fmt.Errorf("unsupported event type: %s", msg.Type)
	}
}

func (h *TabHandler) handleView(ctx context.Context, client *ws.Client, tab *tabs.Tab, msg *wstypes.WSMessage) error {
	var req wstypes.ViewRequest
	if err := ws.DecodeData(msg.Data, &req); err != nil || req.Path == "" {
		client.SendError("invalid_request", "Invalid view request", "")
		return ws.ErrInvalidInput
	}

	path := routes.PathOf(req.Path)
	tab.Machine.SetView(path)
	decision := guard.ForView(ctx, tab.Machine, path, req.From)

	h.logger.Debug("view checked",
		zap.String("tab_id", tab.ID),
		zap.String("path", path),
		zap.String("outcome", string(decision.Outcome)),
		zap.String("reason", decision.Reason))

	reply := wstypes.NewMessage(wstypes.EventTypeView, decision)
	reply.Metadata = map[string]interface{}{"request_id": msg.ID, "path": path}
	client.SendMessage(reply)

	if decision.Outcome == guard.Redirect {
		tab.Machine.SetView(decision.To)
		client.SendMessage(wstypes.NewMessage(wstypes.EventTypeNavigate, wstypes.NavigateData{To: decision.To}))
	}
	return nil
}
