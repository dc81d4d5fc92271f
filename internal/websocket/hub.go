// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	wstypes "authgate-service/internal/domain/websocket"

	"go.uber.org/zap"
)

// Hub holds at most one connection per tab. A tab that reconnects replaces
// its previous connection.
type Hub struct {
	// Registered clients by tab ID, and tab IDs by browser
	clients  map[string]*Client
	browsers map[string]map[string]struct{}
	mu       sync.RWMutex

	// Registration/unregistration
	Register   chan *Client
	unregister chan *Client
	done       chan struct{}
	doneOnce   sync.Once

	// Handler registry for modular message handling
	handlerRegistry *HandlerRegistry

	onDisconnect func(tabID string)
	logger       *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:         make(map[string]*Client),
		browsers:        make(map[string]map[string]struct{}),
		Register:        make(chan *Client),
		unregister:      make(chan *Client),
		done:            make(chan struct{}),
		handlerRegistry: NewHandlerRegistry(),
		logger:          logger,
	}
}

// OnDisconnect is called with the tab id after its connection is gone.
// Set it before Run.
func (h *Hub) OnDisconnect(fn func(tabID string)) {
	h.onDisconnect = fn
}

// RegisterHandler registers a message handler
func (h *Hub) RegisterHandler(handler MessageHandler) {
	h.handlerRegistry.Register(handler)
}

// HandleClientMessage processes a message from a client using registered handlers
func (h *Hub) HandleClientMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) error {
	handler, exists := h.handlerRegistry.GetHandler(msg.Type)
	if !exists {
		return nil // Will be handled by client's default handler
	}
	return handler.HandleMessage(ctx, client, msg)
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// Unregister drops client. It never blocks once the hub has stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if old, ok := h.clients[client.tabID]; ok && old != client {
		old.Close()
	}
	h.clients[client.tabID] = client
	if h.browsers[client.browserID] == nil {
		h.browsers[client.browserID] = make(map[string]struct{})
	}
	h.browsers[client.browserID][client.tabID] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("tab connected",
		zap.String("tab_id", client.tabID),
		zap.String("browser_id", client.browserID),
		zap.Int("total", total))

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"tab_id":     client.tabID,
		"browser_id": client.browserID,
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	current, ok := h.clients[client.tabID]
	if !ok || current != client {
		h.mu.Unlock()
		client.Close()
		return
	}
	delete(h.clients, client.tabID)
	if tabs, ok := h.browsers[client.browserID]; ok {
		delete(tabs, client.tabID)
		if len(tabs) == 0 {
			delete(h.browsers, client.browserID)
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	client.Close()
	h.logger.Info("tab disconnected",
		zap.String("tab_id", client.tabID),
		zap.String("browser_id", client.browserID),
		zap.Int("total", total))

	if h.onDisconnect != nil {
		h.onDisconnect(client.tabID)
	}
}

// SendToTab delivers msg if the tab is connected and subscribed to the
// message's channel.
func (h *Hub) SendToTab(tabID string, msg *wstypes.WSMessage) bool {
	h.mu.RLock()
	client, ok := h.clients[tabID]
	h.mu.RUnlock()
	if !ok || !client.IsSubscribed(wstypes.ChannelFor(msg.Type)) {
		return false
	}
	return client.SendMessage(msg)
}

func (h *Hub) IsTabConnected(tabID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[tabID]
	return ok
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ConnectedBrowsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.browsers)
}

// DisconnectTab tells the tab why and closes its connection.
func (h *Hub) DisconnectTab(tabID, reason string) {
	h.mu.RLock()
	client, ok := h.clients[tabID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeDisconnected, map[string]interface{}{
		"reason": reason,
	}))
	client.Close()
}

func (h *Hub) shutdown() {
	h.doneOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.clients {
		client.Close()
	}
}
