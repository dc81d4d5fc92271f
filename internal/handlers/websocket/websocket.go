// internal/handlers/websocket/websocket.go
package handlers

import (
	"net/http"
	"time"

	"authgate-service/internal/middleware"
	"authgate-service/internal/pkg/response"
	"authgate-service/internal/tabs"
	ws "authgate-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	hub      *ws.Hub
	registry *tabs.Registry
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler accepts upgrades only from allowedOrigins. An empty
// list accepts same-origin requests only.
func NewWebSocketHandler(hub *ws.Hub, registry *tabs.Registry, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	h := &WebSocketHandler{hub: hub, registry: registry, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return middleware.OriginAllowed(allowedOrigins, r.Header.Get("Origin"))
		}
	}
	return h
}

// HandleConnection binds a websocket to the calling tab. MUST be used after
// TabMiddleware.Tab().
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed",
			zap.Error(err),
			zap.String("tab_id", tab.ID),
			zap.String("ip", c.ClientIP()),
		)
		return
	}

	client := ws.NewClient(h.hub, conn, &ws.ClientInfo{TabID: tab.ID, BrowserID: tab.BrowserID})
	h.hub.Register <- client

	// The page may have missed changes between opening the tab and
	// connecting; start it from the current state.
	client.SendMessage(tabs.StateMessage(tab.Machine.Snapshot()))

	go client.WritePump()
	go client.ReadPump()
}

// GetStats returns connection statistics
func (h *WebSocketHandler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"total_connections":  h.hub.TotalClients(),
		"connected_browsers": h.hub.ConnectedBrowsers(),
		"tabs":               h.registry.Stats(),
		"timestamp":          time.Now(),
	}

	response.Success(c, http.StatusOK, "WebSocket stats", stats)
}
