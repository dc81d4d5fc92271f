// internal/handlers/tab/tab_handler.go
package tab

import (
	"context"
	"net/http"

	"authgate-service/internal/domain/websocket"
	"authgate-service/internal/guard"
	"authgate-service/internal/middleware"
	"authgate-service/internal/pkg/response"
	"authgate-service/internal/routes"
	"authgate-service/internal/tabs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Registry opens and closes tabs.
type Registry interface {
	Open(ctx context.Context, browserID, userAgent string) (*tabs.Tab, error)
	Close(tabID string)
}

type TabHandler struct {
	registry Registry
	logger   *zap.Logger
}

func NewTabHandler(registry Registry, logger *zap.Logger) *TabHandler {
	return &TabHandler{registry: registry, logger: logger}
}

type openResponse struct {
	TabID     string              `json:"tab_id"`
	BrowserID string              `json:"browser_id"`
	Device    string              `json:"device"`
	State     websocket.StateData `json:"state"`
}

// Open starts a tab for the calling browser and returns its resolved state.
// MUST be used after TabMiddleware.Browser().
func (h *TabHandler) Open(c *gin.Context) {
	tab, err := h.registry.Open(c.Request.Context(), middleware.GetBrowserID(c), c.GetHeader("User-Agent"))
	if err != nil {
		response.FromError(c, "failed to open tab", err)
		return
	}

	response.Success(c, http.StatusCreated, "tab opened", openResponse{
		TabID:     tab.ID,
		BrowserID: tab.BrowserID,
		Device:    tab.Device.Label(),
		State:     tabs.StateData(tab.Machine.Snapshot()),
	})
}

func (h *TabHandler) State(c *gin.Context) {
	tab := middleware.MustGetTab(c)
	response.Success(c, http.StatusOK, "tab state", tabs.StateData(tab.Machine.Snapshot()))
}

// View records the path the tab is showing and answers with the gate for it.
// A redirect decision moves the tab's view along with it.
func (h *TabHandler) View(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var req websocket.ViewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	path := routes.PathOf(req.Path)
	tab.Machine.SetView(path)
	decision := guard.ForView(c.Request.Context(), tab.Machine, path, req.From)
	if decision.Outcome == guard.Redirect {
		tab.Machine.SetView(decision.To)
		response.Navigate(c, http.StatusOK, "redirect", decision.To, decision)
		return
	}

	response.Success(c, http.StatusOK, string(decision.Outcome), decision)
}

func (h *TabHandler) ClearError(c *gin.Context) {
	tab := middleware.MustGetTab(c)
	tab.Machine.ClearError()
	response.Success(c, http.StatusOK, "error cleared", tabs.StateData(tab.Machine.Snapshot()))
}

// Close ends the tab. The browser's stored session is untouched.
func (h *TabHandler) Close(c *gin.Context) {
	tab := middleware.MustGetTab(c)
	h.registry.Close(tab.ID)
	response.Success(c, http.StatusOK, "tab closed", nil)
}
