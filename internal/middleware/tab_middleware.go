// internal/middleware/tab_middleware.go
package middleware

import (
	"net/http"
	"strings"

	"authgate-service/internal/pkg/response"
	"authgate-service/internal/tabs"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

const (
	BrowserCookie = "bid"
	TabHeader     = "X-Tab-ID"
	TabQuery      = "tab"

	browserCookieMaxAge = 365 * 24 * 60 * 60
)

// TabResolver finds an open tab of a browser.
type TabResolver interface {
	Get(browserID, tabID string) (*tabs.Tab, error)
}

type TabMiddleware struct {
	tabs         TabResolver
	secureCookie bool
}

func NewTabMiddleware(resolver TabResolver, secureCookie bool) *TabMiddleware {
	return &TabMiddleware{tabs: resolver, secureCookie: secureCookie}
}

// Browser identifies the browser by its cookie, issuing one on first visit.
func (m *TabMiddleware) Browser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(BrowserCookie)
		if err != nil || strings.TrimSpace(id) == "" {
			id = ulid.Make().String()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(BrowserCookie, id, browserCookieMaxAge, "/", "", m.secureCookie, true)
		}
		c.Set(ctxBrowserID, id)
		c.Next()
	}
}

// Tab resolves the calling tab. MUST be used after Browser().
func (m *TabMiddleware) Tab() gin.HandlerFunc {
	return func(c *gin.Context) {
		tabID := extractTabID(c)
		if tabID == "" {
			response.Error(c, http.StatusBadRequest, "missing tab id", nil)
			return
		}

		tab, err := m.tabs.Get(GetBrowserID(c), tabID)
		if err != nil {
			response.Error(c, http.StatusNotFound, "tab is not open", err)
			return
		}

		c.Set(ctxTab, tab)
		c.Next()
	}
}

// extractTabID reads the header first, then the query parameter used by
// websocket upgrades and redirect landings.
func extractTabID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(TabHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(c.Query(TabQuery))
}
