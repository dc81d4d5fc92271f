// internal/middleware/helpers.go
package middleware

import (
	"authgate-service/internal/guard"
	"authgate-service/internal/tabs"

	"github.com/gin-gonic/gin"
)

const (
	ctxBrowserID = "browser_id"
	ctxTab       = "tab"
	ctxDecision  = "guard_decision"
)

// GetBrowserID gets the browser id set by Browser()
func GetBrowserID(c *gin.Context) string {
	return c.GetString(ctxBrowserID)
}

// GetTab gets the tab resolved by Tab()
func GetTab(c *gin.Context) (*tabs.Tab, bool) {
	v, exists := c.Get(ctxTab)
	if !exists {
		return nil, false
	}
	tab, ok := v.(*tabs.Tab)
	return tab, ok
}

// MustGetTab gets the tab from context or panics
func MustGetTab(c *gin.Context) *tabs.Tab {
	tab, ok := GetTab(c)
	if !ok {
		panic("tab not found in context")
	}
	return tab
}

// GetDecision gets the guard decision recorded by RouteGuard
func GetDecision(c *gin.Context) (guard.Decision, bool) {
	v, exists := c.Get(ctxDecision)
	if !exists {
		return guard.Decision{}, false
	}
	d, ok := v.(guard.Decision)
	return d, ok
}
