// internal/middleware/guard_middleware.go
package middleware

import (
	"net/http"

	"authgate-service/internal/guard"
	"authgate-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// RouteGuard admits the request only when the tab could show location.
// MUST be used after Tab().
//
// A tab still resolving its session gets 503 with Retry-After; the page keeps
// its placeholder up. A redirect is 401 for a missing user and 403 for a
// missing second factor.
func RouteGuard(location string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tab := MustGetTab(c)
		decision := guard.Check(c.Request.Context(), tab.Machine, location)
		c.Set(ctxDecision, decision)

		switch decision.Outcome {
		case guard.Placeholder:
			c.Header("Retry-After", "1")
			response.Error(c, http.StatusServiceUnavailable, "auth state not ready", nil, decision)
			return

		case guard.Redirect:
			code := http.StatusUnauthorized
			message := "authentication required"
			if decision.Reason == guard.ReasonMFARequired {
				code = http.StatusForbidden
				message = "second factor required"
			}
			response.Redirect(c, code, message, decision.To)
			return
		}

		c.Next()
	}
}
