// internal/app/router.go
package app

import (
	accountHandler "authgate-service/internal/handlers/account"
	authHandler "authgate-service/internal/handlers/auth"
	tabHandler "authgate-service/internal/handlers/tab"
	wsHandler "authgate-service/internal/handlers/websocket"
	"authgate-service/internal/middleware"
	"authgate-service/internal/routes"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	AuthHandler    *authHandler.AuthHandler
	AccountHandler *accountHandler.AccountHandler
	TabHandler     *tabHandler.TabHandler
	WSHandler      *wsHandler.WebSocketHandler
	TabMiddleware  *middleware.TabMiddleware
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})
	api.GET("/ws/stats", h.WSHandler.GetStats)

	browser := api.Group("")
	browser.Use(h.TabMiddleware.Browser())

	// ==================== Tabs ====================
	browser.POST("/tabs", h.TabHandler.Open)

	tab := browser.Group("")
	tab.Use(h.TabMiddleware.Tab())
	{
		tab.GET("/tabs/state", h.TabHandler.State)
		tab.POST("/tabs/view", h.TabHandler.View)
		tab.POST("/tabs/clear-error", h.TabHandler.ClearError)
		tab.DELETE("/tabs", h.TabHandler.Close)
	}

	// ==================== WebSocket ====================
	r.GET("/ws", h.TabMiddleware.Browser(), h.TabMiddleware.Tab(), h.WSHandler.HandleConnection)

	// ==================== Auth Flows ====================
	authRoutes := tab.Group("/auth")
	{
		authRoutes.POST("/register", h.AuthHandler.Register)
		authRoutes.POST("/login", h.AuthHandler.Login)
		authRoutes.POST("/logout", h.AuthHandler.Logout)
		authRoutes.POST("/mfa/verify", h.AuthHandler.VerifyMFA)
		authRoutes.POST("/mfa/cancel", h.AuthHandler.CancelMFA)
		authRoutes.POST("/oauth", h.AuthHandler.StartOAuth)
		authRoutes.POST("/callback", h.AuthHandler.OAuthCallback)
		authRoutes.POST("/confirm", h.AuthHandler.ConfirmEmail)
		authRoutes.POST("/recovery", h.AuthHandler.Recovery)
		authRoutes.POST("/forgot-password", h.AuthHandler.ForgotPassword)
		authRoutes.POST("/resend-verification", h.AuthHandler.ResendVerification)
	}

	// ==================== Account (guarded) ====================
	account := tab.Group("/account")
	account.Use(middleware.RouteGuard(routes.Settings))
	{
		account.GET("/me", h.AccountHandler.GetMe)
		account.PUT("/profile", h.AccountHandler.UpdateProfile)
		account.PUT("/settings", h.AccountHandler.UpdateSettings)
		account.PUT("/password", h.AccountHandler.UpdatePassword)
		account.PUT("/email", h.AccountHandler.UpdateEmail)
		account.DELETE("", h.AccountHandler.DeleteAccount)

		account.GET("/sessions", h.AccountHandler.ListSessions)
		account.DELETE("/sessions/:session_id", h.AccountHandler.RevokeSession)
		account.POST("/sessions/revoke-others", h.AccountHandler.RevokeOtherSessions)

		account.GET("/activity", h.AccountHandler.Activity)
		account.GET("/security-events", h.AccountHandler.SecurityEvents)

		account.GET("/mfa/factors", h.AccountHandler.ListFactors)
		account.GET("/mfa/aal", h.AccountHandler.AssuranceLevel)
		account.POST("/mfa/enroll", h.AccountHandler.EnrollTOTP)
		account.POST("/mfa/verify", h.AccountHandler.VerifyEnrollment)
		account.DELETE("/mfa/factors/:factor_id", h.AccountHandler.Unenroll)
	}
}
