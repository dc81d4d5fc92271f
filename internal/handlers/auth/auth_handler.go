// internal/handlers/auth/auth_handler.go
package auth

import (
	"net/http"

	"authgate-service/internal/domain/auth"
	"authgate-service/internal/middleware"
	xerrors "authgate-service/internal/pkg/errors"
	"authgate-service/internal/pkg/response"
	"authgate-service/internal/routes"
	"authgate-service/internal/tabs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandler drives the calling tab's state machine through the sign-in
// flows. Every route runs behind TabMiddleware.Tab().
type AuthHandler struct {
	logger *zap.Logger
}

func NewAuthHandler(logger *zap.Logger) *AuthHandler {
	return &AuthHandler{logger: logger}
}

// ========== Registration ==========

func (h *AuthHandler) Register(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	res, err := tab.Machine.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Warn("registration failed",
			zap.String("tab_id", tab.ID),
			zap.String("email", req.Email),
			zap.Error(err),
		)
		response.FromError(c, "registration failed", err)
		return
	}

	if res.NeedsVerification {
		response.Success(c, http.StatusCreated, "check your email to confirm the account", res)
		return
	}
	response.Navigate(c, http.StatusCreated, "registration successful", routes.Dashboard, res)
}

// ========== Login ==========

func (h *AuthHandler) Login(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	res, err := tab.Machine.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Warn("login failed",
			zap.String("tab_id", tab.ID),
			zap.String("email", req.Email),
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		if xerrors.Is(err, xerrors.ErrInvalidCredentials) {
			response.Error(c, http.StatusUnauthorized, "login failed", err, gin.H{
				"remaining_attempts": tab.Machine.RemainingAttempts(req.Email),
			})
			return
		}
		response.FromError(c, "login failed", err)
		return
	}

	h.finish(c, tab, res, req.From, "login successful")
}

// finish answers a completed first factor: a pending confirmation stays put,
// a pending second factor moves to the MFA screen, anything else lands.
func (h *AuthHandler) finish(c *gin.Context, tab *tabs.Tab, res *auth.LoginResult, from, message string) {
	switch {
	case res.NeedsVerification:
		response.Success(c, http.StatusOK, "email not confirmed", res)
	case res.NeedsMFA:
		to := routes.WithFrom(routes.MFAVerify, from)
		tab.Machine.SetView(to)
		response.Navigate(c, http.StatusOK, "second factor required", to, res)
	default:
		h.logger.Info("user logged in", zap.String("tab_id", tab.ID))
		to := routes.PostLogin(from)
		tab.Machine.SetView(to)
		response.Navigate(c, http.StatusOK, message, to, res)
	}
}

// ========== Second Factor ==========

func (h *AuthHandler) VerifyMFA(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var req auth.MFACodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := tab.Machine.CompleteMFALogin(c.Request.Context(), req.Code); err != nil {
		h.logger.Warn("mfa verification failed", zap.String("tab_id", tab.ID), zap.Error(err))
		response.FromError(c, "verification failed", err)
		return
	}

	to := routes.PostLogin(req.From)
	tab.Machine.SetView(to)
	response.Navigate(c, http.StatusOK, "verification successful", to, nil)
}

func (h *AuthHandler) CancelMFA(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	if err := tab.Machine.CancelMFA(c.Request.Context()); err != nil {
		response.FromError(c, "cancel failed", err)
		return
	}

	tab.Machine.SetView(routes.Login)
	response.Navigate(c, http.StatusOK, "signed out", routes.Login, nil)
}

// ========== Logout ==========

// Logout always leaves the tab signed out. A failed remote sign-out is
// reported but does not keep the user.
func (h *AuthHandler) Logout(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	if err := tab.Machine.Logout(c.Request.Context()); err != nil {
		h.logger.Warn("remote sign-out failed", zap.String("tab_id", tab.ID), zap.Error(err))
	}

	tab.Machine.SetView(routes.Login)
	response.Navigate(c, http.StatusOK, "logout successful", routes.Login, nil)
}

// ========== Redirect Flows ==========

func (h *AuthHandler) StartOAuth(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var req auth.OAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	url, err := tab.Machine.SignInWithOAuth(c.Request.Context(), req.Provider)
	if err != nil {
		response.FromError(c, "oauth sign-in failed", err)
		return
	}

	response.Success(c, http.StatusOK, "continue at provider", gin.H{"url": url})
}

func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var req auth.TokenPairRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	res, err := tab.Machine.HandleOAuthCallback(c.Request.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		response.FromError(c, "oauth sign-in failed", err)
		return
	}
	h.finish(c, tab, res, req.From, "login successful")
}

func (h *AuthHandler) ConfirmEmail(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var req auth.TokenPairRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	res, err := tab.Machine.ConfirmEmail(c.Request.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		response.FromError(c, "email confirmation failed", err)
		return
	}
	h.finish(c, tab, res, req.From, "email confirmed")
}

// Recovery adopts the session from a password-reset link. A signed-in
// result lands on the reset screen rather than the dashboard.
func (h *AuthHandler) Recovery(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var req auth.TokenPairRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	res, err := tab.Machine.HandleRecovery(c.Request.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		response.FromError(c, "recovery failed", err)
		return
	}
	if res.NeedsMFA {
		h.finish(c, tab, res, routes.ResetPassword, "")
		return
	}

	tab.Machine.SetView(routes.ResetPassword)
	response.Navigate(c, http.StatusOK, "choose a new password", routes.ResetPassword, res)
}

// ========== Email Links ==========

func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var req auth.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := tab.Machine.ResetPassword(c.Request.Context(), req.Email); err != nil {
		response.FromError(c, "password reset failed", err)
		return
	}

	response.Success(c, http.StatusOK, "if the account exists, a reset link has been sent", nil)
}

func (h *AuthHandler) ResendVerification(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var req auth.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := tab.Machine.ResendVerification(c.Request.Context(), req.Email); err != nil {
		response.FromError(c, "resend failed", err)
		return
	}

	response.Success(c, http.StatusOK, "verification email sent", nil)
}
