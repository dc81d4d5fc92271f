// internal/handlers/account/account_handler.go
package account

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"authgate-service/internal/domain/auth"
	"authgate-service/internal/middleware"
	"authgate-service/internal/pkg/response"
	"authgate-service/internal/routes"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// History reads the activity and security logs.
type History interface {
	RecentActivity(ctx context.Context, userID string, types []auth.EventType, limit int) ([]auth.ActivityLogEntry, error)
	RecentSecurityEvents(ctx context.Context, userID string, limit int) ([]auth.SecurityEvent, error)
}

// AccountHandler serves the signed-in user's account. Routes run behind
// RouteGuard, so the tab holds a committed, fully verified user.
type AccountHandler struct {
	history History
	logger  *zap.Logger
}

func NewAccountHandler(history History, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{history: history, logger: logger}
}

// ========== Profile ==========

func (h *AccountHandler) GetMe(c *gin.Context) {
	tab := middleware.MustGetTab(c)
	response.Success(c, http.StatusOK, "current user", auth.NewUserInfo(tab.Machine.Snapshot().User))
}

func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var req auth.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := tab.Machine.UpdateProfile(c.Request.Context(), req.Data); err != nil {
		response.FromError(c, "profile update failed", err)
		return
	}

	response.Success(c, http.StatusOK, "profile updated", auth.NewUserInfo(tab.Machine.Snapshot().User))
}

func (h *AccountHandler) UpdateSettings(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var req auth.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := tab.Machine.UpdateSettings(c.Request.Context(), req.Settings); err != nil {
		response.FromError(c, "settings update failed", err)
		return
	}

	response.Success(c, http.StatusOK, "settings updated", req.Settings)
}

// ========== Credentials ==========

func (h *AccountHandler) UpdatePassword(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var req auth.UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := tab.Machine.UpdatePassword(c.Request.Context(), req.Password); err != nil {
		response.FromError(c, "password change failed", err)
		return
	}

	response.Success(c, http.StatusOK, "password changed successfully", nil)
}

// UpdateEmail starts an address change. The new address takes effect once
// the provider's confirmation link is followed.
func (h *AccountHandler) UpdateEmail(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var req auth.UpdateEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := tab.Machine.UpdateEmail(c.Request.Context(), req.Email); err != nil {
		response.FromError(c, "email change failed", err)
		return
	}

	response.Success(c, http.StatusOK, "check your inbox to confirm the new address", auth.NewUserInfo(tab.Machine.Snapshot().User))
}

func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	tab := middleware.MustGetTab(c)
	userID := tab.Machine.Snapshot().User.ID

	if err := tab.Machine.DeleteAccount(c.Request.Context()); err != nil {
		h.logger.Error("account deletion failed", zap.String("user_id", userID), zap.Error(err))
		response.FromError(c, "account deletion failed", err)
		return
	}

	h.logger.Info("account deleted", zap.String("user_id", userID))
	tab.Machine.SetView(routes.Login)
	response.Navigate(c, http.StatusOK, "account deleted", routes.Login, nil)
}

// ========== Sessions ==========

func (h *AccountHandler) ListSessions(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	sessions, err := tab.Machine.ListSessions(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to list sessions", err)
		return
	}

	response.Success(c, http.StatusOK, "active sessions", sessions)
}

// RevokeSession signs out one session. Revoking the caller's own session is
// a logout.
func (h *AccountHandler) RevokeSession(c *gin.Context) {
	tab := middleware.MustGetTab(c)
	id := c.Param("session_id")
	current := tab.Machine.Snapshot().CurrentSessionID

	if err := tab.Machine.SignOutSession(c.Request.Context(), id); err != nil {
		response.FromError(c, "failed to revoke session", err)
		return
	}

	if id == current {
		tab.Machine.SetView(routes.Login)
		response.Navigate(c, http.StatusOK, "signed out", routes.Login, nil)
		return
	}
	response.Success(c, http.StatusOK, "session revoked", nil)
}

func (h *AccountHandler) RevokeOtherSessions(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	n, err := tab.Machine.SignOutAllOtherSessions(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to sign out other sessions", err)
		return
	}

	response.Success(c, http.StatusOK, "other sessions signed out", gin.H{"revoked": n})
}

// ========== History ==========

func (h *AccountHandler) Activity(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var types []auth.EventType
	if raw := c.Query("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, auth.EventType(t))
			}
		}
	}

	entries, err := h.history.RecentActivity(c.Request.Context(), tab.Machine.Snapshot().User.ID, types, limitParam(c))
	if err != nil {
		response.FromError(c, "failed to load activity", err)
		return
	}

	response.Success(c, http.StatusOK, "recent activity", entries)
}

func (h *AccountHandler) SecurityEvents(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	events, err := h.history.RecentSecurityEvents(c.Request.Context(), tab.Machine.Snapshot().User.ID, limitParam(c))
	if err != nil {
		response.FromError(c, "failed to load security events", err)
		return
	}

	response.Success(c, http.StatusOK, "security events", events)
}

func limitParam(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
