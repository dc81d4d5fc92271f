// internal/handlers/account/mfa_handler.go
package account

import (
	"errors"
	"io"
	"net/http"

	"authgate-service/internal/domain/auth"
	"authgate-service/internal/middleware"
	"authgate-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// ========== Second Factor Management ==========

func (h *AccountHandler) EnrollTOTP(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var req auth.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	enrollment, err := tab.Machine.EnrollTOTP(c.Request.Context(), req.FriendlyName)
	if err != nil {
		response.FromError(c, "enrollment failed", err)
		return
	}

	response.Success(c, http.StatusCreated, "scan the code and verify", enrollment)
}

func (h *AccountHandler) VerifyEnrollment(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	var req auth.VerifyEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := tab.Machine.VerifyEnrollment(c.Request.Context(), req.FactorID, req.Code); err != nil {
		response.FromError(c, "verification failed", err)
		return
	}

	response.Success(c, http.StatusOK, "two-factor authentication enabled", nil)
}

func (h *AccountHandler) Unenroll(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	if err := tab.Machine.UnenrollFactor(c.Request.Context(), c.Param("factor_id")); err != nil {
		response.FromError(c, "failed to remove factor", err)
		return
	}

	response.Success(c, http.StatusOK, "two-factor authentication disabled", nil)
}

func (h *AccountHandler) ListFactors(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	factors, err := tab.Machine.ListFactors(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to list factors", err)
		return
	}

	response.Success(c, http.StatusOK, "factors", factors)
}

func (h *AccountHandler) AssuranceLevel(c *gin.Context) {
	tab := middleware.MustGetTab(c)

	aal, err := tab.Machine.AssuranceLevel(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to read assurance level", err)
		return
	}

	response.Success(c, http.StatusOK, "assurance level", aal)
}
