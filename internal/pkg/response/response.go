// internal/pkg/response/response.go
package response

import (
	"net/http"
	"strconv"
	"time"

	xerrors "authgate-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response defines the standard API response format.
type Response struct {
	Success  bool        `json:"success"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data,omitempty"`
	Error    string      `json:"error,omitempty"`
	Redirect string      `json:"redirect,omitempty"`
}

// Success sends a successful response with a message and optional data.
func Success(c *gin.Context, status int, message string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}

	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Navigate sends a successful response that also moves the tab.
func Navigate(c *gin.Context, status int, message, location string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}

	c.JSON(status, Response{
		Success:  true,
		Message:  message,
		Data:     data,
		Redirect: location,
	})
}

// Error sends a standardized error response.
func Error(c *gin.Context, code int, message string, err error, data ...interface{}) {
	// CRITICAL: Abort FIRST before writing response
	c.Abort()

	response := Response{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
	}

	if len(data) > 0 {
		response.Data = data[0]
	}

	c.JSON(code, response)
}

// Redirect aborts with a navigation instruction for the tab.
func Redirect(c *gin.Context, code int, message, location string) {
	c.Abort()
	c.JSON(code, Response{
		Success:  false,
		Message:  message,
		Redirect: location,
	})
}

// FromError maps the error taxonomy onto HTTP status codes.
func FromError(c *gin.Context, message string, err error) {
	var rl *xerrors.RateLimitError
	if xerrors.As(err, &rl) {
		c.Header("Retry-After", formatSeconds(rl.Remaining))
		Error(c, http.StatusTooManyRequests, message, err, gin.H{
			"remaining_seconds": int(rl.Remaining.Round(time.Second).Seconds()),
		})
		return
	}
	Error(c, StatusFor(err), message, err)
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case xerrors.Is(err, xerrors.ErrInvalidInput):
		return http.StatusBadRequest
	case xerrors.Is(err, xerrors.ErrInvalidCredentials),
		xerrors.Is(err, xerrors.ErrNotAuthenticated),
		xerrors.Is(err, xerrors.ErrNoProviderSession):
		return http.StatusUnauthorized
	case xerrors.Is(err, xerrors.ErrEmailNotConfirmed):
		return http.StatusForbidden
	case xerrors.Is(err, xerrors.ErrUserAlreadyRegistered),
		xerrors.Is(err, xerrors.ErrNoCurrentSession),
		xerrors.Is(err, xerrors.ErrSessionSuperseded),
		xerrors.Is(err, xerrors.ErrMFANotPending):
		return http.StatusConflict
	case xerrors.Is(err, xerrors.ErrWeakPassword),
		xerrors.IsMFAError(err):
		return http.StatusUnprocessableEntity
	case xerrors.Is(err, xerrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case xerrors.Is(err, xerrors.ErrNotFound):
		return http.StatusNotFound
	case xerrors.Is(err, xerrors.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError sends a 400 Bad Request response for invalid input.
func ValidationError(c *gin.Context, message string, err error) {
	Error(c, http.StatusBadRequest, message, err)
}

// Unauthorized sends a 401 Unauthorized response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message, nil)
}

// NotFound sends a 404 Not Found response.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message, nil)
}

func formatSeconds(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
