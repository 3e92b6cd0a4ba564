package platformerrors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// HTTPErrorResponse represents the standard error response format.
type HTTPErrorResponse struct {
	Error *HTTPErrorDetail `json:"error"`
}

// HTTPErrorDetail contains error details for HTTP responses.
type HTTPErrorDetail struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError writes err as the JSON error envelope and aborts the gin chain.
// Errors that are not PlatformErrors are reported as internal errors.
func WriteError(c *gin.Context, err error, log zerolog.Logger) {
	platformErr := GetPlatformError(err)
	if platformErr == nil {
		message := "unknown error"
		if err != nil {
			message = err.Error()
		}
		platformErr = NewError(c.Request.Context(), LayerHandler, ErrorTypeInternal, message, err, "")
	}
	if platformErr.RequestID == "" {
		platformErr.RequestID = RequestIDFromContext(c.Request.Context())
	}

	status := ErrorTypeToHTTPStatus(platformErr.Type)
	if status >= http.StatusInternalServerError {
		LogError(log, platformErr)
	}

	c.AbortWithStatusJSON(status, HTTPErrorResponse{
		Error: &HTTPErrorDetail{
			Message:   platformErr.Message,
			Type:      strings.ToLower(string(platformErr.Type)) + "_error",
			Code:      platformErr.UUID,
			RequestID: platformErr.RequestID,
		},
	})
}

// WriteValidationError writes a 400 Bad Request response.
func WriteValidationError(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, HTTPErrorResponse{
		Error: &HTTPErrorDetail{
			Message:   message,
			Type:      "validation_error",
			RequestID: RequestIDFromContext(c.Request.Context()),
		},
	})
}
