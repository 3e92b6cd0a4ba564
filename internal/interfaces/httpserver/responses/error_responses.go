package responses

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chat-relay/internal/utils/platformerrors"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse = platformerrors.HTTPErrorResponse

// HandleError writes err as the error envelope. Non platform errors become 500s.
func HandleError(reqCtx *gin.Context, err error, log zerolog.Logger) {
	platformerrors.WriteError(reqCtx, err, log)
}

// HandleNewError creates a new typed error at the route layer and writes it.
func HandleNewError(reqCtx *gin.Context, errorType platformerrors.ErrorType, message string, uuid string, log zerolog.Logger) {
	err := platformerrors.NewError(reqCtx.Request.Context(), platformerrors.LayerRoute, errorType, message, nil, uuid)
	platformerrors.WriteError(reqCtx, err, log)
}
