// Package handlers implements the HTTP endpoints of the token trust core.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/veridia/tokencore/pkg/errors"
)

// errorResponse is the uniform error envelope.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps the typed taxonomy onto HTTP statuses. Every verification
// rejection is a 401 with a machine-readable code; infrastructure faults are
// 503 so clients can retry.
func writeError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)

	var status int
	switch kind {
	case apperrors.KindMalformed, apperrors.KindUnsupportedAlgorithm,
		apperrors.KindUnknownKey, apperrors.KindInvalidSignature,
		apperrors.KindExpired, apperrors.KindClaimsInvalid, apperrors.KindRevoked:
		status = http.StatusUnauthorized
	case apperrors.KindInvalidArgument:
		status = http.StatusBadRequest
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindKeyStoreUnavailable, apperrors.KindRevocationUnavailable:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		// Internal details stay in the logs.
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: errorBody{
		Code:    kind.String(),
		Message: message,
	}})
}
