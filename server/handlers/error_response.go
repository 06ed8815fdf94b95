package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/auth"
	"github.com/ebogdum/sharefs/authz"
	"github.com/ebogdum/sharefs/core"
	"github.com/ebogdum/sharefs/metadata"
	"github.com/ebogdum/sharefs/shares"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendErrorResponse sends a standardized JSON error response for the
// authenticated API surface
func SendErrorResponse(w http.ResponseWriter, logger *zap.Logger, err error, defaultStatusCode int) {
	w.Header().Set("Content-Type", "application/json")

	var statusCode int
	var errorCode string

	switch {
	case errors.Is(err, metadata.ErrNotFound):
		statusCode = http.StatusNotFound
		errorCode = "NOT_FOUND"
	case errors.Is(err, metadata.ErrAlreadyExists):
		statusCode = http.StatusConflict
		errorCode = "ALREADY_EXISTS"
	case errors.Is(err, metadata.ErrConflict):
		statusCode = http.StatusConflict
		errorCode = "CONFLICT"
	case errors.Is(err, metadata.ErrUnavailable):
		statusCode = http.StatusServiceUnavailable
		errorCode = "STORE_UNAVAILABLE"
	case errors.Is(err, auth.ErrAuthenticationFailed):
		statusCode = http.StatusUnauthorized
		errorCode = "AUTHENTICATION_FAILED"
	case errors.Is(err, authz.ErrForbidden):
		statusCode = http.StatusForbidden
		errorCode = "PERMISSION_DENIED"
	case errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, shares.ErrInvalidTTL),
		errors.Is(err, shares.ErrInvalidMaxUses):
		statusCode = http.StatusBadRequest
		errorCode = "INVALID_INPUT"
	case errors.Is(err, shares.ErrTokenNotFound):
		statusCode = http.StatusNotFound
		errorCode = "NOT_FOUND"
	default:
		statusCode = defaultStatusCode
		errorCode = "INTERNAL_ERROR"
	}

	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Code:    errorCode,
		Message: err.Error(),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to encode error response", zap.Error(err))
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "Internal error occurred")
	}

	logger.Info("Error response sent",
		zap.String("error_code", errorCode),
		zap.Int("status_code", statusCode),
		zap.Error(err))
}

// SendShareDenial sends the single uniform denial used for every failed
// anonymous share resolution. The response never varies with the failure
// cause, so an outside observer cannot distinguish a token that never
// existed from one that expired, was revoked, ran out of uses, or failed
// its password check.
func SendShareDenial(w http.ResponseWriter, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	if _, err := w.Write([]byte(`{"code":"LINK_UNAVAILABLE","message":"link is no longer available"}`)); err != nil {
		logger.Error("Failed to write share denial response", zap.Error(err))
	}
}

// SendJSONResponse sends a JSON response with any data structure
func SendJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		fmt.Fprintf(w, `{"error":"Failed to encode response"}`)
	}
}
