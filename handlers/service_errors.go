package handlers

import (
	"net/http"

	"github.com/upb/tenantchat/backend/services"
	"github.com/upb/tenantchat/backend/utils"
	"go.uber.org/zap"
)

// StatusForError returns the HTTP status for an error's category
func StatusForError(err error) int {
	switch services.GetErrorType(err) {
	case services.ErrorTypeNotFound:
		return http.StatusNotFound
	case services.ErrorTypeValidation:
		return http.StatusBadRequest
	case services.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorTypeForbidden:
		return http.StatusForbidden
	case services.ErrorTypeConflict:
		return http.StatusConflict
	case services.ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	case services.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleServiceError maps domain errors to HTTP responses carrying the
// error's stable code. Causes are logged, never returned to the client.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	domainErr, ok := services.AsDomainError(err)
	if !ok {
		logger.Error("unhandled error type", zap.Error(err))
		if err := utils.WriteErrorCode(w, http.StatusInternalServerError, services.CodeInternal, "An unexpected error occurred", nil); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
		return
	}

	status := StatusForError(domainErr)
	message := domainErr.Message
	details := domainErr.Details
	if len(details) == 0 {
		details = nil
	}

	switch status {
	case http.StatusInternalServerError:
		logger.Error("internal server error", zap.Error(err))
		message = "An internal error occurred"
		details = nil
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		logger.Warn("upstream or configuration failure",
			zap.String("code", domainErr.Code),
			zap.Error(err))
	default:
		logger.Debug("handled service error",
			zap.String("type", string(domainErr.Type)),
			zap.String("code", domainErr.Code),
			zap.Error(err))
	}

	if err := utils.WriteErrorCode(w, status, domainErr.Code, message, details); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
