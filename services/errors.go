package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of an error. The category decides the
// HTTP status at the transport boundary.
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeUnavailable  ErrorType = "unavailable"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// Stable error codes exposed to clients.
const (
	CodeAuthNotConfigured           = "auth_not_configured"
	CodeInvalidToken                = "invalid_token"
	CodeUnknownIssuer               = "unknown_issuer"
	CodeTokenExpired                = "token_expired"
	CodeInvalidSignature            = "invalid_signature"
	CodeInvalidClaims               = "invalid_claims"
	CodeWrongTokenType              = "wrong_token_type"
	CodeInsufficientScope           = "insufficient_scope"
	CodeProviderNotFound            = "provider_not_found"
	CodeAuthCallbackError           = "auth_callback_error"
	CodeInvalidCallback             = "invalid_callback"
	CodeAuthFlowMissing             = "auth_flow_missing"
	CodeProviderMismatch            = "provider_mismatch"
	CodeStateMismatch               = "state_mismatch"
	CodeInvalidCredentials          = "invalid_credentials"
	CodeAdminUnauthorized           = "admin_unauthorized"
	CodeAdminPasswordChangeRequired = "admin_password_change_required"
	CodeInvalidPassword             = "invalid_password"
	CodeUnauthorized                = "unauthorized"
	CodeForbidden                   = "forbidden"
	CodeNotFound                    = "not_found"
	CodeBadRequest                  = "bad_request"
	CodeUpstream                    = "upstream_error"
	CodeInternal                    = "internal_error"
)

// DomainError represents a structured error with a stable code and additional context
type DomainError struct {
	Type    ErrorType
	Code    string
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError by code, or by type when the target has no code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Wrap returns a copy of the error carrying cause. Package level sentinels
// are never mutated.
func (e *DomainError) Wrap(cause error) *DomainError {
	cp := *e
	cp.Err = cause
	cp.Details = make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	return &cp
}

// WithMessage returns a copy of the error with a different message.
func (e *DomainError) WithMessage(message string) *DomainError {
	cp := e.Wrap(e.Err)
	cp.Message = message
	return cp
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, code, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	// Token verification
	ErrAuthNotConfigured = NewDomainError(ErrorTypeUnavailable, CodeAuthNotConfigured, "no trusted issuers are configured", nil)
	ErrInvalidToken      = NewDomainError(ErrorTypeUnauthorized, CodeInvalidToken, "invalid authentication token", nil)
	ErrUnknownIssuer     = NewDomainError(ErrorTypeUnauthorized, CodeUnknownIssuer, "token issuer is not trusted", nil)
	ErrTokenExpired      = NewDomainError(ErrorTypeUnauthorized, CodeTokenExpired, "authentication token expired", nil)
	ErrInvalidSignature  = NewDomainError(ErrorTypeUnauthorized, CodeInvalidSignature, "token signature could not be verified", nil)
	ErrInvalidClaims     = NewDomainError(ErrorTypeUnauthorized, CodeInvalidClaims, "token claims are invalid", nil)
	ErrWrongTokenType    = NewDomainError(ErrorTypeUnauthorized, CodeWrongTokenType, "token type is not accepted", nil)
	ErrInsufficientScope = NewDomainError(ErrorTypeForbidden, CodeInsufficientScope, "token lacks a required scope", nil)

	// OIDC flow
	ErrProviderNotFound  = NewDomainError(ErrorTypeNotFound, CodeProviderNotFound, "identity provider not found", nil)
	ErrAuthCallbackError = NewDomainError(ErrorTypeValidation, CodeAuthCallbackError, "identity provider returned an error", nil)
	ErrInvalidCallback   = NewDomainError(ErrorTypeValidation, CodeInvalidCallback, "callback is missing code or state", nil)
	ErrAuthFlowMissing   = NewDomainError(ErrorTypeUnauthorized, CodeAuthFlowMissing, "login flow not found or expired", nil)
	ErrProviderMismatch  = NewDomainError(ErrorTypeUnauthorized, CodeProviderMismatch, "callback provider does not match the login flow", nil)
	ErrStateMismatch     = NewDomainError(ErrorTypeUnauthorized, CodeStateMismatch, "callback state does not match the login flow", nil)

	// Admin local authentication
	ErrInvalidCredentials          = NewDomainError(ErrorTypeUnauthorized, CodeInvalidCredentials, "invalid username or password", nil)
	ErrAdminUnauthorized           = NewDomainError(ErrorTypeUnauthorized, CodeAdminUnauthorized, "admin session required", nil)
	ErrAdminPasswordChangeRequired = NewDomainError(ErrorTypeForbidden, CodeAdminPasswordChangeRequired, "the default admin password must be changed first", nil)
	ErrInvalidPassword             = NewDomainError(ErrorTypeValidation, CodeInvalidPassword, "new password does not meet the password policy", nil)

	// Authorization
	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, CodeUnauthorized, "authentication required", nil)
	ErrForbidden    = NewDomainError(ErrorTypeForbidden, CodeForbidden, "access forbidden", nil)

	// Generic
	ErrUserNotFound = NewDomainError(ErrorTypeNotFound, CodeNotFound, "user not found", nil)
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, CodeBadRequest, "invalid input", nil)
	ErrUpstream     = NewDomainError(ErrorTypeExternal, CodeUpstream, "identity provider is unavailable", nil)
	ErrInternal     = NewDomainError(ErrorTypeInternal, CodeInternal, "internal server error", nil)
)

// AsDomainError extracts the DomainError from an error chain.
func AsDomainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return GetErrorType(err) == ErrorTypeForbidden
}

// IsExternalError checks if an error is an upstream failure
func IsExternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeExternal
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	if domainErr, ok := AsDomainError(err); ok {
		return domainErr.Type
	}
	return ""
}

// GetErrorCode returns the stable code of a domain error, or empty string
func GetErrorCode(err error) string {
	if domainErr, ok := AsDomainError(err); ok {
		return domainErr.Code
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	if domainErr, ok := AsDomainError(err); ok {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return ErrInternal.Wrap(err).WithMessage(message)
}

// WrapExternal wraps an error as an upstream failure
func WrapExternal(message string, err error) error {
	return ErrUpstream.Wrap(err).WithMessage(message)
}
