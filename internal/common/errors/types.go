// Package errors defines the structured error type shared by every
// TriggersKit component. Public operations return these instead of letting
// dependency errors cross component boundaries.
package errors

import (
	"fmt"
	"strings"
)

// ErrorType represents the broad category of an error
type ErrorType string

const (
	// ErrTypeConnection represents transport-level failures
	ErrTypeConnection ErrorType = "connection"
	// ErrTypeValidation represents payload or parameter validation errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeAuth represents authentication and authorization errors
	ErrTypeAuth ErrorType = "authentication"
	// ErrTypeNotFound represents resource not found errors
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"
	// ErrTypeTimeout represents timeout errors
	ErrTypeTimeout ErrorType = "timeout"
)

// Machine-readable codes carried on the Code field. Consumers branch on
// these rather than on message text.
const (
	CodeInvalidState    = "INVALID_STATE"
	CodeOAuth           = "OAUTH_ERROR"
	CodeNoProviderMatch = "NO_PROVIDER_MATCH"
	CodeValidation      = "VALIDATION_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodeNetwork         = "NETWORK_ERROR"
)

// AppError represents a structured application error. Context must never
// contain secrets (client secrets, access or refresh tokens).
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// InvalidStateError signals an OAuth code exchange attempted with an
// unknown, expired or already-consumed state token.
func InvalidStateError() *AppError {
	return &AppError{
		Type:    ErrTypeAuth,
		Message: "Invalid or expired OAuth state",
		Code:    CodeInvalidState,
	}
}

// OAuthError signals a non-2xx response from a token endpoint
func OAuthError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeAuth,
		Message: msg,
		Code:    CodeOAuth,
	}
}

// NoProviderMatchError signals that no registered provider's detector
// matched an inbound webhook request.
func NoProviderMatchError() *AppError {
	return &AppError{
		Type:    ErrTypeNotFound,
		Message: "No matching provider found for this webhook",
		Code:    CodeNoProviderMatch,
	}
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeValidation,
		Message: msg,
		Code:    CodeValidation,
	}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// NotFoundError creates a new not found error
func NotFoundError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   cause,
	}
}

// TimeoutError creates a new timeout error
func TimeoutError(operation string) *AppError {
	return &AppError{
		Type:    ErrTypeTimeout,
		Message: fmt.Sprintf("Request timed out during %s", operation),
		Code:    CodeTimeout,
	}
}

// NetworkError creates a new network error
func NetworkError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeConnection,
		Message: msg,
		Cause:   cause,
		Code:    CodeNetwork,
	}
}

// Wrap converts an arbitrary error into an AppError, preserving the
// original message when available. AppErrors pass through unchanged.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	msg := err.Error()
	if msg == "" {
		msg = "Unknown error"
	}
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   err,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}

	return appErr.Type == errType
}

// CodeOf returns the machine code of an error, or "" for nil and
// non-AppError values.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return ""
	}

	return appErr.Code
}
