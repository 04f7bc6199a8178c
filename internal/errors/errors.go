// Package errors defines the application error model and the structured
// logger every other package writes through.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType groups errors by what went wrong, which callers map onto exit
// codes and HTTP statuses
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeAI         ErrorType = "ai"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeInternal   ErrorType = "internal"
)

// Input and environment
const (
	ErrCodeFileNotFound    = "FILE_NOT_FOUND"
	ErrCodeFileNotReadable = "FILE_NOT_READABLE"
	ErrCodeInvalidFormat   = "INVALID_FORMAT"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeInvalidConfig   = "INVALID_CONFIG"
	ErrCodeMissingAPIKey   = "MISSING_API_KEY"
)

// Model gateway
const (
	ErrCodeAIServiceFailed     = "AI_SERVICE_FAILED"
	ErrCodeTranscriptionFailed = "TRANSCRIPTION_FAILED"
)

// Interview session
const (
	ErrCodeMissingRecommender  = "MISSING_RECOMMENDER"
	ErrCodeInvalidRelationship = "INVALID_RELATIONSHIP"
	ErrCodeRecommenderLocked   = "RECOMMENDER_LOCKED"
	ErrCodeNoAnswers           = "NO_ANSWERS"
	ErrCodeRequestInFlight     = "REQUEST_IN_FLIGHT"
	ErrCodeDraftNotFound       = "DRAFT_NOT_FOUND"
	ErrCodeStoreFailed         = "STORE_FAILED"
	ErrCodeAdminLocked         = "ADMIN_LOCKED"
)

// Spreadsheet sync
const (
	ErrCodeMissingWebhookURL = "MISSING_WEBHOOK_URL"
	ErrCodeWebhookDispatch   = "WEBHOOK_DISPATCH_FAILED"
)

// AppError carries a type, a stable machine-readable code and optional
// key/value context alongside the wrapped cause
type AppError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Cause   error          `json:"cause,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithContext attaches a key/value pair that LogError expands into the record
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	e.Context[key] = value
	return e
}

func build(typ ErrorType) func(code, message string, cause error) *AppError {
	return func(code, message string, cause error) *AppError {
		return &AppError{Type: typ, Code: code, Message: message, Cause: cause}
	}
}

var (
	NewValidationError = build(ErrorTypeValidation)
	NewIOError         = build(ErrorTypeIO)
	NewAIError         = build(ErrorTypeAI)
	NewNetworkError    = build(ErrorTypeNetwork)
	NewConfigError     = build(ErrorTypeConfig)
	NewConflictError   = build(ErrorTypeConflict)
	NewAuthError       = build(ErrorTypeAuth)
	NewInternalError   = build(ErrorTypeInternal)
)

// AsAppError returns the first AppError in err's chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}

// IsType reports whether err wraps an AppError of the given type
func IsType(err error, typ ErrorType) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Type == typ
}

// HasCode reports whether err wraps an AppError with the given code
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
