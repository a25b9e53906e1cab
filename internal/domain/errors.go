package domain

import (
	"errors"
	"fmt"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput   = "INVALID_INPUT"
	ErrDatabaseError  = "DATABASE_ERROR"
	ErrCatalog        = "CATALOG_UNAVAILABLE"
	ErrRanking        = "RANKING_UNAVAILABLE"
	ErrSuggestion     = "SUGGESTION_UNAVAILABLE"
	ErrImport         = "IMPORT_FORMAT_ERROR"
	ErrRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrAuthentication = "AUTHENTICATION_ERROR"
	ErrMissing        = "NOT_FOUND"
	ErrConflict       = "CONFLICT"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
	ErrValidation     = "VALIDATION_ERROR"
)

// Sentinel errors of the failure taxonomy. Callers wrap them with %w and
// inspect them with errors.Is.
var (
	ErrCatalogUnavailable    = errors.New("catalog unavailable")
	ErrRankingUnavailable    = errors.New("ranking unavailable")
	ErrSuggestionUnavailable = errors.New("suggestion service unavailable")
	ErrImportFormat          = errors.New("import format error")
	ErrNotFound              = errors.New("not found")
	ErrAlreadyExists         = errors.New("already exists")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidCredentials    = errors.New("invalid credentials")
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ImportFormatError reports why an imported document was rejected.
type ImportFormatError struct {
	Format string
	Line   int
	Reason string
}

func (e *ImportFormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("invalid %s import at line %d: %s", e.Format, e.Line, e.Reason)
	}
	return fmt.Sprintf("invalid %s import: %s", e.Format, e.Reason)
}

// Unwrap lets errors.Is match ErrImportFormat.
func (e *ImportFormatError) Unwrap() error {
	return ErrImportFormat
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// ErrorCode maps an error from the service layer to its envelope code.
func ErrorCode(err error) string {
	var ve *ValidationError
	var ae *APIError
	switch {
	case errors.As(err, &ae):
		return ae.Code
	case errors.As(err, &ve):
		return ErrValidation
	case errors.Is(err, ErrCatalogUnavailable):
		return ErrCatalog
	case errors.Is(err, ErrRankingUnavailable):
		return ErrRanking
	case errors.Is(err, ErrSuggestionUnavailable):
		return ErrSuggestion
	case errors.Is(err, ErrImportFormat):
		return ErrImport
	case errors.Is(err, ErrNotFound):
		return ErrMissing
	case errors.Is(err, ErrAlreadyExists):
		return ErrConflict
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredentials):
		return ErrAuthentication
	default:
		return ErrInternalServer
	}
}

// IsRetryable reports whether the failure is transient from the caller's view.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCatalogUnavailable) ||
		errors.Is(err, ErrRankingUnavailable) ||
		errors.Is(err, ErrSuggestionUnavailable)
}
