package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/phenodx-server/internal/domain"
	"github.com/phenodx-server/internal/middleware"
	"github.com/phenodx-server/internal/service"
)

var statusByCode = map[string]int{
	domain.ErrInvalidInput:   http.StatusBadRequest,
	domain.ErrValidation:     http.StatusBadRequest,
	domain.ErrImport:         http.StatusUnprocessableEntity,
	domain.ErrMissing:        http.StatusNotFound,
	domain.ErrConflict:       http.StatusConflict,
	domain.ErrAuthentication: http.StatusUnauthorized,
	domain.ErrRateLimit:      http.StatusTooManyRequests,
	domain.ErrCatalog:        http.StatusServiceUnavailable,
	domain.ErrRanking:        http.StatusServiceUnavailable,
	domain.ErrSuggestion:     http.StatusServiceUnavailable,
	domain.ErrDatabaseError:  http.StatusInternalServerError,
}

// respondError writes the error envelope for err
func (s *Server) respondError(c *gin.Context, err error) {
	code := domain.ErrorCode(err)
	if errors.Is(err, service.ErrStaleResult) {
		code = domain.ErrConflict
	}
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := messageFor(code)
	details := err.Error()
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithField("correlation_id", c.GetString(middleware.CorrelationKey)).Error("Request failed")
		details = ""
	}

	apiErr := domain.NewAPIError(code, message, details, c.GetString(middleware.CorrelationKey))
	apiErr.Retryable = domain.IsRetryable(err)
	c.AbortWithStatusJSON(status, gin.H{"error": apiErr})
}

func messageFor(code string) string {
	switch code {
	case domain.ErrValidation, domain.ErrInvalidInput:
		return "Invalid request"
	case domain.ErrImport:
		return "Import file could not be read"
	case domain.ErrMissing:
		return "Resource not found"
	case domain.ErrConflict:
		return "Request conflicts with current state"
	case domain.ErrAuthentication:
		return "Authentication failed"
	case domain.ErrCatalog:
		return "Term catalog is unavailable"
	case domain.ErrRanking:
		return "Diagnosis ranking is unavailable"
	case domain.ErrSuggestion:
		return "Symptom suggestions are unavailable"
	default:
		return "Internal server error"
	}
}

// bind decodes the JSON body into dst, converting binding failures into
// validation errors.
func bind(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return bindingError(err)
	}
	return nil
}

func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewValidationError(strings.ToLower(fe.Field()), fmt.Sprintf("failed %s check", fe.Tag()), fe.Value())
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, domain.ErrInvalidSeverity):
		return domain.NewValidationError("severity", err.Error(), nil)
	case errors.Is(err, io.EOF):
		return domain.NewValidationError("body", "request body is required", nil)
	case errors.As(err, &syntaxErr):
		return domain.NewValidationError("body", "malformed JSON", nil)
	case errors.As(err, &typeErr):
		return domain.NewValidationError(typeErr.Field, "wrong type", nil)
	default:
		return domain.NewValidationError("body", err.Error(), nil)
	}
}
