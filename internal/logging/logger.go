// Package logging builds the process logger and tracks tool and API
// operations with correlation ids.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phenodx-server/internal/domain"
	"github.com/sirupsen/logrus"
)

type ctxKey string

const (
	correlationKey ctxKey = "correlation_id"
	operationKey   ctxKey = "operation_id"
)

// NewLogger creates a logrus logger from configuration
func NewLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	logger.SetOutput(outputFor(cfg.Output))
	return logger
}

func outputFor(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr
	case "", "stdout":
		return os.Stdout
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return os.Stderr
		}
		return f
	}
}

// WithCorrelation returns a context carrying correlationID
func WithCorrelation(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationKey, correlationID)
}

// CorrelationID extracts the correlation id from ctx, or creates one
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// OperationLogger logs start and end of named operations with
// sanitized parameters.
type OperationLogger struct {
	logger  *logrus.Logger
	privacy bool
}

// NewOperationLogger wraps logger. With privacy enabled, parameters that
// look like credentials or patient identifiers are redacted.
func NewOperationLogger(logger *logrus.Logger, privacy bool) *OperationLogger {
	return &OperationLogger{logger: logger, privacy: privacy}
}

// Operation is an in-flight logged operation.
type Operation struct {
	ol            *OperationLogger
	id            string
	correlationID string
	kind          string
	name          string
	start         time.Time
}

// Start begins tracking an operation
func (ol *OperationLogger) Start(ctx context.Context, kind, name string, params map[string]interface{}) (context.Context, *Operation) {
	correlationID := CorrelationID(ctx)
	op := &Operation{
		ol:            ol,
		id:            uuid.New().String(),
		correlationID: correlationID,
		kind:          kind,
		name:          name,
		start:         time.Now(),
	}

	ol.logger.WithFields(logrus.Fields{
		"correlation_id": correlationID,
		"operation_id":   op.id,
		"operation_type": kind,
		"operation_name": name,
		"parameters":     ol.Sanitize(params),
	}).Debug("Operation started")

	ctx = WithCorrelation(ctx, correlationID)
	return context.WithValue(ctx, operationKey, op.id), op
}

// End completes the operation
func (op *Operation) End(resultSize int, err error) {
	fields := logrus.Fields{
		"correlation_id": op.correlationID,
		"operation_id":   op.id,
		"operation_type": op.kind,
		"operation_name": op.name,
		"duration_ms":    time.Since(op.start).Milliseconds(),
		"result_size":    resultSize,
		"success":        err == nil,
	}
	if err != nil {
		fields["error"] = op.ol.sanitizeError(err)
		op.ol.logger.WithFields(fields).Warn("Operation failed")
		return
	}
	op.ol.logger.WithFields(fields).Info("Operation completed")
}

var sensitivePatterns = []string{
	"password", "token", "secret", "key", "auth",
	"patient", "email", "phone", "address", "notes",
}

// Sanitize removes sensitive data from parameters
func (ol *OperationLogger) Sanitize(params map[string]interface{}) map[string]interface{} {
	if !ol.privacy || params == nil {
		return params
	}

	sanitized := make(map[string]interface{}, len(params))
	for k, v := range params {
		sanitized[k] = sanitizeField(k, v)
	}
	return sanitized
}

func sanitizeField(key string, value interface{}) interface{} {
	lowerKey := strings.ToLower(key)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lowerKey, pattern) {
			return "[REDACTED]"
		}
	}

	if str, ok := value.(string); ok && len(str) > 1000 {
		return str[:1000] + "... [TRUNCATED]"
	}
	return value
}

func (ol *OperationLogger) sanitizeError(err error) string {
	msg := err.Error()
	if ol.privacy && len(msg) > 500 {
		msg = msg[:500] + "... [TRUNCATED]"
	}
	return msg
}
