package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phuslu/log"
)

// ErrorType classifies a ServerError
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeParse      ErrorType = "parse"
	ErrorTypeWiring     ErrorType = "wiring"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeAuth       ErrorType = "authentication"
)

type requestIDKey struct{}

// WithRequestID stores a request id that NewErrorWithContext picks up
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// ServerError represents a structured error with context
type ServerError struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`

	cause error
}

// Error implements the error interface
func (e *ServerError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped cause, if any
func (e *ServerError) Unwrap() error {
	return e.cause
}

// NewError creates a new ServerError
func NewError(errType ErrorType, message string, details string) *ServerError {
	return &ServerError{
		Type:      errType,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Unix(),
	}
}

// NewErrorWithContext creates a new ServerError carrying the request id from ctx
func NewErrorWithContext(ctx context.Context, errType ErrorType, message string, details string) *ServerError {
	err := NewError(errType, message, details)
	if requestID, ok := ctx.Value(requestIDKey{}).(string); ok {
		err.RequestID = requestID
	}
	return err
}

// LogError logs the error at a level matching its type
func (e *ServerError) LogError(logger *log.Logger) {
	var entry *log.Entry
	switch e.Type {
	case ErrorTypeValidation, ErrorTypeNotFound:
		entry = logger.Warn()
	default:
		entry = logger.Error()
	}
	entry.Str("type", string(e.Type)).Str("details", e.Details).Str("request_id", e.RequestID).Msg(e.Message)
}

// Wrap wraps a standard error as a ServerError
func Wrap(err error, errType ErrorType, message string) *ServerError {
	if err == nil {
		return nil
	}
	se := NewError(errType, message, err.Error())
	se.cause = err
	return se
}

// WrapWithContext wraps a standard error as a ServerError with context
func WrapWithContext(ctx context.Context, err error, errType ErrorType, message string) *ServerError {
	if err == nil {
		return nil
	}
	se := NewErrorWithContext(ctx, errType, message, err.Error())
	se.cause = err
	return se
}

// IsType checks if any error in the chain is a ServerError of errType
func IsType(err error, errType ErrorType) bool {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Type == errType
	}
	return false
}

// GetType returns the error type if it's a ServerError, otherwise ErrorTypeInternal
func GetType(err error) ErrorType {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Type
	}
	return ErrorTypeInternal
}
