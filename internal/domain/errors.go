package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error categories for pipeline failures. Stages wrap one of these with %w
// so the boundary can label logs and metrics without leaking detail to
// the caller.
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrLookupMiss     = errors.New("lookup miss")
	ErrData           = errors.New("data error")
	ErrModelFit       = errors.New("model fit failed")
	ErrInfrastructure = errors.New("infrastructure error")
)

// Category codes used in logs and metric labels
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeLookupMiss     = "LOOKUP_MISS"
	CodeData           = "DATA_ERROR"
	CodeModelFit       = "MODEL_FIT_ERROR"
	CodeInfrastructure = "INFRASTRUCTURE_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
)

// Category maps an error onto its closed category code
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrLookupMiss):
		return CodeLookupMiss
	case errors.Is(err, ErrData):
		return CodeData
	case errors.Is(err, ErrModelFit):
		return CodeModelFit
	case errors.Is(err, ErrInfrastructure):
		return CodeInfrastructure
	default:
		return CodeInternal
	}
}

// PipelineError records a failed run for the fault boundary
type PipelineError struct {
	Code      string    `json:"code"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
	cause     error
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
}

// Unwrap exposes the underlying cause
func (e *PipelineError) Unwrap() error {
	return e.cause
}

// NewPipelineError creates a PipelineError with its category derived from cause
func NewPipelineError(stage string, cause error, requestID string) *PipelineError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &PipelineError{
		Code:      Category(cause),
		Stage:     stage,
		Message:   msg,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
		cause:     cause,
	}
}

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

// Unwrap places every validation error in the invalid-input category
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
