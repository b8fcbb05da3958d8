// Package errors provides a structured error system for the optimizer
// with error codes, categories, and context.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for optimizer operations.
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Cache errors
	ErrCodeCacheCapacityExceeded ErrorCode = "CACHE_CAPACITY_EXCEEDED"
	ErrCodeCacheWriteFailed      ErrorCode = "CACHE_WRITE_FAILED"
	ErrCodeCompressionFailed     ErrorCode = "COMPRESSION_FAILED"
	ErrCodeEncodingFailed        ErrorCode = "ENCODING_FAILED"
	ErrCodeKeyDerivationFailed   ErrorCode = "KEY_DERIVATION_FAILED"

	// Execution errors
	ErrCodeBatchExecutionFailed     ErrorCode = "BATCH_EXECUTION_FAILED"
	ErrCodeOperationExecutionFailed ErrorCode = "OPERATION_EXECUTION_FAILED"
	ErrCodeUnknownOperation         ErrorCode = "UNKNOWN_OPERATION"
	ErrCodeInvalidParams            ErrorCode = "INVALID_PARAMS"

	// Resource errors
	ErrCodePoolExhausted  ErrorCode = "POOL_EXHAUSTED"
	ErrCodeInvalidRelease ErrorCode = "INVALID_RELEASE"

	// State errors
	ErrCodeAlreadyStarted    ErrorCode = "ALREADY_STARTED"
	ErrCodeNotStarted        ErrorCode = "NOT_STARTED"
	ErrCodeCoordinatorClosed ErrorCode = "COORDINATOR_CLOSED"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryCache         ErrorCategory = "cache"
	CategoryExecution     ErrorCategory = "execution"
	CategoryResource      ErrorCategory = "resource"
	CategoryState         ErrorCategory = "state"
	CategoryInternal      ErrorCategory = "internal"
)

// OptimizerError represents a structured error with context and metadata.
type OptimizerError struct {
	Code      ErrorCode      `json:"code"`
	Category  ErrorCategory  `json:"category"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Component string         `json:"component,omitempty"`
	Operation string         `json:"operation,omitempty"`
	Cause     error          `json:"-"`
	Timestamp time.Time      `json:"timestamp"`
	Retryable bool           `json:"retryable"`
}

// Error implements the error interface.
func (e *OptimizerError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *OptimizerError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error by code.
func (e *OptimizerError) Is(target error) bool {
	if optErr, ok := target.(*OptimizerError); ok {
		return e.Code == optErr.Code
	}
	return false
}

// NewError creates a new optimizer error with default values.
func NewError(code ErrorCode, message string) *OptimizerError {
	return &OptimizerError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: IsRetryableByDefault(code),
	}
}

// Newf creates a new optimizer error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *OptimizerError {
	return NewError(code, fmt.Sprintf(format, args...))
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CONFIG"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "CACHE_") || codeStr == string(ErrCodeCompressionFailed) ||
		codeStr == string(ErrCodeEncodingFailed) || codeStr == string(ErrCodeKeyDerivationFailed):
		return CategoryCache
	case strings.Contains(codeStr, "EXECUTION") || codeStr == string(ErrCodeUnknownOperation) ||
		codeStr == string(ErrCodeInvalidParams):
		return CategoryExecution
	case strings.HasPrefix(codeStr, "POOL_") || codeStr == string(ErrCodeInvalidRelease):
		return CategoryResource
	case strings.HasPrefix(codeStr, "ALREADY_") || strings.HasPrefix(codeStr, "NOT_") ||
		strings.Contains(codeStr, "CLOSED"):
		return CategoryState
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		ErrCodePoolExhausted:        true,
		ErrCodeCacheWriteFailed:     true,
		ErrCodeBatchExecutionFailed: true,
	}
	return retryableCodes[code]
}

// WithDetail adds detailed information to an error.
func (e *OptimizerError) WithDetail(key string, value any) *OptimizerError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error.
func (e *OptimizerError) WithComponent(component string) *OptimizerError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error.
func (e *OptimizerError) WithOperation(operation string) *OptimizerError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause.
func (e *OptimizerError) WithCause(cause error) *OptimizerError {
	e.Cause = cause
	return e
}
