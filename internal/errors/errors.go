package errors

import (
	"errors"
	"fmt"
)

// EywaError is the structured error type for eywa.
// It provides rich context for error handling, logging, and user presentation.
type EywaError struct {
	// Code is the unique error code (e.g., "ERR_201_DOC_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Embedding, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *EywaError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *EywaError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with EywaError.
func (e *EywaError) Is(target error) bool {
	if t, ok := target.(*EywaError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *EywaError) WithDetail(key, value string) *EywaError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new EywaError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *EywaError {
	return &EywaError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an EywaError from an existing error.
// The error's message becomes the EywaError message.
func Wrap(code string, err error) *EywaError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *EywaError {
	return New(ErrCodeInvalidInput, message, cause)
}

// ChunkingError creates a chunking-related error.
func ChunkingError(message string, cause error) *EywaError {
	return New(ErrCodeChunkingFailed, message, cause)
}

// EmbeddingError creates an embedding provider error.
// Embedding errors from remote providers are typically retryable.
func EmbeddingError(message string, cause error) *EywaError {
	return New(ErrCodeEmbedFailed, message, cause)
}

// StoreWriteError creates an index/store write error.
func StoreWriteError(message string, cause error) *EywaError {
	return New(ErrCodeStoreWrite, message, cause)
}

// NotFoundError creates a missing-document lookup error.
func NotFoundError(message string, cause error) *EywaError {
	return New(ErrCodeDocNotFound, message, cause)
}

// SearchError creates a retrieval failure error.
func SearchError(message string, cause error) *EywaError {
	return New(ErrCodeSearchFailed, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *EywaError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Walks the error chain so wrapped EywaErrors are found.
func IsRetryable(err error) bool {
	var ee *EywaError
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var ee *EywaError
	if errors.As(err, &ee) {
		return ee.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an EywaError in the chain.
// Returns empty string if none is found.
func GetCode(err error) string {
	var ee *EywaError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// GetCategory extracts the category from an EywaError in the chain.
// Returns empty string if none is found.
func GetCategory(err error) Category {
	var ee *EywaError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ""
}
