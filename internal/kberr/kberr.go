// Package kberr provides structured errors for the retrieval engine.
//
// Every error carries a stable code so logs and user-facing output can
// classify failures without string matching. Codes group by prefix:
//
//   - KB_CONFIG_*  configuration and policy problems
//   - KB_BACKEND_* transient backend failures (retryable)
//   - KB_MODEL_*   embedding or rerank model unavailability
//   - KB_CORPUS_*  corpus and index integrity problems
package kberr

import "fmt"

// Category classifies an error for logging and handling decisions.
type Category string

const (
	CategoryConfig  Category = "CONFIG"
	CategoryBackend Category = "BACKEND"
	CategoryModel   Category = "MODEL"
	CategoryCorpus  Category = "CORPUS"
)

// Error codes.
const (
	CodeConfigInvalid      = "KB_CONFIG_INVALID"
	CodeBackendUnavailable = "KB_BACKEND_UNAVAILABLE"
	CodeModelUnavailable   = "KB_MODEL_UNAVAILABLE"
	CodeCorpusCorrupt      = "KB_CORPUS_CORRUPT"
)

// Error is the structured error type used across the engine.
type Error struct {
	// Code is the stable error code.
	Code string

	// Message is the human-readable message.
	Message string

	// Category classifies the error.
	Category Category

	// Cause is the underlying error, if any.
	Cause error

	// Retryable reports whether retrying the operation may succeed.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so errors.Is works across wrapping.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// ConfigurationError reports an invalid configuration or policy file.
func ConfigurationError(message string, cause error) error {
	return &Error{
		Code:     CodeConfigInvalid,
		Message:  message,
		Category: CategoryConfig,
		Cause:    cause,
	}
}

// TransientBackendError reports a backend failure that may succeed on retry,
// such as a lost connection to the embedding service or a contended lock.
func TransientBackendError(message string, cause error) error {
	return &Error{
		Code:      CodeBackendUnavailable,
		Message:   message,
		Category:  CategoryBackend,
		Cause:     cause,
		Retryable: true,
	}
}

// ModelUnavailableError reports that a required model cannot be reached or
// is not installed on the backend.
func ModelUnavailableError(message string, cause error) error {
	return &Error{
		Code:     CodeModelUnavailable,
		Message:  message,
		Category: CategoryModel,
		Cause:    cause,
	}
}

// CorpusError reports a corrupt or inconsistent corpus state.
func CorpusError(message string, cause error) error {
	return &Error{
		Code:     CodeCorpusCorrupt,
		Message:  message,
		Category: CategoryCorpus,
		Cause:    cause,
	}
}

// IsFatal reports whether err should abort the current operation rather
// than degrade. Configuration errors are fatal; everything else degrades.
func IsFatal(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Category == CategoryConfig
	}
	return false
}

// IsRetryable reports whether err carries the retryable flag.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetCode extracts the error code, or empty string for foreign errors.
func GetCode(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
