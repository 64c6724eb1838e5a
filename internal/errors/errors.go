package errors

import (
	"errors"
	"fmt"
)

// Domain-specific error types
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input data
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfiguration indicates an attachment declaration could not be resolved.
	// These surface while models are declared and are fatal to startup.
	ErrConfiguration = errors.New("attachment configuration error")

	// ErrValidation indicates an attachment or owner failed validation
	ErrValidation = errors.New("validation failed")

	// ErrUnknownContentType indicates no provider could resolve a content type
	ErrUnknownContentType = errors.New("unknown content type")

	// ErrNotYetSaved indicates a file path was requested for an unsaved attachment
	ErrNotYetSaved = errors.New("not yet saved")

	// ErrThumbnailNotFound indicates a thumbnail variant lookup failed
	ErrThumbnailNotFound = errors.New("thumbnail not found")

	// ErrFileNotFound indicates the stored file data is missing
	ErrFileNotFound = errors.New("file not found")

	// ErrReadOnly indicates a write was attempted on a read-only record
	ErrReadOnly = errors.New("record is read-only")

	// ErrUnknownSlot indicates an attachment slot that was never declared
	ErrUnknownSlot = errors.New("unknown attachment slot")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal server error")
)

// Error codes for API responses
const (
	CodeNotFound      = "NOT_FOUND"
	CodeInvalidInput  = "INVALID_INPUT"
	CodeValidation    = "VALIDATION_FAILED"
	CodeConfiguration = "CONFIGURATION_ERROR"
	CodeUnknownType   = "UNKNOWN_CONTENT_TYPE"
	CodeReadOnly      = "READ_ONLY"
	CodeStorage       = "STORAGE_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
)

// AppError represents an application error with context
type AppError struct {
	Err     error
	Message string
	Code    string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(err error, message string, code string) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// ConfigError describes a declaration that cannot be wired, e.g. a slot whose
// attachment kind cannot be resolved.
type ConfigError struct {
	Owner   string
	Slot    string
	Message string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	switch {
	case e.Owner != "" && e.Slot != "":
		return fmt.Sprintf("%s.%s: %s", e.Owner, e.Slot, e.Message)
	case e.Owner != "":
		return fmt.Sprintf("%s: %s", e.Owner, e.Message)
	default:
		return e.Message
	}
}

// Unwrap returns ErrConfiguration so callers can match with errors.Is
func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// NewConfigError creates a ConfigError for the given owner and slot
func NewConfigError(owner, slot, format string, args ...any) *ConfigError {
	return &ConfigError{
		Owner:   owner,
		Slot:    slot,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrFileNotFound) ||
		errors.Is(err, ErrThumbnailNotFound)
}

// IsConfiguration checks if the error is a declaration-time configuration error
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsInvalidInput checks if the error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsStorage checks if the error came from resolving stored file data
func IsStorage(err error) bool {
	return errors.Is(err, ErrThumbnailNotFound) ||
		errors.Is(err, ErrFileNotFound) ||
		errors.Is(err, ErrNotYetSaved)
}

// GetErrorCode returns the appropriate error code for an error
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case IsInvalidInput(err):
		return CodeInvalidInput
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case IsConfiguration(err):
		return CodeConfiguration
	case errors.Is(err, ErrUnknownContentType):
		return CodeUnknownType
	case errors.Is(err, ErrReadOnly):
		return CodeReadOnly
	case IsStorage(err):
		return CodeStorage
	default:
		return CodeInternalError
	}
}
