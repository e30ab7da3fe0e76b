package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes
const (
	CodeNotInitialized    = "NOT_INITIALIZED"
	CodeConnectionFailure = "CONNECTION_FAILURE"
	CodeTransient         = "TRANSIENT"
	CodeDuplicateKey      = "DUPLICATE_KEY"
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION_ERROR"
	CodePartialWrite      = "PARTIAL_WRITE"
)

// AppError represents an application error with context
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithError wraps an underlying error
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// Retryable reports whether the caller may retry the failed operation
func (e *AppError) Retryable() bool {
	return e.Code == CodeTransient
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NotInitialized is returned when a connection accessor is used before connect
func NotInitialized(resource string) *AppError {
	return New(CodeNotInitialized, fmt.Sprintf("%s not initialized; call Connect first", resource))
}

// ConnectionFailure is returned when the database cannot be reached at connect time
func ConnectionFailure(message string) *AppError {
	return New(CodeConnectionFailure, message)
}

// Transient is returned for timeouts and network failures that are safe to retry
func Transient(operation string) *AppError {
	return New(CodeTransient, fmt.Sprintf("%s failed transiently", operation))
}

// DuplicateKey is returned when a uniqueness constraint is violated
func DuplicateKey(resource string) *AppError {
	return New(CodeDuplicateKey, fmt.Sprintf("%s already exists", resource))
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// Validation creates a validation error
func Validation(message string) *AppError {
	return New(CodeValidation, message)
}

// IsAppError checks if the error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error if present
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

func hasCode(err error, code string) bool {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code == code
	}
	return false
}

// IsNotInitialized checks if the error is a not initialized error
func IsNotInitialized(err error) bool {
	return hasCode(err, CodeNotInitialized)
}

// IsConnectionFailure checks if the error is a connection failure
func IsConnectionFailure(err error) bool {
	return hasCode(err, CodeConnectionFailure)
}

// IsTransient checks if the error is a transient failure
func IsTransient(err error) bool {
	return hasCode(err, CodeTransient)
}

// IsDuplicateKey checks if the error is a duplicate key error
func IsDuplicateKey(err error) bool {
	return hasCode(err, CodeDuplicateKey)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return hasCode(err, CodeValidation)
}

// ItemFailure describes one failed entry of a batch write
type ItemFailure struct {
	Index int
	Err   error
}

// PartialWriteError is returned by batch writes when some entries failed.
// The successfully written entries are returned alongside it.
type PartialWriteError struct {
	Attempted int
	Failures  []ItemFailure
}

// Error implements the error interface
func (e *PartialWriteError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("#%d: %v", f.Index, f.Err))
	}
	return fmt.Sprintf("%s: %d of %d writes failed [%s]",
		CodePartialWrite, len(e.Failures), e.Attempted, strings.Join(parts, "; "))
}

// FailedIndexes returns the input positions that were not written
func (e *PartialWriteError) FailedIndexes() []int {
	out := make([]int, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Index
	}
	return out
}

// IsPartialWrite checks if the error is a partial batch write failure
func IsPartialWrite(err error) bool {
	var pwErr *PartialWriteError
	return errors.As(err, &pwErr)
}

// GetPartialWrite extracts the PartialWriteError from err if present
func GetPartialWrite(err error) *PartialWriteError {
	var pwErr *PartialWriteError
	if errors.As(err, &pwErr) {
		return pwErr
	}
	return nil
}
