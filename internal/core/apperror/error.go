// Package apperror provides structured error handling for the EAV engine and
// its record repositories. Every error a caller is expected to branch on is an
// *AppError carrying a machine-readable code.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Configuration errors: the caller referenced schema that does not exist.
	CodeEntityTypeNotFound = "ENTITY_TYPE_NOT_FOUND"

	// Validation errors (400)
	CodeValidation               = "VALIDATION_ERROR"
	CodeRequiredAttributeMissing = "REQUIRED_ATTRIBUTE_MISSING"
	CodeInvalidDataType          = "INVALID_DATA_TYPE"
	CodeInvalidValue             = "INVALID_VALUE"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict = "CONFLICT"
)

// AppError is the standard error type.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (attribute names, values)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested status for transports that surface the error
	HTTPStatus int `json:"-"`

	// Err is the underlying error
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a generic validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewEntityTypeNotFound is returned for any operation against an unknown entity type code.
func NewEntityTypeNotFound(code string) *AppError {
	return &AppError{
		Code:       CodeEntityTypeNotFound,
		Message:    fmt.Sprintf("entity type not found: %s", code),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"entity_type": code},
	}
}

// NewRequiredAttributeMissing is returned when a required attribute is null or
// absent on entity creation.
func NewRequiredAttributeMissing(entityType, attribute string) *AppError {
	return &AppError{
		Code:       CodeRequiredAttributeMissing,
		Message:    fmt.Sprintf("required attribute missing: %s", attribute),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"entity_type": entityType, "attribute": attribute},
	}
}

// NewInvalidDataType is returned by the codec type gate.
func NewInvalidDataType(dataType string) *AppError {
	return &AppError{
		Code:       CodeInvalidDataType,
		Message:    fmt.Sprintf("invalid data type: %s", dataType),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"data_type": dataType},
	}
}

// NewInvalidValue is returned when a value cannot be represented in its declared type.
func NewInvalidValue(dataType string, value any) *AppError {
	return &AppError{
		Code:       CodeInvalidValue,
		Message:    fmt.Sprintf("value %v is not a valid %s", value, dataType),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"data_type": dataType, "value": value},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewInternal creates an internal error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}
