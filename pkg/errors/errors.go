package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode         `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error code onto an HTTP status.
func (e *AppError) StatusCode() int {
	return e.Code.HTTPStatus()
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrValidation
	ErrOfferNotFound
	ErrAlreadyProcessed
	ErrStoreUnavailable
	ErrPartialFanout
	ErrConflict
)

var codeNames = map[ErrorCode]string{
	ErrNotFound:         "not_found",
	ErrBadRequest:       "bad_request",
	ErrUnauthorized:     "unauthorized",
	ErrForbidden:        "forbidden",
	ErrInternal:         "internal",
	ErrValidation:       "validation_error",
	ErrOfferNotFound:    "offer_not_found",
	ErrAlreadyProcessed: "already_processed",
	ErrStoreUnavailable: "store_unavailable",
	ErrPartialFanout:    "partial_fanout_failure",
	ErrConflict:         "conflict",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrNotFound, ErrOfferNotFound:
		return http.StatusNotFound
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrValidation:
		return http.StatusUnprocessableEntity
	case ErrAlreadyProcessed, ErrConflict:
		return http.StatusConflict
	case ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// NewValidation carries per-field messages back to the submitting user.
func NewValidation(fields map[string]string) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: "validation failed",
		Fields:  fields,
	}
}

func NewOfferNotFound(err error) *AppError {
	return &AppError{
		Code:    ErrOfferNotFound,
		Message: "offer not found",
		Err:     err,
	}
}

// NewAlreadyProcessed reports that another party already resolved the offer.
func NewAlreadyProcessed(status string) *AppError {
	return &AppError{
		Code:    ErrAlreadyProcessed,
		Message: fmt.Sprintf("offer already processed (status %s)", status),
	}
}

func NewStoreUnavailable(err error) *AppError {
	return &AppError{
		Code:    ErrStoreUnavailable,
		Message: "document store unavailable",
		Err:     err,
	}
}

func NewPartialFanout(failed, total int, err error) *AppError {
	return &AppError{
		Code:    ErrPartialFanout,
		Message: fmt.Sprintf("%d of %d notifications failed", failed, total),
		Err:     err,
	}
}

func NewConflict(message string) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: message,
	}
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	for err != nil {
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// As is a convenience wrapper so callers do not need a second errors import.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
