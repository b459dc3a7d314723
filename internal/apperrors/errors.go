package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable error code surfaced to API clients.
type Kind string

const (
	KindValidation        Kind = "VALIDATION_ERROR"
	KindNotFound          Kind = "NOT_FOUND"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindConflict          Kind = "CONFLICT"
	KindInvariant         Kind = "INVARIANT_VIOLATION"
	KindInternal          Kind = "INTERNAL"
)

type Error struct {
	Kind    Kind
	Message string

	// Set only for insufficient stock errors.
	BatchNumber string
	Shortfall   int32

	cause error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Invariant(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvariant, Message: fmt.Sprintf(format, args...)}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error: " + cause.Error(), cause: cause}
}

// InsufficientStock reports a shortfall on a batch (or on a whole product
// when batchNumber is empty).
func InsufficientStock(batchNumber string, shortfall int32, format string, args ...interface{}) *Error {
	return &Error{
		Kind:        KindInsufficientStock,
		Message:     fmt.Sprintf(format, args...),
		BatchNumber: batchNumber,
		Shortfall:   shortfall,
	}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error kind to the response status used by the gateway.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInsufficientStock, KindInvariant:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
