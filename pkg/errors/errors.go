package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// CodeStorage marks a failed order header write. Nothing was persisted.
	CodeStorage Code = "STORAGE_ERROR"
	// CodePartialOrder marks a header that exists without its lines.
	CodePartialOrder Code = "PARTIAL_ORDER"
	// CodeFeed marks a change-feed subscription that could not be established or broke.
	CodeFeed Code = "FEED_UNAVAILABLE"
)

// Metadata is how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retry     = true
	noRetry   = false
	details   = true
	noDetails = false
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, noRetry, "validation failed", details},
	CodeUnauthorized:  {http.StatusUnauthorized, noRetry, "authentication required", noDetails},
	CodeForbidden:     {http.StatusForbidden, noRetry, "access denied", noDetails},
	CodeNotFound:      {http.StatusNotFound, noRetry, "resource not found", noDetails},
	CodeConflict:      {http.StatusConflict, noRetry, "conflict detected", noDetails},
	CodeStateConflict: {http.StatusUnprocessableEntity, noRetry, "state transition disallowed", details},
	CodeInternal:      {http.StatusInternalServerError, retry, "internal server error", noDetails},
	CodeDependency:    {http.StatusServiceUnavailable, retry, "dependency unavailable", details},
	CodeStorage:       {http.StatusServiceUnavailable, retry, "order could not be saved, please retry", noDetails},
	CodePartialOrder:  {http.StatusBadGateway, retry, "order saved without its items, resume to finish", details},
	CodeFeed:          {http.StatusServiceUnavailable, noRetry, "live notifications unavailable", noDetails},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error. The zero-value pointer reads as CodeInternal.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost typed error in err's chain carries code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// Retryable reports whether the caller may retry the failed operation as-is.
// Untyped errors are treated as retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	typed := As(err)
	if typed == nil {
		return true
	}
	return MetadataFor(typed.Code()).Retryable
}
