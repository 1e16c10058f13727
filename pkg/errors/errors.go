// Package errors carries the typed error codes of the ledger and how each one
// surfaces over HTTP and to retrying consumers.
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
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeInsufficientStock   Code = "INSUFFICIENT_STOCK"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodePublish             Code = "PUBLISH_ERROR"
	CodeIdempotencyInFlight Code = "IDEMPOTENCY_KEY_IN_FLIGHT"
)

// Metadata describes how a code is presented. Callers see the error's own
// message only when ExposeMessage is set; otherwise PublicMessage.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	ExposeMessage  bool
	DetailsAllowed bool
}

const (
	retryable = 1 << iota
	exposeMessage
	detailsAllowed
)

func meta(status int, public string, flags int) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		ExposeMessage:  flags&exposeMessage != 0,
		DetailsAllowed: flags&detailsAllowed != 0,
	}
}

var catalog = map[Code]Metadata{
	CodeValidation:          meta(http.StatusBadRequest, "validation failed", exposeMessage|detailsAllowed),
	CodeUnauthorized:        meta(http.StatusUnauthorized, "authentication required", exposeMessage),
	CodeForbidden:           meta(http.StatusForbidden, "access denied", exposeMessage),
	CodeNotFound:            meta(http.StatusNotFound, "resource not found", exposeMessage),
	CodeConflict:            meta(http.StatusConflict, "conflict detected", exposeMessage),
	CodeStateConflict:       meta(http.StatusUnprocessableEntity, "state transition disallowed", exposeMessage|detailsAllowed),
	CodeIdempotency:         meta(http.StatusConflict, "idempotency key reused", exposeMessage|detailsAllowed),
	CodeRateLimit:           meta(http.StatusTooManyRequests, "rate limit exceeded", exposeMessage),
	CodeInternal:            meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:          meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|detailsAllowed),
	CodeInsufficientStock:   meta(http.StatusUnprocessableEntity, "insufficient stock", exposeMessage|detailsAllowed),
	CodeConcurrencyConflict: meta(http.StatusConflict, "resource is busy, retry later", retryable|exposeMessage),
	CodePublish:             meta(http.StatusServiceUnavailable, "notification delivery failed", retryable),
	CodeIdempotencyInFlight: meta(http.StatusConflict, "request with this idempotency key is in progress", retryable),
}

// MetadataFor returns the presentation of code, falling back to
// CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if m, ok := catalog[code]; ok {
		return m
	}
	return catalog[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
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
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return string(e.code) + ": " + e.message
	}
	return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost typed error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries a typed error with the given code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsRetryable reports whether err is worth retrying. Untyped errors count
// as infrastructure failures and are retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	typed := As(err)
	if typed == nil {
		return true
	}
	return MetadataFor(typed.code).Retryable
}

// Public is the caller-facing rendition of an error.
type Public struct {
	Status  int
	Code    Code
	Message string
	Details any
}

// ToPublic maps any error to what may be shown to a caller. Untyped errors
// become CodeInternal with no message or details leaked.
func ToPublic(err error) Public {
	typed := As(err)
	if typed == nil {
		typed = New(CodeInternal, "")
	}
	m := MetadataFor(typed.code)
	out := Public{Status: m.HTTPStatus, Code: typed.code, Message: m.PublicMessage}
	if m.ExposeMessage && typed.message != "" {
		out.Message = typed.message
	}
	if m.DetailsAllowed {
		out.Details = typed.details
	}
	return out
}
