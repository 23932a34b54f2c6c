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

	// Business-rule failures surfaced to callers with renderable details.
	CodeQuotaExceeded      Code = "QUOTA_EXCEEDED"
	CodeInsufficientPoints Code = "INSUFFICIENT_POINTS"
	CodeCouponIneligible   Code = "COUPON_INELIGIBLE"
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodeStockUnavailable   Code = "STOCK_UNAVAILABLE"

	// Consistency failures: the transaction was rolled back, callers retry.
	CodeInventoryWriteFailed Code = "INVENTORY_WRITE_FAILED"
)

// Metadata is how a code is rendered to API callers.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// BusinessRule marks expected outcomes that are logged at warn, not error.
	BusinessRule bool
}

const (
	retryable    = true
	withDetails  = true
	businessRule = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, !retryable, "validation failed", withDetails, businessRule},
	CodeUnauthorized:  {http.StatusUnauthorized, !retryable, "authentication required", !withDetails, !businessRule},
	CodeForbidden:     {http.StatusForbidden, !retryable, "access denied", !withDetails, !businessRule},
	CodeNotFound:      {http.StatusNotFound, !retryable, "resource not found", !withDetails, businessRule},
	CodeConflict:      {http.StatusConflict, !retryable, "conflict detected", !withDetails, businessRule},
	CodeStateConflict: {http.StatusUnprocessableEntity, !retryable, "state transition disallowed", withDetails, businessRule},
	CodeInternal:      {http.StatusInternalServerError, retryable, "internal server error", !withDetails, !businessRule},
	CodeDependency:    {http.StatusServiceUnavailable, retryable, "dependency unavailable", withDetails, !businessRule},

	CodeQuotaExceeded:      {http.StatusForbidden, !retryable, "plan limit reached", withDetails, businessRule},
	CodeInsufficientPoints: {http.StatusUnprocessableEntity, !retryable, "insufficient loyalty points", withDetails, businessRule},
	CodeCouponIneligible:   {http.StatusUnprocessableEntity, !retryable, "coupon cannot be applied", withDetails, businessRule},
	CodeInvalidTransition:  {http.StatusConflict, !retryable, "order status change not allowed", withDetails, businessRule},
	CodeStockUnavailable:   {http.StatusUnprocessableEntity, !retryable, "insufficient stock", withDetails, businessRule},

	CodeInventoryWriteFailed: {http.StatusServiceUnavailable, retryable, "operation failed, retry", !withDetails, !businessRule},
}

// MetadataFor falls back to the internal error rendering for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
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

// Newf formats the message with fmt.Sprintf.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap keeps err as the cause; a nil err behaves like New.
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
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether err carries the given typed code anywhere in its chain.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// IsBusinessRule reports whether err is an expected, caller-recoverable failure.
func IsBusinessRule(err error) bool {
	typed := As(err)
	return typed != nil && MetadataFor(typed.Code()).BusinessRule
}

// IsRetryable reports whether the caller may repeat the operation unchanged.
// Untyped errors are treated as internal failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	typed := As(err)
	if typed == nil {
		return MetadataFor(CodeInternal).Retryable
	}
	return MetadataFor(typed.Code()).Retryable
}
