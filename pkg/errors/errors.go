package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

// Generic codes shared by every surface.
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
)

// Catalog and order kinds.
const (
	CodeEmptyCart         Code = "EMPTY_CART"
	CodeProductNotFound   Code = "PRODUCT_NOT_FOUND"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeNegativeStock     Code = "NEGATIVE_STOCK"
	CodeMixedSuppliers    Code = "MIXED_SUPPLIERS"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeOrderClosed       Code = "ORDER_CLOSED"
)

// Group-order kinds.
const (
	CodeInvalidQuantity  Code = "INVALID_QUANTITY"
	CodeInvalidEndDate   Code = "INVALID_END_DATE"
	CodeGroupOrderClosed Code = "GROUP_ORDER_CLOSED"
	CodeSettlementFailed Code = "SETTLEMENT_FAILED"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
	CodeUnauthorized:  {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
	CodeForbidden:     {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
	CodeNotFound:      {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
	CodeConflict:      {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
	CodeStateConflict: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true},
	CodeIdempotency:   {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true},
	CodeRateLimit:     {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded"},
	CodeInternal:      {HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"},
	CodeDependency:    {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true},

	CodeEmptyCart:         {HTTPStatus: http.StatusBadRequest, PublicMessage: "cart is empty"},
	CodeProductNotFound:   {HTTPStatus: http.StatusNotFound, PublicMessage: "product not found", DetailsAllowed: true},
	CodeInsufficientStock: {HTTPStatus: http.StatusConflict, PublicMessage: "insufficient stock", DetailsAllowed: true},
	CodeNegativeStock:     {HTTPStatus: http.StatusConflict, PublicMessage: "stock cannot go below zero", DetailsAllowed: true},
	CodeMixedSuppliers:    {HTTPStatus: http.StatusBadRequest, PublicMessage: "order items must share one supplier", DetailsAllowed: true},
	CodeInvalidTransition: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "invalid status transition", DetailsAllowed: true},
	CodeOrderClosed:       {HTTPStatus: http.StatusConflict, PublicMessage: "order is closed", DetailsAllowed: true},

	CodeInvalidQuantity:  {HTTPStatus: http.StatusBadRequest, PublicMessage: "quantity must be positive", DetailsAllowed: true},
	CodeInvalidEndDate:   {HTTPStatus: http.StatusBadRequest, PublicMessage: "end date must be in the future", DetailsAllowed: true},
	CodeGroupOrderClosed: {HTTPStatus: http.StatusConflict, PublicMessage: "group order is closed", DetailsAllowed: true},
	CodeSettlementFailed: {HTTPStatus: http.StatusInternalServerError, PublicMessage: "group order settlement failed", DetailsAllowed: true},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error every service returns. The code decides the
// transport status; the message is for logs and, when the code allows it,
// the caller.
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
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

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
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
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

// CodeOf returns the code of the outermost typed error in the chain, or
// CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
