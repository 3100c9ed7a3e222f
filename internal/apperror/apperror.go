// Package apperror classifies failures so transports can map them to a response
// without inspecting error strings.
package apperror

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	KindAuthorization   Kind = "AUTHORIZATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindState           Kind = "STATE"
	KindAmountMismatch  Kind = "AMOUNT_MISMATCH"
	KindConflict        Kind = "CONFLICT"
	KindGateway         Kind = "GATEWAY"
	KindStorage         Kind = "STORAGE"
	KindInternal        Kind = "INTERNAL"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, apperror.Conflict("")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string) *Error      { return New(KindValidation, msg) }
func Unauthenticated(msg string) *Error { return New(KindUnauthenticated, msg) }
func Authorization(msg string) *Error   { return New(KindAuthorization, msg) }
func NotFound(msg string) *Error        { return New(KindNotFound, msg) }
func State(msg string) *Error           { return New(KindState, msg) }
func AmountMismatch(msg string) *Error  { return New(KindAmountMismatch, msg) }
func Conflict(msg string) *Error        { return New(KindConflict, msg) }

func Gateway(msg string, err error) *Error { return Wrap(KindGateway, msg, err) }
func Storage(msg string, err error) *Error { return Wrap(KindStorage, msg, err) }

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindState, KindConflict:
		return http.StatusConflict
	case KindAmountMismatch:
		return http.StatusUnprocessableEntity
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage hides gateway and storage details from API callers.
func PublicMessage(err error) string {
	switch KindOf(err) {
	case KindGateway:
		var e *Error
		errors.As(err, &e)
		if e.Message != "" {
			return e.Message
		}
		return "payment provider error"
	case KindStorage, KindInternal:
		return "internal server error"
	default:
		var e *Error
		errors.As(err, &e)
		if e.Message != "" {
			return e.Message
		}
		return e.Error()
	}
}
