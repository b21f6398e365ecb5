package apperrors

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindAuthenticationFailed Kind = "authentication_failed"
	KindNotAuthorized        Kind = "not_authorized"
	KindRoomNotEligible      Kind = "room_not_eligible"
	KindInvalidTransition    Kind = "invalid_transition"
	KindPreconditionFailed   Kind = "precondition_failed"
	KindEmptyContent         Kind = "empty_content"
	KindInvalidInput         Kind = "invalid_input"
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindNotInRoom            Kind = "not_in_room"
	KindRateLimited          Kind = "rate_limited"
	KindUnavailable          Kind = "unavailable"
	KindInternal             Kind = "internal"
)

// Error is the structured failure surfaced to HTTP and websocket callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so wrapped variants compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinel errors
var (
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed, Message: "authentication failed"}
	ErrNotAuthorized        = &Error{Kind: KindNotAuthorized, Message: "not authorized"}
	ErrRoomNotEligible      = &Error{Kind: KindRoomNotEligible, Message: "trip chat is not available for this booking yet"}
	ErrInvalidTransition    = &Error{Kind: KindInvalidTransition, Message: "invalid state transition"}
	ErrPreconditionFailed   = &Error{Kind: KindPreconditionFailed, Message: "precondition failed"}
	ErrEmptyContent         = &Error{Kind: KindEmptyContent, Message: "message content is empty"}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrNotFound             = &Error{Kind: KindNotFound, Message: "resource not found"}
	ErrConflict             = &Error{Kind: KindConflict, Message: "resource conflict"}
	ErrNotInRoom            = &Error{Kind: KindNotInRoom, Message: "join the trip chat first"}
	ErrRateLimited          = &Error{Kind: KindRateLimited, Message: "too many messages, slow down"}
	ErrUnavailable          = &Error{Kind: KindUnavailable, Message: "service temporarily unavailable"}
	ErrInternal             = &Error{Kind: KindInternal, Message: "internal server error"}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of err, or KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Retryable tells the client whether repeating the same request may succeed later.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRoomNotEligible, KindNotInRoom, KindRateLimited, KindUnavailable, KindConflict:
		return true
	default:
		return false
	}
}

// PublicMessage hides internal details of errors outside the taxonomy.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return ErrInternal.Message
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthenticationFailed:
		return http.StatusUnauthorized
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindRoomNotEligible, KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case KindInvalidTransition, KindConflict:
		return http.StatusConflict
	case KindEmptyContent, KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindNotInRoom:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
