package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrSlowConsumer      = fmt.Errorf("slow consumer")
	ErrConnectionClosed  = fmt.Errorf("connection closed")
	ErrInvalidPayload    = fmt.Errorf("invalid payload")
	ErrDispatcherStopped = fmt.Errorf("dispatcher stopped")
	ErrUnauthenticated   = fmt.Errorf("unauthenticated")
	ErrRateLimited       = fmt.Errorf("too many actions")
)

// Caller-visible taxonomy of chat actions.
var (
	ErrValidation    = fmt.Errorf("validation error")
	ErrAuthorization = fmt.Errorf("authorization error")
	ErrNotFound      = fmt.Errorf("not found")
	ErrWindowExpired = fmt.Errorf("edit window expired")
	ErrStorage       = fmt.Errorf("storage error")
)

// Is and As let callers import a single errors package.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// Code is the stable, client-facing identifier of an error kind.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrValidation), Is(err, ErrInvalidPayload):
		return "validation_error"
	case Is(err, ErrAuthorization):
		return "authorization_error"
	case Is(err, ErrNotFound):
		return "not_found"
	case Is(err, ErrWindowExpired):
		return "window_expired"
	case Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal_error"
	}
}

// MapToHTTPStatus translates an action error to the status returned by the request surface.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case Is(err, ErrValidation), Is(err, ErrInvalidPayload):
		return http.StatusBadRequest
	case Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case Is(err, ErrAuthorization):
		return http.StatusForbidden
	case Is(err, ErrNotFound):
		return http.StatusNotFound
	case Is(err, ErrWindowExpired):
		return http.StatusConflict
	case Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage hides storage and internal failures behind a generic text.
func PublicMessage(err error) string {
	if Code(err) == "internal_error" {
		return "internal error, please retry later"
	}
	return err.Error()
}
