package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrExternalService = errors.New("external service failure")
	ErrTimeout         = errors.New("timed out")
	ErrConflict        = errors.New("conflicting concurrent update")
	ErrMessageConsumed = errors.New("message was already received on destination chain")
)

// Kind returns a short machine readable classification of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrMessageConsumed):
		return "message_consumed"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrExternalService):
		return "external_service"
	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch Kind(err) {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict", "message_consumed":
		return http.StatusConflict
	case "timeout":
		return http.StatusGatewayTimeout
	case "external_service":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
