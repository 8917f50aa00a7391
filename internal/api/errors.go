package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/drive-control/dcc/internal/queue"
)

// ErrIngressLimited reports that the caller has exceeded the admission
// rate and should retry later.
var ErrIngressLimited = errors.New("command rate limit exceeded")

// ValidationError reports a request payload that fails semantic
// validation. The message is returned verbatim to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// toErrorResponse maps handler errors to responses. Error classification
// lives here so individual handlers never pick status codes.
func toErrorResponse(err error) *Response {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return errorDetail(http.StatusUnprocessableEntity, verr.Message)
	case errors.Is(err, ErrIngressLimited):
		return errorDetail(http.StatusTooManyRequests, "Command rate limit exceeded")
	case errors.Is(err, queue.ErrQueueFull):
		return errorDetail(http.StatusServiceUnavailable, "Drive command queue is full")
	default:
		return errorDetail(http.StatusInternalServerError, "Internal server error")
	}
}
