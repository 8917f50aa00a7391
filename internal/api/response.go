package api

import (
	"github.com/oklog/ulid/v2"
)

// Response is the dispatcher's uniform return value: an HTTP-style status
// code plus a JSON-serializable body.
type Response struct {
	StatusCode    int
	Body          map[string]any
	CorrelationID string
}

// respond creates a success response.
func respond(statusCode int, body map[string]any) *Response {
	return &Response{StatusCode: statusCode, Body: body}
}

// errorDetail creates an error response with the conventional detail body.
func errorDetail(statusCode int, message string) *Response {
	return &Response{StatusCode: statusCode, Body: map[string]any{"detail": message}}
}

// newCorrelationID generates a unique, lexically sortable request ID.
func newCorrelationID() string {
	return ulid.Make().String()
}
