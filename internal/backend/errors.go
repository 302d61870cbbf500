package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized matches any APIError carrying a 401, i.e. an expired or
// invalid session.
var ErrUnauthorized = errors.New("backend: session expired or invalid")

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status int
	// Message is the server-provided message, or a generic one when the
	// body carried none.
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Message returns the text to show a user for err: the server's message for
// an APIError, a generic failure otherwise.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return GenericFailure
}

// GenericFailure is shown when the backend gave no usable message.
const GenericFailure = "Something went wrong, please try again."
