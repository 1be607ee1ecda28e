// Package apiresponses produces the JSON envelope returned for every failed request.
package apiresponses

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

const (
	// GenericErrorMessage replaces the real failure text outside development.
	GenericErrorMessage = "An error occurred. Please try again later."
	// EnvelopeMessage is the msg of every envelope; the status code carries the kind.
	EnvelopeMessage = "Internal Server Error"
)

// ErrorEnvelope is the body written for any failed request.
type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
	Error   string `json:"error"`
	Stack   string `json:"stack,omitempty"`
}

// HTTPError carries the status a failure advertises to the client.
type HTTPError struct {
	Status int
	Err    error
}

// NewHTTPError wraps err with a stack trace and an advertised status.
func NewHTTPError(status int, err error) *HTTPError {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	return &HTTPError{Status: status, Err: errors.WithStack(err)}
}

// Errorf is NewHTTPError with a formatted message.
func Errorf(status int, format string, args ...interface{}) *HTTPError {
	return &HTTPError{Status: status, Err: errors.Errorf(format, args...)}
}

func (e *HTTPError) Error() string {
	return e.Err.Error()
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// StatusOf returns the status advertised by err, or 500.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Status >= 400 {
		return httpErr.Status
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}

	return http.StatusInternalServerError
}

// StackOf renders the stack recorded on err. Errors created without
// github.com/pkg/errors get a stack captured at this call.
func StackOf(err error) string {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			return fmt.Sprintf("%s%+v", err.Error(), st.StackTrace())
		}
	}
	return fmt.Sprintf("%+v", errors.WithStack(err))
}

// Envelope builds the response body for err. Only showDetails bodies carry the
// underlying message and a stack.
func Envelope(err error, showDetails bool) ErrorEnvelope {
	env := ErrorEnvelope{
		Success: false,
		Msg:     EnvelopeMessage,
	}

	if !showDetails {
		env.Error = GenericErrorMessage
		return env
	}

	env.Error = err.Error()
	env.Stack = StackOf(err)
	return env
}
