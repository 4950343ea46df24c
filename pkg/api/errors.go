package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind classifies a failed request.
type Kind string

const (
	// KindTransport means no usable response was received.
	KindTransport Kind = "transport_error"
	// KindServer means the server answered with an error status or success:false.
	KindServer Kind = "server_error"
)

// ErrCanceled marks a request aborted by its caller. It always wraps
// context.Canceled so callers that only know the context package can detect it.
var ErrCanceled = errors.New("request canceled")

// Error is the error type returned for transport and server failures.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsCanceled reports whether err is a caller cancellation rather than a failure.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// Message returns the human-readable message carried by err, or "" when it
// carries none. Callers substitute their own default for the empty case.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func canceled(err error) error {
	return fmt.Errorf("%w: %w", ErrCanceled, err)
}

// messageFromBody pulls a message out of an error body. Backends are not
// consistent about where they put it, so the common shapes are tried in order.
func messageFromBody(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	if root := gjson.ParseBytes(body); root.Type == gjson.String {
		return root.String()
	}
	for _, path := range []string{"message", "error.message", "error"} {
		r := gjson.GetBytes(body, path)
		if r.Exists() && r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	return ""
}
