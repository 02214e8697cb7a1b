package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrNoDocument is returned when an operation needs a current document
	// and none has been loaded yet.
	ErrNoDocument = errors.New("session: no current document")
	// ErrNoToken is returned when the current document carries no view token.
	ErrNoToken = errors.New("session: view token not found")
	// ErrNoFixtureStore is returned when replay or capture is enabled
	// without a fixture store.
	ErrNoFixtureStore = errors.New("session: fixture store is not configured")
)

// StateError reports a response classified as something other than success.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	if e.Op == "" {
		return "failed " + string(e.State)
	}
	return fmt.Sprintf("%s: failed %s", e.Op, e.State)
}

// ErrorKind labels a transport failure.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindConnection  ErrorKind = "connection"
	KindForbidden   ErrorKind = "forbidden"
	KindNotFound    ErrorKind = "not_found"
	KindRateLimited ErrorKind = "rate_limited"
	KindHTTPStatus  ErrorKind = "http_status"
	KindOther       ErrorKind = "other"
)

// TransportError is a failed live request. Status is zero when no response
// arrived.
type TransportError struct {
	Kind   ErrorKind
	Method string
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Method, e.URL, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a TransportError of kind.
func IsKind(err error, kind ErrorKind) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == kind
}

func newTransportError(method, target string, status int, err error) *TransportError {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	return &TransportError{
		Kind:   errorKind(err, status),
		Method: method,
		URL:    target,
		Status: status,
		Err:    err,
	}
}

func errorKind(err error, status int) ErrorKind {
	var netErr net.Error
	var opErr *net.OpError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return KindTimeout
	case errors.As(err, &opErr):
		return KindConnection
	}

	switch {
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= http.StatusBadRequest:
		return KindHTTPStatus
	}
	return KindOther
}

// errorTypeLabel names err for the errors metric.
func errorTypeLabel(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		return string(te.Kind)
	}
	var state *StateError
	if errors.As(err, &state) {
		return string(state.State)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return string(KindOther)
}
