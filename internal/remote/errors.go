package remote

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/grocery-sync/internal/store"
)

// Client errors.
var (
	ErrInvalidBaseURL    = errors.New("base URL must be an absolute http or https URL")
	ErrMalformedSnapshot = errors.New("malformed snapshot message")
	ErrDisconnected      = errors.New("snapshot stream disconnected")
	ErrRemote            = errors.New("remote store reported an error")
)

// StatusError is returned when the store server answers with an unexpected
// status code.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
}

// Unwrap returns the store error matching the status code, if any.
func (e *StatusError) Unwrap() error {
	return e.Err
}

// statusToStoreError maps a response status back onto the store's sentinel
// errors so callers can use errors.Is regardless of transport.
func statusToStoreError(op string, status int) error {
	switch status {
	case http.StatusNotFound:
		return store.ErrInvalidCollection
	case http.StatusBadRequest:
		if op == opDelete {
			return store.ErrInvalidKey
		}
		return store.ErrEmptyValue
	case http.StatusServiceUnavailable:
		return store.ErrClosed
	default:
		return nil
	}
}
