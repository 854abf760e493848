package verisure

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is returned when the credentials are rejected
	ErrAuthentication = errors.New("authentication failed")

	// ErrMalformedResponse is returned when a response body cannot be decoded
	ErrMalformedResponse = errors.New("malformed response")

	// ErrNoInstallation is returned when the account has no installation
	ErrNoInstallation = errors.New("no installation found")
)

// Error is returned by every remote operation. Err holds the transport error
// or one of the sentinel errors above.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := "verisure " + e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
