package traci

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when an operation is attempted on a connection
	// that is not in the READY state, or when a transport failure tears the
	// connection down underneath in-flight requests.
	ErrClosed = errors.New("traci: connection closed")

	// ErrFraming marks a stream whose declared frame lengths no longer make
	// sense. It is fatal for the same reason a transport error is: the
	// request/response pairing cannot be trusted afterwards.
	ErrFraming = errors.New("traci: framing error")

	// ErrTimeout is returned when a request outlives its deadline. The
	// connection is left in an indeterminate state (see Correlator) and the
	// caller should tear it down rather than resume.
	ErrTimeout = errors.New("traci: request timed out")

	// ErrAlreadyConnected is returned by Connect on a client that is not in
	// the DISCONNECTED state.
	ErrAlreadyConnected = errors.New("traci: already connected")
)

// ResultError is a well-formed response with a non-zero result code. It is
// non-fatal: the connection stays usable and the error applies only to the
// single query that produced it.
type ResultError struct {
	Command     byte
	Code        byte
	Description string
}

func (e *ResultError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("traci: command 0x%02X failed with code 0x%02X", e.Command, e.Code)
	}
	return fmt.Sprintf("traci: command 0x%02X failed with code 0x%02X: %s", e.Command, e.Code, e.Description)
}

// IsFatal reports whether err poisons the connection. Semantic errors and
// decode leniency do not; transport, framing, and timeout failures do.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var re *ResultError
	if errors.As(err, &re) {
		return false
	}
	return true
}
