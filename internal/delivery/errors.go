package delivery

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrRejectedBySize is returned before any network I/O when an artifact
	// exceeds the channel cap. Routing should make this unreachable, so
	// callers treat it as an internal consistency violation.
	ErrRejectedBySize = errors.New("payload exceeds channel size cap")

	// ErrChannelUnavailable is returned by a client whose credentials are
	// missing or that was disabled by a fatal error earlier in the run.
	ErrChannelUnavailable = errors.New("channel unavailable")

	// ErrNoChannel means no available channel can carry the payload.
	ErrNoChannel = errors.New("no available channel for payload")
)

// TransientError marks a failure worth retrying under the channel policy
// (network errors, rate limits, server errors).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a credential or permission failure. It aborts the
// remaining attempts and disables the channel for the rest of the run.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError.
func Transient(err error) error { return &TransientError{Err: err} }

// Fatal wraps err as a FatalError.
func Fatal(err error) error { return &FatalError{Err: err} }

// Fatalf builds a FatalError from a format string.
func Fatalf(format string, args ...interface{}) error {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}
