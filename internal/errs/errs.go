// Package errs defines the failure kinds shared by the exporter components.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide between aborting and continuing.
type Kind int

const (
	// Other is the zero kind for errors that were never classified.
	Other Kind = iota
	// InvalidInput marks malformed geometry files, rasters or arguments.
	// Raised before any remote call is made.
	InvalidInput
	// RemoteSubmission marks a rejection by the remote compute service or warehouse.
	RemoteSubmission
	// Storage marks a ledger that cannot be opened or written.
	Storage
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid input"
	case RemoteSubmission:
		return "remote submission"
	case Storage:
		return "storage"
	default:
		return "other"
	}
}

// Error is a classified failure raised by operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and operation name. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
