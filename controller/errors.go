// Package controller implements the façade that wires session state, the
// motion engine and the supervisor into the single set of operations an
// external caller uses: connect, discover, start/pause/resume/stop motion,
// telemetry, and per-servo configuration.
package controller

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind names one of the error categories a caller distinguishes on, rather
// than matching on message text.
type Kind string

const (
	KindNotConnected     Kind = "NotConnected"
	KindInvalidArgument  Kind = "InvalidArgument"
	KindPortOpenFailed   Kind = "PortOpenFailed"
	KindBaudSetFailed    Kind = "BaudSetFailed"
	KindTransportTimeout Kind = "TransportTimeout"
	KindTransportCorrupt Kind = "TransportCorrupt"
	KindTransportRefused Kind = "TransportRefused"
	KindServoNotFound    Kind = "ServoNotFound"
	KindIDInUse          Kind = "IdInUse"
	KindEepromProtected  Kind = "EepromProtected"
	KindRecoveryExhausted Kind = "RecoveryExhausted"
	KindInternal         Kind = "Internal"
)

// kindError pairs a Kind with an underlying, possibly pkg/errors-wrapped
// cause so callers can both branch on ErrorKind(err) and print a full stack
// via "%+v" for KindInternal.
type kindError struct {
	kind  Kind
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return string(e.kind)
	}
	return fmt.Sprintf("%s: %v", e.kind, e.cause)
}

// Format prints the cause's stack trace for "%+v"; every other verb prints
// Error().
func (e *kindError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') && e.cause != nil {
		fmt.Fprintf(s, "%s: %+v", e.kind, e.cause)
		return
	}
	fmt.Fprint(s, e.Error())
}

func (e *kindError) Unwrap() error { return e.cause }

// newKindError builds a kindError, wrapping a non-nil cause with a stack
// trace captured here via pkg/errors.
func newKindError(kind Kind, cause error) error {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &kindError{kind: kind, cause: cause}
}

// ErrorKind extracts the Kind from err, or KindInternal if err doesn't carry
// one (an invariant violation the façade didn't anticipate).
func ErrorKind(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	if err == nil {
		return ""
	}
	return KindInternal
}

func errNotConnected() error {
	return newKindError(KindNotConnected, errors.New("no open connection"))
}

func errInvalidArgument(msg string, args ...interface{}) error {
	return newKindError(KindInvalidArgument, errors.Errorf(msg, args...))
}
