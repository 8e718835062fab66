package mailservice

import (
	"errors"
	"fmt"
)

// ErrNilMessage is returned by Send and Post when called without a message.
var ErrNilMessage = errors.New("message must not be nil")

// BuildError reports a failure while composing an outbound message.
type BuildError struct {
	MessageID string
	Err       error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building message %s: %v", e.MessageID, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// TransmissionError reports a failed background send. It is logged by the
// dispatcher and never returned to the caller of Send.
type TransmissionError struct {
	MessageID string
	Err       error
}

func (e *TransmissionError) Error() string {
	return fmt.Sprintf("transmitting message %s: %v", e.MessageID, e.Err)
}

func (e *TransmissionError) Unwrap() error {
	return e.Err
}

// ReconciliationError reports an aborted fetch cycle. UID and MessageID
// name the remote message being processed when the cycle failed, if any.
type ReconciliationError struct {
	UID       uint32
	MessageID string
	Err       error
}

func (e *ReconciliationError) Error() string {
	if e.UID == 0 {
		return fmt.Sprintf("reconciliation cycle failed: %v", e.Err)
	}
	return fmt.Sprintf("reconciliation cycle failed at uid %d (%s): %v", e.UID, e.MessageID, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// IsBuildError reports whether err is a BuildError.
func IsBuildError(err error) bool {
	var be *BuildError
	return errors.As(err, &be)
}
