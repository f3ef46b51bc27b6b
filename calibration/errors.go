package calibration

import (
	"errors"
	"fmt"
)

// ErrLockHeld is returned immediately when a run is attempted against a
// device that already has an exclusive operation in progress.
var ErrLockHeld = errors.New("calibration already in progress for device")

// TimeoutError reports that the motor never read as stopped within the
// phase ceiling. Operationally this points at a jammed or disconnected
// motor.
type TimeoutError struct {
	Phase Phase
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("calibration timed out waiting for motor stop during %s", e.Phase)
}

// CancelledError reports a deliberate caller cancellation, distinct from
// both timeout and device failure.
type CancelledError struct {
	Phase Phase
}

func (e CancelledError) Error() string {
	return fmt.Sprintf("calibration cancelled during %s", e.Phase)
}

// PhaseError wraps a channel failure with the phase it interrupted. The
// cause is preserved so callers can distinguish an explicit device
// rejection from transport exhaustion.
type PhaseError struct {
	Phase Phase
	Cause error
}

func (e PhaseError) Error() string {
	return fmt.Sprintf("calibration failed during %s: %s", e.Phase, e.Cause)
}

func (e PhaseError) Unwrap() error {
	return e.Cause
}
