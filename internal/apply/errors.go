package apply

import (
	"errors"
	"fmt"
)

// Sentinel errors for apply operations.
var (
	// ErrTransportUnavailable indicates the transport stayed disconnected
	// through the bounded reconnect window.
	ErrTransportUnavailable = errors.New("apply: transport unavailable")

	// ErrBusSensorLimit indicates the staged batch would exceed the
	// per-device bus sensor maximum.
	ErrBusSensorLimit = errors.New("apply: bus sensor limit exceeded")

	// ErrSnapshotFailed indicates the pre-transaction backup could not
	// be taken. Nothing was mutated.
	ErrSnapshotFailed = errors.New("apply: snapshot failed")
)

// ApplyError reports a failed apply run. It carries the original cause,
// the pending entry that failed, and the rollback outcome, so a rollback
// failure is always distinguishable from the failure that triggered it.
type ApplyError struct {
	// DeviceID is the device the apply ran against.
	DeviceID string

	// PendingID is the id of the staged entry that failed, empty when
	// the failure preceded entry iteration.
	PendingID string

	// Cause is the error that stopped the run.
	Cause error

	// RolledBack reports whether the pre-transaction snapshot was
	// restored.
	RolledBack bool

	// RollbackErr is set when the restore itself failed. Device state
	// must then be treated as suspect until the device reports back.
	RollbackErr error
}

func (e *ApplyError) Error() string {
	msg := fmt.Sprintf("apply %s failed: %v", e.DeviceID, e.Cause)
	if e.PendingID != "" {
		msg = fmt.Sprintf("apply %s failed at %s: %v", e.DeviceID, e.PendingID, e.Cause)
	}
	switch {
	case e.RollbackErr != nil:
		return fmt.Sprintf("%s (rollback failed: %v)", msg, e.RollbackErr)
	case e.RolledBack:
		return fmt.Sprintf("%s (rolled back)", msg)
	default:
		return msg
	}
}

func (e *ApplyError) Unwrap() error {
	return e.Cause
}
