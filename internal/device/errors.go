package device

import "errors"

// Domain errors for the device package.
//
// Check with errors.Is():
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrPinClaimed is returned when an assignment targets a pin already
	// held by another assignment on the same device.
	ErrPinClaimed = errors.New("device: pin already claimed")

	// ErrAddressClaimed is returned when a bus sensor targets a bus address
	// already held by another bus sensor on the same device.
	ErrAddressClaimed = errors.New("device: bus address already claimed")

	// ErrNoAssignment is returned when removing an assignment from a pin
	// that has none.
	ErrNoAssignment = errors.New("device: no assignment on pin")

	// ErrInvalidRole is returned when a role type is not recognised.
	ErrInvalidRole = errors.New("device: invalid role type")

	// ErrInvalidEvent is returned when an inbound event payload cannot be
	// decoded or is missing required fields.
	ErrInvalidEvent = errors.New("device: invalid event payload")
)
