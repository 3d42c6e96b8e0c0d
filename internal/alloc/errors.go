package alloc

import "errors"

// Validation errors. All are recoverable: they are surfaced to the caller
// before any transport call and never mutate state.
var (
	// ErrBusPinRequired is returned when a bus sensor targets a pin other
	// than the board's designated bus pin.
	ErrBusPinRequired = errors.New("alloc: bus pin required")

	// ErrPinReserved is returned when an assignment targets a reserved pin.
	ErrPinReserved = errors.New("alloc: pin reserved")

	// ErrPinInputOnly is returned when an actuator targets an input-only pin.
	ErrPinInputOnly = errors.New("alloc: pin is input only")

	// ErrPinNotUsable is returned when a pin is outside the board's usable set.
	ErrPinNotUsable = errors.New("alloc: pin not usable on this board")

	// ErrAddressClaimed is returned when a bus address is already held on
	// the device, or the device is at its bus sensor limit.
	ErrAddressClaimed = errors.New("alloc: bus address unavailable")
)
