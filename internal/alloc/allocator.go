package alloc

import (
	"fmt"

	"github.com/pingrid/pingrid-core/internal/board"
	"github.com/pingrid/pingrid-core/internal/device"
)

// Two-wire bus address space (inclusive). Addresses below 0x08 are reserved
// by the bus specification; addresses above 0x77 collide with 10-bit
// addressing.
const (
	BusAddressMin = 0x08
	BusAddressMax = 0x77
)

// Allocator validates proposed pin and bus-address assignments against a
// board profile and a device's current assignments.
//
// Every method is a pure function of its inputs: nothing is mutated, so the
// apply engine can pre-flight check a staged entry before committing it.
type Allocator struct {
	boards *board.Registry
}

// New creates an Allocator over the given board registry.
func New(boards *board.Registry) *Allocator {
	return &Allocator{boards: boards}
}

// ValidatePin checks whether role may be assigned to pin on the device's
// board. Checks run in order:
//
//  1. bus roles must claim the board's designated bus (SDA) pin
//  2. reserved pins are rejected for every role
//  3. actuators are rejected on input-only pins
//  4. the pin must be in the board's usable set
func (a *Allocator) ValidatePin(dev *device.Device, pin int, role device.RoleType) error {
	p := a.boards.Lookup(dev.BoardType)

	if role.RequiresBus() && pin != p.BusSDA {
		return fmt.Errorf("%w: %s requires bus pin %d on %s, got %d",
			ErrBusPinRequired, role, p.BusSDA, p.BoardType, pin)
	}

	if p.IsReserved(pin) {
		return fmt.Errorf("%w: pin %d on %s", ErrPinReserved, pin, p.BoardType)
	}
	if role.Category() == device.CategoryActuator && p.IsInputOnly(pin) {
		return fmt.Errorf("%w: pin %d on %s cannot drive %s",
			ErrPinInputOnly, pin, p.BoardType, role)
	}
	if !p.HasPin(pin) {
		return fmt.Errorf("%w: pin %d on %s", ErrPinNotUsable, pin, p.BoardType)
	}
	return nil
}

// BusAddressAvailable reports whether addr can be claimed by a new bus
// sensor on the device. It is false when the device already holds
// MaxBusSensors bus sensors and addr is new, or when addr is already
// claimed by an existing assignment.
func (a *Allocator) BusAddressAvailable(dev *device.Device, addr int) bool {
	claimed := dev.ClaimedBusAddresses()
	if _, taken := claimed[addr]; taken {
		return false
	}
	return len(claimed) < device.MaxBusSensors
}

// NextBusAddress scans the valid address space in ascending order and
// returns the first address not already claimed on the device. ok is false
// when the full range is exhausted.
func (a *Allocator) NextBusAddress(dev *device.Device) (addr int, ok bool) {
	claimed := dev.ClaimedBusAddresses()
	for candidate := BusAddressMin; candidate <= BusAddressMax; candidate++ {
		if _, taken := claimed[candidate]; !taken {
			return candidate, true
		}
	}
	return 0, false
}

// CountBusSensors returns the number of bus sensor assignments on the
// device.
func (a *Allocator) CountBusSensors(dev *device.Device) int {
	return len(dev.BusSensors())
}
