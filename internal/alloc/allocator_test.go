package alloc

import (
	"errors"
	"testing"

	"github.com/pingrid/pingrid-core/internal/board"
	"github.com/pingrid/pingrid-core/internal/device"
)

func newTestDevice(boardType string) *device.Device {
	return &device.Device{
		ID:        "dev-1",
		BoardType: boardType,
		Subzones:  make(map[string]*device.Subzone),
	}
}

func withBusSensor(d *device.Device, pin, addr int) *device.Device {
	sz, ok := d.Subzones["sz1"]
	if !ok {
		sz = &device.Subzone{
			ID:         "sz1",
			Sensors:    make(map[int]device.PinAssignment),
			BusSensors: make(map[int]device.PinAssignment),
			Actuators:  make(map[int]device.PinAssignment),
		}
		d.Subzones["sz1"] = sz
	}
	sz.BusSensors[addr] = device.PinAssignment{
		Pin:        pin,
		Type:       device.RoleBusSensor,
		Category:   device.CategorySensor,
		SubzoneID:  "sz1",
		BusAddress: addr,
	}
	return d
}

func TestValidatePinBusRoleRequiresBusPin(t *testing.T) {
	a := New(board.NewRegistry())
	dev := newTestDevice("esp32")

	if err := a.ValidatePin(dev, 21, device.RoleBusSensor); err != nil {
		t.Errorf("bus sensor on SDA pin 21 rejected: %v", err)
	}

	err := a.ValidatePin(dev, 25, device.RoleBusSensor)
	if !errors.Is(err, ErrBusPinRequired) {
		t.Errorf("bus sensor on pin 25: got %v, want ErrBusPinRequired", err)
	}
}

func TestValidatePinReservedRejectedForEveryRole(t *testing.T) {
	a := New(board.NewRegistry())
	dev := newTestDevice("esp32")
	profile := board.NewRegistry().Lookup("esp32")

	for _, pin := range profile.Reserved {
		for _, role := range device.AllRoleTypes() {
			err := a.ValidatePin(dev, pin, role)
			if err == nil {
				t.Errorf("reserved pin %d accepted for role %s", pin, role)
				continue
			}
			// Bus roles fail the bus-pin check first; everything else must
			// report the reservation.
			if !role.RequiresBus() && !errors.Is(err, ErrPinReserved) {
				t.Errorf("reserved pin %d role %s: got %v, want ErrPinReserved", pin, role, err)
			}
		}
	}
}

func TestValidatePinActuatorOnInputOnly(t *testing.T) {
	a := New(board.NewRegistry())
	dev := newTestDevice("esp32")

	err := a.ValidatePin(dev, 34, device.RoleRelay)
	if !errors.Is(err, ErrPinInputOnly) {
		t.Errorf("relay on input-only pin 34: got %v, want ErrPinInputOnly", err)
	}

	if err := a.ValidatePin(dev, 34, device.RoleDigitalIn); err != nil {
		t.Errorf("sensor on input-only pin 34 rejected: %v", err)
	}
}

func TestValidatePinOutsideUsableSet(t *testing.T) {
	a := New(board.NewRegistry())
	dev := newTestDevice("esp32")

	err := a.ValidatePin(dev, 99, device.RoleRelay)
	if !errors.Is(err, ErrPinNotUsable) {
		t.Errorf("pin 99: got %v, want ErrPinNotUsable", err)
	}
}

func TestValidatePinUnknownBoardUsesDefault(t *testing.T) {
	a := New(board.NewRegistry())
	dev := newTestDevice("mystery-board")

	// Default profile is esp32: SDA is 21.
	if err := a.ValidatePin(dev, 21, device.RoleBusSensor); err != nil {
		t.Errorf("default profile bus pin rejected: %v", err)
	}
}

func TestBusAddressAvailable(t *testing.T) {
	a := New(board.NewRegistry())
	dev := newTestDevice("esp32")

	if !a.BusAddressAvailable(dev, 0x44) {
		t.Error("address 0x44 should be available on empty device")
	}

	withBusSensor(dev, 21, 0x44)
	if a.BusAddressAvailable(dev, 0x44) {
		t.Error("claimed address 0x44 reported available")
	}
	if !a.BusAddressAvailable(dev, 0x45) {
		t.Error("free address 0x45 reported unavailable")
	}
}

func TestBusAddressLimitBlocksNewAddresses(t *testing.T) {
	a := New(board.NewRegistry())
	dev := newTestDevice("esp32")

	for i := 0; i < device.MaxBusSensors; i++ {
		withBusSensor(dev, 21, BusAddressMin+i)
	}

	if got := a.CountBusSensors(dev); got != device.MaxBusSensors {
		t.Fatalf("CountBusSensors = %d, want %d", got, device.MaxBusSensors)
	}
	if a.BusAddressAvailable(dev, 0x50) {
		t.Error("new address accepted at sensor limit")
	}
}

func TestNextBusAddress(t *testing.T) {
	a := New(board.NewRegistry())
	dev := newTestDevice("esp32")

	addr, ok := a.NextBusAddress(dev)
	if !ok || addr != BusAddressMin {
		t.Errorf("NextBusAddress on empty device = (%#x, %v), want (%#x, true)", addr, ok, BusAddressMin)
	}

	withBusSensor(dev, 21, BusAddressMin)
	withBusSensor(dev, 21, BusAddressMin+1)
	addr, ok = a.NextBusAddress(dev)
	if !ok || addr != BusAddressMin+2 {
		t.Errorf("NextBusAddress = (%#x, %v), want (%#x, true)", addr, ok, BusAddressMin+2)
	}

	claimed := dev.ClaimedBusAddresses()
	if _, taken := claimed[addr]; taken {
		t.Errorf("NextBusAddress returned claimed address %#x", addr)
	}
}

func TestNextBusAddressExhaustion(t *testing.T) {
	a := New(board.NewRegistry())
	dev := newTestDevice("esp32")

	for addr := BusAddressMin; addr <= BusAddressMax; addr++ {
		withBusSensor(dev, 21, addr)
	}

	if addr, ok := a.NextBusAddress(dev); ok {
		t.Errorf("NextBusAddress on exhausted range returned %#x", addr)
	}
}
