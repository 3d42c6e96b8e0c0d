package device

import (
	"sort"
	"time"
)

// MaxBusSensors is the per-device limit on two-wire bus sensors. Devices
// cannot reliably service more than this many addresses on one bus.
const MaxBusSensors = 8

// Status is the lifecycle state of a device.
type Status string

// Status constants.
const (
	StatusUnknown    Status = "unknown"
	StatusDiscovered Status = "discovered"
	StatusConfigured Status = "configured"
	StatusOnline     Status = "online"
	StatusOffline    Status = "offline"
	StatusSetup      Status = "setup"
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{
		StatusUnknown, StatusDiscovered, StatusConfigured,
		StatusOnline, StatusOffline, StatusSetup,
	}
}

// Category distinguishes sensors from actuators.
type Category string

// Category constants.
const (
	CategorySensor   Category = "sensor"
	CategoryActuator Category = "actuator"
)

// RoleType is the device-type tag carried by a pin assignment. It determines
// the category and whether the assignment lives on the two-wire bus.
type RoleType string

// Sensor role types.
const (
	RoleDHT22     RoleType = "dht22"
	RoleDS18B20   RoleType = "ds18b20"
	RoleAnalogIn  RoleType = "analog_in"
	RoleDigitalIn RoleType = "digital_in"
	RoleMotion    RoleType = "motion"

	// RoleBusSensor is a sensor addressed over the shared two-wire bus.
	// Assignments with this role carry a bus address and a part hint.
	RoleBusSensor RoleType = "i2c"
)

// Actuator role types.
const (
	RoleRelay      RoleType = "relay"
	RolePWM        RoleType = "pwm"
	RoleServo      RoleType = "servo"
	RoleDigitalOut RoleType = "digital_out"
)

// AllRoleTypes returns all valid role type values.
func AllRoleTypes() []RoleType {
	return []RoleType{
		RoleDHT22, RoleDS18B20, RoleAnalogIn, RoleDigitalIn, RoleMotion,
		RoleBusSensor,
		RoleRelay, RolePWM, RoleServo, RoleDigitalOut,
	}
}

// Category returns the category a role belongs to. Unknown roles are
// treated as sensors.
func (r RoleType) Category() Category {
	switch r {
	case RoleRelay, RolePWM, RoleServo, RoleDigitalOut:
		return CategoryActuator
	default:
		return CategorySensor
	}
}

// RequiresBus reports whether assignments of this role live on the
// two-wire sensor bus.
func (r RoleType) RequiresBus() bool {
	return r == RoleBusSensor
}

// Valid reports whether r is a recognised role type.
func (r RoleType) Valid() bool {
	for _, t := range AllRoleTypes() {
		if r == t {
			return true
		}
	}
	return false
}

// NetworkHints holds connectivity details reported during discovery.
type NetworkHints struct {
	IP   string `json:"ip,omitempty"`
	RSSI int    `json:"rssi,omitempty"`
}

// CrossDeviceMeta marks a subzone's participation in logic spanning
// multiple devices.
type CrossDeviceMeta struct {
	MultiDevice bool     `json:"multi_device"`
	LogicIDs    []string `json:"logic_ids,omitempty"`
}

// HierarchyMeta places a subzone within the zone/device hierarchy.
type HierarchyMeta struct {
	ParentZone   string   `json:"parent_zone,omitempty"`
	SiblingIDs   []string `json:"sibling_ids,omitempty"`
	ChildDevices []string `json:"child_devices,omitempty"`
}

// PinAssignment binds one physical resource (a GPIO pin, or a bus address
// reached through the bus pin) to a role within a subzone.
//
// Invariants enforced by the apply engine and Store:
//   - at most one non-bus assignment per pin per device
//   - at most one assignment per bus address per device; bus sensors all
//     share the board's bus pin, their claimed resource is the address
//   - at most MaxBusSensors bus sensors per device
type PinAssignment struct {
	Pin       int      `json:"pin"`
	Type      RoleType `json:"type"`
	Name      string   `json:"name"`
	SubzoneID string   `json:"subzone_id"`
	Category  Category `json:"category"`

	// BusAddress and BusHint are set only for bus sensor assignments.
	// BusAddress is the 7-bit address; BusHint names the expected part
	// (e.g. "sht31").
	BusAddress int    `json:"address,omitempty"`
	BusHint    string `json:"hint,omitempty"`
}

// Subzone is a named grouping of assignments within one device.
type Subzone struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// RangeStart/RangeEnd delimit the GPIO range reserved for this subzone.
	// Zero values mean no reservation.
	RangeStart int `json:"range_start,omitempty"`
	RangeEnd   int `json:"range_end,omitempty"`

	// Sensors and Actuators are keyed by pin. BusSensors is keyed by bus
	// address: every bus sensor sits on the board's shared bus pin, so the
	// address is the resource that distinguishes them.
	AssignedPins []int                 `json:"assigned_pins,omitempty"`
	Sensors      map[int]PinAssignment `json:"sensors,omitempty"`
	BusSensors   map[int]PinAssignment `json:"bus_sensors,omitempty"`
	Actuators    map[int]PinAssignment `json:"actuators,omitempty"`

	CrossDevice CrossDeviceMeta `json:"cross_device"`
	Hierarchy   HierarchyMeta   `json:"hierarchy"`

	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	ModifiedBy string    `json:"modified_by,omitempty"`
}

// DeepCopy creates an independent copy of the Subzone.
func (s *Subzone) DeepCopy() *Subzone {
	if s == nil {
		return nil
	}
	cpy := *s
	if s.AssignedPins != nil {
		cpy.AssignedPins = append([]int(nil), s.AssignedPins...)
	}
	if s.Sensors != nil {
		cpy.Sensors = make(map[int]PinAssignment, len(s.Sensors))
		for pin, a := range s.Sensors {
			cpy.Sensors[pin] = a
		}
	}
	if s.BusSensors != nil {
		cpy.BusSensors = make(map[int]PinAssignment, len(s.BusSensors))
		for addr, a := range s.BusSensors {
			cpy.BusSensors[addr] = a
		}
	}
	if s.Actuators != nil {
		cpy.Actuators = make(map[int]PinAssignment, len(s.Actuators))
		for pin, a := range s.Actuators {
			cpy.Actuators[pin] = a
		}
	}
	cpy.CrossDevice.LogicIDs = append([]string(nil), s.CrossDevice.LogicIDs...)
	cpy.Hierarchy.SiblingIDs = append([]string(nil), s.Hierarchy.SiblingIDs...)
	cpy.Hierarchy.ChildDevices = append([]string(nil), s.Hierarchy.ChildDevices...)
	return &cpy
}

// Empty reports whether the subzone holds no sensors and no actuators.
// Empty subzones are removed from their device.
func (s *Subzone) Empty() bool {
	return len(s.Sensors) == 0 && len(s.BusSensors) == 0 && len(s.Actuators) == 0
}

// DeviceTypes returns the sorted distinct role tags assigned in this
// subzone. Used by the cross-device index for classification.
func (s *Subzone) DeviceTypes() []string {
	seen := make(map[string]struct{})
	for _, a := range s.Sensors {
		seen[string(a.Type)] = struct{}{}
	}
	for _, a := range s.BusSensors {
		seen[string(a.Type)] = struct{}{}
	}
	for _, a := range s.Actuators {
		seen[string(a.Type)] = struct{}{}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Device is a remote embedded controller. Devices are created on first
// discovery and never deleted, only marked offline.
type Device struct {
	ID        string `json:"id"`
	BoardType string `json:"board_type"`
	Name      string `json:"name,omitempty"`

	Status    Status       `json:"status"`
	OwnerID   string       `json:"owner_id,omitempty"`
	Zone      string       `json:"zone,omitempty"`
	SetupMode bool         `json:"setup_mode"`
	Network   NetworkHints `json:"network"`

	Subzones map[string]*Subzone `json:"subzones,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Device. The apply
// engine relies on this for its backup snapshot; rollback restores the full
// copy rather than patching fields.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	if d.Subzones != nil {
		cpy.Subzones = make(map[string]*Subzone, len(d.Subzones))
		for id, sz := range d.Subzones {
			cpy.Subzones[id] = sz.DeepCopy()
		}
	}
	return &cpy
}

// AssignmentOnPin returns the non-bus assignment claiming pin, if any.
// Bus sensors are excluded: they all share the board's bus pin and are
// distinguished by address instead.
func (d *Device) AssignmentOnPin(pin int) (PinAssignment, bool) {
	for _, sz := range d.Subzones {
		if a, ok := sz.Sensors[pin]; ok {
			return a, true
		}
		if a, ok := sz.Actuators[pin]; ok {
			return a, true
		}
	}
	return PinAssignment{}, false
}

// AssignmentOnBusAddress returns the bus sensor claiming addr, if any.
func (d *Device) AssignmentOnBusAddress(addr int) (PinAssignment, bool) {
	for _, sz := range d.Subzones {
		if a, ok := sz.BusSensors[addr]; ok {
			return a, true
		}
	}
	return PinAssignment{}, false
}

// BusSensors returns every bus sensor assignment on the device.
func (d *Device) BusSensors() []PinAssignment {
	var out []PinAssignment
	for _, sz := range d.Subzones {
		for _, a := range sz.BusSensors {
			out = append(out, a)
		}
	}
	return out
}

// ClaimedBusAddresses returns the set of bus addresses already held by
// bus sensors on the device.
func (d *Device) ClaimedBusAddresses() map[int]struct{} {
	claimed := make(map[int]struct{})
	for _, a := range d.BusSensors() {
		claimed[a.BusAddress] = struct{}{}
	}
	return claimed
}
