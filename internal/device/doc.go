// Package device holds the canonical fleet state for PinGrid Core.
//
// A Device is a remote embedded controller (ESP32-class board) that exposes
// GPIO pins and a shared two-wire sensor bus. Devices group their pin
// assignments into Subzones, which nest inside user-facing zones.
//
// # Key Types
//
//   - Device: a controller with lifecycle status, owner, zone and subzones
//   - Subzone: a named grouping of pin assignments within one device
//   - PinAssignment: one sensor or actuator bound to a pin (or bus address)
//   - Store: the owning map from device id to Device
//   - Handlers/Dispatcher: typed inbound event processing
//
// # State ownership
//
// The Store is the single owner of committed device state. Reads hand out
// deep copies; mutation goes through Store methods only. The apply engine
// in internal/apply uses Snapshot/Restore for its transactional
// backup-and-rollback protocol, and is the only writer for a device while
// an apply run is in flight.
//
// Inbound transport events (discovery, config, subzone reports,
// configured-assignment acknowledgements) enter through Handlers; each
// event name maps to exactly one handler. The device's own reports are
// authoritative: a configured-assignments ack replaces local assignment
// state for its category outright.
package device
