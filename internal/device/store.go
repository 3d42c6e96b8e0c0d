package device

import (
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Store and Handlers.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store owns the in-memory device map. It is the single mapping from device
// id to Device; the allocator, apply engine and index all receive it by
// reference rather than reaching through package-level state.
//
// Reads return deep copies so callers can never mutate the canonical state;
// all committed mutation funnels through the methods below. During an apply
// run the engine is the only writer for that device (it holds a per-device
// lock), which is what makes the snapshot/restore rollback protocol sound.
//
// All public methods are thread-safe.
type Store struct {
	mu      sync.RWMutex
	devices map[string]*Device
	logger  Logger
}

// NewStore creates an empty device store.
func NewStore() *Store {
	return &Store{
		devices: make(map[string]*Device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Get retrieves a device by ID. Returns ErrDeviceNotFound if the device
// does not exist. The returned device is a deep copy.
func (s *Store) Get(id string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	return d.DeepCopy(), nil
}

// Snapshot returns a deep copy of the device suitable for the apply
// engine's backup. Identical to Get; the separate name documents intent at
// call sites.
func (s *Store) Snapshot(id string) (*Device, error) {
	return s.Get(id)
}

// Restore replaces the stored device with the given snapshot. Used by the
// apply engine to roll back after a mid-transaction failure; the whole
// record is swapped rather than individual fields patched.
func (s *Store) Restore(snapshot *Device) error {
	if snapshot == nil || snapshot.ID == "" {
		return fmt.Errorf("%w: empty snapshot", ErrDeviceNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices[snapshot.ID] = snapshot.DeepCopy()
	s.logger.Warn("device state restored from snapshot", "device_id", snapshot.ID)
	return nil
}

// List returns deep copies of all devices.
func (s *Store) List() []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, *d.DeepCopy())
	}
	return out
}

// Count returns the number of known devices.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

// ApplyDiscovery creates or updates a device from a discovery event.
// New devices start in StatusDiscovered (StatusSetup when the setup-mode
// flag is set); existing devices keep their lifecycle status unless setup
// mode turns on.
func (s *Store) ApplyDiscovery(ev DiscoveryEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	d, ok := s.devices[ev.DeviceID]
	if !ok {
		d = &Device{
			ID:       ev.DeviceID,
			Status:   StatusDiscovered,
			Subzones: make(map[string]*Subzone),
		}
		s.devices[ev.DeviceID] = d
		s.logger.Info("device discovered", "device_id", ev.DeviceID, "board_type", ev.BoardType)
	}

	d.BoardType = ev.BoardType
	d.SetupMode = ev.SetupMode
	d.Network = NetworkHints{IP: ev.IP, RSSI: ev.RSSI}
	if ev.SetupMode {
		d.Status = StatusSetup
	} else if d.Status == StatusSetup {
		d.Status = StatusDiscovered
	}
	d.UpdatedAt = now
}

// ApplyConfig updates a device from a config event, creating the device if
// it is not yet known. It reports the previous owner and whether the owner
// id changed, so the caller can record the ownership transfer.
func (s *Store) ApplyConfig(ev ConfigEvent) (prevOwner string, ownerChanged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	d, ok := s.devices[ev.DeviceID]
	if !ok {
		d = &Device{
			ID:       ev.DeviceID,
			Status:   StatusConfigured,
			Subzones: make(map[string]*Subzone),
		}
		s.devices[ev.DeviceID] = d
	}

	prevOwner = d.OwnerID
	ownerChanged = prevOwner != "" && ev.OwnerID != "" && prevOwner != ev.OwnerID

	if ev.OwnerID != "" {
		d.OwnerID = ev.OwnerID
	}
	if ev.Name != "" {
		d.Name = ev.Name
	}
	if ev.Zone != "" {
		d.Zone = ev.Zone
	}
	if ev.Connected {
		d.Status = StatusOnline
	} else {
		d.Status = StatusOffline
	}
	d.UpdatedAt = now

	return prevOwner, ownerChanged
}

// ReplaceSubzones swaps a device's entire subzone map for the given list.
// Used when the device reports its authoritative subzone configuration.
func (s *Store) ReplaceSubzones(deviceID string, subzones []Subzone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}

	replaced := make(map[string]*Subzone, len(subzones))
	for i := range subzones {
		sz := subzones[i].DeepCopy()
		normalizeSubzone(sz)
		replaced[sz.ID] = sz
	}
	d.Subzones = replaced
	d.UpdatedAt = time.Now().UTC()

	s.logger.Debug("subzones replaced", "device_id", deviceID, "count", len(replaced))
	return nil
}

// ReconcileAssignments replaces every assignment of one category with the
// device's authoritative report. Subzones referenced by the report are
// created implicitly; subzones left with no assignments are removed.
func (s *Store) ReconcileAssignments(deviceID string, category Category, reported []PinAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}

	now := time.Now().UTC()

	// Drop everything in the reconciled category; the device's report wins.
	for _, sz := range d.Subzones {
		switch category {
		case CategorySensor:
			sz.Sensors = make(map[int]PinAssignment)
			sz.BusSensors = make(map[int]PinAssignment)
		case CategoryActuator:
			sz.Actuators = make(map[int]PinAssignment)
		}
	}

	for _, a := range reported {
		a.Category = a.Type.Category()
		sz := ensureSubzone(d, a.SubzoneID, now, "device")
		putAssignment(sz, a)
		sz.ModifiedAt = now
		sz.ModifiedBy = "device"
	}

	pruneEmptySubzones(d)
	d.UpdatedAt = now

	s.logger.Debug("assignments reconciled",
		"device_id", deviceID, "category", category, "count", len(reported))
	return nil
}

// PutAssignment commits one assignment to a device. The target subzone is
// created implicitly when unknown. The claimed resource must be free: the
// pin for ordinary assignments, the bus address for bus sensors (which all
// share the board's bus pin). The apply engine pre-validates, but the store
// still refuses a double claim so the invariant cannot be broken by any
// caller.
func (s *Store) PutAssignment(deviceID string, a PinAssignment) error {
	if !a.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, a.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}
	if a.Type.RequiresBus() {
		if existing, claimed := d.AssignmentOnBusAddress(a.BusAddress); claimed {
			return fmt.Errorf("%w: address 0x%02x held by %q",
				ErrAddressClaimed, a.BusAddress, existing.Name)
		}
	} else if existing, claimed := d.AssignmentOnPin(a.Pin); claimed {
		return fmt.Errorf("%w: pin %d held by %q", ErrPinClaimed, a.Pin, existing.Name)
	}

	now := time.Now().UTC()
	a.Category = a.Type.Category()
	sz := ensureSubzone(d, a.SubzoneID, now, "apply")
	putAssignment(sz, a)
	sz.ModifiedAt = now
	sz.ModifiedBy = "apply"
	d.UpdatedAt = now

	return nil
}

// RemoveAssignment removes the assignment on pin. The owning subzone is
// deleted once it holds zero sensors and zero actuators.
func (s *Store) RemoveAssignment(deviceID string, pin int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}

	now := time.Now().UTC()
	for id, sz := range d.Subzones {
		removed := false
		if _, ok := sz.Sensors[pin]; ok {
			delete(sz.Sensors, pin)
			removed = true
		} else if _, ok := sz.Actuators[pin]; ok {
			delete(sz.Actuators, pin)
			removed = true
		}
		if !removed {
			continue
		}
		sz.AssignedPins = removePin(sz.AssignedPins, pin)
		sz.ModifiedAt = now
		if sz.Empty() {
			delete(d.Subzones, id)
		}
		d.UpdatedAt = now
		return nil
	}
	return fmt.Errorf("%w: pin %d on %q", ErrNoAssignment, pin, deviceID)
}

// RemoveBusSensor removes the bus sensor on addr. The shared bus pin stays
// in the subzone's AssignedPins while other bus sensors remain; the owning
// subzone is deleted once it holds no assignments at all.
func (s *Store) RemoveBusSensor(deviceID string, addr int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}

	now := time.Now().UTC()
	for id, sz := range d.Subzones {
		a, ok := sz.BusSensors[addr]
		if !ok {
			continue
		}
		delete(sz.BusSensors, addr)
		if !pinInUse(sz, a.Pin) {
			sz.AssignedPins = removePin(sz.AssignedPins, a.Pin)
		}
		sz.ModifiedAt = now
		if sz.Empty() {
			delete(d.Subzones, id)
		}
		d.UpdatedAt = now
		return nil
	}
	return fmt.Errorf("%w: address 0x%02x on %q", ErrNoAssignment, addr, deviceID)
}

// SetStatus updates a device's lifecycle status.
func (s *Store) SetStatus(deviceID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// Touch bumps a device's last-update timestamp.
func (s *Store) Touch(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// ensureSubzone returns the subzone with the given id, creating it when the
// id is unknown. Caller must hold the write lock.
func ensureSubzone(d *Device, subzoneID string, now time.Time, creator string) *Subzone {
	if d.Subzones == nil {
		d.Subzones = make(map[string]*Subzone)
	}
	if sz, ok := d.Subzones[subzoneID]; ok {
		normalizeSubzone(sz)
		return sz
	}
	sz := &Subzone{
		ID:         subzoneID,
		Name:       subzoneID,
		Sensors:    make(map[int]PinAssignment),
		BusSensors: make(map[int]PinAssignment),
		Actuators:  make(map[int]PinAssignment),
		CreatedAt:  now,
		ModifiedAt: now,
		ModifiedBy: creator,
	}
	d.Subzones[subzoneID] = sz
	return sz
}

func normalizeSubzone(sz *Subzone) {
	if sz.Sensors == nil {
		sz.Sensors = make(map[int]PinAssignment)
	}
	if sz.BusSensors == nil {
		sz.BusSensors = make(map[int]PinAssignment)
	}
	if sz.Actuators == nil {
		sz.Actuators = make(map[int]PinAssignment)
	}
}

// putAssignment stores a in the map matching its kind: actuators and plain
// sensors keyed by pin, bus sensors keyed by address. The shared bus pin is
// deduplicated in AssignedPins.
func putAssignment(sz *Subzone, a PinAssignment) {
	switch {
	case a.Type.RequiresBus():
		sz.BusSensors[a.BusAddress] = a
	case a.Category == CategoryActuator:
		sz.Actuators[a.Pin] = a
	default:
		sz.Sensors[a.Pin] = a
	}
	for _, p := range sz.AssignedPins {
		if p == a.Pin {
			return
		}
	}
	sz.AssignedPins = append(sz.AssignedPins, a.Pin)
}

func pinInUse(sz *Subzone, pin int) bool {
	if _, ok := sz.Sensors[pin]; ok {
		return true
	}
	if _, ok := sz.Actuators[pin]; ok {
		return true
	}
	for _, a := range sz.BusSensors {
		if a.Pin == pin {
			return true
		}
	}
	return false
}

func pruneEmptySubzones(d *Device) {
	for id, sz := range d.Subzones {
		if sz.Empty() {
			delete(d.Subzones, id)
		}
	}
}

func removePin(pins []int, pin int) []int {
	out := pins[:0]
	for _, p := range pins {
		if p != pin {
			out = append(out, p)
		}
	}
	return out
}
