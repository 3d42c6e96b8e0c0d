package device

import (
	"encoding/json"
	"fmt"
	"time"
)

// OwnershipTracker records ownership transfers detected from config events.
// Implemented by ownership.Registry.
type OwnershipTracker interface {
	TransferDevice(deviceID, newOwner string) error
}

// IndexSink receives subzone updates for cross-device indexing.
// Implemented by index.Index.
type IndexSink interface {
	Upsert(deviceID, zone string, subzone Subzone)
}

// defaultStaleThreshold flags config events older than this as stale.
const defaultStaleThreshold = 5 * time.Minute

// Handlers decodes inbound transport events and applies them to the Store,
// feeding the ownership registry and the cross-device index as side effects.
// Each event name maps to exactly one handler; Routes exposes the mapping
// for the transport dispatcher.
type Handlers struct {
	store          *Store
	ownership      OwnershipTracker
	index          IndexSink
	logger         Logger
	staleThreshold time.Duration
	now            func() time.Time
}

// NewHandlers creates the inbound event handlers. ownership and index may be
// nil when those side effects are not wanted (tests, partial wiring).
func NewHandlers(store *Store, ownership OwnershipTracker, index IndexSink, logger Logger) *Handlers {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Handlers{
		store:          store,
		ownership:      ownership,
		index:          index,
		logger:         logger,
		staleThreshold: defaultStaleThreshold,
		now:            time.Now,
	}
}

// SetStaleThreshold overrides the freshness threshold for config events.
func (h *Handlers) SetStaleThreshold(d time.Duration) {
	if d > 0 {
		h.staleThreshold = d
	}
}

// Routes returns the event-name to handler mapping consumed by the
// transport dispatcher.
func (h *Handlers) Routes() map[string]func(payload []byte) error {
	return map[string]func([]byte) error{
		EventDiscovery:           h.HandleDiscovery,
		EventConfig:              h.HandleConfig,
		EventSubzoneConfig:       h.HandleSubzoneConfig,
		EventSubzoneResponse:     h.HandleSubzoneConfig,
		EventSensorsConfigured:   h.handleSensorsAck,
		EventActuatorsConfigured: h.handleActuatorsAck,
	}
}

// HandleDiscovery creates or updates a device from a discovery event.
func (h *Handlers) HandleDiscovery(payload []byte) error {
	var ev DiscoveryEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%w: discovery: %w", ErrInvalidEvent, err)
	}
	if ev.DeviceID == "" {
		return fmt.Errorf("%w: discovery missing device_id", ErrInvalidEvent)
	}

	h.store.ApplyDiscovery(ev)
	return nil
}

// HandleConfig updates device fields from a config event and records
// ownership transfers when the owner id changes. A stale timestamp is
// logged and processing continues.
func (h *Handlers) HandleConfig(payload []byte) error {
	var ev ConfigEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%w: config: %w", ErrInvalidEvent, err)
	}
	if ev.DeviceID == "" {
		return fmt.Errorf("%w: config missing device_id", ErrInvalidEvent)
	}

	if ev.Timestamp > 0 {
		age := h.now().Sub(time.UnixMilli(ev.Timestamp))
		if age > h.staleThreshold {
			h.logger.Warn("stale config event",
				"device_id", ev.DeviceID, "age", age.String())
		}
	}

	prevOwner, changed := h.store.ApplyConfig(ev)
	if changed && h.ownership != nil {
		if err := h.ownership.TransferDevice(ev.DeviceID, ev.OwnerID); err != nil {
			h.logger.Error("recording ownership transfer",
				"device_id", ev.DeviceID, "from", prevOwner, "to", ev.OwnerID, "error", err)
		} else {
			h.logger.Info("device ownership transferred",
				"device_id", ev.DeviceID, "from", prevOwner, "to", ev.OwnerID)
		}
	}
	return nil
}

// HandleSubzoneConfig replaces the device's subzone map and feeds every
// reported subzone to the cross-device index.
func (h *Handlers) HandleSubzoneConfig(payload []byte) error {
	var ev SubzoneConfigEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%w: subzone config: %w", ErrInvalidEvent, err)
	}
	if ev.DeviceID == "" {
		return fmt.Errorf("%w: subzone config missing device_id", ErrInvalidEvent)
	}

	if err := h.store.ReplaceSubzones(ev.DeviceID, ev.Subzones); err != nil {
		return err
	}

	if h.index != nil {
		dev, err := h.store.Get(ev.DeviceID)
		if err != nil {
			return err
		}
		for _, sz := range dev.Subzones {
			h.index.Upsert(dev.ID, dev.Zone, *sz)
		}
	}
	return nil
}

func (h *Handlers) handleSensorsAck(payload []byte) error {
	return h.handleAssignmentsAck(payload, CategorySensor)
}

func (h *Handlers) handleActuatorsAck(payload []byte) error {
	return h.handleAssignmentsAck(payload, CategoryActuator)
}

// handleAssignmentsAck reconciles local assignment state from the device's
// authoritative post-configure report.
func (h *Handlers) handleAssignmentsAck(payload []byte, category Category) error {
	var ev AssignmentsAckEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%w: assignments ack: %w", ErrInvalidEvent, err)
	}
	if ev.DeviceID == "" {
		return fmt.Errorf("%w: assignments ack missing device_id", ErrInvalidEvent)
	}

	reported := make([]PinAssignment, 0, len(ev.Assignments))
	for _, a := range ev.Assignments {
		reported = append(reported, PinAssignment{
			Pin:        a.Pin,
			Type:       a.Type,
			Name:       a.Name,
			SubzoneID:  a.SubzoneID,
			Category:   a.Type.Category(),
			BusAddress: a.Address,
			BusHint:    a.Hint,
		})
	}

	if err := h.store.ReconcileAssignments(ev.DeviceID, category, reported); err != nil {
		return err
	}

	if h.index != nil {
		dev, err := h.store.Get(ev.DeviceID)
		if err != nil {
			return err
		}
		for _, sz := range dev.Subzones {
			h.index.Upsert(dev.ID, dev.Zone, *sz)
		}
	}
	return nil
}

// Dispatcher routes decoded inbound events to their single handler. It is
// the explicit fan-out point between the transport and the components: one
// event name, one handler.
type Dispatcher struct {
	routes map[string]func(payload []byte) error
	logger Logger
}

// NewDispatcher builds a dispatcher over the handler routing table.
func NewDispatcher(h *Handlers, logger Logger) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{routes: h.Routes(), logger: logger}
}

// Dispatch invokes the handler registered for event. Unknown events are
// logged and dropped; they are not an error, devices may run newer firmware.
func (d *Dispatcher) Dispatch(event string, payload []byte) error {
	handler, ok := d.routes[event]
	if !ok {
		d.logger.Debug("unhandled device event", "event", event)
		return nil
	}
	return handler(payload)
}
