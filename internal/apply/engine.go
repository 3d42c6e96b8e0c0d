// Package apply commits staged pin assignments to remote devices as a
// transaction: entries publish in submission order, device state only
// mutates after its publish succeeds, and the first failure rolls the
// device back to a pre-transaction snapshot.
package apply

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pingrid/pingrid-core/internal/alloc"
	"github.com/pingrid/pingrid-core/internal/board"
	"github.com/pingrid/pingrid-core/internal/device"
	"github.com/pingrid/pingrid-core/internal/infrastructure/mqtt"
	"github.com/pingrid/pingrid-core/internal/pending"
)

// Engine defaults, overridable through Config.
const (
	// DefaultReconnectAttempts bounds the reconnect wait loop.
	DefaultReconnectAttempts = 3

	// DefaultReconnectBaseDelay is the first reconnect wait; it doubles
	// on each subsequent attempt.
	DefaultReconnectBaseDelay = 250 * time.Millisecond

	// DefaultSettleDelay is how long ApplyPendingSafe pauses after
	// publishing subzone creations so the device can process them.
	DefaultSettleDelay = 500 * time.Millisecond

	// defaultQoS is the publish QoS for configuration commands.
	defaultQoS byte = 1
)

// Transport is the publish side of the engine's transport collaborator.
// Implemented by mqtt.Client. The underlying client reconnects on its
// own; the engine only waits for connectivity, bounded by Config.
type Transport interface {
	IsConnected() bool
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the minimal logging interface the engine needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// OutcomeHook is invoked after every apply run, successful or not.
// Used to feed telemetry; must not block.
type OutcomeHook func(deviceID string, applied int, rolledBack bool, duration time.Duration)

// Config tunes the engine. Zero values fall back to the defaults.
type Config struct {
	// OwnerID is the controller id used for outbound topics when a
	// device has no recorded owner.
	OwnerID string

	ReconnectAttempts  int
	ReconnectBaseDelay time.Duration
	SettleDelay        time.Duration
	QoS                byte
}

func (c Config) withDefaults() Config {
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = DefaultReconnectAttempts
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.QoS == 0 {
		c.QoS = defaultQoS
	}
	return c
}

// Engine is the transactional apply engine. It exclusively owns the
// transition of a staged assignment into committed device state.
//
// Applies for different devices may run concurrently; applies for the
// same device are serialized by a per-device mutex, since the
// snapshot/restore protocol assumes exclusive access.
type Engine struct {
	store     *device.Store
	boards    *board.Registry
	allocator *alloc.Allocator
	ledger    *pending.Ledger
	transport Transport
	topics    mqtt.Topics
	cfg       Config
	logger    Logger
	outcome   OutcomeHook

	mu      sync.Mutex
	devLock map[string]*sync.Mutex
}

// New creates an apply engine over the given collaborators.
func New(store *device.Store, boards *board.Registry, ledger *pending.Ledger, transport Transport, cfg Config, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		store:     store,
		boards:    boards,
		allocator: alloc.New(boards),
		ledger:    ledger,
		transport: transport,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		devLock:   make(map[string]*sync.Mutex),
	}
}

// SetOutcomeHook registers a telemetry callback for apply outcomes.
func (e *Engine) SetOutcomeHook(hook OutcomeHook) {
	e.outcome = hook
}

// assignmentCommand is the wire payload for one pin configuration.
type assignmentCommand struct {
	Pin       int    `json:"pin"`
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	SubzoneID string `json:"subzone_id"`
	Address   int    `json:"address,omitempty"`
	Hint      string `json:"hint,omitempty"`
}

// subzoneCommand is the wire payload for a subzone creation.
type subzoneCommand struct {
	ID string `json:"id"`
}

// ApplyPending commits all staged entries for one device.
//
// Protocol: an empty ledger is a no-op (applied = 0, nil error). A deep
// snapshot is taken before anything else; connectivity is then required,
// waiting through a bounded doubling-delay reconnect window. The staged
// batch is checked against the bus sensor limit before any entry runs.
// Entries then apply in submission order: validate via the allocator,
// publish the command, commit to the store. The first failure stops the
// run, restores the snapshot, and returns an *ApplyError; no remaining
// entries are attempted and no compensating messages are sent. On full
// success the ledger is cleared and the device timestamp touched.
func (e *Engine) ApplyPending(ctx context.Context, deviceID string) (int, error) {
	lock := e.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	return e.applyLocked(ctx, deviceID)
}

// ApplyPendingSafe is ApplyPending with subzone pre-creation: subzones
// referenced by staged entries but unknown to the device are created
// first (publishing the creation and settling briefly) so the device can
// accept assignments into them. The bus sensor limit is enforced before
// the pre-step as well.
func (e *Engine) ApplyPendingSafe(ctx context.Context, deviceID string) (int, error) {
	lock := e.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	entries := e.ledger.Pending(deviceID)
	if len(entries) == 0 {
		return 0, nil
	}

	dev, err := e.store.Get(deviceID)
	if err != nil {
		return 0, fmt.Errorf("apply %s: %w", deviceID, err)
	}

	if err := e.checkBusLimit(dev, entries); err != nil {
		return 0, err
	}

	missing := missingSubzones(dev, entries)
	if len(missing) > 0 {
		if err := e.awaitConnection(ctx); err != nil {
			return 0, err
		}

		ownerID := e.ownerFor(dev)
		for _, subzoneID := range missing {
			payload, merr := json.Marshal(subzoneCommand{ID: subzoneID})
			if merr != nil {
				return 0, fmt.Errorf("apply %s: encoding subzone %s: %w", deviceID, subzoneID, merr)
			}
			topic := e.topics.SubzoneCreate(ownerID, deviceID)
			if perr := e.transport.Publish(topic, payload, e.cfg.QoS, false); perr != nil {
				return 0, fmt.Errorf("apply %s: creating subzone %s: %w", deviceID, subzoneID, perr)
			}
			e.logger.Debug("subzone pre-created", "device_id", deviceID, "subzone_id", subzoneID)
		}

		// Give the device time to process the creations before the
		// assignments referencing them arrive.
		if err := sleepCtx(ctx, e.cfg.SettleDelay); err != nil {
			return 0, err
		}
	}

	return e.applyLocked(ctx, deviceID)
}

// applyLocked runs the core protocol. Caller holds the device lock.
func (e *Engine) applyLocked(ctx context.Context, deviceID string) (int, error) {
	start := time.Now()

	entries := e.ledger.Pending(deviceID)
	if len(entries) == 0 {
		return 0, nil
	}

	snapshot, err := e.store.Snapshot(deviceID)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrSnapshotFailed, deviceID, err)
	}

	if err := e.awaitConnection(ctx); err != nil {
		return 0, err
	}

	if err := e.checkBusLimit(snapshot, entries); err != nil {
		return 0, err
	}

	ownerID := e.ownerFor(snapshot)

	applied := 0
	for _, entry := range entries {
		if err := e.applyEntry(deviceID, ownerID, entry); err != nil {
			rollbackErr := e.store.Restore(snapshot)
			if rollbackErr != nil {
				e.logger.Error("rollback failed",
					"device_id", deviceID,
					"pending_id", entry.ID,
					"error", rollbackErr,
				)
			}
			e.report(deviceID, 0, true, time.Since(start))
			return 0, &ApplyError{
				DeviceID:    deviceID,
				PendingID:   entry.ID,
				Cause:       err,
				RolledBack:  rollbackErr == nil,
				RollbackErr: rollbackErr,
			}
		}
		applied++
	}

	e.ledger.Clear(deviceID)
	if err := e.store.Touch(deviceID); err != nil {
		e.logger.Warn("touch after apply failed", "device_id", deviceID, "error", err)
	}

	e.logger.Info("apply committed",
		"device_id", deviceID,
		"applied", applied,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	e.report(deviceID, applied, false, time.Since(start))
	return applied, nil
}

// applyEntry validates, publishes, and commits a single staged entry.
// The store only mutates after the publish succeeds.
func (e *Engine) applyEntry(deviceID, ownerID string, entry pending.Assignment) error {
	// Validate against the device state as of the previous commits.
	dev, err := e.store.Get(deviceID)
	if err != nil {
		return err
	}

	a := entry.Assignment
	if err := e.allocator.ValidatePin(dev, a.Pin, a.Type); err != nil {
		return err
	}
	if a.Type.RequiresBus() {
		// Bus sensors share the board's bus pin; the address is the
		// contended resource.
		if !e.allocator.BusAddressAvailable(dev, a.BusAddress) {
			if next, ok := e.allocator.NextBusAddress(dev); ok {
				return fmt.Errorf("%w: address 0x%02x on %s (next free: 0x%02x)",
					alloc.ErrAddressClaimed, a.BusAddress, deviceID, next)
			}
			return fmt.Errorf("%w: address 0x%02x on %s (address space exhausted)",
				alloc.ErrAddressClaimed, a.BusAddress, deviceID)
		}
	} else if existing, claimed := dev.AssignmentOnPin(a.Pin); claimed {
		return fmt.Errorf("%w: pin %d on %s held by %q",
			device.ErrPinClaimed, a.Pin, deviceID, existing.Name)
	}

	payload, err := json.Marshal(assignmentCommand{
		Pin:       a.Pin,
		Type:      string(a.Type),
		Name:      a.Name,
		SubzoneID: a.SubzoneID,
		Address:   a.BusAddress,
		Hint:      a.BusHint,
	})
	if err != nil {
		return fmt.Errorf("encoding assignment: %w", err)
	}

	topic := e.topics.SensorsConfigure(ownerID, deviceID)
	if a.Type.Category() == device.CategoryActuator {
		topic = e.topics.ActuatorsConfigure(ownerID, deviceID)
	}
	if err := e.transport.Publish(topic, payload, e.cfg.QoS, false); err != nil {
		return err
	}

	return e.store.PutAssignment(deviceID, a)
}

// awaitConnection waits for the transport through the bounded reconnect
// window: each attempt doubles the previous delay. The transport client
// reconnects on its own; the engine only polls.
func (e *Engine) awaitConnection(ctx context.Context) error {
	if e.transport.IsConnected() {
		return nil
	}

	delay := e.cfg.ReconnectBaseDelay
	for attempt := 1; attempt <= e.cfg.ReconnectAttempts; attempt++ {
		e.logger.Warn("transport disconnected, waiting",
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
		)
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
		if e.transport.IsConnected() {
			return nil
		}
		delay *= 2
	}

	return fmt.Errorf("%w: still disconnected after %d attempts",
		ErrTransportUnavailable, e.cfg.ReconnectAttempts)
}

// checkBusLimit rejects the whole batch when committed plus staged bus
// sensors would exceed the per-device maximum.
func (e *Engine) checkBusLimit(dev *device.Device, entries []pending.Assignment) error {
	claimed := dev.ClaimedBusAddresses()
	total := len(claimed)
	for _, entry := range entries {
		a := entry.Assignment
		if a.Type != device.RoleBusSensor {
			continue
		}
		if _, ok := claimed[a.BusAddress]; ok {
			continue
		}
		claimed[a.BusAddress] = struct{}{}
		total++
	}
	if total > device.MaxBusSensors {
		return fmt.Errorf("%w: %d staged+committed on %s, maximum %d",
			ErrBusSensorLimit, total, dev.ID, device.MaxBusSensors)
	}
	return nil
}

// missingSubzones returns ids referenced by staged entries that the
// device does not know yet, in first-reference order.
func missingSubzones(dev *device.Device, entries []pending.Assignment) []string {
	seen := make(map[string]struct{})
	var missing []string
	for _, entry := range entries {
		id := entry.Assignment.SubzoneID
		if id == "" {
			continue
		}
		if _, ok := dev.Subzones[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	return missing
}

func (e *Engine) ownerFor(dev *device.Device) string {
	if dev.OwnerID != "" {
		return dev.OwnerID
	}
	return e.cfg.OwnerID
}

func (e *Engine) report(deviceID string, applied int, rolledBack bool, duration time.Duration) {
	if e.outcome != nil {
		e.outcome(deviceID, applied, rolledBack, duration)
	}
}

// deviceLock returns the mutex serializing applies for one device.
func (e *Engine) deviceLock(deviceID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.devLock[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		e.devLock[deviceID] = lock
	}
	return lock
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
