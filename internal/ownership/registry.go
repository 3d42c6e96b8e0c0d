// Package ownership tracks which controller administers which device,
// records ownership transfers, and correlates command request/response
// pairs across the controller hierarchy.
//
// The registry keeps its working state in memory and writes JSON
// snapshots through a Repository on every mutation, reloading them on
// startup. Transfer history and command responses are append only.
package ownership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Repository keys. Slash-delimited so snapshots group together in the
// backing store.
const (
	keyOwners      = "ownership/owners"
	keyTransfers   = "ownership/transfers"
	keyControllers = "ownership/controllers"
	keyChains      = "ownership/chains"
)

// persistTimeout bounds each snapshot write.
const persistTimeout = 5 * time.Second

// Sentinel errors for ownership operations.
var (
	// ErrUnknownCommand indicates the command id is not tracked.
	ErrUnknownCommand = errors.New("ownership: unknown command")

	// ErrInvalidStatus indicates an unrecognized command status.
	ErrInvalidStatus = errors.New("ownership: invalid status")

	// ErrEmptyID indicates a missing controller, device, or command id.
	ErrEmptyID = errors.New("ownership: empty id")
)

// Repository is the key/value persistence collaborator. Implemented by
// database.KVStore. May be nil, in which case state is memory only.
type Repository interface {
	Save(ctx context.Context, key string, value []byte) error
	Load(ctx context.Context, key string) ([]byte, bool, error)
}

// Logger is the minimal logging interface the registry needs.
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

// Registry is the ownership and hierarchy registry. Safe for concurrent
// use. It is the sole writer of transfer history.
type Registry struct {
	mu          sync.RWMutex
	owners      map[string]string // deviceID -> controllerID
	transfers   []Transfer
	controllers map[string]*Controller
	chains      map[string]*CommandChain

	repo   Repository
	logger Logger
	now    func() time.Time
}

// NewRegistry creates an empty registry. repo may be nil for memory-only
// operation; logger may be nil.
func NewRegistry(repo Repository, logger Logger) *Registry {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry{
		owners:      make(map[string]string),
		transfers:   nil,
		controllers: make(map[string]*Controller),
		chains:      make(map[string]*CommandChain),
		repo:        repo,
		logger:      logger,
		now:         time.Now,
	}
}

// Load restores persisted state from the repository. Missing keys leave
// the corresponding state empty; a read or decode failure aborts the
// load. Call once at startup before handling events.
func (r *Registry) Load(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.load(ctx, keyOwners, &r.owners); err != nil {
		return err
	}
	if err := r.load(ctx, keyTransfers, &r.transfers); err != nil {
		return err
	}
	if err := r.load(ctx, keyControllers, &r.controllers); err != nil {
		return err
	}
	if err := r.load(ctx, keyChains, &r.chains); err != nil {
		return err
	}

	r.logger.Info("ownership state loaded",
		"devices", len(r.owners),
		"transfers", len(r.transfers),
		"controllers", len(r.controllers),
		"chains", len(r.chains),
	)
	return nil
}

// load reads and decodes one key into dst. Caller holds the write lock.
func (r *Registry) load(ctx context.Context, key string, dst any) error {
	raw, found, err := r.repo.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("loading %s: %w", key, err)
	}
	if !found {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// RegisterController records a controller. Re-registering a known id
// updates its config in place without duplicating the record.
func (r *Registry) RegisterController(id string, cfg ControllerConfig) error {
	if id == "" {
		return fmt.Errorf("%w: controller", ErrEmptyID)
	}

	r.mu.Lock()
	now := r.now()
	if existing, ok := r.controllers[id]; ok {
		existing.Config = cfg
		existing.UpdatedAt = now
	} else {
		r.controllers[id] = &Controller{
			ID:           id,
			Config:       cfg,
			RegisteredAt: now,
			UpdatedAt:    now,
		}
	}
	snapshot := r.snapshotControllers()
	r.mu.Unlock()

	r.logger.Info("controller registered", "controller_id", id, "name", cfg.Name)
	return r.persist(keyControllers, snapshot)
}

// Controller returns a registered controller by id.
func (r *Registry) Controller(id string) (Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[id]
	if !ok {
		return Controller{}, false
	}
	return *c, true
}

// TransferDevice reassigns a device to a new owning controller, updating
// the current-owner map and appending to the transfer history. A
// transfer to the current owner is a no-op.
func (r *Registry) TransferDevice(deviceID, newOwner string) error {
	if deviceID == "" || newOwner == "" {
		return fmt.Errorf("%w: transfer needs device and owner", ErrEmptyID)
	}

	r.mu.Lock()
	prev := r.owners[deviceID]
	if prev == newOwner {
		r.mu.Unlock()
		return nil
	}

	r.owners[deviceID] = newOwner
	r.transfers = append(r.transfers, Transfer{
		DeviceID:      deviceID,
		NewOwner:      newOwner,
		PreviousOwner: prev,
		Timestamp:     r.now(),
	})
	owners := r.snapshotOwners()
	transfers := r.snapshotTransfers()
	r.mu.Unlock()

	r.logger.Info("device ownership transferred",
		"device_id", deviceID,
		"new_owner", newOwner,
		"previous_owner", prev,
	)

	if err := r.persist(keyOwners, owners); err != nil {
		return err
	}
	return r.persist(keyTransfers, transfers)
}

// OwnerOf returns the controller currently administering a device.
func (r *Registry) OwnerOf(deviceID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[deviceID]
	return owner, ok
}

// Transfers returns a copy of the full transfer history, oldest first.
func (r *Registry) Transfers() []Transfer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Transfer(nil), r.transfers...)
}

// TransfersFor returns the transfer history of one device, oldest first.
func (r *Registry) TransfersFor(deviceID string) []Transfer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Transfer
	for _, t := range r.transfers {
		if t.DeviceID == deviceID {
			out = append(out, t)
		}
	}
	return out
}

// TrackCommand creates a correlation record for a command traversing the
// given controller path. Tracking an existing id replaces its record.
func (r *Registry) TrackCommand(id string, path []string, status CommandStatus) error {
	if id == "" {
		return fmt.Errorf("%w: command", ErrEmptyID)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	r.mu.Lock()
	now := r.now()
	r.chains[id] = &CommandChain{
		ID:        id,
		Path:      append([]string(nil), path...),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	snapshot := r.snapshotChains()
	r.mu.Unlock()

	return r.persist(keyChains, snapshot)
}

// AddResponse appends one hop's response to a tracked command.
func (r *Registry) AddResponse(commandID string, resp Response) error {
	r.mu.Lock()
	chain, ok := r.chains[commandID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCommand, commandID)
	}
	if resp.At.IsZero() {
		resp.At = r.now()
	}
	chain.Responses = append(chain.Responses, resp)
	chain.UpdatedAt = r.now()
	snapshot := r.snapshotChains()
	r.mu.Unlock()

	return r.persist(keyChains, snapshot)
}

// SetStatus updates the lifecycle status of a tracked command.
func (r *Registry) SetStatus(commandID string, status CommandStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	r.mu.Lock()
	chain, ok := r.chains[commandID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCommand, commandID)
	}
	chain.Status = status
	chain.UpdatedAt = r.now()
	snapshot := r.snapshotChains()
	r.mu.Unlock()

	return r.persist(keyChains, snapshot)
}

// Chain returns a copy of a tracked command chain.
func (r *Registry) Chain(commandID string) (CommandChain, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain, ok := r.chains[commandID]
	if !ok {
		return CommandChain{}, false
	}
	return *chain.deepCopy(), true
}

// snapshotOwners serializes the owner map. Caller holds the lock.
func (r *Registry) snapshotOwners() []byte {
	return mustJSON(r.owners)
}

func (r *Registry) snapshotTransfers() []byte {
	return mustJSON(r.transfers)
}

func (r *Registry) snapshotControllers() []byte {
	return mustJSON(r.controllers)
}

func (r *Registry) snapshotChains() []byte {
	return mustJSON(r.chains)
}

// persist writes one snapshot to the repository. The write is bounded by
// persistTimeout; callers run outside the registry lock.
func (r *Registry) persist(key string, value []byte) error {
	if r.repo == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := r.repo.Save(ctx, key, value); err != nil {
		r.logger.Error("persisting ownership state failed", "key", key, "error", err)
		return fmt.Errorf("persisting %s: %w", key, err)
	}
	return nil
}

// mustJSON marshals registry state. The registry's types marshal without
// error; a failure here is a programming bug.
func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("ownership: marshal: %v", err))
	}
	return raw
}
