// Package pending holds the per-device queues of staged, not-yet-applied
// pin assignments. The ledger records intent only; it never talks to the
// transport. Entries leave the ledger when an apply run succeeds, or when a
// caller unstages them explicitly.
package pending

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pingrid/pingrid-core/internal/device"
)

// SourceManual is the provenance of an assignment staged by hand. Any other
// source value is the id of the template that produced the entry.
const SourceManual = "manual"

// Assignment is a staged pin assignment with provenance and an id that
// enables selective retraction.
type Assignment struct {
	// ID is the pending id, generated at stage time.
	ID string `json:"id"`

	// Assignment is the proposed change.
	Assignment device.PinAssignment `json:"assignment"`

	// Source is SourceManual or the originating template id.
	Source string `json:"source"`

	// StagedAt is when the entry was staged.
	StagedAt time.Time `json:"staged_at"`
}

// Logger is the minimal logging interface used by the ledger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Ledger is the per-device ordered sequence of staged assignments.
// All methods are thread-safe.
type Ledger struct {
	mu       sync.Mutex
	byDevice map[string][]Assignment
	total    int
	logger   Logger
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		byDevice: make(map[string][]Assignment),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the ledger.
func (l *Ledger) SetLogger(logger Logger) {
	l.logger = logger
}

// Stage appends an assignment to the device's queue with a fresh pending id
// and timestamp. An empty source is recorded as manual.
func (l *Ledger) Stage(deviceID string, a device.PinAssignment, source string) Assignment {
	if source == "" {
		source = SourceManual
	}
	entry := Assignment{
		ID:         uuid.New().String(),
		Assignment: a,
		Source:     source,
		StagedAt:   time.Now().UTC(),
	}

	l.mu.Lock()
	l.byDevice[deviceID] = append(l.byDevice[deviceID], entry)
	l.total++
	l.mu.Unlock()

	l.logger.Debug("assignment staged",
		"device_id", deviceID, "pending_id", entry.ID, "pin", a.Pin, "source", source)
	return entry
}

// Unstage removes one entry by pending id. Returns false when the id is not
// staged for the device.
func (l *Ledger) Unstage(deviceID, pendingID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.byDevice[deviceID]
	for i, e := range entries {
		if e.ID == pendingID {
			l.byDevice[deviceID] = append(entries[:i:i], entries[i+1:]...)
			l.total--
			return true
		}
	}
	return false
}

// UnstageByTemplate removes every entry whose provenance is the given
// template id, returning the number removed. This supports template-level
// undo.
func (l *Ledger) UnstageByTemplate(deviceID, templateID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.byDevice[deviceID]
	kept := entries[:0:0]
	removed := 0
	for _, e := range entries {
		if e.Source == templateID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed > 0 {
		l.byDevice[deviceID] = kept
		l.total -= removed
	}
	return removed
}

// Clear removes all staged entries for one device, returning the number
// removed.
func (l *Ledger) Clear(deviceID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := len(l.byDevice[deviceID])
	if removed > 0 {
		delete(l.byDevice, deviceID)
		l.total -= removed
	}
	return removed
}

// ClearAll removes every staged entry globally, returning the number
// removed.
func (l *Ledger) ClearAll() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := l.total
	l.byDevice = make(map[string][]Assignment)
	l.total = 0
	return removed
}

// Pending returns a copy of the device's staged entries in submission
// order.
func (l *Ledger) Pending(deviceID string) []Assignment {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]Assignment(nil), l.byDevice[deviceID]...)
}

// Count returns the number of entries staged for one device.
func (l *Ledger) Count(deviceID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byDevice[deviceID])
}

// Total returns the running count of staged entries across all devices.
// Exposed for telemetry; it carries no behavioural contract.
func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
