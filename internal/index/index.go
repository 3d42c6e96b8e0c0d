// Package index maintains the cross-device subzone index: an eventually
// consistent projection of every subzone reported by any device, keyed by
// (device id, subzone id) and resolved by last-writer-wins on a wall-clock
// millisecond timestamp.
//
// The index is the only writer of Entry consistency fields (version,
// checksum, sync timestamp, conflict count). Change notifications are
// coalesced so a burst of upserts produces one batched delivery.
package index

import (
	"sort"
	"sync"
	"time"

	"github.com/pingrid/pingrid-core/internal/device"
)

// LogicTier classifies how a subzone participates in cross-device logic.
type LogicTier string

const (
	// TierStandalone subzones carry no cross-device or hierarchy links.
	TierStandalone LogicTier = "standalone"

	// TierLinked subzones reference a parent zone, siblings, or children.
	TierLinked LogicTier = "linked"

	// TierMeshed subzones participate in multi-device logic.
	TierMeshed LogicTier = "meshed"
)

// Consistency is the sync bookkeeping the index maintains per entry.
// The index is its sole writer.
type Consistency struct {
	// Version increments on every accepted write for this entry.
	Version int64 `json:"version"`

	// Checksum is a deterministic hash of the entry's content fields.
	Checksum uint64 `json:"checksum"`

	// SyncedAt is when the index last accepted a write for this entry.
	SyncedAt time.Time `json:"synced_at"`

	// Conflicts counts field-level conflicts resolved into this entry.
	Conflicts int `json:"conflicts"`
}

// Entry is the denormalized projection of one subzone on one device.
type Entry struct {
	DeviceID    string `json:"device_id"`
	SubzoneID   string `json:"subzone_id"`
	Zone        string `json:"zone,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	AssignedPins []int    `json:"assigned_pins,omitempty"`
	DeviceTypes  []string `json:"device_types,omitempty"`

	CrossDevice device.CrossDeviceMeta `json:"cross_device"`
	Hierarchy   device.HierarchyMeta   `json:"hierarchy"`

	// Timestamp is the logical clock for last-writer-wins: wall-clock
	// milliseconds read when the update was accepted.
	Timestamp int64 `json:"timestamp"`

	Consistency Consistency `json:"consistency"`
}

// Tier returns the entry's logic tier, derived from its metadata.
func (e *Entry) Tier() LogicTier {
	if e.CrossDevice.MultiDevice || len(e.CrossDevice.LogicIDs) > 0 {
		return TierMeshed
	}
	h := e.Hierarchy
	if h.ParentZone != "" || len(h.SiblingIDs) > 0 || len(h.ChildDevices) > 0 {
		return TierLinked
	}
	return TierStandalone
}

// entryKey identifies one entry: one per (device, subzone) pair.
type entryKey struct {
	deviceID  string
	subzoneID string
}

// ConflictHook is invoked when a stale update loses last-writer-wins.
// Used to feed telemetry; never called with the index lock held.
type ConflictHook func(subzoneID, winner, loser string, skew time.Duration)

// Logger is the minimal logging interface the index needs.
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

// Index is the cross-device subzone index. Safe for concurrent use;
// ordering between devices is irrelevant, only the timestamp per
// (device, subzone) pair matters.
type Index struct {
	mu      sync.RWMutex
	entries map[entryKey]*Entry

	// Incrementally maintained partitions for the tier/type queries.
	byType map[string]map[entryKey]struct{}
	byTier map[LogicTier]map[entryKey]struct{}

	coalescer *Coalescer
	logger    Logger

	ignored      int64
	conflictHook ConflictHook

	now func() time.Time
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the index logger.
func WithLogger(l Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.logger = l
		}
	}
}

// WithConflictHook registers a callback for ignored stale updates.
func WithConflictHook(hook ConflictHook) Option {
	return func(ix *Index) { ix.conflictHook = hook }
}

// WithClock overrides the wall clock. Tests only.
func WithClock(now func() time.Time) Option {
	return func(ix *Index) {
		if now != nil {
			ix.now = now
		}
	}
}

// New creates an empty index whose notifications flow through the given
// coalescer. A nil coalescer disables notifications.
func New(coalescer *Coalescer, opts ...Option) *Index {
	ix := &Index{
		entries:   make(map[entryKey]*Entry),
		byType:    make(map[string]map[entryKey]struct{}),
		byTier:    make(map[LogicTier]map[entryKey]struct{}),
		coalescer: coalescer,
		logger:    noopLogger{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Upsert records the current state of a subzone on a device.
//
// The update is stamped with the wall clock at call time. If an existing
// entry carries a strictly newer timestamp the update is dropped (last
// writer wins): the drop is logged and counted but produces no
// notification and no error. Accepted updates bump the entry version,
// recompute the content checksum, reclassify the partitions, and schedule
// a coalesced notification.
func (ix *Index) Upsert(deviceID, zone string, sz device.Subzone) {
	ts := ix.now().UnixMilli()
	key := entryKey{deviceID: deviceID, subzoneID: sz.ID}

	entry := &Entry{
		DeviceID:     deviceID,
		SubzoneID:    sz.ID,
		Zone:         zone,
		Name:         sz.Name,
		Description:  sz.Description,
		AssignedPins: append([]int(nil), sz.AssignedPins...),
		DeviceTypes:  sz.DeviceTypes(),
		CrossDevice:  sz.CrossDevice,
		Hierarchy:    sz.Hierarchy,
		Timestamp:    ts,
	}

	ix.mu.Lock()
	existing := ix.entries[key]
	if existing != nil && existing.Timestamp > ts {
		ix.ignored++
		skew := time.Duration(existing.Timestamp-ts) * time.Millisecond
		hook := ix.conflictHook
		ix.mu.Unlock()

		ix.logger.Warn("stale subzone update ignored",
			"device_id", deviceID,
			"subzone_id", sz.ID,
			"skew_ms", skew.Milliseconds(),
		)
		if hook != nil {
			hook(sz.ID, existing.DeviceID, deviceID, skew)
		}
		return
	}

	entry.Consistency = Consistency{
		Version:  1,
		Checksum: checksum(entry),
		SyncedAt: ix.now(),
	}
	if existing != nil {
		entry.Consistency.Version = existing.Consistency.Version + 1
		entry.Consistency.Conflicts = existing.Consistency.Conflicts
		ix.unclassify(key, existing)
	}

	ix.entries[key] = entry
	ix.classify(key, entry)
	ix.mu.Unlock()

	if ix.coalescer != nil {
		ix.coalescer.Add(Event{
			DeviceID:  deviceID,
			SubzoneID: sz.ID,
			Zone:      zone,
			Timestamp: ts,
		})
	}
}

// ResolveConflict merges two entries for the same subzone observed from
// different sources. For each content field, the remote value wins when
// the local value is absent or the remote entry is newer; every field
// where the two sides differ is recorded. The merged entry is restamped
// with a new timestamp, a fresh checksum, and the updated conflict count.
//
// The merge is pure: neither input is modified and the index itself is
// not updated. Callers feed the result back through Upsert if they want
// it recorded.
func (ix *Index) ResolveConflict(local, remote Entry) (Entry, []string) {
	remoteNewer := remote.Timestamp > local.Timestamp

	merged := local
	var conflicts []string

	if remote.Name != local.Name {
		conflicts = append(conflicts, "name")
		if local.Name == "" || remoteNewer {
			merged.Name = remote.Name
		}
	}
	if remote.Description != local.Description {
		conflicts = append(conflicts, "description")
		if local.Description == "" || remoteNewer {
			merged.Description = remote.Description
		}
	}
	if remote.Zone != local.Zone {
		conflicts = append(conflicts, "zone")
		if local.Zone == "" || remoteNewer {
			merged.Zone = remote.Zone
		}
	}
	if !equalInts(remote.AssignedPins, local.AssignedPins) {
		conflicts = append(conflicts, "assigned_pins")
		if len(local.AssignedPins) == 0 || remoteNewer {
			merged.AssignedPins = append([]int(nil), remote.AssignedPins...)
		}
	}
	if !equalStrings(remote.DeviceTypes, local.DeviceTypes) {
		conflicts = append(conflicts, "device_types")
		if len(local.DeviceTypes) == 0 || remoteNewer {
			merged.DeviceTypes = append([]string(nil), remote.DeviceTypes...)
		}
	}
	if !equalCrossDevice(remote.CrossDevice, local.CrossDevice) {
		conflicts = append(conflicts, "cross_device")
		if remoteNewer {
			merged.CrossDevice = remote.CrossDevice
		}
	}
	if !equalHierarchy(remote.Hierarchy, local.Hierarchy) {
		conflicts = append(conflicts, "hierarchy")
		if remoteNewer {
			merged.Hierarchy = remote.Hierarchy
		}
	}

	merged.Timestamp = ix.now().UnixMilli()
	merged.Consistency.Conflicts = local.Consistency.Conflicts + len(conflicts)
	merged.Consistency.SyncedAt = ix.now()
	merged.Consistency.Checksum = checksum(&merged)

	if len(conflicts) > 0 {
		ix.logger.Info("subzone conflict resolved",
			"subzone_id", local.SubzoneID,
			"fields", conflicts,
			"remote_newer", remoteNewer,
		)
	}

	return merged, conflicts
}

// SubzonesInZones returns entries whose zone matches any of the given
// names. With no names, all entries are returned.
func (ix *Index) SubzonesInZones(zones ...string) []Entry {
	want := make(map[string]struct{}, len(zones))
	for _, z := range zones {
		want[z] = struct{}{}
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []Entry
	for _, e := range ix.entries {
		if len(want) > 0 {
			if _, ok := want[e.Zone]; !ok {
				continue
			}
		}
		out = append(out, *e)
	}
	sortEntries(out)
	return out
}

// SubzonesByDeviceType returns entries containing at least one assignment
// of the given role tag, served from the maintained partition.
func (ix *Index) SubzonesByDeviceType(deviceType string) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.collect(ix.byType[deviceType])
}

// SubzonesByLogicTier returns entries in the given logic tier, served
// from the maintained partition.
func (ix *Index) SubzonesByLogicTier(tier LogicTier) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.collect(ix.byTier[tier])
}

// Get returns the entry for a (device, subzone) pair.
func (ix *Index) Get(deviceID, subzoneID string) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[entryKey{deviceID: deviceID, subzoneID: subzoneID}]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Remove deletes the entry for a (device, subzone) pair. Removing an
// unknown pair is a no-op.
func (ix *Index) Remove(deviceID, subzoneID string) {
	key := entryKey{deviceID: deviceID, subzoneID: subzoneID}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if e, ok := ix.entries[key]; ok {
		ix.unclassify(key, e)
		delete(ix.entries, key)
	}
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// IgnoredUpdates returns how many stale updates last-writer-wins dropped.
func (ix *Index) IgnoredUpdates() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.ignored
}

// collect materializes a partition. Caller holds at least a read lock.
func (ix *Index) collect(keys map[entryKey]struct{}) []Entry {
	var out []Entry
	for k := range keys {
		if e, ok := ix.entries[k]; ok {
			out = append(out, *e)
		}
	}
	sortEntries(out)
	return out
}

// classify adds an entry to the type and tier partitions. Caller holds
// the write lock.
func (ix *Index) classify(key entryKey, e *Entry) {
	for _, t := range e.DeviceTypes {
		if ix.byType[t] == nil {
			ix.byType[t] = make(map[entryKey]struct{})
		}
		ix.byType[t][key] = struct{}{}
	}
	tier := e.Tier()
	if ix.byTier[tier] == nil {
		ix.byTier[tier] = make(map[entryKey]struct{})
	}
	ix.byTier[tier][key] = struct{}{}
}

// unclassify removes an entry from the partitions. Caller holds the
// write lock.
func (ix *Index) unclassify(key entryKey, e *Entry) {
	for _, t := range e.DeviceTypes {
		delete(ix.byType[t], key)
	}
	delete(ix.byTier[e.Tier()], key)
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DeviceID != entries[j].DeviceID {
			return entries[i].DeviceID < entries[j].DeviceID
		}
		return entries[i].SubzoneID < entries[j].SubzoneID
	})
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalCrossDevice(a, b device.CrossDeviceMeta) bool {
	return a.MultiDevice == b.MultiDevice && equalStrings(a.LogicIDs, b.LogicIDs)
}

func equalHierarchy(a, b device.HierarchyMeta) bool {
	return a.ParentZone == b.ParentZone &&
		equalStrings(a.SiblingIDs, b.SiblingIDs) &&
		equalStrings(a.ChildDevices, b.ChildDevices)
}
