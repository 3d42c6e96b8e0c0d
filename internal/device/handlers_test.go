package device

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// fakeOwnership records transfer calls.
type fakeOwnership struct {
	transfers [][2]string
	err       error
}

func (f *fakeOwnership) TransferDevice(deviceID, newOwner string) error {
	f.transfers = append(f.transfers, [2]string{deviceID, newOwner})
	return f.err
}

// fakeIndex records upserted subzones.
type fakeIndex struct {
	upserts []string // "deviceID/subzoneID"
}

func (f *fakeIndex) Upsert(deviceID, _ string, sz Subzone) {
	f.upserts = append(f.upserts, deviceID+"/"+sz.ID)
}

// capturingLogger records warn messages for stale-event assertions.
type capturingLogger struct {
	warns []string
}

func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Info(string, ...any)  {}
func (l *capturingLogger) Warn(msg string, _ ...any) {
	l.warns = append(l.warns, msg)
}
func (l *capturingLogger) Error(string, ...any) {}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestHandleDiscovery(t *testing.T) {
	store := NewStore()
	h := NewHandlers(store, nil, nil, nil)

	payload := mustJSON(t, DiscoveryEvent{DeviceID: "esp-1", BoardType: "esp32", IP: "10.0.0.9"})
	if err := h.HandleDiscovery(payload); err != nil {
		t.Fatalf("HandleDiscovery() error = %v", err)
	}

	d, err := store.Get("esp-1")
	if err != nil {
		t.Fatalf("device not created: %v", err)
	}
	if d.BoardType != "esp32" {
		t.Errorf("BoardType = %q", d.BoardType)
	}
}

func TestHandleDiscoveryRejectsBadPayload(t *testing.T) {
	h := NewHandlers(NewStore(), nil, nil, nil)

	if err := h.HandleDiscovery([]byte("{not json")); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("malformed payload: error = %v, want ErrInvalidEvent", err)
	}
	if err := h.HandleDiscovery([]byte(`{"board_type":"esp32"}`)); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("missing device_id: error = %v, want ErrInvalidEvent", err)
	}
}

func TestHandleConfigTriggersOwnershipTransfer(t *testing.T) {
	store := NewStore()
	ownership := &fakeOwnership{}
	h := NewHandlers(store, ownership, nil, nil)

	first := mustJSON(t, ConfigEvent{DeviceID: "esp-1", OwnerID: "ctrl-1", Connected: true})
	if err := h.HandleConfig(first); err != nil {
		t.Fatalf("HandleConfig() error = %v", err)
	}
	if len(ownership.transfers) != 0 {
		t.Error("first owner assignment should not record a transfer")
	}

	second := mustJSON(t, ConfigEvent{DeviceID: "esp-1", OwnerID: "ctrl-2", Connected: true})
	if err := h.HandleConfig(second); err != nil {
		t.Fatalf("HandleConfig() error = %v", err)
	}
	if len(ownership.transfers) != 1 || ownership.transfers[0] != [2]string{"esp-1", "ctrl-2"} {
		t.Errorf("transfers = %v", ownership.transfers)
	}
}

func TestHandleConfigStaleTimestampContinues(t *testing.T) {
	store := NewStore()
	logger := &capturingLogger{}
	h := NewHandlers(store, nil, nil, logger)

	stale := time.Now().Add(-time.Hour).UnixMilli()
	payload := mustJSON(t, ConfigEvent{
		DeviceID: "esp-1", OwnerID: "ctrl-1", Name: "bench unit",
		Connected: true, Timestamp: stale,
	})

	if err := h.HandleConfig(payload); err != nil {
		t.Fatalf("stale event must still process: %v", err)
	}
	if len(logger.warns) == 0 {
		t.Error("stale event not logged")
	}

	d, _ := store.Get("esp-1")
	if d.Name != "bench unit" {
		t.Error("stale event did not update the device")
	}
}

func TestHandleConfigFreshTimestampNoWarning(t *testing.T) {
	logger := &capturingLogger{}
	h := NewHandlers(NewStore(), nil, nil, logger)

	payload := mustJSON(t, ConfigEvent{
		DeviceID: "esp-1", OwnerID: "ctrl-1",
		Connected: true, Timestamp: time.Now().UnixMilli(),
	})
	if err := h.HandleConfig(payload); err != nil {
		t.Fatalf("HandleConfig() error = %v", err)
	}
	if len(logger.warns) != 0 {
		t.Errorf("fresh event logged as stale: %v", logger.warns)
	}
}

func TestHandleSubzoneConfigFeedsIndex(t *testing.T) {
	store := NewStore()
	store.ApplyDiscovery(DiscoveryEvent{DeviceID: "esp-1", BoardType: "esp32"})
	index := &fakeIndex{}
	h := NewHandlers(store, nil, index, nil)

	payload := mustJSON(t, SubzoneConfigEvent{
		DeviceID: "esp-1",
		Subzones: []Subzone{{ID: "sz-1", Name: "bench"}, {ID: "sz-2", Name: "rack"}},
	})
	if err := h.HandleSubzoneConfig(payload); err != nil {
		t.Fatalf("HandleSubzoneConfig() error = %v", err)
	}

	d, _ := store.Get("esp-1")
	if len(d.Subzones) != 2 {
		t.Errorf("subzone count = %d, want 2", len(d.Subzones))
	}
	if len(index.upserts) != 2 {
		t.Errorf("index received %d upserts, want 2", len(index.upserts))
	}
}

func TestHandleSensorsAckReconciles(t *testing.T) {
	store := NewStore()
	store.ApplyDiscovery(DiscoveryEvent{DeviceID: "esp-1", BoardType: "esp32"})
	index := &fakeIndex{}
	h := NewHandlers(store, nil, index, nil)

	payload := mustJSON(t, AssignmentsAckEvent{
		DeviceID: "esp-1",
		Assignments: []AssignmentAck{
			{Pin: 21, Type: RoleBusSensor, Name: "sht31", SubzoneID: "sz-1", Address: 0x44, Hint: "sht31"},
		},
	})

	routes := h.Routes()
	if err := routes[EventSensorsConfigured](payload); err != nil {
		t.Fatalf("sensors ack error = %v", err)
	}

	d, _ := store.Get("esp-1")
	a, ok := d.Subzones["sz-1"].BusSensors[0x44]
	if !ok {
		t.Fatal("acked bus sensor missing")
	}
	if a.Pin != 21 || a.Category != CategorySensor {
		t.Errorf("assignment = %+v", a)
	}
	if len(index.upserts) != 1 {
		t.Errorf("index received %d upserts, want 1", len(index.upserts))
	}
}

func TestDispatcherUnknownEventIsDropped(t *testing.T) {
	h := NewHandlers(NewStore(), nil, nil, nil)
	d := NewDispatcher(h, nil)

	if err := d.Dispatch("firmware_update_progress", []byte(`{}`)); err != nil {
		t.Errorf("unknown event should be dropped, got error %v", err)
	}
}

func TestDispatcherRoutesEvent(t *testing.T) {
	store := NewStore()
	h := NewHandlers(store, nil, nil, nil)
	d := NewDispatcher(h, nil)

	payload := mustJSON(t, DiscoveryEvent{DeviceID: "esp-9", BoardType: "pico"})
	if err := d.Dispatch(EventDiscovery, payload); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if _, err := store.Get("esp-9"); err != nil {
		t.Error("dispatched discovery did not reach the store")
	}
}
