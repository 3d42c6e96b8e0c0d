package pending

import (
	"testing"

	"github.com/pingrid/pingrid-core/internal/device"
)

func testAssignment(pin int) device.PinAssignment {
	return device.PinAssignment{
		Pin:       pin,
		Type:      device.RoleRelay,
		Name:      "test",
		SubzoneID: "sz1",
		Category:  device.CategoryActuator,
	}
}

func TestStageAssignsIDAndOrder(t *testing.T) {
	l := NewLedger()

	first := l.Stage("d1", testAssignment(4), "")
	second := l.Stage("d1", testAssignment(5), "tmpl-7")

	if first.ID == "" || second.ID == "" {
		t.Fatal("staged entries missing pending ids")
	}
	if first.ID == second.ID {
		t.Fatal("pending ids not unique")
	}
	if first.Source != SourceManual {
		t.Errorf("empty source recorded as %q, want %q", first.Source, SourceManual)
	}

	entries := l.Pending("d1")
	if len(entries) != 2 {
		t.Fatalf("Pending returned %d entries, want 2", len(entries))
	}
	if entries[0].Assignment.Pin != 4 || entries[1].Assignment.Pin != 5 {
		t.Error("entries not in submission order")
	}
}

func TestUnstage(t *testing.T) {
	l := NewLedger()
	a := l.Stage("d1", testAssignment(4), "")
	l.Stage("d1", testAssignment(5), "")

	if !l.Unstage("d1", a.ID) {
		t.Fatal("Unstage returned false for staged id")
	}
	if l.Unstage("d1", a.ID) {
		t.Error("Unstage returned true for already-removed id")
	}
	if l.Count("d1") != 1 {
		t.Errorf("Count = %d after unstage, want 1", l.Count("d1"))
	}
	if l.Pending("d1")[0].Assignment.Pin != 5 {
		t.Error("wrong entry removed")
	}
}

func TestUnstageByTemplate(t *testing.T) {
	l := NewLedger()
	l.Stage("d1", testAssignment(4), "tmpl-a")
	l.Stage("d1", testAssignment(5), "")
	l.Stage("d1", testAssignment(6), "tmpl-a")
	l.Stage("d2", testAssignment(7), "tmpl-a")

	removed := l.UnstageByTemplate("d1", "tmpl-a")
	if removed != 2 {
		t.Errorf("UnstageByTemplate removed %d, want 2", removed)
	}
	if l.Count("d1") != 1 {
		t.Errorf("d1 count = %d, want 1", l.Count("d1"))
	}
	if l.Count("d2") != 1 {
		t.Error("template undo leaked into another device")
	}
}

func TestClearAndTotals(t *testing.T) {
	l := NewLedger()
	l.Stage("d1", testAssignment(4), "")
	l.Stage("d1", testAssignment(5), "")
	l.Stage("d2", testAssignment(6), "")

	if l.Total() != 3 {
		t.Errorf("Total = %d, want 3", l.Total())
	}

	if removed := l.Clear("d1"); removed != 2 {
		t.Errorf("Clear(d1) = %d, want 2", removed)
	}
	if l.Total() != 1 {
		t.Errorf("Total after clear = %d, want 1", l.Total())
	}

	if removed := l.ClearAll(); removed != 1 {
		t.Errorf("ClearAll = %d, want 1", removed)
	}
	if l.Total() != 0 || l.Count("d2") != 0 {
		t.Error("ledger not empty after ClearAll")
	}
}

func TestPendingReturnsCopy(t *testing.T) {
	l := NewLedger()
	l.Stage("d1", testAssignment(4), "")

	entries := l.Pending("d1")
	entries[0].Assignment.Pin = 99

	if l.Pending("d1")[0].Assignment.Pin != 4 {
		t.Error("mutating the returned slice changed ledger state")
	}
}
