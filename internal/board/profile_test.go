package board

import "testing"

func TestLookupKnownBoard(t *testing.T) {
	r := NewRegistry()

	p := r.Lookup("esp8266")
	if p.BoardType != "esp8266" {
		t.Errorf("Lookup(esp8266) returned profile for %q", p.BoardType)
	}
	if p.BusSDA != 4 || p.BusSCL != 5 {
		t.Errorf("esp8266 bus pair = (%d,%d), want (4,5)", p.BusSDA, p.BusSCL)
	}
}

func TestLookupFallsBackToDefault(t *testing.T) {
	r := NewRegistry()

	p := r.Lookup("totally-unknown-board")
	if p == nil {
		t.Fatal("Lookup returned nil for unknown board type")
	}
	if p.BoardType != DefaultBoardType {
		t.Errorf("fallback profile = %q, want %q", p.BoardType, DefaultBoardType)
	}
	if r.Known("totally-unknown-board") {
		t.Error("Known() reported true for unknown board type")
	}
}

func TestProfilePinSets(t *testing.T) {
	r := NewRegistry()
	p := r.Lookup("esp32")

	if !p.HasPin(21) {
		t.Error("esp32 pin 21 should be usable")
	}
	if p.HasPin(6) {
		t.Error("esp32 pin 6 (flash) should not be usable")
	}
	if !p.IsReserved(6) {
		t.Error("esp32 pin 6 should be reserved")
	}
	if !p.IsInputOnly(34) {
		t.Error("esp32 pin 34 should be input only")
	}
	if p.IsInputOnly(21) {
		t.Error("esp32 pin 21 should not be input only")
	}
}

func TestInputOnlySubsetOfUsable(t *testing.T) {
	r := NewRegistry()
	for _, bt := range r.BoardTypes() {
		p := r.Lookup(bt)
		for _, pin := range p.InputOnly {
			if !p.HasPin(pin) {
				t.Errorf("%s: input-only pin %d not in usable set", bt, pin)
			}
			if p.IsReserved(pin) {
				t.Errorf("%s: pin %d both input-only and reserved", bt, pin)
			}
		}
	}
}

func TestBusPinUsable(t *testing.T) {
	r := NewRegistry()
	for _, bt := range r.BoardTypes() {
		p := r.Lookup(bt)
		if !p.HasPin(p.BusSDA) {
			t.Errorf("%s: SDA pin %d not in usable set", bt, p.BusSDA)
		}
		if p.IsReserved(p.BusSDA) {
			t.Errorf("%s: SDA pin %d is reserved", bt, p.BusSDA)
		}
	}
}
