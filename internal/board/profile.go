package board

// Profile describes the I/O capabilities of one hardware board type: which
// GPIO numbers exist, which of them can only be read, which are off limits,
// and which pin pair carries the shared I2C bus.
//
// Profiles are immutable after definition. Callers must not modify the
// returned slices; Registry.Lookup hands out the shared instances.
type Profile struct {
	// BoardType is the identifier reported by devices during discovery
	// (e.g. "esp32").
	BoardType string

	// UsablePins lists every GPIO a caller may assign, in ascending order.
	UsablePins []int

	// InputOnly lists pins that cannot drive an output. Always a subset of
	// UsablePins. Actuators are rejected on these.
	InputOnly []int

	// Reserved lists pins that must never be assigned (flash, strapping,
	// UART console). Reserved pins are rejected for every role.
	Reserved []int

	// BusSDA and BusSCL are the pin pair reserved for the two-wire sensor
	// bus. Bus sensor assignments must claim BusSDA.
	BusSDA int
	BusSCL int
}

// HasPin reports whether pin is in the profile's usable set.
func (p *Profile) HasPin(pin int) bool {
	for _, u := range p.UsablePins {
		if u == pin {
			return true
		}
	}
	return false
}

// IsInputOnly reports whether pin cannot drive an output.
func (p *Profile) IsInputOnly(pin int) bool {
	for _, i := range p.InputOnly {
		if i == pin {
			return true
		}
	}
	return false
}

// IsReserved reports whether pin is off limits for assignment.
func (p *Profile) IsReserved(pin int) bool {
	for _, r := range p.Reserved {
		if r == pin {
			return true
		}
	}
	return false
}

// DefaultBoardType is used when a device reports an unrecognised board.
const DefaultBoardType = "esp32"

// Registry is a static lookup table from board type to Profile.
// Lookups never fail; unknown board types resolve to the esp32 profile.
type Registry struct {
	profiles map[string]*Profile
}

// NewRegistry returns a Registry preloaded with the built-in board profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]*Profile, len(builtinProfiles))}
	for _, p := range builtinProfiles {
		r.profiles[p.BoardType] = p
	}
	return r
}

// Lookup returns the Profile for boardType, falling back to the default
// profile when the board type is unrecognised. The returned Profile is
// shared and must be treated as read only.
func (r *Registry) Lookup(boardType string) *Profile {
	if p, ok := r.profiles[boardType]; ok {
		return p
	}
	return r.profiles[DefaultBoardType]
}

// Known reports whether boardType has its own profile (i.e. Lookup would
// not fall back to the default).
func (r *Registry) Known(boardType string) bool {
	_, ok := r.profiles[boardType]
	return ok
}

// BoardTypes returns the board types with a built-in profile.
func (r *Registry) BoardTypes() []string {
	types := make([]string, 0, len(r.profiles))
	for t := range r.profiles {
		types = append(types, t)
	}
	return types
}

// Built-in profiles. Pin sets follow the vendor datasheets: ESP32 GPIOs
// 6-11 are wired to the SPI flash, 34-39 are input only; ESP8266 GPIOs 6-11
// likewise; the Pico reserves 23-25 and 29 for on-board functions.
var builtinProfiles = []*Profile{
	{
		BoardType:  "esp32",
		UsablePins: []int{0, 2, 4, 5, 12, 13, 14, 15, 16, 17, 18, 19, 21, 22, 23, 25, 26, 27, 32, 33, 34, 35, 36, 39},
		InputOnly:  []int{34, 35, 36, 39},
		Reserved:   []int{1, 3, 6, 7, 8, 9, 10, 11},
		BusSDA:     21,
		BusSCL:     22,
	},
	{
		BoardType:  "esp32s3",
		UsablePins: []int{1, 2, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 21, 38, 39, 40, 41, 42, 47, 48},
		InputOnly:  nil,
		Reserved:   []int{0, 3, 19, 20, 26, 27, 28, 29, 30, 31, 32, 43, 44, 45, 46},
		BusSDA:     8,
		BusSCL:     9,
	},
	{
		BoardType:  "esp8266",
		UsablePins: []int{0, 2, 4, 5, 12, 13, 14, 15, 16},
		InputOnly:  []int{16},
		Reserved:   []int{1, 3, 6, 7, 8, 9, 10, 11},
		BusSDA:     4,
		BusSCL:     5,
	},
	{
		BoardType:  "pico",
		UsablePins: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 26, 27, 28},
		InputOnly:  nil,
		Reserved:   []int{23, 24, 25, 29},
		BusSDA:     4,
		BusSCL:     5,
	},
}
