package device

// Inbound event names. These are the {event} segment of inbound topics
// ({owner}/device/{deviceID}/{event}).
const (
	EventDiscovery           = "device_discovery"
	EventConfig              = "device_config"
	EventSubzoneConfig       = "subzone_config"
	EventSubzoneResponse     = "subzone_response"
	EventSensorsConfigured   = "sensors_configured"
	EventActuatorsConfigured = "actuators_configured"

	// EventApplyRequest asks the controller to push the device's staged
	// assignments. It carries no payload worth decoding; the device ID in
	// the topic selects the ledger.
	EventApplyRequest = "apply_request"
)

// DiscoveryEvent announces a device on the network.
type DiscoveryEvent struct {
	DeviceID  string `json:"device_id"`
	BoardType string `json:"board_type"`
	SetupMode bool   `json:"setup_mode"`
	IP        string `json:"ip,omitempty"`
	RSSI      int    `json:"rssi,omitempty"`
}

// ConfigEvent carries a device's administrative configuration. Timestamp is
// unix milliseconds at the sender; events older than the freshness threshold
// are logged as stale but still processed.
type ConfigEvent struct {
	DeviceID  string `json:"device_id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name,omitempty"`
	Zone      string `json:"zone,omitempty"`
	Connected bool   `json:"connected"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// SubzoneConfigEvent replaces a device's subzone map with the device's
// authoritative list.
type SubzoneConfigEvent struct {
	DeviceID string    `json:"device_id"`
	Subzones []Subzone `json:"subzones"`
}

// AssignmentAck is one entry of a configured-assignments acknowledgement.
type AssignmentAck struct {
	Pin       int      `json:"pin"`
	Type      RoleType `json:"type"`
	Name      string   `json:"name"`
	SubzoneID string   `json:"subzone_id"`
	Address   int      `json:"address,omitempty"`
	Hint      string   `json:"hint,omitempty"`
}

// AssignmentsAckEvent is the device's authoritative report of configured
// sensors or actuators.
type AssignmentsAckEvent struct {
	DeviceID    string          `json:"device_id"`
	Assignments []AssignmentAck `json:"assignments"`
}
