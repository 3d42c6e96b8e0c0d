package mqtt

import (
	"fmt"
	"strings"
)

// Topic layout.
//
// Outbound configuration commands to devices:
//
//	controller/{ownerID}/device/{deviceID}/{resource}/{action}
//
// Inbound events from devices (discovery, heartbeats, config reports,
// acknowledgements):
//
//	{ownerID or role}/device/{deviceID}/{event}
//
// System status (LWT and graceful shutdown) lives under pingrid/system.
const (
	// TopicPrefixOutbound is the first segment of every outbound command.
	TopicPrefixOutbound = "controller"

	// TopicPrefixSystem is the base for core status topics.
	TopicPrefixSystem = "pingrid/system"
)

// Outbound resource segments.
const (
	ResourceSensors   = "sensors"
	ResourceActuators = "actuators"
	ResourceSubzones  = "subzones"
)

// Outbound action segments.
const (
	ActionConfigure = "configure"
	ActionCreate    = "create"
	ActionRemove    = "remove"
)

// Topics provides builders for PinGrid MQTT topics. Using these helpers
// keeps topic naming consistent across the codebase.
type Topics struct{}

// DeviceCommand returns the outbound command topic for a device resource.
//
// Example: controller/ctl-1/device/esp32-a1/sensors/configure
func (Topics) DeviceCommand(ownerID, deviceID, resource, action string) string {
	return fmt.Sprintf("%s/%s/device/%s/%s/%s",
		TopicPrefixOutbound, ownerID, deviceID, resource, action)
}

// SensorsConfigure returns the topic for publishing a sensor assignment.
func (t Topics) SensorsConfigure(ownerID, deviceID string) string {
	return t.DeviceCommand(ownerID, deviceID, ResourceSensors, ActionConfigure)
}

// ActuatorsConfigure returns the topic for publishing an actuator assignment.
func (t Topics) ActuatorsConfigure(ownerID, deviceID string) string {
	return t.DeviceCommand(ownerID, deviceID, ResourceActuators, ActionConfigure)
}

// SubzoneCreate returns the topic for creating a subzone on a device.
func (t Topics) SubzoneCreate(ownerID, deviceID string) string {
	return t.DeviceCommand(ownerID, deviceID, ResourceSubzones, ActionCreate)
}

// SubzoneRemove returns the topic for removing a subzone from a device.
func (t Topics) SubzoneRemove(ownerID, deviceID string) string {
	return t.DeviceCommand(ownerID, deviceID, ResourceSubzones, ActionRemove)
}

// DeviceEvent returns the inbound topic for one device event.
//
// Example: ctl-1/device/esp32-a1/device_discovery
func (Topics) DeviceEvent(ownerID, deviceID, event string) string {
	return fmt.Sprintf("%s/device/%s/%s", ownerID, deviceID, event)
}

// AllDeviceEvents returns the subscription pattern matching every inbound
// device event for one owner id or role.
//
// Pattern: {ownerID}/device/+/+
func (Topics) AllDeviceEvents(ownerID string) string {
	return fmt.Sprintf("%s/device/+/+", ownerID)
}

// AnyDeviceEvents returns the subscription pattern matching inbound device
// events regardless of addressee. Outbound command topics have six
// segments and never match this four-segment pattern.
//
// Pattern: +/device/+/+
func (Topics) AnyDeviceEvents() string {
	return "+/device/+/+"
}

// SystemStatus returns the core status topic used for LWT and graceful
// shutdown announcements.
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// ParseDeviceEvent splits an inbound device event topic into its owner,
// device id and event name. It rejects topics that do not match the
// four-segment inbound layout.
func ParseDeviceEvent(topic string) (ownerID, deviceID, event string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[1] != "device" || parts[0] == "" || parts[2] == "" || parts[3] == "" {
		return "", "", "", fmt.Errorf("%w: %q is not a device event topic", ErrInvalidTopic, topic)
	}
	return parts[0], parts[2], parts[3], nil
}
