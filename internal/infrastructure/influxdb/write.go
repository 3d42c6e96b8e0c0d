package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteApplyOutcome records the result of an apply run for one device.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Device identifier (e.g., "esp32-kitchen-01")
//   - applied: Number of pending changes committed
//   - rolledBack: Whether the run ended in a rollback
//   - duration: Wall-clock time the run took
//
// Example:
//
//	client.WriteApplyOutcome("esp32-kitchen-01", 4, false, elapsed)
func (c *Client) WriteApplyOutcome(deviceID string, applied int, rolledBack bool, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"apply_outcomes",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"applied":     applied,
			"rolled_back": rolledBack,
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceHeartbeat records a device check-in with its current status.
//
// Parameters:
//   - deviceID: Device identifier
//   - boardType: Hardware profile name (e.g., "esp32")
//   - status: Lifecycle status string (e.g., "online", "configured")
func (c *Client) WriteDeviceHeartbeat(deviceID string, boardType string, status string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_heartbeats",
		map[string]string{
			"device_id":  deviceID,
			"board_type": boardType,
		},
		map[string]interface{}{
			"status": status,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteIndexConflict records a last-writer-wins resolution in the
// cross-device subzone index. Useful for spotting devices with skewed
// clocks or racing configuration sources.
//
// Parameters:
//   - subzoneID: The subzone whose state conflicted
//   - winnerDevice: Device whose update won
//   - loserDevice: Device whose update was discarded
//   - skew: Timestamp gap between the two updates
func (c *Client) WriteIndexConflict(subzoneID string, winnerDevice string, loserDevice string, skew time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"index_conflicts",
		map[string]string{
			"subzone_id": subzoneID,
			"winner":     winnerDevice,
			"loser":      loserDevice,
		},
		map[string]interface{}{
			"skew_ms": skew.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
