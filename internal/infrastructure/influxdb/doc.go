// Package influxdb records PinGrid's operational telemetry.
//
// It wraps influxdb-client-go v2 and writes three measurements:
//
//   - apply_outcomes: per-run commit counts, rollbacks, durations
//   - device_heartbeats: discovery beacons with board type and status
//   - index_conflicts: subzone updates that lost last-writer-wins
//
// Writes go through the non-blocking batched write API; failures
// surface asynchronously via SetOnError. The whole package is
// optional, gated by influxdb.enabled in config.yaml. Connect returns
// ErrDisabled when switched off and main simply skips the wiring.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteApplyOutcome("esp32-kitchen-01", 4, false, elapsed)
package influxdb
