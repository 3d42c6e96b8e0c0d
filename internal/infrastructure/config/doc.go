// Package config loads and validates PinGrid Core configuration.
//
// Configuration comes from a YAML file with hardcoded defaults underneath
// and PINGRID_* environment variables on top. Sections cover the
// controller identity, SQLite persistence, the MQTT broker, optional
// InfluxDB telemetry, logging, the apply engine and the subzone index.
package config
