package influxdb

import "errors"

// Sentinel errors, checked with errors.Is. Most write failures never
// surface here: the batched write API reports them asynchronously
// through the SetOnError callback instead.
var (
	// ErrNotConnected indicates the client has been closed or never
	// connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps a failed initial ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when the influxdb config
	// section is switched off. Telemetry is optional; callers skip
	// wiring it on this error.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
