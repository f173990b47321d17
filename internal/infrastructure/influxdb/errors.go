package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
var (
	// ErrNotConnected indicates the client is closed or never connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrInvalidData indicates monitoring data that is not a JSON object.
	ErrInvalidData = errors.New("influxdb: invalid monitoring data")

	// ErrNoFields indicates monitoring data without a numeric or boolean field.
	ErrNoFields = errors.New("influxdb: no numeric fields")

	// ErrDisabled indicates InfluxDB integration is disabled in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
