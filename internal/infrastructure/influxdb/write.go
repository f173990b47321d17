package influxdb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the mirror.
const (
	MeasurementMonitoring  = "monitoring"
	MeasurementSlowControl = "slow_control"
)

// MonitoringPoint converts a monitoring JSON object into a point tagged
// with the device. Top-level numeric and boolean members become fields;
// strings, arrays and nested objects are skipped.
//
// Example: {"temp":21.5,"pump_on":true,"note":"x"} from "chiller" gives
// monitoring,device=chiller temp=21.5,pump_on=true
func MonitoringPoint(device, jsonData string, ts time.Time) (*write.Point, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(jsonData), &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}

	fields := make(map[string]any, len(doc))
	for k, v := range doc {
		switch x := v.(type) {
		case float64, bool:
			fields[k] = x
		}
	}
	if len(fields) == 0 {
		return nil, ErrNoFields
	}

	return write.NewPoint(
		MeasurementMonitoring,
		map[string]string{"device": device},
		fields,
		ts,
	), nil
}

// WriteMonitoring mirrors one monitoring datum. The write is batched and
// non-blocking; only conversion errors are returned.
func (c *Client) WriteMonitoring(device, jsonData string, ts time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	point, err := MonitoringPoint(device, jsonData, ts)
	if err != nil {
		return err
	}
	c.writeAPI.WritePoint(point)
	return nil
}

// WriteSlowControlChange records a committed slow-control change.
//
// Example:
//
//	client.WriteSlowControlChange("pump-ctl", "pump_speed", "100")
func (c *Client) WriteSlowControlChange(service, variable, value string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementSlowControl,
		map[string]string{"service": service, "variable": variable},
		map[string]any{"value": value},
		time.Now(),
	))
}
