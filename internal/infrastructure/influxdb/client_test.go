package influxdb_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/services-client/internal/infrastructure/config"
	"github.com/nerrad567/services-client/internal/infrastructure/influxdb"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         os.Getenv("SERVICES_INFLUXDB_TOKEN"),
		Org:           "daq",
		Bucket:        "monitoring",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

// connectOrSkip skips the test if InfluxDB is not running.
func connectOrSkip(t *testing.T) *influxdb.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := influxdb.Connect(ctx, testConfig())
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := influxdb.Connect(context.Background(), cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:1"
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := influxdb.Connect(ctx, cfg); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestMonitoringPoint(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	p, err := influxdb.MonitoringPoint("chiller", `{"temp":21.5,"pump_on":true,"note":"x","nested":{"a":1}}`, ts)
	if err != nil {
		t.Fatalf("MonitoringPoint() error = %v", err)
	}

	line := write.PointToLineProtocol(p, time.Second)
	for _, want := range []string{"monitoring,device=chiller", "temp=21.5", "pump_on=true", "1700000000"} {
		if !strings.Contains(line, want) {
			t.Errorf("line protocol %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "note") || strings.Contains(line, "nested") {
		t.Errorf("line protocol %q contains non-numeric fields", line)
	}
}

func TestMonitoringPoint_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"not json", `temp=1`, influxdb.ErrInvalidData},
		{"array", `[1,2]`, influxdb.ErrInvalidData},
		{"only strings", `{"status":"ok"}`, influxdb.ErrNoFields},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := influxdb.MonitoringPoint("d", tt.data, time.Now()); !errors.Is(err, tt.wantErr) {
				t.Errorf("MonitoringPoint() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteMonitoring_Closed(t *testing.T) {
	var c influxdb.Client
	if err := c.WriteMonitoring("d", `{"v":1}`, time.Now()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("WriteMonitoring() error = %v, want ErrNotConnected", err)
	}
	c.WriteSlowControlChange("svc", "v", "1")
	c.Flush()
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestWriteMonitoring_Live(t *testing.T) {
	client := connectOrSkip(t)

	if err := client.WriteMonitoring("test-device", `{"temp":20.0}`, time.Now()); err != nil {
		t.Fatalf("WriteMonitoring() error = %v", err)
	}
	client.WriteSlowControlChange("test-service", "pump_speed", "42")
	client.Flush()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
