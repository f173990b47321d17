package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
service:
  name: "tank-monitor"
  new_service: true
  default_timeout_ms: 2500
database:
  enabled: true
  path: "/tmp/outbox.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
  qos: 1
api:
  enabled: true
  port: 8090
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Name != "tank-monitor" {
		t.Errorf("Service.Name = %q, want %q", cfg.Service.Name, "tank-monitor")
	}
	if !cfg.Service.NewService {
		t.Error("Service.NewService = false, want true")
	}
	if got := cfg.Service.DefaultTimeout(); got != 2500*time.Millisecond {
		t.Errorf("DefaultTimeout() = %v, want 2.5s", got)
	}
	// Unset keys keep their defaults.
	if got := cfg.Service.ReadyTimeout(); got != 10*time.Second {
		t.Errorf("ReadyTimeout() = %v, want 10s", got)
	}
	if cfg.Service.TopicPrefix != "services" {
		t.Errorf("Service.TopicPrefix = %q, want %q", cfg.Service.TopicPrefix, "services")
	}
	if cfg.Database.Path != "/tmp/outbox.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/outbox.db")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
service:
  name: ""
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty service.name, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing service name",
			mutate:  func(c *Config) { c.Service.Name = "" },
			wantErr: true,
		},
		{
			name:    "service name with wildcard",
			mutate:  func(c *Config) { c.Service.Name = "pump/#" },
			wantErr: true,
		},
		{
			name:    "zero default timeout",
			mutate:  func(c *Config) { c.Service.DefaultTimeoutMS = 0 },
			wantErr: true,
		},
		{
			name:    "zero attempt timeout",
			mutate:  func(c *Config) { c.Service.AttemptTimeoutMS = 0 },
			wantErr: true,
		},
		{
			name:    "negative log rate",
			mutate:  func(c *Config) { c.Service.LogRatePerSec = -1 },
			wantErr: true,
		},
		{
			name: "outbox enabled without path",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Path = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name: "api enabled with invalid port",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 70000
			},
			wantErr: true,
		},
		{
			name:    "api disabled ignores port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: false,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("SERVICES_SERVICE_NAME", "vessel-daq")
	t.Setenv("SERVICES_DATABASE_PATH", "/custom/outbox.db")
	t.Setenv("SERVICES_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SERVICES_MQTT_PORT", "8883")
	t.Setenv("SERVICES_MQTT_USERNAME", "testuser")
	t.Setenv("SERVICES_MQTT_PASSWORD", "testpass")
	t.Setenv("SERVICES_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Service.Name != "vessel-daq" {
		t.Errorf("Service.Name = %q, want %q", cfg.Service.Name, "vessel-daq")
	}
	if cfg.Database.Path != "/custom/outbox.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/outbox.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestConfig_ClientID(t *testing.T) {
	cfg := Default()
	cfg.Service.Name = "pump-ctl"

	if got := cfg.ClientID(); got != "pump-ctl" {
		t.Errorf("ClientID() = %q, want service name %q", got, "pump-ctl")
	}

	cfg.MQTT.Broker.ClientID = "pump-ctl-01"
	if got := cfg.ClientID(); got != "pump-ctl-01" {
		t.Errorf("ClientID() = %q, want %q", got, "pump-ctl-01")
	}
}
