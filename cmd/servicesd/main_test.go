package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestRun_InvalidConfigPath(t *testing.T) {
	t.Setenv("SERVICES_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_OutboxWithoutPath(t *testing.T) {
	t.Setenv("SERVICES_CONFIG", writeConfig(t, `
service:
  name: pump-ctl
database:
  enabled: true
  path: ""
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail when the outbox has no path")
	}
}

func TestRun_BrokerUnreachable(t *testing.T) {
	t.Setenv("SERVICES_CONFIG", writeConfig(t, `
service:
  name: pump-ctl
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1
`))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail without a broker")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("SERVICES_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("SERVICES_CONFIG", "/custom/path/config.yaml")
	if got := getConfigPath(); got != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

// TestRun_StartupAndShutdown requires an MQTT broker at 127.0.0.1:1883.
func TestRun_StartupAndShutdown(t *testing.T) {
	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 500*time.Millisecond)
	if err != nil {
		t.Skip("MQTT broker not available at 127.0.0.1:1883")
	}
	conn.Close()

	dir := t.TempDir()
	t.Setenv("SERVICES_CONFIG", writeConfig(t, `
service:
  name: servicesd-test
  new_service: true
database:
  enabled: true
  path: "`+filepath.Join(dir, "outbox.db")+`"
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "servicesd-startup-test"
logging:
  level: error
`))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}
