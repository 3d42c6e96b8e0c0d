package influxdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pingrid/pingrid-core/internal/infrastructure/config"
	"github.com/pingrid/pingrid-core/internal/infrastructure/influxdb"
)

// testConfig matches the local dev InfluxDB from docker-compose.yml.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "pingrid-dev-token",
		Org:           "pingrid",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip returns a connected client, skipping the test when no
// local InfluxDB is reachable. These are integration tests by nature.
func connectOrSkip(t *testing.T) *influxdb.Client {
	t.Helper()

	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck
	return client
}

// watchWriteErrors registers an error callback and returns a getter
// for the last async write failure.
func watchWriteErrors(t *testing.T, client *influxdb.Client) func() error {
	t.Helper()

	errCh := make(chan error, 16)
	client.SetOnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})
	return func() error {
		client.Flush()
		select {
		case err := <-errCh:
			return err
		case <-time.After(100 * time.Millisecond):
			return nil
		}
	}
}

func TestConnect(t *testing.T) {
	client := connectOrSkip(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnectDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	if _, err := influxdb.Connect(cfg); err == nil {
		t.Fatal("Connect() should fail against a closed port")
	}
}

func TestConnectDefaultsBatchSettings(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}
	defer client.Close() //nolint:errcheck

	if !client.IsConnected() {
		t.Error("IsConnected() = false with defaulted batch settings")
	}
}

func TestHealthCheck(t *testing.T) {
	client := connectOrSkip(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheckCancelledContext(t *testing.T) {
	client := connectOrSkip(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() should fail on a cancelled context")
	}
}

func TestWriteApplyOutcome(t *testing.T) {
	client := connectOrSkip(t)
	lastErr := watchWriteErrors(t, client)

	client.WriteApplyOutcome("test-device-001", 3, false, 250*time.Millisecond)
	client.WriteApplyOutcome("test-device-001", 0, true, 80*time.Millisecond)

	if err := lastErr(); err != nil {
		t.Errorf("write error = %v", err)
	}
}

func TestWriteDeviceHeartbeat(t *testing.T) {
	client := connectOrSkip(t)
	lastErr := watchWriteErrors(t, client)

	client.WriteDeviceHeartbeat("test-device-002", "esp32", "online")

	if err := lastErr(); err != nil {
		t.Errorf("write error = %v", err)
	}
}

func TestWriteIndexConflict(t *testing.T) {
	client := connectOrSkip(t)
	lastErr := watchWriteErrors(t, client)

	client.WriteIndexConflict("sz-kitchen-lights", "esp32-a", "esp32-b", 40*time.Millisecond)

	if err := lastErr(); err != nil {
		t.Errorf("write error = %v", err)
	}
}

func TestWritePoint(t *testing.T) {
	client := connectOrSkip(t)
	lastErr := watchWriteErrors(t, client)

	client.WritePoint(
		"custom_measurement",
		map[string]string{"source": "test"},
		map[string]interface{}{"value": 99.9, "count": 5},
	)

	if err := lastErr(); err != nil {
		t.Errorf("write error = %v", err)
	}
}

func TestWritePointWithTime(t *testing.T) {
	client := connectOrSkip(t)
	lastErr := watchWriteErrors(t, client)

	client.WritePointWithTime(
		"custom_measurement",
		map[string]string{"source": "test-with-time"},
		map[string]interface{}{"value": 88.8},
		time.Now().Add(-1*time.Hour),
	)

	if err := lastErr(); err != nil {
		t.Errorf("write error = %v", err)
	}
}

func TestClose(t *testing.T) {
	client, err := influxdb.Connect(testConfig())
	if err != nil {
		t.Skip("InfluxDB not available, skipping integration test")
	}

	client.WriteDeviceHeartbeat("close-test", "esp32", "offline")

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}
