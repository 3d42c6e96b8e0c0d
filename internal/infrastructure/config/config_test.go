package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "controller:\n  id: ctl-test\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Controller.ID != "ctl-test" {
		t.Errorf("controller.id = %q", cfg.Controller.ID)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("default mqtt port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Apply.ReconnectAttempts != 3 {
		t.Errorf("default reconnect attempts = %d, want 3", cfg.Apply.ReconnectAttempts)
	}
	if cfg.Index.CoalesceDelay() != 100*time.Millisecond {
		t.Errorf("default coalesce delay = %v, want 100ms", cfg.Index.CoalesceDelay())
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
controller:
  id: ctl-main
  zone: house
mqtt:
  broker:
    host: broker.local
    port: 8883
    tls: true
apply:
  reconnect_attempts: 5
  settle_delay_ms: 1000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTT.Broker.Host != "broker.local" || cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("mqtt broker = %s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)
	}
	if cfg.Apply.SettleDelay() != time.Second {
		t.Errorf("settle delay = %v, want 1s", cfg.Apply.SettleDelay())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "controller:\n  id: ctl-file\n")
	t.Setenv("PINGRID_CONTROLLER_ID", "ctl-env")
	t.Setenv("PINGRID_MQTT_HOST", "env-broker")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Controller.ID != "ctl-env" {
		t.Errorf("controller.id = %q, want env override", cfg.Controller.ID)
	}
	if cfg.MQTT.Broker.Host != "env-broker" {
		t.Errorf("mqtt host = %q, want env override", cfg.MQTT.Broker.Host)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"empty controller id", "controller:\n  id: \"\"\n"},
		{"bad qos", "controller:\n  id: c\nmqtt:\n  qos: 3\n"},
		{"zero reconnect attempts", "controller:\n  id: c\napply:\n  reconnect_attempts: 0\n"},
		{"zero coalesce batch", "controller:\n  id: c\nindex:\n  coalesce_max_batch: 0\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Error("Load accepted invalid config")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load succeeded on missing file")
	}
}
