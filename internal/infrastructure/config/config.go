package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for PinGrid Core.
// All configuration is loaded from YAML and can be overridden by
// environment variables.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Apply      ApplyConfig      `yaml:"apply"`
	Index      IndexConfig      `yaml:"index"`
}

// ControllerConfig identifies this controller within the ownership
// hierarchy.
type ControllerConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Zone string `yaml:"zone"`

	// ParentID is the id of the controller above this one in the
	// hierarchy, empty at the root.
	ParentID string `yaml:"parent_id,omitempty"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ApplyConfig tunes the transactional apply engine.
type ApplyConfig struct {
	// ReconnectAttempts bounds the reconnect loop before an apply run
	// fails with a connectivity error.
	ReconnectAttempts int `yaml:"reconnect_attempts"`

	// ReconnectBaseDelayMS is the first reconnect delay; it doubles on
	// each attempt.
	ReconnectBaseDelayMS int `yaml:"reconnect_base_delay_ms"`

	// SettleDelayMS is how long the safe apply variant pauses after
	// pre-creating subzones, giving the remote agent time to process.
	SettleDelayMS int `yaml:"settle_delay_ms"`
}

// ReconnectBaseDelay returns the reconnect base delay as a Duration.
func (c ApplyConfig) ReconnectBaseDelay() time.Duration {
	return time.Duration(c.ReconnectBaseDelayMS) * time.Millisecond
}

// SettleDelay returns the subzone settle delay as a Duration.
func (c ApplyConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

// IndexConfig tunes the cross-device subzone index.
type IndexConfig struct {
	// CoalesceDelayMS is the maximum notification coalescing latency.
	CoalesceDelayMS int `yaml:"coalesce_delay_ms"`

	// CoalesceMaxBatch flushes the notification buffer early once this
	// many events are buffered.
	CoalesceMaxBatch int `yaml:"coalesce_max_batch"`

	// StaleThresholdS flags inbound config events older than this many
	// seconds as stale (logged, still processed).
	StaleThresholdS int `yaml:"stale_threshold_s"`
}

// CoalesceDelay returns the coalescing delay as a Duration.
func (c IndexConfig) CoalesceDelay() time.Duration {
	return time.Duration(c.CoalesceDelayMS) * time.Millisecond
}

// StaleThreshold returns the stale threshold as a Duration.
func (c IndexConfig) StaleThreshold() time.Duration {
	return time.Duration(c.StaleThresholdS) * time.Second
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// Loading order: hardcoded defaults, then YAML file values, then
// environment variables (PINGRID_SECTION_KEY, e.g. PINGRID_MQTT_HOST).
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			ID:   "controller-001",
			Name: "PinGrid",
		},
		Database: DatabaseConfig{
			Path:        "./data/pingrid.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "pingrid-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Apply: ApplyConfig{
			ReconnectAttempts:    3,
			ReconnectBaseDelayMS: 250,
			SettleDelayMS:        500,
		},
		Index: IndexConfig{
			CoalesceDelayMS:  100,
			CoalesceMaxBatch: 64,
			StaleThresholdS:  300,
		},
	}
}

// applyEnvOverrides applies PINGRID_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PINGRID_CONTROLLER_ID"); v != "" {
		cfg.Controller.ID = v
	}
	if v := os.Getenv("PINGRID_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PINGRID_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PINGRID_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PINGRID_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("PINGRID_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Controller.ID == "" {
		errs = append(errs, "controller.id is required")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.Apply.ReconnectAttempts < 1 {
		errs = append(errs, "apply.reconnect_attempts must be at least 1")
	}
	if c.Apply.ReconnectBaseDelayMS < 0 || c.Apply.SettleDelayMS < 0 {
		errs = append(errs, "apply delays must not be negative")
	}
	if c.Index.CoalesceDelayMS < 1 {
		errs = append(errs, "index.coalesce_delay_ms must be at least 1")
	}
	if c.Index.CoalesceMaxBatch < 1 {
		errs = append(errs, "index.coalesce_max_batch must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
