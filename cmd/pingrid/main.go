// PinGrid Core - Resource Allocation & Sync Engine
//
// This is the main entry point for the PinGrid Core service. PinGrid
// coordinates a fleet of embedded controllers over MQTT:
//   - Board-aware GPIO and bus-sensor allocation
//   - Transactional apply of staged pin assignments with rollback
//   - Eventually consistent cross-device subzone index
//   - Ownership and command-chain bookkeeping across controllers
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/pingrid/pingrid-core/migrations"

	"github.com/pingrid/pingrid-core/internal/apply"
	"github.com/pingrid/pingrid-core/internal/board"
	"github.com/pingrid/pingrid-core/internal/device"
	"github.com/pingrid/pingrid-core/internal/index"
	"github.com/pingrid/pingrid-core/internal/infrastructure/config"
	"github.com/pingrid/pingrid-core/internal/infrastructure/database"
	"github.com/pingrid/pingrid-core/internal/infrastructure/influxdb"
	"github.com/pingrid/pingrid-core/internal/infrastructure/logging"
	"github.com/pingrid/pingrid-core/internal/infrastructure/mqtt"
	"github.com/pingrid/pingrid-core/internal/ownership"
	"github.com/pingrid/pingrid-core/internal/pending"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting PinGrid Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Ownership registry, restored from the kv store
	owners := ownership.NewRegistry(database.NewKVStore(db), log.With("component", "ownership"))
	if loadErr := owners.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading ownership state: %w", loadErr)
	}
	if regErr := owners.RegisterController(cfg.Controller.ID, ownership.ControllerConfig{
		Name:   cfg.Controller.Name,
		Zone:   cfg.Controller.Zone,
		Parent: cfg.Controller.ParentID,
	}); regErr != nil {
		return fmt.Errorf("registering controller: %w", regErr)
	}

	// Device store, board profiles, pending ledger
	store := device.NewStore()
	store.SetLogger(log.With("component", "store"))
	boards := board.NewRegistry()
	ledger := pending.NewLedger()
	ledger.SetLogger(log.With("component", "pending"))

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Cross-device subzone index with coalesced notifications
	coalescer := index.NewCoalescer(cfg.Index.CoalesceDelay(), cfg.Index.CoalesceMaxBatch)
	defer coalescer.Close()

	indexOpts := []index.Option{index.WithLogger(log.With("component", "index"))}
	if influxClient != nil {
		indexOpts = append(indexOpts, index.WithConflictHook(influxClient.WriteIndexConflict))
	}
	idx := index.New(coalescer, indexOpts...)
	coalescer.Subscribe(func(events []index.Event) {
		log.Debug("subzone index batch", "events", len(events))
	})

	// Apply engine
	engine := apply.New(store, boards, ledger, mqttClient, apply.Config{
		OwnerID:            cfg.Controller.ID,
		ReconnectAttempts:  cfg.Apply.ReconnectAttempts,
		ReconnectBaseDelay: cfg.Apply.ReconnectBaseDelay(),
		SettleDelay:        cfg.Apply.SettleDelay(),
		QoS:                byte(cfg.MQTT.QoS), //nolint:gosec // QoS validated to 0..2
	}, log.With("component", "apply"))

	// Feed telemetry from apply outcomes
	if influxClient != nil {
		engine.SetOutcomeHook(func(deviceID string, applied int, rolledBack bool, duration time.Duration) {
			influxClient.WriteApplyOutcome(deviceID, applied, rolledBack, duration)
		})
	}

	// Inbound event handling
	handlers := device.NewHandlers(store, owners, idx, log.With("component", "handlers"))
	handlers.SetStaleThreshold(cfg.Index.StaleThreshold())
	dispatcher := device.NewDispatcher(handlers, log.With("component", "dispatcher"))

	topics := mqtt.Topics{}
	qos := byte(cfg.MQTT.QoS) //nolint:gosec // QoS validated to 0..2
	err = mqttClient.Subscribe(topics.AnyDeviceEvents(), qos, func(topic string, payload []byte) error {
		_, deviceID, event, perr := mqtt.ParseDeviceEvent(topic)
		if perr != nil {
			log.Warn("unparseable device event topic", "topic", topic, "error", perr)
			return nil
		}
		if event == device.EventApplyRequest {
			// Apply runs off the subscriber callback: it blocks on the
			// transport and must not stall inbound dispatch.
			go func() {
				applied, aerr := engine.ApplyPendingSafe(ctx, deviceID)
				if aerr != nil {
					log.Error("apply request failed", "device_id", deviceID, "error", aerr)
					return
				}
				log.Info("apply request served", "device_id", deviceID, "applied", applied)
			}()
			return nil
		}
		if derr := dispatcher.Dispatch(event, payload); derr != nil {
			return derr
		}
		if influxClient != nil && event == device.EventDiscovery {
			if dev, gerr := store.Get(deviceID); gerr == nil {
				influxClient.WriteDeviceHeartbeat(deviceID, dev.BoardType, string(dev.Status))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribing to device events: %w", err)
	}
	log.Info("subscribed to device events", "pattern", topics.AnyDeviceEvents())

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Index coalescer
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Database

	log.Info("PinGrid Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PINGRID_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PINGRID_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
