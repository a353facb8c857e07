// Gray Logic Relay - telemetry relay to dashboard accounts.
//
// The relay subscribes to device telemetry on the site MQTT broker, looks up
// every dashboard account the device is registered under, and writes the
// message's values to each of them. State from earlier messages fills in
// location or sensor fields a message lacks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-relay/migrations"

	"github.com/nerrad567/gray-logic-relay/internal/api"
	"github.com/nerrad567/gray-logic-relay/internal/directory"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-relay/internal/relay"
	"github.com/nerrad567/gray-logic-relay/internal/state"
	"github.com/nerrad567/gray-logic-relay/internal/ubidots"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/relay.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run starts the relay and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Relay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "api_mode", cfg.Ubidots.API)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	states := state.NewSQLiteRepository(db.DB)

	keys, err := cfg.Ubidots.Keys()
	if err != nil {
		return fmt.Errorf("reading account keys: %w", err)
	}
	cache, err := directory.New(directory.Options{
		Credentials: keys,
		TTL:         cfg.Ubidots.CacheTTL(),
		NewClient:   ubidots.NewFactory(cfg.Ubidots, log),
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("creating directory cache: %w", err)
	}
	resolver := directory.NewResolver()
	resolver.SetLogger(log)
	log.Info("directory cache created", "accounts", len(cache.Accounts()), "ttl", cfg.Ubidots.CacheTTL())

	var mirror relay.TelemetryRecorder
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		mirror = relay.NewMirror(influxClient)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB mirror disabled")
	}

	latFields, lngFields := cfg.Fields.Lists()
	processor, err := relay.NewProcessor(relay.ProcessorConfig{
		Directory: cache,
		Resolver:  resolver,
		Renamer:   relay.NewFieldRenamer(latFields, lngFields),
		Merger:    relay.NewLocationMerger(states, log),
		Mirror:    mirror,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("creating processor: %w", err)
	}

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
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	handler, err := relay.NewHandler(ctx, relay.HandlerConfig{
		Processor: processor,
		Publisher: mqttClient,
		NextTopic: cfg.MQTT.Topics.Next,
		QoS:       byte(cfg.MQTT.QoS),
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("creating handler: %w", err)
	}

	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{
			"database": db,
			"mqtt":     mqttClient,
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}
		server, srvErr := api.New(api.Deps{
			Config:    cfg.API,
			Logger:    log,
			Directory: cache,
			States:    states,
			Checks:    checks,
			Version:   version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		if srvErr = server.Start(ctx); srvErr != nil {
			return fmt.Errorf("starting API server: %w", srvErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if err := mqttClient.Subscribe(cfg.MQTT.Topics.Telemetry, byte(cfg.MQTT.QoS), handler.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to telemetry: %w", err)
	}
	log.Info("relay running, waiting for telemetry", "topic", cfg.MQTT.Topics.Telemetry, "next", cfg.MQTT.Topics.Next)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	if err := mqttClient.Unsubscribe(cfg.MQTT.Topics.Telemetry); err != nil {
		log.Warn("unsubscribing from telemetry failed", "error", err)
	}

	log.Info("Gray Logic Relay stopped")
	return nil
}

// getConfigPath returns GRAYLOGIC_RELAY_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_RELAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthChecker is implemented by every infrastructure client.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheck returns the first failing dependency. influxClient may be nil.
func healthCheck(ctx context.Context, db, mqttClient healthChecker, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
