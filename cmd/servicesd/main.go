// servicesd hosts a services client on the bus: it answers slow-control
// requests, relays alerts to WebSocket clients, spools logs while the
// broker is away, and serves the status API.
//
// It is also the reference wiring for embedding the services client in
// another process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/services-client/internal/api"
	"github.com/nerrad567/services-client/internal/infrastructure/config"
	"github.com/nerrad567/services-client/internal/infrastructure/database"
	"github.com/nerrad567/services-client/internal/infrastructure/influxdb"
	"github.com/nerrad567/services-client/internal/infrastructure/logging"
	"github.com/nerrad567/services-client/internal/infrastructure/metrics"
	"github.com/nerrad567/services-client/internal/infrastructure/mqtt"
	"github.com/nerrad567/services-client/internal/outbox"
	"github.com/nerrad567/services-client/internal/services"
	"github.com/nerrad567/services-client/internal/slowcontrol"
	"github.com/nerrad567/services-client/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// healthCheckTimeout bounds the startup health check.
const healthCheckTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the daemon, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Startup sequence: linear wiring of every component
	log := logging.Default()
	log.Info("starting services daemon",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, cfg.Service.Name, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	opts := []services.Option{
		services.WithLogger(log),
		services.WithClientID(cfg.ClientID()),
		services.WithMetrics(m),
		services.WithEventSink(hub.Broadcast),
	}

	// Outbox (optional)
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening outbox database: %w", err)
		}
		defer func() {
			log.Info("closing outbox database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		opts = append(opts, services.WithSpool(outbox.New(db)))
		log.Info("outbox enabled", "path", cfg.Database.Path)
	}

	// InfluxDB mirror (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		opts = append(opts, services.WithMirror(influxClient))
		log.Info("InfluxDB mirror enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// MQTT
	cfg.MQTT.Broker.ClientID = cfg.ClientID()
	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.NewTopics(cfg.Service.TopicPrefix))
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Services client
	vars := slowcontrol.New()
	vars.SetLogger(log)
	if err := vars.Register("version", slowcontrol.TypeInfo, nil, nil); err != nil {
		return fmt.Errorf("registering version variable: %w", err)
	}
	if err := vars.Set("version", version); err != nil {
		return fmt.Errorf("setting version variable: %w", err)
	}

	svc := services.New(cfg.Service, mqttClient, vars, opts...)
	if err := svc.Init(ctx); err != nil {
		return fmt.Errorf("initialising services client: %w", err)
	}
	defer func() {
		if closeErr := svc.Close(); closeErr != nil {
			log.Warn("error closing services client", "error", closeErr)
		}
	}()

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		go func() {
			if _, drainErr := svc.DrainOutbox(ctx); drainErr != nil {
				log.Warn("outbox drain failed", "error", drainErr)
			}
		}()
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	go func() {
		if svc.Ready(ctx, 0) {
			log.Info("middleman is answering")
		} else if ctx.Err() == nil {
			log.Warn("middleman did not answer; requests will retry until it does")
		}
	}()

	// Status API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log,
			Services: svc,
			Gatherer: reg,
			Hub:      hub,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	hcCtx, hcCancel := context.WithTimeout(ctx, healthCheckTimeout)
	err = healthCheck(hcCtx, db, mqttClient, influxClient)
	hcCancel()
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("services daemon started", "service", cfg.Service.Name)
	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// getConfigPath returns SERVICES_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("SERVICES_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections. db and influxClient may
// be nil when their features are disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
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
