// Package cli implements servicesctl, an operator tool that joins the bus
// as a short-lived services client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nerrad567/services-client/internal/infrastructure/config"
	"github.com/nerrad567/services-client/internal/infrastructure/logging"
	"github.com/nerrad567/services-client/internal/infrastructure/mqtt"
	"github.com/nerrad567/services-client/internal/services"
)

// dialer connects a services client for one command. The returned func
// releases it.
type dialer func(ctx context.Context, cfg *config.Config) (*services.Services, func(), error)

// globals holds the persistent flags.
type globals struct {
	configPath string
	name       string
	device     string
	timeout    time.Duration
	debug      bool

	dial dialer
}

// Execute runs servicesctl and exits non-zero on failure.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(mqttDialer).ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

func newRootCmd(dial dialer) *cobra.Command {
	g := &globals{dial: dial}

	cmd := &cobra.Command{
		Use:          "servicesctl",
		Short:        "Talk to the services network from the command line",
		SilenceUsage: true,
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&g.configPath, "config", "c", "", "config file (default $SERVICES_CONFIG, else built-in defaults)")
	f.StringVar(&g.name, "name", "servicesctl", "service name to identify as on the bus")
	f.StringVar(&g.device, "device", "", "device to address (default: --name)")
	f.DurationVar(&g.timeout, "timeout", 0, "operation timeout (default from config)")
	f.BoolVar(&g.debug, "debug", false, "log client activity to stderr")

	cmd.AddCommand(
		readyCmd(g),
		logCmd(g),
		alarmCmd(g),
		monitorCmd(g),
		queryCmd(g),
		getConfigCmd(g),
		plotCmd(g),
		slowControlCmd(g),
		alertCmd(g),
	)
	return cmd
}

// loadConfig reads the config file named by --config or SERVICES_CONFIG.
// With neither set, or when the default file is absent, built-in defaults
// are used.
func (g *globals) loadConfig() (*config.Config, error) {
	path := g.configPath
	explicit := path != ""
	if !explicit {
		path = os.Getenv("SERVICES_CONFIG")
		explicit = path != ""
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		switch {
		case err == nil:
			cfg = loaded
		case explicit || !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}

	cfg.Service.Name = g.name
	cfg.Service.NewService = false
	cfg.Logging = config.LoggingConfig{Level: "error", Format: "text"}
	if g.debug {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// connect loads config and dials a services client.
func (g *globals) connect(ctx context.Context) (*services.Services, func(), error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return g.dial(ctx, cfg)
}

// callOptions maps the persistent flags onto per-call options.
func (g *globals) callOptions(extra ...services.CallOption) []services.CallOption {
	opts := []services.CallOption{services.WithDevice(g.device), services.WithTimeout(g.timeout)}
	return append(opts, extra...)
}

// mqttDialer connects to the configured broker with a unique client ID.
func mqttDialer(ctx context.Context, cfg *config.Config) (*services.Services, func(), error) {
	clientID := fmt.Sprintf("%s-%s", cfg.Service.Name, uuid.NewString()[:8])
	cfg.MQTT.Broker.ClientID = clientID

	log := logging.NewWithWriter(cfg.Logging, os.Stderr, cfg.Service.Name, "cli")

	client, err := mqtt.Connect(cfg.MQTT, mqtt.NewTopics(cfg.Service.TopicPrefix))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)

	svc := services.New(cfg.Service, client, nil,
		services.WithClientID(clientID),
		services.WithLogger(log),
	)
	if err := svc.Init(ctx); err != nil {
		client.Close() //nolint:errcheck // Already failing
		return nil, nil, err
	}

	release := func() {
		svc.Close()    //nolint:errcheck // Best-effort on exit
		client.Close() //nolint:errcheck // Best-effort on exit
	}
	return svc, release, nil
}
