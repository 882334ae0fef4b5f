// Gray Logic RF - 433 MHz radio bridge
//
// This is the main entry point for the Gray Logic RF bridge. It connects
// to the radio transceiver daemon, decodes frames from remotes and sockets,
// and exposes paired devices to Gray Logic Core over MQTT and to installers
// over a REST and WebSocket API.
//
// Startup order:
//  1. Config and logger
//  2. SQLite database and migrations
//  3. MQTT broker, then InfluxDB when enabled
//  4. Transceiver daemon (optionally supervised) and the channel multiplexer
//  5. Protocol drivers and their paired devices
//  6. MQTT bridge, then the HTTP API
//
// Shutdown runs in reverse through the defer chain.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/gray-logic-rf/migrations"

	"github.com/nerrad567/gray-logic-rf/internal/api"
	"github.com/nerrad567/gray-logic-rf/internal/bridge"
	"github.com/nerrad567/gray-logic-rf/internal/device"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-rf/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-rf/internal/process"
	"github.com/nerrad567/gray-logic-rf/internal/rf/channel"
	"github.com/nerrad567/gray-logic-rf/internal/rf/driver"
	"github.com/nerrad567/gray-logic-rf/internal/transceiver"
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

// healthCheckTimeout bounds the startup health checks.
const healthCheckTimeout = 10 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic RF",
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

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
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Supervise the transceiver daemon when the bridge owns it
	if cfg.Radio.Daemon.Enabled {
		daemon := process.NewSupervisor(daemonConfig(cfg.Radio.Daemon))
		daemon.SetLogger(log.Component("daemon"))
		if startErr := daemon.Start(ctx); startErr != nil {
			return fmt.Errorf("starting transceiver daemon: %w", startErr)
		}
		defer func() {
			if stopErr := daemon.Stop(); stopErr != nil {
				log.Error("error stopping transceiver daemon", "error", stopErr)
			}
		}()
		log.Info("transceiver daemon started", "binary", cfg.Radio.Daemon.Binary)
	}

	// Connect to the transceiver daemon
	radioLog := log.Component("transceiver")
	radio, err := transceiver.Connect(ctx, transceiverConfig(cfg.Radio), radioLog)
	if err != nil {
		return fmt.Errorf("connecting to transceiver: %w", err)
	}
	defer func() {
		log.Info("disconnecting from transceiver")
		if closeErr := radio.Close(); closeErr != nil {
			log.Error("error closing transceiver", "error", closeErr)
		}
	}()
	log.Info("transceiver connected", "connection", cfg.Radio.Connection)

	// Metrics and the channel multiplexer
	promMetrics := metrics.New()
	if watchErr := promMetrics.WatchTransceiver(radio); watchErr != nil {
		return fmt.Errorf("registering transceiver metrics: %w", watchErr)
	}

	channels, err := channel.NewRegistry(channel.RegistryOptions{
		Factory:        radio.Factory(),
		IdleTime:       cfg.GetIdleTime(),
		EventQueueSize: cfg.Radio.EventQueueSize,
		Logger:         log.Component("channel"),
		Observer:       promMetrics,
	})
	if err != nil {
		return fmt.Errorf("creating channel registry: %w", err)
	}
	defer func() {
		log.Info("closing channel registry")
		channels.Close()
	}()

	// Device registry and drivers
	deviceRegistry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	deviceRegistry.SetLogger(log.Component("device"))
	if refreshErr := deviceRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", deviceRegistry.GetDeviceCount())

	drivers, err := startDrivers(ctx, cfg.RF.Drivers, channels, deviceRegistry, log)
	if err != nil {
		return err
	}
	defer func() {
		for _, drv := range drivers {
			deviceRegistry.DetachDriver(drv.ID())
			drv.Close()
		}
		log.Info("drivers closed", "count", len(drivers))
	}()

	// Frame recorder (optional)
	var recorder *bridge.FrameRecorder
	if cfg.RF.RecordFrames {
		recorder = bridge.NewFrameRecorder(db.DB)
		recorder.SetLogger(log.Component("recorder"))
		if startErr := recorder.Start(); startErr != nil {
			return fmt.Errorf("starting frame recorder: %w", startErr)
		}
		defer recorder.Stop()
	}

	// MQTT bridge
	rfBridge, err := bridge.New(bridgeOptions(cfg, mqttClient, deviceRegistry, drivers, radio, recorder, influxClient, promMetrics, log))
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if startErr := rfBridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping bridge")
		rfBridge.Stop()
	}()
	log.Info("bridge started", "drivers", len(drivers))

	// HTTP API
	apiDeps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log.Component("api"),
		Registry: deviceRegistry,
		Drivers:  drivers,
		Channels: channels,
		Health:   rfBridge,
		Metrics:  promMetrics,
		Version:  version,
	}
	if recorder != nil {
		apiDeps.Frames = recorder
	}
	apiServer, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, radio); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// API, bridge, recorder, drivers, channels, transceiver, daemon, InfluxDB, MQTT, database.

	log.Info("Gray Logic RF stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_RF_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(config.EnvPrefix + "CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// transceiverConfig converts the radio section into client settings.
func transceiverConfig(rc config.RadioConfig) transceiver.Config {
	return transceiver.Config{
		Connection:           rc.Connection,
		ConnectTimeout:       time.Duration(rc.ConnectTimeout) * time.Second,
		CommandTimeout:       time.Duration(rc.CommandTimeout) * time.Second,
		ReconnectInterval:    time.Duration(rc.Backoff.Initial) * time.Second,
		MaxReconnectInterval: time.Duration(rc.Backoff.Max) * time.Second,
	}
}

// daemonConfig converts the daemon section into supervisor settings.
func daemonConfig(dc config.RadioDaemonConfig) process.Config {
	return process.Config{
		Name:               "rfd",
		Binary:             dc.Binary,
		Args:               dc.Args,
		RestartDelay:       time.Duration(dc.RestartDelay) * time.Second,
		MaxRestartDelay:    time.Duration(dc.MaxRestartDelay) * time.Second,
		MaxRestartAttempts: dc.MaxRestartAttempts,
	}
}

// startDrivers creates one driver per configured entry and loads its paired
// devices from the registry. On error every driver created so far is
// closed.
func startDrivers(ctx context.Context, cfgs []config.DriverConfig, channels *channel.Registry,
	registry *device.Registry, log *logging.Logger) ([]*driver.Driver, error) {
	drivers := make([]*driver.Driver, 0, len(cfgs))
	cleanup := func() {
		for _, drv := range drivers {
			registry.DetachDriver(drv.ID())
			drv.Close()
		}
	}

	for _, dc := range cfgs {
		layout, err := driverLayout(dc)
		if err != nil {
			cleanup()
			return nil, err
		}

		drv, err := driver.New(driver.Options{
			ID:       dc.ID,
			Signal:   dc.Signal,
			Layout:   layout,
			Debounce: dc.Debounce(),
			Registry: channels,
			Logger:   log.Component("driver").With("driver", dc.ID),
		})
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("creating driver %s: %w", dc.ID, err)
		}
		drivers = append(drivers, drv)

		if err := registry.AttachDriver(ctx, drv); err != nil {
			cleanup()
			return nil, fmt.Errorf("attaching driver %s: %w", dc.ID, err)
		}
		log.Info("driver started",
			"driver", dc.ID,
			"signal", dc.Signal,
			"variant", dc.Variant,
			"devices", len(drv.Devices()),
		)
	}

	if len(drivers) == 0 {
		log.Warn("no RF drivers configured")
	}
	return drivers, nil
}

// driverLayout resolves a driver's variant and applies field width overrides.
func driverLayout(dc config.DriverConfig) (driver.Layout, error) {
	layout, err := driver.LayoutFor(dc.Variant)
	if err != nil {
		return driver.Layout{}, fmt.Errorf("driver %s: %w", dc.ID, err)
	}
	layout = layout.WithWidths(dc.AddressBits, dc.UnitBits)
	if err := layout.Validate(); err != nil {
		return driver.Layout{}, fmt.Errorf("driver %s: %w", dc.ID, err)
	}
	return layout, nil
}

// bridgeOptions assembles the bridge dependencies. Optional components are
// left as nil interfaces when disabled.
func bridgeOptions(cfg *config.Config, mqttClient *mqtt.Client, registry *device.Registry,
	drivers []*driver.Driver, radio *transceiver.Client, recorder *bridge.FrameRecorder,
	influxClient *influxdb.Client, promMetrics *metrics.Metrics, log *logging.Logger) bridge.Options {
	opts := bridge.Options{
		MQTTClient:     mqttClient,
		Devices:        registry,
		Radio:          radio,
		RadioAddress:   cfg.Radio.Connection,
		Metrics:        promMetrics,
		Version:        version,
		HealthInterval: cfg.GetHealthInterval(),
		CommandTimeout: time.Duration(cfg.Radio.CommandTimeout) * time.Second,
		Logger:         log.Component("bridge"),
	}
	for _, drv := range drivers {
		opts.Drivers = append(opts.Drivers, drv)
	}
	if recorder != nil {
		opts.Recorder = recorder
	}
	if influxClient != nil {
		opts.TimeSeries = influxClient
	}
	return opts
}

// healthChecker is implemented by every infrastructure client.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheck verifies all infrastructure connections concurrently.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - radio: Transceiver client to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client,
	influxClient *influxdb.Client, radio *transceiver.Client) error {
	checks := map[string]healthChecker{
		"database":    db,
		"mqtt":        mqttClient,
		"transceiver": radio,
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	return runHealthChecks(ctx, checks)
}

// runHealthChecks runs every check in parallel and returns the first error.
func runHealthChecks(ctx context.Context, checks map[string]healthChecker) error {
	g, gctx := errgroup.WithContext(ctx)
	for name, hc := range checks {
		g.Go(func() error {
			if err := hc.HealthCheck(gctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
