// Benchrig Core - Bench Instrument Control Daemon
//
// This is the main entry point for the Benchrig Core daemon. Benchrig
// puts a small rack of lab instruments (multimeters, vacuum gauge
// controllers, furnace controllers) behind one process:
//   - Serial/TCP transports with line-oriented command dialects
//   - One worker per instrument, so the wire never interleaves
//   - MQTT command/state topics for headless bench automation
//   - REST + WebSocket surface for interactive control
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/benchrig/benchrig-core/migrations"

	"github.com/benchrig/benchrig-core/internal/adapter"
	"github.com/benchrig/benchrig-core/internal/api"
	"github.com/benchrig/benchrig-core/internal/bridge"
	"github.com/benchrig/benchrig-core/internal/driver"
	"github.com/benchrig/benchrig-core/internal/drivers/fl18x"
	"github.com/benchrig/benchrig-core/internal/drivers/tpg"
	"github.com/benchrig/benchrig-core/internal/infrastructure/config"
	"github.com/benchrig/benchrig-core/internal/infrastructure/database"
	"github.com/benchrig/benchrig-core/internal/infrastructure/logging"
	"github.com/benchrig/benchrig-core/internal/infrastructure/mqtt"
	"github.com/benchrig/benchrig-core/internal/rig"
	"github.com/benchrig/benchrig-core/internal/virtual"
)

// Stamped by the release build:
//
//	go build -ldflags "-X main.version=0.4.0 -X main.commit=$(git rev-parse --short HEAD)"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "benchrig:", err)
		os.Exit(1)
	}
}

// run wires the daemon together and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Benchrig Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	path := configPath()
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.Info("config loaded", "path", path)

	// Swap in the configured logger for everything past this point.
	log = logging.New(cfg.Logging, version)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("database close", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path)

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Commissioning store and driver catalog
	repo := rig.NewSQLiteRepository(db.DB)
	catalog, err := buildCatalog()
	if err != nil {
		return fmt.Errorf("build driver catalog: %w", err)
	}

	// Apply instruments declared in config
	if seedErr := seedInstruments(ctx, cfg, repo); seedErr != nil {
		return fmt.Errorf("seed instruments: %w", seedErr)
	}

	// Instrument registry
	registry := rig.NewRegistry(repo, catalog)
	registry.SetLogger(log)
	defer func() {
		log.Info("draining instrument workers")
		if closeErr := registry.Close(); closeErr != nil {
			log.Error("registry close", "error", closeErr)
		}
	}()

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		defer func() {
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("mqtt close", "error", closeErr)
			}
		}()
		broker := fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)
		log.Info("mqtt session up", "broker", broker, "client_id", cfg.MQTT.Broker.ClientID)

		mqttClient.SetOnConnect(func() {
			log.Info("mqtt session restored")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("mqtt session lost", "error", err)
		})
	} else {
		log.Info("mqtt disabled, serving HTTP only")
	}

	// Start MQTT bridge (needs a broker)
	var cmdBridge *bridge.Bridge
	if mqttClient != nil {
		cmdBridge, err = bridge.New(bridge.Options{
			MQTT:        mqttClient,
			Instruments: registrySource{registry},
			Topics:      mqtt.Topics{Prefix: cfg.MQTT.Topics.Prefix},
			QoS:         byte(cfg.MQTT.QoS),
			Logger:      log,
		})
		if err != nil {
			return fmt.Errorf("build bridge: %w", err)
		}
		if startErr := cmdBridge.Start(); startErr != nil {
			return fmt.Errorf("start bridge: %w", startErr)
		}
		defer cmdBridge.Stop()
		log.Info("mqtt bridge started", "prefix", cfg.MQTT.Topics.Prefix)
	}

	// HTTP API server
	apiDeps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Registry: registry,
		Repo:     repo,
		Catalog:  catalog,
		DB:       db,
		MQTT:     mqttClient,
		Version:  version,
	}
	if cmdBridge != nil {
		apiDeps.Bridge = bridgeStats{cmdBridge}
	}
	srv, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("build api server: %w", err)
	}
	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("start api server: %w", startErr)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("api server close", "error", closeErr)
		}
	}()

	// Every completed operation fans out to the bridge's retained state
	// topics and the WebSocket event stream.
	registry.SetObserver(func(ev adapter.Event) {
		if cmdBridge != nil {
			cmdBridge.HandleEvent(ev)
		}
		srv.HandleEvent(ev)
	})

	// Bring enabled instruments online
	started, err := registry.StartAll(ctx)
	if err != nil {
		return fmt.Errorf("start instruments: %w", err)
	}
	log.Info("instruments online", "count", started)

	if err := healthCheck(ctx, db, mqttClient, srv); err != nil {
		return fmt.Errorf("startup health check: %w", err)
	}
	log.Info("benchrig up, serving until signalled")

	// Background loops: the virtual-time tick drives simulated
	// instruments while real hardware keeps its own clock.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tickLoop(gctx, registry, cfg.Rig.TickInterval())
	})

	err = g.Wait()

	// Defers unwind in reverse: API server, bridge, MQTT session,
	// instrument workers, database.
	log.Info("signal received, unwinding")
	return err
}

// tickLoop advances virtual instrument clocks at the configured rate.
func tickLoop(ctx context.Context, registry *rig.Registry, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			registry.Advance(interval)
		}
	}
}

// configPath honours BENCHRIG_CONFIG before the packaged default.
func configPath() string {
	if p := os.Getenv("BENCHRIG_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

// buildCatalog registers every driver this binary ships.
func buildCatalog() (*rig.Catalog, error) {
	catalog := rig.NewCatalog()

	if err := catalog.Register("virtual.furnace", buildFurnace); err != nil {
		return nil, err
	}
	if err := catalog.Register("fluke.18x", buildFl18x); err != nil {
		return nil, err
	}
	if err := catalog.Register("pfeiffer.tpg", buildTPG); err != nil {
		return nil, err
	}

	return catalog, nil
}

func buildFurnace(rec *rig.InstrumentRecord, tr driver.Transport) (*driver.Instrument, error) {
	furnace, ok := tr.(*virtual.Furnace)
	if !ok {
		return nil, fmt.Errorf("virtual.furnace needs a virtual transport, got %T", tr)
	}
	return virtual.Bind(rec.Name, furnace)
}

func buildFl18x(rec *rig.InstrumentRecord, tr driver.Transport) (*driver.Instrument, error) {
	return fl18x.NewInstrument(rec.Name, tr)
}

func buildTPG(rec *rig.InstrumentRecord, tr driver.Transport) (*driver.Instrument, error) {
	return tpg.NewInstrument(rec.Name, tr, rec.Params)
}

// seedInstruments upserts the instruments declared in config into the
// commissioning store. Re-running with an edited file updates records
// in place; instruments added over the API are left alone.
func seedInstruments(ctx context.Context, cfg *config.Config, repo rig.Repository) error {
	for _, ic := range cfg.Rig.Instruments {
		spec := rig.TransportSpec{
			Kind:     rig.TransportKind(ic.Transport.Kind),
			Device:   ic.Transport.Device,
			Baud:     ic.Transport.Baud,
			Parity:   ic.Transport.Parity,
			StopBits: ic.Transport.StopBits,
			Address:  ic.Transport.Address,
		}

		existing, err := repo.GetByName(ctx, ic.Name)
		switch {
		case err == nil:
			existing.Driver = ic.Driver
			existing.Transport = spec
			existing.Params = ic.Params
			existing.Enabled = ic.Enabled
			if updateErr := repo.Update(ctx, existing); updateErr != nil {
				return fmt.Errorf("update %s: %w", ic.Name, updateErr)
			}
		case errors.Is(err, rig.ErrRecordNotFound):
			rec := &rig.InstrumentRecord{
				Name:      ic.Name,
				Driver:    ic.Driver,
				Transport: spec,
				Params:    ic.Params,
				Enabled:   ic.Enabled,
			}
			if createErr := repo.Create(ctx, rec); createErr != nil {
				return fmt.Errorf("create %s: %w", ic.Name, createErr)
			}
		default:
			return fmt.Errorf("look up %s: %w", ic.Name, err)
		}
	}
	return nil
}

// healthCheck pings every backing service the daemon depends on.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, srv *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt session: %w", err)
		}
	}

	if err := srv.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api listener: %w", err)
	}

	return nil
}

// registrySource adapts the registry to the bridge's instrument lookup.
type registrySource struct {
	registry *rig.Registry
}

// Lookup implements bridge.InstrumentSource.
func (s registrySource) Lookup(name string) (bridge.Submitter, bool) {
	entry, ok := s.registry.Get(name)
	if !ok {
		return nil, false
	}
	return entry.Adapter, true
}

// bridgeStats adapts bridge counters to the API stats surface.
type bridgeStats struct {
	bridge *bridge.Bridge
}

// BridgeStats implements api.BridgeStatsProvider.
func (b bridgeStats) BridgeStats() api.BridgeStats {
	s := b.bridge.Stats()
	return api.BridgeStats{
		Commands:        s.Commands,
		Failures:        s.Failures,
		StatesPublished: s.StatesPublished,
		Dropped:         s.Dropped,
	}
}
