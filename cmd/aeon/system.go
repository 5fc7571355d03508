package main

import (
	"context"
	"fmt"
	"path/filepath"

	"aeon/internal/config"
	"aeon/internal/evolution"
	"aeon/internal/failover"
	"aeon/internal/generation"
	"aeon/internal/ledger"
	"aeon/internal/logging"
	"aeon/internal/nexus"
	"aeon/internal/postmortem"
	"aeon/internal/registry"
	"aeon/internal/store"
	"aeon/internal/telemetry"
)

// system is the fully composed constellation plus the handles the CLI needs
// to shut it down again.
type system struct {
	cfg       *config.Config
	nexus     *nexus.Nexus
	collector *telemetry.Collector
	ledger    *ledger.Ledger
	store     *store.Store // nil when persistence is disabled
}

// buildSystem is the composition root: it loads config, wires every
// collaborator explicitly, and starts the telemetry sampler. The returned
// cleanup stops the sampler and closes the store.
func buildSystem(ctx context.Context) (*system, func(), error) {
	cfg, err := config.Load(config.DefaultPath(workspace))
	if err != nil {
		return nil, nil, err
	}
	if apiKey != "" {
		cfg.Generation.APIKey = apiKey
	}

	if err := logging.Initialize(workspace, logging.Options{
		DebugMode:  cfg.Logging.DebugMode || verbose,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
		JSONFormat: cfg.Logging.Format == "json",
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logging.Boot("aeon %s starting in %s", cfg.Version, workspace)

	gen, err := generation.New(cfg.Generation)
	if err != nil {
		return nil, nil, err
	}

	var db *store.Store
	if cfg.Persistence.Enabled {
		db, err = store.New(filepath.Join(workspace, cfg.Persistence.DatabasePath))
		if err != nil {
			return nil, nil, err
		}
	}

	reg := registry.New()
	collector := telemetry.NewCollector(cfg.Telemetry)
	led := ledger.New()
	circuits := failover.NewManager(cfg.Failover, collector, led)
	evo := evolution.NewEngine(cfg.Evolution, reg)
	coroner := postmortem.NewEngine(evo, led)

	n := nexus.New(nexus.Deps{
		Config:     cfg,
		Registry:   reg,
		Collector:  collector,
		Circuits:   circuits,
		Ledger:     led,
		Generator:  gen,
		Evolution:  evo,
		PostMortem: coroner,
		Store:      db,
	})

	collector.Start(ctx)

	// Hot-reload the tunable subset of the config while a request runs.
	watcher, err := config.NewWatcher(config.DefaultPath(workspace))
	if err != nil {
		logging.Boot("Config watcher unavailable: %v", err)
		watcher = nil
	} else {
		reloads := make(chan *config.Config, 1)
		watcher.Subscribe(reloads)
		go func() {
			for reloaded := range reloads {
				n.ApplyConfig(reloaded)
			}
		}()
		if err := watcher.Start(ctx); err != nil {
			logging.Boot("Config watcher failed to start: %v", err)
			watcher.Stop()
			watcher = nil
		}
	}

	sys := &system{cfg: cfg, nexus: n, collector: collector, ledger: led, store: db}
	cleanup := func() {
		if watcher != nil {
			watcher.Stop()
		}
		collector.Stop()
		if db != nil {
			_ = db.Close()
		}
	}
	return sys, cleanup, nil
}
