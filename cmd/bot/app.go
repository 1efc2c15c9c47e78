package main

import (
	"context"
	"fmt"
	"log"

	"VoiceEconomy/internal/activity"
	"VoiceEconomy/internal/bank"
	"VoiceEconomy/internal/config"
	"VoiceEconomy/internal/metrics"
	"VoiceEconomy/internal/multiplier"
	"VoiceEconomy/internal/recorder"
	"VoiceEconomy/internal/rollover"
	"VoiceEconomy/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	bank     *bank.Manager
	store    store.Store
	recorder recorder.Recorder
	history  *recorder.SQLiteRecorder // nil when sqlite is not configured
	registry *prometheus.Registry
	engine   *activity.Engine
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// newApp wires every component. readOnly engines leave the controller and
// the resolution history untouched.
func newApp(ctx context.Context, cfg *config.Config, readOnly bool) (*app, error) {
	a := &app{cfg: cfg, registry: metrics.NewRegistry()}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	cal, err := cfg.HolidaySet()
	if err != nil {
		return nil, err
	}

	// Init bank
	a.bank, err = bank.NewManager(cfg.Storage.BankStateFile, cfg.ModelCurrencies())
	if err != nil {
		return nil, fmt.Errorf("init bank: %w", err)
	}

	// Init store
	if cfg.Storage.BadgerDir != "" {
		bs, err := store.NewBadgerStore(store.BadgerOptions{DataDir: cfg.Storage.BadgerDir, Verbose: cfg.Debug()})
		if err != nil {
			return nil, fmt.Errorf("init badger store: %w", err)
		}
		a.store = bs
	} else {
		log.Println("[WARN] storage.badger_dir not set, member state is kept in memory only")
		a.store = store.NewMemoryStore()
	}

	// Init recorder
	if cfg.Storage.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Storage.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			a.recorder = recorder.NewNoopRecorder()
		} else {
			a.recorder = sr
			a.history = sr
		}
	} else {
		a.recorder = recorder.NewNoopRecorder()
	}

	resolver := multiplier.NewResolver(cfg.ModelTiers(), cal, a.bank, nil, loc, cfg.Engine.ResetHour)
	coordinator := rollover.NewCoordinator(a.bank, cfg.Engine.TickInterval, cfg.Engine.RewardsPerDay)

	a.engine, err = activity.NewEngine(ctx, activity.Settings{
		ControllerID:   cfg.Controller.ID,
		BaseTier:       cfg.Controller.BaseTier,
		TicksPerReward: cfg.Engine.TicksPerReward,
		BasePoints:     cfg.BasePoints(),
		Workers:        cfg.Engine.Workers,
		ReadOnly:       readOnly,
	}, activity.Deps{
		Resolver:    resolver,
		Coordinator: coordinator,
		Store:       a.store,
		Recorder:    a.recorder,
		Metrics:     metrics.NewEngineMetrics(a.registry),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}
	if err := a.engine.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the store and the recorder.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Printf("[ERROR] close store: %v", err)
		}
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			log.Printf("[ERROR] close recorder: %v", err)
		}
	}
}
