package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dotsetgreg/wargabot/pkg/agent"
	"github.com/dotsetgreg/wargabot/pkg/cache"
	"github.com/dotsetgreg/wargabot/pkg/cases"
	"github.com/dotsetgreg/wargabot/pkg/config"
	"github.com/dotsetgreg/wargabot/pkg/history"
	"github.com/dotsetgreg/wargabot/pkg/knowledge"
	"github.com/dotsetgreg/wargabot/pkg/logger"
	"github.com/dotsetgreg/wargabot/pkg/planner"
	"github.com/dotsetgreg/wargabot/pkg/profiles"
	"github.com/dotsetgreg/wargabot/pkg/providers"
	"github.com/dotsetgreg/wargabot/pkg/slots"
	"github.com/dotsetgreg/wargabot/pkg/store"
	"github.com/dotsetgreg/wargabot/pkg/usage"
)

// services is the wired runtime shared by the chat and gateway commands.
type services struct {
	cfg     *config.Config
	db      *sql.DB
	tracker *usage.Tracker
	orch    *agent.Orchestrator
	caches  *cache.Group
	stop    context.CancelFunc
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := applyLogConfig(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyLogConfig(lc config.LogConfig) error {
	level, err := logger.ParseLevel(lc.Level)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	logger.SetLevel(level)
	logger.SetFormat(lc.Format)
	return nil
}

// buildServices wires providers, planner, storage and the orchestrator.
// Background work (usage resets, cache sweeps) stops on Close.
func buildServices(ctx context.Context, cfg *config.Config) (*services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	creds, err := providers.BuildCredentials(cfg)
	if len(creds) == 0 {
		return nil, err
	}
	if err != nil {
		logger.WarnCF("main", "Some credentials were skipped", map[string]interface{}{"error": err.Error()})
	}

	bg, stop := context.WithCancel(ctx)
	tracker := usage.NewTracker(usage.WithCapacityWindow(config.Seconds(cfg.Planner.RateLimitWindowSeconds)))
	if err := tracker.StartResetSchedule(bg, cfg.Usage.ResetCron); err != nil {
		stop()
		return nil, err
	}
	plan := planner.New(creds, cfg.ModelList(), tracker, planner.OptionsFromConfig(cfg))

	db, err := store.OpenAndMigrate(cfg.StoragePath())
	if err != nil {
		stop()
		return nil, err
	}

	hist := history.NewCached(history.NewSQLiteService(db), history.CachedOptions{
		Window:   cfg.Assistant.HistoryTurns * 2,
		Capacity: cfg.Cache.HistoryCapacity,
		TTL:      config.Seconds(cfg.Cache.HistoryTTLSeconds),
	})

	var retriever knowledge.Retriever
	if cfg.Knowledge.BaseURL != "" {
		retriever = knowledge.New(cfg.Knowledge.BaseURL, config.Millis(cfg.Knowledge.TimeoutMS), cfg.Knowledge.TopK)
	}

	orch, err := agent.New(agent.Deps{
		Planner:   plan,
		Slots:     slots.NewStore(slots.OptionsFromConfig(cfg.Cache)),
		Cases:     cases.NewSQLiteService(db),
		Knowledge: retriever,
		History:   hist,
		Profiles:  profiles.NewSQLiteStore(db),
		Tracker:   tracker,
		Caches:    []cache.Instance{hist.Instance()},
	}, agent.OptionsFromConfig(cfg))
	if err != nil {
		stop()
		_ = db.Close()
		return nil, err
	}

	caches := orch.Caches()
	caches.Start(config.Seconds(cfg.Cache.SweepIntervalSeconds))

	logger.InfoCF("main", "Services ready", map[string]interface{}{
		"credentials": len(creds),
		"models":      len(cfg.ModelList()),
		"storage":     cfg.StoragePath(),
		"knowledge":   cfg.Knowledge.BaseURL != "",
	})

	return &services{cfg: cfg, db: db, tracker: tracker, orch: orch, caches: caches, stop: stop}, nil
}

func (s *services) Close() error {
	s.stop()
	return errors.Join(s.caches.Close(), s.db.Close())
}
