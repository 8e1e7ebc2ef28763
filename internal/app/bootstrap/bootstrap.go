package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	roundengine "phraseforge/contexts/gameplay/round-engine"
	postgresadapter "phraseforge/contexts/gameplay/round-engine/adapters/postgres"
	"phraseforge/contexts/gameplay/round-engine/application"
	workerapp "phraseforge/contexts/gameplay/round-engine/application/workers"
	"phraseforge/internal/platform/config"
	"phraseforge/internal/platform/db"
	"phraseforge/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

// EngineApp is the wired round engine for host processes that embed the
// module directly instead of running the worker binary.
type EngineApp struct {
	Module   roundengine.Module
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres      *db.Postgres
	sweep         workerapp.TimeoutSweepJob
	relay         workerapp.OutboxRelay
	sweepInterval time.Duration
	relayInterval time.Duration
	sweepEnabled  bool
	relayEnabled  bool
	logger        *slog.Logger
}

func BuildEngine() (*EngineApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "engine")

	module, pg, err := buildModule(cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	return &EngineApp{
		Module:   module,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	module, pg, err := buildModule(cfg, logger, kafka)
	if err != nil {
		return nil, err
	}
	return &WorkerApp{
		postgres:      pg,
		sweep:         module.Sweep,
		relay:         module.Relay,
		sweepInterval: cfg.SweepInterval,
		relayInterval: cfg.RelayInterval,
		sweepEnabled:  cfg.EnableTimeoutSweep,
		relayEnabled:  cfg.EnableOutboxRelay,
		logger:        logger,
	}, nil
}

func buildModule(cfg config.Config, logger *slog.Logger, publisher *messaging.Kafka) (roundengine.Module, *db.Postgres, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return roundengine.Module{}, nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return roundengine.Module{}, nil, err
	}
	if err := pg.Migrate(postgresadapter.Models()...); err != nil {
		_ = pg.Close()
		return roundengine.Module{}, nil, err
	}

	rules := application.DefaultRules()
	rules.PromptRoundDuration = cfg.PromptRoundDuration
	rules.CopyRoundDuration = cfg.CopyRoundDuration
	rules.VoteRoundDuration = cfg.VoteRoundDuration
	rules.GracePeriod = cfg.GracePeriod
	rules.CooldownWindow = cfg.CooldownWindow
	rules.LockTimeout = cfg.LockTimeout

	repo := postgresadapter.NewRepository(pg.DB, rules.CooldownWindow, logger)
	deps := roundengine.Dependencies{
		Rounds:     repo,
		Phrasesets: repo,
		Players:    repo,
		Prompts:    repo,
		Cooldowns:  repo,
		Queue:      postgresadapter.NewQueue(pg.DB, logger),
		Locks:      postgresadapter.NewLockManager(pg.DB, logger),
		Validator:  roundengine.DefaultValidator(),
		Wallet:     repo,
		Outbox:     repo,
		OutboxRepo: repo,
		Clock:      postgresadapter.SystemClock{},
		IDGen:      postgresadapter.UUIDGenerator{},
		Rules:      rules,
		Logger:     logger,
	}
	if publisher != nil {
		deps.Publisher = publisher
	}
	return roundengine.NewModule(deps), pg, nil
}

func (a *EngineApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	sweepTicker := time.NewTicker(w.sweepInterval)
	defer sweepTicker.Stop()
	relayTicker := time.NewTicker(w.relayInterval)
	defer relayTicker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"sweep_interval", w.sweepInterval.String(),
		"relay_interval", w.relayInterval.String(),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sweepTicker.C:
			if !w.sweepEnabled {
				continue
			}
			if err := w.sweep.RunOnce(ctx); err != nil {
				return err
			}
		case <-relayTicker.C:
			if !w.relayEnabled {
				continue
			}
			if err := w.relay.RunOnce(ctx); err != nil {
				return err
			}
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}
