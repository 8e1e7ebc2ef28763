package workers

import (
	"context"
	"log/slog"
	"time"

	"phraseforge/contexts/gameplay/round-engine/application"
	"phraseforge/contexts/gameplay/round-engine/application/commands"
	"phraseforge/contexts/gameplay/round-engine/ports"
)

// TimeoutSweepJob reclaims active rounds whose grace window elapsed. Each
// due round is settled through the same code path explicit abandonment
// uses, so the sweep inherits its idempotence: re-sweeping a round another
// worker already closed is a no-op.
type TimeoutSweepJob struct {
	Rounds    ports.RoundRepository
	UseCase   commands.RoundUseCase
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

func (j TimeoutSweepJob) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(j.Logger)
	now := time.Now().UTC()
	if j.Clock != nil {
		now = j.Clock.Now().UTC()
	}
	limit := j.BatchSize
	if limit <= 0 {
		limit = 100
	}

	cutoff := now.Add(-j.UseCase.Rules.GracePeriod)
	due, err := j.Rounds.ListDueRounds(ctx, cutoff, limit)
	if err != nil {
		logger.Error("timeout sweep listing failed",
			"event", "round_timeout_sweep_list_failed",
			"module", "gameplay/round-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	swept := 0
	for _, round := range due {
		if _, err := j.UseCase.HandleTimeout(ctx, round.RoundID); err != nil {
			logger.Error("timeout sweep settle failed",
				"event", "round_timeout_sweep_settle_failed",
				"module", "gameplay/round-engine",
				"layer", "worker",
				"round_id", round.RoundID,
				"error", err.Error(),
			)
			return err
		}
		swept++
	}

	if swept > 0 {
		logger.Info("timeout sweep cycle completed",
			"event", "round_timeout_sweep_completed",
			"module", "gameplay/round-engine",
			"layer", "worker",
			"swept_count", swept,
		)
	}
	return nil
}
