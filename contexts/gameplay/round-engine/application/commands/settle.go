package commands

import (
	"context"
	"strings"
	"time"

	"phraseforge/contexts/gameplay/round-engine/application"
	"phraseforge/contexts/gameplay/round-engine/domain/entities"
	domainerrors "phraseforge/contexts/gameplay/round-engine/domain/errors"
	"phraseforge/contexts/gameplay/round-engine/ports"
)

// AbandonRound is the explicit cancel path. The player keeps
// cost minus penalty; copy rounds put the parent prompt back in the queue and
// record a cooldown so the abandoning player is not immediately rematched.
func (uc RoundUseCase) AbandonRound(ctx context.Context, roundID string, playerID string) (entities.Round, error) {
	roundID = strings.TrimSpace(roundID)
	playerID = strings.TrimSpace(playerID)

	guard, err := uc.Locks.Acquire(ctx, ports.LockAbandonRound(roundID), uc.Rules.LockTimeout)
	if err != nil {
		return entities.Round{}, err
	}
	defer guard.Release()

	round, err := uc.Rounds.GetRound(ctx, roundID)
	if err != nil {
		return entities.Round{}, err
	}
	if !strings.EqualFold(round.PlayerID, playerID) {
		return entities.Round{}, domainerrors.ErrRoundNotOwned
	}
	now := uc.now()
	if round.IsTerminal() {
		// Duplicate abandon: nothing to settle, but make sure the pointer is
		// not left dangling on the closed round.
		if err := uc.Players.ClearActiveRound(ctx, round.PlayerID, round.RoundID, now); err != nil {
			return entities.Round{}, err
		}
		return entities.Round{}, domainerrors.ErrRoundNotActive
	}

	return uc.settle(ctx, round, entities.RoundStatusAbandoned, TxAbandonRefund, now)
}

// HandleTimeout reclaims a round whose grace window elapsed. Safe to call
// repeatedly: a terminal round is a no-op aside from pointer cleanup.
func (uc RoundUseCase) HandleTimeout(ctx context.Context, roundID string) (entities.Round, error) {
	logger := application.ResolveLogger(uc.Logger)
	roundID = strings.TrimSpace(roundID)

	guard, err := uc.Locks.Acquire(ctx, ports.LockAbandonRound(roundID), uc.Rules.LockTimeout)
	if err != nil {
		return entities.Round{}, err
	}
	defer guard.Release()

	round, err := uc.Rounds.GetRound(ctx, roundID)
	if err != nil {
		return entities.Round{}, err
	}
	now := uc.now()
	if round.IsTerminal() {
		if err := uc.Players.ClearActiveRound(ctx, round.PlayerID, round.RoundID, now); err != nil {
			return entities.Round{}, err
		}
		return round, nil
	}
	if !now.After(round.ExpiresAt.Add(uc.Rules.GracePeriod)) {
		logger.Debug("timeout requested before grace elapsed",
			"event", "round_timeout_not_due",
			"module", "gameplay/round-engine",
			"layer", "application",
			"round_id", round.RoundID,
		)
		return round, nil
	}

	return uc.settle(ctx, round, entities.RoundStatusExpired, TxTimeoutRefund, now)
}

// settle is the shared close path for abandonment and timeout: partial
// refund, terminal status, per-type side effects, pointer cleanup.
func (uc RoundUseCase) settle(
	ctx context.Context,
	round entities.Round,
	status entities.RoundStatus,
	txType string,
	now time.Time,
) (entities.Round, error) {
	logger := application.ResolveLogger(uc.Logger)

	refund := uc.Rules.Refund(round.Cost)
	if refund > 0 {
		if err := uc.Wallet.CreateTransaction(ctx, round.PlayerID, refund, txType, round.RoundID); err != nil {
			return entities.Round{}, err
		}
	}

	round.Status = status
	round.UpdatedAt = now
	if err := uc.Rounds.SaveRound(ctx, round); err != nil {
		return entities.Round{}, err
	}

	if round.Type == entities.RoundTypeCopy {
		// The prompt was promised a second contributor; put it back for
		// another player and keep this one away from it for a while.
		if err := uc.Queue.Push(ctx, ports.QueuePromptWaitingForCopy, round.PromptRoundID); err != nil {
			return entities.Round{}, err
		}
		if err := uc.Cooldowns.AddCooldown(ctx, entities.AbandonmentCooldown{
			PlayerID:      round.PlayerID,
			PromptRoundID: round.PromptRoundID,
			AbandonedAt:   now,
		}); err != nil {
			return entities.Round{}, err
		}
	}

	if err := uc.Players.ClearActiveRound(ctx, round.PlayerID, round.RoundID, now); err != nil {
		return entities.Round{}, err
	}

	eventType := "round.abandoned"
	if status == entities.RoundStatusExpired {
		eventType = "round.expired"
	}
	uc.appendRoundEvent(ctx, eventType, round, now, map[string]any{
		"refund":  refund,
		"penalty": round.Cost - refund,
	})

	logger.Info("round settled",
		"event", "round_settled",
		"module", "gameplay/round-engine",
		"layer", "application",
		"round_id", round.RoundID,
		"player_id", round.PlayerID,
		"round_type", string(round.Type),
		"status", string(status),
		"refund", refund,
	)
	return round, nil
}
