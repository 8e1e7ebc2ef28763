package commands

import (
	"context"
	"strings"

	"phraseforge/contexts/gameplay/round-engine/application"
	"phraseforge/contexts/gameplay/round-engine/application/matchmaking"
	"phraseforge/contexts/gameplay/round-engine/domain/entities"
	domainerrors "phraseforge/contexts/gameplay/round-engine/domain/errors"
	"phraseforge/contexts/gameplay/round-engine/ports"
)

// StartCopyRound creates an active copy round. With an empty promptRoundID
// the coordinator draws a candidate from the matching queue at the current
// (possibly discounted) price. With an explicit promptRoundID the player is
// taking the second slot on a prompt they already copied once: the queue is
// bypassed, the price doubles, and the prompt leaves the queue for good.
func (uc RoundUseCase) StartCopyRound(ctx context.Context, playerID string, promptRoundID string) (entities.Round, error) {
	logger := application.ResolveLogger(uc.Logger)
	playerID = strings.TrimSpace(playerID)
	promptRoundID = strings.TrimSpace(promptRoundID)
	if playerID == "" {
		return entities.Round{}, domainerrors.ErrPlayerNotFound
	}

	guard, err := uc.Locks.Acquire(ctx, ports.LockStartCopyRound(playerID), uc.Rules.LockTimeout)
	if err != nil {
		logger.Error("copy round lock acquisition failed",
			"event", "round_copy_start_lock_failed",
			"module", "gameplay/round-engine",
			"layer", "application",
			"player_id", playerID,
			"error", err.Error(),
		)
		return entities.Round{}, err
	}
	defer guard.Release()

	player, err := uc.Players.GetPlayer(ctx, playerID)
	if err != nil {
		return entities.Round{}, err
	}
	if player.ActiveRoundID != "" {
		return entities.Round{}, domainerrors.ErrAlreadyInRound
	}

	var match matchmaking.Match
	if promptRoundID == "" {
		match, err = uc.Matcher.MatchPrompt(ctx, playerID)
		if err != nil {
			return entities.Round{}, err
		}
	} else {
		match, err = uc.claimSecondCopy(ctx, playerID, promptRoundID)
		if err != nil {
			return entities.Round{}, err
		}
	}

	now := uc.now()
	roundID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		uc.returnPromptToQueue(ctx, match.Prompt.RoundID)
		return entities.Round{}, err
	}
	if err := uc.Wallet.CreateTransaction(ctx, playerID, -match.Cost, TxCopyEntry, roundID); err != nil {
		uc.returnPromptToQueue(ctx, match.Prompt.RoundID)
		return entities.Round{}, err
	}

	round := entities.Round{
		RoundID:            roundID,
		PlayerID:           playerID,
		Type:               entities.RoundTypeCopy,
		Status:             entities.RoundStatusActive,
		Cost:               match.Cost,
		SystemContribution: match.SystemContribution,
		CreatedAt:          now,
		ExpiresAt:          now.Add(uc.Rules.CopyRoundDuration),
		UpdatedAt:          now,
		PromptRoundID:      match.Prompt.RoundID,
		OriginalPhrase:     match.Prompt.SubmittedPhrase,
	}
	if err := uc.persistStartedRound(ctx, round, now); err != nil {
		uc.returnPromptToQueue(ctx, match.Prompt.RoundID)
		return entities.Round{}, err
	}

	logger.Info("copy round started",
		"event", "round_copy_started",
		"module", "gameplay/round-engine",
		"layer", "application",
		"round_id", round.RoundID,
		"player_id", playerID,
		"prompt_round_id", round.PromptRoundID,
		"cost", round.Cost,
		"system_contribution", round.SystemContribution,
		"second_copy", promptRoundID != "",
	)
	return round, nil
}

// claimSecondCopy validates the second-copy feature under the prompt row
// lock: the player must already hold the first slot and the second must be
// open. The prompt is fully claimed afterwards, so it leaves the queue.
func (uc RoundUseCase) claimSecondCopy(ctx context.Context, playerID string, promptRoundID string) (matchmaking.Match, error) {
	claimed, err := uc.Rounds.ClaimPromptForCopy(ctx, promptRoundID, playerID, true)
	if err != nil {
		return matchmaking.Match{}, err
	}
	if err := uc.Queue.Remove(ctx, ports.QueuePromptWaitingForCopy, promptRoundID); err != nil {
		return matchmaking.Match{}, err
	}
	// The extra cost surfaces in the pool as the same-player surcharge at
	// assembly time, not as a per-round system contribution.
	return matchmaking.Match{
		Prompt: claimed,
		Cost:   2 * uc.Rules.CopyCost,
	}, nil
}

// returnPromptToQueue gives a claimed prompt back after a failed copy start.
// Both matching paths take the prompt out of the queue before the debit, so
// any later failure must re-push it or the prompt sits invisible until the
// next rehydration.
func (uc RoundUseCase) returnPromptToQueue(ctx context.Context, promptRoundID string) {
	logger := application.ResolveLogger(uc.Logger)
	if err := uc.Queue.Push(ctx, ports.QueuePromptWaitingForCopy, promptRoundID); err != nil {
		logger.Error("prompt re-push after failed copy start failed",
			"event", "round_copy_repush_failed",
			"module", "gameplay/round-engine",
			"layer", "application",
			"prompt_round_id", promptRoundID,
			"error", err.Error(),
		)
	}
}

// SubmitCopyPhrase completes a copy round: validates the phrase against the
// original and any sibling copy, assigns a copy slot on the parent prompt
// round under its row lock, and either re-queues the prompt (one slot still
// open) or hands off to phraseset assembly (both slots filled).
func (uc RoundUseCase) SubmitCopyPhrase(ctx context.Context, roundID string, phrase string, playerID string) (entities.Round, error) {
	logger := application.ResolveLogger(uc.Logger)
	phrase = strings.TrimSpace(phrase)

	round, err := uc.ownedActiveRound(ctx, roundID, playerID, entities.RoundTypeCopy)
	if err != nil {
		return entities.Round{}, err
	}
	now := uc.now()
	if now.After(round.ExpiresAt.Add(uc.Rules.GracePeriod)) {
		return entities.Round{}, domainerrors.ErrRoundExpired
	}

	siblings, err := uc.Rounds.ListSubmittedCopyRounds(ctx, round.PromptRoundID)
	if err != nil {
		return entities.Round{}, err
	}
	otherCopy := ""
	if len(siblings) > 0 {
		otherCopy = siblings[0].CopyPhrase
	}

	if strings.EqualFold(phrase, round.OriginalPhrase) || (otherCopy != "" && strings.EqualFold(phrase, otherCopy)) {
		return entities.Round{}, domainerrors.ErrDuplicatePhrase
	}
	parent, err := uc.Rounds.GetRound(ctx, round.PromptRoundID)
	if err != nil {
		return entities.Round{}, err
	}
	ok, reason, err := uc.Validator.ValidateCopy(ctx, phrase, round.OriginalPhrase, otherCopy, parent.PromptText)
	if err != nil {
		return entities.Round{}, err
	}
	if !ok {
		logger.Info("copy phrase rejected",
			"event", "round_copy_phrase_rejected",
			"module", "gameplay/round-engine",
			"layer", "application",
			"round_id", round.RoundID,
			"player_id", round.PlayerID,
			"reason", reason,
		)
		return entities.Round{}, domainerrors.ErrInvalidPhrase
	}

	round.CopyPhrase = phrase
	round.Status = entities.RoundStatusSubmitted
	round.UpdatedAt = now
	if err := uc.Rounds.SaveRound(ctx, round); err != nil {
		return entities.Round{}, err
	}
	if err := uc.Players.ClearActiveRound(ctx, round.PlayerID, round.RoundID, now); err != nil {
		return entities.Round{}, err
	}

	parentAfter, err := uc.Rounds.AssignCopySlot(ctx, round.PromptRoundID, round.PlayerID, now)
	if err != nil {
		return entities.Round{}, err
	}

	if parentAfter.OpenCopySlots() > 0 {
		// One slot still open: put the prompt back so a second copier can be
		// matched.
		if err := uc.Queue.Push(ctx, ports.QueuePromptWaitingForCopy, parentAfter.RoundID); err != nil {
			return entities.Round{}, err
		}
	} else if err := uc.assemblePhraseset(ctx, parentAfter, now); err != nil {
		return entities.Round{}, err
	}

	uc.appendRoundEvent(ctx, "round.submitted", round, now, map[string]any{
		"prompt_round_id": round.PromptRoundID,
	})

	logger.Info("copy phrase submitted",
		"event", "round_copy_submitted",
		"module", "gameplay/round-engine",
		"layer", "application",
		"round_id", round.RoundID,
		"player_id", round.PlayerID,
		"prompt_round_id", round.PromptRoundID,
		"slots_open", parentAfter.OpenCopySlots(),
	)
	return round, nil
}
