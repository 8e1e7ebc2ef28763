package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"phraseforge/contexts/gameplay/round-engine/application"
	"phraseforge/contexts/gameplay/round-engine/application/matchmaking"
	"phraseforge/contexts/gameplay/round-engine/domain/entities"
	domainerrors "phraseforge/contexts/gameplay/round-engine/domain/errors"
	"phraseforge/contexts/gameplay/round-engine/ports"
)

// Ledger transaction types written through the TransactionService capability.
const (
	TxPromptEntry   = "prompt_entry"
	TxCopyEntry     = "copy_entry"
	TxVoteEntry     = "vote_entry"
	TxAbandonRefund = "abandon_refund"
	TxTimeoutRefund = "timeout_refund"
)

// RoundUseCase is the round state machine. Every operation that touches both
// wallet balance and round state runs inside a LockManager critical section
// scoped to the acting player or round, with row-level locking underneath as
// the second layer of defense.
type RoundUseCase struct {
	Rounds     ports.RoundRepository
	Phrasesets ports.PhrasesetRepository
	Players    ports.PlayerRepository
	Prompts    ports.PromptCatalog
	Cooldowns  ports.CooldownStore
	Queue      ports.Queue
	Locks      ports.LockManager
	Validator  ports.PhraseValidator
	Wallet     ports.TransactionService
	Outbox     ports.OutboxWriter
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Matcher    matchmaking.Coordinator
	Rules      application.Rules
	Logger     *slog.Logger
}

// StartPromptRound debits the prompt entry cost, creates an active prompt
// round against an unseen catalog prompt, and sets the player's exclusive
// active-round pointer, all inside the per-player lock so a concurrent
// request observes either the fully applied state or none of it.
func (uc RoundUseCase) StartPromptRound(ctx context.Context, playerID string) (entities.Round, error) {
	logger := application.ResolveLogger(uc.Logger)
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return entities.Round{}, domainerrors.ErrPlayerNotFound
	}

	guard, err := uc.Locks.Acquire(ctx, ports.LockStartPromptRound(playerID), uc.Rules.LockTimeout)
	if err != nil {
		logger.Error("prompt round lock acquisition failed",
			"event", "round_prompt_start_lock_failed",
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

	prompt, found, err := uc.Prompts.RandomUnseenPrompt(ctx, playerID)
	if err != nil {
		return entities.Round{}, err
	}
	if !found {
		logger.Info("prompt catalog exhausted for player",
			"event", "round_prompt_catalog_exhausted",
			"module", "gameplay/round-engine",
			"layer", "application",
			"player_id", playerID,
		)
		return entities.Round{}, domainerrors.ErrNoPromptsAvailable
	}

	now := uc.now()
	roundID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Round{}, err
	}

	if err := uc.Wallet.CreateTransaction(ctx, playerID, -uc.Rules.PromptCost, TxPromptEntry, roundID); err != nil {
		return entities.Round{}, err
	}

	round := entities.Round{
		RoundID:           roundID,
		PlayerID:          playerID,
		Type:              entities.RoundTypePrompt,
		Status:            entities.RoundStatusActive,
		Cost:              uc.Rules.PromptCost,
		CreatedAt:         now,
		ExpiresAt:         now.Add(uc.Rules.PromptRoundDuration),
		UpdatedAt:         now,
		PromptID:          prompt.PromptID,
		PromptText:        prompt.Text,
		PhrasesetProgress: entities.PhrasesetProgressNone,
	}
	if err := uc.persistStartedRound(ctx, round, now); err != nil {
		return entities.Round{}, err
	}

	logger.Info("prompt round started",
		"event", "round_prompt_started",
		"module", "gameplay/round-engine",
		"layer", "application",
		"round_id", round.RoundID,
		"player_id", playerID,
		"prompt_id", prompt.PromptID,
		"cost", round.Cost,
	)
	return round, nil
}

// SubmitPromptPhrase completes a prompt round within the grace window,
// publishes the round to the copy-matching queue, and frees the player's
// active-round pointer.
func (uc RoundUseCase) SubmitPromptPhrase(ctx context.Context, roundID string, phrase string, playerID string) (entities.Round, error) {
	logger := application.ResolveLogger(uc.Logger)
	phrase = strings.TrimSpace(phrase)

	round, err := uc.ownedActiveRound(ctx, roundID, playerID, entities.RoundTypePrompt)
	if err != nil {
		return entities.Round{}, err
	}
	now := uc.now()
	if now.After(round.ExpiresAt.Add(uc.Rules.GracePeriod)) {
		return entities.Round{}, domainerrors.ErrRoundExpired
	}

	ok, reason, err := uc.Validator.ValidatePromptPhrase(ctx, phrase, round.PromptText)
	if err != nil {
		return entities.Round{}, err
	}
	if !ok {
		logger.Info("prompt phrase rejected",
			"event", "round_prompt_phrase_rejected",
			"module", "gameplay/round-engine",
			"layer", "application",
			"round_id", round.RoundID,
			"player_id", round.PlayerID,
			"reason", reason,
		)
		return entities.Round{}, domainerrors.ErrInvalidPhrase
	}

	round.SubmittedPhrase = phrase
	round.Status = entities.RoundStatusSubmitted
	round.UpdatedAt = now
	if err := uc.Rounds.SaveRound(ctx, round); err != nil {
		return entities.Round{}, err
	}
	if err := uc.Players.ClearActiveRound(ctx, round.PlayerID, round.RoundID, now); err != nil {
		return entities.Round{}, err
	}
	if err := uc.Queue.Push(ctx, ports.QueuePromptWaitingForCopy, round.RoundID); err != nil {
		return entities.Round{}, err
	}
	uc.appendRoundEvent(ctx, "round.submitted", round, now, nil)

	logger.Info("prompt phrase submitted",
		"event", "round_prompt_submitted",
		"module", "gameplay/round-engine",
		"layer", "application",
		"round_id", round.RoundID,
		"player_id", round.PlayerID,
	)
	return round, nil
}

// ownedActiveRound loads a round and enforces ownership, type, and active
// status. Terminal rounds surface ErrRoundNotActive so late submissions
// never mutate state.
func (uc RoundUseCase) ownedActiveRound(ctx context.Context, roundID string, playerID string, roundType entities.RoundType) (entities.Round, error) {
	round, err := uc.Rounds.GetRound(ctx, strings.TrimSpace(roundID))
	if err != nil {
		return entities.Round{}, err
	}
	if !strings.EqualFold(round.PlayerID, strings.TrimSpace(playerID)) {
		return entities.Round{}, domainerrors.ErrRoundNotOwned
	}
	if round.Type != roundType {
		return entities.Round{}, domainerrors.ErrRoundNotFound
	}
	if round.Status != entities.RoundStatusActive {
		return entities.Round{}, domainerrors.ErrRoundNotActive
	}
	return round, nil
}

// persistStartedRound saves a freshly debited round and points the player at
// it. A save failure after the debit triggers a compensating credit so no
// debit exists without a corresponding round.
func (uc RoundUseCase) persistStartedRound(ctx context.Context, round entities.Round, now time.Time) error {
	if err := uc.Rounds.SaveRound(ctx, round); err != nil {
		uc.compensateDebit(ctx, round, err)
		return err
	}
	if err := uc.Players.SetActiveRound(ctx, round.PlayerID, round.RoundID, now); err != nil {
		uc.compensateDebit(ctx, round, err)
		return err
	}
	uc.appendRoundEvent(ctx, "round.started", round, now, nil)
	return nil
}

func (uc RoundUseCase) compensateDebit(ctx context.Context, round entities.Round, cause error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Error("round persistence failed after debit; issuing compensating credit",
		"event", "round_start_compensation",
		"module", "gameplay/round-engine",
		"layer", "application",
		"round_id", round.RoundID,
		"player_id", round.PlayerID,
		"amount", round.Cost,
		"error", cause.Error(),
	)
	if err := uc.Wallet.CreateTransaction(ctx, round.PlayerID, round.Cost, TxAbandonRefund, round.RoundID); err != nil {
		logger.Error("compensating credit failed; ledger reconciliation required",
			"event", "round_start_compensation_failed",
			"module", "gameplay/round-engine",
			"layer", "application",
			"round_id", round.RoundID,
			"player_id", round.PlayerID,
			"error", err.Error(),
		)
	}
}

func (uc RoundUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}
