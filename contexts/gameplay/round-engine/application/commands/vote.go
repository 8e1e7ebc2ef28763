package commands

import (
	"context"
	"strings"

	"phraseforge/contexts/gameplay/round-engine/application"
	"phraseforge/contexts/gameplay/round-engine/domain/entities"
	domainerrors "phraseforge/contexts/gameplay/round-engine/domain/errors"
	"phraseforge/contexts/gameplay/round-engine/ports"
)

// StartVoteRound draws an open phraseset the player neither contributed to
// nor already voted on, debits the vote entry cost, and opens an active
// vote round. Vote submission itself belongs to the scoring subsystem.
func (uc RoundUseCase) StartVoteRound(ctx context.Context, playerID string) (entities.Round, error) {
	logger := application.ResolveLogger(uc.Logger)
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return entities.Round{}, domainerrors.ErrPlayerNotFound
	}

	guard, err := uc.Locks.Acquire(ctx, ports.LockStartVoteRound(playerID), uc.Rules.LockTimeout)
	if err != nil {
		logger.Error("vote round lock acquisition failed",
			"event", "round_vote_start_lock_failed",
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

	set, err := uc.Matcher.MatchPhraseset(ctx, playerID)
	if err != nil {
		return entities.Round{}, err
	}

	now := uc.now()
	roundID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Round{}, err
	}
	if err := uc.Wallet.CreateTransaction(ctx, playerID, -uc.Rules.VoteCost, TxVoteEntry, roundID); err != nil {
		return entities.Round{}, err
	}

	round := entities.Round{
		RoundID:     roundID,
		PlayerID:    playerID,
		Type:        entities.RoundTypeVote,
		Status:      entities.RoundStatusActive,
		Cost:        uc.Rules.VoteCost,
		CreatedAt:   now,
		ExpiresAt:   now.Add(uc.Rules.VoteRoundDuration),
		UpdatedAt:   now,
		PhrasesetID: set.PhrasesetID,
	}
	if err := uc.persistStartedRound(ctx, round, now); err != nil {
		return entities.Round{}, err
	}

	logger.Info("vote round started",
		"event", "round_vote_started",
		"module", "gameplay/round-engine",
		"layer", "application",
		"round_id", round.RoundID,
		"player_id", playerID,
		"phraseset_id", set.PhrasesetID,
		"cost", round.Cost,
	)
	return round, nil
}
