package commands

import (
	"context"
	"time"

	"phraseforge/contexts/gameplay/round-engine/application"
	"phraseforge/contexts/gameplay/round-engine/domain/entities"
	"phraseforge/contexts/gameplay/round-engine/ports"
)

// assemblePhraseset builds the votable unit once both copy slots on a
// prompt round are filled. It runs right after AssignCopySlot, while the
// prompt row lock is still warm, and is idempotent: an existing phraseset
// for the prompt round short-circuits, and the unique index on
// prompt_round_id backstops the race two concurrent submissions could win.
//
// Assembly failures are logged and swallowed: the copy submission that
// triggered assembly already succeeded, and raising here would fail a
// player action that is already complete.
func (uc RoundUseCase) assemblePhraseset(ctx context.Context, promptRound entities.Round, now time.Time) error {
	logger := application.ResolveLogger(uc.Logger)

	if _, exists, err := uc.Phrasesets.GetPhrasesetByPromptRound(ctx, promptRound.RoundID); err != nil {
		return err
	} else if exists {
		return nil
	}

	copies, err := uc.Rounds.ListSubmittedCopyRounds(ctx, promptRound.RoundID)
	if err != nil {
		return err
	}
	if len(copies) < 2 {
		logger.Error("phraseset assembly aborted: fewer than two submitted copies",
			"event", "round_phraseset_corrupt_state",
			"module", "gameplay/round-engine",
			"layer", "application",
			"prompt_round_id", promptRound.RoundID,
			"copy_count", len(copies),
		)
		return nil
	}
	copy1, copy2 := copies[0], copies[1]

	if promptRound.SubmittedPhrase == "" || copy1.CopyPhrase == "" || copy2.CopyPhrase == "" {
		logger.Error("phraseset assembly aborted: empty phrase in assembled state",
			"event", "round_phraseset_corrupt_state",
			"module", "gameplay/round-engine",
			"layer", "application",
			"prompt_round_id", promptRound.RoundID,
		)
		return nil
	}

	contributions := promptRound.SystemContribution + copy1.SystemContribution + copy2.SystemContribution
	pool := uc.Rules.BasePool + contributions
	if copy1.PlayerID == copy2.PlayerID {
		// Second-copy feature: one player filled both slots and paid double,
		// so the pool carries the surcharge.
		pool += uc.Rules.SecondCopySurcharge
	}

	phrasesetID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	set := entities.Phraseset{
		PhrasesetID:       phrasesetID,
		PromptRoundID:     promptRound.RoundID,
		CopyRound1ID:      copy1.RoundID,
		CopyRound2ID:      copy2.RoundID,
		PromptText:        promptRound.PromptText,
		OriginalPhrase:    promptRound.SubmittedPhrase,
		Copy1Phrase:       copy1.CopyPhrase,
		Copy2Phrase:       copy2.CopyPhrase,
		Status:            entities.PhrasesetStatusOpen,
		TotalPool:         pool,
		ContributionTotal: contributions,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := uc.Phrasesets.SavePhraseset(ctx, set); err != nil {
		logger.Error("phraseset persist failed",
			"event", "round_phraseset_persist_failed",
			"module", "gameplay/round-engine",
			"layer", "application",
			"prompt_round_id", promptRound.RoundID,
			"error", err.Error(),
		)
		return nil
	}
	if err := uc.Queue.Push(ctx, ports.QueuePhrasesetWaitingForVote, set.PhrasesetID); err != nil {
		return err
	}
	uc.appendPhrasesetEvent(ctx, "phraseset.created", set, now)

	logger.Info("phraseset assembled",
		"event", "round_phraseset_created",
		"module", "gameplay/round-engine",
		"layer", "application",
		"phraseset_id", set.PhrasesetID,
		"prompt_round_id", set.PromptRoundID,
		"total_pool", set.TotalPool,
		"same_player_copies", copy1.PlayerID == copy2.PlayerID,
	)
	return nil
}
