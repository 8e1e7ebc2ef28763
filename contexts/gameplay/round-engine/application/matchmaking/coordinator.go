package matchmaking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"phraseforge/contexts/gameplay/round-engine/application"
	"phraseforge/contexts/gameplay/round-engine/domain/entities"
	domainerrors "phraseforge/contexts/gameplay/round-engine/domain/errors"
	"phraseforge/contexts/gameplay/round-engine/ports"
)

// drainGuard bounds the rehydration drain loop so a queue that is being
// pushed to concurrently cannot spin the rebuild forever.
const drainGuard = 1000

// Coordinator owns matchmaking over the two named queues: candidate
// selection for copy rounds and phraseset draws for vote rounds. The queue
// is treated as a lossy index over the database; anything the queue loses or
// invents is reconciled against repository state.
type Coordinator struct {
	Rounds     ports.RoundRepository
	Phrasesets ports.PhrasesetRepository
	Cooldowns  ports.CooldownStore
	Queue      ports.Queue
	Locks      ports.LockManager
	Clock      ports.Clock
	Rules      application.Rules
	Logger     *slog.Logger
}

// Match is a successful copy-round pairing: the claimed prompt round plus
// the price computed from queue depth at match time.
type Match struct {
	Prompt             entities.Round
	Cost               int64
	SystemContribution int64
}

// MatchPrompt draws a prompt round the player may copy. Candidates are
// popped in batches; skipped-but-valid candidates are re-pushed to the tail
// before returning so no item is permanently lost to a failed attempt.
// Stale entries (ids that no longer resolve to a matchable prompt round)
// consume only half an attempt each and are dropped; rehydration restores
// anything real the queue has lost.
func (c Coordinator) MatchPrompt(ctx context.Context, playerID string) (Match, error) {
	logger := application.ResolveLogger(c.Logger)
	now := c.now()

	queueLen, err := c.Queue.Length(ctx, ports.QueuePromptWaitingForCopy)
	if err != nil {
		return Match{}, err
	}
	cost, contribution := c.Rules.CopyPrice(queueLen)

	var leftovers []string
	defer func() {
		for _, id := range leftovers {
			if err := c.Queue.Push(ctx, ports.QueuePromptWaitingForCopy, id); err != nil {
				logger.Error("candidate re-push failed",
					"event", "matchmaking_repush_failed",
					"module", "gameplay/round-engine",
					"layer", "application",
					"prompt_round_id", id,
					"error", err.Error(),
				)
			}
		}
	}()

	budget := c.Rules.MatchAttempts
	staleStreak := 0
	stalePardon := true
	rehydrated := false

	for budget > 0 {
		batch, err := c.Queue.PopBatch(ctx, ports.QueuePromptWaitingForCopy, c.Rules.PopBatchSize)
		if err != nil {
			return Match{}, err
		}
		if len(batch) == 0 {
			if rehydrated {
				break
			}
			if err := c.RehydratePromptQueue(ctx); err != nil {
				return Match{}, err
			}
			rehydrated = true
			continue
		}

		usable := 0
		for i, id := range batch {
			round, err := c.Rounds.GetRound(ctx, id)
			if err != nil && !errors.Is(err, domainerrors.ErrRoundNotFound) {
				leftovers = append(leftovers, batch[i:]...)
				return Match{}, err
			}
			if errors.Is(err, domainerrors.ErrRoundNotFound) || !matchable(round) {
				// Stale entry: drop it and charge half an attempt so transient
				// queue drift cannot starve a genuine matching attempt.
				staleStreak++
				if !stalePardon {
					budget--
				}
				stalePardon = !stalePardon
				if staleStreak >= c.Rules.StaleRehydrateThreshold && !rehydrated {
					if err := c.RehydratePromptQueue(ctx); err != nil {
						leftovers = append(leftovers, batch[i+1:]...)
						return Match{}, err
					}
					rehydrated = true
					staleStreak = 0
				}
				continue
			}
			staleStreak = 0
			usable++

			skip, err := c.disqualified(ctx, round, playerID, now)
			if err != nil {
				leftovers = append(leftovers, batch[i:]...)
				return Match{}, err
			}
			if skip {
				leftovers = append(leftovers, id)
				budget--
				continue
			}

			// Promising candidate: take the row lock and revalidate, closing
			// the window between queue pop and assignment.
			claimed, err := c.Rounds.ClaimPromptForCopy(ctx, id, playerID, false)
			if errors.Is(err, domainerrors.ErrPromptRoundUnavailable) {
				budget--
				continue
			}
			if err != nil {
				leftovers = append(leftovers, batch[i:]...)
				return Match{}, err
			}

			leftovers = append(leftovers, batch[i+1:]...)
			logger.Info("copy match found",
				"event", "matchmaking_copy_matched",
				"module", "gameplay/round-engine",
				"layer", "application",
				"prompt_round_id", claimed.RoundID,
				"player_id", playerID,
				"cost", cost,
				"system_contribution", contribution,
			)
			return Match{Prompt: claimed, Cost: cost, SystemContribution: contribution}, nil
		}

		if usable == 0 && !rehydrated {
			if err := c.RehydratePromptQueue(ctx); err != nil {
				return Match{}, err
			}
			rehydrated = true
		}
	}

	logger.Info("copy match attempt exhausted",
		"event", "matchmaking_copy_exhausted",
		"module", "gameplay/round-engine",
		"layer", "application",
		"player_id", playerID,
		"rehydrated", rehydrated,
	)
	return Match{}, domainerrors.ErrNoPromptsAvailable
}

// MatchPhraseset draws an open phraseset the player may vote on: not one
// they contributed to, not one they already voted on. The selected id is
// re-pushed immediately so concurrent voters can keep drawing it.
func (c Coordinator) MatchPhraseset(ctx context.Context, playerID string) (entities.Phraseset, error) {
	logger := application.ResolveLogger(c.Logger)

	var leftovers []string
	defer func() {
		for _, id := range leftovers {
			if err := c.Queue.Push(ctx, ports.QueuePhrasesetWaitingForVote, id); err != nil {
				logger.Error("phraseset re-push failed",
					"event", "matchmaking_phraseset_repush_failed",
					"module", "gameplay/round-engine",
					"layer", "application",
					"phraseset_id", id,
					"error", err.Error(),
				)
			}
		}
	}()

	rehydrated := false
	for attempts := c.Rules.MatchAttempts; attempts > 0; attempts-- {
		id, found, err := c.Queue.Pop(ctx, ports.QueuePhrasesetWaitingForVote)
		if err != nil {
			return entities.Phraseset{}, err
		}
		if !found {
			if rehydrated {
				break
			}
			if err := c.rehydrateVoteQueue(ctx); err != nil {
				return entities.Phraseset{}, err
			}
			rehydrated = true
			continue
		}

		set, err := c.Phrasesets.GetPhraseset(ctx, id)
		if errors.Is(err, domainerrors.ErrPhrasesetNotFound) {
			continue // stale entry, drop
		}
		if err != nil {
			return entities.Phraseset{}, err
		}
		if set.Status != entities.PhrasesetStatusOpen {
			continue // no longer votable, drop
		}

		eligible, err := c.voteEligible(ctx, set, playerID)
		if err != nil {
			leftovers = append(leftovers, id)
			return entities.Phraseset{}, err
		}
		leftovers = append(leftovers, id)
		if !eligible {
			continue
		}
		return set, nil
	}
	return entities.Phraseset{}, domainerrors.ErrNoPhrasesetsAvailable
}

// RehydratePromptQueue rebuilds the copy-matching queue from authoritative
// database state. The rebuild lock keeps concurrent workers from racing the
// drain; a lock timeout means another worker is already rebuilding, which is
// good enough for the caller.
func (c Coordinator) RehydratePromptQueue(ctx context.Context) error {
	return c.rehydrate(ctx, ports.LockRehydratePromptQueue, ports.QueuePromptWaitingForCopy, c.Rounds.ListMatchablePromptRoundIDs)
}

func (c Coordinator) rehydrateVoteQueue(ctx context.Context) error {
	return c.rehydrate(ctx, ports.LockRehydrateVoteQueue, ports.QueuePhrasesetWaitingForVote, c.Phrasesets.ListOpenPhrasesetIDs)
}

func (c Coordinator) rehydrate(
	ctx context.Context,
	lockKey string,
	queue string,
	source func(context.Context) ([]string, error),
) error {
	logger := application.ResolveLogger(c.Logger)
	guard, err := c.Locks.Acquire(ctx, lockKey, c.Rules.LockTimeout)
	if errors.Is(err, domainerrors.ErrLockTimeout) {
		logger.Info("rehydration already in progress elsewhere",
			"event", "matchmaking_rehydrate_skipped",
			"module", "gameplay/round-engine",
			"layer", "application",
			"queue", queue,
		)
		return nil
	}
	if err != nil {
		return err
	}
	defer guard.Release()

	ids, err := source(ctx)
	if err != nil {
		return err
	}

	for i := 0; i < drainGuard; i++ {
		drained, err := c.Queue.PopBatch(ctx, queue, c.Rules.PopBatchSize)
		if err != nil {
			return err
		}
		if len(drained) == 0 {
			break
		}
	}
	for _, id := range ids {
		if err := c.Queue.Push(ctx, queue, id); err != nil {
			return err
		}
	}

	logger.Info("queue rehydrated from database",
		"event", "matchmaking_queue_rehydrated",
		"module", "gameplay/round-engine",
		"layer", "application",
		"queue", queue,
		"entry_count", len(ids),
	)
	return nil
}

// matchable decides staleness: an entry is stale unless it still resolves
// to a submitted prompt round with a free copy slot and no phraseset.
func matchable(round entities.Round) bool {
	return round.Type == entities.RoundTypePrompt &&
		round.Status == entities.RoundStatusSubmitted &&
		round.PhrasesetProgress != entities.PhrasesetProgressComplete &&
		round.OpenCopySlots() > 0
}

// disqualified applies the per-player and moderation skip rules: own
// prompt, prompt the player already copied, prompt the player abandoned
// within the cooldown window, and administratively flagged prompts.
// Disqualified candidates stay in the queue.
func (c Coordinator) disqualified(ctx context.Context, round entities.Round, playerID string, now time.Time) (bool, error) {
	if round.Flagged {
		return true, nil
	}
	if round.PlayerID == playerID {
		return true, nil
	}
	copied, err := c.Rounds.HasCopyByPlayer(ctx, round.RoundID, playerID)
	if err != nil {
		return false, err
	}
	if copied {
		return true, nil
	}
	cooling, err := c.Cooldowns.InCooldown(ctx, playerID, round.RoundID, now)
	if err != nil {
		return false, err
	}
	return cooling, nil
}

func (c Coordinator) voteEligible(ctx context.Context, set entities.Phraseset, playerID string) (bool, error) {
	prompt, err := c.Rounds.GetRound(ctx, set.PromptRoundID)
	if err != nil {
		return false, err
	}
	if prompt.PlayerID == playerID || prompt.Copy1PlayerID == playerID || prompt.Copy2PlayerID == playerID {
		return false, nil
	}
	voted, err := c.Phrasesets.HasVoted(ctx, set.PhrasesetID, playerID)
	if err != nil {
		return false, err
	}
	return !voted, nil
}

func (c Coordinator) now() time.Time {
	now := time.Now().UTC()
	if c.Clock != nil {
		now = c.Clock.Now().UTC()
	}
	return now
}
