package unit

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"phraseforge/contexts/gameplay/round-engine/domain/entities"
	domainerrors "phraseforge/contexts/gameplay/round-engine/domain/errors"
	"phraseforge/contexts/gameplay/round-engine/ports"
)

func TestMatchPromptRehydratesPastStaleEntries(t *testing.T) {
	module := newRoundModule()
	seedPlayers(module, "alice", "bob")
	module.Store.SeedPrompt(entities.Prompt{PromptID: "prompt-1", Text: "a word for rain", Active: true})
	ctx := context.Background()

	promptRound, err := module.Rounds.StartPromptRound(ctx, "alice")
	if err != nil {
		t.Fatalf("start prompt round failed: %v", err)
	}
	if _, err := module.Rounds.SubmitPromptPhrase(ctx, promptRound.RoundID, "petrichor", "alice"); err != nil {
		t.Fatalf("submit prompt phrase failed: %v", err)
	}

	// Replace the real entry with ids that no longer resolve. Rehydration
	// must rebuild the queue from repository state and still find the match.
	if _, _, err := module.Queue.Pop(ctx, ports.QueuePromptWaitingForCopy); err != nil {
		t.Fatalf("queue pop failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := module.Queue.Push(ctx, ports.QueuePromptWaitingForCopy, fmt.Sprintf("ghost-%d", i)); err != nil {
			t.Fatalf("queue push failed: %v", err)
		}
	}

	match, err := module.Matcher.MatchPrompt(ctx, "bob")
	if err != nil {
		t.Fatalf("expected match after rehydration, got %v", err)
	}
	if match.Prompt.RoundID != promptRound.RoundID {
		t.Fatalf("expected rehydrated prompt round, got %s", match.Prompt.RoundID)
	}
}

func TestMatchPromptKeepsDisqualifiedCandidatesQueued(t *testing.T) {
	module := newRoundModule()
	seedPlayers(module, "alice", "mallory", "carol")
	module.Store.SeedPrompt(entities.Prompt{PromptID: "prompt-1", Text: "a word for rain", Active: true})
	ctx := context.Background()

	flagged := entities.Round{
		RoundID:           "flagged-round",
		PlayerID:          "mallory",
		Type:              entities.RoundTypePrompt,
		Status:            entities.RoundStatusSubmitted,
		SubmittedPhrase:   "spamword",
		PhrasesetProgress: entities.PhrasesetProgressNone,
		Flagged:           true,
		CreatedAt:         baseTime,
		ExpiresAt:         baseTime,
		UpdatedAt:         baseTime,
	}
	if err := module.Rounds.Rounds.SaveRound(ctx, flagged); err != nil {
		t.Fatalf("save flagged round failed: %v", err)
	}
	if err := module.Queue.Push(ctx, ports.QueuePromptWaitingForCopy, flagged.RoundID); err != nil {
		t.Fatalf("queue push failed: %v", err)
	}

	promptRound, err := module.Rounds.StartPromptRound(ctx, "alice")
	if err != nil {
		t.Fatalf("start prompt round failed: %v", err)
	}
	if _, err := module.Rounds.SubmitPromptPhrase(ctx, promptRound.RoundID, "petrichor", "alice"); err != nil {
		t.Fatalf("submit prompt phrase failed: %v", err)
	}

	match, err := module.Matcher.MatchPrompt(ctx, "carol")
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if match.Prompt.RoundID != promptRound.RoundID {
		t.Fatalf("expected the unflagged prompt, got %s", match.Prompt.RoundID)
	}

	// The flagged candidate is skipped, not consumed.
	id, found, err := module.Queue.Pop(ctx, ports.QueuePromptWaitingForCopy)
	if err != nil || !found {
		t.Fatalf("expected flagged candidate re-queued, found=%v err=%v", found, err)
	}
	if id != flagged.RoundID {
		t.Fatalf("expected flagged round back in queue, got %s", id)
	}
}

func TestMatchPromptSkipsOwnPrompt(t *testing.T) {
	module := newRoundModule()
	seedPlayers(module, "alice")
	module.Store.SeedPrompt(entities.Prompt{PromptID: "prompt-1", Text: "a word for rain", Active: true})
	ctx := context.Background()

	promptRound, err := module.Rounds.StartPromptRound(ctx, "alice")
	if err != nil {
		t.Fatalf("start prompt round failed: %v", err)
	}
	if _, err := module.Rounds.SubmitPromptPhrase(ctx, promptRound.RoundID, "petrichor", "alice"); err != nil {
		t.Fatalf("submit prompt phrase failed: %v", err)
	}

	if _, err := module.Rounds.StartCopyRound(ctx, "alice", ""); !errors.Is(err, domainerrors.ErrNoPromptsAvailable) {
		t.Fatalf("expected ErrNoPromptsAvailable against own prompt, got %v", err)
	}
	if got := queueLen(t, module, ports.QueuePromptWaitingForCopy); got < 1 {
		t.Fatalf("expected own prompt still queued, length %d", got)
	}
}

func TestFailedDebitReturnsPromptToQueue(t *testing.T) {
	module := newRoundModule()
	seedPlayers(module, "alice")
	module.Store.SeedPlayer(entities.Player{PlayerID: "poor", Balance: 50, UpdatedAt: baseTime})
	module.Store.SeedPrompt(entities.Prompt{PromptID: "prompt-1", Text: "a word for rain", Active: true})
	ctx := context.Background()

	promptRound, err := module.Rounds.StartPromptRound(ctx, "alice")
	if err != nil {
		t.Fatalf("start prompt round failed: %v", err)
	}
	if _, err := module.Rounds.SubmitPromptPhrase(ctx, promptRound.RoundID, "petrichor", "alice"); err != nil {
		t.Fatalf("submit prompt phrase failed: %v", err)
	}

	if _, err := module.Rounds.StartCopyRound(ctx, "poor", ""); !errors.Is(err, domainerrors.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	id, found, err := module.Queue.Pop(ctx, ports.QueuePromptWaitingForCopy)
	if err != nil || !found {
		t.Fatalf("expected prompt re-queued after failed debit, found=%v err=%v", found, err)
	}
	if id != promptRound.RoundID {
		t.Fatalf("expected claimed prompt back in queue, got %s", id)
	}
}
