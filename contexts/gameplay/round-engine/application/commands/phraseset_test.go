package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"phraseforge/contexts/gameplay/round-engine/adapters/memory"
	"phraseforge/contexts/gameplay/round-engine/application"
	"phraseforge/contexts/gameplay/round-engine/domain/entities"
	domainerrors "phraseforge/contexts/gameplay/round-engine/domain/errors"
	"phraseforge/contexts/gameplay/round-engine/ports"
)

func TestAssemblePhrasesetIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	queue := memory.NewQueue()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	store.SetNow(now)
	uc := RoundUseCase{
		Rounds:     store,
		Phrasesets: store,
		Queue:      queue,
		Outbox:     store,
		Clock:      store,
		IDGen:      store,
		Rules:      application.DefaultRules(),
	}
	ctx := context.Background()

	prompt := entities.Round{
		RoundID:         "prompt-round",
		PlayerID:        "alice",
		Type:            entities.RoundTypePrompt,
		Status:          entities.RoundStatusSubmitted,
		PromptText:      "a word for rain",
		SubmittedPhrase: "petrichor",
		Copy1PlayerID:   "bob",
		Copy2PlayerID:   "carol",
		UpdatedAt:       now,
	}
	if err := store.SaveRound(ctx, prompt); err != nil {
		t.Fatalf("save prompt round failed: %v", err)
	}
	for i, copyRound := range []entities.Round{
		{RoundID: "copy-1", PlayerID: "bob", CopyPhrase: "rainsmell"},
		{RoundID: "copy-2", PlayerID: "carol", CopyPhrase: "stormscent"},
	} {
		copyRound.Type = entities.RoundTypeCopy
		copyRound.Status = entities.RoundStatusSubmitted
		copyRound.PromptRoundID = prompt.RoundID
		copyRound.UpdatedAt = now.Add(time.Duration(i) * time.Second)
		if err := store.SaveRound(ctx, copyRound); err != nil {
			t.Fatalf("save copy round failed: %v", err)
		}
	}

	if err := uc.assemblePhraseset(ctx, prompt, now); err != nil {
		t.Fatalf("first assembly failed: %v", err)
	}
	if err := uc.assemblePhraseset(ctx, prompt, now); err != nil {
		t.Fatalf("second assembly failed: %v", err)
	}

	set, found, err := store.GetPhrasesetByPromptRound(ctx, prompt.RoundID)
	if err != nil || !found {
		t.Fatalf("expected assembled phraseset, found=%v err=%v", found, err)
	}
	if set.Copy1Phrase != "rainsmell" || set.Copy2Phrase != "stormscent" {
		t.Fatalf("unexpected copies on phraseset: %q %q", set.Copy1Phrase, set.Copy2Phrase)
	}

	// The duplicate call short-circuits before the vote queue push, so the
	// phraseset is listed exactly once.
	length, err := queue.Length(ctx, ports.QueuePhrasesetWaitingForVote)
	if err != nil || length != 1 {
		t.Fatalf("expected one vote queue entry, got %d err=%v", length, err)
	}

	// The store backstop rejects a second phraseset for the same prompt round.
	dup := set
	dup.PhrasesetID = "other-id"
	if err := store.SavePhraseset(ctx, dup); !errors.Is(err, domainerrors.ErrPhrasesetExists) {
		t.Fatalf("expected ErrPhrasesetExists for duplicate prompt round, got %v", err)
	}
}
