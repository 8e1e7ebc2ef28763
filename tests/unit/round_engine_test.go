package unit

import (
	"context"
	"errors"
	"testing"
	"time"

	roundengine "phraseforge/contexts/gameplay/round-engine"
	"phraseforge/contexts/gameplay/round-engine/application"
	"phraseforge/contexts/gameplay/round-engine/domain/entities"
	domainerrors "phraseforge/contexts/gameplay/round-engine/domain/errors"
	"phraseforge/contexts/gameplay/round-engine/ports"
)

var baseTime = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func newRoundModule() roundengine.Module {
	module := roundengine.NewInMemoryModule(application.DefaultRules(), nil)
	module.Store.SetNow(baseTime)
	return module
}

func seedPlayers(module roundengine.Module, ids ...string) {
	for _, id := range ids {
		module.Store.SeedPlayer(entities.Player{PlayerID: id, Balance: 1000, UpdatedAt: baseTime})
	}
}

func balanceOf(t *testing.T, module roundengine.Module, playerID string) int64 {
	t.Helper()
	player, err := module.Store.GetPlayer(context.Background(), playerID)
	if err != nil {
		t.Fatalf("get player %s failed: %v", playerID, err)
	}
	return player.Balance
}

func queueLen(t *testing.T, module roundengine.Module, queue string) int {
	t.Helper()
	length, err := module.Queue.Length(context.Background(), queue)
	if err != nil {
		t.Fatalf("queue length failed: %v", err)
	}
	return length
}

func TestPromptRoundStartAndSubmit(t *testing.T) {
	module := newRoundModule()
	seedPlayers(module, "alice", "bob")
	module.Store.SeedPrompt(entities.Prompt{PromptID: "prompt-1", Text: "a word for rain", Active: true})
	ctx := context.Background()

	round, err := module.Rounds.StartPromptRound(ctx, "alice")
	if err != nil {
		t.Fatalf("start prompt round failed: %v", err)
	}
	if round.Status != entities.RoundStatusActive || round.Type != entities.RoundTypePrompt {
		t.Fatalf("unexpected round state: %s/%s", round.Type, round.Status)
	}
	if got := balanceOf(t, module, "alice"); got != 900 {
		t.Fatalf("expected balance 900 after entry debit, got %d", got)
	}

	if _, err := module.Rounds.StartPromptRound(ctx, "alice"); !errors.Is(err, domainerrors.ErrAlreadyInRound) {
		t.Fatalf("expected ErrAlreadyInRound on second start, got %v", err)
	}
	if _, err := module.Rounds.SubmitPromptPhrase(ctx, round.RoundID, "petrichor", "bob"); !errors.Is(err, domainerrors.ErrRoundNotOwned) {
		t.Fatalf("expected ErrRoundNotOwned for foreign submit, got %v", err)
	}

	submitted, err := module.Rounds.SubmitPromptPhrase(ctx, round.RoundID, "petrichor", "alice")
	if err != nil {
		t.Fatalf("submit prompt phrase failed: %v", err)
	}
	if submitted.Status != entities.RoundStatusSubmitted {
		t.Fatalf("expected submitted status, got %s", submitted.Status)
	}
	if got := queueLen(t, module, ports.QueuePromptWaitingForCopy); got != 1 {
		t.Fatalf("expected prompt queue length 1, got %d", got)
	}

	player, err := module.Store.GetPlayer(ctx, "alice")
	if err != nil {
		t.Fatalf("get player failed: %v", err)
	}
	if player.ActiveRoundID != "" {
		t.Fatalf("expected cleared active round pointer, got %q", player.ActiveRoundID)
	}

	// The catalog has a single prompt and the player has now seen it.
	if _, err := module.Rounds.StartPromptRound(ctx, "alice"); !errors.Is(err, domainerrors.ErrNoPromptsAvailable) {
		t.Fatalf("expected ErrNoPromptsAvailable once catalog is exhausted, got %v", err)
	}
}

func TestPromptRoundInsufficientBalance(t *testing.T) {
	module := newRoundModule()
	module.Store.SeedPlayer(entities.Player{PlayerID: "poor", Balance: 50, UpdatedAt: baseTime})
	module.Store.SeedPrompt(entities.Prompt{PromptID: "prompt-1", Text: "a word for rain", Active: true})
	ctx := context.Background()

	if _, err := module.Rounds.StartPromptRound(ctx, "poor"); !errors.Is(err, domainerrors.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := balanceOf(t, module, "poor"); got != 50 {
		t.Fatalf("expected untouched balance after failed start, got %d", got)
	}
	player, err := module.Store.GetPlayer(ctx, "poor")
	if err != nil {
		t.Fatalf("get player failed: %v", err)
	}
	if player.ActiveRoundID != "" {
		t.Fatalf("expected no active round after failed start, got %q", player.ActiveRoundID)
	}
}

func TestFullPhrasesetAssemblyAndVoteFlow(t *testing.T) {
	module := newRoundModule()
	seedPlayers(module, "alice", "bob", "carol", "dave", "erin")
	module.Store.SeedPrompt(entities.Prompt{PromptID: "prompt-1", Text: "a word for rain", Active: true})
	ctx := context.Background()

	promptRound, err := module.Rounds.StartPromptRound(ctx, "alice")
	if err != nil {
		t.Fatalf("start prompt round failed: %v", err)
	}
	if _, err := module.Rounds.SubmitPromptPhrase(ctx, promptRound.RoundID, "petrichor", "alice"); err != nil {
		t.Fatalf("submit prompt phrase failed: %v", err)
	}

	copy1, err := module.Rounds.StartCopyRound(ctx, "bob", "")
	if err != nil {
		t.Fatalf("start first copy round failed: %v", err)
	}
	if copy1.Cost != 100 {
		t.Fatalf("expected full copy price 100, got %d", copy1.Cost)
	}
	if copy1.OriginalPhrase != "petrichor" {
		t.Fatalf("expected original phrase on copy round, got %q", copy1.OriginalPhrase)
	}
	if _, err := module.Rounds.SubmitCopyPhrase(ctx, copy1.RoundID, "Petrichor", "bob"); !errors.Is(err, domainerrors.ErrDuplicatePhrase) {
		t.Fatalf("expected ErrDuplicatePhrase for original repeat, got %v", err)
	}
	if _, err := module.Rounds.SubmitCopyPhrase(ctx, copy1.RoundID, "rainsmell", "bob"); err != nil {
		t.Fatalf("submit first copy failed: %v", err)
	}
	if got := queueLen(t, module, ports.QueuePromptWaitingForCopy); got != 1 {
		t.Fatalf("expected prompt re-queued with one slot open, queue length %d", got)
	}

	copy2, err := module.Rounds.StartCopyRound(ctx, "carol", "")
	if err != nil {
		t.Fatalf("start second copy round failed: %v", err)
	}
	if _, err := module.Rounds.SubmitCopyPhrase(ctx, copy2.RoundID, "RAINSMELL", "carol"); !errors.Is(err, domainerrors.ErrDuplicatePhrase) {
		t.Fatalf("expected ErrDuplicatePhrase for sibling repeat, got %v", err)
	}
	if _, err := module.Rounds.SubmitCopyPhrase(ctx, copy2.RoundID, "stormscent", "carol"); err != nil {
		t.Fatalf("submit second copy failed: %v", err)
	}

	set, found, err := module.Store.GetPhrasesetByPromptRound(ctx, promptRound.RoundID)
	if err != nil || !found {
		t.Fatalf("expected assembled phraseset, found=%v err=%v", found, err)
	}
	if set.Status != entities.PhrasesetStatusOpen {
		t.Fatalf("expected open phraseset, got %s", set.Status)
	}
	if set.TotalPool != 300 {
		t.Fatalf("expected base pool 300 with no contributions, got %d", set.TotalPool)
	}
	if set.OriginalPhrase != "petrichor" || set.Copy1Phrase != "rainsmell" || set.Copy2Phrase != "stormscent" {
		t.Fatalf("unexpected denormalized phrases: %q %q %q", set.OriginalPhrase, set.Copy1Phrase, set.Copy2Phrase)
	}
	if got := queueLen(t, module, ports.QueuePhrasesetWaitingForVote); got != 1 {
		t.Fatalf("expected vote queue length 1, got %d", got)
	}

	voteRound, err := module.Rounds.StartVoteRound(ctx, "dave")
	if err != nil {
		t.Fatalf("start vote round failed: %v", err)
	}
	if voteRound.PhrasesetID != set.PhrasesetID {
		t.Fatalf("expected vote round on assembled phraseset")
	}
	if got := balanceOf(t, module, "dave"); got != 980 {
		t.Fatalf("expected balance 980 after vote entry, got %d", got)
	}

	// The selected phraseset goes straight back in the queue so another
	// voter can draw it concurrently.
	if _, err := module.Rounds.StartVoteRound(ctx, "erin"); err != nil {
		t.Fatalf("concurrent voter draw failed: %v", err)
	}

	if _, err := module.Rounds.StartVoteRound(ctx, "dave"); !errors.Is(err, domainerrors.ErrAlreadyInRound) {
		t.Fatalf("expected ErrAlreadyInRound for active voter, got %v", err)
	}
	// Contributors never vote on their own phraseset.
	if _, err := module.Rounds.StartVoteRound(ctx, "alice"); !errors.Is(err, domainerrors.ErrNoPhrasesetsAvailable) {
		t.Fatalf("expected ErrNoPhrasesetsAvailable for contributor, got %v", err)
	}
}

func TestSecondCopyDoublesPriceAndAddsSurcharge(t *testing.T) {
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

	first, err := module.Rounds.StartCopyRound(ctx, "bob", "")
	if err != nil {
		t.Fatalf("start first copy failed: %v", err)
	}
	if _, err := module.Rounds.SubmitCopyPhrase(ctx, first.RoundID, "rainsmell", "bob"); err != nil {
		t.Fatalf("submit first copy failed: %v", err)
	}

	second, err := module.Rounds.StartCopyRound(ctx, "bob", promptRound.RoundID)
	if err != nil {
		t.Fatalf("start second-slot copy failed: %v", err)
	}
	if second.Cost != 200 {
		t.Fatalf("expected doubled price 200 for second slot, got %d", second.Cost)
	}
	if got := queueLen(t, module, ports.QueuePromptWaitingForCopy); got != 0 {
		t.Fatalf("expected fully claimed prompt removed from queue, length %d", got)
	}
	if got := balanceOf(t, module, "bob"); got != 700 {
		t.Fatalf("expected balance 700 after both copy entries, got %d", got)
	}

	if _, err := module.Rounds.SubmitCopyPhrase(ctx, second.RoundID, "stormscent", "bob"); err != nil {
		t.Fatalf("submit second copy failed: %v", err)
	}
	set, found, err := module.Store.GetPhrasesetByPromptRound(ctx, promptRound.RoundID)
	if err != nil || !found {
		t.Fatalf("expected assembled phraseset, found=%v err=%v", found, err)
	}
	if set.TotalPool != 400 {
		t.Fatalf("expected pool 400 with same-player surcharge, got %d", set.TotalPool)
	}
}

func TestFailedSecondCopyDebitKeepsPromptQueued(t *testing.T) {
	module := newRoundModule()
	seedPlayers(module, "alice")
	module.Store.SeedPlayer(entities.Player{PlayerID: "bob", Balance: 250, UpdatedAt: baseTime})
	module.Store.SeedPrompt(entities.Prompt{PromptID: "prompt-1", Text: "a word for rain", Active: true})
	ctx := context.Background()

	promptRound, err := module.Rounds.StartPromptRound(ctx, "alice")
	if err != nil {
		t.Fatalf("start prompt round failed: %v", err)
	}
	if _, err := module.Rounds.SubmitPromptPhrase(ctx, promptRound.RoundID, "petrichor", "alice"); err != nil {
		t.Fatalf("submit prompt phrase failed: %v", err)
	}

	first, err := module.Rounds.StartCopyRound(ctx, "bob", "")
	if err != nil {
		t.Fatalf("start first copy failed: %v", err)
	}
	if _, err := module.Rounds.SubmitCopyPhrase(ctx, first.RoundID, "rainsmell", "bob"); err != nil {
		t.Fatalf("submit first copy failed: %v", err)
	}

	// The second slot costs 200 and bob only has 150 left; the prompt must
	// return to the queue when the debit bounces.
	if _, err := module.Rounds.StartCopyRound(ctx, "bob", promptRound.RoundID); !errors.Is(err, domainerrors.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance for second slot, got %v", err)
	}
	if got := balanceOf(t, module, "bob"); got != 150 {
		t.Fatalf("expected untouched balance 150 after failed debit, got %d", got)
	}
	if got := queueLen(t, module, ports.QueuePromptWaitingForCopy); got != 1 {
		t.Fatalf("expected prompt back in queue after failed debit, length %d", got)
	}
	itemID, found, err := module.Queue.Pop(ctx, ports.QueuePromptWaitingForCopy)
	if err != nil || !found || itemID != promptRound.RoundID {
		t.Fatalf("expected prompt round queued, got %q found=%v err=%v", itemID, found, err)
	}
}

func TestLateSubmissionExpiresWithoutMutation(t *testing.T) {
	module := newRoundModule()
	seedPlayers(module, "alice", "bob", "carol")
	module.Store.SeedPrompt(entities.Prompt{PromptID: "prompt-1", Text: "a word for rain", Active: true})
	ctx := context.Background()

	promptRound, err := module.Rounds.StartPromptRound(ctx, "alice")
	if err != nil {
		t.Fatalf("start prompt round failed: %v", err)
	}
	if _, err := module.Rounds.SubmitPromptPhrase(ctx, promptRound.RoundID, "petrichor", "alice"); err != nil {
		t.Fatalf("submit prompt phrase failed: %v", err)
	}
	copyRound, err := module.Rounds.StartCopyRound(ctx, "bob", "")
	if err != nil {
		t.Fatalf("start copy failed: %v", err)
	}
	lateRound, err := module.Rounds.StartPromptRound(ctx, "carol")
	if err != nil {
		t.Fatalf("start second prompt round failed: %v", err)
	}

	// Both rounds expire at base+180s with a 10s grace window.
	module.Store.SetNow(baseTime.Add(195 * time.Second))

	if _, err := module.Rounds.SubmitPromptPhrase(ctx, lateRound.RoundID, "drizzle", "carol"); !errors.Is(err, domainerrors.ErrRoundExpired) {
		t.Fatalf("expected ErrRoundExpired on late prompt submit, got %v", err)
	}
	got, err := module.Rounds.Rounds.GetRound(ctx, lateRound.RoundID)
	if err != nil {
		t.Fatalf("get round failed: %v", err)
	}
	if got.Status != entities.RoundStatusActive || got.SubmittedPhrase != "" {
		t.Fatalf("late prompt submit mutated round: status=%s phrase=%q", got.Status, got.SubmittedPhrase)
	}
	if balance := balanceOf(t, module, "carol"); balance != 900 {
		t.Fatalf("expected balance 900 unchanged by late submit, got %d", balance)
	}

	if _, err := module.Rounds.SubmitCopyPhrase(ctx, copyRound.RoundID, "rainsmell", "bob"); !errors.Is(err, domainerrors.ErrRoundExpired) {
		t.Fatalf("expected ErrRoundExpired on late copy submit, got %v", err)
	}
	got, err = module.Rounds.Rounds.GetRound(ctx, copyRound.RoundID)
	if err != nil {
		t.Fatalf("get round failed: %v", err)
	}
	if got.Status != entities.RoundStatusActive || got.CopyPhrase != "" {
		t.Fatalf("late copy submit mutated round: status=%s phrase=%q", got.Status, got.CopyPhrase)
	}
	if balance := balanceOf(t, module, "bob"); balance != 900 {
		t.Fatalf("expected balance 900 unchanged by late submit, got %d", balance)
	}
	// Neither failed submit pushed anything onto the matching queue.
	if length := queueLen(t, module, ports.QueuePromptWaitingForCopy); length != 0 {
		t.Fatalf("expected empty prompt queue, length %d", length)
	}
}

func TestCopyAbandonRefundsRequeuesAndCoolsDown(t *testing.T) {
	module := newRoundModule()
	seedPlayers(module, "alice", "bob", "carol")
	module.Store.SeedPrompt(entities.Prompt{PromptID: "prompt-1", Text: "a word for rain", Active: true})
	ctx := context.Background()

	promptRound, err := module.Rounds.StartPromptRound(ctx, "alice")
	if err != nil {
		t.Fatalf("start prompt round failed: %v", err)
	}
	if _, err := module.Rounds.SubmitPromptPhrase(ctx, promptRound.RoundID, "petrichor", "alice"); err != nil {
		t.Fatalf("submit prompt phrase failed: %v", err)
	}

	copyRound, err := module.Rounds.StartCopyRound(ctx, "bob", "")
	if err != nil {
		t.Fatalf("start copy failed: %v", err)
	}
	abandoned, err := module.Rounds.AbandonRound(ctx, copyRound.RoundID, "bob")
	if err != nil {
		t.Fatalf("abandon copy failed: %v", err)
	}
	if abandoned.Status != entities.RoundStatusAbandoned {
		t.Fatalf("expected abandoned status, got %s", abandoned.Status)
	}
	if got := balanceOf(t, module, "bob"); got != 975 {
		t.Fatalf("expected balance 975 after penalty refund, got %d", got)
	}
	if got := len(module.Store.Cooldowns()); got != 1 {
		t.Fatalf("expected one cooldown row, got %d", got)
	}
	if got := queueLen(t, module, ports.QueuePromptWaitingForCopy); got != 1 {
		t.Fatalf("expected prompt back in queue after abandon, length %d", got)
	}

	// Duplicate abandon settles nothing.
	if _, err := module.Rounds.AbandonRound(ctx, copyRound.RoundID, "bob"); !errors.Is(err, domainerrors.ErrRoundNotActive) {
		t.Fatalf("expected ErrRoundNotActive on duplicate abandon, got %v", err)
	}
	if got := balanceOf(t, module, "bob"); got != 975 {
		t.Fatalf("expected unchanged balance after duplicate abandon, got %d", got)
	}

	// The abandoning player is cooled down from the same prompt; another
	// player can still draw it.
	if _, err := module.Rounds.StartCopyRound(ctx, "bob", ""); !errors.Is(err, domainerrors.ErrNoPromptsAvailable) {
		t.Fatalf("expected ErrNoPromptsAvailable during cooldown, got %v", err)
	}
	if _, err := module.Rounds.StartCopyRound(ctx, "carol", ""); err != nil {
		t.Fatalf("expected other player to match, got %v", err)
	}
}

func TestVoteRoundAbandonRefundFloorsAtZero(t *testing.T) {
	module := newRoundModule()
	seedPlayers(module, "alice", "bob", "carol", "dave")
	module.Store.SeedPrompt(entities.Prompt{PromptID: "prompt-1", Text: "a word for rain", Active: true})
	ctx := context.Background()

	promptRound, err := module.Rounds.StartPromptRound(ctx, "alice")
	if err != nil {
		t.Fatalf("start prompt round failed: %v", err)
	}
	if _, err := module.Rounds.SubmitPromptPhrase(ctx, promptRound.RoundID, "petrichor", "alice"); err != nil {
		t.Fatalf("submit prompt phrase failed: %v", err)
	}
	for _, step := range []struct{ player, phrase string }{
		{"bob", "rainsmell"},
		{"carol", "stormscent"},
	} {
		copyRound, err := module.Rounds.StartCopyRound(ctx, step.player, "")
		if err != nil {
			t.Fatalf("start copy for %s failed: %v", step.player, err)
		}
		if _, err := module.Rounds.SubmitCopyPhrase(ctx, copyRound.RoundID, step.phrase, step.player); err != nil {
			t.Fatalf("submit copy for %s failed: %v", step.player, err)
		}
	}

	voteRound, err := module.Rounds.StartVoteRound(ctx, "dave")
	if err != nil {
		t.Fatalf("start vote round failed: %v", err)
	}
	if _, err := module.Rounds.AbandonRound(ctx, voteRound.RoundID, "dave"); err != nil {
		t.Fatalf("abandon vote round failed: %v", err)
	}
	// Vote cost 20 sits below the abandonment penalty, so nothing returns.
	if got := balanceOf(t, module, "dave"); got != 980 {
		t.Fatalf("expected balance 980 with zero refund, got %d", got)
	}
}

func TestCopyPriceAndRefundRules(t *testing.T) {
	rules := application.DefaultRules()

	cost, contribution := rules.CopyPrice(10)
	if cost != 100 || contribution != 0 {
		t.Fatalf("expected full price at threshold, got %d/%d", cost, contribution)
	}
	cost, contribution = rules.CopyPrice(11)
	if cost != 40 || contribution != 60 {
		t.Fatalf("expected discounted price above threshold, got %d/%d", cost, contribution)
	}
	if got := rules.Refund(100); got != 75 {
		t.Fatalf("expected refund 75, got %d", got)
	}
	if got := rules.Refund(20); got != 0 {
		t.Fatalf("expected refund floored at zero, got %d", got)
	}
}
