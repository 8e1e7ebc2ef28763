package ports

import (
	"context"
	"time"

	"phraseforge/contexts/gameplay/round-engine/domain/entities"
)

// Named matchmaking queues. The queue is a performance index over the
// database; entries may go stale and are healed by rehydration.
const (
	QueuePromptWaitingForCopy    = "prompt_waiting_for_copy"
	QueuePhrasesetWaitingForVote = "phraseset_waiting_for_vote"
)

// Canonical lock keys. Every sequence that mutates both balance and round
// state runs inside one of these critical sections.
const (
	LockRehydratePromptQueue = "rehydrate_prompt_queue"
	LockRehydrateVoteQueue   = "rehydrate_vote_queue"
)

func LockStartPromptRound(playerID string) string { return "start_prompt_round:" + playerID }
func LockStartCopyRound(playerID string) string   { return "start_copy_round:" + playerID }
func LockStartVoteRound(playerID string) string   { return "start_vote_round:" + playerID }
func LockAbandonRound(roundID string) string      { return "abandon_round:" + roundID }

type RoundRepository interface {
	SaveRound(ctx context.Context, round entities.Round) error
	GetRound(ctx context.Context, roundID string) (entities.Round, error)

	// ListSubmittedCopyRounds returns submitted copy rounds referencing the
	// prompt round, ordered by submission time.
	ListSubmittedCopyRounds(ctx context.Context, promptRoundID string) ([]entities.Round, error)

	// HasCopyByPlayer reports whether the player holds any non-abandoned copy
	// round for the prompt round.
	HasCopyByPlayer(ctx context.Context, promptRoundID string, playerID string) (bool, error)

	// ClaimPromptForCopy row-locks the prompt round and revalidates that it is
	// still matchable (submitted, unflagged, no phraseset, a copy slot free and
	// not already claimed by an in-flight copy round). Returns
	// ErrPromptRoundUnavailable when the candidate lost the race.
	ClaimPromptForCopy(ctx context.Context, promptRoundID string, playerID string, secondSlot bool) (entities.Round, error)

	// AssignCopySlot fills the first open copy slot on the prompt round and
	// advances its phraseset progress, under the same row lock that
	// ClaimPromptForCopy uses. Returns the updated prompt round.
	AssignCopySlot(ctx context.Context, promptRoundID string, playerID string, now time.Time) (entities.Round, error)

	// ListMatchablePromptRoundIDs is the rehydration query: submitted prompt
	// rounds with no phraseset, no disqualifying flag, and a free copy slot,
	// oldest first.
	ListMatchablePromptRoundIDs(ctx context.Context) ([]string, error)

	// ListDueRounds returns active rounds whose grace window elapsed before
	// cutoff, bounded by limit.
	ListDueRounds(ctx context.Context, cutoff time.Time, limit int) ([]entities.Round, error)
}

type PhrasesetRepository interface {
	SavePhraseset(ctx context.Context, set entities.Phraseset) error
	GetPhraseset(ctx context.Context, phrasesetID string) (entities.Phraseset, error)

	// GetPhrasesetByPromptRound is the idempotence gate for assembly.
	GetPhrasesetByPromptRound(ctx context.Context, promptRoundID string) (entities.Phraseset, bool, error)

	// ListOpenPhrasesetIDs is the DB fallback when the vote queue runs dry.
	ListOpenPhrasesetIDs(ctx context.Context) ([]string, error)

	// HasVoted reports whether the player already drew a vote round for the
	// phraseset.
	HasVoted(ctx context.Context, phrasesetID string, playerID string) (bool, error)
}

type PlayerRepository interface {
	GetPlayer(ctx context.Context, playerID string) (entities.Player, error)
	SetActiveRound(ctx context.Context, playerID string, roundID string, now time.Time) error

	// ClearActiveRound resets the pointer only while it still references
	// roundID, so duplicate sweeps stay safe.
	ClearActiveRound(ctx context.Context, playerID string, roundID string, now time.Time) error
}

// PromptCatalog serves prompts the player has not previously encountered as
// author, copier, or voter.
type PromptCatalog interface {
	RandomUnseenPrompt(ctx context.Context, playerID string) (entities.Prompt, bool, error)
}

type CooldownStore interface {
	AddCooldown(ctx context.Context, cooldown entities.AbandonmentCooldown) error
	InCooldown(ctx context.Context, playerID string, promptRoundID string, now time.Time) (bool, error)
}

// Queue is the named-FIFO primitive behind matchmaking. Implementations are
// selected by bootstrap wiring, never by conditionals in business logic.
type Queue interface {
	Push(ctx context.Context, queue string, itemID string) error
	Pop(ctx context.Context, queue string) (string, bool, error)
	PopBatch(ctx context.Context, queue string, n int) ([]string, error)
	Remove(ctx context.Context, queue string, itemID string) error
	Length(ctx context.Context, queue string) (int, error)
}

// LockGuard releases a held advisory lock. Release is idempotent.
type LockGuard interface {
	Release()
}

// LockManager is a keyed advisory mutex usable across workers. Acquire
// blocks up to timeout and then fails with ErrLockTimeout; it never queues
// indefinitely.
type LockManager interface {
	Acquire(ctx context.Context, key string, timeout time.Duration) (LockGuard, error)
}

// PhraseValidator is the external phrase-content capability. A false ok
// carries a player-facing reason; err is reserved for infrastructure faults.
type PhraseValidator interface {
	Validate(ctx context.Context, phrase string) (bool, string, error)
	ValidatePromptPhrase(ctx context.Context, phrase string, promptText string) (bool, string, error)
	ValidateCopy(ctx context.Context, phrase string, original string, otherCopy string, promptText string) (bool, string, error)
}

// TransactionService is the append-only ledger capability. Amount is signed;
// debits return ErrInsufficientBalance when the wallet cannot cover them.
type TransactionService interface {
	CreateTransaction(ctx context.Context, playerID string, amount int64, txType string, referenceID string) error
}

// EventEnvelope is the canonical event shape this module emits. Consumers
// key on event_type plus payload_version.
type EventEnvelope struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	SourceService  string    `json:"source_service"`
	OccurredAtUTC  time.Time `json:"occurred_at_utc"`
	CorrelationID  string    `json:"correlation_id"`
	EntityType     string    `json:"entity_type"`
	EntityID       string    `json:"entity_id"`
	PayloadVersion int       `json:"payload_version"`
	Payload        any       `json:"payload"`
}

// OutboxMessage is a row ready to relay from the module outbox.
type OutboxMessage struct {
	OutboxID  string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, message OutboxMessage) error
}

// OutboxRepository models worker-side outbox polling/acknowledgement.
type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

// EventPublisher publishes relayed envelopes to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
