package memory

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"phraseforge/contexts/gameplay/round-engine/domain/entities"
	domainerrors "phraseforge/contexts/gameplay/round-engine/domain/errors"
	"phraseforge/contexts/gameplay/round-engine/ports"
)

// LedgerEntry is an append-only wallet transaction recorded by the
// in-process TransactionService implementation.
type LedgerEntry struct {
	TransactionID string
	PlayerID      string
	Amount        int64
	Type          string
	ReferenceID   string
	CreatedAt     time.Time
}

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

// Store is the in-process implementation of every repository and capability
// port, used for single-node wiring and tests. One mutex guards all state,
// which also makes the claim/assign operations atomic the way the postgres
// adapter's row locks do.
type Store struct {
	mu             sync.Mutex
	now            time.Time
	cooldownWindow time.Duration

	rounds     map[string]entities.Round
	phrasesets map[string]entities.Phraseset
	players    map[string]entities.Player
	prompts    map[string]entities.Prompt
	cooldowns  map[string]entities.AbandonmentCooldown
	ledger     []LedgerEntry
	outbox     []outboxRecord
}

func NewStore() *Store {
	return &Store{
		cooldownWindow: 6 * time.Hour,
		rounds:         make(map[string]entities.Round),
		phrasesets:     make(map[string]entities.Phraseset),
		players:        make(map[string]entities.Player),
		prompts:        make(map[string]entities.Prompt),
		cooldowns:      make(map[string]entities.AbandonmentCooldown),
	}
}

// SeedPlayer installs a player with a starting balance.
func (s *Store) SeedPlayer(player entities.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[player.PlayerID] = player
}

// SeedPrompt installs a catalog prompt.
func (s *Store) SeedPrompt(prompt entities.Prompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[prompt.PromptID] = prompt
}

// SetNow pins the clock; a zero time returns to wall-clock behavior.
func (s *Store) SetNow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetCooldownWindow overrides the rematch cooldown duration.
func (s *Store) SetCooldownWindow(window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldownWindow = window
}

// Transactions returns the ledger rows for a player in append order.
func (s *Store) Transactions(playerID string) []LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LedgerEntry
	for _, entry := range s.ledger {
		if entry.PlayerID == playerID {
			out = append(out, entry)
		}
	}
	return out
}

// Cooldowns returns all cooldown rows, newest last.
func (s *Store) Cooldowns() []entities.AbandonmentCooldown {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entities.AbandonmentCooldown, 0, len(s.cooldowns))
	for _, cooldown := range s.cooldowns {
		out = append(out, cooldown)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AbandonedAt.Before(out[j].AbandonedAt) })
	return out
}

func (s *Store) SaveRound(_ context.Context, round entities.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[round.RoundID] = round
	return nil
}

func (s *Store) GetRound(_ context.Context, roundID string) (entities.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	round, ok := s.rounds[strings.TrimSpace(roundID)]
	if !ok {
		return entities.Round{}, domainerrors.ErrRoundNotFound
	}
	return round, nil
}

func (s *Store) ListSubmittedCopyRounds(_ context.Context, promptRoundID string) ([]entities.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.Round
	for _, round := range s.rounds {
		if round.Type == entities.RoundTypeCopy &&
			round.Status == entities.RoundStatusSubmitted &&
			round.PromptRoundID == promptRoundID {
			out = append(out, round)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) HasCopyByPlayer(_ context.Context, promptRoundID string, playerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, round := range s.rounds {
		if round.Type == entities.RoundTypeCopy &&
			round.PromptRoundID == promptRoundID &&
			round.PlayerID == playerID &&
			round.Status != entities.RoundStatusAbandoned &&
			round.Status != entities.RoundStatusExpired {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ClaimPromptForCopy(_ context.Context, promptRoundID string, playerID string, secondSlot bool) (entities.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, ok := s.rounds[promptRoundID]
	if !ok {
		return entities.Round{}, domainerrors.ErrRoundNotFound
	}
	if round.Type != entities.RoundTypePrompt ||
		round.Status != entities.RoundStatusSubmitted ||
		round.Flagged ||
		round.PhrasesetProgress == entities.PhrasesetProgressComplete {
		return entities.Round{}, domainerrors.ErrPromptRoundUnavailable
	}

	inFlight := 0
	for _, candidate := range s.rounds {
		if candidate.Type == entities.RoundTypeCopy &&
			candidate.Status == entities.RoundStatusActive &&
			candidate.PromptRoundID == promptRoundID {
			inFlight++
		}
	}

	if secondSlot {
		if round.Copy1PlayerID != playerID || round.Copy2PlayerID != "" || inFlight > 0 {
			return entities.Round{}, domainerrors.ErrPromptRoundUnavailable
		}
		return round, nil
	}
	if round.OpenCopySlots()-inFlight <= 0 {
		return entities.Round{}, domainerrors.ErrPromptRoundUnavailable
	}
	return round, nil
}

func (s *Store) AssignCopySlot(_ context.Context, promptRoundID string, playerID string, now time.Time) (entities.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	round, ok := s.rounds[promptRoundID]
	if !ok {
		return entities.Round{}, domainerrors.ErrRoundNotFound
	}
	switch {
	case round.Copy1PlayerID == "":
		round.Copy1PlayerID = playerID
		round.PhrasesetProgress = entities.PhrasesetProgressPartial
	case round.Copy2PlayerID == "":
		round.Copy2PlayerID = playerID
		round.PhrasesetProgress = entities.PhrasesetProgressComplete
	default:
		return entities.Round{}, domainerrors.ErrPromptRoundUnavailable
	}
	round.UpdatedAt = now
	s.rounds[promptRoundID] = round
	return round, nil
}

func (s *Store) ListMatchablePromptRoundIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matchable []entities.Round
	for _, round := range s.rounds {
		if round.Type == entities.RoundTypePrompt &&
			round.Status == entities.RoundStatusSubmitted &&
			!round.Flagged &&
			round.PhrasesetProgress != entities.PhrasesetProgressComplete &&
			round.OpenCopySlots() > 0 {
			matchable = append(matchable, round)
		}
	}
	sort.Slice(matchable, func(i, j int) bool { return matchable[i].CreatedAt.Before(matchable[j].CreatedAt) })
	ids := make([]string, 0, len(matchable))
	for _, round := range matchable {
		ids = append(ids, round.RoundID)
	}
	return ids, nil
}

func (s *Store) ListDueRounds(_ context.Context, cutoff time.Time, limit int) ([]entities.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []entities.Round
	for _, round := range s.rounds {
		if round.Status == entities.RoundStatusActive && round.ExpiresAt.Before(cutoff) {
			due = append(due, round)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(due[j].ExpiresAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) SavePhraseset(_ context.Context, set entities.Phraseset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.phrasesets {
		if existing.PromptRoundID == set.PromptRoundID && existing.PhrasesetID != set.PhrasesetID {
			return domainerrors.ErrPhrasesetExists
		}
	}
	s.phrasesets[set.PhrasesetID] = set
	return nil
}

func (s *Store) GetPhraseset(_ context.Context, phrasesetID string) (entities.Phraseset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.phrasesets[strings.TrimSpace(phrasesetID)]
	if !ok {
		return entities.Phraseset{}, domainerrors.ErrPhrasesetNotFound
	}
	return set, nil
}

func (s *Store) GetPhrasesetByPromptRound(_ context.Context, promptRoundID string) (entities.Phraseset, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, set := range s.phrasesets {
		if set.PromptRoundID == promptRoundID {
			return set, true, nil
		}
	}
	return entities.Phraseset{}, false, nil
}

func (s *Store) ListOpenPhrasesetIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []entities.Phraseset
	for _, set := range s.phrasesets {
		if set.Status == entities.PhrasesetStatusOpen {
			open = append(open, set)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })
	ids := make([]string, 0, len(open))
	for _, set := range open {
		ids = append(ids, set.PhrasesetID)
	}
	return ids, nil
}

func (s *Store) HasVoted(_ context.Context, phrasesetID string, playerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, round := range s.rounds {
		if round.Type == entities.RoundTypeVote &&
			round.PhrasesetID == phrasesetID &&
			round.PlayerID == playerID &&
			(round.Status == entities.RoundStatusActive || round.Status == entities.RoundStatusSubmitted) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetPlayer(_ context.Context, playerID string) (entities.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[strings.TrimSpace(playerID)]
	if !ok {
		return entities.Player{}, domainerrors.ErrPlayerNotFound
	}
	return player, nil
}

func (s *Store) SetActiveRound(_ context.Context, playerID string, roundID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[playerID]
	if !ok {
		return domainerrors.ErrPlayerNotFound
	}
	player.ActiveRoundID = roundID
	player.UpdatedAt = now
	s.players[playerID] = player
	return nil
}

func (s *Store) ClearActiveRound(_ context.Context, playerID string, roundID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[playerID]
	if !ok {
		return domainerrors.ErrPlayerNotFound
	}
	if player.ActiveRoundID != roundID {
		return nil
	}
	player.ActiveRoundID = ""
	player.UpdatedAt = now
	s.players[playerID] = player
	return nil
}

// RandomUnseenPrompt picks uniformly among active catalog prompts the
// player has not met as author, copier, or voter.
func (s *Store) RandomUnseenPrompt(_ context.Context, playerID string) (entities.Prompt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := s.seenPromptIDs(playerID)
	var eligible []entities.Prompt
	for _, prompt := range s.prompts {
		if prompt.Active && !seen[prompt.PromptID] {
			eligible = append(eligible, prompt)
		}
	}
	if len(eligible) == 0 {
		return entities.Prompt{}, false, nil
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].PromptID < eligible[j].PromptID })
	return eligible[rand.Intn(len(eligible))], true, nil
}

// seenPromptIDs derives prompt exposure from round history: authored prompt
// rounds, copy rounds against them, and vote rounds on their phrasesets.
func (s *Store) seenPromptIDs(playerID string) map[string]bool {
	seen := make(map[string]bool)
	for _, round := range s.rounds {
		switch round.Type {
		case entities.RoundTypePrompt:
			if round.PlayerID == playerID {
				seen[round.PromptID] = true
			}
		case entities.RoundTypeCopy:
			if round.PlayerID == playerID {
				if parent, ok := s.rounds[round.PromptRoundID]; ok {
					seen[parent.PromptID] = true
				}
			}
		case entities.RoundTypeVote:
			if round.PlayerID == playerID {
				if set, ok := s.phrasesets[round.PhrasesetID]; ok {
					if parent, ok := s.rounds[set.PromptRoundID]; ok {
						seen[parent.PromptID] = true
					}
				}
			}
		}
	}
	return seen
}

func (s *Store) AddCooldown(_ context.Context, cooldown entities.AbandonmentCooldown) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cooldown.PlayerID + "|" + cooldown.PromptRoundID
	if _, exists := s.cooldowns[key]; exists {
		return nil
	}
	s.cooldowns[key] = cooldown
	return nil
}

func (s *Store) InCooldown(_ context.Context, playerID string, promptRoundID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cooldown, ok := s.cooldowns[playerID+"|"+promptRoundID]
	if !ok {
		return false, nil
	}
	return now.Before(cooldown.AbandonedAt.Add(s.cooldownWindow)), nil
}

// CreateTransaction applies a signed amount to the wallet and appends a
// ledger row. Debits that would overdraw fail without side effects.
func (s *Store) CreateTransaction(_ context.Context, playerID string, amount int64, txType string, referenceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.players[playerID]
	if !ok {
		return domainerrors.ErrPlayerNotFound
	}
	if player.Balance+amount < 0 {
		return domainerrors.ErrInsufficientBalance
	}
	player.Balance += amount
	s.players[playerID] = player
	s.ledger = append(s.ledger, LedgerEntry{
		TransactionID: uuid.NewString(),
		PlayerID:      playerID,
		Amount:        amount,
		Type:          txType,
		ReferenceID:   referenceID,
		CreatedAt:     s.nowLocked(),
	})
	return nil
}

func (s *Store) AppendOutbox(_ context.Context, message ports.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(s.outbox, outboxRecord{message: message})
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []ports.OutboxMessage
	for _, record := range s.outbox {
		if record.published {
			continue
		}
		pending = append(pending, record.message)
		if limit > 0 && len(pending) >= limit {
			break
		}
	}
	return pending, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, record := range s.outbox {
		if record.message.OutboxID == outboxID {
			s.outbox[i].published = true
			return nil
		}
	}
	return nil
}

func (s *Store) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowLocked()
}

func (s *Store) nowLocked() time.Time {
	if s.now.IsZero() {
		return time.Now().UTC()
	}
	return s.now
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
