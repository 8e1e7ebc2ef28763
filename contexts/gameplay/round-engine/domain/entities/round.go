package entities

import "time"

type RoundType string

const (
	RoundTypePrompt RoundType = "prompt"
	RoundTypeCopy   RoundType = "copy"
	RoundTypeVote   RoundType = "vote"
)

type RoundStatus string

const (
	RoundStatusActive    RoundStatus = "active"
	RoundStatusSubmitted RoundStatus = "submitted"
	RoundStatusExpired   RoundStatus = "expired"
	RoundStatusAbandoned RoundStatus = "abandoned"
)

// PhrasesetProgress tracks copy-slot assembly state on the prompt round.
type PhrasesetProgress string

const (
	PhrasesetProgressNone     PhrasesetProgress = "none"
	PhrasesetProgressPartial  PhrasesetProgress = "partial"
	PhrasesetProgressComplete PhrasesetProgress = "complete"
)

// Round is a single timed player task. The prompt-only, copy-only and
// vote-only fields stay zero-valued for other round types.
type Round struct {
	RoundID            string
	PlayerID           string
	Type               RoundType
	Status             RoundStatus
	Cost               int64
	SystemContribution int64
	CreatedAt          time.Time
	ExpiresAt          time.Time
	UpdatedAt          time.Time

	// Prompt rounds.
	PromptID          string
	PromptText        string
	SubmittedPhrase   string
	Copy1PlayerID     string
	Copy2PlayerID     string
	PhrasesetProgress PhrasesetProgress
	Flagged           bool

	// Copy rounds.
	PromptRoundID  string
	OriginalPhrase string
	CopyPhrase     string

	// Vote rounds.
	PhrasesetID string
}

// IsTerminal reports whether the round can no longer change state.
func (r Round) IsTerminal() bool {
	switch r.Status {
	case RoundStatusSubmitted, RoundStatusExpired, RoundStatusAbandoned:
		return true
	default:
		return false
	}
}

// OpenCopySlots counts unassigned copy slots on a prompt round.
func (r Round) OpenCopySlots() int {
	open := 0
	if r.Copy1PlayerID == "" {
		open++
	}
	if r.Copy2PlayerID == "" {
		open++
	}
	return open
}

// AbandonmentCooldown blocks a player from redrawing a prompt they just
// walked away from.
type AbandonmentCooldown struct {
	PlayerID      string
	PromptRoundID string
	AbandonedAt   time.Time
}

// Prompt is a catalog entry players author phrases against.
type Prompt struct {
	PromptID string
	Text     string
	Active   bool
}
