package entities

import "time"

type PhrasesetStatus string

const (
	PhrasesetStatusOpen      PhrasesetStatus = "open"
	PhrasesetStatusClosing   PhrasesetStatus = "closing"
	PhrasesetStatusFinalized PhrasesetStatus = "finalized"
)

// Phraseset is the assembled votable unit: one prompt phrase plus two
// copies. Phrases are denormalized at assembly time so voting reads never
// depend on round rows.
type Phraseset struct {
	PhrasesetID   string
	PromptRoundID string
	CopyRound1ID  string
	CopyRound2ID  string

	PromptText     string
	OriginalPhrase string
	Copy1Phrase    string
	Copy2Phrase    string

	Status            PhrasesetStatus
	VoteCount         int
	TotalPool         int64
	ContributionTotal int64
	PayoutTotal       int64

	CreatedAt time.Time
	UpdatedAt time.Time
}
