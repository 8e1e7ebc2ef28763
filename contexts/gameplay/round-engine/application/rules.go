package application

import "time"

// Rules carries gameplay tuning. Bootstrap builds it from process config and
// passes it through module wiring; business logic never reads env vars.
type Rules struct {
	PromptCost          int64
	CopyCost            int64
	CopyDiscountCost    int64
	DiscountThreshold   int
	VoteCost            int64
	BasePool            int64
	SecondCopySurcharge int64
	AbandonPenalty      int64

	PromptRoundDuration time.Duration
	CopyRoundDuration   time.Duration
	VoteRoundDuration   time.Duration
	GracePeriod         time.Duration
	CooldownWindow      time.Duration

	PopBatchSize            int
	MatchAttempts           int
	StaleRehydrateThreshold int
	LockTimeout             time.Duration
	SweepBatchSize          int
}

// DefaultRules are the production defaults; any field can be overridden from
// process config.
func DefaultRules() Rules {
	return Rules{
		PromptCost:          100,
		CopyCost:            100,
		CopyDiscountCost:    40,
		DiscountThreshold:   10,
		VoteCost:            20,
		BasePool:            300,
		SecondCopySurcharge: 100,
		AbandonPenalty:      25,

		PromptRoundDuration: 180 * time.Second,
		CopyRoundDuration:   180 * time.Second,
		VoteRoundDuration:   120 * time.Second,
		GracePeriod:         10 * time.Second,
		CooldownWindow:      6 * time.Hour,

		PopBatchSize:            5,
		MatchAttempts:           8,
		StaleRehydrateThreshold: 5,
		LockTimeout:             5 * time.Second,
		SweepBatchSize:          100,
	}
}

// CopyPrice is the pure pricing function: discount applies strictly above
// the threshold, with no hysteresis. The second return value is the amount
// the system contributes toward the eventual prize pool.
func (r Rules) CopyPrice(promptQueueLength int) (int64, int64) {
	if promptQueueLength > r.DiscountThreshold {
		return r.CopyDiscountCost, r.CopyCost - r.CopyDiscountCost
	}
	return r.CopyCost, 0
}

// Refund is the shared abandonment/timeout refund: cost minus the fixed
// penalty, floored at zero.
func (r Rules) Refund(cost int64) int64 {
	refund := cost - r.AbandonPenalty
	if refund < 0 {
		return 0
	}
	return refund
}
