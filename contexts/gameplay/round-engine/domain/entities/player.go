package entities

import "time"

// Player carries the wallet balance and the exclusive active-round
// pointer. ActiveRoundID is empty when the player is idle.
type Player struct {
	PlayerID      string
	Balance       int64
	ActiveRoundID string
	UpdatedAt     time.Time
}
