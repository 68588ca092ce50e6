package domain

import "time"

// CapacityHold is a temporary claim on tier inventory. Holds are owned
// exclusively by the capacity ledger; they either convert into sold count
// on purchase confirmation or evaporate when the TTL elapses.
type CapacityHold struct {
	ID        string
	EventID   string
	TierID    string
	Quantity  int
	CreatedAt time.Time
	ExpiresAt time.Time
}
