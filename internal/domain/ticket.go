package domain

import "time"

// Ticket is the issued asset. The ticket PDA (program-derived address on the
// external ledger) doubles as the ticket identifier everywhere in the core.
type Ticket struct {
	ID               string // ticket PDA, base58
	EventID          string
	TierID           string
	OwnerWallet      string
	VerificationCode string
	JobID            string // issuance job that minted it
	IssuedAt         time.Time
	Used             bool
}
