package domain

import "time"

type MigrationState string

const (
	MigrationStatePending    MigrationState = "pending"
	MigrationStateInProgress MigrationState = "in_progress"
	MigrationStateCompleted  MigrationState = "completed"
	MigrationStateFailed     MigrationState = "failed"
	MigrationStateRolledBack MigrationState = "rolled_back"
)

func (s MigrationState) Terminal() bool {
	switch s {
	case MigrationStateCompleted, MigrationStateFailed, MigrationStateRolledBack:
		return true
	}
	return false
}

// TicketOutcome records the result of moving a single ticket.
type TicketOutcome struct {
	TicketID    string
	Transferred bool
	Error       string
	TxSignature string
}

// MigrationRecord tracks one custodial-to-self-custody migration. Retained
// indefinitely for audit; outcomes list every ticket the worker touched.
type MigrationRecord struct {
	ID           string
	UserID       string
	JobID        string // queue job driving this migration
	SourceWallet string
	DestWallet   string
	State        MigrationState
	Outcomes     []TicketOutcome
	Transferred  int
	Total        int
	Progress     float64 // 0..100
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
