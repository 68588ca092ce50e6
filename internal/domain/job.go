package domain

import "time"

type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Terminal reports whether the state can no longer change.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// IssuanceJob is one asynchronous unit of minting work. Requests above the
// pipeline chunk size are split into sibling jobs sharing a BatchID.
type IssuanceJob struct {
	ID                string
	BatchID           string
	ChunkIndex        int
	EventID           string
	TierID            string
	DestinationWallet string
	Quantity          int
	Attempts          int
	State             JobState
	TicketIDs         []string
	FailureReason     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// BatchStatus aggregates the states of sibling issuance jobs. Completed only
// when every sibling completed; failed as soon as any sibling has exhausted
// its retries.
type BatchStatus struct {
	BatchID   string
	State     JobState
	Total     int
	Completed int
	Failed    int
	TicketIDs []string
	Failures  []string
}
