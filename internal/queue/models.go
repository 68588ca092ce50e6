package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags the union of job payloads the workers understand.
type Kind string

const (
	KindSingleMint    Kind = "single-mint"
	KindBatchMint     Kind = "batch-mint"
	KindMigrateWallet Kind = "migrate-wallet"
)

// State is the queue-level lifecycle of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Job is a persisted unit of work. At-least-once delivery: handlers must be
// idempotent because a crash between Handle and Complete re-delivers.
type Job struct {
	ID              string
	Kind            Kind
	BatchID         string
	Payload         json.RawMessage
	State           State
	Attempts        int
	MaxAttempts     int
	RunAt           time.Time
	LastError       string
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MintPayload drives single-mint and batch-mint jobs. The job's own queue id
// keys idempotency checks, so it is not repeated here.
type MintPayload struct {
	EventID           string `json:"event_id"`
	TierID            string `json:"tier_id"`
	DestinationWallet string `json:"destination_wallet"`
	Quantity          int    `json:"quantity"`
	HoldID            string `json:"hold_id"`
	ChunkIndex        int    `json:"chunk_index"`
	TotalChunks       int    `json:"total_chunks"`
}

// MigratePayload drives migrate-wallet jobs.
type MigratePayload struct {
	MigrationID  string `json:"migration_id"`
	UserID       string `json:"user_id"`
	SourceWallet string `json:"source_wallet"`
	DestWallet   string `json:"dest_wallet"`
}

// DecodePayload unmarshals a job's payload into its kind's struct. Explicit
// switch; an unknown kind is a permanent error, never a best-effort decode.
func DecodePayload(job *Job) (any, error) {
	switch job.Kind {
	case KindSingleMint, KindBatchMint:
		var p MintPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode mint payload: %w", err)
		}
		return p, nil
	case KindMigrateWallet:
		var p MigratePayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode migrate payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

const (
	// DefaultMaxAttempts matches the pipeline's retry ceiling.
	DefaultMaxAttempts = 3
	// backoffBase is the first retry delay; doubles per attempt.
	backoffBase = 2 * time.Second
	backoffCap  = 5 * time.Minute
)

// Backoff returns the delay before retry number attempt (1-based).
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase << (attempt - 1)
	if d > backoffCap || d <= 0 {
		return backoffCap
	}
	return d
}
