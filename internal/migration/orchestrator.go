package migration

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smithciaran833/TicketTokenFinal/internal/clock"
	"github.com/smithciaran833/TicketTokenFinal/internal/custody"
	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
	"github.com/smithciaran833/TicketTokenFinal/internal/queue"
)

// Repository persists migration records and their per-ticket outcomes.
type Repository interface {
	CreateMigration(ctx context.Context, rec domain.MigrationRecord) error
	GetMigration(ctx context.Context, id string) (domain.MigrationRecord, error)
	StartMigration(ctx context.Context, id string, total int) error
	RecordOutcome(ctx context.Context, id string, outcome domain.TicketOutcome, transferred int, progress float64) error
	FinishMigration(ctx context.Context, id string, state domain.MigrationState) error
}

// Queue is the slice of the work queue the orchestrator uses.
type Queue interface {
	Enqueue(ctx context.Context, kind queue.Kind, batchID string, payload any, maxAttempts int) (queue.Job, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
	RequestCancel(ctx context.Context, jobID string) error
}

// Orchestrator runs custodial-to-self-custody migrations as auditable,
// resumable multi-step operations.
type Orchestrator struct {
	repo  Repository
	queue Queue
	clock clock.Clock
	log   zerolog.Logger
}

func NewOrchestrator(repo Repository, q Queue, clk clock.Clock, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		repo:  repo,
		queue: q,
		clock: clk,
		log:   log.With().Str("component", "migration").Logger(),
	}
}

// Initiate creates a pending migration record and enqueues the job that
// walks the tickets.
func (o *Orchestrator) Initiate(ctx context.Context, userID, sourceWallet, destWallet string) (domain.MigrationRecord, error) {
	if !custody.ValidAddress(sourceWallet) || !custody.ValidAddress(destWallet) {
		return domain.MigrationRecord{}, fmt.Errorf("%w: wallet address", domain.ErrInvalidID)
	}
	if sourceWallet == destWallet {
		return domain.MigrationRecord{}, fmt.Errorf("source and destination wallets are identical")
	}

	now := o.clock.Now()
	rec := domain.MigrationRecord{
		ID:           uuid.NewString(),
		UserID:       userID,
		SourceWallet: sourceWallet,
		DestWallet:   destWallet,
		State:        domain.MigrationStatePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	job, err := o.queue.Enqueue(ctx, queue.KindMigrateWallet, rec.ID, queue.MigratePayload{
		MigrationID:  rec.ID,
		UserID:       userID,
		SourceWallet: sourceWallet,
		DestWallet:   destWallet,
	}, queue.DefaultMaxAttempts)
	if err != nil {
		return domain.MigrationRecord{}, fmt.Errorf("enqueue migration: %w", err)
	}
	rec.JobID = job.ID

	if err := o.repo.CreateMigration(ctx, rec); err != nil {
		// Best effort: the job will find no record and fail terminally.
		_, _ = o.queue.Cancel(ctx, job.ID)
		return domain.MigrationRecord{}, fmt.Errorf("create migration: %w", err)
	}

	o.log.Info().
		Str("migration_id", rec.ID).
		Str("source", sourceWallet).
		Str("dest", destWallet).
		Msg("migration initiated")
	return rec, nil
}

// Status returns the record including itemized outcomes, so callers can
// tell "still working" from "some tickets failed" from "fully failed".
func (o *Orchestrator) Status(ctx context.Context, migrationID string) (domain.MigrationRecord, error) {
	return o.repo.GetMigration(ctx, migrationID)
}

// Rollback cancels a migration before any ticket has moved. Legal only in
// pending or in_progress with zero committed transfers.
func (o *Orchestrator) Rollback(ctx context.Context, migrationID string) error {
	rec, err := o.repo.GetMigration(ctx, migrationID)
	if err != nil {
		return err
	}
	if rec.State.Terminal() {
		return domain.ErrRollbackNotAllowed
	}
	if rec.Transferred > 0 {
		return fmt.Errorf("%w: %d tickets already transferred", domain.ErrRollbackNotAllowed, rec.Transferred)
	}

	removed, err := o.queue.Cancel(ctx, rec.JobID)
	if err != nil {
		return fmt.Errorf("cancel migration job: %w", err)
	}
	if !removed {
		// Job is mid-flight; make sure it does not come back for a retry.
		if err := o.queue.RequestCancel(ctx, rec.JobID); err != nil {
			return fmt.Errorf("request cancel: %w", err)
		}
	}

	if err := o.repo.FinishMigration(ctx, migrationID, domain.MigrationStateRolledBack); err != nil {
		return fmt.Errorf("mark rolled back: %w", err)
	}
	o.log.Info().Str("migration_id", migrationID).Msg("migration rolled back")
	return nil
}
