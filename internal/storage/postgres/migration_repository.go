package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
)

type MigrationRepository struct {
	pool *pgxpool.Pool
}

func NewMigrationRepository(pool *pgxpool.Pool) *MigrationRepository {
	return &MigrationRepository{pool: pool}
}

func (r *MigrationRepository) CreateMigration(ctx context.Context, rec domain.MigrationRecord) error {
	const stmt = `
INSERT INTO migration_records (id, user_id, job_id, source_wallet, dest_wallet, state, transferred, total, progress, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 0, $7, $7)`
	_, err := exec(ctx, r.pool, stmt,
		rec.ID, rec.UserID, rec.JobID, rec.SourceWallet, rec.DestWallet, rec.State, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create migration: %w", err)
	}
	return nil
}

func (r *MigrationRepository) GetMigration(ctx context.Context, id string) (domain.MigrationRecord, error) {
	const q = `
SELECT id, user_id, job_id, source_wallet, dest_wallet, state, transferred, total, progress, created_at, updated_at
FROM migration_records WHERE id = $1`
	var rec domain.MigrationRecord
	err := queryRow(ctx, r.pool, q, id).Scan(
		&rec.ID, &rec.UserID, &rec.JobID, &rec.SourceWallet, &rec.DestWallet,
		&rec.State, &rec.Transferred, &rec.Total, &rec.Progress, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MigrationRecord{}, domain.ErrMigrationNotFound
		}
		return domain.MigrationRecord{}, fmt.Errorf("get migration: %w", err)
	}

	const oq = `
SELECT ticket_id, transferred, error, tx_signature
FROM migration_outcomes WHERE migration_id = $1 ORDER BY recorded_at`
	rows, err := query(ctx, r.pool, oq, id)
	if err != nil {
		return domain.MigrationRecord{}, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var out domain.TicketOutcome
		if err := rows.Scan(&out.TicketID, &out.Transferred, &out.Error, &out.TxSignature); err != nil {
			return domain.MigrationRecord{}, fmt.Errorf("scan outcome: %w", err)
		}
		rec.Outcomes = append(rec.Outcomes, out)
	}
	return rec, rows.Err()
}

// StartMigration moves the record to in_progress and pins the ticket count.
// Idempotent: re-delivery of the job finds the record already in_progress.
func (r *MigrationRepository) StartMigration(ctx context.Context, id string, total int) error {
	const stmt = `
UPDATE migration_records
SET state = 'in_progress', total = $2, updated_at = NOW()
WHERE id = $1 AND state IN ('pending', 'in_progress')`
	tag, err := exec(ctx, r.pool, stmt, id, total)
	if err != nil {
		return fmt.Errorf("start migration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMigrationNotFound
	}
	return nil
}

// RecordOutcome persists one ticket's result and the record's running
// progress in a single transaction, so Status reflects real-time completion
// for a long migration.
func (r *MigrationRepository) RecordOutcome(ctx context.Context, id string, outcome domain.TicketOutcome, transferred int, progress float64) error {
	return withTx(ctx, r.pool, func(txCtx context.Context) error {
		const outStmt = `
INSERT INTO migration_outcomes (migration_id, ticket_id, transferred, error, tx_signature, recorded_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (migration_id, ticket_id) DO UPDATE
SET transferred = EXCLUDED.transferred, error = EXCLUDED.error, tx_signature = EXCLUDED.tx_signature`
		if _, err := exec(txCtx, r.pool, outStmt,
			id, outcome.TicketID, outcome.Transferred, outcome.Error, outcome.TxSignature,
		); err != nil {
			return fmt.Errorf("record outcome: %w", err)
		}

		const recStmt = `
UPDATE migration_records SET transferred = $2, progress = $3, updated_at = NOW() WHERE id = $1`
		if _, err := exec(txCtx, r.pool, recStmt, id, transferred, progress); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		return nil
	})
}

// FinishMigration records the terminal state. State only advances forward;
// a record already terminal is left alone.
func (r *MigrationRepository) FinishMigration(ctx context.Context, id string, state domain.MigrationState) error {
	const stmt = `
UPDATE migration_records
SET state = $2, updated_at = NOW()
WHERE id = $1 AND state IN ('pending', 'in_progress')`
	tag, err := exec(ctx, r.pool, stmt, id, state)
	if err != nil {
		return fmt.Errorf("finish migration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMigrationNotFound
	}
	return nil
}
