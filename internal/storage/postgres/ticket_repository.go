package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
)

type TicketRepository struct {
	pool *pgxpool.Pool
}

func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

const ticketColumns = `id, event_id, tier_id, owner_wallet, verification_code, job_id, issued_at, used`

func (r *TicketRepository) CreateTicket(ctx context.Context, t domain.Ticket) error {
	const stmt = `
INSERT INTO tickets (id, event_id, tier_id, owner_wallet, verification_code, job_id, issued_at, used)
VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
ON CONFLICT (id) DO NOTHING`
	_, err := exec(ctx, r.pool, stmt,
		t.ID, t.EventID, t.TierID, t.OwnerWallet, t.VerificationCode, t.JobID, t.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

func (r *TicketRepository) GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`
	t, err := scanTicket(queryRow(ctx, r.pool, q, ticketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Ticket{}, domain.ErrTicketNotFound
		}
		return domain.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

func (r *TicketRepository) ListByJobID(ctx context.Context, jobID string) ([]domain.Ticket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets WHERE job_id = $1 ORDER BY issued_at`
	return r.list(ctx, q, jobID)
}

func (r *TicketRepository) ListByOwner(ctx context.Context, wallet string) ([]domain.Ticket, error) {
	const q = `SELECT ` + ticketColumns + ` FROM tickets WHERE owner_wallet = $1 ORDER BY issued_at`
	return r.list(ctx, q, wallet)
}

func (r *TicketRepository) UpdateOwner(ctx context.Context, ticketID, newOwner string) error {
	const stmt = `UPDATE tickets SET owner_wallet = $2 WHERE id = $1`
	tag, err := exec(ctx, r.pool, stmt, ticketID, newOwner)
	if err != nil {
		return fmt.Errorf("update owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

// MarkUsed flips the used flag. Monotonic: there is deliberately no unset
// here; unfreeze/void flows go through the external ledger.
func (r *TicketRepository) MarkUsed(ctx context.Context, ticketID string) error {
	const stmt = `UPDATE tickets SET used = TRUE WHERE id = $1`
	tag, err := exec(ctx, r.pool, stmt, ticketID)
	if err != nil {
		return fmt.Errorf("mark used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

// CountSoldByTier seeds the capacity ledger's sold counter at startup.
func (r *TicketRepository) CountSoldByTier(ctx context.Context, eventID, tierID string) (int, error) {
	const q = `SELECT COUNT(*) FROM tickets WHERE event_id = $1 AND tier_id = $2`
	var n int
	if err := queryRow(ctx, r.pool, q, eventID, tierID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sold: %w", err)
	}
	return n, nil
}

func (r *TicketRepository) list(ctx context.Context, q string, args ...any) ([]domain.Ticket, error) {
	rows, err := query(ctx, r.pool, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var t domain.Ticket
	err := row.Scan(&t.ID, &t.EventID, &t.TierID, &t.OwnerWallet, &t.VerificationCode, &t.JobID, &t.IssuedAt, &t.Used)
	return t, err
}
