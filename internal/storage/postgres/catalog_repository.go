package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
)

// CatalogRepository reads event and tier records. Their CRUD lives in an
// external service; the core only needs event dates for proofs and tier
// supplies to seed the capacity ledger.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	const q = `SELECT id, name, starts_at FROM events WHERE id = $1`
	var e domain.Event
	err := queryRow(ctx, r.pool, q, eventID).Scan(&e.ID, &e.Name, &e.StartsAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, fmt.Errorf("event %s: %w", eventID, domain.ErrInvalidID)
		}
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (r *CatalogRepository) ListTiers(ctx context.Context) ([]domain.Tier, error) {
	const q = `SELECT id, event_id, name, total_supply FROM tiers ORDER BY event_id, id`
	rows, err := query(ctx, r.pool, q)
	if err != nil {
		return nil, fmt.Errorf("list tiers: %w", err)
	}
	defer rows.Close()

	var out []domain.Tier
	for rows.Next() {
		var t domain.Tier
		if err := rows.Scan(&t.ID, &t.EventID, &t.Name, &t.TotalSupply); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
