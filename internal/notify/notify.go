// Package notify is the boundary to the outbound email/SMS channel. It is
// invoked after tickets or migrations reach a terminal state; a delivery
// failure must never roll back the state that triggered it, so callers only
// log errors from here.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
)

type Notifier interface {
	TicketsIssued(ctx context.Context, wallet string, ticketIDs []string) error
	IssuanceFailed(ctx context.Context, wallet string, reason string) error
	MigrationFinished(ctx context.Context, rec domain.MigrationRecord) error
}

// LogNotifier writes notifications to the log. Stands in until a real
// delivery service is wired up.
type LogNotifier struct {
	log zerolog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) TicketsIssued(_ context.Context, wallet string, ticketIDs []string) error {
	n.log.Info().Str("wallet", wallet).Strs("ticket_ids", ticketIDs).Msg("tickets issued")
	return nil
}

func (n *LogNotifier) IssuanceFailed(_ context.Context, wallet string, reason string) error {
	n.log.Info().Str("wallet", wallet).Str("reason", reason).Msg("issuance failed")
	return nil
}

func (n *LogNotifier) MigrationFinished(_ context.Context, rec domain.MigrationRecord) error {
	n.log.Info().
		Str("migration_id", rec.ID).
		Str("state", string(rec.State)).
		Int("transferred", rec.Transferred).
		Int("total", rec.Total).
		Msg("migration finished")
	return nil
}
