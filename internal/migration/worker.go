package migration

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
	"github.com/smithciaran833/TicketTokenFinal/internal/ledger"
	"github.com/smithciaran833/TicketTokenFinal/internal/metrics"
	"github.com/smithciaran833/TicketTokenFinal/internal/queue"
)

// TicketStore enumerates and re-homes tickets.
type TicketStore interface {
	ListByOwner(ctx context.Context, wallet string) ([]domain.Ticket, error)
	UpdateOwner(ctx context.Context, ticketID, newOwner string) error
}

// Custodian produces the signing key for a custodial wallet address.
type Custodian interface {
	SigningKeyForAddress(ctx context.Context, address string) (ed25519.PrivateKey, error)
}

// Notifier is told when a migration reaches a terminal state.
type Notifier interface {
	MigrationFinished(ctx context.Context, rec domain.MigrationRecord) error
}

// Worker walks every ticket the source wallet holds and transfers it to the
// destination. Best-effort per ticket: one failure never aborts the rest,
// and partial success is reported as failed with the failed subset retained,
// never as completed.
type Worker struct {
	repo     Repository
	tickets  TicketStore
	chain    ledger.Client
	custody  Custodian
	notifier Notifier
	log      zerolog.Logger
}

func NewWorker(repo Repository, tickets TicketStore, chain ledger.Client, custodian Custodian, notifier Notifier, log zerolog.Logger) *Worker {
	return &Worker{
		repo:     repo,
		tickets:  tickets,
		chain:    chain,
		custody:  custodian,
		notifier: notifier,
		log:      log.With().Str("component", "migration-worker").Logger(),
	}
}

var _ queue.Handler = (*Worker)(nil)

func (w *Worker) Handle(ctx context.Context, job *queue.Job) error {
	p, err := migratePayload(job)
	if err != nil {
		return err
	}
	log := w.log.With().Str("migration_id", p.MigrationID).Logger()

	rec, err := w.repo.GetMigration(ctx, p.MigrationID)
	if err != nil {
		return fmt.Errorf("load migration: %w", err)
	}
	if rec.State.Terminal() {
		log.Info().Str("state", string(rec.State)).Msg("migration already finished")
		return nil
	}

	key, err := w.custody.SigningKeyForAddress(ctx, p.SourceWallet)
	if err != nil {
		if errors.Is(err, domain.ErrDecryption) {
			// Custody integrity failure: fatal, never auto-recovered.
			log.Error().Err(err).Msg("custody decryption failure, migration cannot proceed")
		}
		return fmt.Errorf("signing key: %w", err)
	}

	owned, err := w.tickets.ListByOwner(ctx, p.SourceWallet)
	if err != nil {
		return fmt.Errorf("enumerate tickets: %w", err)
	}

	// Re-delivery resumes where the last attempt stopped: tickets with a
	// recorded outcome are not touched again.
	done := make(map[string]domain.TicketOutcome, len(rec.Outcomes))
	for _, out := range rec.Outcomes {
		done[out.TicketID] = out
	}

	// Tickets already moved no longer list under the source wallet, so the
	// total counts the current holdings plus every recorded outcome whose
	// ticket left. Keeps processed/total within 0..100 across re-deliveries.
	ownedIDs := make(map[string]struct{}, len(owned))
	for _, ticket := range owned {
		ownedIDs[ticket.ID] = struct{}{}
	}
	total := len(owned)
	for _, out := range rec.Outcomes {
		if _, ok := ownedIDs[out.TicketID]; !ok {
			total++
		}
	}
	if err := w.repo.StartMigration(ctx, rec.ID, total); err != nil {
		return fmt.Errorf("start migration: %w", err)
	}

	processed := len(done)
	transferred := rec.Transferred
	failed := 0
	for _, out := range rec.Outcomes {
		if !out.Transferred {
			failed++
		}
	}

	for _, ticket := range owned {
		if _, ok := done[ticket.ID]; ok {
			continue
		}

		outcome := domain.TicketOutcome{TicketID: ticket.ID}
		sig, err := w.chain.TransferTicket(ctx, ledger.TransferRequest{
			TicketPDA:  ticket.ID,
			FromWallet: p.SourceWallet,
			ToWallet:   p.DestWallet,
			Signer:     key,
		})
		if err != nil {
			outcome.Error = err.Error()
			failed++
			log.Warn().Err(err).Str("ticket_id", ticket.ID).Msg("ticket transfer failed")
		} else {
			outcome.Transferred = true
			outcome.TxSignature = sig
			transferred++
			metrics.TicketsTransferred.Inc()
			if err := w.tickets.UpdateOwner(ctx, ticket.ID, p.DestWallet); err != nil {
				log.Error().Err(err).Str("ticket_id", ticket.ID).Msg("record new owner")
			}
		}

		processed++
		progress := float64(processed) / float64(total) * 100
		if err := w.repo.RecordOutcome(ctx, rec.ID, outcome, transferred, progress); err != nil {
			return fmt.Errorf("record outcome: %w", err)
		}
	}

	state := domain.MigrationStateCompleted
	if failed > 0 {
		state = domain.MigrationStateFailed
	}
	if err := w.repo.FinishMigration(ctx, rec.ID, state); err != nil {
		return fmt.Errorf("finish migration: %w", err)
	}
	metrics.MigrationsFinished.WithLabelValues(string(state)).Inc()
	log.Info().
		Str("state", string(state)).
		Int("transferred", transferred).
		Int("failed", failed).
		Int("total", total).
		Msg("migration finished")

	final, err := w.repo.GetMigration(ctx, rec.ID)
	if err == nil {
		if err := w.notifier.MigrationFinished(ctx, final); err != nil {
			log.Warn().Err(err).Msg("migration notification failed")
		}
	}
	return nil
}

// Abandon marks the record failed when the job itself exhausted its retries
// (for example the record could never be loaded, or custody kept failing).
func (w *Worker) Abandon(ctx context.Context, job *queue.Job) {
	p, err := migratePayload(job)
	if err != nil {
		w.log.Error().Err(err).Str("job_id", job.ID).Msg("abandon: decode payload")
		return
	}
	rec, err := w.repo.GetMigration(ctx, p.MigrationID)
	if err != nil {
		w.log.Error().Err(err).Str("migration_id", p.MigrationID).Msg("abandon: load migration")
		return
	}
	if rec.State.Terminal() {
		return
	}
	if err := w.repo.FinishMigration(ctx, p.MigrationID, domain.MigrationStateFailed); err != nil {
		w.log.Error().Err(err).Str("migration_id", p.MigrationID).Msg("abandon: mark failed")
		return
	}
	metrics.MigrationsFinished.WithLabelValues(string(domain.MigrationStateFailed)).Inc()
	w.log.Error().Str("migration_id", p.MigrationID).Str("cause", job.LastError).Msg("migration abandoned")
}

func migratePayload(job *queue.Job) (queue.MigratePayload, error) {
	decoded, err := queue.DecodePayload(job)
	if err != nil {
		return queue.MigratePayload{}, err
	}
	p, ok := decoded.(queue.MigratePayload)
	if !ok {
		return queue.MigratePayload{}, fmt.Errorf("job %s is not a migration job", job.ID)
	}
	return p, nil
}
