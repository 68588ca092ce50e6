package issuance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/smithciaran833/TicketTokenFinal/internal/clock"
	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
	"github.com/smithciaran833/TicketTokenFinal/internal/ledger"
	"github.com/smithciaran833/TicketTokenFinal/internal/metrics"
	"github.com/smithciaran833/TicketTokenFinal/internal/proof"
	"github.com/smithciaran833/TicketTokenFinal/internal/queue"
)

// TicketWriter persists minted tickets.
type TicketWriter interface {
	TicketReader
	CreateTicket(ctx context.Context, t domain.Ticket) error
}

// EventReader fetches the event date that goes into each proof.
type EventReader interface {
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
}

// CapacityCommitter moves adopted hold quantity between held and sold.
type CapacityCommitter interface {
	Commit(eventID, tierID string, qty int) error
	Release(eventID, tierID string, qty int) error
}

// Notifier is told when a job reaches a terminal state. Failures here never
// affect the job's own state.
type Notifier interface {
	TicketsIssued(ctx context.Context, wallet string, ticketIDs []string) error
	IssuanceFailed(ctx context.Context, wallet string, reason string) error
}

// Worker processes mint jobs. Safe to re-invoke for the same job id after a
// crash: tickets already persisted for the job are counted before anything
// new is minted, so at-least-once delivery never double-mints.
type Worker struct {
	tickets  TicketWriter
	events   EventReader
	chain    ledger.Client
	capacity CapacityCommitter
	codec    *proof.Codec
	notifier Notifier
	clock    clock.Clock
	log      zerolog.Logger
}

func NewWorker(
	tickets TicketWriter,
	events EventReader,
	chain ledger.Client,
	capacity CapacityCommitter,
	codec *proof.Codec,
	notifier Notifier,
	clk clock.Clock,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		tickets:  tickets,
		events:   events,
		chain:    chain,
		capacity: capacity,
		codec:    codec,
		notifier: notifier,
		clock:    clk,
		log:      log.With().Str("component", "issuance-worker").Logger(),
	}
}

var _ queue.Handler = (*Worker)(nil)

// Handle mints the job's remaining quantity in request order. Each mint is
// retried briefly for transient chain faults; a persistent fault surfaces to
// the queue, which applies the job-level backoff and attempt ceiling.
func (w *Worker) Handle(ctx context.Context, job *queue.Job) error {
	p, err := mintPayload(job)
	if err != nil {
		return err
	}
	log := w.log.With().Str("job_id", job.ID).Str("event_id", p.EventID).Logger()

	existing, err := w.tickets.ListByJobID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if len(existing) >= p.Quantity {
		log.Info().Int("quantity", p.Quantity).Msg("job already minted, skipping")
		return nil
	}

	event, err := w.events.GetEvent(ctx, p.EventID)
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}

	minted := make([]string, 0, p.Quantity)
	for _, t := range existing {
		minted = append(minted, t.ID)
	}

	for i := len(existing); i < p.Quantity; i++ {
		var result ledger.MintResult
		backoff := retry.WithMaxRetries(2, retry.NewExponential(500*time.Millisecond))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			var mintErr error
			result, mintErr = w.chain.MintTicket(ctx, ledger.MintRequest{
				EventID:     p.EventID,
				TierID:      p.TierID,
				OwnerWallet: p.DestinationWallet,
			})
			if mintErr != nil {
				return retry.RetryableError(mintErr)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("mint ticket %d/%d: %w", i+1, p.Quantity, err)
		}

		ticket := domain.Ticket{
			ID:          result.TicketPDA,
			EventID:     p.EventID,
			TierID:      p.TierID,
			OwnerWallet: p.DestinationWallet,
			JobID:       job.ID,
			IssuedAt:    w.clock.Now(),
		}
		ticket.VerificationCode = w.codec.VerificationCode(ticket.ID, ticket.OwnerWallet, event.StartsAt)

		if err := w.tickets.CreateTicket(ctx, ticket); err != nil {
			return fmt.Errorf("persist ticket: %w", err)
		}
		// Counters reseed from the store at startup, so a crash between
		// insert and commit heals on restart.
		if err := w.capacity.Commit(p.EventID, p.TierID, 1); err != nil {
			log.Error().Err(err).Str("ticket_id", ticket.ID).Msg("commit capacity")
		}
		metrics.TicketsMinted.Inc()
		minted = append(minted, ticket.ID)
	}

	log.Info().Int("quantity", p.Quantity).Int("chunk", p.ChunkIndex).Msg("chunk minted")
	if err := w.notifier.TicketsIssued(ctx, p.DestinationWallet, minted); err != nil {
		log.Warn().Err(err).Msg("issuance notification failed")
	}
	return nil
}

// Abandon runs when the job exhausts its retries: the unminted remainder of
// the chunk's capacity is released so inventory is not lost to a failed
// purchase.
func (w *Worker) Abandon(ctx context.Context, job *queue.Job) {
	p, err := mintPayload(job)
	if err != nil {
		w.log.Error().Err(err).Str("job_id", job.ID).Msg("abandon: decode payload")
		return
	}
	log := w.log.With().Str("job_id", job.ID).Str("event_id", p.EventID).Logger()

	existing, err := w.tickets.ListByJobID(ctx, job.ID)
	if err != nil {
		log.Error().Err(err).Msg("abandon: count minted tickets")
		return
	}
	remaining := p.Quantity - len(existing)
	if remaining > 0 {
		if err := w.capacity.Release(p.EventID, p.TierID, remaining); err != nil {
			log.Error().Err(err).Int("remaining", remaining).Msg("abandon: release capacity")
		}
	}
	metrics.IssuanceFailures.Inc()
	log.Error().Int("minted", len(existing)).Int("released", remaining).Msg("issuance job abandoned")

	if err := w.notifier.IssuanceFailed(ctx, p.DestinationWallet, job.LastError); err != nil {
		log.Warn().Err(err).Msg("failure notification failed")
	}
}

func mintPayload(job *queue.Job) (queue.MintPayload, error) {
	decoded, err := queue.DecodePayload(job)
	if err != nil {
		return queue.MintPayload{}, err
	}
	p, ok := decoded.(queue.MintPayload)
	if !ok {
		return queue.MintPayload{}, fmt.Errorf("job %s is not a mint job", job.ID)
	}
	return p, nil
}
