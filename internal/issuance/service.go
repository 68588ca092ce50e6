package issuance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
	"github.com/smithciaran833/TicketTokenFinal/internal/queue"
)

const defaultChunkSize = 10

// Queue is the slice of the durable work queue the pipeline uses.
type Queue interface {
	Enqueue(ctx context.Context, kind queue.Kind, batchID string, payload any, maxAttempts int) (queue.Job, error)
	Get(ctx context.Context, jobID string) (queue.Job, error)
	ListBatch(ctx context.Context, batchID string) ([]queue.Job, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
	RequestCancel(ctx context.Context, jobID string) error
}

// HoldAdopter detaches a capacity hold from TTL expiry once payment is
// confirmed and the pipeline takes over its accounting. Once adopted, held
// units can only leave through Commit or Release; the pipeline must release
// whatever it will never mint.
type HoldAdopter interface {
	AdoptHold(holdID string) (domain.CapacityHold, error)
	Release(eventID, tierID string, qty int) error
}

// TicketReader looks up minted tickets for status reporting.
type TicketReader interface {
	ListByJobID(ctx context.Context, jobID string) ([]domain.Ticket, error)
}

// Service converts confirmed purchases into queued mint work and answers
// status polls. Requests above the chunk size split into sibling jobs
// sharing a batch id so no single unit exceeds the external ledger's
// transaction size limit.
type Service struct {
	queue       Queue
	capacity    HoldAdopter
	tickets     TicketReader
	chunkSize   int
	maxAttempts int
	log         zerolog.Logger
}

type ServiceOption func(*Service)

// WithChunkSize overrides the default chunk size of 10.
func WithChunkSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithMaxAttempts overrides the per-job retry ceiling.
func WithMaxAttempts(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewService(q Queue, capacity HoldAdopter, tickets TicketReader, log zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		queue:       q,
		capacity:    capacity,
		tickets:     tickets,
		chunkSize:   defaultChunkSize,
		maxAttempts: queue.DefaultMaxAttempts,
		log:         log.With().Str("component", "issuance").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type EnqueueInput struct {
	EventID           string
	TierID            string
	DestinationWallet string
	Quantity          int
	HoldID            string
}

type EnqueueResult struct {
	BatchID string
	JobIDs  []string
}

// Enqueue splits the confirmed purchase into chunked sibling jobs. The
// capacity hold is adopted first so it can no longer expire out from under
// the mint work.
func (s *Service) Enqueue(ctx context.Context, in EnqueueInput) (EnqueueResult, error) {
	if in.Quantity <= 0 {
		return EnqueueResult{}, domain.ErrInvalidQuantity
	}
	if in.DestinationWallet == "" {
		return EnqueueResult{}, fmt.Errorf("destination wallet required")
	}
	if in.HoldID != "" {
		if _, err := s.capacity.AdoptHold(in.HoldID); err != nil {
			return EnqueueResult{}, fmt.Errorf("adopt hold: %w", err)
		}
	}

	batchID := uuid.NewString()
	chunks := (in.Quantity + s.chunkSize - 1) / s.chunkSize
	jobIDs := make([]string, 0, chunks)

	for i := 0; i < chunks; i++ {
		qty := s.chunkSize
		if i == chunks-1 {
			qty = in.Quantity - i*s.chunkSize
		}
		kind := queue.KindBatchMint
		if qty == 1 {
			kind = queue.KindSingleMint
		}
		payload := queue.MintPayload{
			EventID:           in.EventID,
			TierID:            in.TierID,
			DestinationWallet: in.DestinationWallet,
			Quantity:          qty,
			HoldID:            in.HoldID,
			ChunkIndex:        i,
			TotalChunks:       chunks,
		}
		job, err := s.queue.Enqueue(ctx, kind, batchID, payload, s.maxAttempts)
		if err != nil {
			s.abortEnqueue(ctx, in, jobIDs)
			return EnqueueResult{}, fmt.Errorf("enqueue chunk %d: %w", i, err)
		}
		jobIDs = append(jobIDs, job.ID)
	}

	s.log.Info().
		Str("batch_id", batchID).
		Str("event_id", in.EventID).
		Str("tier_id", in.TierID).
		Int("quantity", in.Quantity).
		Int("chunks", chunks).
		Msg("issuance enqueued")
	return EnqueueResult{BatchID: batchID, JobIDs: jobIDs}, nil
}

// abortEnqueue unwinds a partially enqueued batch: the queued siblings are
// cancelled and the adopted hold's full quantity is released, since no job
// from this batch will ever commit it.
func (s *Service) abortEnqueue(ctx context.Context, in EnqueueInput, jobIDs []string) {
	for _, id := range jobIDs {
		if _, err := s.queue.Cancel(ctx, id); err != nil {
			s.log.Error().Err(err).Str("job_id", id).Msg("cancel sibling after enqueue failure")
		}
	}
	if in.HoldID == "" {
		return
	}
	if err := s.capacity.Release(in.EventID, in.TierID, in.Quantity); err != nil {
		s.log.Error().Err(err).Str("hold_id", in.HoldID).Msg("release capacity after enqueue failure")
	}
}

// JobStatus is the poll answer for one job.
type JobStatus struct {
	JobID     string
	State     domain.JobState
	Attempts  int
	Progress  float64 // 0..100
	TicketIDs []string
	Error     string
}

// Status reports a single job's state and minted tickets so far.
func (s *Service) Status(ctx context.Context, jobID string) (JobStatus, error) {
	job, err := s.queue.Get(ctx, jobID)
	if err != nil {
		return JobStatus{}, err
	}
	tickets, err := s.ticketIDs(ctx, job.ID)
	if err != nil {
		return JobStatus{}, err
	}
	return statusOf(job, tickets), nil
}

// BatchStatus aggregates sibling jobs: completed only when every sibling
// completed, failed as soon as any sibling went terminal without finishing.
func (s *Service) BatchStatus(ctx context.Context, batchID string) (domain.BatchStatus, error) {
	jobs, err := s.queue.ListBatch(ctx, batchID)
	if err != nil {
		return domain.BatchStatus{}, err
	}
	if len(jobs) == 0 {
		return domain.BatchStatus{}, domain.ErrBatchNotFound
	}

	out := domain.BatchStatus{BatchID: batchID, Total: len(jobs), State: domain.JobStateRunning}
	allQueued := true
	for _, job := range jobs {
		tickets, err := s.ticketIDs(ctx, job.ID)
		if err != nil {
			return domain.BatchStatus{}, err
		}
		st := statusOf(job, tickets)
		out.TicketIDs = append(out.TicketIDs, st.TicketIDs...)
		switch st.State {
		case domain.JobStateCompleted:
			out.Completed++
		case domain.JobStateFailed:
			out.Failed++
			out.Failures = append(out.Failures, fmt.Sprintf("job %s: %s", job.ID, st.Error))
		}
		if st.State != domain.JobStateQueued {
			allQueued = false
		}
	}

	switch {
	case out.Failed > 0:
		out.State = domain.JobStateFailed
	case out.Completed == out.Total:
		out.State = domain.JobStateCompleted
	case allQueued:
		out.State = domain.JobStateQueued
	}
	return out, nil
}

// Cancel removes a queued job outright, releasing the chunk's held capacity
// since the runner will never hand the job to a handler. For a running job
// it only flags cancellation; the handler's Abandon releases capacity when
// the job goes terminal.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	job, err := s.queue.Get(ctx, jobID)
	if err != nil {
		return err
	}
	removed, err := s.queue.Cancel(ctx, jobID)
	if err != nil {
		return err
	}
	if !removed {
		return s.queue.RequestCancel(ctx, jobID)
	}

	var p queue.MintPayload
	if err := decodeMint(job, &p); err == nil && p.HoldID != "" {
		if err := s.capacity.Release(p.EventID, p.TierID, p.Quantity); err != nil {
			s.log.Error().Err(err).Str("job_id", jobID).Msg("release capacity after cancel")
		}
	}
	return nil
}

func (s *Service) ticketIDs(ctx context.Context, jobID string) ([]string, error) {
	if s.tickets == nil {
		return nil, nil
	}
	minted, err := s.tickets.ListByJobID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	ids := make([]string, 0, len(minted))
	for _, t := range minted {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func statusOf(job queue.Job, ticketIDs []string) JobStatus {
	st := JobStatus{
		JobID:     job.ID,
		Attempts:  job.Attempts,
		TicketIDs: ticketIDs,
		Error:     job.LastError,
	}
	switch job.State {
	case queue.StateQueued:
		st.State = domain.JobStateQueued
	case queue.StateRunning:
		st.State = domain.JobStateRunning
	case queue.StateCompleted:
		st.State = domain.JobStateCompleted
	case queue.StateFailed, queue.StateCancelled:
		st.State = domain.JobStateFailed
	}

	var p queue.MintPayload
	if err := decodeMint(job, &p); err == nil && p.Quantity > 0 {
		st.Progress = float64(len(ticketIDs)) / float64(p.Quantity) * 100
	}
	if st.State == domain.JobStateCompleted {
		st.Progress = 100
	}
	return st
}

func decodeMint(job queue.Job, p *queue.MintPayload) error {
	decoded, err := queue.DecodePayload(&job)
	if err != nil {
		return err
	}
	mp, ok := decoded.(queue.MintPayload)
	if !ok {
		return fmt.Errorf("job %s is not a mint job", job.ID)
	}
	*p = mp
	return nil
}
