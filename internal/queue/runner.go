package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smithciaran833/TicketTokenFinal/internal/metrics"
)

// Handler processes jobs of one kind. Handle must be idempotent: the queue
// is at-least-once and a crash after Handle but before Complete re-delivers
// the same job id. Abandon runs once when retries are exhausted so the
// handler can release resources the job was holding.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
	Abandon(ctx context.Context, job *Job)
}

const defaultPollInterval = 500 * time.Millisecond

// Runner drives a fixed pool of workers over the store. Each worker claims
// one job at a time; per-job exclusivity comes from the claim itself.
type Runner struct {
	store    *Store
	handlers map[Kind]Handler
	workers  int
	poll     time.Duration
	log      zerolog.Logger
}

type RunnerOption func(*Runner)

func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.poll = d
		}
	}
}

func NewRunner(store *Store, workers int, log zerolog.Logger, opts ...RunnerOption) *Runner {
	if workers < 1 {
		workers = 1
	}
	r := &Runner{
		store:    store,
		handlers: make(map[Kind]Handler),
		workers:  workers,
		poll:     defaultPollInterval,
		log:      log.With().Str("component", "queue").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds a handler to a job kind. Not safe to call after Run.
func (r *Runner) Register(kind Kind, h Handler) {
	r.handlers[kind] = h
}

// Run blocks until ctx is cancelled, then waits for in-flight jobs. A
// running job is never interrupted mid-unit.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r.workLoop(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (r *Runner) workLoop(ctx context.Context, worker int) {
	log := r.log.With().Int("worker", worker).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := r.store.Claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("claim failed")
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.poll):
			}
			continue
		}

		r.process(ctx, log, job)
	}
}

func (r *Runner) process(ctx context.Context, log zerolog.Logger, job *Job) {
	log = log.With().Str("job_id", job.ID).Str("kind", string(job.Kind)).Int("attempt", job.Attempts).Logger()

	handler, ok := r.handlers[job.Kind]
	if !ok {
		// No handler will ever exist for this kind; burn the remaining
		// attempts so the job goes terminal immediately.
		job.Attempts = job.MaxAttempts
		if _, err := r.store.Fail(ctx, job, errUnknownKind(job.Kind)); err != nil {
			log.Error().Err(err).Msg("fail unknown-kind job")
		}
		metrics.QueueJobs.WithLabelValues(string(job.Kind), "unknown_kind").Inc()
		log.Error().Msg("no handler registered for job kind")
		return
	}

	if err := handler.Handle(ctx, job); err != nil {
		terminal, failErr := r.store.Fail(ctx, job, err)
		if failErr != nil {
			log.Error().Err(failErr).Msg("record job failure")
			return
		}
		if terminal {
			handler.Abandon(ctx, job)
			metrics.QueueJobs.WithLabelValues(string(job.Kind), "failed").Inc()
			log.Error().Err(err).Msg("job failed permanently")
		} else {
			metrics.QueueJobs.WithLabelValues(string(job.Kind), "retried").Inc()
			log.Warn().Err(err).Time("run_at", job.RunAt).Msg("job requeued")
		}
		return
	}

	if err := r.store.Complete(ctx, job.ID); err != nil {
		log.Error().Err(err).Msg("mark job completed")
		return
	}
	metrics.QueueJobs.WithLabelValues(string(job.Kind), "completed").Inc()
	log.Info().Msg("job completed")
}

type errUnknownKind Kind

func (e errUnknownKind) Error() string {
	return "unknown job kind " + string(e)
}
