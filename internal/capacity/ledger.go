package capacity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smithciaran833/TicketTokenFinal/internal/clock"
	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
	"github.com/smithciaran833/TicketTokenFinal/internal/metrics"
)

const (
	defaultHoldTTL       = 15 * time.Minute
	defaultSweepInterval = 30 * time.Second
)

// TierUsage is one tier's snapshot row.
type TierUsage struct {
	Total     int
	Sold      int
	Held      int
	Available int
}

// Ledger enforces "never sell more than exists". Per (event, tier) it keeps
// one uint64 packing held (high 32 bits) and sold (low 32 bits); every
// mutation is a single CAS on that word, so held->sold commits can never
// double count and concurrent reservations can never oversell. Holds are
// bookkeeping for TTL expiry only; the counters are the authority.
type Ledger struct {
	store   CounterStore
	clock   clock.Clock
	log     zerolog.Logger
	holdTTL time.Duration
	sweep   time.Duration

	mu     sync.Mutex
	totals map[string]int
	holds  map[string]domain.CapacityHold
}

type Option func(*Ledger)

// WithHoldTTL overrides the default 15m hold TTL.
func WithHoldTTL(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.holdTTL = d
		}
	}
}

// WithSweepInterval overrides how often the background sweeper runs.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.sweep = d
		}
	}
}

func NewLedger(store CounterStore, clk clock.Clock, log zerolog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		clock:   clk,
		log:     log.With().Str("component", "capacity").Logger(),
		holdTTL: defaultHoldTTL,
		sweep:   defaultSweepInterval,
		totals:  make(map[string]int),
		holds:   make(map[string]domain.CapacityHold),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func key(eventID, tierID string) string {
	return eventID + "/" + tierID
}

func pack(held, sold uint32) uint64 {
	return uint64(held)<<32 | uint64(sold)
}

func unpack(v uint64) (held, sold uint32) {
	return uint32(v >> 32), uint32(v)
}

// Register seeds a tier's counters. sold is the committed count already
// recorded in the persistent store. Startup only.
func (l *Ledger) Register(tier domain.Tier, sold int) {
	k := key(tier.EventID, tier.ID)
	l.mu.Lock()
	l.totals[k] = tier.TotalSupply
	l.mu.Unlock()
	l.store.Seed(k, pack(0, uint32(sold)))
}

// Reserve places a TTL-bound hold on qty units. Fails synchronously with
// ErrCapacityExceeded when held+sold+qty would pass the tier's total; the
// increment is never left applied in that case.
func (l *Ledger) Reserve(eventID, tierID string, qty int) (string, error) {
	if qty <= 0 {
		return "", domain.ErrInvalidQuantity
	}
	k := key(eventID, tierID)
	l.mu.Lock()
	total, ok := l.totals[k]
	l.mu.Unlock()
	if !ok {
		return "", domain.ErrTierNotFound
	}

	for {
		cur, ok := l.store.Load(k)
		if !ok {
			return "", domain.ErrTierNotFound
		}
		held, sold := unpack(cur)
		if int(held)+int(sold)+qty > total {
			metrics.CapacityRejections.Inc()
			return "", domain.ErrCapacityExceeded
		}
		if l.store.CompareAndSwap(k, cur, pack(held+uint32(qty), sold)) {
			break
		}
	}

	now := l.clock.Now()
	hold := domain.CapacityHold{
		ID:        uuid.NewString(),
		EventID:   eventID,
		TierID:    tierID,
		Quantity:  qty,
		CreatedAt: now,
		ExpiresAt: now.Add(l.holdTTL),
	}
	l.mu.Lock()
	l.holds[hold.ID] = hold
	l.mu.Unlock()
	return hold.ID, nil
}

// Release returns qty held units to the pool.
func (l *Ledger) Release(eventID, tierID string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	k := key(eventID, tierID)
	for {
		cur, ok := l.store.Load(k)
		if !ok {
			return domain.ErrTierNotFound
		}
		held, sold := unpack(cur)
		if int(held) < qty {
			return fmt.Errorf("release %d exceeds held %d for %s", qty, held, k)
		}
		if l.store.CompareAndSwap(k, cur, pack(held-uint32(qty), sold)) {
			return nil
		}
	}
}

// Commit converts qty held units into permanent sold count. One CAS moves
// both counters so the sum never transiently shrinks or grows.
func (l *Ledger) Commit(eventID, tierID string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	k := key(eventID, tierID)
	for {
		cur, ok := l.store.Load(k)
		if !ok {
			return domain.ErrTierNotFound
		}
		held, sold := unpack(cur)
		if int(held) < qty {
			return fmt.Errorf("commit %d exceeds held %d for %s", qty, held, k)
		}
		if l.store.CompareAndSwap(k, cur, pack(held-uint32(qty), sold+uint32(qty))) {
			return nil
		}
	}
}

// CommitHold commits a hold by id and forgets it.
func (l *Ledger) CommitHold(holdID string) error {
	hold, ok := l.takeHold(holdID)
	if !ok {
		return domain.ErrHoldNotFound
	}
	return l.Commit(hold.EventID, hold.TierID, hold.Quantity)
}

// ReleaseHold releases a hold by id and forgets it.
func (l *Ledger) ReleaseHold(holdID string) error {
	hold, ok := l.takeHold(holdID)
	if !ok {
		return domain.ErrHoldNotFound
	}
	return l.Release(hold.EventID, hold.TierID, hold.Quantity)
}

// AdoptHold detaches a hold from TTL expiry and hands its accounting to the
// caller. The held units stay reserved; the issuance pipeline commits or
// releases them chunk by chunk.
func (l *Ledger) AdoptHold(holdID string) (domain.CapacityHold, error) {
	hold, ok := l.takeHold(holdID)
	if !ok {
		return domain.CapacityHold{}, domain.ErrHoldNotFound
	}
	return hold, nil
}

func (l *Ledger) takeHold(holdID string) (domain.CapacityHold, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	hold, ok := l.holds[holdID]
	if ok {
		delete(l.holds, holdID)
	}
	return hold, ok
}

// Snapshot reports per-tier usage for an event. Expired holds are swept
// first so the numbers reflect reality even between sweeper runs.
func (l *Ledger) Snapshot(eventID string) map[string]TierUsage {
	l.ExpireHolds(l.clock.Now())

	out := make(map[string]TierUsage)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, total := range l.totals {
		prefix := eventID + "/"
		if len(k) <= len(prefix) || k[:len(prefix)] != prefix {
			continue
		}
		cur, ok := l.store.Load(k)
		if !ok {
			continue
		}
		held, sold := unpack(cur)
		out[k[len(prefix):]] = TierUsage{
			Total:     total,
			Sold:      int(sold),
			Held:      int(held),
			Available: total - int(held) - int(sold),
		}
	}
	return out
}

// ExpireHolds releases every hold whose TTL elapsed before now. Expiry is
// invisible to the buyer; it simply frees inventory.
func (l *Ledger) ExpireHolds(now time.Time) int {
	l.mu.Lock()
	var expired []domain.CapacityHold
	for id, hold := range l.holds {
		if !hold.ExpiresAt.After(now) {
			expired = append(expired, hold)
			delete(l.holds, id)
		}
	}
	l.mu.Unlock()

	for _, hold := range expired {
		if err := l.Release(hold.EventID, hold.TierID, hold.Quantity); err != nil {
			l.log.Error().Err(err).Str("hold_id", hold.ID).Msg("release expired hold")
		} else {
			l.log.Debug().Str("hold_id", hold.ID).Int("quantity", hold.Quantity).Msg("hold expired")
		}
	}
	return len(expired)
}

// Run drives the background sweeper until ctx is cancelled.
func (l *Ledger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.ExpireHolds(l.clock.Now())
		}
	}
}
