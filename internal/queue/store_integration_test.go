package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smithciaran833/TicketTokenFinal/internal/clock"
	"github.com/smithciaran833/TicketTokenFinal/internal/domain"
	"github.com/smithciaran833/TicketTokenFinal/internal/queue"
	"github.com/smithciaran833/TicketTokenFinal/internal/testutil"
)

// Integration tests against a real Postgres. They skip when the test
// database is unreachable.

func setupStore(t *testing.T) (*queue.Store, *clock.Manual) {
	t.Helper()
	ctx := context.Background()
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	clk := clock.NewManual(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	return queue.NewStore(pool, clk), clk
}

func TestStoreClaimLifecycle(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	job, err := store.Enqueue(ctx, queue.KindBatchMint, "batch-1", queue.MintPayload{
		EventID: "event-1", TierID: "ga", DestinationWallet: "w", Quantity: 3, TotalChunks: 1,
	}, 3)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	claimed, err := store.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("claimed %+v, want job %s", claimed, job.ID)
	}
	if claimed.State != queue.StateRunning || claimed.Attempts != 1 {
		t.Errorf("claimed state = %s attempts = %d, want running/1", claimed.State, claimed.Attempts)
	}

	// The job is owned; nothing else is runnable.
	second, err := store.Claim(ctx)
	if err != nil {
		t.Fatalf("second Claim: %v", err)
	}
	if second != nil {
		t.Errorf("second claim returned %s, want nothing", second.ID)
	}

	if err := store.Complete(ctx, claimed.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err := store.Get(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != queue.StateCompleted {
		t.Errorf("state = %s, want completed", got.State)
	}
}

func TestStoreFailRequeuesWithBackoff(t *testing.T) {
	store, clk := setupStore(t)
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, queue.KindSingleMint, "", queue.MintPayload{Quantity: 1}, 3); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job, err := store.Claim(ctx)
	if err != nil || job == nil {
		t.Fatalf("Claim: job=%v err=%v", job, err)
	}

	terminal, err := store.Fail(ctx, job, errors.New("rpc unavailable"))
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if terminal {
		t.Fatal("first failure should requeue, not go terminal")
	}

	// Not runnable until the backoff elapses.
	if j, err := store.Claim(ctx); err != nil || j != nil {
		t.Fatalf("claim during backoff: job=%v err=%v", j, err)
	}
	clk.Advance(queue.Backoff(1) + time.Second)
	j, err := store.Claim(ctx)
	if err != nil || j == nil {
		t.Fatalf("claim after backoff: job=%v err=%v", j, err)
	}
	if j.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", j.Attempts)
	}

	// Exhaust the remaining attempts.
	for attempt := 2; ; attempt++ {
		terminal, err := store.Fail(ctx, j, errors.New("rpc unavailable"))
		if err != nil {
			t.Fatalf("Fail attempt %d: %v", attempt, err)
		}
		if terminal {
			if attempt != 3 {
				t.Errorf("went terminal on attempt %d, want 3", attempt)
			}
			break
		}
		clk.Advance(queue.Backoff(attempt) + time.Second)
		if j, err = store.Claim(ctx); err != nil || j == nil {
			t.Fatalf("reclaim attempt %d: job=%v err=%v", attempt+1, j, err)
		}
	}

	got, err := store.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != queue.StateFailed || got.LastError == "" {
		t.Errorf("state = %s lastError = %q, want failed with cause", got.State, got.LastError)
	}
}

func TestStoreCancellation(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	t.Run("queued job cancels outright", func(t *testing.T) {
		job, err := store.Enqueue(ctx, queue.KindSingleMint, "", queue.MintPayload{Quantity: 1}, 3)
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		removed, err := store.Cancel(ctx, job.ID)
		if err != nil || !removed {
			t.Fatalf("Cancel: removed=%v err=%v", removed, err)
		}
		if j, err := store.Claim(ctx); err != nil || j != nil {
			t.Fatalf("cancelled job claimed: job=%v err=%v", j, err)
		}
	})

	t.Run("running job only honors a cancel request", func(t *testing.T) {
		if _, err := store.Enqueue(ctx, queue.KindSingleMint, "", queue.MintPayload{Quantity: 1}, 3); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		job, err := store.Claim(ctx)
		if err != nil || job == nil {
			t.Fatalf("Claim: job=%v err=%v", job, err)
		}

		removed, err := store.Cancel(ctx, job.ID)
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if removed {
			t.Fatal("running job must not cancel outright")
		}

		if err := store.RequestCancel(ctx, job.ID); err != nil {
			t.Fatalf("RequestCancel: %v", err)
		}
		terminal, err := store.Fail(ctx, job, errors.New("handler stopped"))
		if err != nil {
			t.Fatalf("Fail: %v", err)
		}
		if !terminal {
			t.Fatal("failure after cancel request should be terminal")
		}
		got, err := store.Get(ctx, job.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.State != queue.StateCancelled {
			t.Errorf("state = %s, want cancelled", got.State)
		}
	})
}

func TestStoreListBatch(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Enqueue(ctx, queue.KindBatchMint, "batch-7", queue.MintPayload{
			Quantity: 10, ChunkIndex: i, TotalChunks: 3,
		}, 3); err != nil {
			t.Fatalf("Enqueue chunk %d: %v", i, err)
		}
	}
	if _, err := store.Enqueue(ctx, queue.KindBatchMint, "other", queue.MintPayload{Quantity: 1}, 3); err != nil {
		t.Fatalf("Enqueue other: %v", err)
	}

	jobs, err := store.ListBatch(ctx, "batch-7")
	if err != nil {
		t.Fatalf("ListBatch: %v", err)
	}
	if len(jobs) != 3 {
		t.Errorf("listed %d jobs, want 3", len(jobs))
	}
}

func TestStoreGetUnknownJob(t *testing.T) {
	store, _ := setupStore(t)
	if _, err := store.Get(context.Background(), "no-such-job"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}
