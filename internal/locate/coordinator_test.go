package locate

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestCoordinator_RegisterIsIdempotent(t *testing.T) {
	c := New(zerolog.Nop())
	p1, fresh1 := c.Register("O1", "ACME", decimal.NewFromInt(100), time.Second)
	p2, fresh2 := c.Register("O1", "ACME", decimal.NewFromInt(100), time.Second)

	if !fresh1 {
		t.Error("expected first registration to report newlyRegistered")
	}
	if fresh2 {
		t.Error("expected second registration to report not-newly-registered")
	}
	if p1 != p2 {
		t.Error("expected the same PendingLocate instance back")
	}
}

func TestCoordinator_CompleteSuccess(t *testing.T) {
	c := New(zerolog.Nop())
	pending, _ := c.Register("O1", "ACME", decimal.NewFromInt(100), time.Second)

	go c.CompleteSuccess("O1", decimal.NewFromInt(100), "LOC1", "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	outcome, err := pending.Await(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Approved || !outcome.ApprovedQty.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestCoordinator_CompleteFailure(t *testing.T) {
	c := New(zerolog.Nop())
	pending, _ := c.Register("O1", "ACME", decimal.NewFromInt(100), time.Second)
	c.CompleteFailure("O1", "rejected")

	outcome, err := pending.Await(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Approved {
		t.Error("expected Approved=false")
	}
	if outcome.Message != "rejected" {
		t.Errorf("expected message 'rejected', got %q", outcome.Message)
	}
}

func TestCoordinator_TimeoutFires(t *testing.T) {
	c := New(zerolog.Nop())
	pending, _ := c.Register("O1", "ACME", decimal.NewFromInt(100), 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := pending.Await(ctx)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if c.Len() != 0 {
		t.Error("expected entry removed from the coordinator after timeout")
	}
}

func TestCoordinator_CompleteAfterTimeoutIsNoop(t *testing.T) {
	c := New(zerolog.Nop())
	c.Register("O1", "ACME", decimal.NewFromInt(100), 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	// Should not panic nor resurrect the entry.
	c.CompleteSuccess("O1", decimal.NewFromInt(100), "LOC1", "")
	if c.Len() != 0 {
		t.Error("expected no entry after late completion attempt")
	}
}

func TestCoordinator_ShutdownAll(t *testing.T) {
	c := New(zerolog.Nop())
	p1, _ := c.Register("O1", "ACME", decimal.NewFromInt(100), time.Minute)
	p2, _ := c.Register("O2", "ACME", decimal.NewFromInt(100), time.Minute)

	c.ShutdownAll()

	for _, p := range []*PendingLocate{p1, p2} {
		_, err := p.Await(context.Background())
		if err != ErrShuttingDown {
			t.Errorf("expected ErrShuttingDown, got %v", err)
		}
	}
}
