package replication

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/syntalon/longvin-trading-sub000/internal/orderstore"
)

func poolEvent(execID, orderID string) orderstore.ExecutionEvent {
	return orderstore.ExecutionEvent{
		ExecID:    execID,
		OrderID:   orderID,
		ClOrdID:   "P-" + orderID,
		ExecType:  orderstore.ExecTypeNew,
		Symbol:    "ACME",
		Side:      orderstore.SideBuy,
		OrderQty:  decimal.NewFromInt(100),
		Account:   "PRIMARY",
	}
}

func TestPool_SubmitProcessesEvents(t *testing.T) {
	h := newHarness(t)
	pool := NewPool(h.engine, zerolog.Nop(), WithWorkers(2))
	pool.Start()

	if !pool.Submit(poolEvent("E1", "O1")) {
		t.Fatal("submit should succeed")
	}
	deadline := time.Now().Add(2 * time.Second)
	for h.sender.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("mirrors not emitted, sent=%d", h.sender.count())
		}
		time.Sleep(10 * time.Millisecond)
	}
	pool.Shutdown()
}

func TestPool_FullQueueDropsWithoutBlocking(t *testing.T) {
	h := newHarness(t)
	// One-slot queue and no started workers: the second submit must drop
	// immediately instead of blocking the caller.
	pool := NewPool(h.engine, zerolog.Nop(), WithQueueSize(1))

	if !pool.Submit(poolEvent("E1", "O1")) {
		t.Fatal("first submit should fill the queue")
	}
	done := make(chan bool, 1)
	go func() { done <- pool.Submit(poolEvent("E2", "O2")) }()
	select {
	case accepted := <-done:
		if accepted {
			t.Fatal("second submit should have been dropped")
		}
	case <-time.After(time.Second):
		t.Fatal("submit blocked on a full queue")
	}
}

func TestPool_SubmitAfterShutdownReturnsFalse(t *testing.T) {
	h := newHarness(t)
	pool := NewPool(h.engine, zerolog.Nop(), WithWorkers(1))
	pool.Start()
	pool.Shutdown()

	if pool.Submit(poolEvent("E1", "O1")) {
		t.Fatal("submit after shutdown should be refused")
	}
}

func TestPool_ShutdownDrainsQueuedWork(t *testing.T) {
	h := newHarness(t)
	pool := NewPool(h.engine, zerolog.Nop(), WithWorkers(1), WithDrainWindow(2*time.Second))
	pool.Start()

	for i := 0; i < 5; i++ {
		pool.Submit(poolEvent("E"+string(rune('1'+i)), "O"+string(rune('1'+i))))
	}
	pool.Shutdown()

	// Two shadows per primary order, five orders.
	if got := h.sender.count(); got != 10 {
		t.Fatalf("sent = %d, want 10 after drain", got)
	}
}
