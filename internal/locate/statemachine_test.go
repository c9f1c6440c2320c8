package locate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/quickfixgo/quickfix"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/syntalon/longvin-trading-sub000/internal/clordid"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*quickfix.Message
}

func (f *fakeSender) SendToTarget(msg *quickfix.Message, _ quickfix.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) last() *quickfix.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type fakeRepo struct {
	mu    sync.Mutex
	saved []Request
}

func (f *fakeRepo) SaveRequest(r *Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, *r)
	return nil
}

func testSessionID() quickfix.SessionID {
	return quickfix.SessionID{BeginString: "FIX.4.2", SenderCompID: "US", TargetCompID: "THEM"}
}

func TestStateMachine_ApprovedFull(t *testing.T) {
	coord := New(zerolog.Nop())
	sender := &fakeSender{}
	repo := &fakeRepo{}
	sm := NewStateMachine(coord, clordid.NewGenerator(""), zerolog.Nop(), WithSender(sender), WithRepository(repo), WithTimeout(time.Second))

	sid := testSessionID()
	pending, err := sm.RequestLocate(sid, "O4", "PRIMARY", "ACME", decimal.NewFromInt(200), "ROUTE1")
	if err != nil {
		t.Fatalf("RequestLocate: %v", err)
	}
	if sender.last() == nil {
		t.Fatal("expected quote request to be sent")
	}

	quoteReqID := repo.saved[0].QuoteReqID
	if err := sm.ProcessQuoteResponse(sid, quoteReqID, decimal.NewFromFloat(0.01), decimal.NewFromInt(200), ""); err != nil {
		t.Fatalf("ProcessQuoteResponse: %v", err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected locate accept to be sent, got %d messages", len(sender.sent))
	}

	if err := sm.ProcessLocateConfirmation(quoteReqID); err != nil {
		t.Fatalf("ProcessLocateConfirmation: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	outcome, err := pending.Await(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Approved || !outcome.ApprovedQty.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	final := repo.saved[len(repo.saved)-1]
	if final.Status != StatusApprovedFull {
		t.Errorf("expected ApprovedFull, got %s", final.Status)
	}
}

func TestStateMachine_ApprovedPartial(t *testing.T) {
	coord := New(zerolog.Nop())
	sender := &fakeSender{}
	repo := &fakeRepo{}
	sm := NewStateMachine(coord, clordid.NewGenerator(""), zerolog.Nop(), WithSender(sender), WithRepository(repo))

	sid := testSessionID()
	sm.RequestLocate(sid, "O5", "PRIMARY", "ACME", decimal.NewFromInt(200), "")
	quoteReqID := repo.saved[0].QuoteReqID

	sm.ProcessQuoteResponse(sid, quoteReqID, decimal.NewFromFloat(0.01), decimal.NewFromInt(120), "")

	final := repo.saved[len(repo.saved)-1]
	if final.Status != StatusApprovedPartial {
		t.Errorf("expected ApprovedPartial, got %s", final.Status)
	}
	if !final.ApprovedQty.Equal(decimal.NewFromInt(120)) {
		t.Errorf("expected approvedQty 120, got %v", final.ApprovedQty)
	}
}

func TestStateMachine_Rejected_ZeroOfferSize(t *testing.T) {
	coord := New(zerolog.Nop())
	sender := &fakeSender{}
	repo := &fakeRepo{}
	sm := NewStateMachine(coord, clordid.NewGenerator(""), zerolog.Nop(), WithSender(sender), WithRepository(repo))

	sid := testSessionID()
	pending, _ := sm.RequestLocate(sid, "O6", "PRIMARY", "ACME", decimal.NewFromInt(200), "")
	quoteReqID := repo.saved[0].QuoteReqID

	sm.ProcessQuoteResponse(sid, quoteReqID, decimal.Zero, decimal.Zero, "no borrow available")

	outcome, err := pending.Await(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Approved {
		t.Error("expected Approved=false on rejection")
	}
	if len(sender.sent) != 1 {
		t.Errorf("expected no locate accept to be sent on rejection, got %d messages", len(sender.sent))
	}
}

func TestStateMachine_SweepExpired(t *testing.T) {
	coord := New(zerolog.Nop())
	sender := &fakeSender{}
	repo := &fakeRepo{}
	sm := NewStateMachine(coord, clordid.NewGenerator(""), zerolog.Nop(), WithSender(sender), WithRepository(repo), WithTimeout(time.Minute))

	sid := testSessionID()
	sm.RequestLocate(sid, "O7", "PRIMARY", "ACME", decimal.NewFromInt(200), "")

	// force the request to look old enough to expire
	sm.mu.Lock()
	for _, r := range sm.byQuoteReqID {
		r.CreatedAt = time.Now().Add(-2 * time.Minute)
	}
	sm.mu.Unlock()

	n := sm.SweepExpired(time.Now())
	if n != 1 {
		t.Fatalf("expected 1 expired request, got %d", n)
	}
	final := repo.saved[len(repo.saved)-1]
	if final.Status != StatusExpired {
		t.Errorf("expected Expired, got %s", final.Status)
	}
}
