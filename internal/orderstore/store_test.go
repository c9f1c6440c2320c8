package orderstore

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func newEvent(execID, orderID, clOrdID string, execType ExecType, qty int64) ExecutionEvent {
	return ExecutionEvent{
		ExecID:    execID,
		OrderID:   orderID,
		ClOrdID:   clOrdID,
		ExecType:  execType,
		OrdStatus: "0",
		Symbol:    "ACME",
		Side:      SideBuy,
		OrdType:   "2",
		OrderQty:  decimal.NewFromInt(qty),
		Account:   "PRIM01",
	}
}

func TestRecordEvent_Idempotent(t *testing.T) {
	s := New(zerolog.Nop())
	ev := newEvent("E1", "O1", "P-1", ExecTypeNew, 100)

	first, err := s.RecordEvent(ev, true, nil)
	if err != nil {
		t.Fatalf("first RecordEvent: %v", err)
	}
	second, err := s.RecordEvent(ev, true, nil)
	if err != nil {
		t.Fatalf("duplicate RecordEvent: %v", err)
	}

	if first.Version != 1 {
		t.Errorf("version = %d, want 1", first.Version)
	}
	if second.Version != 1 {
		t.Errorf("duplicate delivery bumped version to %d", second.Version)
	}
	if got, _ := s.FindByOrderID("O1"); got.Version != 1 {
		t.Errorf("stored version = %d, want 1", got.Version)
	}
}

func TestRecordEvent_DerivesCurrentState(t *testing.T) {
	s := New(zerolog.Nop())
	if _, err := s.RecordEvent(newEvent("E1", "O1", "P-1", ExecTypeNew, 100), true, nil); err != nil {
		t.Fatal(err)
	}

	replace := newEvent("E2", "O1", "P-1", ExecTypeReplaced, 150)
	replace.Price = decimal.RequireFromString("10.25")
	replace.CumQty = decimal.NewFromInt(40)
	replace.LeavesQty = decimal.NewFromInt(110)
	if _, err := s.RecordEvent(replace, true, nil); err != nil {
		t.Fatal(err)
	}

	order, ok := s.FindByOrderID("O1")
	if !ok {
		t.Fatal("order not found")
	}
	if order.ExecType != ExecTypeReplaced {
		t.Errorf("ExecType = %v, want Replaced", order.ExecType)
	}
	if !order.OrderQty.Equal(decimal.NewFromInt(150)) {
		t.Errorf("OrderQty = %v, want 150", order.OrderQty)
	}
	if !order.CumQty.Equal(decimal.NewFromInt(40)) || !order.LeavesQty.Equal(decimal.NewFromInt(110)) {
		t.Errorf("qty fields not taken from the latest event: %+v", order)
	}
	if order.Version != 2 {
		t.Errorf("version = %d, want 2", order.Version)
	}
}

func TestRecordEvent_PrimaryJoinsGroup(t *testing.T) {
	s := New(zerolog.Nop())
	order, err := s.RecordEvent(newEvent("E1", "O1", "P-1", ExecTypeNew, 100), true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if order.OrderGroupID != "PRIMARY_PRIM01" {
		t.Errorf("OrderGroupID = %q, want PRIMARY_PRIM01", order.OrderGroupID)
	}
}

func TestRecordEvent_NonPrimaryDoesNotJoinGroup(t *testing.T) {
	s := New(zerolog.Nop())
	order, err := s.RecordEvent(newEvent("E1", "O1", "P-1", ExecTypeNew, 100), false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if order.OrderGroupID != "" {
		t.Errorf("OrderGroupID = %q, want empty", order.OrderGroupID)
	}
}

type failingRepo struct{}

func (failingRepo) SaveEvent(*ExecutionEvent) error { return errors.New("disk gone") }
func (failingRepo) UpsertOrder(*Order) error        { return nil }
func (failingRepo) LinkGroup(*OrderGroup) error     { return nil }

func TestRecordEvent_PersistenceFailureRollsBack(t *testing.T) {
	s := New(zerolog.Nop())
	ev := newEvent("E1", "O1", "P-1", ExecTypeNew, 100)

	if _, err := s.RecordEvent(ev, true, failingRepo{}); err == nil {
		t.Fatal("expected persistence error")
	}
	// The event slot must be free again so a resend can recover it.
	if _, err := s.RecordEvent(ev, true, nil); err != nil {
		t.Fatalf("resend after rollback: %v", err)
	}
	if got, ok := s.FindByOrderID("O1"); !ok || got == nil {
		t.Fatal("resend should have recorded the order")
	}
}

func TestCreateShadowDraft_LinksToPrimaryGroup(t *testing.T) {
	s := New(zerolog.Nop())
	if _, err := s.RecordEvent(newEvent("E1", "O1", "P-1", ExecTypeNew, 100), true, nil); err != nil {
		t.Fatal(err)
	}

	draft, err := s.CreateShadowDraft("P-1", "SHAD01", "ACME", SideSellShort, decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("CreateShadowDraft: %v", err)
	}
	if !draft.IsDraft || !draft.IsShadow {
		t.Errorf("draft flags wrong: %+v", draft)
	}
	if draft.ClOrdID != "" {
		t.Errorf("draft must not carry a ClOrdID yet, got %q", draft.ClOrdID)
	}
	if draft.OrderGroupID != "PRIMARY_PRIM01" {
		t.Errorf("draft OrderGroupID = %q, want the primary's group", draft.OrderGroupID)
	}
}

func TestCreateShadowDraft_UnknownPrimary(t *testing.T) {
	s := New(zerolog.Nop())
	if _, err := s.CreateShadowDraft("nope", "SHAD01", "ACME", SideSellShort, decimal.NewFromInt(50)); err == nil {
		t.Fatal("expected error for unknown primary")
	}
}

func TestPromoteDraft_AssignsClOrdID(t *testing.T) {
	s := New(zerolog.Nop())
	if _, err := s.RecordEvent(newEvent("E1", "O1", "P-1", ExecTypeNew, 100), true, nil); err != nil {
		t.Fatal(err)
	}
	draft, err := s.CreateShadowDraft("P-1", "SHAD01", "ACME", SideSellShort, decimal.NewFromInt(50))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.PromoteDraft(draft.OrderID, "MIRROR-N-SHAD01-O1"); err != nil {
		t.Fatalf("PromoteDraft: %v", err)
	}
	promoted, ok := s.FindByClOrdID("MIRROR-N-SHAD01-O1")
	if !ok {
		t.Fatal("promoted draft not findable by assigned ClOrdID")
	}
	if promoted.IsDraft {
		t.Error("promoted order still flagged draft")
	}

	if err := s.PromoteDraft(draft.OrderID, "again"); err == nil {
		t.Error("second promotion should fail")
	}
}

func TestMarkMirrored_OneWayLatch(t *testing.T) {
	s := New(zerolog.Nop())
	if !s.MarkMirrored("O1") {
		t.Fatal("first MarkMirrored should win the transition")
	}
	if s.MarkMirrored("O1") {
		t.Fatal("second MarkMirrored must report the latch already flipped")
	}
	if !s.IsMirrored("O1") {
		t.Fatal("latch should read mirrored")
	}
}

func TestCurrentClOrdID_ChainPerShadow(t *testing.T) {
	s := New(zerolog.Nop())

	if _, ok := s.CurrentClOrdID("O1", "SHAD01"); ok {
		t.Fatal("no chain entry expected before a send")
	}
	s.SetCurrentClOrdID("O1", "SHAD01", "MIRROR-N-SHAD01-O1")
	s.SetCurrentClOrdID("O1", "SHAD02", "MIRROR-N-SHAD02-O1")
	s.SetCurrentClOrdID("O1", "SHAD01", "MIRROR-R-SHAD01-O1")

	if id, _ := s.CurrentClOrdID("O1", "SHAD01"); id != "MIRROR-R-SHAD01-O1" {
		t.Errorf("SHAD01 chain head = %q", id)
	}
	if id, _ := s.CurrentClOrdID("O1", "SHAD02"); id != "MIRROR-N-SHAD02-O1" {
		t.Errorf("SHAD02 chain head = %q", id)
	}

	s.EvictShadow("O1", "SHAD01")
	if _, ok := s.CurrentClOrdID("O1", "SHAD01"); ok {
		t.Error("evicted chain entry still present")
	}
	if _, ok := s.CurrentClOrdID("O1", "SHAD02"); !ok {
		t.Error("eviction must not touch other shadows")
	}
}

func TestArchiveGroup(t *testing.T) {
	s := New(zerolog.Nop())
	if _, err := s.RecordEvent(newEvent("E1", "O1", "P-1", ExecTypeNew, 100), true, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.ArchiveGroup("PRIMARY_PRIM01"); err != nil {
		t.Fatalf("ArchiveGroup: %v", err)
	}
	if err := s.ArchiveGroup("nope"); err == nil {
		t.Error("unknown strategy key should error")
	}
}
