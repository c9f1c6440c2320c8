package replication

import (
	"sync"
	"testing"
	"time"

	"github.com/quickfixgo/quickfix"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/syntalon/longvin-trading-sub000/internal/cache"
	"github.com/syntalon/longvin-trading-sub000/internal/clordid"
	"github.com/syntalon/longvin-trading-sub000/internal/fixtags"
	"github.com/syntalon/longvin-trading-sub000/internal/locate"
	"github.com/syntalon/longvin-trading-sub000/internal/orderstore"
	"github.com/syntalon/longvin-trading-sub000/internal/sessionreg"
)

type capturingSender struct {
	mu   sync.Mutex
	sent []*quickfix.Message
}

func (c *capturingSender) SendToTarget(msg *quickfix.Message, _ quickfix.SessionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *capturingSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *capturingSender) messageAt(i int) *quickfix.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent[i]
}

func testSessionID(sender, target string) quickfix.SessionID {
	return quickfix.SessionID{BeginString: "FIX.4.2", SenderCompID: sender, TargetCompID: target}
}

// harness wires a minimal Engine with one primary and two shadow accounts,
// a single active copy rule per shadow, and a registry with both shadow
// initiator sessions already logged on.
type harness struct {
	engine   *Engine
	store    *orderstore.Store
	sender   *capturingSender
	registry *sessionreg.Registry
	locateSM *locate.StateMachine
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	accounts := cache.NewAccountCache(func() ([]cache.Account, error) {
		return []cache.Account{
			{ID: "PRIMARY", Number: "PRIMARY", Type: "Primary"},
			{ID: "SHADOW1", Number: "SHADOW1", Type: "Shadow"},
			{ID: "SHADOW2", Number: "SHADOW2", Type: "Shadow"},
		}, nil
	})
	if err := accounts.Refresh(); err != nil {
		t.Fatalf("refresh accounts: %v", err)
	}

	rules := cache.NewCopyRuleCache(func() ([]cache.CopyRule, error) {
		return []cache.CopyRule{
			{PrimaryAccountID: "PRIMARY", ShadowAccountID: "SHADOW1", Ratio: decimal.NewFromInt(1), Priority: 1, Active: true},
			{PrimaryAccountID: "PRIMARY", ShadowAccountID: "SHADOW2", Ratio: decimal.NewFromInt(1), Priority: 2, Active: true},
		}, nil
	})
	if err := rules.Refresh(); err != nil {
		t.Fatalf("refresh copy rules: %v", err)
	}

	routes := cache.NewRouteCache(func() ([]cache.Route, error) { return nil, nil })
	if err := routes.Refresh(); err != nil {
		t.Fatalf("refresh routes: %v", err)
	}

	registry := sessionreg.New("")
	registry.Register(sessionreg.RoleInitiator, testSessionID("US", "SHADOW1"))
	registry.MarkLoggedOn(sessionreg.RoleInitiator, testSessionID("US", "SHADOW1"))
	registry.Register(sessionreg.RoleInitiator, testSessionID("US", "SHADOW2"))
	registry.MarkLoggedOn(sessionreg.RoleInitiator, testSessionID("US", "SHADOW2"))

	store := orderstore.New(zerolog.Nop())
	sender := &capturingSender{}

	coord := locate.New(zerolog.Nop())
	locateSM := locate.NewStateMachine(coord, clordid.NewGenerator("MIRROR-"), zerolog.Nop(),
		locate.WithSender(sender), locate.WithTimeout(2*time.Second))

	engine := New(store, accounts, rules, routes, registry, clordid.NewGenerator("MIRROR-"), locateSM,
		"PRIMARY", "PRIMARY", "LOCATE", zerolog.Nop(), WithSender(sender))

	return &harness{engine: engine, store: store, sender: sender, registry: registry, locateSM: locateSM}
}

func primaryNewEvent(orderID, clOrdID string, side orderstore.Side, qty decimal.Decimal) orderstore.ExecutionEvent {
	return orderstore.ExecutionEvent{
		ExecID:   "EX-" + orderID + "-1",
		OrderID:  orderID,
		ClOrdID:  clOrdID,
		ExecType: orderstore.ExecTypeNew,
		Symbol:   "ACME",
		Side:     side,
		OrdType:  "2",
		OrderQty: qty,
		Price:    decimal.NewFromFloat(10.5),
		Account:  "PRIMARY",
	}
}

func TestReplication_S1_HappyPathBuyMirror(t *testing.T) {
	h := newHarness(t)
	ev := primaryNewEvent("O1", "CL1", orderstore.SideBuy, decimal.NewFromInt(100))

	if _, err := h.store.RecordEvent(ev, true, nil); err != nil {
		t.Fatalf("record event: %v", err)
	}
	h.engine.ApplyEvent(ev)

	if got := h.sender.count(); got != 2 {
		t.Fatalf("expected 2 mirrored new orders (one per shadow), got %d", got)
	}
	if _, ok := h.store.CurrentClOrdID("O1", "SHADOW1"); !ok {
		t.Error("expected a current ClOrdID recorded for SHADOW1")
	}
	if _, ok := h.store.CurrentClOrdID("O1", "SHADOW2"); !ok {
		t.Error("expected a current ClOrdID recorded for SHADOW2")
	}
}

func TestReplication_DuplicateNewIsIgnored(t *testing.T) {
	h := newHarness(t)
	ev := primaryNewEvent("O2", "CL2", orderstore.SideBuy, decimal.NewFromInt(50))

	h.engine.ApplyEvent(ev)
	h.engine.ApplyEvent(ev) // late duplicate on the mirrored latch

	if got := h.sender.count(); got != 2 {
		t.Fatalf("expected exactly 2 sends across both deliveries, got %d", got)
	}
}

func TestReplication_S2_ReplaceCascade(t *testing.T) {
	h := newHarness(t)
	newEv := primaryNewEvent("O3", "CL3", orderstore.SideBuy, decimal.NewFromInt(100))
	h.engine.ApplyEvent(newEv)

	replaceEv := newEv
	replaceEv.ExecType = orderstore.ExecTypeReplaced
	replaceEv.OrigClOrdID = "CL3"
	replaceEv.OrderQty = decimal.NewFromInt(150)
	h.engine.ApplyEvent(replaceEv)

	if got := h.sender.count(); got != 4 {
		t.Fatalf("expected 2 new + 2 replace sends, got %d", got)
	}
	id1, _ := h.store.CurrentClOrdID("O3", "SHADOW1")
	if id1 == "" {
		t.Fatal("expected an updated current ClOrdID for SHADOW1 after replace")
	}
}

func TestReplication_S3_CancelAfterReplace(t *testing.T) {
	h := newHarness(t)
	newEv := primaryNewEvent("O4", "CL4", orderstore.SideBuy, decimal.NewFromInt(100))
	h.engine.ApplyEvent(newEv)

	replaceEv := newEv
	replaceEv.ExecType = orderstore.ExecTypeReplaced
	replaceEv.OrderQty = decimal.NewFromInt(80)
	h.engine.ApplyEvent(replaceEv)

	cancelEv := newEv
	cancelEv.ExecType = orderstore.ExecTypeCanceled
	h.engine.ApplyEvent(cancelEv)

	if got := h.sender.count(); got != 6 {
		t.Fatalf("expected 2 new + 2 replace + 2 cancel sends, got %d", got)
	}
	if _, ok := h.store.CurrentClOrdID("O4", "SHADOW1"); ok {
		t.Error("expected the shadow chain to be evicted after cancel")
	}
}

func TestReplication_S4_ShortSellLocateApprovedFull(t *testing.T) {
	h := newHarness(t)
	ev := primaryNewEvent("O5", "CL5", orderstore.SideSellShort, decimal.NewFromInt(200))
	if _, err := h.store.RecordEvent(ev, true, nil); err != nil {
		t.Fatalf("record event: %v", err)
	}
	h.engine.ApplyEvent(ev)

	// a quote request should have gone out on some initiator session
	deadline := time.Now().Add(time.Second)
	for h.sender.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.sender.count() == 0 {
		t.Fatal("expected a short-locate quote request to be sent")
	}

	// requestedQty is Qp(200) + two shadows' desired (200 each, ratio=1) = 600;
	// a full-size offer approves all of it, leaving shadowAvail = 600-200 = 400.
	quoteReqID := extractQuoteReqID(t, h.sender.messageAt(0))
	if err := h.locateSM.ProcessQuoteResponse(testSessionID("US", "LOCATE"), quoteReqID, decimal.NewFromFloat(0.02), decimal.NewFromInt(600), ""); err != nil {
		t.Fatalf("ProcessQuoteResponse: %v", err)
	}
	if err := h.locateSM.ProcessLocateConfirmation(quoteReqID); err != nil {
		t.Fatalf("ProcessLocateConfirmation: %v", err)
	}

	deadline = time.Now().Add(time.Second)
	for h.sender.count() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := h.sender.count(); got != 4 {
		t.Fatalf("expected quote request + locate accept + 2 mirrored news, got %d", got)
	}
}

func TestReplication_S5_ShortSellLocatePartial_NoShadowAllocation(t *testing.T) {
	h := newHarness(t)
	ev := primaryNewEvent("O7", "CL7", orderstore.SideSellShort, decimal.NewFromInt(200))
	if _, err := h.store.RecordEvent(ev, true, nil); err != nil {
		t.Fatalf("record event: %v", err)
	}
	h.engine.ApplyEvent(ev)

	deadline := time.Now().Add(time.Second)
	for h.sender.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.sender.count() == 0 {
		t.Fatal("expected a short-locate quote request to be sent")
	}

	// Offer covers less than the primary's own quantity: the partial
	// approval leaves nothing for the shadows, so only the quote request
	// and the locate accept ever hit the wire.
	quoteReqID := extractQuoteReqID(t, h.sender.messageAt(0))
	if err := h.locateSM.ProcessQuoteResponse(testSessionID("US", "LOCATE"), quoteReqID, decimal.NewFromFloat(0.02), decimal.NewFromInt(120), ""); err != nil {
		t.Fatalf("ProcessQuoteResponse: %v", err)
	}
	if err := h.locateSM.ProcessLocateConfirmation(quoteReqID); err != nil {
		t.Fatalf("ProcessLocateConfirmation: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := h.sender.count(); got != 2 {
		t.Fatalf("expected quote request + locate accept only, got %d", got)
	}
}

func TestReplication_S6_LocateTimeout(t *testing.T) {
	h := newHarness(t)
	ev := primaryNewEvent("O6", "CL6", orderstore.SideSellShort, decimal.NewFromInt(100))
	if _, err := h.store.RecordEvent(ev, true, nil); err != nil {
		t.Fatalf("record event: %v", err)
	}
	h.engine.ApplyEvent(ev)

	deadline := time.Now().Add(3 * time.Second)
	for h.locateSM.SweepExpired(time.Now().Add(3*time.Second)) == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	// after the sweep fires the timeout, no shadow news should ever arrive
	time.Sleep(50 * time.Millisecond)
	if got := h.sender.count(); got != 1 {
		t.Fatalf("expected only the original quote request to have been sent, got %d", got)
	}
}

func TestRawTagValue(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"soh delimited", "8=FIX.4.2\x0135=8\x01100=ARCA\x0155=ACME\x01", "ARCA"},
		{"pipe delimited", "8=FIX.4.2|35=8|100=NSDQ|55=ACME|", "NSDQ"},
		{"first field", "100=EDGX\x0155=ACME\x01", "EDGX"},
		{"last field unterminated", "35=8\x01100=BATS", "BATS"},
		{"absent", "35=8\x0155=ACME\x01", ""},
		{"no false match on longer tag", "35=8\x011100=NOPE\x01", ""},
	}
	for _, tc := range cases {
		if got := rawTagValue(tc.raw, fixtags.TagExDestination); got != tc.want {
			t.Errorf("%s: rawTagValue = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestResolveRoute_PrefersCopyRouteThenOriginal(t *testing.T) {
	ev := orderstore.ExecutionEvent{RawMessage: "35=8\x01100=ARCA\x0155=ACME\x01"}

	if got := resolveRoute("EDGX", ev); got != "EDGX" {
		t.Errorf("copy route should win, got %q", got)
	}
	if got := resolveRoute("", ev); got != "ARCA" {
		t.Errorf("should fall back to the primary's own route, got %q", got)
	}
	if got := resolveRoute("", orderstore.ExecutionEvent{}); got != "" {
		t.Errorf("no route anywhere should stay unset, got %q", got)
	}
}

// extractQuoteReqID pulls QuoteReqID (tag 131) off a captured quickfix.Message.
func extractQuoteReqID(t *testing.T, msg *quickfix.Message) string {
	t.Helper()
	id, err := msg.Body.GetString(fixtags.TagQuoteReqID)
	if err != nil {
		t.Fatalf("get QuoteReqID field: %v", err)
	}
	return id
}
