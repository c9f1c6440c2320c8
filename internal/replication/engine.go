/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package replication applies drop-copy execution events observed on the
// primary account to the configured shadow accounts: it builds and emits
// mirrored new/replace/cancel orders, with de-duplication and idempotency,
// and drives the short-locate negotiation before a short sale is mirrored.
package replication

import (
	"context"
	"time"

	"github.com/quickfixgo/quickfix"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/syntalon/longvin-trading-sub000/internal/allocation"
	"github.com/syntalon/longvin-trading-sub000/internal/cache"
	"github.com/syntalon/longvin-trading-sub000/internal/clordid"
	"github.com/syntalon/longvin-trading-sub000/internal/decimalx"
	"github.com/syntalon/longvin-trading-sub000/internal/eventsink"
	"github.com/syntalon/longvin-trading-sub000/internal/fixtags"
	"github.com/syntalon/longvin-trading-sub000/internal/locate"
	"github.com/syntalon/longvin-trading-sub000/internal/metrics"
	"github.com/syntalon/longvin-trading-sub000/internal/orderstore"
	"github.com/syntalon/longvin-trading-sub000/internal/sessionreg"
)

// Sender abstracts the live session send so tests can supply a fake.
type Sender interface {
	SendToTarget(msg *quickfix.Message, sessionID quickfix.SessionID) error
}

// QuickfixSender sends through the live quickfix session API.
type QuickfixSender struct{}

func (QuickfixSender) SendToTarget(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return quickfix.SendToTarget(msg, sessionID)
}

// Engine is the Replication Engine (C10).
type Engine struct {
	log zerolog.Logger

	store     *orderstore.Store
	accounts  *cache.AccountCache
	copyRules *cache.CopyRuleCache
	routes    *cache.RouteCache
	registry  *sessionreg.Registry

	generator   *clordid.Generator
	locateSM    *locate.StateMachine
	sender      Sender
	sink        eventsink.Sink
	metrics     *metrics.Metrics

	primaryAccountID     string
	primaryAccountNumber string
	locateSessionAlias   string // alias used to resolve the session the locate flow sends on

	concurrency int
}

// Option configures an Engine at construction.
type Option func(*Engine)

func WithSender(s Sender) Option       { return func(e *Engine) { e.sender = s } }
func WithSink(s eventsink.Sink) Option { return func(e *Engine) { e.sink = s } }
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

func New(
	store *orderstore.Store,
	accounts *cache.AccountCache,
	copyRules *cache.CopyRuleCache,
	routes *cache.RouteCache,
	registry *sessionreg.Registry,
	generator *clordid.Generator,
	locateSM *locate.StateMachine,
	primaryAccountID, primaryAccountNumber, locateSessionAlias string,
	log zerolog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		log:                  log.With().Str("component", "replication").Logger(),
		store:                store,
		accounts:             accounts,
		copyRules:            copyRules,
		routes:               routes,
		registry:             registry,
		generator:            generator,
		locateSM:             locateSM,
		sender:               QuickfixSender{},
		sink:                 eventsink.NopSink{},
		primaryAccountID:     primaryAccountID,
		primaryAccountNumber: primaryAccountNumber,
		locateSessionAlias:   locateSessionAlias,
		concurrency:          4,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyEvent is the sole entry point: the replication Pool's workers call
// this for every ExecutionEvent that fixhooks submits from the drop-copy
// acceptor session for the configured primary account.
func (e *Engine) ApplyEvent(ev orderstore.ExecutionEvent) {
	switch ev.ExecType {
	case orderstore.ExecTypeNew:
		e.handleNew(ev)
	case orderstore.ExecTypeReplaced:
		e.handleReplaced(ev)
	case orderstore.ExecTypeCanceled:
		e.handleCanceled(ev)
	default:
		// Partial fills (and every other exec type) do not drive additional
		// shadow replaces; they are recorded upstream for the audit trail only.
	}
}

func (e *Engine) handleNew(ev orderstore.ExecutionEvent) {
	if !e.store.MarkMirrored(ev.OrderID) {
		return // late duplicate New: the one-way latch already flipped
	}
	if ev.Side.IsShort() {
		e.handleShortSellNew(ev)
		return
	}

	rules := e.copyRules.ForPrimary(e.primaryAccountID, ev.OrdType, ev.OrderQty)
	e.fanOut(rules, func(rule cache.CopyRule) {
		e.mirrorNewForRule(ev, rule)
	})
}

func (e *Engine) mirrorNewForRule(ev orderstore.ExecutionEvent, rule cache.CopyRule) {
	shadow, ok := e.accounts.ByID(rule.ShadowAccountID)
	if !ok {
		e.log.Warn().Str("shadow_account_id", rule.ShadowAccountID).Msg("unknown shadow account, skipping mirror")
		return
	}
	state, ok := e.registry.FindLoggedOnInitiatorByAlias(shadow.Number)
	if !ok {
		e.log.Warn().Str("shadow", shadow.Number).Msg("no logged-on initiator session for shadow, skipping mirror")
		return
	}

	clOrdID := e.generator.GenerateMirrorClOrdId(shadow.Number, ev.OrderID, "N")
	ordType := resolveOrdType(ev.OrdType, ev.Price, ev.StopPx)
	qty := decimalx.Floor8(ev.OrderQty.Mul(ratioOrOne(rule.Ratio)))

	msg := buildNewOrderSingle(newOrderParams{
		ClOrdID:       clOrdID,
		Symbol:        ev.Symbol,
		Side:          ev.Side,
		OrdType:       ordType,
		OrderQty:      qty,
		Price:         ev.Price,
		StopPx:        ev.StopPx,
		TimeInForce:   ev.TimeInForce,
		Account:       shadow.Number,
		ExDestination: resolveRoute(rule.CopyRoute, ev),
	}, state.SessionID)

	if err := e.sender.SendToTarget(msg, state.SessionID); err != nil {
		e.log.Error().Err(err).Str("shadow", shadow.Number).Str("primary_order_id", ev.OrderID).Msg("failed to send mirrored new order")
		return
	}
	e.store.SetCurrentClOrdID(ev.OrderID, shadow.Number, clOrdID)
	e.countMirrored("new")
	_ = e.sink.Publish("replication."+eventsink.EventMirroredNew, eventsink.Event{
		Type: eventsink.EventMirroredNew, PrimaryOrderID: ev.OrderID, ShadowAccount: shadow.Number, ClOrdID: clOrdID,
	})
}

func (e *Engine) handleReplaced(ev orderstore.ExecutionEvent) {
	rules := e.copyRules.ForPrimary(e.primaryAccountID, ev.OrdType, ev.OrderQty)
	e.fanOut(rules, func(rule cache.CopyRule) {
		e.mirrorReplaceForRule(ev, rule)
	})
}

func (e *Engine) mirrorReplaceForRule(ev orderstore.ExecutionEvent, rule cache.CopyRule) {
	shadow, ok := e.accounts.ByID(rule.ShadowAccountID)
	if !ok {
		return
	}
	current, ok := e.store.CurrentClOrdID(ev.OrderID, shadow.Number)
	if !ok {
		e.log.Info().Str("shadow", shadow.Number).Str("primary_order_id", ev.OrderID).Msg("no mirrored order to replace, skipping")
		return
	}
	state, ok := e.registry.FindLoggedOnInitiatorByAlias(shadow.Number)
	if !ok {
		e.log.Warn().Str("shadow", shadow.Number).Msg("no logged-on initiator session for shadow, skipping replace")
		return
	}

	newClOrdID := e.generator.GenerateMirrorClOrdId(shadow.Number, ev.OrderID, "R")
	ordType := resolveOrdType(ev.OrdType, ev.Price, ev.StopPx)
	qty := decimalx.Floor8(ev.OrderQty.Mul(ratioOrOne(rule.Ratio)))

	msg := buildCancelReplaceRequest(replaceParams{
		ClOrdID:     newClOrdID,
		OrigClOrdID: current,
		Symbol:      ev.Symbol,
		Side:        ev.Side,
		OrdType:     ordType,
		OrderQty:    qty,
		Price:       ev.Price,
		StopPx:      ev.StopPx,
		TimeInForce: ev.TimeInForce,
		Account:     shadow.Number,
	}, state.SessionID)

	if err := e.sender.SendToTarget(msg, state.SessionID); err != nil {
		e.log.Error().Err(err).Str("shadow", shadow.Number).Msg("failed to send mirrored replace")
		return
	}
	e.store.SetCurrentClOrdID(ev.OrderID, shadow.Number, newClOrdID)
	e.countMirrored("replace")
	_ = e.sink.Publish("replication."+eventsink.EventMirroredReplace, eventsink.Event{
		Type: eventsink.EventMirroredReplace, PrimaryOrderID: ev.OrderID, ShadowAccount: shadow.Number, ClOrdID: newClOrdID,
	})
}

func (e *Engine) handleCanceled(ev orderstore.ExecutionEvent) {
	rules := e.copyRules.ForPrimary(e.primaryAccountID, ev.OrdType, ev.OrderQty)
	e.fanOut(rules, func(rule cache.CopyRule) {
		e.mirrorCancelForRule(ev, rule)
	})
}

func (e *Engine) mirrorCancelForRule(ev orderstore.ExecutionEvent, rule cache.CopyRule) {
	shadow, ok := e.accounts.ByID(rule.ShadowAccountID)
	if !ok {
		return
	}
	current, ok := e.store.CurrentClOrdID(ev.OrderID, shadow.Number)
	if !ok {
		return
	}
	state, ok := e.registry.FindLoggedOnInitiatorByAlias(shadow.Number)
	if !ok {
		e.log.Warn().Str("shadow", shadow.Number).Msg("no logged-on initiator session for shadow, skipping cancel")
		return
	}

	clOrdID := e.generator.GenerateMirrorClOrdId(shadow.Number, ev.OrderID, "C")
	msg := buildCancelRequest(cancelParams{
		ClOrdID:     clOrdID,
		OrigClOrdID: current,
		Symbol:      ev.Symbol,
		Side:        ev.Side,
		Account:     shadow.Number,
	}, state.SessionID)

	if err := e.sender.SendToTarget(msg, state.SessionID); err != nil {
		e.log.Error().Err(err).Str("shadow", shadow.Number).Msg("failed to send mirrored cancel")
		return
	}
	e.store.EvictShadow(ev.OrderID, shadow.Number)
	e.countMirrored("cancel")
	_ = e.sink.Publish("replication."+eventsink.EventMirroredCancel, eventsink.Event{
		Type: eventsink.EventMirroredCancel, PrimaryOrderID: ev.OrderID, ShadowAccount: shadow.Number, ClOrdID: clOrdID,
	})
}

// handleShortSellNew is the short-sell branch: drafts are
// created instead of a direct mirrored New, and the locate negotiation is
// driven asynchronously; promotion and the real shadow sends happen on
// CompleteSuccess.
func (e *Engine) handleShortSellNew(ev orderstore.ExecutionEvent) {
	rules := e.copyRules.ForPrimary(e.primaryAccountID, ev.OrdType, ev.OrderQty)

	drafts := make([]draftEntry, 0, len(rules))
	for _, rule := range rules {
		shadow, ok := e.accounts.ByID(rule.ShadowAccountID)
		if !ok {
			continue
		}
		desired := decimalx.Floor8(ev.OrderQty.Mul(ratioOrOne(rule.Ratio)))
		draft, err := e.store.CreateShadowDraft(ev.ClOrdID, shadow.Number, ev.Symbol, ev.Side, desired)
		if err != nil {
			e.log.Error().Err(err).Str("shadow", shadow.Number).Msg("failed to create shadow draft for short sale")
			continue
		}
		drafts = append(drafts, draftEntry{draft: draft, rule: rule})
	}

	// The quote requested from the broker must cover the primary's own
	// quantity plus every shadow's desired mirror quantity: the allocation
	// formula reserves the primary's share first and only what is approved
	// beyond that ever reaches a shadow, so requesting just the primary's
	// quantity would make a shadow allocation mathematically impossible.
	totalDesired := decimalx.Zero
	for _, d := range drafts {
		totalDesired = totalDesired.Add(d.draft.OrderQty)
	}
	requestedQty := ev.OrderQty.Add(totalDesired)

	locateRoute := ""
	if route, ok := e.routes.ByName(ev.Symbol); ok {
		locateRoute = route.Destination
	}
	sessionState, ok := e.registry.FindLoggedOnInitiatorByAlias(e.locateSessionAlias)
	if !ok {
		sessionState, ok = e.registry.FindAnyLoggedOnInitiator()
	}
	if !ok {
		e.log.Error().Str("primary_order_id", ev.OrderID).Msg("no logged-on initiator session available for locate request")
		return
	}

	pending, err := e.locateSM.RequestLocate(sessionState.SessionID, ev.OrderID, ev.Account, ev.Symbol, requestedQty, locateRoute)
	if err != nil {
		e.log.Error().Err(err).Str("primary_order_id", ev.OrderID).Msg("failed to request locate")
		return
	}

	allocDrafts := make([]allocation.Draft, len(drafts))
	byID := make(map[string]draftEntry, len(drafts))
	for i, d := range drafts {
		allocDrafts[i] = allocation.Draft{ID: d.draft.OrderID, Desired: d.draft.OrderQty}
		byID[d.draft.OrderID] = d
	}

	go e.awaitLocateOutcome(ev, pending, allocDrafts, byID)
}

func (e *Engine) awaitLocateOutcome(
	ev orderstore.ExecutionEvent,
	pending *locate.PendingLocate,
	allocDrafts []allocation.Draft,
	byID map[string]draftEntry,
) {
	ctx, cancel := context.WithTimeout(context.Background(), locate.DefaultTimeout+5*time.Second)
	defer cancel()

	outcome, err := pending.Await(ctx)
	if err != nil || !outcome.Approved {
		message := outcome.Message
		if err != nil {
			message = err.Error()
		}
		e.log.Warn().Str("primary_order_id", ev.OrderID).Str("message", message).Msg("locate did not succeed, shadow drafts remain unsent")
		e.countLocateOutcome("rejected")
		_ = e.sink.Publish("replication."+eventsink.EventLocateOutcome, eventsink.Event{
			Type: eventsink.EventLocateOutcome, PrimaryOrderID: ev.OrderID, Status: "rejected", Message: message,
		})
		return
	}
	e.countLocateOutcome("approved")

	allocated := allocation.Allocate(ev.OrderQty, outcome.ApprovedQty, allocDrafts)
	for id, qty := range allocated {
		if qty.IsZero() {
			continue
		}
		entry, ok := byID[id]
		if !ok {
			continue
		}
		e.promoteAndSendShortSellDraft(ev, entry, qty)
	}
	_ = e.sink.Publish("replication."+eventsink.EventLocateOutcome, eventsink.Event{
		Type: eventsink.EventLocateOutcome, PrimaryOrderID: ev.OrderID, Status: "approved",
	})
}

// draftEntry pairs a created shadow draft order with the copy rule that
// produced it, so the locate-outcome continuation can promote and send it
// without re-deriving the rule.
type draftEntry struct {
	draft *orderstore.Order
	rule  cache.CopyRule
}

func (e *Engine) promoteAndSendShortSellDraft(ev orderstore.ExecutionEvent, entry draftEntry, qty decimal.Decimal) {
	shadow, ok := e.accounts.ByID(entry.rule.ShadowAccountID)
	if !ok {
		return
	}
	state, ok := e.registry.FindLoggedOnInitiatorByAlias(shadow.Number)
	if !ok {
		e.log.Warn().Str("shadow", shadow.Number).Msg("no logged-on initiator session for shadow, skipping short-sell mirror")
		return
	}

	assignedClOrdID := e.generator.GenerateMirrorClOrdId(shadow.Number, ev.OrderID, "N")
	if err := e.store.PromoteDraft(entry.draft.OrderID, assignedClOrdID); err != nil {
		e.log.Error().Err(err).Str("draft", entry.draft.OrderID).Msg("failed to promote shadow draft")
		return
	}

	ordType := resolveOrdType(ev.OrdType, ev.Price, ev.StopPx)
	msg := buildNewOrderSingle(newOrderParams{
		ClOrdID:       assignedClOrdID,
		Symbol:        ev.Symbol,
		Side:          ev.Side,
		OrdType:       ordType,
		OrderQty:      qty,
		Price:         ev.Price,
		StopPx:        ev.StopPx,
		TimeInForce:   ev.TimeInForce,
		Account:       shadow.Number,
		ExDestination: resolveRoute(entry.rule.CopyRoute, ev),
	}, state.SessionID)

	if err := e.sender.SendToTarget(msg, state.SessionID); err != nil {
		e.log.Error().Err(err).Str("shadow", shadow.Number).Msg("failed to send short-sell mirrored new order")
		return
	}
	e.store.SetCurrentClOrdID(ev.OrderID, shadow.Number, assignedClOrdID)
	e.countMirrored("new")
	_ = e.sink.Publish("replication."+eventsink.EventMirroredNew, eventsink.Event{
		Type: eventsink.EventMirroredNew, PrimaryOrderID: ev.OrderID, ShadowAccount: shadow.Number, ClOrdID: assignedClOrdID,
	})
}

// fanOut runs fn for every rule concurrently, bounded to e.concurrency.
// Failures inside fn are the caller's responsibility to log and swallow:
// fanOut never aborts remaining shadows because one failed.
func (e *Engine) fanOut(rules []cache.CopyRule, fn func(cache.CopyRule)) {
	if len(rules) == 0 {
		return
	}
	var eg errgroup.Group
	eg.SetLimit(e.concurrency)
	for _, rule := range rules {
		rule := rule
		eg.Go(func() error {
			fn(rule)
			return nil
		})
	}
	_ = eg.Wait()
}

func (e *Engine) countMirrored(action string) {
	if e.metrics != nil {
		e.metrics.MirroredOrders.WithLabelValues(action).Inc()
	}
}

func (e *Engine) countLocateOutcome(status string) {
	if e.metrics != nil {
		e.metrics.LocateOutcomes.WithLabelValues(status).Inc()
	}
}

func ratioOrOne(ratio decimal.Decimal) decimal.Decimal {
	if ratio.IsZero() {
		return decimal.NewFromInt(1)
	}
	return ratio
}

// resolveRoute picks the shadow order's ExDestination: the CopyRule's route
// when set, otherwise the route the primary order itself went out on,
// recovered from the drop-copy message's own ExDestination tag.
func resolveRoute(copyRoute string, ev orderstore.ExecutionEvent) string {
	if copyRoute != "" {
		return copyRoute
	}
	return rawTagValue(ev.RawMessage, fixtags.TagExDestination)
}
