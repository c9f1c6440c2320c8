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

package locate

import (
	"fmt"
	"sync"
	"time"

	"github.com/quickfixgo/quickfix"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/syntalon/longvin-trading-sub000/internal/clordid"
	"github.com/syntalon/longvin-trading-sub000/internal/decimalx"
	"github.com/syntalon/longvin-trading-sub000/internal/fixtags"
)

// Status is a LocateRequest's lifecycle state. It is one-way: Pending moves
// to exactly one terminal state and never re-enters Pending.
type Status string

const (
	StatusPending        Status = "Pending"
	StatusApprovedFull   Status = "ApprovedFull"
	StatusApprovedPartial Status = "ApprovedPartial"
	StatusRejected       Status = "Rejected"
	StatusExpired        Status = "Expired"
	StatusCancelled      Status = "Cancelled"
)

func (s Status) Terminal() bool {
	return s != StatusPending
}

// Request is the persisted record of one locate negotiation.
type Request struct {
	ID             string
	PrimaryOrderID string
	Account        string
	Symbol         string
	Quantity       decimal.Decimal
	Status         Status
	QuoteReqID     string
	LocateRoute    string
	OfferPx        decimal.Decimal
	OfferSize      decimal.Decimal
	ApprovedQty    decimal.Decimal
	ResponseText   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Repository persists every LocateRequest status transition, not just the
// final one, so the transition history itself is auditable.
type Repository interface {
	SaveRequest(r *Request) error
}

type nopRepository struct{}

func (nopRepository) SaveRequest(*Request) error { return nil }

// Sender abstracts the single quickfix call the state machine needs so
// tests can supply a fake instead of a live session.
type Sender interface {
	SendToTarget(msg *quickfix.Message, sessionID quickfix.SessionID) error
}

// QuickfixSender sends through the live quickfix session API.
type QuickfixSender struct{}

func (QuickfixSender) SendToTarget(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return quickfix.SendToTarget(msg, sessionID)
}

// DefaultTimeout is the locate request expiry, matching locate.timeout-seconds.
const DefaultTimeout = 30 * time.Second

// StateMachine drives the short-locate quote request -> quote response ->
// accept -> confirmation sequence and persists every transition.
type StateMachine struct {
	log         zerolog.Logger
	coordinator *Coordinator
	repo        Repository
	sender      Sender
	generator   *clordid.Generator
	timeout     time.Duration

	mu              sync.Mutex
	byQuoteReqID    map[string]*Request
	primaryByQuote  map[string]string // quoteReqID -> primaryOrderId, redundant index for confirmation lookups
}

// Option configures a StateMachine at construction.
type Option func(*StateMachine)

func WithTimeout(d time.Duration) Option {
	return func(sm *StateMachine) { sm.timeout = d }
}

func WithRepository(repo Repository) Option {
	return func(sm *StateMachine) { sm.repo = repo }
}

func WithSender(s Sender) Option {
	return func(sm *StateMachine) { sm.sender = s }
}

func NewStateMachine(coordinator *Coordinator, generator *clordid.Generator, log zerolog.Logger, opts ...Option) *StateMachine {
	sm := &StateMachine{
		log:            log.With().Str("component", "locate.statemachine").Logger(),
		coordinator:    coordinator,
		repo:           nopRepository{},
		sender:         QuickfixSender{},
		generator:      generator,
		timeout:        DefaultTimeout,
		byQuoteReqID:   make(map[string]*Request),
		primaryByQuote: make(map[string]string),
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// RequestLocate persists a Pending LocateRequest, registers it with the
// Coordinator, and sends the Short Locate Quote Request (MsgType=R) on
// sessionID. The returned PendingLocate resolves once the full round trip
// (quote response then locate confirmation) completes or times out.
func (sm *StateMachine) RequestLocate(sessionID quickfix.SessionID, primaryOrderID, account, symbol string, requestedQty decimal.Decimal, locateRoute string) (*PendingLocate, error) {
	quoteReqID := clordid.NewQuoteReqID()
	req := &Request{
		ID:          quoteReqID,
		PrimaryOrderID: primaryOrderID,
		Account:     account,
		Symbol:      symbol,
		Quantity:    requestedQty,
		Status:      StatusPending,
		QuoteReqID:  quoteReqID,
		LocateRoute: locateRoute,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := sm.repo.SaveRequest(req); err != nil {
		return nil, fmt.Errorf("persist locate request: %w", err)
	}

	sm.mu.Lock()
	sm.byQuoteReqID[quoteReqID] = req
	sm.primaryByQuote[quoteReqID] = primaryOrderID
	sm.mu.Unlock()

	pending, _ := sm.coordinator.Register(primaryOrderID, symbol, requestedQty, sm.timeout)

	msg := buildQuoteRequest(quoteReqID, symbol, requestedQty, account, locateRoute, sessionID)
	if err := sm.sender.SendToTarget(msg, sessionID); err != nil {
		sm.failRequest(req, "send quote request: "+err.Error())
		return pending, fmt.Errorf("send quote request: %w", err)
	}
	return pending, nil
}

// ProcessQuoteResponse implements processLocateResponseByQuoteReqId: applies
// the boundary rule on offerSize and, if approved, sends the locate accept
// NewOrderSingle (MsgType=D).
func (sm *StateMachine) ProcessQuoteResponse(sessionID quickfix.SessionID, quoteReqID string, offerPx, offerSize decimal.Decimal, text string) error {
	req := sm.lookup(quoteReqID)
	if req == nil {
		return fmt.Errorf("unknown quote request id %q", quoteReqID)
	}
	if req.Status.Terminal() {
		return fmt.Errorf("quote request %q already %s", quoteReqID, req.Status)
	}

	req.OfferPx = offerPx
	req.OfferSize = offerSize
	req.ResponseText = text
	req.UpdatedAt = time.Now()

	if offerSize.LessThanOrEqual(decimalx.Zero) {
		req.Status = StatusRejected
		_ = sm.repo.SaveRequest(req)
		sm.coordinator.CompleteFailure(req.PrimaryOrderID, "locate rejected: "+text)
		return nil
	}
	if offerSize.GreaterThanOrEqual(req.Quantity) {
		req.Status = StatusApprovedFull
		req.ApprovedQty = req.Quantity
	} else {
		req.Status = StatusApprovedPartial
		req.ApprovedQty = offerSize
	}
	if err := sm.repo.SaveRequest(req); err != nil {
		sm.failRequest(req, "persist approved locate: "+err.Error())
		return err
	}

	msg := buildLocateAccept(quoteReqID, req.Symbol, req.ApprovedQty, req.Account, req.LocateRoute, sessionID)
	if err := sm.sender.SendToTarget(msg, sessionID); err != nil {
		sm.failRequest(req, "send locate accept: "+err.Error())
		return fmt.Errorf("send locate accept: %w", err)
	}
	return nil
}

// ProcessLocateConfirmation implements processLocateConfirmationByQuoteReqId:
// an ExecutionReport with OrdStatus=B whose ClOrdID or QuoteReqID matches
// completes the coordinator's PendingLocate with success.
func (sm *StateMachine) ProcessLocateConfirmation(quoteReqID string) error {
	req := sm.lookup(quoteReqID)
	if req == nil {
		return fmt.Errorf("unknown quote request id %q for confirmation", quoteReqID)
	}
	sm.coordinator.CompleteSuccess(req.PrimaryOrderID, req.ApprovedQty, req.ID, req.ResponseText)
	return nil
}

// SweepExpired marks every tracked Pending request older than the
// configured timeout as Expired and completes its coordinator entry with
// failure "timeout". Intended to run every 10 seconds.
func (sm *StateMachine) SweepExpired(now time.Time) int {
	sm.mu.Lock()
	stale := make([]*Request, 0)
	for _, req := range sm.byQuoteReqID {
		if req.Status == StatusPending && now.Sub(req.CreatedAt) > sm.timeout {
			stale = append(stale, req)
		}
	}
	sm.mu.Unlock()

	for _, req := range stale {
		req.Status = StatusExpired
		req.UpdatedAt = now
		if err := sm.repo.SaveRequest(req); err != nil {
			sm.log.Error().Err(err).Str("quote_req_id", req.QuoteReqID).Msg("failed to persist expired locate request")
		}
		sm.coordinator.CompleteFailure(req.PrimaryOrderID, "timeout")
	}
	return len(stale)
}

func (sm *StateMachine) failRequest(req *Request, message string) {
	req.Status = StatusRejected
	req.ResponseText = message
	req.UpdatedAt = time.Now()
	_ = sm.repo.SaveRequest(req)
	sm.coordinator.CompleteFailure(req.PrimaryOrderID, message)
}

func (sm *StateMachine) lookup(quoteReqID string) *Request {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.byQuoteReqID[quoteReqID]
}

func buildQuoteRequest(quoteReqID, symbol string, orderQty decimal.Decimal, account, locateRoute string, sessionID quickfix.SessionID) *quickfix.Message {
	msg := quickfix.NewMessage()
	header := &msg.Header
	header.SetField(fixtags.TagBeginString, quickfix.FIXString(sessionID.BeginString))
	header.SetField(fixtags.TagMsgType, quickfix.FIXString(fixtags.MsgTypeQuoteRequest))
	header.SetField(fixtags.TagSenderCompId, quickfix.FIXString(sessionID.SenderCompID))
	header.SetField(fixtags.TagTargetCompId, quickfix.FIXString(sessionID.TargetCompID))

	msg.Body.SetField(fixtags.TagQuoteReqID, quickfix.FIXString(quoteReqID))
	msg.Body.SetField(fixtags.TagSymbol, quickfix.FIXString(symbol))
	msg.Body.SetField(fixtags.TagOrderQty, quickfix.FIXString(decimalx.String(orderQty)))
	msg.Body.SetField(fixtags.TagAccount, quickfix.FIXString(account))
	if locateRoute != "" {
		msg.Body.SetField(fixtags.TagExDestination, quickfix.FIXString(locateRoute))
	}
	return msg
}

// buildLocateAccept builds the Short Locate New Order (MsgType=D): OrdType
// and TimeInForce are required by the message grammar but ignored by the
// peer for this flow.
func buildLocateAccept(quoteReqID, symbol string, approvedQty decimal.Decimal, account, locateRoute string, sessionID quickfix.SessionID) *quickfix.Message {
	msg := quickfix.NewMessage()
	header := &msg.Header
	header.SetField(fixtags.TagBeginString, quickfix.FIXString(sessionID.BeginString))
	header.SetField(fixtags.TagMsgType, quickfix.FIXString(fixtags.MsgTypeNewOrderSingle))
	header.SetField(fixtags.TagSenderCompId, quickfix.FIXString(sessionID.SenderCompID))
	header.SetField(fixtags.TagTargetCompId, quickfix.FIXString(sessionID.TargetCompID))

	msg.Body.SetField(fixtags.TagClOrdID, quickfix.FIXString(quoteReqID))
	msg.Body.SetField(fixtags.TagSymbol, quickfix.FIXString(symbol))
	msg.Body.SetField(fixtags.TagSide, quickfix.FIXString(fixtags.SideBuy))
	msg.Body.SetField(fixtags.TagOrdType, quickfix.FIXString(fixtags.OrdTypeMarket))
	msg.Body.SetField(fixtags.TagTimeInForce, quickfix.FIXString(fixtags.TimeInForceDay))
	msg.Body.SetField(fixtags.TagOrderQty, quickfix.FIXString(decimalx.String(approvedQty)))
	msg.Body.SetField(fixtags.TagAccount, quickfix.FIXString(account))
	if locateRoute != "" {
		msg.Body.SetField(fixtags.TagExDestination, quickfix.FIXString(locateRoute))
	}
	return msg
}
