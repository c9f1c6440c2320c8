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

package orderstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// primaryState is the per-primaryOrderId mutable state the replication
// engine needs: the one-way mirrored latch and the shadow -> currentClOrdId
// chain. It is guarded by its own mutex so concurrent events on different
// primary orders never contend.
type primaryState struct {
	mu              sync.Mutex
	mirrored        bool
	currentClOrdID  map[string]string // shadow account -> last emitted ClOrdID
}

// Store is the engine's order/event audit trail and derived-state index.
// All persistence is in-memory here; a Repository (implemented by
// persistence.DB in the internal/persistence package) is responsible for
// durable mirroring of the same writes.
type Store struct {
	log zerolog.Logger

	mu              sync.RWMutex
	events          map[string]*ExecutionEvent // execId -> event
	ordersByClOrdID map[string]*Order
	ordersByOrderID map[string]*Order
	groups          map[string]*OrderGroup // strategyKey -> group
	groupKeyByOrder map[string]string      // orderId -> strategyKey

	primariesMu sync.Mutex
	primaries   map[string]*primaryState // primaryOrderId -> state

	draftSeq int
}

// Repository is the durable-persistence contract the Store writes through.
// Out of scope: schema details. The engine only needs these three writes.
// RecordEvent issues them as three separate calls with no enclosing
// transaction: when a later call fails, the earlier writes stay in the
// repository and only the in-memory event record is rolled back.
type Repository interface {
	SaveEvent(e *ExecutionEvent) error
	UpsertOrder(o *Order) error
	LinkGroup(g *OrderGroup) error
}

// nopRepository is used when the caller supplies none; recordEvent still
// updates in-memory state.
type nopRepository struct{}

func (nopRepository) SaveEvent(*ExecutionEvent) error { return nil }
func (nopRepository) UpsertOrder(*Order) error        { return nil }
func (nopRepository) LinkGroup(*OrderGroup) error      { return nil }

func New(log zerolog.Logger) *Store {
	return &Store{
		log:             log.With().Str("component", "orderstore").Logger(),
		events:          make(map[string]*ExecutionEvent),
		ordersByClOrdID: make(map[string]*Order),
		ordersByOrderID: make(map[string]*Order),
		groups:          make(map[string]*OrderGroup),
		groupKeyByOrder: make(map[string]string),
		primaries:       make(map[string]*primaryState),
	}
}

// RecordEvent idempotently ingests e. A duplicate execId is a no-op that
// returns the order as it already stood. repo, if non-nil, is used as the
// durable-persistence collaborator for this single logical transaction; on
// failure the event is rolled back from memory so a resend can recover it
// on reconnect. isPrimary marks the order as belonging to the configured
// primary account, which is what makes it eligible to join an OrderGroup.
func (s *Store) RecordEvent(e ExecutionEvent, isPrimary bool, repo Repository) (*Order, error) {
	if repo == nil {
		repo = nopRepository{}
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}

	s.mu.Lock()
	if _, dup := s.events[e.ExecID]; dup {
		existing := s.ordersByClOrdID[e.ClOrdID]
		if existing == nil {
			existing = s.ordersByOrderID[e.OrderID]
		}
		s.mu.Unlock()
		return existing, nil
	}
	s.events[e.ExecID] = &e
	order := s.upsertOrderLocked(e)
	if isPrimary {
		order.IsPrimary = true
	}
	group := s.assignGroupLocked(order, e)
	s.mu.Unlock()

	if err := repo.SaveEvent(&e); err != nil {
		s.rollback(e.ExecID)
		return nil, fmt.Errorf("persist execution event: %w", err)
	}
	if err := repo.UpsertOrder(order); err != nil {
		s.rollback(e.ExecID)
		return nil, fmt.Errorf("persist order: %w", err)
	}
	if group != nil {
		if err := repo.LinkGroup(group); err != nil {
			s.rollback(e.ExecID)
			return nil, fmt.Errorf("persist order group: %w", err)
		}
	}
	return order, nil
}

func (s *Store) rollback(execID string) {
	s.mu.Lock()
	delete(s.events, execID)
	s.mu.Unlock()
}

// upsertOrderLocked applies the derivation rules (event -> order). Must be
// called with s.mu held.
func (s *Store) upsertOrderLocked(e ExecutionEvent) *Order {
	key := e.ClOrdID
	if key == "" {
		key = e.OrderID
	}
	order, exists := s.ordersByClOrdID[key]
	if !exists {
		if byOrderID, ok := s.ordersByOrderID[e.OrderID]; e.OrderID != "" && ok {
			order = byOrderID
			exists = true
		}
	}
	if !exists {
		order = &Order{CreatedAt: e.ReceivedAt}
	}

	if e.OrderID != "" {
		order.OrderID = e.OrderID
	}
	if e.ClOrdID != "" {
		order.ClOrdID = e.ClOrdID
	}
	if e.OrigClOrdID != "" {
		order.OrigClOrdID = e.OrigClOrdID
	}
	order.Account = e.Account
	order.Symbol = e.Symbol
	order.Side = e.Side
	order.OrdType = e.OrdType
	order.TimeInForce = e.TimeInForce
	order.OrdStatus = e.OrdStatus
	order.ExecType = e.ExecType
	order.OrderQty = e.OrderQty
	order.CumQty = e.CumQty
	order.LeavesQty = e.LeavesQty
	order.AvgPx = e.AvgPx
	order.LastPx = e.LastPx
	order.LastQty = e.LastQty
	order.Price = e.Price
	order.StopPx = e.StopPx
	order.Version++
	order.UpdatedAt = e.ReceivedAt

	if order.ClOrdID != "" {
		s.ordersByClOrdID[order.ClOrdID] = order
	}
	if order.OrderID != "" {
		s.ordersByOrderID[order.OrderID] = order
	}
	return order
}

// assignGroupLocked creates or joins an OrderGroup for orders marked
// IsPrimary and returns nil for every other order. The strategy key is the
// order's existing OrderGroupID, or PRIMARY_<account> when it has none; no
// account-level strategy key is consulted. Shadow orders join a group through
// CreateShadowDraft instead.
func (s *Store) assignGroupLocked(order *Order, e ExecutionEvent) *OrderGroup {
	if !order.IsPrimary {
		return nil
	}
	strategyKey := order.OrderGroupID
	if strategyKey == "" {
		strategyKey = "PRIMARY_" + order.Account
	}
	group, ok := s.groups[strategyKey]
	if !ok {
		group = &OrderGroup{StrategyKey: strategyKey, PrimaryOrderID: order.OrderID}
		s.groups[strategyKey] = group
	}
	order.OrderGroupID = strategyKey
	s.groupKeyByOrder[order.OrderID] = strategyKey
	return group
}

func (s *Store) FindByOrderID(id string) (*Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.ordersByOrderID[id]
	if !ok {
		return nil, false
	}
	copy := *o
	return &copy, true
}

func (s *Store) FindByClOrdID(id string) (*Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.ordersByClOrdID[id]
	if !ok {
		return nil, false
	}
	copy := *o
	return &copy, true
}

// CreateShadowDraft creates a draft Order for shadowAccount linked to the
// primary order's group: no ClOrdID/OrderID yet.
func (s *Store) CreateShadowDraft(primaryClOrdID, shadowAccount, symbol string, side Side, qty decimal.Decimal) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	primary, ok := s.ordersByClOrdID[primaryClOrdID]
	if !ok {
		return nil, fmt.Errorf("unknown primary order %q", primaryClOrdID)
	}
	s.draftSeq++
	draftKey := fmt.Sprintf("draft:%s:%s:%d", primary.OrderID, shadowAccount, s.draftSeq)

	draft := &Order{
		OrderID:      draftKey,
		Account:      shadowAccount,
		OrderGroupID: primary.OrderGroupID,
		IsShadow:     true,
		IsDraft:      true,
		Symbol:       symbol,
		Side:         side,
		OrderQty:     qty,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	s.ordersByOrderID[draftKey] = draft

	if group, ok := s.groups[primary.OrderGroupID]; ok {
		group.ShadowOrderIDs = append(group.ShadowOrderIDs, draftKey)
	}
	return draft, nil
}

// PromoteDraft fills in the assigned ClOrdID and transitions the draft to
// New.
func (s *Store) PromoteDraft(draftOrderID, assignedClOrdID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, ok := s.ordersByOrderID[draftOrderID]
	if !ok || !draft.IsDraft {
		return fmt.Errorf("unknown draft %q", draftOrderID)
	}
	draft.ClOrdID = assignedClOrdID
	draft.IsDraft = false
	draft.OrdStatus = "0" // New
	draft.UpdatedAt = time.Now()
	s.ordersByClOrdID[assignedClOrdID] = draft
	return nil
}

// ArchiveGroup marks a strategy's OrderGroup archived. The operator surface
// that would call this is out of scope; the method itself honours the
// documented OrderGroup lifecycle.
func (s *Store) ArchiveGroup(strategyKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[strategyKey]
	if !ok {
		return fmt.Errorf("unknown strategy key %q", strategyKey)
	}
	g.Archived = true
	return nil
}

// primaryStateFor returns (creating if absent) the per-primary state used
// for the mirrored latch and currentClOrdId chain.
func (s *Store) primaryStateFor(primaryOrderID string) *primaryState {
	s.primariesMu.Lock()
	defer s.primariesMu.Unlock()
	ps, ok := s.primaries[primaryOrderID]
	if !ok {
		ps = &primaryState{currentClOrdID: make(map[string]string)}
		s.primaries[primaryOrderID] = ps
	}
	return ps
}

// MarkMirrored performs the one-way Unmirrored -> Mirrored transition.
// Returns true only on the call that actually performs the transition, so
// callers can detect late duplicates.
func (s *Store) MarkMirrored(primaryOrderID string) bool {
	ps := s.primaryStateFor(primaryOrderID)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.mirrored {
		return false
	}
	ps.mirrored = true
	return true
}

// IsMirrored reports the current latch value without mutating it.
func (s *Store) IsMirrored(primaryOrderID string) bool {
	ps := s.primaryStateFor(primaryOrderID)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.mirrored
}

// CurrentClOrdID returns the last emitted ClOrdID for (primaryOrderID, shadow).
func (s *Store) CurrentClOrdID(primaryOrderID, shadow string) (string, bool) {
	ps := s.primaryStateFor(primaryOrderID)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	id, ok := ps.currentClOrdID[shadow]
	return id, ok
}

// SetCurrentClOrdID records the ClOrdID just emitted for (primaryOrderID, shadow).
func (s *Store) SetCurrentClOrdID(primaryOrderID, shadow, clOrdID string) {
	ps := s.primaryStateFor(primaryOrderID)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.currentClOrdID[shadow] = clOrdID
}

// EvictShadow removes the (primaryOrderID, shadow) chain entry, used once a
// cancel for that shadow has been sent successfully.
func (s *Store) EvictShadow(primaryOrderID, shadow string) {
	ps := s.primaryStateFor(primaryOrderID)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.currentClOrdID, shadow)
}
