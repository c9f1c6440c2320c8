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

// Package locate implements the short-sell locate negotiation: a Coordinator
// that tracks pending locate futures by primary order, and a StateMachine
// that drives the quote-request/quote-response/accept/confirmation round
// trip over a FIX order-entry session.
package locate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrTimeout is the error an awaiter sees when a PendingLocate's timeout
// fires before an outcome arrives.
var ErrTimeout = errors.New("locate: timed out waiting for outcome")

// ErrShuttingDown is used to complete every outstanding PendingLocate when
// the process is shutting down cooperatively.
var ErrShuttingDown = errors.New("locate: shutting down")

// Outcome is the terminal result of a locate negotiation delivered to the
// original caller (the replication engine).
type Outcome struct {
	Approved    bool
	ApprovedQty decimal.Decimal
	LocateID    string
	Message     string
}

// PendingLocate is the in-memory registration for one in-flight locate
// negotiation, keyed by primaryOrderId in the Coordinator.
type PendingLocate struct {
	PrimaryOrderID string
	Symbol         string
	RequestedQty   decimal.Decimal
	CreatedAt      time.Time

	timeout time.Duration
	timer   *time.Timer
	done    chan struct{}

	mu        sync.Mutex
	completed bool
	outcome   Outcome
	err       error
}

// Await blocks until the locate resolves (success, failure, or timeout) or
// ctx is cancelled first. Cancelling the waiter's context does not affect
// other waiters on the same PendingLocate.
func (p *PendingLocate) Await(ctx context.Context) (Outcome, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.outcome, p.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (p *PendingLocate) complete(outcome Outcome, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.completed {
		return false
	}
	p.completed = true
	p.outcome = outcome
	p.err = err
	if p.timer != nil {
		p.timer.Stop()
	}
	close(p.done)
	return true
}

// Coordinator tracks primaryOrderId -> PendingLocate and fulfils or expires
// each registration exactly once.
type Coordinator struct {
	log zerolog.Logger

	mu      sync.Mutex
	pending map[string]*PendingLocate
}

func New(log zerolog.Logger) *Coordinator {
	return &Coordinator{
		log:     log.With().Str("component", "locate.coordinator").Logger(),
		pending: make(map[string]*PendingLocate),
	}
}

// Register installs a PendingLocate for primaryOrderID with putIfAbsent
// semantics: a second call for the same id returns the existing entry and
// newlyRegistered=false.
func (c *Coordinator) Register(primaryOrderID, symbol string, requestedQty decimal.Decimal, timeout time.Duration) (pending *PendingLocate, newlyRegistered bool) {
	c.mu.Lock()
	if existing, ok := c.pending[primaryOrderID]; ok {
		c.mu.Unlock()
		return existing, false
	}
	pl := &PendingLocate{
		PrimaryOrderID: primaryOrderID,
		Symbol:         symbol,
		RequestedQty:   requestedQty,
		CreatedAt:      time.Now(),
		timeout:        timeout,
		done:           make(chan struct{}),
	}
	c.pending[primaryOrderID] = pl
	c.mu.Unlock()

	pl.timer = time.AfterFunc(timeout, func() { c.expire(primaryOrderID) })
	return pl, true
}

func (c *Coordinator) remove(primaryOrderID string) (*PendingLocate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pl, ok := c.pending[primaryOrderID]
	if ok {
		delete(c.pending, primaryOrderID)
	}
	return pl, ok
}

func (c *Coordinator) expire(primaryOrderID string) {
	pl, ok := c.remove(primaryOrderID)
	if !ok {
		return
	}
	if pl.complete(Outcome{}, ErrTimeout) {
		c.log.Warn().Str("primary_order_id", primaryOrderID).Msg("locate timed out")
	}
}

// CompleteSuccess fulfils the PendingLocate for id with an approved outcome.
// A no-op if id is already absent (already completed or never registered).
func (c *Coordinator) CompleteSuccess(primaryOrderID string, approvedQty decimal.Decimal, locateID, message string) {
	pl, ok := c.remove(primaryOrderID)
	if !ok {
		return
	}
	pl.complete(Outcome{Approved: true, ApprovedQty: approvedQty, LocateID: locateID, Message: message}, nil)
}

// CompleteFailure fulfils the PendingLocate for id with a rejected/expired
// outcome carrying a diagnostic message, not an error.
func (c *Coordinator) CompleteFailure(primaryOrderID, message string) {
	pl, ok := c.remove(primaryOrderID)
	if !ok {
		return
	}
	pl.complete(Outcome{Approved: false, Message: message}, nil)
}

// CompleteExceptionally fulfils the PendingLocate for id by propagating err
// to the awaiter instead of an Outcome.
func (c *Coordinator) CompleteExceptionally(primaryOrderID string, err error) {
	pl, ok := c.remove(primaryOrderID)
	if !ok {
		return
	}
	pl.complete(Outcome{}, err)
}

// ShutdownAll completes every outstanding registration with
// ErrShuttingDown, used during cooperative shutdown.
func (c *Coordinator) ShutdownAll() {
	c.mu.Lock()
	all := make([]*PendingLocate, 0, len(c.pending))
	for _, pl := range c.pending {
		all = append(all, pl)
	}
	c.pending = make(map[string]*PendingLocate)
	c.mu.Unlock()

	for _, pl := range all {
		pl.complete(Outcome{}, ErrShuttingDown)
	}
}

// Len reports the number of outstanding registrations, used by tests.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
