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

package replication

import (
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/syntalon/longvin-trading-sub000/internal/metrics"
	"github.com/syntalon/longvin-trading-sub000/internal/orderstore"
)

// DefaultDrainWindow bounds how long Shutdown waits for in-flight mirroring
// before abandoning queued work.
const DefaultDrainWindow = 5 * time.Second

// Pool is the replication worker pool: inbound I/O threads hand execution
// events to Submit and a fixed set of workers applies them to the Engine.
// The queue is bounded; a full queue drops the event with a warning rather
// than ever blocking the codec's I/O goroutine.
type Pool struct {
	log     zerolog.Logger
	engine  *Engine
	metrics *metrics.Metrics

	tasks chan orderstore.ExecutionEvent
	abort chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool

	workers int
	drain   time.Duration
}

// PoolOption configures a Pool at construction.
type PoolOption func(*Pool)

func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.tasks = make(chan orderstore.ExecutionEvent, n)
		}
	}
}

func WithDrainWindow(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.drain = d
		}
	}
}

func WithPoolMetrics(m *metrics.Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

// NewPool builds a Pool over engine with core-count workers and a bounded
// queue.
func NewPool(engine *Engine, log zerolog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		log:     log.With().Str("component", "replication.pool").Logger(),
		engine:  engine,
		tasks:   make(chan orderstore.ExecutionEvent, 256),
		abort:   make(chan struct{}),
		workers: runtime.GOMAXPROCS(0),
		drain:   DefaultDrainWindow,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Idempotent.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for ev := range p.tasks {
		select {
		case <-p.abort:
			// Past the drain window: empty the queue without mirroring.
			continue
		default:
		}
		p.engine.ApplyEvent(ev)
	}
}

// Submit enqueues ev without ever blocking the caller. Returns false when
// the queue is full (the event is dropped and counted) or the pool has shut
// down.
func (p *Pool) Submit(ev orderstore.ExecutionEvent) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	select {
	case p.tasks <- ev:
		p.mu.Unlock()
		return true
	default:
		p.mu.Unlock()
		p.log.Warn().Str("exec_id", ev.ExecID).Str("order_id", ev.OrderID).
			Msg("replication queue full, dropping event")
		if p.metrics != nil {
			p.metrics.ReplicationDropped.WithLabelValues(ev.Account).Inc()
		}
		return false
	}
}

// Shutdown closes the queue, waits up to the drain window for workers to
// finish, then abandons whatever is still queued.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(p.drain):
		p.log.Warn().Dur("drain_window", p.drain).Msg("drain window elapsed, abandoning queued replication tasks")
		close(p.abort)
		<-done
	}
}
