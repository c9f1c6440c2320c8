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

// Package metrics holds the engine's internal Prometheus counters. No HTTP
// exposition is wired here; a Registry is still useful in-process for tests
// and for a future exporter outside this repo's scope.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every counter/histogram the engine's internal events
// drive.
type Metrics struct {
	MirroredOrders      *prometheus.CounterVec
	LocateOutcomes      *prometheus.CounterVec
	SequenceResyncs     prometheus.Counter
	ReplicationDropped  *prometheus.CounterVec
}

// New registers and returns a fresh Metrics bound to reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MirroredOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirrorgate",
			Name:      "mirrored_orders_total",
			Help:      "Mirrored orders emitted on shadow sessions, by action (new/replace/cancel).",
		}, []string{"action"}),
		LocateOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirrorgate",
			Name:      "locate_outcomes_total",
			Help:      "Terminal locate outcomes, by status.",
		}, []string{"status"}),
		SequenceResyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mirrorgate",
			Name:      "sequence_resyncs_total",
			Help:      "Times the sequence controller adopted a peer-provided sequence number.",
		}),
		ReplicationDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirrorgate",
			Name:      "replication_queue_drops_total",
			Help:      "Replication events dropped because the bounded queue was full, by account.",
		}, []string{"account"}),
	}
	reg.MustRegister(m.MirroredOrders, m.LocateOutcomes, m.SequenceResyncs, m.ReplicationDropped)
	return m
}
