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

// Package eventsink is the engine's outbound publish side: components only
// need a narrow Sink interface to announce mirrored-order and
// locate-outcome events, and this package supplies a NATS-backed
// implementation of it.
package eventsink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Event is the envelope published for every replication-engine milestone
// worth announcing to external subscribers.
type Event struct {
	Type           string    `json:"type"`
	PrimaryOrderID string    `json:"primary_order_id"`
	ShadowAccount  string    `json:"shadow_account,omitempty"`
	ClOrdID        string    `json:"cl_ord_id,omitempty"`
	Status         string    `json:"status,omitempty"`
	Message        string    `json:"message,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

const (
	EventMirroredNew     = "mirrored_new"
	EventMirroredReplace = "mirrored_replace"
	EventMirroredCancel  = "mirrored_cancel"
	EventLocateOutcome   = "locate_outcome"
)

// Sink is the narrow interface the replication engine depends on; NATSSink
// and NopSink both satisfy it.
type Sink interface {
	Publish(subject string, e Event) error
}

// NATSSink publishes events as JSON to a NATS subject rooted at Prefix.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSSink connects to url (e.g. nats://localhost:4222) and returns a
// Sink that publishes under "<prefix>.<subject>".
func NewNATSSink(url, prefix string) (*NATSSink, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSSink{conn: conn, prefix: prefix}, nil
}

func (s *NATSSink) Publish(subject string, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.conn.Publish(s.prefix+"."+subject, payload)
}

func (s *NATSSink) Close() {
	s.conn.Close()
}

// NopSink discards every event; used when no pub/sub sink is configured.
type NopSink struct{}

func (NopSink) Publish(string, Event) error { return nil }
