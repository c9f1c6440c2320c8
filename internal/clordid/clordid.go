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

// Package clordid generates ClOrdIDs and QuoteReqIDs for the replication
// engine. Every generated ID respects FIX's practical 19-character ClOrdID
// ceiling.
package clordid

import (
	"github.com/google/uuid"
)

// MaxClOrdIDLength is the length ceiling a generated ClOrdID must respect.
const MaxClOrdIDLength = 19

// Generator builds mirror ClOrdIDs under a configured prefix.
type Generator struct {
	prefix string
}

// NewGenerator returns a Generator using prefix (default "MIRROR-" when empty).
func NewGenerator(prefix string) *Generator {
	if prefix == "" {
		prefix = "MIRROR-"
	}
	return &Generator{prefix: prefix}
}

// GenerateMirrorClOrdId builds the ClOrdID for a mirrored action on shadow,
// derived from the primary order's source identifier.
//
// base = "<prefix><action>-<shadow>-<source>"; when base exceeds
// MaxClOrdIDLength the trailing MaxClOrdIDLength characters are kept so the
// result stays deterministic and collision-resistant for a given input.
func (g *Generator) GenerateMirrorClOrdId(shadow, source, action string) string {
	base := g.prefix + action + "-" + shadow + "-" + source
	if len(base) > MaxClOrdIDLength {
		return base[len(base)-MaxClOrdIDLength:]
	}
	return base
}

// NewQuoteReqID returns a fresh UUID-based token for a short-locate quote
// request round trip.
func NewQuoteReqID() string {
	return uuid.NewString()
}

// NewExecID returns a generated execution id for an inbound report that
// omitted one. Every event must carry a distinct ExecID: the event log
// dedupes by it, and two unrelated events sharing an empty id would make
// the second look like a duplicate delivery of the first.
func NewExecID() string {
	return uuid.NewString()
}
