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

// Package seqctl implements the per-session sequence-reset and
// re-synchronization policy hooked into the FIX admin callbacks: the
// order-entry side always resets on logon, while the drop-copy side treats
// the peer as authoritative.
package seqctl

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// SendDecision replaces exception-based DoNotSend control flow:
// InitiatorLogonOut returns this instead of throwing, and the toAdmin hook
// pauses the initiator when it is Suppressed.
type SendDecision struct {
	Suppressed bool
	Reason     string
}

// Send is the normal, non-suppressed decision.
var Send = SendDecision{}

// Suppress builds a decision that marks the outbound message as suppressed,
// carrying reason.
func Suppress(reason string) SendDecision {
	return SendDecision{Suppressed: true, Reason: reason}
}

var notTradeDayPattern = regexp.MustCompile(`(?i)not\s*trad(e|ing)\s*day`)
var sequencePattern = regexp.MustCompile(`(?i)seq(uence)?\D+(\d+)`)

// Controller applies the role-specific sequence policies. It holds no session
// state itself; callers pass the current values in and get decisions back,
// and apply them through the codec's own session API.
type Controller struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Controller {
	return &Controller{log: log.With().Str("component", "seqctl").Logger()}
}

// InitiatorLogonOut decides the outbound Logon for the order-entry session.
// allowed reflects the trading-hours guard; when false the Logon is
// suppressed entirely.
func (c *Controller) InitiatorLogonOut(allowed bool) SendDecision {
	if !allowed {
		return Suppress("trading hours guard disallows connection")
	}
	return Send
}

// InitiatorLogonIn reports whether the peer's incoming sequence differs
// from expected and, if so, the value to adopt.
func (c *Controller) InitiatorLogonIn(expected, incoming int) (adopt int, shouldAdopt bool) {
	if incoming != expected {
		c.log.Warn().Int("expected", expected).Int("incoming", incoming).
			Msg("initiator logon sequence mismatch, adopting peer value")
		return incoming, true
	}
	return 0, false
}

// DropCopyLogonIn returns (1, 1) when the peer's incoming sequence is 1;
// otherwise the peer's incoming sequence is adopted for both sides because
// the drop-copy peer is authoritative. The start-of-day reset itself is done
// by the fixhooks logon handling, not here.
func (c *Controller) DropCopyLogonIn(incoming int) (senderSeq, targetSeq int) {
	if incoming == 1 {
		return 1, 1
	}
	c.log.Info().Int("incoming", incoming).Msg("drop-copy logon adopting peer sequence")
	return incoming, incoming
}

// SequenceResetBothSides reports whether a SequenceReset with GapFill=false
// should reset both sides to 1.
func (c *Controller) SequenceResetBothSides(gapFill bool) bool {
	return !gapFill
}

// LogoutSignal holds the two control signals a Logout's Text field can
// carry: a not-trading-day notice, and an explicit sequence number to adopt.
type LogoutSignal struct {
	NotTradingDay bool
	Reason        string
	AdoptSequence int
	HasSequence   bool
}

// LogoutText inspects a Logout's Text field for those two signals.
func (c *Controller) LogoutText(text string) LogoutSignal {
	var sig LogoutSignal
	if notTradeDayPattern.MatchString(text) {
		sig.NotTradingDay = true
		sig.Reason = text
	}
	if m := sequencePattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			sig.AdoptSequence = n
			sig.HasSequence = true
		}
	}
	return sig
}

// ContainsSequenceWord is a narrow helper for deciding logging verbosity
// without re-running the full pattern; nothing in this repository calls it.
func ContainsSequenceWord(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "seq")
}
