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

// Package sessionmgr owns the acceptor (drop-copy) and initiator
// (order-entry) FIX transports and their pause/resume lifecycle.
package sessionmgr

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/quickfixgo/quickfix"
	"github.com/rs/zerolog"
)

// Transport is the subset of *quickfix.Acceptor / *quickfix.Initiator the
// manager drives. Both satisfy it.
type Transport interface {
	Start() error
	Stop()
}

// Manager owns both transport roles behind a single settings blob.
type Manager struct {
	log zerolog.Logger

	acceptor  Transport
	initiator Transport

	running         atomic.Bool
	initiatorPaused atomic.Bool
}

// New constructs a Manager. app is the shared quickfix.Application (the
// admin/app hooks bridge); settingsReader is the FIX settings file content,
// holding sessions of both roles. acceptorStore/initiatorStore split the
// sequence discipline: acceptor sequence numbers are persistent, initiator
// sequence numbers reset on every logon.
func New(
	app quickfix.Application,
	settingsReader io.Reader,
	acceptorStore quickfix.MessageStoreFactory,
	initiatorStore quickfix.MessageStoreFactory,
	logFactory quickfix.LogFactory,
	log zerolog.Logger,
) (*Manager, error) {
	raw, err := io.ReadAll(settingsReader)
	if err != nil {
		return nil, fmt.Errorf("read FIX settings: %w", err)
	}

	acceptorText, initiatorText, err := splitSettings(string(raw))
	if err != nil {
		return nil, err
	}

	m := &Manager{log: log.With().Str("component", "sessionmgr").Logger()}

	if acceptorText != "" {
		settings, err := quickfix.ParseSettings(strings.NewReader(acceptorText))
		if err != nil {
			return nil, fmt.Errorf("parse acceptor settings: %w", err)
		}
		m.acceptor, err = quickfix.NewAcceptor(app, acceptorStore, settings, logFactory)
		if err != nil {
			return nil, fmt.Errorf("build acceptor: %w", err)
		}
	}
	if initiatorText != "" {
		settings, err := quickfix.ParseSettings(strings.NewReader(initiatorText))
		if err != nil {
			return nil, fmt.Errorf("parse initiator settings: %w", err)
		}
		m.initiator, err = quickfix.NewInitiator(app, initiatorStore, settings, logFactory)
		if err != nil {
			return nil, fmt.Errorf("build initiator: %w", err)
		}
	}
	return m, nil
}

// splitSettings partitions the line-oriented FIX settings text into an
// acceptor-only blob and an initiator-only blob, both carrying the shared
// [DEFAULT] section. A session's ConnectionType may come from its own
// [SESSION] section or be inherited from [DEFAULT]. A blob with no sessions
// of its role comes back empty.
func splitSettings(text string) (acceptorText, initiatorText string, err error) {
	type section struct {
		lines []string
	}
	var defaults section
	var sessions []section
	var current *section

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.EqualFold(trimmed, "[DEFAULT]"):
			defaults = section{}
			current = &defaults
		case strings.EqualFold(trimmed, "[SESSION]"):
			sessions = append(sessions, section{})
			current = &sessions[len(sessions)-1]
		default:
			if current != nil && trimmed != "" {
				current.lines = append(current.lines, trimmed)
			}
		}
	}

	connectionType := func(s section, fallback string) string {
		for _, line := range s.lines {
			if k, v, ok := strings.Cut(line, "="); ok && strings.EqualFold(strings.TrimSpace(k), "ConnectionType") {
				return strings.ToLower(strings.TrimSpace(v))
			}
		}
		return fallback
	}
	defaultCT := connectionType(defaults, "")

	render := func(want string) string {
		var b strings.Builder
		b.WriteString("[DEFAULT]\n")
		for _, line := range defaults.lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
		matched := false
		for _, s := range sessions {
			if connectionType(s, defaultCT) != want {
				continue
			}
			matched = true
			b.WriteString("[SESSION]\n")
			for _, line := range s.lines {
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
		if !matched {
			return ""
		}
		return b.String()
	}

	for _, s := range sessions {
		ct := connectionType(s, defaultCT)
		if ct != "acceptor" && ct != "initiator" {
			return "", "", fmt.Errorf("session with unrecognized ConnectionType %q", ct)
		}
	}
	return render("acceptor"), render("initiator"), nil
}

// Start starts whichever role has sessions configured; exactly-once via CAS
// on running.
func (m *Manager) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return nil
	}
	if m.acceptor != nil {
		if err := m.acceptor.Start(); err != nil {
			m.running.Store(false)
			return fmt.Errorf("start acceptor: %w", err)
		}
	}
	if m.initiator != nil {
		if err := m.initiator.Start(); err != nil {
			m.running.Store(false)
			return fmt.Errorf("start initiator: %w", err)
		}
	}
	m.log.Info().Msg("session manager started")
	return nil
}

// PauseInitiator stops the initiator transport; idempotent.
func (m *Manager) PauseInitiator(reason string) {
	if m.initiator == nil {
		return
	}
	if !m.initiatorPaused.CompareAndSwap(false, true) {
		return
	}
	m.log.Warn().Str("reason", reason).Msg("pausing initiator")
	m.initiator.Stop()
}

// ResumeInitiatorIfPaused restarts the initiator and atomically clears the
// paused flag.
func (m *Manager) ResumeInitiatorIfPaused() error {
	if m.initiator == nil {
		return nil
	}
	if !m.initiatorPaused.CompareAndSwap(true, false) {
		return nil
	}
	m.log.Info().Msg("resuming initiator")
	if err := m.initiator.Start(); err != nil {
		m.initiatorPaused.Store(true)
		return fmt.Errorf("resume initiator: %w", err)
	}
	return nil
}

// IsInitiatorPaused reports the current pause state.
func (m *Manager) IsInitiatorPaused() bool {
	return m.initiatorPaused.Load()
}

// Stop stops both roles and clears paused state.
func (m *Manager) Stop() {
	if m.acceptor != nil {
		m.acceptor.Stop()
	}
	if m.initiator != nil {
		m.initiator.Stop()
	}
	m.initiatorPaused.Store(false)
	m.running.Store(false)
	m.log.Info().Msg("session manager stopped")
}
