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

// Package tradinghours computes whether the order-entry session is allowed
// to be logged on, and schedules the resume after a broker-reported
// not-a-trading-day.
package tradinghours

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the trading window configuration.
type Config struct {
	StartHour  int // inclusive
	EndHour    int // exclusive
	ResumeHour int // hour of day the window reopens after a not-trading-day
	Zone       *time.Location
}

// DefaultConfig matches the engine's documented defaults.
func DefaultConfig() Config {
	zone, err := time.LoadLocation("America/New_York")
	if err != nil {
		zone = time.UTC
	}
	return Config{StartHour: 4, EndHour: 20, ResumeHour: 6, Zone: zone}
}

// Guard tracks the trading-hours window and any not-a-trading-day override.
type Guard struct {
	cfg    Config
	log    zerolog.Logger
	mu     sync.Mutex
	nextAllowedLogon time.Time // zero value means "no override"
	timer  *time.Timer
	closed bool
}

// New returns a Guard with no override in effect.
func New(cfg Config, log zerolog.Logger) *Guard {
	return &Guard{cfg: cfg, log: log.With().Str("component", "tradinghours").Logger()}
}

// IsConnectionAllowed reports whether logon is currently allowed: the
// configured hour window holds and no override is blocking it.
func (g *Guard) IsConnectionAllowed() bool {
	return g.isConnectionAllowedAt(time.Now())
}

func (g *Guard) isConnectionAllowedAt(now time.Time) bool {
	g.mu.Lock()
	override := g.nextAllowedLogon
	g.mu.Unlock()

	if !override.IsZero() && now.Before(override) {
		return false
	}
	local := now.In(g.cfg.Zone)
	hour := local.Hour()
	return hour >= g.cfg.StartHour && hour < g.cfg.EndHour
}

// MarkNotTradingDay records reason and sets the override to reopen at
// ResumeHour on the next calendar day in the configured zone.
func (g *Guard) MarkNotTradingDay(reason string) {
	now := time.Now().In(g.cfg.Zone)
	tomorrow := now.AddDate(0, 0, 1)
	resume := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), g.cfg.ResumeHour, 0, 0, 0, g.cfg.Zone)

	g.mu.Lock()
	g.nextAllowedLogon = resume
	g.mu.Unlock()

	g.log.Warn().Str("reason", reason).Time("resume_at", resume).Msg("trading halted for the day")
}

// ScheduleResume arranges for callback to fire at the computed
// nextAllowedLogon instant, clearing the override first. A no-op after the
// guard has been shut down. Panics inside callback are caught and logged,
// never propagated.
func (g *Guard) ScheduleResume(callback func()) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	target := g.nextAllowedLogon
	if g.timer != nil {
		g.timer.Stop()
	}
	if target.IsZero() {
		g.mu.Unlock()
		return
	}
	delay := time.Until(target)
	if delay < 0 {
		delay = 0
	}
	g.timer = time.AfterFunc(delay, func() {
		g.mu.Lock()
		g.nextAllowedLogon = time.Time{}
		g.mu.Unlock()
		g.safeInvoke(callback)
	})
	g.mu.Unlock()
}

func (g *Guard) safeInvoke(callback func()) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Interface("panic", r).Msg("resume callback panicked")
		}
	}()
	callback()
}

// GetNextAllowedLogon returns the override instant and true when it is still
// blocking, or the zero value and false otherwise. An override whose instant
// has already passed no longer blocks, even if the resume timer has not yet
// fired to clear it.
func (g *Guard) GetNextAllowedLogon() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.nextAllowedLogon.IsZero() || !time.Now().Before(g.nextAllowedLogon) {
		return time.Time{}, false
	}
	return g.nextAllowedLogon, true
}

// Shutdown stops any pending resume timer; further ScheduleResume calls
// become no-ops.
func (g *Guard) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	if g.timer != nil {
		g.timer.Stop()
	}
}
