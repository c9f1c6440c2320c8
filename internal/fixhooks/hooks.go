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

// Package fixhooks bridges the quickfix Application callbacks into the
// engine's components, enforcing role-specific behaviour: the drop-copy
// acceptor session feeds the order store and replication pool, while the
// order-entry initiator sessions carry the locate round trip and the
// trading-hours control signals.
package fixhooks

import (
	"strings"
	"sync"
	"time"

	"github.com/quickfixgo/quickfix"
	"github.com/rs/zerolog"

	"github.com/syntalon/longvin-trading-sub000/internal/fixtags"
	"github.com/syntalon/longvin-trading-sub000/internal/locate"
	"github.com/syntalon/longvin-trading-sub000/internal/metrics"
	"github.com/syntalon/longvin-trading-sub000/internal/orderstore"
	"github.com/syntalon/longvin-trading-sub000/internal/seqctl"
	"github.com/syntalon/longvin-trading-sub000/internal/sessionreg"
	"github.com/syntalon/longvin-trading-sub000/internal/tradinghours"
)

// Pauser is the slice of the session manager the hooks drive when a
// not-a-trading-day signal arrives or the guard suppresses a logon.
type Pauser interface {
	PauseInitiator(reason string)
	ResumeInitiatorIfPaused() error
}

// Replicator is the slice of the replication pool the drop-copy ingress
// feeds. Submit must never block the codec's I/O goroutine.
type Replicator interface {
	Submit(ev orderstore.ExecutionEvent) bool
}

// SequenceAccess applies sequence-number adjustments through the codec's
// own session API, under its session lock. The live implementation is wired
// by the composition root; tests supply a fake.
type SequenceAccess interface {
	NextTargetSeqNum(sid quickfix.SessionID) int
	SetNextSenderSeqNum(sid quickfix.SessionID, n int) error
	SetNextTargetSeqNum(sid quickfix.SessionID, n int) error
}

// NopSequenceAccess leaves all sequence discipline to the codec's session
// settings (ResetOnLogon on the order-entry sessions, the persistent file
// store on the drop-copy session). Adoption decisions are still logged.
type NopSequenceAccess struct{}

func (NopSequenceAccess) NextTargetSeqNum(quickfix.SessionID) int           { return 0 }
func (NopSequenceAccess) SetNextSenderSeqNum(quickfix.SessionID, int) error { return nil }
func (NopSequenceAccess) SetNextTargetSeqNum(quickfix.SessionID, int) error { return nil }

// Config identifies the drop-copy session and the primary account, plus the
// optional logon credentials for the order-entry sessions.
type Config struct {
	DropCopySenderCompID string
	DropCopyTargetCompID string
	PrimaryAccount       string
	Username             string
	Password             string
}

// App implements quickfix.Application for both transport roles.
type App struct {
	log zerolog.Logger
	cfg Config

	registry *sessionreg.Registry
	seq      *seqctl.Controller
	seqAcc   SequenceAccess
	guard    *tradinghours.Guard
	pauser   Pauser

	store      *orderstore.Store
	repo       orderstore.Repository
	locateSM   *locate.StateMachine
	replicator Replicator
	metrics    *metrics.Metrics

	zone *time.Location

	mu           sync.Mutex
	lastResetDay string // yyyy-mm-dd of the last drop-copy new-day sequence reset
	dropCopySID  quickfix.SessionID
	haveDropCopy bool
}

// AppOption configures an App at construction.
type AppOption func(*App)

func WithSequenceAccess(sa SequenceAccess) AppOption {
	return func(a *App) { a.seqAcc = sa }
}

func WithRepository(repo orderstore.Repository) AppOption {
	return func(a *App) { a.repo = repo }
}

func WithAppMetrics(m *metrics.Metrics) AppOption {
	return func(a *App) { a.metrics = m }
}

func WithZone(zone *time.Location) AppOption {
	return func(a *App) { a.zone = zone }
}

func New(
	cfg Config,
	registry *sessionreg.Registry,
	seq *seqctl.Controller,
	guard *tradinghours.Guard,
	pauser Pauser,
	store *orderstore.Store,
	locateSM *locate.StateMachine,
	replicator Replicator,
	log zerolog.Logger,
	opts ...AppOption,
) *App {
	a := &App{
		log:        log.With().Str("component", "fixhooks").Logger(),
		cfg:        cfg,
		registry:   registry,
		seq:        seq,
		seqAcc:     NopSequenceAccess{},
		guard:      guard,
		pauser:     pauser,
		store:      store,
		locateSM:   locateSM,
		replicator: replicator,
		zone:       time.UTC,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetPauser installs the session manager after construction: the manager
// needs the App to build its transports, so the composition root closes the
// cycle here before anything starts.
func (a *App) SetPauser(p Pauser) {
	a.pauser = p
}

// isDropCopy reports whether sid is the configured drop-copy acceptor
// session, matching either orientation of the comp-id pair.
func (a *App) isDropCopy(sid quickfix.SessionID) bool {
	if a.cfg.DropCopySenderCompID == "" && a.cfg.DropCopyTargetCompID == "" {
		return false
	}
	forward := strings.EqualFold(sid.SenderCompID, a.cfg.DropCopySenderCompID) &&
		strings.EqualFold(sid.TargetCompID, a.cfg.DropCopyTargetCompID)
	reverse := strings.EqualFold(sid.SenderCompID, a.cfg.DropCopyTargetCompID) &&
		strings.EqualFold(sid.TargetCompID, a.cfg.DropCopySenderCompID)
	return forward || reverse
}

func (a *App) roleOf(sid quickfix.SessionID) sessionreg.Role {
	if a.isDropCopy(sid) {
		return sessionreg.RoleAcceptor
	}
	return sessionreg.RoleInitiator
}

// OnCreate runs the drop-copy new-day check: the first session creation of
// each calendar day (configured zone) resets both sequence numbers to 1.
func (a *App) OnCreate(sid quickfix.SessionID) {
	if !a.isDropCopy(sid) {
		return
	}
	a.mu.Lock()
	a.dropCopySID = sid
	a.haveDropCopy = true
	a.mu.Unlock()
	a.newDayResetIfNeeded(sid, time.Now())
}

func (a *App) newDayResetIfNeeded(sid quickfix.SessionID, now time.Time) {
	day := now.In(a.zone).Format("2006-01-02")
	a.mu.Lock()
	if a.lastResetDay == day {
		a.mu.Unlock()
		return
	}
	a.lastResetDay = day
	a.mu.Unlock()
	a.applyBothSeqNums(sid, 1, 1)
	a.log.Info().Str("day", day).Msg("drop-copy sequence numbers reset for new day")
}

// NightlySequenceReset is the scheduled entry point for the nightly
// drop-copy reset; a no-op until the drop-copy session has been created.
func (a *App) NightlySequenceReset() {
	a.mu.Lock()
	sid, ok := a.dropCopySID, a.haveDropCopy
	a.mu.Unlock()
	if !ok {
		return
	}
	a.newDayResetIfNeeded(sid, time.Now())
}

func (a *App) OnLogon(sid quickfix.SessionID) {
	role := a.roleOf(sid)
	a.registry.Register(role, sid)
	a.registry.MarkLoggedOn(role, sid)
	a.log.Info().Str("session", sid.String()).Bool("drop_copy", role == sessionreg.RoleAcceptor).Msg("session logged on")
}

func (a *App) OnLogout(sid quickfix.SessionID) {
	role := a.roleOf(sid)
	a.registry.MarkLoggedOut(role, sid)
	a.registry.Unregister(role, sid)
	a.log.Info().Str("session", sid.String()).Msg("session logged out")
}

// ToAdmin decorates the outbound Logon on order-entry sessions. The
// suppress decision cannot stop the codec's send from inside this callback,
// so a disallowed window pauses the whole initiator transport instead,
// which stops reconnect attempts at the source.
func (a *App) ToAdmin(msg *quickfix.Message, sid quickfix.SessionID) {
	in := classify(msg)
	if in.kind != kindLogon || a.isDropCopy(sid) {
		return
	}
	decision := a.initiatorLogonOut(msg)
	if decision.Suppressed && a.pauser != nil {
		a.log.Warn().Str("session", sid.String()).Str("reason", decision.Reason).Msg("suppressing order-entry logon")
		a.pauser.PauseInitiator(decision.Reason)
	}
}

// initiatorLogonOut applies the outbound-logon policy and returns the send
// decision: ResetSeqNumFlag=Y always, credentials when configured, suppress
// when the trading-hours guard disallows the connection.
func (a *App) initiatorLogonOut(msg *quickfix.Message) seqctl.SendDecision {
	msg.Body.SetField(fixtags.TagResetSeqNumFlag, quickfix.FIXString(fixtags.ResetSeqNumFlagYes))
	if a.cfg.Username != "" {
		msg.Body.SetField(fixtags.TagUsername, quickfix.FIXString(a.cfg.Username))
	}
	if a.cfg.Password != "" {
		msg.Body.SetField(fixtags.TagPassword, quickfix.FIXString(a.cfg.Password))
	}
	return a.seq.InitiatorLogonOut(a.guard.IsConnectionAllowed())
}

func (a *App) FromAdmin(msg *quickfix.Message, sid quickfix.SessionID) quickfix.MessageRejectError {
	switch in := classify(msg); in.kind {
	case kindLogon:
		a.adminLogonIn(msg, sid)
	case kindLogout:
		a.adminLogoutIn(msg, sid)
	case kindSequenceReset:
		a.adminSequenceReset(msg, sid)
	}
	return nil
}

func (a *App) adminLogonIn(msg *quickfix.Message, sid quickfix.SessionID) {
	incomingStr, _ := msg.Header.GetString(fixtags.TagMsgSeqNum)
	incoming := atoiOrZero(incomingStr)
	if incoming == 0 {
		return
	}
	if a.isDropCopy(sid) {
		senderSeq, targetSeq := a.seq.DropCopyLogonIn(incoming)
		a.applyBothSeqNums(sid, senderSeq, targetSeq)
		return
	}
	expected := a.seqAcc.NextTargetSeqNum(sid)
	if expected == 0 {
		return
	}
	if adopt, shouldAdopt := a.seq.InitiatorLogonIn(expected, incoming); shouldAdopt {
		if err := a.seqAcc.SetNextTargetSeqNum(sid, adopt); err != nil {
			a.log.Error().Err(err).Str("session", sid.String()).Msg("failed to adopt peer sequence number")
			return
		}
		a.countResync()
	}
}

func (a *App) adminLogoutIn(msg *quickfix.Message, sid quickfix.SessionID) {
	text := bodyString(msg, fixtags.TagText)
	if text == "" {
		return
	}
	sig := a.seq.LogoutText(text)

	if sig.NotTradingDay && !a.isDropCopy(sid) {
		a.guard.MarkNotTradingDay(sig.Reason)
		if a.pauser != nil {
			a.pauser.PauseInitiator(sig.Reason)
			a.guard.ScheduleResume(func() {
				if err := a.pauser.ResumeInitiatorIfPaused(); err != nil {
					a.log.Error().Err(err).Msg("failed to resume initiator after not-trading-day")
				}
			})
		}
	}
	if sig.HasSequence {
		if err := a.seqAcc.SetNextSenderSeqNum(sid, sig.AdoptSequence); err != nil {
			a.log.Error().Err(err).Str("session", sid.String()).Msg("failed to adopt logout-embedded sequence number")
			return
		}
		a.countResync()
	}
}

func (a *App) adminSequenceReset(msg *quickfix.Message, sid quickfix.SessionID) {
	if !a.isDropCopy(sid) {
		return // standard codec handling on order-entry sessions
	}
	gapFill := bodyString(msg, fixtags.TagGapFillFlag) == "Y"
	if a.seq.SequenceResetBothSides(gapFill) {
		a.applyBothSeqNums(sid, 1, 1)
		a.log.Info().Str("session", sid.String()).Msg("hard sequence reset, both sides back to 1")
	}
}

func (a *App) applyBothSeqNums(sid quickfix.SessionID, senderSeq, targetSeq int) {
	if err := a.seqAcc.SetNextSenderSeqNum(sid, senderSeq); err != nil {
		a.log.Error().Err(err).Str("session", sid.String()).Msg("failed to set sender sequence number")
	}
	if err := a.seqAcc.SetNextTargetSeqNum(sid, targetSeq); err != nil {
		a.log.Error().Err(err).Str("session", sid.String()).Msg("failed to set target sequence number")
	}
}

func (a *App) ToApp(*quickfix.Message, quickfix.SessionID) error { return nil }

// FromApp routes application messages by role: the drop-copy acceptor feeds
// the order store and the replication pool, the order-entry initiators feed
// the locate state machine.
func (a *App) FromApp(msg *quickfix.Message, sid quickfix.SessionID) quickfix.MessageRejectError {
	switch in := classify(msg); in.kind {
	case kindExecutionReport:
		return a.handleExecutionReport(msg, sid)
	case kindQuoteResponse:
		a.handleQuoteResponse(msg, sid)
	default:
		a.log.Debug().Str("msg_type", in.msgType).Str("session", sid.String()).Msg("unhandled application message")
	}
	return nil
}

func (a *App) handleExecutionReport(msg *quickfix.Message, sid quickfix.SessionID) quickfix.MessageRejectError {
	ev := parseExecutionReport(msg, sid)

	if !a.isDropCopy(sid) {
		// Order-entry side: the only execution report the engine acts on is
		// the locate confirmation (OrdStatus=B), correlated by the
		// QuoteReqID echoed as ClOrdID.
		if ev.OrdStatus == fixtags.OrdStatusCalculated {
			quoteReqID := bodyString(msg, fixtags.TagQuoteReqID)
			if quoteReqID == "" {
				quoteReqID = ev.ClOrdID
			}
			if err := a.locateSM.ProcessLocateConfirmation(quoteReqID); err != nil {
				a.log.Warn().Err(err).Str("quote_req_id", quoteReqID).Msg("unmatched locate confirmation")
			}
			return nil
		}
		a.log.Debug().Str("cl_ord_id", ev.ClOrdID).Str("ord_status", ev.OrdStatus).Msg("shadow execution report")
		return nil
	}

	isPrimary := a.cfg.PrimaryAccount != "" && strings.EqualFold(ev.Account, a.cfg.PrimaryAccount)
	if _, err := a.store.RecordEvent(ev, isPrimary, a.repo); err != nil {
		// Refusing the message keeps the codec from acknowledging it, so a
		// resend on reconnect can recover the event.
		a.log.Error().Err(err).Str("exec_id", ev.ExecID).Msg("failed to persist execution event")
		return quickfix.NewMessageRejectError("persistence failure", 0, nil)
	}
	if isPrimary {
		a.replicator.Submit(ev)
	}
	return nil
}

func (a *App) handleQuoteResponse(msg *quickfix.Message, sid quickfix.SessionID) {
	quoteReqID := bodyString(msg, fixtags.TagQuoteReqID)
	if quoteReqID == "" {
		a.log.Warn().Str("session", sid.String()).Msg("quote response without QuoteReqID, ignoring")
		return
	}
	offerPx := bodyDecimal(msg, fixtags.TagOfferPx)
	offerSize := bodyDecimal(msg, fixtags.TagOfferSize)
	text := bodyString(msg, fixtags.TagText)

	if err := a.locateSM.ProcessQuoteResponse(sid, quoteReqID, offerPx, offerSize, text); err != nil {
		a.log.Warn().Err(err).Str("quote_req_id", quoteReqID).Msg("failed to process quote response")
	}
}

func (a *App) countResync() {
	if a.metrics != nil {
		a.metrics.SequenceResyncs.Inc()
	}
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
