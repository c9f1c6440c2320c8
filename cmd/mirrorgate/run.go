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

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/quickfixgo/quickfix"
	storefile "github.com/quickfixgo/quickfix/store/file"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/syntalon/longvin-trading-sub000/internal/cache"
	"github.com/syntalon/longvin-trading-sub000/internal/clordid"
	"github.com/syntalon/longvin-trading-sub000/internal/config"
	"github.com/syntalon/longvin-trading-sub000/internal/eventsink"
	"github.com/syntalon/longvin-trading-sub000/internal/fixhooks"
	"github.com/syntalon/longvin-trading-sub000/internal/locate"
	"github.com/syntalon/longvin-trading-sub000/internal/metrics"
	"github.com/syntalon/longvin-trading-sub000/internal/orderstore"
	"github.com/syntalon/longvin-trading-sub000/internal/persistence"
	"github.com/syntalon/longvin-trading-sub000/internal/replication"
	"github.com/syntalon/longvin-trading-sub000/internal/seqctl"
	"github.com/syntalon/longvin-trading-sub000/internal/sessionmgr"
	"github.com/syntalon/longvin-trading-sub000/internal/sessionreg"
	"github.com/syntalon/longvin-trading-sub000/internal/tradinghours"
)

// run is the composition root: it wires every component, starts the
// transports and scheduled loops, and blocks until a termination signal.
func run(cfg *config.Config, log zerolog.Logger) error {
	if !cfg.FixEnabled {
		return fmt.Errorf("trading.fix.enabled is false, nothing to run")
	}

	zone, err := time.LoadLocation(cfg.TradingZone)
	if err != nil {
		return fmt.Errorf("load trading zone %q: %w", cfg.TradingZone, err)
	}

	db, err := persistence.Open(cfg.SqlitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	accounts := cache.NewAccountCache(db.LoadAccounts)
	copyRules := cache.NewCopyRuleCache(db.LoadCopyRules)
	routes := cache.NewRouteCache(db.LoadRoutes)
	for name, refresh := range map[string]func() error{
		"accounts": accounts.Refresh, "copy rules": copyRules.Refresh, "routes": routes.Refresh,
	} {
		if err := refresh(); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	primary, ok := accounts.FindPrimary()
	if !ok {
		return fmt.Errorf("no primary account configured in storage")
	}

	guard := tradinghours.New(tradinghours.Config{
		StartHour:  cfg.TradingStartHour,
		EndHour:    cfg.TradingEndHour,
		ResumeHour: cfg.NonTradingResumeHour,
		Zone:       zone,
	}, log)
	defer guard.Shutdown()

	registry := sessionreg.New(cfg.PrimarySession)
	store := orderstore.New(log)
	coordinator := locate.New(log)
	generator := clordid.NewGenerator(cfg.ClOrdIDPrefix)
	locateSM := locate.NewStateMachine(coordinator, generator, log,
		locate.WithRepository(db), locate.WithTimeout(cfg.LocateTimeout))

	m := metrics.New(prometheus.NewRegistry())

	var sink eventsink.Sink = eventsink.NopSink{}
	if cfg.NatsURL != "" {
		natsSink, err := eventsink.NewNATSSink(cfg.NatsURL, "mirrorgate")
		if err != nil {
			return err
		}
		defer natsSink.Close()
		sink = natsSink
	}

	engine := replication.New(store, accounts, copyRules, routes, registry,
		generator, locateSM, primary.ID, primary.Number, cfg.PrimarySession, log,
		replication.WithSink(sink), replication.WithMetrics(m))
	pool := replication.NewPool(engine, log, replication.WithPoolMetrics(m))

	app := fixhooks.New(
		fixhooks.Config{
			DropCopySenderCompID: cfg.DropCopySenderCompID,
			DropCopyTargetCompID: cfg.DropCopyTargetCompID,
			PrimaryAccount:       primary.Number,
			Username:             cfg.FixUsername,
			Password:             cfg.FixPassword,
		},
		registry, seqctl.New(log), guard, nil, store, locateSM, pool, log,
		fixhooks.WithRepository(db), fixhooks.WithAppMetrics(m), fixhooks.WithZone(zone),
	)

	raw, err := os.ReadFile(cfg.FixConfigPath)
	if err != nil {
		return fmt.Errorf("read FIX settings %s: %w", cfg.FixConfigPath, err)
	}
	settings, err := quickfix.ParseSettings(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse FIX settings: %w", err)
	}

	// Drop-copy sequence numbers survive restarts via the file store; the
	// order-entry side resets on every logon and lives in memory.
	manager, err := sessionmgr.New(app, bytes.NewReader(raw),
		storefile.NewStoreFactory(settings),
		quickfix.NewMemoryStoreFactory(),
		quickfix.NewNullLogFactory(), log)
	if err != nil {
		return err
	}
	app.SetPauser(manager)

	pool.Start()
	if err := manager.Start(); err != nil {
		return err
	}
	defer manager.Stop()

	evaluateWindow := func() {
		if guard.IsConnectionAllowed() {
			if err := manager.ResumeInitiatorIfPaused(); err != nil {
				log.Error().Err(err).Msg("failed to resume initiator")
			}
			return
		}
		manager.PauseInitiator("outside trading window")
	}
	evaluateWindow()

	scheduler := cron.New(cron.WithLocation(zone))
	if _, err := scheduler.AddFunc(fmt.Sprintf("0 %d * * *", cfg.TradingStartHour), evaluateWindow); err != nil {
		return fmt.Errorf("schedule trading-start check: %w", err)
	}
	if _, err := scheduler.AddFunc(fmt.Sprintf("0 %d * * *", cfg.TradingEndHour), evaluateWindow); err != nil {
		return fmt.Errorf("schedule trading-end check: %w", err)
	}
	if _, err := scheduler.AddFunc("@every 10s", func() {
		if n := locateSM.SweepExpired(time.Now()); n > 0 {
			log.Warn().Int("expired", n).Msg("locate requests expired")
		}
	}); err != nil {
		return fmt.Errorf("schedule locate sweep: %w", err)
	}
	if _, err := scheduler.AddFunc("0 0 * * *", app.NightlySequenceReset); err != nil {
		return fmt.Errorf("schedule nightly sequence reset: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	log.Info().Str("primary", primary.Number).Int("shadows", len(accounts.FindActiveShadowAccounts())).
		Msg("mirrorgate running")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("shutting down")
	manager.Stop()
	pool.Shutdown()
	coordinator.ShutdownAll()
	return nil
}
