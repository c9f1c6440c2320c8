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

// Package config loads the gateway's application-level configuration keys
// with their documented defaults baked in.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved application configuration.
type Config struct {
	FixEnabled    bool
	FixConfigPath string

	PrimarySession  string
	ShadowSessions  []string
	ShadowAccounts  map[string]string
	ClOrdIDPrefix   string

	DropCopySenderCompID string
	DropCopyTargetCompID string

	FixUsername string
	FixPassword string

	TradingStartHour     int
	TradingEndHour       int
	NonTradingResumeHour int
	TradingZone          string

	LocateTimeout time.Duration

	SqlitePath string
	NatsURL    string
}

// Load reads configPath (if non-empty) plus environment overrides with the
// prefix MIRRORGATE_, applying the documented defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MIRRORGATE")
	v.AutomaticEnv()

	v.SetDefault("trading.fix.enabled", false)
	v.SetDefault("trading.fix.config-path", "fix-settings.cfg")
	v.SetDefault("trading.fix.cl-ord-id-prefix", "MIRROR-")
	v.SetDefault("trading.fix.shadow-sessions", []string{})
	v.SetDefault("trading.fix.shadow-accounts", map[string]string{})
	v.SetDefault("trading.initiator.trading-start-hour", 4)
	v.SetDefault("trading.initiator.trading-end-hour", 20)
	v.SetDefault("trading.initiator.non-trading-resume-hour", 6)
	v.SetDefault("trading.initiator.trading-zone", "America/New_York")
	v.SetDefault("locate.timeout-seconds", 30)
	v.SetDefault("persistence.sqlite-path", "mirrorgate.db")
	v.SetDefault("eventsink.nats-url", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{
		FixEnabled:           v.GetBool("trading.fix.enabled"),
		FixConfigPath:        v.GetString("trading.fix.config-path"),
		PrimarySession:       v.GetString("trading.fix.primary-session"),
		ShadowSessions:       v.GetStringSlice("trading.fix.shadow-sessions"),
		ShadowAccounts:       v.GetStringMapString("trading.fix.shadow-accounts"),
		ClOrdIDPrefix:        v.GetString("trading.fix.cl-ord-id-prefix"),
		DropCopySenderCompID: v.GetString("trading.fix.drop-copy-session.sender-comp-id"),
		DropCopyTargetCompID: v.GetString("trading.fix.drop-copy-session.target-comp-id"),
		FixUsername:          v.GetString("trading.fix.username"),
		FixPassword:          v.GetString("trading.fix.password"),
		TradingStartHour:     v.GetInt("trading.initiator.trading-start-hour"),
		TradingEndHour:       v.GetInt("trading.initiator.trading-end-hour"),
		NonTradingResumeHour: v.GetInt("trading.initiator.non-trading-resume-hour"),
		TradingZone:          v.GetString("trading.initiator.trading-zone"),
		LocateTimeout:        time.Duration(v.GetInt("locate.timeout-seconds")) * time.Second,
		SqlitePath:           v.GetString("persistence.sqlite-path"),
		NatsURL:              v.GetString("eventsink.nats-url"),
	}
	if cfg.TradingStartHour < 0 || cfg.TradingEndHour > 24 || cfg.TradingStartHour >= cfg.TradingEndHour {
		return nil, fmt.Errorf("invalid trading window [%d,%d)", cfg.TradingStartHour, cfg.TradingEndHour)
	}
	return cfg, nil
}
