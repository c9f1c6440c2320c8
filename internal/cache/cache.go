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

// Package cache holds the in-memory, refresh-on-demand resolution of
// accounts, copy rules, and routes backed by persistent storage. Every
// cache follows the same single-writer/many-readers discipline: a refresh
// builds a brand new immutable snapshot and swaps it into an atomic
// pointer, so readers never observe a partially built snapshot and never
// block on a refresh in progress.
package cache

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// Account is the metadata the engine resolves accounts by.
type Account struct {
	ID          string
	Number      string
	Type        string // "Primary" or "Shadow"
	StrategyKey string
}

// AccountLoader fetches the full account set from persistent storage.
type AccountLoader func() ([]Account, error)

// AccountCache indexes accounts by number and by id and exposes the
// primary/shadow query helpers the replication engine needs.
type AccountCache struct {
	load AccountLoader
	snap atomic.Pointer[accountSnapshot]
}

type accountSnapshot struct {
	byNumber map[string]Account
	byID     map[string]Account
	shadows  []Account
	primary  *Account
}

func NewAccountCache(load AccountLoader) *AccountCache {
	c := &AccountCache{load: load}
	c.snap.Store(&accountSnapshot{byNumber: map[string]Account{}, byID: map[string]Account{}})
	return c
}

// Refresh reloads the account set and swaps in a new immutable snapshot.
func (c *AccountCache) Refresh() error {
	accounts, err := c.load()
	if err != nil {
		return err
	}
	next := &accountSnapshot{
		byNumber: make(map[string]Account, len(accounts)),
		byID:     make(map[string]Account, len(accounts)),
	}
	for _, a := range accounts {
		next.byNumber[a.Number] = a
		next.byID[a.ID] = a
		switch a.Type {
		case "Shadow":
			next.shadows = append(next.shadows, a)
		case "Primary":
			primary := a
			next.primary = &primary
		}
	}
	c.snap.Store(next)
	return nil
}

func (c *AccountCache) ByNumber(number string) (Account, bool) {
	s := c.snap.Load()
	a, ok := s.byNumber[number]
	return a, ok
}

func (c *AccountCache) ByID(id string) (Account, bool) {
	s := c.snap.Load()
	a, ok := s.byID[id]
	return a, ok
}

// FindActiveShadowAccounts returns the current shadow-account snapshot.
func (c *AccountCache) FindActiveShadowAccounts() []Account {
	s := c.snap.Load()
	out := make([]Account, len(s.shadows))
	copy(out, s.shadows)
	return out
}

// FindPrimary returns the configured primary account, if the cache has one.
func (c *AccountCache) FindPrimary() (Account, bool) {
	s := c.snap.Load()
	if s.primary == nil {
		return Account{}, false
	}
	return *s.primary, true
}

// CopyRule governs how a primary account's orders replicate onto one
// shadow account.
type CopyRule struct {
	PrimaryAccountID string
	ShadowAccountID  string
	Ratio            decimal.Decimal
	MinQty           decimal.Decimal
	MaxQty           decimal.Decimal
	OrderTypeFilter  string // empty means "no filter"
	CopyRoute        string
	LocateRoute      string
	Priority         int
	Active           bool
}

// CopyRuleLoader fetches the full copy-rule set from persistent storage.
type CopyRuleLoader func() ([]CopyRule, error)

// CopyRuleCache indexes copy rules by primary account (sorted by priority
// ascending) and by (primary, shadow) pair.
type CopyRuleCache struct {
	load CopyRuleLoader
	snap atomic.Pointer[copyRuleSnapshot]
}

type copyRuleSnapshot struct {
	byPrimary map[string][]CopyRule
	byPair    map[string]CopyRule
}

func NewCopyRuleCache(load CopyRuleLoader) *CopyRuleCache {
	c := &CopyRuleCache{load: load}
	c.snap.Store(&copyRuleSnapshot{byPrimary: map[string][]CopyRule{}, byPair: map[string]CopyRule{}})
	return c
}

func (c *CopyRuleCache) Refresh() error {
	rules, err := c.load()
	if err != nil {
		return err
	}
	next := &copyRuleSnapshot{
		byPrimary: make(map[string][]CopyRule),
		byPair:    make(map[string]CopyRule, len(rules)),
	}
	for _, r := range rules {
		if !r.Active {
			continue
		}
		next.byPrimary[r.PrimaryAccountID] = append(next.byPrimary[r.PrimaryAccountID], r)
		next.byPair[pairKey(r.PrimaryAccountID, r.ShadowAccountID)] = r
	}
	for _, group := range next.byPrimary {
		sort.Slice(group, func(i, j int) bool { return group[i].Priority < group[j].Priority })
	}
	c.snap.Store(next)
	return nil
}

func pairKey(primary, shadow string) string { return primary + "\x00" + shadow }

// ForPrimary returns the active rules for primaryAccountID sorted by
// priority ascending, filtered by orderType and qty when those are set.
func (c *CopyRuleCache) ForPrimary(primaryAccountID, orderType string, qty decimal.Decimal) []CopyRule {
	s := c.snap.Load()
	rules := s.byPrimary[primaryAccountID]
	out := make([]CopyRule, 0, len(rules))
	for _, r := range rules {
		if r.OrderTypeFilter != "" && r.OrderTypeFilter != orderType {
			continue
		}
		if !r.MinQty.IsZero() && qty.LessThan(r.MinQty) {
			continue
		}
		if !r.MaxQty.IsZero() && qty.GreaterThan(r.MaxQty) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ForPair returns the rule governing a specific (primary, shadow) pairing.
func (c *CopyRuleCache) ForPair(primaryAccountID, shadowAccountID string) (CopyRule, bool) {
	s := c.snap.Load()
	r, ok := s.byPair[pairKey(primaryAccountID, shadowAccountID)]
	return r, ok
}

// Route is the metadata the engine resolves a route name to.
type Route struct {
	Name        string
	LocateType  string
	Destination string
}

// RouteLoader fetches the full route set from persistent storage.
type RouteLoader func() ([]Route, error)

// RouteCache indexes routes by upper-cased name.
type RouteCache struct {
	load RouteLoader
	snap atomic.Pointer[map[string]Route]
}

func NewRouteCache(load RouteLoader) *RouteCache {
	c := &RouteCache{load: load}
	empty := map[string]Route{}
	c.snap.Store(&empty)
	return c
}

func (c *RouteCache) Refresh() error {
	routes, err := c.load()
	if err != nil {
		return err
	}
	next := make(map[string]Route, len(routes))
	for _, r := range routes {
		next[strings.ToUpper(r.Name)] = r
	}
	c.snap.Store(&next)
	return nil
}

func (c *RouteCache) ByName(name string) (Route, bool) {
	s := *c.snap.Load()
	r, ok := s[strings.ToUpper(name)]
	return r, ok
}
