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

// Package persistence is the durable-storage side of the engine's
// repository contracts: audit-trail writes for orderstore.Store and
// locate.StateMachine, and the loaders internal/cache refreshes from.
// Schema details beyond the columns the engine itself reads and writes are
// out of scope; this package only owns what it writes.
package persistence

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/syntalon/longvin-trading-sub000/internal/cache"
	"github.com/syntalon/longvin-trading-sub000/internal/locate"
	"github.com/syntalon/longvin-trading-sub000/internal/orderstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS execution_events (
	exec_id TEXT PRIMARY KEY,
	order_id TEXT,
	cl_ord_id TEXT,
	orig_cl_ord_id TEXT,
	exec_type TEXT,
	ord_status TEXT,
	symbol TEXT,
	side TEXT,
	ord_type TEXT,
	time_in_force TEXT,
	order_qty TEXT,
	last_qty TEXT,
	last_px TEXT,
	cum_qty TEXT,
	leaves_qty TEXT,
	avg_px TEXT,
	price TEXT,
	stop_px TEXT,
	account TEXT,
	transact_time DATETIME,
	received_at DATETIME,
	sender_comp_id TEXT,
	target_comp_id TEXT,
	raw_message TEXT
);

CREATE TABLE IF NOT EXISTS orders (
	order_id TEXT,
	cl_ord_id TEXT PRIMARY KEY,
	orig_cl_ord_id TEXT,
	account TEXT,
	order_group_id TEXT,
	is_primary BOOLEAN,
	is_shadow BOOLEAN,
	is_draft BOOLEAN,
	symbol TEXT,
	side TEXT,
	ord_type TEXT,
	time_in_force TEXT,
	ord_status TEXT,
	exec_type TEXT,
	order_qty TEXT,
	cum_qty TEXT,
	leaves_qty TEXT,
	avg_px TEXT,
	version INTEGER,
	created_at DATETIME,
	updated_at DATETIME
);

CREATE TABLE IF NOT EXISTS order_groups (
	strategy_key TEXT PRIMARY KEY,
	primary_order_id TEXT,
	shadow_order_ids TEXT,
	target_qty TEXT,
	archived BOOLEAN
);

CREATE TABLE IF NOT EXISTS locate_requests (
	id TEXT,
	primary_order_id TEXT,
	account TEXT,
	symbol TEXT,
	quantity TEXT,
	status TEXT,
	quote_req_id TEXT,
	locate_route TEXT,
	offer_px TEXT,
	offer_size TEXT,
	approved_qty TEXT,
	response_text TEXT,
	created_at DATETIME,
	updated_at DATETIME
);

CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	number TEXT,
	type TEXT,
	strategy_key TEXT
);

CREATE TABLE IF NOT EXISTS copy_rules (
	primary_account_id TEXT,
	shadow_account_id TEXT,
	ratio TEXT,
	min_qty TEXT,
	max_qty TEXT,
	order_type_filter TEXT,
	copy_route TEXT,
	locate_route TEXT,
	priority INTEGER,
	active BOOLEAN
);

CREATE TABLE IF NOT EXISTS routes (
	name TEXT PRIMARY KEY,
	locate_type TEXT,
	destination TEXT
);
`

// DB is the sqlite-backed implementation of every repository contract the
// engine consumes: orderstore.Repository, locate.Repository, and the
// cache package's loader functions.
type DB struct {
	db *sql.DB

	stmtSaveEvent *sql.Stmt
	stmtSaveOrder *sql.Stmt
	stmtSaveGroup *sql.Stmt
	stmtSaveLocate *sql.Stmt
}

// Open opens (creating if absent) the sqlite database at path and prepares
// the write statements the engine uses on every hot-path call.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	d := &DB{db: sqlDB}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if d.stmtSaveEvent, err = sqlDB.Prepare(insertEventQuery); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("prepare event statement: %w", err)
	}
	if d.stmtSaveOrder, err = sqlDB.Prepare(upsertOrderQuery); err != nil {
		_ = d.stmtSaveEvent.Close()
		_ = sqlDB.Close()
		return nil, fmt.Errorf("prepare order statement: %w", err)
	}
	if d.stmtSaveGroup, err = sqlDB.Prepare(upsertGroupQuery); err != nil {
		_ = d.stmtSaveEvent.Close()
		_ = d.stmtSaveOrder.Close()
		_ = sqlDB.Close()
		return nil, fmt.Errorf("prepare group statement: %w", err)
	}
	if d.stmtSaveLocate, err = sqlDB.Prepare(insertLocateQuery); err != nil {
		_ = d.stmtSaveEvent.Close()
		_ = d.stmtSaveOrder.Close()
		_ = d.stmtSaveGroup.Close()
		_ = sqlDB.Close()
		return nil, fmt.Errorf("prepare locate statement: %w", err)
	}
	return d, nil
}

func (d *DB) Close() error {
	_ = d.stmtSaveEvent.Close()
	_ = d.stmtSaveOrder.Close()
	_ = d.stmtSaveGroup.Close()
	_ = d.stmtSaveLocate.Close()
	return d.db.Close()
}

const insertEventQuery = `INSERT OR IGNORE INTO execution_events (
	exec_id, order_id, cl_ord_id, orig_cl_ord_id, exec_type, ord_status, symbol, side,
	ord_type, time_in_force, order_qty, last_qty, last_px, cum_qty, leaves_qty, avg_px,
	price, stop_px, account, transact_time, received_at, sender_comp_id, target_comp_id, raw_message
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

// SaveEvent implements orderstore.Repository.
func (d *DB) SaveEvent(e *orderstore.ExecutionEvent) error {
	_, err := d.stmtSaveEvent.Exec(
		e.ExecID, e.OrderID, e.ClOrdID, e.OrigClOrdID, string(e.ExecType), e.OrdStatus, e.Symbol, string(e.Side),
		e.OrdType, e.TimeInForce, str(e.OrderQty), str(e.LastQty), str(e.LastPx), str(e.CumQty), str(e.LeavesQty), str(e.AvgPx),
		str(e.Price), str(e.StopPx), e.Account, e.TransactTime, e.ReceivedAt, e.SessionID.SenderCompID, e.SessionID.TargetCompID, e.RawMessage,
	)
	return err
}

const upsertOrderQuery = `INSERT INTO orders (
	order_id, cl_ord_id, orig_cl_ord_id, account, order_group_id, is_primary, is_shadow, is_draft,
	symbol, side, ord_type, time_in_force, ord_status, exec_type, order_qty, cum_qty, leaves_qty, avg_px,
	version, created_at, updated_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(cl_ord_id) DO UPDATE SET
	order_id=excluded.order_id, orig_cl_ord_id=excluded.orig_cl_ord_id, account=excluded.account,
	order_group_id=excluded.order_group_id, is_primary=excluded.is_primary, is_shadow=excluded.is_shadow,
	is_draft=excluded.is_draft, symbol=excluded.symbol, side=excluded.side, ord_type=excluded.ord_type,
	time_in_force=excluded.time_in_force, ord_status=excluded.ord_status, exec_type=excluded.exec_type,
	order_qty=excluded.order_qty, cum_qty=excluded.cum_qty, leaves_qty=excluded.leaves_qty, avg_px=excluded.avg_px,
	version=excluded.version, updated_at=excluded.updated_at`

// UpsertOrder implements orderstore.Repository.
func (d *DB) UpsertOrder(o *orderstore.Order) error {
	key := o.ClOrdID
	if key == "" {
		key = o.OrderID
	}
	_, err := d.stmtSaveOrder.Exec(
		o.OrderID, key, o.OrigClOrdID, o.Account, o.OrderGroupID, o.IsPrimary, o.IsShadow, o.IsDraft,
		o.Symbol, string(o.Side), o.OrdType, o.TimeInForce, o.OrdStatus, string(o.ExecType),
		str(o.OrderQty), str(o.CumQty), str(o.LeavesQty), str(o.AvgPx),
		o.Version, o.CreatedAt, o.UpdatedAt,
	)
	return err
}

const upsertGroupQuery = `INSERT INTO order_groups (strategy_key, primary_order_id, shadow_order_ids, target_qty, archived)
VALUES (?,?,?,?,?)
ON CONFLICT(strategy_key) DO UPDATE SET
	primary_order_id=excluded.primary_order_id, shadow_order_ids=excluded.shadow_order_ids,
	target_qty=excluded.target_qty, archived=excluded.archived`

// LinkGroup implements orderstore.Repository.
func (d *DB) LinkGroup(g *orderstore.OrderGroup) error {
	shadows := ""
	for i, id := range g.ShadowOrderIDs {
		if i > 0 {
			shadows += ","
		}
		shadows += id
	}
	_, err := d.stmtSaveGroup.Exec(g.StrategyKey, g.PrimaryOrderID, shadows, str(g.TargetQty), g.Archived)
	return err
}

const insertLocateQuery = `INSERT INTO locate_requests (
	id, primary_order_id, account, symbol, quantity, status, quote_req_id, locate_route,
	offer_px, offer_size, approved_qty, response_text, created_at, updated_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

// SaveRequest implements locate.Repository. Every transition is appended
// rather than updated in place, preserving the full transition history.
func (d *DB) SaveRequest(r *locate.Request) error {
	_, err := d.stmtSaveLocate.Exec(
		r.ID, r.PrimaryOrderID, r.Account, r.Symbol, str(r.Quantity), string(r.Status), r.QuoteReqID, r.LocateRoute,
		str(r.OfferPx), str(r.OfferSize), str(r.ApprovedQty), r.ResponseText, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

// LoadAccounts implements cache.AccountLoader.
func (d *DB) LoadAccounts() ([]cache.Account, error) {
	rows, err := d.db.Query(`SELECT id, number, type, strategy_key FROM accounts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cache.Account
	for rows.Next() {
		var a cache.Account
		if err := rows.Scan(&a.ID, &a.Number, &a.Type, &a.StrategyKey); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LoadCopyRules implements cache.CopyRuleLoader.
func (d *DB) LoadCopyRules() ([]cache.CopyRule, error) {
	rows, err := d.db.Query(`SELECT primary_account_id, shadow_account_id, ratio, min_qty, max_qty,
		order_type_filter, copy_route, locate_route, priority, active FROM copy_rules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cache.CopyRule
	for rows.Next() {
		var r cache.CopyRule
		var ratio, minQty, maxQty string
		if err := rows.Scan(&r.PrimaryAccountID, &r.ShadowAccountID, &ratio, &minQty, &maxQty,
			&r.OrderTypeFilter, &r.CopyRoute, &r.LocateRoute, &r.Priority, &r.Active); err != nil {
			return nil, err
		}
		r.Ratio = parseOrZero(ratio)
		r.MinQty = parseOrZero(minQty)
		r.MaxQty = parseOrZero(maxQty)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadRoutes implements cache.RouteLoader.
func (d *DB) LoadRoutes() ([]cache.Route, error) {
	rows, err := d.db.Query(`SELECT name, locate_type, destination FROM routes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cache.Route
	for rows.Next() {
		var r cache.Route
		if err := rows.Scan(&r.Name, &r.LocateType, &r.Destination); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentLocateRequests returns the newest limit locate-request transitions,
// most recent first. Backs the locate-status CLI command.
func (d *DB) RecentLocateRequests(limit int) ([]locate.Request, error) {
	rows, err := d.db.Query(`SELECT id, primary_order_id, account, symbol, quantity, status,
		quote_req_id, locate_route, offer_px, offer_size, approved_qty, response_text, created_at, updated_at
		FROM locate_requests ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []locate.Request
	for rows.Next() {
		var r locate.Request
		var status, quantity, offerPx, offerSize, approvedQty string
		if err := rows.Scan(&r.ID, &r.PrimaryOrderID, &r.Account, &r.Symbol, &quantity, &status,
			&r.QuoteReqID, &r.LocateRoute, &offerPx, &offerSize, &approvedQty, &r.ResponseText,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Status = locate.Status(status)
		r.Quantity = parseOrZero(quantity)
		r.OfferPx = parseOrZero(offerPx)
		r.OfferSize = parseOrZero(offerSize)
		r.ApprovedQty = parseOrZero(approvedQty)
		out = append(out, r)
	}
	return out, rows.Err()
}

func str(d decimal.Decimal) string {
	if d.IsZero() && d.Exponent() == 0 {
		return "0"
	}
	return d.String()
}

func parseOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
