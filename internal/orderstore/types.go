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

// Package orderstore records the engine's audit trail of execution events
// and derives current order and order-group state from them.
package orderstore

import (
	"time"

	"github.com/quickfixgo/quickfix"
	"github.com/shopspring/decimal"

	"github.com/syntalon/longvin-trading-sub000/internal/fixtags"
)

type Side string

const (
	SideBuy             Side = "Buy"
	SideSell            Side = "Sell"
	SideSellShort       Side = "SellShort"
	SideSellShortExempt Side = "SellShortExempt"
)

// IsShort reports whether side requires a short-locate negotiation. Per the
// open question on SellShortExempt (see DESIGN.md), both short variants
// follow the same locate flow.
func (s Side) IsShort() bool {
	return s == SideSellShort || s == SideSellShortExempt
}

// FIXCode renders s as the wire-level FIX Side (tag 54) value.
func (s Side) FIXCode() string {
	switch s {
	case SideBuy:
		return fixtags.SideBuy
	case SideSell:
		return fixtags.SideSell
	case SideSellShort:
		return fixtags.SideSellShort
	case SideSellShortExempt:
		return fixtags.SideSellShortExempt
	default:
		return fixtags.SideBuy
	}
}

// SideFromFIXCode parses a wire-level Side (tag 54) value.
func SideFromFIXCode(code string) Side {
	switch code {
	case fixtags.SideBuy:
		return SideBuy
	case fixtags.SideSell:
		return SideSell
	case fixtags.SideSellShort:
		return SideSellShort
	case fixtags.SideSellShortExempt:
		return SideSellShortExempt
	default:
		return SideBuy
	}
}

type ExecType string

const (
	ExecTypeNew             ExecType = "New"
	ExecTypePartialFill     ExecType = "PartialFill"
	ExecTypeFill            ExecType = "Fill"
	ExecTypeCanceled        ExecType = "Canceled"
	ExecTypeReplaced        ExecType = "Replaced"
	ExecTypeLocateConfirmed ExecType = "LocateConfirmed"
	ExecTypeRejected        ExecType = "Rejected"
)

// ExecutionEvent is an immutable, append-only record of a single inbound
// execution report (or equivalent) observed on the drop-copy session, for
// any account.
type ExecutionEvent struct {
	ExecID      string // unique
	OrderID     string
	ClOrdID     string
	OrigClOrdID string
	ExecType    ExecType
	OrdStatus   string
	Symbol      string
	Side        Side
	OrdType     string
	TimeInForce string
	OrderQty    decimal.Decimal
	LastQty     decimal.Decimal
	LastPx      decimal.Decimal
	CumQty      decimal.Decimal
	LeavesQty   decimal.Decimal
	AvgPx       decimal.Decimal
	Price       decimal.Decimal
	StopPx      decimal.Decimal
	Account     string
	TransactTime time.Time
	ReceivedAt   time.Time
	SessionID    quickfix.SessionID
	RawMessage   string
}

// Order is the derived, mutable state for one order (primary or shadow).
type Order struct {
	OrderID      string
	ClOrdID      string
	OrigClOrdID  string
	Account      string
	OrderGroupID string

	IsPrimary bool
	IsShadow  bool
	IsDraft   bool // shadow only: allocated but not yet sent

	Symbol      string
	Side        Side
	OrdType     string
	TimeInForce string
	OrdStatus   string
	ExecType    ExecType
	OrderQty    decimal.Decimal
	CumQty      decimal.Decimal
	LeavesQty   decimal.Decimal
	AvgPx       decimal.Decimal
	LastPx      decimal.Decimal
	LastQty     decimal.Decimal
	Price       decimal.Decimal
	StopPx      decimal.Decimal

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderGroup ties a primary order to the set of shadow orders mirroring it.
type OrderGroup struct {
	StrategyKey    string
	PrimaryOrderID string
	ShadowOrderIDs []string
	TargetQty      decimal.Decimal
	Archived       bool
}
