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

package replication

import (
	"strconv"
	"strings"
	"time"

	"github.com/quickfixgo/quickfix"
	"github.com/shopspring/decimal"

	"github.com/syntalon/longvin-trading-sub000/internal/decimalx"
	"github.com/syntalon/longvin-trading-sub000/internal/fixtags"
	"github.com/syntalon/longvin-trading-sub000/internal/orderstore"
)

func buildHeader(msg *quickfix.Message, msgType string, sessionID quickfix.SessionID) {
	h := &msg.Header
	h.SetField(fixtags.TagBeginString, quickfix.FIXString(sessionID.BeginString))
	h.SetField(fixtags.TagMsgType, quickfix.FIXString(msgType))
	h.SetField(fixtags.TagSenderCompId, quickfix.FIXString(sessionID.SenderCompID))
	h.SetField(fixtags.TagTargetCompId, quickfix.FIXString(sessionID.TargetCompID))
}

// resolveOrdType supplies the fallback when an event lacks an explicit
// OrdType: Price set -> Limit; StopPx set -> Stop; else Market.
func resolveOrdType(ordType string, price, stopPx decimal.Decimal) string {
	if ordType != "" {
		return ordType
	}
	if !price.IsZero() {
		return fixtags.OrdTypeLimit
	}
	if !stopPx.IsZero() {
		return fixtags.OrdTypeStop
	}
	return fixtags.OrdTypeMarket
}

func wantsPrice(ordType string) bool {
	switch ordType {
	case fixtags.OrdTypeLimit, fixtags.OrdTypeStopLimit, fixtags.OrdTypePegged, fixtags.OrdTypeLimitOnClose:
		return true
	default:
		return false
	}
}

// rawTagValue scans a raw FIX message for tag's value. Fields are delimited
// by SOH; '|' is tolerated because captured messages are often stored with
// it substituted. Returns "" when the tag is absent.
func rawTagValue(raw string, tag quickfix.Tag) string {
	needle := strconv.Itoa(int(tag)) + "="
	for i := 0; i+len(needle) <= len(raw); {
		idx := strings.Index(raw[i:], needle)
		if idx < 0 {
			return ""
		}
		pos := i + idx
		if pos == 0 || raw[pos-1] == '\x01' || raw[pos-1] == '|' {
			rest := raw[pos+len(needle):]
			if end := strings.IndexAny(rest, "\x01|"); end >= 0 {
				return rest[:end]
			}
			return rest
		}
		i = pos + len(needle)
	}
	return ""
}

func wantsStopPx(ordType string) bool {
	switch ordType {
	case fixtags.OrdTypeStop, fixtags.OrdTypeStopLimit:
		return true
	default:
		return false
	}
}

// newOrderParams is what buildNewOrderSingle needs to build a mirrored New.
type newOrderParams struct {
	ClOrdID       string
	Symbol        string
	Side          orderstore.Side
	OrdType       string
	OrderQty      decimal.Decimal
	Price         decimal.Decimal
	StopPx        decimal.Decimal
	TimeInForce   string
	Account       string
	ExDestination string
}

func buildNewOrderSingle(p newOrderParams, sessionID quickfix.SessionID) *quickfix.Message {
	msg := quickfix.NewMessage()
	buildHeader(msg, fixtags.MsgTypeNewOrderSingle, sessionID)

	body := &msg.Body
	body.SetField(fixtags.TagClOrdID, quickfix.FIXString(p.ClOrdID))
	body.SetField(fixtags.TagHandlInst, quickfix.FIXString(fixtags.HandlInstAutomatedPrivate))
	body.SetField(fixtags.TagSymbol, quickfix.FIXString(p.Symbol))
	body.SetField(fixtags.TagSide, quickfix.FIXString(p.Side.FIXCode()))
	body.SetField(fixtags.TagTransactTime, quickfix.FIXString(time.Now().UTC().Format(fixtags.FixTimeFormat)))
	body.SetField(fixtags.TagOrdType, quickfix.FIXString(p.OrdType))
	body.SetField(fixtags.TagOrderQty, quickfix.FIXString(decimalx.String(p.OrderQty)))

	tif := p.TimeInForce
	if tif == "" {
		tif = fixtags.TimeInForceDay
	}
	body.SetField(fixtags.TagTimeInForce, quickfix.FIXString(tif))
	body.SetField(fixtags.TagAccount, quickfix.FIXString(p.Account))

	if wantsPrice(p.OrdType) {
		body.SetField(fixtags.TagPrice, quickfix.FIXString(decimalx.String(p.Price)))
	}
	if wantsStopPx(p.OrdType) {
		body.SetField(fixtags.TagStopPx, quickfix.FIXString(decimalx.String(p.StopPx)))
	}
	if p.ExDestination != "" {
		body.SetField(fixtags.TagExDestination, quickfix.FIXString(p.ExDestination))
	}
	return msg
}

type replaceParams struct {
	ClOrdID     string
	OrigClOrdID string
	Symbol      string
	Side        orderstore.Side
	OrdType     string
	OrderQty    decimal.Decimal
	Price       decimal.Decimal
	StopPx      decimal.Decimal
	TimeInForce string
	Account     string
}

func buildCancelReplaceRequest(p replaceParams, sessionID quickfix.SessionID) *quickfix.Message {
	msg := quickfix.NewMessage()
	buildHeader(msg, fixtags.MsgTypeOrderCancelReplace, sessionID)

	body := &msg.Body
	body.SetField(fixtags.TagClOrdID, quickfix.FIXString(p.ClOrdID))
	body.SetField(fixtags.TagOrigClOrdID, quickfix.FIXString(p.OrigClOrdID))
	body.SetField(fixtags.TagHandlInst, quickfix.FIXString(fixtags.HandlInstAutomatedPrivate))
	body.SetField(fixtags.TagSymbol, quickfix.FIXString(p.Symbol))
	body.SetField(fixtags.TagSide, quickfix.FIXString(p.Side.FIXCode()))
	body.SetField(fixtags.TagOrdType, quickfix.FIXString(p.OrdType))
	body.SetField(fixtags.TagOrderQty, quickfix.FIXString(decimalx.String(p.OrderQty)))
	body.SetField(fixtags.TagTransactTime, quickfix.FIXString(time.Now().UTC().Format(fixtags.FixTimeFormat)))

	tif := p.TimeInForce
	if tif == "" {
		tif = fixtags.TimeInForceDay
	}
	body.SetField(fixtags.TagTimeInForce, quickfix.FIXString(tif))
	body.SetField(fixtags.TagAccount, quickfix.FIXString(p.Account))

	if wantsPrice(p.OrdType) {
		body.SetField(fixtags.TagPrice, quickfix.FIXString(decimalx.String(p.Price)))
	}
	if wantsStopPx(p.OrdType) {
		body.SetField(fixtags.TagStopPx, quickfix.FIXString(decimalx.String(p.StopPx)))
	}
	return msg
}

type cancelParams struct {
	ClOrdID     string
	OrigClOrdID string
	Symbol      string
	Side        orderstore.Side
	Account     string
}

func buildCancelRequest(p cancelParams, sessionID quickfix.SessionID) *quickfix.Message {
	msg := quickfix.NewMessage()
	buildHeader(msg, fixtags.MsgTypeOrderCancelRequest, sessionID)

	body := &msg.Body
	body.SetField(fixtags.TagClOrdID, quickfix.FIXString(p.ClOrdID))
	body.SetField(fixtags.TagOrigClOrdID, quickfix.FIXString(p.OrigClOrdID))
	body.SetField(fixtags.TagSymbol, quickfix.FIXString(p.Symbol))
	body.SetField(fixtags.TagSide, quickfix.FIXString(p.Side.FIXCode()))
	body.SetField(fixtags.TagTransactTime, quickfix.FIXString(time.Now().UTC().Format(fixtags.FixTimeFormat)))
	body.SetField(fixtags.TagAccount, quickfix.FIXString(p.Account))
	return msg
}
