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

package fixhooks

import (
	"time"

	"github.com/quickfixgo/quickfix"
	"github.com/shopspring/decimal"

	"github.com/syntalon/longvin-trading-sub000/internal/clordid"
	"github.com/syntalon/longvin-trading-sub000/internal/decimalx"
	"github.com/syntalon/longvin-trading-sub000/internal/fixtags"
	"github.com/syntalon/longvin-trading-sub000/internal/orderstore"
)

// inboundKind is the tagged variant the per-MsgType ingress dispatch
// switches on. The MsgType is extracted from the header exactly once.
type inboundKind int

const (
	kindOther inboundKind = iota
	kindLogon
	kindLogout
	kindHeartbeat
	kindTestRequest
	kindSequenceReset
	kindExecutionReport
	kindCancelRequest
	kindReplaceRequest
	kindQuoteResponse
)

type inbound struct {
	kind    inboundKind
	msgType string
}

func classify(msg *quickfix.Message) inbound {
	t, _ := msg.Header.GetString(fixtags.TagMsgType)
	switch t {
	case fixtags.MsgTypeLogon:
		return inbound{kindLogon, t}
	case fixtags.MsgTypeLogout:
		return inbound{kindLogout, t}
	case fixtags.MsgTypeHeartbeat:
		return inbound{kindHeartbeat, t}
	case fixtags.MsgTypeTestRequest:
		return inbound{kindTestRequest, t}
	case fixtags.MsgTypeSequenceReset:
		return inbound{kindSequenceReset, t}
	case fixtags.MsgTypeExecutionReport:
		return inbound{kindExecutionReport, t}
	case fixtags.MsgTypeOrderCancelRequest:
		return inbound{kindCancelRequest, t}
	case fixtags.MsgTypeOrderCancelReplace:
		return inbound{kindReplaceRequest, t}
	case fixtags.MsgTypeQuote:
		return inbound{kindQuoteResponse, t}
	default:
		return inbound{kindOther, t}
	}
}

func bodyString(msg *quickfix.Message, tag quickfix.Tag) string {
	s, _ := msg.Body.GetString(tag)
	return s
}

func bodyDecimal(msg *quickfix.Message, tag quickfix.Tag) decimal.Decimal {
	d, err := decimalx.Parse(bodyString(msg, tag))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func execTypeFromFIX(code string) orderstore.ExecType {
	switch code {
	case fixtags.ExecTypeNew:
		return orderstore.ExecTypeNew
	case fixtags.ExecTypePartialFill:
		return orderstore.ExecTypePartialFill
	case fixtags.ExecTypeFill:
		return orderstore.ExecTypeFill
	case fixtags.ExecTypeCanceled:
		return orderstore.ExecTypeCanceled
	case fixtags.ExecTypeReplaced:
		return orderstore.ExecTypeReplaced
	case fixtags.ExecTypeCalculated:
		return orderstore.ExecTypeLocateConfirmed
	case fixtags.ExecTypeRejected:
		return orderstore.ExecTypeRejected
	default:
		return orderstore.ExecType(code)
	}
}

// parseExecutionReport lifts an inbound ExecutionReport (MsgType=8) into the
// engine's event record. Missing numeric fields parse to zero; a missing
// TransactTime falls back to receipt time; a missing ExecID gets a generated
// one so the event log's dedup key is never empty.
func parseExecutionReport(msg *quickfix.Message, sid quickfix.SessionID) orderstore.ExecutionEvent {
	now := time.Now()
	transact := now
	if raw := bodyString(msg, fixtags.TagTransactTime); raw != "" {
		if t, err := time.Parse(fixtags.FixTimeFormat, raw); err == nil {
			transact = t
		}
	}
	execID := bodyString(msg, fixtags.TagExecID)
	if execID == "" {
		execID = clordid.NewExecID()
	}
	return orderstore.ExecutionEvent{
		ExecID:       execID,
		OrderID:      bodyString(msg, fixtags.TagOrderID),
		ClOrdID:      bodyString(msg, fixtags.TagClOrdID),
		OrigClOrdID:  bodyString(msg, fixtags.TagOrigClOrdID),
		ExecType:     execTypeFromFIX(bodyString(msg, fixtags.TagExecType)),
		OrdStatus:    bodyString(msg, fixtags.TagOrdStatus),
		Symbol:       bodyString(msg, fixtags.TagSymbol),
		Side:         orderstore.SideFromFIXCode(bodyString(msg, fixtags.TagSide)),
		OrdType:      bodyString(msg, fixtags.TagOrdType),
		TimeInForce:  bodyString(msg, fixtags.TagTimeInForce),
		OrderQty:     bodyDecimal(msg, fixtags.TagOrderQty),
		LastQty:      bodyDecimal(msg, fixtags.TagLastShares),
		LastPx:       bodyDecimal(msg, fixtags.TagLastPx),
		CumQty:       bodyDecimal(msg, fixtags.TagCumQty),
		LeavesQty:    bodyDecimal(msg, fixtags.TagLeavesQty),
		AvgPx:        bodyDecimal(msg, fixtags.TagAvgPx),
		Price:        bodyDecimal(msg, fixtags.TagPrice),
		StopPx:       bodyDecimal(msg, fixtags.TagStopPx),
		Account:      bodyString(msg, fixtags.TagAccount),
		TransactTime: transact,
		ReceivedAt:   now,
		SessionID:    sid,
		RawMessage:   msg.String(),
	}
}
