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

// Package fixtags holds the FIX 4.2 message types, enumerations, and tag
// numbers used by the order replication engine. It carries only what the
// engine's own messages touch: session admin, order entry, and the
// short-locate quote round trip.
package fixtags

import "github.com/quickfixgo/quickfix"

// --- Message Types (Tag 35) ---
const (
	MsgTypeHeartbeat        = "0"
	MsgTypeLogon            = "A"
	MsgTypeTestRequest      = "1"
	MsgTypeResendRequest    = "2"
	MsgTypeReject           = "3"
	MsgTypeSequenceReset    = "4"
	MsgTypeLogout           = "5"
	MsgTypeNewOrderSingle   = "D"
	MsgTypeOrderCancelRequest = "F"
	MsgTypeOrderCancelReplace = "G"
	MsgTypeOrderStatusRequest = "H"
	MsgTypeExecutionReport  = "8"
	MsgTypeOrderCancelReject = "9"
	MsgTypeQuoteRequest     = "R"
	MsgTypeQuote            = "S"
)

// --- Protocol constants ---
const (
	FixTimeFormat  = "20060102-15:04:05.000"
	BeginStringFIX42 = "FIX.4.2"
	ResetSeqNumFlagYes = "Y"
	GapFillFlagNo  = "N"
)

// --- Side (Tag 54) ---
const (
	SideBuy              = "1"
	SideSell             = "2"
	SideSellShort        = "5"
	SideSellShortExempt  = "6"
)

// --- OrdType (Tag 40) ---
const (
	OrdTypeMarket       = "1"
	OrdTypeLimit        = "2"
	OrdTypeStop         = "3"
	OrdTypeStopLimit    = "4"
	OrdTypeLimitOnClose = "B"
	OrdTypePegged       = "P"
)

// --- TimeInForce (Tag 59) ---
const (
	TimeInForceDay = "0"
	TimeInForceGTC = "1"
	TimeInForceIOC = "3"
	TimeInForceFOK = "4"
	TimeInForceGTD = "6"
)

// --- OrdStatus (Tag 39) ---
const (
	OrdStatusNew             = "0"
	OrdStatusPartiallyFilled = "1"
	OrdStatusFilled          = "2"
	OrdStatusDoneForDay      = "3"
	OrdStatusCanceled        = "4"
	OrdStatusReplaced        = "5"
	OrdStatusPendingCancel   = "6"
	OrdStatusStopped         = "7"
	OrdStatusRejected        = "8"
	OrdStatusSuspended       = "9"
	OrdStatusPendingNew      = "A"
	OrdStatusCalculated      = "B" // locate-confirmed, not a fill status
	OrdStatusExpired         = "C"
	OrdStatusPendingReplace  = "E"
)

// --- ExecType (Tag 150) ---
const (
	ExecTypeNew           = "0"
	ExecTypePartialFill   = "1"
	ExecTypeFill          = "2"
	ExecTypeDone          = "3"
	ExecTypeCanceled      = "4"
	ExecTypeReplaced      = "5"
	ExecTypePendingCancel = "6"
	ExecTypeStopped       = "7"
	ExecTypeRejected      = "8"
	ExecTypePendingNew    = "A"
	ExecTypeCalculated    = "B"
	ExecTypeExpired       = "C"
	ExecTypePendingReplace = "E"
)

// --- HandlInst (Tag 21) ---
const (
	HandlInstAutomatedPrivate = "2"
)

// --- Standard FIX tags used by the engine ---
var (
	TagAccount        = quickfix.Tag(1)
	TagAvgPx          = quickfix.Tag(6)
	TagBeginString    = quickfix.Tag(8)
	TagClOrdID        = quickfix.Tag(11)
	TagCumQty         = quickfix.Tag(14)
	TagExecID         = quickfix.Tag(17)
	TagExecInst       = quickfix.Tag(18)
	TagExecTransType  = quickfix.Tag(20)
	TagHandlInst      = quickfix.Tag(21)
	TagLastPx         = quickfix.Tag(31)
	TagLastShares     = quickfix.Tag(32)
	TagMsgSeqNum      = quickfix.Tag(34)
	TagMsgType        = quickfix.Tag(35)
	TagNewSeqNo       = quickfix.Tag(36)
	TagOrderID        = quickfix.Tag(37)
	TagOrderQty       = quickfix.Tag(38)
	TagOrdStatus      = quickfix.Tag(39)
	TagOrdType        = quickfix.Tag(40)
	TagOrigClOrdID    = quickfix.Tag(41)
	TagPossDupFlag    = quickfix.Tag(43)
	TagPrice          = quickfix.Tag(44)
	TagRefSeqNum      = quickfix.Tag(45)
	TagSenderCompId   = quickfix.Tag(49)
	TagSendingTime    = quickfix.Tag(52)
	TagSide           = quickfix.Tag(54)
	TagSymbol         = quickfix.Tag(55)
	TagTargetCompId   = quickfix.Tag(56)
	TagText           = quickfix.Tag(58)
	TagTimeInForce    = quickfix.Tag(59)
	TagTransactTime   = quickfix.Tag(60)
	TagExDestination  = quickfix.Tag(100)
	TagOrdRejReason   = quickfix.Tag(103)
	TagEncryptMethod  = quickfix.Tag(98)
	TagHeartBtInt     = quickfix.Tag(108)
	TagGapFillFlag    = quickfix.Tag(123)
	TagResetSeqNumFlag = quickfix.Tag(141)
	TagQuoteID        = quickfix.Tag(117)
	TagQuoteReqID     = quickfix.Tag(131)
	TagBidPx          = quickfix.Tag(132)
	TagOfferPx        = quickfix.Tag(133)
	TagBidSize        = quickfix.Tag(134)
	TagOfferSize      = quickfix.Tag(135)
	TagExecType       = quickfix.Tag(150)
	TagLeavesQty      = quickfix.Tag(151)
	TagStopPx         = quickfix.Tag(99)
	TagUsername       = quickfix.Tag(553)
	TagPassword       = quickfix.Tag(554)
)
