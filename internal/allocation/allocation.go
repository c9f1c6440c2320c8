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

// Package allocation computes per-shadow-account quantities from an
// approved short-locate, conserving exactly the approved quantity available
// to shadows after the primary's own fill is set aside.
package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/syntalon/longvin-trading-sub000/internal/decimalx"
)

// Draft is the minimal shape the engine needs: an identity to key the
// result by, and the desired (requested) quantity for that shadow.
type Draft struct {
	ID      string
	Desired decimal.Decimal
}

// Allocate computes s_i for each draft given the primary order's quantity
// primaryQty and the total approved locate quantity approvedQty, following
// the proportional floor-with-carry rule:
//
//   - shadowAvail = max(0, approvedQty - primaryQty)
//   - if shadowAvail == 0 or the desired total is 0: every shadow gets 0
//   - if shadowAvail >= desired total: every shadow gets its desired quantity
//   - otherwise: s_i = floor8(shadowAvail * D_i / sum(D)) for all but the
//     last draft (in input order); the last draft receives the remainder,
//     guaranteeing sum(s_i) == shadowAvail exactly.
//
// The result is keyed by draft ID; input order only decides which draft is
// last and takes the remainder.
func Allocate(primaryQty, approvedQty decimal.Decimal, drafts []Draft) map[string]decimal.Decimal {
	result := make(map[string]decimal.Decimal, len(drafts))
	if len(drafts) == 0 {
		return result
	}

	shadowAvail := approvedQty.Sub(primaryQty)
	if shadowAvail.IsNegative() {
		shadowAvail = decimalx.Zero
	}

	total := decimalx.Zero
	for _, d := range drafts {
		total = total.Add(d.Desired)
	}

	if shadowAvail.IsZero() || total.IsZero() {
		for _, d := range drafts {
			result[d.ID] = decimalx.Zero
		}
		return result
	}

	if shadowAvail.GreaterThanOrEqual(total) {
		for _, d := range drafts {
			result[d.ID] = d.Desired
		}
		return result
	}

	allocated := decimalx.Zero
	for i, d := range drafts {
		if i == len(drafts)-1 {
			remainder := shadowAvail.Sub(allocated)
			if remainder.IsNegative() {
				remainder = decimalx.Zero
			}
			result[d.ID] = remainder
			continue
		}
		share := decimalx.Floor8(shadowAvail.Mul(d.Desired).Div(total))
		result[d.ID] = share
		allocated = allocated.Add(share)
	}
	return result
}
