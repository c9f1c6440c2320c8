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

// Package decimalx centralizes the fixed-scale decimal conventions shared by
// every component that touches quantities and prices.
package decimalx

import "github.com/shopspring/decimal"

// Scale is the fixed scale applied to every monetary/quantity field.
const Scale = 8

// Zero is the canonical zero value (decimal.Zero, exponent 0).
var Zero = decimal.Zero

// Floor8 truncates d to Scale decimal places, rounding toward zero.
func Floor8(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(Scale)
}

// Parse parses s as a decimal, returning Zero for an empty string.
func Parse(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// MustParse parses s, panicking on malformed input. Reserved for constants
// and tests where the input is known good.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String renders d at Scale decimal places for wire transmission.
func String(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
