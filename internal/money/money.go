// Package money normalizes the heterogeneous numeric representations seen
// at the API boundary (locale-formatted strings, currency glyphs, missing
// fields) into canonical decimal amounts, and computes order totals.
package money

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnits lists exceptions to the 2-decimal default.
var minorUnits = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"ISK": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
}

// MinorUnits returns the number of decimal places of the currency's minor
// unit. Unknown currencies default to 2.
func MinorUnits(currency string) int32 {
	if u, ok := minorUnits[strings.ToUpper(currency)]; ok {
		return u
	}
	return 2
}

// Tolerance is the accepted difference when comparing a gateway-reported
// amount against a stored total: zero for integer-minor-unit currencies,
// one minor unit otherwise.
func Tolerance(currency string) decimal.Decimal {
	u := MinorUnits(currency)
	if u == 0 {
		return decimal.Zero
	}
	return decimal.New(1, -u)
}

// Round rounds to the currency's minor unit using banker's rounding.
func Round(d decimal.Decimal, currency string) decimal.Decimal {
	return d.RoundBank(MinorUnits(currency))
}

// Within reports whether a and b differ by at most the currency tolerance.
func Within(a, b decimal.Decimal, currency string) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance(currency))
}

var amountStripper = strings.NewReplacer(
	" ", "", // nbsp
	" ", "", // narrow nbsp
	" ", "", // thin space
	" ", "",
	"₽", "", "$", "", "€", "", "£", "", "¥", "", "₴", "", "₸", "",
)

// Parse converts an arbitrary input into a finite non-negative decimal.
// Strings may carry grouping spaces, currency glyphs, embedded ISO codes
// and comma decimal separators. Absent or unparseable input returns
// ok=false; callers must fall back, never substitute zero.
func Parse(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		if n.IsNegative() {
			return decimal.Zero, false
		}
		return n, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		return Parse(float64(n))
	case int:
		return Parse(int64(n))
	case int32:
		return Parse(int64(n))
	case int64:
		if n < 0 {
			return decimal.Zero, false
		}
		return decimal.NewFromInt(n), true
	case json.Number:
		return parseString(n.String())
	case string:
		return parseString(n)
	default:
		return decimal.Zero, false
	}
}

func parseString(s string) (decimal.Decimal, bool) {
	s = amountStripper.Replace(strings.TrimSpace(s))
	// drop embedded ISO codes and any other letters ("1234RUB")
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	s = b.String()
	if s == "" {
		return decimal.Zero, false
	}
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			// both present: comma is a thousands separator
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

// Line is one order position as seen by the total calculator.
type Line struct {
	Price    any
	Quantity any
}

// Total computes Σ price×quantity over the lines, rounded half-even to the
// currency's minor unit. Unparseable prices count as zero and unparseable
// quantities as one, matching how partially filled orders are healed
// rather than rejected.
func Total(lines []Line, currency string) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		price, ok := Parse(l.Price)
		if !ok {
			continue
		}
		qty, ok := Parse(l.Quantity)
		if !ok {
			qty = decimal.NewFromInt(1)
		}
		sum = sum.Add(price.Mul(qty))
	}
	return Round(sum, currency)
}
