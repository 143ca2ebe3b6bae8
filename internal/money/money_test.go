package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
		ok    bool
	}{
		{"plain number", 1000.0, "1000", true},
		{"int", 250, "250", true},
		{"decimal string", "1234.56", "1234.56", true},
		{"comma decimal", "1234,56", "1234.56", true},
		{"grouping spaces", "1 234,56", "1234.56", true},
		{"nbsp grouping", "1 234,56", "1234.56", true},
		{"ruble glyph", "2500 ₽", "2500", true},
		{"dollar prefix", "$99.90", "99.9", true},
		{"embedded iso code", "1234 RUB", "1234", true},
		{"thousands comma with dot", "1,234.56", "1234.56", true},
		{"nil", nil, "0", false},
		{"empty string", "", "0", false},
		{"garbage", "abc", "0", false},
		{"negative", "-5", "0", false},
		{"negative float", -5.0, "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			if ok != tt.ok {
				t.Fatalf("Parse(%v) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if !ok {
				return
			}
			if got.String() != tt.want {
				t.Errorf("Parse(%v) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestTotal(t *testing.T) {
	// items [{price:1000, qty:2}, {price:500, qty:1}] must total 2500
	// regardless of any client-supplied total
	lines := []Line{
		{Price: 1000.0, Quantity: 2},
		{Price: 500.0, Quantity: 1},
	}
	got := Total(lines, "RUB")
	if !got.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("Total = %s, want 2500", got)
	}
}

func TestTotalLocaleStrings(t *testing.T) {
	lines := []Line{
		{Price: "1 000,50 ₽", Quantity: "2"},
		{Price: "499,50", Quantity: nil}, // missing qty counts as 1
	}
	got := Total(lines, "RUB")
	if !got.Equal(decimal.NewFromFloat(2500.50)) {
		t.Fatalf("Total = %s, want 2500.5", got)
	}
}

func TestTotalUnparseablePriceCountsAsZero(t *testing.T) {
	lines := []Line{
		{Price: "n/a", Quantity: 3},
		{Price: 100.0, Quantity: 1},
	}
	got := Total(lines, "RUB")
	if !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("Total = %s, want 100", got)
	}
}

func TestTotalRoundHalfEven(t *testing.T) {
	// 3 × 1.115 = 3.345 → banker's rounding to 3.34
	lines := []Line{{Price: "1.115", Quantity: 3}}
	got := Total(lines, "USD")
	if got.String() != "3.34" {
		t.Fatalf("Total = %s, want 3.34", got)
	}
}

func TestTolerance(t *testing.T) {
	if !Tolerance("JPY").IsZero() {
		t.Error("JPY tolerance must be zero")
	}
	if Tolerance("RUB").String() != "0.01" {
		t.Errorf("RUB tolerance = %s, want 0.01", Tolerance("RUB"))
	}
}

func TestWithin(t *testing.T) {
	a := decimal.NewFromInt(2500)
	if !Within(a, decimal.RequireFromString("2500.00"), "RUB") {
		t.Error("2500 vs 2500.00 must match")
	}
	if !Within(a, decimal.RequireFromString("2500.01"), "RUB") {
		t.Error("one minor unit must be tolerated for RUB")
	}
	if Within(a, decimal.RequireFromString("2400.00"), "RUB") {
		t.Error("2500 vs 2400.00 must not match")
	}
	if Within(decimal.NewFromInt(100), decimal.RequireFromString("100.4"), "JPY") {
		t.Error("JPY must use zero tolerance")
	}
}
