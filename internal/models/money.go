package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is the only currency the EcoCash USD wallet and the payment-agent account settle in.
const Currency = "USD"

// MoneyPlaces is the number of decimal places every persisted amount is quantised to.
const MoneyPlaces int32 = 2

var (
	// Cent is the smallest representable currency unit.
	Cent = decimal.New(1, -MoneyPlaces)

	// BalanceTolerance is the slack allowed by the balance-continuity check.
	BalanceTolerance = decimal.New(1, -MoneyPlaces)

	hundred = decimal.NewFromInt(100)
)

// Quantize truncates an amount to two decimal places. Truncation never rounds a charge up,
// so a customer is never overcharged by a cent.
func Quantize(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(MoneyPlaces)
}

// Percent returns rate% of amount, unquantised.
func Percent(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

// ParseAmount parses an amount as it appears in provider messages ("1,250.50", "USD 10",
// "$5.5") and quantises it.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.ToUpper(s), Currency)
	s = strings.TrimSuffix(s, Currency)
	s = strings.NewReplacer(",", "", "$", "", " ", "").Replace(s)
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount '%s': %w", raw, err)
	}
	return Quantize(d), nil
}

// NullAmount wraps a present amount.
func NullAmount(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// FormatUSD renders an amount the way the provider writes it, e.g. "USD 10.00".
func FormatUSD(d decimal.Decimal) string {
	return fmt.Sprintf("%s %s", Currency, d.StringFixed(MoneyPlaces))
}

// WithinTolerance reports whether |a-b| <= BalanceTolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(BalanceTolerance)
}
