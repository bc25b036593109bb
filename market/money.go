package market

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency describes how minor units are displayed.
// Exponent is the number of minor-unit digits (0 for KSh, 2 for cents).
type Currency struct {
	Label    string
	Exponent int32
}

// DefaultCurrency matches the marketplace's Kenyan shilling labelling.
var DefaultCurrency = Currency{Label: "KSh", Exponent: 0}

// Decimal converts minor units to an exact major-unit decimal.
func (c Currency) Decimal(m Money) decimal.Decimal {
	return decimal.New(int64(m), -c.Exponent)
}

// Format renders an amount with the fixed suffix label, e.g. "50 KSh".
func (c Currency) Format(m Money) string {
	s := c.Decimal(m).StringFixed(c.Exponent)
	if c.Label == "" {
		return s
	}
	return s + " " + c.Label
}

// ParseMoney parses a major-unit string ("50", "12.50") into minor units.
// Values with more precision than the currency allows are rejected.
func (c Currency) ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, ErrInvalidAmount
	}
	minor := d.Shift(c.Exponent)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, ErrInvalidAmount
	}
	return Money(minor.IntPart()), nil
}
