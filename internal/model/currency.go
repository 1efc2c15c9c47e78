package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency describes a unit that bank balances and rewards are denominated in.
type Currency struct {
	Name           string `json:"name"`
	Plural         string `json:"plural"`
	Symbol         string `json:"symbol"`
	SymbolAsPrefix bool   `json:"symbol_as_prefix"`
	Value          int64  `json:"value"`          // relative worth, used for conversions
	DecimalPlaces  int32  `json:"decimal_places"` // precision amounts are rounded to
}

// Round rounds an amount to the currency precision.
func (c Currency) Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(c.DecimalPlaces)
}

// Format renders an amount with the currency symbol, e.g. "$10.00" or "10g".
func (c Currency) Format(amount decimal.Decimal) string {
	s := amount.StringFixed(c.DecimalPlaces)
	if c.Symbol == "" {
		name := c.Plural
		if amount.Equal(decimal.NewFromInt(1)) || name == "" {
			name = c.Name
		}
		return fmt.Sprintf("%s %s", s, name)
	}
	if c.SymbolAsPrefix {
		return c.Symbol + s
	}
	return s + c.Symbol
}
