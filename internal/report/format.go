// Package report renders simulation results as text, JSON and charts.
package report

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Money formats amount in the currency's own notation, e.g. "$1,234.56"
// or "₩1,235". Unknown codes fall back to two decimals and the code.
func Money(amount float64, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return decimal.NewFromFloat(amount).StringFixed(2) + " " + currency
	}
	minor := decimal.NewFromFloat(amount).Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

// Percent formats an already-scaled percentage with two decimals.
func Percent(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}

// Fraction formats a 0..1 fraction as a percentage.
func Fraction(v float64) string {
	return decimal.NewFromFloat(v).Shift(2).StringFixed(2) + "%"
}

// Number formats v with the given number of decimals.
func Number(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
