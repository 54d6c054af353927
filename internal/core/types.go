// internal/core/types.go
package core

import (
	"sort"
	"time"
)

// DateFormat is the wire format for calendar dates.
const DateFormat = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// OHLCV represents a candlestick/bar
type OHLCV struct {
	Symbol   string
	Interval string // "1d"
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	Time     time.Time
}

// PriceSeries is an ordered daily bar history in the asset's native currency.
type PriceSeries struct {
	Symbol   string
	Currency string
	Bars     []OHLCV
}

// Len returns the number of bars.
func (s PriceSeries) Len() int { return len(s.Bars) }

// Dates returns the trading calendar of the series.
func (s PriceSeries) Dates() []time.Time {
	dates := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		dates[i] = Day(b.Time)
	}
	return dates
}

// Between returns the bars whose date falls inside [start, end].
func (s PriceSeries) Between(start, end time.Time) PriceSeries {
	start, end = Day(start), Day(end)
	out := PriceSeries{Symbol: s.Symbol, Currency: s.Currency}
	for _, b := range s.Bars {
		d := Day(b.Time)
		if d.Before(start) || d.After(end) {
			continue
		}
		out.Bars = append(out.Bars, b)
	}
	return out
}

// Sort orders bars by date in place.
func (s PriceSeries) Sort() {
	sort.SliceStable(s.Bars, func(i, j int) bool { return s.Bars[i].Time.Before(s.Bars[j].Time) })
}

// CurrencyPair names an exchange rate: one unit of Base costs Rate units of Quote.
type CurrencyPair struct {
	Base  string
	Quote string
}

// String formats the pair as "BASE/QUOTE".
func (p CurrencyPair) String() string { return p.Base + "/" + p.Quote }

// Inverse swaps base and quote.
func (p CurrencyPair) Inverse() CurrencyPair { return CurrencyPair{Base: p.Quote, Quote: p.Base} }

// Rate is a single dated exchange rate observation.
type Rate struct {
	Time time.Time
	Rate float64
}

// FxSeries is an ordered daily rate history for one currency pair.
type FxSeries struct {
	Pair  CurrencyPair
	Rates []Rate
}

// Len returns the number of observations.
func (s FxSeries) Len() int { return len(s.Rates) }

// Sort orders rates by date in place.
func (s FxSeries) Sort() {
	sort.SliceStable(s.Rates, func(i, j int) bool { return s.Rates[i].Time.Before(s.Rates[j].Time) })
}
