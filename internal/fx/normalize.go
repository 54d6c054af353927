package fx

import (
	"fmt"
	"sort"
	"time"

	"github.com/newthinker/portsim/internal/core"
)

// DefaultLookbackDays is how far before the first trading day an FX
// observation may lie and still seed the conversion.
const DefaultLookbackDays = 30

// Normalizer converts native-currency price series into a reporting currency.
type Normalizer struct {
	LookbackDays int
}

// ToReportingCurrency converts series using the default lookback.
func ToReportingCurrency(series core.PriceSeries, rates core.FxSeries, reporting string) (core.PriceSeries, error) {
	return Normalizer{LookbackDays: DefaultLookbackDays}.Convert(series, rates, reporting)
}

// Convert reindexes rates onto the trading calendar of series (forward fill,
// then back fill of leading gaps) and converts every bar. A series already
// in the reporting currency is returned unchanged.
func (n Normalizer) Convert(series core.PriceSeries, rates core.FxSeries, reporting string) (core.PriceSeries, error) {
	if series.Currency == reporting || series.Len() == 0 {
		return series, nil
	}

	var multiply bool
	switch {
	case rates.Pair.Base == series.Currency && rates.Pair.Quote == reporting:
		multiply = true
	case rates.Pair.Base == reporting && rates.Pair.Quote == series.Currency:
		multiply = false
	default:
		return core.PriceSeries{}, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("pair %s cannot convert %s to %s", rates.Pair, series.Currency, reporting))
	}

	dates := series.Dates()
	window := n.window(rates, dates[0], dates[len(dates)-1])
	if len(window) == 0 {
		return core.PriceSeries{}, core.WrapError(core.ErrDataUnavailable,
			fmt.Errorf("%s between %s and %s", rates.Pair, dates[0].Format(core.DateFormat), dates[len(dates)-1].Format(core.DateFormat)))
	}

	aligned := Align(window, dates)
	out := core.PriceSeries{Symbol: series.Symbol, Currency: reporting, Bars: make([]core.OHLCV, len(series.Bars))}
	for i, b := range series.Bars {
		f := aligned[i]
		if !multiply {
			f = 1 / f
		}
		b.Open *= f
		b.High *= f
		b.Low *= f
		b.Close *= f
		out.Bars[i] = b
	}
	return out, nil
}

// window returns the sorted, positive observations in [first-lookback, last].
func (n Normalizer) window(rates core.FxSeries, first, last time.Time) []core.Rate {
	from := first.AddDate(0, 0, -n.LookbackDays)
	var out []core.Rate
	for _, r := range rates.Rates {
		d := core.Day(r.Time)
		if r.Rate <= 0 || d.Before(from) || d.After(last) {
			continue
		}
		out = append(out, core.Rate{Time: d, Rate: r.Rate})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// Align returns one rate per date: the latest observation on or before the
// date, or the earliest observation when none precedes it. rates must be
// sorted and non-empty.
func Align(rates []core.Rate, dates []time.Time) []float64 {
	out := make([]float64, len(dates))
	j := -1
	for i, d := range dates {
		for j+1 < len(rates) && !rates[j+1].Time.After(d) {
			j++
		}
		if j < 0 {
			out[i] = rates[0].Rate
			continue
		}
		out[i] = rates[j].Rate
	}
	return out
}
