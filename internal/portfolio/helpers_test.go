package portfolio

import (
	"time"

	"github.com/newthinker/portsim/internal/core"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// weekdays returns n consecutive weekdays starting at start.
func weekdays(start time.Time, n int) []time.Time {
	var out []time.Time
	for d := start; len(out) < n; d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			out = append(out, d)
		}
	}
	return out
}

// makeSeries builds a USD series over days with closes from price(i).
func makeSeries(symbol string, days []time.Time, price func(i int) float64) core.PriceSeries {
	s := core.PriceSeries{Symbol: symbol, Currency: "USD"}
	for i, d := range days {
		p := price(i)
		s.Bars = append(s.Bars, core.OHLCV{Symbol: symbol, Interval: "1d", Open: p, High: p, Low: p, Close: p, Volume: 1000, Time: d})
	}
	return s
}

func flat(p float64) func(int) float64 {
	return func(int) float64 { return p }
}

func lumpSum(symbol string, weight float64) AssetPlan {
	return AssetPlan{Symbol: symbol, Weight: weight, Investment: LumpSum, Kind: Security}
}

func mustPlan(req Request) *Plan {
	p, err := NewPlan(req)
	if err != nil {
		panic(err)
	}
	return p
}
