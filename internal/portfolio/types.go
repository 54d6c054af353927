package portfolio

import (
	"time"

	"github.com/newthinker/portsim/internal/core"
)

// MarketData is the materialized input of one run: native-currency price
// series by symbol and exchange rates by pair.
type MarketData struct {
	Prices map[string]core.PriceSeries
	Rates  map[core.CurrencyPair]core.FxSeries
}

// Snapshot is the portfolio at the close of one simulated day. Value is a
// multiple of committed capital; AbsoluteValue is in the reporting currency.
type Snapshot struct {
	Date          time.Time          `json:"date"`
	Value         float64            `json:"value"`
	AbsoluteValue float64            `json:"absolute_value"`
	DailyReturn   float64            `json:"daily_return"`
	Inflow        float64            `json:"inflow"`
	FrozenValue   float64            `json:"frozen_value,omitempty"`
	Weights       map[string]float64 `json:"weights"`
}

// Result holds the complete simulation output
type Result struct {
	Request    Request          `json:"request"`
	Committed  float64          `json:"committed"`
	Snapshots  []Snapshot       `json:"snapshots"`
	Rebalances []RebalanceEvent `json:"rebalances"`
	Purchases  []Purchase       `json:"purchases"`
	Delisted   []Delisting      `json:"delisted,omitempty"`
	Stats      Stats            `json:"stats"`
	Partial    bool             `json:"partial,omitempty"` // cancelled before the last day
}

// Config tunes engine policy.
type Config struct {
	DelistingGraceDays int
	RebalanceThreshold float64
	FxLookbackDays     int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DelistingGraceDays: DefaultGraceDays,
		RebalanceThreshold: DefaultRebalanceThreshold,
		FxLookbackDays:     30,
	}
}
