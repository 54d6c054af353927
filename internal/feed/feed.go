// internal/feed/feed.go

// Package feed defines the price and exchange-rate sources a simulation is
// loaded from.
package feed

import (
	"context"
	"time"

	"github.com/newthinker/portsim/internal/core"
)

// PriceFeed supplies daily bar history for a symbol.
type PriceFeed interface {
	Name() string
	// FetchHistory returns bars in [start, end] tagged with the symbol's
	// native currency. A symbol the feed does not know returns
	// core.ErrSymbolNotFound.
	FetchHistory(ctx context.Context, symbol string, start, end time.Time) (core.PriceSeries, error)
}

// FxFeed supplies daily exchange rates for a currency pair.
type FxFeed interface {
	Name() string
	FetchRates(ctx context.Context, pair core.CurrencyPair, start, end time.Time) (core.FxSeries, error)
}

// Source serves both prices and rates.
type Source interface {
	PriceFeed
	FxFeed
}

// Combined serves prices from one feed and rates from another.
type Combined struct {
	Prices PriceFeed
	Rates  FxFeed
}

// Combine pairs a price feed with a rate feed.
func Combine(prices PriceFeed, rates FxFeed) Combined {
	return Combined{Prices: prices, Rates: rates}
}

// Name joins the two feed names, or returns one when they match.
func (c Combined) Name() string {
	if c.Prices.Name() == c.Rates.Name() {
		return c.Prices.Name()
	}
	return c.Prices.Name() + "+" + c.Rates.Name()
}

func (c Combined) FetchHistory(ctx context.Context, symbol string, start, end time.Time) (core.PriceSeries, error) {
	return c.Prices.FetchHistory(ctx, symbol, start, end)
}

func (c Combined) FetchRates(ctx context.Context, pair core.CurrencyPair, start, end time.Time) (core.FxSeries, error) {
	return c.Rates.FetchRates(ctx, pair, start, end)
}
