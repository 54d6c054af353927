// Package marketdata materialises the price and rate history a simulation
// needs from the configured feeds.
package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/feed"
	"github.com/newthinker/portsim/internal/fx"
	"github.com/newthinker/portsim/internal/portfolio"
)

// DefaultConcurrency bounds parallel feed calls per load.
const DefaultConcurrency = 8

// Recorder receives one call per feed fetch.
type Recorder interface {
	RecordFetch(feed, kind string, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordFetch(string, string, error) {}

// Loader fetches market data for requests.
type Loader struct {
	prices       feed.PriceFeed
	rates        feed.FxFeed
	lookbackDays int
	concurrency  int
	recorder     Recorder
	logger       *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLookbackDays sets how far before the start rates are fetched.
func WithLookbackDays(days int) Option {
	return func(l *Loader) { l.lookbackDays = days }
}

// WithConcurrency bounds parallel feed calls.
func WithConcurrency(n int) Option {
	return func(l *Loader) { l.concurrency = n }
}

// WithRecorder reports every fetch to r.
func WithRecorder(r Recorder) Option {
	return func(l *Loader) { l.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a loader reading prices from prices and rates from
// rates. rates may be nil when every asset trades in the reporting
// currency.
func NewLoader(prices feed.PriceFeed, rates feed.FxFeed, opts ...Option) *Loader {
	l := &Loader{
		prices:       prices,
		rates:        rates,
		lookbackDays: fx.DefaultLookbackDays,
		concurrency:  DefaultConcurrency,
		recorder:     nopRecorder{},
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.recorder == nil {
		l.recorder = nopRecorder{}
	}
	return l
}

// Load validates req and fetches every security's history over the
// requested range, then the exchange rates for each non-reporting
// currency with a lookback lead so the first day has a rate.
func (l *Loader) Load(ctx context.Context, req portfolio.Request) (portfolio.MarketData, error) {
	plan, err := portfolio.NewPlan(req)
	if err != nil {
		return portfolio.MarketData{}, err
	}
	req = plan.Request

	data := portfolio.MarketData{
		Prices: make(map[string]core.PriceSeries),
		Rates:  make(map[core.CurrencyPair]core.FxSeries),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, id := range plan.Securities() {
		symbol := plan.Assets[id].Symbol
		g.Go(func() error {
			series, err := l.prices.FetchHistory(gctx, symbol, req.Start, req.End)
			l.recorder.RecordFetch(l.prices.Name(), "prices", err)
			if err != nil {
				return fmt.Errorf("%s: %w", symbol, err)
			}
			if series.Len() == 0 {
				return core.WrapError(core.ErrDataUnavailable, fmt.Errorf("%s has no prices between %s and %s",
					symbol, req.Start.Format(core.DateFormat), req.End.Format(core.DateFormat)))
			}
			if series.Currency == "" {
				series.Currency = req.ReportingCurrency
			}
			mu.Lock()
			data.Prices[symbol] = series
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return portfolio.MarketData{}, err
	}

	pairs, err := l.pairs(data, req.ReportingCurrency)
	if err != nil {
		return portfolio.MarketData{}, err
	}
	if len(pairs) == 0 {
		return data, nil
	}
	if l.rates == nil {
		return portfolio.MarketData{}, core.WrapError(core.ErrConfigMissing, fmt.Errorf("no rate feed for %v", pairs))
	}

	from := req.Start.AddDate(0, 0, -l.lookbackDays)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, pair := range pairs {
		g.Go(func() error {
			rates, err := l.rates.FetchRates(gctx, pair, from, req.End)
			l.recorder.RecordFetch(l.rates.Name(), "rates", err)
			if err != nil {
				return fmt.Errorf("%s: %w", pair, err)
			}
			if rates.Len() == 0 {
				return core.WrapError(core.ErrDataUnavailable, fmt.Errorf("no %s rates between %s and %s",
					pair, from.Format(core.DateFormat), req.End.Format(core.DateFormat)))
			}
			rates.Pair = pair
			mu.Lock()
			data.Rates[pair] = rates
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return portfolio.MarketData{}, err
	}

	l.logger.Debug("market data loaded",
		zap.Int("series", len(data.Prices)),
		zap.Int("pairs", len(data.Rates)),
	)
	return data, nil
}

// pairs lists the distinct currency pairs needed to convert data into
// reporting, in a stable order.
func (l *Loader) pairs(data portfolio.MarketData, reporting string) ([]core.CurrencyPair, error) {
	seen := make(map[core.CurrencyPair]bool)
	var out []core.CurrencyPair
	for symbol, s := range data.Prices {
		if s.Currency == reporting {
			continue
		}
		pair, err := fx.PairFor(s.Currency, reporting)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", symbol, err)
		}
		if !seen[pair] {
			seen[pair] = true
			out = append(out, pair)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
