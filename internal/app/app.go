// Package app wires feeds, the simulator, the runner and the archive from
// a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newthinker/portsim/internal/config"
	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/feed"
	"github.com/newthinker/portsim/internal/feed/csvfile"
	"github.com/newthinker/portsim/internal/feed/eastmoney"
	"github.com/newthinker/portsim/internal/feed/rediscache"
	"github.com/newthinker/portsim/internal/feed/sqlstore"
	"github.com/newthinker/portsim/internal/feed/yahoo"
	"github.com/newthinker/portsim/internal/fx"
	"github.com/newthinker/portsim/internal/marketdata"
	"github.com/newthinker/portsim/internal/metrics"
	"github.com/newthinker/portsim/internal/portfolio"
	"github.com/newthinker/portsim/internal/runner"
	"github.com/newthinker/portsim/internal/storage/archive"
)

// Sink stores fetched history. Both the sqlite store and the CSV
// directory implement it.
type Sink interface {
	SavePrices(ctx context.Context, series core.PriceSeries) error
	SaveRates(ctx context.Context, series core.FxSeries) error
}

// App is the main application orchestrator
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	feeds   *feed.Registry
	source  feed.Source
	metrics *metrics.Registry
	results *archive.Results
	runner  *runner.Runner

	mu      sync.Mutex
	closers []func() error
}

// New builds an App from cfg. Redis is dialled when the cache is enabled,
// so ctx bounds connection setup.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		feeds:  feed.NewRegistry(),
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewRegistry()
	}

	if err := a.setupFeeds(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.setupRunner(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) onClose(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// setupFeeds registers every configured feed and selects the provider,
// wrapped in the Redis cache when enabled.
func (a *App) setupFeeds(ctx context.Context) error {
	fc := a.cfg.Feed

	var yopts []yahoo.Option
	if fc.Timeout > 0 {
		yopts = append(yopts, yahoo.WithTimeout(fc.Timeout))
	}
	if fc.BaseURL != "" && fc.Provider == "yahoo" {
		yopts = append(yopts, yahoo.WithBaseURL(fc.BaseURL))
	}
	a.feeds.Register(yahoo.New(yopts...))

	if fc.Provider == "eastmoney" {
		var eopts []eastmoney.Option
		if fc.Timeout > 0 {
			eopts = append(eopts, eastmoney.WithTimeout(fc.Timeout))
		}
		if fc.BaseURL != "" {
			eopts = append(eopts, eastmoney.WithBaseURL(fc.BaseURL))
		}
		a.feeds.Register(eastmoney.New(eopts...))
	}
	if fc.Uses("csv") {
		dir, err := csvfile.New(fc.CSVDir)
		if err != nil {
			return core.WrapError(core.ErrConfigInvalid, err)
		}
		a.feeds.Register(dir)
	}
	if fc.Uses("sqlite") {
		store, err := sqlstore.Open(fc.SQLiteDSN)
		if err != nil {
			return core.WrapError(core.ErrConfigInvalid, err)
		}
		a.onClose(store.Close)
		a.feeds.Register(store)
	}

	src, err := a.Source(fc.Provider)
	if err != nil {
		return err
	}

	if rc := a.cfg.Cache.Redis; rc.Enabled {
		client, err := rediscache.New(ctx, rediscache.ClientConfig{
			Addr:       rc.Addr,
			Password:   rc.Password,
			DB:         rc.DB,
			PoolSize:   rc.PoolSize,
			MaxRetries: rc.MaxRetries,
			TLSEnabled: rc.TLSEnabled,
		})
		if err != nil {
			return core.WrapError(core.ErrConfigInvalid, err)
		}
		a.onClose(client.Close)
		src = rediscache.NewCache(client, src, rc.TTL, a.logger)
		a.logger.Info("redis feed cache enabled", zap.String("addr", rc.Addr), zap.Duration("ttl", rc.TTL))
	}

	a.source = src
	a.logger.Debug("feed selected",
		zap.String("source", src.Name()),
		zap.Strings("registered", a.feeds.Names()),
	)
	return nil
}

func (a *App) setupRunner() error {
	lopts := []marketdata.Option{
		marketdata.WithLookbackDays(a.cfg.Simulation.FxLookbackDays),
		marketdata.WithConcurrency(a.cfg.Feed.Concurrency),
		marketdata.WithLogger(a.logger),
	}
	ropts := []runner.Option{
		runner.WithWorkers(a.cfg.Runner.Workers),
		runner.WithTimeout(a.cfg.Runner.JobTimeout),
		runner.WithStore(runner.NewStore(a.cfg.Server.MaxJobs, time.Duration(a.cfg.Server.JobTTLHours)*time.Hour)),
		runner.WithLogger(a.logger),
	}
	if a.metrics != nil {
		lopts = append(lopts, marketdata.WithRecorder(a.metrics))
		ropts = append(ropts, runner.WithRecorder(a.metrics))
	}

	if a.cfg.Archive.Enabled {
		store, err := archive.Open(a.cfg.Archive.Storage())
		if err != nil {
			return err
		}
		a.results = archive.NewResults(store, a.logger)
		ropts = append(ropts, runner.WithArchive(a.results))
	}

	loader := marketdata.NewLoader(a.source, a.source, lopts...)
	sim := portfolio.NewSimulator(a.cfg.Engine(), a.logger)
	a.runner = runner.New(loader, sim, ropts...)
	return nil
}

// Source returns the named price feed paired with a rate feed: the
// configured rates provider, else the feed itself when it serves rates,
// else yahoo.
func (a *App) Source(name string) (feed.Source, error) {
	prices, ok := a.feeds.Price(name)
	if !ok {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("feed %q not registered", name))
	}

	ratesName := a.cfg.Feed.RatesProvider
	if ratesName == "" || ratesName == name {
		if src, ok := prices.(feed.Source); ok {
			return src, nil
		}
		ratesName = "yahoo"
	}
	rates, ok := a.feeds.Fx(ratesName)
	if !ok {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("rate feed %q not registered", ratesName))
	}
	return feed.Combine(prices, rates), nil
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Feeds returns the feed registry.
func (a *App) Feeds() *feed.Registry { return a.feeds }

// Runner returns the simulation runner.
func (a *App) Runner() *runner.Runner { return a.runner }

// Results returns the result archive, or nil when archiving is off.
func (a *App) Results() *archive.Results { return a.results }

// Metrics returns the metrics registry, or nil when metrics are off.
func (a *App) Metrics() *metrics.Registry { return a.metrics }

// FlushMetrics writes the metrics textfile when one is configured.
func (a *App) FlushMetrics() error {
	if a.metrics == nil || a.cfg.Metrics.Textfile == "" {
		return nil
	}
	return a.metrics.WriteTextfile(a.cfg.Metrics.Textfile)
}

// Close releases database and cache connections.
func (a *App) Close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MirrorResult counts what Mirror stored.
type MirrorResult struct {
	Symbols []string
	Pairs   []core.CurrencyPair
	Bars    int
	Rates   int
}

// Mirror copies price history for symbols from the named feed into every
// sink, then the exchange rates those symbols need against reporting.
func (a *App) Mirror(ctx context.Context, from string, symbols []string, reporting string, start, end time.Time, sinks ...Sink) (MirrorResult, error) {
	var out MirrorResult
	src, err := a.Source(from)
	if err != nil {
		return out, err
	}
	if len(sinks) == 0 {
		return out, core.WrapError(core.ErrConfigMissing, errors.New("no sink to mirror into"))
	}
	reporting, err = fx.Normalize(reporting)
	if err != nil {
		return out, err
	}

	var mu sync.Mutex
	pairs := make(map[core.CurrencyPair]bool)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency())
	for _, sym := range symbols {
		g.Go(func() error {
			series, err := src.FetchHistory(gctx, sym, start, end)
			a.recordFetch(from, "prices", err)
			if err != nil {
				return fmt.Errorf("%s: %w", sym, err)
			}
			for _, s := range sinks {
				if err := s.SavePrices(gctx, series); err != nil {
					return fmt.Errorf("%s: saving: %w", sym, err)
				}
			}

			mu.Lock()
			defer mu.Unlock()
			out.Symbols = append(out.Symbols, series.Symbol)
			out.Bars += series.Len()
			if series.Currency != "" && series.Currency != reporting {
				pair, err := fx.PairFor(series.Currency, reporting)
				if err != nil {
					return fmt.Errorf("%s: %w", sym, err)
				}
				pairs[pair] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	rateStart := start.AddDate(0, 0, -a.cfg.Simulation.FxLookbackDays)
	for pair := range pairs {
		out.Pairs = append(out.Pairs, pair)
	}
	sort.Slice(out.Pairs, func(i, j int) bool { return out.Pairs[i].String() < out.Pairs[j].String() })
	sort.Strings(out.Symbols)

	for _, pair := range out.Pairs {
		rates, err := src.FetchRates(ctx, pair, rateStart, end)
		a.recordFetch(from, "rates", err)
		if err != nil {
			return out, fmt.Errorf("%s: %w", pair, err)
		}
		for _, s := range sinks {
			if err := s.SaveRates(ctx, rates); err != nil {
				return out, fmt.Errorf("%s: saving: %w", pair, err)
			}
		}
		out.Rates += len(rates.Rates)
	}

	a.logger.Info("mirrored market data",
		zap.String("from", from),
		zap.Int("symbols", len(out.Symbols)),
		zap.Int("bars", out.Bars),
		zap.Int("pairs", len(out.Pairs)),
	)
	return out, nil
}

func (a *App) concurrency() int {
	if n := a.cfg.Feed.Concurrency; n > 0 {
		return n
	}
	return marketdata.DefaultConcurrency
}

func (a *App) recordFetch(feedName, kind string, err error) {
	if a.metrics != nil {
		a.metrics.RecordFetch(feedName, kind, err)
	}
}
