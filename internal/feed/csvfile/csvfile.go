// internal/feed/csvfile/csvfile.go

// Package csvfile reads and writes price and rate history as CSV files in a
// directory.
//
// Layout:
//
//	<SYMBOL>.csv       date,open,high,low,close,volume,currency
//	<BASE><QUOTE>.csv  date,rate
//
// Dates use core.DateFormat. Only date and close (or date and rate) are
// required; the header row decides column order.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/portsim/internal/core"
)

var priceHeader = []string{"date", "open", "high", "low", "close", "volume", "currency"}

var rateHeader = []string{"date", "rate"}

// Dir is a feed backed by a directory of CSV files.
type Dir struct {
	dir string
}

// New returns a feed rooted at dir, creating it if needed.
func New(dir string) (*Dir, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating csv dir: %w", err)
	}
	return &Dir{dir: dir}, nil
}

func (d *Dir) Name() string { return "csv" }

func (d *Dir) pricePath(symbol string) string {
	return filepath.Join(d.dir, fileSafe(symbol)+".csv")
}

func (d *Dir) ratePath(pair core.CurrencyPair) string {
	return filepath.Join(d.dir, pair.Base+pair.Quote+".csv")
}

// fileSafe maps characters that cannot appear in a file name.
func fileSafe(symbol string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(symbol)
}

func (d *Dir) FetchHistory(ctx context.Context, symbol string, start, end time.Time) (core.PriceSeries, error) {
	rows, err := readCSV(d.pricePath(symbol))
	if errors.Is(err, os.ErrNotExist) {
		return core.PriceSeries{}, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("%s", symbol))
	}
	if err != nil {
		return core.PriceSeries{}, core.WrapError(core.ErrFeedFailed, err)
	}

	cols, err := columns(rows, "date", "close")
	if err != nil {
		return core.PriceSeries{}, core.WrapError(core.ErrFeedFailed, fmt.Errorf("%s: %w", symbol, err))
	}

	series := core.PriceSeries{Symbol: symbol}
	for i, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return core.PriceSeries{}, err
		}
		date, err := time.Parse(core.DateFormat, field(row, cols, "date"))
		if err != nil {
			return core.PriceSeries{}, core.WrapError(core.ErrFeedFailed, fmt.Errorf("%s line %d: %w", symbol, i+2, err))
		}
		if date.Before(core.Day(start)) || date.After(core.Day(end)) {
			continue
		}
		c, err := strconv.ParseFloat(field(row, cols, "close"), 64)
		if err != nil {
			return core.PriceSeries{}, core.WrapError(core.ErrFeedFailed, fmt.Errorf("%s line %d: %w", symbol, i+2, err))
		}
		bar := core.OHLCV{
			Symbol:   symbol,
			Interval: "1d",
			Open:     floatOr(field(row, cols, "open"), c),
			High:     floatOr(field(row, cols, "high"), c),
			Low:      floatOr(field(row, cols, "low"), c),
			Close:    c,
			Time:     date,
		}
		bar.Volume, _ = strconv.ParseInt(field(row, cols, "volume"), 10, 64)
		if ccy := field(row, cols, "currency"); ccy != "" && series.Currency == "" {
			series.Currency = strings.ToUpper(ccy)
		}
		series.Bars = append(series.Bars, bar)
	}
	series.Sort()
	return series, nil
}

func (d *Dir) FetchRates(ctx context.Context, pair core.CurrencyPair, start, end time.Time) (core.FxSeries, error) {
	rows, err := readCSV(d.ratePath(pair))
	if errors.Is(err, os.ErrNotExist) {
		return core.FxSeries{}, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("%s", pair))
	}
	if err != nil {
		return core.FxSeries{}, core.WrapError(core.ErrFeedFailed, err)
	}

	cols, err := columns(rows, "date", "rate")
	if err != nil {
		return core.FxSeries{}, core.WrapError(core.ErrFeedFailed, fmt.Errorf("%s: %w", pair, err))
	}

	out := core.FxSeries{Pair: pair}
	for i, row := range rows[1:] {
		date, err := time.Parse(core.DateFormat, field(row, cols, "date"))
		if err != nil {
			return core.FxSeries{}, core.WrapError(core.ErrFeedFailed, fmt.Errorf("%s line %d: %w", pair, i+2, err))
		}
		if date.Before(core.Day(start)) || date.After(core.Day(end)) {
			continue
		}
		r, err := strconv.ParseFloat(field(row, cols, "rate"), 64)
		if err != nil {
			return core.FxSeries{}, core.WrapError(core.ErrFeedFailed, fmt.Errorf("%s line %d: %w", pair, i+2, err))
		}
		out.Rates = append(out.Rates, core.Rate{Time: date, Rate: r})
	}
	out.Sort()
	return out, nil
}

// WriteSeries replaces the symbol's file with series.
func (d *Dir) WriteSeries(series core.PriceSeries) error {
	rows := [][]string{priceHeader}
	for _, b := range series.Bars {
		rows = append(rows, []string{
			core.Day(b.Time).Format(core.DateFormat),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			strconv.FormatInt(b.Volume, 10),
			series.Currency,
		})
	}
	return atomicWriteCSV(d.pricePath(series.Symbol), rows)
}

// WriteRates replaces the pair's file with series.
func (d *Dir) WriteRates(series core.FxSeries) error {
	rows := [][]string{rateHeader}
	for _, r := range series.Rates {
		rows = append(rows, []string{core.Day(r.Time).Format(core.DateFormat), formatFloat(r.Rate)})
	}
	return atomicWriteCSV(d.ratePath(series.Pair), rows)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

// columns indexes the header row and checks the required columns exist.
func columns(rows [][]string, required ...string) (map[string]int, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("missing header row")
	}
	cols := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing %q column", name)
		}
	}
	return cols, nil
}

func field(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func floatOr(s string, fallback float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func atomicWriteCSV(path string, rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "tmp-*.csv")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// SavePrices writes series, matching the sqlite store's method set.
func (d *Dir) SavePrices(ctx context.Context, series core.PriceSeries) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.WriteSeries(series)
}

// SaveRates writes series, matching the sqlite store's method set.
func (d *Dir) SaveRates(ctx context.Context, series core.FxSeries) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.WriteRates(series)
}
