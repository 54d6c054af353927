// internal/feed/sqlstore/sqlstore.go

// Package sqlstore keeps fetched price and rate history in SQLite so repeat
// simulations can run offline.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Register sqlite3 driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/newthinker/portsim/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS prices(
	symbol   TEXT NOT NULL,
	date     TEXT NOT NULL,
	open     REAL,
	high     REAL,
	low      REAL,
	close    REAL NOT NULL,
	volume   INTEGER,
	currency TEXT,
	PRIMARY KEY(symbol, date)
);
CREATE TABLE IF NOT EXISTS rates(
	base  TEXT NOT NULL,
	quote TEXT NOT NULL,
	date  TEXT NOT NULL,
	rate  REAL NOT NULL,
	PRIMARY KEY(base, quote, date)
);`

// Store is a SQLite-backed Source.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dsn and ensures the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// sqlite serialises writers; one connection also keeps :memory: coherent
	db.SetMaxOpenConns(1)

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// InitSchema creates the prices and rates tables.
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: init schema: %w", err)
	}
	return nil
}

func (s *Store) Name() string { return "sqlite" }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SavePrices upserts every bar of series.
func (s *Store) SavePrices(ctx context.Context, series core.PriceSeries) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO prices(symbol,date,open,high,low,close,volume,currency)
			VALUES(?,?,?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, b := range series.Bars {
			if _, err := stmt.ExecContext(ctx, series.Symbol, core.Day(b.Time).Format(core.DateFormat),
				b.Open, b.High, b.Low, b.Close, b.Volume, series.Currency); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveRates upserts every rate of series.
func (s *Store) SaveRates(ctx context.Context, series core.FxSeries) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO rates(base,quote,date,rate) VALUES(?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range series.Rates {
			if _, err := stmt.ExecContext(ctx, series.Pair.Base, series.Pair.Quote,
				core.Day(r.Time).Format(core.DateFormat), r.Rate); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// FetchHistory returns stored bars in [start, end]. A symbol with no rows
// at all returns core.ErrSymbolNotFound.
func (s *Store) FetchHistory(ctx context.Context, symbol string, start, end time.Time) (core.PriceSeries, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date,open,high,low,close,volume,currency FROM prices
		WHERE symbol=? AND date>=? AND date<=? ORDER BY date ASC`,
		symbol, core.Day(start).Format(core.DateFormat), core.Day(end).Format(core.DateFormat))
	if err != nil {
		return core.PriceSeries{}, core.WrapError(core.ErrFeedFailed, err)
	}
	defer rows.Close()

	series := core.PriceSeries{Symbol: symbol}
	for rows.Next() {
		var (
			date     string
			currency sql.NullString
			b        core.OHLCV
		)
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &currency); err != nil {
			return core.PriceSeries{}, core.WrapError(core.ErrFeedFailed, err)
		}
		if b.Time, err = time.Parse(core.DateFormat, date); err != nil {
			return core.PriceSeries{}, core.WrapError(core.ErrFeedFailed, err)
		}
		b.Symbol = symbol
		b.Interval = "1d"
		if currency.Valid && series.Currency == "" {
			series.Currency = currency.String
		}
		series.Bars = append(series.Bars, b)
	}
	if err := rows.Err(); err != nil {
		return core.PriceSeries{}, core.WrapError(core.ErrFeedFailed, err)
	}

	if len(series.Bars) == 0 {
		known, err := s.exists(ctx, `SELECT 1 FROM prices WHERE symbol=? LIMIT 1`, symbol)
		if err != nil {
			return core.PriceSeries{}, err
		}
		if !known {
			return core.PriceSeries{}, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("%s", symbol))
		}
	}
	return series, nil
}

// FetchRates returns stored rates in [start, end].
func (s *Store) FetchRates(ctx context.Context, pair core.CurrencyPair, start, end time.Time) (core.FxSeries, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date,rate FROM rates
		WHERE base=? AND quote=? AND date>=? AND date<=? ORDER BY date ASC`,
		pair.Base, pair.Quote, core.Day(start).Format(core.DateFormat), core.Day(end).Format(core.DateFormat))
	if err != nil {
		return core.FxSeries{}, core.WrapError(core.ErrFeedFailed, err)
	}
	defer rows.Close()

	out := core.FxSeries{Pair: pair}
	for rows.Next() {
		var (
			date string
			r    core.Rate
		)
		if err := rows.Scan(&date, &r.Rate); err != nil {
			return core.FxSeries{}, core.WrapError(core.ErrFeedFailed, err)
		}
		if r.Time, err = time.Parse(core.DateFormat, date); err != nil {
			return core.FxSeries{}, core.WrapError(core.ErrFeedFailed, err)
		}
		out.Rates = append(out.Rates, r)
	}
	if err := rows.Err(); err != nil {
		return core.FxSeries{}, core.WrapError(core.ErrFeedFailed, err)
	}

	if len(out.Rates) == 0 {
		known, err := s.exists(ctx, `SELECT 1 FROM rates WHERE base=? AND quote=? LIMIT 1`, pair.Base, pair.Quote)
		if err != nil {
			return core.FxSeries{}, err
		}
		if !known {
			return core.FxSeries{}, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("%s", pair))
		}
	}
	return out, nil
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, core.WrapError(core.ErrFeedFailed, err)
	}
	return true, nil
}
