// internal/feed/yahoo/yahoo.go
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/fx"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"
)

// validSymbol matches symbols like AAPL, BRK-B, 005930.KS, 600519.SH, EURUSD=X
var validSymbol = regexp.MustCompile(`^[A-Za-z0-9^][A-Za-z0-9\-]{0,11}(\.[A-Za-z]{1,4})?(=X)?$`)

// validateSymbol checks if a symbol has valid format
func validateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 20 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	if !validSymbol.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}

// Option configures a Yahoo feed.
type Option func(*Yahoo)

// WithBaseURL points the feed at another chart endpoint.
func WithBaseURL(url string) Option {
	return func(y *Yahoo) { y.baseURL = strings.TrimRight(url, "/") }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(y *Yahoo) { y.client.Timeout = d }
}

// Yahoo implements the Yahoo Finance chart feed for prices and rates.
type Yahoo struct {
	client  *http.Client
	baseURL string
}

// New creates a new Yahoo feed
func New(opts ...Option) *Yahoo {
	y := &Yahoo{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

func (y *Yahoo) Name() string {
	return "yahoo"
}

// toYahooSymbol converts internal symbol format to Yahoo format
func (y *Yahoo) toYahooSymbol(symbol string) string {
	// Shanghai stocks: 600519.SH -> 600519.SS
	if strings.HasSuffix(symbol, ".SH") {
		return strings.TrimSuffix(symbol, ".SH") + ".SS"
	}
	return symbol
}

// FetchHistory fetches daily OHLCV history in the symbol's trading currency.
func (y *Yahoo) FetchHistory(ctx context.Context, symbol string, start, end time.Time) (core.PriceSeries, error) {
	if err := validateSymbol(symbol); err != nil {
		return core.PriceSeries{}, core.WrapError(core.ErrConfigInvalid, err)
	}

	r, err := y.chart(ctx, y.toYahooSymbol(symbol), start, end)
	if err != nil {
		return core.PriceSeries{}, err
	}

	series := core.PriceSeries{
		Symbol:   symbol,
		Currency: strings.ToUpper(r.Meta.Currency),
		Bars:     make([]core.OHLCV, 0, len(r.Timestamp)),
	}
	if len(r.Indicators.Quote) == 0 {
		return series, nil
	}
	quotes := r.Indicators.Quote[0]

	for i, ts := range r.Timestamp {
		if i >= len(quotes.Close) || quotes.Close[i] == nil {
			continue // Skip missing data
		}
		c := *quotes.Close[i]
		bar := core.OHLCV{
			Symbol:   symbol,
			Interval: "1d",
			Open:     valueOr(quotes.Open, i, c),
			High:     valueOr(quotes.High, i, c),
			Low:      valueOr(quotes.Low, i, c),
			Close:    c,
			Time:     core.Day(time.Unix(int64(ts), 0).In(r.location())),
		}
		if i < len(quotes.Volume) && quotes.Volume[i] != nil {
			bar.Volume = int64(*quotes.Volume[i])
		}
		series.Bars = append(series.Bars, bar)
	}

	return series, nil
}

// FetchRates fetches daily closes of the pair's Yahoo FX ticker.
func (y *Yahoo) FetchRates(ctx context.Context, pair core.CurrencyPair, start, end time.Time) (core.FxSeries, error) {
	r, err := y.chart(ctx, fx.YahooSymbol(pair), start, end)
	if err != nil {
		return core.FxSeries{}, err
	}

	out := core.FxSeries{Pair: pair}
	if len(r.Indicators.Quote) == 0 {
		return out, nil
	}
	closes := r.Indicators.Quote[0].Close
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		out.Rates = append(out.Rates, core.Rate{
			Time: core.Day(time.Unix(int64(ts), 0).In(r.location())),
			Rate: *closes[i],
		})
	}
	return out, nil
}

func (y *Yahoo) chart(ctx context.Context, yahooSymbol string, start, end time.Time) (*chartResult, error) {
	// period2 is exclusive
	url := fmt.Sprintf("%s/%s?interval=1d&period1=%d&period2=%d&events=history",
		y.baseURL, yahooSymbol, core.Day(start).Unix(), core.Day(end).AddDate(0, 0, 1).Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrFeedFailed, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (portsim)")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrFeedFailed, fmt.Errorf("fetching history: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("%s", yahooSymbol))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.WrapError(core.ErrFeedFailed, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, core.WrapError(core.ErrFeedFailed, fmt.Errorf("decoding response: %w", err))
	}

	if result.Chart.Error != nil {
		return nil, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("yahoo error: %s", result.Chart.Error.Description))
	}

	if len(result.Chart.Result) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no data for symbol: %s", yahooSymbol))
	}

	return &result.Chart.Result[0], nil
}

func valueOr(values []*float64, i int, fallback float64) float64 {
	if i < len(values) && values[i] != nil {
		return *values[i]
	}
	return fallback
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta       chartMeta  `json:"meta"`
	Timestamp  []int      `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

// location returns the exchange time zone so bars land on their local
// trading date.
func (r *chartResult) location() *time.Location {
	if r.Meta.ExchangeTimezoneName != "" {
		if loc, err := time.LoadLocation(r.Meta.ExchangeTimezoneName); err == nil {
			return loc
		}
	}
	return time.FixedZone(r.Meta.ExchangeTimezoneName, r.Meta.GMTOffset)
}

type chartMeta struct {
	Symbol               string `json:"symbol"`
	Currency             string `json:"currency"`
	ExchangeTimezoneName string `json:"exchangeTimezoneName"`
	GMTOffset            int    `json:"gmtoffset"`
}

type indicators struct {
	Quote []quoteIndicator `json:"quote"`
}

type quoteIndicator struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int     `json:"volume"`
}
