// internal/feed/eastmoney/eastmoney.go

// Package eastmoney serves daily A-share history from the Eastmoney kline
// API. Prices are forward-adjusted and quoted in CNY.
package eastmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/portsim/internal/core"
)

const (
	defaultBaseURL = "https://push2his.eastmoney.com/api/qt/stock/kline/get"

	// Currency is the quote currency of every A-share.
	Currency = "CNY"

	klineDaily    = "101"
	adjustForward = "1"
)

// Option configures an Eastmoney feed.
type Option func(*Eastmoney)

// WithBaseURL points the feed at another kline endpoint.
func WithBaseURL(url string) Option {
	return func(e *Eastmoney) { e.baseURL = url }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Eastmoney) { e.client.Timeout = d }
}

// Eastmoney implements the Eastmoney price feed for Shanghai and Shenzhen
// listings. It serves no exchange rates.
type Eastmoney struct {
	client  *http.Client
	baseURL string
}

// New creates a new Eastmoney feed
func New(opts ...Option) *Eastmoney {
	e := &Eastmoney{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Eastmoney) Name() string {
	return "eastmoney"
}

// secid converts 600519.SH to "1.600519". Shanghai = 1, Shenzhen = 0.
func secid(symbol string) (string, error) {
	code, exchange, ok := strings.Cut(strings.ToUpper(symbol), ".")
	if !ok || code == "" {
		return "", core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("%s: not an A-share symbol", symbol))
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return "", core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("%s: not an A-share symbol", symbol))
		}
	}
	switch exchange {
	case "SH", "SS":
		return "1." + code, nil
	case "SZ":
		return "0." + code, nil
	default:
		return "", core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("%s: unknown exchange %q", symbol, exchange))
	}
}

// FetchHistory fetches forward-adjusted daily bars.
func (e *Eastmoney) FetchHistory(ctx context.Context, symbol string, start, end time.Time) (core.PriceSeries, error) {
	id, err := secid(symbol)
	if err != nil {
		return core.PriceSeries{}, err
	}

	url := fmt.Sprintf("%s?secid=%s&klt=%s&fqt=%s&beg=%s&end=%s&fields1=f1,f2,f3,f4,f5,f6&fields2=f51,f52,f53,f54,f55,f56",
		e.baseURL, id, klineDaily, adjustForward,
		start.Format("20060102"),
		end.Format("20060102"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.PriceSeries{}, core.WrapError(core.ErrFeedFailed, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return core.PriceSeries{}, core.WrapError(core.ErrFeedFailed, fmt.Errorf("fetching history: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.PriceSeries{}, core.WrapError(core.ErrFeedFailed, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	var result historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return core.PriceSeries{}, core.WrapError(core.ErrFeedFailed, fmt.Errorf("decoding response: %w", err))
	}

	// unknown codes come back with a null data object
	if result.Data == nil {
		return core.PriceSeries{}, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("%s", symbol))
	}

	series := core.PriceSeries{
		Symbol:   symbol,
		Currency: Currency,
		Bars:     make([]core.OHLCV, 0, len(result.Data.Klines)),
	}
	for _, line := range result.Data.Klines {
		bar, ok := parseKline(line)
		if !ok {
			continue
		}
		bar.Symbol = symbol
		series.Bars = append(series.Bars, bar)
	}
	series.Sort()
	return series, nil
}

// parseKline reads "date,open,close,high,low,volume[,...]".
func parseKline(line string) (core.OHLCV, bool) {
	f := strings.Split(line, ",")
	if len(f) < 6 {
		return core.OHLCV{}, false
	}
	t, err := time.Parse(core.DateFormat, f[0])
	if err != nil {
		return core.OHLCV{}, false
	}
	closePrice, err := strconv.ParseFloat(f[2], 64)
	if err != nil || closePrice <= 0 {
		return core.OHLCV{}, false
	}
	open, _ := strconv.ParseFloat(f[1], 64)
	high, _ := strconv.ParseFloat(f[3], 64)
	low, _ := strconv.ParseFloat(f[4], 64)
	volume, _ := strconv.ParseInt(f[5], 10, 64)

	return core.OHLCV{
		Interval: "1d",
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
		Volume:   volume,
		Time:     t,
	}, true
}

// Response types
type historyResponse struct {
	Data *historyData `json:"data"`
}

type historyData struct {
	Code   string   `json:"code"`
	Name   string   `json:"name"`
	Klines []string `json:"klines"`
}
