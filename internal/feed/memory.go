// internal/feed/memory.go
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/portsim/internal/core"
)

// Memory is an in-memory Source.
type Memory struct {
	mu     sync.RWMutex
	name   string
	series map[string]core.PriceSeries
	rates  map[core.CurrencyPair]core.FxSeries
}

// NewMemory creates an empty in-memory feed.
func NewMemory(name string) *Memory {
	return &Memory{
		name:   name,
		series: make(map[string]core.PriceSeries),
		rates:  make(map[core.CurrencyPair]core.FxSeries),
	}
}

func (m *Memory) Name() string { return m.name }

// AddSeries stores a price series, replacing any previous one for the symbol.
func (m *Memory) AddSeries(s core.PriceSeries) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[s.Symbol] = s
}

// AddRates stores a rate series, replacing any previous one for the pair.
func (m *Memory) AddRates(s core.FxSeries) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[s.Pair] = s
}

func (m *Memory) FetchHistory(ctx context.Context, symbol string, start, end time.Time) (core.PriceSeries, error) {
	m.mu.RLock()
	s, ok := m.series[symbol]
	m.mu.RUnlock()
	if !ok {
		return core.PriceSeries{}, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("%s", symbol))
	}
	return s.Between(start, end), nil
}

func (m *Memory) FetchRates(ctx context.Context, pair core.CurrencyPair, start, end time.Time) (core.FxSeries, error) {
	m.mu.RLock()
	s, ok := m.rates[pair]
	m.mu.RUnlock()
	if !ok {
		return core.FxSeries{}, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("%s", pair))
	}

	from, to := core.Day(start), core.Day(end)
	out := core.FxSeries{Pair: pair}
	for _, r := range s.Rates {
		d := core.Day(r.Time)
		if d.Before(from) || d.After(to) {
			continue
		}
		out.Rates = append(out.Rates, r)
	}
	return out, nil
}
