package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/fx"
	"github.com/newthinker/portsim/internal/schedule"
)

// Simulator runs portfolio simulations. It holds no per-run state and is
// safe for concurrent use.
type Simulator struct {
	cfg    Config
	logger *zap.Logger
}

// NewSimulator creates a new simulator
func NewSimulator(cfg Config, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{cfg: cfg, logger: logger}
}

// cursor walks one converted series in calendar order.
type cursor struct {
	bars []core.OHLCV
	next int
}

// advance moves past every bar on or before day and reports whether one
// fell exactly on day, with the latest close seen so far.
func (c *cursor) advance(day time.Time) (observed bool, price float64) {
	for c.next < len(c.bars) && !core.Day(c.bars[c.next].Time).After(day) {
		observed = core.Day(c.bars[c.next].Time).Equal(day)
		c.next++
	}
	if c.next > 0 {
		price = c.bars[c.next-1].Close
	}
	return observed, price
}

// pricedDays returns the distinct days with a positive close.
func (c *cursor) pricedDays() []time.Time {
	if c == nil {
		return nil
	}
	var days []time.Time
	for _, b := range c.bars {
		d := core.Day(b.Time)
		if b.Close <= 0 || (len(days) > 0 && days[len(days)-1].Equal(d)) {
			continue
		}
		days = append(days, d)
	}
	return days
}

// Run simulates req over data. On cancellation it returns the snapshots
// completed so far, marked partial, together with ctx.Err().
func (s *Simulator) Run(ctx context.Context, req Request, data MarketData) (*Result, error) {
	plan, err := NewPlan(req)
	if err != nil {
		return nil, err
	}
	req = plan.Request

	cursors, err := s.prepare(plan, data)
	if err != nil {
		return nil, err
	}
	calendar := buildCalendar(plan, cursors)
	if len(calendar) == 0 {
		return nil, core.WrapError(core.ErrDataUnavailable, fmt.Errorf("no trading days between %s and %s",
			req.Start.Format(core.DateFormat), req.End.Format(core.DateFormat)))
	}

	anchor := schedule.AnchorFrom(calendar[0])
	if changed := plan.FitPeriods(anchor, func(id AssetID) []time.Time { return cursors[id].pricedDays() }); len(changed) > 0 {
		s.logger.Info("dca periods limited by available prices", zap.Strings("symbols", changed))
	}

	s.logger.Info("starting simulation",
		zap.Int("assets", len(plan.Assets)),
		zap.Time("start", calendar[0]),
		zap.Time("end", calendar[len(calendar)-1]),
		zap.Int("days", len(calendar)),
		zap.String("rebalance", req.RebalanceCadence.String()),
	)

	state := NewState(len(plan.Assets))
	state.Anchor = anchor
	state.Rebalance = schedule.NewTracker(req.RebalanceCadence, state.Anchor, calendar[0])
	state.Rebalance.Skip(calendar[0])

	result := &Result{Request: req, Committed: plan.Committed}
	prices := make([]float64, len(plan.Assets))
	observed := make([]bool, len(plan.Assets))
	todays := make([]float64, len(plan.Assets))
	var prev float64

	for i, day := range calendar {
		select {
		case <-ctx.Done():
			result.Partial = true
			result.Stats = CalculateStats(result.Snapshots, result.Rebalances, result.Purchases)
			s.logger.Warn("simulation cancelled", zap.Time("date", day), zap.Int("completed", i))
			return result, ctx.Err()
		default:
		}

		for id, c := range cursors {
			if c == nil {
				continue
			}
			observed[id], prices[id] = c.advance(day)
			todays[id] = 0
			if observed[id] {
				todays[id] = prices[id]
			}
		}

		// contributions and scheduled purchases
		var inflow float64
		for _, a := range plan.Assets {
			var price float64
			if observed[a.ID] {
				price = prices[a.ID]
			}
			shares, amount := ApplyScheduledPurchases(state, a, day, price, req.CommissionRate)
			if amount == 0 {
				continue
			}
			inflow += amount
			if a.Kind == Security {
				result.Purchases = append(result.Purchases, Purchase{
					Date:   day,
					Symbol: a.Symbol,
					Period: state.Executed[a.ID],
					Amount: amount,
					Price:  price,
					Shares: shares,
				})
				s.logger.Debug("purchase",
					zap.String("symbol", a.Symbol),
					zap.Time("date", day),
					zap.Int("period", state.Executed[a.ID]),
					zap.Float64("amount", amount),
				)
			}
		}

		// delisting
		for _, id := range plan.Securities() {
			if !CheckAndFreeze(state, id, day, observed[id], prices[id], s.cfg.DelistingGraceDays) {
				continue
			}
			a := plan.Assets[id]
			result.Delisted = append(result.Delisted, Delisting{
				Symbol:    a.Symbol,
				Date:      day,
				LastSeen:  state.LastSeen[id],
				LastPrice: state.LastPrice[id],
			})
			s.logger.Warn("asset delisted, valuation frozen",
				zap.String("symbol", a.Symbol),
				zap.Time("date", day),
				zap.Time("last_seen", state.LastSeen[id]),
				zap.Float64("last_price", state.LastPrice[id]),
			)
		}

		// rebalance on today's prices; unobserved securities sit out
		if ev := MaybeRebalance(state, plan.Assets, day, todays, req.CommissionRate, s.cfg.RebalanceThreshold); ev != nil {
			result.Rebalances = append(result.Rebalances, *ev)
			s.logger.Info("rebalanced",
				zap.Time("date", day),
				zap.Int("trades", len(ev.Trades)),
				zap.Float64("commission", ev.Commission),
			)
		}

		snap := snapshot(state, plan, day, prev, inflow, i == 0)
		result.Snapshots = append(result.Snapshots, snap)
		prev = snap.AbsoluteValue
	}

	result.Stats = CalculateStats(result.Snapshots, result.Rebalances, result.Purchases)
	s.logger.Info("simulation complete",
		zap.Float64("final_value", result.Stats.FinalValue),
		zap.Float64("cumulative_return", result.Stats.CumulativeReturn),
		zap.Int("rebalances", len(result.Rebalances)),
	)
	return result, nil
}

// prepare converts each security's series into the reporting currency and
// trims it to the requested range. A security with no data in range fails
// the run.
func (s *Simulator) prepare(plan *Plan, data MarketData) ([]*cursor, error) {
	req := plan.Request
	norm := fx.Normalizer{LookbackDays: s.cfg.FxLookbackDays}
	cursors := make([]*cursor, len(plan.Assets))

	for _, id := range plan.Securities() {
		sym := plan.Assets[id].Symbol
		series, ok := data.Prices[sym]
		if !ok {
			return nil, core.WrapError(core.ErrDataUnavailable, fmt.Errorf("no price series for %s", sym))
		}
		series = series.Between(req.Start, req.End)
		series.Sort()
		if series.Len() == 0 {
			return nil, core.WrapError(core.ErrDataUnavailable, fmt.Errorf("%s has no prices between %s and %s",
				sym, req.Start.Format(core.DateFormat), req.End.Format(core.DateFormat)))
		}

		if series.Currency == "" {
			series.Currency = req.ReportingCurrency
		}
		if series.Currency != req.ReportingCurrency {
			pair, err := fx.PairFor(series.Currency, req.ReportingCurrency)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", sym, err)
			}
			rates, ok := data.Rates[pair]
			if !ok {
				return nil, core.WrapError(core.ErrDataUnavailable, fmt.Errorf("%s: no %s rates", sym, pair))
			}
			converted, err := norm.Convert(series, rates, req.ReportingCurrency)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", sym, err)
			}
			series = converted
		}
		cursors[id] = &cursor{bars: series.Bars}
	}
	return cursors, nil
}

// buildCalendar returns the union of the securities' trading dates, or
// every weekday in range when the plan holds only cash.
func buildCalendar(plan *Plan, cursors []*cursor) []time.Time {
	seen := make(map[time.Time]bool)
	var days []time.Time
	for _, c := range cursors {
		if c == nil {
			continue
		}
		for _, b := range c.bars {
			d := core.Day(b.Time)
			if !seen[d] {
				seen[d] = true
				days = append(days, d)
			}
		}
	}
	if len(plan.Securities()) > 0 {
		sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
		return days
	}

	req := plan.Request
	for d := req.Start; !d.After(req.End); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		days = append(days, req.Start)
	}
	return days
}

func snapshot(state *State, plan *Plan, day time.Time, prev, inflow float64, first bool) Snapshot {
	total := state.Total()
	snap := Snapshot{
		Date:          day,
		AbsoluteValue: total,
		Value:         total / plan.Committed,
		Inflow:        inflow,
		FrozenValue:   state.Frozen(),
		Weights:       make(map[string]float64, len(plan.Assets)),
	}
	if !first && prev > 0 {
		snap.DailyReturn = (total - prev - inflow) / prev
	}
	if total > 0 {
		for _, a := range plan.Assets {
			snap.Weights[a.Symbol] = state.Value(a.ID) / total
		}
	}
	return snap
}
