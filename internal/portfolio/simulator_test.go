package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/schedule"
)

// cancelAfter is a context whose Done channel closes after n polls.
type cancelAfter struct {
	context.Context
	n      int
	closed chan struct{}
}

func newCancelAfter(n int) *cancelAfter {
	c := make(chan struct{})
	close(c)
	return &cancelAfter{Context: context.Background(), n: n, closed: c}
}

func (c *cancelAfter) Done() <-chan struct{} {
	if c.n <= 0 {
		return c.closed
	}
	c.n--
	return nil
}

func (c *cancelAfter) Err() error {
	if c.n <= 0 {
		return context.Canceled
	}
	return nil
}

func prices(series ...core.PriceSeries) MarketData {
	md := MarketData{Prices: map[string]core.PriceSeries{}, Rates: map[core.CurrencyPair]core.FxSeries{}}
	for _, s := range series {
		md.Prices[s.Symbol] = s
	}
	return md
}

func TestSimulator_LumpSumDayZero(t *testing.T) {
	days := weekdays(date(2024, 1, 1), 5)
	req := Request{
		Assets: []AssetPlan{
			{Symbol: "A", Amount: 6000},
			{Symbol: "B", Amount: 4000},
		},
		Start:          days[0],
		End:            days[len(days)-1],
		CommissionRate: 0.002,
	}

	res, err := NewSimulator(DefaultConfig(), nil).Run(context.Background(), req,
		prices(makeSeries("A", days, flat(50)), makeSeries("B", days, flat(20))))
	require.NoError(t, err)
	require.Len(t, res.Snapshots, 5)

	day0 := res.Snapshots[0]
	assert.InDelta(t, 10000-10000*0.002, day0.AbsoluteValue, 1e-6)
	assert.InDelta(t, 0.998, day0.Value, 1e-9)
	assert.InDelta(t, 10000.0, day0.Inflow, 1e-9)
	assert.Zero(t, day0.DailyReturn)
	assert.Len(t, res.Purchases, 2)
	assert.Empty(t, res.Rebalances)
	assert.False(t, res.Partial)
}

func TestSimulator_AllCashHasZeroReturns(t *testing.T) {
	req := Request{
		Assets: []AssetPlan{
			{Symbol: "USD", Weight: 70, Kind: Cash},
			{Symbol: "Savings", Weight: 30, Kind: Cash},
		},
		Start:            date(2024, 1, 1),
		End:              date(2024, 1, 31),
		RebalanceCadence: schedule.Weekly(1),
	}

	res, err := NewSimulator(DefaultConfig(), nil).Run(context.Background(), req, MarketData{})
	require.NoError(t, err)
	assert.Len(t, res.Snapshots, 23)
	for _, s := range res.Snapshots {
		assert.Zero(t, s.DailyReturn, s.Date.Format(core.DateFormat))
		assert.InDelta(t, 1.0, s.Value, 1e-12)
	}
	assert.Empty(t, res.Rebalances)
	assert.Zero(t, res.Stats.CumulativeReturn)
}

func TestSimulator_DriftWithoutRebalance(t *testing.T) {
	days := weekdays(date(2024, 3, 4), 10)
	rising := func(i int) float64 { return 100 + 10*float64(i)/9 }
	req := Request{
		Assets: []AssetPlan{lumpSum("A", 60), lumpSum("B", 40)},
		Start:  days[0],
		End:    days[9],
	}

	res, err := NewSimulator(DefaultConfig(), nil).Run(context.Background(), req,
		prices(makeSeries("A", days, rising), makeSeries("B", days, flat(100))))
	require.NoError(t, err)

	last := res.Snapshots[len(res.Snapshots)-1]
	assert.InDelta(t, 0.623, last.Weights["A"], 0.001)
	assert.InDelta(t, 0.6*1.10/(0.6*1.10+0.4), last.Weights["A"], 1e-9)
	assert.InDelta(t, 6.0, res.Stats.CumulativeReturn, 1e-9)
}

func TestSimulator_MonthlyRebalanceRestoresTargets(t *testing.T) {
	days := weekdays(date(2024, 1, 1), 30) // through 2024-02-09
	drifted := func(i int) float64 {
		if !days[i].Before(date(2024, 2, 5)) {
			return 100 * 55 / 45.0
		}
		return 100
	}
	const rate = 0.001
	req := Request{
		Assets:           []AssetPlan{lumpSum("A", 50), lumpSum("B", 50)},
		Start:            days[0],
		End:              days[len(days)-1],
		RebalanceCadence: schedule.Monthly(1),
		CommissionRate:   rate,
		TotalAmount:      10000,
	}

	res, err := NewSimulator(DefaultConfig(), nil).Run(context.Background(), req,
		prices(makeSeries("A", days, drifted), makeSeries("B", days, flat(100))))
	require.NoError(t, err)
	require.Len(t, res.Rebalances, 1)

	ev := res.Rebalances[0]
	assert.Equal(t, date(2024, 2, 5), ev.Date)
	assert.InDelta(t, 0.55, ev.WeightsBefore["A"], 1e-9)
	assert.InDelta(t, 0.45, ev.WeightsBefore["B"], 1e-9)
	assert.InDelta(t, 0.5, ev.WeightsAfter["A"], 1e-9)
	assert.InDelta(t, 0.5, ev.WeightsAfter["B"], 1e-9)

	require.Len(t, ev.Trades, 2)
	var notional float64
	for _, tr := range ev.Trades {
		assert.NotZero(t, tr.Amount)
		notional += abs(tr.Amount)
	}
	assert.InDelta(t, notional*rate, ev.Commission, 1e-9)

	var rebalanceDay Snapshot
	for _, s := range res.Snapshots {
		if s.Date.Equal(ev.Date) {
			rebalanceDay = s
		}
	}
	assert.InDelta(t, 0.5, rebalanceDay.Weights["A"], 1e-9)
	assert.Equal(t, 2+2, res.Stats.TotalTrades)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestSimulator_SingleAssetNeverRebalances(t *testing.T) {
	days := weekdays(date(2024, 1, 1), 60)
	req := Request{
		Assets:           []AssetPlan{lumpSum("A", 100)},
		Start:            days[0],
		End:              days[len(days)-1],
		RebalanceCadence: schedule.Weekly(1),
	}

	res, err := NewSimulator(DefaultConfig(), nil).Run(context.Background(), req,
		prices(makeSeries("A", days, func(i int) float64 { return 10 + float64(i%7) })))
	require.NoError(t, err)
	assert.Empty(t, res.Rebalances)
}

func TestSimulator_DCACapital(t *testing.T) {
	days := weekdays(date(2024, 1, 1), 130)
	req := Request{
		Assets: []AssetPlan{{Symbol: "SPY", Amount: 100, Investment: DCA, Cadence: schedule.Monthly(1)}},
		Start:  date(2024, 1, 1),
		End:    date(2024, 6, 30),
	}

	res, err := NewSimulator(DefaultConfig(), nil).Run(context.Background(), req,
		prices(makeSeries("SPY", days, flat(10))))
	require.NoError(t, err)

	require.Len(t, res.Purchases, 6)
	want := []time.Time{
		date(2024, 1, 1), date(2024, 2, 5), date(2024, 3, 4),
		date(2024, 4, 1), date(2024, 5, 6), date(2024, 6, 3),
	}
	var invested float64
	for i, p := range res.Purchases {
		assert.Equal(t, want[i], p.Date)
		assert.Equal(t, i+1, p.Period)
		invested += p.Amount
	}
	assert.InDelta(t, 600.0, invested, 1e-9)
	assert.InDelta(t, 600.0, res.Committed, 1e-9)

	for _, s := range res.Snapshots {
		assert.Zero(t, s.DailyReturn, "flat prices never produce a return")
	}
	assert.InDelta(t, 1.0, res.Snapshots[len(res.Snapshots)-1].Value, 1e-9)
}

func TestSimulator_DeferredStart(t *testing.T) {
	days := weekdays(date(2024, 1, 1), 10)
	req := Request{
		Assets: []AssetPlan{{Symbol: "OLD", Amount: 100}, {Symbol: "IPO", Amount: 100}},
		Start:  days[0],
		End:    days[9],
	}

	res, err := NewSimulator(DefaultConfig(), nil).Run(context.Background(), req,
		prices(makeSeries("OLD", days, flat(10)), makeSeries("IPO", days[3:], flat(5))))
	require.NoError(t, err)

	assert.InDelta(t, 100.0, res.Snapshots[0].AbsoluteValue, 1e-9)
	assert.InDelta(t, 200.0, res.Snapshots[3].AbsoluteValue, 1e-9)
	assert.InDelta(t, 100.0, res.Snapshots[3].Inflow, 1e-9)
	assert.Zero(t, res.Snapshots[3].DailyReturn)
	assert.Empty(t, res.Delisted)
}

func TestSimulator_DelistedAssetFrozen(t *testing.T) {
	days := weekdays(date(2024, 1, 1), 45)
	cfg := DefaultConfig()
	cfg.DelistingGraceDays = 5

	req := Request{
		Assets:           []AssetPlan{lumpSum("A", 50), lumpSum("B", 30), lumpSum("GONE", 20)},
		Start:            days[0],
		End:              days[len(days)-1],
		RebalanceCadence: schedule.Monthly(1),
	}
	a := makeSeries("A", days, func(i int) float64 { return 100 + float64(i) })

	res, err := NewSimulator(cfg, nil).Run(context.Background(), req,
		prices(a, makeSeries("B", days, flat(100)), makeSeries("GONE", days[:8], flat(40))))
	require.NoError(t, err)

	require.Len(t, res.Delisted, 1)
	gone := res.Delisted[0]
	assert.Equal(t, "GONE", gone.Symbol)
	assert.Equal(t, days[7], gone.LastSeen)
	assert.Equal(t, 40.0, gone.LastPrice)
	assert.False(t, gone.Date.Before(gone.LastSeen.AddDate(0, 0, 5)))

	frozen := 20.0 // 20 of capital at 40 per share
	for _, s := range res.Snapshots {
		if s.Date.Before(gone.Date) {
			continue
		}
		assert.InDelta(t, frozen, s.FrozenValue, 1e-9)
		assert.InDelta(t, frozen, s.Weights["GONE"]*s.AbsoluteValue, 1e-9)
	}

	require.NotEmpty(t, res.Rebalances)
	for _, ev := range res.Rebalances {
		for _, tr := range ev.Trades {
			assert.NotEqual(t, "GONE", tr.Symbol)
		}
		assert.InDelta(t, 1.0, ev.WeightsAfter["A"]+ev.WeightsAfter["B"], 1e-9)
		assert.InDelta(t, 50.0/80.0, ev.WeightsAfter["A"], 1e-9)
	}
}

func TestSimulator_ConvertsCurrency(t *testing.T) {
	days := weekdays(date(2024, 1, 1), 3)
	eur := makeSeries("SAP", days, flat(100))
	eur.Currency = "EUR"

	md := prices(eur)
	md.Rates[core.CurrencyPair{Base: "EUR", Quote: "USD"}] = core.FxSeries{
		Pair: core.CurrencyPair{Base: "EUR", Quote: "USD"},
		Rates: []core.Rate{
			{Time: date(2023, 12, 29), Rate: 1.10},
			{Time: days[2], Rate: 1.21},
		},
	}
	req := Request{Assets: []AssetPlan{{Symbol: "SAP", Amount: 1100}}, Start: days[0], End: days[2]}

	res, err := NewSimulator(DefaultConfig(), nil).Run(context.Background(), req, md)
	require.NoError(t, err)

	require.Len(t, res.Purchases, 1)
	assert.InDelta(t, 110.0, res.Purchases[0].Price, 1e-9)
	assert.InDelta(t, 10.0, res.Purchases[0].Shares, 1e-9)
	assert.InDelta(t, 1100.0, res.Snapshots[1].AbsoluteValue, 1e-9)
	assert.InDelta(t, 0.1, res.Snapshots[2].DailyReturn, 1e-9)
}

func TestSimulator_MissingData(t *testing.T) {
	days := weekdays(date(2024, 1, 1), 3)
	req := Request{Assets: []AssetPlan{{Symbol: "A", Amount: 100}, {Symbol: "B", Amount: 100}}, Start: days[0], End: days[2]}
	sim := NewSimulator(DefaultConfig(), nil)

	_, err := sim.Run(context.Background(), req, prices(makeSeries("A", days, flat(1))))
	assert.True(t, errors.Is(err, core.ErrDataUnavailable), "got %v", err)

	outOfRange := makeSeries("B", weekdays(date(2023, 1, 2), 3), flat(1))
	_, err = sim.Run(context.Background(), req, prices(makeSeries("A", days, flat(1)), outOfRange))
	assert.True(t, errors.Is(err, core.ErrDataUnavailable), "got %v", err)

	krw := makeSeries("B", days, flat(1000))
	krw.Currency = "KRW"
	_, err = sim.Run(context.Background(), req, prices(makeSeries("A", days, flat(1)), krw))
	assert.True(t, errors.Is(err, core.ErrDataUnavailable), "got %v", err)
}

func TestSimulator_InvalidRequest(t *testing.T) {
	_, err := NewSimulator(DefaultConfig(), nil).Run(context.Background(), Request{}, MarketData{})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestSimulator_CancellationReturnsPartial(t *testing.T) {
	days := weekdays(date(2024, 1, 1), 20)
	req := Request{
		Assets: []AssetPlan{lumpSum("A", 50), lumpSum("B", 50)},
		Start:  days[0],
		End:    days[len(days)-1],
	}

	res, err := NewSimulator(DefaultConfig(), nil).Run(newCancelAfter(4), req,
		prices(makeSeries("A", days, flat(10)), makeSeries("B", days, flat(20))))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)

	assert.True(t, res.Partial)
	assert.Len(t, res.Snapshots, 4)
	assert.Equal(t, 4, res.Stats.TradingDays)
	assert.Equal(t, days[3], res.Stats.End)
}

func TestSimulator_DCAPeriodsStopAtEnd(t *testing.T) {
	days := weekdays(date(2024, 1, 1), 45) // through 2024-03-01
	require.Equal(t, date(2024, 3, 1), days[len(days)-1])
	req := Request{
		Assets: []AssetPlan{{Symbol: "SPY", Amount: 1000, Investment: DCA, Cadence: schedule.Monthly(1)}},
		Start:  date(2024, 1, 1),
		End:    date(2024, 3, 1),
	}

	res, err := NewSimulator(DefaultConfig(), nil).Run(context.Background(), req,
		prices(makeSeries("SPY", days, flat(100))))
	require.NoError(t, err)

	// the third monthly date is 2024-03-04, after the end
	require.Len(t, res.Purchases, 2)
	assert.Equal(t, date(2024, 2, 5), res.Purchases[1].Date)
	assert.InDelta(t, 2000.0, res.Committed, 1e-9)
	assert.InDelta(t, 1.0, res.Snapshots[len(res.Snapshots)-1].Value, 1e-9)
	assert.InDelta(t, 0.0, res.Stats.CumulativeReturn, 1e-9)
}

func TestSimulator_DCAExplicitPeriodsBeyondEnd(t *testing.T) {
	days := weekdays(date(2024, 1, 1), 45)
	req := Request{
		Assets: []AssetPlan{{Symbol: "SPY", Amount: 1000, Investment: DCA, Cadence: schedule.Monthly(1), Periods: 3}},
		Start:  date(2024, 1, 1),
		End:    date(2024, 3, 1),
	}

	_, err := NewSimulator(DefaultConfig(), nil).Run(context.Background(), req,
		prices(makeSeries("SPY", days, flat(100))))
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestSimulator_DCAPeriodsFollowLateData(t *testing.T) {
	days := weekdays(date(2024, 1, 1), 130)
	var late []time.Time
	for _, d := range days {
		if !d.Before(date(2024, 3, 1)) {
			late = append(late, d)
		}
	}
	req := Request{
		Assets: []AssetPlan{
			{Symbol: "A", Amount: 1000},
			{Symbol: "B", Amount: 100, Investment: DCA, Cadence: schedule.Monthly(1)},
		},
		Start: date(2024, 1, 1),
		End:   date(2024, 6, 30),
	}

	res, err := NewSimulator(DefaultConfig(), nil).Run(context.Background(), req,
		prices(makeSeries("A", days, flat(10)), makeSeries("B", late, flat(20))))
	require.NoError(t, err)

	var got []time.Time
	var invested float64
	for _, p := range res.Purchases {
		invested += p.Amount
		if p.Symbol == "B" {
			got = append(got, p.Date)
		}
	}
	assert.Equal(t, []time.Time{date(2024, 3, 1), date(2024, 4, 1), date(2024, 5, 6), date(2024, 6, 3)}, got)
	assert.InDelta(t, 1400.0, res.Committed, 1e-9)
	assert.InDelta(t, res.Committed, invested, 1e-9)
	assert.InDelta(t, 1.0, res.Snapshots[len(res.Snapshots)-1].Value, 1e-9)
}

func TestSimulator_RebalanceSkipsUnobservedAsset(t *testing.T) {
	days := weekdays(date(2024, 1, 1), 30) // through 2024-02-09
	trigger := date(2024, 2, 5)
	var gapped []time.Time
	for _, d := range days {
		if !d.Equal(trigger) {
			gapped = append(gapped, d)
		}
	}
	drifted := func(i int) float64 {
		if !days[i].Before(trigger) {
			return 150
		}
		return 100
	}
	req := Request{
		Assets:           []AssetPlan{lumpSum("A", 40), lumpSum("B", 30), lumpSum("C", 30)},
		Start:            days[0],
		End:              days[len(days)-1],
		RebalanceCadence: schedule.Monthly(1),
		TotalAmount:      10000,
	}

	res, err := NewSimulator(DefaultConfig(), nil).Run(context.Background(), req,
		prices(makeSeries("A", days, drifted), makeSeries("B", days, flat(100)), makeSeries("C", gapped, flat(100))))
	require.NoError(t, err)
	require.Len(t, res.Rebalances, 1)

	ev := res.Rebalances[0]
	assert.Equal(t, trigger, ev.Date)
	for _, tr := range ev.Trades {
		assert.NotEqual(t, "C", tr.Symbol, "C has no bar on the trigger day")
	}
	assert.Len(t, ev.Trades, 2)
	_, listed := ev.WeightsAfter["C"]
	assert.False(t, listed)
	assert.InDelta(t, 4.0/7.0, ev.WeightsAfter["A"], 1e-9)

	for _, s := range res.Snapshots {
		if s.Date.Equal(trigger) {
			assert.InDelta(t, 3000.0, s.Weights["C"]*s.AbsoluteValue, 1e-9)
		}
	}
}
