// internal/storage/archive/results_test.go
package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/portfolio"
)

func sampleResult(t *testing.T) *portfolio.Result {
	t.Helper()
	var bars []core.OHLCV
	price := 10.0
	for d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); d.Month() == time.January; d = d.AddDate(0, 0, 1) {
		price += 0.1
		bars = append(bars, core.OHLCV{Close: price, Time: d})
	}
	req := portfolio.Request{
		Assets: []portfolio.AssetPlan{{Symbol: "IVV", Amount: 500}},
		Start:  bars[0].Time,
		End:    bars[len(bars)-1].Time,
	}
	data := portfolio.MarketData{Prices: map[string]core.PriceSeries{
		"IVV": {Symbol: "IVV", Currency: "USD", Bars: bars},
	}}
	res, err := portfolio.NewSimulator(portfolio.DefaultConfig(), nil).Run(context.Background(), req, data)
	require.NoError(t, err)
	return res
}

func TestResults_SaveAndLoad(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	results := NewResults(fs, nil)
	ctx := context.Background()
	res := sampleResult(t)

	require.NoError(t, results.SaveResult(ctx, "run-b", res))
	require.NoError(t, results.SaveResult(ctx, "run-a", res))

	for _, f := range []string{ResultFile, SummaryFile, ChartFile} {
		ok, err := fs.Exists(ctx, "runs/run-a/"+f)
		require.NoError(t, err)
		assert.True(t, ok, f)
	}

	back, err := results.LoadResult(ctx, "run-a")
	require.NoError(t, err)
	assert.Len(t, back.Snapshots, len(res.Snapshots))
	assert.InDelta(t, res.Stats.FinalValue, back.Stats.FinalValue, 1e-9)

	ids, err := results.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a", "run-b"}, ids)

	_, err = results.LoadResult(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNoData)
}

func TestResults_InvalidID(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	err := NewResults(fs, nil).SaveResult(context.Background(), "a/b", &portfolio.Result{})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}
