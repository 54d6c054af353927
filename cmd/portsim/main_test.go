package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/feed/csvfile"
)

// workspace writes a CSV price directory, a config using it and two
// request files, and returns the config path and request directory.
func workspace(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	prices, err := csvfile.New(filepath.Join(dir, "prices"))
	require.NoError(t, err)
	for sym, base := range map[string]float64{"SPY": 470, "AGG": 98} {
		var bars []core.OHLCV
		i := 0
		for d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC); d.Before(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)); d = d.AddDate(0, 0, 1) {
			if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
				continue
			}
			bars = append(bars, core.OHLCV{Time: d, Close: base + float64(i%7)})
			i++
		}
		require.NoError(t, prices.WriteSeries(core.PriceSeries{Symbol: sym, Currency: "USD", Bars: bars}))
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
feed:
  provider: csv
  csv_dir: `+filepath.Join(dir, "prices")+`
metrics:
  enabled: false
`), 0644))

	reqDir := filepath.Join(dir, "requests")
	require.NoError(t, os.Mkdir(reqDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(reqDir, "balanced.yaml"), []byte(`
start: "2024-01-02"
end: "2024-06-28"
rebalance: monthly
total_amount: 10000
assets:
  - symbol: SPY
    weight: 60
  - symbol: AGG
    weight: 40
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(reqDir, "missing.yaml"), []byte(`
start: "2024-01-02"
end: "2024-06-28"
assets:
  - symbol: QQQ
    amount: 1000
`), 0644))

	return cfgPath, reqDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSimulateCommand(t *testing.T) {
	cfgPath, reqDir := workspace(t)
	chart := filepath.Join(t.TempDir(), "balanced.png")

	out, err := execute(t, "simulate", "-c", cfgPath, "-r", filepath.Join(reqDir, "balanced.yaml"), "--chart", chart)
	require.NoError(t, err, out)
	assert.Contains(t, out, "SPY")
	assert.Contains(t, out, "AGG")

	info, err := os.Stat(chart)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestBatchCommand(t *testing.T) {
	cfgPath, reqDir := workspace(t)

	out, err := execute(t, "batch", "-c", cfgPath, reqDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 runs failed")
	assert.Contains(t, out, "balanced")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "missing")
	assert.Contains(t, out, "failed")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "portsim dev")
}
