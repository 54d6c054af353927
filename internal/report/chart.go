package report

import (
	"fmt"

	"github.com/vicanso/go-charts/v2"

	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/portfolio"
)

// RenderChart draws the portfolio value against cumulative invested
// capital as a PNG.
func RenderChart(res *portfolio.Result, title string) ([]byte, error) {
	if len(res.Snapshots) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no snapshots to chart"))
	}

	labels := make([]string, len(res.Snapshots))
	values := make([]float64, len(res.Snapshots))
	invested := make([]float64, len(res.Snapshots))
	var inflow float64
	minVal, maxVal := res.Snapshots[0].AbsoluteValue, res.Snapshots[0].AbsoluteValue
	for i, s := range res.Snapshots {
		labels[i] = s.Date.Format("Jan '06")
		if len(res.Snapshots) <= 90 {
			labels[i] = s.Date.Format("01-02")
		}
		inflow += s.Inflow
		values[i] = s.AbsoluteValue
		invested[i] = inflow
		minVal = min(minVal, s.AbsoluteValue, inflow)
		maxVal = max(maxVal, s.AbsoluteValue, inflow)
	}

	padding := (maxVal - minVal) * 0.05
	if padding == 0 {
		padding = maxVal * 0.05
	}
	yMin := minVal - padding
	yMax := maxVal + padding

	splitNum := 6
	if len(labels) <= 30 {
		splitNum = max(len(labels)/3, 3)
	}

	st := res.Stats
	subtitle := fmt.Sprintf("Return: %s | Sharpe: %s | Vol: %s | MaxDD: %s",
		Percent(st.CumulativeReturn), Number(st.SharpeRatio, 2), Percent(st.AnnualVolatility), Percent(st.MaxDrawdown))

	p, err := charts.LineRender(
		[][]float64{values, invested},
		charts.TitleTextOptionFunc(title+"\n"+subtitle),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        labels,
			SplitNumber: splitNum,
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.LegendOptionFunc(charts.LegendOption{
			Data: []string{"Value (" + res.Request.ReportingCurrency + ")", "Invested"},
			Top:  charts.PositionTop,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(1000),
		charts.HeightOptionFunc(600),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	return buf, nil
}
