package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/portfolio"
)

// JSON encodes res as an indented document.
func JSON(res *portfolio.Result) ([]byte, error) {
	return json.MarshalIndent(res, "", "  ")
}

// WriteSummary writes a plain-text report: the request, headline
// statistics, the rebalance log and any delistings.
func WriteSummary(w io.Writer, res *portfolio.Result) error {
	ccy := res.Request.ReportingCurrency
	st := res.Stats

	fmt.Fprintln(w, "=== Portfolio Simulation ===")
	fmt.Fprintf(w, "Period:     %s to %s (%d trading days)\n",
		st.Start.Format(core.DateFormat), st.End.Format(core.DateFormat), st.TradingDays)
	fmt.Fprintf(w, "Currency:   %s\n", ccy)
	fmt.Fprintf(w, "Rebalance:  %s\n", res.Request.RebalanceCadence)
	fmt.Fprintf(w, "Commission: %s\n", Fraction(res.Request.CommissionRate))
	if res.Partial {
		fmt.Fprintln(w, "Status:     PARTIAL (cancelled before the end date)")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSET\tINVESTMENT\tCADENCE\tTARGET\tFINAL WEIGHT\t")
	fmt.Fprintln(tw, "-----\t----------\t-------\t------\t------------\t")
	var final map[string]float64
	if n := len(res.Snapshots); n > 0 {
		final = res.Snapshots[n-1].Weights
	}
	targets := make(map[string]float64, len(res.Request.Assets))
	if plan, err := portfolio.NewPlan(res.Request); err == nil {
		for _, a := range plan.Assets {
			targets[a.Symbol] = a.TargetWeight
		}
	}
	for _, a := range res.Request.Assets {
		cadence := "-"
		if a.Investment == portfolio.DCA {
			cadence = a.Cadence.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n", a.Symbol, a.Investment, cadence,
			Fraction(targets[a.Symbol]), Fraction(final[a.Symbol]))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"Committed", Money(res.Committed, ccy)},
		{"Final value", Money(st.FinalValue, ccy)},
		{"Peak value", Money(st.PeakValue, ccy)},
		{"Cumulative return", Percent(st.CumulativeReturn)},
		{"Annualized return", Percent(st.AnnualizedReturn)},
		{"Volatility (daily)", Percent(st.Volatility)},
		{"Volatility (annual)", Percent(st.AnnualVolatility)},
		{"Sharpe ratio", Number(st.SharpeRatio, 2)},
		{"Max drawdown", Percent(st.MaxDrawdown)},
		{"Avg drawdown", Percent(st.AvgDrawdown)},
		{"Positive / negative days", fmt.Sprintf("%d / %d", st.PositiveDays, st.NegativeDays)},
		{"Win rate", Percent(st.WinRate)},
		{"Profit factor", Number(st.ProfitFactor, 2)},
		{"Max consecutive gains / losses", fmt.Sprintf("%d / %d", st.MaxConsecutiveGains, st.MaxConsecutiveLosses)},
		{"Trades", fmt.Sprintf("%d", st.TotalTrades)},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t\n", r[0], r[1])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(res.Rebalances) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Rebalances (%d)\n", len(res.Rebalances))
		if err := WriteRebalances(w, res); err != nil {
			return err
		}
	}

	if len(res.Delisted) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Delisted")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SYMBOL\tDETECTED\tLAST SEEN\tLAST PRICE\t")
		for _, d := range res.Delisted {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", d.Symbol,
				d.Date.Format(core.DateFormat), d.LastSeen.Format(core.DateFormat), Money(d.LastPrice, ccy))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// WriteRebalances writes one row per rebalance leg.
func WriteRebalances(w io.Writer, res *portfolio.Result) error {
	ccy := res.Request.ReportingCurrency
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSYMBOL\tSIDE\tAMOUNT\tDRIFT\tCOMMISSION\tWEIGHTS AFTER\t")
	fmt.Fprintln(tw, "----\t------\t----\t------\t-----\t----------\t-------------\t")
	for _, ev := range res.Rebalances {
		after := weightsLine(ev.WeightsAfter)
		for i, t := range ev.Trades {
			date := ev.Date.Format(core.DateFormat)
			if i > 0 {
				date, after = "", ""
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
				date, t.Symbol, t.Direction, Money(abs(t.Amount), ccy),
				Fraction(t.Drift.Signed), Money(t.Commission, ccy), after)
		}
	}
	return tw.Flush()
}

func weightsLine(w map[string]float64) string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + Fraction(w[k])
	}
	return strings.Join(parts, ", ")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
