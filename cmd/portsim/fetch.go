package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/portsim/internal/app"
	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/feed/csvfile"
	"github.com/newthinker/portsim/internal/feed/sqlstore"
)

var (
	fetchFrom      string
	fetchStart     string
	fetchEnd       string
	fetchReporting string
	fetchSQLite    string
	fetchCSV       string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch SYMBOL...",
	Short: "Download price history into local stores",
	Long: `Download daily history for the given symbols, plus the exchange rates
they need against the reporting currency, and save it to a SQLite database
and/or a CSV directory for offline simulation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFrom, "from", "yahoo", "feed to download from")
	fetchCmd.Flags().StringVar(&fetchStart, "start", "", "start date YYYY-MM-DD (required)")
	fetchCmd.Flags().StringVar(&fetchEnd, "end", "", "end date YYYY-MM-DD (default today)")
	fetchCmd.Flags().StringVar(&fetchReporting, "reporting-currency", "", "currency to fetch rates against (default from config)")
	fetchCmd.Flags().StringVar(&fetchSQLite, "sqlite", "", "SQLite database to write")
	fetchCmd.Flags().StringVar(&fetchCSV, "csv", "", "CSV directory to write")
	fetchCmd.MarkFlagRequired("start")

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	start, err := time.Parse(core.DateFormat, fetchStart)
	if err != nil {
		return fmt.Errorf("invalid start date format (expected YYYY-MM-DD): %w", err)
	}
	end := core.Day(time.Now())
	if fetchEnd != "" {
		end, err = time.Parse(core.DateFormat, fetchEnd)
		if err != nil {
			return fmt.Errorf("invalid end date format (expected YYYY-MM-DD): %w", err)
		}
	}
	if end.Before(start) {
		return fmt.Errorf("end date must be after start date")
	}
	if fetchSQLite == "" && fetchCSV == "" {
		return fmt.Errorf("nothing to write: pass --sqlite and/or --csv")
	}

	ctx := cmd.Context()
	return withApp(ctx, nil, func(a *app.App, log *zap.Logger) error {
		var sinks []app.Sink
		if fetchSQLite != "" {
			store, err := sqlstore.Open(fetchSQLite)
			if err != nil {
				return err
			}
			defer store.Close()
			sinks = append(sinks, store)
		}
		if fetchCSV != "" {
			dir, err := csvfile.New(fetchCSV)
			if err != nil {
				return err
			}
			sinks = append(sinks, dir)
		}

		reporting := fetchReporting
		if reporting == "" {
			reporting = a.Config().Simulation.ReportingCurrency
		}

		res, err := a.Mirror(ctx, fetchFrom, args, reporting, start, end, sinks...)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %d bars for %d symbols", res.Bars, len(res.Symbols))
		if len(res.Pairs) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), " and %d rates for %v", res.Rates, res.Pairs)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	})
}
