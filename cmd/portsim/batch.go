package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/portsim/internal/app"
	"github.com/newthinker/portsim/internal/config"
	"github.com/newthinker/portsim/internal/report"
	"github.com/newthinker/portsim/internal/runner"
)

var batchWorkers int

var batchCmd = &cobra.Command{
	Use:   "batch [dir]",
	Short: "Run every request file in a directory",
	Long: `Run each request file in dir concurrently and print one comparison row
per run. A failing run is reported in its row and does not stop the others.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 0, "runs in flight (default from config)")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := config.LoadRequestDir(args[0])
	if err != nil {
		return err
	}

	tweak := func(c *config.Config) {
		if batchWorkers > 0 {
			c.Runner.Workers = batchWorkers
		}
	}
	return withApp(ctx, tweak, func(a *app.App, log *zap.Logger) error {
		var tasks []runner.Task
		for _, f := range files {
			req, err := f.Request(a.Config().Simulation)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
			tasks = append(tasks, runner.Task{Name: f.Name, Request: req})
		}

		outcomes := a.Runner().RunAll(ctx, tasks)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATUS\tFINAL VALUE\tRETURN\tANNUALIZED\tMAX DRAWDOWN\tSHARPE\tERROR")
		fmt.Fprintln(w, "----\t------\t-----------\t------\t----------\t------------\t------\t-----")
		var failed int
		for _, o := range outcomes {
			status := runner.StatusComplete
			if j, err := a.Runner().Store().Get(o.JobID); err == nil {
				status = j.Status
			}
			errText := ""
			if o.Err != nil {
				failed++
				errText = o.Err.Error()
			}
			if o.Result == nil {
				fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t-\t-\t%s\n", o.Task.Name, status, errText)
				continue
			}
			s := o.Result.Stats
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				o.Task.Name,
				status,
				report.Money(s.FinalValue, o.Result.Request.ReportingCurrency),
				report.Fraction(s.CumulativeReturn),
				report.Fraction(s.AnnualizedReturn),
				report.Fraction(s.MaxDrawdown),
				report.Number(s.SharpeRatio, 2),
				errText,
			)
		}
		w.Flush()

		if failed > 0 {
			return fmt.Errorf("%d of %d runs failed", failed, len(outcomes))
		}
		return nil
	})
}
