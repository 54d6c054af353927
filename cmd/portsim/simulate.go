package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/portsim/internal/app"
	"github.com/newthinker/portsim/internal/config"
	"github.com/newthinker/portsim/internal/report"
)

var (
	simRequest string
	simChart   string
	simJSON    bool
	simArchive bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one simulation from a request file",
	Long: `Run the portfolio described by a YAML, JSON or TOML request file and
print its summary. Interrupting the run prints the partial result.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVarP(&simRequest, "request", "r", "", "request file (required)")
	simulateCmd.Flags().StringVar(&simChart, "chart", "", "write the value chart to this PNG file")
	simulateCmd.Flags().BoolVar(&simJSON, "json", false, "print the full result as JSON")
	simulateCmd.Flags().BoolVar(&simArchive, "archive", false, "store the result in the configured archive")
	simulateCmd.MarkFlagRequired("request")

	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	file, err := config.LoadRequest(simRequest)
	if err != nil {
		return err
	}

	tweak := func(c *config.Config) {
		if simArchive {
			c.Archive.Enabled = true
		}
	}
	return withApp(ctx, tweak, func(a *app.App, log *zap.Logger) error {
		req, err := file.Request(a.Config().Simulation)
		if err != nil {
			return err
		}

		res, runErr := a.Runner().Run(ctx, req)
		if res == nil {
			return fmt.Errorf("simulation %s: %w", file.Name, runErr)
		}
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			return runErr
		}

		out := cmd.OutOrStdout()
		if simJSON {
			data, err := report.JSON(res)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
		} else if err := report.WriteSummary(out, res); err != nil {
			return err
		}

		if simChart != "" {
			png, err := report.RenderChart(res, file.Name)
			if err != nil {
				return fmt.Errorf("rendering chart: %w", err)
			}
			if err := os.WriteFile(simChart, png, 0o644); err != nil {
				return fmt.Errorf("writing chart: %w", err)
			}
			log.Info("chart written", zap.String("path", simChart))
		}

		if simArchive && !res.Partial {
			id := file.Name + "-" + uuid.NewString()[:8]
			if err := a.Results().SaveResult(context.WithoutCancel(ctx), id, res); err != nil {
				return fmt.Errorf("archiving: %w", err)
			}
			log.Info("result archived", zap.String("id", id))
		}
		return runErr
	})
}
