package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/portsim/internal/api"
	handler "github.com/newthinker/portsim/internal/api/handler/api"
	"github.com/newthinker/portsim/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the simulation API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), nil, func(a *app.App, log *zap.Logger) error {
		cfg := a.Config()
		log.Info("starting portsim server",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.String("feed", cfg.Feed.Provider),
		)

		deps := api.Dependencies{
			Runner:   a.Runner(),
			Metrics:  a.Metrics(),
			Defaults: cfg.Simulation,
		}
		// a nil *Results must not become a non-nil interface
		if r := a.Results(); r != nil {
			deps.Archive = handler.ResultLoader(r)
		}

		server, err := api.NewServer(api.Config{
			Host:        cfg.Server.Host,
			Port:        cfg.Server.Port,
			APIKey:      cfg.Server.APIKey,
			MetricsPath: cfg.Metrics.Path,
		}, deps, log)
		if err != nil {
			return fmt.Errorf("creating server: %w", err)
		}

		// Start server in goroutine
		errc := make(chan error, 1)
		go func() {
			errc <- server.Start()
		}()

		// Wait for shutdown signal
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case err := <-errc:
			return err
		}

		log.Info("shutting down portsim server")

		// Graceful shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return server.Shutdown(ctx)
	})
}
