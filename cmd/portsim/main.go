package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/portsim/internal/app"
	"github.com/newthinker/portsim/internal/config"
	"github.com/newthinker/portsim/internal/logger"
)

var (
	cfgFile string
	envFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "portsim",
	Short: "portsim - multi-asset portfolio simulator",
	Long: `portsim replays a portfolio of securities and cash over daily price
history, with lump-sum or DCA funding, periodic rebalancing and conversion
into a single reporting currency.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// a missing default .env is fine, an explicit one is not
		if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env") {
			return fmt.Errorf("loading env file: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "env file loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

// loadConfig reads --config, or the defaults when none is given.
func loadConfig(log *zap.Logger) (*config.Config, error) {
	var cfg *config.Config
	if cfgFile != "" {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
		log.Debug("no config file specified, using defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// withApp builds the application for one command and tears it down after.
func withApp(ctx context.Context, tweak func(*config.Config), fn func(a *app.App, log *zap.Logger) error) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if tweak != nil {
		tweak(cfg)
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initializing: %w", err)
	}
	defer a.Close()

	err = fn(a, log)
	if ferr := a.FlushMetrics(); ferr != nil {
		log.Warn("writing metrics textfile failed", zap.Error(ferr))
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
