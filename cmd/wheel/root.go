package main

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cbailey/wheelhouse/internal/config"
	"github.com/cbailey/wheelhouse/internal/marketdata"
	"github.com/cbailey/wheelhouse/internal/monitor"
	"github.com/cbailey/wheelhouse/internal/storage"
)

// app holds the wired collaborators every subcommand shares. Built
// lazily in PersistentPreRunE so `wheel help` needs no config file.
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	client  marketdata.Client
	store   storage.Interface
	monitor *monitor.Monitor
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		a          app
	)

	rootCmd := &cobra.Command{
		Use:           "wheel",
		Short:         "Wheel-strategy option selling decision engine",
		Long:          "wheel prices, filters, and ranks cash-secured put and covered call candidates,\ntracks position state across the wheel cycle, and monitors open trades.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			return a.init(configPath)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "configuration file path")

	rootCmd.AddCommand(newRecommendCmd(&a))
	rootCmd.AddCommand(newScanCmd(&a))
	rootCmd.AddCommand(newOverlayCmd(&a))
	rootCmd.AddCommand(newMonitorCmd(&a))
	rootCmd.AddCommand(newPositionCmd(&a))
	rootCmd.AddCommand(newServeCmd(&a))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "wheel v0.3.0")
		},
	}
}

func (a *app) init(configPath string) error {
	// .env is optional; real deployments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = logrus.New()
	a.logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		a.logger.SetLevel(lvl)
	}

	tradier := marketdata.NewTradierClient(cfg.MarketData.APIKey, "", cfg.IsSandbox())
	a.client = marketdata.NewCircuitBreakerClient(tradier, a.logger)

	a.store, err = storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}

	var secondary marketdata.PriceFetcher
	if cfg.MarketData.SecondaryQuotes {
		secondary = marketdata.NewYahooFetcher()
	}
	a.monitor = monitor.NewMonitor(a.client, secondary, a.logger)
	return nil
}

// earningsSource returns the configured earnings calendar, or nil when
// none is configured (the earnings gate is then skipped).
func (a *app) earningsSource() marketdata.EarningsSource {
	if a.cfg.MarketData.Earnings.BaseURL == "" {
		return nil
	}
	return marketdata.NewEarningsCalendar(a.cfg.MarketData.Earnings.BaseURL, a.cfg.MarketData.Earnings.Token)
}
