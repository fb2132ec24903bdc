// Package main is the command line driver for the allocation engine. It reads
// prices, valuations and cash flows from CSV files, runs the optimizer, the
// backtester or the performance tracker, and prints the result as JSON.
package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/aristath/allocation-engine/internal/config"
	"github.com/aristath/allocation-engine/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once flags are parsed
type app struct {
	env      *config.Config
	strategy config.StrategyConfig
	log      zerolog.Logger
	out      io.Writer
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	env := config.Load()

	var (
		strategyPath string
		logLevel     string
		pretty       bool
	)

	root := &cobra.Command{
		Use:          "engine",
		Short:        "Portfolio weighting and risk analytics",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.env = env
			a.log = logger.New(logger.Config{Level: logLevel, Pretty: pretty})
			logger.SetGlobalLogger(a.log)

			strategy, err := config.LoadStrategyConfig(strategyPath)
			if err != nil {
				a.log.Error().Err(err).Str("path", strategyPath).Msg("Failed to load strategy config")
				return err
			}
			a.strategy = strategy
			return nil
		},
	}

	root.PersistentFlags().StringVar(&strategyPath, "strategy", env.StrategyPath, "YAML strategy config (defaults apply when empty)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", env.LogLevel, "debug, info, warn or error")
	root.PersistentFlags().BoolVar(&pretty, "pretty", env.LogPretty, "human readable logs")

	root.AddCommand(a.optimizeCmd())
	root.AddCommand(a.backtestCmd())
	root.AddCommand(a.metricsCmd())
	return root
}

func (a *app) writeJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
