package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aristath/allocation-engine/internal/dataio"
	"github.com/aristath/allocation-engine/internal/domain"
	"github.com/aristath/allocation-engine/internal/modules/optimization"
	"github.com/aristath/allocation-engine/internal/modules/performance"
	"github.com/spf13/cobra"
)

func (a *app) optimizeCmd() *cobra.Command {
	var (
		pricesPath string
		capsPath   string
		dateFlag   string
	)
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Compute the target allocation for a date",
		Long: `Compute the target allocation from prices dated on or before --date.

Example:
  engine optimize --prices prices.csv --caps caps.csv --date 2024-06-28`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prices, err := readFile(pricesPath, dataio.ReadPrices)
			if err != nil {
				return err
			}
			var caps domain.MarketCapVector
			if capsPath != "" {
				if caps, err = readFile(capsPath, dataio.ReadMarketCaps); err != nil {
					return err
				}
			}

			date := lastDate(prices.Dates)
			if dateFlag != "" {
				if date, err = time.Parse(dataio.DateLayout, dateFlag); err != nil {
					return fmt.Errorf("invalid --date %q (use YYYY-MM-DD): %w", dateFlag, err)
				}
			}

			decision, err := optimization.NewOptimizer(a.log).Optimize(prices, caps, a.strategy, date)
			if err != nil {
				return err
			}
			return a.writeJSON(decision)
		},
	}
	cmd.Flags().StringVar(&pricesPath, "prices", "", "price CSV (date,<asset>...)")
	cmd.Flags().StringVar(&capsPath, "caps", "", "market cap CSV (asset,cap)")
	cmd.Flags().StringVar(&dateFlag, "date", "", "decision date, defaults to the last price date")
	_ = cmd.MarkFlagRequired("prices")
	return cmd
}

type backtestOutput struct {
	*optimization.BacktestResult
	Snapshot *performance.Snapshot `json:"snapshot"`
}

func (a *app) backtestCmd() *cobra.Command {
	var (
		pricesPath   string
		initialValue float64
		dates        []string
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the strategy over a price history",
		Long: `Replay the strategy over a price history and report the value series,
trades and a performance snapshot. Rebalance dates follow the strategy's
rebalance_frequency unless --rebalance is given.

Example:
  engine backtest --prices prices.csv --initial-value 100000 --rebalance 2024-01-02,2024-04-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prices, err := readFile(pricesPath, dataio.ReadPrices)
			if err != nil {
				return err
			}
			rebalance := make([]time.Time, 0, len(dates))
			for _, d := range dates {
				t, err := time.Parse(dataio.DateLayout, d)
				if err != nil {
					return fmt.Errorf("invalid --rebalance date %q (use YYYY-MM-DD): %w", d, err)
				}
				rebalance = append(rebalance, t)
			}
			if !cmd.Flags().Changed("initial-value") {
				initialValue = a.env.InitialValue
			}

			result, err := optimization.NewOptimizer(a.log).Backtest(prices, a.strategy, initialValue, rebalance)
			if err != nil {
				return err
			}
			snapshot, err := performance.NewTracker(a.log, a.strategy).Compute(result.Values, domain.ValueSeries{}, nil, 0)
			if err != nil {
				return err
			}
			return a.writeJSON(backtestOutput{BacktestResult: result, Snapshot: snapshot})
		},
	}
	cmd.Flags().StringVar(&pricesPath, "prices", "", "price CSV (date,<asset>...)")
	cmd.Flags().Float64Var(&initialValue, "initial-value", 0, "starting portfolio value (default INITIAL_VALUE)")
	cmd.Flags().StringSliceVar(&dates, "rebalance", nil, "explicit rebalance dates")
	_ = cmd.MarkFlagRequired("prices")
	return cmd
}

type metricsOutput struct {
	Snapshot *performance.Snapshot      `json:"snapshot"`
	Rolling  []performance.RollingPoint `json:"rolling,omitempty"`
}

func (a *app) metricsCmd() *cobra.Command {
	var (
		valuesPath    string
		benchmarkPath string
		flowsPath     string
		lookback      int
		rolling       int
	)
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Compute risk and return metrics for a value series",
		Long: `Compute a performance snapshot for a portfolio value series, optionally
against a benchmark and adjusted for external cash flows.

Example:
  engine metrics --values values.csv --benchmark index.csv --flows flows.csv --lookback 365`,
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := readFile(valuesPath, dataio.ReadValues)
			if err != nil {
				return err
			}
			var benchmark domain.ValueSeries
			if benchmarkPath != "" {
				if benchmark, err = readFile(benchmarkPath, dataio.ReadValues); err != nil {
					return err
				}
			}
			var flows []domain.CashFlowEvent
			if flowsPath != "" {
				if flows, err = readFile(flowsPath, dataio.ReadCashFlows); err != nil {
					return err
				}
			}

			tracker := performance.NewTracker(a.log, a.strategy)
			snapshot, err := tracker.Compute(values, benchmark, flows, lookback)
			if err != nil {
				return err
			}
			out := metricsOutput{Snapshot: snapshot}
			if rolling > 0 {
				if out.Rolling, err = tracker.Rolling(values, rolling); err != nil {
					return err
				}
			}
			return a.writeJSON(out)
		},
	}
	cmd.Flags().StringVar(&valuesPath, "values", "", "value CSV (date,value)")
	cmd.Flags().StringVar(&benchmarkPath, "benchmark", "", "benchmark value CSV (date,value)")
	cmd.Flags().StringVar(&flowsPath, "flows", "", "cash flow CSV (date,amount)")
	cmd.Flags().IntVar(&lookback, "lookback", 0, "trailing calendar days, 0 for all")
	cmd.Flags().IntVar(&rolling, "rolling", 0, "rolling window in periods, 0 to skip")
	_ = cmd.MarkFlagRequired("values")
	return cmd
}

func readFile[T any](path string, read func(r io.Reader) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	v, err := read(f)
	if err != nil {
		return v, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

func lastDate(dates []time.Time) time.Time {
	if len(dates) == 0 {
		return time.Time{}
	}
	return dates[len(dates)-1]
}
