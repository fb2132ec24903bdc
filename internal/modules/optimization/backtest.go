package optimization

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/allocation-engine/internal/config"
	"github.com/aristath/allocation-engine/internal/domain"
	"github.com/aristath/allocation-engine/internal/utils"
)

// Trade records what happened at one scheduled rebalance
type Trade struct {
	Date     time.Time `json:"date"`
	Turnover float64   `json:"turnover"`
	Cost     float64   `json:"cost"`
	Skipped  bool      `json:"skipped"`
	Reason   string    `json:"reason,omitempty"`
}

// BacktestResult is the replay of a strategy over a price history
type BacktestResult struct {
	Values      domain.ValueSeries  `json:"values"`
	Allocations []domain.Allocation `json:"allocations"`
	Trades      []Trade             `json:"trades"`
	Decisions   []*Decision         `json:"decisions"`
}

// TotalCost sums the transaction costs paid
func (r *BacktestResult) TotalCost() float64 {
	total := 0.0
	for _, t := range r.Trades {
		total += t.Cost
	}
	return total
}

// Backtest replays Optimize at every rebalance date and compounds the
// portfolio value day by day. Each decision sees only prices dated on or
// before its rebalance date. Between rebalances positions drift with their
// prices; an asset without a price on a day is marked at its last price.
// The portfolio holds cash until the first rebalance. When rebalanceDates is
// empty the dates follow cfg.RebalanceFrequency; dates that are not trading
// days move to the next trading day.
func (o *Optimizer) Backtest(prices *domain.PriceMatrix, cfg config.StrategyConfig, initialValue float64, rebalanceDates []time.Time) (*BacktestResult, error) {
	defer utils.OperationTimer("backtest", o.log)()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := prices.Validate(); err != nil {
		return nil, err
	}
	if initialValue <= 0 || math.IsNaN(initialValue) || math.IsInf(initialValue, 0) {
		return nil, fmt.Errorf("%w: initial value must be positive, got %v", domain.ErrInvalidInput, initialValue)
	}
	if prices.Rows() == 0 {
		return nil, fmt.Errorf("%w: price matrix has no rows", domain.ErrInvalidInput)
	}

	if len(rebalanceDates) == 0 {
		scheduled, err := RebalanceDates(cfg.RebalanceFrequency, prices.Dates)
		if err != nil {
			return nil, err
		}
		rebalanceDates = scheduled
	}
	scheduled := o.scheduleRows(prices.Dates, rebalanceDates)

	result := &BacktestResult{
		Values: domain.ValueSeries{
			Dates:  append([]time.Time(nil), prices.Dates...),
			Values: make([]float64, prices.Rows()),
		},
		Allocations: []domain.Allocation{},
		Trades:      []Trade{},
		Decisions:   []*Decision{},
	}

	assets := prices.Assets()
	positions := make(map[string]float64)
	lastPrice := make(map[string]float64)
	cash := initialValue
	var lastTrade time.Time
	traded := false

	for i, date := range prices.Dates {
		value := cash
		for _, asset := range assets {
			p := prices.Data[asset][i]
			if math.IsNaN(p) || p <= 0 {
				value += positions[asset]
				continue
			}
			if prev, ok := lastPrice[asset]; ok && positions[asset] != 0 {
				positions[asset] *= p / prev
			}
			lastPrice[asset] = p
			value += positions[asset]
		}

		if scheduled[i] {
			decision, err := o.Optimize(prices, nil, cfg, date)
			switch {
			case errors.Is(err, domain.ErrDataQuality):
				o.log.Warn().Err(err).Time("date", date).Msg("Skipping rebalance without usable data")
				result.Trades = append(result.Trades, Trade{Date: date, Skipped: true, Reason: err.Error()})
			case err != nil:
				return nil, fmt.Errorf("rebalance on %s: %w", date.Format("2006-01-02"), err)
			default:
				result.Decisions = append(result.Decisions, decision)
				target := decision.Allocation.Weights
				current := currentWeights(positions, value)
				turnover := Turnover(current, target)

				days := 0
				if traded {
					days = int(date.Sub(lastTrade).Hours() / 24)
				}
				if traded && !ShouldRebalance(current, target, cfg.DriftThreshold, days, cfg.MinRebalanceDays) {
					result.Trades = append(result.Trades, Trade{
						Date:     date,
						Turnover: turnover,
						Skipped:  true,
						Reason:   "drift below threshold or too soon since last rebalance",
					})
					break
				}

				cost := TransactionCost(turnover, value, cfg.TransactionCostRate)
				value -= cost
				cash = value
				for asset := range positions {
					delete(positions, asset)
				}
				for _, asset := range target.Assets() {
					if _, priced := lastPrice[asset]; !priced {
						continue
					}
					positions[asset] = target[asset] * value
					cash -= positions[asset]
				}
				if math.Abs(cash) < 1e-9*value {
					cash = 0
				}

				traded = true
				lastTrade = date
				result.Trades = append(result.Trades, Trade{Date: date, Turnover: turnover, Cost: cost})
				result.Allocations = append(result.Allocations, decision.Allocation)
			}
		}

		result.Values.Values[i] = value
	}

	o.log.Info().
		Int("days", prices.Rows()).
		Int("rebalances", len(result.Allocations)).
		Float64("final_value", result.Values.Values[prices.Rows()-1]).
		Float64("costs", result.TotalCost()).
		Msg("Backtest complete")

	return result, nil
}

// scheduleRows marks the row index of each rebalance date, moving dates that
// fall between rows to the following row. Dates after the last row are dropped.
func (o *Optimizer) scheduleRows(dates, rebalanceDates []time.Time) []bool {
	marks := make([]bool, len(dates))
	dropped := 0
	for _, d := range rebalanceDates {
		idx := sort.Search(len(dates), func(i int) bool { return !dates[i].Before(d) })
		if idx == len(dates) {
			dropped++
			continue
		}
		marks[idx] = true
	}
	if dropped > 0 {
		o.log.Debug().Int("dates", dropped).Msg("Ignored rebalance dates after the price history")
	}
	return marks
}

func currentWeights(positions map[string]float64, value float64) domain.WeightVector {
	w := make(domain.WeightVector, len(positions))
	if value <= 0 {
		return w
	}
	for asset, pos := range positions {
		if pos > 0 {
			w[asset] = pos / value
		}
	}
	return w
}
