package optimization

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/allocation-engine/internal/config"
	"github.com/aristath/allocation-engine/internal/domain"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// Cron schedules for each rebalance frequency, evaluated in the location of
// the price dates
var frequencySchedules = map[string]string{
	config.FrequencyDaily:   "0 0 * * *",
	config.FrequencyWeekly:  "0 0 * * 1",
	config.FrequencyMonthly: "0 0 1 * *",
}

// ShouldRebalance reports whether the portfolio should trade towards target.
// Nothing trades within minDays of the previous rebalance; after that any
// weight drifting more than driftThreshold from its target triggers a trade.
func ShouldRebalance(current, target domain.WeightVector, driftThreshold float64, daysSinceLast, minDays int) bool {
	if daysSinceLast < minDays {
		return false
	}
	for _, asset := range union(current, target) {
		if math.Abs(current[asset]-target[asset]) > driftThreshold {
			return true
		}
	}
	return false
}

// Turnover is the total absolute weight change between two allocations, in [0, 2].
func Turnover(old, target domain.WeightVector) float64 {
	total := 0.0
	for _, asset := range union(old, target) {
		total += math.Abs(target[asset] - old[asset])
	}
	return total
}

// TransactionCost is turnover * portfolioValue * costRate rounded to cents.
func TransactionCost(turnover, portfolioValue, costRate float64) float64 {
	cost := decimal.NewFromFloat(turnover).
		Mul(decimal.NewFromFloat(portfolioValue)).
		Mul(decimal.NewFromFloat(costRate)).
		Round(2)
	return cost.InexactFloat64()
}

// RebalanceDates picks, for every instant the frequency schedules between the
// first and last date, the first trading date at or after that instant.
func RebalanceDates(frequency string, dates []time.Time) ([]time.Time, error) {
	expr, ok := frequencySchedules[frequency]
	if !ok {
		return nil, fmt.Errorf("%w: unknown rebalance frequency %q", domain.ErrInvalidInput, frequency)
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule %q: %w", expr, err)
	}
	if len(dates) == 0 {
		return []time.Time{}, nil
	}

	last := dates[len(dates)-1]
	out := []time.Time{}
	idx := 0
	for at := schedule.Next(dates[0].Add(-time.Nanosecond)); !at.After(last); at = schedule.Next(at) {
		for idx < len(dates) && dates[idx].Before(at) {
			idx++
		}
		if idx == len(dates) {
			break
		}
		if len(out) > 0 && out[len(out)-1].Equal(dates[idx]) {
			continue
		}
		out = append(out, dates[idx])
	}
	return out, nil
}

func union(a, b domain.WeightVector) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
