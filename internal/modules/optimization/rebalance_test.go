package optimization

import (
	"testing"
	"time"

	"github.com/aristath/allocation-engine/internal/config"
	"github.com/aristath/allocation-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldRebalance(t *testing.T) {
	current := domain.WeightVector{"A": 0.6, "B": 0.4}
	target := domain.WeightVector{"A": 0.5, "B": 0.5}

	tests := []struct {
		name      string
		current   domain.WeightVector
		target    domain.WeightVector
		threshold float64
		days      int
		minDays   int
		want      bool
	}{
		{"too soon regardless of drift", current, target, 0.05, 3, 30, false},
		{"drift after minimum period", current, target, 0.05, 40, 30, true},
		{"drift within threshold", current, target, 0.2, 40, 30, false},
		{"exactly at threshold", domain.WeightVector{"A": 0.55, "B": 0.45}, target, 0.05 + 1e-12, 40, 0, false},
		{"new asset in target", current, domain.WeightVector{"A": 0.6, "B": 0.3, "C": 0.1}, 0.05, 1, 0, true},
		{"asset dropped from target", current, domain.WeightVector{"A": 1}, 0.05, 1, 0, true},
		{"identical", target, target, 0, 100, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRebalance(tt.current, tt.target, tt.threshold, tt.days, tt.minDays))
		})
	}
}

func TestTurnover(t *testing.T) {
	assert.InDelta(t, 0.2, Turnover(
		domain.WeightVector{"A": 0.6, "B": 0.4},
		domain.WeightVector{"A": 0.5, "B": 0.5},
	), 1e-12)
	assert.InDelta(t, 2.0, Turnover(
		domain.WeightVector{"A": 1},
		domain.WeightVector{"B": 1},
	), 1e-12)
	assert.InDelta(t, 1.0, Turnover(nil, domain.WeightVector{"A": 0.3, "B": 0.7}), 1e-12)
	assert.Zero(t, Turnover(nil, nil))
}

func TestTransactionCost(t *testing.T) {
	assert.Equal(t, 100.0, TransactionCost(1, 100000, 0.001))
	assert.Equal(t, 20.0, TransactionCost(0.2, 100000, 0.001))
	assert.Equal(t, 0.33, TransactionCost(1, 333.33, 0.001))
	assert.Zero(t, TransactionCost(0.5, 100000, 0))
}

func TestRebalanceDates(t *testing.T) {
	// Mon 2024-01-01 .. Fri 2024-02-09, weekdays only
	var trading []time.Time
	for d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); d.Before(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			trading = append(trading, d)
		}
	}

	t.Run("daily", func(t *testing.T) {
		got, err := RebalanceDates(config.FrequencyDaily, trading)
		require.NoError(t, err)
		assert.Equal(t, trading, got)
	})

	t.Run("weekly lands on mondays", func(t *testing.T) {
		got, err := RebalanceDates(config.FrequencyWeekly, trading)
		require.NoError(t, err)
		require.Len(t, got, 6)
		for _, d := range got {
			assert.Equal(t, time.Monday, d.Weekday())
		}
	})

	t.Run("weekly holiday moves to next trading day", func(t *testing.T) {
		// drop Monday 2024-01-15
		var holiday []time.Time
		for _, d := range trading {
			if !d.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
				holiday = append(holiday, d)
			}
		}
		got, err := RebalanceDates(config.FrequencyWeekly, holiday)
		require.NoError(t, err)
		assert.Contains(t, got, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC))
	})

	t.Run("monthly picks first trading day", func(t *testing.T) {
		got, err := RebalanceDates(config.FrequencyMonthly, trading)
		require.NoError(t, err)
		assert.Equal(t, []time.Time{
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		}, got)
	})

	t.Run("empty dates", func(t *testing.T) {
		got, err := RebalanceDates(config.FrequencyWeekly, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unknown frequency", func(t *testing.T) {
		_, err := RebalanceDates("hourly", trading)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}
