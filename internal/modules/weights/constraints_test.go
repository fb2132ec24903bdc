package weights

import (
	"testing"

	"github.com/aristath/allocation-engine/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestCombine(t *testing.T) {
	c := NewCalculator(zerolog.Nop())

	t.Run("weighted sum over union of assets", func(t *testing.T) {
		w := c.Combine([]Component{
			{Name: MethodMomentum, Weights: domain.WeightVector{"A": 1}, Coefficient: 0.4},
			{Name: MethodMarketCap, Weights: domain.WeightVector{"B": 1}, Coefficient: 0.3},
			{Name: MethodRiskParity, Weights: domain.WeightVector{"A": 0.5, "B": 0.5}, Coefficient: 0.3},
		})
		assertNormalized(t, w)
		assert.InDelta(t, 0.55, w["A"], 1e-12)
		assert.InDelta(t, 0.45, w["B"], 1e-12)
	})

	t.Run("coefficients renormalized", func(t *testing.T) {
		w := c.Combine([]Component{
			{Weights: domain.WeightVector{"A": 1}, Coefficient: 2},
			{Weights: domain.WeightVector{"B": 1}, Coefficient: 2},
		})
		assert.InDelta(t, 0.5, w["A"], 1e-12)
		assert.InDelta(t, 0.5, w["B"], 1e-12)
	})

	t.Run("empty component share is redistributed", func(t *testing.T) {
		w := c.Combine([]Component{
			{Weights: domain.WeightVector{"A": 0.25, "B": 0.75}, Coefficient: 0.7},
			{Weights: domain.WeightVector{}, Coefficient: 0.3},
		})
		assertNormalized(t, w)
		assert.InDelta(t, 0.25, w["A"], 1e-12)
	})

	t.Run("no positive coefficient", func(t *testing.T) {
		assert.Empty(t, c.Combine([]Component{{Weights: domain.WeightVector{"A": 1}}}))
	})
}

func TestApplyConstraints(t *testing.T) {
	c := NewCalculator(zerolog.Nop())

	tests := []struct {
		name string
		in   domain.WeightVector
		cons Constraints
		want domain.WeightVector
	}{
		{
			name: "excess above cap is redistributed",
			in:   domain.WeightVector{"A": 0.7, "B": 0.2, "C": 0.1},
			cons: Constraints{MinWeight: 0, MaxWeight: 0.5, MaxPositions: 10},
			want: domain.WeightVector{"A": 0.5, "B": 1.0 / 3.0, "C": 1.0 / 6.0},
		},
		{
			name: "small weights dropped",
			in:   domain.WeightVector{"A": 0.5, "B": 0.495, "C": 0.005},
			cons: Constraints{MinWeight: 0.01, MaxWeight: 1, MaxPositions: 10},
			want: domain.WeightVector{"A": 0.5 / 0.995, "B": 0.495 / 0.995},
		},
		{
			name: "max positions keeps largest with ties by id",
			in:   domain.WeightVector{"D": 0.4, "C": 0.2, "B": 0.2, "A": 0.2},
			cons: Constraints{MinWeight: 0, MaxWeight: 1, MaxPositions: 2},
			want: domain.WeightVector{"D": 2.0 / 3.0, "A": 1.0 / 3.0},
		},
		{
			name: "infeasible cap uses equal weights",
			in:   domain.WeightVector{"A": 0.9, "B": 0.1},
			cons: Constraints{MinWeight: 0, MaxWeight: 0.4, MaxPositions: 10},
			want: domain.WeightVector{"A": 0.5, "B": 0.5},
		},
		{
			name: "min weight dropping everything skips filter",
			in:   domain.WeightVector{"A": 0.5, "B": 0.5},
			cons: Constraints{MinWeight: 0.6, MaxWeight: 1, MaxPositions: 10},
			want: domain.WeightVector{"A": 0.5, "B": 0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ApplyConstraints(tt.in, tt.cons)
			assert.Len(t, got, len(tt.want))
			for asset, v := range tt.want {
				assert.InDelta(t, v, got[asset], 1e-9, asset)
			}
			assertNormalized(t, got)
		})
	}
}

func TestApplyConstraints_Idempotent(t *testing.T) {
	c := NewCalculator(zerolog.Nop())
	cons := Constraints{MinWeight: 0.01, MaxWeight: 0.3, MaxPositions: 5}
	in := domain.WeightVector{
		"A": 0.45, "B": 0.2, "C": 0.12, "D": 0.1, "E": 0.08, "F": 0.04, "G": 0.006, "H": 0.004,
	}

	once := c.ApplyConstraints(in, cons)
	twice := c.ApplyConstraints(once, cons)

	assert.Len(t, once, 5)
	assert.Len(t, twice, len(once))
	for asset, v := range once {
		assert.InDelta(t, v, twice[asset], 1e-9, asset)
		assert.LessOrEqual(t, v, 0.3+1e-9)
		assert.GreaterOrEqual(t, v, 0.01)
	}
	assertNormalized(t, once)
}

func TestApplyConstraints_Empty(t *testing.T) {
	c := NewCalculator(zerolog.Nop())
	assert.Empty(t, c.ApplyConstraints(domain.WeightVector{}, Constraints{MaxWeight: 0.4, MaxPositions: 3}))
	assert.Empty(t, c.ApplyConstraints(domain.WeightVector{"A": 0}, Constraints{MaxWeight: 0.4, MaxPositions: 3}))
}
