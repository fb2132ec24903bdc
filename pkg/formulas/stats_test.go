package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanAndStdDev(t *testing.T) {
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 5.0, Mean(data), 1e-12)
	// sample std: sqrt(32/7)
	assert.InDelta(t, math.Sqrt(32.0/7.0), StdDev(data), 1e-12)
	assert.InDelta(t, 32.0/7.0, Variance(data), 1e-12)

	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, StdDev([]float64{1}))
	assert.Equal(t, 0.0, Variance(nil))
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, 1.0, Correlation(x, []float64{2, 4, 6, 8, 10}), 1e-12)
	assert.InDelta(t, -1.0, Correlation(x, []float64{5, 4, 3, 2, 1}), 1e-12)
	assert.Equal(t, 0.0, Correlation(x, []float64{3, 3, 3, 3, 3}))
	assert.Equal(t, 0.0, Correlation(x, []float64{1, 2}))
}

func TestPercentile(t *testing.T) {
	data := []float64{5, 1, 4, 2, 3}
	tests := []struct {
		name string
		q    float64
		want float64
	}{
		{"min", 0, 1},
		{"max", 1, 5},
		{"median", 0.5, 3},
		{"interpolated", 0.05, 1.2},
		{"upper interpolated", 0.95, 4.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Percentile(data, tt.q), 1e-12)
		})
	}
	assert.Equal(t, 0.0, Percentile(nil, 0.5))
	// input is not reordered
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, data)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, 1.0, Clamp(3, -1, 1))
	assert.Equal(t, -1.0, Clamp(-3, -1, 1))
	assert.True(t, Finite(1))
	assert.False(t, Finite(math.NaN()))
	assert.False(t, Finite(math.Inf(-1)))
	assert.Equal(t, []float64{1, 3}, DropNaN([]float64{1, math.NaN(), 3}))

	a, b := Align([]float64{1, 2, 3}, []float64{4, 5})
	assert.Equal(t, []float64{1, 2}, a)
	assert.Equal(t, []float64{4, 5}, b)
}
