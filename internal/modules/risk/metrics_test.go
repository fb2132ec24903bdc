package risk

import (
	"math"
	"testing"
	"time"

	"github.com/aristath/allocation-engine/internal/domain"
	"github.com/aristath/allocation-engine/pkg/formulas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finite(t *testing.T, v float64) {
	t.Helper()
	assert.False(t, math.IsNaN(v), "NaN")
	assert.False(t, math.IsInf(v, 0), "Inf")
}

func TestSharpe(t *testing.T) {
	t.Run("zero volatility yields zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Sharpe([]float64{0.01, 0.01, 0.01, 0.01}, 0.02))
	})

	t.Run("known value", func(t *testing.T) {
		r := []float64{0.01, -0.01, 0.02, 0.0}
		// rf = 0: mean 0.005, sample std sqrt(0.0005/3)
		want := 0.005 / math.Sqrt(0.0005/3) * math.Sqrt(252)
		assert.InDelta(t, want, Sharpe(r, 0), 1e-9)
	})

	t.Run("too short", func(t *testing.T) {
		assert.Equal(t, 0.0, Sharpe([]float64{0.05}, 0))
		assert.Equal(t, 0.0, Sharpe(nil, 0))
	})
}

func TestSortino(t *testing.T) {
	t.Run("no downside is capped", func(t *testing.T) {
		assert.Equal(t, RatioCap, Sortino([]float64{0.01, 0.02, 0.03}, 0))
	})

	t.Run("flat series is zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Sortino([]float64{0, 0, 0}, 0))
	})

	t.Run("known value", func(t *testing.T) {
		r := []float64{0.02, -0.01, 0.03, -0.02}
		mean := 0.005
		downside := math.Sqrt((0.0001 + 0.0004) / 2)
		assert.InDelta(t, mean/downside*math.Sqrt(252), Sortino(r, 0), 1e-9)
	})
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
		peak   int
		trough int
	}{
		{"monotone increasing", []float64{1, 2, 3, 4}, 0, 0, 0},
		{"single decline", []float64{100, 120, 90, 110}, -0.25, 1, 2},
		{"deepest of two", []float64{100, 90, 100, 130, 65, 140}, -0.5, 3, 4},
		{"empty", nil, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dd := MaxDrawdown(tt.values)
			assert.InDelta(t, tt.want, dd.Value, 1e-12)
			assert.LessOrEqual(t, dd.Value, 0.0)
			assert.Equal(t, tt.peak, dd.PeakIndex)
			assert.Equal(t, tt.trough, dd.TroughIndex)
		})
	}
}

func TestMaxDrawdownSeries(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := domain.ValueSeries{
		Dates:  []time.Time{start, start.AddDate(0, 0, 1), start.AddDate(0, 0, 2)},
		Values: []float64{100, 80, 90},
	}
	dd := MaxDrawdownSeries(s)
	assert.InDelta(t, -0.2, dd.Value, 1e-12)
	assert.Equal(t, start, dd.PeakDate)
	assert.Equal(t, start.AddDate(0, 0, 1), dd.TroughDate)
}

func TestCalmar(t *testing.T) {
	values := []float64{100, 110, 99, 120}
	returns := []float64{0.1, -0.1, 120.0/99.0 - 1}
	got := Calmar(returns, values)
	finite(t, got)
	assert.Greater(t, got, 0.0)

	assert.Equal(t, RatioCap, Calmar([]float64{0.01, 0.01}, []float64{100, 101, 102.01}))
	assert.Equal(t, 0.0, Calmar([]float64{0, 0}, []float64{100, 100, 100}))

	t.Run("numerator is the annualized mean", func(t *testing.T) {
		r := []float64{0.03, -0.05, 0.02, 0.04, -0.06, 0.05}
		v := []float64{100}
		for _, x := range r {
			v = append(v, v[len(v)-1]*(1+x))
		}
		require.InDelta(t, -0.06, MaxDrawdown(v).Value, 1e-12)
		// mean 0.005 * 252 / 0.06; compounding would give about 29.4
		assert.InDelta(t, 21.0, Calmar(r, v), 1e-9)
	})
}

func TestAnnualizedReturnIsBounded(t *testing.T) {
	// a 1000x gain in one day compounds past float64 range
	got := AnnualizedReturn([]float64{999})
	finite(t, got)
	assert.Equal(t, formulas.MaxAnnualRate, got)

	a := Alpha([]float64{999, 0.01}, []float64{0.01, 0.02}, 0.02)
	finite(t, a)
}

func TestVaRAndCVaR(t *testing.T) {
	r := []float64{-0.05, -0.03, -0.01, 0.0, 0.01, 0.02, 0.03, 0.04, 0.05, 0.06}

	// linear percentile at 0.05 over 10 points: position 0.45 between -0.05 and -0.03
	assert.InDelta(t, -0.041, VaR(r, 0.95, Historical), 1e-12)
	assert.InDelta(t, -0.05, CVaR(r, 0.95), 1e-12)

	p := VaR(r, 0.95, Parametric)
	finite(t, p)
	assert.Less(t, p, 0.0)

	assert.Equal(t, 0.0, VaR(nil, 0.95, Historical))
	assert.Equal(t, 0.0, CVaR(nil, 0.95))
	assert.Equal(t, 0.01, VaR([]float64{0.01, 0.01}, 0.95, Parametric))
}

func TestBetaAlpha(t *testing.T) {
	market := []float64{0.01, -0.02, 0.015, 0.005, -0.01}
	asset := make([]float64, len(market))
	for i, m := range market {
		asset[i] = 2 * m
	}
	assert.InDelta(t, 2.0, Beta(asset, market), 1e-12)
	assert.Equal(t, 1.0, Beta(asset, []float64{0.01, 0.01, 0.01, 0.01, 0.01}))
	assert.Equal(t, 1.0, Beta([]float64{0.01}, []float64{0.02}))

	// an asset identical to the market has zero alpha
	assert.InDelta(t, 0.0, Alpha(market, market, 0.02), 1e-12)
	finite(t, Alpha(asset, market, 0.02))
}

func TestTrackingErrorAndInformationRatio(t *testing.T) {
	b := []float64{0.01, 0.02, -0.01, 0.0}
	assert.Equal(t, 0.0, TrackingError(b, b))
	assert.Equal(t, 0.0, InformationRatio(b, b))

	p := []float64{0.02, 0.02, 0.0, 0.0}
	te := TrackingError(p, b)
	assert.Greater(t, te, 0.0)
	ir := InformationRatio(p, b)
	finite(t, ir)
	assert.Greater(t, ir, 0.0)

	// misaligned lengths use the shorter prefix
	assert.InDelta(t, TrackingError(p[:3], b[:3]), TrackingError(p[:3], b), 1e-15)
}

func TestCaptureRatios(t *testing.T) {
	b := []float64{0.02, -0.01, 0.04, -0.03}
	p := []float64{0.01, -0.005, 0.02, -0.015}
	c := CaptureRatios(p, b)
	assert.InDelta(t, 0.5, c.Up, 1e-12)
	assert.InDelta(t, 0.5, c.Down, 1e-12)

	flat := CaptureRatios([]float64{0.01, 0.02}, []float64{0, 0})
	assert.Equal(t, 0.0, flat.Up)
	assert.Equal(t, 0.0, flat.Down)
}

func TestCorrelation(t *testing.T) {
	assert.InDelta(t, 1.0, Correlation([]float64{1, 2, 3}, []float64{2, 4, 6, 100}), 1e-12)
	assert.Equal(t, 0.0, Correlation([]float64{1, 1, 1}, []float64{1, 2, 3}))
}

func TestDegenerateInputsStayFinite(t *testing.T) {
	inputs := [][]float64{nil, {0}, {0, 0, 0}, {-0.99, 5, -0.5}}
	for _, r := range inputs {
		finite(t, Sharpe(r, 0.02))
		finite(t, Sortino(r, 0.02))
		finite(t, Volatility(r))
		finite(t, VaR(r, 0.95, Historical))
		finite(t, VaR(r, 0.95, Parametric))
		finite(t, CVaR(r, 0.95))
		finite(t, Beta(r, r))
		finite(t, Alpha(r, r, 0.02))
		finite(t, InformationRatio(r, r))
		finite(t, AnnualizedReturn(r))
	}
}
