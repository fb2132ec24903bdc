// Package risk computes risk-adjusted performance metrics over return and
// value series. Degenerate input never produces NaN or Inf: ratios are
// bounded by RatioCap and undefined quantities take neutral defaults.
package risk

import (
	"math"
	"time"

	"github.com/aristath/allocation-engine/internal/domain"
	"github.com/aristath/allocation-engine/pkg/formulas"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// TradingDaysPerYear annualizes daily statistics
	TradingDaysPerYear = 252

	// RatioCap bounds every ratio metric, standing in for an infinite ratio
	// such as a Sortino with no downside.
	RatioCap = 1000.0
)

// VaRMethod selects how value at risk is estimated
type VaRMethod string

const (
	Historical VaRMethod = "historical"
	Parametric VaRMethod = "parametric"
)

// epsilon treats dispersion below it as zero
const epsilon = 1e-12

func nearZero(v float64) bool {
	return math.Abs(v) < epsilon
}

func capRatio(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return formulas.Clamp(v, -RatioCap, RatioCap)
}

func excessReturns(returns []float64, riskFreeRate float64) []float64 {
	rf := riskFreeRate / TradingDaysPerYear
	out := make([]float64, len(returns))
	for i, r := range returns {
		out[i] = r - rf
	}
	return out
}

// Sharpe is the annualized mean excess return over its standard deviation.
// Zero volatility yields 0.
func Sharpe(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	excess := excessReturns(returns, riskFreeRate)
	sd := formulas.StdDev(excess)
	if nearZero(sd) {
		return 0
	}
	return capRatio(formulas.Mean(excess) / sd * math.Sqrt(TradingDaysPerYear))
}

// Sortino is the annualized mean excess return over the root mean square of
// the excess returns that fall below zero. With no downside the ratio is
// RatioCap for a positive mean, 0 otherwise.
func Sortino(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	excess := excessReturns(returns, riskFreeRate)
	mean := formulas.Mean(excess)

	sumSq := 0.0
	count := 0
	for _, e := range excess {
		if e < 0 {
			sumSq += e * e
			count++
		}
	}
	if count == 0 {
		if mean > epsilon {
			return RatioCap
		}
		return 0
	}
	downside := math.Sqrt(sumSq / float64(count))
	if nearZero(downside) {
		return 0
	}
	return capRatio(mean / downside * math.Sqrt(TradingDaysPerYear))
}

// Drawdown is the deepest peak-to-trough decline of a value series. Value is
// a non-positive fraction; indices refer to the input series.
type Drawdown struct {
	Value       float64
	PeakIndex   int
	TroughIndex int
	PeakDate    time.Time
	TroughDate  time.Time
}

// MaxDrawdown finds the largest decline from a running peak. A
// non-decreasing series has a drawdown of 0.
func MaxDrawdown(values []float64) Drawdown {
	var dd Drawdown
	if len(values) < 2 {
		return dd
	}
	peak := values[0]
	peakIdx := 0
	for i, v := range values {
		if v > peak {
			peak = v
			peakIdx = i
			continue
		}
		if peak <= 0 {
			continue
		}
		if d := v/peak - 1; d < dd.Value {
			dd.Value = d
			dd.PeakIndex = peakIdx
			dd.TroughIndex = i
		}
	}
	return dd
}

// MaxDrawdownSeries is MaxDrawdown with peak and trough dates filled in.
func MaxDrawdownSeries(series domain.ValueSeries) Drawdown {
	dd := MaxDrawdown(series.Values)
	if len(series.Dates) == len(series.Values) && len(series.Dates) > 0 {
		dd.PeakDate = series.Dates[dd.PeakIndex]
		dd.TroughDate = series.Dates[dd.TroughIndex]
	}
	return dd
}

// AnnualizedReturn compounds daily returns to an annual rate, bounded by
// formulas.MaxAnnualRate.
func AnnualizedReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	growth := 1.0
	for _, r := range returns {
		growth *= 1 + r
	}
	if growth <= 0 {
		return -1
	}
	return formulas.AnnualRate(math.Pow(growth, TradingDaysPerYear/float64(len(returns))) - 1)
}

// Calmar is the annualized mean return over the magnitude of the maximum
// drawdown. With no drawdown the ratio is RatioCap for a positive return, 0
// otherwise.
func Calmar(returns []float64, values []float64) float64 {
	annual := formulas.Mean(returns) * TradingDaysPerYear
	dd := MaxDrawdown(values).Value
	if dd == 0 {
		if annual > epsilon {
			return RatioCap
		}
		return 0
	}
	return capRatio(annual / math.Abs(dd))
}

// Volatility is the annualized standard deviation of returns.
func Volatility(returns []float64) float64 {
	return formulas.StdDev(returns) * math.Sqrt(TradingDaysPerYear)
}

// VaR is the return at the (1 - confidence) quantile. Historical uses the
// linearly interpolated empirical percentile; Parametric assumes normality.
func VaR(returns []float64, confidence float64, method VaRMethod) float64 {
	if len(returns) == 0 {
		return 0
	}
	alpha := 1 - confidence
	switch method {
	case Parametric:
		sd := formulas.StdDev(returns)
		mean := formulas.Mean(returns)
		if nearZero(sd) {
			return mean
		}
		return mean + sd*distuv.UnitNormal.Quantile(alpha)
	default:
		return formulas.Percentile(returns, alpha)
	}
}

// CVaR is the mean of returns at or below the historical VaR.
func CVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	threshold := VaR(returns, confidence, Historical)
	sum := 0.0
	count := 0
	for _, r := range returns {
		if r <= threshold {
			sum += r
			count++
		}
	}
	if count == 0 {
		return threshold
	}
	return sum / float64(count)
}

// Beta is cov(asset, market) / var(market) over the aligned prefix. It is
// 1 when the market has no variance or fewer than two observations.
func Beta(asset, market []float64) float64 {
	a, m := formulas.Align(asset, market)
	if len(a) < 2 {
		return 1
	}
	v := formulas.Variance(m)
	if nearZero(math.Sqrt(v)) {
		return 1
	}
	return formulas.Covariance(a, m) / v
}

// Alpha is Jensen's alpha on annualized returns:
// R_asset - [r_f + β (R_market - r_f)].
func Alpha(asset, market []float64, riskFreeRate float64) float64 {
	a, m := formulas.Align(asset, market)
	if len(a) == 0 {
		return 0
	}
	beta := Beta(a, m)
	return AnnualizedReturn(a) - (riskFreeRate + beta*(AnnualizedReturn(m)-riskFreeRate))
}

// TrackingError is the annualized standard deviation of active returns.
func TrackingError(portfolio, benchmark []float64) float64 {
	p, b := formulas.Align(portfolio, benchmark)
	return Volatility(difference(p, b))
}

// InformationRatio is the annualized mean active return over tracking error.
func InformationRatio(portfolio, benchmark []float64) float64 {
	p, b := formulas.Align(portfolio, benchmark)
	active := difference(p, b)
	sd := formulas.StdDev(active)
	if nearZero(sd) {
		return 0
	}
	return capRatio(formulas.Mean(active) / sd * math.Sqrt(TradingDaysPerYear))
}

// Correlation of two return series over the aligned prefix.
func Correlation(a, b []float64) float64 {
	x, y := formulas.Align(a, b)
	return formulas.Correlation(x, y)
}

// Capture holds up- and down-market capture ratios
type Capture struct {
	Up   float64
	Down float64
}

// CaptureRatios compares the portfolio's mean return to the benchmark's over
// periods where the benchmark rose (Up) or fell (Down). A ratio whose
// benchmark mean is zero is 0.
func CaptureRatios(portfolio, benchmark []float64) Capture {
	p, b := formulas.Align(portfolio, benchmark)
	var upP, upB, downP, downB []float64
	for i := range b {
		switch {
		case b[i] > 0:
			upP = append(upP, p[i])
			upB = append(upB, b[i])
		case b[i] < 0:
			downP = append(downP, p[i])
			downB = append(downB, b[i])
		}
	}
	return Capture{
		Up:   ratio(formulas.Mean(upP), formulas.Mean(upB)),
		Down: ratio(formulas.Mean(downP), formulas.Mean(downB)),
	}
}

func ratio(num, den float64) float64 {
	if nearZero(den) {
		return 0
	}
	return capRatio(num / den)
}

func difference(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}
