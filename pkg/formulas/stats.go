// Package formulas holds small numeric helpers shared by the analytics modules.
// Every helper tolerates empty input and never returns NaN for it.
package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MaxAnnualRate bounds annualized rates. Compounding a large gain over a few
// days otherwise overflows to +Inf.
const MaxAnnualRate = 1000.0

// AnnualRate bounds an annualized rate to [-1, MaxAnnualRate]; NaN maps to 0.
func AnnualRate(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return Clamp(v, -1, MaxAnnualRate)
}

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation (n-1 denominator).
// Fewer than two observations yield 0.
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	sd := stat.StdDev(data, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return sd
}

// Variance calculates the sample variance (n-1 denominator).
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	v := stat.Variance(data, nil)
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// Covariance calculates the sample covariance between two equal-length series.
func Covariance(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// Correlation calculates the Pearson correlation coefficient.
// Returns 0 when either series is constant.
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	if StdDev(x) < 1e-12 || StdDev(y) < 1e-12 {
		return 0
	}
	c := stat.Correlation(x, y, nil)
	if math.IsNaN(c) {
		return 0
	}
	return Clamp(c, -1, 1)
}

// Sum adds the values.
func Sum(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return floats.Sum(data)
}

// Percentile returns the q-th quantile (q in [0,1]) using linear interpolation
// between closest ranks: position q*(n-1) in the sorted data.
func Percentile(data []float64, q float64) float64 {
	n := len(data)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, data)
	sort.Float64s(sorted)

	q = Clamp(q, 0, 1)
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// DropNaN returns the non-missing values in order.
func DropNaN(data []float64) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Align truncates two series to the length of the shorter one.
func Align(a, b []float64) ([]float64, []float64) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	return a[:n], b[:n]
}
