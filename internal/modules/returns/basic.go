// Package returns computes simple, compounded, period, benchmark-relative and
// cash-flow-adjusted returns.
package returns

import (
	"math"
)

// Simple is p1/p0 - 1; a non-positive starting price yields 0.
func Simple(p0, p1 float64) float64 {
	if p0 <= 0 {
		return 0
	}
	return p1/p0 - 1
}

// Log is ln(p1/p0); non-positive prices yield 0.
func Log(p0, p1 float64) float64 {
	if p0 <= 0 || p1 <= 0 {
		return 0
	}
	return math.Log(p1 / p0)
}

// Compound chains period returns: Π(1+r) - 1.
func Compound(rs []float64) float64 {
	growth := 1.0
	for _, r := range rs {
		growth *= 1 + r
	}
	return growth - 1
}

// SimpleSeries converts prices into period returns, one shorter than the input.
func SimpleSeries(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = Simple(prices[i-1], prices[i])
	}
	return out
}

// CumulativeSeries is the running return relative to the first price.
func CumulativeSeries(prices []float64) []float64 {
	out := make([]float64, len(prices))
	if len(prices) == 0 {
		return out
	}
	for i, p := range prices {
		out[i] = Simple(prices[0], p)
	}
	return out
}

// ToPrices rebuilds a price path starting at p0 from period returns.
func ToPrices(rs []float64, p0 float64) []float64 {
	out := make([]float64, len(rs)+1)
	out[0] = p0
	for i, r := range rs {
		out[i+1] = out[i] * (1 + r)
	}
	return out
}

// Cumulative is the total return of a return series, computed through the
// reconstructed price path. It agrees with Compound.
func Cumulative(rs []float64) float64 {
	prices := ToPrices(rs, 1)
	return prices[len(prices)-1] - 1
}
