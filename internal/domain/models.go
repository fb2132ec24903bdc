// Package domain provides the shared data model of the allocation engine.
package domain

import (
	"fmt"
	"math"
	"time"
)

// WeightTolerance is the allowed deviation of a normalized weight vector's sum from 1.
const WeightTolerance = 1e-6

// WeightVector maps asset id to portfolio weight in [0, 1].
// Arithmetic over a vector iterates in sorted asset order so results are reproducible.
type WeightVector map[string]float64

// Assets returns the asset ids in sorted order.
func (w WeightVector) Assets() []string {
	return sortedKeys(w)
}

// Sum adds the weights in sorted asset order.
func (w WeightVector) Sum() float64 {
	total := 0.0
	for _, a := range w.Assets() {
		total += w[a]
	}
	return total
}

// Clone returns a copy.
func (w WeightVector) Clone() WeightVector {
	out := make(WeightVector, len(w))
	for a, v := range w {
		out[a] = v
	}
	return out
}

// Normalize returns a copy scaled to sum to 1, with zero and negative
// weights dropped. A vector with no positive weight yields an empty vector.
func (w WeightVector) Normalize() WeightVector {
	out := make(WeightVector, len(w))
	total := 0.0
	for _, a := range w.Assets() {
		if v := w[a]; v > 0 && !math.IsNaN(v) {
			total += v
		}
	}
	if total <= 0 || math.IsInf(total, 0) {
		return out
	}
	for _, a := range w.Assets() {
		if v := w[a]; v > 0 && !math.IsNaN(v) {
			out[a] = v / total
		}
	}
	return out
}

// IsNormalized reports whether the vector is empty or sums to 1 within
// WeightTolerance with every weight in [0, 1].
func (w WeightVector) IsNormalized() bool {
	if len(w) == 0 {
		return true
	}
	for _, v := range w {
		if v < 0 || v > 1+WeightTolerance || math.IsNaN(v) {
			return false
		}
	}
	return math.Abs(w.Sum()-1) <= WeightTolerance
}

// EqualWeights assigns 1/n to each asset.
func EqualWeights(assets []string) WeightVector {
	out := make(WeightVector, len(assets))
	if len(assets) == 0 {
		return out
	}
	share := 1.0 / float64(len(assets))
	for _, a := range assets {
		out[a] = share
	}
	return out
}

// MarketCapVector maps asset id to non-negative market capitalization.
type MarketCapVector map[string]float64

// Validate rejects negative or non-finite caps.
func (c MarketCapVector) Validate() error {
	for _, a := range sortedKeys(c) {
		v := c[a]
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: market cap for %s is %v", ErrInvalidInput, a, v)
		}
	}
	return nil
}

// Allocation is the weight vector chosen for a rebalance date.
type Allocation struct {
	Date    time.Time    `json:"date" msgpack:"date"`
	Weights WeightVector `json:"weights" msgpack:"weights"`
}

// ValueSeries is a portfolio or benchmark value over strictly increasing dates.
type ValueSeries struct {
	Dates  []time.Time `json:"dates"`
	Values []float64   `json:"values"`
}

// Len returns the number of observations.
func (s ValueSeries) Len() int {
	return len(s.Values)
}

// Validate checks date ordering, matching lengths and finite non-negative values.
func (s ValueSeries) Validate() error {
	if len(s.Dates) != len(s.Values) {
		return fmt.Errorf("%w: %d dates for %d values", ErrInvalidInput, len(s.Dates), len(s.Values))
	}
	if err := validateDates(s.Dates); err != nil {
		return err
	}
	for i, v := range s.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: value %v at index %d", ErrInvalidInput, v, i)
		}
	}
	return nil
}

// Returns computes simple period-over-period returns. A zero starting value
// yields a zero return for that period.
func (s ValueSeries) Returns() []float64 {
	if len(s.Values) < 2 {
		return []float64{}
	}
	out := make([]float64, len(s.Values)-1)
	for i := 1; i < len(s.Values); i++ {
		if s.Values[i-1] != 0 {
			out[i-1] = s.Values[i]/s.Values[i-1] - 1
		}
	}
	return out
}

// Since returns the suffix of observations dated on or after start.
func (s ValueSeries) Since(start time.Time) ValueSeries {
	i := 0
	for i < len(s.Dates) && s.Dates[i].Before(start) {
		i++
	}
	return ValueSeries{Dates: s.Dates[i:], Values: s.Values[i:]}
}

// Window returns observations [from, to).
func (s ValueSeries) Window(from, to int) ValueSeries {
	return ValueSeries{Dates: s.Dates[from:to], Values: s.Values[from:to]}
}

// CashFlowEvent is an external flow: positive amounts are contributions
// into the portfolio, negative amounts are withdrawals.
type CashFlowEvent struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}
