package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// PriceMatrix is a date-indexed table of closing prices, one column per asset.
// NaN marks a missing price.
type PriceMatrix struct {
	Dates []time.Time
	Data  map[string][]float64
}

// NewPriceMatrix builds an empty matrix over the given dates.
func NewPriceMatrix(dates []time.Time) *PriceMatrix {
	return &PriceMatrix{
		Dates: dates,
		Data:  make(map[string][]float64),
	}
}

// Assets returns the asset ids in sorted order.
func (m *PriceMatrix) Assets() []string {
	return sortedKeys(m.Data)
}

// Rows returns the number of dates.
func (m *PriceMatrix) Rows() int {
	return len(m.Dates)
}

// Validate checks the structural invariants: strictly increasing dates,
// one value per date in every column, no negative or infinite prices.
func (m *PriceMatrix) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil price matrix", ErrInvalidInput)
	}
	if err := validateDates(m.Dates); err != nil {
		return err
	}
	for _, asset := range m.Assets() {
		col := m.Data[asset]
		if len(col) != len(m.Dates) {
			return fmt.Errorf("%w: asset %s has %d prices for %d dates", ErrInvalidInput, asset, len(col), len(m.Dates))
		}
		for i, p := range col {
			if math.IsInf(p, 0) {
				return fmt.Errorf("%w: asset %s has infinite price at %s", ErrInvalidInput, asset, m.Dates[i].Format("2006-01-02"))
			}
			if p < 0 {
				return fmt.Errorf("%w: asset %s has negative price %.4f at %s", ErrInvalidInput, asset, p, m.Dates[i].Format("2006-01-02"))
			}
		}
	}
	return nil
}

// Until returns a copy holding only rows dated on or before date.
func (m *PriceMatrix) Until(date time.Time) *PriceMatrix {
	n := sort.Search(len(m.Dates), func(i int) bool { return m.Dates[i].After(date) })
	out := NewPriceMatrix(append([]time.Time(nil), m.Dates[:n]...))
	for asset, col := range m.Data {
		out.Data[asset] = append([]float64(nil), col[:n]...)
	}
	return out
}

// Clone returns a deep copy.
func (m *PriceMatrix) Clone() *PriceMatrix {
	out := NewPriceMatrix(append([]time.Time(nil), m.Dates...))
	for asset, col := range m.Data {
		out.Data[asset] = append([]float64(nil), col...)
	}
	return out
}

// Valid returns the non-missing prices of an asset in date order.
func (m *PriceMatrix) Valid(asset string) []float64 {
	col := m.Data[asset]
	out := make([]float64, 0, len(col))
	for _, p := range col {
		if !math.IsNaN(p) {
			out = append(out, p)
		}
	}
	return out
}

// ReturnMatrix holds period-over-period returns derived from a PriceMatrix.
// Dates[i] is the later date of the (i, i+1) price pair. Flags marks
// statistical outliers; flagged values are retained.
type ReturnMatrix struct {
	Dates []time.Time
	Data  map[string][]float64
	Flags map[string][]bool
}

// NewReturnMatrix builds an empty matrix over the given dates.
func NewReturnMatrix(dates []time.Time) *ReturnMatrix {
	return &ReturnMatrix{
		Dates: dates,
		Data:  make(map[string][]float64),
		Flags: make(map[string][]bool),
	}
}

// Assets returns the asset ids in sorted order.
func (r *ReturnMatrix) Assets() []string {
	return sortedKeys(r.Data)
}

// Rows returns the number of return periods.
func (r *ReturnMatrix) Rows() int {
	return len(r.Dates)
}

// Clone returns a deep copy.
func (r *ReturnMatrix) Clone() *ReturnMatrix {
	out := NewReturnMatrix(append([]time.Time(nil), r.Dates...))
	for asset, col := range r.Data {
		out.Data[asset] = append([]float64(nil), col...)
	}
	for asset, flags := range r.Flags {
		out.Flags[asset] = append([]bool(nil), flags...)
	}
	return out
}

// Tail returns the last n valid returns of an asset in date order.
func (r *ReturnMatrix) Tail(asset string, n int) []float64 {
	col := r.Data[asset]
	var out []float64
	for i := len(col) - 1; i >= 0 && len(out) < n; i-- {
		if !math.IsNaN(col[i]) {
			out = append(out, col[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Outlier identifies a flagged return cell.
type Outlier struct {
	Asset string
	Date  time.Time
	Value float64
}

// Outliers lists every flagged cell, ordered by asset then date.
func (r *ReturnMatrix) Outliers() []Outlier {
	var out []Outlier
	for _, asset := range sortedKeys(r.Flags) {
		for i, flagged := range r.Flags[asset] {
			if flagged {
				out = append(out, Outlier{Asset: asset, Date: r.Dates[i], Value: r.Data[asset][i]})
			}
		}
	}
	return out
}

func validateDates(dates []time.Time) error {
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return fmt.Errorf("%w: dates not strictly increasing at index %d (%s after %s)",
				ErrInvalidInput, i, dates[i].Format("2006-01-02"), dates[i-1].Format("2006-01-02"))
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
