package returns

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/allocation-engine/internal/domain"
	"github.com/aristath/allocation-engine/pkg/formulas"
	"github.com/markcheno/go-talib"
)

// DaysPerYear is the calendar-day basis for annualizing total returns
const DaysPerYear = 365.0

// Annualized converts a total return earned over days calendar days into an
// annual rate bounded by formulas.MaxAnnualRate. A total loss maps to -1;
// non-positive spans yield 0.
func Annualized(total float64, days float64) float64 {
	if days <= 0 {
		return 0
	}
	if 1+total <= 0 {
		return -1
	}
	return formulas.AnnualRate(math.Pow(1+total, DaysPerYear/days) - 1)
}

// Rolling returns the window-period return ending at each observation from
// index window onwards: values[i]/values[i-window] - 1.
func Rolling(values []float64, window int) []float64 {
	if window < 1 || len(values) <= window {
		return []float64{}
	}
	roc := talib.Roc(values, window)
	out := make([]float64, len(values)-window)
	for i := range out {
		out[i] = roc[i+window] / 100
	}
	return out
}

// YearToDate is the return from the first observation in asOf's year to the
// last observation on or before asOf.
func YearToDate(series domain.ValueSeries, asOf time.Time) (float64, error) {
	start := -1
	end := -1
	for i, d := range series.Dates {
		if d.After(asOf) {
			break
		}
		if d.Year() == asOf.Year() {
			if start < 0 {
				start = i
			}
			end = i
		}
	}
	if start < 0 {
		return 0, fmt.Errorf("%w: no observations in %d", domain.ErrDataQuality, asOf.Year())
	}
	return Simple(series.Values[start], series.Values[end]), nil
}

// YearFraction measures the span between two dates in years: whole calendar
// years first, then the remaining days over the length of the following year.
func YearFraction(from, to time.Time) float64 {
	if to.Before(from) {
		return -YearFraction(to, from)
	}
	years := 0
	anchor := from
	for {
		next := from.AddDate(years+1, 0, 0)
		if next.After(to) {
			break
		}
		years++
		anchor = next
	}
	yearEnd := anchor.AddDate(1, 0, 0)
	yearLen := yearEnd.Sub(anchor).Hours() / 24
	remaining := to.Sub(anchor).Hours() / 24
	return float64(years) + remaining/yearLen
}
