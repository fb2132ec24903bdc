package returns

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/allocation-engine/internal/domain"
	"github.com/aristath/allocation-engine/pkg/formulas"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// IRR search bounds and iteration limits
const (
	irrLowerBound    = -0.99
	irrUpperBound    = 3.0
	irrTolerance     = 1e-10
	irrMaxIterations = 200
)

// IRR solution methods, in the order they are attempted
const (
	IRRBrent         = "brent"
	IRRNewton        = "newton"
	IRRApproximation = "approximation"
	IRRUndefined     = "undefined"
)

var newtonSeeds = []float64{0.1, 0, -0.5, 0.5, 1, 2}

// IRRResult is an annualized money-weighted return and how it was found
type IRRResult struct {
	Rate   float64
	Method string
}

// DistributionStats summarizes a return distribution
type DistributionStats struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Std      float64 `json:"std"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"` // excess kurtosis
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	P5       float64 `json:"p5"`
	P95      float64 `json:"p95"`
}

// Calculator computes cash-flow-adjusted returns
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a new return calculator
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		log: log.With().Str("component", "return_calculator").Logger(),
	}
}

// TimeWeighted chains the returns of the sub-periods between external cash
// flows. Each flow is booked on the first valuation dated on or after it and
// that valuation is taken to include the flow. Flows after the last
// valuation are ignored; flows on or before the first one are part of the
// starting value.
func (c *Calculator) TimeWeighted(values domain.ValueSeries, flows []domain.CashFlowEvent) (float64, error) {
	if err := values.Validate(); err != nil {
		return 0, err
	}
	if values.Len() < 2 {
		return 0, nil
	}

	booked := make(map[int]float64)
	ignored := 0
	for _, f := range flows {
		idx := sort.Search(len(values.Dates), func(i int) bool {
			return !values.Dates[i].Before(f.Date)
		})
		if idx >= len(values.Dates) {
			ignored++
			continue
		}
		if idx == 0 {
			continue
		}
		booked[idx] += f.Amount
	}
	if ignored > 0 {
		c.log.Debug().Int("flows", ignored).Msg("Ignored cash flows after the last valuation")
	}

	boundaries := make([]int, 0, len(booked))
	for idx := range booked {
		boundaries = append(boundaries, idx)
	}
	sort.Ints(boundaries)

	growth := 1.0
	startValue := values.Values[0]
	for _, idx := range boundaries {
		if startValue > 0 {
			growth *= (values.Values[idx] - booked[idx]) / startValue
		}
		startValue = values.Values[idx]
	}
	if startValue > 0 {
		growth *= values.Values[values.Len()-1] / startValue
	}
	return growth - 1, nil
}

// MoneyWeighted finds the annualized internal rate of return of dated cash
// flows seen from the investor: negative amounts are money put in, positive
// amounts money taken out (including the ending value). Brent's method is
// tried over [-0.99, 3]; then Newton's method from fixed seeds; then the
// annualized ratio of money out to money in.
func (c *Calculator) MoneyWeighted(flows []domain.CashFlowEvent) IRRResult {
	if len(flows) < 2 {
		return IRRResult{Method: IRRUndefined}
	}
	sorted := append([]domain.CashFlowEvent(nil), flows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	hasIn, hasOut := false, false
	scale := 0.0
	times := make([]float64, len(sorted))
	amounts := make([]float64, len(sorted))
	for i, f := range sorted {
		times[i] = YearFraction(sorted[0].Date, f.Date)
		amounts[i] = f.Amount
		scale += math.Abs(f.Amount)
		hasIn = hasIn || f.Amount < 0
		hasOut = hasOut || f.Amount > 0
	}
	if !hasIn || !hasOut {
		return IRRResult{Method: IRRUndefined}
	}

	npv := func(r float64) float64 {
		total := 0.0
		for i := range amounts {
			total += amounts[i] * math.Pow(1+r, -times[i])
		}
		return total
	}
	dnpv := func(r float64) float64 {
		total := 0.0
		for i := range amounts {
			total -= times[i] * amounts[i] * math.Pow(1+r, -times[i]-1)
		}
		return total
	}
	ftol := irrTolerance * scale

	if r, ok := brent(npv, irrLowerBound, irrUpperBound, ftol); ok {
		return IRRResult{Rate: r, Method: IRRBrent}
	}
	for _, seed := range newtonSeeds {
		if r, ok := newton(npv, dnpv, seed, ftol); ok {
			return IRRResult{Rate: r, Method: IRRNewton}
		}
	}

	rate := approximateIRR(sorted)
	c.log.Warn().
		Int("flows", len(sorted)).
		Float64("rate", rate).
		Msg("IRR did not converge, using annualized approximation")
	return IRRResult{Rate: rate, Method: IRRApproximation}
}

// Distribution summarizes returns. Shape statistics of fewer than three
// observations or a constant series are 0.
func (c *Calculator) Distribution(rs []float64) DistributionStats {
	valid := formulas.DropNaN(rs)
	if len(valid) == 0 {
		return DistributionStats{}
	}
	ds := DistributionStats{
		Count: len(valid),
		Mean:  formulas.Mean(valid),
		Std:   formulas.StdDev(valid),
		Min:   formulas.Percentile(valid, 0),
		Max:   formulas.Percentile(valid, 1),
		P5:    formulas.Percentile(valid, 0.05),
		P95:   formulas.Percentile(valid, 0.95),
	}
	if len(valid) >= 3 && ds.Std > 1e-12 {
		ds.Skewness = finiteOrZero(stat.Skew(valid, nil))
	}
	if len(valid) >= 4 && ds.Std > 1e-12 {
		ds.Kurtosis = finiteOrZero(stat.ExKurtosis(valid, nil))
	}
	return ds
}

func finiteOrZero(v float64) float64 {
	if !formulas.Finite(v) {
		return 0
	}
	return v
}

func brent(f func(float64) float64, a, b, ftol float64) (float64, bool) {
	fa, fb := f(a), f(b)
	if !formulas.Finite(fa) || !formulas.Finite(fb) || fa*fb > 0 {
		return 0, false
	}
	if math.Abs(fa) < math.Abs(fb) {
		a, b, fa, fb = b, a, fb, fa
	}
	c, fc := a, fa
	d := 0.0
	bisected := true

	for i := 0; i < irrMaxIterations; i++ {
		if math.Abs(fb) <= ftol || math.Abs(b-a) < irrTolerance {
			return b, true
		}

		var s float64
		if fa != fc && fb != fc {
			s = a*fb*fc/((fa-fb)*(fa-fc)) +
				b*fa*fc/((fb-fa)*(fb-fc)) +
				c*fa*fb/((fc-fa)*(fc-fb))
		} else {
			s = b - fb*(b-a)/(fb-fa)
		}

		lo, hi := (3*a+b)/4, b
		if lo > hi {
			lo, hi = hi, lo
		}
		if s < lo || s > hi ||
			(bisected && math.Abs(s-b) >= math.Abs(b-c)/2) ||
			(!bisected && math.Abs(s-b) >= math.Abs(c-d)/2) ||
			(bisected && math.Abs(b-c) < irrTolerance) ||
			(!bisected && math.Abs(c-d) < irrTolerance) {
			s = (a + b) / 2
			bisected = true
		} else {
			bisected = false
		}

		fs := f(s)
		d, c, fc = c, b, fb
		if fa*fs < 0 {
			b, fb = s, fs
		} else {
			a, fa = s, fs
		}
		if math.Abs(fa) < math.Abs(fb) {
			a, b, fa, fb = b, a, fb, fa
		}
	}
	return b, math.Abs(fb) <= ftol
}

func newton(f, df func(float64) float64, r, ftol float64) (float64, bool) {
	for i := 0; i < irrMaxIterations; i++ {
		v := f(r)
		if !formulas.Finite(v) {
			return 0, false
		}
		if math.Abs(v) <= ftol {
			return r, true
		}
		slope := df(r)
		if slope == 0 || !formulas.Finite(slope) {
			return 0, false
		}
		r -= v / slope
		if r < irrLowerBound || r > irrUpperBound {
			return 0, false
		}
	}
	return 0, false
}

func approximateIRR(flows []domain.CashFlowEvent) float64 {
	in, out := 0.0, 0.0
	for _, f := range flows {
		if f.Amount < 0 {
			in -= f.Amount
		} else {
			out += f.Amount
		}
	}
	if in == 0 {
		return 0
	}
	multiple := out / in
	years := YearFraction(flows[0].Date, flows[len(flows)-1].Date)
	if years <= 0 {
		return formulas.AnnualRate(multiple - 1)
	}
	if multiple <= 0 {
		return -1
	}
	return formulas.AnnualRate(math.Pow(multiple, 1/years) - 1)
}

// FlowsForIRR converts a valuation series and portfolio-perspective cash
// flows into investor-perspective flows: the starting value and every
// contribution are money in, withdrawals and the ending value money out.
func FlowsForIRR(values domain.ValueSeries, flows []domain.CashFlowEvent) ([]domain.CashFlowEvent, error) {
	if values.Len() < 2 {
		return nil, fmt.Errorf("%w: need at least two valuations", domain.ErrDataQuality)
	}
	first, last := values.Dates[0], values.Dates[values.Len()-1]
	out := []domain.CashFlowEvent{{Date: first, Amount: -values.Values[0]}}
	for _, f := range flows {
		if !f.Date.After(first) || f.Date.After(last) {
			continue
		}
		out = append(out, domain.CashFlowEvent{Date: f.Date, Amount: -f.Amount})
	}
	out = append(out, domain.CashFlowEvent{Date: last, Amount: values.Values[values.Len()-1]})
	return out, nil
}
