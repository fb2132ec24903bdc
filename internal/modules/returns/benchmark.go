package returns

import (
	"github.com/aristath/allocation-engine/internal/modules/risk"
	"github.com/aristath/allocation-engine/pkg/formulas"
)

// Excess is portfolio minus benchmark per period, over the shorter length.
func Excess(portfolio, benchmark []float64) []float64 {
	p, b := formulas.Align(portfolio, benchmark)
	out := make([]float64, len(p))
	for i := range p {
		out[i] = p[i] - b[i]
	}
	return out
}

// ActiveSummary describes returns relative to a benchmark
type ActiveSummary struct {
	Mean             float64 `json:"mean"`
	Annualized       float64 `json:"annualized"`
	TrackingError    float64 `json:"tracking_error"`
	InformationRatio float64 `json:"information_ratio"`
}

// Active summarizes the excess return series.
func Active(portfolio, benchmark []float64) ActiveSummary {
	excess := Excess(portfolio, benchmark)
	mean := formulas.Mean(excess)
	return ActiveSummary{
		Mean:             mean,
		Annualized:       mean * risk.TradingDaysPerYear,
		TrackingError:    risk.TrackingError(portfolio, benchmark),
		InformationRatio: risk.InformationRatio(portfolio, benchmark),
	}
}
