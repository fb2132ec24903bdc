package performance

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/allocation-engine/internal/config"
	"github.com/aristath/allocation-engine/internal/domain"
	"github.com/aristath/allocation-engine/internal/modules/returns"
	"github.com/aristath/allocation-engine/internal/modules/risk"
	"github.com/rs/zerolog"
)

// RollingPoint is the snapshot of the window ending at Date
type RollingPoint struct {
	Date     time.Time `json:"date"`
	Return   float64   `json:"return"`
	Snapshot *Snapshot `json:"snapshot"`
}

// Tracker computes performance snapshots
type Tracker struct {
	log          zerolog.Logger
	returns      *returns.Calculator
	riskFreeRate float64
	confidence   float64
}

// NewTracker creates a tracker using the risk-free rate and VaR confidence
// level of cfg
func NewTracker(log zerolog.Logger, cfg config.StrategyConfig) *Tracker {
	return &Tracker{
		log:          log.With().Str("component", "performance_tracker").Logger(),
		returns:      returns.NewCalculator(log),
		riskFreeRate: cfg.RiskFreeRate,
		confidence:   cfg.ConfidenceLevel,
	}
}

// Compute builds a snapshot of values over the trailing lookbackDays calendar
// days (0 for the whole series). Period returns are adjusted for cashFlows so
// that contributions and withdrawals do not count as performance; drawdowns
// are measured on the flow-adjusted index. Benchmark metrics are filled in
// when the benchmark shares at least two dates with the window.
func (t *Tracker) Compute(values, benchmark domain.ValueSeries, cashFlows []domain.CashFlowEvent, lookbackDays int) (*Snapshot, error) {
	if err := values.Validate(); err != nil {
		return nil, err
	}
	if benchmark.Len() > 0 {
		if err := benchmark.Validate(); err != nil {
			return nil, fmt.Errorf("benchmark: %w", err)
		}
	}
	if lookbackDays < 0 {
		return nil, fmt.Errorf("%w: lookback days must be non-negative, got %d", domain.ErrInvalidInput, lookbackDays)
	}

	window := values
	if lookbackDays > 0 && values.Len() > 0 {
		window = values.Since(values.Dates[values.Len()-1].AddDate(0, 0, -lookbackDays))
	}
	if window.Len() < 2 {
		return nil, fmt.Errorf("%w: need at least two valuations, have %d", domain.ErrDataQuality, window.Len())
	}

	start, end := window.Dates[0], window.Dates[window.Len()-1]
	var flows []domain.CashFlowEvent
	for _, f := range cashFlows {
		if f.Date.After(start) && !f.Date.After(end) {
			flows = append(flows, f)
		}
	}

	rets := adjustedReturns(window, flows)
	index := domain.ValueSeries{Dates: window.Dates, Values: returns.ToPrices(rets, window.Values[0])}
	dist := t.returns.Distribution(rets)
	dd := risk.MaxDrawdownSeries(index)

	s := &Snapshot{
		Start:           start,
		End:             end,
		Observations:    window.Len(),
		TotalReturn:     returns.Compound(rets),
		Volatility:      risk.Volatility(rets),
		Sharpe:          risk.Sharpe(rets, t.riskFreeRate),
		Sortino:         risk.Sortino(rets, t.riskFreeRate),
		Calmar:          risk.Calmar(rets, index.Values),
		MaxDrawdown:     dd.Value,
		DrawdownPeak:    dd.PeakDate,
		DrawdownTrough:  dd.TroughDate,
		VaR:             risk.VaR(rets, t.confidence, risk.Historical),
		ParametricVaR:   risk.VaR(rets, t.confidence, risk.Parametric),
		CVaR:            risk.CVaR(rets, t.confidence),
		ConfidenceLevel: t.confidence,
		Skewness:        dist.Skewness,
		Kurtosis:        dist.Kurtosis,
		BestPeriod:      dist.Max,
		WorstPeriod:     dist.Min,
	}
	s.AnnualizedReturn = risk.AnnualizedReturn(rets)
	s.CAGR = returns.Annualized(s.TotalReturn, end.Sub(start).Hours()/24)
	if ytd, err := returns.YearToDate(index, end); err == nil {
		s.YTDReturn = ytd
	}
	positive := 0
	for _, r := range rets {
		if r > 0 {
			positive++
		}
	}
	s.PositivePeriodPct = float64(positive) / float64(len(rets))

	t.addBenchmark(s, index, benchmark)

	if len(flows) > 0 {
		twr, err := t.returns.TimeWeighted(window, flows)
		if err != nil {
			return nil, err
		}
		investor, err := returns.FlowsForIRR(window, flows)
		if err != nil {
			return nil, err
		}
		irr := t.returns.MoneyWeighted(investor)
		s.HasCashFlows = true
		s.TimeWeightedReturn = twr
		s.MoneyWeightedReturn = irr.Rate
		s.IRRMethod = irr.Method
	}

	id, err := s.computeID()
	if err != nil {
		return nil, err
	}
	s.ID = id

	t.log.Debug().
		Str("id", s.ID).
		Time("start", start).
		Time("end", end).
		Int("observations", s.Observations).
		Bool("benchmark", s.HasBenchmark).
		Int("cash_flows", len(flows)).
		Msg("Computed performance snapshot")

	return s, nil
}

func (t *Tracker) addBenchmark(s *Snapshot, index, benchmark domain.ValueSeries) {
	if benchmark.Len() == 0 {
		return
	}
	portfolio, bench := commonDates(index, benchmark)
	if portfolio.Len() < 2 {
		t.log.Debug().Msg("Benchmark does not overlap the window, skipping relative metrics")
		return
	}
	pr, br := portfolio.Returns(), bench.Returns()
	active := returns.Active(pr, br)
	capture := risk.CaptureRatios(pr, br)

	s.HasBenchmark = true
	s.BenchmarkReturn = returns.Compound(br)
	s.ExcessReturn = returns.Compound(pr) - s.BenchmarkReturn
	s.Beta = risk.Beta(pr, br)
	s.Alpha = risk.Alpha(pr, br, t.riskFreeRate)
	s.TrackingError = active.TrackingError
	s.InformationRatio = active.InformationRatio
	s.Correlation = risk.Correlation(pr, br)
	s.UpCapture = capture.Up
	s.DownCapture = capture.Down
}

// Rolling computes a full snapshot for every window of window periods, one
// point per window end.
func (t *Tracker) Rolling(values domain.ValueSeries, window int) ([]RollingPoint, error) {
	if err := values.Validate(); err != nil {
		return nil, err
	}
	if window < 2 {
		return nil, fmt.Errorf("%w: rolling window must be at least 2, got %d", domain.ErrInvalidInput, window)
	}

	rolling := returns.Rolling(values.Values, window)
	points := make([]RollingPoint, 0, len(rolling))
	for i, r := range rolling {
		end := i + window
		s, err := t.Compute(values.Window(i, end+1), domain.ValueSeries{}, nil, 0)
		if err != nil {
			return nil, fmt.Errorf("window ending %s: %w", values.Dates[end].Format("2006-01-02"), err)
		}
		points = append(points, RollingPoint{Date: values.Dates[end], Return: r, Snapshot: s})
	}
	return points, nil
}

// adjustedReturns are period returns net of external flows. A flow books on
// the first valuation dated on or after it, and that valuation includes it.
func adjustedReturns(values domain.ValueSeries, flows []domain.CashFlowEvent) []float64 {
	booked := make(map[int]float64, len(flows))
	for _, f := range flows {
		idx := sort.Search(values.Len(), func(i int) bool { return !values.Dates[i].Before(f.Date) })
		if idx > 0 && idx < values.Len() {
			booked[idx] += f.Amount
		}
	}
	out := make([]float64, values.Len()-1)
	for i := 1; i < values.Len(); i++ {
		if prev := values.Values[i-1]; prev > 0 {
			out[i-1] = (values.Values[i]-booked[i])/prev - 1
		}
	}
	return out
}

// commonDates restricts two series to the dates they share
func commonDates(a, b domain.ValueSeries) (domain.ValueSeries, domain.ValueSeries) {
	var outA, outB domain.ValueSeries
	i, j := 0, 0
	for i < a.Len() && j < b.Len() {
		switch {
		case a.Dates[i].Equal(b.Dates[j]):
			outA.Dates = append(outA.Dates, a.Dates[i])
			outA.Values = append(outA.Values, a.Values[i])
			outB.Dates = append(outB.Dates, b.Dates[j])
			outB.Values = append(outB.Values, b.Values[j])
			i++
			j++
		case a.Dates[i].Before(b.Dates[j]):
			i++
		default:
			j++
		}
	}
	return outA, outB
}
