// Package validation cleans raw price matrices and derives quality-checked returns.
package validation

import (
	"fmt"
	"math"
	"time"

	"github.com/aristath/allocation-engine/internal/config"
	"github.com/aristath/allocation-engine/internal/domain"
	"github.com/aristath/allocation-engine/pkg/formulas"
	"github.com/rs/zerolog"
)

// Fill methods and reasons recorded in a CleanReport.
const (
	MethodForwardFill = "forward_fill"
	MethodDropped     = "dropped"

	ReasonMissing      = "missing"
	ReasonBelowMinimum = "below_min_price"
)

// FillRecord records a single cell touched during cleaning
type FillRecord struct {
	Asset    string
	Date     time.Time
	Original float64 // NaN when the price was missing
	Filled   float64 // NaN when the cell was dropped
	Method   string
	Reason   string
}

// CleanReport summarizes the changes Clean made
type CleanReport struct {
	Records     []FillRecord
	ForwardFill int
	Dropped     int
}

// CleanResult is the cleaned matrix and its report
type CleanResult struct {
	Prices *domain.PriceMatrix
	Report CleanReport
}

// Validator cleans prices and checks data quality
type Validator struct {
	log zerolog.Logger
}

// NewValidator creates a new data validator
func NewValidator(log zerolog.Logger) *Validator {
	return &Validator{
		log: log.With().Str("component", "data_validator").Logger(),
	}
}

// Clean forward-fills missing or sub-minimum prices from the last valid
// observation, at most maxForwardFill consecutive periods per gap. Cells that
// cannot be filled stay missing. Values are never back-filled.
func (v *Validator) Clean(prices *domain.PriceMatrix, minPrice float64, maxForwardFill int) (CleanResult, error) {
	if err := prices.Validate(); err != nil {
		return CleanResult{}, err
	}

	out := prices.Clone()
	var report CleanReport

	for _, asset := range out.Assets() {
		col := out.Data[asset]
		last := math.NaN()
		gap := 0

		for i, p := range col {
			valid := !math.IsNaN(p) && p >= minPrice
			if valid {
				last = p
				gap = 0
				continue
			}

			reason := ReasonMissing
			if !math.IsNaN(p) {
				reason = ReasonBelowMinimum
			}
			gap++

			if !math.IsNaN(last) && gap <= maxForwardFill {
				col[i] = last
				report.ForwardFill++
				report.Records = append(report.Records, FillRecord{
					Asset: asset, Date: out.Dates[i], Original: p, Filled: last,
					Method: MethodForwardFill, Reason: reason,
				})
				continue
			}

			col[i] = math.NaN()
			if reason == ReasonBelowMinimum {
				report.Dropped++
				report.Records = append(report.Records, FillRecord{
					Asset: asset, Date: out.Dates[i], Original: p, Filled: math.NaN(),
					Method: MethodDropped, Reason: reason,
				})
			}
		}
	}

	if report.ForwardFill > 0 || report.Dropped > 0 {
		v.log.Debug().
			Int("forward_filled", report.ForwardFill).
			Int("dropped", report.Dropped).
			Msg("Cleaned price matrix")
	}

	return CleanResult{Prices: out, Report: report}, nil
}

// Returns computes period-over-period simple returns per asset. A return is
// missing when either endpoint is missing or the earlier price is zero.
func (v *Validator) Returns(prices *domain.PriceMatrix) *domain.ReturnMatrix {
	if prices.Rows() < 2 {
		return domain.NewReturnMatrix(nil)
	}

	out := domain.NewReturnMatrix(append([]time.Time(nil), prices.Dates[1:]...))
	for _, asset := range prices.Assets() {
		col := prices.Data[asset]
		rets := make([]float64, len(col)-1)
		for i := 1; i < len(col); i++ {
			prev, cur := col[i-1], col[i]
			if math.IsNaN(prev) || math.IsNaN(cur) || prev == 0 {
				rets[i-1] = math.NaN()
				continue
			}
			rets[i-1] = cur/prev - 1
		}
		out.Data[asset] = rets
		out.Flags[asset] = make([]bool, len(rets))
	}
	return out
}

// CapReturns clips every present return into [minReturn, maxReturn].
func (v *Validator) CapReturns(returns *domain.ReturnMatrix, maxReturn, minReturn float64) *domain.ReturnMatrix {
	out := returns.Clone()
	capped := 0
	for _, asset := range out.Assets() {
		col := out.Data[asset]
		for i, r := range col {
			if math.IsNaN(r) {
				continue
			}
			if r > maxReturn || r < minReturn {
				col[i] = formulas.Clamp(r, minReturn, maxReturn)
				capped++
			}
		}
	}
	if capped > 0 {
		v.log.Debug().Int("capped", capped).Msg("Capped extreme returns")
	}
	return out
}

// DetectOutliers flags returns whose z-score against the asset's full-window
// mean and sample standard deviation exceeds nStd. Values are kept.
func (v *Validator) DetectOutliers(returns *domain.ReturnMatrix, nStd float64) *domain.ReturnMatrix {
	out := returns.Clone()
	flagged := 0
	for _, asset := range out.Assets() {
		col := out.Data[asset]
		flags := make([]bool, len(col))

		valid := formulas.DropNaN(col)
		mean := formulas.Mean(valid)
		std := formulas.StdDev(valid)
		if std > 0 {
			for i, r := range col {
				if !math.IsNaN(r) && math.Abs(r-mean)/std > nStd {
					flags[i] = true
					flagged++
				}
			}
		}
		out.Flags[asset] = flags
	}
	if flagged > 0 {
		v.log.Debug().Int("outliers", flagged).Float64("n_std", nStd).Msg("Flagged outlier returns")
	}
	return out
}

// ValidateQuality returns nil when the matrix has at least minRows rows, at
// least one asset, and no asset whose missing share exceeds maxNullPct.
// Failures wrap domain.ErrDataQuality.
func (v *Validator) ValidateQuality(prices *domain.PriceMatrix, minRows int, maxNullPct float64) error {
	if prices.Rows() < minRows {
		return fmt.Errorf("%w: %d rows, need at least %d", domain.ErrDataQuality, prices.Rows(), minRows)
	}
	assets := prices.Assets()
	if len(assets) == 0 {
		return fmt.Errorf("%w: no assets", domain.ErrDataQuality)
	}
	if prices.Rows() == 0 {
		return nil
	}
	for _, asset := range assets {
		missing := 0
		for _, p := range prices.Data[asset] {
			if math.IsNaN(p) {
				missing++
			}
		}
		pct := float64(missing) / float64(prices.Rows())
		if pct > maxNullPct {
			return fmt.Errorf("%w: asset %s is %.1f%% missing (max %.1f%%)",
				domain.ErrDataQuality, asset, pct*100, maxNullPct*100)
		}
	}
	return nil
}

// Prepared is the output of the full cleaning pipeline
type Prepared struct {
	Prices     *domain.PriceMatrix
	Returns    *domain.ReturnMatrix
	Report     CleanReport
	Excluded   []string // assets with no usable price in the window
	QualityErr error    // nil when the quality gate passed
}

// Prepare runs clean, returns, cap and outlier flagging, then the quality gate.
// Assets without a single usable price are excluded before the gate. Only a
// malformed input matrix produces an error; a failed gate is reported in
// Prepared.QualityErr.
func (v *Validator) Prepare(prices *domain.PriceMatrix, cfg config.StrategyConfig) (*Prepared, error) {
	cleaned, err := v.Clean(prices, cfg.MinPrice, cfg.MaxForwardFillDays)
	if err != nil {
		return nil, err
	}

	var excluded []string
	for _, asset := range cleaned.Prices.Assets() {
		if len(cleaned.Prices.Valid(asset)) == 0 {
			excluded = append(excluded, asset)
			delete(cleaned.Prices.Data, asset)
		}
	}
	if len(excluded) > 0 {
		v.log.Debug().Strs("assets", excluded).Msg("Excluded assets without usable prices")
	}

	rets := v.Returns(cleaned.Prices)
	rets = v.CapReturns(rets, cfg.MaxDailyReturn, cfg.MinDailyReturn)
	rets = v.DetectOutliers(rets, cfg.OutlierStdThreshold)

	return &Prepared{
		Prices:     cleaned.Prices,
		Returns:    rets,
		Report:     cleaned.Report,
		Excluded:   excluded,
		QualityErr: v.ValidateQuality(cleaned.Prices, cfg.MinHistoryRows, cfg.MaxNullPct),
	}, nil
}
