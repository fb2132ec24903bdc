// Package optimization produces rebalance decisions by running the data
// validator and the weight strategies, and replays those decisions over a
// price history.
package optimization

import (
	"fmt"
	"time"

	"github.com/aristath/allocation-engine/internal/config"
	"github.com/aristath/allocation-engine/internal/domain"
	"github.com/aristath/allocation-engine/internal/modules/validation"
	"github.com/aristath/allocation-engine/internal/modules/weights"
	"github.com/aristath/allocation-engine/internal/utils"
	"github.com/rs/zerolog"
)

// State is a step of a single optimization run
type State string

const (
	StateIdle         State = "idle"
	StateValidating   State = "validating"
	StateComputing    State = "computing"
	StateFallback     State = "fallback"
	StateConstraining State = "constraining"
	StateDone         State = "done"
)

// StrategyBlend names the blended vector in fallback events
const StrategyBlend = "blend"

// FallbackEvent records a degraded path taken during a run
type FallbackEvent struct {
	State    State  `json:"state"`
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

// Decision is the outcome of one optimization run
type Decision struct {
	Allocation  domain.Allocation              `json:"allocation"`
	States      []State                        `json:"states"`
	Components  map[string]domain.WeightVector `json:"components"`
	Fallbacks   []FallbackEvent                `json:"fallbacks,omitempty"`
	Excluded    []string                       `json:"excluded,omitempty"`
	Outliers    int                            `json:"outliers"`
	CleanReport validation.CleanReport         `json:"-"`
}

// FallbackUsed reports whether any stage degraded to a default
func (d *Decision) FallbackUsed() bool {
	return len(d.Fallbacks) > 0
}

func (d *Decision) enter(s State) {
	d.States = append(d.States, s)
}

func (d *Decision) fallback(state State, strategy, reason string) {
	if len(d.States) == 0 || d.States[len(d.States)-1] != StateFallback {
		d.enter(StateFallback)
	}
	d.Fallbacks = append(d.Fallbacks, FallbackEvent{State: state, Strategy: strategy, Reason: reason})
}

// Optimizer runs the rebalance state machine
type Optimizer struct {
	log        zerolog.Logger
	validator  *validation.Validator
	calculator *weights.Calculator
}

// NewOptimizer creates an optimizer with the default validator and weight calculator
func NewOptimizer(log zerolog.Logger) *Optimizer {
	return NewOptimizerWith(log, validation.NewValidator(log), weights.NewCalculator(log))
}

// NewOptimizerWith creates an optimizer from explicit collaborators
func NewOptimizerWith(log zerolog.Logger, validator *validation.Validator, calculator *weights.Calculator) *Optimizer {
	return &Optimizer{
		log:        log.With().Str("component", "portfolio_optimizer").Logger(),
		validator:  validator,
		calculator: calculator,
	}
}

// Optimize produces the allocation for date using only prices dated on or
// before it. Malformed prices, market caps or configuration are returned as
// errors wrapping domain.ErrInvalidInput. A failed quality gate or solver is
// absorbed into a fallback recorded on the Decision. When no asset has a
// usable price by date there is no universe to fall back on, and the error
// wraps domain.ErrDataQuality.
func (o *Optimizer) Optimize(prices *domain.PriceMatrix, marketCaps domain.MarketCapVector, cfg config.StrategyConfig, date time.Time) (*Decision, error) {
	timer := utils.NewTimer("optimize", o.log)

	d := &Decision{
		Allocation: domain.Allocation{Date: date},
		Components: make(map[string]domain.WeightVector),
	}
	d.enter(StateIdle)
	d.enter(StateValidating)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := prices.Validate(); err != nil {
		return nil, err
	}
	if err := marketCaps.Validate(); err != nil {
		return nil, err
	}
	if len(prices.Data) == 0 {
		return nil, fmt.Errorf("%w: price matrix has no assets", domain.ErrInvalidInput)
	}

	prepared, err := o.validator.Prepare(prices.Until(date), cfg)
	if err != nil {
		return nil, err
	}
	d.CleanReport = prepared.Report
	d.Excluded = prepared.Excluded
	d.Outliers = len(prepared.Returns.Outliers())

	universe := prepared.Prices.Assets()
	if len(universe) == 0 {
		return nil, fmt.Errorf("%w: no asset has a usable price on or before %s",
			domain.ErrDataQuality, date.Format("2006-01-02"))
	}

	var blended domain.WeightVector
	if prepared.QualityErr != nil {
		o.log.Warn().
			Err(prepared.QualityErr).
			Time("date", date).
			Msg("Data quality gate failed, using equal weights")
		d.fallback(StateValidating, StrategyBlend, prepared.QualityErr.Error())
		blended = o.calculator.Equal(universe)
	} else {
		d.enter(StateComputing)
		blended = o.compute(d, prepared, marketCaps, cfg)
		if len(blended) == 0 {
			d.fallback(StateComputing, StrategyBlend, "blended weights are empty")
			blended = o.calculator.Equal(universe)
		}
	}

	d.enter(StateConstraining)
	final := o.calculator.ApplyConstraints(blended, weights.Constraints{
		MinWeight:    cfg.MinWeight,
		MaxWeight:    cfg.MaxWeight,
		MaxPositions: cfg.MaxPositions,
	})
	d.Allocation.Weights = final
	d.enter(StateDone)

	timer.Stop(map[string]int{"assets": len(universe), "positions": len(final)})
	o.log.Info().
		Time("date", date).
		Int("positions", len(final)).
		Int("fallbacks", len(d.Fallbacks)).
		Int("outliers", d.Outliers).
		Msg("Optimization complete")

	return d, nil
}

func (o *Optimizer) compute(d *Decision, p *validation.Prepared, caps domain.MarketCapVector, cfg config.StrategyConfig) domain.WeightVector {
	var components []weights.Component
	add := func(name string, w domain.WeightVector, coef float64) {
		d.Components[name] = w
		components = append(components, weights.Component{Name: name, Weights: w, Coefficient: coef})
	}

	if cfg.MomentumWeight > 0 {
		add(weights.MethodMomentum, o.calculator.Momentum(p.Prices, cfg.MomentumLookback, cfg.MomentumThreshold), cfg.MomentumWeight)
	}

	if cfg.MarketCapWeight > 0 {
		inUniverse := make(domain.MarketCapVector)
		for asset, mc := range caps {
			if _, ok := p.Prices.Data[asset]; ok {
				inUniverse[asset] = mc
			}
		}
		// caps were validated up front, so this cannot fail
		w, _ := o.calculator.MarketCap(inUniverse)
		if len(w) == 0 {
			d.fallback(StateComputing, weights.MethodMarketCap, "no market caps for the asset universe, using equal weights")
			w = o.calculator.Equal(p.Prices.Assets())
		}
		add(weights.MethodMarketCap, w, cfg.MarketCapWeight)
	}

	if cfg.RiskParityWeight > 0 {
		add(weights.MethodRiskParity, o.calculator.RiskParity(p.Returns, cfg.RiskLookback), cfg.RiskParityWeight)
	}

	if cfg.MinVarianceWeight > 0 {
		res := o.calculator.MinimumVariance(p.Returns, cfg.RiskLookback)
		if res.Fallback != "" {
			d.fallback(StateComputing, weights.MethodMinimumVariance, res.Fallback)
		}
		add(weights.MethodMinimumVariance, res.Weights, cfg.MinVarianceWeight)
	}

	if cfg.MaxSharpeWeight > 0 {
		res := o.calculator.MaximumSharpe(p.Returns, cfg.RiskLookback, cfg.RiskFreeRate)
		if res.Fallback != "" {
			d.fallback(StateComputing, weights.MethodMaximumSharpe, res.Fallback)
		}
		add(weights.MethodMaximumSharpe, res.Weights, cfg.MaxSharpeWeight)
	}

	if cfg.HRPWeight > 0 {
		res := o.calculator.HierarchicalRiskParity(p.Returns, cfg.RiskLookback, weights.Linkage(cfg.HRPLinkage))
		if res.Fallback != "" {
			d.fallback(StateComputing, weights.MethodHierarchicalRiskParity, res.Fallback)
		}
		add(weights.MethodHierarchicalRiskParity, res.Weights, cfg.HRPWeight)
	}

	return o.calculator.Combine(components)
}
