// Package weights implements the allocation strategies and the constraint
// pass that turns a blended weight vector into a feasible allocation.
package weights

import (
	"fmt"
	"math"

	"github.com/aristath/allocation-engine/internal/domain"
	"github.com/aristath/allocation-engine/pkg/formulas"
	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Strategy method names
const (
	MethodEqual           = "equal"
	MethodMomentum        = "momentum"
	MethodMarketCap       = "market_cap"
	MethodRiskParity      = "risk_parity"
	MethodMinimumVariance = "minimum_variance"
	MethodMaximumSharpe   = "maximum_sharpe"
)

// TradingDaysPerYear converts annual rates to per-period rates
const TradingDaysPerYear = 252

// volatilityFloor keeps inverse-volatility weights finite
const volatilityFloor = 1e-8

// Result is the output of a solver-backed strategy. Fallback is empty when
// the solver succeeded and holds the reason otherwise.
type Result struct {
	Weights  domain.WeightVector
	Method   string
	Fallback string
}

// Calculator computes strategy weight vectors. It holds no mutable state.
type Calculator struct {
	log    zerolog.Logger
	solver Solver
}

// NewCalculator creates a weight calculator backed by the gonum solver
func NewCalculator(log zerolog.Logger) *Calculator {
	return NewCalculatorWithSolver(log, GonumSolver{})
}

// NewCalculatorWithSolver creates a weight calculator with a custom solver
func NewCalculatorWithSolver(log zerolog.Logger, solver Solver) *Calculator {
	return &Calculator{
		log:    log.With().Str("component", "weight_calculator").Logger(),
		solver: solver,
	}
}

// Equal assigns 1/n to each asset.
func (c *Calculator) Equal(assets []string) domain.WeightVector {
	return domain.EqualWeights(assets)
}

// Momentum weights assets in proportion to their trailing return over
// lookback periods. Assets at or below threshold get no weight. When no
// asset clears the threshold, every asset with enough history is weighted
// equally.
func (c *Calculator) Momentum(prices *domain.PriceMatrix, lookback int, threshold float64) domain.WeightVector {
	if lookback < 1 {
		lookback = 1
	}

	scores := make(domain.WeightVector)
	var eligible []string
	for _, asset := range prices.Assets() {
		valid := prices.Valid(asset)
		if len(valid) < lookback+1 {
			continue
		}
		eligible = append(eligible, asset)

		roc := talib.Roc(valid, lookback)
		momentum := roc[len(roc)-1] / 100
		if momentum > threshold && momentum > 0 {
			scores[asset] = momentum
		}
	}

	if len(scores) == 0 {
		if len(eligible) > 0 {
			c.log.Debug().Int("assets", len(eligible)).Msg("No asset cleared momentum threshold, using equal weights")
		}
		return domain.EqualWeights(eligible)
	}
	return scores.Normalize()
}

// MarketCap weights assets in proportion to capitalization. A vector with no
// positive cap yields an empty result.
func (c *Calculator) MarketCap(caps domain.MarketCapVector) (domain.WeightVector, error) {
	if err := caps.Validate(); err != nil {
		return nil, err
	}
	return domain.WeightVector(caps).Normalize(), nil
}

// RiskParity weights assets in proportion to inverse volatility over the
// trailing lookback valid returns. Assets with fewer than two observations
// are skipped; when none qualify every asset is weighted equally.
func (c *Calculator) RiskParity(returns *domain.ReturnMatrix, lookback int) domain.WeightVector {
	inv := make(domain.WeightVector)
	for _, asset := range returns.Assets() {
		window := returns.Tail(asset, lookback)
		if len(window) < 2 {
			continue
		}
		sigma := math.Max(formulas.StdDev(window), volatilityFloor)
		inv[asset] = 1 / sigma
	}
	if len(inv) == 0 {
		return domain.EqualWeights(returns.Assets())
	}
	return inv.Normalize()
}

// MinimumVariance solves for the long-only weights with the lowest portfolio
// variance, falling back to risk parity when the solve fails.
func (c *Calculator) MinimumVariance(returns *domain.ReturnMatrix, lookback int) Result {
	w, err := c.SolveMinimumVariance(returns, lookback)
	if err != nil {
		c.log.Warn().Err(err).Msg("Minimum variance failed, falling back to risk parity")
		return Result{Weights: c.RiskParity(returns, lookback), Method: MethodRiskParity, Fallback: err.Error()}
	}
	return Result{Weights: w, Method: MethodMinimumVariance}
}

// MaximumSharpe solves for the long-only weights with the highest Sharpe
// ratio, falling back to equal weights when the solve fails.
func (c *Calculator) MaximumSharpe(returns *domain.ReturnMatrix, lookback int, riskFreeRate float64) Result {
	w, err := c.SolveMaximumSharpe(returns, lookback, riskFreeRate)
	if err != nil {
		c.log.Warn().Err(err).Msg("Maximum Sharpe failed, falling back to equal weights")
		return Result{Weights: domain.EqualWeights(returns.Assets()), Method: MethodEqual, Fallback: err.Error()}
	}
	return Result{Weights: w, Method: MethodMaximumSharpe}
}

// SolveMinimumVariance minimizes w'Σw over the simplex.
func (c *Calculator) SolveMinimumVariance(returns *domain.ReturnMatrix, lookback int) (domain.WeightVector, error) {
	assets, _, sigma, err := c.moments(returns, lookback)
	if err != nil {
		return nil, err
	}

	// Scale by the mean variance so the objective is O(1) for the convergence tests.
	scale := 0.0
	for i := range assets {
		scale += sigma.At(i, i)
	}
	scale /= float64(len(assets))

	x, err := c.solver.Solve(Problem{
		N: len(assets),
		Objective: func(w []float64) float64 {
			return quadForm(sigma, w, nil) / scale
		},
		Gradient: func(grad, w []float64) {
			quadForm(sigma, w, grad)
			for i := range grad {
				grad[i] /= scale
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("minimum variance: %w", err)
	}
	return toVector(assets, x), nil
}

// SolveMaximumSharpe maximizes (μ'w - r_f) / sqrt(w'Σw) over the simplex,
// with r_f the annual risk-free rate converted to a per-period rate.
func (c *Calculator) SolveMaximumSharpe(returns *domain.ReturnMatrix, lookback int, riskFreeRate float64) (domain.WeightVector, error) {
	assets, mu, sigma, err := c.moments(returns, lookback)
	if err != nil {
		return nil, err
	}
	rf := riskFreeRate / TradingDaysPerYear
	n := len(assets)
	sigmaW := make([]float64, n)

	x, err := c.solver.Solve(Problem{
		N: n,
		Objective: func(w []float64) float64 {
			variance := quadForm(sigma, w, nil)
			if variance <= 0 {
				return math.Inf(1)
			}
			return -(dot(mu, w) - rf) / math.Sqrt(variance)
		},
		Gradient: func(grad, w []float64) {
			variance := quadForm(sigma, w, sigmaW) // sigmaW = 2Σw
			sd := math.Sqrt(variance)
			excess := dot(mu, w) - rf
			for i := range grad {
				grad[i] = -(mu[i]/sd - excess*(sigmaW[i]/2)/(sd*variance))
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("maximum sharpe: %w", err)
	}
	return toVector(assets, x), nil
}

// moments builds the mean vector and a positive definite sample covariance
// matrix from the trailing lookback rows where every asset has a return.
func (c *Calculator) moments(returns *domain.ReturnMatrix, lookback int) ([]string, []float64, *mat.SymDense, error) {
	assets, data, sigma, err := c.sampleCovariance(returns, lookback)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := checkCovariance(sigma); err != nil {
		return nil, nil, nil, err
	}

	mu := make([]float64, len(assets))
	for j := range assets {
		mu[j] = stat.Mean(mat.Col(nil, j, data), nil)
	}
	return assets, mu, sigma, nil
}

// sampleCovariance collects the complete rows of the trailing lookback window
// and their sample covariance. The matrix may be singular.
func (c *Calculator) sampleCovariance(returns *domain.ReturnMatrix, lookback int) ([]string, *mat.Dense, *mat.SymDense, error) {
	assets := returns.Assets()
	if len(assets) == 0 {
		return nil, nil, nil, &SolverError{Stage: "covariance", Reason: "no assets"}
	}

	start := returns.Rows() - lookback
	if start < 0 {
		start = 0
	}
	var rows [][]float64
	for i := start; i < returns.Rows(); i++ {
		row := make([]float64, len(assets))
		complete := true
		for j, asset := range assets {
			v := returns.Data[asset][i]
			if math.IsNaN(v) {
				complete = false
				break
			}
			row[j] = v
		}
		if complete {
			rows = append(rows, row)
		}
	}
	if len(rows) < 2 {
		return nil, nil, nil, &SolverError{Stage: "covariance", Reason: fmt.Sprintf("%d complete observations, need at least 2", len(rows))}
	}

	data := mat.NewDense(len(rows), len(assets), nil)
	for i, row := range rows {
		data.SetRow(i, row)
	}
	sigma := mat.NewSymDense(len(assets), nil)
	stat.CovarianceMatrix(sigma, data, nil)

	c.log.Debug().
		Int("assets", len(assets)).
		Int("observations", len(rows)).
		Msg("Built covariance matrix")

	return assets, data, sigma, nil
}

func toVector(assets []string, x []float64) domain.WeightVector {
	w := make(domain.WeightVector, len(assets))
	for i, asset := range assets {
		w[asset] = x[i]
	}
	return w.Normalize()
}

func dot(a, b []float64) float64 {
	total := 0.0
	for i := range a {
		total += a[i] * b[i]
	}
	return total
}
