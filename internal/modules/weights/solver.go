package weights

import (
	"fmt"
	"math"

	"github.com/aristath/allocation-engine/internal/domain"
	"github.com/aristath/allocation-engine/pkg/formulas"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	// maxConditionNumber bounds the covariance condition number accepted by the solvers
	maxConditionNumber   = 1e12
	maxSolverIterations  = 1000
	maxSolverEvaluations = 20000
)

// Problem is a smooth objective over long-only, fully invested weights.
// Gradient may be nil for derivative-free solvers.
type Problem struct {
	N         int
	Objective func(w []float64) float64
	Gradient  func(grad, w []float64)
}

// Solver minimizes a Problem over the simplex {w >= 0, sum(w) = 1}
type Solver interface {
	Solve(p Problem) ([]float64, error)
}

// SolverError reports a failed optimization. It unwraps to
// domain.ErrNumericalInstability.
type SolverError struct {
	Stage  string
	Reason string
}

func (e *SolverError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}

// Unwrap lets errors.Is match domain.ErrNumericalInstability
func (e *SolverError) Unwrap() error {
	return domain.ErrNumericalInstability
}

var successStatuses = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.GradientThreshold:   true,
	optimize.FunctionConvergence: true,
	optimize.StepConvergence:     true,
	optimize.MethodConverge:      true,
}

// GonumSolver maps unconstrained variables onto the simplex through a softmax
// and minimizes with BFGS, retrying with Nelder-Mead when BFGS fails.
type GonumSolver struct{}

// Solve implements Solver
func (GonumSolver) Solve(p Problem) ([]float64, error) {
	if p.N == 0 {
		return nil, &SolverError{Stage: "solve", Reason: "empty problem"}
	}
	if p.N == 1 {
		return []float64{1}, nil
	}

	w := make([]float64, p.N)
	g := make([]float64, p.N)
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			softmax(x, w)
			return p.Objective(w)
		},
	}
	if p.Gradient != nil {
		problem.Grad = func(grad, x []float64) {
			softmax(x, w)
			p.Gradient(g, w)
			// chain rule through softmax: dF/dx_i = w_i * (g_i - <w, g>)
			inner := 0.0
			for i := range w {
				inner += w[i] * g[i]
			}
			for i := range grad {
				grad[i] = w[i] * (g[i] - inner)
			}
		}
	}

	settings := &optimize.Settings{
		MajorIterations: maxSolverIterations,
		FuncEvaluations: maxSolverEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-10,
			Iterations: 25,
		},
	}
	initial := make([]float64, p.N) // all zeros: equal weights

	var methods []optimize.Method
	if problem.Grad != nil {
		methods = append(methods, &optimize.BFGS{})
	}
	methods = append(methods, &optimize.NelderMead{})

	var lastReason string
	for _, method := range methods {
		result, err := optimize.Minimize(problem, initial, settings, method)
		if err != nil {
			lastReason = fmt.Sprintf("optimization failed: %v", err)
			continue
		}
		if !successStatuses[result.Status] {
			lastReason = fmt.Sprintf("optimization did not converge: status=%v", result.Status)
			continue
		}
		out := make([]float64, p.N)
		softmax(result.X, out)
		if !allFinite(out) || !formulas.Finite(p.Objective(out)) {
			lastReason = "non-finite solution"
			continue
		}
		return out, nil
	}
	return nil, &SolverError{Stage: "solve", Reason: lastReason}
}

func softmax(x, out []float64) {
	maxX := math.Inf(-1)
	for _, v := range x {
		if v > maxX {
			maxX = v
		}
	}
	sum := 0.0
	for i, v := range x {
		out[i] = math.Exp(v - maxX)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
}

func allFinite(xs []float64) bool {
	for _, v := range xs {
		if !formulas.Finite(v) {
			return false
		}
	}
	return true
}

// checkCovariance rejects covariance matrices that are not positive definite
// or too ill-conditioned to invert reliably.
func checkCovariance(sigma *mat.SymDense) error {
	var chol mat.Cholesky
	if ok := chol.Factorize(sigma); !ok {
		return &SolverError{Stage: "covariance", Reason: "matrix is not positive definite"}
	}
	if cond := chol.Cond(); math.IsNaN(cond) || cond > maxConditionNumber {
		return &SolverError{Stage: "covariance", Reason: fmt.Sprintf("condition number %.3g exceeds %.0g", cond, maxConditionNumber)}
	}
	return nil
}

// quadForm computes w' Σ w and, when grad is non-nil, stores 2 Σ w in it.
func quadForm(sigma *mat.SymDense, w, grad []float64) float64 {
	n := len(w)
	total := 0.0
	for i := 0; i < n; i++ {
		row := 0.0
		for j := 0; j < n; j++ {
			row += sigma.At(i, j) * w[j]
		}
		total += w[i] * row
		if grad != nil {
			grad[i] = 2 * row
		}
	}
	return total
}
