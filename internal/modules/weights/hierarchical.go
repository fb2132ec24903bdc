package weights

import (
	"fmt"
	"math"

	"github.com/aristath/allocation-engine/internal/domain"
	"gonum.org/v1/gonum/mat"
)

// Linkage selects how the distance between two clusters is measured
type Linkage string

const (
	LinkageSingle   Linkage = "single"
	LinkageComplete Linkage = "complete"
	LinkageAverage  Linkage = "average"
)

// MethodHierarchicalRiskParity names the hierarchical risk parity strategy
const MethodHierarchicalRiskParity = "hierarchical_risk_parity"

// epsilonVariance is the smallest variance treated as non-zero
const epsilonVariance = 1e-12

type cluster struct {
	left, right *cluster
	members     []int
	first       int // smallest member, used to break ties
}

// HierarchicalRiskParity clusters assets by return correlation and splits
// weight between sub-clusters in inverse proportion to their variance. It
// needs no matrix inversion, so a singular covariance is fine; with fewer
// than two complete observations it falls back to risk parity.
func (c *Calculator) HierarchicalRiskParity(returns *domain.ReturnMatrix, lookback int, linkage Linkage) Result {
	assets, _, sigma, err := c.sampleCovariance(returns, lookback)
	if err != nil {
		c.log.Warn().Err(err).Msg("Hierarchical risk parity failed, falling back to risk parity")
		return Result{Weights: c.RiskParity(returns, lookback), Method: MethodRiskParity, Fallback: err.Error()}
	}
	if len(assets) == 1 {
		return Result{Weights: domain.WeightVector{assets[0]: 1}, Method: MethodHierarchicalRiskParity}
	}

	order := leafOrder(buildTree(correlationDistance(sigma), linkage))
	w := make([]float64, len(assets))
	for i := range w {
		w[i] = 1
	}
	bisect(w, sigma, order)

	out := toVector(assets, w).Normalize()
	if len(out) == 0 {
		reason := fmt.Sprintf("degenerate weights for %d assets", len(assets))
		c.log.Warn().Str("reason", reason).Msg("Hierarchical risk parity failed, falling back to risk parity")
		return Result{Weights: c.RiskParity(returns, lookback), Method: MethodRiskParity, Fallback: reason}
	}
	return Result{Weights: out, Method: MethodHierarchicalRiskParity}
}

// correlationDistance maps correlation to d = sqrt((1 - ρ) / 2), in [0, 1].
// Assets without variance are treated as uncorrelated with everything.
func correlationDistance(sigma *mat.SymDense) [][]float64 {
	n := sigma.SymmetricDim()
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			rho := 0.0
			if vi, vj := sigma.At(i, i), sigma.At(j, j); vi > epsilonVariance && vj > epsilonVariance {
				rho = math.Max(-1, math.Min(1, sigma.At(i, j)/math.Sqrt(vi*vj)))
			}
			dist[i][j] = math.Sqrt((1 - rho) / 2)
		}
	}
	return dist
}

// buildTree merges the two closest clusters until one remains. Equal
// distances merge the pair with the smallest members first.
func buildTree(dist [][]float64, linkage Linkage) *cluster {
	nodes := make([]*cluster, len(dist))
	for i := range nodes {
		nodes[i] = &cluster{members: []int{i}, first: i}
	}

	for len(nodes) > 1 {
		bi, bj := 0, 1
		best := linkageDistance(dist, nodes[0], nodes[1], linkage)
		for i := 0; i < len(nodes); i++ {
			for j := i + 1; j < len(nodes); j++ {
				d := linkageDistance(dist, nodes[i], nodes[j], linkage)
				if d < best || (d == best && pairBefore(nodes[i], nodes[j], nodes[bi], nodes[bj])) {
					best, bi, bj = d, i, j
				}
			}
		}

		left, right := nodes[bi], nodes[bj]
		if right.first < left.first {
			left, right = right, left
		}
		merged := &cluster{
			left:    left,
			right:   right,
			members: append(append([]int(nil), left.members...), right.members...),
			first:   left.first,
		}

		rest := make([]*cluster, 0, len(nodes)-1)
		for k, n := range nodes {
			if k != bi && k != bj {
				rest = append(rest, n)
			}
		}
		nodes = append(rest, merged)
	}
	return nodes[0]
}

func pairBefore(a1, b1, a2, b2 *cluster) bool {
	lo1, hi1 := a1.first, b1.first
	if hi1 < lo1 {
		lo1, hi1 = hi1, lo1
	}
	lo2, hi2 := a2.first, b2.first
	if hi2 < lo2 {
		lo2, hi2 = hi2, lo2
	}
	if lo1 != lo2 {
		return lo1 < lo2
	}
	return hi1 < hi2
}

func linkageDistance(dist [][]float64, a, b *cluster, linkage Linkage) float64 {
	switch linkage {
	case LinkageComplete:
		worst := 0.0
		for _, i := range a.members {
			for _, j := range b.members {
				worst = math.Max(worst, dist[i][j])
			}
		}
		return worst
	case LinkageAverage:
		total := 0.0
		for _, i := range a.members {
			for _, j := range b.members {
				total += dist[i][j]
			}
		}
		return total / float64(len(a.members)*len(b.members))
	default:
		closest := math.Inf(1)
		for _, i := range a.members {
			for _, j := range b.members {
				closest = math.Min(closest, dist[i][j])
			}
		}
		return closest
	}
}

// leafOrder walks the tree left to right so correlated assets sit together
func leafOrder(node *cluster) []int {
	if node.left == nil {
		return node.members
	}
	return append(leafOrder(node.left), leafOrder(node.right)...)
}

// bisect halves the ordered assets recursively, giving each half a share of
// its parent's weight inversely proportional to the half's variance.
func bisect(w []float64, sigma *mat.SymDense, order []int) {
	if len(order) < 2 {
		return
	}
	half := len(order) / 2
	left, right := order[:half], order[half:]

	vl, vr := clusterVariance(sigma, left), clusterVariance(sigma, right)
	alpha := 0.5
	if vl+vr > 0 {
		alpha = 1 - vl/(vl+vr)
	}
	for _, i := range left {
		w[i] *= alpha
	}
	for _, i := range right {
		w[i] *= 1 - alpha
	}
	bisect(w, sigma, left)
	bisect(w, sigma, right)
}

// clusterVariance is the variance of the inverse-variance portfolio of members
func clusterVariance(sigma *mat.SymDense, members []int) float64 {
	inv := make([]float64, len(members))
	total := 0.0
	for k, i := range members {
		inv[k] = 1 / math.Max(sigma.At(i, i), epsilonVariance)
		total += inv[k]
	}
	variance := 0.0
	for a, i := range members {
		for b, j := range members {
			variance += inv[a] / total * sigma.At(i, j) * inv[b] / total
		}
	}
	return math.Max(variance, 0)
}
