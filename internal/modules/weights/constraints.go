package weights

import (
	"sort"

	"github.com/aristath/allocation-engine/internal/domain"
)

// capTolerance absorbs float noise when testing weights against the cap
const capTolerance = 1e-12

// Component is one strategy's vector and its blend coefficient
type Component struct {
	Name        string
	Weights     domain.WeightVector
	Coefficient float64
}

// Combine blends strategy vectors by their coefficients. Coefficients are
// renormalized when they do not sum to 1; assets missing from a component
// count as zero. The blend is renormalized to sum to 1.
func (c *Calculator) Combine(components []Component) domain.WeightVector {
	total := 0.0
	for _, comp := range components {
		if comp.Coefficient > 0 {
			total += comp.Coefficient
		}
	}
	if total <= 0 {
		return domain.WeightVector{}
	}

	blended := make(domain.WeightVector)
	for _, comp := range components {
		if comp.Coefficient <= 0 || len(comp.Weights) == 0 {
			continue
		}
		coef := comp.Coefficient / total
		for _, asset := range comp.Weights.Assets() {
			blended[asset] += coef * comp.Weights[asset]
		}
	}
	return blended.Normalize()
}

// Constraints bound the final allocation
type Constraints struct {
	MinWeight    float64
	MaxWeight    float64
	MaxPositions int
}

// ApplyConstraints clips weights to MaxWeight, drops weights below
// MinWeight, keeps the MaxPositions largest (ties by asset id), and
// renormalizes. Weights pushed above the cap by renormalization are capped
// again and the excess is spread pro-rata over the uncapped assets. When the
// cap cannot be met (count * MaxWeight < 1) the survivors are weighted
// equally. If MinWeight would drop every asset the filter is skipped.
// Applying the pass twice yields the same vector.
func (c *Calculator) ApplyConstraints(w domain.WeightVector, cons Constraints) domain.WeightVector {
	out := w.Normalize()
	if len(out) == 0 {
		return out
	}
	maxW := cons.MaxWeight
	if maxW <= 0 || maxW > 1 {
		maxW = 1
	}

	for asset, v := range out {
		if v > maxW {
			out[asset] = maxW
		}
	}

	kept := make(domain.WeightVector, len(out))
	for asset, v := range out {
		if v >= cons.MinWeight {
			kept[asset] = v
		}
	}
	if len(kept) == 0 {
		c.log.Warn().
			Float64("min_weight", cons.MinWeight).
			Msg("Minimum weight would drop every asset, skipping filter")
		kept = out
	}

	if cons.MaxPositions > 0 && len(kept) > cons.MaxPositions {
		kept = topN(kept, cons.MaxPositions)
	}

	out = kept.Normalize()

	if float64(len(out))*maxW < 1-capTolerance {
		c.log.Warn().
			Int("positions", len(out)).
			Float64("max_weight", maxW).
			Msg("Max weight infeasible for position count, using equal weights")
		return domain.EqualWeights(out.Assets())
	}
	return redistributeExcess(out, maxW)
}

// topN keeps the n largest weights, breaking ties by asset id.
func topN(w domain.WeightVector, n int) domain.WeightVector {
	assets := w.Assets()
	sort.SliceStable(assets, func(i, j int) bool {
		return w[assets[i]] > w[assets[j]]
	})
	out := make(domain.WeightVector, n)
	for _, asset := range assets[:n] {
		out[asset] = w[asset]
	}
	return out
}

// redistributeExcess caps weights at maxW and spreads the excess over the
// uncapped assets in proportion to their weights, repeating until no weight
// exceeds the cap. Assumes len(w) * maxW >= 1.
func redistributeExcess(w domain.WeightVector, maxW float64) domain.WeightVector {
	out := w.Clone()
	assets := out.Assets()

	for iter := 0; iter < len(assets); iter++ {
		over := false
		for _, a := range assets {
			if out[a] > maxW+capTolerance {
				over = true
				break
			}
		}
		if !over {
			break
		}

		capped := 0
		uncappedSum := 0.0
		for _, a := range assets {
			if out[a] >= maxW-capTolerance {
				capped++
			} else {
				uncappedSum += out[a]
			}
		}
		remaining := 1 - float64(capped)*maxW
		if uncappedSum <= 0 || remaining <= 0 {
			for _, a := range assets {
				if out[a] >= maxW-capTolerance {
					out[a] = maxW
				}
			}
			break
		}

		scale := remaining / uncappedSum
		for _, a := range assets {
			if out[a] >= maxW-capTolerance {
				out[a] = maxW
			} else {
				out[a] *= scale
			}
		}
	}
	return out
}
