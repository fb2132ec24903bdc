package weights

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHierarchicalRiskParity(t *testing.T) {
	c := NewCalculator(zerolog.Nop())

	t.Run("uncorrelated pair weighted by inverse variance", func(t *testing.T) {
		r := returnMatrix(map[string][]float64{
			"A": alternating(40, 0.02, 0),
			"B": paired(40, 0.01, 0),
		})
		res := c.HierarchicalRiskParity(r, 60, LinkageSingle)
		require.Empty(t, res.Fallback)
		assert.Equal(t, MethodHierarchicalRiskParity, res.Method)
		assertNormalized(t, res.Weights)
		assert.InDelta(t, 0.2, res.Weights["A"], 1e-9)
		assert.InDelta(t, 0.8, res.Weights["B"], 1e-9)
	})

	t.Run("singular covariance needs no fallback", func(t *testing.T) {
		a := alternating(40, 0.02, 0)
		r := returnMatrix(map[string][]float64{"A": a, "B": append([]float64(nil), a...)})
		res := c.HierarchicalRiskParity(r, 60, LinkageSingle)
		require.Empty(t, res.Fallback)
		assert.InDelta(t, 0.5, res.Weights["A"], 1e-9)
		assert.InDelta(t, 0.5, res.Weights["B"], 1e-9)
	})

	t.Run("single observation falls back to risk parity", func(t *testing.T) {
		r := returnMatrix(map[string][]float64{"A": {0.01}, "B": {0.02}})
		res := c.HierarchicalRiskParity(r, 60, LinkageSingle)
		assert.Equal(t, MethodRiskParity, res.Method)
		assert.NotEmpty(t, res.Fallback)
		assertNormalized(t, res.Weights)
	})

	t.Run("single asset", func(t *testing.T) {
		r := returnMatrix(map[string][]float64{"A": alternating(8, 0.01, 0)})
		res := c.HierarchicalRiskParity(r, 60, LinkageAverage)
		assert.Equal(t, 1.0, res.Weights["A"])
	})
}

func TestHierarchicalRiskParityClusters(t *testing.T) {
	c := NewCalculator(zerolog.Nop())

	// A1 and A2 move together, as do B1 and B2; the two groups are uncorrelated
	r := returnMatrix(map[string][]float64{
		"A1": alternating(40, 0.02, 0),
		"A2": alternating(40, 0.04, 0),
		"B1": paired(40, 0.01, 0),
		"B2": paired(40, 0.01, 0),
	})

	// the A cluster's inverse-variance portfolio has 1.44x the variance of
	// A1, so it receives 1 / (1 + 1.44 * 4) of the weight
	groupA := 1 / (1 + 1.44*4)

	for _, linkage := range []Linkage{LinkageSingle, LinkageComplete, LinkageAverage} {
		t.Run(string(linkage), func(t *testing.T) {
			res := c.HierarchicalRiskParity(r, 60, linkage)
			require.Empty(t, res.Fallback)
			assertNormalized(t, res.Weights)

			assert.InDelta(t, groupA, res.Weights["A1"]+res.Weights["A2"], 1e-9)
			assert.InDelta(t, 4*res.Weights["A2"], res.Weights["A1"], 1e-9)
			assert.InDelta(t, res.Weights["B1"], res.Weights["B2"], 1e-9)
		})
	}
}

func TestCorrelationDistanceOrdersCorrelatedAssetsTogether(t *testing.T) {
	c := NewCalculator(zerolog.Nop())
	r := returnMatrix(map[string][]float64{
		"A": alternating(40, 0.02, 0),
		"B": paired(40, 0.01, 0),
		"C": alternating(40, 0.03, 0),
	})
	_, _, sigma, err := c.sampleCovariance(r, 60)
	require.NoError(t, err)

	dist := correlationDistance(sigma)
	assert.InDelta(t, 0.0, dist[0][2], 1e-9)
	assert.InDelta(t, 0.7071067811865476, dist[0][1], 1e-9)

	order := leafOrder(buildTree(dist, LinkageSingle))
	assert.Equal(t, []int{0, 2, 1}, order)
}
