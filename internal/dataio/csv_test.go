package dataio

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/aristath/allocation-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPrices(t *testing.T) {
	in := `date,AAA,BBB
2024-01-02,100,50.5
2024-01-03,,51
# holiday skipped
2024-01-05,102.25,52
`
	m, err := ReadPrices(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, m.Assets())
	require.Equal(t, 3, m.Rows())
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), m.Dates[2])
	assert.True(t, math.IsNaN(m.Data["AAA"][1]))
	assert.Equal(t, 102.25, m.Data["AAA"][2])
	assert.Equal(t, []float64{50.5, 51, 52}, m.Data["BBB"])
}

func TestReadPricesErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"no assets", "date\n2024-01-01\n"},
		{"duplicate asset", "date,A,A\n2024-01-01,1,2\n"},
		{"short row", "date,A,B\n2024-01-01,1\n"},
		{"bad date", "date,A\n01/02/2024,1\n"},
		{"bad number", "date,A\n2024-01-01,abc\n"},
		{"unsorted dates", "date,A\n2024-01-02,1\n2024-01-01,1\n"},
		{"negative price", "date,A\n2024-01-01,-3\n"},
		{"literal NaN", "date,A\n2024-01-01,NaN\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPrices(strings.NewReader(tt.in))
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestReadValues(t *testing.T) {
	s, err := ReadValues(strings.NewReader("date,value\n2024-01-01,1000\n2024-01-02, 1010.5\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 1010.5, s.Values[1])

	_, err = ReadValues(strings.NewReader("date,value\n2024-01-02,1\n2024-01-02,2\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestReadCashFlows(t *testing.T) {
	flows, err := ReadCashFlows(strings.NewReader("date,amount\n2024-03-01,500\n2024-06-01,-200\n"))
	require.NoError(t, err)
	require.Len(t, flows, 2)
	assert.Equal(t, 500.0, flows[0].Amount)
	assert.Equal(t, -200.0, flows[1].Amount)
	assert.Equal(t, time.June, flows[1].Date.Month())

	flows, err = ReadCashFlows(strings.NewReader("date,amount\n"))
	require.NoError(t, err)
	assert.Empty(t, flows)

	for _, amount := range []string{"NaN", "Inf", "-Inf", "1e400"} {
		t.Run(amount, func(t *testing.T) {
			_, err := ReadCashFlows(strings.NewReader("date,amount\n2024-03-01," + amount + "\n"))
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestReadMarketCaps(t *testing.T) {
	caps, err := ReadMarketCaps(strings.NewReader("asset,cap\nAAA,1e9\nBBB,250000000\n"))
	require.NoError(t, err)
	assert.Equal(t, domain.MarketCapVector{"AAA": 1e9, "BBB": 2.5e8}, caps)

	_, err = ReadMarketCaps(strings.NewReader("asset,cap\nAAA,1\nAAA,2\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ReadMarketCaps(strings.NewReader("asset,cap\nAAA,-1\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
