package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateMomentum(t *testing.T) {
	// 10 days of prices, 20% gain over the last 5 days
	prices := []float64{100, 100, 100, 100, 100, 100, 104, 108, 112, 116, 120}

	m := CalculateMomentum(prices, 5)
	require.NotNil(t, m)
	assert.InDelta(t, 20.0, *m, 1e-9)
}

func TestCalculateMomentum_InsufficientHistory(t *testing.T) {
	assert.Nil(t, CalculateMomentum([]float64{100, 105}, 5))
}

func TestCalculateMomentum_NonPositiveStartPrice(t *testing.T) {
	assert.Nil(t, CalculateMomentum([]float64{0, 100, 105}, 2))
}

func TestCalculateRealizedVolatility(t *testing.T) {
	// Alternating +1%/-1% daily moves produce a stable non-zero vol
	prices := make([]float64, 0, 32)
	p := 100.0
	prices = append(prices, p)
	for i := 0; i < 31; i++ {
		if i%2 == 0 {
			p *= 1.01
		} else {
			p *= 0.99
		}
		prices = append(prices, p)
	}

	vol := CalculateRealizedVolatility(prices, 21)
	require.NotNil(t, vol)
	assert.Greater(t, *vol, 0.0)
}

func TestCalculateRealizedVolatility_InsufficientHistory(t *testing.T) {
	assert.Nil(t, CalculateRealizedVolatility([]float64{100, 101, 102}, 21))
}

func TestCalculateRealizedVolatility_FlatSeries(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100
	}
	// Zero variance resolves to nil rather than a zero divisor downstream
	assert.Nil(t, CalculateRealizedVolatility(prices, 21))
}

func TestDrawdown(t *testing.T) {
	assert.InDelta(t, 0.11, Drawdown(100000, 89000), 1e-12)
	assert.Equal(t, 0.0, Drawdown(0, 100))
}

func TestCalculateMaxDrawdown(t *testing.T) {
	dd := CalculateMaxDrawdown([]float64{100, 120, 90, 110})
	require.NotNil(t, dd)
	assert.InDelta(t, 0.25, *dd, 1e-12)

	assert.Nil(t, CalculateMaxDrawdown([]float64{100}))
}
