package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateMomentum calculates the percent price change over a lookback window.
//
// Momentum Formula:
//   Momentum = (Price[now] / Price[now - days] - 1) × 100
//
// Args:
//   prices: Array of closing prices, oldest first
//   days: Lookback window in trading days
//
// Returns:
//   Momentum as a percentage or nil if insufficient data
func CalculateMomentum(prices []float64, days int) *float64 {
	if len(prices) < days+1 {
		return nil
	}

	startPrice := prices[len(prices)-days-1]
	endPrice := prices[len(prices)-1]

	if startPrice <= 0 {
		return nil
	}

	momentum := (endPrice/startPrice - 1) * 100
	return &momentum
}

// CalculateRealizedVolatility calculates annualized realized volatility over a
// trailing window, using a rolling standard deviation of daily returns.
//
// Args:
//   prices: Array of closing prices, oldest first
//   window: Trailing window in trading days
//
// Returns:
//   Annualized volatility or nil if insufficient data
func CalculateRealizedVolatility(prices []float64, window int) *float64 {
	if window < 2 || len(prices) < window+1 {
		return nil
	}

	returns := CalculateReturns(prices)
	if len(returns) < window {
		return nil
	}

	// Rolling stddev of returns; the final element is the trailing window.
	stddevs := talib.StdDev(returns, window, 1.0)
	last := stddevs[len(stddevs)-1]
	if isNaN(last) || last <= 0 {
		return nil
	}

	vol := last * sqrt252
	return &vol
}

// sqrt252 annualizes daily volatility (252 trading days per year)
const sqrt252 = 15.874507866387544

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
