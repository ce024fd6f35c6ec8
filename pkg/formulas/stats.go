// Package formulas provides the numerical building blocks shared by the
// signal ranking and risk modules: return series math, realized volatility,
// cross-sectional statistics and drawdown calculations.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the population standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	// gonum's StdDev is the sample estimate; cross-sectional confidence
	// scoring uses the population form so a two-element cross-section
	// still produces usable z-scores.
	return math.Sqrt(PopVariance(data))
}

// PopVariance calculates the population variance of a slice of float64 values
func PopVariance(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m := stat.Mean(data, nil)
	sum := 0.0
	for _, v := range data {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(data))
}

// ZScore returns the z-score of value against the given cross-section.
// Returns 0 when the cross-section is empty or has zero variance.
func ZScore(value float64, data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	m := Mean(data)
	sd := StdDev(data)
	if sd == 0 {
		return 0
	}
	return (value - m) / sd
}

// CalculateReturns converts prices to percentage returns
// Returns[i] = (Price[i] - Price[i-1]) / Price[i-1]
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}

	return returns
}

// AnnualizedVolatility calculates annualized volatility from daily returns
// Formula: Std Dev of Daily Returns × sqrt(252 trading days)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) == 0 {
		return 0
	}

	return stat.StdDev(dailyReturns, nil) * math.Sqrt(252)
}

// Correlation calculates the Pearson correlation coefficient between two datasets
func Correlation(x, y []float64) float64 {
	if len(x) == 0 || len(y) == 0 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// Clamp bounds value to the [lo, hi] interval
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
