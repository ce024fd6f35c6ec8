package formulas

// Drawdown calculates the fractional decline of current value from a peak.
// Returns 0 when peak is not positive (never divides by zero).
func Drawdown(peak, current float64) float64 {
	if peak <= 0 {
		return 0
	}
	return (peak - current) / peak
}

// CalculateMaxDrawdown calculates the maximum drawdown from a value series
//
// Drawdown Formula:
//   Drawdown = (Peak Value - Current Value) / Peak Value
//   Max Drawdown = Maximum of all drawdowns
//
// Args:
//   values: Array of equity values, oldest first
//
// Returns:
//   Maximum drawdown as positive fraction (0.25 = 25% loss from peak) or nil
func CalculateMaxDrawdown(values []float64) *float64 {
	if len(values) < 2 {
		return nil
	}

	maxDrawdown := 0.0
	peak := values[0]

	for _, v := range values {
		if v > peak {
			peak = v
		}

		if peak > 0 {
			dd := (peak - v) / peak
			if dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}

	return &maxDrawdown
}
