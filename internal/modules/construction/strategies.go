package construction

import (
	"github.com/dstav/lodestar/internal/domain"
)

// allocateEqualWeight gives every position the same magnitude:
// 1/(longs+shorts), bounded by the per-position cap.
func (c *Constructor) allocateEqualWeight(long, short []domain.Signal, _ VolatilityLookup) []domain.PortfolioTarget {
	total := len(long) + len(short)
	if total == 0 {
		return []domain.PortfolioTarget{}
	}

	weight := c.capWeight(1.0 / float64(total))

	targets := make([]domain.PortfolioTarget, 0, total)
	for _, sig := range long {
		targets = append(targets, domain.PortfolioTarget{Symbol: sig.Symbol, Weight: weight})
	}
	for _, sig := range short {
		targets = append(targets, domain.PortfolioTarget{Symbol: sig.Symbol, Weight: -weight})
	}
	return targets
}

// allocateConfidenceWeighted sizes each position proportionally to its signal
// confidence within its side, with half the book notional per side. A side
// whose confidences sum to zero degrades to equal shares within that side.
func (c *Constructor) allocateConfidenceWeighted(long, short []domain.Signal, _ VolatilityLookup) []domain.PortfolioTarget {
	targets := make([]domain.PortfolioTarget, 0, len(long)+len(short))

	for _, t := range c.confidenceSide(long, 1) {
		targets = append(targets, t)
	}
	for _, t := range c.confidenceSide(short, -1) {
		targets = append(targets, t)
	}
	return targets
}

func (c *Constructor) confidenceSide(side []domain.Signal, sign float64) []domain.PortfolioTarget {
	if len(side) == 0 {
		return nil
	}

	var total float64
	for _, sig := range side {
		total += sig.Confidence
	}

	targets := make([]domain.PortfolioTarget, 0, len(side))
	for _, sig := range side {
		share := 1.0 / float64(len(side))
		if total > 0 {
			share = sig.Confidence / total
		}
		weight := c.capWeight(share * sideAllocation)
		targets = append(targets, domain.PortfolioTarget{Symbol: sig.Symbol, Weight: sign * weight})
	}
	return targets
}

// allocateRiskParity sizes each position by inverse volatility within its
// side, with half the book notional per side. When any selected instrument
// has no volatility estimate the whole cycle falls back to equal weighting
// rather than mixing sizing schemes.
func (c *Constructor) allocateRiskParity(long, short []domain.Signal, lookup VolatilityLookup) []domain.PortfolioTarget {
	vols := make(map[string]float64, len(long)+len(short))
	for _, sig := range append(append([]domain.Signal{}, long...), short...) {
		vol, ok := lookup(sig.Symbol)
		if !ok || vol <= 0 {
			c.log.Warn().
				Str("symbol", sig.Symbol).
				Msg("Volatility unavailable, falling back to equal weight")
			return c.allocateEqualWeight(long, short, lookup)
		}
		vols[sig.Symbol] = vol
	}

	targets := make([]domain.PortfolioTarget, 0, len(long)+len(short))
	targets = append(targets, c.riskParitySide(long, vols, 1)...)
	targets = append(targets, c.riskParitySide(short, vols, -1)...)
	return targets
}

func (c *Constructor) riskParitySide(side []domain.Signal, vols map[string]float64, sign float64) []domain.PortfolioTarget {
	if len(side) == 0 {
		return nil
	}

	var totalInverse float64
	for _, sig := range side {
		totalInverse += 1.0 / vols[sig.Symbol]
	}

	targets := make([]domain.PortfolioTarget, 0, len(side))
	for _, sig := range side {
		share := (1.0 / vols[sig.Symbol]) / totalInverse
		weight := c.capWeight(share * sideAllocation)
		targets = append(targets, domain.PortfolioTarget{Symbol: sig.Symbol, Weight: sign * weight})
	}
	return targets
}
