package risk

import (
	"math"

	"github.com/dstav/lodestar/internal/domain"
)

// volMultiplier maps the volatility proxy to a discrete exposure multiplier
func (o *Overlay) volMultiplier(vix float64) float64 {
	switch {
	case vix >= o.cfg.VIXExtremeThreshold:
		return 0.25
	case vix >= o.cfg.VIXHighThreshold:
		return 0.5
	default:
		return 1.0
	}
}

// applyVolScaling shrinks all targets uniformly in elevated volatility
// regimes. A missing proxy reading leaves targets untouched.
func (o *Overlay) applyVolScaling(decision *Decision, targets []domain.PortfolioTarget, vix *float64) []domain.PortfolioTarget {
	if !o.cfg.VolScalingEnabled || vix == nil {
		return targets
	}

	mult := o.volMultiplier(*vix)
	decision.VolMultiplier = mult
	if mult == 1.0 {
		return targets
	}

	o.log.Info().
		Float64("vix", *vix).
		Float64("multiplier", mult).
		Msg("Scaling exposure for elevated volatility")

	scaled := make([]domain.PortfolioTarget, len(targets))
	for i, t := range targets {
		scaled[i] = domain.PortfolioTarget{Symbol: t.Symbol, Weight: t.Weight * mult}
	}
	return scaled
}

// applySectorCap scales down only the sectors whose summed absolute weight
// exceeds the cap. Symbols without a sector mapping are never scaled.
func (o *Overlay) applySectorCap(targets []domain.PortfolioTarget, sectors map[string]string) []domain.PortfolioTarget {
	if o.cfg.SectorExposureCap <= 0 || len(sectors) == 0 {
		return targets
	}

	exposure := make(map[string]float64)
	for _, t := range targets {
		if sector, ok := sectors[t.Symbol]; ok && sector != "" {
			exposure[sector] += math.Abs(t.Weight)
		}
	}

	scaleBySector := make(map[string]float64)
	for sector, total := range exposure {
		if total > o.cfg.SectorExposureCap {
			scaleBySector[sector] = o.cfg.SectorExposureCap / total
			o.log.Info().
				Str("sector", sector).
				Float64("exposure", total).
				Float64("scale", scaleBySector[sector]).
				Msg("Scaling sector past exposure cap")
		}
	}
	if len(scaleBySector) == 0 {
		return targets
	}

	scaled := make([]domain.PortfolioTarget, len(targets))
	for i, t := range targets {
		scaled[i] = t
		if scale, ok := scaleBySector[sectors[t.Symbol]]; ok {
			scaled[i].Weight = t.Weight * scale
		}
	}
	return scaled
}

// applyGrossLimit re-checks total exposure after stops and scaling
func (o *Overlay) applyGrossLimit(targets []domain.PortfolioTarget) []domain.PortfolioTarget {
	gross := domain.GrossExposure(targets)
	if gross <= o.cfg.MaxGrossExposure || gross == 0 {
		return targets
	}

	scale := o.cfg.MaxGrossExposure / gross
	o.log.Info().
		Float64("gross", gross).
		Float64("scale", scale).
		Msg("Scaling targets past gross exposure limit")

	scaled := make([]domain.PortfolioTarget, len(targets))
	for i, t := range targets {
		scaled[i] = domain.PortfolioTarget{Symbol: t.Symbol, Weight: t.Weight * scale}
	}
	return scaled
}
