// Package construction turns directional signals into capped, exposure-bounded
// target portfolio weights. Three interchangeable allocation strategies are
// provided: equal-weight, confidence-weighted and risk-parity.
package construction

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dstav/lodestar/internal/domain"
)

// sideAllocation is the notional fraction each book receives under the
// confidence-weighted and risk-parity strategies (50% long, 50% short,
// market-neutral by construction).
const sideAllocation = 0.5

// VolatilityLookup resolves an instrument's annualized volatility.
// The second return value reports availability.
type VolatilityLookup func(symbol string) (float64, bool)

// strategyFunc allocates weights within the long and short books.
// Returned weights are positive magnitudes; the constructor applies signs.
type strategyFunc func(c *Constructor, long, short []domain.Signal, lookup VolatilityLookup) []domain.PortfolioTarget

// Constructor builds portfolio targets from signals using the configured
// allocation strategy. Construction runs at most once per calendar day;
// intraday repeats return the previous result unchanged.
type Constructor struct {
	strategy          string
	allocate          strategyFunc
	maxPositionWeight float64
	maxGrossExposure  float64

	lastRebalanceDate string // YYYY-MM-DD of the last build
	lastTargets       []domain.PortfolioTarget

	log zerolog.Logger
}

// Config holds constructor parameters
type Config struct {
	Strategy          string // equal_weight, confidence_weighted, risk_parity
	MaxPositionWeight float64
	MaxGrossExposure  float64
}

// NewConstructor creates a new portfolio constructor
func NewConstructor(cfg Config, log zerolog.Logger) (*Constructor, error) {
	c := &Constructor{
		strategy:          cfg.Strategy,
		maxPositionWeight: cfg.MaxPositionWeight,
		maxGrossExposure:  cfg.MaxGrossExposure,
		log:               log.With().Str("service", "portfolio_constructor").Logger(),
	}

	switch cfg.Strategy {
	case "equal_weight":
		c.allocate = (*Constructor).allocateEqualWeight
	case "confidence_weighted":
		c.allocate = (*Constructor).allocateConfidenceWeighted
	case "risk_parity":
		c.allocate = (*Constructor).allocateRiskParity
	default:
		return nil, fmt.Errorf("unknown construction strategy %q", cfg.Strategy)
	}

	return c, nil
}

// Strategy returns the configured strategy name
func (c *Constructor) Strategy() string {
	return c.strategy
}

// Build converts signals into target weights as of the given time.
// When the calendar date has not advanced past the last rebalance, the
// previous targets are returned unchanged.
func (c *Constructor) Build(signals []domain.Signal, equity float64, lookup VolatilityLookup, asOf time.Time) []domain.PortfolioTarget {
	date := asOf.Format("2006-01-02")
	if c.lastRebalanceDate == date {
		c.log.Debug().Str("date", date).Msg("Intraday repeat, returning previous targets")
		return c.lastTargets
	}

	targets := c.build(signals, lookup)

	c.lastRebalanceDate = date
	c.lastTargets = targets

	c.log.Info().
		Str("strategy", c.strategy).
		Int("signals", len(signals)).
		Int("targets", len(targets)).
		Float64("equity", equity).
		Float64("gross", domain.GrossExposure(targets)).
		Msg("Built portfolio targets")

	return targets
}

// Reset clears the rebalance gate and memoized targets
func (c *Constructor) Reset() {
	c.lastRebalanceDate = ""
	c.lastTargets = nil
}

func (c *Constructor) build(signals []domain.Signal, lookup VolatilityLookup) []domain.PortfolioTarget {
	if len(signals) == 0 {
		return []domain.PortfolioTarget{}
	}

	long, short := splitByDirection(signals)
	targets := c.allocate(c, long, short, lookup)

	return c.scaleToGrossLimit(targets)
}

// scaleToGrossLimit proportionally shrinks all weights when the summed
// absolute weight exceeds the gross exposure cap
func (c *Constructor) scaleToGrossLimit(targets []domain.PortfolioTarget) []domain.PortfolioTarget {
	gross := domain.GrossExposure(targets)
	if gross <= c.maxGrossExposure || gross == 0 {
		return targets
	}

	scale := c.maxGrossExposure / gross
	scaled := make([]domain.PortfolioTarget, len(targets))
	for i, t := range targets {
		scaled[i] = domain.PortfolioTarget{Symbol: t.Symbol, Weight: t.Weight * scale}
	}

	c.log.Info().
		Float64("gross", gross).
		Float64("scale", scale).
		Msg("Scaled targets to gross exposure limit")

	return scaled
}

// capWeight bounds a positive weight magnitude to the per-position limit
func (c *Constructor) capWeight(weight float64) float64 {
	if weight > c.maxPositionWeight {
		return c.maxPositionWeight
	}
	return weight
}

func splitByDirection(signals []domain.Signal) (long, short []domain.Signal) {
	for _, sig := range signals {
		switch sig.Direction {
		case domain.DirectionLong:
			long = append(long, sig)
		case domain.DirectionShort:
			short = append(short, sig)
		}
	}
	return long, short
}
