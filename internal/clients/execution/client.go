// Package execution hands final targets to the downstream trading system.
// This engine never places orders itself; the logging client records what
// would be forwarded and is the default wiring.
package execution

import (
	"github.com/rs/zerolog"

	"github.com/dstav/lodestar/internal/domain"
)

// LoggingClient records submitted targets without forwarding them anywhere
type LoggingClient struct {
	log zerolog.Logger

	lastTargets []domain.PortfolioTarget
}

// NewLoggingClient creates a new logging execution client
func NewLoggingClient(log zerolog.Logger) *LoggingClient {
	return &LoggingClient{
		log: log.With().Str("service", "execution_client").Logger(),
	}
}

// SubmitTargets logs the final targets and retains them for inspection
func (c *LoggingClient) SubmitTargets(targets []domain.PortfolioTarget) error {
	c.lastTargets = targets

	c.log.Info().
		Int("count", len(targets)).
		Float64("gross", domain.GrossExposure(targets)).
		Msg("Targets ready for execution")

	for _, t := range targets {
		c.log.Info().
			Str("symbol", t.Symbol).
			Float64("weight", t.Weight).
			Msg("Target weight")
	}
	return nil
}

// LastTargets returns the most recently submitted targets
func (c *LoggingClient) LastTargets() []domain.PortfolioTarget {
	return c.lastTargets
}
