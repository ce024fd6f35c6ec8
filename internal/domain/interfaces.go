package domain

import "time"

// SnapshotProvider supplies a consistent universe snapshot and trailing price
// history for a cycle. Implementations block until the data is complete; the
// pipeline itself never fetches mid-cycle.
type SnapshotProvider interface {
	// Snapshot returns the universe as of the given time
	Snapshot(asOf time.Time) ([]SecuritySnapshot, error)

	// History returns at least lookback+1 daily closes for the symbol,
	// oldest first, ending at or before asOf. Fewer elements means the
	// provider has insufficient history for this instrument.
	History(symbol string, asOf time.Time, lookback int) ([]float64, error)
}

// PortfolioReader exposes the current portfolio state (equity and open
// positions) owned by the execution collaborator
type PortfolioReader interface {
	PortfolioState() (*PortfolioState, error)
}

// ExecutionClient accepts final portfolio targets. Order generation and
// broker connectivity live entirely behind this interface.
type ExecutionClient interface {
	SubmitTargets(targets []PortfolioTarget) error
}
