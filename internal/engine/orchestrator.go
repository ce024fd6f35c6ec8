// Package engine runs the decision cycle: one consistent snapshot flows
// through screening, signal ranking, portfolio construction and the risk
// overlay, and the final targets go to the execution client. Cycles run at
// most once per calendar day; repeat invocations return the completed result.
package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dstav/lodestar/internal/domain"
	"github.com/dstav/lodestar/internal/events"
	"github.com/dstav/lodestar/internal/modules/construction"
	"github.com/dstav/lodestar/internal/modules/risk"
	"github.com/dstav/lodestar/internal/modules/signals"
	"github.com/dstav/lodestar/internal/modules/universe"
	"github.com/dstav/lodestar/pkg/formulas"
)

// VolatilityProxy supplies the market volatility reading used for exposure
// scaling. A nil reading means the proxy is unavailable this cycle.
type VolatilityProxy interface {
	VolatilityProxy(asOf time.Time) (*float64, error)
}

// CycleResult is the complete outcome of one decision cycle
type CycleResult struct {
	CycleID  string                   `json:"cycle_id"`
	AsOf     time.Time                `json:"as_of"`
	Signals  []domain.Signal          `json:"signals"`
	Targets  []domain.PortfolioTarget `json:"targets"`
	Decision *risk.Decision           `json:"decision"`
	Duration time.Duration            `json:"duration"`
}

// Orchestrator wires the pipeline stages together and enforces the
// once-per-calendar-day cadence. Invocations are serialized; the external
// scheduler and the API trigger share one mutex.
type Orchestrator struct {
	provider  domain.SnapshotProvider
	portfolio domain.PortfolioReader
	execution domain.ExecutionClient
	volProxy  VolatilityProxy // optional

	screener    *universe.Screener
	ranker      *signals.Ranker
	constructor *construction.Constructor
	overlay     *risk.Overlay

	volLookback int

	bus *events.Bus
	log zerolog.Logger

	mu          sync.Mutex
	lastRunDate string
	lastResult  *CycleResult
}

// Deps bundles the orchestrator's collaborators
type Deps struct {
	Provider  domain.SnapshotProvider
	Portfolio domain.PortfolioReader
	Execution domain.ExecutionClient
	VolProxy  VolatilityProxy

	Screener    *universe.Screener
	Ranker      *signals.Ranker
	Constructor *construction.Constructor
	Overlay     *risk.Overlay

	VolatilityLookback int

	Bus *events.Bus
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(deps Deps, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		provider:    deps.Provider,
		portfolio:   deps.Portfolio,
		execution:   deps.Execution,
		volProxy:    deps.VolProxy,
		screener:    deps.Screener,
		ranker:      deps.Ranker,
		constructor: deps.Constructor,
		overlay:     deps.Overlay,
		volLookback: deps.VolatilityLookback,
		bus:         deps.Bus,
		log:         log.With().Str("service", "orchestrator").Logger(),
	}
}

// LastResult returns the most recent completed cycle, nil before the first run
func (o *Orchestrator) LastResult() *CycleResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastResult
}

// RiskMode returns the overlay's current mode
func (o *Orchestrator) RiskMode() domain.RiskMode {
	return o.overlay.Mode()
}

// ComputeTargets runs one decision cycle as of the given time. A repeat call
// on the same calendar date returns the completed result without recomputing.
func (o *Orchestrator) ComputeTargets(asOf time.Time) (*CycleResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	date := asOf.UTC().Format("2006-01-02")
	if o.lastRunDate == date && o.lastResult != nil {
		o.log.Debug().Str("date", date).Msg("Cycle already completed today")
		return o.lastResult, nil
	}

	start := time.Now()
	cycleID := uuid.New().String()
	log := o.log.With().Str("cycle_id", cycleID).Logger()
	log.Info().Time("as_of", asOf).Msg("Starting decision cycle")

	snapshot, err := o.provider.Snapshot(asOf)
	if err != nil {
		o.publishError("snapshot", err)
		return nil, err
	}
	portfolio, err := o.portfolio.PortfolioState()
	if err != nil {
		o.publishError("portfolio", err)
		return nil, err
	}

	screened := o.screener.Screen(snapshot)

	sigs, err := o.ranker.Generate(screened, o.provider, asOf)
	if err != nil {
		var insufficient *signals.InsufficientUniverseError
		if !errors.As(err, &insufficient) {
			o.publishError("signals", err)
			return nil, err
		}
		// The cycle continues with zero signals; the overlay still runs so
		// kill-switch checks and stops apply to open positions
		log.Warn().
			Int("ranked", insufficient.Ranked).
			Int("required", insufficient.Required).
			Msg("Universe too small, proceeding without signals")
		sigs = nil
	}

	raw := o.constructor.Build(sigs, portfolio.TotalEquity, o.volatilityLookup(asOf), asOf)

	var vix *float64
	if o.volProxy != nil {
		if vix, err = o.volProxy.VolatilityProxy(asOf); err != nil {
			log.Warn().Err(err).Msg("Volatility proxy unavailable")
			vix = nil
		}
	}

	previousMode := o.overlay.Mode()
	decision, err := o.overlay.Apply(raw, portfolio, sectorsOf(snapshot), vix, asOf)
	if err != nil {
		o.publishError("risk", err)
		return nil, err
	}
	if decision.Mode != previousMode {
		o.publishModeChange(decision)
	}

	if err := o.execution.SubmitTargets(decision.Targets); err != nil {
		o.publishError("execution", err)
		return nil, err
	}

	result := &CycleResult{
		CycleID:  cycleID,
		AsOf:     asOf,
		Signals:  sigs,
		Targets:  decision.Targets,
		Decision: decision,
		Duration: time.Since(start),
	}
	o.lastRunDate = date
	o.lastResult = result

	o.publishCompleted(result, date)

	log.Info().
		Int("signals", len(sigs)).
		Int("targets", len(decision.Targets)).
		Str("risk_mode", string(decision.Mode)).
		Dur("duration", result.Duration).
		Msg("Decision cycle completed")

	return result, nil
}

// volatilityLookup builds the per-symbol annualized volatility resolver used
// by risk-parity sizing
func (o *Orchestrator) volatilityLookup(asOf time.Time) construction.VolatilityLookup {
	return func(symbol string) (float64, bool) {
		prices, err := o.provider.History(symbol, asOf, o.volLookback)
		if err != nil {
			return 0, false
		}
		vol := formulas.CalculateRealizedVolatility(prices, o.volLookback)
		if vol == nil {
			return 0, false
		}
		return *vol, true
	}
}

func (o *Orchestrator) publishCompleted(result *CycleResult, date string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.TargetsReady, "engine", &events.TargetsReadyData{
		CycleID:       result.CycleID,
		Count:         len(result.Targets),
		GrossExposure: domain.GrossExposure(result.Targets),
	})
	o.bus.Publish(events.CycleCompleted, "engine", &events.CycleCompletedData{
		CycleID:     result.CycleID,
		AsOf:        date,
		SignalCount: len(result.Signals),
		TargetCount: len(result.Targets),
		RiskMode:    string(result.Decision.Mode),
	})
}

func (o *Orchestrator) publishModeChange(decision *risk.Decision) {
	if o.bus == nil {
		return
	}
	data := &events.RiskModeChangedData{
		Mode:   string(decision.Mode),
		Reason: decision.Reason,
	}
	if resumeAt := o.overlay.ResumeAt(); resumeAt != nil {
		data.ResumeAt = resumeAt.UTC().Format(time.RFC3339)
	}
	o.bus.Publish(events.RiskModeChanged, "engine", data)
}

func (o *Orchestrator) publishError(module string, err error) {
	o.log.Error().Err(err).Str("module", module).Msg("Decision cycle failed")
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.ErrorOccurred, "engine", &events.ErrorEventData{
		Module:  module,
		Message: err.Error(),
	})
}

// sectorsOf extracts the symbol to sector mapping from the snapshot
func sectorsOf(snapshot []domain.SecuritySnapshot) map[string]string {
	sectors := make(map[string]string, len(snapshot))
	for _, sec := range snapshot {
		if sec.Sector != "" {
			sectors[sec.Symbol] = sec.Sector
		}
	}
	return sectors
}
