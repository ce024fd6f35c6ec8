package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/dstav/lodestar/internal/domain"
)

// Config holds overlay thresholds
type Config struct {
	MaxDrawdownPct      float64
	DailyLossLimit      float64
	PositionStopLossPct float64
	TrailingStopPct     float64
	MaxGrossExposure    float64

	VolScalingEnabled   bool
	VIXHighThreshold    float64
	VIXExtremeThreshold float64
	SectorExposureCap   float64
}

// StopReason identifies which rule closed a position
type StopReason string

const (
	StopReasonHard     StopReason = "hard_stop"
	StopReasonTrailing StopReason = "trailing_stop"
)

// Stop records one forced position close
type Stop struct {
	Symbol string     `json:"symbol"`
	Reason StopReason `json:"reason"`
	PnLPct float64    `json:"pnl_pct"`
}

// Decision is the outcome of one overlay pass
type Decision struct {
	Targets       []domain.PortfolioTarget `json:"targets"`
	Mode          domain.RiskMode          `json:"mode"`
	Liquidated    bool                     `json:"liquidated"`
	Reason        string                   `json:"reason,omitempty"`
	Drawdown      float64                  `json:"drawdown"`
	DailyPnL      float64                  `json:"daily_pnl"`
	VolMultiplier float64                  `json:"vol_multiplier"`
	Stops         []Stop                   `json:"stops,omitempty"`
}

// Overlay applies the risk state machine to constructed targets.
// It is the only mutator of the risk state, once per cycle.
type Overlay struct {
	cfg   Config
	state *State
	repo  *Repository
	log   zerolog.Logger
}

// NewOverlay creates the overlay, restoring persisted state when a
// repository is provided
func NewOverlay(cfg Config, repo *Repository, log zerolog.Logger) (*Overlay, error) {
	o := &Overlay{
		cfg:   cfg,
		state: NewState(),
		repo:  repo,
		log:   log.With().Str("service", "risk_overlay").Logger(),
	}

	if repo != nil {
		state, err := repo.Load()
		if err != nil {
			return nil, err
		}
		o.state = state
	}
	return o, nil
}

// Mode returns the current risk mode
func (o *Overlay) Mode() domain.RiskMode {
	return o.state.Mode
}

// ResumeAt returns the cooldown expiry, nil in NORMAL mode
func (o *Overlay) ResumeAt() *time.Time {
	return o.state.ResumeAt
}

// HighWaterMark returns the tracked equity peak
func (o *Overlay) HighWaterMark() float64 {
	return o.state.HighWaterMark
}

// HighMark returns the tracked peak absolute value for a position
func (o *Overlay) HighMark(symbol string) (float64, bool) {
	mark, ok := o.state.PositionHighMarks[symbol]
	return mark, ok
}

// Apply runs one overlay pass over the constructed targets and persists the
// resulting state. Sectors maps symbol to sector for the exposure cap; vix is
// the volatility proxy, nil when unavailable.
func (o *Overlay) Apply(targets []domain.PortfolioTarget, portfolio *domain.PortfolioState, sectors map[string]string, vix *float64, now time.Time) (*Decision, error) {
	equity := portfolio.TotalEquity
	o.state.observeEquity(equity, now)

	decision := &Decision{Mode: o.state.Mode, VolMultiplier: 1.0}
	if o.state.HighWaterMark > 0 {
		decision.Drawdown = (o.state.HighWaterMark - equity) / o.state.HighWaterMark
	}
	if o.state.DailyStartEquity > 0 {
		decision.DailyPnL = (equity - o.state.DailyStartEquity) / o.state.DailyStartEquity
	}

	// Cooldown still running: nothing trades
	if o.state.inCooldown(now) {
		decision.Targets = liquidationTargets(targets, portfolio)
		decision.Liquidated = true
		decision.Reason = "risk_off_cooldown"
		return decision, o.persist()
	}
	if o.state.Mode == domain.RiskModeRiskOff {
		o.log.Info().Time("now", now).Msg("Cooldown expired, resuming normal evaluation")
		o.state.resume()
		decision.Mode = domain.RiskModeNormal
	}

	if decision.Drawdown > o.cfg.MaxDrawdownPct {
		return o.tripAndLiquidate(decision, targets, portfolio, now.Add(24*time.Hour),
			fmt.Sprintf("drawdown %.2f%% exceeds limit", decision.Drawdown*100)), o.persist()
	}

	if decision.DailyPnL < -o.cfg.DailyLossLimit {
		return o.tripAndLiquidate(decision, targets, portfolio, now.Add(24*time.Hour),
			fmt.Sprintf("daily loss %.2f%% exceeds limit", -decision.DailyPnL*100)), o.persist()
	}

	survivors := o.applyPositionStops(decision, targets, portfolio)

	if equity > 0 {
		survivors = o.applyVolScaling(decision, survivors, vix)
		survivors = o.applySectorCap(survivors, sectors)
		survivors = o.applyGrossLimit(survivors)
	}

	o.pruneHighMarks(targets, portfolio)

	decision.Targets = survivors
	return decision, o.persist()
}

func (o *Overlay) tripAndLiquidate(decision *Decision, targets []domain.PortfolioTarget, portfolio *domain.PortfolioState, resumeAt time.Time, reason string) *Decision {
	o.state.tripKillSwitch(resumeAt)

	o.log.Warn().
		Str("reason", reason).
		Time("resume_at", resumeAt).
		Msg("Kill switch tripped, liquidating")

	decision.Mode = domain.RiskModeRiskOff
	decision.Targets = liquidationTargets(targets, portfolio)
	decision.Liquidated = true
	decision.Reason = reason
	return decision
}

// applyPositionStops updates trailing high marks and zeroes targets for
// positions past their hard or trailing stop
func (o *Overlay) applyPositionStops(decision *Decision, targets []domain.PortfolioTarget, portfolio *domain.PortfolioState) []domain.PortfolioTarget {
	stopped := make(map[string]struct{})

	for _, pos := range portfolio.Positions {
		value := math.Abs(pos.MarketValue)
		if value > o.state.PositionHighMarks[pos.Symbol] {
			o.state.PositionHighMarks[pos.Symbol] = value
		}

		pnlPct := pos.PnLPct()
		switch {
		case pnlPct < -o.cfg.PositionStopLossPct:
			stopped[pos.Symbol] = struct{}{}
			decision.Stops = append(decision.Stops, Stop{Symbol: pos.Symbol, Reason: StopReasonHard, PnLPct: pnlPct})
			o.log.Warn().
				Str("symbol", pos.Symbol).
				Float64("pnl_pct", pnlPct).
				Msg("Hard stop triggered")

		case value < o.state.PositionHighMarks[pos.Symbol]*(1-o.cfg.TrailingStopPct):
			stopped[pos.Symbol] = struct{}{}
			decision.Stops = append(decision.Stops, Stop{Symbol: pos.Symbol, Reason: StopReasonTrailing, PnLPct: pnlPct})
			o.log.Warn().
				Str("symbol", pos.Symbol).
				Float64("value", value).
				Float64("high_mark", o.state.PositionHighMarks[pos.Symbol]).
				Msg("Trailing stop triggered")
		}
	}

	if len(stopped) == 0 {
		return targets
	}

	result := make([]domain.PortfolioTarget, 0, len(targets))
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		seen[t.Symbol] = struct{}{}
		if _, hit := stopped[t.Symbol]; hit {
			result = append(result, domain.PortfolioTarget{Symbol: t.Symbol, Weight: 0})
			continue
		}
		result = append(result, t)
	}

	// Stopped positions with no incoming target still need an explicit close
	for _, pos := range portfolio.Positions {
		if _, hit := stopped[pos.Symbol]; !hit {
			continue
		}
		if _, present := seen[pos.Symbol]; !present {
			result = append(result, domain.PortfolioTarget{Symbol: pos.Symbol, Weight: 0})
		}
	}
	return result
}

// pruneHighMarks drops trailing marks for symbols no longer held or targeted
func (o *Overlay) pruneHighMarks(targets []domain.PortfolioTarget, portfolio *domain.PortfolioState) {
	tracked := make(map[string]struct{}, len(targets)+len(portfolio.Positions))
	for _, t := range targets {
		tracked[t.Symbol] = struct{}{}
	}
	for _, pos := range portfolio.Positions {
		tracked[pos.Symbol] = struct{}{}
	}
	for symbol := range o.state.PositionHighMarks {
		if _, ok := tracked[symbol]; !ok {
			delete(o.state.PositionHighMarks, symbol)
		}
	}
}

func (o *Overlay) persist() error {
	if o.repo == nil {
		return nil
	}
	return o.repo.Save(o.state)
}

// liquidationTargets returns a zero target for every open position and every
// incoming target symbol
func liquidationTargets(targets []domain.PortfolioTarget, portfolio *domain.PortfolioState) []domain.PortfolioTarget {
	seen := make(map[string]struct{}, len(targets)+len(portfolio.Positions))
	result := make([]domain.PortfolioTarget, 0, len(targets)+len(portfolio.Positions))

	for _, pos := range portfolio.Positions {
		if _, ok := seen[pos.Symbol]; ok {
			continue
		}
		seen[pos.Symbol] = struct{}{}
		result = append(result, domain.PortfolioTarget{Symbol: pos.Symbol, Weight: 0})
	}
	for _, t := range targets {
		if _, ok := seen[t.Symbol]; ok {
			continue
		}
		seen[t.Symbol] = struct{}{}
		result = append(result, domain.PortfolioTarget{Symbol: t.Symbol, Weight: 0})
	}
	return result
}
