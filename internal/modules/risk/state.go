// Package risk implements the layered risk overlay: a drawdown and daily-loss
// kill switch with cooldowns, per-position hard and trailing stops, volatility
// scaling, a sector exposure cap and a final gross exposure re-check. Overlay
// state survives restarts so a tripped kill switch stays tripped.
package risk

import (
	"time"

	"github.com/dstav/lodestar/internal/domain"
)

// State is the mutable overlay state, persisted after every cycle
type State struct {
	Mode             domain.RiskMode
	HighWaterMark    float64
	DailyStartEquity float64
	LastEquityDate   string // YYYY-MM-DD of the last observed equity
	ResumeAt         *time.Time

	// PositionHighMarks tracks each position's peak absolute market value
	// for trailing stops
	PositionHighMarks map[string]float64
}

// NewState returns a fresh NORMAL state with no equity observed yet
func NewState() *State {
	return &State{
		Mode:              domain.RiskModeNormal,
		PositionHighMarks: make(map[string]float64),
	}
}

// observeEquity rolls the daily anchor on date change and advances the high
// water mark. The first observation seeds both anchors.
func (s *State) observeEquity(equity float64, now time.Time) {
	date := now.UTC().Format("2006-01-02")

	if s.LastEquityDate == "" {
		s.HighWaterMark = equity
		s.DailyStartEquity = equity
		s.LastEquityDate = date
		return
	}

	if date != s.LastEquityDate {
		s.DailyStartEquity = equity
		s.LastEquityDate = date
	}
	if equity > s.HighWaterMark {
		s.HighWaterMark = equity
	}
}

// inCooldown reports whether the kill switch is active at the given time
func (s *State) inCooldown(now time.Time) bool {
	return s.Mode == domain.RiskModeRiskOff && s.ResumeAt != nil && now.Before(*s.ResumeAt)
}

// tripKillSwitch enters RISK_OFF until the given resume time
func (s *State) tripKillSwitch(resumeAt time.Time) {
	s.Mode = domain.RiskModeRiskOff
	s.ResumeAt = &resumeAt
}

// resume returns to NORMAL evaluation
func (s *State) resume() {
	s.Mode = domain.RiskModeNormal
	s.ResumeAt = nil
}
