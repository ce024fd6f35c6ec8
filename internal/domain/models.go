// Package domain provides core domain models and types.
package domain

import "time"

// Direction represents the side of a trading signal
type Direction string

const (
	// DirectionLong indicates a buy/long signal
	DirectionLong Direction = "LONG"
	// DirectionShort indicates a sell/short signal
	DirectionShort Direction = "SHORT"
)

// RiskMode represents the risk overlay operating mode
type RiskMode string

const (
	// RiskModeNormal - targets pass through the full check chain
	RiskModeNormal RiskMode = "NORMAL"
	// RiskModeRiskOff - all exposure is forced flat until the cooldown elapses
	RiskModeRiskOff RiskMode = "RISK_OFF"
)

// SecuritySnapshot is one instrument's state in a universe snapshot.
// Immutable for the duration of a cycle. Sector and MarketCap are optional;
// absence means the related screen or cap does not apply.
type SecuritySnapshot struct {
	Symbol       string   `json:"symbol"`
	Price        float64  `json:"price"`
	DollarVolume float64  `json:"dollar_volume"`
	Sector       string   `json:"sector,omitempty"`
	MarketCap    *float64 `json:"market_cap,omitempty"`
}

// MomentumScore is the per-instrument output of the momentum calculation
type MomentumScore struct {
	Symbol       string   `json:"symbol"`
	Raw          float64  `json:"raw"`
	RiskAdjusted *float64 `json:"risk_adjusted,omitempty"`
}

// Value returns the risk-adjusted score when available, the raw score otherwise
func (m MomentumScore) Value() float64 {
	if m.RiskAdjusted != nil {
		return *m.RiskAdjusted
	}
	return m.Raw
}

// Signal is a directional insight produced by the ranker for one cycle.
// Signals are consumed by portfolio construction and never persisted.
type Signal struct {
	GeneratedAt time.Time `json:"generated_at"`
	ValidUntil  time.Time `json:"valid_until"`
	Symbol      string    `json:"symbol"`
	Direction   Direction `json:"direction"`
	Magnitude   float64   `json:"magnitude"`
	Confidence  float64   `json:"confidence"`
}

// PortfolioTarget is a signed target weight for one instrument.
// Weight is a fraction of equity; negative means short.
type PortfolioTarget struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
}

// GrossExposure returns the sum of absolute target weights
func GrossExposure(targets []PortfolioTarget) float64 {
	gross := 0.0
	for _, t := range targets {
		if t.Weight < 0 {
			gross -= t.Weight
		} else {
			gross += t.Weight
		}
	}
	return gross
}

// Position represents an open portfolio position
type Position struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AverageCost  float64 `json:"average_cost"`
	CurrentPrice float64 `json:"current_price"`
	MarketValue  float64 `json:"market_value"`
}

// IsLong reports whether the position is long
func (p Position) IsLong() bool {
	return p.Quantity > 0
}

// PnLPct returns the sign-aware unrealized profit/loss fraction relative to
// average cost. A short position profits when price falls below cost.
func (p Position) PnLPct() float64 {
	if p.AverageCost <= 0 {
		return 0
	}
	if p.IsLong() {
		return (p.CurrentPrice - p.AverageCost) / p.AverageCost
	}
	return (p.AverageCost - p.CurrentPrice) / p.AverageCost
}

// PortfolioState is a read-only view of the portfolio provided by the
// execution collaborator at the start of a cycle.
type PortfolioState struct {
	TotalEquity float64    `json:"total_equity"`
	Positions   []Position `json:"positions"`
}
