// Package universe provides universe screening for the decision engine.
// The screener narrows a raw provider snapshot down to liquid, tradable
// instruments before any signal math runs.
package universe

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/dstav/lodestar/internal/domain"
)

// leveragedSymbols lists leveraged, inverse, volatility and commodity
// products that momentum ranking must never trade.
var leveragedSymbols = map[string]struct{}{
	// 3x leveraged long
	"TQQQ": {}, "TECL": {}, "SOXL": {}, "UPRO": {}, "SPXL": {}, "TNA": {},
	"UDOW": {}, "LABU": {}, "NUGT": {}, "FNGU": {}, "FAS": {}, "ERX": {},
	// 3x leveraged short
	"SQQQ": {}, "TECS": {}, "SOXS": {}, "SPXU": {}, "SPXS": {}, "TZA": {},
	"SDOW": {}, "LABD": {}, "DUST": {}, "FNGD": {}, "FAZ": {}, "ERY": {},
	// 2x products
	"QLD": {}, "QID": {}, "SSO": {}, "SDS": {},
	// Volatility products
	"VXX": {}, "UVXY": {}, "SVXY": {}, "VIXY": {},
	// Commodity ETFs
	"USO": {}, "UNG": {}, "GLD": {}, "SLV": {},
	// Miners / sector pairs
	"JNUG": {}, "JDST": {},
}

// Screener filters universe snapshots by liquidity, price and market cap
type Screener struct {
	universeSize    int
	minPrice        float64
	minDollarVolume float64
	minMarketCap    float64
	log             zerolog.Logger
}

// Config holds screener thresholds
type Config struct {
	UniverseSize    int
	MinPrice        float64
	MinDollarVolume float64
	MinMarketCap    float64
}

// NewScreener creates a new universe screener
func NewScreener(cfg Config, log zerolog.Logger) *Screener {
	return &Screener{
		universeSize:    cfg.UniverseSize,
		minPrice:        cfg.MinPrice,
		minDollarVolume: cfg.MinDollarVolume,
		minMarketCap:    cfg.MinMarketCap,
		log:             log.With().Str("service", "universe_screener").Logger(),
	}
}

// Screen filters the snapshot and returns the most liquid candidates,
// sorted by dollar volume descending and capped at the configured size.
// A missing market cap means the market-cap filter does not apply.
func (s *Screener) Screen(snapshot []domain.SecuritySnapshot) []domain.SecuritySnapshot {
	filtered := make([]domain.SecuritySnapshot, 0, len(snapshot))

	for _, sec := range snapshot {
		if sec.Price < s.minPrice {
			continue
		}
		if sec.DollarVolume < s.minDollarVolume {
			continue
		}
		if sec.MarketCap != nil && *sec.MarketCap < s.minMarketCap {
			continue
		}
		if _, excluded := leveragedSymbols[sec.Symbol]; excluded {
			continue
		}
		filtered = append(filtered, sec)
	}

	// Most liquid first; stable to keep snapshot order on equal volume
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].DollarVolume > filtered[j].DollarVolume
	})

	if s.universeSize > 0 && len(filtered) > s.universeSize {
		filtered = filtered[:s.universeSize]
	}

	s.log.Debug().
		Int("input", len(snapshot)).
		Int("selected", len(filtered)).
		Msg("Screened universe")

	return filtered
}

// IsExcluded reports whether a symbol is on the leveraged/inverse exclusion list
func IsExcluded(symbol string) bool {
	_, ok := leveragedSymbols[symbol]
	return ok
}
