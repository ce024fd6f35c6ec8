// Package signals implements cross-sectional momentum signal generation.
//
// The ranker scores every eligible instrument by percent price change over a
// lookback window, optionally risk-adjusts by trailing realized volatility,
// and emits LONG signals for the top of the ranking and SHORT signals for the
// bottom. Confidence reflects how far an instrument's score sits from the
// cross-sectional mean.
package signals

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/dstav/lodestar/internal/domain"
	"github.com/dstav/lodestar/pkg/formulas"
)

// maxAbsScore guards against data errors: a six-month move beyond ±500%
// is treated as bad data and the instrument is skipped for the cycle.
const maxAbsScore = 500.0

const (
	minConfidence     = 0.3
	maxConfidence     = 0.9
	neutralConfidence = 0.5
)

// InsufficientUniverseError reports that the ranked set is too small to fill
// the requested long and short books. The cycle proceeds with zero signals.
type InsufficientUniverseError struct {
	Ranked   int
	Required int
}

func (e *InsufficientUniverseError) Error() string {
	return fmt.Sprintf("insufficient universe: %d ranked, %d required", e.Ranked, e.Required)
}

// HistorySource supplies trailing daily closes for scoring.
// domain.SnapshotProvider satisfies it.
type HistorySource interface {
	History(symbol string, asOf time.Time, lookback int) ([]float64, error)
}

// Ranker generates directional momentum signals from a universe snapshot
type Ranker struct {
	lookbackDays       int
	nLong              int
	nShort             int
	riskAdjusted       bool
	volatilityLookback int
	log                zerolog.Logger
}

// Config holds ranker parameters
type Config struct {
	LookbackDays       int
	NLong              int
	NShort             int
	RiskAdjusted       bool
	VolatilityLookback int
}

// NewRanker creates a new signal ranker
func NewRanker(cfg Config, log zerolog.Logger) *Ranker {
	return &Ranker{
		lookbackDays:       cfg.LookbackDays,
		nLong:              cfg.NLong,
		nShort:             cfg.NShort,
		riskAdjusted:       cfg.RiskAdjusted,
		volatilityLookback: cfg.VolatilityLookback,
		log:                log.With().Str("service", "signal_ranker").Logger(),
	}
}

// Generate scores the universe as of the given time and returns one signal
// per selected instrument: nLong LONG signals from the top of the ranking and
// nShort SHORT signals from the bottom. Signals are valid for one rebalance
// period (one day). Pure function of (universe, history, asOf) - cadence
// gating belongs to the caller.
//
// Per-instrument data problems (missing history, non-positive price, extreme
// score) skip the instrument and never abort the cycle. When fewer
// instruments rank than nLong+nShort, the result is empty and an
// InsufficientUniverseError is returned.
func (r *Ranker) Generate(universe []domain.SecuritySnapshot, history HistorySource, asOf time.Time) ([]domain.Signal, error) {
	scores := r.scoreUniverse(universe, history, asOf)

	required := r.nLong + r.nShort
	if len(scores) < required {
		r.log.Warn().
			Int("ranked", len(scores)).
			Int("required", required).
			Msg("Insufficient securities for signal generation")
		return nil, &InsufficientUniverseError{Ranked: len(scores), Required: required}
	}

	// Rank descending; stable sort keeps universe order on ties
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Value() > scores[j].Value()
	})

	// Cross-section for confidence scoring
	values := make([]float64, len(scores))
	for i, s := range scores {
		values[i] = s.Value()
	}

	validUntil := asOf.Add(24 * time.Hour)
	signals := make([]domain.Signal, 0, required)

	for _, score := range scores[:r.nLong] {
		signals = append(signals, r.buildSignal(score, domain.DirectionLong, values, asOf, validUntil))
	}
	for _, score := range scores[len(scores)-r.nShort:] {
		signals = append(signals, r.buildSignal(score, domain.DirectionShort, values, asOf, validUntil))
	}

	r.log.Info().
		Int("ranked", len(scores)).
		Int("long", r.nLong).
		Int("short", r.nShort).
		Time("as_of", asOf).
		Msg("Generated signals")

	return signals, nil
}

// scoreUniverse computes momentum scores for every eligible instrument
func (r *Ranker) scoreUniverse(universe []domain.SecuritySnapshot, history HistorySource, asOf time.Time) []domain.MomentumScore {
	// Risk adjustment needs enough history for both windows
	need := r.lookbackDays
	if r.riskAdjusted && r.volatilityLookback > need {
		need = r.volatilityLookback
	}

	scores := make([]domain.MomentumScore, 0, len(universe))

	for _, sec := range universe {
		if sec.Price <= 0 {
			continue
		}

		prices, err := history.History(sec.Symbol, asOf, need)
		if err != nil {
			r.log.Debug().
				Err(err).
				Str("symbol", sec.Symbol).
				Msg("Skipping instrument: history unavailable")
			continue
		}

		raw := formulas.CalculateMomentum(prices, r.lookbackDays)
		if raw == nil {
			continue
		}
		if math.Abs(*raw) > maxAbsScore {
			r.log.Warn().
				Str("symbol", sec.Symbol).
				Float64("score", *raw).
				Msg("Skipping instrument: extreme momentum, likely data error")
			continue
		}

		score := domain.MomentumScore{Symbol: sec.Symbol, Raw: *raw}

		if r.riskAdjusted {
			if vol := formulas.CalculateRealizedVolatility(prices, r.volatilityLookback); vol != nil {
				adjusted := *raw / *vol
				score.RiskAdjusted = &adjusted
			}
			// Volatility unavailable: keep the raw score
		}

		scores = append(scores, score)
	}

	return scores
}

func (r *Ranker) buildSignal(score domain.MomentumScore, direction domain.Direction, values []float64, asOf, validUntil time.Time) domain.Signal {
	return domain.Signal{
		Symbol:      score.Symbol,
		Direction:   direction,
		Magnitude:   math.Abs(score.Value()),
		Confidence:  confidence(score.Value(), values),
		GeneratedAt: asOf,
		ValidUntil:  validUntil,
	}
}

// confidence maps the absolute cross-sectional z-score of a momentum score
// to [0.3, 0.9]. Empty or zero-variance cross-sections resolve to 0.5.
func confidence(value float64, values []float64) float64 {
	z := formulas.ZScore(value, values)
	if z == 0 {
		return neutralConfidence
	}
	return formulas.Clamp(neutralConfidence+0.1*math.Abs(z), minConfidence, maxConfidence)
}
