package signals

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstav/lodestar/internal/domain"
)

// fakeHistory serves canned price series keyed by symbol
type fakeHistory struct {
	series map[string][]float64
}

func (f *fakeHistory) History(symbol string, asOf time.Time, lookback int) ([]float64, error) {
	prices, ok := f.series[symbol]
	if !ok {
		return nil, fmt.Errorf("no history for %s", symbol)
	}
	return prices, nil
}

// flatThenMove builds lookback+1 prices ending with the given percent move
func flatThenMove(lookback int, movePct float64) []float64 {
	prices := make([]float64, lookback+1)
	for i := range prices {
		prices[i] = 100
	}
	prices[lookback] = 100 * (1 + movePct/100)
	return prices
}

func snapshotFor(symbols ...string) []domain.SecuritySnapshot {
	universe := make([]domain.SecuritySnapshot, len(symbols))
	for i, s := range symbols {
		universe[i] = domain.SecuritySnapshot{Symbol: s, Price: 100, DollarVolume: 1e7}
	}
	return universe
}

func newTestRanker(nLong, nShort int) *Ranker {
	return NewRanker(Config{
		LookbackDays:       10,
		NLong:              nLong,
		NShort:             nShort,
		VolatilityLookback: 5,
	}, zerolog.Nop())
}

func TestGenerateRanksTopAndBottom(t *testing.T) {
	history := &fakeHistory{series: map[string][]float64{
		"WIN":  flatThenMove(10, 30),
		"MID1": flatThenMove(10, 10),
		"MID2": flatThenMove(10, 5),
		"LOSE": flatThenMove(10, -20),
	}}

	asOf := time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC)
	ranker := newTestRanker(1, 1)

	sigs, err := ranker.Generate(snapshotFor("WIN", "MID1", "MID2", "LOSE"), history, asOf)
	require.NoError(t, err)
	require.Len(t, sigs, 2)

	assert.Equal(t, "WIN", sigs[0].Symbol)
	assert.Equal(t, domain.DirectionLong, sigs[0].Direction)
	assert.InDelta(t, 30.0, sigs[0].Magnitude, 1e-9)

	assert.Equal(t, "LOSE", sigs[1].Symbol)
	assert.Equal(t, domain.DirectionShort, sigs[1].Direction)
	assert.InDelta(t, 20.0, sigs[1].Magnitude, 1e-9)

	for _, sig := range sigs {
		assert.Equal(t, asOf, sig.GeneratedAt)
		assert.Equal(t, asOf.Add(24*time.Hour), sig.ValidUntil)
		assert.GreaterOrEqual(t, sig.Confidence, 0.3)
		assert.LessOrEqual(t, sig.Confidence, 0.9)
	}
}

func TestGenerateExtremeScoreGuard(t *testing.T) {
	history := &fakeHistory{series: map[string][]float64{
		"GLITCH": flatThenMove(10, 600), // beyond the ±500 guard
		"EDGE":   flatThenMove(10, 499),
		"A":      flatThenMove(10, 5),
		"B":      flatThenMove(10, -5),
	}}

	ranker := newTestRanker(1, 1)
	sigs, err := ranker.Generate(snapshotFor("GLITCH", "EDGE", "A", "B"), history, time.Now())
	require.NoError(t, err)
	require.Len(t, sigs, 2)

	// +600 is discarded, +499 is retained and tops the ranking
	assert.Equal(t, "EDGE", sigs[0].Symbol)
	for _, sig := range sigs {
		assert.NotEqual(t, "GLITCH", sig.Symbol)
	}
}

func TestGenerateInsufficientUniverse(t *testing.T) {
	history := &fakeHistory{series: map[string][]float64{
		"ONLY": flatThenMove(10, 5),
	}}

	ranker := newTestRanker(5, 5)
	sigs, err := ranker.Generate(snapshotFor("ONLY"), history, time.Now())

	assert.Empty(t, sigs)
	var insufficient *InsufficientUniverseError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Ranked)
	assert.Equal(t, 10, insufficient.Required)
}

func TestGenerateSkipsBadInstruments(t *testing.T) {
	history := &fakeHistory{series: map[string][]float64{
		"OK1":   flatThenMove(10, 10),
		"OK2":   flatThenMove(10, -10),
		"SHORT": {100, 101}, // insufficient history
	}}

	universe := snapshotFor("OK1", "OK2", "SHORT")
	universe = append(universe, domain.SecuritySnapshot{Symbol: "ZERO", Price: 0, DollarVolume: 1e7})
	universe = append(universe, domain.SecuritySnapshot{Symbol: "MISSING", Price: 50, DollarVolume: 1e7})

	ranker := newTestRanker(1, 1)
	sigs, err := ranker.Generate(universe, history, time.Now())
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, "OK1", sigs[0].Symbol)
	assert.Equal(t, "OK2", sigs[1].Symbol)
}

func TestGenerateZeroVarianceConfidence(t *testing.T) {
	history := &fakeHistory{series: map[string][]float64{
		"A": flatThenMove(10, 10),
		"B": flatThenMove(10, 10),
	}}

	ranker := newTestRanker(1, 1)
	sigs, err := ranker.Generate(snapshotFor("A", "B"), history, time.Now())
	require.NoError(t, err)

	for _, sig := range sigs {
		assert.InDelta(t, 0.5, sig.Confidence, 1e-12)
	}
}

func TestGenerateTiesKeepUniverseOrder(t *testing.T) {
	history := &fakeHistory{series: map[string][]float64{
		"FIRST":  flatThenMove(10, 10),
		"SECOND": flatThenMove(10, 10),
		"THIRD":  flatThenMove(10, -10),
	}}

	ranker := newTestRanker(2, 1)
	sigs, err := ranker.Generate(snapshotFor("FIRST", "SECOND", "THIRD"), history, time.Now())
	require.NoError(t, err)
	require.Len(t, sigs, 3)
	assert.Equal(t, "FIRST", sigs[0].Symbol)
	assert.Equal(t, "SECOND", sigs[1].Symbol)
}
