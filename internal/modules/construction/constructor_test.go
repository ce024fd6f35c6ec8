package construction

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstav/lodestar/internal/domain"
)

func noVols(string) (float64, bool) { return 0, false }

func newTestConstructor(t *testing.T, strategy string, maxPos, maxGross float64) *Constructor {
	t.Helper()
	c, err := NewConstructor(Config{
		Strategy:          strategy,
		MaxPositionWeight: maxPos,
		MaxGrossExposure:  maxGross,
	}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func signal(symbol string, dir domain.Direction, confidence float64) domain.Signal {
	return domain.Signal{Symbol: symbol, Direction: dir, Magnitude: 10, Confidence: confidence}
}

func weightOf(t *testing.T, targets []domain.PortfolioTarget, symbol string) float64 {
	t.Helper()
	for _, tgt := range targets {
		if tgt.Symbol == symbol {
			return tgt.Weight
		}
	}
	t.Fatalf("no target for %s", symbol)
	return 0
}

func TestNewConstructorRejectsUnknownStrategy(t *testing.T) {
	_, err := NewConstructor(Config{Strategy: "martingale"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestEqualWeight(t *testing.T) {
	c := newTestConstructor(t, "equal_weight", 0.12, 2.0)

	signals := []domain.Signal{
		signal("L1", domain.DirectionLong, 0.7),
		signal("L2", domain.DirectionLong, 0.6),
		signal("L3", domain.DirectionLong, 0.5),
		signal("L4", domain.DirectionLong, 0.5),
		signal("L5", domain.DirectionLong, 0.5),
		signal("S1", domain.DirectionShort, 0.7),
		signal("S2", domain.DirectionShort, 0.6),
		signal("S3", domain.DirectionShort, 0.5),
		signal("S4", domain.DirectionShort, 0.5),
		signal("S5", domain.DirectionShort, 0.5),
	}

	targets := c.Build(signals, 100_000, noVols, time.Now())
	require.Len(t, targets, 10)

	// 1/10 = 0.10, under the 0.12 cap
	assert.InDelta(t, 0.10, weightOf(t, targets, "L1"), 1e-12)
	assert.InDelta(t, -0.10, weightOf(t, targets, "S5"), 1e-12)
	assert.InDelta(t, 1.0, domain.GrossExposure(targets), 1e-12)
}

func TestEqualWeightAppliesPositionCap(t *testing.T) {
	c := newTestConstructor(t, "equal_weight", 0.12, 2.0)

	signals := []domain.Signal{
		signal("L1", domain.DirectionLong, 0.5),
		signal("L2", domain.DirectionLong, 0.5),
		signal("S1", domain.DirectionShort, 0.5),
		signal("S2", domain.DirectionShort, 0.5),
	}

	// 1/4 = 0.25 caps to 0.12
	targets := c.Build(signals, 100_000, noVols, time.Now())
	for _, tgt := range targets {
		assert.InDelta(t, 0.12, math.Abs(tgt.Weight), 1e-12)
	}
}

func TestConfidenceWeighted(t *testing.T) {
	c := newTestConstructor(t, "confidence_weighted", 0.50, 2.0)

	signals := []domain.Signal{
		signal("L1", domain.DirectionLong, 0.9),
		signal("L2", domain.DirectionLong, 0.3),
		signal("S1", domain.DirectionShort, 0.6),
	}

	targets := c.Build(signals, 100_000, noVols, time.Now())

	// Long side: 0.9/1.2 and 0.3/1.2, each scaled by the 0.5 side allocation
	assert.InDelta(t, 0.375, weightOf(t, targets, "L1"), 1e-12)
	assert.InDelta(t, 0.125, weightOf(t, targets, "L2"), 1e-12)
	// Lone short takes the whole short allocation
	assert.InDelta(t, -0.5, weightOf(t, targets, "S1"), 1e-12)
}

func TestConfidenceWeightedZeroConfidenceSide(t *testing.T) {
	c := newTestConstructor(t, "confidence_weighted", 0.50, 2.0)

	signals := []domain.Signal{
		signal("L1", domain.DirectionLong, 0),
		signal("L2", domain.DirectionLong, 0),
	}

	targets := c.Build(signals, 100_000, noVols, time.Now())
	assert.InDelta(t, 0.25, weightOf(t, targets, "L1"), 1e-12)
	assert.InDelta(t, 0.25, weightOf(t, targets, "L2"), 1e-12)
}

func TestRiskParityInverseVolatility(t *testing.T) {
	c := newTestConstructor(t, "risk_parity", 0.50, 2.0)

	vols := func(symbol string) (float64, bool) {
		switch symbol {
		case "CALM":
			return 0.10, true
		case "WILD":
			return 0.20, true
		}
		return 0, false
	}

	signals := []domain.Signal{
		signal("CALM", domain.DirectionLong, 0.5),
		signal("WILD", domain.DirectionLong, 0.5),
	}

	targets := c.Build(signals, 100_000, vols, time.Now())

	// Half the volatility earns twice the weight
	calm := weightOf(t, targets, "CALM")
	wild := weightOf(t, targets, "WILD")
	assert.InDelta(t, 2.0, calm/wild, 1e-9)
	assert.InDelta(t, 0.5, calm+wild, 1e-12)
}

func TestRiskParityFallsBackWithoutVolatility(t *testing.T) {
	c := newTestConstructor(t, "risk_parity", 0.50, 2.0)

	vols := func(symbol string) (float64, bool) {
		if symbol == "CALM" {
			return 0.10, true
		}
		return 0, false
	}

	signals := []domain.Signal{
		signal("CALM", domain.DirectionLong, 0.5),
		signal("DARK", domain.DirectionLong, 0.5),
		signal("S1", domain.DirectionShort, 0.5),
	}

	// One missing estimate reverts the whole cycle to equal weight
	targets := c.Build(signals, 100_000, vols, time.Now())
	for _, tgt := range targets {
		assert.InDelta(t, 1.0/3.0, math.Abs(tgt.Weight), 1e-12)
	}
}

func TestGrossExposureScaling(t *testing.T) {
	c := newTestConstructor(t, "equal_weight", 0.50, 0.5)

	signals := []domain.Signal{
		signal("L1", domain.DirectionLong, 0.5),
		signal("S1", domain.DirectionShort, 0.5),
	}

	// Unscaled gross would be 1.0; the 0.5 limit halves every weight
	targets := c.Build(signals, 100_000, noVols, time.Now())
	assert.InDelta(t, 0.25, weightOf(t, targets, "L1"), 1e-12)
	assert.InDelta(t, -0.25, weightOf(t, targets, "S1"), 1e-12)
	assert.InDelta(t, 0.5, domain.GrossExposure(targets), 1e-12)
}

func TestBuildMemoizesIntraday(t *testing.T) {
	c := newTestConstructor(t, "equal_weight", 0.50, 2.0)

	morning := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	afternoon := morning.Add(4 * time.Hour)
	nextDay := morning.Add(24 * time.Hour)

	first := c.Build([]domain.Signal{
		signal("L1", domain.DirectionLong, 0.5),
		signal("S1", domain.DirectionShort, 0.5),
	}, 100_000, noVols, morning)

	// Same date ignores fresh signals entirely
	repeat := c.Build([]domain.Signal{
		signal("OTHER", domain.DirectionLong, 0.5),
	}, 100_000, noVols, afternoon)
	assert.Equal(t, first, repeat)

	rebuilt := c.Build([]domain.Signal{
		signal("OTHER", domain.DirectionLong, 0.5),
	}, 100_000, noVols, nextDay)
	require.Len(t, rebuilt, 1)
	assert.Equal(t, "OTHER", rebuilt[0].Symbol)
}

func TestBuildEmptySignals(t *testing.T) {
	c := newTestConstructor(t, "equal_weight", 0.50, 2.0)
	targets := c.Build(nil, 100_000, noVols, time.Now())
	assert.Empty(t, targets)
}
