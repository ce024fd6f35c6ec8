package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LODESTAR_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)

	s := cfg.Strategy
	assert.Equal(t, 126, s.LookbackDays)
	assert.Equal(t, 5, s.NLong)
	assert.Equal(t, 5, s.NShort)
	assert.Equal(t, "equal_weight", s.Construction)
	assert.InDelta(t, 0.12, s.MaxPositionWeight, 1e-12)
	assert.InDelta(t, 2.0, s.MaxGrossExposure, 1e-12)
	assert.InDelta(t, 0.10, s.MaxDrawdownPct, 1e-12)
	assert.InDelta(t, 0.03, s.DailyLossLimit, 1e-12)
	assert.InDelta(t, 0.05, s.PositionStopLoss, 1e-12)
	assert.InDelta(t, 0.08, s.TrailingStopPct, 1e-12)
	assert.InDelta(t, 0.30, s.SectorExposureCap, 1e-12)
	assert.Equal(t, 21, s.VolatilityLookback)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("LODESTAR_DATA_DIR", t.TempDir())
	t.Setenv("LOOKBACK_DAYS", "63")
	t.Setenv("CONSTRUCTION_STRATEGY", "risk_parity")
	t.Setenv("MAX_POSITION_WEIGHT", "0.15")
	t.Setenv("VOL_SCALING_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 63, cfg.Strategy.LookbackDays)
	assert.Equal(t, "risk_parity", cfg.Strategy.Construction)
	assert.InDelta(t, 0.15, cfg.Strategy.MaxPositionWeight, 1e-12)
	assert.True(t, cfg.Strategy.VolScalingEnabled)
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	t.Setenv("LODESTAR_DATA_DIR", t.TempDir())
	t.Setenv("CONSTRUCTION_STRATEGY", "kelly")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown construction strategy")
}

func TestValidateRejectsBadWeights(t *testing.T) {
	t.Setenv("LODESTAR_DATA_DIR", t.TempDir())
	t.Setenv("MAX_POSITION_WEIGHT", "1.5")

	_, err := Load()
	require.Error(t, err)
}
