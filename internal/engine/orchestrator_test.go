package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstav/lodestar/internal/domain"
	"github.com/dstav/lodestar/internal/modules/construction"
	"github.com/dstav/lodestar/internal/modules/risk"
	"github.com/dstav/lodestar/internal/modules/signals"
	"github.com/dstav/lodestar/internal/modules/universe"
)

type fakeProvider struct {
	snapshot []domain.SecuritySnapshot
	series   map[string][]float64
	err      error
}

func (f *fakeProvider) Snapshot(time.Time) ([]domain.SecuritySnapshot, error) {
	return f.snapshot, f.err
}

func (f *fakeProvider) History(symbol string, _ time.Time, _ int) ([]float64, error) {
	prices, ok := f.series[symbol]
	if !ok {
		return nil, fmt.Errorf("no history for %s", symbol)
	}
	return prices, nil
}

type fakePortfolio struct {
	state domain.PortfolioState
}

func (f *fakePortfolio) PortfolioState() (*domain.PortfolioState, error) {
	state := f.state
	return &state, nil
}

type fakeExecution struct {
	submissions [][]domain.PortfolioTarget
}

func (f *fakeExecution) SubmitTargets(targets []domain.PortfolioTarget) error {
	f.submissions = append(f.submissions, targets)
	return nil
}

func trend(lookback int, movePct float64) []float64 {
	prices := make([]float64, lookback+1)
	for i := range prices {
		prices[i] = 100
	}
	prices[lookback] = 100 * (1 + movePct/100)
	return prices
}

func newTestOrchestrator(t *testing.T, provider *fakeProvider, execution *fakeExecution) *Orchestrator {
	t.Helper()

	constructor, err := construction.NewConstructor(construction.Config{
		Strategy:          "equal_weight",
		MaxPositionWeight: 0.12,
		MaxGrossExposure:  2.0,
	}, zerolog.Nop())
	require.NoError(t, err)

	overlay, err := risk.NewOverlay(risk.Config{
		MaxDrawdownPct:      0.10,
		DailyLossLimit:      0.03,
		PositionStopLossPct: 0.05,
		TrailingStopPct:     0.08,
		MaxGrossExposure:    2.0,
	}, nil, zerolog.Nop())
	require.NoError(t, err)

	return NewOrchestrator(Deps{
		Provider:  provider,
		Portfolio: &fakePortfolio{state: domain.PortfolioState{TotalEquity: 100_000}},
		Execution: execution,
		Screener: universe.NewScreener(universe.Config{
			MinPrice:        5.0,
			MinDollarVolume: 1_000_000,
		}, zerolog.Nop()),
		Ranker: signals.NewRanker(signals.Config{
			LookbackDays:       10,
			NLong:              1,
			NShort:             1,
			VolatilityLookback: 5,
		}, zerolog.Nop()),
		Constructor:        constructor,
		Overlay:            overlay,
		VolatilityLookback: 5,
	}, zerolog.Nop())
}

func marketOf(symbols ...string) []domain.SecuritySnapshot {
	snapshot := make([]domain.SecuritySnapshot, len(symbols))
	for i, s := range symbols {
		snapshot[i] = domain.SecuritySnapshot{Symbol: s, Price: 100, DollarVolume: 1e7}
	}
	return snapshot
}

func TestComputeTargetsFullPipeline(t *testing.T) {
	provider := &fakeProvider{
		snapshot: marketOf("WIN", "MID", "LOSE"),
		series: map[string][]float64{
			"WIN":  trend(10, 25),
			"MID":  trend(10, 2),
			"LOSE": trend(10, -15),
		},
	}
	execution := &fakeExecution{}
	o := newTestOrchestrator(t, provider, execution)

	asOf := time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC)
	result, err := o.ComputeTargets(asOf)
	require.NoError(t, err)

	assert.NotEmpty(t, result.CycleID)
	require.Len(t, result.Signals, 2)
	require.Len(t, result.Targets, 2)
	assert.Equal(t, domain.RiskModeNormal, result.Decision.Mode)

	// 1/2 = 0.5 caps at 0.12 per position
	for _, tgt := range result.Targets {
		switch tgt.Symbol {
		case "WIN":
			assert.InDelta(t, 0.12, tgt.Weight, 1e-12)
		case "LOSE":
			assert.InDelta(t, -0.12, tgt.Weight, 1e-12)
		}
	}

	require.Len(t, execution.submissions, 1)
	assert.Equal(t, result.Targets, execution.submissions[0])
}

func TestComputeTargetsOncePerDay(t *testing.T) {
	provider := &fakeProvider{
		snapshot: marketOf("WIN", "LOSE"),
		series: map[string][]float64{
			"WIN":  trend(10, 25),
			"LOSE": trend(10, -15),
		},
	}
	execution := &fakeExecution{}
	o := newTestOrchestrator(t, provider, execution)

	morning := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	first, err := o.ComputeTargets(morning)
	require.NoError(t, err)

	// Same calendar day: identical result, no second submission
	repeat, err := o.ComputeTargets(morning.Add(5 * time.Hour))
	require.NoError(t, err)
	assert.Same(t, first, repeat)
	assert.Len(t, execution.submissions, 1)

	next, err := o.ComputeTargets(morning.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.NotEqual(t, first.CycleID, next.CycleID)
	assert.Len(t, execution.submissions, 2)
}

func TestComputeTargetsInsufficientUniverse(t *testing.T) {
	provider := &fakeProvider{
		snapshot: marketOf("ONLY"),
		series:   map[string][]float64{"ONLY": trend(10, 5)},
	}
	execution := &fakeExecution{}
	o := newTestOrchestrator(t, provider, execution)

	// The cycle completes with zero signals so the overlay still runs
	result, err := o.ComputeTargets(time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, result.Signals)
	assert.Empty(t, result.Targets)
	assert.NotNil(t, result.Decision)
	assert.Len(t, execution.submissions, 1)
}

func TestComputeTargetsSnapshotError(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("provider down")}
	execution := &fakeExecution{}
	o := newTestOrchestrator(t, provider, execution)

	_, err := o.ComputeTargets(time.Now())
	require.Error(t, err)
	assert.Empty(t, execution.submissions)
	assert.Nil(t, o.LastResult())
}
