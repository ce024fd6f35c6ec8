package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstav/lodestar/internal/domain"
	"github.com/dstav/lodestar/internal/engine"
	"github.com/dstav/lodestar/internal/events"
	"github.com/dstav/lodestar/internal/modules/construction"
	"github.com/dstav/lodestar/internal/modules/risk"
	"github.com/dstav/lodestar/internal/modules/signals"
	"github.com/dstav/lodestar/internal/modules/universe"
)

type stubProvider struct{}

func (stubProvider) Snapshot(time.Time) ([]domain.SecuritySnapshot, error) {
	return []domain.SecuritySnapshot{
		{Symbol: "WIN", Price: 100, DollarVolume: 1e7},
		{Symbol: "LOSE", Price: 100, DollarVolume: 1e7},
	}, nil
}

func (stubProvider) History(symbol string, _ time.Time, _ int) ([]float64, error) {
	prices := make([]float64, 11)
	for i := range prices {
		prices[i] = 100
	}
	switch symbol {
	case "WIN":
		prices[10] = 120
	case "LOSE":
		prices[10] = 85
	default:
		return nil, fmt.Errorf("no history for %s", symbol)
	}
	return prices, nil
}

type stubPortfolio struct{}

func (stubPortfolio) PortfolioState() (*domain.PortfolioState, error) {
	return &domain.PortfolioState{TotalEquity: 100_000}, nil
}

type stubExecution struct{}

func (stubExecution) SubmitTargets([]domain.PortfolioTarget) error { return nil }

func newTestServer(t *testing.T) *Server {
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

	orchestrator := engine.NewOrchestrator(engine.Deps{
		Provider:  stubProvider{},
		Portfolio: stubPortfolio{},
		Execution: stubExecution{},
		Screener: universe.NewScreener(universe.Config{
			MinPrice:        5,
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

	return New(Config{
		Log:          zerolog.Nop(),
		Port:         0,
		Orchestrator: orchestrator,
		Overlay:      overlay,
		Bus:          events.NewBus(zerolog.Nop()),
	})
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestTargetsBeforeFirstCycle(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/targets")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunCycleThenFetch(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/cycle/run")
	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.CycleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.CycleID)
	assert.Len(t, result.Targets, 2)

	rec = doRequest(t, s, http.MethodGet, "/api/targets")
	require.Equal(t, http.StatusOK, rec.Code)

	var targets struct {
		CycleID string                   `json:"cycle_id"`
		Targets []domain.PortfolioTarget `json:"targets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &targets))
	assert.Equal(t, result.CycleID, targets.CycleID)
	assert.Len(t, targets.Targets, 2)

	rec = doRequest(t, s, http.MethodGet, "/api/signals")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRiskStatus(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/risk/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, string(domain.RiskModeNormal), payload["mode"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload["status"])
}

func TestSystemStats(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/system/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Contains(t, payload, "goroutines")
}
