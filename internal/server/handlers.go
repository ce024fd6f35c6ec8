package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dstav/lodestar/internal/database"
	"github.com/dstav/lodestar/internal/engine"
	"github.com/dstav/lodestar/internal/modules/risk"
)

// Handlers serves the decision engine API
type Handlers struct {
	orchestrator *engine.Orchestrator
	overlay      *risk.Overlay
	stateDB      *database.DB
	historyDB    *database.DB
	log          zerolog.Logger
}

// NewHandlers creates the API handlers
func NewHandlers(orchestrator *engine.Orchestrator, overlay *risk.Overlay, stateDB, historyDB *database.DB, log zerolog.Logger) *Handlers {
	return &Handlers{
		orchestrator: orchestrator,
		overlay:      overlay,
		stateDB:      stateDB,
		historyDB:    historyDB,
		log:          log.With().Str("component", "api_handlers").Logger(),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// HandleHealth reports process and database health
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	databases := make(map[string]string)

	for _, db := range []*database.DB{h.stateDB, h.historyDB} {
		if db == nil {
			continue
		}
		if err := db.HealthCheck(r.Context()); err != nil {
			databases[db.Name()] = err.Error()
			status = "degraded"
		} else {
			databases[db.Name()] = "ok"
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"databases": databases,
		"risk_mode": h.orchestrator.RiskMode(),
	})
}

// HandleTargets returns the latest cycle's final target weights
func (h *Handlers) HandleTargets(w http.ResponseWriter, r *http.Request) {
	result := h.orchestrator.LastResult()
	if result == nil {
		writeError(w, http.StatusNotFound, "no completed cycle yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cycle_id": result.CycleID,
		"as_of":    result.AsOf,
		"targets":  result.Targets,
	})
}

// HandleSignals returns the latest cycle's signals
func (h *Handlers) HandleSignals(w http.ResponseWriter, r *http.Request) {
	result := h.orchestrator.LastResult()
	if result == nil {
		writeError(w, http.StatusNotFound, "no completed cycle yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cycle_id": result.CycleID,
		"as_of":    result.AsOf,
		"signals":  result.Signals,
	})
}

// HandleRiskStatus reports the overlay state and the last cycle's decision
func (h *Handlers) HandleRiskStatus(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"mode":            h.overlay.Mode(),
		"high_water_mark": h.overlay.HighWaterMark(),
	}
	if resumeAt := h.overlay.ResumeAt(); resumeAt != nil {
		payload["resume_at"] = resumeAt.UTC().Format(time.RFC3339)
	}
	if result := h.orchestrator.LastResult(); result != nil {
		payload["last_decision"] = result.Decision
	}
	writeJSON(w, http.StatusOK, payload)
}

// HandleRunCycle triggers a decision cycle. The daily gate makes repeat
// triggers return the already-completed result.
func (h *Handlers) HandleRunCycle(w http.ResponseWriter, r *http.Request) {
	result, err := h.orchestrator.ComputeTargets(time.Now().UTC())
	if err != nil {
		h.log.Error().Err(err).Msg("Manually triggered cycle failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
