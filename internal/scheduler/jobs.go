package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/dstav/lodestar/internal/database"
	"github.com/dstav/lodestar/internal/engine"
	"github.com/dstav/lodestar/internal/modules/history"
)

// DecisionCycleJob triggers the daily decision cycle. The orchestrator's own
// calendar gate makes extra firings harmless.
type DecisionCycleJob struct {
	orchestrator *engine.Orchestrator
}

// NewDecisionCycleJob creates the decision cycle job
func NewDecisionCycleJob(orchestrator *engine.Orchestrator) *DecisionCycleJob {
	return &DecisionCycleJob{orchestrator: orchestrator}
}

// Name returns the job name
func (j *DecisionCycleJob) Name() string { return "decision_cycle" }

// Run executes one decision cycle as of now
func (j *DecisionCycleJob) Run() error {
	_, err := j.orchestrator.ComputeTargets(time.Now().UTC())
	return err
}

// HistoryPruneJob trims the price history cache to a retention window
type HistoryPruneJob struct {
	store         *history.Store
	retentionDays int
	log           zerolog.Logger
}

// NewHistoryPruneJob creates the history prune job
func NewHistoryPruneJob(store *history.Store, retentionDays int, log zerolog.Logger) *HistoryPruneJob {
	return &HistoryPruneJob{
		store:         store,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "history_prune").Logger(),
	}
}

// Name returns the job name
func (j *HistoryPruneJob) Name() string { return "history_prune" }

// Run deletes price rows older than the retention window
func (j *HistoryPruneJob) Run() error {
	cutoff := time.Now().UTC().AddDate(0, 0, -j.retentionDays)
	removed, err := j.store.PruneBefore(cutoff)
	if err != nil {
		return err
	}
	j.log.Debug().Int64("removed", removed).Msg("History cache pruned")
	return nil
}

// WALCheckpointJob checkpoints the databases so WAL files stay bounded
type WALCheckpointJob struct {
	dbs []*database.DB
	log zerolog.Logger
}

// NewWALCheckpointJob creates the WAL checkpoint job
func NewWALCheckpointJob(log zerolog.Logger, dbs ...*database.DB) *WALCheckpointJob {
	return &WALCheckpointJob{
		dbs: dbs,
		log: log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string { return "wal_checkpoint" }

// Run checkpoints every registered database
func (j *WALCheckpointJob) Run() error {
	for _, db := range j.dbs {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			return err
		}
		j.log.Debug().Str("database", db.Name()).Msg("WAL checkpoint complete")
	}
	return nil
}
