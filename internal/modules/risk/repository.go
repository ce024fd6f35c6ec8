package risk

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dstav/lodestar/internal/database"
	"github.com/dstav/lodestar/internal/domain"
)

// Repository persists the overlay state as a single row in the state
// database. Position high marks are packed into a msgpack blob so the row
// stays one write regardless of position count.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates the repository and ensures the schema exists
func NewRepository(db *database.DB, log zerolog.Logger) (*Repository, error) {
	r := &Repository{
		db:  db,
		log: log.With().Str("service", "risk_repository").Logger(),
	}
	if err := r.initSchema(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS risk_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			mode TEXT NOT NULL,
			high_water_mark REAL NOT NULL,
			daily_start_equity REAL NOT NULL,
			last_equity_date TEXT NOT NULL,
			resume_at INTEGER,
			position_high_marks BLOB,
			updated_at INTEGER NOT NULL
		)
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize risk_state schema: %w", err)
	}
	return nil
}

// Load restores the persisted state. A missing row returns a fresh state so
// first boot and restart share one code path.
func (r *Repository) Load() (*State, error) {
	var (
		mode      string
		state     = NewState()
		resumeAt  sql.NullInt64
		marksBlob []byte
	)

	err := r.db.QueryRow(`
		SELECT mode, high_water_mark, daily_start_equity, last_equity_date, resume_at, position_high_marks
		FROM risk_state WHERE id = 1
	`).Scan(&mode, &state.HighWaterMark, &state.DailyStartEquity, &state.LastEquityDate, &resumeAt, &marksBlob)
	if err == sql.ErrNoRows {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load risk state: %w", err)
	}

	state.Mode = domain.RiskMode(mode)
	if resumeAt.Valid {
		t := time.Unix(resumeAt.Int64, 0).UTC()
		state.ResumeAt = &t
	}
	if len(marksBlob) > 0 {
		if err := msgpack.Unmarshal(marksBlob, &state.PositionHighMarks); err != nil {
			return nil, fmt.Errorf("failed to decode position high marks: %w", err)
		}
	}
	if state.PositionHighMarks == nil {
		state.PositionHighMarks = make(map[string]float64)
	}

	r.log.Info().
		Str("mode", string(state.Mode)).
		Float64("high_water_mark", state.HighWaterMark).
		Int("high_marks", len(state.PositionHighMarks)).
		Msg("Restored risk state")

	return state, nil
}

// Save writes the state, replacing any previous row
func (r *Repository) Save(state *State) error {
	marksBlob, err := msgpack.Marshal(state.PositionHighMarks)
	if err != nil {
		return fmt.Errorf("failed to encode position high marks: %w", err)
	}

	var resumeAt interface{}
	if state.ResumeAt != nil {
		resumeAt = state.ResumeAt.Unix()
	}

	_, err = r.db.Exec(`
		INSERT INTO risk_state (id, mode, high_water_mark, daily_start_equity, last_equity_date, resume_at, position_high_marks, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mode = excluded.mode,
			high_water_mark = excluded.high_water_mark,
			daily_start_equity = excluded.daily_start_equity,
			last_equity_date = excluded.last_equity_date,
			resume_at = excluded.resume_at,
			position_high_marks = excluded.position_high_marks,
			updated_at = excluded.updated_at
	`, string(state.Mode), state.HighWaterMark, state.DailyStartEquity, state.LastEquityDate,
		resumeAt, marksBlob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save risk state: %w", err)
	}
	return nil
}
