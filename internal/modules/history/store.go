// Package history stores daily closing prices in the local history cache
// database and serves trailing windows to the signal pipeline.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dstav/lodestar/internal/database"
)

// DailyClose is one end-of-day price point
type DailyClose struct {
	Symbol string
	Date   time.Time
	Close  float64
}

// Store reads and writes the daily_prices table
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates the store and ensures the schema exists
func NewStore(db *database.DB, log zerolog.Logger) (*Store, error) {
	s := &Store{
		db:  db,
		log: log.With().Str("service", "history_store").Logger(),
	}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS daily_prices (
			symbol TEXT NOT NULL,
			date INTEGER NOT NULL,
			close REAL NOT NULL,
			PRIMARY KEY (symbol, date)
		);
		CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices(date);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize daily_prices schema: %w", err)
	}
	return nil
}

// UpsertCloses writes price points in a single transaction, replacing any
// existing row for the same symbol and day. Dates are truncated to UTC days.
func (s *Store) UpsertCloses(closes []DailyClose) error {
	if len(closes) == 0 {
		return nil
	}

	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO daily_prices (symbol, date, close)
			VALUES (?, ?, ?)
			ON CONFLICT(symbol, date) DO UPDATE SET close = excluded.close
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, c := range closes {
			if _, err := stmt.Exec(c.Symbol, dayUnix(c.Date), c.Close); err != nil {
				return fmt.Errorf("failed to upsert close for %s: %w", c.Symbol, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Debug().Int("rows", len(closes)).Msg("Upserted daily closes")
	return nil
}

// History returns up to lookback+1 closes for the symbol ending at asOf,
// oldest first. The extra point lets callers compute lookback returns.
// Fewer rows than requested is not an error; scoring decides sufficiency.
func (s *Store) History(symbol string, asOf time.Time, lookback int) ([]float64, error) {
	if lookback <= 0 {
		return nil, fmt.Errorf("lookback must be positive, got %d", lookback)
	}

	rows, err := s.db.Query(`
		SELECT close FROM daily_prices
		WHERE symbol = ? AND date <= ?
		ORDER BY date DESC
		LIMIT ?
	`, symbol, dayUnix(asOf), lookback+1)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for %s: %w", symbol, err)
	}
	defer rows.Close()

	var descending []float64
	for rows.Next() {
		var close float64
		if err := rows.Scan(&close); err != nil {
			return nil, fmt.Errorf("failed to scan close for %s: %w", symbol, err)
		}
		descending = append(descending, close)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history for %s: %w", symbol, err)
	}

	// Oldest first for the formulas package
	prices := make([]float64, len(descending))
	for i, v := range descending {
		prices[len(descending)-1-i] = v
	}
	return prices, nil
}

// LatestClose returns the most recent stored close for a symbol
func (s *Store) LatestClose(symbol string) (float64, error) {
	var close float64
	err := s.db.QueryRow(`
		SELECT close FROM daily_prices
		WHERE symbol = ?
		ORDER BY date DESC
		LIMIT 1
	`, symbol).Scan(&close)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no history for %s", symbol)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query latest close for %s: %w", symbol, err)
	}
	return close, nil
}

// PruneBefore deletes rows older than the cutoff and reports rows removed.
// Run periodically to keep the cache database bounded.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM daily_prices WHERE date < ?`, dayUnix(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune daily prices: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}

	if removed > 0 {
		s.log.Info().Int64("rows", removed).Time("cutoff", cutoff).Msg("Pruned price history")
	}
	return removed, nil
}

// dayUnix normalizes a timestamp to the Unix time of its UTC midnight
func dayUnix(t time.Time) int64 {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Unix()
}
