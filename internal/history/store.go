// Package history persists per-prompt outcomes across runs, so flaky prompts
// can be spotted from their pass rate over time.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/promptproof/promptproof/internal/report"
	"github.com/promptproof/promptproof/pkg/types"
)

// Verdict stored for entries that never received a Grade.
const verdictUngraded = "ungraded"

// Store is a SQLite-backed store for prompt outcome history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New creates the prompt_history table and index if they don't exist, then
// returns a Store backed by the provided *sql.DB.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS prompt_history (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT    NOT NULL,
			scenario    TEXT    NOT NULL,
			prompt_text TEXT    NOT NULL,
			verdict     TEXT    NOT NULL,
			task_done   INTEGER NOT NULL,
			created_at  INTEGER NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create prompt_history table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_prompt_history_scenario_prompt_ts
		ON prompt_history (scenario, prompt_text, created_at)
	`); err != nil {
		return nil, fmt.Errorf("create prompt_history index: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun inserts one row per entry of a finished run report.
func (s *Store) RecordRun(rep *report.RunReport) error {
	for _, e := range rep.Entries {
		verdict := verdictUngraded
		if e.Grade != nil {
			verdict = e.Grade.Verdict
		}
		if err := s.Record(rep.RunID, rep.Scenario, e.Result.Prompt.Text, verdict, e.Result.TaskDone); err != nil {
			return err
		}
	}
	return nil
}

// Record inserts a single prompt outcome row.
func (s *Store) Record(runID, scenario, promptText, verdict string, taskDone bool) error {
	done := 0
	if taskDone {
		done = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO prompt_history (run_id, scenario, prompt_text, verdict, task_done, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, scenario, promptText, verdict, done, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record prompt history: %w", err)
	}
	return nil
}

// QueryWindow returns the last windowSize verdicts for the given prompt,
// most recent first.
func (s *Store) QueryWindow(scenario, promptText string, windowSize int) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT verdict FROM prompt_history
		 WHERE scenario = ? AND prompt_text = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		scenario, promptText, windowSize,
	)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	var verdicts []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		verdicts = append(verdicts, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query window rows: %w", err)
	}
	return verdicts, nil
}

// PassRate computes the fraction of graded outcomes that passed for the given
// prompt, with the graded count. Ungraded rows are excluded: an unavailable
// judge says nothing about flakiness. Returns (0, 0) when nothing is graded.
func (s *Store) PassRate(scenario, promptText string) (rate float64, graded int, err error) {
	row := s.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN verdict = ? THEN 1 ELSE 0 END), 0)
		 FROM prompt_history
		 WHERE scenario = ? AND prompt_text = ? AND verdict != ?`,
		types.VerdictPass, scenario, promptText, verdictUngraded,
	)
	var passed int
	if err = row.Scan(&graded, &passed); err != nil {
		return 0, 0, fmt.Errorf("pass rate query: %w", err)
	}
	if graded == 0 {
		return 0, 0, nil
	}
	return float64(passed) / float64(graded), graded, nil
}
