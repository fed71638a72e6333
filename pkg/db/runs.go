package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// timeLayout is fixed width so stored timestamps order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

type Run struct {
	RunID       string
	Stage       string
	Fingerprint map[string]string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Status      string
	Total       int
	Succeeded   int
	Skipped     int
	AbortedAt   string
	Error       string
}

type RunSkip struct {
	ItemID string
	Kind   string
	Reason string
}

// RunResult is the final state written by FinishRun.
type RunResult struct {
	FinishedAt time.Time
	Status     string
	Total      int
	Succeeded  int
	Skipped    int
	AbortedAt  string
	Error      string
}

var ErrRunNotFound = errors.New("run not found")

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// StartRun inserts a run in the running state.
func (db *DB) StartRun(runID, stage string, fingerprint map[string]string, startedAt time.Time, total int) error {
	fp, err := json.Marshal(fingerprint)
	if err != nil {
		return fmt.Errorf("failed to marshal fingerprint: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO runs (run_id, stage, fingerprint, started_at, status, total)
		VALUES (?, ?, ?, ?, ?, ?)
	`, runID, stage, string(fp), formatTime(startedAt), StatusRunning, total)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// AddSkip records a skipped item for runID.
func (db *DB) AddSkip(runID, itemID, kind, reason string) error {
	_, err := db.Exec(`
		INSERT INTO run_skips (run_id, item_id, kind, reason)
		VALUES (?, ?, ?, ?)
	`, runID, itemID, kind, reason)
	if err != nil {
		return fmt.Errorf("failed to record skip: %w", err)
	}
	return nil
}

// FinishRun stores the final counters and status.
func (db *DB) FinishRun(runID string, res RunResult) error {
	result, err := db.Exec(`
		UPDATE runs
		SET finished_at = ?, status = ?, total = ?, succeeded = ?, skipped = ?, aborted_at = ?, error = ?
		WHERE run_id = ?
	`, formatTime(res.FinishedAt), res.Status, res.Total, res.Succeeded, res.Skipped,
		nullString(res.AbortedAt), nullString(res.Error), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `run_id, stage, fingerprint, started_at, finished_at, status, total, succeeded, skipped, aborted_at, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r                     Run
		fp, started           string
		finished, aborted, em sql.NullString
	)
	if err := row.Scan(&r.RunID, &r.Stage, &fp, &started, &finished, &r.Status,
		&r.Total, &r.Succeeded, &r.Skipped, &aborted, &em); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(fp), &r.Fingerprint); err != nil {
		return Run{}, fmt.Errorf("failed to decode fingerprint of run %s: %w", r.RunID, err)
	}
	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return Run{}, fmt.Errorf("failed to parse started_at of run %s: %w", r.RunID, err)
	}
	r.StartedAt = t
	if finished.Valid {
		t, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return Run{}, fmt.Errorf("failed to parse finished_at of run %s: %w", r.RunID, err)
		}
		r.FinishedAt = &t
	}
	r.AbortedAt = aborted.String
	r.Error = em.String
	return r, nil
}

// GetRun returns one run by id.
func (db *DB) GetRun(runID string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, run_id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRunSkips returns the skipped items of a run in insertion order.
func (db *DB) GetRunSkips(runID string) ([]RunSkip, error) {
	rows, err := db.Query(`
		SELECT item_id, kind, reason FROM run_skips
		WHERE run_id = ?
		ORDER BY skip_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run skips: %w", err)
	}
	defer rows.Close()

	var skips []RunSkip
	for rows.Next() {
		var s RunSkip
		if err := rows.Scan(&s.ItemID, &s.Kind, &s.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan run skip: %w", err)
		}
		skips = append(skips, s)
	}
	return skips, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
