// Package persistence records pipeline runs in a SQLite database so an
// operator can inspect what a model proposed, what executed, and why a run
// halted, long after the process exited.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lexcodex/replanify/plan"
)

// RunJournal stores runs and their execution attempts.
type RunJournal struct {
	db *sql.DB
}

// NewRunJournal opens/creates the database at dbPath.
func NewRunJournal(dbPath string) (*RunJournal, error) {
	if dbPath == "" {
		return nil, errors.New("journal path required")
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, err
	}
	journal := &RunJournal{db: db}
	if err := journal.initSchema(); err != nil {
		return nil, err
	}
	return journal, nil
}

func (j *RunJournal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		role TEXT NOT NULL,
		request TEXT,
		status TEXT NOT NULL DEFAULT 'running',
		halt_reason TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		attempt INTEGER NOT NULL,
		plan TEXT NOT NULL,
		outcome TEXT NOT NULL,
		failed BOOLEAN NOT NULL,
		recorded_at TIMESTAMP NOT NULL,
		FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (j *RunJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RunRecord is one stored pipeline run.
type RunRecord struct {
	ID         int64      `json:"id"`
	Role       string     `json:"role"`
	Request    string     `json:"request"`
	Status     string     `json:"status"`
	HaltReason string     `json:"halt_reason,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// AttemptRecord is one execution pass within a run.
type AttemptRecord struct {
	ID         int64            `json:"id"`
	RunID      int64            `json:"run_id"`
	Attempt    int              `json:"attempt"`
	Plan       plan.Plan        `json:"plan"`
	Outcome    plan.PlanOutcome `json:"outcome"`
	Failed     bool             `json:"failed"`
	RecordedAt time.Time        `json:"recorded_at"`
}

// BeginRun inserts a new run and returns its id.
func (j *RunJournal) BeginRun(ctx context.Context, role, request string) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (role, request, status, started_at) VALUES (?, ?, 'running', ?)`,
		role, request, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecordAttempt stores one execution pass. Plan and outcome are stored as
// JSON text; the schema stays stable as the action vocabulary evolves.
func (j *RunJournal) RecordAttempt(ctx context.Context, runID int64, attempt int, p plan.Plan, outcome plan.PlanOutcome) error {
	planJSON, err := json.Marshal(p)
	if err != nil {
		return err
	}
	outcomeJSON, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO attempts (run_id, attempt, plan, outcome, failed, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, attempt, string(planJSON), string(outcomeJSON), outcome.Failed(), time.Now().UTC())
	return err
}

// FinishRun marks a run terminal.
func (j *RunJournal) FinishRun(ctx context.Context, runID int64, status, reason string) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, halt_reason = ?, finished_at = ? WHERE id = ?`,
		status, reason, time.Now().UTC(), runID)
	return err
}

// Recent returns the newest runs, most recent first.
func (j *RunJournal) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, role, request, status, halt_reason, started_at, finished_at
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

// Run returns one run by id.
func (j *RunJournal) Run(ctx context.Context, runID int64) (*RunRecord, bool, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT id, role, request, status, halt_reason, started_at, finished_at
		FROM runs WHERE id = ?`, runID)
	record, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// Attempts returns a run's execution passes in order.
func (j *RunJournal) Attempts(ctx context.Context, runID int64) ([]AttemptRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, attempt, plan, outcome, failed, recorded_at
		FROM attempts WHERE run_id = ? ORDER BY attempt`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := make([]AttemptRecord, 0)
	for rows.Next() {
		var record AttemptRecord
		var planJSON, outcomeJSON string
		if err := rows.Scan(&record.ID, &record.RunID, &record.Attempt,
			&planJSON, &outcomeJSON, &record.Failed, &record.RecordedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(planJSON), &record.Plan); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(outcomeJSON), &record.Outcome); err != nil {
			return nil, err
		}
		results = append(results, record)
	}
	return results, rows.Err()
}

func scanRun(row *sql.Row) (*RunRecord, error) {
	record := &RunRecord{}
	var haltReason sql.NullString
	var finishedAt sql.NullTime
	err := row.Scan(&record.ID, &record.Role, &record.Request, &record.Status,
		&haltReason, &record.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	record.HaltReason = haltReason.String
	if finishedAt.Valid {
		record.FinishedAt = &finishedAt.Time
	}
	return record, nil
}

func scanRuns(rows *sql.Rows) ([]RunRecord, error) {
	results := make([]RunRecord, 0)
	for rows.Next() {
		record := RunRecord{}
		var haltReason sql.NullString
		var finishedAt sql.NullTime
		if err := rows.Scan(&record.ID, &record.Role, &record.Request, &record.Status,
			&haltReason, &record.StartedAt, &finishedAt); err != nil {
			return nil, err
		}
		record.HaltReason = haltReason.String
		if finishedAt.Valid {
			record.FinishedAt = &finishedAt.Time
		}
		results = append(results, record)
	}
	return results, rows.Err()
}
