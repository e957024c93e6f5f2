package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/rlm/pkg/models"
)

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	// RunAborted marks a run stopped by a ceiling; its checkpoint is kept.
	RunAborted RunStatus = "aborted"
	// RunAbandoned marks a running run whose checkpoint was discarded.
	RunAbandoned RunStatus = "abandoned"
)

// Finished returns true if the status is terminal.
func (s RunStatus) Finished() bool {
	return s != RunRunning
}

// Run is one ledger row: a call to analyze and how it ended.
type Run struct {
	ID         string     `json:"id"`
	Path       string     `json:"path"`
	Query      string     `json:"query"`
	Focus      string     `json:"focus"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	SubagentCalls int     `json:"subagent_calls"`
	CacheHits     int     `json:"cache_hits"`
	TotalTokens   int     `json:"total_tokens"`
	TotalCost     float64 `json:"total_cost"`
	MaxDepth      int     `json:"max_depth"`
	Iterations    int     `json:"iterations"`

	ErrorKind  string `json:"error_kind,omitempty"`
	Error      string `json:"error,omitempty"`
	RecordFile string `json:"record_file,omitempty"`
}

// Outcome carries the fields written when a run finishes.
type Outcome struct {
	Status     RunStatus
	Stats      models.Stats
	ErrorKind  string
	Error      string
	RecordFile string
}

// CreateRun inserts a new run.
func (db *DB) CreateRun(r *Run) error {
	if r.ID == "" {
		return errors.New("create run: empty id")
	}
	if r.Status == "" {
		r.Status = RunRunning
	}
	_, err := db.Exec(`
		INSERT INTO runs (id, path, query, focus, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.Path, r.Query, r.Focus, string(r.Status), formatTime(r.StartedAt))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun records the final status and counters of a run.
func (db *DB) FinishRun(id string, out Outcome, finishedAt time.Time) error {
	res, err := db.Exec(`
		UPDATE runs SET status = ?, finished_at = ?, subagent_calls = ?, cache_hits = ?,
			total_tokens = ?, total_cost = ?, max_depth = ?, iterations = ?,
			error_kind = ?, error = ?, record_file = ?
		WHERE id = ?
	`, string(out.Status), formatTime(finishedAt), out.Stats.SubagentCalls, out.Stats.CacheHits,
		out.Stats.TotalTokens, out.Stats.TotalCostUSD, out.Stats.MaxDepthReached, out.Stats.Iterations,
		out.ErrorKind, out.Error, out.RecordFile, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: %s not found", id)
	}
	return nil
}

const runColumns = `id, path, query, focus, status, started_at, finished_at, subagent_calls, cache_hits,
	total_tokens, total_cost, max_depth, iterations, error_kind, error, record_file`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var startedAt string
	var finishedAt sql.NullString
	err := row.Scan(&r.ID, &r.Path, &r.Query, &r.Focus, &r.Status, &startedAt, &finishedAt,
		&r.SubagentCalls, &r.CacheHits, &r.TotalTokens, &r.TotalCost, &r.MaxDepth, &r.Iterations,
		&r.ErrorKind, &r.Error, &r.RecordFile)
	if err != nil {
		return nil, err
	}
	r.StartedAt, _ = parseTime(startedAt)
	r.FinishedAt = parseNullableTime(finishedAt)
	return &r, nil
}

// GetRun retrieves a run by ID. It returns nil, nil if there is none.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns runs newest first, optionally filtered by status. A
// non-positive limit returns all runs.
func (db *DB) ListRuns(status *RunStatus, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// PurgeOldRuns deletes finished runs started before now minus olderThan.
// Returns the number of runs deleted.
func (db *DB) PurgeOldRuns(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	result, err := db.Exec(`
		DELETE FROM runs WHERE started_at < ? AND status != ?
	`, cutoff, string(RunRunning))
	if err != nil {
		return 0, fmt.Errorf("purge old runs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return count, nil
}
