package data

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mchmarny/sbmi/pkg/growth"
)

const (
	defaultRunLimit = 20

	insertBatchRunSQL = `INSERT INTO batch_run (id, system, input, total, succeeded, failed, mean, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	insertBatchFailureSQL = `INSERT INTO batch_failure (run_id, row_index, kind, message)
		VALUES (?, ?, ?, ?)
	`

	selectBatchRunsSQL = `SELECT id, system, input, total, succeeded, failed, mean, created_at
		FROM batch_run
		ORDER BY created_at DESC, id
		LIMIT ?
	`

	selectBatchFailuresSQL = `SELECT row_index, kind, message
		FROM batch_failure
		WHERE run_id = ?
		ORDER BY row_index
	`
)

// BatchRun is the persisted record of one batch standardization.
type BatchRun struct {
	ID        string              `json:"id" yaml:"id" db:"id"`
	System    string              `json:"system" yaml:"system" db:"system"`
	Input     string              `json:"input,omitempty" yaml:"input,omitempty" db:"input"`
	Total     int                 `json:"total" yaml:"total" db:"total"`
	Succeeded int                 `json:"succeeded" yaml:"succeeded" db:"succeeded"`
	Failed    int                 `json:"failed" yaml:"failed" db:"failed"`
	Mean      float64             `json:"mean" yaml:"mean" db:"mean"`
	CreatedAt string              `json:"created_at" yaml:"created_at" db:"created_at"`
	Failures  []growth.RowFailure `json:"failures,omitempty" yaml:"failures,omitempty" db:"-"`
}

// NewBatchRun creates a run record with a fresh ID from res.
func NewBatchRun(system, input string, res *growth.BatchResult) *BatchRun {
	run := &BatchRun{
		ID:        uuid.NewString(),
		System:    system,
		Input:     input,
		CreatedAt: now(),
	}
	if res != nil {
		run.Total = res.Summary.Total
		run.Succeeded = res.Summary.Succeeded
		run.Failed = res.Summary.Failed
		run.Mean = res.Summary.Mean
		run.Failures = res.Failed
	}
	return run
}

// SaveBatchRun stores run and its failed rows.
func SaveBatchRun(db *sqlx.DB, run *BatchRun) error {
	if db == nil {
		return errDBNotInitialized
	}
	if run == nil || run.ID == "" {
		return errors.New("batch run with an ID required")
	}

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("error starting batch run tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(tx.Rebind(insertBatchRunSQL),
		run.ID, run.System, run.Input, run.Total, run.Succeeded, run.Failed, run.Mean, run.CreatedAt); err != nil {
		return fmt.Errorf("error inserting batch run %s: %w", run.ID, err)
	}

	stmt, err := tx.Preparex(tx.Rebind(insertBatchFailureSQL))
	if err != nil {
		return fmt.Errorf("error preparing batch failure insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range run.Failures {
		if _, err := stmt.Exec(run.ID, f.Index, string(f.Kind), f.Message); err != nil {
			return fmt.Errorf("error inserting failure of row %d: %w", f.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing batch run %s: %w", run.ID, err)
	}

	slog.Debug("batch run saved", "id", run.ID, "failed", len(run.Failures))
	return nil
}

// ListBatchRuns returns the most recent runs, newest first.
func ListBatchRuns(db *sqlx.DB, limit int) ([]*BatchRun, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = defaultRunLimit
	}

	list := make([]*BatchRun, 0)
	if err := db.Select(&list, db.Rebind(selectBatchRunsSQL), limit); err != nil {
		return nil, fmt.Errorf("error selecting batch runs: %w", err)
	}
	return list, nil
}

// GetBatchFailures returns the failed rows of run id in row order.
func GetBatchFailures(db *sqlx.DB, id string) ([]growth.RowFailure, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	var records []struct {
		Index   int    `db:"row_index"`
		Kind    string `db:"kind"`
		Message string `db:"message"`
	}
	if err := db.Select(&records, db.Rebind(selectBatchFailuresSQL), id); err != nil {
		return nil, fmt.Errorf("error selecting failures of %s: %w", id, err)
	}

	list := make([]growth.RowFailure, len(records))
	for i, r := range records {
		list[i] = growth.RowFailure{Index: r.Index, Kind: growth.ErrorKind(r.Kind), Message: r.Message}
	}
	return list, nil
}
