package data

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

var stateQueries = map[string]string{
	"reference":       "SELECT COUNT(*) FROM reference",
	"reference_row":   "SELECT COUNT(*) FROM reference_row",
	"reference_level": "SELECT COUNT(*) FROM reference_level",
	"batch_run":       "SELECT COUNT(*) FROM batch_run",
	"batch_failure":   "SELECT COUNT(*) FROM batch_failure",
}

// GetDataState returns the current state of the database.
func GetDataState(db *sqlx.DB) (map[string]int64, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	state := make(map[string]int64)
	for k, v := range stateQueries {
		stmt, err := db.Preparex(v)
		if err != nil {
			return nil, fmt.Errorf("error preparing %s statement: %w", k, err)
		}

		count, err := getCount(stmt)
		stmt.Close()
		if err != nil {
			return nil, fmt.Errorf("error getting %s count: %w", k, err)
		}
		state[k] = count
	}

	return state, nil
}

func getCount(stmt *sqlx.Stmt) (int64, error) {
	var count int64
	if err := stmt.QueryRow().Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to scan row: %w", err)
	}
	return count, nil
}

// purgeOrder deletes children before their parents.
var purgeOrder = []string{
	"batch_failure",
	"batch_run",
	"reference_level",
	"reference_row",
	"reference",
}

// Purge deletes all references and runs, keeping the schema.
func Purge(db *sqlx.DB) error {
	if db == nil {
		return errDBNotInitialized
	}

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, t := range purgeOrder {
		if _, err := tx.Exec("DELETE FROM " + t); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("error rolling back transaction", "error", rbErr)
			}
			return fmt.Errorf("error purging %s: %w", t, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
