package data

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/mchmarny/sbmi/pkg/growth"
)

const (
	KindSD         = "sd"
	KindLMS        = "lms"
	KindCutoff     = "cutoff"
	KindPercentile = "pct"

	insertReferenceSQL = `INSERT INTO reference (name, kind, source, levels, imported_at)
		VALUES (?, ?, ?, ?, ?)
	`

	insertReferenceRowSQL = `INSERT INTO reference_row (name, sex, age_months, lms_l, lms_m, lms_s)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	insertReferenceLevelSQL = `INSERT INTO reference_level (name, sex, age_months, level, value)
		VALUES (?, ?, ?, ?, ?)
	`

	selectReferencesSQL = `SELECT r.name, r.kind, r.source, r.levels, r.imported_at,
			COUNT(rr.sex) AS row_count
		FROM reference r
		LEFT JOIN reference_row rr ON rr.name = r.name
		GROUP BY r.name, r.kind, r.source, r.levels, r.imported_at
		ORDER BY r.name
	`

	selectReferenceSQL = `SELECT r.name, r.kind, r.source, r.levels, r.imported_at,
			COUNT(rr.sex) AS row_count
		FROM reference r
		LEFT JOIN reference_row rr ON rr.name = r.name
		WHERE r.name = ?
		GROUP BY r.name, r.kind, r.source, r.levels, r.imported_at
	`

	selectReferenceRowsSQL = `SELECT sex, age_months, lms_l, lms_m, lms_s
		FROM reference_row
		WHERE name = ?
		ORDER BY sex, age_months
	`

	selectReferenceLevelsSQL = `SELECT sex, age_months, level, value
		FROM reference_level
		WHERE name = ?
	`
)

var (
	// ReferenceKinds lists the supported reference kinds.
	ReferenceKinds = []string{KindSD, KindLMS, KindCutoff, KindPercentile}

	deleteReferenceSQL = []string{
		"DELETE FROM reference_level WHERE name = ?",
		"DELETE FROM reference_row WHERE name = ?",
		"DELETE FROM reference WHERE name = ?",
	}
)

// ReferenceInfo describes a stored reference system.
type ReferenceInfo struct {
	Name       string   `json:"name" yaml:"name"`
	Kind       string   `json:"kind" yaml:"kind"`
	Source     string   `json:"source,omitempty" yaml:"source,omitempty"`
	Levels     []string `json:"levels" yaml:"levels"`
	Rows       int      `json:"rows" yaml:"rows"`
	ImportedAt string   `json:"imported_at" yaml:"imported_at"`
}

type referenceRecord struct {
	Name       string `db:"name"`
	Kind       string `db:"kind"`
	Source     string `db:"source"`
	Levels     string `db:"levels"`
	ImportedAt string `db:"imported_at"`
	RowCount   int    `db:"row_count"`
}

func (r *referenceRecord) info() (*ReferenceInfo, error) {
	info := &ReferenceInfo{
		Name:       r.Name,
		Kind:       r.Kind,
		Source:     r.Source,
		Rows:       r.RowCount,
		ImportedAt: r.ImportedAt,
	}
	if err := json.Unmarshal([]byte(r.Levels), &info.Levels); err != nil {
		return nil, fmt.Errorf("error decoding levels of %s: %w", r.Name, err)
	}
	return info, nil
}

type rowRecord struct {
	Sex       int             `db:"sex"`
	AgeMonths float64         `db:"age_months"`
	L         sql.NullFloat64 `db:"lms_l"`
	M         sql.NullFloat64 `db:"lms_m"`
	S         sql.NullFloat64 `db:"lms_s"`
}

type levelRecord struct {
	Sex       int     `db:"sex"`
	AgeMonths float64 `db:"age_months"`
	Level     string  `db:"level"`
	Value     float64 `db:"value"`
}

type rowKey struct {
	sex int
	age float64
}

// SaveReference stores ix under its system name, replacing any previous
// version of that system in a single transaction.
func SaveReference(db *sqlx.DB, kind, source string, ix *growth.Index) (*ReferenceInfo, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if ix == nil || ix.System() == "" {
		return nil, errors.New("reference index with a system name required")
	}
	if kind == "" {
		kind = KindSD
	}
	if !Contains(ReferenceKinds, kind) {
		return nil, fmt.Errorf("unsupported reference kind: %s (want one of %v)", kind, ReferenceKinds)
	}

	name := ix.System()
	levels, err := json.Marshal(ix.Levels())
	if err != nil {
		return nil, fmt.Errorf("error encoding levels: %w", err)
	}

	tx, err := db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("error starting reference tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, q := range deleteReferenceSQL {
		if _, err := tx.Exec(tx.Rebind(q), name); err != nil {
			return nil, fmt.Errorf("error clearing reference %s: %w", name, err)
		}
	}

	importedAt := now()
	if _, err := tx.Exec(tx.Rebind(insertReferenceSQL), name, kind, source, string(levels), importedAt); err != nil {
		return nil, fmt.Errorf("error inserting reference %s: %w", name, err)
	}

	rowStmt, err := tx.Preparex(tx.Rebind(insertReferenceRowSQL))
	if err != nil {
		return nil, fmt.Errorf("error preparing reference row insert: %w", err)
	}
	defer rowStmt.Close()

	levelStmt, err := tx.Preparex(tx.Rebind(insertReferenceLevelSQL))
	if err != nil {
		return nil, fmt.Errorf("error preparing reference level insert: %w", err)
	}
	defer levelStmt.Close()

	rows := ix.Rows()
	for _, r := range rows {
		var l, m, s sql.NullFloat64
		if r.LMS != nil {
			l = sql.NullFloat64{Float64: r.LMS.L, Valid: true}
			m = sql.NullFloat64{Float64: r.LMS.M, Valid: true}
			s = sql.NullFloat64{Float64: r.LMS.S, Valid: true}
		}
		if _, err := rowStmt.Exec(name, int(r.Sex), r.AgeMonths, l, m, s); err != nil {
			return nil, fmt.Errorf("error inserting row (sex %d, age %g): %w", r.Sex, r.AgeMonths, err)
		}
		for level, v := range r.Levels {
			if _, err := levelStmt.Exec(name, int(r.Sex), r.AgeMonths, level, v); err != nil {
				return nil, fmt.Errorf("error inserting %s (sex %d, age %g): %w", level, r.Sex, r.AgeMonths, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing reference %s: %w", name, err)
	}

	slog.Debug("reference saved", "system", name, "kind", kind, "rows", len(rows))

	return &ReferenceInfo{
		Name:       name,
		Kind:       kind,
		Source:     source,
		Levels:     ix.Levels(),
		Rows:       len(rows),
		ImportedAt: importedAt,
	}, nil
}

// ListReferences returns all stored reference systems ordered by name.
func ListReferences(db *sqlx.DB) ([]*ReferenceInfo, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	var records []*referenceRecord
	if err := db.Select(&records, selectReferencesSQL); err != nil {
		return nil, fmt.Errorf("error selecting references: %w", err)
	}

	list := make([]*ReferenceInfo, 0, len(records))
	for _, r := range records {
		info, err := r.info()
		if err != nil {
			return nil, err
		}
		list = append(list, info)
	}
	return list, nil
}

// GetReference returns the stored system name or ErrNotFound.
func GetReference(db *sqlx.DB, name string) (*ReferenceInfo, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	var r referenceRecord
	if err := db.Get(&r, db.Rebind(selectReferenceSQL), name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reference %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("error selecting reference %s: %w", name, err)
	}
	return r.info()
}

// DeleteReference removes the system name and all of its rows.
func DeleteReference(db *sqlx.DB, name string) error {
	if db == nil {
		return errDBNotInitialized
	}

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("error starting delete tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var affected int64
	for _, q := range deleteReferenceSQL {
		res, err := tx.Exec(tx.Rebind(q), name)
		if err != nil {
			return fmt.Errorf("error deleting reference %s: %w", name, err)
		}
		if affected, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("error reading affected rows: %w", err)
		}
	}
	if affected == 0 {
		return fmt.Errorf("reference %s: %w", name, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing delete of %s: %w", name, err)
	}
	return nil
}

// LoadIndex rebuilds the growth index of the stored system name, keeping the
// level order it was imported with.
func LoadIndex(db *sqlx.DB, name string) (*growth.Index, error) {
	info, err := GetReference(db, name)
	if err != nil {
		return nil, err
	}

	var rowRecords []*rowRecord
	if err := db.Select(&rowRecords, db.Rebind(selectReferenceRowsSQL), name); err != nil {
		return nil, fmt.Errorf("error selecting rows of %s: %w", name, err)
	}

	var levelRecords []*levelRecord
	if err := db.Select(&levelRecords, db.Rebind(selectReferenceLevelsSQL), name); err != nil {
		return nil, fmt.Errorf("error selecting levels of %s: %w", name, err)
	}

	byKey := make(map[rowKey]map[string]float64, len(rowRecords))
	for _, l := range levelRecords {
		k := rowKey{sex: l.Sex, age: l.AgeMonths}
		if byKey[k] == nil {
			byKey[k] = make(map[string]float64)
		}
		byKey[k][l.Level] = l.Value
	}

	rows := make([]growth.ReferenceRow, 0, len(rowRecords))
	for _, r := range rowRecords {
		row := growth.ReferenceRow{
			Sex:       growth.Sex(r.Sex),
			AgeMonths: r.AgeMonths,
			Levels:    byKey[rowKey{sex: r.Sex, age: r.AgeMonths}],
		}
		if r.L.Valid && r.M.Valid && r.S.Valid {
			row.LMS = &growth.LMS{L: r.L.Float64, M: r.M.Float64, S: r.S.Float64}
		}
		rows = append(rows, row)
	}

	ix, err := growth.NewIndex(info.Name, info.Levels, rows)
	if err != nil {
		return nil, fmt.Errorf("error indexing %s: %w", name, err)
	}
	return ix, nil
}
