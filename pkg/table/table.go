package table

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMissingColumn = errors.New("column not found")
	ErrEmptyValue    = errors.New("empty value")
	ErrRowIndex      = errors.New("row index out of range")
)

// Table is a header plus string records, the shape every reference and batch
// input file is loaded into before any numeric parsing happens.
type Table struct {
	Columns []string   `json:"columns" yaml:"columns"`
	Rows    [][]string `json:"rows" yaml:"rows"`
}

// New creates a table and normalizes record widths to the header.
func New(columns []string, rows [][]string) (*Table, error) {
	if len(columns) == 0 {
		return nil, errors.New("table header required")
	}

	t := &Table{
		Columns: make([]string, len(columns)),
		Rows:    make([][]string, 0, len(rows)),
	}
	for i, c := range columns {
		t.Columns[i] = strings.TrimSpace(c)
	}

	for i, r := range rows {
		if len(r) > len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, header has %d", i, len(r), len(columns))
		}
		row := make([]string, len(columns))
		copy(row, r)
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, r := range t.Rows {
		c.Rows[i] = append([]string(nil), r...)
	}
	return c
}

// ColumnIndex returns the position of the named column or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Value returns the trimmed cell at row/col.
func (t *Table) Value(row int, col string) (string, error) {
	if row < 0 || row >= len(t.Rows) {
		return "", fmt.Errorf("%w: %d", ErrRowIndex, row)
	}
	i := t.ColumnIndex(col)
	if i < 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingColumn, col)
	}
	return strings.TrimSpace(t.Rows[row][i]), nil
}

// Float parses the cell at row/col. Blank and NA-like cells yield ErrEmptyValue.
func (t *Table) Float(row int, col string) (float64, error) {
	v, err := t.Value(row, col)
	if err != nil {
		return 0, err
	}
	if IsEmpty(v) {
		return 0, fmt.Errorf("%w: row %d column %s", ErrEmptyValue, row, col)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %q in column %s: %w", v, col, err)
	}
	return f, nil
}

// SetColumn adds the named column, or replaces its values when it already exists.
func (t *Table) SetColumn(name string, values []string) error {
	if len(values) != len(t.Rows) {
		return fmt.Errorf("column %s has %d values, table has %d rows", name, len(values), len(t.Rows))
	}

	i := t.ColumnIndex(name)
	if i < 0 {
		t.Columns = append(t.Columns, name)
		for r := range t.Rows {
			t.Rows[r] = append(t.Rows[r], values[r])
		}
		return nil
	}

	for r := range t.Rows {
		t.Rows[r][i] = values[r]
	}
	return nil
}

// IsEmpty reports whether a cell carries no value.
func IsEmpty(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "na", "nan", "null", "none":
		return true
	}
	return false
}
