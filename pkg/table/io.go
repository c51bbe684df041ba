package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	extCSV  = ".csv"
	extXLSX = ".xlsx"
)

// ReadFile loads a table from a .csv or .xlsx file. XLSX files are read from the
// first sheet.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case extCSV:
		return ReadCSV(f)
	case extXLSX:
		return ReadXLSX(f, "")
	default:
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}
}

// Read loads a table from r using the format implied by name.
func Read(r io.Reader, name string) (*Table, error) {
	if strings.EqualFold(filepath.Ext(name), extXLSX) {
		return ReadXLSX(r, "")
	}
	return ReadCSV(r)
}

func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return fromRecords(records)
}

// ReadXLSX reads the named sheet, or the first one when sheet is empty.
func ReadXLSX(r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("xlsx has no sheets")
		}
		sheet = sheets[0]
	}

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	slog.Debug("xlsx sheet read", "sheet", sheet, "rows", len(records))

	return fromRecords(records)
}

func fromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, errors.New("table has no header row")
	}

	// strip a UTF-8 BOM some spreadsheet exports put in front of the header
	if len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}

	return New(records[0], records[1:])
}

func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("writing rows: %w", err)
	}
	return nil
}
