package table

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testCSV = `sex,age_months,bmi
1,100,90
2,5,
1, 60 ,NA
`

func TestReadCSV(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(testCSV))
	require.NoError(t, err)
	assert.Equal(t, []string{"sex", "age_months", "bmi"}, tbl.Columns)
	assert.Equal(t, 3, tbl.Len())

	v, err := tbl.Float(0, "bmi")
	require.NoError(t, err)
	assert.Equal(t, 90.0, v)

	v, err = tbl.Float(2, "age_months")
	require.NoError(t, err)
	assert.Equal(t, 60.0, v)

	_, err = tbl.Float(1, "bmi")
	assert.ErrorIs(t, err, ErrEmptyValue)

	_, err = tbl.Float(2, "bmi")
	assert.ErrorIs(t, err, ErrEmptyValue)

	_, err = tbl.Float(0, "weight")
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = tbl.Float(5, "bmi")
	assert.ErrorIs(t, err, ErrRowIndex)
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestNew_RowTooLong(t *testing.T) {
	_, err := New([]string{"a"}, [][]string{{"1", "2"}})
	assert.Error(t, err)
}

func TestNew_PadsShortRows(t *testing.T) {
	tbl, err := New([]string{"a", "b"}, [][]string{{"1"}})
	require.NoError(t, err)
	v, err := tbl.Value(0, "b")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestSetColumn(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(testCSV))
	require.NoError(t, err)

	require.NoError(t, tbl.SetColumn("R-BMI", []string{"1", "2", "3"}))
	assert.Equal(t, 4, len(tbl.Columns))
	v, err := tbl.Value(2, "R-BMI")
	require.NoError(t, err)
	assert.Equal(t, "3", v)

	require.NoError(t, tbl.SetColumn("R-BMI", []string{"4", "5", "6"}))
	assert.Equal(t, 4, len(tbl.Columns))
	v, err = tbl.Value(0, "R-BMI")
	require.NoError(t, err)
	assert.Equal(t, "4", v)

	assert.Error(t, tbl.SetColumn("x", []string{"1"}))
}

func TestWriteCSV(t *testing.T) {
	tbl, err := New([]string{"a", "b"}, [][]string{{"1", "2"}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))
	assert.Equal(t, "a,b\n1,2\n", buf.String())
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "ref.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("\ufeffsex,age_months\n1,0\n"), 0600))
	tbl, err := ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "sex", tbl.Columns[0])

	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"sex", "age_months", "SD0"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{1, 216, 21.5}))
	xlsxPath := filepath.Join(dir, "ref.xlsx")
	require.NoError(t, f.SaveAs(xlsxPath))

	tbl, err = ReadFile(xlsxPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"sex", "age_months", "SD0"}, tbl.Columns)
	v, err := tbl.Float(0, "SD0")
	require.NoError(t, err)
	assert.Equal(t, 21.5, v)

	_, err = ReadFile(filepath.Join(dir, "ref.json"))
	assert.Error(t, err)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(" "))
	assert.True(t, IsEmpty("NaN"))
	assert.False(t, IsEmpty("0"))
}
