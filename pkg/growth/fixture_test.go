package growth

import (
	"fmt"
	"math"
	"strconv"
	"testing"

	"github.com/mchmarny/sbmi/pkg/table"
	"github.com/stretchr/testify/require"
)

const (
	fixtureSystem = "TEST"
	fixtureL      = -1.0
	fixtureS      = 0.08
	fixtureMaxAge = 240
	tolerance     = 1e-9
)

var fixtureSDs = []float64{-4, -3, -2, -1, 0, 1, 2, 3, 4, 5, 6}

func sdName(sd float64) string {
	if sd < 0 {
		return fmt.Sprintf("SD%gneg", -sd)
	}
	return fmt.Sprintf("SD%g", sd)
}

func fixtureLevels() []string {
	list := make([]string, len(fixtureSDs))
	for i, sd := range fixtureSDs {
		list[i] = sdName(sd)
	}
	return list
}

func fixtureLMS(sex Sex, age float64) LMS {
	m := 16 + age/24
	if sex == Female {
		m = 15.5 + age/24
	}
	return LMS{L: fixtureL, M: m, S: fixtureS}
}

// fixtureLevel is the BMI of the SD curve sd, consistent with fixtureLMS.
func fixtureLevel(sex Sex, age, sd float64) float64 {
	p := fixtureLMS(sex, age)
	return p.M * math.Pow(1+p.L*p.S*sd, 1/p.L)
}

func fixtureRows(withLMS bool) []ReferenceRow {
	var rows []ReferenceRow
	for _, sex := range []Sex{Male, Female} {
		for age := 0; age <= fixtureMaxAge; age++ {
			r := ReferenceRow{
				Sex:       sex,
				AgeMonths: float64(age),
				Levels:    make(map[string]float64, len(fixtureSDs)),
			}
			for _, sd := range fixtureSDs {
				r.Levels[sdName(sd)] = fixtureLevel(sex, float64(age), sd)
			}
			if withLMS {
				p := fixtureLMS(sex, float64(age))
				r.LMS = &p
			}
			rows = append(rows, r)
		}
	}
	return rows
}

func fixtureIndex(t *testing.T, withLMS bool) *Index {
	t.Helper()
	ix, err := NewIndex(fixtureSystem, fixtureLevels(), fixtureRows(withLMS))
	require.NoError(t, err)
	return ix
}

func fixtureStandardizer(t *testing.T, withLMS bool) *Standardizer {
	t.Helper()
	s, err := NewStandardizer(fixtureIndex(t, withLMS))
	require.NoError(t, err)
	return s
}

// fixtureTable renders the fixture the way it arrives from a CSV file.
func fixtureTable(t *testing.T) *table.Table {
	t.Helper()
	cols := append([]string{"sex", "age_months", "L", "M", "S"}, fixtureLevels()...)
	var records [][]string
	for _, r := range fixtureRows(true) {
		rec := []string{
			strconv.Itoa(int(r.Sex)),
			strconv.FormatFloat(r.AgeMonths, 'f', -1, 64),
			strconv.FormatFloat(r.LMS.L, 'f', -1, 64),
			strconv.FormatFloat(r.LMS.M, 'f', -1, 64),
			strconv.FormatFloat(r.LMS.S, 'f', -1, 64),
		}
		for _, l := range fixtureLevels() {
			rec = append(rec, strconv.FormatFloat(r.Levels[l], 'f', -1, 64))
		}
		records = append(records, rec)
	}
	tbl, err := table.New(cols, records)
	require.NoError(t, err)
	return tbl
}
