package growth

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/mchmarny/sbmi/pkg/table"
)

const (
	DefaultSexColumn = "sex"
	DefaultAgeColumn = "age_months"

	lmsL = "L"
	lmsM = "M"
	lmsS = "S"

	sdPrefix  = "SD"
	negMarker = "neg"
)

// Sex is the reference table sex code.
type Sex int

const (
	Male   Sex = 1
	Female Sex = 2
)

func (s Sex) Valid() bool {
	return s == Male || s == Female
}

func (s Sex) String() string {
	switch s {
	case Male:
		return "male"
	case Female:
		return "female"
	default:
		return fmt.Sprintf("sex(%d)", int(s))
	}
}

// ParseSex accepts the numeric codes used by the reference tables (1, 2, 1.0)
// as well as male/boy/m and female/girl/f.
func ParseSex(v string) (Sex, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "male", "boy", "m":
		return Male, nil
	case "female", "girl", "f":
		return Female, nil
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSex, v)
	}
	s := Sex(int(f))
	if float64(s) != f || !s.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSex, v)
	}
	return s, nil
}

// ReferenceRow is one age of one sex in a reference table.
type ReferenceRow struct {
	Sex       Sex                `json:"sex" yaml:"sex"`
	AgeMonths float64            `json:"age_months" yaml:"age_months"`
	Levels    map[string]float64 `json:"levels" yaml:"levels"`
	LMS       *LMS               `json:"lms,omitempty" yaml:"lms,omitempty"`
}

// Level returns the BMI value of the named level at this age.
func (r *ReferenceRow) Level(name string) (float64, bool) {
	v, ok := r.Levels[name]
	return v, ok
}

// SDLevel is an SD column with its parsed SD index.
type SDLevel struct {
	Name string  `json:"name" yaml:"name"`
	SD   float64 `json:"sd" yaml:"sd"`
}

// ParseSDLevel extracts the SD index from a column name: SD2 is 2, SD1_5 and
// SD1.5 are 1.5, SD2neg, SDneg2 and SD-2 are -2.
func ParseSDLevel(name string) (float64, bool) {
	if len(name) <= len(sdPrefix) || !strings.EqualFold(name[:len(sdPrefix)], sdPrefix) {
		return 0, false
	}

	rest := strings.ToLower(name[len(sdPrefix):])
	neg := strings.Contains(rest, negMarker)
	rest = strings.ReplaceAll(rest, negMarker, "")
	rest = strings.Trim(rest, "_ ")
	if strings.HasPrefix(rest, "-") {
		if neg {
			return 0, false
		}
		neg = true
		rest = rest[1:]
	}
	rest = strings.ReplaceAll(rest, "_", ".")
	if rest == "" || strings.ContainsAny(rest, "+-") {
		return 0, false
	}

	v, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// Partition holds the age-sorted rows of one sex.
type Partition struct {
	sex  Sex
	rows []*ReferenceRow
}

func (p *Partition) Sex() Sex {
	return p.sex
}

func (p *Partition) Len() int {
	return len(p.rows)
}

func (p *Partition) Ages() []float64 {
	ages := make([]float64, len(p.rows))
	for i, r := range p.rows {
		ages[i] = r.AgeMonths
	}
	return ages
}

// At returns the row at exactly age months.
func (p *Partition) At(age float64) (*ReferenceRow, error) {
	i, found := slices.BinarySearchFunc(p.rows, age, func(r *ReferenceRow, a float64) int {
		return cmp.Compare(r.AgeMonths, a)
	})
	if !found {
		return nil, fmt.Errorf("%w: %s at %g months", ErrNoReference, p.sex, age)
	}
	return p.rows[i], nil
}

// ageTolerance absorbs float noise in derived ages, 5.3 years is
// 63.599999999999994 months.
const ageTolerance = 1e-6

// Floor returns the last row at or below age months.
func (p *Partition) Floor(age float64) (*ReferenceRow, error) {
	i := sort.Search(len(p.rows), func(i int) bool {
		return p.rows[i].AgeMonths > age+ageTolerance
	})
	if i == 0 {
		return nil, fmt.Errorf("%w: %s at %g months", ErrNoReference, p.sex, age)
	}
	return p.rows[i-1], nil
}

// Series returns the ages and values of one level, skipping ages where the
// level is missing.
func (p *Partition) Series(level string) (ages, values []float64) {
	for _, r := range p.rows {
		if v, ok := r.Levels[level]; ok {
			ages = append(ages, r.AgeMonths)
			values = append(values, v)
		}
	}
	return ages, values
}

// Index is the read-only, sex-partitioned view of one reference system.
type Index struct {
	system string
	levels []string
	male   *Partition
	female *Partition
}

// NewIndex partitions rows by sex. Sex codes outside {1,2} and ages repeated
// within one sex are rejected. When levels is empty the level names are
// collected from the rows in sorted order.
func NewIndex(system string, levels []string, rows []ReferenceRow) (*Index, error) {
	if system == "" {
		return nil, fmt.Errorf("%w: system name required", ErrInvalidIndex)
	}

	ix := &Index{
		system: system,
		male:   &Partition{sex: Male},
		female: &Partition{sex: Female},
	}

	seen := make(map[string]bool)
	for _, l := range levels {
		if !seen[l] {
			seen[l] = true
			ix.levels = append(ix.levels, l)
		}
	}
	collect := len(ix.levels) == 0

	for i := range rows {
		r := rows[i]
		if !r.Sex.Valid() {
			return nil, fmt.Errorf("%w: row %d has sex code %d", ErrInvalidSex, i, int(r.Sex))
		}
		if r.LMS != nil {
			lms := *r.LMS
			r.LMS = &lms
		}
		r.Levels = make(map[string]float64, len(rows[i].Levels))
		for k, v := range rows[i].Levels {
			r.Levels[k] = v
			if collect && !seen[k] {
				seen[k] = true
				ix.levels = append(ix.levels, k)
			}
		}

		p := ix.male
		if r.Sex == Female {
			p = ix.female
		}
		p.rows = append(p.rows, &r)
	}

	if collect {
		slices.Sort(ix.levels)
	}

	for _, p := range []*Partition{ix.male, ix.female} {
		slices.SortStableFunc(p.rows, func(a, b *ReferenceRow) int {
			return cmp.Compare(a.AgeMonths, b.AgeMonths)
		})
		for i := 1; i < len(p.rows); i++ {
			if p.rows[i].AgeMonths == p.rows[i-1].AgeMonths {
				return nil, fmt.Errorf("%w: %s age %g months repeats", ErrInvalidIndex, p.sex, p.rows[i].AgeMonths)
			}
		}
	}

	return ix, nil
}

// BuildIndex parses t and partitions it by the values in sexColumn.
func BuildIndex(system string, t *table.Table, sexColumn, ageColumn string) (*Index, error) {
	levels, rows, err := RowsFromTable(t, sexColumn, ageColumn)
	if err != nil {
		return nil, err
	}
	return NewIndex(system, levels, rows)
}

// RowsFromTable converts a loaded reference table into rows. Every column other
// than the sex and age columns whose cells are all numeric or blank is a level;
// L, M and S columns become the row LMS parameters instead.
func RowsFromTable(t *table.Table, sexColumn, ageColumn string) ([]string, []ReferenceRow, error) {
	if t == nil {
		return nil, nil, fmt.Errorf("%w: table required", ErrInvalidIndex)
	}
	for _, c := range []string{sexColumn, ageColumn} {
		if !t.HasColumn(c) {
			return nil, nil, fmt.Errorf("%w: column %s", ErrMissingField, c)
		}
	}

	hasLMS := t.HasColumn(lmsL) && t.HasColumn(lmsM) && t.HasColumn(lmsS)

	var levels []string
	for _, c := range t.Columns {
		if c == sexColumn || c == ageColumn || c == "" {
			continue
		}
		if hasLMS && (c == lmsL || c == lmsM || c == lmsS) {
			continue
		}
		if numericColumn(t, c) {
			levels = append(levels, c)
		}
	}

	rows := make([]ReferenceRow, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		sv, err := t.Value(i, sexColumn)
		if err != nil {
			return nil, nil, err
		}
		sex, err := ParseSex(sv)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i, err)
		}

		age, err := t.Float(i, ageColumn)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: row %d: %w", ErrMissingField, i, err)
		}

		r := ReferenceRow{
			Sex:       sex,
			AgeMonths: age,
			Levels:    make(map[string]float64, len(levels)),
		}
		for _, l := range levels {
			if v, err := t.Float(i, l); err == nil {
				r.Levels[l] = v
			}
		}

		if hasLMS {
			l, lerr := t.Float(i, lmsL)
			m, merr := t.Float(i, lmsM)
			s, serr := t.Float(i, lmsS)
			if lerr == nil && merr == nil && serr == nil {
				r.LMS = &LMS{L: l, M: m, S: s}
			}
		}

		rows = append(rows, r)
	}

	return levels, rows, nil
}

func numericColumn(t *table.Table, col string) bool {
	for i := 0; i < t.Len(); i++ {
		v, err := t.Value(i, col)
		if err != nil {
			return false
		}
		if table.IsEmpty(v) {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return false
		}
	}
	return true
}

func (ix *Index) System() string {
	return ix.system
}

func (ix *Index) Levels() []string {
	return slices.Clone(ix.levels)
}

// SDLevels returns the SD columns ordered by SD index.
func (ix *Index) SDLevels() []SDLevel {
	var list []SDLevel
	for _, l := range ix.levels {
		if sd, ok := ParseSDLevel(l); ok {
			list = append(list, SDLevel{Name: l, SD: sd})
		}
	}
	slices.SortStableFunc(list, func(a, b SDLevel) int {
		return cmp.Compare(a.SD, b.SD)
	})
	return list
}

// HasLMS reports whether any row carries LMS parameters.
func (ix *Index) HasLMS() bool {
	for _, p := range []*Partition{ix.male, ix.female} {
		for _, r := range p.rows {
			if r.LMS != nil {
				return true
			}
		}
	}
	return false
}

// MaxAge returns the age of the last row of sex.
func (ix *Index) MaxAge(sex Sex) (float64, error) {
	p, err := ix.Partition(sex)
	if err != nil {
		return 0, err
	}
	if len(p.rows) == 0 {
		return 0, fmt.Errorf("%w: %s has no %s rows", ErrNoReference, ix.system, sex)
	}
	return p.rows[len(p.rows)-1].AgeMonths, nil
}

func (ix *Index) Partition(sex Sex) (*Partition, error) {
	switch sex {
	case Male:
		return ix.male, nil
	case Female:
		return ix.female, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidSex, int(sex))
	}
}

// Rows returns copies of all rows, males first, each sex in age order.
func (ix *Index) Rows() []ReferenceRow {
	list := make([]ReferenceRow, 0, ix.male.Len()+ix.female.Len())
	for _, p := range []*Partition{ix.male, ix.female} {
		for _, r := range p.rows {
			c := *r
			c.Levels = make(map[string]float64, len(r.Levels))
			for k, v := range r.Levels {
				c.Levels[k] = v
			}
			if r.LMS != nil {
				lms := *r.LMS
				c.LMS = &lms
			}
			list = append(list, c)
		}
	}
	return list
}
