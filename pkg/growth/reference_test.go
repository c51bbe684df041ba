package growth

import (
	"testing"

	"github.com/mchmarny/sbmi/pkg/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSex(t *testing.T) {
	tests := []struct {
		in   string
		want Sex
		ok   bool
	}{
		{"1", Male, true},
		{"2", Female, true},
		{"1.0", Male, true},
		{" girl ", Female, true},
		{"M", Male, true},
		{"3", 0, false},
		{"1.5", 0, false},
		{"", 0, false},
		{"x", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSex(tt.in)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidSex)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSDLevel(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"SD0", 0, true},
		{"SD2", 2, true},
		{"SD40", 40, true},
		{"SD2neg", -2, true},
		{"SDneg4", -4, true},
		{"SD1_5", 1.5, true},
		{"SD1.5neg", -1.5, true},
		{"SD-2", -2, true},
		{"SD-1_5", -1.5, true},
		{"SD-2neg", 0, false},
		{"SD--2", 0, false},
		{"SD", 0, false},
		{"BMI_25", 0, false},
		{"SDx", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSDLevel(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewIndex_Partitions(t *testing.T) {
	ix := fixtureIndex(t, true)
	assert.Equal(t, fixtureSystem, ix.System())
	assert.True(t, ix.HasLMS())
	assert.Equal(t, fixtureLevels(), ix.Levels())

	for _, sex := range []Sex{Male, Female} {
		p, err := ix.Partition(sex)
		require.NoError(t, err)
		assert.Equal(t, sex, p.Sex())
		assert.Equal(t, fixtureMaxAge+1, p.Len())

		r, err := p.At(60)
		require.NoError(t, err)
		assert.Equal(t, sex, r.Sex)
		assert.Equal(t, 60.0, r.AgeMonths)
	}

	_, err := ix.Partition(Sex(3))
	assert.ErrorIs(t, err, ErrInvalidSex)
}

func TestNewIndex_SortsAges(t *testing.T) {
	rows := []ReferenceRow{
		{Sex: Male, AgeMonths: 24, Levels: map[string]float64{"SD0": 16}},
		{Sex: Male, AgeMonths: 0, Levels: map[string]float64{"SD0": 13}},
		{Sex: Female, AgeMonths: 12, Levels: map[string]float64{"SD1": 17}},
	}
	ix, err := NewIndex("X", nil, rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"SD0", "SD1"}, ix.Levels())

	p, err := ix.Partition(Male)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 24}, p.Ages())

	_, err = p.At(12)
	assert.ErrorIs(t, err, ErrNoReference)

	ages, values := p.Series("SD0")
	assert.Equal(t, []float64{0, 24}, ages)
	assert.Equal(t, []float64{13, 16}, values)

	ages, _ = p.Series("SD1")
	assert.Empty(t, ages)
}

func TestPartition_Floor(t *testing.T) {
	rows := []ReferenceRow{
		{Sex: Male, AgeMonths: 12, Levels: map[string]float64{"SD0": 15}},
		{Sex: Male, AgeMonths: 24, Levels: map[string]float64{"SD0": 16}},
		{Sex: Male, AgeMonths: 24.5, Levels: map[string]float64{"SD0": 16.1}},
	}
	ix, err := NewIndex("X", nil, rows)
	require.NoError(t, err)
	p, err := ix.Partition(Male)
	require.NoError(t, err)

	tests := []struct {
		age  float64
		want float64
	}{
		{12, 12},
		{23.99, 12},
		{24, 24},
		{24.4, 24},
		{24.5 - 1e-9, 24.5},
		{1.1 * 12, 12},
		{300, 24.5},
	}
	for _, tt := range tests {
		r, err := p.Floor(tt.age)
		require.NoError(t, err, tt.age)
		assert.Equal(t, tt.want, r.AgeMonths, tt.age)
	}

	_, err = p.Floor(11.5)
	assert.ErrorIs(t, err, ErrNoReference)
}

func TestIndex_MaxAge(t *testing.T) {
	ix := fixtureIndex(t, false)
	for _, sex := range []Sex{Male, Female} {
		age, err := ix.MaxAge(sex)
		require.NoError(t, err)
		assert.Equal(t, float64(fixtureMaxAge), age)
	}

	_, err := ix.MaxAge(Sex(3))
	assert.ErrorIs(t, err, ErrInvalidSex)

	males, err := NewIndex("X", nil, []ReferenceRow{{Sex: Male, AgeMonths: 7, Levels: map[string]float64{"SD0": 14}}})
	require.NoError(t, err)
	age, err := males.MaxAge(Male)
	require.NoError(t, err)
	assert.Equal(t, 7.0, age)
	_, err = males.MaxAge(Female)
	assert.ErrorIs(t, err, ErrNoReference)
}

func TestNewIndex_InvalidSex(t *testing.T) {
	rows := []ReferenceRow{{Sex: 3, AgeMonths: 0}}
	_, err := NewIndex("X", nil, rows)
	assert.ErrorIs(t, err, ErrInvalidSex)
}

func TestNewIndex_DuplicateAge(t *testing.T) {
	rows := []ReferenceRow{
		{Sex: Female, AgeMonths: 5},
		{Sex: Male, AgeMonths: 5},
		{Sex: Female, AgeMonths: 5},
	}
	_, err := NewIndex("X", nil, rows)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestNewIndex_CopiesRows(t *testing.T) {
	rows := []ReferenceRow{{Sex: Male, AgeMonths: 0, Levels: map[string]float64{"SD0": 13}}}
	ix, err := NewIndex("X", nil, rows)
	require.NoError(t, err)

	rows[0].Levels["SD0"] = 99
	p, _ := ix.Partition(Male)
	r, err := p.At(0)
	require.NoError(t, err)
	assert.Equal(t, 13.0, r.Levels["SD0"])
}

func TestSDLevels_Ordered(t *testing.T) {
	ix, err := NewIndex("X", []string{"SD1", "SD2neg", "SD0", "BMI_25", "SD1neg"}, nil)
	require.NoError(t, err)

	var names []string
	for _, l := range ix.SDLevels() {
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"SD2neg", "SD1neg", "SD0", "SD1"}, names)
}

func TestBuildIndex_FromTable(t *testing.T) {
	ix, err := BuildIndex(fixtureSystem, fixtureTable(t), DefaultSexColumn, DefaultAgeColumn)
	require.NoError(t, err)
	assert.Equal(t, fixtureLevels(), ix.Levels())
	assert.True(t, ix.HasLMS())

	p, err := ix.Partition(Female)
	require.NoError(t, err)
	r, err := p.At(216)
	require.NoError(t, err)
	require.NotNil(t, r.LMS)
	assert.Equal(t, fixtureLMS(Female, 216), *r.LMS)
	assert.Equal(t, fixtureLevel(Female, 216, 2), r.Levels["SD2"])
}

func TestBuildIndex_SkipsTextAndBlankCells(t *testing.T) {
	tbl, err := table.New(
		[]string{"sex", "age_months", "source", "BMI_25", "BMI_30"},
		[][]string{
			{"1", "24", "iotf", "19.8", "21.6"},
			{"2", "24", "iotf", "19.5", ""},
		})
	require.NoError(t, err)

	ix, err := BuildIndex("IOTF", tbl, "sex", "age_months")
	require.NoError(t, err)
	assert.Equal(t, []string{"BMI_25", "BMI_30"}, ix.Levels())
	assert.False(t, ix.HasLMS())

	p, _ := ix.Partition(Female)
	r, err := p.At(24)
	require.NoError(t, err)
	_, ok := r.Level("BMI_30")
	assert.False(t, ok)
}

func TestBuildIndex_Errors(t *testing.T) {
	tbl, err := table.New([]string{"sex", "age_months"}, [][]string{{"3", "0"}})
	require.NoError(t, err)
	_, err = BuildIndex("X", tbl, "sex", "age_months")
	assert.ErrorIs(t, err, ErrInvalidSex)

	_, err = BuildIndex("X", tbl, "gender", "age_months")
	assert.ErrorIs(t, err, ErrMissingField)

	tbl, err = table.New([]string{"sex", "age_months"}, [][]string{{"1", "0"}, {"1", "0"}})
	require.NoError(t, err)
	_, err = BuildIndex("X", tbl, "sex", "age_months")
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestIndex_Rows(t *testing.T) {
	ix := fixtureIndex(t, true)
	rows := ix.Rows()
	assert.Len(t, rows, 2*(fixtureMaxAge+1))
	assert.Equal(t, Male, rows[0].Sex)
	assert.Equal(t, Female, rows[len(rows)-1].Sex)
}
