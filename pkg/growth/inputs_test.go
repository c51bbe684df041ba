package growth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 {
	return &v
}

func TestInputs_Resolve(t *testing.T) {
	tests := []struct {
		name string
		in   Inputs
		age  float64
		err  bool
	}{
		{"nothing", Inputs{Sex: Male}, 0, true},
		{"bmi only", Inputs{Sex: Male, BMI: ptr(17)}, 0, true},
		{"age only", Inputs{Sex: Male, AgeYears: ptr(5)}, 0, true},
		{"years", Inputs{Sex: Male, AgeYears: ptr(5), BMI: ptr(17)}, 60, false},
		{"months", Inputs{Sex: Male, AgeMonths: ptr(61), BMI: ptr(17)}, 61, false},
		{"years and months", Inputs{Sex: Male, AgeYears: ptr(5), AgeMonths: ptr(3), BMI: ptr(17)}, 63, false},
		{"fractional years", Inputs{Sex: Male, AgeYears: ptr(1.5), BMI: ptr(17)}, 18, false},
		{"newborn", Inputs{Sex: Female, AgeYears: ptr(0), AgeMonths: ptr(0), BMI: ptr(13)}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := tt.in.Resolve()
			if tt.err {
				assert.ErrorIs(t, err, ErrInputsIncomplete)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.age, obs.AgeMonths)
			assert.Equal(t, tt.in.Sex, obs.Sex)
			assert.Equal(t, *tt.in.BMI, obs.BMI)
		})
	}
}

func TestOutcome(t *testing.T) {
	s := fixtureStandardizer(t, true)

	o := s.Outcome(Inputs{Sex: Male, AgeYears: ptr(5)})
	assert.Equal(t, StatusIncomplete, o.Status)
	assert.Equal(t, KindInputsIncomplete, o.Kind)
	assert.Nil(t, o.Result)

	o = s.Outcome(Inputs{Sex: Male, AgeYears: ptr(5), BMI: ptr(fixtureLevel(Male, 60, 1))})
	assert.Equal(t, StatusOK, o.Status)
	require.NotNil(t, o.Result)
	assert.InDelta(t, 1.0, o.Result.Z, tolerance)

	o = s.Outcome(Inputs{Sex: Male, AgeYears: ptr(19), BMI: ptr(22)})
	assert.Equal(t, StatusError, o.Status)
	assert.Equal(t, KindAgeOutOfRange, o.Kind)
	assert.NotEmpty(t, o.Message)

	o = s.Outcome(Inputs{Sex: Female, AgeYears: ptr(0), AgeMonths: ptr(0), BMI: ptr(fixtureLevel(Female, 0, 0))})
	assert.Equal(t, StatusOK, o.Status)
}

func TestOutcome_FractionalYears(t *testing.T) {
	s := fixtureStandardizer(t, true)
	tests := []struct {
		years float64
		month float64
	}{
		{5.3, 63},
		{1.1, 13},
		{17.99, 215},
		{0.01, 0},
	}
	for _, tt := range tests {
		o := s.Outcome(Inputs{Sex: Male, AgeYears: ptr(tt.years), BMI: ptr(fixtureLevel(Male, tt.month, 1))})
		require.Equal(t, StatusOK, o.Status, o.Message)
		require.NotNil(t, o.Result)
		assert.Equal(t, tt.month, o.Result.AgeMonths, tt.years)
		assert.InDelta(t, 1.0, o.Result.Z, tolerance, tt.years)
	}
}
