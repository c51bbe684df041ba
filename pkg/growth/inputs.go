package growth

import (
	"errors"
	"fmt"
)

const monthsPerYear = 12

// Status of a single-observation outcome as the dashboard shows it.
type Status string

const (
	StatusOK         Status = "ok"
	StatusIncomplete Status = "incomplete"
	StatusError      Status = "error"
)

// Inputs are the raw dashboard controls. Nil means the control is empty.
type Inputs struct {
	Sex       Sex      `json:"sex" yaml:"sex"`
	AgeYears  *float64 `json:"age_years,omitempty" yaml:"age_years,omitempty"`
	AgeMonths *float64 `json:"age_months,omitempty" yaml:"age_months,omitempty"`
	BMI       *float64 `json:"bmi,omitempty" yaml:"bmi,omitempty"`
}

// Resolve turns the controls into an observation:
//
//	years  months  bmi   age
//	  -      -      *    incomplete
//	  *      *      -    incomplete
//	  y      -      b    y*12
//	  -      m      b    m
//	  y      m      b    y*12 + m
//
// Zero years and zero months is a newborn, not a missing age.
func (in Inputs) Resolve() (Observation, error) {
	if in.BMI == nil {
		return Observation{}, fmt.Errorf("%w: bmi", ErrInputsIncomplete)
	}

	var age float64
	switch {
	case in.AgeYears == nil && in.AgeMonths == nil:
		return Observation{}, fmt.Errorf("%w: age", ErrInputsIncomplete)
	case in.AgeYears != nil && in.AgeMonths == nil:
		age = *in.AgeYears * monthsPerYear
	case in.AgeYears == nil && in.AgeMonths != nil:
		age = *in.AgeMonths
	default:
		age = *in.AgeYears*monthsPerYear + *in.AgeMonths
	}

	return Observation{Sex: in.Sex, AgeMonths: age, BMI: *in.BMI}, nil
}

// StandardizeInputs resolves in and standardizes the observation.
func (s *Standardizer) StandardizeInputs(in Inputs) (*Result, error) {
	obs, err := in.Resolve()
	if err != nil {
		return nil, err
	}
	return s.Standardize(obs)
}

// Outcome is the single-observation result as rendered by the dashboard:
// a value, a neutral placeholder while inputs are missing, or an error.
type Outcome struct {
	Status  Status    `json:"status" yaml:"status"`
	Result  *Result   `json:"result,omitempty" yaml:"result,omitempty"`
	Kind    ErrorKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Message string    `json:"message,omitempty" yaml:"message,omitempty"`
}

func (s *Standardizer) Outcome(in Inputs) *Outcome {
	res, err := s.StandardizeInputs(in)
	switch {
	case err == nil:
		return &Outcome{Status: StatusOK, Result: res}
	case errors.Is(err, ErrInputsIncomplete):
		return &Outcome{Status: StatusIncomplete, Kind: KindInputsIncomplete, Message: err.Error()}
	default:
		return &Outcome{Status: StatusError, Kind: KindOf(err), Message: err.Error()}
	}
}
