package growth

import (
	"fmt"
	"math"
)

// LMS holds the Box-Cox power (L), median (M) and coefficient of variation (S)
// of a reference distribution at one age.
type LMS struct {
	L float64 `json:"l" yaml:"l"`
	M float64 `json:"m" yaml:"m"`
	S float64 `json:"s" yaml:"s"`
}

func (p LMS) Validate() error {
	if !(p.S > 0) || !(p.M > 0) || math.IsNaN(p.L) || math.IsInf(p.L, 0) {
		return fmt.Errorf("%w: L=%g M=%g S=%g", ErrInvalidLMS, p.L, p.M, p.S)
	}
	return nil
}

// ZScore maps bmi onto the distribution described by p:
//
//	z = ((bmi/M)^L - 1) / (L*S)
//
// L == 0 uses the limiting form z = ln(bmi/M) / S.
func ZScore(bmi float64, p LMS) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if !(bmi > 0) || math.IsInf(bmi, 0) {
		return 0, fmt.Errorf("%w: bmi %g", ErrInvalidMeasurement, bmi)
	}

	if p.L == 0 {
		return math.Log(bmi/p.M) / p.S, nil
	}
	return (math.Pow(bmi/p.M, p.L) - 1) / (p.L * p.S), nil
}

// InverseZScore returns the BMI at z:
//
//	bmi = M * (1 + L*S*z)^(1/L)
//
// The transform is undefined where 1 + L*S*z <= 0.
func InverseZScore(z float64, p LMS) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return 0, fmt.Errorf("%w: z %g", ErrInvalidMeasurement, z)
	}

	if p.L == 0 {
		return p.M * math.Exp(p.S*z), nil
	}

	base := 1 + p.L*p.S*z
	if base <= 0 {
		return 0, fmt.Errorf("%w: z %g beyond the LMS domain (L=%g S=%g)", ErrOutOfRange, z, p.L, p.S)
	}
	return p.M * math.Pow(base, 1/p.L), nil
}
