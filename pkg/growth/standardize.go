package growth

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// AnchorAgeMonths is the 18-year reference row every score is projected onto.
	AnchorAgeMonths = 216.0
	// DefaultTailZ is the z above which the LMS model is replaced by the SD curves.
	DefaultTailZ = 3.0

	MethodLMS   = "lms"
	MethodCurve = "curve"

	labelFormat = "s-BMI: %.1f"
)

// Observation is one child measurement.
type Observation struct {
	Sex       Sex     `json:"sex" yaml:"sex"`
	AgeMonths float64 `json:"age_months" yaml:"age_months"`
	BMI       float64 `json:"bmi" yaml:"bmi"`
}

// Result is a standardized BMI at the age of the reference row it was read
// at. Z is the LMS z-score, or the SD index read off
// the curves when Method is curve.
type Result struct {
	System     string  `json:"system" yaml:"system"`
	Sex        Sex     `json:"sex" yaml:"sex"`
	AgeMonths  float64 `json:"age_months" yaml:"age_months"`
	BMI        float64 `json:"bmi" yaml:"bmi"`
	Z          float64 `json:"z" yaml:"z"`
	Percentile float64 `json:"percentile" yaml:"percentile"`
	Value      float64 `json:"value" yaml:"value"`
	Method     string  `json:"method" yaml:"method"`
	Label      string  `json:"label" yaml:"label"`
}

type Option func(*Standardizer)

// WithAnchorAge overrides the projection age (months).
func WithAnchorAge(months float64) Option {
	return func(s *Standardizer) {
		s.anchorAge = months
	}
}

// WithTailZ overrides the z above which SD curves are used instead of LMS.
func WithTailZ(z float64) Option {
	return func(s *Standardizer) {
		s.tailZ = z
	}
}

// Standardizer projects observations onto the anchor-age reference row. It
// holds no mutable state and is safe for concurrent use.
type Standardizer struct {
	index     *Index
	anchorAge float64
	tailZ     float64
	sdLevels  []SDLevel
	anchors   map[Sex]*ReferenceRow
	curves    map[Sex]*Curve
}

// NewStandardizer requires an anchor-age row for both sexes.
func NewStandardizer(ix *Index, opts ...Option) (*Standardizer, error) {
	if ix == nil {
		return nil, fmt.Errorf("%w: index required", ErrInvalidIndex)
	}

	s := &Standardizer{
		index:     ix,
		anchorAge: AnchorAgeMonths,
		tailZ:     DefaultTailZ,
		sdLevels:  ix.SDLevels(),
		anchors:   make(map[Sex]*ReferenceRow, 2),
		curves:    make(map[Sex]*Curve, 2),
	}
	for _, o := range opts {
		o(s)
	}

	for _, sex := range []Sex{Male, Female} {
		p, err := ix.Partition(sex)
		if err != nil {
			return nil, err
		}
		row, err := p.At(s.anchorAge)
		if err != nil {
			return nil, fmt.Errorf("%w: %s has no %g-month anchor row", ErrInvalidIndex, ix.System(), s.anchorAge)
		}
		s.anchors[sex] = row

		// LMS-only systems have no anchor curve, the curve path then reports no reference
		if c, err := s.sdCurve(row); err == nil {
			s.curves[sex] = c
		}
	}

	return s, nil
}

func (s *Standardizer) Index() *Index {
	return s.index
}

func (s *Standardizer) AnchorAge() float64 {
	return s.anchorAge
}

// Standardize computes the s-BMI of obs. Up to the tail z the closed-form LMS
// inverse at the anchor row is used; above it, or when the reference carries
// no LMS parameters, the child's SD index is read off the age row curves and
// evaluated on the anchor row curves.
func (s *Standardizer) Standardize(obs Observation) (*Result, error) {
	row, anchor, err := s.lookup(obs)
	if err != nil {
		return nil, err
	}

	if row.LMS != nil && anchor.LMS != nil {
		z, err := ZScore(obs.BMI, *row.LMS)
		if err != nil {
			return nil, err
		}
		if z <= s.tailZ {
			v, err := InverseZScore(z, *anchor.LMS)
			if err != nil {
				return nil, err
			}
			return s.result(obs, row, z, v, MethodLMS), nil
		}
	}

	z, err := s.curveZScore(obs.BMI, row)
	if err != nil {
		return nil, err
	}
	v, err := s.AnchorValue(obs.Sex, z)
	if err != nil {
		return nil, err
	}
	return s.result(obs, row, z, v, MethodCurve), nil
}

// CurveZScore returns the SD index of obs interpolated on its age row curves.
func (s *Standardizer) CurveZScore(obs Observation) (float64, error) {
	row, _, err := s.lookup(obs)
	if err != nil {
		return 0, err
	}
	return s.curveZScore(obs.BMI, row)
}

// AnchorValue evaluates the anchor row curves of sex at SD index z.
func (s *Standardizer) AnchorValue(sex Sex, z float64) (float64, error) {
	if !sex.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSex, int(sex))
	}
	c, ok := s.curves[sex]
	if !ok {
		return 0, fmt.Errorf("%w: %s has no SD curves at %g months", ErrNoReference, s.index.System(), s.anchorAge)
	}
	return c.At(z)
}

// ProjectCurve is the curve-only projection: SD index at age, then the anchor
// row value at that index.
func (s *Standardizer) ProjectCurve(obs Observation) (z, value float64, err error) {
	return s.projectCurve(obs, nil)
}

// projectCurve applies roundZ, when set, to the SD index before it is
// evaluated on the anchor row.
func (s *Standardizer) projectCurve(obs Observation, roundZ func(float64) float64) (z, value float64, err error) {
	if z, err = s.CurveZScore(obs); err != nil {
		return 0, 0, err
	}
	if roundZ != nil {
		z = roundZ(z)
	}
	if value, err = s.AnchorValue(obs.Sex, z); err != nil {
		return 0, 0, err
	}
	return z, value, nil
}

func (s *Standardizer) lookup(obs Observation) (row, anchor *ReferenceRow, err error) {
	if !obs.Sex.Valid() {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidSex, int(obs.Sex))
	}
	if math.IsNaN(obs.AgeMonths) || obs.AgeMonths < 0 || obs.AgeMonths > s.anchorAge {
		return nil, nil, fmt.Errorf("%w: %g months", ErrAgeOutOfRange, obs.AgeMonths)
	}
	if !(obs.BMI > 0) || math.IsInf(obs.BMI, 0) {
		return nil, nil, fmt.Errorf("%w: bmi %g", ErrInvalidMeasurement, obs.BMI)
	}

	p, err := s.index.Partition(obs.Sex)
	if err != nil {
		return nil, nil, err
	}
	if row, err = p.Floor(obs.AgeMonths); err != nil {
		return nil, nil, err
	}
	return row, s.anchors[obs.Sex], nil
}

func (s *Standardizer) curveZScore(bmi float64, row *ReferenceRow) (float64, error) {
	c, err := s.sdCurve(row)
	if err != nil {
		return 0, err
	}
	inv, err := c.Invert()
	if err != nil {
		return 0, fmt.Errorf("SD curves cross at %g months: %w", row.AgeMonths, err)
	}
	return inv.At(bmi)
}

// sdCurve pairs the SD index of each SD level with its value in row.
func (s *Standardizer) sdCurve(row *ReferenceRow) (*Curve, error) {
	xs := make([]float64, 0, len(s.sdLevels))
	ys := make([]float64, 0, len(s.sdLevels))
	for _, l := range s.sdLevels {
		if v, ok := row.Levels[l.Name]; ok && finite(v) {
			xs = append(xs, l.SD)
			ys = append(ys, v)
		}
	}
	if len(xs) < minCurvePoints {
		return nil, fmt.Errorf("%w: %s has no SD curves at %g months", ErrNoReference, s.index.System(), row.AgeMonths)
	}
	return NewCurve(xs, ys)
}

// result reports the age of the reference row the observation was read at.
func (s *Standardizer) result(obs Observation, row *ReferenceRow, z, v float64, method string) *Result {
	return &Result{
		System:     s.index.System(),
		Sex:        obs.Sex,
		AgeMonths:  row.AgeMonths,
		BMI:        obs.BMI,
		Z:          z,
		Percentile: distuv.UnitNormal.CDF(z) * 100,
		Value:      v,
		Method:     method,
		Label:      fmt.Sprintf(labelFormat, v),
	}
}
