package growth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/mchmarny/sbmi/pkg/table"
	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultOutputColumn = "R-BMI"
	DefaultBMIColumn    = "bmi"
	DefaultWorkers      = 4
	UnavailableMarker   = "NA"

	zDecimals     = 2
	valueDecimals = 1
)

type AgeUnit string

const (
	AgeInMonths AgeUnit = "months"
	AgeInYears  AgeUnit = "years"
)

func ParseAgeUnit(v string) (AgeUnit, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "months", "month", "m":
		return AgeInMonths, nil
	case "years", "year", "y":
		return AgeInYears, nil
	default:
		return "", fmt.Errorf("unsupported age unit: %s", v)
	}
}

// BatchOptions name the input columns and the output column.
type BatchOptions struct {
	SexColumn    string  `json:"sex_column" yaml:"sex_column"`
	BMIColumn    string  `json:"bmi_column" yaml:"bmi_column"`
	AgeColumn    string  `json:"age_column" yaml:"age_column"`
	AgeUnit      AgeUnit `json:"age_unit" yaml:"age_unit"`
	OutputColumn string  `json:"output_column" yaml:"output_column"`
	Workers      int     `json:"workers" yaml:"workers"`
}

func (o *BatchOptions) normalize() error {
	if o.SexColumn == "" {
		o.SexColumn = DefaultSexColumn
	}
	if o.BMIColumn == "" {
		o.BMIColumn = DefaultBMIColumn
	}
	if o.AgeColumn == "" {
		o.AgeColumn = DefaultAgeColumn
	}
	if o.OutputColumn == "" {
		o.OutputColumn = DefaultOutputColumn
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	u, err := ParseAgeUnit(string(o.AgeUnit))
	if err != nil {
		return err
	}
	o.AgeUnit = u
	return nil
}

// RowResult is the outcome of one input row: a value when Kind is empty,
// otherwise the failure kind and message.
type RowResult struct {
	Index     int       `json:"index" yaml:"index"`
	Sex       Sex       `json:"sex,omitempty" yaml:"sex,omitempty"`
	AgeMonths float64   `json:"age_months,omitempty" yaml:"age_months,omitempty"`
	BMI       float64   `json:"bmi,omitempty" yaml:"bmi,omitempty"`
	Z         float64   `json:"z,omitempty" yaml:"z,omitempty"`
	Value     float64   `json:"value,omitempty" yaml:"value,omitempty"`
	Kind      ErrorKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Message   string    `json:"message,omitempty" yaml:"message,omitempty"`
}

func (r RowResult) Failed() bool {
	return r.Kind != KindNone
}

type RowFailure struct {
	Index   int       `json:"index" yaml:"index"`
	Kind    ErrorKind `json:"kind" yaml:"kind"`
	Message string    `json:"message" yaml:"message"`
}

// Summary describes the successfully standardized values of a batch.
type Summary struct {
	Total     int     `json:"total" yaml:"total"`
	Succeeded int     `json:"succeeded" yaml:"succeeded"`
	Failed    int     `json:"failed" yaml:"failed"`
	Mean      float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
	Median    float64 `json:"median,omitempty" yaml:"median,omitempty"`
	Min       float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       float64 `json:"max,omitempty" yaml:"max,omitempty"`
	P85       float64 `json:"p85,omitempty" yaml:"p85,omitempty"`
	P95       float64 `json:"p95,omitempty" yaml:"p95,omitempty"`
}

// BatchResult holds the augmented table, one result per input row and the
// failed rows.
type BatchResult struct {
	Table   *table.Table `json:"-" yaml:"-"`
	Rows    []RowResult  `json:"rows" yaml:"rows"`
	Failed  []RowFailure `json:"failed" yaml:"failed"`
	Summary Summary      `json:"summary" yaml:"summary"`
}

// FailedIndexes returns the input row indexes that produced no value.
func (r *BatchResult) FailedIndexes() []int {
	list := make([]int, len(r.Failed))
	for i, f := range r.Failed {
		list[i] = f.Index
	}
	return list
}

// Batch standardizes tables with the SD-curve projection.
type Batch struct {
	std *Standardizer
}

func NewBatch(std *Standardizer) (*Batch, error) {
	if std == nil {
		return nil, errors.New("standardizer required")
	}
	return &Batch{std: std}, nil
}

// Run standardizes every row of t. Row failures never abort the run: each row
// yields a value or a failure kind, and the output table has one row per input
// row. Only invalid options, a nil table or a cancelled context return an error.
func (b *Batch) Run(ctx context.Context, t *table.Table, opts BatchOptions) (*BatchResult, error) {
	if t == nil {
		return nil, errors.New("input table required")
	}
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	rows := make([]RowResult, t.Len())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i] = b.row(t, i, &opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch cancelled: %w", err)
	}

	res := &BatchResult{
		Rows:   rows,
		Failed: make([]RowFailure, 0),
	}

	values := make([]string, len(rows))
	ok := make([]float64, 0, len(rows))
	for i, r := range rows {
		if r.Failed() {
			values[i] = UnavailableMarker
			res.Failed = append(res.Failed, RowFailure{Index: i, Kind: r.Kind, Message: r.Message})
			slog.Debug("row not standardized", "row", i, "kind", r.Kind, "error", r.Message)
			continue
		}
		values[i] = strconv.FormatFloat(r.Value, 'f', valueDecimals, 64)
		ok = append(ok, r.Value)
	}

	res.Table = t.Clone()
	if err := res.Table.SetColumn(opts.OutputColumn, values); err != nil {
		return nil, fmt.Errorf("adding %s column: %w", opts.OutputColumn, err)
	}

	res.Summary = summarize(ok, len(rows))
	slog.Info("batch standardized",
		"system", b.std.Index().System(),
		"rows", res.Summary.Total,
		"failed", res.Summary.Failed,
	)

	return res, nil
}

func (b *Batch) row(t *table.Table, i int, opts *BatchOptions) (res RowResult) {
	res.Index = i
	fail := func(err error) RowResult {
		res.Kind = KindOf(err)
		res.Message = err.Error()
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			res.Kind = KindInternal
			res.Message = fmt.Sprintf("panic: %v", r)
		}
	}()

	sv, err := t.Value(i, opts.SexColumn)
	if err != nil || table.IsEmpty(sv) {
		return fail(fmt.Errorf("%w: %s", ErrMissingField, opts.SexColumn))
	}
	sex, err := ParseSex(sv)
	if err != nil {
		return fail(err)
	}
	res.Sex = sex

	bmi, err := t.Float(i, opts.BMIColumn)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrMissingField, err))
	}
	res.BMI = bmi

	raw, err := t.Float(i, opts.AgeColumn)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrMissingField, err))
	}
	if math.IsNaN(raw) || raw < 0 {
		return fail(fmt.Errorf("%w: %g", ErrAgeOutOfRange, raw))
	}
	if opts.AgeUnit == AgeInYears {
		raw *= monthsPerYear
	}
	age := wholeMonths(raw)
	res.AgeMonths = age

	if age > b.std.AnchorAge() {
		return fail(fmt.Errorf("%w: %g months", ErrAgeOutOfRange, age))
	}

	z, v, err := b.std.projectCurve(Observation{Sex: sex, AgeMonths: age, BMI: bmi}, func(z float64) float64 {
		return round(z, zDecimals)
	})
	if err != nil {
		return fail(err)
	}
	res.Z = z
	res.Value = round(v, valueDecimals)

	return res
}

func summarize(values []float64, total int) Summary {
	s := Summary{
		Total:     total,
		Succeeded: len(values),
		Failed:    total - len(values),
	}
	if len(values) == 0 {
		return s
	}

	data := stats.Float64Data(values)
	s.Mean, _ = data.Mean()
	s.Median, _ = data.Median()
	s.Min, _ = data.Min()
	s.Max, _ = data.Max()
	s.P85, _ = data.Percentile(85)
	s.P95, _ = data.Percentile(95)
	return s
}

// wholeMonths is the completed months of age, tolerating float noise from the
// years conversion.
func wholeMonths(age float64) float64 {
	return math.Floor(age + ageTolerance)
}

func round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
