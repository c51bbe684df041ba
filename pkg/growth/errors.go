package growth

import (
	"errors"
)

// ErrorKind classifies a standardization failure for reporting.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindInvalidSex       ErrorKind = "invalid_sex"
	KindAgeOutOfRange    ErrorKind = "age_out_of_range"
	KindOutOfRange       ErrorKind = "out_of_range"
	KindMissingField     ErrorKind = "missing_field"
	KindNoReference      ErrorKind = "no_reference"
	KindInvalidLMS       ErrorKind = "invalid_lms"
	KindInvalidInput     ErrorKind = "invalid_input"
	KindInputsIncomplete ErrorKind = "inputs_incomplete"
	KindInternal         ErrorKind = "internal"
)

var (
	ErrInvalidSex         = errors.New("sex must be 1 (male) or 2 (female)")
	ErrAgeOutOfRange      = errors.New("age outside the supported 0-216 month range")
	ErrOutOfRange         = errors.New("value outside the reference grid")
	ErrMissingField       = errors.New("missing or unreadable field")
	ErrNoReference        = errors.New("no reference data at this age")
	ErrInvalidLMS         = errors.New("invalid LMS parameters")
	ErrInvalidMeasurement = errors.New("invalid measurement")
	ErrInputsIncomplete   = errors.New("inputs incomplete")
	ErrInvalidCurve       = errors.New("invalid curve")
	ErrInvalidIndex       = errors.New("invalid reference index")
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInputsIncomplete, KindInputsIncomplete},
	{ErrMissingField, KindMissingField},
	{ErrInvalidSex, KindInvalidSex},
	{ErrAgeOutOfRange, KindAgeOutOfRange},
	{ErrNoReference, KindNoReference},
	{ErrOutOfRange, KindOutOfRange},
	{ErrInvalidLMS, KindInvalidLMS},
	{ErrInvalidMeasurement, KindInvalidInput},
}

// KindOf maps err onto its ErrorKind. Unclassified errors are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
