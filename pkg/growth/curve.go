package growth

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

const minCurvePoints = 2

// Curve is a piecewise-linear function over strictly monotonic x. Values
// outside the x range are never extrapolated.
type Curve struct {
	xs []float64
	ys []float64
}

// NewCurve copies the points. x may be strictly increasing or strictly
// decreasing; the curve is stored in increasing x order.
func NewCurve(xs, ys []float64) (*Curve, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: %d x values, %d y values", ErrInvalidCurve, len(xs), len(ys))
	}
	if len(xs) < minCurvePoints {
		return nil, fmt.Errorf("%w: at least %d points required, got %d", ErrInvalidCurve, minCurvePoints, len(xs))
	}
	for i := range xs {
		if !finite(xs[i]) || !finite(ys[i]) {
			return nil, fmt.Errorf("%w: non-finite point (%g, %g)", ErrInvalidCurve, xs[i], ys[i])
		}
	}

	c := &Curve{xs: slices.Clone(xs), ys: slices.Clone(ys)}
	if c.xs[0] > c.xs[1] {
		slices.Reverse(c.xs)
		slices.Reverse(c.ys)
	}
	if !strictlyIncreasing(c.xs) {
		return nil, fmt.Errorf("%w: x values are not strictly monotonic", ErrInvalidCurve)
	}

	return c, nil
}

func (c *Curve) Len() int {
	return len(c.xs)
}

// Domain returns the smallest and largest x.
func (c *Curve) Domain() (lo, hi float64) {
	return c.xs[0], c.xs[len(c.xs)-1]
}

// At interpolates y at x. A grid x returns its y exactly.
func (c *Curve) At(x float64) (float64, error) {
	lo, hi := c.Domain()
	if math.IsNaN(x) || x < lo || x > hi {
		return 0, fmt.Errorf("%w: %g not in [%g, %g]", ErrOutOfRange, x, lo, hi)
	}

	i := sort.SearchFloat64s(c.xs, x)
	if c.xs[i] == x {
		return c.ys[i], nil
	}

	x0, x1 := c.xs[i-1], c.xs[i]
	y0, y1 := c.ys[i-1], c.ys[i]
	return y0 + (x-x0)*(y1-y0)/(x1-x0), nil
}

// Invert swaps the axes. y must be strictly monotonic.
func (c *Curve) Invert() (*Curve, error) {
	return NewCurve(c.ys, c.xs)
}

func strictlyIncreasing(v []float64) bool {
	for i := 1; i < len(v); i++ {
		if v[i] <= v[i-1] {
			return false
		}
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
