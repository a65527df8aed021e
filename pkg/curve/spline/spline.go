// Package spline implements 1-D interpolating curves over a fixed set of
// control points. Coefficients are computed once at construction;
// evaluation is a binary search over the segments.
package spline

import (
	"errors"
	"fmt"
	"github.com/pkok/behavior-engine/pkg/curve"
	"math"
	"sort"
)

// ErrNoControlPoints indicates construction from an empty point list.
var ErrNoControlPoints = errors.New("spline: no control points")

// Interpolation selects how values between control points are produced.
type Interpolation uint8

const (
	// Linear interpolates straight segments between neighboring points.
	Linear Interpolation = iota
	// StepBefore holds the next point's value across each segment.
	StepBefore
	// StepAfter holds the previous point's value across each segment.
	StepAfter
	// Monotone is the Fritsch-Carlson monotone cubic: smooth, and never
	// overshoots the control values on monotone runs.
	Monotone
)

func (i Interpolation) String() string {
	switch i {
	case Linear:
		return "linear"
	case StepBefore:
		return "step-before"
	case StepAfter:
		return "step-after"
	case Monotone:
		return "monotone"
	default:
		return "?"
	}
}

// Point is a control point.
type Point struct {
	X, Y float64
}

func (p Point) String() string {
	return fmt.Sprintf("(%v,%v)", p.X, p.Y)
}

// Spline is an immutable curve through ordered control points. Outside the
// control range the endpoint value is returned.
type Spline struct {
	interp Interpolation
	xs, ys []float64

	// Monotone segment coefficients: tangents c1 (per point) and the
	// quadratic/cubic terms c2, c3 (per segment).
	c1, c2, c3 []float64
}

// New constructs a spline over the given control points. The points are
// sorted stably by x if not already ordered. A single point yields a
// constant curve.
func New(interp Interpolation, points []Point) (*Spline, error) {
	if len(points) == 0 {
		return nil, ErrNoControlPoints
	}

	pts := make([]Point, len(points))
	copy(pts, points)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].X < pts[j].X })

	s := &Spline{
		interp: interp,
		xs:     make([]float64, len(pts)),
		ys:     make([]float64, len(pts)),
	}
	for i, p := range pts {
		s.xs[i] = p.X
		s.ys[i] = p.Y
	}
	if interp == Monotone && len(pts) > 1 {
		s.precompute()
	}
	return s, nil
}

// precompute fills in the Fritsch-Carlson coefficients.
func (s *Spline) precompute() {
	n := len(s.xs)

	dx := make([]float64, n-1)
	m := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		dx[i] = s.xs[i+1] - s.xs[i]
		m[i] = (s.ys[i+1] - s.ys[i]) / dx[i]
	}

	c1 := make([]float64, n)
	c1[0] = m[0]
	c1[n-1] = m[n-2]
	for i := 1; i < n-1; i++ {
		if m[i-1]*m[i] <= 0 {
			// Local extremum: flat tangent keeps the curve monotone.
			c1[i] = 0
			continue
		}
		common := dx[i-1] + dx[i]
		c1[i] = 3 * common / ((common+dx[i])/m[i-1] + (common+dx[i-1])/m[i])
	}

	c2 := make([]float64, n-1)
	c3 := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		common := c1[i] + c1[i+1] - 2*m[i]
		inv := 1 / dx[i]
		c2[i] = (m[i] - c1[i] - common) * inv
		c3[i] = common * inv * inv
	}

	s.c1, s.c2, s.c3 = c1, c2, c3
}

// Eval returns the curve value at x, or NaN if x is NaN.
func (s *Spline) Eval(x float64) float64 {
	n := len(s.xs)
	if math.IsNaN(x) {
		return x
	}
	if x <= s.xs[0] {
		return s.ys[0]
	}
	if x >= s.xs[n-1] {
		return s.ys[n-1]
	}

	// Smallest i with xs[i] >= x. The boundary checks above guarantee
	// 0 < i < n.
	i := sort.SearchFloat64s(s.xs, x)
	if s.xs[i] == x {
		return s.ys[i]
	}
	i--

	switch s.interp {
	case StepBefore:
		return s.ys[i+1]
	case StepAfter:
		return s.ys[i]
	case Monotone:
		d := x - s.xs[i]
		return s.ys[i] + s.c1[i]*d + s.c2[i]*d*d + s.c3[i]*d*d*d
	default:
		t := (x - s.xs[i]) / (s.xs[i+1] - s.xs[i])
		return (1-t)*s.ys[i] + t*s.ys[i+1]
	}
}

// Utility implements curve.Curve: the reading is normalized into the
// control domain and the result clipped into [0,1].
func (s *Spline) Utility(v, lo, hi float64) float64 {
	return curve.Clip(s.Eval(curve.Scale(v, lo, hi)))
}

// Interpolation returns the interpolation scheme.
func (s *Spline) Interpolation() Interpolation {
	return s.interp
}

// Points returns a copy of the ordered control points.
func (s *Spline) Points() []Point {
	ret := make([]Point, len(s.xs))
	for i := range s.xs {
		ret[i] = Point{X: s.xs[i], Y: s.ys[i]}
	}
	return ret
}

func (s *Spline) String() string {
	return fmt.Sprintf("spline[%v]%v", s.interp, s.Points())
}
