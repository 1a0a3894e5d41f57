// Package spline fits smooth parametric 2D curves through ordered point
// sequences and exposes position and derivative queries on them.
package spline

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/interp"
)

// derivative step for the second-derivative central difference, in parameter
// space. The parameter always spans [0,1] so this is scale independent.
const d2Step = 1e-5

type predictor interface {
	Predict(x float64) float64
	PredictDerivative(x float64) float64
}

// Curve is a 2D parametric curve p(u), u in [0,1], fit through an ordered
// point sequence using chord-length parameterization. Degree 2 and above fits
// a natural cubic through the points, degree 1 a polyline.
type Curve struct {
	x, y   predictor
	params []float64
	degree int
}

// NewCurve fits a curve of the given degree through pts. The points must be
// finite and consecutive points must not coincide. If the cubic fit fails the
// fit is retried at degree 1 before the error is returned.
func NewCurve(pts []r2.Point, degree int) (*Curve, error) {
	if len(pts) < 2 {
		return nil, errors.Errorf("need at least 2 points to fit a curve, got %d", len(pts))
	}
	if degree < 1 {
		degree = 1
	}
	if degree > len(pts)-1 {
		degree = len(pts) - 1
	}

	params := chordParams(pts)
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p.X
		ys[i] = p.Y
	}

	fit := func(deg int) (predictor, predictor, error) {
		if deg >= 2 {
			var cx, cy interp.NaturalCubic
			if err := cx.Fit(params, xs); err != nil {
				return nil, nil, err
			}
			if err := cy.Fit(params, ys); err != nil {
				return nil, nil, err
			}
			return &cx, &cy, nil
		}
		lx, err := newLinearPredictor(params, xs)
		if err != nil {
			return nil, nil, err
		}
		ly, err := newLinearPredictor(params, ys)
		if err != nil {
			return nil, nil, err
		}
		return lx, ly, nil
	}

	px, py, err := fit(degree)
	if err != nil && degree > 1 {
		degree = 1
		px, py, err = fit(1)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "curve fit failed for %d points", len(pts))
	}
	return &Curve{x: px, y: py, params: params, degree: degree}, nil
}

// Degree returns the effective degree the curve was fit at.
func (c *Curve) Degree() int {
	return c.degree
}

// At evaluates the curve position at parameter u, clamped to [0,1].
func (c *Curve) At(u float64) r2.Point {
	u = clamp01(u)
	return r2.Point{X: c.x.Predict(u), Y: c.y.Predict(u)}
}

// Derivative evaluates dp/du at parameter u, clamped to [0,1].
func (c *Curve) Derivative(u float64) r2.Point {
	u = clamp01(u)
	return r2.Point{X: c.x.PredictDerivative(u), Y: c.y.PredictDerivative(u)}
}

// SecondDerivative evaluates d²p/du² at parameter u via a central difference
// over the first derivative, one-sided at the ends of the parameter range.
func (c *Curve) SecondDerivative(u float64) r2.Point {
	u = clamp01(u)
	lo := math.Max(0, u-d2Step)
	hi := math.Min(1, u+d2Step)
	if hi <= lo {
		return r2.Point{}
	}
	dLo := c.Derivative(lo)
	dHi := c.Derivative(hi)
	inv := 1.0 / (hi - lo)
	return r2.Point{X: (dHi.X - dLo.X) * inv, Y: (dHi.Y - dLo.Y) * inv}
}

// linearPredictor wraps interp.PiecewiseLinear with the segment-slope
// derivative the predictor interface needs; gonum only provides derivatives
// on its spline fits.
type linearPredictor struct {
	pl interp.PiecewiseLinear
	xs []float64
	ys []float64
}

func newLinearPredictor(xs, ys []float64) (*linearPredictor, error) {
	lp := &linearPredictor{
		xs: append([]float64(nil), xs...),
		ys: append([]float64(nil), ys...),
	}
	if err := lp.pl.Fit(lp.xs, lp.ys); err != nil {
		return nil, err
	}
	return lp, nil
}

func (lp *linearPredictor) Predict(x float64) float64 {
	return lp.pl.Predict(x)
}

// PredictDerivative returns the slope of the segment containing x. At a
// shared knot the left segment wins, so the ends are one-sided.
func (lp *linearPredictor) PredictDerivative(x float64) float64 {
	n := len(lp.xs)
	if n < 2 {
		return 0
	}
	i := sort.SearchFloat64s(lp.xs, x)
	if i < 1 {
		i = 1
	}
	if i > n-1 {
		i = n - 1
	}
	dx := lp.xs[i] - lp.xs[i-1]
	if dx == 0 {
		return 0
	}
	return (lp.ys[i] - lp.ys[i-1]) / dx
}

// chordParams returns the normalized cumulative chord-length parameterization
// of pts, spanning [0,1] and strictly increasing for distinct points.
func chordParams(pts []r2.Point) []float64 {
	params := make([]float64, len(pts))
	for i := 1; i < len(pts); i++ {
		params[i] = params[i-1] + pts[i].Sub(pts[i-1]).Norm()
	}
	total := params[len(params)-1]
	if total <= 0 {
		// Degenerate input; fall back to a uniform parameterization.
		for i := range params {
			params[i] = float64(i) / float64(len(params)-1)
		}
		return params
	}
	for i := range params {
		params[i] /= total
	}
	return params
}

func clamp01(u float64) float64 {
	if u < 0 {
		return 0
	}
	if u > 1 {
		return 1
	}
	return u
}
