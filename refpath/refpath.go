// Package refpath builds smooth reference paths over waypoint sequences and
// answers geometric queries on them by arclength: position, tangent, normal,
// curvature, and closest-point projection. It also contains the corridor
// offset optimizer that produces a length-efficient path inside a tunnel.
package refpath

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/steeringlab/cursorplan/spline"
)

// ErrInvalidPath is returned when a waypoint set cannot produce a usable
// path: fewer than two distinct finite points, or a curve fit that fails
// even after the linear-degree retry.
var ErrInvalidPath = errors.New("invalid path: need at least 2 distinct finite waypoints")

const (
	// denseSamples is the resolution of the arclength lookup table.
	denseSamples = 1000
	// dupTol is the minimum distance between consecutive waypoints.
	dupTol = 1e-10
	// collinearNudge breaks exact collinearity so a cubic fit has curvature to work with.
	collinearNudge = 1e-6

	closestMaxIter = 5
	closestTol     = 1e-6
)

// Path is an immutable smooth reference path. All exported queries take an
// arclength theta in [0, TotalLength] and clamp out-of-range values.
type Path struct {
	curve       *spline.Curve
	waypoints   []r2.Point
	uDense      []float64
	arclengths  []float64
	totalLength float64
}

// NewPath fits a path of the given spline degree through the waypoints.
// Smoothing of 0 interpolates exactly; positive smoothing applies that many
// rounded Laplacian averaging passes over interior waypoints before the fit.
// The degree is capped at count-1. Non-finite waypoints are dropped and
// near-duplicate consecutive waypoints are merged before fitting.
func NewPath(waypoints []r2.Point, smoothing float64, degree int) (*Path, error) {
	pts, err := prepareWaypoints(waypoints)
	if err != nil {
		return nil, err
	}
	if smoothing > 0 {
		pts = smoothWaypoints(pts, int(math.Ceil(smoothing)))
	}

	if degree > len(pts)-1 {
		degree = len(pts) - 1
	}
	curve, err := spline.NewCurve(pts, degree)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidPath, err.Error())
	}

	p := &Path{
		curve:      curve,
		waypoints:  pts,
		uDense:     make([]float64, denseSamples),
		arclengths: make([]float64, denseSamples),
	}
	prev := curve.At(0)
	for i := 1; i < denseSamples; i++ {
		u := float64(i) / float64(denseSamples-1)
		p.uDense[i] = u
		cur := curve.At(u)
		p.arclengths[i] = p.arclengths[i-1] + cur.Sub(prev).Norm()
		prev = cur
	}
	p.totalLength = p.arclengths[denseSamples-1]
	return p, nil
}

// TotalLength returns the approximate arclength of the whole path.
func (p *Path) TotalLength() float64 {
	return p.totalLength
}

// Waypoints returns the cleaned waypoint sequence the path was fit through.
func (p *Path) Waypoints() []r2.Point {
	out := make([]r2.Point, len(p.waypoints))
	copy(out, p.waypoints)
	return out
}

// At evaluates the path position at arclength theta.
func (p *Path) At(theta float64) r2.Point {
	return p.curve.At(p.thetaToU(theta))
}

// Tangent returns the unit tangent at arclength theta. A degenerate
// derivative yields the fixed default heading (1, 0).
func (p *Path) Tangent(theta float64) r2.Point {
	d := p.curve.Derivative(p.thetaToU(theta))
	n := d.Norm()
	if n < 1e-9 {
		return r2.Point{X: 1, Y: 0}
	}
	return d.Mul(1 / n)
}

// Normal returns the right-pointing unit normal at arclength theta,
// the tangent rotated so that normal = (tangent.y, -tangent.x).
func (p *Path) Normal(theta float64) r2.Point {
	t := p.Tangent(theta)
	return r2.Point{X: t.Y, Y: -t.X}
}

// Curvature returns the signed curvature at arclength theta.
func (p *Path) Curvature(theta float64) float64 {
	u := p.thetaToU(theta)
	d := p.curve.Derivative(u)
	dd := p.curve.SecondDerivative(u)
	den := math.Pow(d.X*d.X+d.Y*d.Y, 1.5)
	if den < 1e-12 {
		return 0
	}
	return (d.X*dd.Y - d.Y*dd.X) / den
}

// ClosestTheta returns the arclength of the point on the path closest to pos.
func (p *Path) ClosestTheta(pos r2.Point) float64 {
	return p.closestTheta(pos, math.NaN(), math.NaN())
}

// ClosestThetaFrom behaves like ClosestTheta but starts the refinement from
// the warm-start arclength guess and restricts the result to theta >= minTheta,
// enforcing forward progress. Pass NaN to leave either unset.
func (p *Path) ClosestThetaFrom(pos r2.Point, guess, minTheta float64) float64 {
	return p.closestTheta(pos, guess, minTheta)
}

func (p *Path) closestTheta(pos r2.Point, guess, minTheta float64) float64 {
	minU := 0.0
	if !math.IsNaN(minTheta) {
		minU = p.thetaToU(minTheta)
	}

	var u float64
	if !math.IsNaN(guess) {
		u = math.Max(p.thetaToU(guess), minU)
	} else {
		// Coarse scan over the dense table.
		best := math.Inf(1)
		for i, ui := range p.uDense {
			if ui < minU {
				continue
			}
			d := p.curve.At(ui).Sub(pos)
			d2 := d.X*d.X + d.Y*d.Y
			if d2 < best {
				best = d2
				u = p.uDense[i]
			}
		}
	}

	// Newton refinement on f(u) = |c(u) - pos|^2.
	for i := 0; i < closestMaxIter; i++ {
		c := p.curve.At(u)
		c1 := p.curve.Derivative(u)
		c2 := p.curve.SecondDerivative(u)
		r := c.Sub(pos)

		fPrime := 2 * (r.X*c1.X + r.Y*c1.Y)
		fSecond := 2 * ((c1.X*c1.X + c1.Y*c1.Y) + (r.X*c2.X + r.Y*c2.Y))
		if math.Abs(fSecond) < 1e-12 {
			break
		}
		du := -fPrime / fSecond
		if math.Abs(du) < closestTol {
			break
		}
		uNew := math.Min(math.Max(u+du, minU), 1)
		if math.Abs(uNew-u) < closestTol {
			u = uNew
			break
		}
		u = uNew
	}

	theta := p.uToTheta(u)
	if !math.IsNaN(minTheta) && theta < minTheta {
		theta = minTheta
	}
	return theta
}

func (p *Path) thetaToU(theta float64) float64 {
	theta = math.Min(math.Max(theta, 0), p.totalLength)
	return interpTable(p.arclengths, p.uDense, theta)
}

func (p *Path) uToTheta(u float64) float64 {
	return interpTable(p.uDense, p.arclengths, u)
}

// interpTable linearly interpolates ys over the non-decreasing xs table.
func interpTable(xs, ys []float64, x float64) float64 {
	n := len(xs)
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[n-1] {
		return ys[n-1]
	}
	i := sort.SearchFloat64s(xs, x)
	if xs[i] == x {
		return ys[i]
	}
	x0, x1 := xs[i-1], xs[i]
	if x1 == x0 {
		return ys[i]
	}
	frac := (x - x0) / (x1 - x0)
	return ys[i-1] + frac*(ys[i]-ys[i-1])
}

// prepareWaypoints drops non-finite entries, merges near-duplicate
// consecutive points, synthesizes interior points for 2- and 3-point inputs
// so a cubic always has enough knots, and nudges a middle point off the chord
// when the whole set is collinear.
func prepareWaypoints(waypoints []r2.Point) ([]r2.Point, error) {
	pts := make([]r2.Point, 0, len(waypoints))
	for _, wp := range waypoints {
		if !isFinite(wp) {
			continue
		}
		if len(pts) > 0 && wp.Sub(pts[len(pts)-1]).Norm() <= dupTol {
			continue
		}
		pts = append(pts, wp)
	}
	if len(pts) < 2 {
		return nil, ErrInvalidPath
	}

	if len(pts) == 2 {
		mid := pts[0].Add(pts[1]).Mul(0.5)
		pts = []r2.Point{pts[0], mid, pts[1]}
	}
	if len(pts) == 3 {
		// A fourth knot keeps the cubic fit well determined. It sits halfway
		// along the second segment, offset perpendicular to the chord so the
		// set cannot be exactly collinear.
		dir := pts[2].Sub(pts[0])
		perp := unitPerp(dir)
		extra := pts[1].Add(pts[2]).Mul(0.5).Add(perp.Mul(collinearNudge))
		pts = []r2.Point{pts[0], pts[1], extra, pts[2]}
	}

	// Global collinearity check against the chord endpoints.
	v1 := pts[1].Sub(pts[0])
	v2 := pts[len(pts)-1].Sub(pts[0])
	if math.Abs(v1.X*v2.Y-v1.Y*v2.X) < dupTol {
		mid := len(pts) / 2
		perp := unitPerp(pts[len(pts)-1].Sub(pts[0]))
		pts[mid] = pts[mid].Add(perp.Mul(collinearNudge))
	}
	return pts, nil
}

// smoothWaypoints runs passes of Laplacian averaging over interior points,
// keeping the endpoints pinned.
func smoothWaypoints(pts []r2.Point, passes int) []r2.Point {
	out := make([]r2.Point, len(pts))
	copy(out, pts)
	for p := 0; p < passes; p++ {
		prev := out[0]
		for i := 1; i < len(out)-1; i++ {
			cur := out[i]
			out[i] = prev.Add(cur.Mul(2)).Add(out[i+1]).Mul(0.25)
			prev = cur
		}
	}
	return out
}

func unitPerp(dir r2.Point) r2.Point {
	perp := r2.Point{X: -dir.Y, Y: dir.X}
	return perp.Mul(1 / (perp.Norm() + 1e-10))
}

func isFinite(p r2.Point) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}
