package refpath

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/go-nlopt/nlopt"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"
)

const (
	minKnots = 40
	maxKnots = 300

	qpMaxIter = 5000
	qpFtol    = 1e-10

	loopTol = 1e-6
)

// CorridorOptimizer produces a smoother, length-efficient reference path
// inside a tunnel. The path is modeled as a scalar lateral offset d(s) from
// the tunnel centerline along its right-pointing normal, and the offsets are
// solved as a box-constrained convex quadratic program.
type CorridorOptimizer struct {
	// Alpha weighs the first difference of d (lateral slope).
	Alpha float64
	// Beta weighs the second difference of d (lateral bending).
	Beta float64
	// LambdaLength weighs the linearized path-length change.
	LambdaLength float64
	// GammaCenter is a small center bias keeping the solution off the walls
	// unless an offset buys something.
	GammaCenter float64
	// Margin is the safety margin subtracted from the tunnel half width.
	Margin float64
	// NumKnots overrides the offset discretization when positive; otherwise
	// roughly two knots per input waypoint, clamped to [40, 300].
	NumKnots int

	logger golog.Logger
}

// NewCorridorOptimizer returns an optimizer with the stock weights.
func NewCorridorOptimizer(logger golog.Logger) *CorridorOptimizer {
	return &CorridorOptimizer{
		Alpha:        5.0,
		Beta:         5.0,
		LambdaLength: 0.01,
		GammaCenter:  1e-2,
		Margin:       0.001,
		logger:       logger,
	}
}

// Optimize fits a centerline through the tunnel waypoints, solves for the
// lateral offsets, removes any self-intersections from the reconstructed
// points, and returns a new path fit through them. A failed solve falls back
// to zero offsets, i.e. the centerline itself.
func (o *CorridorOptimizer) Optimize(tunnelPath []r2.Point, tunnelWidth float64) (*Path, error) {
	centerline, err := NewPath(tunnelPath, 0, 3)
	if err != nil {
		return nil, err
	}
	length := centerline.TotalLength()

	n := o.NumKnots
	if n <= 0 {
		n = 2 * len(tunnelPath)
		if n < minKnots {
			n = minKnots
		}
		if n > maxKnots {
			n = maxKnots
		}
	}

	sKnots := make([]float64, n)
	centers := make([]r2.Point, n)
	normals := make([]r2.Point, n)
	kappa := make([]float64, n)
	for k := 0; k < n; k++ {
		s := length * float64(k) / float64(n-1)
		sKnots[k] = s
		centers[k] = centerline.At(s)
		normals[k] = centerline.Normal(s)
		kappa[k] = centerline.Curvature(s)
	}
	ds := make([]float64, n)
	for k := 1; k < n; k++ {
		ds[k] = sKnots[k] - sKnots[k-1]
	}
	if n > 1 {
		ds[0] = ds[1]
	}

	halfW := math.Max(0.5*tunnelWidth-o.Margin, 1e-6)

	hess := buildOffsetHessian(n, o.Alpha, o.Beta, o.GammaCenter)
	f := mat.NewVecDense(n, nil)
	for k := 0; k < n; k++ {
		f.SetVec(k, o.LambdaLength*kappa[k]*ds[k])
	}

	offsets, err := o.solveOffsets(n, hess, f, halfW)
	if err != nil {
		if o.logger != nil {
			o.logger.Debugw("corridor offset solve failed, using centerline", "error", err)
		}
		offsets = make([]float64, n)
	}

	pts := make([]r2.Point, n)
	for k := 0; k < n; k++ {
		pts[k] = centers[k].Add(normals[k].Mul(offsets[k]))
	}
	pts = removeLoops(pts)

	return NewPath(pts, 0, 3)
}

// solveOffsets minimizes 0.5 d'Hd + f'd subject to |d_k| <= halfW with the
// endpoints pinned to zero.
func (o *CorridorOptimizer) solveOffsets(n int, hess *mat.Dense, f *mat.VecDense, halfW float64) ([]float64, error) {
	opt, err := nlopt.NewNLopt(nlopt.LD_LBFGS, uint(n))
	if err != nil {
		return nil, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	lower := make([]float64, n)
	upper := make([]float64, n)
	for k := range lower {
		lower[k] = -halfW
		upper[k] = halfW
	}
	lower[0], upper[0] = 0, 0
	lower[n-1], upper[n-1] = 0, 0

	d := mat.NewVecDense(n, nil)
	hd := mat.NewVecDense(n, nil)
	objective := func(x, gradient []float64) float64 {
		copy(d.RawVector().Data, x)
		hd.MulVec(hess, d)
		val := 0.5*mat.Dot(d, hd) + mat.Dot(f, d)
		if gradient != nil {
			for k := range gradient {
				gradient[k] = hd.AtVec(k) + f.AtVec(k)
			}
		}
		return val
	}

	err = multierr.Combine(
		opt.SetLowerBounds(lower),
		opt.SetUpperBounds(upper),
		opt.SetMinObjective(objective),
		opt.SetFtolRel(qpFtol),
		opt.SetMaxEval(qpMaxIter),
	)
	if err != nil {
		return nil, err
	}

	sol, _, err := opt.Optimize(make([]float64, n))
	if err != nil {
		return nil, err
	}
	return sol, nil
}

// buildOffsetHessian assembles H = alpha D1'D1 + beta D2'D2 + gamma I from
// the first and second finite-difference operators.
func buildOffsetHessian(n int, alpha, beta, gamma float64) *mat.Dense {
	d1 := mat.NewDense(n-1, n, nil)
	for k := 0; k < n-1; k++ {
		d1.Set(k, k, -1)
		d1.Set(k, k+1, 1)
	}
	d2 := mat.NewDense(n-2, n, nil)
	for k := 0; k < n-2; k++ {
		d2.Set(k, k, 1)
		d2.Set(k, k+1, -2)
		d2.Set(k, k+2, 1)
	}

	hess := mat.NewDense(n, n, nil)
	var tmp mat.Dense
	tmp.Mul(d1.T(), d1)
	tmp.Scale(alpha, &tmp)
	hess.Add(hess, &tmp)
	tmp.Reset()
	tmp.Mul(d2.T(), d2)
	tmp.Scale(beta, &tmp)
	hess.Add(hess, &tmp)
	for k := 0; k < n; k++ {
		hess.Set(k, k, hess.At(k, k)+gamma)
	}
	return hess
}

// segmentsIntersect reports whether segments p0p1 and p2p3 cross at interior
// points.
func segmentsIntersect(p0, p1, p2, p3 r2.Point) bool {
	denom := (p1.X-p0.X)*(p3.Y-p2.Y) - (p1.Y-p0.Y)*(p3.X-p2.X)
	if math.Abs(denom) <= loopTol {
		return false
	}
	t := ((p2.X-p0.X)*(p3.Y-p2.Y) - (p2.Y-p0.Y)*(p3.X-p2.X)) / denom
	u := ((p2.X-p0.X)*(p1.Y-p0.Y) - (p2.Y-p0.Y)*(p1.X-p0.X)) / denom
	return t > loopTol && t < 1-loopTol && u > loopTol && u < 1-loopTol
}

// hasLoop reports whether the polyline self-intersects.
func hasLoop(pts []r2.Point) bool {
	if len(pts) < 4 {
		return false
	}
	for i := 0; i < len(pts)-1; i++ {
		for j := i + 2; j < len(pts)-1; j++ {
			if segmentsIntersect(pts[i], pts[i+1], pts[j], pts[j+1]) {
				return true
			}
		}
	}
	return false
}

// removeLoops drops points whose addition would introduce a self-intersection
// with the already retained polyline. If loops survive the greedy pass it
// falls back to uniform decimation, always retaining the final point.
func removeLoops(pts []r2.Point) []r2.Point {
	if len(pts) < 4 || !hasLoop(pts) {
		return pts
	}

	kept := []r2.Point{pts[0]}
	for i := 1; i < len(pts); i++ {
		cand := pts[i]
		ok := true
		if len(kept) >= 3 {
			last := kept[len(kept)-1]
			for j := 0; j+1 < len(kept)-1; j++ {
				if segmentsIntersect(kept[j], kept[j+1], last, cand) {
					ok = false
					break
				}
			}
		}
		if ok {
			kept = append(kept, cand)
		}
	}
	if kept[len(kept)-1] != pts[len(pts)-1] {
		kept = append(kept, pts[len(pts)-1])
	}

	if hasLoop(kept) {
		step := len(pts) / 20
		if step < 2 {
			step = 2
		}
		kept = kept[:0]
		for i := 0; i < len(pts); i += step {
			kept = append(kept, pts[i])
		}
		if kept[len(kept)-1] != pts[len(pts)-1] {
			kept = append(kept, pts[len(pts)-1])
		}
	}
	return kept
}
