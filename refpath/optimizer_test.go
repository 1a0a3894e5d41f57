package refpath

import (
	"math"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestSegmentsIntersect(t *testing.T) {
	// X crossing.
	test.That(t, segmentsIntersect(
		r2.Point{X: 0, Y: 0}, r2.Point{X: 2, Y: 2},
		r2.Point{X: 2, Y: 0}, r2.Point{X: 0, Y: 2},
	), test.ShouldBeTrue)
	// Parallel.
	test.That(t, segmentsIntersect(
		r2.Point{X: 0, Y: 0}, r2.Point{X: 1, Y: 0},
		r2.Point{X: 0, Y: 1}, r2.Point{X: 1, Y: 1},
	), test.ShouldBeFalse)
	// Disjoint.
	test.That(t, segmentsIntersect(
		r2.Point{X: 0, Y: 0}, r2.Point{X: 1, Y: 0},
		r2.Point{X: 2, Y: -1}, r2.Point{X: 3, Y: 1},
	), test.ShouldBeFalse)
}

func TestHasLoop(t *testing.T) {
	straight := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0.1}, {X: 3, Y: 0}}
	test.That(t, hasLoop(straight), test.ShouldBeFalse)

	crossed := []r2.Point{{X: 0, Y: 0}, {X: 2, Y: 2}, {X: 2, Y: 0}, {X: 0, Y: 2}}
	test.That(t, hasLoop(crossed), test.ShouldBeTrue)
}

func TestRemoveLoops(t *testing.T) {
	crossed := []r2.Point{{X: 0, Y: 0}, {X: 2, Y: 2}, {X: 2, Y: 0}, {X: 0, Y: 2}}
	out := removeLoops(crossed)
	test.That(t, hasLoop(out), test.ShouldBeFalse)
	test.That(t, len(out), test.ShouldBeGreaterThanOrEqualTo, 2)
	// First and last points survive.
	test.That(t, out[0].X, test.ShouldAlmostEqual, 0)
	test.That(t, out[0].Y, test.ShouldAlmostEqual, 0)
	last := out[len(out)-1]
	test.That(t, last.X, test.ShouldAlmostEqual, 0)
	test.That(t, last.Y, test.ShouldAlmostEqual, 2)
}

func TestRemoveLoopsNoOp(t *testing.T) {
	pts := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0.2}, {X: 2, Y: 0}}
	out := removeLoops(pts)
	test.That(t, len(out), test.ShouldEqual, len(pts))
}

func TestCorridorOptimizerStraightTunnel(t *testing.T) {
	logger := golog.NewTestLogger(t)
	o := NewCorridorOptimizer(logger)

	tunnel := make([]r2.Point, 0, 21)
	for i := 0; i <= 20; i++ {
		tunnel = append(tunnel, r2.Point{X: float64(i) * 0.05, Y: 0})
	}
	width := 0.05

	p, err := o.Optimize(tunnel, width)
	test.That(t, err, test.ShouldBeNil)

	start := p.At(0)
	end := p.At(p.TotalLength())
	test.That(t, start.X, test.ShouldAlmostEqual, 0, 1e-3)
	test.That(t, start.Y, test.ShouldAlmostEqual, 0, 1e-3)
	test.That(t, end.X, test.ShouldAlmostEqual, 1, 1e-3)
	test.That(t, end.Y, test.ShouldAlmostEqual, 0, 1e-3)

	// Every sample stays inside the half-width of the straight tunnel.
	halfW := width / 2
	for i := 0; i <= 50; i++ {
		pt := p.At(float64(i) / 50 * p.TotalLength())
		test.That(t, math.Abs(pt.Y), test.ShouldBeLessThanOrEqualTo, halfW+1e-6)
	}
	// The optimized length cannot beat the chord by definition.
	test.That(t, p.TotalLength(), test.ShouldBeGreaterThanOrEqualTo, 1-1e-3)
}

func TestCorridorOptimizerCutsCorner(t *testing.T) {
	logger := golog.NewTestLogger(t)
	o := NewCorridorOptimizer(logger)

	// An L-shaped tunnel; a wide corridor lets the solution shave length
	// at the corner.
	tunnel := make([]r2.Point, 0, 41)
	for i := 0; i <= 20; i++ {
		tunnel = append(tunnel, r2.Point{X: float64(i) * 0.05, Y: 0})
	}
	for i := 1; i <= 20; i++ {
		tunnel = append(tunnel, r2.Point{X: 1, Y: float64(i) * 0.05})
	}

	p, err := o.Optimize(tunnel, 0.2)
	test.That(t, err, test.ShouldBeNil)

	// Polyline length of the raw tunnel is 2; the corridor solution should
	// not exceed it by much and typically undercuts it.
	test.That(t, p.TotalLength(), test.ShouldBeLessThan, 2.05)
	end := p.At(p.TotalLength())
	test.That(t, end.X, test.ShouldAlmostEqual, 1, 1e-2)
	test.That(t, end.Y, test.ShouldAlmostEqual, 1, 1e-2)
}

func TestCorridorOptimizerFewPoints(t *testing.T) {
	logger := golog.NewTestLogger(t)
	o := NewCorridorOptimizer(logger)

	_, err := o.Optimize([]r2.Point{{X: 0, Y: 0}}, 0.05)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBuildOffsetHessian(t *testing.T) {
	h := buildOffsetHessian(4, 5, 5, 1e-2)
	r, c := h.Dims()
	test.That(t, r, test.ShouldEqual, 4)
	test.That(t, c, test.ShouldEqual, 4)
	// Symmetric.
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			test.That(t, h.At(i, j), test.ShouldAlmostEqual, h.At(j, i), 1e-12)
		}
	}
	// Positive diagonal from the regularizer.
	for i := 0; i < r; i++ {
		test.That(t, h.At(i, i), test.ShouldBeGreaterThan, 0)
	}
}
