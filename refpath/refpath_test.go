package refpath

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestStraightPath(t *testing.T) {
	p, err := NewPath([]r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}}, 0, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.TotalLength(), test.ShouldAlmostEqual, 1, 1e-3)

	start := p.At(0)
	end := p.At(p.TotalLength())
	test.That(t, start.X, test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, start.Y, test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, end.X, test.ShouldAlmostEqual, 1, 1e-6)
	test.That(t, end.Y, test.ShouldAlmostEqual, 0, 1e-6)

	tan := p.Tangent(0.5)
	test.That(t, tan.X, test.ShouldAlmostEqual, 1, 1e-3)
	test.That(t, tan.Y, test.ShouldAlmostEqual, 0, 1e-3)

	// Right-pointing normal for a +x tangent is -y.
	n := p.Normal(0.5)
	test.That(t, n.X, test.ShouldAlmostEqual, 0, 1e-3)
	test.That(t, n.Y, test.ShouldAlmostEqual, -1, 1e-3)

	test.That(t, math.Abs(p.Curvature(0.5)), test.ShouldBeLessThan, 1e-3)
}

func TestPathXMonotonic(t *testing.T) {
	p, err := NewPath([]r2.Point{{X: 0, Y: 0}, {X: 2, Y: 0}}, 0, 3)
	test.That(t, err, test.ShouldBeNil)
	prev := p.At(0).X
	for i := 1; i <= 100; i++ {
		theta := float64(i) / 100 * p.TotalLength()
		x := p.At(theta).X
		test.That(t, x, test.ShouldBeGreaterThanOrEqualTo, prev-1e-9)
		prev = x
	}
}

func TestClosestThetaRoundTrip(t *testing.T) {
	p, err := NewPath([]r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0.3}, {X: 2, Y: 0}}, 0, 3)
	test.That(t, err, test.ShouldBeNil)
	for _, frac := range []float64{0.1, 0.4, 0.7, 0.9} {
		theta := frac * p.TotalLength()
		got := p.ClosestTheta(p.At(theta))
		test.That(t, got, test.ShouldAlmostEqual, theta, 1e-2*p.TotalLength())
	}
}

func TestClosestThetaFromRespectsFloor(t *testing.T) {
	p, err := NewPath([]r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}}, 0, 3)
	test.That(t, err, test.ShouldBeNil)
	minTheta := 0.5 * p.TotalLength()
	// Query a point near the start with a floor past it.
	got := p.ClosestThetaFrom(r2.Point{X: 0.1, Y: 0}, minTheta, minTheta)
	test.That(t, got, test.ShouldBeGreaterThanOrEqualTo, minTheta-1e-9)
}

func TestInvalidWaypoints(t *testing.T) {
	_, err := NewPath([]r2.Point{{X: 1, Y: 1}}, 0, 3)
	test.That(t, err, test.ShouldBeError, ErrInvalidPath)

	_, err = NewPath([]r2.Point{
		{X: math.NaN(), Y: 0},
		{X: math.Inf(1), Y: 1},
	}, 0, 3)
	test.That(t, err, test.ShouldBeError, ErrInvalidPath)

	// All duplicates collapse to a single point.
	_, err = NewPath([]r2.Point{{X: 1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 1}}, 0, 3)
	test.That(t, err, test.ShouldBeError, ErrInvalidPath)
}

func TestDuplicateWaypointsMerged(t *testing.T) {
	p, err := NewPath([]r2.Point{{X: 0, Y: 0}, {X: 0, Y: 0}, {X: 1, Y: 0}}, 0, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.TotalLength(), test.ShouldAlmostEqual, 1, 1e-3)
}

func TestCollinearWaypoints(t *testing.T) {
	// Exactly collinear interior points get nudged rather than rejected.
	p, err := NewPath([]r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}}, 0, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.TotalLength(), test.ShouldAlmostEqual, 2, 1e-2)
}

func TestSmoothingKeepsEndpoints(t *testing.T) {
	wps := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: -1}, {X: 3, Y: 0}}
	p, err := NewPath(wps, 2, 3)
	test.That(t, err, test.ShouldBeNil)
	start := p.At(0)
	end := p.At(p.TotalLength())
	test.That(t, start.X, test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, start.Y, test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, end.X, test.ShouldAlmostEqual, 3, 1e-6)
	test.That(t, end.Y, test.ShouldAlmostEqual, 0, 1e-6)
}
