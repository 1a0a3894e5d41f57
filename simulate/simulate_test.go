package simulate

import (
	"context"
	"math"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"github.com/steeringlab/cursorplan/corridor"
	"github.com/steeringlab/cursorplan/refpath"
)

func TestNewValidation(t *testing.T) {
	logger := golog.NewTestLogger(t)

	cfg := DefaultConfig()
	cfg.Interval = 0
	_, err := New(cfg, logger)
	test.That(t, err, test.ShouldNotBeNil)

	cfg = DefaultConfig()
	cfg.MaxSteps = 0
	_, err = New(cfg, logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = New(DefaultConfig(), logger)
	test.That(t, err, test.ShouldBeNil)
}

func TestRunStraightSegment(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cfg := DefaultConfig()
	cfg.AddNoise = false
	sim, err := New(cfg, logger)
	test.That(t, err, test.ShouldBeNil)

	waypoints := []r2.Point{{X: 0, Y: 0}, {X: 0.3, Y: 0}}
	path, err := refpath.NewPath(waypoints, 0, 1)
	test.That(t, err, test.ShouldBeNil)

	positions, err := sim.Run(context.Background(), waypoints, path, nil, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(positions), test.ShouldBeGreaterThan, 0)
	// Arrival, not the step cap, ends the run.
	test.That(t, len(positions), test.ShouldBeLessThan, cfg.MaxSteps)

	// Progress along the segment never reverses.
	prev := 0.0
	for _, p := range positions {
		test.That(t, p.X, test.ShouldBeGreaterThanOrEqualTo, prev-1e-6)
		test.That(t, math.Abs(p.Y), test.ShouldBeLessThan, 0.02)
		prev = p.X
	}

	final := positions[len(positions)-1]
	test.That(t, final.Sub(waypoints[1]).Norm(), test.ShouldBeLessThan, 2*cfg.TargetRadius)
}

func TestRunWithNoiseTerminates(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cfg := DefaultConfig()
	sim, err := New(cfg, logger)
	test.That(t, err, test.ShouldBeNil)

	waypoints := []r2.Point{{X: 0, Y: 0}, {X: 0.3, Y: 0}}
	path, err := refpath.NewPath(waypoints, 0, 1)
	test.That(t, err, test.ShouldBeNil)

	positions, err := sim.Run(context.Background(), waypoints, path, nil, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(positions), test.ShouldBeLessThan, cfg.MaxSteps)

	final := positions[len(positions)-1]
	test.That(t, final.Sub(waypoints[1]).Norm(), test.ShouldBeLessThan, 5*cfg.TargetRadius)
}

func TestRunRespectsCorridorBounds(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cfg := DefaultConfig()
	cfg.AddNoise = false
	sim, err := New(cfg, logger)
	test.That(t, err, test.ShouldBeNil)

	waypoints := []r2.Point{{X: 0, Y: 0}, {X: 0.4, Y: 0}}
	path, err := refpath.NewPath(waypoints, 0, 1)
	test.That(t, err, test.ShouldBeNil)

	// A keep-out circle clipping the segment constrains one side of the
	// corridor around the overlap.
	regions := []corridor.Region{
		corridor.NewRegion(corridor.KeepOut, corridor.Circle(r2.Point{X: 0.2, Y: 0.01}, 0.03)),
	}
	left, right := corridor.BoundsFromRegions(regions, path, cfg.PlannerMargin)
	test.That(t, left, test.ShouldNotBeNil)
	test.That(t, right, test.ShouldNotBeNil)

	positions, err := sim.Run(context.Background(), waypoints, path, left, right)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(positions), test.ShouldBeLessThan, cfg.MaxSteps)

	// The trajectory stays inside the clamped corridor everywhere.
	for _, p := range positions {
		test.That(t, math.Abs(p.Y), test.ShouldBeLessThan, 0.11)
	}
	final := positions[len(positions)-1]
	test.That(t, final.Sub(waypoints[1]).Norm(), test.ShouldBeLessThan, 2*cfg.TargetRadius)
}

func TestRunKeepOutCircleOnSegment(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cfg := DefaultConfig()
	cfg.AddNoise = false
	sim, err := New(cfg, logger)
	test.That(t, err, test.ShouldBeNil)

	waypoints := []r2.Point{{X: 0, Y: 0}, {X: 0.4, Y: 0}}
	path, err := refpath.NewPath(waypoints, 0, 1)
	test.That(t, err, test.ShouldBeNil)

	regions := []corridor.Region{
		corridor.NewRegion(corridor.KeepOut, corridor.Circle(r2.Point{X: 0.2, Y: 0}, 0.03)),
	}
	left, right := corridor.BoundsFromRegions(regions, path, cfg.PlannerMargin)

	// A keep-out circle centered on the segment constrains exactly one side
	// over the overlap: the center projects to zero on the path normal,
	// which resolves to the right side. Clearances floor at zero, so the
	// centerline itself stays feasible.
	test.That(t, right.Clearance(0.2), test.ShouldAlmostEqual, 0.03-cfg.PlannerMargin, 5e-3)
	test.That(t, left.Clearance(0.2), test.ShouldAlmostEqual, 0.1, 1e-9)
	test.That(t, right.Clearance(0.2), test.ShouldBeLessThan, left.Clearance(0.2))
	// Away from the overlap both sides sit at the cap.
	test.That(t, right.Clearance(0.05), test.ShouldAlmostEqual, 0.1, 1e-9)

	positions, err := sim.Run(context.Background(), waypoints, path, left, right)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(positions), test.ShouldBeLessThan, cfg.MaxSteps)

	// The contour error stays inside the reduced clearance everywhere, and
	// the run still reaches the far waypoint.
	for _, p := range positions {
		test.That(t, math.Abs(p.Y), test.ShouldBeLessThan, 0.03)
	}
	final := positions[len(positions)-1]
	test.That(t, final.Sub(waypoints[1]).Norm(), test.ShouldBeLessThan, 2*cfg.TargetRadius)
}

func TestRunCanceledContext(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cfg := DefaultConfig()
	sim, err := New(cfg, logger)
	test.That(t, err, test.ShouldBeNil)

	waypoints := []r2.Point{{X: 0, Y: 0}, {X: 0.3, Y: 0}}
	path, err := refpath.NewPath(waypoints, 0, 1)
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sim.Run(ctx, waypoints, path, nil, nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGenerateTrajectoryPixels(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cfg := DefaultConfig()
	sim, err := New(cfg, logger)
	test.That(t, err, test.ShouldBeNil)

	task := Task{
		Waypoints:   [][]float64{{100, 100}, {500, 100}},
		ScreenWidth: 1000,
	}
	samples, err := sim.GenerateTrajectory(context.Background(), task)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(samples), test.ShouldBeGreaterThan, 0)

	// Timestamps advance one interval per sample.
	test.That(t, samples[0].T, test.ShouldAlmostEqual, cfg.Interval)
	test.That(t, samples[1].T, test.ShouldAlmostEqual, 2*cfg.Interval)

	final := samples[len(samples)-1]
	test.That(t, final.X, test.ShouldAlmostEqual, 500, 60)
	test.That(t, final.Y, test.ShouldAlmostEqual, 100, 60)
}

func TestGenerateTrajectoryConstraints(t *testing.T) {
	logger := golog.NewTestLogger(t)
	cfg := DefaultConfig()
	cfg.AddNoise = false
	sim, err := New(cfg, logger)
	test.That(t, err, test.ShouldBeNil)

	task := Task{
		Waypoints:   [][]float64{{100, 100}, {500, 100}},
		ScreenWidth: 1000,
		Constraints: []byte(`{
			"coordinate_system": "pixels",
			"regions": [
				{"constraint_type": "keep_out", "geometry": {"type": "circle", "center": [300, 110], "radius": 40}}
			]
		}`),
	}
	samples, err := sim.GenerateTrajectory(context.Background(), task)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(samples), test.ShouldBeGreaterThan, 0)
}

func TestGenerateTrajectoryBadTask(t *testing.T) {
	logger := golog.NewTestLogger(t)
	sim, err := New(DefaultConfig(), logger)
	test.That(t, err, test.ShouldBeNil)

	_, err = sim.GenerateTrajectory(context.Background(), Task{Waypoints: [][]float64{{1, 2}}})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = sim.GenerateTrajectory(context.Background(), Task{Waypoints: [][]float64{{1}, {2}}})
	test.That(t, err, test.ShouldNotBeNil)
}
