// Package simulate drives the planning/noise engine through whole
// trajectories: it normalizes pixel-space tasks into metric path space, runs
// the per-step plan→perturb→accumulate cycle, detects waypoint arrival, and
// emits screen-space samples.
package simulate

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/steeringlab/cursorplan/corridor"
	"github.com/steeringlab/cursorplan/motornoise"
	"github.com/steeringlab/cursorplan/mpcc"
	"github.com/steeringlab/cursorplan/refpath"
)

// screenWidthMeters is the assumed physical width of the screen; pixel
// coordinates are normalized against it.
const screenWidthMeters = 0.46

// Tunnel-width estimation limits for the corridor optimizer, in meters.
const (
	minTunnelWidth = 0.02
	maxTunnelWidth = 0.1
)

// Task is a trajectory request in screen-pixel coordinates.
type Task struct {
	Waypoints    [][]float64     `json:"waypoints"`
	Constraints  json.RawMessage `json:"constraints"`
	ScreenWidth  float64         `json:"screen_width"`
	ScreenHeight float64         `json:"screen_height"`
}

// Sample is one emitted cursor position in screen pixels with its timestamp
// in seconds from trajectory start.
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	T float64 `json:"t"`
}

// Simulator generates trajectories for tasks under one configuration.
type Simulator struct {
	cfg    Config
	logger golog.Logger
}

// New validates the configuration and returns a simulator.
func New(cfg Config, logger golog.Logger) (*Simulator, error) {
	if cfg.Interval <= 0 {
		return nil, errors.Errorf("interval must be positive, got %f", cfg.Interval)
	}
	if cfg.MaxSteps < 1 {
		return nil, errors.Errorf("max steps must be positive, got %d", cfg.MaxSteps)
	}
	return &Simulator{cfg: cfg, logger: logger}, nil
}

// GenerateTrajectory runs a pixel-space task end to end and returns screen
// samples, one per control step.
func (s *Simulator) GenerateTrajectory(ctx context.Context, task Task) ([]Sample, error) {
	if len(task.Waypoints) < 2 {
		return nil, errors.Errorf("at least 2 waypoints are required, got %d", len(task.Waypoints))
	}
	screenW := task.ScreenWidth
	if screenW <= 0 {
		screenW = 1920
	}
	// Pixels and meters relate by one uniform factor; the screen height in
	// meters follows from the aspect ratio, so the same factor covers y.
	scale := screenWidthMeters / screenW

	waypoints := make([]r2.Point, 0, len(task.Waypoints))
	for _, wp := range task.Waypoints {
		if len(wp) < 2 {
			return nil, errors.New("waypoints must be 2D")
		}
		waypoints = append(waypoints, r2.Point{X: wp[0] * scale, Y: wp[1] * scale})
	}

	path, err := s.buildPath(waypoints)
	if err != nil {
		return nil, err
	}

	var left, right corridor.Bound
	if len(task.Constraints) > 0 {
		cc, err := corridor.ParseConfig(task.Constraints)
		if err != nil {
			return nil, err
		}
		if cc != nil {
			if cc.CoordinateSystem == "pixels" {
				cc.Scale(scale)
			}
			margin := cc.DefaultMargin
			if margin <= 0 {
				margin = s.cfg.PlannerMargin
			}
			left, right = corridor.BoundsFromRegions(cc.Regions, path, margin)
		}
	}

	positions, err := s.Run(ctx, waypoints, path, left, right)
	if err != nil {
		return nil, err
	}

	samples := make([]Sample, len(positions))
	for i, pos := range positions {
		samples[i] = Sample{
			X: pos.X / scale,
			Y: pos.Y / scale,
			T: float64(i+1) * s.cfg.Interval,
		}
	}
	return samples, nil
}

// buildPath fits the reference path, optionally through the corridor offset
// optimizer with a tunnel width estimated from waypoint spacing.
func (s *Simulator) buildPath(waypoints []r2.Point) (*refpath.Path, error) {
	if !s.cfg.UseOptimalPath {
		return refpath.NewPath(waypoints, 0, 1)
	}

	total := 0.0
	for i := 1; i < len(waypoints); i++ {
		total += waypoints[i].Sub(waypoints[i-1]).Norm()
	}
	avg := total / float64(len(waypoints)-1)
	width := math.Min(maxTunnelWidth, math.Max(minTunnelWidth, avg*0.3))

	opt := refpath.NewCorridorOptimizer(s.logger)
	opt.Margin = s.cfg.PlannerMargin
	return opt.Optimize(waypoints, width)
}

// Run executes the metric-space simulation loop: plan, perturb, accumulate,
// and check arrival, until the final waypoint is reached or the step cap
// hits. It returns the cursor position after every step.
func (s *Simulator) Run(
	ctx context.Context,
	waypoints []r2.Point,
	path *refpath.Path,
	left, right corridor.Bound,
) ([]r2.Point, error) {
	planner, err := mpcc.NewPlanner(
		s.cfg.horizonSteps(),
		s.cfg.Interval,
		s.cfg.PlannerWeights,
		mpcc.Limits{AccMax: s.cfg.AccMax},
		s.logger,
	)
	if err != nil {
		return nil, err
	}
	noise := motornoise.NewModel(s.cfg.NoiseCoeffs, s.cfg.Interval, s.cfg.Forearm, s.cfg.Seed)

	pos := waypoints[0]
	var vel r2.Point
	var hand motornoise.HandState
	targetIdx := 1

	positions := make([]r2.Point, 0, s.cfg.MaxSteps)
	for step := 0; step < s.cfg.MaxSteps; step++ {
		if s.cfg.RealTime {
			if !utils.SelectContextOrWait(ctx, time.Duration(s.cfg.Interval*float64(time.Second))) {
				return positions, ctx.Err()
			}
		} else if err := ctx.Err(); err != nil {
			return positions, err
		}

		if targetIdx < len(waypoints) && pos.Sub(waypoints[targetIdx]).Norm() < s.cfg.TargetRadius {
			targetIdx++
			if targetIdx >= len(waypoints) {
				s.logger.Debugw("reached final waypoint", "steps", step)
				break
			}
		}

		plan, err := planner.Solve(ctx, &mpcc.Request{
			Path:       path,
			State:      mpcc.State{Pos: pos, Vel: vel},
			BoundLeft:  left,
			BoundRight: right,
		})
		if err != nil {
			return positions, err
		}

		// The first planned step after the current state drives the noise
		// stage.
		velIdx := 1
		if len(plan.VelX) < 2 {
			velIdx = 0
		}
		planned := r2.Point{X: plan.VelX[velIdx], Y: plan.VelY[velIdx]}

		if s.cfg.AddNoise {
			res := noise.Step(planned, &hand)
			pos = pos.Add(res.Delta)
			vel = res.Vel
		} else {
			pos = pos.Add(r2.Point{X: plan.DeltaX[0], Y: plan.DeltaY[0]})
			vel = planned
		}

		positions = append(positions, pos)
	}
	return positions, nil
}
