package mpcc

import "github.com/golang/geo/r2"

// State is the kinematic state the planner starts from. Progress along the
// reference path is recomputed from the position every solve, so callers only
// supply position, velocity, and acceleration.
type State struct {
	Pos r2.Point
	Vel r2.Point
	Acc r2.Point
}

// Weights tune the planner objective.
type Weights struct {
	// Jerk penalizes control effort; kept very small because jerk magnitudes
	// dwarf per-step displacements.
	Jerk float64 `json:"jerk"`
	// Progress penalizes the gap between physical speed and the
	// curvature-adapted desired speed.
	Progress float64 `json:"progress"`
	// Contour penalizes lateral deviation from the reference path.
	Contour float64 `json:"contour"`
	// Lag penalizes longitudinal deviation from the virtual target. Kept far
	// below Contour so the planner may fall behind but not drift sideways.
	Lag float64 `json:"lag"`
	// Wall scales the one-sided corridor violation penalty.
	Wall float64 `json:"wall"`
	// DesiredSpeed is the nominal progress speed in m/s.
	DesiredSpeed float64 `json:"desired_speed"`
	// CurvatureScale shrinks the speed target in curves:
	// desired / (1 + scale*|kappa|).
	CurvatureScale float64 `json:"curvature_scale"`
}

// DefaultWeights returns the stock tuning.
func DefaultWeights() Weights {
	return Weights{
		Jerk:           1.2270221915240491e-06,
		Progress:       0.105984082449737e-06,
		Contour:        20.8691506348653517,
		Lag:            0.0580890071498787,
		Wall:           200.36747657311221,
		DesiredSpeed:   0.20841771264538897,
		CurvatureScale: 10.0,
	}
}

// Limits bounds the physical motion the planner may command.
type Limits struct {
	// AccMax bounds each acceleration component to [-AccMax, AccMax].
	AccMax float64
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{AccMax: 100.0}
}

// Control is one horizon step of decision variables.
type Control struct {
	JerkX, JerkY float64
	// VirtualSpeed advances the progress variable; never negative.
	VirtualSpeed float64
}

// Debug carries read-only solve diagnostics. Nothing in the planner consumes
// it.
type Debug struct {
	// IdealX, IdealY is the planned absolute trajectory over the horizon.
	IdealX, IdealY []float64
	// Target is the reference path point at the current progress.
	Target r2.Point
	// Progress is the arclength the solve started from.
	Progress float64
	// Converged is false when the solver hit its budget; the plan is still
	// the best iterate found.
	Converged bool
	Cost      float64
	// Evaluations counts objective evaluations spent.
	Evaluations int
}

// Plan is the planner output for one solve.
type Plan struct {
	Controls []Control
	// DeltaX, DeltaY are per-step position deltas over the horizon.
	DeltaX, DeltaY []float64
	// VelX, VelY are velocities of length horizon+1; index 0 is the initial
	// velocity.
	VelX, VelY []float64
	Debug      Debug
}
