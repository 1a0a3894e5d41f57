package simulate

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/steeringlab/cursorplan/mpcc"
)

// Config holds every tunable of the simulation pipeline. Missing fields in a
// decoded payload keep their documented defaults; partial configuration is
// never an error.
type Config struct {
	// Interval is the control timestep in seconds.
	Interval float64 `json:"interval"`
	// Horizon is the planning lookahead in seconds; the step count is
	// Horizon/Interval rounded, floored at 1.
	Horizon float64 `json:"horizon"`
	// NoiseCoeffs scales motor noise along and across the movement
	// direction.
	NoiseCoeffs [2]float64 `json:"nc"`
	// Forearm is the forearm pivot length in meters.
	Forearm float64 `json:"forearm"`

	PlannerWeights mpcc.Weights `json:"planner_weights"`
	// PlannerMargin is the safety margin from corridor walls in meters.
	PlannerMargin float64 `json:"planner_margin"`
	// AccMax bounds planned acceleration components.
	AccMax float64 `json:"acc_max"`

	// AddNoise toggles the motor/device noise stage.
	AddNoise bool `json:"add_noise"`
	// Seed seeds the per-trajectory noise stream.
	Seed uint64 `json:"random_seed"`

	// MaxSteps caps a trajectory's length.
	MaxSteps int `json:"max_steps"`
	// TargetRadius is the arrival radius around waypoints, in meters.
	TargetRadius float64 `json:"target_radius"`
	// UseOptimalPath runs the corridor offset optimizer over the waypoints
	// instead of fitting a polyline through them.
	UseOptimalPath bool `json:"use_optimal_path"`
	// RealTime paces the loop at Interval per step instead of running flat
	// out.
	RealTime bool `json:"real_time"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Interval:       0.05,
		Horizon:        0.3,
		NoiseCoeffs:    [2]float64{0.2, 0.02},
		Forearm:        0.357,
		PlannerWeights: mpcc.DefaultWeights(),
		PlannerMargin:  0.005,
		AccMax:         mpcc.DefaultLimits().AccMax,
		AddNoise:       true,
		Seed:           1000,
		MaxSteps:       2000,
		TargetRadius:   0.01,
		UseOptimalPath: true,
	}
}

// ParseConfig decodes JSON over the defaults, so absent fields fall back to
// DefaultConfig values.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "cannot decode simulator config")
	}
	return cfg, nil
}

// horizonSteps resolves the lookahead in whole control steps.
func (c Config) horizonSteps() int {
	if c.Interval <= 0 {
		return 1
	}
	steps := int(c.Horizon/c.Interval + 0.5)
	if steps < 1 {
		steps = 1
	}
	return steps
}
