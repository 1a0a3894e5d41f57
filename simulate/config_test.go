package simulate

import (
	"testing"

	"go.viam.com/test"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	test.That(t, cfg.Interval, test.ShouldAlmostEqual, 0.05)
	test.That(t, cfg.Horizon, test.ShouldAlmostEqual, 0.3)
	test.That(t, cfg.NoiseCoeffs[0], test.ShouldAlmostEqual, 0.2)
	test.That(t, cfg.NoiseCoeffs[1], test.ShouldAlmostEqual, 0.02)
	test.That(t, cfg.Forearm, test.ShouldAlmostEqual, 0.357)
	test.That(t, cfg.PlannerMargin, test.ShouldAlmostEqual, 0.005)
	test.That(t, cfg.AccMax, test.ShouldAlmostEqual, 100)
	test.That(t, cfg.AddNoise, test.ShouldBeTrue)
	test.That(t, cfg.Seed, test.ShouldEqual, uint64(1000))
	test.That(t, cfg.MaxSteps, test.ShouldEqual, 2000)
	test.That(t, cfg.TargetRadius, test.ShouldAlmostEqual, 0.01)
	test.That(t, cfg.UseOptimalPath, test.ShouldBeTrue)
	test.That(t, cfg.RealTime, test.ShouldBeFalse)
}

func TestParseConfigPartial(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"interval": 0.02, "add_noise": false, "nc": [0.1, 0.01]}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Interval, test.ShouldAlmostEqual, 0.02)
	test.That(t, cfg.AddNoise, test.ShouldBeFalse)
	test.That(t, cfg.NoiseCoeffs[0], test.ShouldAlmostEqual, 0.1)
	// Untouched fields keep their defaults.
	test.That(t, cfg.Horizon, test.ShouldAlmostEqual, 0.3)
	test.That(t, cfg.MaxSteps, test.ShouldEqual, 2000)
	test.That(t, cfg.PlannerWeights.Contour, test.ShouldAlmostEqual, DefaultConfig().PlannerWeights.Contour)
}

func TestParseConfigWeights(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"planner_weights": {"contour": 5, "desired_speed": 0.1}}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.PlannerWeights.Contour, test.ShouldAlmostEqual, 5)
	test.That(t, cfg.PlannerWeights.DesiredSpeed, test.ShouldAlmostEqual, 0.1)
}

func TestParseConfigEmptyAndBad(t *testing.T) {
	cfg, err := ParseConfig(nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Interval, test.ShouldAlmostEqual, 0.05)

	_, err = ParseConfig([]byte(`{`))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestHorizonSteps(t *testing.T) {
	cfg := DefaultConfig()
	test.That(t, cfg.horizonSteps(), test.ShouldEqual, 6)

	cfg.Horizon = 0.5
	test.That(t, cfg.horizonSteps(), test.ShouldEqual, 10)

	cfg.Horizon = 0.01
	test.That(t, cfg.horizonSteps(), test.ShouldEqual, 1)

	cfg.Interval = 0
	test.That(t, cfg.horizonSteps(), test.ShouldEqual, 1)
}
