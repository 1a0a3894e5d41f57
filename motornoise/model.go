package motornoise

import (
	"github.com/golang/geo/r2"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// movementTol is the displacement below which the hand is considered
// stationary and the rotation correction is skipped.
const movementTol = 1e-10

// HandState is the physical hand position in device space. It is owned by
// the caller, mutated only by the noise model, and persists across steps to
// accumulate hand drift.
type HandState struct {
	Pos r2.Point
}

// Model transforms planned screen-frame velocity into noisy device motion.
// It owns one seeded pseudorandom stream, consumed sequentially, so a fixed
// seed reproduces a trajectory exactly; parallel trajectories need separate
// models.
type Model struct {
	coeffAlong float64
	coeffPerp  float64
	dt         float64
	forearm    float64
	normal     distuv.Normal
}

// NewModel builds a noise model. coeffs scales noise along and perpendicular
// to the velocity direction, dt is the control interval in seconds, forearm
// the pivot distance in meters.
func NewModel(coeffs [2]float64, dt, forearm float64, seed uint64) *Model {
	return &Model{
		coeffAlong: coeffs[0],
		coeffPerp:  coeffs[1],
		dt:         dt,
		forearm:    forearm,
		normal:     distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewSource(seed)},
	}
}

// StepResult is the outcome of one noise step.
type StepResult struct {
	// Delta is the screen-frame cursor position delta over the step.
	Delta r2.Point
	// Vel is the noisy screen-frame velocity after the step.
	Vel r2.Point
	// HandDelta is the realized hand-position change.
	HandDelta r2.Point
	// IdealHandDelta is the hand-position change the noiseless velocity
	// would have produced. Diagnostic only.
	IdealHandDelta r2.Point
}

// Step runs the single-step noise pipeline on a planned velocity, mutating
// the hand state. All outputs are guarded: a non-finite intermediate never
// produces a non-finite delta, velocity, or hand position.
func (m *Model) Step(vel r2.Point, hand *HandState) StepResult {
	speed := vel.Norm()
	gain := safeGain(transferGain(speed))
	velDev := vel.Mul(1 / gain)

	prevHand := hand.Pos
	oriPrev := handOrientation(prevHand, m.forearm)

	// Noiseless hand delta, for diagnostics.
	idealHandDelta := rotate(velDev.Mul(m.dt), -oriPrev)
	idealHand := prevHand.Add(idealHandDelta)

	// Motor noise in the device frame, decomposed along and across the
	// movement direction. Zero speed leaves a zero direction and injects
	// nothing.
	devSpeed := velDev.Norm()
	var dir r2.Point
	if devSpeed > 0 {
		dir = velDev.Mul(1 / devSpeed)
	}
	perp := r2.Point{X: -dir.Y, Y: dir.X}
	noiseAlong := m.coeffAlong * devSpeed * m.normal.Rand()
	noisePerp := m.coeffPerp * devSpeed * m.normal.Rand()
	velNoisyDev := velDev.Add(dir.Mul(noiseAlong)).Add(perp.Mul(noisePerp))

	velNoisy := velNoisyDev.Mul(gain)

	// Trapezoidal integration of old and new screen-frame velocity.
	delta := vel.Add(velNoisy).Mul(0.5 * m.dt)

	if abs(delta.X) > movementTol || abs(delta.Y) > movementTol {
		handDelta := rotate(delta.Mul(1/gain), -oriPrev)
		hand.Pos = prevHand.Add(handDelta)
		// The hand rotated about the pivot while moving; recompute the
		// cursor displacement the moved hand actually produced.
		delta = cursorDisplacement(prevHand, hand.Pos, m.forearm, gain)
	}

	if !finitePoint(delta) {
		delta = r2.Point{}
	}
	if !finitePoint(velNoisy) {
		velNoisy = r2.Point{}
	}
	if !finitePoint(hand.Pos) {
		hand.Pos = idealHand
	}

	return StepResult{
		Delta:          delta,
		Vel:            velNoisy,
		HandDelta:      hand.Pos.Sub(prevHand),
		IdealHandDelta: idealHandDelta,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
