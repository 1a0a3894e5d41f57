package motornoise

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// HorizonResult is the outcome of a whole-horizon noise pass.
type HorizonResult struct {
	// Deltas are screen-frame position deltas, one per horizon step.
	Deltas []r2.Point
	// Vels are noisy screen-frame velocities, length horizon+1.
	Vels []r2.Point
	// IdealHandDelta is the hand drift the noiseless velocities would have
	// produced. Diagnostic only.
	IdealHandDelta r2.Point
}

// Horizon runs the noise pipeline across a planned velocity profile of
// length horizon+1 (current velocity first), mutating the hand state once
// for the whole pass.
//
// A second pass measures the net drift of the noisy hand-kinematics pass
// against a velocity-trapezoid baseline and re-injects it as a constant
// per-step velocity bias, so the realized horizon path is statistically
// unbiased relative to the commanded profile.
func (m *Model) Horizon(velX, velY []float64, hand *HandState) (*HorizonResult, error) {
	if len(velX) != len(velY) {
		return nil, errors.Errorf("velocity component lengths differ: %d vs %d", len(velX), len(velY))
	}
	if len(velX) < 2 {
		return nil, errors.Errorf("horizon needs at least 2 velocity samples, got %d", len(velX))
	}
	steps := len(velX) - 1

	vels := make([]r2.Point, steps+1)
	gains := make([]float64, steps+1)
	velsDev := make([]r2.Point, steps+1)
	for k := range vels {
		vels[k] = r2.Point{X: velX[k], Y: velY[k]}
		gains[k] = safeGain(transferGain(vels[k].Norm()))
		velsDev[k] = vels[k].Mul(1 / gains[k])
	}

	// Ideal hand drift from the noiseless device velocities.
	idealHand := m.handKinematicsPass(velsDev, hand.Pos)
	idealHandDelta := idealHand.Sub(hand.Pos)

	// Motor noise on the device-frame velocities, back to screen frame.
	noisyDev := m.motorNoisePass(velsDev, r2.Point{})
	noisy := make([]r2.Point, steps+1)
	for k := range noisy {
		noisy[k] = noisyDev[k].Mul(gains[k])
	}

	// First pass through the hand kinematics to measure transfer drift.
	mouseDeltas, newHand := m.handDeltasPass(noisy, gains, hand.Pos)

	var mouseSum, baseSum r2.Point
	for k := 0; k < steps; k++ {
		mouseSum = mouseSum.Add(mouseDeltas[k])
		baseSum = baseSum.Add(noisy[k].Add(noisy[k+1]).Mul(0.5 * m.dt))
	}
	span := math.Max(float64(steps)*m.dt, math.SmallestNonzeroFloat64)
	bias := mouseSum.Sub(baseSum).Mul(1 / span)

	// Second pass: trapezoid over the bias-shifted velocities.
	final := m.motorNoiseApply(noisy, bias)
	deltas := make([]r2.Point, steps)
	outVels := make([]r2.Point, steps+1)
	outVels[0] = final[0]
	for k := 0; k < steps; k++ {
		deltas[k] = final[k].Add(final[k+1]).Mul(0.5 * m.dt)
		outVels[k+1] = final[k+1]
		if !finitePoint(deltas[k]) {
			deltas[k] = r2.Point{}
		}
		if !finitePoint(outVels[k+1]) {
			outVels[k+1] = r2.Point{}
		}
	}
	if !finitePoint(outVels[0]) {
		outVels[0] = r2.Point{}
	}

	if finitePoint(newHand) {
		hand.Pos = newHand
	} else {
		hand.Pos = idealHand
	}

	return &HorizonResult{
		Deltas:         deltas,
		Vels:           outVels,
		IdealHandDelta: idealHandDelta,
	}, nil
}

// motorNoisePass perturbs every velocity after the first with the dual
// Gaussian sources plus a constant bias. The first sample is the current
// velocity and stays untouched.
func (m *Model) motorNoisePass(vels []r2.Point, bias r2.Point) []r2.Point {
	out := make([]r2.Point, len(vels))
	out[0] = vels[0]
	for k := 1; k < len(vels); k++ {
		v := vels[k]
		speed := v.Norm()
		var dir r2.Point
		if speed > 0 {
			dir = v.Mul(1 / speed)
		}
		perp := r2.Point{X: -dir.Y, Y: dir.X}
		along := m.coeffAlong * speed * m.normal.Rand()
		across := m.coeffPerp * speed * m.normal.Rand()
		out[k] = v.Add(dir.Mul(along)).Add(perp.Mul(across)).Add(bias)
	}
	return out
}

// motorNoiseApply shifts every velocity after the first by a constant bias
// without drawing noise, the zero-coefficient pass of the pipeline.
func (m *Model) motorNoiseApply(vels []r2.Point, bias r2.Point) []r2.Point {
	out := make([]r2.Point, len(vels))
	out[0] = vels[0]
	for k := 1; k < len(vels); k++ {
		out[k] = vels[k].Add(bias)
	}
	return out
}

// handKinematicsPass advances the hand through the forearm-pivot kinematics
// for a device-frame velocity profile and returns the final hand position.
func (m *Model) handKinematicsPass(velsDev []r2.Point, hand r2.Point) r2.Point {
	for k := 1; k < len(velsDev); k++ {
		devDelta := velsDev[k-1].Add(velsDev[k]).Mul(0.5 * m.dt)
		ori := handOrientation(hand, m.forearm)
		hand = hand.Add(rotate(devDelta, -ori))
	}
	return hand
}

// handDeltasPass runs screen-frame velocities through the full gain + pivot
// transfer, returning the realized screen deltas and the final hand
// position.
func (m *Model) handDeltasPass(vels []r2.Point, gains []float64, hand r2.Point) ([]r2.Point, r2.Point) {
	deltas := make([]r2.Point, len(vels)-1)
	for k := 1; k < len(vels); k++ {
		raw := vels[k-1].Add(vels[k]).Mul(0.5 * m.dt)
		gain := gains[k]
		prev := hand
		ori := handOrientation(prev, m.forearm)
		if abs(raw.X) > movementTol || abs(raw.Y) > movementTol {
			hand = prev.Add(rotate(raw.Mul(1/gain), -ori))
			deltas[k-1] = cursorDisplacement(prev, hand, m.forearm, gain)
		} else {
			deltas[k-1] = raw
		}
	}
	return deltas, hand
}
