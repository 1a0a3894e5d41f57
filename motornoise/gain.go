// Package motornoise perturbs planned cursor velocity with a physiologically
// grounded noise model: pointer gain transfer, forearm-pivot kinematics, and
// dual Gaussian motor noise sources drawn from one sequential stream per
// trajectory.
package motornoise

import (
	"math"

	"github.com/golang/geo/r2"
)

// Transfer-gain curve constants. The curve is monotonic and saturating: slow
// movements see roughly baseGain, fast movements level off near
// baseGain+gainSpan, with halfSpeed the speed at half span.
const (
	baseGain  = 1.0
	gainSpan  = 9.0
	halfSpeed = 0.3
)

// transferGain maps screen-frame cursor speed (m/s) to the pointer transfer
// gain dividing it down into device-frame hand speed.
func transferGain(speed float64) float64 {
	s2 := speed * speed
	return baseGain + gainSpan*s2/(s2+halfSpeed*halfSpeed)
}

// safeGain clamps a gain to the smallest positive normal float when it is
// non-finite or vanishing, so divisions by it stay finite.
func safeGain(gain float64) float64 {
	tiny := math.SmallestNonzeroFloat64
	if math.IsNaN(gain) || math.IsInf(gain, 0) || gain < tiny {
		return tiny
	}
	return gain
}

// handOrientation returns the hand's rotation about the forearm pivot. The
// pivot sits a forearm length behind the neutral hand position, so the angle
// is measured between the pivot-to-hand vector and the neutral axis.
func handOrientation(hand r2.Point, forearm float64) float64 {
	return math.Atan2(hand.X, hand.Y+forearm)
}

// rotate rotates v by angle radians.
func rotate(v r2.Point, angle float64) r2.Point {
	sin, cos := math.Sincos(angle)
	return r2.Point{
		X: v.X*cos - v.Y*sin,
		Y: v.X*sin + v.Y*cos,
	}
}

// cursorDisplacement recomputes the screen-frame cursor displacement implied
// by an actual hand movement: the device-frame reading is the hand
// displacement expressed in the mouse's rotated frame at the end of the
// motion, scaled back up by the transfer gain.
func cursorDisplacement(prevHand, newHand r2.Point, forearm, gain float64) r2.Point {
	ori := handOrientation(newHand, forearm)
	device := rotate(newHand.Sub(prevHand), ori)
	return device.Mul(gain)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finitePoint(p r2.Point) bool {
	return finite(p.X) && finite(p.Y)
}
