// Package corridor models the allowed lateral travel region around a
// reference path: left/right clearance as a function of arclength, and the
// interpretation of keep-out/keep-in constraint geometry into clearances.
package corridor

// A Bound reports the allowed lateral clearance, in meters, at a given
// arclength along the reference path. Clearances are never negative.
type Bound interface {
	Clearance(s float64) float64
}

// Constant is a Bound with the same clearance everywhere.
type Constant float64

// Clearance implements Bound.
func (c Constant) Clearance(float64) float64 {
	return float64(c)
}

// Func adapts an arbitrary clearance function to the Bound interface.
type Func func(s float64) float64

// Clearance implements Bound.
func (f Func) Clearance(s float64) float64 {
	return f(s)
}

// Sampled is a Bound backed by evenly spaced clearance samples over a path of
// known total length. Lookups use nearest-sample indexing.
type Sampled struct {
	values      []float64
	totalLength float64
}

// NewSampled wraps clearance samples spanning [0, totalLength].
func NewSampled(values []float64, totalLength float64) *Sampled {
	return &Sampled{values: values, totalLength: totalLength}
}

// Clearance implements Bound.
func (b *Sampled) Clearance(s float64) float64 {
	if len(b.values) == 0 {
		return 0
	}
	idx := 0
	if b.totalLength > 0 {
		idx = int(s / b.totalLength * float64(len(b.values)-1))
	}
	if idx < 0 {
		idx = 0
	}
	if idx > len(b.values)-1 {
		idx = len(b.values) - 1
	}
	return b.values[idx]
}
