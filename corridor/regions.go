package corridor

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/steeringlab/cursorplan/refpath"
)

// Kind says whether a region must be avoided or stayed within.
type Kind int

const (
	// KeepOut regions are obstacles the cursor must avoid.
	KeepOut Kind = iota
	// KeepIn regions are boundaries the cursor must stay inside.
	KeepIn
)

type geometryKind int

const (
	circleGeometry geometryKind = iota
	rectangleGeometry
	polygonGeometry
	pathGeometry
)

// Geometry is a closed variant over the supported constraint shapes. Use the
// constructor functions; the zero value is not valid.
type Geometry struct {
	kind geometryKind

	center r2.Point
	radius float64

	x, y, width, height float64

	vertices []r2.Point

	path      []r2.Point
	pathWidth float64
	hasWidth  bool
}

// Circle returns a circular geometry.
func Circle(center r2.Point, radius float64) Geometry {
	return Geometry{kind: circleGeometry, center: center, radius: radius}
}

// Rectangle returns an axis-aligned rectangular geometry anchored at its
// minimum corner.
func Rectangle(x, y, width, height float64) Geometry {
	return Geometry{kind: rectangleGeometry, x: x, y: y, width: width, height: height}
}

// Polygon returns a polygonal geometry over the given vertices.
func Polygon(vertices []r2.Point) Geometry {
	return Geometry{kind: polygonGeometry, vertices: vertices}
}

// PathLine returns a thick-line geometry: a polyline with a corridor width.
// A width of zero marks a boundary line without thickness.
func PathLine(points []r2.Point, width float64, hasWidth bool) Geometry {
	return Geometry{kind: pathGeometry, path: points, pathWidth: width, hasWidth: hasWidth}
}

// Region is one spatial constraint: a geometry plus whether to keep out of it
// or within it. Margin overrides the conversion's default margin when
// non-NaN.
type Region struct {
	Kind     Kind
	Geometry Geometry
	Margin   float64
}

// NewRegion returns a region using the conversion's default margin.
func NewRegion(kind Kind, geom Geometry) Region {
	return Region{Kind: kind, Geometry: geom, Margin: math.NaN()}
}

const (
	// unconstrained stands in for "no wall on this side" while regions are
	// folded together.
	unconstrained = 1e6
	// maxClearance caps the exported clearance at 10 cm.
	maxClearance = 0.1
)

// BoundsFromRegions samples the reference path and folds every region's
// clearance contribution into left/right bound tables. Returns nil bounds
// when there are no regions.
func BoundsFromRegions(regions []Region, path *refpath.Path, defaultMargin float64) (Bound, Bound) {
	if len(regions) == 0 {
		return nil, nil
	}

	length := path.TotalLength()
	numSamples := int(length / 0.01)
	if numSamples < 50 {
		numSamples = 50
	}

	left := make([]float64, numSamples)
	right := make([]float64, numSamples)
	for i := 0; i < numSamples; i++ {
		s := length * float64(i) / float64(numSamples-1)
		pt := path.At(s)
		normal := path.Normal(s)

		lb, rb := unconstrained, unconstrained
		for _, region := range regions {
			margin := region.Margin
			if math.IsNaN(margin) {
				margin = defaultMargin
			}
			rl, rr := region.clearanceAt(pt, normal, margin)
			lb = math.Min(lb, rl)
			rb = math.Min(rb, rr)
		}
		left[i] = math.Min(math.Max(lb, 0), maxClearance)
		right[i] = math.Min(math.Max(rb, 0), maxClearance)
	}

	return NewSampled(left, length), NewSampled(right, length)
}

// clearanceAt returns the (left, right) clearance this region allows at a
// path point with the given right-pointing normal. Sides a region does not
// constrain come back unconstrained.
func (r Region) clearanceAt(pt, normal r2.Point, margin float64) (float64, float64) {
	lb, rb := math.Inf(1), math.Inf(1)

	switch r.Geometry.kind {
	case circleGeometry:
		toCenter := r.Geometry.center.Sub(pt)
		dist := toCenter.Norm()
		if dist >= r.Geometry.radius {
			break
		}
		safe := math.Max(0, r.Geometry.radius-dist-margin)
		if r.Kind == KeepOut {
			// The obstacle edge nearest the path caps the side the center
			// sits on, by the normal projection.
			if toCenter.Dot(normal) < 0 {
				lb = safe
			} else {
				rb = safe
			}
		} else {
			lb, rb = safe, safe
		}

	case rectangleGeometry:
		xMin, xMax := r.Geometry.x, r.Geometry.x+r.Geometry.width
		yMin, yMax := r.Geometry.y, r.Geometry.y+r.Geometry.height
		if pt.X < xMin || pt.X > xMax || pt.Y < yMin || pt.Y > yMax {
			break
		}
		minDist := math.Min(
			math.Min(pt.X-xMin, xMax-pt.X),
			math.Min(pt.Y-yMin, yMax-pt.Y),
		)
		safe := math.Max(0, minDist-margin)
		if r.Kind == KeepIn {
			lb, rb = safe, safe
		} else {
			// Left/right split by the rectangle's x midpoint rather than
			// the path normal projection the circle case uses.
			if pt.X < (xMin+xMax)/2 {
				lb = safe
			} else {
				rb = safe
			}
		}

	case polygonGeometry:
		if len(r.Geometry.vertices) < 3 || !pointInPolygon(pt, r.Geometry.vertices) {
			break
		}
		safe := math.Max(0, distanceToPolygonEdge(pt, r.Geometry.vertices)-margin)
		if r.Kind == KeepOut {
			if polygonCentroid(r.Geometry.vertices).Sub(pt).Dot(normal) < 0 {
				lb = safe
			} else {
				rb = safe
			}
		} else {
			lb, rb = safe, safe
		}

	case pathGeometry:
		if !r.Geometry.hasWidth {
			break
		}
		safe := math.Max(0, r.Geometry.pathWidth/2-margin)
		lb, rb = safe, safe
	}

	return lb, rb
}

// pointInPolygon runs the even-odd ray cast.
func pointInPolygon(pt r2.Point, verts []r2.Point) bool {
	inside := false
	j := len(verts) - 1
	for i := 0; i < len(verts); i++ {
		vi, vj := verts[i], verts[j]
		if (vi.Y > pt.Y) != (vj.Y > pt.Y) &&
			pt.X < (vj.X-vi.X)*(pt.Y-vi.Y)/(vj.Y-vi.Y)+vi.X {
			inside = !inside
		}
		j = i
	}
	return inside
}

func distanceToPolygonEdge(pt r2.Point, verts []r2.Point) float64 {
	best := math.Inf(1)
	j := len(verts) - 1
	for i := 0; i < len(verts); i++ {
		best = math.Min(best, distanceToSegment(pt, verts[j], verts[i]))
		j = i
	}
	return best
}

func distanceToSegment(pt, a, b r2.Point) float64 {
	ab := b.Sub(a)
	len2 := ab.Dot(ab)
	if len2 < 1e-12 {
		return pt.Sub(a).Norm()
	}
	t := pt.Sub(a).Dot(ab) / len2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return pt.Sub(a.Add(ab.Mul(t))).Norm()
}

func polygonCentroid(verts []r2.Point) r2.Point {
	var c r2.Point
	for _, v := range verts {
		c = c.Add(v)
	}
	return c.Mul(1 / float64(len(verts)))
}
