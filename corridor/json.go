package corridor

import (
	"encoding/json"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// Config is a parsed constraint set plus the coordinate conventions its
// geometry was expressed in.
type Config struct {
	Regions          []Region
	CoordinateSystem string
	DefaultMargin    float64
}

type constraintsJSON struct {
	LeftBoundary     [][]float64  `json:"left_boundary"`
	RightBoundary    [][]float64  `json:"right_boundary"`
	Regions          []regionJSON `json:"regions"`
	CoordinateSystem string       `json:"coordinate_system"`
	DefaultMargin    float64      `json:"default_margin"`
}

type regionJSON struct {
	Enabled        *bool        `json:"enabled"`
	ConstraintType string       `json:"constraint_type"`
	Geometry       geometryJSON `json:"geometry"`
	Margin         *float64     `json:"margin"`
}

type geometryJSON struct {
	Type     string      `json:"type"`
	Center   []float64   `json:"center"`
	Radius   float64     `json:"radius"`
	X        float64     `json:"x"`
	Y        float64     `json:"y"`
	Width    *float64    `json:"width"`
	Height   float64     `json:"height"`
	Vertices [][]float64 `json:"vertices"`
	Path     [][]float64 `json:"path"`
	Start    []float64   `json:"start"`
	End      []float64   `json:"end"`
}

// ParseConfig decodes a constraint configuration from JSON. A payload with no
// usable regions decodes to nil rather than an error.
func ParseConfig(data []byte) (*Config, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw constraintsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "cannot decode constraints")
	}

	var regions []Region

	// Bare boundary polylines act as keep-in lines without thickness.
	for _, boundary := range [][][]float64{raw.LeftBoundary, raw.RightBoundary} {
		if len(boundary) == 0 {
			continue
		}
		regions = append(regions, NewRegion(KeepIn, PathLine(toPoints(boundary), 0, false)))
	}

	for _, rj := range raw.Regions {
		if rj.Enabled != nil && !*rj.Enabled {
			continue
		}
		kind := KeepOut
		if rj.ConstraintType == "keep_in" {
			kind = KeepIn
		}

		var geom Geometry
		switch rj.Geometry.Type {
		case "circle":
			if len(rj.Geometry.Center) < 2 {
				return nil, errors.New("circle constraint requires a 2D center")
			}
			geom = Circle(r2.Point{X: rj.Geometry.Center[0], Y: rj.Geometry.Center[1]}, rj.Geometry.Radius)
		case "rectangle":
			width := 0.0
			if rj.Geometry.Width != nil {
				width = *rj.Geometry.Width
			}
			geom = Rectangle(rj.Geometry.X, rj.Geometry.Y, width, rj.Geometry.Height)
		case "polygon":
			geom = Polygon(toPoints(rj.Geometry.Vertices))
		case "line", "path":
			pts := rj.Geometry.Path
			if len(pts) == 0 && len(rj.Geometry.Start) == 2 && len(rj.Geometry.End) == 2 {
				pts = [][]float64{rj.Geometry.Start, rj.Geometry.End}
			}
			width, hasWidth := 0.0, false
			if rj.Geometry.Width != nil {
				width, hasWidth = *rj.Geometry.Width, true
			}
			geom = PathLine(toPoints(pts), width, hasWidth)
		default:
			continue
		}

		region := NewRegion(kind, geom)
		if rj.Margin != nil {
			region.Margin = *rj.Margin
		}
		regions = append(regions, region)
	}

	if len(regions) == 0 {
		return nil, nil
	}

	cfg := &Config{
		Regions:          regions,
		CoordinateSystem: raw.CoordinateSystem,
		DefaultMargin:    raw.DefaultMargin,
	}
	if cfg.CoordinateSystem == "" {
		cfg.CoordinateSystem = "normalized"
	}
	return cfg, nil
}

// Scale converts every geometry coordinate (and length) by the given factor,
// used to map pixel-space constraints into metric path space.
func (c *Config) Scale(factor float64) {
	for i := range c.Regions {
		g := &c.Regions[i].Geometry
		g.center = g.center.Mul(factor)
		g.radius *= factor
		g.x *= factor
		g.y *= factor
		g.width *= factor
		g.height *= factor
		for j := range g.vertices {
			g.vertices[j] = g.vertices[j].Mul(factor)
		}
		for j := range g.path {
			g.path[j] = g.path[j].Mul(factor)
		}
		g.pathWidth *= factor
		if !math.IsNaN(c.Regions[i].Margin) {
			c.Regions[i].Margin *= factor
		}
	}
	c.DefaultMargin *= factor
}

func toPoints(coords [][]float64) []r2.Point {
	pts := make([]r2.Point, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		pts = append(pts, r2.Point{X: c[0], Y: c[1]})
	}
	return pts
}
