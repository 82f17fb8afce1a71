// Package pointcloud contains stateless operations over projected 3D points.
//
// Every operation is total: empty input gives empty output, and no operation
// mutates its argument. Results are always freshly allocated clouds.
package pointcloud

import (
	"image/color"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Point is a single 3D sample in meters
type Point struct {
	X float32
	Y float32
	Z float32
}

// Vec converts point to double precision vector
func (p Point) Vec() r3.Vec {
	return r3.Vec{X: float64(p.X), Y: float64(p.Y), Z: float64(p.Z)}
}

// PointFromVec converts vector to single precision point
func PointFromVec(v r3.Vec) Point {
	return Point{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
}

// isFinite reports whether all coordinates are finite numbers
func (p Point) isFinite() bool {
	return !math.IsNaN(float64(p.X)) && !math.IsInf(float64(p.X), 0) &&
		!math.IsNaN(float64(p.Y)) && !math.IsInf(float64(p.Y), 0) &&
		!math.IsNaN(float64(p.Z)) && !math.IsInf(float64(p.Z), 0)
}

// Cloud is an ordered set of points. Colors is either empty or has exactly one entry per point.
type Cloud struct {
	Points []Point
	Colors []color.RGBA
}

// NewCloud wraps points into a cloud without colors
func NewCloud(points []Point) Cloud {
	return Cloud{Points: points}
}

// Len returns number of points
func (c Cloud) Len() int {
	return len(c.Points)
}

// IsEmpty reports whether cloud holds no points
func (c Cloud) IsEmpty() bool {
	return len(c.Points) == 0
}

// HasColors reports whether every point has a paired color
func (c Cloud) HasColors() bool {
	return len(c.Colors) == len(c.Points) && len(c.Points) > 0
}

// Clone returns deep copy of the cloud
func (c Cloud) Clone() Cloud {
	out := Cloud{}
	if len(c.Points) > 0 {
		out.Points = make([]Point, len(c.Points))
		copy(out.Points, c.Points)
	}
	if c.HasColors() {
		out.Colors = make([]color.RGBA, len(c.Colors))
		copy(out.Colors, c.Colors)
	}
	return out
}

// Subset returns new cloud made of points at given indices (order is preserved)
func (c Cloud) Subset(indices []int) Cloud {
	out := Cloud{Points: make([]Point, 0, len(indices))}
	withColors := c.HasColors()
	if withColors {
		out.Colors = make([]color.RGBA, 0, len(indices))
	}
	for _, idx := range indices {
		out.Points = append(out.Points, c.Points[idx])
		if withColors {
			out.Colors = append(out.Colors, c.Colors[idx])
		}
	}
	return out
}

// Vecs returns points converted to double precision vectors
func (c Cloud) Vecs() []r3.Vec {
	vecs := make([]r3.Vec, len(c.Points))
	for i, p := range c.Points {
		vecs[i] = p.Vec()
	}
	return vecs
}

// Centroid returns mean position. False is returned for empty cloud.
func (c Cloud) Centroid() (r3.Vec, bool) {
	if len(c.Points) == 0 {
		return r3.Vec{}, false
	}
	var sum r3.Vec
	for _, p := range c.Points {
		sum = r3.Add(sum, p.Vec())
	}
	return r3.Scale(1/float64(len(c.Points)), sum), true
}

// Bounds returns per-axis minimum and maximum. False is returned for empty cloud.
func (c Cloud) Bounds() (min, max r3.Vec, ok bool) {
	if len(c.Points) == 0 {
		return r3.Vec{}, r3.Vec{}, false
	}
	min = c.Points[0].Vec()
	max = min
	for _, p := range c.Points[1:] {
		v := p.Vec()
		min.X = math.Min(min.X, v.X)
		min.Y = math.Min(min.Y, v.Y)
		min.Z = math.Min(min.Z, v.Z)
		max.X = math.Max(max.X, v.X)
		max.Y = math.Max(max.Y, v.Y)
		max.Z = math.Max(max.Z, v.Z)
	}
	return min, max, true
}

// Concat joins clouds in order. Colors are kept only when every input carries them.
func Concat(clouds ...Cloud) Cloud {
	total := 0
	allColored := true
	for _, c := range clouds {
		total += c.Len()
		if c.Len() > 0 && !c.HasColors() {
			allColored = false
		}
	}
	out := Cloud{Points: make([]Point, 0, total)}
	for _, c := range clouds {
		out.Points = append(out.Points, c.Points...)
		if allColored && total > 0 {
			out.Colors = append(out.Colors, c.Colors...)
		}
	}
	return out
}

// Transform applies fn to every point and returns new cloud
func (c Cloud) Transform(fn func(r3.Vec) r3.Vec) Cloud {
	out := c.Clone()
	for i, p := range out.Points {
		out.Points[i] = PointFromVec(fn(p.Vec()))
	}
	return out
}
