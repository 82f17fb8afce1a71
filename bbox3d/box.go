// Package bbox3d fits oriented 3D boxes to object point clouds.
//
// Boxes live in ground coordinates: X forward, Y left, Z up. Yaw is rotation
// around Z, counted from X towards Y, and Length is measured along yaw.
package bbox3d

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Class identifies detection category
type Class struct {
	ID   int
	Name string
}

// Box is a fitted 3D bounding box plus attached metadata
type Box struct {
	Center r3.Vec
	Length float64
	Width  float64
	Height float64
	Yaw    float64

	PointCount int
	Confidence float64
	Class      Class
	// TrackID is zero until a tracker assigns identity (identifiers start from 1)
	TrackID int
	// Distance is center-patch depth of the source mask, nil when unavailable
	Distance *float64
}

// Volume returns box volume
func (b Box) Volume() float64 {
	return b.Length * b.Width * b.Height
}

// Min returns lower corner of the yaw-ignoring (centered/extent) form
func (b Box) Min() r3.Vec {
	return r3.Vec{X: b.Center.X - b.Length/2, Y: b.Center.Y - b.Width/2, Z: b.Center.Z - b.Height/2}
}

// Max returns upper corner of the yaw-ignoring (centered/extent) form
func (b Box) Max() r3.Vec {
	return r3.Vec{X: b.Center.X + b.Length/2, Y: b.Center.Y + b.Width/2, Z: b.Center.Z + b.Height/2}
}

// Corners returns 8 corners of oriented box: bottom face first, counter-clockwise
// starting from front-left.
func (b Box) Corners() [8]r3.Vec {
	cos, sin := math.Cos(b.Yaw), math.Sin(b.Yaw)
	hl, hw, hh := b.Length/2, b.Width/2, b.Height/2
	local := [4][2]float64{{hl, hw}, {-hl, hw}, {-hl, -hw}, {hl, -hw}}
	var corners [8]r3.Vec
	for i, xy := range local {
		x := b.Center.X + xy[0]*cos - xy[1]*sin
		y := b.Center.Y + xy[0]*sin + xy[1]*cos
		corners[i] = r3.Vec{X: x, Y: y, Z: b.Center.Z - hh}
		corners[i+4] = r3.Vec{X: x, Y: y, Z: b.Center.Z + hh}
	}
	return corners
}

// WithDistance returns copy of the box carrying center-patch depth
func (b Box) WithDistance(d float64) Box {
	b.Distance = &d
	return b
}

// Clone returns deep copy (Distance is not shared)
func (b Box) Clone() Box {
	if b.Distance != nil {
		d := *b.Distance
		b.Distance = &d
	}
	return b
}
