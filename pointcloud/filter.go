package pointcloud

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Axis selects a coordinate for height filtering
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) component(p Point) float64 {
	switch a {
	case AxisX:
		return float64(p.X)
	case AxisY:
		return float64(p.Y)
	default:
		return float64(p.Z)
	}
}

// String returns axis name
func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	default:
		return "z"
	}
}

// ParseAxis converts "x", "y" or "z" into Axis. Unknown names map to AxisZ and false.
func ParseAxis(name string) (Axis, bool) {
	switch name {
	case "x", "X":
		return AxisX, true
	case "y", "Y":
		return AxisY, true
	case "z", "Z":
		return AxisZ, true
	}
	return AxisZ, false
}

// FilterRange keeps points whose distance from origin lies in [minDistance, maxDistance].
// Non-positive maxDistance means no upper bound. Non-finite points are dropped.
func FilterRange(c Cloud, minDistance, maxDistance float64) Cloud {
	if maxDistance <= 0 {
		maxDistance = math.Inf(1)
	}
	keep := make([]int, 0, c.Len())
	for i, p := range c.Points {
		if !p.isFinite() {
			continue
		}
		d := r3.Norm(p.Vec())
		if d >= minDistance && d <= maxDistance {
			keep = append(keep, i)
		}
	}
	return c.Subset(keep)
}

// FilterHeight keeps finite points whose coordinate along axis lies in [minHeight, maxHeight]
func FilterHeight(c Cloud, axis Axis, minHeight, maxHeight float64) Cloud {
	keep := make([]int, 0, c.Len())
	for i, p := range c.Points {
		if !p.isFinite() {
			continue
		}
		h := axis.component(p)
		if h >= minHeight && h <= maxHeight {
			keep = append(keep, i)
		}
	}
	return c.Subset(keep)
}

// DropNonFinite removes NaN and infinite points
func DropNonFinite(c Cloud) Cloud {
	keep := make([]int, 0, c.Len())
	for i, p := range c.Points {
		if p.isFinite() {
			keep = append(keep, i)
		}
	}
	return c.Subset(keep)
}
