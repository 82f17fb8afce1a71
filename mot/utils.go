package mot

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/LdDl/mot3d-go/bbox3d"
)

// IoU calculates Intersection over Union between two rectangles.
func IoU(r1, r2 Rectangle) float64 {
	xA := maxFloat64(r1.X, r2.X)
	yA := maxFloat64(r1.Y, r2.Y)
	xB := minFloat64(r1.X+r1.Width, r2.X+r2.Width)
	yB := minFloat64(r1.Y+r1.Height, r2.Y+r2.Height)

	interArea := maxFloat64(0, xB-xA) * maxFloat64(0, yB-yA)
	if interArea == 0 {
		return 0.0
	}

	r1Area := r1.Width * r1.Height
	r2Area := r2.Width * r2.Height
	return interArea / (r1Area + r2Area - interArea)
}

// IoU3D calculates overlap volume over union volume of two boxes taken in
// centered/extent form. Yaw is ignored.
func IoU3D(b1, b2 bbox3d.Box) float64 {
	min1, max1 := b1.Min(), b1.Max()
	min2, max2 := b2.Min(), b2.Max()

	dx := minFloat64(max1.X, max2.X) - maxFloat64(min1.X, min2.X)
	dy := minFloat64(max1.Y, max2.Y) - maxFloat64(min1.Y, min2.Y)
	dz := minFloat64(max1.Z, max2.Z) - maxFloat64(min1.Z, min2.Z)
	if dx <= 0 || dy <= 0 || dz <= 0 {
		return 0.0
	}
	interVolume := dx * dy * dz
	union := b1.Volume() + b2.Volume() - interVolume
	if union <= 0 {
		return 0.0
	}
	return interVolume / union
}

// DistanceScore maps center distance into [0, 1]: 1 for the same center and 0 at maxDistance or beyond
func DistanceScore(b1, b2 bbox3d.Box, maxDistance float64) float64 {
	d := r3.Norm(r3.Sub(b1.Center, b2.Center))
	return 1 - minFloat64(d/maxDistance, 1)
}

func maxFloat64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
