package pointcloud

import (
	"image/color"
	"math"
)

type voxelKey [3]int64

type voxelAccumulator struct {
	sumX, sumY, sumZ float64
	sumR, sumG, sumB float64
	sumA             float64
	count            int
}

// VoxelDownsample groups points into cubic cells of the given size and keeps one
// representative per occupied cell: the cell centroid. Cells are emitted in order of
// their first point. Non-positive size returns a copy.
func VoxelDownsample(c Cloud, size float64) Cloud {
	if c.IsEmpty() {
		return Cloud{}
	}
	if size <= 0 || math.IsNaN(size) {
		return c.Clone()
	}
	withColors := c.HasColors()
	cells := make(map[voxelKey]int, c.Len()/4+1)
	accs := make([]voxelAccumulator, 0, c.Len()/4+1)
	for i, p := range c.Points {
		if !p.isFinite() {
			continue
		}
		key := voxelKey{
			int64(math.Floor(float64(p.X) / size)),
			int64(math.Floor(float64(p.Y) / size)),
			int64(math.Floor(float64(p.Z) / size)),
		}
		idx, ok := cells[key]
		if !ok {
			idx = len(accs)
			cells[key] = idx
			accs = append(accs, voxelAccumulator{})
		}
		acc := &accs[idx]
		acc.sumX += float64(p.X)
		acc.sumY += float64(p.Y)
		acc.sumZ += float64(p.Z)
		if withColors {
			col := c.Colors[i]
			acc.sumR += float64(col.R)
			acc.sumG += float64(col.G)
			acc.sumB += float64(col.B)
			acc.sumA += float64(col.A)
		}
		acc.count++
	}
	out := Cloud{Points: make([]Point, len(accs))}
	if withColors {
		out.Colors = make([]color.RGBA, len(accs))
	}
	for i, acc := range accs {
		n := float64(acc.count)
		out.Points[i] = Point{
			X: float32(acc.sumX / n),
			Y: float32(acc.sumY / n),
			Z: float32(acc.sumZ / n),
		}
		if withColors {
			out.Colors[i] = color.RGBA{
				R: uint8(math.Round(acc.sumR / n)),
				G: uint8(math.Round(acc.sumG / n)),
				B: uint8(math.Round(acc.sumB / n)),
				A: uint8(math.Round(acc.sumA / n)),
			}
		}
	}
	return out
}
