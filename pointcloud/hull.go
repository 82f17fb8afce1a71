package pointcloud

import (
	"math"
	"sort"
)

type point2 struct {
	x float64
	y float64
}

func cross2(o, a, b point2) float64 {
	return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
}

// convexHull returns counter-clockwise hull of points (Andrew's monotone chain).
// Collinear points on hull edges are dropped.
func convexHull(points []point2) []point2 {
	pts := make([]point2, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y < pts[j].y
	})
	// dedup
	uniq := pts[:0]
	for i, p := range pts {
		if i > 0 && p == pts[i-1] {
			continue
		}
		uniq = append(uniq, p)
	}
	pts = uniq
	if len(pts) < 3 {
		return pts
	}
	hull := make([]point2, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross2(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross2(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// minAreaRect runs rotating calipers over hull edges. One rectangle side is always
// collinear with some hull edge, so checking every edge direction is exhaustive.
func minAreaRect(hull []point2) (center point2, length, width, yaw float64, ok bool) {
	if len(hull) < 3 {
		return point2{}, 0, 0, 0, false
	}
	bestArea := math.Inf(1)
	for i := range hull {
		a := hull[i]
		b := hull[(i+1)%len(hull)]
		ex, ey := b.x-a.x, b.y-a.y
		norm := math.Hypot(ex, ey)
		if norm == 0 {
			continue
		}
		dir := point2{ex / norm, ey / norm}
		perp := point2{-dir.y, dir.x}
		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			u := p.x*dir.x + p.y*dir.y
			v := p.x*perp.x + p.y*perp.y
			minU = math.Min(minU, u)
			maxU = math.Max(maxU, u)
			minV = math.Min(minV, v)
			maxV = math.Max(maxV, v)
		}
		extU, extV := maxU-minU, maxV-minV
		area := extU * extV
		if area >= bestArea {
			continue
		}
		bestArea = area
		midU, midV := (minU+maxU)/2, (minV+maxV)/2
		center = point2{
			x: dir.x*midU + perp.x*midV,
			y: dir.y*midU + perp.y*midV,
		}
		if extU >= extV {
			length, width = extU, extV
			yaw = math.Atan2(dir.y, dir.x)
		} else {
			length, width = extV, extU
			yaw = math.Atan2(perp.y, perp.x)
		}
	}
	if math.IsInf(bestArea, 1) || bestArea <= 0 {
		return point2{}, 0, 0, 0, false
	}
	return center, length, width, NormalizeYaw(yaw), true
}

// NormalizeYaw maps heading of a symmetric box into (-pi/2, pi/2]
func NormalizeYaw(yaw float64) float64 {
	yaw = math.Mod(yaw, math.Pi)
	if yaw <= -math.Pi/2 {
		yaw += math.Pi
	} else if yaw > math.Pi/2 {
		yaw -= math.Pi
	}
	return yaw
}
