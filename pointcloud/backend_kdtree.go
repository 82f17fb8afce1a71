package pointcloud

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"
)

// KDTreeBackend is the full geometry backend: exact kNN statistics through
// gonum k-d tree and minimum-area oriented boxes through convex hull.
type KDTreeBackend struct{}

// Kind returns BackendKDTree
func (KDTreeBackend) Kind() BackendKind {
	return BackendKDTree
}

// RemoveOutliers computes mean distance from every point to its k nearest
// neighbours and drops points above mean + stdRatio*std of those distances.
func (KDTreeBackend) RemoveOutliers(c Cloud, neighbors int, stdRatio float64) Cloud {
	n := c.Len()
	if n == 0 {
		return Cloud{}
	}
	k := neighbors
	if k > n-1 {
		k = n - 1
	}
	if k < 1 {
		return c.Clone()
	}

	queries := make(kdtree.Points, n)
	for i, p := range c.Points {
		queries[i] = kdtree.Point{float64(p.X), float64(p.Y), float64(p.Z)}
	}
	// kdtree.New reorders its argument, so queries keep the original order
	treePoints := make(kdtree.Points, n)
	copy(treePoints, queries)
	tree := kdtree.New(treePoints, false)

	meanDistances := make([]float64, n)
	for i, q := range queries {
		// +1 because query point itself is in the tree at zero distance
		keeper := kdtree.NewNKeeper(k + 1)
		tree.NearestSet(keeper, q)
		var sum float64
		found := 0
		for _, cd := range keeper.Heap {
			if cd.Comparable == nil {
				continue
			}
			sum += math.Sqrt(cd.Dist)
			found++
		}
		if found > 1 {
			meanDistances[i] = sum / float64(found-1)
		}
	}
	return keepBelowThreshold(c, meanDistances, stdRatio)
}

// MinimumOrientedBox projects points onto the horizontal plane, fits minimal area
// rectangle around the convex hull and spans Z extent for height.
func (KDTreeBackend) MinimumOrientedBox(c Cloud) (OrientedBox, error) {
	if c.Len() < 3 {
		return OrientedBox{}, errors.Wrap(ErrDegenerate, "need at least 3 points for hull")
	}
	flat := make([]point2, c.Len())
	minZ, maxZ := math.Inf(1), math.Inf(-1)
	for i, p := range c.Points {
		flat[i] = point2{x: float64(p.X), y: float64(p.Y)}
		minZ = math.Min(minZ, float64(p.Z))
		maxZ = math.Max(maxZ, float64(p.Z))
	}
	hull := convexHull(flat)
	center, length, width, yaw, ok := minAreaRect(hull)
	if !ok {
		return OrientedBox{}, errors.Wrap(ErrDegenerate, "points are collinear in horizontal plane")
	}
	box := OrientedBox{
		Length: length,
		Width:  width,
		Height: maxZ - minZ,
		Yaw:    yaw,
	}
	box.Center.X = center.x
	box.Center.Y = center.y
	box.Center.Z = (minZ + maxZ) / 2
	return box, nil
}

// keepBelowThreshold retains points whose score is not above mean + stdRatio*std
func keepBelowThreshold(c Cloud, scores []float64, stdRatio float64) Cloud {
	if len(scores) < 2 {
		return c.Clone()
	}
	mean, std := stat.MeanStdDev(scores, nil)
	threshold := mean + stdRatio*std
	keep := make([]int, 0, len(scores))
	for i, s := range scores {
		if s <= threshold {
			keep = append(keep, i)
		}
	}
	return c.Subset(keep)
}
