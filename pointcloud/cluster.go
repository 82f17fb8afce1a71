package pointcloud

import (
	"math"
	"sort"
)

const (
	// DefaultClusterEps is neighbourhood radius in meters
	DefaultClusterEps = 0.5
	// DefaultClusterMinPoints is minimal neighbourhood size of a core point
	DefaultClusterMinPoints = 10
)

// ClusterParams configures density clustering
type ClusterParams struct {
	Eps       float64 `yaml:"eps" json:"eps" validate:"gt=0"`
	MinPoints int     `yaml:"min_points" json:"min_points" validate:"gte=1"`
	// Clusters smaller than this are discarded. Zero means MinPoints.
	MinClusterSize int `yaml:"min_cluster_size" json:"min_cluster_size" validate:"gte=0"`
}

// DefaultClusterParams returns eps 0.5 m and 10 points
func DefaultClusterParams() ClusterParams {
	return ClusterParams{
		Eps:       DefaultClusterEps,
		MinPoints: DefaultClusterMinPoints,
	}
}

// spatialIndex is a uniform grid with cell size equal to eps
type spatialIndex struct {
	cellSize float64
	grid     map[voxelKey][]int
}

func newSpatialIndex(vecs []Point, cellSize float64) *spatialIndex {
	si := &spatialIndex{
		cellSize: cellSize,
		grid:     make(map[voxelKey][]int, len(vecs)/4+1),
	}
	for i, p := range vecs {
		key := si.cell(p)
		si.grid[key] = append(si.grid[key], i)
	}
	return si
}

func (si *spatialIndex) cell(p Point) voxelKey {
	return voxelKey{
		int64(math.Floor(float64(p.X) / si.cellSize)),
		int64(math.Floor(float64(p.Y) / si.cellSize)),
		int64(math.Floor(float64(p.Z) / si.cellSize)),
	}
}

// regionQuery returns indices of points within eps of points[idx], including idx itself
func (si *spatialIndex) regionQuery(points []Point, idx int, eps float64) []int {
	p := points[idx]
	base := si.cell(p)
	eps2 := eps * eps
	neighbors := []int{}
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				key := voxelKey{base[0] + dx, base[1] + dy, base[2] + dz}
				for _, candidateIdx := range si.grid[key] {
					c := points[candidateIdx]
					ddx := float64(c.X - p.X)
					ddy := float64(c.Y - p.Y)
					ddz := float64(c.Z - p.Z)
					if ddx*ddx+ddy*ddy+ddz*ddz <= eps2 {
						neighbors = append(neighbors, candidateIdx)
					}
				}
			}
		}
	}
	return neighbors
}

// Cluster runs DBSCAN and returns clusters ordered by size (largest first, ties by
// discovery order). Noise points and clusters smaller than MinClusterSize are dropped.
func Cluster(c Cloud, params ClusterParams) []Cloud {
	finite := DropNonFinite(c)
	n := finite.Len()
	if n == 0 || params.Eps <= 0 {
		return nil
	}
	minPts := params.MinPoints
	if minPts < 1 {
		minPts = 1
	}
	minSize := params.MinClusterSize
	if minSize <= 0 {
		minSize = minPts
	}

	labels := make([]int, n) // 0=unvisited, -1=noise, >0=cluster id
	clusterID := 0
	index := newSpatialIndex(finite.Points, params.Eps)
	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue
		}
		neighbors := index.regionQuery(finite.Points, i, params.Eps)
		if len(neighbors) < minPts {
			labels[i] = -1
			continue
		}
		clusterID++
		expandCluster(finite.Points, index, labels, i, neighbors, clusterID, params.Eps, minPts)
	}

	members := make([][]int, clusterID)
	for i, label := range labels {
		if label > 0 {
			members[label-1] = append(members[label-1], i)
		}
	}
	sort.SliceStable(members, func(i, j int) bool {
		return len(members[i]) > len(members[j])
	})
	clusters := make([]Cloud, 0, len(members))
	for _, idx := range members {
		if len(idx) < minSize {
			continue
		}
		clusters = append(clusters, finite.Subset(idx))
	}
	return clusters
}

func expandCluster(points []Point, si *spatialIndex, labels []int, seedIdx int, neighbors []int, clusterID int, eps float64, minPts int) {
	labels[seedIdx] = clusterID
	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]
		if labels[idx] == -1 {
			// noise becomes border point
			labels[idx] = clusterID
		}
		if labels[idx] != 0 {
			continue
		}
		labels[idx] = clusterID
		newNeighbors := si.regionQuery(points, idx, eps)
		if len(newNeighbors) >= minPts {
			neighbors = append(neighbors, newNeighbors...)
		}
	}
}
