package pointcloud

const (
	// DefaultOutlierNeighbors is k used for mean neighbour distance
	DefaultOutlierNeighbors = 20
	// DefaultOutlierStdRatio is the number of standard deviations tolerated above mean
	DefaultOutlierStdRatio = 2.0
)

// OutlierParams configures statistical outlier removal
type OutlierParams struct {
	Neighbors int     `yaml:"neighbors" json:"neighbors" validate:"gte=1"`
	StdRatio  float64 `yaml:"std_ratio" json:"std_ratio" validate:"gt=0"`
}

// DefaultOutlierParams returns k=20, std_ratio=2.0
func DefaultOutlierParams() OutlierParams {
	return OutlierParams{
		Neighbors: DefaultOutlierNeighbors,
		StdRatio:  DefaultOutlierStdRatio,
	}
}

// RemoveStatisticalOutliers filters cloud with the given backend (nil means DefaultBackend).
// Non-finite points are removed first.
func RemoveStatisticalOutliers(c Cloud, params OutlierParams, backend Backend) Cloud {
	if backend == nil {
		backend = DefaultBackend()
	}
	finite := DropNonFinite(c)
	if finite.IsEmpty() {
		return Cloud{}
	}
	return backend.RemoveOutliers(finite, params.Neighbors, params.StdRatio)
}
