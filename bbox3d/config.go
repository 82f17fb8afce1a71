package bbox3d

import (
	"github.com/LdDl/mot3d-go/pointcloud"
)

// Method is box orientation strategy
type Method string

const (
	// MethodAxisAligned takes min/max per axis and yaw 0
	MethodAxisAligned = Method("axis_aligned")
	// MethodOriented fits minimal footprint box via geometry backend, PCA on failure
	MethodOriented = Method("oriented")
	// MethodPCA aligns box with dominant horizontal principal component
	MethodPCA = Method("pca")
)

const (
	DefaultMinPoints          = 100
	DefaultVolumeRatioMin     = 0.5
	DefaultVolumeRatioMax     = 2.0
	DefaultImplausiblePenalty = 0.7
)

// Config is estimator configuration
type Config struct {
	Method    Method `yaml:"method" json:"method" validate:"oneof=axis_aligned oriented pca"`
	MinPoints int    `yaml:"min_points" json:"min_points" validate:"gte=1"`

	FilterOutliers bool                     `yaml:"filter_outliers" json:"filter_outliers"`
	Outliers       pointcloud.OutlierParams `yaml:"outliers" json:"outliers"`
	Backend        pointcloud.BackendKind   `yaml:"backend" json:"backend" validate:"oneof=kdtree fallback"`

	UseSizePriors bool                 `yaml:"use_size_priors" json:"use_size_priors"`
	SizePriors    map[string]SizePrior `yaml:"size_priors" json:"size_priors" validate:"dive"`
	// Original-to-clamped volume ratio outside [VolumeRatioMin, VolumeRatioMax] is penalized
	VolumeRatioMin     float64 `yaml:"volume_ratio_min" json:"volume_ratio_min" validate:"gt=0"`
	VolumeRatioMax     float64 `yaml:"volume_ratio_max" json:"volume_ratio_max" validate:"gtfield=VolumeRatioMin"`
	ImplausiblePenalty float64 `yaml:"implausible_penalty" json:"implausible_penalty" validate:"gte=0,lte=1"`

	// Used by EstimateClusters
	Clustering pointcloud.ClusterParams `yaml:"clustering" json:"clustering"`
}

// DefaultConfig returns PCA estimator with outlier filtering and default priors
func DefaultConfig() Config {
	return Config{
		Method:             MethodPCA,
		MinPoints:          DefaultMinPoints,
		FilterOutliers:     true,
		Outliers:           pointcloud.DefaultOutlierParams(),
		Backend:            pointcloud.BackendKDTree,
		UseSizePriors:      true,
		SizePriors:         DefaultSizePriors(),
		VolumeRatioMin:     DefaultVolumeRatioMin,
		VolumeRatioMax:     DefaultVolumeRatioMax,
		ImplausiblePenalty: DefaultImplausiblePenalty,
		Clustering:         pointcloud.DefaultClusterParams(),
	}
}
