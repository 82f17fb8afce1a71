package pipeline

import (
	"github.com/LdDl/mot3d-go/bbox3d"
	"github.com/LdDl/mot3d-go/mot"
	"github.com/LdDl/mot3d-go/pointcloud"
	"github.com/LdDl/mot3d-go/projection"
)

// DefaultWorkers bounds concurrent per-detection estimation
const DefaultWorkers = 4

// Preprocess configures cleaning of object clouds before box fitting.
// Zero values disable the corresponding step.
type Preprocess struct {
	MinDistance float64 `yaml:"min_distance" json:"min_distance" validate:"gte=0"`
	// Zero means no upper bound
	MaxDistance float64 `yaml:"max_distance" json:"max_distance" validate:"gte=0"`
	VoxelSize   float64 `yaml:"voxel_size" json:"voxel_size" validate:"gte=0"`

	// RemoveGround fits ground plane to the whole frame and drops its inliers from object clouds
	RemoveGround bool                  `yaml:"remove_ground" json:"remove_ground"`
	Ground       pointcloud.PlaneParams `yaml:"ground" json:"ground"`
	// Scene cloud is downsampled with this cell size before plane fitting
	GroundVoxelSize float64 `yaml:"ground_voxel_size" json:"ground_voxel_size" validate:"gte=0"`
	// Minimal |normal.Z| of a plane accepted as ground
	GroundMinVerticality float64 `yaml:"ground_min_verticality" json:"ground_min_verticality" validate:"gte=0,lte=1"`

	// ClusterObjects keeps only the largest DBSCAN cluster of every object cloud
	ClusterObjects bool `yaml:"cluster_objects" json:"cluster_objects"`
}

func (p Preprocess) enabled() bool {
	return p.MinDistance > 0 || p.MaxDistance > 0 || p.VoxelSize > 0 || p.RemoveGround || p.ClusterObjects
}

// Config is configuration of one sequence. Component sections are validated by their constructors.
type Config struct {
	Projection projection.Config `yaml:"projection" json:"projection" validate:"-"`
	Estimator  bbox3d.Config     `yaml:"estimator" json:"estimator" validate:"-"`
	Tracker    mot.Config        `yaml:"tracker" json:"tracker" validate:"-"`
	Workers    int               `yaml:"workers" json:"workers" validate:"gte=1"`
	Preprocess Preprocess        `yaml:"preprocess" json:"preprocess"`
}

// DefaultConfig returns default components for the camera. Preprocessing is disabled.
func DefaultConfig(intrinsics projection.Intrinsics) Config {
	return Config{
		Projection: projection.DefaultConfig(intrinsics),
		Estimator:  bbox3d.DefaultConfig(),
		Tracker:    mot.DefaultConfig(),
		Workers:    DefaultWorkers,
		Preprocess: Preprocess{
			Ground:               pointcloud.DefaultPlaneParams(),
			GroundVoxelSize:      0.1,
			GroundMinVerticality: 0.8,
		},
	}
}
