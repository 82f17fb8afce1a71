package pointcloud

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrUnsupported is returned by a backend lacking requested capability
	ErrUnsupported = errors.New("operation is not supported by geometry backend")
	// ErrDegenerate is returned when input has no volume or area to fit
	ErrDegenerate = errors.New("degenerate geometry")
)

// BackendKind names geometry backend implementation
type BackendKind string

const (
	// BackendKDTree uses k-d tree neighbor search and convex hull box fitting
	BackendKDTree = BackendKind("kdtree")
	// BackendFallback uses centroid distance outlier test and has no oriented box fitting
	BackendFallback = BackendKind("fallback")
)

// OrientedBox is a box with yaw around the vertical (Z) axis.
// Length is measured along heading, width across it.
type OrientedBox struct {
	Center r3.Vec
	Length float64
	Width  float64
	Height float64
	Yaw    float64
}

// Volume returns box volume
func (b OrientedBox) Volume() float64 {
	return b.Length * b.Width * b.Height
}

// Backend is a geometry capability set. It is selected once via configuration.
type Backend interface {
	// Kind returns implementation name
	Kind() BackendKind
	// RemoveOutliers drops points which are far from their neighbours
	RemoveOutliers(c Cloud, neighbors int, stdRatio float64) Cloud
	// MinimumOrientedBox fits the smallest-footprint box around points (Z is up)
	MinimumOrientedBox(c Cloud) (OrientedBox, error)
}

// NewBackend returns backend implementation for the given kind
func NewBackend(kind BackendKind) (Backend, error) {
	switch kind {
	case BackendKDTree, "":
		return KDTreeBackend{}, nil
	case BackendFallback:
		return FallbackBackend{}, nil
	default:
		return nil, errors.Errorf("unknown geometry backend '%s'", kind)
	}
}

// DefaultBackend returns full featured backend
func DefaultBackend() Backend {
	return KDTreeBackend{}
}

var (
	_ Backend = KDTreeBackend{}
	_ Backend = FallbackBackend{}
)
