package pointcloud

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/LdDl/mot3d-go/logging"
)

// FallbackBackend needs no spatial index. Outliers are judged by their distance
// to the global centroid, and oriented boxes are not available.
type FallbackBackend struct{}

// Kind returns BackendFallback
func (FallbackBackend) Kind() BackendKind {
	return BackendFallback
}

// RemoveOutliers drops points whose centroid distance exceeds mean + stdRatio*std
func (FallbackBackend) RemoveOutliers(c Cloud, neighbors int, stdRatio float64) Cloud {
	if c.Len() == 0 {
		return Cloud{}
	}
	logging.WarnOnce("pointcloud.fallback.outliers", logging.Fields{"component": "pointcloud"},
		"neighbor search is unavailable, outliers are filtered by centroid distance")
	centroid, _ := c.Centroid()
	distances := make([]float64, c.Len())
	for i, p := range c.Points {
		distances[i] = r3.Norm(r3.Sub(p.Vec(), centroid))
	}
	return keepBelowThreshold(c, distances, stdRatio)
}

// MinimumOrientedBox always returns ErrUnsupported
func (FallbackBackend) MinimumOrientedBox(Cloud) (OrientedBox, error) {
	return OrientedBox{}, errors.WithStack(ErrUnsupported)
}
