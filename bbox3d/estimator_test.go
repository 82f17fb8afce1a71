package bbox3d

import (
	"image"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LdDl/mot3d-go/pointcloud"
	"github.com/LdDl/mot3d-go/projection"
	"github.com/LdDl/mot3d-go/validation"
)

// plainConfig disables filtering and priors so fitted dimensions are exact
func plainConfig(method Method) Config {
	cfg := DefaultConfig()
	cfg.Method = method
	cfg.FilterOutliers = false
	cfg.UseSizePriors = false
	return cfg
}

func newTestEstimator(t *testing.T, cfg Config) *Estimator {
	t.Helper()
	est, err := NewEstimator(cfg)
	require.NoError(t, err)
	return est
}

func cube(n int, step, offsetX float32) pointcloud.Cloud {
	pts := make([]pointcloud.Point, 0, n*n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				pts = append(pts, pointcloud.Point{X: offsetX + float32(i)*step, Y: float32(j) * step, Z: float32(k) * step})
			}
		}
	}
	return pointcloud.NewCloud(pts)
}

// rotatedSlab is a 4 x 1 x 1.5 grid centered at (cx, cy) rotated by yaw
func rotatedSlab(cx, cy, yaw float64) pointcloud.Cloud {
	cos, sin := math.Cos(yaw), math.Sin(yaw)
	pts := []pointcloud.Point{}
	for i := 0; i <= 40; i++ {
		for j := 0; j <= 10; j++ {
			for k := 0; k <= 3; k++ {
				u := float64(i)*0.1 - 2
				v := float64(j)*0.1 - 0.5
				pts = append(pts, pointcloud.Point{
					X: float32(cx + u*cos - v*sin),
					Y: float32(cy + u*sin + v*cos),
					Z: float32(k) * 0.5,
				})
			}
		}
	}
	return pointcloud.NewCloud(pts)
}

func TestEstimateAxisAligned(t *testing.T) {
	t.Parallel()
	est := newTestEstimator(t, plainConfig(MethodAxisAligned))
	box, ok := est.Estimate(cube(10, 0.2, 0), Class{ID: 7, Name: "thing"}, 0.9)
	require.True(t, ok)
	require.NotNil(t, box)
	assert.InDelta(t, 1.8, box.Length, 1e-4)
	assert.InDelta(t, 1.8, box.Width, 1e-4)
	assert.InDelta(t, 1.8, box.Height, 1e-4)
	assert.InDelta(t, 0.9, box.Center.X, 1e-4)
	assert.InDelta(t, 0.9, box.Center.Y, 1e-4)
	assert.InDelta(t, 0.9, box.Center.Z, 1e-4)
	assert.Equal(t, 0.0, box.Yaw)
	assert.Equal(t, 1000, box.PointCount)
	assert.Equal(t, 0.9, box.Confidence)
	assert.Equal(t, Class{ID: 7, Name: "thing"}, box.Class)
	assert.Equal(t, 0, box.TrackID)
	assert.Nil(t, box.Distance)
}

func TestEstimateMinPoints(t *testing.T) {
	t.Parallel()
	est := newTestEstimator(t, plainConfig(MethodPCA))
	box, ok := est.Estimate(cube(3, 0.1, 0), Class{Name: "thing"}, 1)
	assert.False(t, ok)
	assert.Nil(t, box)

	// non-finite points do not count
	c := cube(4, 0.1, 0)
	for i := 0; i < 60; i++ {
		c.Points = append(c.Points, pointcloud.Point{X: float32(math.NaN())})
	}
	_, ok = est.Estimate(c, Class{Name: "thing"}, 1)
	assert.False(t, ok)
}

func TestEstimateDegenerate(t *testing.T) {
	t.Parallel()
	est := newTestEstimator(t, plainConfig(MethodPCA))
	pts := make([]pointcloud.Point, 200)
	for i := range pts {
		pts[i] = pointcloud.Point{X: float32(i) * 0.01, Y: 1, Z: 0}
	}
	_, ok := est.Estimate(pointcloud.NewCloud(pts), Class{Name: "thing"}, 1)
	assert.False(t, ok)
}

func TestEstimatePCA(t *testing.T) {
	t.Parallel()
	est := newTestEstimator(t, plainConfig(MethodPCA))
	for _, yaw := range []float64{0.4, -1.1} {
		box, ok := est.Estimate(rotatedSlab(3, -2, yaw), Class{Name: "thing"}, 1)
		require.True(t, ok)
		assert.InDelta(t, yaw, box.Yaw, 1e-3)
		assert.InDelta(t, 4.0, box.Length, 1e-2)
		assert.InDelta(t, 1.0, box.Width, 1e-2)
		assert.InDelta(t, 1.5, box.Height, 1e-4)
		assert.InDelta(t, 3.0, box.Center.X, 1e-3)
		assert.InDelta(t, -2.0, box.Center.Y, 1e-3)
		assert.InDelta(t, 0.75, box.Center.Z, 1e-4)
	}
}

func TestEstimateOriented(t *testing.T) {
	t.Parallel()
	est := newTestEstimator(t, plainConfig(MethodOriented))
	box, ok := est.Estimate(rotatedSlab(0, 0, 0.4), Class{Name: "thing"}, 1)
	require.True(t, ok)
	assert.InDelta(t, 0.4, box.Yaw, 1e-3)
	assert.InDelta(t, 4.0, box.Length, 1e-3)
	assert.InDelta(t, 1.0, box.Width, 1e-3)
	assert.InDelta(t, 0.0, box.Center.X, 1e-3)
	assert.InDelta(t, 0.0, box.Center.Y, 1e-3)
}

func TestEstimateOrientedFallsBackToPCA(t *testing.T) {
	t.Parallel()
	cfg := plainConfig(MethodOriented)
	cfg.Backend = pointcloud.BackendFallback
	oriented := newTestEstimator(t, cfg)
	pca := newTestEstimator(t, plainConfig(MethodPCA))

	slab := rotatedSlab(1, 1, 0.7)
	got, ok := oriented.Estimate(slab, Class{Name: "thing"}, 1)
	require.True(t, ok)
	want, ok := pca.Estimate(slab, Class{Name: "thing"}, 1)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestEstimateWithOutlierFilter(t *testing.T) {
	t.Parallel()
	cfg := plainConfig(MethodAxisAligned)
	cfg.FilterOutliers = true
	est := newTestEstimator(t, cfg)
	c := cube(10, 0.1, 0)
	c.Points = append(c.Points, pointcloud.Point{X: 30, Y: 30, Z: 30})
	box, ok := est.Estimate(c, Class{Name: "thing"}, 1)
	require.True(t, ok)
	assert.Less(t, box.Length, 1.0)
	assert.Less(t, box.Height, 1.0)
	assert.Less(t, box.PointCount, 1001)
}

func TestSizePriors(t *testing.T) {
	t.Parallel()
	cfg := plainConfig(MethodAxisAligned)
	cfg.UseSizePriors = true
	est := newTestEstimator(t, cfg)

	// 1m cube labeled as car is stretched to the car envelope and penalized
	box, ok := est.Estimate(cube(11, 0.1, 0), Class{Name: "car"}, 0.9)
	require.True(t, ok)
	assert.InDelta(t, 3.2, box.Length, 1e-9)
	assert.InDelta(t, 1.4, box.Width, 1e-9)
	assert.InDelta(t, 1.2, box.Height, 1e-9)
	assert.InDelta(t, 0.9*DefaultImplausiblePenalty, box.Confidence, 1e-9)

	// person sized box stays intact
	pts := []pointcloud.Point{}
	for i := 0; i <= 5; i++ {
		for j := 0; j <= 5; j++ {
			for k := 0; k <= 17; k++ {
				pts = append(pts, pointcloud.Point{X: float32(i) * 0.1, Y: float32(j) * 0.1, Z: float32(k) * 0.1})
			}
		}
	}
	box, ok = est.Estimate(pointcloud.NewCloud(pts), Class{Name: "person"}, 0.8)
	require.True(t, ok)
	assert.InDelta(t, 0.5, box.Length, 1e-4)
	assert.InDelta(t, 1.7, box.Height, 1e-4)
	assert.Equal(t, 0.8, box.Confidence)

	// classes without prior are untouched
	box, ok = est.Estimate(cube(11, 0.1, 0), Class{Name: "dog"}, 0.9)
	require.True(t, ok)
	assert.InDelta(t, 1.0, box.Length, 1e-4)
	assert.Equal(t, 0.9, box.Confidence)
}

func TestEstimateClusters(t *testing.T) {
	t.Parallel()
	est := newTestEstimator(t, plainConfig(MethodAxisAligned))
	c := pointcloud.Concat(cube(5, 0.1, 10), cube(8, 0.1, 0))
	box, ok := est.EstimateClusters(c, Class{Name: "thing"}, 1)
	require.True(t, ok)
	assert.Equal(t, 512, box.PointCount)
	assert.InDelta(t, 0.35, box.Center.X, 1e-4)

	_, ok = est.EstimateClusters(pointcloud.Cloud{}, Class{Name: "thing"}, 1)
	assert.False(t, ok)
}

func TestEstimateFromMask(t *testing.T) {
	t.Parallel()
	intr := projection.Intrinsics{Fx: 100, Fy: 100, Cx: 32, Cy: 24, Width: 64, Height: 48}
	proj, err := projection.NewProjector(projection.DefaultConfig(intr))
	require.NoError(t, err)
	est := newTestEstimator(t, DefaultConfig())

	depth := projection.NewDepthMap(intr.Width, intr.Height)
	for v := 0; v < intr.Height; v++ {
		for u := 0; u < intr.Width; u++ {
			depth.Set(u, v, float32(5+0.01*float64(u)+0.02*float64(v)))
		}
	}
	mask := projection.NewMask(intr.Width, intr.Height)
	mask.SetRect(image.Rect(20, 10, 40, 30))

	box, err := est.EstimateFromMask(proj, depth, mask, Class{ID: 1, Name: "thing"}, 0.75)
	require.NoError(t, err)
	require.NotNil(t, box)
	require.NotNil(t, box.Distance)
	assert.InDelta(t, 5.685, *box.Distance, 1e-3)
	assert.InDelta(t, 5.685, box.Center.X, 0.05)
	assert.Greater(t, box.Volume(), 0.0)
	assert.LessOrEqual(t, box.PointCount, 400)

	regionBox, err := est.EstimateFromRegion(proj, depth, image.Rect(20, 10, 40, 30), Class{ID: 1, Name: "thing"}, 0.75)
	require.NoError(t, err)
	require.NotNil(t, regionBox)
	assert.Equal(t, box.Center, regionBox.Center)
	require.NotNil(t, regionBox.Distance)
	assert.InDelta(t, *box.Distance, *regionBox.Distance, 1e-9)

	// too few pixels is not an error
	small := projection.NewMask(intr.Width, intr.Height)
	small.SetRect(image.Rect(0, 0, 5, 5))
	box, err = est.EstimateFromMask(proj, depth, small, Class{Name: "thing"}, 1)
	assert.NoError(t, err)
	assert.Nil(t, box)

	_, err = est.EstimateFromMask(proj, projection.NewDepthMap(10, 10), mask, Class{Name: "thing"}, 1)
	assert.True(t, errors.Is(err, projection.ErrShapeMismatch))
}

func TestNewEstimatorValidation(t *testing.T) {
	t.Parallel()
	mutations := []func(*Config){
		func(c *Config) { c.Method = "convex" },
		func(c *Config) { c.MinPoints = 0 },
		func(c *Config) { c.Backend = "open3d" },
		func(c *Config) { c.Outliers.Neighbors = 0 },
		func(c *Config) { c.VolumeRatioMax = c.VolumeRatioMin / 2 },
		func(c *Config) { c.ImplausiblePenalty = 1.5 },
		func(c *Config) { c.SizePriors = map[string]SizePrior{"car": {Length: Range{5, 3}}} },
		func(c *Config) { c.Clustering.Eps = 0 },
	}
	for i, mutate := range mutations {
		cfg := DefaultConfig()
		mutate(&cfg)
		_, err := NewEstimator(cfg)
		require.Error(t, err, "mutation %d", i)
		assert.True(t, errors.Is(err, validation.ErrInvalidConfig), "mutation %d", i)
	}
	_, err := NewEstimator(DefaultConfig())
	assert.NoError(t, err)
}
