package bbox3d

import (
	"image"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/LdDl/mot3d-go/logging"
	"github.com/LdDl/mot3d-go/pointcloud"
	"github.com/LdDl/mot3d-go/projection"
	"github.com/LdDl/mot3d-go/validation"
)

// Estimator turns object point clouds into boxes
type Estimator struct {
	cfg     Config
	backend pointcloud.Backend
}

// NewEstimator validates configuration and selects geometry backend
func NewEstimator(cfg Config) (*Estimator, error) {
	if err := validation.Struct("bbox3d", cfg); err != nil {
		return nil, err
	}
	backend, err := pointcloud.NewBackend(cfg.Backend)
	if err != nil {
		return nil, validation.Fail("bbox3d", "%s", err.Error())
	}
	return &Estimator{
		cfg:     cfg,
		backend: backend,
	}, nil
}

// Config returns estimator configuration
func (e *Estimator) Config() Config {
	return e.cfg
}

// Estimate fits a box to ground-frame points. False means there was not enough
// data (fewer than MinPoints before or after outlier removal) or the geometry was
// degenerate.
func (e *Estimator) Estimate(points pointcloud.Cloud, class Class, confidence float64) (*Box, bool) {
	pts := pointcloud.DropNonFinite(points)
	if pts.Len() < e.cfg.MinPoints {
		return nil, false
	}
	if e.cfg.FilterOutliers {
		pts = pointcloud.RemoveStatisticalOutliers(pts, e.cfg.Outliers, e.backend)
		if pts.Len() < e.cfg.MinPoints {
			return nil, false
		}
	}
	fitted, ok := e.fit(pts)
	if !ok {
		return nil, false
	}
	box := &Box{
		Center:     fitted.Center,
		Length:     fitted.Length,
		Width:      fitted.Width,
		Height:     fitted.Height,
		Yaw:        fitted.Yaw,
		PointCount: pts.Len(),
		Confidence: confidence,
		Class:      class,
	}
	if e.cfg.UseSizePriors {
		e.applySizePrior(box)
	}
	return box, true
}

func (e *Estimator) fit(pts pointcloud.Cloud) (pointcloud.OrientedBox, bool) {
	var fitted pointcloud.OrientedBox
	switch e.cfg.Method {
	case MethodAxisAligned:
		fitted = fitAxisAligned(pts)
	case MethodOriented:
		var err error
		fitted, err = e.backend.MinimumOrientedBox(pts)
		if err != nil {
			if errors.Is(err, pointcloud.ErrUnsupported) {
				logging.WarnOnce("bbox3d.oriented.unsupported", logging.Fields{"component": "bbox3d", "backend": e.backend.Kind()},
					"oriented box fitting is unavailable, PCA is used instead")
			} else {
				logging.Debug(logging.Fields{"component": "bbox3d", "error": err.Error()}, "oriented box fit failed, falling back to PCA")
			}
			fitted = fitPCA(pts)
		}
	default:
		fitted = fitPCA(pts)
	}
	if fitted.Volume() > 0 {
		return fitted, true
	}
	if e.cfg.Method != MethodAxisAligned {
		fitted = fitAxisAligned(pts)
		if fitted.Volume() > 0 {
			return fitted, true
		}
	}
	return pointcloud.OrientedBox{}, false
}

// applySizePrior clamps dimensions into class envelope and lowers confidence of
// boxes that had to change volume too much
func (e *Estimator) applySizePrior(box *Box) {
	prior, ok := e.cfg.SizePriors[box.Class.Name]
	if !ok {
		return
	}
	original := box.Volume()
	box.Length = prior.Length.Clamp(box.Length)
	box.Width = prior.Width.Clamp(box.Width)
	box.Height = prior.Height.Clamp(box.Height)
	clamped := box.Volume()
	if clamped <= 0 {
		return
	}
	ratio := original / clamped
	if ratio < e.cfg.VolumeRatioMin || ratio > e.cfg.VolumeRatioMax {
		box.Confidence *= e.cfg.ImplausiblePenalty
	}
}

func fitAxisAligned(pts pointcloud.Cloud) pointcloud.OrientedBox {
	min, max, ok := pts.Bounds()
	if !ok {
		return pointcloud.OrientedBox{}
	}
	return pointcloud.OrientedBox{
		Center: r3.Scale(0.5, r3.Add(min, max)),
		Length: max.X - min.X,
		Width:  max.Y - min.Y,
		Height: max.Z - min.Z,
	}
}

// fitPCA aligns box length with the dominant eigenvector of horizontal covariance.
// Center keeps centroid X/Y and takes mid-height for Z.
func fitPCA(pts pointcloud.Cloud) pointcloud.OrientedBox {
	n := pts.Len()
	if n < 3 {
		return fitAxisAligned(pts)
	}
	xs := make([]float64, n)
	ys := make([]float64, n)
	minZ, maxZ := math.Inf(1), math.Inf(-1)
	for i, p := range pts.Points {
		xs[i] = float64(p.X)
		ys[i] = float64(p.Y)
		minZ = math.Min(minZ, float64(p.Z))
		maxZ = math.Max(maxZ, float64(p.Z))
	}
	meanX := stat.Mean(xs, nil)
	meanY := stat.Mean(ys, nil)
	cov := mat.NewSymDense(2, []float64{
		stat.Covariance(xs, xs, nil), stat.Covariance(xs, ys, nil),
		stat.Covariance(xs, ys, nil), stat.Covariance(ys, ys, nil),
	})
	var eig mat.EigenSym
	yaw := 0.0
	if eig.Factorize(cov, true) {
		var vectors mat.Dense
		eig.VectorsTo(&vectors)
		// eigenvalues are ascending, dominant direction is the last column
		yaw = pointcloud.NormalizeYaw(math.Atan2(vectors.At(1, 1), vectors.At(0, 1)))
	}
	cos, sin := math.Cos(yaw), math.Sin(yaw)
	minU, maxU := math.Inf(1), math.Inf(-1)
	minV, maxV := math.Inf(1), math.Inf(-1)
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		u := dx*cos + dy*sin
		v := -dx*sin + dy*cos
		minU = math.Min(minU, u)
		maxU = math.Max(maxU, u)
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	return pointcloud.OrientedBox{
		Center: r3.Vec{X: meanX, Y: meanY, Z: (minZ + maxZ) / 2},
		Length: maxU - minU,
		Width:  maxV - minV,
		Height: maxZ - minZ,
		Yaw:    yaw,
	}
}

// EstimateFromMask is the per-detection entry point: it samples center-patch
// distance, back-projects masked depth, converts it into ground frame and fits
// a box. A nil box with nil error means no 3D information for this detection.
func (e *Estimator) EstimateFromMask(proj *projection.Projector, depth *projection.DepthMap, mask *projection.Mask, class Class, confidence float64) (*Box, error) {
	cloud, err := proj.DepthToPointCloud(depth, mask)
	if err != nil {
		return nil, errors.Wrap(err, "can't project masked depth")
	}
	box, ok := e.Estimate(projection.CameraToGroundCloud(cloud), class, confidence)
	if !ok {
		return nil, nil
	}
	if distance, ok := proj.CenterPatchDistance(depth, mask); ok {
		box.Distance = &distance
	}
	return box, nil
}

// EstimateFromRegion works as EstimateFromMask for detections having only 2D box
func (e *Estimator) EstimateFromRegion(proj *projection.Projector, depth *projection.DepthMap, region image.Rectangle, class Class, confidence float64) (*Box, error) {
	cloud, err := proj.RegionToPointCloud(depth, region)
	if err != nil {
		return nil, errors.Wrap(err, "can't project depth region")
	}
	box, ok := e.Estimate(projection.CameraToGroundCloud(cloud), class, confidence)
	if !ok {
		return nil, nil
	}
	in := proj.Intrinsics()
	mask := projection.NewMask(in.Width, in.Height)
	mask.SetRect(region)
	if distance, ok := proj.CenterPatchDistance(depth, mask); ok {
		box.Distance = &distance
	}
	return box, nil
}

// EstimateClusters splits cluttered cloud with DBSCAN and fits the largest cluster
func (e *Estimator) EstimateClusters(points pointcloud.Cloud, class Class, confidence float64) (*Box, bool) {
	clusters := pointcloud.Cluster(points, e.cfg.Clustering)
	if len(clusters) == 0 {
		return nil, false
	}
	return e.Estimate(clusters[0], class, confidence)
}
