// Package pipeline runs projection, box estimation and tracking for the frames of one sequence.
package pipeline

import (
	"context"
	"image"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/LdDl/mot3d-go/bbox3d"
	"github.com/LdDl/mot3d-go/logging"
	"github.com/LdDl/mot3d-go/mot"
	"github.com/LdDl/mot3d-go/pointcloud"
	"github.com/LdDl/mot3d-go/projection"
	"github.com/LdDl/mot3d-go/trackmgr"
	"github.com/LdDl/mot3d-go/validation"
)

// Detection is 2D segmenter output for one object
type Detection struct {
	// Rect is used as the region when Mask is nil and as image box for tracking
	Rect image.Rectangle
	// Mask is optional, sized as the camera image
	Mask       *projection.Mask
	Class      bbox3d.Class
	Confidence float64
}

// Frame is per-frame input
type Frame struct {
	ID int
	// Seconds from the sequence start
	Timestamp  float64
	Depth      *projection.DepthMap
	Detections []Detection
}

// Result is per-frame output
type Result struct {
	FrameID int
	// Boxes[i] belongs to Detections[i]; nil when detection had no usable 3D data
	Boxes []*bbox3d.Box
	// Confirmed tracks after this frame, ordered by id
	Tracks []mot.Track
}

// Sequence owns tracker state of one video sequence.
// Frames must be processed one at a time in increasing id order.
type Sequence struct {
	cfg       Config
	projector *projection.Projector
	estimator *bbox3d.Estimator
	manager   *trackmgr.Manager
	lastFrame int
	started   bool
}

// NewSequence validates configuration and creates every component
func NewSequence(cfg Config) (*Sequence, error) {
	if err := validation.Struct("pipeline", cfg); err != nil {
		return nil, err
	}
	projector, err := projection.NewProjector(cfg.Projection)
	if err != nil {
		return nil, err
	}
	estimator, err := bbox3d.NewEstimator(cfg.Estimator)
	if err != nil {
		return nil, err
	}
	manager, err := trackmgr.NewManager(cfg.Tracker)
	if err != nil {
		return nil, err
	}
	return &Sequence{
		cfg:       cfg,
		projector: projector,
		estimator: estimator,
		manager:   manager,
	}, nil
}

// Manager returns trajectory store of the sequence
func (s *Sequence) Manager() *trackmgr.Manager {
	return s.manager
}

// Reset starts a new sequence. Track ids keep growing.
func (s *Sequence) Reset() {
	s.manager.Reset()
	s.started = false
	s.lastFrame = 0
}

// ProcessFrame estimates boxes of every detection concurrently and then updates tracks.
// Cancelled context aborts the frame before tracker state changes.
func (s *Sequence) ProcessFrame(ctx context.Context, frame Frame) (*Result, error) {
	if s.started && frame.ID <= s.lastFrame {
		return nil, errors.Wrapf(mot.ErrFrameOrder, "frame %d after %d", frame.ID, s.lastFrame)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fields := logging.Fields{"component": "pipeline", "frame_id": frame.ID}

	var ground *pointcloud.Plane
	if s.cfg.Preprocess.RemoveGround && len(frame.Detections) > 0 {
		plane, ok, err := s.groundPlane(frame.Depth)
		if err != nil {
			return nil, err
		}
		if ok {
			ground = &plane
		} else {
			logging.WarnOnce("pipeline.no_ground", fields, "ground plane not found, object clouds are kept as is")
		}
	}

	boxes := make([]*bbox3d.Box, len(frame.Detections))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Workers)
	for i := range frame.Detections {
		i := i
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			box, err := s.estimate(frame.Depth, frame.Detections[i], ground)
			if err != nil {
				return errors.Wrapf(err, "detection %d", i)
			}
			boxes[i] = box
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, errors.Wrapf(err, "Can't estimate boxes of frame %d", frame.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	detections := make([]mot.Detection, 0, len(boxes))
	for i, box := range boxes {
		if box == nil {
			continue
		}
		det := mot.Detection{Box: *box}
		if rect := frame.Detections[i].Rect; !rect.Empty() {
			imageBox := mot.NewRectFrom(rect)
			det.ImageBox = &imageBox
		}
		detections = append(detections, det)
	}
	tracks, err := s.manager.Update(detections, frame.ID, frame.Timestamp)
	if err != nil {
		return nil, err
	}
	s.started = true
	s.lastFrame = frame.ID
	fields["detections"] = len(frame.Detections)
	fields["boxes"] = len(detections)
	fields["tracks"] = len(tracks)
	logging.Debug(fields, "frame processed")
	return &Result{FrameID: frame.ID, Boxes: boxes, Tracks: tracks}, nil
}

// estimate returns nil box when detection carries no usable 3D data
func (s *Sequence) estimate(depth *projection.DepthMap, det Detection, ground *pointcloud.Plane) (*bbox3d.Box, error) {
	if !s.cfg.Preprocess.enabled() {
		if det.Mask != nil {
			return s.estimator.EstimateFromMask(s.projector, depth, det.Mask, det.Class, det.Confidence)
		}
		return s.estimator.EstimateFromRegion(s.projector, depth, det.Rect, det.Class, det.Confidence)
	}

	mask := det.Mask
	var (
		cloud pointcloud.Cloud
		err   error
	)
	if mask != nil {
		cloud, err = s.projector.DepthToPointCloud(depth, mask)
	} else {
		cloud, err = s.projector.RegionToPointCloud(depth, det.Rect)
		in := s.projector.Intrinsics()
		mask = projection.NewMask(in.Width, in.Height)
		mask.SetRect(det.Rect)
	}
	if err != nil {
		return nil, errors.Wrap(err, "can't project depth")
	}
	cloud = s.clean(projection.CameraToGroundCloud(cloud), ground)

	var (
		box *bbox3d.Box
		ok  bool
	)
	if s.cfg.Preprocess.ClusterObjects {
		box, ok = s.estimator.EstimateClusters(cloud, det.Class, det.Confidence)
	} else {
		box, ok = s.estimator.Estimate(cloud, det.Class, det.Confidence)
	}
	if !ok {
		return nil, nil
	}
	if distance, ok := s.projector.CenterPatchDistance(depth, mask); ok {
		box.Distance = &distance
	}
	return box, nil
}

// clean applies range filter, ground removal and voxel downsampling to ground frame cloud
func (s *Sequence) clean(cloud pointcloud.Cloud, ground *pointcloud.Plane) pointcloud.Cloud {
	pre := s.cfg.Preprocess
	if pre.MinDistance > 0 || pre.MaxDistance > 0 {
		cloud = pointcloud.FilterRange(cloud, pre.MinDistance, pre.MaxDistance)
	}
	if ground != nil {
		keep := make([]int, 0, cloud.Len())
		for i, p := range cloud.Points {
			if ground.Distance(p.Vec()) > pre.Ground.DistanceThreshold {
				keep = append(keep, i)
			}
		}
		cloud = cloud.Subset(keep)
	}
	if pre.VoxelSize > 0 {
		cloud = pointcloud.VoxelDownsample(cloud, pre.VoxelSize)
	}
	return cloud
}

// groundPlane fits the dominant plane of the whole frame and accepts it when it is horizontal
func (s *Sequence) groundPlane(depth *projection.DepthMap) (pointcloud.Plane, bool, error) {
	scene, err := s.projector.DepthToPointCloud(depth, nil)
	if err != nil {
		return pointcloud.Plane{}, false, errors.Wrap(err, "can't project scene")
	}
	scene = projection.CameraToGroundCloud(scene)
	if s.cfg.Preprocess.GroundVoxelSize > 0 {
		scene = pointcloud.VoxelDownsample(scene, s.cfg.Preprocess.GroundVoxelSize)
	}
	_, _, plane, ok := pointcloud.SegmentGround(scene, s.cfg.Preprocess.Ground)
	if !ok || math.Abs(plane.Normal.Z) < s.cfg.Preprocess.GroundMinVerticality {
		return pointcloud.Plane{}, false, nil
	}
	return plane, true, nil
}
