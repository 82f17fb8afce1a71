// Package projection back-projects depth images into metric point clouds and converts
// between camera and ground coordinate conventions.
package projection

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/LdDl/mot3d-go/pointcloud"
	"github.com/LdDl/mot3d-go/validation"
)

const (
	// DefaultPatchFraction is share of mask area sampled by CenterPatchDistance
	DefaultPatchFraction = 0.1
	// DefaultPatchMinSamples is minimal amount of valid depths for CenterPatchDistance
	DefaultPatchMinSamples = 10
)

// ErrShapeMismatch is returned when depth, mask or image resolution disagree with intrinsics
var ErrShapeMismatch = errors.New("image shape mismatch")

// Intrinsics is a pinhole camera model
type Intrinsics struct {
	Fx     float64 `yaml:"fx" json:"fx" validate:"gt=0"`
	Fy     float64 `yaml:"fy" json:"fy" validate:"gt=0"`
	Cx     float64 `yaml:"cx" json:"cx"`
	Cy     float64 `yaml:"cy" json:"cy"`
	Width  int     `yaml:"width" json:"width" validate:"gt=0"`
	Height int     `yaml:"height" json:"height" validate:"gt=0"`
}

// Config is the projector configuration
type Config struct {
	Intrinsics      Intrinsics `yaml:"intrinsics" json:"intrinsics"`
	PatchFraction   float64    `yaml:"patch_fraction" json:"patch_fraction" validate:"gt=0,lte=1"`
	PatchMinSamples int        `yaml:"patch_min_samples" json:"patch_min_samples" validate:"gte=1"`
}

// DefaultConfig returns configuration with default center-patch parameters
func DefaultConfig(intrinsics Intrinsics) Config {
	return Config{
		Intrinsics:      intrinsics,
		PatchFraction:   DefaultPatchFraction,
		PatchMinSamples: DefaultPatchMinSamples,
	}
}

// Projector converts pixels with depth into camera space points.
// Camera space is X-right, Y-down, Z-forward.
type Projector struct {
	cfg Config
}

// NewProjector validates configuration and creates projector
func NewProjector(cfg Config) (*Projector, error) {
	if err := validation.Struct("projection", cfg); err != nil {
		return nil, err
	}
	return &Projector{cfg: cfg}, nil
}

// Intrinsics returns camera model
func (p *Projector) Intrinsics() Intrinsics {
	return p.cfg.Intrinsics
}

// PixelTo3D back-projects pixel (u, v) observed at the given depth
func (p *Projector) PixelTo3D(u, v, depth float64) r3.Vec {
	in := p.cfg.Intrinsics
	return r3.Vec{
		X: (u - in.Cx) / in.Fx * depth,
		Y: (v - in.Cy) / in.Fy * depth,
		Z: depth,
	}
}

// Project3DToPixel projects camera space point onto the image plane.
// False is returned for points not in front of the camera.
func (p *Projector) Project3DToPixel(pt r3.Vec) (float64, float64, bool) {
	if pt.Z <= 0 {
		return 0, 0, false
	}
	in := p.cfg.Intrinsics
	return pt.X/pt.Z*in.Fx + in.Cx, pt.Y/pt.Z*in.Fy + in.Cy, true
}

func (p *Projector) checkDepth(depth *DepthMap) error {
	if depth == nil {
		return errors.Wrap(ErrShapeMismatch, "depth map is nil")
	}
	in := p.cfg.Intrinsics
	if depth.Width != in.Width || depth.Height != in.Height || len(depth.Data) != depth.Width*depth.Height {
		return errors.Wrapf(ErrShapeMismatch, "depth %dx%d (%d values) vs intrinsics %dx%d", depth.Width, depth.Height, len(depth.Data), in.Width, in.Height)
	}
	return nil
}

func (p *Projector) checkMask(mask *Mask) error {
	if mask == nil {
		return nil
	}
	in := p.cfg.Intrinsics
	if mask.Width != in.Width || mask.Height != in.Height || len(mask.Data) != mask.Width*mask.Height {
		return errors.Wrapf(ErrShapeMismatch, "mask %dx%d vs intrinsics %dx%d", mask.Width, mask.Height, in.Width, in.Height)
	}
	return nil
}

// DepthToPointCloud returns one point per pixel with finite positive depth (and set
// mask bit when mask is not nil). Points follow row-major pixel order.
func (p *Projector) DepthToPointCloud(depth *DepthMap, mask *Mask) (pointcloud.Cloud, error) {
	return p.project(depth, mask, image.Rect(0, 0, p.cfg.Intrinsics.Width, p.cfg.Intrinsics.Height), nil)
}

// DepthToColoredPointCloud works as DepthToPointCloud and pairs each point with pixel color of img
func (p *Projector) DepthToColoredPointCloud(depth *DepthMap, mask *Mask, img image.Image) (pointcloud.Cloud, error) {
	if img == nil {
		return p.DepthToPointCloud(depth, mask)
	}
	b := img.Bounds()
	if b.Dx() != p.cfg.Intrinsics.Width || b.Dy() != p.cfg.Intrinsics.Height {
		return pointcloud.Cloud{}, errors.Wrapf(ErrShapeMismatch, "color image %dx%d vs intrinsics %dx%d", b.Dx(), b.Dy(), p.cfg.Intrinsics.Width, p.cfg.Intrinsics.Height)
	}
	return p.project(depth, mask, image.Rect(0, 0, p.cfg.Intrinsics.Width, p.cfg.Intrinsics.Height), img)
}

// RegionToPointCloud back-projects every valid pixel inside region (clipped to image).
// Used for detections without a mask.
func (p *Projector) RegionToPointCloud(depth *DepthMap, region image.Rectangle) (pointcloud.Cloud, error) {
	return p.project(depth, nil, region, nil)
}

func (p *Projector) project(depth *DepthMap, mask *Mask, region image.Rectangle, img image.Image) (pointcloud.Cloud, error) {
	if err := p.checkDepth(depth); err != nil {
		return pointcloud.Cloud{}, err
	}
	if err := p.checkMask(mask); err != nil {
		return pointcloud.Cloud{}, err
	}
	region = region.Canon().Intersect(image.Rect(0, 0, depth.Width, depth.Height))
	out := pointcloud.Cloud{Points: make([]pointcloud.Point, 0, region.Dx()*region.Dy())}
	for v := region.Min.Y; v < region.Max.Y; v++ {
		for u := region.Min.X; u < region.Max.X; u++ {
			if mask != nil && !mask.At(u, v) {
				continue
			}
			z, ok := depth.valid(u, v)
			if !ok {
				continue
			}
			out.Points = append(out.Points, pointcloud.PointFromVec(p.PixelTo3D(float64(u), float64(v), z)))
			if img != nil {
				b := img.Bounds()
				out.Colors = append(out.Colors, color.RGBAModel.Convert(img.At(b.Min.X+u, b.Min.Y+v)).(color.RGBA))
			}
		}
	}
	return out, nil
}

// CenterPatchDistance averages valid depths inside a circle at the mask centroid whose
// area is PatchFraction of the mask area. False is returned when fewer than
// PatchMinSamples valid depths fall inside the patch, or when mask is empty.
func (p *Projector) CenterPatchDistance(depth *DepthMap, mask *Mask) (float64, bool) {
	if mask == nil || p.checkDepth(depth) != nil || p.checkMask(mask) != nil {
		return 0, false
	}
	area := mask.Area()
	if area == 0 {
		return 0, false
	}
	cu, cv, _ := mask.Centroid()
	radius := math.Sqrt(p.cfg.PatchFraction * float64(area) / math.Pi)
	r2 := radius * radius
	minU := int(math.Max(0, math.Floor(cu-radius)))
	maxU := int(math.Min(float64(mask.Width-1), math.Ceil(cu+radius)))
	minV := int(math.Max(0, math.Floor(cv-radius)))
	maxV := int(math.Min(float64(mask.Height-1), math.Ceil(cv+radius)))

	var sum float64
	count := 0
	for v := minV; v <= maxV; v++ {
		for u := minU; u <= maxU; u++ {
			du, dv := float64(u)-cu, float64(v)-cv
			if du*du+dv*dv > r2 || !mask.At(u, v) {
				continue
			}
			z, ok := depth.valid(u, v)
			if !ok {
				continue
			}
			sum += z
			count++
		}
	}
	if count < p.cfg.PatchMinSamples {
		return 0, false
	}
	return sum / float64(count), true
}
