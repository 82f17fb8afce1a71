package bbox3d

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/LdDl/mot3d-go/pointcloud"
	"github.com/LdDl/mot3d-go/projection"
)

// KITTILabel is one line of KITTI object label file. Location is the bottom
// center of the box in camera coordinates, RotationY is yaw around camera Y axis.
type KITTILabel struct {
	Type      string
	Truncated float64
	Occluded  int
	Alpha     float64
	// left, top, right, bottom in pixels; zeros when 2D box is unknown
	BBox2D    [4]float64
	Height    float64
	Width     float64
	Length    float64
	Location  r3.Vec
	RotationY float64
	Score     float64
	HasScore  bool
}

// LabelFromBox converts ground frame box into KITTI label.
// bbox2D may be nil; the placeholder is written then.
func LabelFromBox(b Box, bbox2D *[4]float64) KITTILabel {
	center := projection.GroundToCamera(b.Center)
	// KITTI location is bottom center, camera Y points down
	location := r3.Vec{X: center.X, Y: center.Y + b.Height/2, Z: center.Z}
	rotationY := wrapAngle(-b.Yaw - math.Pi/2)
	label := KITTILabel{
		Type:      kittiType(b.Class.Name),
		Alpha:     wrapAngle(rotationY - math.Atan2(location.X, location.Z)),
		Height:    b.Height,
		Width:     b.Width,
		Length:    b.Length,
		Location:  location,
		RotationY: rotationY,
		Score:     b.Confidence,
		HasScore:  true,
	}
	if bbox2D != nil {
		label.BBox2D = *bbox2D
	}
	return label
}

// Box converts label back to ground frame box
func (l KITTILabel) Box() Box {
	center := r3.Vec{X: l.Location.X, Y: l.Location.Y - l.Height/2, Z: l.Location.Z}
	return Box{
		Center:     projection.CameraToGround(center),
		Length:     l.Length,
		Width:      l.Width,
		Height:     l.Height,
		Yaw:        pointcloud.NormalizeYaw(-l.RotationY - math.Pi/2),
		Confidence: l.Score,
		Class:      Class{ID: -1, Name: l.Type},
	}
}

// String formats label as a single KITTI line
func (l KITTILabel) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %.2f %d %.2f %.2f %.2f %.2f %.2f %.2f %.2f %.2f %.2f %.2f %.2f %.2f",
		l.Type, l.Truncated, l.Occluded, l.Alpha,
		l.BBox2D[0], l.BBox2D[1], l.BBox2D[2], l.BBox2D[3],
		l.Height, l.Width, l.Length,
		l.Location.X, l.Location.Y, l.Location.Z,
		l.RotationY,
	)
	if l.HasScore {
		fmt.Fprintf(&sb, " %.4f", l.Score)
	}
	return sb.String()
}

// FormatKITTI is a shortcut for LabelFromBox(b, bbox2D).String()
func FormatKITTI(b Box, bbox2D *[4]float64) string {
	return LabelFromBox(b, bbox2D).String()
}

// ParseKITTI parses a label line with 15 fields (16 with score)
func ParseKITTI(line string) (KITTILabel, error) {
	fields := strings.Fields(line)
	if len(fields) != 15 && len(fields) != 16 {
		return KITTILabel{}, errors.Errorf("KITTI label must have 15 or 16 fields, got %d", len(fields))
	}
	values := make([]float64, len(fields))
	for i := 1; i < len(fields); i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return KITTILabel{}, errors.Wrapf(err, "field %d of KITTI label", i)
		}
		values[i] = v
	}
	label := KITTILabel{
		Type:      fields[0],
		Truncated: values[1],
		Occluded:  int(values[2]),
		Alpha:     values[3],
		BBox2D:    [4]float64{values[4], values[5], values[6], values[7]},
		Height:    values[8],
		Width:     values[9],
		Length:    values[10],
		Location:  r3.Vec{X: values[11], Y: values[12], Z: values[13]},
		RotationY: values[14],
	}
	if len(fields) == 16 {
		label.Score = values[15]
		label.HasScore = true
	}
	return label, nil
}

func kittiType(name string) string {
	if name == "" {
		return "DontCare"
	}
	return strings.ReplaceAll(name, " ", "_")
}

// wrapAngle maps angle into [-pi, pi)
func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
