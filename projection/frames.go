package projection

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/LdDl/mot3d-go/pointcloud"
)

// CameraToGround maps camera coordinates (X-right, Y-down, Z-forward) into
// ground coordinates (X-forward, Y-left, Z-up)
func CameraToGround(p r3.Vec) r3.Vec {
	return r3.Vec{X: p.Z, Y: -p.X, Z: -p.Y}
}

// GroundToCamera is the inverse of CameraToGround
func GroundToCamera(p r3.Vec) r3.Vec {
	return r3.Vec{X: -p.Y, Y: -p.Z, Z: p.X}
}

// CameraToGroundCloud converts every point of the cloud
func CameraToGroundCloud(c pointcloud.Cloud) pointcloud.Cloud {
	return c.Transform(CameraToGround)
}

// GroundToCameraCloud converts every point of the cloud
func GroundToCameraCloud(c pointcloud.Cloud) pointcloud.Cloud {
	return c.Transform(GroundToCamera)
}
