package pointcloud

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultPlaneDistanceThreshold = 0.1
	DefaultPlaneRansacN           = 3
	DefaultPlaneIterations        = 1000
	DefaultPlaneSeed              = 42
)

// PlaneParams configures RANSAC plane fitting
type PlaneParams struct {
	// Maximal point-to-plane distance for an inlier, meters
	DistanceThreshold float64 `yaml:"distance_threshold" json:"distance_threshold" validate:"gt=0"`
	// Points sampled per hypothesis
	RansacN int `yaml:"ransac_n" json:"ransac_n" validate:"gte=3"`
	// Number of hypotheses
	Iterations int `yaml:"iterations" json:"iterations" validate:"gte=1"`
	// Seed of the sampler. Same seed gives the same segmentation.
	Seed int64 `yaml:"seed" json:"seed"`
}

// DefaultPlaneParams returns threshold 0.1 m, 3 points per sample, 1000 iterations
func DefaultPlaneParams() PlaneParams {
	return PlaneParams{
		DistanceThreshold: DefaultPlaneDistanceThreshold,
		RansacN:           DefaultPlaneRansacN,
		Iterations:        DefaultPlaneIterations,
		Seed:              DefaultPlaneSeed,
	}
}

// Plane is n·p + d = 0 with unit normal n
type Plane struct {
	Normal r3.Vec
	D      float64
}

// Coefficients returns (a, b, c, d) of ax + by + cz + d = 0
func (p Plane) Coefficients() [4]float64 {
	return [4]float64{p.Normal.X, p.Normal.Y, p.Normal.Z, p.D}
}

// Distance returns absolute distance from v to the plane
func (p Plane) Distance(v r3.Vec) float64 {
	return math.Abs(r3.Dot(p.Normal, v) + p.D)
}

type planeSampler struct {
	rng *rand.Rand
	n   int
}

// sample picks k distinct indices
func (s *planeSampler) sample(dst []int) {
	for i := range dst {
		for {
			idx := s.rng.Intn(s.n)
			if !containsIndex(dst[:i], idx) {
				dst[i] = idx
				break
			}
		}
	}
}

func containsIndex(ids []int, idx int) bool {
	for _, id := range ids {
		if id == idx {
			return true
		}
	}
	return false
}

// fitPlane fits plane exactly through 3 points or by least squares through more.
// The sign of normal is chosen to point to +Z (then +Y, +X) for stable output.
func fitPlane(pts []r3.Vec) (Plane, bool) {
	var normal r3.Vec
	var anchor r3.Vec
	if len(pts) == 3 {
		normal = r3.Cross(r3.Sub(pts[1], pts[0]), r3.Sub(pts[2], pts[0]))
		anchor = pts[0]
	} else {
		xs := make([]float64, len(pts))
		ys := make([]float64, len(pts))
		zs := make([]float64, len(pts))
		for i, p := range pts {
			xs[i], ys[i], zs[i] = p.X, p.Y, p.Z
		}
		anchor = r3.Vec{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil), Z: stat.Mean(zs, nil)}
		data := mat.NewDense(len(pts), 3, nil)
		for i := range pts {
			data.Set(i, 0, xs[i])
			data.Set(i, 1, ys[i])
			data.Set(i, 2, zs[i])
		}
		var cov mat.SymDense
		stat.CovarianceMatrix(&cov, data, nil)
		var eig mat.EigenSym
		if !eig.Factorize(&cov, true) {
			return Plane{}, false
		}
		values := eig.Values(nil)
		var vectors mat.Dense
		eig.VectorsTo(&vectors)
		smallest := 0
		for i := 1; i < len(values); i++ {
			if values[i] < values[smallest] {
				smallest = i
			}
		}
		normal = r3.Vec{X: vectors.At(0, smallest), Y: vectors.At(1, smallest), Z: vectors.At(2, smallest)}
	}
	norm := r3.Norm(normal)
	if norm < 1e-12 || math.IsNaN(norm) {
		return Plane{}, false
	}
	normal = r3.Scale(1/norm, normal)
	if normal.Z < 0 || (normal.Z == 0 && (normal.Y < 0 || (normal.Y == 0 && normal.X < 0))) {
		normal = r3.Scale(-1, normal)
	}
	return Plane{Normal: normal, D: -r3.Dot(normal, anchor)}, true
}

// SegmentGround RANSAC-fits the dominant plane and splits cloud into plane inliers
// (ground) and the remaining points. ok is false when no plane could be fitted,
// in which case rest holds every finite point.
func SegmentGround(c Cloud, params PlaneParams) (ground, rest Cloud, plane Plane, ok bool) {
	finite := DropNonFinite(c)
	n := finite.Len()
	if n < params.RansacN || params.RansacN < 3 || params.Iterations < 1 {
		return Cloud{}, finite, Plane{}, false
	}
	vecs := finite.Vecs()
	sampler := &planeSampler{rng: rand.New(rand.NewSource(params.Seed)), n: n}
	ids := make([]int, params.RansacN)
	sample := make([]r3.Vec, params.RansacN)

	bestInliers := 0
	var best Plane
	for it := 0; it < params.Iterations; it++ {
		sampler.sample(ids)
		for i, idx := range ids {
			sample[i] = vecs[idx]
		}
		candidate, fitted := fitPlane(sample)
		if !fitted {
			continue
		}
		inliers := 0
		for _, v := range vecs {
			if candidate.Distance(v) <= params.DistanceThreshold {
				inliers++
			}
		}
		if inliers > bestInliers {
			bestInliers = inliers
			best = candidate
		}
	}
	if bestInliers == 0 {
		return Cloud{}, finite, Plane{}, false
	}

	groundIdx := make([]int, 0, bestInliers)
	restIdx := make([]int, 0, n-bestInliers)
	for i, v := range vecs {
		if best.Distance(v) <= params.DistanceThreshold {
			groundIdx = append(groundIdx, i)
		} else {
			restIdx = append(restIdx, i)
		}
	}
	return finite.Subset(groundIdx), finite.Subset(restIdx), best, true
}
