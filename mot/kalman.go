package mot

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	stateDim   = 9
	measureDim = 6
)

// State vector layout: [x, y, z, vx, vy, vz, w, h, l]
const (
	idxX = iota
	idxY
	idxZ
	idxVX
	idxVY
	idxVZ
	idxW
	idxH
	idxL
)

// Measurement is [x, y, z, w, h, l]: box center and extent
type Measurement [measureDim]float64

// MotionState is mean and covariance of the constant velocity model.
// It is a plain value: copying it copies the whole estimate.
type MotionState struct {
	Mean       [stateDim]float64
	Covariance [stateDim * stateDim]float64
}

// Position returns estimated center
func (s MotionState) Position() r3.Vec {
	return r3.Vec{X: s.Mean[idxX], Y: s.Mean[idxY], Z: s.Mean[idxZ]}
}

// Velocity returns estimated velocity
func (s MotionState) Velocity() r3.Vec {
	return r3.Vec{X: s.Mean[idxVX], Y: s.Mean[idxVY], Z: s.Mean[idxVZ]}
}

// Extent returns estimated width, height and length (never negative)
func (s MotionState) Extent() (w, h, l float64) {
	return maxFloat64(0, s.Mean[idxW]), maxFloat64(0, s.Mean[idxH]), maxFloat64(0, s.Mean[idxL])
}

func (s *MotionState) covDense() *mat.Dense {
	return mat.NewDense(stateDim, stateDim, s.Covariance[:])
}

// KalmanFilter is linear filter over position, velocity and extent of a 3D box
type KalmanFilter struct {
	noise     MotionNoise
	updateMat *mat.Dense
}

// NewKalmanFilter creates filter with given noise terms
func NewKalmanFilter(noise MotionNoise) *KalmanFilter {
	// updateMat picks position and extent out of state
	updateMat := mat.NewDense(measureDim, stateDim, nil)
	updateMat.Set(0, idxX, 1)
	updateMat.Set(1, idxY, 1)
	updateMat.Set(2, idxZ, 1)
	updateMat.Set(3, idxW, 1)
	updateMat.Set(4, idxH, 1)
	updateMat.Set(5, idxL, 1)
	return &KalmanFilter{
		noise:     noise,
		updateMat: updateMat,
	}
}

func (kf *KalmanFilter) motionMat(dt float64) *mat.Dense {
	motionMat := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		motionMat.Set(i, i, 1)
	}
	motionMat.Set(idxX, idxVX, dt)
	motionMat.Set(idxY, idxVY, dt)
	motionMat.Set(idxZ, idxVZ, dt)
	return motionMat
}

// Initiate creates state from the first measurement with zero velocity
func (kf *KalmanFilter) Initiate(m Measurement) MotionState {
	var s MotionState
	s.Mean[idxX], s.Mean[idxY], s.Mean[idxZ] = m[0], m[1], m[2]
	s.Mean[idxW], s.Mean[idxH], s.Mean[idxL] = m[3], m[4], m[5]

	std := [stateDim]float64{}
	for _, i := range []int{idxX, idxY, idxZ} {
		std[i] = 2 * kf.noise.MeasurePosition
	}
	for _, i := range []int{idxVX, idxVY, idxVZ} {
		std[i] = kf.noise.InitialVelocity
	}
	for _, i := range []int{idxW, idxH, idxL} {
		std[i] = 2 * kf.noise.MeasureExtent
	}
	for i, v := range std {
		s.Covariance[i*stateDim+i] = v * v
	}
	return s
}

// Predict advances state by dt: position += velocity*dt, covariance grows by process noise
func (kf *KalmanFilter) Predict(s MotionState, dt float64) MotionState {
	motionMat := kf.motionMat(dt)

	meanVec := mat.NewVecDense(stateDim, nil)
	meanVec.MulVec(motionMat, mat.NewVecDense(stateDim, s.Mean[:]))

	var cov mat.Dense
	cov.Mul(motionMat, s.covDense())
	cov.Mul(&cov, motionMat.T())
	for i := 0; i < stateDim; i++ {
		var std float64
		switch {
		case i <= idxZ:
			std = kf.noise.Position
		case i <= idxVZ:
			std = kf.noise.Velocity
		default:
			std = kf.noise.Extent
		}
		cov.Set(i, i, cov.At(i, i)+std*std*dt)
	}

	var out MotionState
	for i := 0; i < stateDim; i++ {
		out.Mean[i] = meanVec.AtVec(i)
	}
	copySymmetric(&out, &cov)
	return out
}

// project maps state into measurement space
func (kf *KalmanFilter) project(s MotionState) (*mat.VecDense, *mat.SymDense) {
	projectedMean := mat.NewVecDense(measureDim, nil)
	projectedMean.MulVec(kf.updateMat, mat.NewVecDense(stateDim, s.Mean[:]))

	var temp mat.Dense
	temp.Mul(kf.updateMat, s.covDense())
	var temp2 mat.Dense
	temp2.Mul(&temp, kf.updateMat.T())

	projectedCov := mat.NewSymDense(measureDim, nil)
	for i := 0; i < measureDim; i++ {
		for j := i; j < measureDim; j++ {
			projectedCov.SetSym(i, j, temp2.At(i, j))
		}
	}
	for i := 0; i < measureDim; i++ {
		std := kf.noise.MeasurePosition
		if i >= 3 {
			std = kf.noise.MeasureExtent
		}
		projectedCov.SetSym(i, i, projectedCov.At(i, i)+std*std)
	}
	return projectedMean, projectedCov
}

// Update corrects state with a measurement
func (kf *KalmanFilter) Update(s MotionState, m Measurement) (MotionState, error) {
	projectedMean, projectedCov := kf.project(s)

	var chol mat.Cholesky
	if ok := chol.Factorize(projectedCov); !ok {
		return s, errors.New("failed to factorize projected covariance")
	}

	// gainT = S^-1 * H * P, the transposed Kalman gain
	var hp mat.Dense
	hp.Mul(kf.updateMat, s.covDense())
	var gainT mat.Dense
	if err := chol.SolveTo(&gainT, &hp); err != nil {
		return s, errors.Wrap(err, "failed to compute kalman gain")
	}

	innovation := mat.NewVecDense(measureDim, nil)
	for i := 0; i < measureDim; i++ {
		innovation.SetVec(i, m[i]-projectedMean.AtVec(i))
	}
	correction := mat.NewVecDense(stateDim, nil)
	correction.MulVec(gainT.T(), innovation)

	var out MotionState
	for i := 0; i < stateDim; i++ {
		out.Mean[i] = s.Mean[i] + correction.AtVec(i)
	}

	// P - K S K^T
	var temp mat.Dense
	temp.Mul(gainT.T(), projectedCov)
	var temp2 mat.Dense
	temp2.Mul(&temp, &gainT)
	var cov mat.Dense
	cov.Sub(s.covDense(), &temp2)
	copySymmetric(&out, &cov)
	return out, nil
}

// copySymmetric stores averaged (P + P^T)/2 to keep covariance symmetric under rounding
func copySymmetric(dst *MotionState, cov *mat.Dense) {
	for i := 0; i < stateDim; i++ {
		for j := 0; j < stateDim; j++ {
			dst.Covariance[i*stateDim+j] = (cov.At(i, j) + cov.At(j, i)) / 2
		}
	}
}
