package mot

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

// imageBoxFilter smooths the 2D detection box of a track with 8-D Kalman filter.
// State vector: [cx, cy, w, h, vx, vy, vw, vh] - center position, size, and velocities.
type imageBoxFilter struct {
	current   Rectangle
	predicted Rectangle
	tracker   *kalman_filter.KalmanBBox
}

func newImageBoxFilter(rect Rectangle, dt float64) *imageBoxFilter {
	center := rect.Center()

	// Kalman filter props
	uCx := 1.0
	uCy := 1.0
	uW := 0.0
	uH := 0.0
	stdDevA := 2.0
	stdDevMCx := 0.1
	stdDevMCy := 0.1
	stdDevMW := 0.1
	stdDevMH := 0.1
	kf := kalman_filter.NewKalmanBBox(
		dt, uCx, uCy, uW, uH,
		stdDevA, stdDevMCx, stdDevMCy, stdDevMW, stdDevMH,
		kalman_filter.WithStateBBox(center.X, center.Y, rect.Width, rect.Height),
	)
	return &imageBoxFilter{
		current:   rect,
		predicted: rect,
		tracker:   kf,
	}
}

// predict executes Kalman filter prediction step
func (f *imageBoxFilter) predict() {
	f.tracker.Predict()
	cx, cy, w, h := f.tracker.GetState()
	f.predicted = Rectangle{
		X:      cx - w/2.0,
		Y:      cy - h/2.0,
		Width:  w,
		Height: h,
	}
}

// update corrects filter with measured box and stores smoothed box
func (f *imageBoxFilter) update(rect Rectangle) error {
	center := rect.Center()
	err := f.tracker.Update(center.X, center.Y, rect.Width, rect.Height)
	if err != nil {
		return errors.Wrap(err, "Can't update image box tracker")
	}
	cx, cy, w, h := f.tracker.GetState()
	f.current = Rectangle{
		X:      cx - w/2.0,
		Y:      cy - h/2.0,
		Width:  w,
		Height: h,
	}
	return nil
}

// follows reports whether measured box overlaps the predicted one.
// A disjoint box means the 2D detector jumped and smoothing restarts.
func (f *imageBoxFilter) follows(rect Rectangle) bool {
	return IoU(f.predicted, rect) > 0
}

// speed returns center displacement in pixels per time step
func (f *imageBoxFilter) speed() float64 {
	vx, vy, _, _ := f.tracker.GetVelocity()
	return euclideanDistance(Point{}, Point{X: vx, Y: vy})
}
