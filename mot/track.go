package mot

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/LdDl/mot3d-go/bbox3d"
)

// TrackState is lifecycle state of a track
type TrackState uint16

const (
	// TrackTentative is a new track waiting for ConfirmHits matches
	TrackTentative TrackState = iota
	// TrackConfirmed is a track returned by Tracker.Update
	TrackConfirmed
	// TrackLost is a confirmed track that missed its detection recently
	TrackLost
	// TrackDeleted is a track moved to removed set
	TrackDeleted
)

func (s TrackState) String() string {
	switch s {
	case TrackTentative:
		return "tentative"
	case TrackConfirmed:
		return "confirmed"
	case TrackLost:
		return "lost"
	case TrackDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Detection is tracker input: a fitted 3D box and optional image-plane box
type Detection struct {
	Box bbox3d.Box
	// ImageBox is 2D detection box in pixels, nil when unknown
	ImageBox *Rectangle
}

// Observation is one matched detection of a track
type Observation struct {
	FrameID int
	// Filtered position right after the update
	Position   r3.Vec
	Box        bbox3d.Box
	Confidence float64
	// Smoothed image box at this frame, nil if unknown
	ImageBox *Rectangle
}

// Track is a tracked object. Tracks returned by Tracker are snapshots:
// modifying them does not affect tracker state.
type Track struct {
	ID    int
	State TrackState
	Class bbox3d.Class
	// Box is the latest matched detection box with TrackID filled in
	Box        bbox3d.Box
	Motion     MotionState
	Confidence float64
	// Hits counts matched frames including the creating detection
	Hits            int
	TimeSinceUpdate int
	StartFrame      int
	LastFrame       int
	// History holds the latest observations, oldest first
	History []Observation
	// ImageBox is smoothed 2D box, nil if detections never carried one
	ImageBox   *Rectangle
	ImageSpeed float64

	imageFilter *imageBoxFilter
}

// Position returns filtered center
func (tr *Track) Position() r3.Vec {
	return tr.Motion.Position()
}

// Velocity returns filtered velocity in units per DT
func (tr *Track) Velocity() r3.Vec {
	return tr.Motion.Velocity()
}

// StateBox returns box built from motion state: filtered center and extent,
// yaw and metadata of the latest detection
func (tr *Track) StateBox() bbox3d.Box {
	w, h, l := tr.Motion.Extent()
	box := tr.Box.Clone()
	box.Center = tr.Motion.Position()
	box.Width = w
	box.Height = h
	box.Length = l
	box.TrackID = tr.ID
	return box
}

// IsConfirmed returns true for confirmed tracks
func (tr *Track) IsConfirmed() bool {
	return tr.State == TrackConfirmed
}

func (tr *Track) snapshot() Track {
	out := *tr
	out.Box = tr.Box.Clone()
	out.History = make([]Observation, len(tr.History))
	for i, obs := range tr.History {
		obs.Box = obs.Box.Clone()
		if obs.ImageBox != nil {
			rect := *obs.ImageBox
			obs.ImageBox = &rect
		}
		out.History[i] = obs
	}
	if tr.ImageBox != nil {
		rect := *tr.ImageBox
		out.ImageBox = &rect
	}
	out.imageFilter = nil
	return out
}

func measurementFromBox(b bbox3d.Box) Measurement {
	return Measurement{b.Center.X, b.Center.Y, b.Center.Z, b.Width, b.Height, b.Length}
}
