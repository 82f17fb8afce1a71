// Package trackmgr turns per-frame tracker output into durable trajectories
// of one sequence and owns their persistence.
package trackmgr

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/LdDl/mot3d-go/bbox3d"
	"github.com/LdDl/mot3d-go/mot"
)

// TrackPoint is one trajectory sample. Points are never modified after they are appended.
type TrackPoint struct {
	FrameID   int
	Timestamp float64
	// Smoothed position of the track at this frame
	Position r3.Vec
	// Raw matched box, nil for samples restored without one
	Box        *bbox3d.Box
	Confidence float64
	// Smoothed image box, nil if detections carried none
	ImageBox *mot.Rectangle
}

// Track is durable record of one tracked object
type Track struct {
	ID    int
	Class bbox3d.Class
	// State as of the last processed frame
	State mot.TrackState
	// Trajectory is ordered by frame id
	Trajectory []TrackPoint
}

// Len returns number of trajectory samples
func (t Track) Len() int {
	return len(t.Trajectory)
}

// StartFrame returns first frame of trajectory or -1 for an empty one
func (t Track) StartFrame() int {
	if len(t.Trajectory) == 0 {
		return -1
	}
	return t.Trajectory[0].FrameID
}

// EndFrame returns last frame of trajectory or -1 for an empty one
func (t Track) EndFrame() int {
	if len(t.Trajectory) == 0 {
		return -1
	}
	return t.Trajectory[len(t.Trajectory)-1].FrameID
}

// AvgConfidence returns mean confidence over trajectory
func (t Track) AvgConfidence() float64 {
	if len(t.Trajectory) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range t.Trajectory {
		sum += p.Confidence
	}
	return sum / float64(len(t.Trajectory))
}

// Spans reports whether frame lies within [StartFrame, EndFrame]
func (t Track) Spans(frameID int) bool {
	return len(t.Trajectory) > 0 && t.StartFrame() <= frameID && frameID <= t.EndFrame()
}

// PointAt returns sample for the exact frame
func (t Track) PointAt(frameID int) (TrackPoint, bool) {
	for _, p := range t.Trajectory {
		if p.FrameID == frameID {
			return p, true
		}
		if p.FrameID > frameID {
			break
		}
	}
	return TrackPoint{}, false
}

func (t *Track) clone() Track {
	out := *t
	out.Trajectory = make([]TrackPoint, len(t.Trajectory))
	for i, p := range t.Trajectory {
		if p.Box != nil {
			box := p.Box.Clone()
			p.Box = &box
		}
		if p.ImageBox != nil {
			rect := *p.ImageBox
			p.ImageBox = &rect
		}
		out.Trajectory[i] = p
	}
	return out
}

// Statistics aggregates trajectory set
type Statistics struct {
	TotalTracks  int            `json:"total_tracks"`
	ActiveTracks int            `json:"active_tracks"`
	TotalFrames  int            `json:"total_frames"`
	AvgLength    float64        `json:"avg_trajectory_length"`
	MinLength    int            `json:"min_trajectory_length"`
	MaxLength    int            `json:"max_trajectory_length"`
	ClassCounts  map[string]int `json:"class_counts"`
}
