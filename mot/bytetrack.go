package mot

import (
	"github.com/pkg/errors"

	"github.com/LdDl/mot3d-go/logging"
	"github.com/LdDl/mot3d-go/validation"
)

// ErrFrameOrder is returned when Update receives frame id not greater than the previous one
var ErrFrameOrder = errors.New("frame ids must strictly increase")

// maxRemoved bounds the removed set of long sequences
const maxRemoved = 1000

// Tracker is ByteTrack-style multi-object tracker for 3D boxes.
// High-confidence detections are matched first, low-confidence ones only recover
// already confirmed tracks. Tracker is not safe for concurrent use: frames of
// one sequence must be fed in increasing order.
type Tracker struct {
	cfg Config
	kf  *KalmanFilter
	// Tentative, confirmed and lost tracks ordered by id
	tracks  []*Track
	removed []*Track
	nextID  int
	frameID int
	started bool
}

// NewTracker creates a new instance of Tracker with specified parameters.
func NewTracker(cfg Config) (*Tracker, error) {
	if err := validation.Struct("mot", cfg); err != nil {
		return nil, err
	}
	return &Tracker{
		cfg:    cfg,
		kf:     NewKalmanFilter(cfg.Noise),
		tracks: make([]*Track, 0),
		nextID: 1,
	}, nil
}

// DefaultTracker creates a Tracker with default parameters.
func DefaultTracker() *Tracker {
	tracker, err := NewTracker(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return tracker
}

// Config returns tracker configuration
func (t *Tracker) Config() Config {
	return t.cfg
}

// FrameID returns id of the last processed frame
func (t *Tracker) FrameID() int {
	return t.frameID
}

// NextID returns identifier the next new track will get
func (t *Tracker) NextID() int {
	return t.nextID
}

// SetNextID moves id counter forward. Lower values are ignored so ids never repeat.
func (t *Tracker) SetNextID(id int) {
	if id > t.nextID {
		t.nextID = id
	}
}

// Reset drops every track and frame ordering. Id counter keeps going.
func (t *Tracker) Reset() {
	t.tracks = make([]*Track, 0)
	t.removed = nil
	t.frameID = 0
	t.started = false
}

// Update runs one tracking step and returns snapshots of confirmed tracks ordered by id.
func (t *Tracker) Update(detections []Detection, frameID int) ([]Track, error) {
	if t.started && frameID <= t.frameID {
		return nil, errors.Wrapf(ErrFrameOrder, "frame %d after %d", frameID, t.frameID)
	}
	steps := 1
	if t.started {
		steps = frameID - t.frameID
	}
	t.started = true
	t.frameID = frameID

	// 1. Split detections by confidence
	highDetectionIndices := make([]int, 0, len(detections))
	lowDetectionIndices := make([]int, 0)
	for i := range detections {
		if detections[i].Box.Confidence >= t.cfg.TrackThresh {
			highDetectionIndices = append(highDetectionIndices, i)
		} else {
			lowDetectionIndices = append(lowDetectionIndices, i)
		}
	}

	// 2. Predict next positions for all existing tracks.
	// Lost tracks whose buffer ran out during a frame gap are deleted before stage D sees them.
	confirmed := make([]*Track, 0, len(t.tracks))
	tentative := make([]*Track, 0)
	lost := make([]*Track, 0)
	for _, track := range t.tracks {
		if track.State == TrackLost && t.expired(track, frameID) {
			t.remove(track, frameID)
			continue
		}
		t.predict(track, steps)
		switch track.State {
		case TrackConfirmed:
			confirmed = append(confirmed, track)
		case TrackTentative:
			tentative = append(tentative, track)
		case TrackLost:
			lost = append(lost, track)
		}
	}

	// 3. Stage A: confirmed tracks vs high confidence detections
	unmatchedConfirmed, leftoverHigh, err := t.associate(confirmed, detections, highDetectionIndices, t.cfg.MatchThresh, frameID)
	if err != nil {
		return nil, errors.Wrap(err, "stage A")
	}

	// 4. Stage B: remaining confirmed tracks vs low confidence detections
	unmatchedConfirmed, _, err = t.associate(unmatchedConfirmed, detections, lowDetectionIndices, t.cfg.LowMatchThresh, frameID)
	if err != nil {
		return nil, errors.Wrap(err, "stage B")
	}

	// 5. Confirmed tracks without detection become lost
	for _, track := range unmatchedConfirmed {
		if t.expired(track, frameID) {
			t.remove(track, frameID)
			continue
		}
		track.State = TrackLost
		logging.Debug(logging.Fields{"component": "mot", "track_id": track.ID, "frame_id": frameID}, "track lost")
	}

	// 6. Stage C: tentative tracks vs high confidence detections left from stage A
	unmatchedTentative, leftoverHigh, err := t.associate(tentative, detections, leftoverHigh, t.cfg.TentativeMatchThresh, frameID)
	if err != nil {
		return nil, errors.Wrap(err, "stage C")
	}

	// 7. Tentative track missing once is dropped
	for _, track := range unmatchedTentative {
		t.remove(track, frameID)
	}

	// 8. Stage D: revive tracks lost in previous frames
	unmatchedLost, leftoverHigh, err := t.associate(lost, detections, leftoverHigh, t.cfg.MatchThresh, frameID)
	if err != nil {
		return nil, errors.Wrap(err, "stage D")
	}
	for _, track := range unmatchedLost {
		if t.expired(track, frameID) {
			t.remove(track, frameID)
		}
	}

	// 9. Spawn tentative tracks for the rest of high confidence detections
	for _, detIdx := range leftoverHigh {
		if err := t.spawn(detections[detIdx], frameID); err != nil {
			return nil, err
		}
	}

	alive := t.tracks[:0]
	for _, track := range t.tracks {
		if track.State != TrackDeleted {
			alive = append(alive, track)
		}
	}
	for i := len(alive); i < len(t.tracks); i++ {
		t.tracks[i] = nil
	}
	t.tracks = alive

	return t.snapshots(TrackConfirmed), nil
}

// ActiveTracks returns snapshots of confirmed tracks
func (t *Tracker) ActiveTracks() []Track {
	return t.snapshots(TrackConfirmed)
}

// TentativeTracks returns snapshots of not yet confirmed tracks
func (t *Tracker) TentativeTracks() []Track {
	return t.snapshots(TrackTentative)
}

// LostTracks returns snapshots of lost tracks still within the buffer
func (t *Tracker) LostTracks() []Track {
	return t.snapshots(TrackLost)
}

// RemovedTracks returns snapshots of deleted tracks (the most recent ones)
func (t *Tracker) RemovedTracks() []Track {
	out := make([]Track, 0, len(t.removed))
	for _, track := range t.removed {
		out = append(out, track.snapshot())
	}
	return out
}

// StateOf returns current state of the track with the given id.
// Tracks the tracker no longer holds are reported as deleted.
func (t *Tracker) StateOf(id int) TrackState {
	for _, track := range t.tracks {
		if track.ID == id {
			return track.State
		}
	}
	return TrackDeleted
}

func (t *Tracker) snapshots(state TrackState) []Track {
	out := make([]Track, 0, len(t.tracks))
	for _, track := range t.tracks {
		if track.State == state {
			out = append(out, track.snapshot())
		}
	}
	return out
}

func (t *Tracker) predict(track *Track, steps int) {
	track.Motion = t.kf.Predict(track.Motion, t.cfg.DT*float64(steps))
	track.TimeSinceUpdate += steps
	if track.imageFilter != nil {
		for i := 0; i < steps; i++ {
			track.imageFilter.predict()
		}
	}
}

// expired reports lost track exceeding the buffer
func (t *Tracker) expired(track *Track, frameID int) bool {
	return frameID-track.LastFrame > t.cfg.TrackBuffer
}

// associate matches tracks with detections selected by detectionIndices and updates matched tracks.
// Returns unmatched tracks and unmatched detection indices, both in input order.
func (t *Tracker) associate(tracks []*Track, detections []Detection, detectionIndices []int, thresh float64, frameID int) ([]*Track, []int, error) {
	costMatrix := t.costMatrix(tracks, detections, detectionIndices)
	matches, unmatchedRows, unmatchedCols, err := linearAssignment(costMatrix, len(tracks), len(detectionIndices), thresh, t.cfg.Algorithm)
	if err != nil {
		return nil, nil, err
	}
	for _, match := range matches {
		if err := t.updateTrack(tracks[match[0]], detections[detectionIndices[match[1]]], frameID); err != nil {
			return nil, nil, err
		}
	}
	unmatchedTracks := make([]*Track, 0, len(unmatchedRows))
	for _, row := range unmatchedRows {
		unmatchedTracks = append(unmatchedTracks, tracks[row])
	}
	unmatchedDetections := make([]int, 0, len(unmatchedCols))
	for _, col := range unmatchedCols {
		unmatchedDetections = append(unmatchedDetections, detectionIndices[col])
	}
	return unmatchedTracks, unmatchedDetections, nil
}

// costMatrix is 1 - similarity between predicted track boxes (rows) and detections (columns)
func (t *Tracker) costMatrix(tracks []*Track, detections []Detection, detectionIndices []int) [][]float64 {
	costMatrix := make([][]float64, len(tracks))
	for i, track := range tracks {
		predicted := track.StateBox()
		row := make([]float64, len(detectionIndices))
		for j, detIdx := range detectionIndices {
			var similarity float64
			if t.cfg.UseIoU3D {
				similarity = IoU3D(predicted, detections[detIdx].Box)
			} else {
				similarity = DistanceScore(predicted, detections[detIdx].Box, t.cfg.MaxRelevantDistance)
			}
			row[j] = 1 - similarity
		}
		costMatrix[i] = row
	}
	return costMatrix
}

func (t *Tracker) updateTrack(track *Track, detection Detection, frameID int) error {
	motion, err := t.kf.Update(track.Motion, measurementFromBox(detection.Box))
	if err != nil {
		return errors.Wrapf(err, "Can't update object tracker %d", track.ID)
	}
	track.Motion = motion
	if err := t.observeImage(track, detection); err != nil {
		return err
	}
	t.observe(track, detection, frameID)
	track.Hits++

	fields := logging.Fields{"component": "mot", "track_id": track.ID, "frame_id": frameID}
	switch track.State {
	case TrackTentative:
		if track.Hits >= t.cfg.ConfirmHits {
			track.State = TrackConfirmed
			logging.Debug(fields, "track confirmed")
		}
	case TrackLost:
		track.State = TrackConfirmed
		logging.Debug(fields, "track revived")
	}
	return nil
}

// observe stores detection as the latest observation of the track
func (t *Tracker) observe(track *Track, detection Detection, frameID int) {
	box := detection.Box.Clone()
	box.TrackID = track.ID
	track.Box = box
	track.Class = box.Class
	track.Confidence = box.Confidence
	track.TimeSinceUpdate = 0
	track.LastFrame = frameID
	obs := Observation{
		FrameID:    frameID,
		Position:   track.Motion.Position(),
		Box:        box.Clone(),
		Confidence: box.Confidence,
	}
	if track.ImageBox != nil && detection.ImageBox != nil {
		rect := *track.ImageBox
		obs.ImageBox = &rect
	}
	track.History = append(track.History, obs)
	if len(track.History) > t.cfg.HistoryLen {
		track.History = track.History[len(track.History)-t.cfg.HistoryLen:]
	}
}

func (t *Tracker) observeImage(track *Track, detection Detection) error {
	if detection.ImageBox == nil {
		return nil
	}
	switch {
	case track.imageFilter == nil:
		track.imageFilter = newImageBoxFilter(*detection.ImageBox, t.cfg.DT)
	case !track.imageFilter.follows(*detection.ImageBox):
		logging.Debug(logging.Fields{"component": "mot", "track_id": track.ID}, "image box jumped, smoothing restarted")
		track.imageFilter = newImageBoxFilter(*detection.ImageBox, t.cfg.DT)
	default:
		if err := track.imageFilter.update(*detection.ImageBox); err != nil {
			return errors.Wrapf(err, "track %d", track.ID)
		}
	}
	rect := track.imageFilter.current
	track.ImageBox = &rect
	track.ImageSpeed = track.imageFilter.speed()
	return nil
}

func (t *Tracker) spawn(detection Detection, frameID int) error {
	track := &Track{
		ID:         t.nextID,
		State:      TrackTentative,
		Motion:     t.kf.Initiate(measurementFromBox(detection.Box)),
		StartFrame: frameID,
		Hits:       1,
		History:    make([]Observation, 0, 8),
	}
	t.nextID++
	if err := t.observeImage(track, detection); err != nil {
		return err
	}
	t.observe(track, detection, frameID)
	fields := logging.Fields{"component": "mot", "track_id": track.ID, "frame_id": frameID}
	logging.Debug(fields, "new track")
	if track.Hits >= t.cfg.ConfirmHits {
		track.State = TrackConfirmed
		logging.Debug(fields, "track confirmed")
	}
	t.tracks = append(t.tracks, track)
	return nil
}

func (t *Tracker) remove(track *Track, frameID int) {
	track.State = TrackDeleted
	logging.Debug(logging.Fields{"component": "mot", "track_id": track.ID, "frame_id": frameID}, "track deleted")
	t.removed = append(t.removed, track)
	if len(t.removed) > maxRemoved {
		t.removed = t.removed[len(t.removed)-maxRemoved:]
	}
}
