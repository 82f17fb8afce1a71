package trackmgr

import (
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/LdDl/mot3d-go/bbox3d"
	"github.com/LdDl/mot3d-go/logging"
	"github.com/LdDl/mot3d-go/mot"
)

var (
	// ErrTrackNotFound is returned for unknown track ids
	ErrTrackNotFound = errors.New("track not found")
	// ErrSelfMerge is returned when merging a track into itself
	ErrSelfMerge = errors.New("can't merge track into itself")
)

// Manager drives tracker of one sequence and keeps the trajectory of every track it confirmed.
// Methods are safe for concurrent use, but Update calls must come in increasing frame order.
type Manager struct {
	mu         sync.RWMutex
	tracker    *mot.Tracker
	sequenceID uuid.UUID
	tracks     map[int]*Track
	// Ids returned by the last Update
	active map[int]struct{}
	// Absorbed id -> surviving id, filled by Merge
	aliases     map[int]int
	timestamps  map[int]float64
	totalFrames int
}

// NewManager creates manager with its own tracker
func NewManager(cfg mot.Config) (*Manager, error) {
	tracker, err := mot.NewTracker(cfg)
	if err != nil {
		return nil, err
	}
	m := &Manager{tracker: tracker}
	m.clear()
	return m, nil
}

func (m *Manager) clear() {
	m.sequenceID = uuid.New()
	m.tracks = make(map[int]*Track)
	m.active = make(map[int]struct{})
	m.aliases = make(map[int]int)
	m.timestamps = make(map[int]float64)
	m.totalFrames = 0
}

// SequenceID identifies the current sequence. It changes on Reset and Load.
func (m *Manager) SequenceID() uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sequenceID
}

// Tracker returns underlying tracker
func (m *Manager) Tracker() *mot.Tracker {
	return m.tracker
}

// Update runs tracker on detections of the frame and extends trajectories of confirmed tracks.
// Samples a track collected while tentative are added when it gets confirmed.
func (m *Manager) Update(detections []mot.Detection, frameID int, timestamp float64) ([]mot.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	confirmed, err := m.tracker.Update(detections, frameID)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't update tracks at frame %d", frameID)
	}
	m.timestamps[frameID] = timestamp
	m.totalFrames++

	m.active = make(map[int]struct{}, len(confirmed))
	for i := range confirmed {
		m.absorb(&confirmed[i])
	}
	for id, track := range m.tracks {
		if _, ok := m.active[id]; ok || track.State == mot.TrackDeleted {
			continue
		}
		track.State = m.trackerState(id)
	}
	return confirmed, nil
}

// trackerState looks up the id itself and every id merged into it
func (m *Manager) trackerState(id int) mot.TrackState {
	state := m.tracker.StateOf(id)
	for from, to := range m.aliases {
		if to != id || state != mot.TrackDeleted {
			continue
		}
		state = m.tracker.StateOf(from)
	}
	return state
}

func (m *Manager) resolve(id int) int {
	if target, ok := m.aliases[id]; ok {
		return target
	}
	return id
}

// absorb appends observations of confirmed tracker track not stored yet
func (m *Manager) absorb(src *mot.Track) {
	id := m.resolve(src.ID)
	track, ok := m.tracks[id]
	if !ok {
		track = &Track{ID: id, Class: src.Class, Trajectory: make([]TrackPoint, 0, len(src.History))}
		m.tracks[id] = track
		logging.Debug(logging.Fields{"component": "trackmgr", "track_id": id, "frame_id": src.LastFrame}, "trajectory started")
	}
	track.Class = src.Class
	track.State = src.State
	m.active[id] = struct{}{}
	last := track.EndFrame()
	for _, obs := range src.History {
		if last >= 0 && obs.FrameID <= last {
			continue
		}
		box := obs.Box.Clone()
		box.TrackID = id
		point := TrackPoint{
			FrameID:    obs.FrameID,
			Timestamp:  m.timestamps[obs.FrameID],
			Position:   obs.Position,
			Box:        &box,
			Confidence: obs.Confidence,
		}
		if obs.ImageBox != nil {
			rect := *obs.ImageBox
			point.ImageBox = &rect
		}
		track.Trajectory = append(track.Trajectory, point)
	}
}

// Get returns copy of track with the given id
func (m *Manager) Get(id int) (Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	track, ok := m.tracks[id]
	if !ok {
		return Track{}, errors.Wrapf(ErrTrackNotFound, "id %d", id)
	}
	return track.clone(), nil
}

// All returns every known track ordered by id
func (m *Manager) All() []Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(func(*Track) bool { return true })
}

// Active returns tracks confirmed at the last processed frame
func (m *Manager) Active() []Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(func(t *Track) bool {
		_, ok := m.active[t.ID]
		return ok
	})
}

// TracksAtFrame returns tracks whose trajectory spans the frame
func (m *Manager) TracksAtFrame(frameID int) []Track {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(func(t *Track) bool { return t.Spans(frameID) })
}

func (m *Manager) collect(keep func(*Track) bool) []Track {
	ids := m.sortedIDs()
	out := make([]Track, 0, len(ids))
	for _, id := range ids {
		track := m.tracks[id]
		if keep(track) {
			out = append(out, track.clone())
		}
	}
	return out
}

func (m *Manager) sortedIDs() []int {
	ids := make([]int, 0, len(m.tracks))
	for id := range m.tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// TrajectoryMatrix returns N x 4 matrix of (frame, x, y, z) rows.
// Nil matrix is returned for a track without samples.
func (m *Manager) TrajectoryMatrix(id int) (*mat.Dense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	track, ok := m.tracks[id]
	if !ok {
		return nil, errors.Wrapf(ErrTrackNotFound, "id %d", id)
	}
	if len(track.Trajectory) == 0 {
		return nil, nil
	}
	data := make([]float64, 0, 4*len(track.Trajectory))
	for _, p := range track.Trajectory {
		data = append(data, float64(p.FrameID), p.Position.X, p.Position.Y, p.Position.Z)
	}
	return mat.NewDense(len(track.Trajectory), 4, data), nil
}

// InterpolatePosition linearly interpolates position between the two samples around frame.
// Returns false for unknown track or frame outside the trajectory.
func (m *Manager) InterpolatePosition(id int, frameID int) (r3.Vec, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	track, ok := m.tracks[id]
	if !ok || !track.Spans(frameID) {
		return r3.Vec{}, false
	}
	traj := track.Trajectory
	next := sort.Search(len(traj), func(i int) bool { return traj[i].FrameID >= frameID })
	if traj[next].FrameID == frameID {
		return traj[next].Position, true
	}
	prev := traj[next-1]
	t := float64(frameID-prev.FrameID) / float64(traj[next].FrameID-prev.FrameID)
	return r3.Add(prev.Position, r3.Scale(t, r3.Sub(traj[next].Position, prev.Position))), true
}

// Velocity is finite difference over the last two samples. It is per second when
// timestamps of the samples differ and per frame otherwise.
func (m *Manager) Velocity(id int) (r3.Vec, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	track, ok := m.tracks[id]
	if !ok || len(track.Trajectory) < 2 {
		return r3.Vec{}, false
	}
	last := track.Trajectory[len(track.Trajectory)-1]
	prev := track.Trajectory[len(track.Trajectory)-2]
	dt := last.Timestamp - prev.Timestamp
	if dt <= 0 {
		dt = float64(last.FrameID - prev.FrameID)
	}
	if dt <= 0 {
		return r3.Vec{}, false
	}
	return r3.Scale(1/dt, r3.Sub(last.Position, prev.Position)), true
}

// Statistics summarizes stored trajectories
func (m *Manager) Statistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statistics()
}

func (m *Manager) statistics() Statistics {
	stats := Statistics{
		TotalTracks:  len(m.tracks),
		ActiveTracks: len(m.active),
		TotalFrames:  m.totalFrames,
		ClassCounts:  make(map[string]int),
	}
	if len(m.tracks) == 0 {
		return stats
	}
	stats.MinLength = math.MaxInt
	total := 0
	for _, track := range m.tracks {
		n := track.Len()
		total += n
		if n < stats.MinLength {
			stats.MinLength = n
		}
		if n > stats.MaxLength {
			stats.MaxLength = n
		}
		stats.ClassCounts[track.Class.Name]++
	}
	stats.AvgLength = float64(total) / float64(len(m.tracks))
	return stats
}

// PruneShort removes tracks with fewer than minLength samples and returns how many were removed
func (m *Manager) PruneShort(minLength int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, track := range m.tracks {
		if track.Len() < minLength {
			delete(m.tracks, id)
			delete(m.active, id)
			removed++
		}
	}
	// ids merged into a pruned track report under their own id again
	for from, to := range m.aliases {
		if _, ok := m.tracks[to]; !ok {
			delete(m.aliases, from)
		}
	}
	if removed > 0 {
		logging.Debug(logging.Fields{"component": "trackmgr", "removed": removed, "min_length": minLength}, "short tracks pruned")
	}
	return removed
}

// Merge moves trajectory of absorbed track into kept one, re-sorting samples by frame.
// The absorbed id disappears; later tracker output for it extends the kept track.
func (m *Manager) Merge(keepID, absorbID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if keepID == absorbID {
		return errors.Wrapf(ErrSelfMerge, "id %d", keepID)
	}
	keep, ok := m.tracks[keepID]
	if !ok {
		return errors.Wrapf(ErrTrackNotFound, "id %d", keepID)
	}
	absorbed, ok := m.tracks[absorbID]
	if !ok {
		return errors.Wrapf(ErrTrackNotFound, "id %d", absorbID)
	}
	for _, p := range absorbed.Trajectory {
		if p.Box != nil {
			p.Box.TrackID = keepID
		}
		keep.Trajectory = append(keep.Trajectory, p)
	}
	sort.SliceStable(keep.Trajectory, func(i, j int) bool {
		return keep.Trajectory[i].FrameID < keep.Trajectory[j].FrameID
	})
	if _, ok := m.active[absorbID]; ok {
		m.active[keepID] = struct{}{}
		if absorbed.State == mot.TrackConfirmed {
			keep.State = mot.TrackConfirmed
		}
	}
	delete(m.active, absorbID)
	delete(m.tracks, absorbID)
	m.aliases[absorbID] = keepID
	for from, to := range m.aliases {
		if to == absorbID {
			m.aliases[from] = keepID
		}
	}
	logging.Info(logging.Fields{"component": "trackmgr", "track_id": keepID, "absorbed_id": absorbID}, "tracks merged")
	return nil
}

// Reset drops every trajectory and tracker state. Track ids keep growing.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracker.Reset()
	m.clear()
}

// ExportKITTI returns KITTI label lines of tracks having a sample at the frame, ordered by track id
func (m *Manager) ExportKITTI(frameID int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lines := make([]string, 0)
	for _, id := range m.sortedIDs() {
		point, ok := m.tracks[id].PointAt(frameID)
		if !ok || point.Box == nil {
			continue
		}
		var bbox2D *[4]float64
		if point.ImageBox != nil {
			ltrb := point.ImageBox.LTRB()
			bbox2D = &ltrb
		}
		lines = append(lines, bbox3d.FormatKITTI(*point.Box, bbox2D))
	}
	return lines
}
