package trackmgr

import (
	"io"
	"os"
	"sort"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/LdDl/mot3d-go/bbox3d"
	"github.com/LdDl/mot3d-go/logging"
	"github.com/LdDl/mot3d-go/mot"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrBadDocument is returned when loaded document is inconsistent
var ErrBadDocument = errors.New("bad track document")

// Document is serialized form of the whole trajectory set
type Document struct {
	SequenceID  string          `json:"sequence_id"`
	TotalTracks int             `json:"total_tracks"`
	TotalFrames int             `json:"total_frames"`
	Statistics  Statistics      `json:"statistics"`
	Tracks      []TrackDocument `json:"tracks"`
}

// TrackDocument is serialized track
type TrackDocument struct {
	TrackID       int             `json:"track_id"`
	ClassID       int             `json:"class_id"`
	ClassName     string          `json:"class_name"`
	StartFrame    int             `json:"start_frame"`
	EndFrame      int             `json:"end_frame"`
	TotalFrames   int             `json:"total_frames"`
	AvgConfidence float64         `json:"avg_confidence"`
	Trajectory    []PointDocument `json:"trajectory"`
}

// PointDocument is serialized trajectory sample
type PointDocument struct {
	FrameID    int          `json:"frame_id"`
	Timestamp  float64      `json:"timestamp"`
	Position   [3]float64   `json:"position"`
	BBox3D     *BoxDocument `json:"bbox_3d,omitempty"`
	BBox2D     *[4]float64  `json:"bbox_2d,omitempty"`
	Confidence float64      `json:"confidence"`
}

// BoxDocument is serialized 3D box. Dimensions are length, width, height.
type BoxDocument struct {
	Center     [3]float64 `json:"center"`
	Dimensions [3]float64 `json:"dimensions"`
	Yaw        float64    `json:"yaw"`
	PointCount int        `json:"point_count"`
	Confidence float64    `json:"confidence"`
	ClassID    int        `json:"class_id"`
	ClassName  string     `json:"class_name"`
	TrackID    int        `json:"track_id,omitempty"`
	Distance   *float64   `json:"distance,omitempty"`
}

func vecToArray(v r3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func arrayToVec(a [3]float64) r3.Vec {
	return r3.Vec{X: a[0], Y: a[1], Z: a[2]}
}

func boxDocument(b bbox3d.Box) *BoxDocument {
	doc := &BoxDocument{
		Center:     vecToArray(b.Center),
		Dimensions: [3]float64{b.Length, b.Width, b.Height},
		Yaw:        b.Yaw,
		PointCount: b.PointCount,
		Confidence: b.Confidence,
		ClassID:    b.Class.ID,
		ClassName:  b.Class.Name,
		TrackID:    b.TrackID,
	}
	if b.Distance != nil {
		d := *b.Distance
		doc.Distance = &d
	}
	return doc
}

func (d *BoxDocument) box() bbox3d.Box {
	b := bbox3d.Box{
		Center:     arrayToVec(d.Center),
		Length:     d.Dimensions[0],
		Width:      d.Dimensions[1],
		Height:     d.Dimensions[2],
		Yaw:        d.Yaw,
		PointCount: d.PointCount,
		Confidence: d.Confidence,
		Class:      bbox3d.Class{ID: d.ClassID, Name: d.ClassName},
		TrackID:    d.TrackID,
	}
	if d.Distance != nil {
		dist := *d.Distance
		b.Distance = &dist
	}
	return b
}

// Document builds serializable snapshot of the trajectory set, tracks ordered by id
func (m *Manager) Document() Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc := Document{
		SequenceID:  m.sequenceID.String(),
		TotalTracks: len(m.tracks),
		TotalFrames: m.totalFrames,
		Statistics:  m.statistics(),
		Tracks:      make([]TrackDocument, 0, len(m.tracks)),
	}
	for _, id := range m.sortedIDs() {
		track := m.tracks[id]
		trackDoc := TrackDocument{
			TrackID:       track.ID,
			ClassID:       track.Class.ID,
			ClassName:     track.Class.Name,
			StartFrame:    track.StartFrame(),
			EndFrame:      track.EndFrame(),
			TotalFrames:   track.Len(),
			AvgConfidence: track.AvgConfidence(),
			Trajectory:    make([]PointDocument, 0, track.Len()),
		}
		for _, p := range track.Trajectory {
			pointDoc := PointDocument{
				FrameID:    p.FrameID,
				Timestamp:  p.Timestamp,
				Position:   vecToArray(p.Position),
				Confidence: p.Confidence,
			}
			if p.Box != nil {
				pointDoc.BBox3D = boxDocument(*p.Box)
			}
			if p.ImageBox != nil {
				ltrb := p.ImageBox.LTRB()
				pointDoc.BBox2D = &ltrb
			}
			trackDoc.Trajectory = append(trackDoc.Trajectory, pointDoc)
		}
		doc.Tracks = append(doc.Tracks, trackDoc)
	}
	return doc
}

// Save writes the trajectory set as indented JSON document
func (m *Manager) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m.Document()); err != nil {
		return errors.Wrap(err, "Can't encode track document")
	}
	return nil
}

// SaveFile writes the trajectory set into file, replacing it
func (m *Manager) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "Can't create %s", path)
	}
	if err := m.Save(f); err != nil {
		f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "Can't close %s", path)
}

// Load replaces in-memory state with the document read from r.
// Tracker state is reset and its id counter moved past every loaded id.
func (m *Manager) Load(r io.Reader) error {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return errors.Wrap(err, "Can't decode track document")
	}
	return m.Restore(doc)
}

// LoadFile reads document written by SaveFile
func (m *Manager) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "Can't open %s", path)
	}
	defer f.Close()
	return m.Load(f)
}

// Restore replaces in-memory state with the document
func (m *Manager) Restore(doc Document) error {
	tracks := make(map[int]*Track, len(doc.Tracks))
	timestamps := make(map[int]float64)
	maxID := 0
	for _, trackDoc := range doc.Tracks {
		if trackDoc.TrackID < 1 {
			return errors.Wrapf(ErrBadDocument, "track id %d", trackDoc.TrackID)
		}
		if _, dup := tracks[trackDoc.TrackID]; dup {
			return errors.Wrapf(ErrBadDocument, "duplicated track id %d", trackDoc.TrackID)
		}
		track := &Track{
			ID:         trackDoc.TrackID,
			Class:      bbox3d.Class{ID: trackDoc.ClassID, Name: trackDoc.ClassName},
			State:      mot.TrackDeleted,
			Trajectory: make([]TrackPoint, 0, len(trackDoc.Trajectory)),
		}
		for _, pointDoc := range trackDoc.Trajectory {
			point := TrackPoint{
				FrameID:    pointDoc.FrameID,
				Timestamp:  pointDoc.Timestamp,
				Position:   arrayToVec(pointDoc.Position),
				Confidence: pointDoc.Confidence,
			}
			if pointDoc.BBox3D != nil {
				box := pointDoc.BBox3D.box()
				point.Box = &box
			}
			if pointDoc.BBox2D != nil {
				b := pointDoc.BBox2D
				rect := mot.NewRect(b[0], b[1], b[2]-b[0], b[3]-b[1])
				point.ImageBox = &rect
			}
			track.Trajectory = append(track.Trajectory, point)
			timestamps[point.FrameID] = point.Timestamp
		}
		sort.SliceStable(track.Trajectory, func(i, j int) bool {
			return track.Trajectory[i].FrameID < track.Trajectory[j].FrameID
		})
		tracks[track.ID] = track
		if track.ID > maxID {
			maxID = track.ID
		}
	}
	sequenceID, err := uuid.Parse(doc.SequenceID)
	if err != nil {
		sequenceID = uuid.New()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracker.Reset()
	m.clear()
	m.sequenceID = sequenceID
	m.tracks = tracks
	m.timestamps = timestamps
	m.totalFrames = doc.TotalFrames
	m.tracker.SetNextID(maxID + 1)
	logging.Info(logging.Fields{"component": "trackmgr", "sequence_id": m.sequenceID.String(), "tracks": len(tracks)}, "track document loaded")
	return nil
}
