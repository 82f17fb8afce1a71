package mot

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/LdDl/mot3d-go/bbox3d"
	"github.com/LdDl/mot3d-go/validation"
)

func carDetection(x, y float64, confidence float64) Detection {
	return Detection{Box: bbox3d.Box{
		Center:     r3.Vec{X: x, Y: y, Z: 0.75},
		Length:     4,
		Width:      2,
		Height:     1.5,
		Confidence: confidence,
		Class:      bbox3d.Class{ID: 2, Name: "car"},
	}}
}

func cubeDetection(x, y float64) Detection {
	return Detection{Box: bbox3d.Box{
		Center:     r3.Vec{X: x, Y: y, Z: 1},
		Length:     2,
		Width:      2,
		Height:     2,
		Confidence: 0.9,
		Class:      bbox3d.Class{ID: 0, Name: "person"},
	}}
}

func newTestTracker(t *testing.T, mutate func(*Config)) *Tracker {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	tracker, err := NewTracker(cfg)
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	return tracker
}

func TestNewTrackerValidation(t *testing.T) {
	mutations := []func(*Config){
		func(c *Config) { c.TrackThresh = 1.5 },
		func(c *Config) { c.MatchThresh = 0 },
		func(c *Config) { c.ConfirmHits = 0 },
		func(c *Config) { c.TrackBuffer = -1 },
		func(c *Config) { c.Algorithm = "auction" },
		func(c *Config) { c.DT = 0 },
		func(c *Config) { c.Noise.MeasurePosition = 0 },
		func(c *Config) { c.MaxRelevantDistance = -5 },
	}
	for i, mutate := range mutations {
		cfg := DefaultConfig()
		mutate(&cfg)
		_, err := NewTracker(cfg)
		if !errors.Is(err, validation.ErrInvalidConfig) {
			t.Errorf("Mutation %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
	tracker := DefaultTracker()
	if tracker.NextID() != 1 {
		t.Errorf("Expected first id 1, got %d", tracker.NextID())
	}
}

func TestTrackerStaticObject(t *testing.T) {
	tracker := newTestTracker(t, nil)
	for frame := 0; frame < 50; frame++ {
		tracks, err := tracker.Update([]Detection{carDetection(10, 0, 0.9)}, frame)
		if err != nil {
			t.Fatalf("Frame %d failed: %v", frame, err)
		}
		expected := 1
		if frame < 2 {
			expected = 0
		}
		if len(tracks) != expected {
			t.Fatalf("Frame %d: expected %d confirmed tracks, got %d", frame, expected, len(tracks))
		}
	}
	tracks := tracker.ActiveTracks()
	if len(tracks) != 1 {
		t.Fatalf("Expected 1 track, got %d", len(tracks))
	}
	track := tracks[0]
	if track.ID != 1 || track.Hits != 50 || track.StartFrame != 0 || track.LastFrame != 49 {
		t.Errorf("Wrong track: id %d hits %d frames %d-%d", track.ID, track.Hits, track.StartFrame, track.LastFrame)
	}
	if len(track.History) != 50 || track.History[0].FrameID != 0 || track.History[49].FrameID != 49 {
		t.Errorf("Wrong history: len %d", len(track.History))
	}
	if track.Box.TrackID != 1 {
		t.Errorf("Box should carry track id, got %d", track.Box.TrackID)
	}
	pos := track.Position()
	if r3.Norm(r3.Sub(pos, r3.Vec{X: 10, Y: 0, Z: 0.75})) > 1e-3 {
		t.Errorf("Static object drifted: %v", pos)
	}
	if len(tracker.TentativeTracks()) != 0 || len(tracker.LostTracks()) != 0 {
		t.Errorf("No tentative or lost tracks expected")
	}
}

func TestTrackerLifecycle(t *testing.T) {
	tracker := newTestTracker(t, func(c *Config) { c.TrackBuffer = 5 })
	for frame := 0; frame < 5; frame++ {
		if _, err := tracker.Update([]Detection{carDetection(0, 0, 0.9)}, frame); err != nil {
			t.Fatalf("Frame %d failed: %v", frame, err)
		}
	}
	for frame := 5; frame < 10; frame++ {
		tracks, err := tracker.Update(nil, frame)
		if err != nil {
			t.Fatalf("Frame %d failed: %v", frame, err)
		}
		if len(tracks) != 0 {
			t.Errorf("Frame %d: lost track must not be returned", frame)
		}
		lost := tracker.LostTracks()
		if len(lost) != 1 || lost[0].State != TrackLost {
			t.Fatalf("Frame %d: expected 1 lost track, got %d", frame, len(lost))
		}
		if lost[0].TimeSinceUpdate != frame-4 {
			t.Errorf("Frame %d: expected %d frames since update, got %d", frame, frame-4, lost[0].TimeSinceUpdate)
		}
	}
	if _, err := tracker.Update(nil, 10); err != nil {
		t.Fatalf("Frame 10 failed: %v", err)
	}
	if len(tracker.LostTracks()) != 0 {
		t.Errorf("Track should be deleted after buffer")
	}
	removed := tracker.RemovedTracks()
	if len(removed) != 1 || removed[0].ID != 1 || removed[0].State != TrackDeleted {
		t.Errorf("Expected track 1 in removed set, got %v", removed)
	}
}

func TestTrackerTentativeDeletion(t *testing.T) {
	tracker := newTestTracker(t, nil)
	if _, err := tracker.Update([]Detection{carDetection(0, 0, 0.9)}, 0); err != nil {
		t.Fatal(err)
	}
	if len(tracker.TentativeTracks()) != 1 {
		t.Fatalf("Expected tentative track")
	}
	if _, err := tracker.Update(nil, 1); err != nil {
		t.Fatal(err)
	}
	if len(tracker.TentativeTracks()) != 0 || len(tracker.LostTracks()) != 0 {
		t.Errorf("Unmatched tentative track should be deleted directly")
	}
	if _, err := tracker.Update([]Detection{carDetection(0, 0, 0.9)}, 2); err != nil {
		t.Fatal(err)
	}
	tentative := tracker.TentativeTracks()
	if len(tentative) != 1 || tentative[0].ID != 2 {
		t.Errorf("Ids must not be reused, got %v", tentative)
	}
}

func TestTrackerLowConfidence(t *testing.T) {
	tracker := newTestTracker(t, nil)
	// low-confidence detections never spawn tracks
	if _, err := tracker.Update([]Detection{carDetection(0, 0, 0.3)}, 0); err != nil {
		t.Fatal(err)
	}
	if len(tracker.TentativeTracks()) != 0 {
		t.Fatalf("Low confidence detection spawned a track")
	}
	for frame := 1; frame < 4; frame++ {
		if _, err := tracker.Update([]Detection{carDetection(0, 0, 0.9)}, frame); err != nil {
			t.Fatal(err)
		}
	}
	// confirmed track survives a dip in confidence (stage B)
	for frame := 4; frame < 7; frame++ {
		tracks, err := tracker.Update([]Detection{carDetection(0.1, 0, 0.2)}, frame)
		if err != nil {
			t.Fatal(err)
		}
		if len(tracks) != 1 || tracks[0].ID != 1 {
			t.Fatalf("Frame %d: confirmed track should follow low confidence detection", frame)
		}
		if tracks[0].Confidence != 0.2 {
			t.Errorf("Expected latest confidence 0.2, got %v", tracks[0].Confidence)
		}
	}
	if tracker.NextID() != 2 {
		t.Errorf("Expected single track created, next id %d", tracker.NextID())
	}
}

func TestTrackerOcclusion(t *testing.T) {
	tracker := newTestTracker(t, nil)
	var lastTracks []Track
	for frame := 0; frame < 20; frame++ {
		var detections []Detection
		if frame < 10 || frame >= 15 {
			detections = append(detections, carDetection(0.2*float64(frame), 0, 0.9))
		}
		tracks, err := tracker.Update(detections, frame)
		if err != nil {
			t.Fatalf("Frame %d failed: %v", frame, err)
		}
		if frame >= 10 && frame < 15 && len(tracks) != 0 {
			t.Errorf("Frame %d: occluded track must not be returned", frame)
		}
		if frame >= 15 {
			if len(tracks) != 1 || tracks[0].ID != 1 {
				t.Fatalf("Frame %d: expected track 1 to be recovered, got %v", frame, tracks)
			}
		}
		lastTracks = tracks
	}
	if tracker.NextID() != 2 {
		t.Errorf("No new identities expected, next id %d", tracker.NextID())
	}
	if lastTracks[0].State != TrackConfirmed {
		t.Errorf("Recovered track should be confirmed")
	}
}

func runCrossing(t *testing.T, algorithm MatchingAlgorithm) [][]Track {
	tracker := newTestTracker(t, func(c *Config) { c.Algorithm = algorithm })
	history := make([][]Track, 0, 21)
	for frame := 0; frame <= 20; frame++ {
		step := 0.5 * float64(frame)
		detections := []Detection{
			cubeDetection(-5+step, 0),
			cubeDetection(5-step, 1.5),
		}
		tracks, err := tracker.Update(detections, frame)
		if err != nil {
			t.Fatalf("Frame %d failed: %v", frame, err)
		}
		history = append(history, tracks)
	}
	return history
}

func TestTrackerCrossingObjects(t *testing.T) {
	for _, algorithm := range allAlgorithms {
		t.Run(string(algorithm), func(t *testing.T) {
			history := runCrossing(t, algorithm)
			final := history[len(history)-1]
			if len(final) != 2 {
				t.Fatalf("Expected 2 tracks, got %d", len(final))
			}
			// track 1 started on the left and moves right
			if final[0].ID != 1 || final[0].Position().X < 4 || final[0].Position().Y > 0.75 {
				t.Errorf("Track 1 swapped identity: %v", final[0].Position())
			}
			if final[1].ID != 2 || final[1].Position().X > -4 || final[1].Position().Y < 0.75 {
				t.Errorf("Track 2 swapped identity: %v", final[1].Position())
			}
			if final[0].Velocity().X <= 0 || final[1].Velocity().X >= 0 {
				t.Errorf("Wrong velocity directions: %v %v", final[0].Velocity(), final[1].Velocity())
			}
		})
	}
}

func TestTrackerDeterminism(t *testing.T) {
	first := runCrossing(t, MatchingAlgorithmLAPJV)
	second := runCrossing(t, MatchingAlgorithmLAPJV)
	if diff := cmp.Diff(first, second, cmpopts.IgnoreUnexported(Track{})); diff != "" {
		t.Errorf("Runs differ (-first +second):\n%s", diff)
	}
}

func TestTrackerMonotoneIDs(t *testing.T) {
	tracker := newTestTracker(t, func(c *Config) { c.TrackBuffer = 2 })
	seen := make(map[int]struct{})
	maxID := 0
	for frame := 0; frame < 40; frame++ {
		var detections []Detection
		// objects blink in and out with different periods
		if frame%10 < 6 {
			detections = append(detections, carDetection(0, 0, 0.9))
		}
		if frame%7 < 4 {
			detections = append(detections, carDetection(20, 5, 0.8))
		}
		tracks, err := tracker.Update(detections, frame)
		if err != nil {
			t.Fatalf("Frame %d failed: %v", frame, err)
		}
		ids := make(map[int]struct{})
		for i, track := range tracks {
			if _, dup := ids[track.ID]; dup {
				t.Fatalf("Frame %d: duplicated id %d", frame, track.ID)
			}
			ids[track.ID] = struct{}{}
			if i > 0 && tracks[i-1].ID >= track.ID {
				t.Errorf("Frame %d: tracks must be ordered by id", frame)
			}
			if _, ok := seen[track.ID]; !ok && track.ID <= maxID {
				t.Errorf("Frame %d: id %d appeared after larger ids", frame, track.ID)
			}
			seen[track.ID] = struct{}{}
			maxID = maxInt(maxID, track.ID)
		}
		for _, removed := range tracker.RemovedTracks() {
			if _, alive := ids[removed.ID]; alive {
				t.Errorf("Frame %d: removed id %d returned again", frame, removed.ID)
			}
		}
	}
}

func TestTrackerFrameOrder(t *testing.T) {
	tracker := newTestTracker(t, nil)
	if _, err := tracker.Update(nil, 5); err != nil {
		t.Fatal(err)
	}
	for _, frame := range []int{5, 3} {
		if _, err := tracker.Update(nil, frame); !errors.Is(err, ErrFrameOrder) {
			t.Errorf("Frame %d: expected ErrFrameOrder, got %v", frame, err)
		}
	}
	if tracker.FrameID() != 5 {
		t.Errorf("Rejected frame must not change state")
	}
	tracker.Reset()
	if _, err := tracker.Update(nil, 0); err != nil {
		t.Errorf("Reset should allow sequence to start over: %v", err)
	}
}

func TestTrackerFrameGapPrediction(t *testing.T) {
	tracker := newTestTracker(t, func(c *Config) { c.ConfirmHits = 1 })
	for frame := 0; frame < 10; frame++ {
		if _, err := tracker.Update([]Detection{carDetection(float64(frame), 0, 0.9)}, frame); err != nil {
			t.Fatal(err)
		}
	}
	// skipped frames 10..11 are covered by single prediction over three steps
	tracks, err := tracker.Update([]Detection{carDetection(12, 0, 0.9)}, 12)
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 1 || tracks[0].ID != 1 {
		t.Fatalf("Expected track 1 to continue over frame gap, got %v", tracks)
	}
	if tracks[0].Position().X < 11.5 {
		t.Errorf("Track should follow the object, got %v", tracks[0].Position())
	}
}

func TestTrackerFrameGapExpiry(t *testing.T) {
	tracker := newTestTracker(t, func(c *Config) { c.TrackBuffer = 5 })
	for frame := 0; frame < 5; frame++ {
		if _, err := tracker.Update([]Detection{carDetection(10, 0, 0.9)}, frame); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := tracker.Update(nil, 5); err != nil {
		t.Fatal(err)
	}
	if tracker.StateOf(1) != TrackLost {
		t.Fatalf("Expected track 1 lost at frame 5, got %v", tracker.StateOf(1))
	}
	// last match at frame 4 is 16 frames old, beyond the buffer
	tracks, err := tracker.Update([]Detection{carDetection(10, 0, 0.9)}, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 0 {
		t.Errorf("Expired track must not be revived, got %v", tracks)
	}
	if tracker.StateOf(1) != TrackDeleted {
		t.Errorf("Expected track 1 deleted, got %v", tracker.StateOf(1))
	}
	removed := tracker.RemovedTracks()
	if len(removed) != 1 || removed[0].ID != 1 {
		t.Errorf("Expected track 1 in removed set, got %v", removed)
	}
	tentative := tracker.TentativeTracks()
	if len(tentative) != 1 || tentative[0].ID != 2 {
		t.Errorf("Expected new tentative track 2, got %v", tentative)
	}
}

func TestTrackerDistanceSimilarity(t *testing.T) {
	tracker := newTestTracker(t, func(c *Config) {
		c.UseIoU3D = false
		c.MaxRelevantDistance = 10
	})
	// jumps too large for IoU are still matched by distance
	for frame := 0; frame < 5; frame++ {
		if _, err := tracker.Update([]Detection{carDetection(1.5*float64(frame), 0, 0.9)}, frame); err != nil {
			t.Fatal(err)
		}
	}
	tracks := tracker.ActiveTracks()
	if len(tracks) != 1 || tracker.NextID() != 2 {
		t.Errorf("Expected one continuous track, got %d tracks and next id %d", len(tracks), tracker.NextID())
	}
}

func TestTrackerImageBox(t *testing.T) {
	tracker := newTestTracker(t, nil)
	for frame := 0; frame < 5; frame++ {
		det := carDetection(10, 0, 0.9)
		det.ImageBox = &Rectangle{X: 100, Y: 50, Width: 80, Height: 60}
		if _, err := tracker.Update([]Detection{det}, frame); err != nil {
			t.Fatal(err)
		}
	}
	tracks := tracker.ActiveTracks()
	if len(tracks) != 1 || tracks[0].ImageBox == nil {
		t.Fatalf("Expected confirmed track with image box")
	}
	if tracks[0].ImageBox.Width <= 0 || tracks[0].ImageBox.Height <= 0 {
		t.Errorf("Image box should have positive dimensions: %v", tracks[0].ImageBox)
	}
	// snapshot is detached from tracker state
	tracks[0].ImageBox.X = -1
	tracks[0].History[0].FrameID = 100
	again := tracker.ActiveTracks()
	if again[0].ImageBox.X == -1 || again[0].History[0].FrameID == 100 {
		t.Errorf("Snapshot must not alias tracker state")
	}
}
