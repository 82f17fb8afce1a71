package mot

// MatchingAlgorithm is for algorithm type for matching detections to tracks
type MatchingAlgorithm string

const (
	// MatchingAlgorithmLAPJV uses Jonker-Volgenant on cost matrix extended to handle rectangular input
	MatchingAlgorithmLAPJV = MatchingAlgorithm("lapjv")
	// MatchingAlgorithmHungarian uses the Hungarian algorithm (Kuhn-Munkres) on padded similarity matrix
	MatchingAlgorithmHungarian = MatchingAlgorithm("hungarian")
	// MatchingAlgorithmGreedy uses a greedy algorithm for faster but potentially suboptimal assignment
	MatchingAlgorithmGreedy = MatchingAlgorithm("greedy")
)

// MotionNoise holds standard deviations of the constant velocity model.
// Process terms are per unit of dt.
type MotionNoise struct {
	Position        float64 `yaml:"position" json:"position" validate:"gt=0"`
	Velocity        float64 `yaml:"velocity" json:"velocity" validate:"gt=0"`
	Extent          float64 `yaml:"extent" json:"extent" validate:"gt=0"`
	MeasurePosition float64 `yaml:"measure_position" json:"measure_position" validate:"gt=0"`
	MeasureExtent   float64 `yaml:"measure_extent" json:"measure_extent" validate:"gt=0"`
	// Initial velocity uncertainty of a new track
	InitialVelocity float64 `yaml:"initial_velocity" json:"initial_velocity" validate:"gt=0"`
}

// DefaultMotionNoise returns noise tuned for road users sampled at video rate
func DefaultMotionNoise() MotionNoise {
	return MotionNoise{
		Position:        0.1,
		Velocity:        0.5,
		Extent:          0.05,
		MeasurePosition: 0.2,
		MeasureExtent:   0.2,
		InitialVelocity: 2.0,
	}
}

// Config is tracker configuration
type Config struct {
	// Detections with confidence at or above TrackThresh are high-confidence
	TrackThresh float64 `yaml:"track_thresh" json:"track_thresh" validate:"gte=0,lte=1"`
	// Maximum association cost (1 - similarity) accepted in stages A and D
	MatchThresh float64 `yaml:"match_thresh" json:"match_thresh" validate:"gt=0,lte=1"`
	// Maximum cost for stage B (confirmed tracks vs low-confidence detections)
	LowMatchThresh float64 `yaml:"low_match_thresh" json:"low_match_thresh" validate:"gt=0,lte=1"`
	// Maximum cost for stage C (tentative tracks)
	TentativeMatchThresh float64 `yaml:"tentative_match_thresh" json:"tentative_match_thresh" validate:"gt=0,lte=1"`
	ConfirmHits          int     `yaml:"confirm_hits" json:"confirm_hits" validate:"gte=1"`
	// Frames a lost track is kept before deletion
	TrackBuffer int `yaml:"track_buffer" json:"track_buffer" validate:"gte=0"`

	// Similarity is 3D IoU when true, distance score otherwise
	UseIoU3D            bool    `yaml:"use_iou_3d" json:"use_iou_3d"`
	MaxRelevantDistance float64 `yaml:"max_relevant_distance" json:"max_relevant_distance" validate:"gt=0"`

	Algorithm MatchingAlgorithm `yaml:"algorithm" json:"algorithm" validate:"oneof=lapjv hungarian greedy"`
	// Seconds (or any unit velocities are expressed in) per frame
	DT    float64     `yaml:"dt" json:"dt" validate:"gt=0"`
	Noise MotionNoise `yaml:"noise" json:"noise"`
	// Samples kept in Track.History
	HistoryLen int `yaml:"history_len" json:"history_len" validate:"gte=1"`
}

// DefaultConfig returns ByteTrack-like defaults
func DefaultConfig() Config {
	return Config{
		TrackThresh:          0.5,
		MatchThresh:          0.8,
		LowMatchThresh:       0.5,
		TentativeMatchThresh: 0.7,
		ConfirmHits:          3,
		TrackBuffer:          30,
		UseIoU3D:             true,
		MaxRelevantDistance:  50.0,
		Algorithm:            MatchingAlgorithmLAPJV,
		DT:                   1.0,
		Noise:                DefaultMotionNoise(),
		HistoryLen:           150,
	}
}
