package bbox3d

import "math"

// Range is a closed interval of plausible sizes in meters
type Range struct {
	Min float64 `yaml:"min" json:"min" validate:"gte=0"`
	Max float64 `yaml:"max" json:"max" validate:"gtefield=Min"`
}

// Clamp limits v into the range
func (r Range) Clamp(v float64) float64 {
	return math.Min(math.Max(v, r.Min), r.Max)
}

// SizePrior is a per-class dimension envelope
type SizePrior struct {
	Length Range `yaml:"length" json:"length"`
	Width  Range `yaml:"width" json:"width"`
	Height Range `yaml:"height" json:"height"`
}

// DefaultSizePriors returns envelopes for common road users keyed by class name
func DefaultSizePriors() map[string]SizePrior {
	return map[string]SizePrior{
		"car": {
			Length: Range{3.2, 5.5},
			Width:  Range{1.4, 2.1},
			Height: Range{1.2, 2.0},
		},
		"truck": {
			Length: Range{5.0, 12.0},
			Width:  Range{2.0, 2.6},
			Height: Range{2.4, 4.2},
		},
		"bus": {
			Length: Range{8.0, 14.0},
			Width:  Range{2.3, 2.6},
			Height: Range{2.8, 3.9},
		},
		"person": {
			Length: Range{0.3, 1.0},
			Width:  Range{0.3, 1.0},
			Height: Range{1.0, 2.1},
		},
		"bicycle": {
			Length: Range{1.4, 2.0},
			Width:  Range{0.4, 0.9},
			Height: Range{0.9, 2.0},
		},
		"motorcycle": {
			Length: Range{1.6, 2.5},
			Width:  Range{0.6, 1.0},
			Height: Range{1.0, 1.7},
		},
	}
}
