package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LdDl/mot3d-go/bbox3d"
	"github.com/LdDl/mot3d-go/logging"
	"github.com/LdDl/mot3d-go/mot"
	"github.com/LdDl/mot3d-go/validation"
)

const sample = `
projection:
  intrinsics:
    fx: 721.5
    fy: 721.5
    cx: 609.5
    cy: 172.8
    width: 1242
    height: 375
  patch_fraction: 0.2
estimator:
  method: oriented
  size_priors:
    car:
      length: {min: 3.0, max: 6.0}
      width: {min: 1.4, max: 2.1}
      height: {min: 1.2, max: 2.0}
    tram:
      length: {min: 15, max: 40}
      width: {min: 2.2, max: 2.7}
      height: {min: 3.0, max: 3.8}
tracker:
  track_buffer: 60
  algorithm: hungarian
  noise:
    measure_position: 0.5
workers: 2
preprocess:
  max_distance: 80
  remove_ground: true
logging:
  level: debug
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	t.Run("overrides", func(t *testing.T) {
		assert.Equal(t, 721.5, cfg.Projection.Intrinsics.Fx)
		assert.Equal(t, 1242, cfg.Projection.Intrinsics.Width)
		assert.Equal(t, 0.2, cfg.Projection.PatchFraction)
		assert.Equal(t, bbox3d.MethodOriented, cfg.Estimator.Method)
		assert.Equal(t, 60, cfg.Tracker.TrackBuffer)
		assert.Equal(t, mot.MatchingAlgorithmHungarian, cfg.Tracker.Algorithm)
		assert.Equal(t, 0.5, cfg.Tracker.Noise.MeasurePosition)
		assert.Equal(t, 2, cfg.Workers)
		assert.Equal(t, 80.0, cfg.Preprocess.MaxDistance)
		assert.True(t, cfg.Preprocess.RemoveGround)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("defaults are kept", func(t *testing.T) {
		defaults := mot.DefaultConfig()
		assert.Equal(t, defaults.MatchThresh, cfg.Tracker.MatchThresh)
		assert.Equal(t, defaults.ConfirmHits, cfg.Tracker.ConfirmHits)
		assert.Equal(t, defaults.Noise.Velocity, cfg.Tracker.Noise.Velocity)
		assert.Equal(t, bbox3d.DefaultMinPoints, cfg.Estimator.MinPoints)
		assert.Equal(t, 0.8, cfg.Preprocess.GroundMinVerticality)
		assert.Equal(t, 3, cfg.Preprocess.Ground.RansacN)
		assert.Equal(t, 100, cfg.Logging.MaxSizeMB)
	})

	t.Run("size priors are merged", func(t *testing.T) {
		assert.Equal(t, 3.0, cfg.Estimator.SizePriors["car"].Length.Min)
		assert.Equal(t, 40.0, cfg.Estimator.SizePriors["tram"].Length.Max)
		_, ok := cfg.Estimator.SizePriors["person"]
		assert.True(t, ok, "default priors must stay")
	})
}

func TestParseInvalid(t *testing.T) {
	cases := map[string]string{
		"missing intrinsics": `tracker: {track_buffer: 10}`,
		"bad algorithm":      strings.Replace(sample, "algorithm: hungarian", "algorithm: auction", 1),
		"bad workers":        strings.Replace(sample, "workers: 2", "workers: 0", 1),
		"bad prior":          strings.Replace(sample, "length: {min: 3.0, max: 6.0}", "length: {min: 6.0, max: 3.0}", 1),
		"bad level":          strings.Replace(sample, "level: debug", "level: loud", 1),
		"bad threshold":      strings.Replace(sample, "track_buffer: 60", "track_buffer: 60\n  match_thresh: 1.5", 1),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.True(t, errors.Is(err, validation.ErrInvalidConfig), "got %v", err)
		})
	}

	_, err := Parse([]byte("tracker: [1, 2"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, validation.ErrInvalidConfig))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Tracker.TrackBuffer)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyLogging(t *testing.T) {
	defer logging.SetOutput(os.Stderr)
	defer logging.SetLevel(logrus.InfoLevel)

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	closer, err := cfg.ApplyLogging()
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.Equal(t, logrus.DebugLevel, logging.Logger().GetLevel())

	cfg.Logging.File = filepath.Join(t.TempDir(), "engine.log")
	closer, err = cfg.ApplyLogging()
	require.NoError(t, err)
	require.NotNil(t, closer)
	logging.Info(logging.Fields{"component": "config"}, "file sink attached")
	require.NoError(t, closer.Close())
	data, err := os.ReadFile(cfg.Logging.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file sink attached")
}

func TestNewSequence(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	seq, err := cfg.NewSequence()
	require.NoError(t, err)
	assert.NotNil(t, seq.Manager())

	_, err = Default().NewSequence()
	assert.True(t, errors.Is(err, validation.ErrInvalidConfig))
}
