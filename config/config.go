// Package config loads engine configuration from YAML files.
//
// A file only needs the values it changes; everything else keeps defaults:
//
//	projection:
//	  intrinsics: {fx: 721.5, fy: 721.5, cx: 609.5, cy: 172.8, width: 1242, height: 375}
//	tracker:
//	  track_buffer: 60
//	  algorithm: hungarian
//	logging:
//	  level: debug
package config

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/LdDl/mot3d-go/logging"
	"github.com/LdDl/mot3d-go/pipeline"
	"github.com/LdDl/mot3d-go/projection"
	"github.com/LdDl/mot3d-go/validation"
)

// Logging configures the shared logger
type Logging struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn warning error"`
	// Optional file duplicating log output, rotated by size
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
}

// Engine is the whole engine configuration
type Engine struct {
	pipeline.Config `yaml:",inline"`
	Logging         Logging `yaml:"logging"`
}

// Default returns defaults for every section. Camera intrinsics are left empty
// and must come from the file.
func Default() Engine {
	return Engine{
		Config: pipeline.DefaultConfig(projection.Intrinsics{}),
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxAgeDays: 7,
			MaxBackups: 3,
		},
	}
}

// Load reads YAML file over defaults and validates the result
func Load(path string) (Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Engine{}, errors.Wrapf(err, "Can't read config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Engine{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML over defaults and validates the result
func Parse(data []byte) (Engine, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Engine{}, errors.Wrap(err, "Can't parse YAML")
	}
	if err := cfg.Validate(); err != nil {
		return Engine{}, err
	}
	return cfg, nil
}

// Validate checks every section
func (e Engine) Validate() error {
	sections := []struct {
		name string
		cfg  interface{}
	}{
		{"projection", e.Projection},
		{"bbox3d", e.Estimator},
		{"mot", e.Tracker},
		{"pipeline", e.Config},
		{"logging", e.Logging},
	}
	for _, section := range sections {
		if err := validation.Struct(section.name, section.cfg); err != nil {
			return err
		}
	}
	return nil
}

// ApplyLogging sets level of the shared logger and attaches log file when configured.
// Returned closer is nil without file.
func (e Engine) ApplyLogging() (io.Closer, error) {
	level, err := logrus.ParseLevel(e.Logging.Level)
	if err != nil {
		return nil, errors.Wrap(validation.ErrInvalidConfig, err.Error())
	}
	logging.SetLevel(level)
	if e.Logging.File == "" {
		return nil, nil
	}
	return logging.SetFile(e.Logging.File, e.Logging.MaxSizeMB, e.Logging.MaxAgeDays, e.Logging.MaxBackups), nil
}

// NewSequence creates pipeline for one sequence
func (e Engine) NewSequence() (*pipeline.Sequence, error) {
	return pipeline.NewSequence(e.Config)
}
