package pitch

import (
	"github.com/tonelab/pitchtrack/internal/audio"
	"github.com/tonelab/pitchtrack/internal/errors"
)

// Config holds the per-session detection parameters. Values are fixed at
// construction and may be partially updated through UpdateConfig.
type Config struct {
	SampleRate         int     // capture sample rate in Hz
	BufferSize         int     // samples per analysis frame
	HopSize            int     // samples between analyses
	DetectionThreshold float64 // YIN absolute threshold
	MinConfidence      float64 // confidence floor for note tracking
	NoteOnThreshold    int     // consecutive qualifying frames to confirm an onset
	NoteOffThreshold   int     // consecutive invalid frames to confirm an offset
	MinFrequency       float64 // Hz, estimates below are discarded
	MaxFrequency       float64 // Hz, estimates above are discarded

	// ForceStrategy overrides the capability probe, for testing and
	// for platforms where the probe misjudges. Empty selects
	// automatically.
	ForceStrategy audio.Strategy
}

// DefaultConfig returns the standard engine parameters.
func DefaultConfig() Config {
	return Config{
		SampleRate:         48000,
		BufferSize:         2048,
		HopSize:            512,
		DetectionThreshold: 0.15,
		MinConfidence:      0.7,
		NoteOnThreshold:    2,
		NoteOffThreshold:   3,
		MinFrequency:       60,
		MaxFrequency:       2000,
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	fail := func(field string, value any) error {
		return errors.Newf("invalid config %s: %v", field, value).
			Component("pitch").
			Category(errors.CategoryValidation).
			Context("field", field).
			Build()
	}
	switch {
	case c.SampleRate <= 0:
		return fail("SampleRate", c.SampleRate)
	case c.BufferSize <= 0 || c.BufferSize%2 != 0:
		return fail("BufferSize", c.BufferSize)
	case c.HopSize <= 0 || c.HopSize > c.BufferSize:
		return fail("HopSize", c.HopSize)
	case c.DetectionThreshold <= 0 || c.DetectionThreshold >= 1:
		return fail("DetectionThreshold", c.DetectionThreshold)
	case c.MinConfidence < 0 || c.MinConfidence > 1:
		return fail("MinConfidence", c.MinConfidence)
	case c.NoteOnThreshold < 1:
		return fail("NoteOnThreshold", c.NoteOnThreshold)
	case c.NoteOffThreshold < 1:
		return fail("NoteOffThreshold", c.NoteOffThreshold)
	case c.MinFrequency <= 0 || c.MinFrequency >= c.MaxFrequency:
		return fail("MinFrequency", c.MinFrequency)
	}
	switch c.ForceStrategy {
	case "", audio.StrategyCallback, audio.StrategyPolling:
	default:
		return fail("ForceStrategy", c.ForceStrategy)
	}
	return nil
}

// PartialConfig carries optional overrides for UpdateConfig. Nil fields
// keep their current values.
type PartialConfig struct {
	SampleRate         *int
	BufferSize         *int
	HopSize            *int
	DetectionThreshold *float64
	MinConfidence      *float64
	NoteOnThreshold    *int
	NoteOffThreshold   *int
	MinFrequency       *float64
	MaxFrequency       *float64
	ForceStrategy      *audio.Strategy
}

// merged returns a copy of c with the partial overrides applied.
func (c Config) merged(p PartialConfig) Config {
	if p.SampleRate != nil {
		c.SampleRate = *p.SampleRate
	}
	if p.BufferSize != nil {
		c.BufferSize = *p.BufferSize
	}
	if p.HopSize != nil {
		c.HopSize = *p.HopSize
	}
	if p.DetectionThreshold != nil {
		c.DetectionThreshold = *p.DetectionThreshold
	}
	if p.MinConfidence != nil {
		c.MinConfidence = *p.MinConfidence
	}
	if p.NoteOnThreshold != nil {
		c.NoteOnThreshold = *p.NoteOnThreshold
	}
	if p.NoteOffThreshold != nil {
		c.NoteOffThreshold = *p.NoteOffThreshold
	}
	if p.MinFrequency != nil {
		c.MinFrequency = *p.MinFrequency
	}
	if p.MaxFrequency != nil {
		c.MaxFrequency = *p.MaxFrequency
	}
	if p.ForceStrategy != nil {
		c.ForceStrategy = *p.ForceStrategy
	}
	return c
}
