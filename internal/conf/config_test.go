package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultSettingsAreValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero sample rate", func(s *Settings) { s.Audio.SampleRate = 0 }},
		{"zero buffer size", func(s *Settings) { s.Audio.BufferSize = 0 }},
		{"hop exceeds buffer", func(s *Settings) { s.Audio.HopSize = s.Audio.BufferSize * 2 }},
		{"unknown strategy", func(s *Settings) { s.Audio.Strategy = "interrupt" }},
		{"threshold out of range", func(s *Settings) { s.Detection.Threshold = 1.5 }},
		{"negative confidence", func(s *Settings) { s.Detection.MinConfidence = -0.1 }},
		{"zero onset threshold", func(s *Settings) { s.Detection.NoteOnThreshold = 0 }},
		{"zero offset threshold", func(s *Settings) { s.Detection.NoteOffThreshold = 0 }},
		{"inverted frequency range", func(s *Settings) { s.Detection.MinFrequency = 5000 }},
		{"midi channel too high", func(s *Settings) { s.MIDI.Channel = 16 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := Default()
			tt.mutate(settings)
			assert.Error(t, Validate(settings))
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	settings := Default()
	settings.Audio.Device = "USB Audio"
	settings.Detection.Threshold = 0.2
	settings.MIDI.Enabled = true
	settings.MIDI.Channel = 3

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, Save(settings, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded Settings
	require.NoError(t, yaml.Unmarshal(data, &loaded))
	assert.Equal(t, *settings, loaded)
}

func TestDefaultConfigPath(t *testing.T) {
	path, err := DefaultConfigPath()
	require.NoError(t, err)
	assert.Contains(t, path, "pitchtrack")
	assert.Equal(t, "config.yaml", filepath.Base(path))
}
