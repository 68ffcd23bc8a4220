// Package conf handles loading, saving and validation of the pitchtrack
// application settings.
package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tonelab/pitchtrack/internal/errors"
)

// AudioSettings contains settings for audio capture.
type AudioSettings struct {
	Device     string `yaml:"device"`     // capture device name or ID, empty for system default
	SampleRate int    `yaml:"samplerate"` // capture sample rate in Hz
	BufferSize int    `yaml:"buffersize"` // samples per analysis frame
	HopSize    int    `yaml:"hopsize"`    // samples between analyses
	Strategy   string `yaml:"strategy"`   // "auto", "callback" or "polling"
}

// DetectionSettings contains settings for the pitch detection engine.
type DetectionSettings struct {
	Threshold        float64 `yaml:"threshold"`        // YIN detection threshold
	MinConfidence    float64 `yaml:"minconfidence"`    // confidence floor for note tracking
	NoteOnThreshold  int     `yaml:"noteonthreshold"`  // consecutive frames to confirm a note onset
	NoteOffThreshold int     `yaml:"noteoffthreshold"` // consecutive silent frames to confirm a note offset
	MinFrequency     float64 `yaml:"minfrequency"`     // lowest valid frequency in Hz
	MaxFrequency     float64 `yaml:"maxfrequency"`     // highest valid frequency in Hz
}

// MIDISettings contains settings for the optional MIDI output sink.
type MIDISettings struct {
	Enabled bool   `yaml:"enabled"` // forward note events to a MIDI output port
	Port    string `yaml:"port"`    // MIDI output port name, empty for first available
	Channel uint8  `yaml:"channel"` // MIDI channel 0-15
}

// LogSettings contains settings for the optional file log.
type LogSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Settings is the root configuration for pitchtrack.
type Settings struct {
	Debug     bool              `yaml:"debug"` // enable debug logging
	Audio     AudioSettings     `yaml:"audio"`
	Detection DetectionSettings `yaml:"detection"`
	MIDI      MIDISettings      `yaml:"midi"`
	Log       LogSettings       `yaml:"log"`
}

// Load reads settings from the config file, environment and defaults.
// Missing config files are not an error; defaults apply.
func Load() (*Settings, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	for _, dir := range configDirs() {
		viper.AddConfigPath(dir)
	}
	viper.SetEnvPrefix("pitchtrack")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("operation", "read_config").
				Build()
		}
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if err := Validate(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// Save writes the settings as YAML to the given path, creating parent
// directories as needed.
func Save(settings *Settings, path string) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "marshal_config").
			Build()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).
				Component("conf").
				Category(errors.CategoryFileIO).
				Context("path", dir).
				Build()
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return nil
}

// Validate checks settings for values the engine cannot operate with.
func Validate(s *Settings) error {
	check := func(ok bool, field string, value any) error {
		if ok {
			return nil
		}
		return errors.Newf("invalid setting %s: %v", field, value).
			Component("conf").
			Category(errors.CategoryValidation).
			Context("field", field).
			Build()
	}

	if err := check(s.Audio.SampleRate > 0, "audio.samplerate", s.Audio.SampleRate); err != nil {
		return err
	}
	if err := check(s.Audio.BufferSize > 0, "audio.buffersize", s.Audio.BufferSize); err != nil {
		return err
	}
	if err := check(s.Audio.HopSize > 0 && s.Audio.HopSize <= s.Audio.BufferSize, "audio.hopsize", s.Audio.HopSize); err != nil {
		return err
	}
	switch s.Audio.Strategy {
	case "auto", "callback", "polling":
	default:
		return check(false, "audio.strategy", s.Audio.Strategy)
	}
	if err := check(s.Detection.Threshold > 0 && s.Detection.Threshold < 1, "detection.threshold", s.Detection.Threshold); err != nil {
		return err
	}
	if err := check(s.Detection.MinConfidence >= 0 && s.Detection.MinConfidence <= 1, "detection.minconfidence", s.Detection.MinConfidence); err != nil {
		return err
	}
	if err := check(s.Detection.NoteOnThreshold >= 1, "detection.noteonthreshold", s.Detection.NoteOnThreshold); err != nil {
		return err
	}
	if err := check(s.Detection.NoteOffThreshold >= 1, "detection.noteoffthreshold", s.Detection.NoteOffThreshold); err != nil {
		return err
	}
	if err := check(s.Detection.MinFrequency > 0 && s.Detection.MinFrequency < s.Detection.MaxFrequency, "detection.minfrequency", s.Detection.MinFrequency); err != nil {
		return err
	}
	if err := check(s.MIDI.Channel <= 15, "midi.channel", s.MIDI.Channel); err != nil {
		return err
	}
	return nil
}

// configDirs returns the directories searched for a config file, in
// priority order.
func configDirs() []string {
	dirs := []string{"."}
	if home, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "pitchtrack"))
	}
	dirs = append(dirs, "/etc/pitchtrack")
	return dirs
}

// DefaultConfigPath returns the preferred location for a saved config file.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve user config directory: %w", err)
	}
	return filepath.Join(dir, "pitchtrack", "config.yaml"), nil
}
