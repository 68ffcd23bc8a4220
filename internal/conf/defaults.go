package conf

import "github.com/spf13/viper"

// setDefaults registers the default configuration values with viper.
func setDefaults() {
	viper.SetDefault("debug", false)

	viper.SetDefault("audio.device", "")
	viper.SetDefault("audio.samplerate", 48000)
	viper.SetDefault("audio.buffersize", 2048)
	viper.SetDefault("audio.hopsize", 512)
	viper.SetDefault("audio.strategy", "auto")

	viper.SetDefault("detection.threshold", 0.15)
	viper.SetDefault("detection.minconfidence", 0.7)
	viper.SetDefault("detection.noteonthreshold", 2)
	viper.SetDefault("detection.noteoffthreshold", 3)
	viper.SetDefault("detection.minfrequency", 60.0)
	viper.SetDefault("detection.maxfrequency", 2000.0)

	viper.SetDefault("midi.enabled", false)
	viper.SetDefault("midi.port", "")
	viper.SetDefault("midi.channel", 0)

	viper.SetDefault("log.enabled", false)
	viper.SetDefault("log.path", "logs/pitchtrack.log")
}

// Default returns settings populated with the built-in defaults, without
// touching the config file or environment.
func Default() *Settings {
	return &Settings{
		Audio: AudioSettings{
			SampleRate: 48000,
			BufferSize: 2048,
			HopSize:    512,
			Strategy:   "auto",
		},
		Detection: DetectionSettings{
			Threshold:        0.15,
			MinConfidence:    0.7,
			NoteOnThreshold:  2,
			NoteOffThreshold: 3,
			MinFrequency:     60,
			MaxFrequency:     2000,
		},
		MIDI: MIDISettings{},
		Log:  LogSettings{Path: "logs/pitchtrack.log"},
	}
}
