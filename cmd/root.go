package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/tonelab/pitchtrack/cmd/config"
	"github.com/tonelab/pitchtrack/cmd/devices"
	"github.com/tonelab/pitchtrack/cmd/file"
	"github.com/tonelab/pitchtrack/cmd/listen"
	"github.com/tonelab/pitchtrack/internal/conf"
	"github.com/tonelab/pitchtrack/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pitchtrack",
		Short: "Real-time pitch detection and MIDI note tracking",
	}

	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		listen.Command(settings),
		file.Command(settings),
		devices.Command(),
		configcmd.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := cmd.Flags().Parse(args); err != nil {
			return err
		}
		if settings.Debug {
			logging.Init(slog.LevelDebug)
		}
		return conf.Validate(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Audio.Device, "device", viper.GetString("audio.device"), "Capture device name or ID, empty for system default")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.SampleRate, "samplerate", viper.GetInt("audio.samplerate"), "Capture sample rate in Hz")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.BufferSize, "buffersize", viper.GetInt("audio.buffersize"), "Samples per analysis frame")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.HopSize, "hopsize", viper.GetInt("audio.hopsize"), "Samples between analyses")
	rootCmd.PersistentFlags().StringVar(&settings.Audio.Strategy, "strategy", viper.GetString("audio.strategy"), "Frame delivery strategy: auto, callback or polling")
	rootCmd.PersistentFlags().Float64VarP(&settings.Detection.Threshold, "threshold", "t", viper.GetFloat64("detection.threshold"), "Detection threshold between 0.0 and 1.0")
	rootCmd.PersistentFlags().Float64VarP(&settings.Detection.MinConfidence, "minconfidence", "c", viper.GetFloat64("detection.minconfidence"), "Confidence floor for note tracking, between 0.0 and 1.0")
	rootCmd.PersistentFlags().BoolVar(&settings.MIDI.Enabled, "midi", viper.GetBool("midi.enabled"), "Forward note events to a MIDI output port")
	rootCmd.PersistentFlags().StringVar(&settings.MIDI.Port, "midiport", viper.GetString("midi.port"), "MIDI output port name, empty for first available")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Printf("error binding flags: %v\n", err)
	}
}
