// Package analysis wires the detection engine to its inputs and outputs
// for the command line frontends: live capture or file replay on the
// input side, console and optional MIDI on the output side.
package analysis

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tonelab/pitchtrack/internal/audio"
	"github.com/tonelab/pitchtrack/internal/conf"
	"github.com/tonelab/pitchtrack/internal/logging"
	"github.com/tonelab/pitchtrack/internal/midiout"
	"github.com/tonelab/pitchtrack/internal/pitch"
)

// Realtime runs detection on live microphone input until interrupted.
func Realtime(settings *conf.Settings) error {
	logger := logging.ForService("analysis")

	session, err := pitch.NewSession(detectionConfig(settings), logger)
	if err != nil {
		return err
	}
	defer session.Destroy()

	cleanup, err := attachOutputs(session, settings)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := session.Start(settings.Audio.Device); err != nil {
		return err
	}

	fmt.Println("Listening, press Ctrl+C to stop")
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return session.Stop()
}

// File runs detection over a WAV file and prints the detected notes.
func File(settings *conf.Settings, path string) error {
	logger := logging.ForService("analysis")

	source, err := audio.NewFileSource(path, settings.Audio.BufferSize, settings.Audio.HopSize)
	if err != nil {
		return err
	}

	// The engine analyzes at the file's own rate.
	cfg := detectionConfig(settings)
	cfg.SampleRate = source.SampleRate()

	session, err := pitch.NewSession(cfg, logger)
	if err != nil {
		return err
	}
	defer session.Destroy()
	session.UseSource(source)

	cleanup, err := attachOutputs(session, settings)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("Analyzing %s (%s at %d Hz)\n",
		path, source.Duration().Round(10*time.Millisecond), source.SampleRate())
	if err := session.Start(""); err != nil {
		return err
	}
	session.Wait()
	if err := session.Stop(); err != nil {
		return err
	}

	st := session.Status()
	fmt.Printf("Processed %d frames\n", st.FrameCount)
	return nil
}

// detectionConfig maps the application settings onto the engine
// configuration.
func detectionConfig(settings *conf.Settings) pitch.Config {
	cfg := pitch.Config{
		SampleRate:         settings.Audio.SampleRate,
		BufferSize:         settings.Audio.BufferSize,
		HopSize:            settings.Audio.HopSize,
		DetectionThreshold: settings.Detection.Threshold,
		MinConfidence:      settings.Detection.MinConfidence,
		NoteOnThreshold:    settings.Detection.NoteOnThreshold,
		NoteOffThreshold:   settings.Detection.NoteOffThreshold,
		MinFrequency:       settings.Detection.MinFrequency,
		MaxFrequency:       settings.Detection.MaxFrequency,
	}
	switch settings.Audio.Strategy {
	case "callback":
		cfg.ForceStrategy = audio.StrategyCallback
	case "polling":
		cfg.ForceStrategy = audio.StrategyPolling
	}
	return cfg
}

// attachOutputs subscribes the console printer and, when enabled, the
// MIDI sink and the file logger. The returned cleanup releases them.
func attachOutputs(session *pitch.Session, settings *conf.Settings) (func(), error) {
	session.AddCallbacks(consolePrinter(settings.Debug))

	var closers []func()

	if settings.MIDI.Enabled {
		sink, err := midiout.Open(settings.MIDI.Port, int(settings.MIDI.Channel), nil)
		if err != nil {
			return nil, err
		}
		session.AddCallbacks(pitch.Callbacks{
			OnNoteOn:  sink.Handle,
			OnNoteOff: sink.Handle,
		})
		closers = append(closers, sink.Close)
	}

	if settings.Log.Enabled {
		level := slog.LevelInfo
		if settings.Debug {
			level = slog.LevelDebug
		}
		fileLogger, closeLog, err := logging.NewFileLogger(settings.Log.Path, "analysis", level)
		if err != nil {
			return nil, err
		}
		session.AddCallbacks(pitch.Callbacks{
			OnNoteOn: func(ev pitch.NoteEvent) {
				fileLogger.Info("note on", "note", ev.Note, "name", pitch.NoteName(ev.Note), "velocity", ev.Velocity)
			},
			OnNoteOff: func(ev pitch.NoteEvent) {
				fileLogger.Info("note off", "note", ev.Note, "name", pitch.NoteName(ev.Note))
			},
		})
		closers = append(closers, func() { _ = closeLog() })
	}

	return func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

// consolePrinter renders note events, and in debug mode every pitch
// sample, to stdout.
func consolePrinter(debug bool) pitch.Callbacks {
	cb := pitch.Callbacks{
		OnNoteOn: func(ev pitch.NoteEvent) {
			fmt.Printf("NOTE ON  %-4s (%d) velocity %d\n", pitch.NoteName(ev.Note), ev.Note, ev.Velocity)
		},
		OnNoteOff: func(ev pitch.NoteEvent) {
			fmt.Printf("NOTE OFF %-4s (%d)\n", pitch.NoteName(ev.Note), ev.Note)
		},
	}
	if debug {
		cb.OnPitch = func(s pitch.PitchSample) {
			fmt.Printf("  %8.2f Hz  %-4s  confidence %.2f\n", s.Frequency, pitch.NoteName(s.MIDINote), s.Confidence)
		}
	}
	return cb
}
