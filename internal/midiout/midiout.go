// Package midiout forwards note events to a hardware or virtual MIDI
// output port.
package midiout

import (
	"log/slog"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/tonelab/pitchtrack/internal/errors"
	"github.com/tonelab/pitchtrack/internal/logging"
	"github.com/tonelab/pitchtrack/internal/pitch"
)

// Sink sends detected note events out a MIDI port. Events arrive on the
// session's frame goroutine, so sends are kept synchronous and cheap.
type Sink struct {
	mu      sync.Mutex
	drv     *rtmididrv.Driver
	port    drivers.Out
	send    func(midi.Message) error
	channel uint8
	logger  *slog.Logger
}

// Open connects to the named output port, or the first available port
// when name is empty. Channel is the 0-based MIDI channel.
func Open(name string, channel int, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = logging.ForService("midiout")
	}
	if channel < 0 || channel > 15 {
		return nil, errors.Newf("invalid MIDI channel %d", channel).
			Component("midiout").
			Category(errors.CategoryValidation).
			Build()
	}

	drv, err := rtmididrv.New()
	if err != nil {
		return nil, errors.New(err).
			Component("midiout").
			Category(errors.CategoryMIDI).
			Context("operation", "init_driver").
			Build()
	}

	port, err := findOutPort(drv, name)
	if err != nil {
		drv.Close()
		return nil, err
	}
	if err := port.Open(); err != nil {
		drv.Close()
		return nil, errors.New(err).
			Component("midiout").
			Category(errors.CategoryMIDI).
			Context("operation", "open_port").
			Context("port", port.String()).
			Build()
	}

	send, err := midi.SendTo(port)
	if err != nil {
		_ = port.Close()
		drv.Close()
		return nil, errors.New(err).
			Component("midiout").
			Category(errors.CategoryMIDI).
			Context("port", port.String()).
			Build()
	}

	logger.Info("midi output connected", "port", port.String(), "channel", channel)
	return &Sink{
		drv:     drv,
		port:    port,
		send:    send,
		channel: uint8(channel),
		logger:  logger,
	}, nil
}

func findOutPort(drv *rtmididrv.Driver, name string) (drivers.Out, error) {
	outs, err := drv.Outs()
	if err != nil {
		return nil, errors.New(err).
			Component("midiout").
			Category(errors.CategoryMIDI).
			Context("operation", "list_ports").
			Build()
	}
	if len(outs) == 0 {
		return nil, errors.Newf("no MIDI output ports available").
			Component("midiout").
			Category(errors.CategoryMIDI).
			Build()
	}
	if name == "" {
		return outs[0], nil
	}
	for _, out := range outs {
		if strings.Contains(strings.ToLower(out.String()), strings.ToLower(name)) {
			return out, nil
		}
	}
	return nil, errors.Newf("no MIDI output port matches %q", name).
		Component("midiout").
		Category(errors.CategoryMIDI).
		Context("port", name).
		Build()
}

// Handle sends one note event. Send failures are logged and swallowed; a
// flaky synth must not stall detection.
func (s *Sink) Handle(ev pitch.NoteEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.send == nil {
		return
	}

	var msg midi.Message
	if ev.On {
		msg = midi.NoteOn(s.channel, uint8(ev.Note), uint8(ev.Velocity))
	} else {
		msg = midi.NoteOff(s.channel, uint8(ev.Note))
	}
	if err := s.send(msg); err != nil {
		s.logger.Warn("midi send failed", "note", ev.Note, "on", ev.On, "error", err)
	}
}

// Close releases the port and the driver. Safe to call more than once.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.send == nil {
		return
	}
	s.send = nil
	if err := s.port.Close(); err != nil {
		s.logger.Debug("midi port close failed", "error", err)
	}
	s.drv.Close()
}
