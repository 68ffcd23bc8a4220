// Package pitch implements the real-time pitch detection engine: it
// drives a frequency estimator over captured audio frames, classifies
// estimates into MIDI notes with confidence scores, and debounces them
// into note-on/note-off events through a hysteresis state machine.
//
// A Session is caller-owned; construct one with NewSession and share it
// explicitly. There is no package-level singleton.
package pitch

import "time"

// Velocity range note-on velocities are mapped onto. Confidence 0 maps
// to the floor, confidence 1 to the ceiling.
const (
	velocityFloor = 32
	velocityCeil  = 127
)

// PitchSample is one in-range frequency estimate. Samples are a
// visualization and debugging feed; note tracking happens downstream.
type PitchSample struct {
	Frequency  float64
	MIDINote   int
	Confidence float64 // [0, 1], from cents deviation
	Timestamp  time.Time
}

// NoteEvent is a debounced note transition. On events carry a velocity
// derived from the confirming sample's confidence; off events carry
// velocity zero. Consumers may treat these exactly like MIDI note-on and
// note-off messages.
type NoteEvent struct {
	Note     int
	Velocity int
	On       bool
}

// Status is a read-only snapshot of the session state, recomputed on
// every state transition.
type Status struct {
	Initialized   bool
	Running       bool
	UsingFallback bool
	LastError     string
	FrameCount    uint64
	CurrentNote   *int
	LastSample    *PitchSample
	Level         float64 // RMS of the most recent frame, [0, 1]
}

// velocityFromConfidence maps confidence linearly onto the velocity range.
func velocityFromConfidence(confidence float64) int {
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	return velocityFloor + int(confidence*float64(velocityCeil-velocityFloor)+0.5)
}
