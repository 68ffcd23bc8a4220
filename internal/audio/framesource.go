// Package audio provides microphone capture and analysis-frame assembly
// for the pitch detection engine. Capture is backed by malgo (miniaudio);
// completed frames are delivered to the consumer over a channel so the
// audio callback thread never blocks on analysis.
package audio

import (
	"runtime"
	"time"

	"github.com/gen2brain/malgo"
)

// Strategy identifies how analysis frames are assembled and delivered.
type Strategy string

const (
	// StrategyCallback assembles frames inside the audio device callback
	// and delivers them asynchronously over a channel. Lowest latency.
	StrategyCallback Strategy = "callback"
	// StrategyPolling only buffers raw PCM in the device callback; a
	// ticker goroutine polls the ring buffer and assembles frames.
	// Functionally equivalent with higher and more variable latency.
	StrategyPolling Strategy = "polling"
	// StrategyFile replays frames from an audio file.
	StrategyFile Strategy = "file"
)

// Frame is a fixed-size block of mono samples ready for analysis.
type Frame struct {
	Samples   []float64 // normalized to [-1, 1]
	Timestamp time.Time // capture completion time
}

// FrameSource delivers analysis frames of exactly the configured buffer
// size, advancing by the configured hop size between frames.
type FrameSource interface {
	// Start begins frame delivery. Blocks only for device setup.
	Start() error

	// Stop halts delivery and closes the frame channel. Safe to call
	// while a frame is in flight, and when already stopped.
	Stop() error

	// Frames returns the channel frames are delivered on. The channel
	// is closed by Stop.
	Frames() <-chan Frame

	// SetHopSize changes the analysis hop without restarting capture.
	SetHopSize(hop int) error

	// Strategy reports which delivery strategy this source implements.
	Strategy() Strategy
}

// CaptureConfig describes a capture frame source.
type CaptureConfig struct {
	Device     string // device name or ID, empty for system default
	SampleRate int
	BufferSize int // samples per frame
	HopSize    int // samples between frames
}

// Capabilities reports what the platform audio stack supports.
type Capabilities struct {
	Backend          malgo.Backend
	CallbackDelivery bool
}

// DetectCapabilities probes the platform for the preferred capture
// backend and whether callback-thread frame delivery is available.
func DetectCapabilities() Capabilities {
	backend := platformBackend()
	return Capabilities{
		Backend:          backend,
		CallbackDelivery: backend != malgo.BackendNull,
	}
}

// platformBackend selects the audio backend for the current platform.
func platformBackend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	case "freebsd":
		return malgo.BackendOss
	default:
		return malgo.BackendNull
	}
}
