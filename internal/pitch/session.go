package pitch

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/tonelab/pitchtrack/internal/audio"
	"github.com/tonelab/pitchtrack/internal/errors"
	"github.com/tonelab/pitchtrack/internal/logging"
	"github.com/tonelab/pitchtrack/internal/pitch/yin"
)

// Session is one complete detection pipeline: a frame source feeding the
// estimator, whose estimates run through classification and note
// tracking before fanning out to subscribers.
//
// All methods are safe for concurrent use. Frame processing happens on a
// single internal goroutine; callbacks run on that goroutine.
type Session struct {
	mu          sync.Mutex // lifecycle: Initialize, Start, Stop, Destroy, UpdateConfig
	initialized atomic.Bool
	running     atomic.Bool

	estimator    *yin.Estimator
	input        *inputHandle
	audioCtx     *audio.Context
	source       audio.FrameSource
	customSource audio.FrameSource
	consumeWG    sync.WaitGroup

	bus    *callbackBus
	logger *slog.Logger

	frameCount atomic.Uint64

	stateMu       sync.Mutex // per-frame state, touched by the consume goroutine
	cfg           Config
	tracker       *noteTracker
	usingFallback bool
	lastErr       string
	lastSample    *PitchSample
	level         float64

	// Construction hooks, replaced in tests.
	newContext func(*slog.Logger) (*audio.Context, error)
	newSource  func(*audio.Context, audio.CaptureConfig, audio.Strategy) (audio.FrameSource, error)
	caps       func() audio.Capabilities
}

// NewSession creates a session with the given configuration. The session
// owns no resources until Initialize.
func NewSession(cfg Config, logger *slog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.ForService("pitch")
	}
	s := &Session{
		cfg:     cfg,
		tracker: newNoteTracker(cfg),
		bus:     newCallbackBus(logger),
		logger:  logger,
	}
	s.newContext = audio.NewContext
	s.newSource = defaultNewSource
	s.caps = audio.DetectCapabilities
	return s, nil
}

func defaultNewSource(ctx *audio.Context, cfg audio.CaptureConfig, strategy audio.Strategy) (audio.FrameSource, error) {
	if strategy == audio.StrategyPolling {
		return audio.NewPollingSource(ctx, cfg, nil), nil
	}
	return audio.NewCallbackSource(ctx, cfg, nil), nil
}

// Initialize constructs the estimator and the platform audio context.
// Idempotent; a second call on an initialized session is a no-op.
func (s *Session) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeLocked()
}

func (s *Session) initializeLocked() error {
	if s.initialized.Load() {
		return nil
	}

	cfg := s.config()

	est, err := yin.New(cfg.BufferSize)
	if err != nil {
		return s.fatal(err, ErrEstimatorUnavailable, "init_estimator")
	}

	// A custom source needs no platform audio context.
	if s.customSource == nil {
		ctx, err := s.newContext(s.logger)
		if err != nil {
			est.Free()
			return s.fatal(err, ErrAudioUnsupported, "init_audio_context")
		}
		s.audioCtx = ctx
	}

	s.estimator = est
	s.input = newInputHandle(est)
	s.initialized.Store(true)
	s.setLastError("")
	s.logger.Info("session initialized",
		"sample_rate", cfg.SampleRate, "buffer_size", cfg.BufferSize, "hop_size", cfg.HopSize)
	s.publishStatus()
	return nil
}

// fatal wraps a failure with its taxonomy sentinel and records it in the
// status snapshot.
func (s *Session) fatal(err error, sentinel error, operation string) error {
	wrapped := errors.New(err).
		Component("pitch").
		Category(errors.CategoryState).
		Context("operation", operation).
		Sentinel(sentinel).
		Build()
	s.setLastError(wrapped.Error())
	return wrapped
}

// Start begins capture and detection on the named device; empty selects
// the system default. The session initializes itself if needed. Starting
// a running session returns ErrAlreadyRunning and changes nothing.
func (s *Session) Start(device string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		s.logger.Warn("start requested on running session")
		return ErrAlreadyRunning
	}
	if err := s.initializeLocked(); err != nil {
		return err
	}

	cfg := s.config()
	var source audio.FrameSource
	var strategy audio.Strategy
	if s.customSource != nil {
		source = s.customSource
		strategy = source.Strategy()
	} else {
		strategy = cfg.ForceStrategy
		if strategy == "" {
			strategy = audio.StrategyCallback
			if !s.caps().CallbackDelivery {
				strategy = audio.StrategyPolling
				s.logger.Warn("callback delivery unavailable, using polling fallback")
			}
		}
		var err error
		source, err = s.newSource(s.audioCtx, audio.CaptureConfig{
			Device:     device,
			SampleRate: cfg.SampleRate,
			BufferSize: cfg.BufferSize,
			HopSize:    cfg.HopSize,
		}, strategy)
		if err != nil {
			return s.fatal(err, ErrMicrophoneDenied, "create_source")
		}
	}

	if err := source.Start(); err != nil {
		return s.fatal(err, ErrMicrophoneDenied, "start_capture")
	}

	s.stateMu.Lock()
	s.tracker.Reset()
	s.usingFallback = strategy == audio.StrategyPolling
	s.lastErr = ""
	s.stateMu.Unlock()

	s.source = source
	s.running.Store(true)

	s.consumeWG.Add(1)
	go s.consume(source.Frames())

	s.logger.Info("session started", "device", device, "strategy", string(strategy))
	s.publishStatus()
	return nil
}

// consume drains the frame channel until the source closes it. Frames
// arriving after Stop flips the running flag are discarded so no event
// is published past teardown.
func (s *Session) consume(frames <-chan audio.Frame) {
	defer s.consumeWG.Done()
	for frame := range frames {
		if !s.running.Load() {
			continue
		}
		s.processFrame(frame)
	}
}

// processFrame advances the pipeline one frame. All state mutation
// happens under stateMu; publishing happens after it is released so a
// subscriber may call back into the session (Status, UpdateConfig)
// without deadlocking the frame goroutine.
func (s *Session) processFrame(frame audio.Frame) {
	s.frameCount.Add(1)

	s.stateMu.Lock()

	s.level = rmsLevel(frame.Samples)

	if !s.input.write(frame.Samples) {
		s.stateMu.Unlock()
		return
	}

	var sample *PitchSample
	freq, ok := s.estimator.Estimate(s.cfg.SampleRate, s.cfg.DetectionThreshold)
	if ok && freq >= s.cfg.MinFrequency && freq <= s.cfg.MaxFrequency {
		note, confidence := Classify(freq)
		sample = &PitchSample{
			Frequency:  freq,
			MIDINote:   note,
			Confidence: confidence,
			Timestamp:  frame.Timestamp,
		}
		s.lastSample = sample
	}

	events := s.tracker.Advance(sample)
	var st Status
	if len(events) > 0 {
		st = s.statusLocked()
	}
	s.stateMu.Unlock()

	if sample != nil {
		s.bus.publishPitch(*sample)
	}
	for _, ev := range events {
		s.bus.publishNote(ev)
	}
	if len(events) > 0 {
		s.bus.publishStatus(st)
	}
}

// Wait blocks until frame delivery ends, either because Stop was called
// or because a finite source ran out of frames.
func (s *Session) Wait() {
	s.consumeWG.Wait()
}

// Stop halts capture, drains in-flight frames and releases any sounding
// note. A stopped session may be started again. No-op when not running.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Session) stopLocked() error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)

	if err := s.source.Stop(); err != nil {
		s.logger.Debug("source stop failed", "error", err)
	}
	s.consumeWG.Wait()
	s.source = nil

	s.stateMu.Lock()
	events := s.tracker.Flush()
	s.usingFallback = false
	s.stateMu.Unlock()
	for _, ev := range events {
		s.bus.publishNote(ev)
	}

	s.logger.Info("session stopped", "frames", s.frameCount.Load())
	s.publishStatus()
	return nil
}

// Destroy stops the session and releases the estimator, the audio
// context and all subscriptions. The session cannot be reused.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.stopLocked()
	s.bus.Clear()

	if s.estimator != nil {
		s.estimator.Free()
		s.estimator = nil
		s.input = nil
	}
	s.audioCtx.Close()
	s.audioCtx = nil
	s.initialized.Store(false)
	s.logger.Info("session destroyed")
}

// UpdateConfig applies partial configuration changes. Detection tuning
// (thresholds, confidence floor, frequency range) and the hop size apply
// live; sample rate and buffer size require a stopped session.
func (s *Session) UpdateConfig(p PartialConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.config()
	next := current.merged(p)
	if err := next.Validate(); err != nil {
		return err
	}

	structural := next.SampleRate != current.SampleRate || next.BufferSize != current.BufferSize
	if structural && s.running.Load() {
		return errors.Newf("sample rate and buffer size cannot change while running").
			Component("pitch").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if s.running.Load() && next.HopSize != current.HopSize {
		if err := s.source.SetHopSize(next.HopSize); err != nil {
			return err
		}
	}
	if s.initialized.Load() && next.BufferSize != current.BufferSize {
		if err := s.estimator.Resize(next.BufferSize); err != nil {
			return err
		}
	}

	s.stateMu.Lock()
	s.cfg = next
	s.tracker.SetThresholds(next)
	s.stateMu.Unlock()

	s.logger.Info("config updated",
		"buffer_size", next.BufferSize, "hop_size", next.HopSize,
		"detection_threshold", next.DetectionThreshold, "min_confidence", next.MinConfidence)
	return nil
}

// UseSource replaces microphone capture with a caller-provided frame
// source, such as a file reader. Must be set before Initialize; the
// session then skips platform audio setup entirely.
func (s *Session) UseSource(src audio.FrameSource) {
	s.mu.Lock()
	s.customSource = src
	s.mu.Unlock()
}

// AddCallbacks subscribes a set of event handlers. Subscribers are
// notified in registration order.
func (s *Session) AddCallbacks(cb Callbacks) Subscription {
	return s.bus.Attach(cb)
}

// RemoveCallbacks cancels a subscription. Unknown subscriptions are
// ignored.
func (s *Session) RemoveCallbacks(sub Subscription) {
	s.bus.Detach(sub)
}

// Status returns a snapshot of the session state.
func (s *Session) Status() Status {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	st := Status{
		Initialized:   s.initialized.Load(),
		Running:       s.running.Load(),
		UsingFallback: s.usingFallback,
		LastError:     s.lastErr,
		FrameCount:    s.frameCount.Load(),
		Level:         s.level,
	}
	if note, ok := s.tracker.CurrentNote(); ok {
		n := note
		st.CurrentNote = &n
	}
	if s.lastSample != nil {
		sample := *s.lastSample
		st.LastSample = &sample
	}
	return st
}

// Config returns a copy of the active configuration.
func (s *Session) Config() Config {
	return s.config()
}

func (s *Session) config() Config {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.cfg
}

func (s *Session) setLastError(msg string) {
	s.stateMu.Lock()
	s.lastErr = msg
	s.stateMu.Unlock()
}

func (s *Session) publishStatus() {
	s.stateMu.Lock()
	st := s.statusLocked()
	s.stateMu.Unlock()
	s.bus.publishStatus(st)
}

// ListInputDevices enumerates capture devices. Enumeration failures
// yield an empty list, never an error; devices may legitimately be
// absent or inaccessible.
func ListInputDevices() []audio.DeviceInfo {
	return audio.ListCaptureDevices(nil)
}

// rmsLevel computes the root mean square of a frame, a cheap loudness
// indicator for level meters.
func rmsLevel(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
