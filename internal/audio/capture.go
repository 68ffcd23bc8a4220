package audio

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tonelab/pitchtrack/internal/errors"
	"github.com/tonelab/pitchtrack/internal/logging"
)

// pollInterval is how often the polling strategy drains the ring buffer.
// At 48 kHz a 512-sample hop is ~10.7 ms, so polling adds at most one
// extra hop of latency.
const pollInterval = 10 * time.Millisecond

// frameChannelDepth bounds how many completed frames may queue between
// the capture side and the consumer before frames are dropped.
const frameChannelDepth = 8

// captureSource holds the state shared by both capture strategies.
type captureSource struct {
	ctx        *Context
	cfg        CaptureConfig
	asm        *assembler
	frames     chan Frame
	device     *malgo.Device
	deviceName string
	running    atomic.Bool
	dropped    atomic.Uint64
	logger     *slog.Logger
}

func newCaptureSource(ctx *Context, cfg CaptureConfig, logger *slog.Logger) captureSource {
	if logger == nil {
		logger = logging.ForService("audio")
	}
	return captureSource{
		ctx:    ctx,
		cfg:    cfg,
		asm:    newAssembler(cfg.BufferSize, cfg.HopSize),
		frames: make(chan Frame, frameChannelDepth),
		logger: logger,
	}
}

func (s *captureSource) Frames() <-chan Frame { return s.frames }

func (s *captureSource) SetHopSize(hop int) error { return s.asm.SetHopSize(hop) }

// deliver sends a completed frame without blocking. The audio thread and
// the poll loop both prefer dropping a frame over stalling capture.
func (s *captureSource) deliver(samples []float64) {
	if !s.running.Load() {
		return
	}
	select {
	case s.frames <- Frame{Samples: samples, Timestamp: time.Now()}:
	default:
		s.dropped.Add(1)
	}
}

// onDeviceStop is invoked by malgo when the device stops outside of our
// control (unplugged, backend reset). One restart is attempted.
func (s *captureSource) onDeviceStop() {
	if !s.running.Load() {
		return
	}
	s.logger.Warn("capture device stopped unexpectedly", "device", s.deviceName)
	go func() {
		time.Sleep(time.Second)
		if s.running.Load() && s.device != nil {
			if err := s.device.Start(); err != nil {
				s.logger.Error("capture device restart failed", "device", s.deviceName, "error", err)
			}
		}
	}()
}

func (s *captureSource) startDevice(onData func([]byte)) error {
	device, name, err := s.ctx.openCaptureDevice(s.cfg, onData, s.onDeviceStop)
	if err != nil {
		return err
	}
	s.device = device
	s.deviceName = name
	s.running.Store(true)

	if err := device.Start(); err != nil {
		s.running.Store(false)
		device.Uninit()
		s.device = nil
		return errors.New(err).
			Component("audio").
			Category(errors.CategoryDevice).
			Context("operation", "start_device").
			Context("device", name).
			Build()
	}

	s.logger.Info("capture started", "device", name,
		"sample_rate", s.cfg.SampleRate, "buffer_size", s.cfg.BufferSize, "hop_size", s.cfg.HopSize)
	return nil
}

// stopDevice halts capture. Best effort; always safe to call again.
func (s *captureSource) stopDevice() {
	if !s.running.Swap(false) {
		return
	}
	if s.device != nil {
		if err := s.device.Stop(); err != nil {
			s.logger.Debug("device stop failed", "error", err)
		}
		s.device.Uninit()
		s.device = nil
	}
	if n := s.dropped.Load(); n > 0 {
		s.logger.Debug("frames dropped during capture", "count", n)
	}
}

// callbackSource assembles frames inside the malgo data callback, which
// runs on the backend's dedicated audio thread. Completed frames cross
// to the consumer over the frame channel.
type callbackSource struct {
	captureSource
}

// NewCallbackSource creates the dedicated-thread capture strategy.
func NewCallbackSource(ctx *Context, cfg CaptureConfig, logger *slog.Logger) FrameSource {
	return &callbackSource{captureSource: newCaptureSource(ctx, cfg, logger)}
}

func (s *callbackSource) Strategy() Strategy { return StrategyCallback }

func (s *callbackSource) Start() error {
	return s.startDevice(func(pcm []byte) {
		s.asm.Write(pcm)
		for {
			samples, ok := s.asm.NextFrame()
			if !ok {
				break
			}
			s.deliver(samples)
		}
	})
}

func (s *callbackSource) Stop() error {
	if !s.running.Load() {
		return nil
	}
	s.stopDevice()
	close(s.frames)
	return nil
}

// pollingSource is the fallback strategy for platforms without a usable
// callback backend: the device callback only buffers raw PCM and a
// ticker goroutine assembles frames on the consumer side.
type pollingSource struct {
	captureSource
	quit chan struct{}
	wg   sync.WaitGroup
}

// NewPollingSource creates the polling fallback capture strategy.
func NewPollingSource(ctx *Context, cfg CaptureConfig, logger *slog.Logger) FrameSource {
	return &pollingSource{captureSource: newCaptureSource(ctx, cfg, logger)}
}

func (s *pollingSource) Strategy() Strategy { return StrategyPolling }

func (s *pollingSource) Start() error {
	if err := s.startDevice(s.asm.Write); err != nil {
		return err
	}

	s.quit = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.quit:
				return
			case <-ticker.C:
				for {
					samples, ok := s.asm.NextFrame()
					if !ok {
						break
					}
					s.deliver(samples)
				}
			}
		}
	}()
	return nil
}

func (s *pollingSource) Stop() error {
	if !s.running.Load() {
		return nil
	}
	close(s.quit)
	s.wg.Wait()
	s.stopDevice()
	close(s.frames)
	return nil
}
