package audio

import (
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"

	"github.com/tonelab/pitchtrack/internal/errors"
)

// FileSource replays a WAV file through the FrameSource contract so
// recorded audio runs the identical analysis path as live capture.
// Frames are delivered as fast as the consumer accepts them; timestamps
// advance by the hop duration instead of wall-clock capture time.
type FileSource struct {
	samples    []float64
	sampleRate int
	bufferSize int

	mu      sync.Mutex
	hopSize int
	started bool

	frames chan Frame
	quit   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewFileSource decodes path into mono samples. Multi-channel files are
// downmixed by averaging.
func NewFileSource(path string, bufferSize, hopSize int) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	decoder := wav.NewDecoder(f)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, errors.New(err).
			Component("audio").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Context("operation", "decode_wav").
			Build()
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, errors.Newf("wav file %s has no format information", path).
			Component("audio").
			Category(errors.CategoryFileIO).
			Build()
	}

	channels := buf.Format.NumChannels
	scale := float64(int(1) << (decoder.BitDepth - 1))
	samples := make([]float64, len(buf.Data)/channels)
	for i := range samples {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch])
		}
		samples[i] = sum / float64(channels) / scale
	}

	return &FileSource{
		samples:    samples,
		sampleRate: buf.Format.SampleRate,
		bufferSize: bufferSize,
		hopSize:    hopSize,
		frames:     make(chan Frame, frameChannelDepth),
		quit:       make(chan struct{}),
	}, nil
}

// SampleRate reports the file's sample rate so the caller can configure
// the engine to match.
func (s *FileSource) SampleRate() int { return s.sampleRate }

// Duration reports the decoded audio length.
func (s *FileSource) Duration() time.Duration {
	return time.Duration(float64(len(s.samples)) / float64(s.sampleRate) * float64(time.Second))
}

func (s *FileSource) Strategy() Strategy { return StrategyFile }

func (s *FileSource) Frames() <-chan Frame { return s.frames }

func (s *FileSource) SetHopSize(hop int) error {
	if hop <= 0 || hop > s.bufferSize {
		return errors.Newf("invalid hop size %d for buffer of %d samples", hop, s.bufferSize).
			Component("audio").
			Category(errors.CategoryValidation).
			Build()
	}
	s.mu.Lock()
	s.hopSize = hop
	s.mu.Unlock()
	return nil
}

// Start launches frame delivery. The channel is closed when the file is
// exhausted or Stop is called. A file source delivers its audio once;
// starting it a second time is an error.
func (s *FileSource) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.Newf("file source already consumed, create a new one to replay").
			Component("audio").
			Category(errors.CategoryState).
			Build()
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.frames)

		base := time.Now()
		pos := 0
		elapsed := 0
		for pos+s.bufferSize <= len(s.samples) {
			frame := make([]float64, s.bufferSize)
			copy(frame, s.samples[pos:pos+s.bufferSize])

			ts := base.Add(time.Duration(float64(elapsed) / float64(s.sampleRate) * float64(time.Second)))
			select {
			case s.frames <- Frame{Samples: frame, Timestamp: ts}:
			case <-s.quit:
				return
			}

			s.mu.Lock()
			hop := s.hopSize
			s.mu.Unlock()
			pos += hop
			elapsed += hop
		}
	}()
	return nil
}

func (s *FileSource) Stop() error {
	s.once.Do(func() { close(s.quit) })
	s.wg.Wait()
	return nil
}
