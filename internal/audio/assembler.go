package audio

import (
	"sync"

	"github.com/smallnest/ringbuffer"

	"github.com/tonelab/pitchtrack/internal/errors"
)

const bytesPerSample = 2 // 16-bit PCM

// assembler turns a stream of arbitrarily sized PCM chunks into
// fixed-size overlapping analysis frames. Raw S16LE bytes land in a ring
// buffer on the capture side; the read side consumes one hop at a time
// and keeps a sliding window of the last bufferSize samples.
type assembler struct {
	mu          sync.Mutex
	rb          *ringbuffer.RingBuffer
	window      []byte
	bufferBytes int
	hopBytes    int
	dropped     uint64
}

func newAssembler(bufferSize, hopSize int) *assembler {
	bufferBytes := bufferSize * bytesPerSample
	return &assembler{
		rb:          ringbuffer.New(bufferBytes * 8),
		bufferBytes: bufferBytes,
		hopBytes:    hopSize * bytesPerSample,
	}
}

// Write appends raw S16LE PCM from the capture callback. When the ring
// buffer is full the chunk is dropped; the capture thread must never
// wait on the consumer.
func (a *assembler) Write(pcm []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rb.Free() < len(pcm) {
		a.dropped++
		return
	}
	_, _ = a.rb.Write(pcm)
}

// NextFrame returns the next completed frame, or false when less than a
// hop of new data has arrived. One frame is produced per hop consumed,
// so overlapping frames share bufferSize-hopSize samples.
func (a *assembler) NextFrame() ([]float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rb.Length() < a.hopBytes {
		return nil, false
	}
	hop := make([]byte, a.hopBytes)
	if _, err := a.rb.Read(hop); err != nil {
		return nil, false
	}
	a.window = append(a.window, hop...)
	if len(a.window) < a.bufferBytes {
		return nil, false
	}

	frame := pcmToFloat64(a.window[:a.bufferBytes])

	rest := make([]byte, len(a.window)-a.hopBytes)
	copy(rest, a.window[a.hopBytes:])
	a.window = rest

	return frame, true
}

// SetHopSize changes the hop without disturbing buffered audio.
func (a *assembler) SetHopSize(hop int) error {
	if hop <= 0 || hop*bytesPerSample > a.bufferBytes {
		return errors.Newf("invalid hop size %d for buffer of %d samples", hop, a.bufferBytes/bytesPerSample).
			Component("audio").
			Category(errors.CategoryValidation).
			Build()
	}
	a.mu.Lock()
	a.hopBytes = hop * bytesPerSample
	a.mu.Unlock()
	return nil
}

// Reset discards all buffered audio and the sliding window.
func (a *assembler) Reset() {
	a.mu.Lock()
	a.rb.Reset()
	a.window = nil
	a.mu.Unlock()
}

// Dropped reports how many capture chunks were discarded because the
// consumer fell behind.
func (a *assembler) Dropped() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// pcmToFloat64 converts S16LE PCM bytes to normalized mono samples.
func pcmToFloat64(pcm []byte) []float64 {
	samples := make([]float64, len(pcm)/bytesPerSample)
	for i := range samples {
		s := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		samples[i] = float64(s) / 32768.0
	}
	return samples
}
