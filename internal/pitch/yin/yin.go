// Package yin implements a YIN fundamental-frequency estimator with an
// FFT-accelerated difference function. The estimator fulfills the
// engine's frequency-estimation capability: given a mono frame, a sample
// rate and a detection threshold it returns a frequency in Hz or reports
// that no pitch was found.
//
// The estimator owns a reusable input buffer that is reallocated when
// the frame size changes. Callers must re-derive their view of the
// buffer whenever the generation counter moves; see InputBuffer.
package yin

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"

	"github.com/tonelab/pitchtrack/internal/errors"
)

// minTau is the shortest lag considered; lag 1 only ever wins on
// degenerate input.
const minTau = 2

// Estimator holds the input buffer and scratch state for repeated
// analyses at a fixed frame size.
type Estimator struct {
	mu         sync.Mutex
	input      []float64
	generation uint64
}

// New creates an estimator for frames of bufferSize samples.
func New(bufferSize int) (*Estimator, error) {
	if bufferSize < 2*minTau || bufferSize%2 != 0 {
		return nil, errors.Newf("invalid buffer size %d: must be even and at least %d", bufferSize, 2*minTau).
			Component("yin").
			Category(errors.CategoryEstimatorInit).
			Build()
	}
	return &Estimator{input: make([]float64, bufferSize), generation: 1}, nil
}

// InputBuffer returns the current input buffer together with its
// generation. The buffer is only valid for the returned generation;
// after Resize the old slice must not be written through.
func (e *Estimator) InputBuffer() ([]float64, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.input, e.generation
}

// Generation returns the current backing-buffer generation.
func (e *Estimator) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// Resize reallocates the input buffer for a new frame size, invalidating
// all previously derived views.
func (e *Estimator) Resize(bufferSize int) error {
	if bufferSize < 2*minTau || bufferSize%2 != 0 {
		return errors.Newf("invalid buffer size %d: must be even and at least %d", bufferSize, 2*minTau).
			Component("yin").
			Category(errors.CategoryValidation).
			Build()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if bufferSize != len(e.input) {
		e.input = make([]float64, bufferSize)
		e.generation++
	}
	return nil
}

// Free releases the input buffer. Subsequent InputBuffer calls return a
// nil view; the generation moves so stale handles cannot revalidate.
func (e *Estimator) Free() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.input = nil
	e.generation++
}

// Estimate analyzes the current input buffer contents.
func (e *Estimator) Estimate(sampleRate int, threshold float64) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.input == nil {
		return 0, false
	}
	return EstimateFrame(e.input, sampleRate, threshold)
}

// EstimateFrame runs YIN over a caller-owned frame. It does not retain
// the frame. Returns the fundamental frequency in Hz, or false when the
// cumulative mean normalized difference never dips below threshold
// (silence, noise, or no periodicity).
func EstimateFrame(frame []float64, sampleRate int, threshold float64) (float64, bool) {
	n := len(frame)
	w := n / 2
	if w <= minTau || sampleRate <= 0 {
		return 0, false
	}

	d := differenceFunction(frame, w)

	// Cumulative mean normalized difference. A zero running sum means
	// the frame carries no energy; report every lag as a full mismatch.
	dPrime := make([]float64, w)
	dPrime[0] = 1
	running := 0.0
	for tau := 1; tau < w; tau++ {
		running += d[tau]
		if running <= 0 {
			dPrime[tau] = 1
			continue
		}
		dPrime[tau] = d[tau] * float64(tau) / running
	}

	// Absolute threshold: first dip below threshold, descended to its
	// local minimum.
	tau := -1
	for t := minTau; t < w; t++ {
		if dPrime[t] < threshold {
			for t+1 < w && dPrime[t+1] < dPrime[t] {
				t++
			}
			tau = t
			break
		}
	}
	if tau < 0 {
		return 0, false
	}

	betterTau := parabolicInterpolation(dPrime, tau)
	if betterTau <= 0 {
		return 0, false
	}
	return float64(sampleRate) / betterTau, true
}

// differenceFunction computes d(tau) = sum_{j<w} (x_j - x_{j+tau})^2 for
// tau in [0, w) using the autocorrelation identity
// d(tau) = p(0,w) + p(tau,tau+w) - 2*r(tau), with the cross terms r
// obtained through FFT. Direct evaluation is O(w^2); this is O(n log n).
func differenceFunction(frame []float64, w int) []float64 {
	n := len(frame)
	m := nextPow2(n + w)

	ypad := make([]float64, m)
	copy(ypad, frame[:w])
	zpad := make([]float64, m)
	copy(zpad, frame)

	yf := fft.FFTReal(ypad)
	zf := fft.FFTReal(zpad)
	spec := make([]complex128, m)
	for i := range spec {
		spec[i] = cmplx.Conj(yf[i]) * zf[i]
	}
	corr := fft.IFFT(spec)

	// Prefix sums of squares for the power terms.
	sq := make([]float64, n+1)
	for i, v := range frame {
		sq[i+1] = sq[i] + v*v
	}

	d := make([]float64, w)
	for tau := 0; tau < w; tau++ {
		v := sq[w] + (sq[tau+w] - sq[tau]) - 2*real(corr[tau])
		if v < 0 {
			v = 0 // FFT roundoff
		}
		d[tau] = v
	}
	return d
}

// parabolicInterpolation refines the lag estimate by fitting a parabola
// through the minimum and its neighbors.
func parabolicInterpolation(dPrime []float64, tau int) float64 {
	if tau <= 0 || tau >= len(dPrime)-1 {
		return float64(tau)
	}
	y1 := dPrime[tau-1]
	y2 := dPrime[tau]
	y3 := dPrime[tau+1]
	denom := 2 * (y1 - 2*y2 + y3)
	if denom == 0 {
		return float64(tau)
	}
	delta := (y1 - y3) / denom
	if math.Abs(delta) > 1 {
		return float64(tau)
	}
	return float64(tau) + delta
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
