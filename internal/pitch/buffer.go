package pitch

import "github.com/tonelab/pitchtrack/internal/pitch/yin"

// inputHandle is the session's view onto the estimator's input buffer.
// The estimator may reallocate that buffer on resize, so the view is
// revalidated against the estimator's generation counter before every
// write rather than cached across calls.
type inputHandle struct {
	est        *yin.Estimator
	view       []float64
	generation uint64
}

func newInputHandle(est *yin.Estimator) *inputHandle {
	h := &inputHandle{est: est}
	h.view, h.generation = est.InputBuffer()
	return h
}

// write copies a frame into the estimator's input buffer, re-deriving
// the view first if the buffer moved. Frames whose length does not match
// the current buffer are dropped.
func (h *inputHandle) write(frame []float64) bool {
	if h.view == nil || h.generation != h.est.Generation() {
		h.view, h.generation = h.est.InputBuffer()
		if h.view == nil {
			return false
		}
	}
	if len(frame) != len(h.view) {
		return false
	}
	copy(h.view, frame)
	return true
}
