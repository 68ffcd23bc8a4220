package pitch

// noteTracker is the hysteresis state machine that turns a stream of
// per-frame classifications into debounced note events. It is either
// silent or holding one note; onsets need noteOnThreshold consecutive
// qualifying frames of the same note, offsets need noteOffThreshold
// consecutive invalid frames. Single-frame glitches (octave errors,
// transients, consonant noise) therefore never fire an event.
//
// Not safe for concurrent use; the session advances it from one
// goroutine only.
type noteTracker struct {
	minConfidence    float64
	noteOnThreshold  int
	noteOffThreshold int

	active         bool
	currentNote    int
	candidateNote  int
	candidateCount int
	silenceCount   int
}

func newNoteTracker(cfg Config) *noteTracker {
	t := &noteTracker{}
	t.SetThresholds(cfg)
	return t
}

// SetThresholds applies updated tuning without disturbing the current
// note state.
func (t *noteTracker) SetThresholds(cfg Config) {
	t.minConfidence = cfg.MinConfidence
	t.noteOnThreshold = cfg.NoteOnThreshold
	t.noteOffThreshold = cfg.NoteOffThreshold
}

// CurrentNote returns the held note, if any.
func (t *noteTracker) CurrentNote() (int, bool) {
	return t.currentNote, t.active
}

// Reset clears all state and counters without emitting events.
func (t *noteTracker) Reset() {
	t.active = false
	t.candidateCount = 0
	t.silenceCount = 0
}

// Advance consumes one frame's classification. A nil sample means no
// detection (no pitch, or out of range). Returned events are in emission
// order; on a direct note switch the off event precedes the on event.
func (t *noteTracker) Advance(sample *PitchSample) []NoteEvent {
	if sample == nil || sample.Confidence < t.minConfidence {
		return t.advanceInvalid()
	}
	return t.advanceQualifying(sample)
}

func (t *noteTracker) advanceInvalid() []NoteEvent {
	// An invalid frame breaks any consecutive confirmation run.
	t.candidateCount = 0

	if !t.active {
		t.silenceCount = 0
		return nil
	}

	t.silenceCount++
	if t.silenceCount < t.noteOffThreshold {
		return nil
	}
	note := t.currentNote
	t.active = false
	t.silenceCount = 0
	return []NoteEvent{{Note: note, On: false}}
}

func (t *noteTracker) advanceQualifying(sample *PitchSample) []NoteEvent {
	t.silenceCount = 0
	note := sample.MIDINote

	// Continued sustain of the held note: counters reset, no event.
	if t.active && note == t.currentNote {
		t.candidateCount = 0
		return nil
	}

	if t.candidateCount > 0 && t.candidateNote == note {
		t.candidateCount++
	} else {
		t.candidateNote = note
		t.candidateCount = 1
	}
	if t.candidateCount < t.noteOnThreshold {
		return nil
	}

	var events []NoteEvent
	if t.active {
		events = append(events, NoteEvent{Note: t.currentNote, On: false})
	}
	events = append(events, NoteEvent{
		Note:     note,
		Velocity: velocityFromConfidence(sample.Confidence),
		On:       true,
	})
	t.active = true
	t.currentNote = note
	t.candidateCount = 0
	return events
}

// Flush releases the held note, if any. Used when the session stops so a
// sounding note never leaks past the stream teardown.
func (t *noteTracker) Flush() []NoteEvent {
	if !t.active {
		return nil
	}
	note := t.currentNote
	t.Reset()
	return []NoteEvent{{Note: note, On: false}}
}
