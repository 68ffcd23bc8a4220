package pitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackerConfig() Config {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.7
	cfg.NoteOnThreshold = 2
	cfg.NoteOffThreshold = 3
	return cfg
}

func qualifying(note int) *PitchSample {
	return &PitchSample{Frequency: 440, MIDINote: note, Confidence: 0.9}
}

func TestTrackerOnsetNeedsConsecutiveFrames(t *testing.T) {
	tr := newNoteTracker(trackerConfig())

	assert.Empty(t, tr.Advance(qualifying(69)))

	events := tr.Advance(qualifying(69))
	require.Len(t, events, 1)
	assert.True(t, events[0].On)
	assert.Equal(t, 69, events[0].Note)
	assert.Greater(t, events[0].Velocity, 0)
}

func TestTrackerSustainedNoteEmitsOnce(t *testing.T) {
	tr := newNoteTracker(trackerConfig())
	tr.Advance(qualifying(69))
	require.Len(t, tr.Advance(qualifying(69)), 1)

	for range 20 {
		assert.Empty(t, tr.Advance(qualifying(69)))
	}
}

func TestTrackerGlitchDoesNotFireEvent(t *testing.T) {
	tr := newNoteTracker(trackerConfig())
	tr.Advance(qualifying(69))
	tr.Advance(qualifying(69))

	// A single frame of a different note never reaches the onset
	// threshold and the sustained note keeps sounding.
	assert.Empty(t, tr.Advance(qualifying(70)))
	assert.Empty(t, tr.Advance(qualifying(69)))

	note, active := tr.CurrentNote()
	assert.True(t, active)
	assert.Equal(t, 69, note)
}

func TestTrackerDifferingNoteRestartsCandidate(t *testing.T) {
	tr := newNoteTracker(trackerConfig())

	// One frame of 60 followed by a different note: 60 never fires.
	assert.Empty(t, tr.Advance(qualifying(60)))
	assert.Empty(t, tr.Advance(qualifying(62)))

	events := tr.Advance(qualifying(62))
	require.Len(t, events, 1)
	assert.True(t, events[0].On)
	assert.Equal(t, 62, events[0].Note)
}

func TestTrackerInvalidFrameResetsCandidateRun(t *testing.T) {
	tr := newNoteTracker(trackerConfig())

	assert.Empty(t, tr.Advance(qualifying(69)))
	assert.Empty(t, tr.Advance(nil))
	assert.Empty(t, tr.Advance(qualifying(69)))

	events := tr.Advance(qualifying(69))
	require.Len(t, events, 1)
	assert.True(t, events[0].On)
}

func TestTrackerLowConfidenceTreatedAsInvalid(t *testing.T) {
	tr := newNoteTracker(trackerConfig())

	low := &PitchSample{Frequency: 440, MIDINote: 69, Confidence: 0.5}
	assert.Empty(t, tr.Advance(low))
	assert.Empty(t, tr.Advance(low))
	assert.Empty(t, tr.Advance(low))

	_, active := tr.CurrentNote()
	assert.False(t, active)
}

func TestTrackerOffsetNeedsConsecutiveSilence(t *testing.T) {
	tr := newNoteTracker(trackerConfig())
	tr.Advance(qualifying(69))
	tr.Advance(qualifying(69))

	assert.Empty(t, tr.Advance(nil))
	assert.Empty(t, tr.Advance(nil))

	events := tr.Advance(nil)
	require.Len(t, events, 1)
	assert.False(t, events[0].On)
	assert.Equal(t, 69, events[0].Note)

	_, active := tr.CurrentNote()
	assert.False(t, active)
}

func TestTrackerSilenceRunBrokenByNote(t *testing.T) {
	tr := newNoteTracker(trackerConfig())
	tr.Advance(qualifying(69))
	tr.Advance(qualifying(69))

	tr.Advance(nil)
	tr.Advance(nil)
	assert.Empty(t, tr.Advance(qualifying(69)))

	// The silence counter restarted, so two more invalid frames are not
	// enough for an offset.
	assert.Empty(t, tr.Advance(nil))
	assert.Empty(t, tr.Advance(nil))

	_, active := tr.CurrentNote()
	assert.True(t, active)
}

func TestTrackerNoteSwitchEmitsOffThenOn(t *testing.T) {
	tr := newNoteTracker(trackerConfig())
	tr.Advance(qualifying(69))
	tr.Advance(qualifying(69))

	assert.Empty(t, tr.Advance(qualifying(71)))
	events := tr.Advance(qualifying(71))
	require.Len(t, events, 2)
	assert.False(t, events[0].On)
	assert.Equal(t, 69, events[0].Note)
	assert.True(t, events[1].On)
	assert.Equal(t, 71, events[1].Note)

	note, active := tr.CurrentNote()
	assert.True(t, active)
	assert.Equal(t, 71, note)
}

func TestTrackerFlush(t *testing.T) {
	tr := newNoteTracker(trackerConfig())
	assert.Empty(t, tr.Flush())

	tr.Advance(qualifying(69))
	tr.Advance(qualifying(69))

	events := tr.Flush()
	require.Len(t, events, 1)
	assert.False(t, events[0].On)
	assert.Equal(t, 69, events[0].Note)

	assert.Empty(t, tr.Flush())
}

func TestTrackerVelocityFollowsConfidence(t *testing.T) {
	tr := newNoteTracker(trackerConfig())

	strong := &PitchSample{Frequency: 440, MIDINote: 69, Confidence: 1}
	tr.Advance(strong)
	events := tr.Advance(strong)
	require.Len(t, events, 1)
	assert.Equal(t, velocityCeil, events[0].Velocity)

	tr2 := newNoteTracker(trackerConfig())
	weak := &PitchSample{Frequency: 440, MIDINote: 69, Confidence: 0.7}
	tr2.Advance(weak)
	events = tr2.Advance(weak)
	require.Len(t, events, 1)
	assert.Less(t, events[0].Velocity, velocityCeil)
	assert.GreaterOrEqual(t, events[0].Velocity, velocityFloor)
}

func TestTrackerThresholdOfOne(t *testing.T) {
	cfg := trackerConfig()
	cfg.NoteOnThreshold = 1
	cfg.NoteOffThreshold = 1
	tr := newNoteTracker(cfg)

	events := tr.Advance(qualifying(60))
	require.Len(t, events, 1)
	assert.True(t, events[0].On)

	events = tr.Advance(nil)
	require.Len(t, events, 1)
	assert.False(t, events[0].On)
}
