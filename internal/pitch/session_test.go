package pitch_test

import (
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonelab/pitchtrack/internal/audio"
	"github.com/tonelab/pitchtrack/internal/pitch"
)

// fakeSource feeds hand-built frames through the FrameSource contract so
// session tests run without an audio device.
type fakeSource struct {
	frames chan audio.Frame
	once   sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{frames: make(chan audio.Frame, 64)}
}

func (f *fakeSource) Start() error { return nil }

func (f *fakeSource) Stop() error {
	f.once.Do(func() { close(f.frames) })
	return nil
}

func (f *fakeSource) Frames() <-chan audio.Frame { return f.frames }

func (f *fakeSource) SetHopSize(int) error { return nil }

func (f *fakeSource) Strategy() audio.Strategy { return audio.StrategyCallback }

func (f *fakeSource) push(samples []float64) {
	f.frames <- audio.Frame{Samples: samples, Timestamp: time.Now()}
}

func sineFrame(frequency float64, sampleRate, n int) []float64 {
	frame := make([]float64, n)
	for i := range frame {
		frame[i] = 0.5 * math.Sin(2*math.Pi*frequency*float64(i)/float64(sampleRate))
	}
	return frame
}

func silentFrame(n int) []float64 {
	return make([]float64, n)
}

func testConfig() pitch.Config {
	cfg := pitch.DefaultConfig()
	cfg.SampleRate = 44100
	cfg.BufferSize = 1024
	cfg.HopSize = 512
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, cfg pitch.Config) (*pitch.Session, *fakeSource) {
	t.Helper()
	session, err := pitch.NewSession(cfg, testLogger())
	require.NoError(t, err)
	source := newFakeSource()
	session.UseSource(source)
	t.Cleanup(session.Destroy)
	return session, source
}

func waitEvent(t *testing.T, ch <-chan pitch.NoteEvent) pitch.NoteEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for note event")
		return pitch.NoteEvent{}
	}
}

func assertNoEvent(t *testing.T, ch <-chan pitch.NoteEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected note event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSessionDetectsNoteOnAndOff(t *testing.T) {
	cfg := testConfig()
	session, source := newTestSession(t, cfg)

	events := make(chan pitch.NoteEvent, 16)
	samples := make(chan pitch.PitchSample, 64)
	session.AddCallbacks(pitch.Callbacks{
		OnPitch:   func(s pitch.PitchSample) { samples <- s },
		OnNoteOn:  func(ev pitch.NoteEvent) { events <- ev },
		OnNoteOff: func(ev pitch.NoteEvent) { events <- ev },
	})

	require.NoError(t, session.Start(""))

	tone := sineFrame(440, cfg.SampleRate, cfg.BufferSize)
	for range cfg.NoteOnThreshold {
		source.push(tone)
	}

	ev := waitEvent(t, events)
	assert.True(t, ev.On)
	assert.Equal(t, 69, ev.Note)
	assert.Greater(t, ev.Velocity, 0)

	select {
	case s := <-samples:
		assert.InDelta(t, 440, s.Frequency, 2)
		assert.Equal(t, 69, s.MIDINote)
		assert.Greater(t, s.Confidence, 0.9)
	case <-time.After(time.Second):
		t.Fatal("no pitch sample published")
	}

	for range cfg.NoteOffThreshold {
		source.push(silentFrame(cfg.BufferSize))
	}

	ev = waitEvent(t, events)
	assert.False(t, ev.On)
	assert.Equal(t, 69, ev.Note)

	require.NoError(t, session.Stop())
	assertNoEvent(t, events)
}

func TestSessionCallbackMayReadStatus(t *testing.T) {
	cfg := testConfig()
	session, source := newTestSession(t, cfg)

	// Subscribers commonly refresh the status snapshot from inside
	// their handlers; that must not wedge the frame goroutine.
	events := make(chan pitch.NoteEvent, 16)
	session.AddCallbacks(pitch.Callbacks{
		OnPitch: func(pitch.PitchSample) {
			_ = session.Status()
		},
		OnNoteOn: func(ev pitch.NoteEvent) {
			st := session.Status()
			assert.True(t, st.Running)
			events <- ev
		},
		OnNoteOff: func(ev pitch.NoteEvent) {
			_ = session.Status()
			events <- ev
		},
	})

	require.NoError(t, session.Start(""))

	tone := sineFrame(440, cfg.SampleRate, cfg.BufferSize)
	for range cfg.NoteOnThreshold {
		source.push(tone)
	}
	assert.True(t, waitEvent(t, events).On)

	require.NoError(t, session.Stop())
	assert.False(t, waitEvent(t, events).On)
}

func TestSessionStartWhileRunning(t *testing.T) {
	session, _ := newTestSession(t, testConfig())

	require.NoError(t, session.Start(""))
	assert.ErrorIs(t, session.Start(""), pitch.ErrAlreadyRunning)
	require.NoError(t, session.Stop())
}

func TestSessionStopReleasesSoundingNote(t *testing.T) {
	cfg := testConfig()
	session, source := newTestSession(t, cfg)

	events := make(chan pitch.NoteEvent, 16)
	session.AddCallbacks(pitch.Callbacks{
		OnNoteOn:  func(ev pitch.NoteEvent) { events <- ev },
		OnNoteOff: func(ev pitch.NoteEvent) { events <- ev },
	})

	require.NoError(t, session.Start(""))

	tone := sineFrame(440, cfg.SampleRate, cfg.BufferSize)
	for range cfg.NoteOnThreshold {
		source.push(tone)
	}
	require.True(t, waitEvent(t, events).On)

	require.NoError(t, session.Stop())

	ev := waitEvent(t, events)
	assert.False(t, ev.On)
	assert.Equal(t, 69, ev.Note)
}

func TestSessionInitializeIdempotent(t *testing.T) {
	session, _ := newTestSession(t, testConfig())

	require.NoError(t, session.Initialize())
	require.NoError(t, session.Initialize())
	assert.True(t, session.Status().Initialized)
}

func TestSessionStopIdempotent(t *testing.T) {
	session, _ := newTestSession(t, testConfig())

	require.NoError(t, session.Stop())
	require.NoError(t, session.Start(""))
	require.NoError(t, session.Stop())
	require.NoError(t, session.Stop())
}

func TestSessionStatus(t *testing.T) {
	cfg := testConfig()
	session, source := newTestSession(t, cfg)

	st := session.Status()
	assert.False(t, st.Initialized)
	assert.False(t, st.Running)

	events := make(chan pitch.NoteEvent, 16)
	session.AddCallbacks(pitch.Callbacks{
		OnNoteOn: func(ev pitch.NoteEvent) { events <- ev },
	})

	require.NoError(t, session.Start(""))

	tone := sineFrame(440, cfg.SampleRate, cfg.BufferSize)
	for range cfg.NoteOnThreshold {
		source.push(tone)
	}
	waitEvent(t, events)

	st = session.Status()
	assert.True(t, st.Initialized)
	assert.True(t, st.Running)
	assert.GreaterOrEqual(t, st.FrameCount, uint64(cfg.NoteOnThreshold))
	require.NotNil(t, st.CurrentNote)
	assert.Equal(t, 69, *st.CurrentNote)
	require.NotNil(t, st.LastSample)
	assert.Greater(t, st.Level, 0.0)

	require.NoError(t, session.Stop())
	st = session.Status()
	assert.False(t, st.Running)
}

func TestSessionOutOfRangeFrequencyIgnored(t *testing.T) {
	cfg := testConfig()
	cfg.MinFrequency = 200
	session, source := newTestSession(t, cfg)

	events := make(chan pitch.NoteEvent, 16)
	session.AddCallbacks(pitch.Callbacks{
		OnNoteOn: func(ev pitch.NoteEvent) { events <- ev },
	})

	require.NoError(t, session.Start(""))

	// 110 Hz is below the configured range; no note may fire.
	tone := sineFrame(110, cfg.SampleRate, cfg.BufferSize)
	for range 5 {
		source.push(tone)
	}
	assertNoEvent(t, events)
	require.NoError(t, session.Stop())
}

func TestSessionUpdateConfig(t *testing.T) {
	session, _ := newTestSession(t, testConfig())

	confidence := 0.9
	require.NoError(t, session.UpdateConfig(pitch.PartialConfig{MinConfidence: &confidence}))
	assert.Equal(t, 0.9, session.Config().MinConfidence)

	bad := 1.5
	assert.Error(t, session.UpdateConfig(pitch.PartialConfig{MinConfidence: &bad}))

	require.NoError(t, session.Start(""))

	// Structural changes are rejected while running.
	rate := 96000
	assert.Error(t, session.UpdateConfig(pitch.PartialConfig{SampleRate: &rate}))

	// Tuning changes apply live.
	threshold := 0.2
	require.NoError(t, session.UpdateConfig(pitch.PartialConfig{DetectionThreshold: &threshold}))

	require.NoError(t, session.Stop())

	// Stopped, the structural change goes through.
	size := 4096
	require.NoError(t, session.UpdateConfig(pitch.PartialConfig{BufferSize: &size}))
	assert.Equal(t, 4096, session.Config().BufferSize)
}

func TestSessionRemoveCallbacks(t *testing.T) {
	cfg := testConfig()
	session, source := newTestSession(t, cfg)

	events := make(chan pitch.NoteEvent, 16)
	sub := session.AddCallbacks(pitch.Callbacks{
		OnNoteOn: func(ev pitch.NoteEvent) { events <- ev },
	})
	session.RemoveCallbacks(sub)

	require.NoError(t, session.Start(""))
	tone := sineFrame(440, cfg.SampleRate, cfg.BufferSize)
	for range 5 {
		source.push(tone)
	}
	assertNoEvent(t, events)
	require.NoError(t, session.Stop())
}
