package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pcmRamp builds S16LE bytes for samples n, n+1, ... n+count-1.
func pcmRamp(start, count int) []byte {
	out := make([]byte, count*bytesPerSample)
	for i := range count {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(start+i)))
	}
	return out
}

func TestAssemblerOverlappingFrames(t *testing.T) {
	a := newAssembler(8, 4)
	a.Write(pcmRamp(0, 16))

	// First hop only fills half the window.
	_, ok := a.NextFrame()
	assert.False(t, ok)

	frame, ok := a.NextFrame()
	require.True(t, ok)
	require.Len(t, frame, 8)
	assert.InDelta(t, 0.0, frame[0], 1e-9)
	assert.InDelta(t, 7.0/32768, frame[7], 1e-9)

	// The next frame advances by one hop and shares four samples.
	frame, ok = a.NextFrame()
	require.True(t, ok)
	assert.InDelta(t, 4.0/32768, frame[0], 1e-9)
	assert.InDelta(t, 11.0/32768, frame[7], 1e-9)

	frame, ok = a.NextFrame()
	require.True(t, ok)
	assert.InDelta(t, 8.0/32768, frame[0], 1e-9)

	// Buffered audio is exhausted.
	_, ok = a.NextFrame()
	assert.False(t, ok)
}

func TestAssemblerDropsWhenFull(t *testing.T) {
	a := newAssembler(8, 4)

	// Capacity is eight windows of audio.
	a.Write(pcmRamp(0, 64))
	assert.Zero(t, a.Dropped())

	a.Write(pcmRamp(0, 4))
	assert.Equal(t, uint64(1), a.Dropped())

	// Draining makes room again.
	_, _ = a.NextFrame()
	a.Write(pcmRamp(0, 4))
	assert.Equal(t, uint64(1), a.Dropped())
}

func TestAssemblerSetHopSize(t *testing.T) {
	a := newAssembler(8, 4)

	assert.Error(t, a.SetHopSize(0))
	assert.Error(t, a.SetHopSize(9))
	require.NoError(t, a.SetHopSize(2))

	a.Write(pcmRamp(0, 10))
	for range 4 {
		if _, ok := a.NextFrame(); ok {
			return
		}
	}
	t.Fatal("no frame produced after hop change")
}

func TestAssemblerReset(t *testing.T) {
	a := newAssembler(8, 4)
	a.Write(pcmRamp(0, 16))
	_, _ = a.NextFrame()

	a.Reset()
	_, ok := a.NextFrame()
	assert.False(t, ok)
}

func TestPCMToFloat64(t *testing.T) {
	pcm := make([]byte, 6)
	half := int16(16384)
	negFull := int16(-32768)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(half))
	binary.LittleEndian.PutUint16(pcm[2:], uint16(negFull))
	binary.LittleEndian.PutUint16(pcm[4:], 0)

	samples := pcmToFloat64(pcm)
	require.Len(t, samples, 3)
	assert.InDelta(t, 0.5, samples[0], 1e-9)
	assert.InDelta(t, -1.0, samples[1], 1e-9)
	assert.InDelta(t, 0.0, samples[2], 1e-9)
}
