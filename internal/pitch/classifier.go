package pitch

import (
	"math"
	"strconv"
)

// centsFullConfidence is the deviation at which confidence reaches zero:
// half a semitone, the point where the rounded note itself flips.
const centsFullConfidence = 50.0

// Classify converts a frequency into the nearest MIDI note and a
// confidence score. Confidence is 1 at an exact pitch and falls linearly
// to 0 at ±50 cents deviation; it is never negative.
func Classify(frequency float64) (midiNote int, confidence float64) {
	midiNote = int(math.Round(69 + 12*math.Log2(frequency/440.0)))
	expected := 440.0 * math.Pow(2, float64(midiNote-69)/12)
	cents := 1200 * math.Log2(frequency/expected)
	confidence = 1 - math.Abs(cents)/centsFullConfidence
	if confidence < 0 {
		confidence = 0
	}
	return midiNote, confidence
}

// NoteName formats a MIDI note number as scientific pitch notation.
func NoteName(midiNote int) string {
	names := [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	idx := midiNote % 12
	if idx < 0 {
		idx += 12
	}
	octave := midiNote/12 - 1
	return names[idx] + strconv.Itoa(octave)
}
