package music

import (
	"fmt"
	"math"
)

// C4 is the reference pitch every note frequency is derived from.
const C4 = 261.63

// NoteNames are the twelve pitch-class labels, indexed by semitone.
var NoteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Note describes one mapped pitch. It is a value type and is never mutated
// after the mapper or expander builds it.
type Note struct {
	Frequency float64
	Name      string
	Octave    int
	Semitone  int  // pitch class within the octave, 0-11
	Harmony   bool // request an added fifth above
}

// NewNote builds a note from a semitone offset and an octave. Semitones outside
// 0-11 carry into the octave, so NewNote(12, 4) is C5.
func NewNote(semitone, octave int) Note {
	octave += floorDiv(semitone, 12)
	semitone = mod(semitone, 12)
	return Note{
		Frequency: Frequency(semitone, octave),
		Name:      NoteNames[semitone],
		Octave:    octave,
		Semitone:  semitone,
	}
}

// Transpose returns the note shifted by the given number of semitones. The
// harmony flag is preserved.
func (n Note) Transpose(semitones int) Note {
	t := NewNote(n.Semitone+semitones, n.Octave)
	t.Harmony = n.Harmony
	return t
}

// MIDIKey returns the MIDI key number of the note (C4 = 60).
func (n Note) MIDIKey() int {
	return clampInt((n.Octave+1)*12+n.Semitone, 0, 127)
}

func (n Note) String() string {
	return fmt.Sprintf("%s%d", n.Name, n.Octave)
}

// Frequency returns the equal-tempered frequency of a pitch class in an octave:
// C4 * 2^((semitone + (octave-4)*12) / 12).
func Frequency(semitone, octave int) float64 {
	return C4 * math.Pow(2, float64(semitone+(octave-4)*12)/12)
}

// MIDIKey returns the nearest MIDI key for a frequency (A4 = 69 = 440 Hz).
func MIDIKey(freq float64) int {
	if freq <= 0 {
		return 0
	}
	return clampInt(int(math.Round(69+12*math.Log2(freq/440))), 0, 127)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
