package trigger

import (
	"time"

	"github.com/cbegin/keywave/internal/music"
)

// Chord is a fixed set of semitones above C in the base octave.
type Chord struct {
	Name      string
	Intervals []int
}

var chords = map[byte]Chord{
	'1': {"I", []int{0, 4, 7}},
	'2': {"ii", []int{2, 5, 9}},
	'3': {"iii", []int{4, 7, 11}},
	'4': {"IV", []int{5, 9, 12}},
	'5': {"V", []int{7, 11, 14}},
	'6': {"vi", []int{9, 12, 16}},
	'7': {"vii°", []int{11, 14, 17}},
	'8': {"Imaj7", []int{0, 4, 7, 11}},
	'9': {"V7", []int{7, 11, 14, 17}},
	'0': {"I5", []int{0, 7, 12}},
}

// ChordFor returns the chord bound to a digit symbol.
func ChordFor(symbol string) (Chord, bool) {
	if len(symbol) != 1 {
		return Chord{}, false
	}
	c, ok := chords[symbol[0]]
	return c, ok
}

// ExpandChord returns the staggered chord tones for a digit symbol. Double-tap
// echoes are added when the mode asks for them.
func ExpandChord(symbol string, octave int, velocity float64, mode Mode) ([]Event, bool) {
	c, ok := ChordFor(symbol)
	if !ok {
		return nil, false
	}
	base := make([]Event, len(c.Intervals))
	for i, iv := range c.Intervals {
		base[i] = Event{
			Note:     music.NewNote(iv, octave),
			Delay:    time.Duration(i) * ChordStagger,
			Velocity: velocity * ChordVelocity,
			Origin:   ChordTone,
		}
	}
	return finish(base, mode), true
}
