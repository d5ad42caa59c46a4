package music

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Layout selects how symbols are placed on the scale.
type Layout int

const (
	// LayoutFrequency places the most common letters on the strongest degrees
	// of the base octave and pushes rare letters out to neighbouring octaves.
	LayoutFrequency Layout = iota
	// LayoutSpatial follows the physical keyboard: top row one octave up,
	// bottom row one octave down.
	LayoutSpatial
)

func (l Layout) String() string {
	switch l {
	case LayoutFrequency:
		return "frequency"
	case LayoutSpatial:
		return "spatial"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// ParseLayout parses "frequency" or "spatial".
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "frequency", "freq":
		return LayoutFrequency, nil
	case "spatial":
		return LayoutSpatial, nil
	}
	return 0, fmt.Errorf("unknown layout %q", s)
}

func (l Layout) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Layout) UnmarshalText(b []byte) error {
	v, err := ParseLayout(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// LetterTier places a symbol in frequency layout.
type LetterTier struct {
	Tier   int // 0-3
	Degree int
}

// Letters are ranked by English frequency: tier 0 holds the six most common.
var letterTiers = map[rune]LetterTier{
	'e': {0, 0}, 't': {0, 4}, 'a': {0, 2}, 'o': {0, 1}, 'i': {0, 3}, 'n': {0, 5},
	's': {1, 0}, 'h': {1, 2}, 'r': {1, 4}, 'd': {1, 1}, 'l': {1, 3}, 'u': {1, 5},
	'c': {2, 0}, 'm': {2, 2}, 'w': {2, 4}, 'f': {2, 1}, 'g': {2, 3}, 'y': {2, 5}, 'p': {2, 6}, 'b': {2, 7},
	'v': {3, 0}, 'k': {3, 2}, 'j': {3, 4}, 'x': {3, 1}, 'q': {3, 3}, 'z': {3, 5},
}

// TierOf returns the tier entry for a single-letter symbol.
func TierOf(symbol string) (LetterTier, bool) {
	r, ok := singleRune(symbol)
	if !ok {
		return LetterTier{}, false
	}
	t, ok := letterTiers[r]
	return t, ok
}

var keyboardRows = [...]struct {
	keys   string
	octave int
}{
	{"qwertyuiop", 1},
	{"asdfghjkl;", 0},
	{"zxcvbnm,./", -1},
}

// Mapper turns input symbols into notes around a base octave.
type Mapper struct {
	BaseOctave int
}

// Map returns the note for symbol. It never fails: symbols with no table
// entry fall back to a note derived from their code points.
func (m Mapper) Map(symbol string, scale Scale, mods Modifiers, layout Layout) Note {
	if len(scale.Intervals) == 0 {
		scale, _ = LookupScale(DefaultScale)
	}
	var semitone, octave int
	placed := false
	if layout == LayoutSpatial {
		semitone, octave, placed = m.spatial(symbol, scale)
	}
	if !placed {
		semitone, octave = m.frequency(symbol, scale)
	}
	if mods.Shift {
		octave++
	}
	n := NewNote(semitone, octave)
	n.Harmony = mods.Alt
	return n
}

func (m Mapper) spatial(symbol string, scale Scale) (int, int, bool) {
	r, ok := singleRune(symbol)
	if !ok {
		return 0, 0, false
	}
	for _, row := range keyboardRows {
		pos := strings.IndexRune(row.keys, r)
		if pos < 0 {
			continue
		}
		semitone, carry := scale.Degree(pos)
		return semitone, m.BaseOctave + row.octave + carry, true
	}
	return 0, 0, false
}

func (m Mapper) frequency(symbol string, scale Scale) (int, int) {
	t, ok := TierOf(symbol)
	if !ok {
		return scale.Intervals[symbolHash(symbol)%len(scale.Intervals)], m.BaseOctave
	}
	semitone := scale.Intervals[t.Degree%len(scale.Intervals)]
	switch t.Tier {
	case 2:
		return semitone, m.BaseOctave + 1
	case 3:
		if t.Degree%2 == 0 {
			return semitone, m.BaseOctave + 1
		}
		return semitone, m.BaseOctave - 1
	default:
		return semitone, m.BaseOctave
	}
}

func symbolHash(symbol string) int {
	h := 0
	for _, r := range symbol {
		h += int(r)
	}
	return h
}

func singleRune(s string) (rune, bool) {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || size != len(s) || r == utf8.RuneError {
		return 0, false
	}
	return r, true
}
