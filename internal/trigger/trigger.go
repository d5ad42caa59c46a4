// Package trigger expands one mapped note into the timed notes it produces:
// arpeggios, chords, harmony fifths and double-tap echoes.
package trigger

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/cbegin/keywave/internal/music"
)

// Origin records why an event exists. Echo origins never expand further.
type Origin int

const (
	Primary Origin = iota
	HarmonyEcho
	DoubleTapEcho
	ArpTone
	ChordTone
)

func (o Origin) String() string {
	switch o {
	case Primary:
		return "primary"
	case HarmonyEcho:
		return "harmony"
	case DoubleTapEcho:
		return "double-tap"
	case ArpTone:
		return "arp"
	case ChordTone:
		return "chord"
	default:
		return fmt.Sprintf("Origin(%d)", int(o))
	}
}

// Event is one note to dispatch, relative to the trigger's anchor time.
type Event struct {
	Note     music.Note
	Delay    time.Duration
	Velocity float64
	Origin   Origin
}

const (
	HarmonyInterval   = 7
	HarmonyVelocity   = 0.6
	DoubleTapDelay    = 80 * time.Millisecond
	DoubleTapVelocity = 0.7
	ChordStagger      = 15 * time.Millisecond
	ChordVelocity     = 0.85

	arpFalloff = 0.4
)

// Pattern orders the arpeggio tones.
type Pattern int

const (
	PatternUp Pattern = iota
	PatternDown
	PatternUpDown
	PatternRandom
)

var patternNames = [...]string{"up", "down", "updown", "random"}

func (p Pattern) String() string {
	if p >= 0 && int(p) < len(patternNames) {
		return patternNames[p]
	}
	return fmt.Sprintf("Pattern(%d)", int(p))
}

// Next returns the following pattern, wrapping after random.
func (p Pattern) Next() Pattern {
	return Pattern((int(p) + 1) % len(patternNames))
}

// ParsePattern parses a pattern name.
func ParsePattern(s string) (Pattern, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range patternNames {
		if s == name {
			return Pattern(i), nil
		}
	}
	return 0, fmt.Errorf("unknown arp pattern %q", s)
}

func (p Pattern) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Pattern) UnmarshalText(b []byte) error {
	v, err := ParsePattern(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Mode is the expansion state read from the engine settings.
type Mode struct {
	Arpeggiator bool
	Pattern     Pattern
	ArpOctaves  int
	DoubleTap   bool
	Tempo       float64

	// Rand shuffles PatternRandom. Nil uses the global source.
	Rand *rand.Rand
}

// ArpStep is the sixteenth-note spacing at tempo.
func ArpStep(tempo float64) time.Duration {
	if tempo <= 0 {
		return 0
	}
	return time.Duration(60 / tempo / 4 * float64(time.Second))
}

var arpIntervals = [...]int{0, 4, 7, 12}

// Arpeggio returns the semitone offsets of the arpeggio in play order.
func Arpeggio(pattern Pattern, octaves int, rng *rand.Rand) []int {
	if octaves < 1 {
		octaves = 1
	}
	steps := make([]int, 0, len(arpIntervals)*octaves)
	for o := 0; o < octaves; o++ {
		for _, iv := range arpIntervals {
			v := o*12 + iv
			if n := len(steps); n > 0 && steps[n-1] == v {
				continue
			}
			steps = append(steps, v)
		}
	}
	switch pattern {
	case PatternDown:
		for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
			steps[i], steps[j] = steps[j], steps[i]
		}
	case PatternUpDown:
		for i := len(steps) - 2; i > 0; i-- {
			steps = append(steps, steps[i])
		}
	case PatternRandom:
		shuffle := rand.Shuffle
		if rng != nil {
			shuffle = rng.Shuffle
		}
		shuffle(len(steps), func(i, j int) { steps[i], steps[j] = steps[j], steps[i] })
	}
	return steps
}

// Expand returns the events one note produces under mode, in dispatch order.
func Expand(note music.Note, velocity float64, mode Mode) []Event {
	var base []Event
	if mode.Arpeggiator {
		steps := Arpeggio(mode.Pattern, mode.ArpOctaves, mode.Rand)
		step := ArpStep(mode.Tempo)
		base = make([]Event, len(steps))
		for i, st := range steps {
			base[i] = Event{
				Note:     note.Transpose(st),
				Delay:    time.Duration(i) * step,
				Velocity: velocity * (1 - arpFalloff*float64(i)/float64(len(steps))),
				Origin:   ArpTone,
			}
		}
	} else {
		base = []Event{{Note: note, Velocity: velocity, Origin: Primary}}
	}
	return finish(base, mode)
}

// finish adds harmony fifths and double-tap echoes to the base events.
func finish(base []Event, mode Mode) []Event {
	out := make([]Event, 0, len(base)*4)
	for _, ev := range base {
		out = append(out, ev)
		if ev.Note.Harmony && ev.Origin != HarmonyEcho && ev.Origin != DoubleTapEcho {
			h := ev.Note.Transpose(HarmonyInterval)
			h.Harmony = false
			out = append(out, Event{
				Note:     h,
				Delay:    ev.Delay,
				Velocity: ev.Velocity * HarmonyVelocity,
				Origin:   HarmonyEcho,
			})
		}
	}
	if !mode.DoubleTap {
		return out
	}
	n := len(out)
	for i := 0; i < n; i++ {
		ev := out[i]
		if ev.Origin == DoubleTapEcho {
			continue
		}
		echo := ev.Note
		echo.Harmony = false
		out = append(out, Event{
			Note:     echo,
			Delay:    ev.Delay + DoubleTapDelay,
			Velocity: ev.Velocity * DoubleTapVelocity,
			Origin:   DoubleTapEcho,
		})
	}
	return out
}
