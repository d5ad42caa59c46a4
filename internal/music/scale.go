package music

import (
	"errors"
	"fmt"
)

// Scale is a named set of semitone offsets within one octave.
type Scale struct {
	ID        string
	Name      string
	Intervals []int
}

var scales = []Scale{
	{ID: "major", Name: "Major", Intervals: []int{0, 2, 4, 5, 7, 9, 11}},
	{ID: "minor", Name: "Natural Minor", Intervals: []int{0, 2, 3, 5, 7, 8, 10}},
	{ID: "pentatonic", Name: "Major Pentatonic", Intervals: []int{0, 2, 4, 7, 9}},
	{ID: "minor-pentatonic", Name: "Minor Pentatonic", Intervals: []int{0, 3, 5, 7, 10}},
	{ID: "blues", Name: "Blues", Intervals: []int{0, 3, 5, 6, 7, 10}},
	{ID: "dorian", Name: "Dorian", Intervals: []int{0, 2, 3, 5, 7, 9, 10}},
	{ID: "phrygian", Name: "Phrygian", Intervals: []int{0, 1, 3, 5, 7, 8, 10}},
	{ID: "lydian", Name: "Lydian", Intervals: []int{0, 2, 4, 6, 7, 9, 11}},
	{ID: "mixolydian", Name: "Mixolydian", Intervals: []int{0, 2, 4, 5, 7, 9, 10}},
	{ID: "harmonic-minor", Name: "Harmonic Minor", Intervals: []int{0, 2, 3, 5, 7, 8, 11}},
	{ID: "whole-tone", Name: "Whole Tone", Intervals: []int{0, 2, 4, 6, 8, 10}},
	{ID: "japanese", Name: "In Sen", Intervals: []int{0, 1, 5, 7, 10}},
	{ID: "chromatic", Name: "Chromatic", Intervals: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
}

var scaleIndex = func() map[string]int {
	m := make(map[string]int, len(scales))
	for i, s := range scales {
		m[s.ID] = i
	}
	return m
}()

// DefaultScale is the scale used when none is configured.
const DefaultScale = "pentatonic"

// LookupScale returns the scale registered under id.
func LookupScale(id string) (Scale, bool) {
	i, ok := scaleIndex[id]
	if !ok {
		return Scale{}, false
	}
	return scales[i], true
}

// Scales returns every built-in scale in cycling order.
func Scales() []Scale {
	out := make([]Scale, len(scales))
	copy(out, scales)
	return out
}

// StepScale returns the scale step positions away from id, wrapping around.
// Unknown ids start from the first scale.
func StepScale(id string, step int) Scale {
	i := scaleIndex[id]
	return scales[mod(i+step, len(scales))]
}

// Degree returns the semitone of scale degree i and the octave carry implied
// by i running past either end of the scale.
func (s Scale) Degree(i int) (semitone int, octave int) {
	n := len(s.Intervals)
	return s.Intervals[mod(i, n)], floorDiv(i, n)
}

// Contains reports whether the pitch class is part of the scale.
func (s Scale) Contains(semitone int) bool {
	semitone = mod(semitone, 12)
	for _, iv := range s.Intervals {
		if iv == semitone {
			return true
		}
	}
	return false
}

// Validate checks that the intervals are a non-empty, strictly ascending
// subset of 0-11.
func (s Scale) Validate() error {
	if len(s.Intervals) == 0 {
		return errors.New("scale has no intervals")
	}
	prev := -1
	for _, iv := range s.Intervals {
		if iv < 0 || iv > 11 {
			return fmt.Errorf("scale %q: interval %d out of range 0..11", s.ID, iv)
		}
		if iv <= prev {
			return fmt.Errorf("scale %q: intervals must be unique and ascending", s.ID)
		}
		prev = iv
	}
	return nil
}
