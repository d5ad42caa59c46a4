package music

import (
	"math"
	"testing"
)

func TestFrequencyReference(t *testing.T) {
	if got := Frequency(0, 4); got != C4 {
		t.Fatalf("C4 = %v, want %v", got, C4)
	}
	if got := Frequency(9, 4); math.Abs(got-440) > 0.01 {
		t.Fatalf("A4 = %v, want ~440", got)
	}
	if got := Frequency(0, 5); math.Abs(got-2*C4) > 1e-9 {
		t.Fatalf("C5 = %v, want %v", got, 2*C4)
	}
}

func TestNewNoteCarriesOctave(t *testing.T) {
	n := NewNote(12, 4)
	if n.Semitone != 0 || n.Octave != 5 || n.Name != "C" {
		t.Fatalf("NewNote(12,4) = %+v, want C5", n)
	}
	n = NewNote(-1, 4)
	if n.Semitone != 11 || n.Octave != 3 || n.Name != "B" {
		t.Fatalf("NewNote(-1,4) = %+v, want B3", n)
	}
	if got := NewNote(0, 4).MIDIKey(); got != 60 {
		t.Fatalf("C4 midi key = %d, want 60", got)
	}
	if got := MIDIKey(Frequency(9, 4)); got != 69 {
		t.Fatalf("MIDIKey(A4) = %d, want 69", got)
	}
}

func TestScalesAreValid(t *testing.T) {
	for _, s := range Scales() {
		if err := s.Validate(); err != nil {
			t.Fatalf("%s: %v", s.ID, err)
		}
	}
	if err := (Scale{ID: "bad", Intervals: []int{0, 4, 4}}).Validate(); err == nil {
		t.Fatalf("expected duplicate interval error")
	}
}

func TestStepScaleWraps(t *testing.T) {
	all := Scales()
	first, last := all[0], all[len(all)-1]
	if got := StepScale(first.ID, -1); got.ID != last.ID {
		t.Fatalf("step back from %s = %s, want %s", first.ID, got.ID, last.ID)
	}
	if got := StepScale(last.ID, 1); got.ID != first.ID {
		t.Fatalf("step forward from %s = %s, want %s", last.ID, got.ID, first.ID)
	}
}

func TestFrequencyLayoutStaysInScale(t *testing.T) {
	symbols := []string{"~", "1", "9", "!", ";", ",", "f13", "ß", "é"}
	for r := 'a'; r <= 'z'; r++ {
		symbols = append(symbols, string(r))
	}
	for _, s := range Scales() {
		for base := 1; base <= 7; base++ {
			m := Mapper{BaseOctave: base}
			for _, sym := range symbols {
				for _, mods := range []Modifiers{{}, {Shift: true}, {Alt: true}} {
					n := m.Map(sym, s, mods, LayoutFrequency)
					if !s.Contains(n.Semitone) {
						t.Fatalf("scale %s symbol %q mapped to out-of-scale semitone %d", s.ID, sym, n.Semitone)
					}
					if n.Frequency <= 0 {
						t.Fatalf("symbol %q produced non-positive frequency", sym)
					}
				}
			}
		}
	}
}

func TestFrequencyLayoutTiers(t *testing.T) {
	penta, _ := LookupScale("pentatonic")
	m := Mapper{BaseOctave: 4}
	cases := []struct {
		sym      string
		semitone int
		octave   int
	}{
		{"e", 0, 4},
		{"t", 9, 4},
		{"s", 0, 4},
		{"b", 4, 5}, // degree 7 wraps to 2
		{"v", 0, 5},
		{"x", 2, 3},
	}
	for _, tc := range cases {
		n := m.Map(tc.sym, penta, Modifiers{}, LayoutFrequency)
		if n.Semitone != tc.semitone || n.Octave != tc.octave {
			t.Errorf("%q = %s (semitone %d), want semitone %d octave %d", tc.sym, n, n.Semitone, tc.semitone, tc.octave)
		}
	}
}

func TestUnmappedSymbolIsDeterministic(t *testing.T) {
	major, _ := LookupScale("major")
	m := Mapper{BaseOctave: 4}
	a := m.Map("~", major, Modifiers{}, LayoutFrequency)
	b := m.Map("~", major, Modifiers{}, LayoutFrequency)
	if a != b {
		t.Fatalf("fallback mapping not deterministic: %+v vs %+v", a, b)
	}
	want := major.Intervals[int('~')%len(major.Intervals)]
	if a.Semitone != want {
		t.Fatalf("fallback semitone = %d, want %d", a.Semitone, want)
	}
}

func TestSpatialLayoutRows(t *testing.T) {
	penta, _ := LookupScale("pentatonic")
	m := Mapper{BaseOctave: 4}
	cases := []struct {
		sym      string
		semitone int
		octave   int
	}{
		{"q", 0, 5},
		{"p", 9, 6}, // position 9 is degree 4 one octave up
		{"a", 0, 4},
		{"h", 0, 5},
		{"z", 0, 3},
	}
	for _, tc := range cases {
		n := m.Map(tc.sym, penta, Modifiers{}, LayoutSpatial)
		if n.Semitone != tc.semitone || n.Octave != tc.octave {
			t.Errorf("%q = semitone %d octave %d, want %d/%d", tc.sym, n.Semitone, n.Octave, tc.semitone, tc.octave)
		}
	}
	// off-row symbols use the frequency policy
	if got, want := m.Map("1", penta, Modifiers{}, LayoutSpatial), m.Map("1", penta, Modifiers{}, LayoutFrequency); got != want {
		t.Fatalf("off-row symbol: spatial %+v, frequency %+v", got, want)
	}
}

func TestModifiers(t *testing.T) {
	major, _ := LookupScale("major")
	m := Mapper{BaseOctave: 4}
	plain := m.Map("a", major, Modifiers{}, LayoutFrequency)
	shifted := m.Map("a", major, Modifiers{Shift: true}, LayoutFrequency)
	if shifted.Octave != plain.Octave+1 || shifted.Semitone != plain.Semitone {
		t.Fatalf("shift: %+v vs %+v", shifted, plain)
	}
	if plain.Harmony {
		t.Fatalf("harmony set without alt")
	}
	if !m.Map("a", major, Modifiers{Alt: true}, LayoutFrequency).Harmony {
		t.Fatalf("alt should set harmony")
	}

	var mods Modifiers
	if !mods.Set("caps_lock", true) || !mods.CapsLock {
		t.Fatalf("caps_lock not tracked")
	}
	if mods.Set("hyper", true) {
		t.Fatalf("unknown modifier accepted")
	}
}

func TestSymbolClasses(t *testing.T) {
	if !IsRest("space") || IsRest("a") {
		t.Fatalf("IsRest misclassified")
	}
	if !IsFunctionKey("f1") || !IsFunctionKey("f12") || IsFunctionKey("f13") || IsFunctionKey("f") {
		t.Fatalf("IsFunctionKey misclassified")
	}
	if !IsChord("0") || IsChord("10") {
		t.Fatalf("IsChord misclassified")
	}
	if l, err := ParseLayout("spatial"); err != nil || l != LayoutSpatial {
		t.Fatalf("ParseLayout = %v, %v", l, err)
	}
}
