package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/cbegin/keywave/internal/music"
	"github.com/cbegin/keywave/internal/quantize"
	"github.com/cbegin/keywave/internal/trigger"
	"github.com/cbegin/keywave/internal/voice"
)

const (
	MinOctave     = 1
	MaxOctave     = 7
	MinTempo      = 40.0
	MaxTempo      = 300.0
	MaxArpOctaves = 3
	MinDecay      = 50 * time.Millisecond
	MaxDecay      = 10 * time.Second
)

// Settings is the engine configuration read by every pipeline stage.
type Settings struct {
	Scale        string
	Wave         voice.Waveform
	BaseOctave   int
	Transpose    int
	Decay        time.Duration
	Velocity     float64
	Quantize     bool
	QuantizeMode quantize.Mode
	Tempo        float64
	Grid         quantize.Grid
	Layout       music.Layout
	Arpeggiator  bool
	ArpPattern   trigger.Pattern
	ArpOctaves   int
	DoubleTap    bool
}

func DefaultSettings() Settings {
	return Settings{
		Scale:        music.DefaultScale,
		Wave:         voice.Sine,
		BaseOctave:   4,
		Decay:        1500 * time.Millisecond,
		Velocity:     0.6,
		QuantizeMode: quantize.ModeSnap,
		Tempo:        120,
		Grid:         quantize.GridEighth,
		Layout:       music.LayoutFrequency,
		ArpPattern:   trigger.PatternUp,
		ArpOctaves:   1,
	}
}

// Octave is the effective base octave: base plus transpose, clamped to 1-7.
func (s Settings) Octave() int {
	o := s.BaseOctave + s.Transpose
	if o < MinOctave {
		return MinOctave
	}
	if o > MaxOctave {
		return MaxOctave
	}
	return o
}

func (s Settings) Validate() error {
	if _, ok := music.LookupScale(s.Scale); !ok {
		return fmt.Errorf("unknown scale %q", s.Scale)
	}
	if !s.Wave.Valid() {
		return fmt.Errorf("unknown waveform %q", s.Wave)
	}
	if s.BaseOctave < MinOctave || s.BaseOctave > MaxOctave {
		return fmt.Errorf("base_octave must be in [%d,%d]", MinOctave, MaxOctave)
	}
	if s.Decay < MinDecay || s.Decay > MaxDecay {
		return fmt.Errorf("decay must be in [%v,%v]", MinDecay, MaxDecay)
	}
	if s.Velocity < 0 || s.Velocity > 1 {
		return errors.New("velocity must be in [0,1]")
	}
	if s.Tempo < MinTempo || s.Tempo > MaxTempo {
		return fmt.Errorf("tempo must be in [%v,%v]", MinTempo, MaxTempo)
	}
	if s.ArpOctaves < 1 || s.ArpOctaves > MaxArpOctaves {
		return fmt.Errorf("arp_octaves must be in [1,%d]", MaxArpOctaves)
	}
	return nil
}

func (s Settings) triggerMode() trigger.Mode {
	return trigger.Mode{
		Arpeggiator: s.Arpeggiator,
		Pattern:     s.ArpPattern,
		ArpOctaves:  s.ArpOctaves,
		DoubleTap:   s.DoubleTap,
		Tempo:       s.Tempo,
	}
}

// Patch is a partial Settings update. Nil fields are left unchanged. It is
// also the on-disk settings schema.
type Patch struct {
	Scale        *string          `json:"scale,omitempty"`
	Wave         *voice.Waveform  `json:"wave,omitempty"`
	BaseOctave   *int             `json:"base_octave,omitempty"`
	Transpose    *int             `json:"transpose,omitempty"`
	DecaySec     *float64         `json:"decay_sec,omitempty"`
	Velocity     *float64         `json:"velocity,omitempty"`
	Quantize     *bool            `json:"quantize,omitempty"`
	QuantizeMode *quantize.Mode   `json:"quantize_mode,omitempty"`
	Tempo        *float64         `json:"tempo,omitempty"`
	Grid         *quantize.Grid   `json:"grid,omitempty"`
	Layout       *music.Layout    `json:"layout,omitempty"`
	Arpeggiator  *bool            `json:"arpeggiator,omitempty"`
	ArpPattern   *trigger.Pattern `json:"arp_pattern,omitempty"`
	ArpOctaves   *int             `json:"arp_octaves,omitempty"`
	DoubleTap    *bool            `json:"double_tap,omitempty"`
}

// PatchFrom returns a patch that sets every field of s.
func PatchFrom(s Settings) Patch {
	decay := s.Decay.Seconds()
	return Patch{
		Scale:        &s.Scale,
		Wave:         &s.Wave,
		BaseOctave:   &s.BaseOctave,
		Transpose:    &s.Transpose,
		DecaySec:     &decay,
		Velocity:     &s.Velocity,
		Quantize:     &s.Quantize,
		QuantizeMode: &s.QuantizeMode,
		Tempo:        &s.Tempo,
		Grid:         &s.Grid,
		Layout:       &s.Layout,
		Arpeggiator:  &s.Arpeggiator,
		ArpPattern:   &s.ArpPattern,
		ArpOctaves:   &s.ArpOctaves,
		DoubleTap:    &s.DoubleTap,
	}
}

// Apply returns s with the patch applied, or an error if the result is out
// of range. s itself is never modified.
func (p Patch) Apply(s Settings) (Settings, error) {
	if p.Scale != nil {
		s.Scale = *p.Scale
	}
	if p.Wave != nil {
		s.Wave = *p.Wave
	}
	if p.BaseOctave != nil {
		s.BaseOctave = *p.BaseOctave
	}
	if p.Transpose != nil {
		s.Transpose = *p.Transpose
	}
	if p.DecaySec != nil {
		if *p.DecaySec <= 0 {
			return s, errors.New("decay_sec must be > 0")
		}
		s.Decay = time.Duration(*p.DecaySec * float64(time.Second))
	}
	if p.Velocity != nil {
		s.Velocity = *p.Velocity
	}
	if p.Quantize != nil {
		s.Quantize = *p.Quantize
	}
	if p.QuantizeMode != nil {
		s.QuantizeMode = *p.QuantizeMode
	}
	if p.Tempo != nil {
		s.Tempo = *p.Tempo
	}
	if p.Grid != nil {
		s.Grid = *p.Grid
	}
	if p.Layout != nil {
		s.Layout = *p.Layout
	}
	if p.Arpeggiator != nil {
		s.Arpeggiator = *p.Arpeggiator
	}
	if p.ArpPattern != nil {
		s.ArpPattern = *p.ArpPattern
	}
	if p.ArpOctaves != nil {
		s.ArpOctaves = *p.ArpOctaves
	}
	if p.DoubleTap != nil {
		s.DoubleTap = *p.DoubleTap
	}
	return s, s.Validate()
}

// rearms reports whether moving from old to s needs a new grid origin.
func rearms(old, s Settings) bool {
	return old.Quantize != s.Quantize ||
		old.QuantizeMode != s.QuantizeMode ||
		old.Tempo != s.Tempo ||
		old.Grid != s.Grid
}
