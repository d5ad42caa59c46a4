// Package voice tracks the bounded set of sounding notes and hands them to a
// Renderer.
package voice

import (
	"fmt"
	"strings"
	"time"
)

const (
	MaxVoices       = 6
	VelocityCeiling = 0.8
	// FadeOut is how long a stopped voice takes to reach silence.
	FadeOut = 90 * time.Millisecond
)

type Waveform string

const (
	Sine     Waveform = "sine"
	Square   Waveform = "square"
	Sawtooth Waveform = "sawtooth"
	Triangle Waveform = "triangle"
)

var waveforms = []Waveform{Sine, Square, Sawtooth, Triangle}

// Waveforms lists the supported oscillator shapes.
func Waveforms() []Waveform {
	return append([]Waveform(nil), waveforms...)
}

func ParseWaveform(s string) (Waveform, error) {
	w := Waveform(strings.ToLower(strings.TrimSpace(s)))
	if w == "saw" {
		w = Sawtooth
	}
	if !w.Valid() {
		return "", fmt.Errorf("unknown waveform %q", s)
	}
	return w, nil
}

func (w Waveform) Valid() bool {
	for _, v := range waveforms {
		if w == v {
			return true
		}
	}
	return false
}

// Handle identifies a tone inside a Renderer.
type Handle uint64

// Tone is one playTone request.
type Tone struct {
	Frequency float64
	Waveform  Waveform
	Velocity  float64
	Decay     time.Duration
	Start     time.Duration
	// Sustain suppresses the automatic decay; the tone rings until stopped.
	Sustain bool
}

// Renderer produces sound for tones. StopTone fades the tone out from at and
// must tolerate handles that already finished.
type Renderer interface {
	PlayTone(t Tone) Handle
	StopTone(h Handle, at time.Duration)
}

// ClampVelocity limits v to [0, VelocityCeiling].
func ClampVelocity(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > VelocityCeiling {
		return VelocityCeiling
	}
	return v
}
