// Package lfo provides the low-frequency oscillator used for synth vibrato.
package lfo

import (
	"fmt"
	"math"
	"strings"
)

// Shape is the LFO waveform.
type Shape int

const (
	Sine Shape = iota
	Triangle
	Square
	Saw
)

var shapeNames = [...]string{"sine", "triangle", "square", "saw"}

func (s Shape) String() string {
	if s >= 0 && int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

func ParseShape(name string) (Shape, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range shapeNames {
		if n == name {
			return Shape(i), nil
		}
	}
	return 0, fmt.Errorf("unknown lfo shape %q", name)
}

// LFO produces one modulation value per sample in [-depth, depth]. The zero
// value is silent.
type LFO struct {
	depth  float64
	rateHz float64
	shape  Shape
	phase  float64 // [0, 1)
}

// Set configures depth, rate and shape. Unknown shapes fall back to Sine.
func (l *LFO) Set(depth, rateHz float64, shape Shape) {
	if shape < Sine || shape > Saw {
		shape = Sine
	}
	l.depth, l.rateHz, l.shape = depth, rateHz, shape
}

// Sample returns the value at the current phase and advances by one sample.
func (l *LFO) Sample(sampleRate float64) float64 {
	if !l.Active() || sampleRate <= 0 {
		return 0
	}
	v := l.value()
	l.phase += l.rateHz / sampleRate
	l.phase -= math.Floor(l.phase)
	return v * l.depth
}

func (l *LFO) value() float64 {
	p := l.phase
	switch l.shape {
	case Triangle:
		if p < 0.5 {
			return 4*p - 1
		}
		return 3 - 4*p
	case Square:
		if p < 0.5 {
			return 1
		}
		return -1
	case Saw:
		return 1 - 2*p
	default:
		return math.Sin(2 * math.Pi * p)
	}
}

func (l *LFO) Active() bool {
	return l.depth != 0 && l.rateHz != 0
}

func (l *LFO) Reset() { l.phase = 0 }
