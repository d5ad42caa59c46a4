package engine

import (
	"github.com/cbegin/keywave/internal/music"
	"github.com/cbegin/keywave/internal/quantize"
)

// control handles symbols that change engine state instead of playing. It
// reports whether symbol was consumed.
func (e *Engine) control(symbol string) bool {
	s := e.ctx.Settings
	switch symbol {
	case music.SymbolEscape:
		e.stopAll()
		return true
	case music.SymbolUp:
		if s.BaseOctave+s.Transpose < MaxOctave {
			s.Transpose++
		}
	case music.SymbolDown:
		if s.BaseOctave+s.Transpose > MinOctave {
			s.Transpose--
		}
	case music.SymbolLeft:
		s.Scale = music.StepScale(s.Scale, -1).ID
	case music.SymbolRight:
		s.Scale = music.StepScale(s.Scale, 1).ID
	case music.SymbolTab:
		s.Arpeggiator = !s.Arpeggiator
	case "f1":
		s.Quantize = !s.Quantize
	case "f2":
		if s.QuantizeMode == quantize.ModeSnap {
			s.QuantizeMode = quantize.ModeBuffer
		} else {
			s.QuantizeMode = quantize.ModeSnap
		}
	case "f3":
		s.Grid = s.Grid.Next()
	case "f4":
		s.DoubleTap = !s.DoubleTap
	case "f5":
		s.ArpPattern = s.ArpPattern.Next()
	case "f6":
		if s.Layout == music.LayoutFrequency {
			s.Layout = music.LayoutSpatial
		} else {
			s.Layout = music.LayoutFrequency
		}
	default:
		return music.IsFunctionKey(symbol)
	}
	e.apply(s)
	return true
}
