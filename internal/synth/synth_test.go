package synth

import (
	"math"
	"testing"
	"time"

	"github.com/cbegin/keywave/internal/effects"
	intvoice "github.com/cbegin/keywave/internal/voice"
)

const sr = 48000

func dryParams() Params {
	p := DefaultParams()
	p.LPFCutoff = 0
	p.FX = effects.Config{}
	return p
}

func render(s *Synth, d time.Duration) []float32 {
	buf := make([]float32, int(d.Seconds()*sr)*2)
	s.Process(buf)
	return buf
}

func energy(buf []float32) float64 {
	var e float64
	for _, v := range buf {
		e += math.Abs(float64(v))
	}
	return e
}

func TestSilentWithoutTones(t *testing.T) {
	s := New(sr, dryParams())
	if e := energy(render(s, 50*time.Millisecond)); e != 0 {
		t.Fatalf("energy = %v, want 0", e)
	}
}

func TestToneDecaysAway(t *testing.T) {
	s := New(sr, dryParams())
	s.PlayTone(intvoice.Tone{Frequency: 440, Waveform: intvoice.Sine, Velocity: 0.8, Decay: 100 * time.Millisecond})
	if e := energy(render(s, 50*time.Millisecond)); e == 0 {
		t.Fatalf("expected audio from tone")
	}
	if n := s.ActiveVoiceCount(); n != 1 {
		t.Fatalf("active = %d, want 1", n)
	}
	render(s, 100*time.Millisecond)
	if n := s.ActiveVoiceCount(); n != 0 {
		t.Fatalf("active after decay = %d, want 0", n)
	}
}

func TestFutureStartIsSampleAccurate(t *testing.T) {
	s := New(sr, dryParams())
	s.PlayTone(intvoice.Tone{Frequency: 440, Waveform: intvoice.Square, Velocity: 0.8, Decay: time.Second, Start: 50 * time.Millisecond})
	buf := render(s, 100*time.Millisecond)
	startFrame := int(0.05 * sr)
	if e := energy(buf[:startFrame*2]); e != 0 {
		t.Fatalf("audio before start: %v", e)
	}
	if e := energy(buf[startFrame*2:]); e == 0 {
		t.Fatalf("no audio after start")
	}
}

func TestStopFadesOut(t *testing.T) {
	s := New(sr, dryParams())
	h := s.PlayTone(intvoice.Tone{Frequency: 220, Waveform: intvoice.Sawtooth, Velocity: 0.8, Sustain: true})
	render(s, 20*time.Millisecond)
	s.StopTone(h, s.Position())
	render(s, 50*time.Millisecond)
	if n := s.ActiveVoiceCount(); n != 1 {
		t.Fatalf("voice ended before the fade finished")
	}
	render(s, 50*time.Millisecond)
	if n := s.ActiveVoiceCount(); n != 0 {
		t.Fatalf("voice still active after fade")
	}
	s.StopTone(h, s.Position())
}

func TestStopBeforeStartCancels(t *testing.T) {
	s := New(sr, dryParams())
	h := s.PlayTone(intvoice.Tone{Frequency: 220, Velocity: 0.5, Decay: time.Second, Start: 100 * time.Millisecond})
	s.StopTone(h, 10*time.Millisecond)
	if n := s.ActiveVoiceCount(); n != 0 {
		t.Fatalf("cancelled tone still scheduled")
	}
	if e := energy(render(s, 200*time.Millisecond)); e != 0 {
		t.Fatalf("cancelled tone sounded")
	}
}

func TestPositionTracksRenderedFrames(t *testing.T) {
	s := New(sr, DefaultParams())
	render(s, 250*time.Millisecond)
	if got := s.Position(); got != 250*time.Millisecond {
		t.Fatalf("position = %v, want 250ms", got)
	}
}

func TestOutputStaysInRange(t *testing.T) {
	s := New(sr, DefaultParams())
	for i := 0; i < 12; i++ {
		s.PlayTone(intvoice.Tone{Frequency: 110 * float64(i+1), Waveform: intvoice.Square, Velocity: 0.8, Decay: time.Second})
	}
	for _, v := range render(s, 200*time.Millisecond) {
		if v > 1 || v < -1 {
			t.Fatalf("sample %v out of range", v)
		}
	}
	s.SetMasterGain(-1)
	if s.MasterGain() != 0 {
		t.Fatalf("master gain should clamp to 0")
	}
}
