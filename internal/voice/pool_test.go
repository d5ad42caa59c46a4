package voice

import (
	"testing"
	"time"

	"github.com/cbegin/keywave/internal/music"
)

type recordingRenderer struct {
	next    Handle
	played  []Tone
	stopped map[Handle]int
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{stopped: map[Handle]int{}}
}

func (r *recordingRenderer) PlayTone(t Tone) Handle {
	r.next++
	r.played = append(r.played, t)
	return r.next
}

func (r *recordingRenderer) StopTone(h Handle, _ time.Duration) {
	r.stopped[h]++
}

func TestPoolNeverExceedsMax(t *testing.T) {
	r := newRecordingRenderer()
	p := NewPool(r, MaxVoices)
	for i := 0; i < 50; i++ {
		p.Dispatch(music.NewNote(i%12, 4), time.Duration(i)*time.Millisecond, Options{Velocity: 0.5, Decay: time.Second})
		if p.Len() > MaxVoices {
			t.Fatalf("pool length %d after %d dispatches", p.Len(), i+1)
		}
	}
	if p.Evictions() != 50-MaxVoices {
		t.Fatalf("evictions = %d, want %d", p.Evictions(), 50-MaxVoices)
	}
}

func TestPoolEvictsOldestFirst(t *testing.T) {
	r := newRecordingRenderer()
	p := NewPool(r, 2)
	a := p.Dispatch(music.NewNote(0, 4), 0, Options{Decay: time.Second})
	b := p.Dispatch(music.NewNote(2, 4), 0, Options{Decay: time.Second})
	p.Dispatch(music.NewNote(4, 4), 0, Options{Decay: time.Second})
	if r.stopped[a.Handle] != 1 || r.stopped[b.Handle] != 0 {
		t.Fatalf("expected only the oldest voice stopped: %v", r.stopped)
	}
	vs := p.Voices()
	if len(vs) != 2 || vs[0] != b {
		t.Fatalf("pool order after eviction wrong")
	}
}

func TestVelocityClamped(t *testing.T) {
	r := newRecordingRenderer()
	p := NewPool(r, MaxVoices)
	p.Dispatch(music.NewNote(0, 4), 0, Options{Velocity: 3})
	p.Dispatch(music.NewNote(0, 4), 0, Options{Velocity: -1})
	if r.played[0].Velocity != VelocityCeiling || r.played[1].Velocity != 0 {
		t.Fatalf("velocities = %v, %v", r.played[0].Velocity, r.played[1].Velocity)
	}
	if r.played[0].Waveform != Sine {
		t.Fatalf("default waveform = %q", r.played[0].Waveform)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r := newRecordingRenderer()
	p := NewPool(r, MaxVoices)
	v := p.Dispatch(music.NewNote(0, 4), 0, Options{Decay: time.Second})
	p.Stop(v, 10*time.Millisecond)
	p.Stop(v, 20*time.Millisecond)
	if r.stopped[v.Handle] != 1 {
		t.Fatalf("StopTone called %d times", r.stopped[v.Handle])
	}
	if p.Len() != 0 || !v.Stopping() {
		t.Fatalf("voice still pooled after stop")
	}
}

func TestStopAllThenColdStart(t *testing.T) {
	r := newRecordingRenderer()
	p := NewPool(r, MaxVoices)
	for i := 0; i < 4; i++ {
		p.Dispatch(music.NewNote(i, 4), 0, Options{Decay: time.Second})
	}
	p.StopAll(5 * time.Millisecond)
	if p.Len() != 0 || len(r.stopped) != 4 {
		t.Fatalf("StopAll left %d voices, stopped %d", p.Len(), len(r.stopped))
	}
	v := p.Dispatch(music.NewNote(0, 4), 10*time.Millisecond, Options{Decay: time.Second})
	if p.Len() != 1 || p.Voices()[0] != v {
		t.Fatalf("pool after cold start = %d voices", p.Len())
	}
}

func TestSustainSuppressesDecay(t *testing.T) {
	r := newRecordingRenderer()
	p := NewPool(r, MaxVoices)
	p.SetSustain(true, 0)
	held := p.Dispatch(music.NewNote(0, 4), 0, Options{Decay: 100 * time.Millisecond})
	if !r.played[0].Sustain || held.End != 0 {
		t.Fatalf("sustained voice has decay: %+v", r.played[0])
	}
	p.Prune(time.Second)
	if p.Len() != 1 {
		t.Fatalf("sustained voice pruned")
	}
	p.SetSustain(false, time.Second)
	if r.stopped[held.Handle] != 1 || p.Len() != 0 {
		t.Fatalf("pedal release did not stop sustained voice")
	}
}

func TestPruneRemovesDecayedVoices(t *testing.T) {
	r := newRecordingRenderer()
	p := NewPool(r, MaxVoices)
	p.Dispatch(music.NewNote(0, 4), 0, Options{Decay: 100 * time.Millisecond})
	p.Dispatch(music.NewNote(0, 4), 50*time.Millisecond, Options{Decay: 100 * time.Millisecond})
	p.Prune(120 * time.Millisecond)
	if p.Len() != 1 {
		t.Fatalf("len after prune = %d, want 1", p.Len())
	}
	if len(r.stopped) != 0 {
		t.Fatalf("prune should not stop tones")
	}
}

func TestParseWaveform(t *testing.T) {
	if w, err := ParseWaveform("Saw"); err != nil || w != Sawtooth {
		t.Fatalf("ParseWaveform(Saw) = %v, %v", w, err)
	}
	if _, err := ParseWaveform("noise"); err == nil {
		t.Fatalf("expected error")
	}
}
