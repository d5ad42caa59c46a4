package midiout

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/keywave/internal/music"
	"github.com/cbegin/keywave/internal/voice"
)

// Resolution is the tick resolution of recorded files.
const Resolution = smf.MetricTicks(960)

// Note is one recorded tone.
type Note struct {
	Key uint8
	Vel uint8
	On  time.Duration
	Off time.Duration
}

// Recorder wraps a renderer and keeps a copy of every tone it plays.
type Recorder struct {
	inner voice.Renderer

	mu    sync.Mutex
	notes map[voice.Handle]*Note
	order []voice.Handle
}

func NewRecorder(inner voice.Renderer) *Recorder {
	return &Recorder{inner: inner, notes: make(map[voice.Handle]*Note)}
}

// Unwrap returns the wrapped renderer.
func (r *Recorder) Unwrap() voice.Renderer { return r.inner }

func (r *Recorder) PlayTone(t voice.Tone) voice.Handle {
	h := r.inner.PlayTone(t)
	n := &Note{
		Key: uint8(music.MIDIKey(t.Frequency)),
		Vel: Velocity(t.Velocity),
		On:  t.Start,
		Off: -1,
	}
	if !t.Sustain && t.Decay > 0 {
		n.Off = t.Start + t.Decay
	}
	r.mu.Lock()
	r.notes[h] = n
	r.order = append(r.order, h)
	r.mu.Unlock()
	return h
}

func (r *Recorder) StopTone(h voice.Handle, at time.Duration) {
	r.inner.StopTone(h, at)
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[h]
	if !ok {
		return
	}
	at = max(at, n.On)
	if n.Off < 0 || at < n.Off {
		n.Off = at
	}
}

// Advance forwards to the wrapped renderer when it keeps its own clock.
func (r *Recorder) Advance(now time.Duration) {
	if a, ok := r.inner.(interface{ Advance(time.Duration) }); ok {
		a.Advance(now)
	}
}

// Notes returns the recorded tones in start order. Tones never stopped end
// at end.
func (r *Recorder) Notes(end time.Duration) []Note {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Note, 0, len(r.order))
	for _, h := range r.order {
		n := *r.notes[h]
		if n.Off < 0 {
			n.Off = max(end, n.On)
		}
		out = append(out, n)
	}
	slices.SortStableFunc(out, func(a, b Note) int { return cmp.Compare(a.On, b.On) })
	return out
}

type smfEvent struct {
	at  time.Duration
	msg midi.Message
}

// SMF builds a single-track file at the given tempo.
func (r *Recorder) SMF(tempo float64, end time.Duration) (*smf.SMF, error) {
	notes := r.Notes(end)
	events := make([]smfEvent, 0, 2*len(notes))
	for _, n := range notes {
		events = append(events,
			smfEvent{at: n.On, msg: midi.NoteOn(0, n.Key, n.Vel)},
			smfEvent{at: n.Off, msg: midi.NoteOff(0, n.Key)},
		)
	}
	slices.SortStableFunc(events, func(a, b smfEvent) int { return cmp.Compare(a.at, b.at) })

	s := smf.New()
	s.TimeFormat = Resolution
	var track smf.Track
	track.Add(0, smf.MetaTempo(tempo))
	var last uint32
	for _, e := range events {
		abs := Resolution.Ticks(tempo, e.at)
		track.Add(abs-last, e.msg)
		last = abs
	}
	track.Close(0)
	if err := s.Add(track); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteFile saves the recording as a Standard MIDI File.
func (r *Recorder) WriteFile(path string, tempo float64, end time.Duration) error {
	s, err := r.SMF(tempo, end)
	if err != nil {
		return err
	}
	return s.WriteFile(path)
}
