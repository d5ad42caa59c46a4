package voice

import (
	"time"

	"github.com/cbegin/keywave/internal/music"
)

// Voice is one note owned by the pool.
type Voice struct {
	ID        uint64
	Handle    Handle
	Note      music.Note
	Start     time.Duration
	End       time.Duration // natural end of the decay, zero while sustained
	Sustained bool

	stopping bool
}

// Stopping reports whether the voice has been asked to fade out.
func (v *Voice) Stopping() bool { return v.stopping }

// Options are the per-dispatch tone parameters.
type Options struct {
	Velocity float64
	Waveform Waveform
	Decay    time.Duration
}

// Pool keeps at most max voices in insertion order and evicts the oldest when
// a new one would exceed it. It is not safe for concurrent use.
type Pool struct {
	renderer  Renderer
	max       int
	voices    []*Voice
	sustain   bool
	nextID    uint64
	evictions int
}

func NewPool(r Renderer, max int) *Pool {
	if max <= 0 {
		max = MaxVoices
	}
	return &Pool{renderer: r, max: max, voices: make([]*Voice, 0, max+1)}
}

// Dispatch starts a tone for note at start and returns its voice.
func (p *Pool) Dispatch(note music.Note, start time.Duration, opts Options) *Voice {
	p.Prune(start)
	if opts.Waveform == "" {
		opts.Waveform = Sine
	}
	tone := Tone{
		Frequency: note.Frequency,
		Waveform:  opts.Waveform,
		Velocity:  ClampVelocity(opts.Velocity),
		Decay:     opts.Decay,
		Start:     start,
		Sustain:   p.sustain,
	}
	p.nextID++
	v := &Voice{
		ID:        p.nextID,
		Handle:    p.renderer.PlayTone(tone),
		Note:      note,
		Start:     start,
		Sustained: p.sustain,
	}
	if !v.Sustained && opts.Decay > 0 {
		v.End = start + opts.Decay
	}
	p.voices = append(p.voices, v)
	for len(p.voices) > p.max {
		p.evictions++
		p.Stop(p.voices[0], start)
	}
	return v
}

// Stop fades v out and removes it from the pool. Stopping a voice twice is a
// no-op.
func (p *Pool) Stop(v *Voice, at time.Duration) {
	if v == nil || v.stopping {
		return
	}
	v.stopping = true
	p.renderer.StopTone(v.Handle, at)
	p.remove(v)
}

// StopAll fades out every pooled voice.
func (p *Pool) StopAll(at time.Duration) {
	voices := p.voices
	p.voices = make([]*Voice, 0, p.max+1)
	for _, v := range voices {
		if v.stopping {
			continue
		}
		v.stopping = true
		p.renderer.StopTone(v.Handle, at)
	}
}

// SetSustain changes the pedal state. Releasing it stops every voice that
// was started while it was held.
func (p *Pool) SetSustain(on bool, at time.Duration) {
	if p.sustain == on {
		return
	}
	p.sustain = on
	if on {
		return
	}
	for _, v := range append([]*Voice(nil), p.voices...) {
		if v.Sustained {
			p.Stop(v, at)
		}
	}
}

func (p *Pool) Sustain() bool { return p.sustain }

// Prune drops voices whose decay finished by now. The renderer already
// silenced them.
func (p *Pool) Prune(now time.Duration) {
	kept := p.voices[:0]
	for _, v := range p.voices {
		if v.End > 0 && v.End <= now {
			continue
		}
		kept = append(kept, v)
	}
	for i := len(kept); i < len(p.voices); i++ {
		p.voices[i] = nil
	}
	p.voices = kept
}

func (p *Pool) Len() int       { return len(p.voices) }
func (p *Pool) Evictions() int { return p.evictions }

// Voices returns the pooled voices, oldest first.
func (p *Pool) Voices() []*Voice {
	return append([]*Voice(nil), p.voices...)
}

func (p *Pool) remove(v *Voice) {
	for i, cur := range p.voices {
		if cur == v {
			copy(p.voices[i:], p.voices[i+1:])
			p.voices[len(p.voices)-1] = nil
			p.voices = p.voices[:len(p.voices)-1]
			return
		}
	}
}
