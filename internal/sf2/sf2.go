// Package sf2 renders tones with a SoundFont through meltysynth.
package sf2

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/sinshu/go-meltysynth/meltysynth"

	"github.com/cbegin/keywave/internal/music"
	"github.com/cbegin/keywave/internal/voice"
)

// blockSize matches meltysynth's render block to the audio callback.
const blockSize = 64

// synthesizer is the part of meltysynth.Synthesizer the renderer drives.
type synthesizer interface {
	ProcessMidiMessage(channel int32, command int32, data1, data2 int32)
	NoteOn(channel, key, vel int32)
	NoteOff(channel, key int32)
	Render(left, right []float32)
}

// newSynthesizer is replaced in tests.
var newSynthesizer = func(sf *meltysynth.SoundFont, settings *meltysynth.SynthesizerSettings) (synthesizer, error) {
	return meltysynth.NewSynthesizer(sf, settings)
}

type event struct {
	frame  int64
	on     bool
	handle voice.Handle
	key    int32
	vel    int32
}

// Renderer plays tones as MIDI notes on one channel of a SoundFont synth.
// Note starts and stops land on exact frames inside a Process call.
type Renderer struct {
	mu         sync.Mutex
	syn        synthesizer
	sampleRate float64
	channel    int32
	frame      int64
	events     []event
	next       voice.Handle
	keys       map[voice.Handle]int32
	left       []float32
	right      []float32
}

// Load reads a SoundFont file and selects program on channel 0.
func Load(path string, sampleRate, program int) (*Renderer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sf, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("soundfont %s: %w", path, err)
	}
	settings := meltysynth.NewSynthesizerSettings(int32(sampleRate))
	settings.BlockSize = blockSize
	syn, err := newSynthesizer(sf, settings)
	if err != nil {
		return nil, err
	}
	return newRenderer(syn, sampleRate, program), nil
}

func newRenderer(syn synthesizer, sampleRate, program int) *Renderer {
	r := &Renderer{
		syn:        syn,
		sampleRate: float64(sampleRate),
		keys:       make(map[voice.Handle]int32),
	}
	syn.ProcessMidiMessage(r.channel, 0xC0, int32(program), 0)
	return r
}

func (r *Renderer) SampleRate() int { return int(r.sampleRate) }

// Position is the time of the next frame to be rendered.
func (r *Renderer) Position() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(float64(r.frame) / r.sampleRate * float64(time.Second))
}

func (r *Renderer) PlayTone(t voice.Tone) voice.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	h := r.next
	key := int32(music.MIDIKey(t.Frequency))
	vel := int32(math.Round(t.Velocity / voice.VelocityCeiling * 127))
	vel = max(1, min(127, vel))
	start := max(r.toFrame(t.Start), r.frame)
	r.keys[h] = key
	r.push(event{frame: start, on: true, handle: h, key: key, vel: vel})
	if !t.Sustain && t.Decay > 0 {
		r.push(event{frame: start + r.toFrame(t.Decay), handle: h, key: key})
	}
	return h
}

func (r *Renderer) StopTone(h voice.Handle, at time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[h]
	if !ok {
		return
	}
	f := max(r.toFrame(at), r.frame)
	pendingOn := false
	r.events = slices.DeleteFunc(r.events, func(e event) bool {
		if e.handle != h {
			return false
		}
		if e.on && e.frame >= f {
			pendingOn = true
			return true
		}
		return !e.on
	})
	if pendingOn {
		delete(r.keys, h)
		return
	}
	r.push(event{frame: f, handle: h, key: key})
}

// Process renders interleaved stereo frames into dst, splitting the render
// at every note event.
func (r *Renderer) Process(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := len(dst) / 2
	if cap(r.left) < frames {
		r.left = make([]float32, frames)
		r.right = make([]float32, frames)
	}
	left, right := r.left[:frames], r.right[:frames]
	pos := 0
	for pos < frames {
		r.fireDue()
		end := frames
		if len(r.events) > 0 {
			if n := int(r.events[0].frame - r.frame); pos+n < end {
				end = pos + n
			}
		}
		r.syn.Render(left[pos:end], right[pos:end])
		r.frame += int64(end - pos)
		pos = end
	}
	for i := 0; i < frames; i++ {
		dst[2*i] = left[i]
		dst[2*i+1] = right[i]
	}
}

func (r *Renderer) fireDue() {
	n := 0
	for n < len(r.events) && r.events[n].frame <= r.frame {
		e := r.events[n]
		if e.on {
			r.syn.NoteOn(r.channel, e.key, e.vel)
		} else {
			r.syn.NoteOff(r.channel, e.key)
			delete(r.keys, e.handle)
		}
		n++
	}
	r.events = r.events[n:]
}

func (r *Renderer) push(e event) {
	i, _ := slices.BinarySearchFunc(r.events, e.frame, func(x event, f int64) int {
		if x.frame <= f {
			return -1
		}
		return 1
	})
	r.events = slices.Insert(r.events, i, e)
}

func (r *Renderer) toFrame(d time.Duration) int64 {
	return int64(math.Round(d.Seconds() * r.sampleRate))
}
