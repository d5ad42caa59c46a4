// Package midiout sends tones to an external MIDI device and records
// sessions as Standard MIDI Files.
package midiout

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/cbegin/keywave/internal/music"
	"github.com/cbegin/keywave/internal/voice"
)

type pending struct {
	at     time.Duration
	on     bool
	handle voice.Handle
	key    uint8
	vel    uint8
}

// Renderer turns tones into note messages. Messages are held until Advance
// reaches their time, so the caller's clock decides when they go out.
type Renderer struct {
	mu      sync.Mutex
	send    func(midi.Message) error
	channel uint8
	next    voice.Handle
	keys    map[voice.Handle]uint8
	queue   []pending
	errs    int
	closer  func() error
}

// New wraps a send function, usually the result of midi.SendTo.
func New(send func(midi.Message) error, channel uint8) *Renderer {
	return &Renderer{
		send:    send,
		channel: channel & 0x0f,
		keys:    make(map[voice.Handle]uint8),
	}
}

// Open connects to the first output port whose name contains portName.
// A driver must be registered by the caller.
func Open(portName string, channel uint8) (*Renderer, error) {
	out, err := midi.FindOutPort(portName)
	if err != nil {
		return nil, fmt.Errorf("midi out %q: %w", portName, err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("midi out %q: %w", portName, err)
	}
	r := New(send, channel)
	r.closer = func() error {
		err := out.Close()
		drivers.Close()
		return err
	}
	return r, nil
}

// Velocity maps an engine velocity to a MIDI velocity in 1..127.
func Velocity(v float64) uint8 {
	n := int(math.Round(v / voice.VelocityCeiling * 127))
	return uint8(max(1, min(127, n)))
}

func (r *Renderer) PlayTone(t voice.Tone) voice.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	h := r.next
	key := uint8(music.MIDIKey(t.Frequency))
	r.keys[h] = key
	r.push(pending{at: t.Start, on: true, handle: h, key: key, vel: Velocity(t.Velocity)})
	if !t.Sustain && t.Decay > 0 {
		r.push(pending{at: t.Start + t.Decay, handle: h, key: key})
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
	pendingOn := false
	r.queue = slices.DeleteFunc(r.queue, func(p pending) bool {
		if p.handle != h {
			return false
		}
		if p.on && p.at >= at {
			pendingOn = true
			return true
		}
		return !p.on
	})
	if pendingOn {
		delete(r.keys, h)
		return
	}
	r.push(pending{at: at, handle: h, key: key})
}

// Advance sends every message due at or before now.
func (r *Renderer) Advance(now time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for n < len(r.queue) && r.queue[n].at <= now {
		p := r.queue[n]
		var msg midi.Message
		if p.on {
			msg = midi.NoteOn(r.channel, p.key, p.vel)
		} else {
			msg = midi.NoteOff(r.channel, p.key)
			delete(r.keys, p.handle)
		}
		if err := r.send(msg); err != nil {
			r.errs++
		}
		n++
	}
	r.queue = r.queue[n:]
}

// Errors reports how many sends have failed.
func (r *Renderer) Errors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs
}

// Close silences every sounding note and releases the port.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, key := range r.keys {
		_ = r.send(midi.NoteOff(r.channel, key))
		delete(r.keys, h)
	}
	r.queue = nil
	if r.closer != nil {
		return r.closer()
	}
	return nil
}

func (r *Renderer) push(p pending) {
	i, _ := slices.BinarySearchFunc(r.queue, p.at, func(x pending, at time.Duration) int {
		if x.at <= at {
			return -1
		}
		return 1
	})
	r.queue = slices.Insert(r.queue, i, p)
}
