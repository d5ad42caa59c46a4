// Package keysource turns external key streams into music.KeyEvents.
package keysource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cbegin/keywave/internal/music"
)

// Source delivers key events to handle until ctx ends or the stream closes.
type Source interface {
	Run(ctx context.Context, handle func(music.KeyEvent)) error
}

var ErrUnknownType = errors.New("unknown message type")

// Message is one broadcast from the key capture server.
type Message struct {
	Type      string           `json:"type"`
	Key       string           `json:"key"`
	Modifiers *music.Modifiers `json:"modifiers"`
	Value     *bool            `json:"value"`
	Timestamp int64            `json:"timestamp"`
}

// Decoder tracks held keys and modifiers across messages. Not safe for
// concurrent use.
type Decoder struct {
	mods music.Modifiers
	held map[string]bool
}

func NewDecoder() *Decoder {
	return &Decoder{held: make(map[string]bool)}
}

// Decode parses one JSON message. A keydown for a key that is already held
// is reported as a repeat.
func (d *Decoder) Decode(data []byte) (music.KeyEvent, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return music.KeyEvent{}, fmt.Errorf("decode key message: %w", err)
	}
	return d.Apply(m)
}

func (d *Decoder) Apply(m Message) (music.KeyEvent, error) {
	key := strings.ToLower(m.Key)
	if m.Modifiers != nil {
		d.mods = *m.Modifiers
	}
	switch m.Type {
	case "keydown":
		ev := music.KeyEvent{Kind: music.KeyDown, Symbol: key, Modifiers: d.mods, Repeat: d.held[key]}
		d.held[key] = true
		return ev, nil
	case "keyup":
		delete(d.held, key)
		return music.KeyEvent{Kind: music.KeyUp, Symbol: key, Modifiers: d.mods}, nil
	case "modifier":
		down := m.Value != nil && *m.Value
		if !d.mods.Set(key, down) {
			return music.KeyEvent{}, fmt.Errorf("unknown modifier %q", m.Key)
		}
		return music.KeyEvent{Kind: music.ModifierChange, Symbol: key, Modifiers: d.mods}, nil
	}
	return music.KeyEvent{}, fmt.Errorf("%w %q", ErrUnknownType, m.Type)
}

// Modifiers returns the currently tracked modifier state.
func (d *Decoder) Modifiers() music.Modifiers { return d.mods }
