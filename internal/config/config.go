// Package config loads and saves keywave settings files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cbegin/keywave/internal/audio"
	"github.com/cbegin/keywave/internal/engine"
	"github.com/cbegin/keywave/internal/synth"
)

// File is the JSON schema of a settings file. Engine settings sit at the top
// level; any of them may be omitted.
type File struct {
	engine.Patch
	Backend   string        `json:"backend,omitempty"`
	SoundFont string        `json:"soundfont,omitempty"`
	Program   *int          `json:"program,omitempty"`
	MIDIPort  string        `json:"midi_port,omitempty"`
	Synth     *synth.Params `json:"synth,omitempty"`
}

// Config is a fully resolved settings file.
type Config struct {
	Settings  engine.Settings
	Backend   audio.Backend
	SoundFont string
	Program   int
	MIDIPort  string
	Synth     synth.Params
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Settings: engine.DefaultSettings(),
		Backend:  audio.BackendEbiten,
		Synth:    synth.DefaultParams(),
	}
}

// Load reads path and applies it on top of Default. A relative soundfont
// path is resolved against the file's directory.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	f := File{Synth: ptr(synth.DefaultParams())}
	if err := json.Unmarshal(b, &f); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	c := Default()
	if err := Apply(&c, &f); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if c.SoundFont != "" && !filepath.IsAbs(c.SoundFont) {
		c.SoundFont = filepath.Clean(filepath.Join(filepath.Dir(path), c.SoundFont))
	}
	return c, nil
}

// Apply applies a parsed file onto dst.
func Apply(dst *Config, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination config")
	}
	if f == nil {
		return nil
	}
	s, err := f.Patch.Apply(dst.Settings)
	if err != nil {
		return err
	}
	dst.Settings = s

	if f.Backend != "" {
		b, err := audio.ParseBackend(f.Backend)
		if err != nil {
			return err
		}
		dst.Backend = b
	}
	if f.SoundFont != "" {
		dst.SoundFont = strings.TrimSpace(f.SoundFont)
	}
	if f.Program != nil {
		if *f.Program < 0 || *f.Program > 127 {
			return fmt.Errorf("program must be in 0..127")
		}
		dst.Program = *f.Program
	}
	if f.MIDIPort != "" {
		dst.MIDIPort = f.MIDIPort
	}
	if f.Synth != nil {
		if err := validateSynth(f.Synth); err != nil {
			return err
		}
		dst.Synth = *f.Synth
	}
	return nil
}

func validateSynth(p *synth.Params) error {
	if p.Polyphony < 0 {
		return fmt.Errorf("synth.polyphony must be >= 0")
	}
	if p.AttackSec < 0 || p.FadeSec < 0 {
		return fmt.Errorf("synth envelope times must be >= 0")
	}
	if p.MasterGain < 0 || p.MasterGain > 2 {
		return fmt.Errorf("synth.master_gain must be in [0, 2]")
	}
	if p.LPFCutoff < 0 {
		return fmt.Errorf("synth.lpf_cutoff must be >= 0")
	}
	fx := p.FX
	for name, v := range map[string]float32{
		"chorus_mix":  fx.ChorusMix,
		"delay_mix":   fx.DelayMix,
		"reverb_mix":  fx.ReverbMix,
		"reverb_room": fx.ReverbRoom,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("synth.fx.%s must be in [0, 1]", name)
		}
	}
	return nil
}

// Save writes c as a complete settings file.
func Save(path string, c Config) error {
	f := File{
		Patch:     engine.PatchFrom(c.Settings),
		Backend:   c.Backend.String(),
		SoundFont: c.SoundFont,
		Program:   &c.Program,
		MIDIPort:  c.MIDIPort,
		Synth:     &c.Synth,
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func ptr[T any](v T) *T { return &v }
