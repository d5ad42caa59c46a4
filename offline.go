package keywave

import (
	"errors"
	"os"
	"time"

	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"

	intaudio "github.com/cbegin/keywave/internal/audio"
	intengine "github.com/cbegin/keywave/internal/engine"
	intsynth "github.com/cbegin/keywave/internal/synth"
)

// renderBlock matches a typical audio callback so offline timing is the same
// as live timing.
const renderBlock = 256

// RenderOptions configures RenderText.
type RenderOptions struct {
	SampleRate  int
	Settings    intengine.Settings
	Synth       intsynth.Params
	Speed       float64       // playback speed multiplier, 1 if zero
	Tail        time.Duration // silence kept after the last note fades
	MaxDuration time.Duration // hard stop, 5 minutes if zero
}

// DefaultRenderOptions renders at 48 kHz with default settings.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		SampleRate: 48000,
		Settings:   intengine.DefaultSettings(),
		Synth:      intsynth.DefaultParams(),
		Speed:      1,
		Tail:       250 * time.Millisecond,
	}
}

// Rendering is the result of RenderText.
type Rendering struct {
	Samples    []float32 // interleaved stereo
	SampleRate int
	Stats      intengine.Stats
	player     *Player
}

func (r *Rendering) Duration() time.Duration {
	frames := len(r.Samples) / 2
	return time.Duration(float64(frames) / float64(r.SampleRate) * float64(time.Second))
}

// RenderText types text through the built-in synth without an audio device.
// Rendering stops once playback has ended and every voice has faded.
func RenderText(text string, opts RenderOptions) (*Rendering, error) {
	if opts.SampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 5 * time.Minute
	}
	synth := intsynth.New(opts.SampleRate, opts.Synth)
	p, err := NewPlayer(opts.SampleRate,
		WithBackend(intaudio.BackendNone),
		WithRenderer(synth),
		WithSettings(opts.Settings),
		WithRecording(true),
	)
	if err != nil {
		return nil, err
	}
	if err := p.StartPlayback(text, opts.Speed, false); err != nil {
		return nil, err
	}

	maxFrames := int(opts.MaxDuration.Seconds() * float64(opts.SampleRate))
	tailFrames := int(opts.Tail.Seconds() * float64(opts.SampleRate))
	out := make([]float32, 0, opts.SampleRate*2)
	block := make([]float32, renderBlock*2)
	quiet := 0
	for frames := 0; frames < maxFrames; frames += renderBlock {
		p.Process(block)
		out = append(out, block...)
		if p.idle() && synth.ActiveVoiceCount() == 0 {
			quiet += renderBlock
			if quiet >= tailFrames {
				break
			}
		} else {
			quiet = 0
		}
	}
	return &Rendering{
		Samples:    out,
		SampleRate: opts.SampleRate,
		Stats:      p.Stats(),
		player:     p,
	}, nil
}

func (p *Player) idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Idle()
}

// WriteWAV saves the rendering as 16-bit stereo PCM.
func (r *Rendering) WriteWAV(path string) error {
	return WriteWAV(path, r.Samples, r.SampleRate)
}

// WriteMIDI saves the notes of the rendering as a Standard MIDI File.
func (r *Rendering) WriteMIDI(path string) error {
	return r.player.WriteMIDI(path)
}

// WriteWAV encodes interleaved stereo samples as a 16-bit WAV file.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 2, 1)
	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: 2,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadWAV decodes a WAV file into interleaved float32 samples.
func ReadWAV(path string) ([]float32, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, 0, errors.New("invalid wav file: " + path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, err
	}
	if buf == nil || buf.Format == nil {
		return nil, 0, 0, errors.New("invalid wav buffer: " + path)
	}
	return buf.Data, buf.Format.SampleRate, buf.Format.NumChannels, nil
}
