package keywave

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	intaudio "github.com/cbegin/keywave/internal/audio"
	intengine "github.com/cbegin/keywave/internal/engine"
	intmidi "github.com/cbegin/keywave/internal/midiout"
	"github.com/cbegin/keywave/internal/music"
	intsynth "github.com/cbegin/keywave/internal/synth"
	"github.com/cbegin/keywave/internal/trigger"
	intvoice "github.com/cbegin/keywave/internal/voice"
)

// TickInterval is how often the wall clock drives renderers that produce no
// audio of their own.
const TickInterval = 2 * time.Millisecond

// NoteEvent carries note and playback events from Watch().
type NoteEvent struct {
	Kind        int // EventNote or EventPlaybackEnded
	Symbol      string
	Note        music.Note
	Origin      trigger.Origin
	SourceIndex int
	Start       time.Duration
	Velocity    float64
}

const (
	EventNote int = iota
	EventPlaybackEnded
)

var ErrNotRecording = errors.New("player is not recording")

type PlayerOption func(*playerConfig)

type playerConfig struct {
	backend     intaudio.Backend
	renderer    intvoice.Renderer
	settings    intengine.Settings
	synthParams intsynth.Params
	logger      *slog.Logger
	record      bool
	sampleTap   func([]float32)
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{
		backend:     intaudio.BackendEbiten,
		settings:    intengine.DefaultSettings(),
		synthParams: intsynth.DefaultParams(),
		logger:      slog.Default(),
	}
}

// WithBackend selects the audio output. BackendNone leaves pulling samples
// through Process to the caller.
func WithBackend(b intaudio.Backend) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.backend = b
	}
}

// WithRenderer replaces the built-in synth. A renderer with a Process method
// is streamed to the audio backend and clocks the engine; any other renderer
// is driven from the wall clock.
func WithRenderer(r intvoice.Renderer) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.renderer = r
	}
}

func WithSettings(s intengine.Settings) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.settings = s
	}
}

func WithSynthParams(p intsynth.Params) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.synthParams = p
	}
}

func WithLogger(l *slog.Logger) PlayerOption {
	return func(cfg *playerConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithRecording keeps every played tone so the session can be saved with
// WriteMIDI.
func WithRecording(enabled bool) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.record = enabled
	}
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTap = tap
	}
}

type sampleRenderer interface {
	intvoice.Renderer
	Process(dst []float32)
	Position() time.Duration
}

type advancer interface {
	Advance(now time.Duration)
}

type Player struct {
	mu         sync.Mutex
	engine     *intengine.Engine
	renderer   intvoice.Renderer
	out        intvoice.Renderer // what the engine plays through
	source     sampleRenderer    // nil when driven by the wall clock
	recorder   *intmidi.Recorder
	sampleRate int
	backend    intaudio.Backend
	sampleTap  func([]float32)
	log        *slog.Logger
	audio      intaudio.Output
	epoch      time.Time
	stopTick   chan struct{}
	tickDone   chan struct{}
	done       chan struct{}
	eventCh    chan NoteEvent
	eventChMu  sync.Mutex
}

// playerSink forwards engine notifications. The engine calls it with p.mu
// held.
type playerSink struct{ p *Player }

func (s playerSink) NoteDispatched(d intengine.Dispatch) {
	s.p.sendEvent(NoteEvent{
		Kind:        EventNote,
		Symbol:      d.Symbol,
		Note:        d.Note,
		Origin:      d.Origin,
		SourceIndex: d.SourceIndex,
		Start:       d.Start,
		Velocity:    d.Velocity,
	})
}

func (s playerSink) PlaybackEnded(at time.Duration) {
	s.p.sendEvent(NoteEvent{Kind: EventPlaybackEnded, Start: at})
	s.p.signalDoneLocked()
}

func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	r := cfg.renderer
	if r == nil {
		r = intsynth.New(sampleRate, cfg.synthParams)
	}
	p := &Player{
		renderer:   r,
		sampleRate: sampleRate,
		backend:    cfg.backend,
		sampleTap:  cfg.sampleTap,
		log:        cfg.logger,
	}
	if src, ok := r.(sampleRenderer); ok {
		p.source = src
	}
	if cfg.record {
		p.recorder = intmidi.NewRecorder(r)
		r = p.recorder
	}
	p.out = r
	engine, err := intengine.New(r,
		intengine.WithSettings(cfg.settings),
		intengine.WithLogger(cfg.logger),
		intengine.WithSink(playerSink{p}),
	)
	if err != nil {
		return nil, err
	}
	p.engine = engine
	return p, nil
}

// Start opens the audio output, or starts the wall clock ticker when the
// renderer makes no sound of its own.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil || p.stopTick != nil {
		return nil
	}
	if p.source == nil {
		p.epoch = time.Now().Add(-p.engine.Now())
		p.stopTick = make(chan struct{})
		p.tickDone = make(chan struct{})
		go p.tick(p.stopTick, p.tickDone)
		return nil
	}
	if p.backend == intaudio.BackendNone {
		return nil
	}
	out, err := intaudio.Open(p.backend, p.sampleRate, intaudio.SourceFunc(p.Process))
	if err != nil {
		return err
	}
	p.audio = out
	p.audio.Play()
	p.log.Info("audio started", "backend", p.backend, "sample_rate", p.sampleRate)
	return nil
}

func (p *Player) tick(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(TickInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			p.mu.Lock()
			now := time.Since(p.epoch)
			p.engine.Advance(now)
			if a, ok := p.out.(advancer); ok {
				a.Advance(now)
			}
			p.mu.Unlock()
		}
	}
}

// Process renders the next block. Deferred notes due inside the block are
// dispatched first so they start on their exact frame.
func (p *Player) Process(dst []float32) {
	if p.source == nil {
		clear(dst)
		return
	}
	p.mu.Lock()
	frames := len(dst) / 2
	end := p.source.Position() + time.Duration(float64(frames)/float64(p.sampleRate)*float64(time.Second))
	p.engine.Advance(end)
	p.mu.Unlock()

	p.source.Process(dst)
	if p.sampleTap != nil {
		p.sampleTap(dst)
	}
}

// now is the engine time for an event arriving from outside.
func (p *Player) now() time.Duration {
	switch {
	case p.source != nil:
		return max(p.source.Position(), p.engine.Now())
	case p.stopTick != nil:
		return time.Since(p.epoch)
	}
	return p.engine.Now()
}

func (p *Player) HandleKey(ev music.KeyEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine.HandleKey(p.now(), ev)
}

// HandleTrigger plays symbol as if it had been typed with mods held.
func (p *Player) HandleTrigger(symbol string, mods music.Modifiers) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine.HandleTrigger(p.now(), symbol, mods, -1)
}

func (p *Player) UpdateSettings(patch intengine.Patch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.UpdateSettings(p.now(), patch)
}

func (p *Player) Settings() intengine.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Settings()
}

// StartPlayback types text at the given speed multiplier. Empty text is
// ignored.
func (p *Player) StartPlayback(text string, speed float64, loop bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.engine.Powered() {
		return intengine.ErrPoweredOff
	}
	if text == "" {
		return nil
	}
	p.signalDoneLocked()
	if !p.engine.StartPlayback(p.now(), text, speed, loop) {
		return nil
	}
	if p.engine.Playing() {
		p.done = make(chan struct{})
	}
	return nil
}

func (p *Player) StopPlayback() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine.StopPlayback(p.now())
	p.signalDoneLocked()
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Playing()
}

// WaitPlayback blocks until the current playback ends or ctx is done.
// Looping playback only ends when stopped.
func (p *Player) WaitPlayback(ctx context.Context) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Player) Panic() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine.Panic(p.now())
	p.signalDoneLocked()
}

func (p *Player) SetPower(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine.SetPower(p.now(), on)
	if !on {
		p.signalDoneLocked()
	}
}

func (p *Player) Powered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Powered()
}

func (p *Player) SetSustain(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine.SetSustain(p.now(), on)
}

func (p *Player) Stats() intengine.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Stats()
}

// Now is the player's current engine time.
func (p *Player) Now() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now()
}

// Watch returns a channel that receives note and playback events.
// The channel is buffered (cap 64); events are dropped while it is full.
// Only the most recent Watch() channel receives events.
func (p *Player) Watch() <-chan NoteEvent {
	ch := make(chan NoteEvent, 64)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

func (p *Player) sendEvent(ev NoteEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

// signalDoneLocked releases WaitPlayback callers. p.mu must be held.
func (p *Player) signalDoneLocked() {
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
}

// SetMasterVolume sets the built-in synth's output gain. Other renderers
// ignore it.
func (p *Player) SetMasterVolume(volume float64) {
	if s, ok := p.renderer.(*intsynth.Synth); ok {
		s.SetMasterGain(max(volume, 0))
	}
}

func (p *Player) MasterVolume() float64 {
	if s, ok := p.renderer.(*intsynth.Synth); ok {
		return s.MasterGain()
	}
	return 0
}

// WriteMIDI saves everything played so far as a Standard MIDI File at the
// current tempo.
func (p *Player) WriteMIDI(path string) error {
	if p.recorder == nil {
		return ErrNotRecording
	}
	p.mu.Lock()
	now := p.now()
	tempo := p.engine.Settings().Tempo
	p.mu.Unlock()
	return p.recorder.WriteFile(path, tempo, now)
}

// Close silences every voice and releases the output and renderer.
func (p *Player) Close() error {
	p.mu.Lock()
	p.engine.Panic(p.now())
	p.signalDoneLocked()
	stop, tickDone, out := p.stopTick, p.tickDone, p.audio
	p.stopTick, p.tickDone, p.audio = nil, nil, nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
		<-tickDone
	}
	var errs []error
	if out != nil {
		errs = append(errs, out.Close())
	}
	if c, ok := p.renderer.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
