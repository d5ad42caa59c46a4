// Package engine connects the pitch mapper, trigger expander, quantizer,
// voice pool and playback sequencer into one keystroke-to-sound pipeline.
//
// The engine is single threaded: callers serialise access and supply the
// current time to every call. Deferred work lives in a sequencer.Queue that
// Advance drains.
package engine

import (
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/cbegin/keywave/internal/music"
	"github.com/cbegin/keywave/internal/quantize"
	"github.com/cbegin/keywave/internal/sequencer"
	"github.com/cbegin/keywave/internal/trigger"
	"github.com/cbegin/keywave/internal/voice"
)

// AccentGain scales velocity while ctrl is held.
const AccentGain = 1.25

// ErrPoweredOff is returned by operations refused while the engine is off.
var ErrPoweredOff = errors.New("engine is powered off")

// Dispatch describes one note handed to the renderer.
type Dispatch struct {
	Symbol      string
	Note        music.Note
	Origin      trigger.Origin
	SourceIndex int // -1 for live input
	Start       time.Duration
	Velocity    float64
}

// Sink observes the engine. It must not call back into the engine.
type Sink interface {
	NoteDispatched(d Dispatch)
	PlaybackEnded(at time.Duration)
}

// Context is the engine state every pipeline stage reads.
type Context struct {
	Settings  Settings
	Modifiers music.Modifiers
	Powered   bool
}

type Stats struct {
	Triggers   int
	Dispatched int
	Ignored    int
	SnapDrops  int
	Overflows  int
	Evictions  int
	Voices     int
	Buffered   int
	Pending    int
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

func WithSettings(s Settings) Option {
	return func(e *Engine) { e.ctx.Settings = s }
}

// WithRand seeds the random arpeggio pattern.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

type Engine struct {
	ctx      Context
	scale    music.Scale
	pool     *voice.Pool
	quant    *quantize.Quantizer
	queue    *sequencer.Queue
	playback *sequencer.Playback
	sink     Sink
	log      *slog.Logger
	rng      *rand.Rand
	now      time.Duration
	stats    Stats
	noisy    rate.Sometimes
}

// New returns a powered engine that plays through r.
func New(r voice.Renderer, opts ...Option) (*Engine, error) {
	if r == nil {
		return nil, errors.New("engine: nil renderer")
	}
	e := &Engine{
		ctx:   Context{Settings: DefaultSettings(), Powered: true},
		pool:  voice.NewPool(r, voice.MaxVoices),
		quant: quantize.New(),
		queue: sequencer.NewQueue(),
		log:   slog.Default(),
		noisy: rate.Sometimes{First: 5, Interval: time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.ctx.Settings.Validate(); err != nil {
		return nil, err
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	e.scale, _ = music.LookupScale(e.ctx.Settings.Scale)
	e.playback = sequencer.NewPlayback(e.queue, e.feed, e.playbackEnded)
	e.arm()
	return e, nil
}

// Now is the latest time the engine was advanced to.
func (e *Engine) Now() time.Duration { return e.now }

func (e *Engine) Context() Context { return e.ctx }

func (e *Engine) Settings() Settings { return e.ctx.Settings }

// Advance moves the engine clock to now and runs every deferred dispatch due
// by then. Time never moves backwards.
func (e *Engine) Advance(now time.Duration) {
	if now > e.now {
		e.now = now
	}
	e.queue.RunDue(e.now)
	e.pool.Prune(e.now)
}

// HandleKey processes one key source event. Repeats are ignored.
func (e *Engine) HandleKey(now time.Duration, ev music.KeyEvent) {
	e.Advance(now)
	switch ev.Kind {
	case music.ModifierChange:
		e.setModifiers(ev.Modifiers)
	case music.KeyDown:
		e.setModifiers(ev.Modifiers)
		if ev.Repeat {
			e.stats.Ignored++
			return
		}
		e.trigger(e.now, ev.Symbol, ev.Modifiers, -1, false)
	}
}

// HandleTrigger runs symbol through the pipeline with the given modifiers.
// sourceIndex is reported back to the sink; pass -1 for live input.
func (e *Engine) HandleTrigger(now time.Duration, symbol string, mods music.Modifiers, sourceIndex int) {
	e.Advance(now)
	e.trigger(e.now, symbol, mods, sourceIndex, false)
}

// UpdateSettings applies a partial settings change. Changing quantize, its
// mode, the tempo or the grid re-arms the quantizer.
func (e *Engine) UpdateSettings(now time.Duration, p Patch) error {
	e.Advance(now)
	next, err := p.Apply(e.ctx.Settings)
	if err != nil {
		return err
	}
	e.apply(next)
	return nil
}

// StartPlayback feeds text through the pipeline one character per step.
// It reports false for empty text or while powered off.
func (e *Engine) StartPlayback(now time.Duration, text string, speed float64, loop bool) bool {
	e.Advance(now)
	if !e.ctx.Powered || text == "" {
		return false
	}
	e.stopPlayback()
	return e.playback.Start(e.now, text, speed, loop)
}

// StopPlayback cancels playback and every note it still has pending.
func (e *Engine) StopPlayback(now time.Duration) {
	e.Advance(now)
	e.stopPlayback()
}

func (e *Engine) Playing() bool { return e.playback.State() == sequencer.Playing }

func (e *Engine) PlaybackCursor() int { return e.playback.Cursor() }

// Panic silences everything: pending dispatches, playback, the buffer and
// every voice. The quantizer is re-armed as on a cold start.
func (e *Engine) Panic(now time.Duration) {
	e.Advance(now)
	e.stopAll()
}

// SetPower turns the engine on or off. Switching off panics and every
// trigger is ignored until it is switched back on.
func (e *Engine) SetPower(now time.Duration, on bool) {
	e.Advance(now)
	if e.ctx.Powered == on {
		return
	}
	if !on {
		e.stopAll()
	}
	e.ctx.Powered = on
	e.log.Debug("power", "on", on)
}

func (e *Engine) Powered() bool { return e.ctx.Powered }

// SetSustain sets the sustain pedal independently of caps lock.
func (e *Engine) SetSustain(now time.Duration, on bool) {
	e.Advance(now)
	e.pool.SetSustain(on, e.now)
}

func (e *Engine) Stats() Stats {
	st := e.stats
	st.Evictions = e.pool.Evictions()
	st.Voices = e.pool.Len()
	st.Buffered = e.quant.Len()
	st.Pending = e.queue.Len()
	return st
}

// Idle reports whether no playback, buffered trigger or deferred note is
// left. The buffer-mode tick does not count.
func (e *Engine) Idle() bool {
	if e.Playing() || e.quant.Len() > 0 {
		return false
	}
	pending := e.queue.Len()
	if s := e.ctx.Settings; s.Quantize && s.QuantizeMode == quantize.ModeBuffer {
		pending--
	}
	return pending <= 0
}

func (e *Engine) setModifiers(m music.Modifiers) {
	e.ctx.Modifiers = m
	e.pool.SetSustain(m.CapsLock, e.now)
}

func (e *Engine) trigger(at time.Duration, symbol string, mods music.Modifiers, sourceIndex int, fromPlayback bool) {
	if e.control(symbol) {
		return
	}
	if !e.ctx.Powered || mods.Cmd {
		e.stats.Ignored++
		return
	}
	if music.IsRest(symbol) {
		return
	}
	e.stats.Triggers++
	s := e.ctx.Settings
	velocity := s.Velocity
	if mods.Ctrl {
		velocity *= AccentGain
	}
	mode := s.triggerMode()
	mode.Rand = e.rng

	entry := quantize.Entry{Symbol: symbol, SourceIndex: sourceIndex, Playback: fromPlayback}
	octave := s.Octave()
	if mods.Shift {
		octave++
	}
	if evs, ok := trigger.ExpandChord(symbol, octave, velocity, mode); ok {
		entry.Note, entry.Events = evs[0].Note, evs
	} else {
		m := music.Mapper{BaseOctave: s.Octave()}
		entry.Note = m.Map(symbol, e.scale, mods, s.Layout)
		entry.Events = trigger.Expand(entry.Note, velocity, mode)
	}
	e.schedule(at, entry)
}

func (e *Engine) schedule(at time.Duration, entry quantize.Entry) {
	s := e.ctx.Settings
	if !s.Quantize {
		e.release(at, entry)
		return
	}
	switch s.QuantizeMode {
	case quantize.ModeSnap:
		start, ok := e.quant.Snap(at)
		if !ok {
			e.stats.SnapDrops++
			e.noisy.Do(func() { e.log.Debug("snap drop", "symbol", entry.Symbol, "cell", e.quant.CellIndex(at)) })
			return
		}
		e.release(start, entry)
	case quantize.ModeBuffer:
		if dropped, overflow := e.quant.Enqueue(entry); overflow {
			e.stats.Overflows++
			e.noisy.Do(func() { e.log.Debug("buffer overflow", "dropped", dropped.Symbol) })
		}
	}
}

// release dispatches the entry's events relative to anchor, deferring the
// ones that start later than now.
func (e *Engine) release(anchor time.Duration, entry quantize.Entry) {
	tag := sequencer.TagLive
	if entry.Playback {
		tag = sequencer.TagPlayback
	}
	if e.ctx.Settings.Quantize {
		tag |= sequencer.TagQuantize
	}
	for _, ev := range entry.Events {
		at := anchor + ev.Delay
		if at <= e.now {
			e.dispatch(at, entry, ev)
			continue
		}
		e.queue.Schedule(at, tag, func(at time.Duration) { e.dispatch(at, entry, ev) })
	}
}

func (e *Engine) dispatch(at time.Duration, entry quantize.Entry, ev trigger.Event) {
	if !e.ctx.Powered {
		return
	}
	s := e.ctx.Settings
	evicted := e.pool.Evictions()
	e.pool.Dispatch(ev.Note, at, voice.Options{Velocity: ev.Velocity, Waveform: s.Wave, Decay: s.Decay})
	e.stats.Dispatched++
	if e.pool.Evictions() != evicted {
		e.noisy.Do(func() { e.log.Debug("voice evicted", "note", ev.Note.String()) })
	}
	if e.sink != nil {
		e.sink.NoteDispatched(Dispatch{
			Symbol:      entry.Symbol,
			Note:        ev.Note,
			Origin:      ev.Origin,
			SourceIndex: entry.SourceIndex,
			Start:       at,
			Velocity:    voice.ClampVelocity(ev.Velocity),
		})
	}
}

func (e *Engine) feed(at time.Duration, symbol string, index int) {
	e.trigger(at, symbol, music.Modifiers{}, index, true)
}

func (e *Engine) playbackEnded(at time.Duration) {
	if e.sink != nil {
		e.sink.PlaybackEnded(at)
	}
}

func (e *Engine) stopPlayback() {
	e.playback.Stop()
	e.queue.CancelTag(sequencer.TagPlayback)
	e.quant.Purge(func(en quantize.Entry) bool { return en.Playback })
}

func (e *Engine) stopAll() {
	e.playback.Stop()
	e.queue.CancelTag(sequencer.TagAll)
	e.pool.StopAll(e.now)
	e.arm()
}

func (e *Engine) apply(next Settings) {
	old := e.ctx.Settings
	e.ctx.Settings = next
	e.scale, _ = music.LookupScale(next.Scale)
	if rearms(old, next) {
		e.arm()
	}
	e.log.Debug("settings", "scale", next.Scale, "octave", next.Octave(), "quantize", next.Quantize,
		"mode", next.QuantizeMode.String(), "tempo", next.Tempo, "grid", next.Grid.String(),
		"arp", next.Arpeggiator, "pattern", next.ArpPattern.String(), "layout", next.Layout.String())
}

// arm drops all quantize state and, when quantize is on, starts a new grid
// at the current time.
func (e *Engine) arm() {
	e.queue.CancelTag(sequencer.TagQuantize)
	e.quant.Reset()
	s := e.ctx.Settings
	if !s.Quantize {
		return
	}
	e.quant.Arm(e.now, s.QuantizeMode, s.Grid, s.Tempo)
	if s.QuantizeMode == quantize.ModeBuffer {
		e.queue.Schedule(e.now, sequencer.TagQuantize, e.bufferTick)
	}
}

func (e *Engine) bufferTick(at time.Duration) {
	if entry, ok := e.quant.Tick(at); ok {
		e.release(at, entry)
	}
	e.queue.Schedule(at+quantize.TickInterval, sequencer.TagQuantize, e.bufferTick)
}
