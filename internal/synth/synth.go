// Package synth is the built-in wavetable renderer. It plays tones with an
// exponential decay, fades stopped tones out and runs the mix through the
// effects bus.
package synth

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	approx "github.com/cwbudde/algo-approx"

	"github.com/cbegin/keywave/internal/effects"
	"github.com/cbegin/keywave/internal/lfo"
	intvoice "github.com/cbegin/keywave/internal/voice"
)

const (
	twoPi     = math.Pi * 2
	tableSize = 2048
	maxVoices = 32

	// decayK brings the envelope to -60 dB at the end of the decay time.
	decayK = 6.907755
	// silence ends a voice early once its envelope is inaudible.
	silence = 1e-4
)

// Params configures the synth.
type Params struct {
	Polyphony    int            `json:"polyphony,omitempty"`
	AttackSec    float64        `json:"attack_sec,omitempty"`
	FadeSec      float64        `json:"fade_sec,omitempty"`
	MasterGain   float64        `json:"master_gain,omitempty"`
	VibratoDepth float64        `json:"vibrato_depth,omitempty"` // semitones
	VibratoRate  float64        `json:"vibrato_rate,omitempty"`  // Hz
	LPFCutoff    float64        `json:"lpf_cutoff,omitempty"`    // Hz, 0 disables
	FX           effects.Config `json:"fx"`
}

func DefaultParams() Params {
	return Params{
		Polyphony:   24,
		AttackSec:   0.005,
		FadeSec:     intvoice.FadeOut.Seconds(),
		MasterGain:  0.5,
		VibratoRate: 5,
		LPFCutoff:   9000,
		FX:          effects.DefaultConfig(),
	}
}

// wave shapes and their loudness trims
var waveIndex = map[intvoice.Waveform]int{
	intvoice.Sine:     0,
	intvoice.Square:   1,
	intvoice.Sawtooth: 2,
	intvoice.Triangle: 3,
}

var waveTrim = [4]float64{1, 0.45, 0.55, 0.9}

type voice struct {
	active   bool
	handle   intvoice.Handle
	start    int64 // absolute frame the tone begins
	stop     int64 // absolute frame the fade begins, -1 if none
	age      int64
	freq     float64
	phase    float64
	table    int
	velocity float64
	decay    float64 // frames, 0 = sustain
	env      float64
	fade     float64
}

// Synth renders tones into interleaved stereo float32. PlayTone and StopTone
// may be called from any goroutine; Process runs on the audio goroutine.
type Synth struct {
	mu         sync.Mutex
	sampleRate float64
	params     Params
	voices     []voice
	tables     [4][]float64
	frame      int64
	nextHandle intvoice.Handle
	masterGain uint64
	attack     float64 // frames
	fadeStep   float64
	lpfAlpha   float64
	lpfState   float64
	vibrato    lfo.LFO
	fx         *effects.Chain
}

// New returns a synth at sampleRate.
func New(sampleRate int, params Params) *Synth {
	if params.Polyphony <= 0 || params.Polyphony > maxVoices {
		params.Polyphony = maxVoices
	}
	if params.FadeSec <= 0 {
		params.FadeSec = intvoice.FadeOut.Seconds()
	}
	sr := float64(sampleRate)
	s := &Synth{
		sampleRate: sr,
		params:     params,
		voices:     make([]voice, params.Polyphony),
		masterGain: math.Float64bits(params.MasterGain),
		attack:     math.Max(1, params.AttackSec*sr),
		fadeStep:   1 / math.Max(1, params.FadeSec*sr),
		fx:         effects.Build(sampleRate, params.FX),
	}
	if params.LPFCutoff > 0 && params.LPFCutoff < sr/2 {
		rc := 1 / (twoPi * params.LPFCutoff)
		dt := 1 / sr
		s.lpfAlpha = dt / (rc + dt)
	}
	s.vibrato.Set(params.VibratoDepth, params.VibratoRate, lfo.Sine)
	for i := range s.tables {
		s.tables[i] = buildTable(i)
	}
	return s
}

func buildTable(shape int) []float64 {
	t := make([]float64, tableSize)
	for i := range t {
		p := float64(i) / tableSize
		switch shape {
		case 1:
			if p < 0.5 {
				t[i] = 1
			} else {
				t[i] = -1
			}
		case 2:
			t[i] = 2*p - 1
		case 3:
			t[i] = 1 - 4*math.Abs(p-0.5)
		default:
			t[i] = math.Sin(twoPi * p)
		}
	}
	return t
}

func (s *Synth) SampleRate() int { return int(s.sampleRate) }

// Position is the time of the next frame to be rendered.
func (s *Synth) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameTime(s.frame)
}

// PlayTone starts a tone at t.Start. Starts in the past begin with the next
// rendered frame.
func (s *Synth) PlayTone(t intvoice.Tone) intvoice.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandle++
	slot := s.stealVoice()
	table, ok := waveIndex[t.Waveform]
	if !ok {
		table = 0
	}
	decay := 0.0
	if !t.Sustain && t.Decay > 0 {
		decay = t.Decay.Seconds() * s.sampleRate
	}
	s.voices[slot] = voice{
		active:   true,
		handle:   s.nextHandle,
		start:    max(s.toFrame(t.Start), s.frame),
		stop:     -1,
		freq:     t.Frequency,
		table:    table,
		velocity: t.Velocity,
		decay:    decay,
		fade:     1,
	}
	return s.nextHandle
}

// StopTone fades the tone out from at. Unknown or finished handles are
// ignored.
func (s *Synth) StopTone(h intvoice.Handle, at time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.voices {
		v := &s.voices[i]
		if !v.active || v.handle != h {
			continue
		}
		f := max(s.toFrame(at), s.frame)
		if f <= v.start {
			// never sounded
			v.active = false
			return
		}
		if v.stop < 0 || f < v.stop {
			v.stop = f
		}
		return
	}
}

// Process renders interleaved stereo frames into dst.
func (s *Synth) Process(dst []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i+1 < len(dst); i += 2 {
		dst[i], dst[i+1] = s.renderFrame()
	}
}

// ActiveVoiceCount counts tones that are sounding or scheduled.
func (s *Synth) ActiveVoiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.voices {
		if s.voices[i].active {
			n++
		}
	}
	return n
}

func (s *Synth) SetMasterGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	atomic.StoreUint64(&s.masterGain, math.Float64bits(gain))
}

func (s *Synth) MasterGain() float64 {
	return math.Float64frombits(atomic.LoadUint64(&s.masterGain))
}

func (s *Synth) renderFrame() (float32, float32) {
	freqMul := 1.0
	if m := s.vibrato.Sample(s.sampleRate); m != 0 {
		freqMul = math.Pow(2, m/12)
	}
	gain := s.MasterGain()

	var mix float64
	for i := range s.voices {
		v := &s.voices[i]
		if !v.active || s.frame < v.start {
			continue
		}
		env := s.advanceEnv(v)
		if !v.active {
			continue
		}
		table := s.tables[v.table]
		idx := int(v.phase)
		frac := v.phase - float64(idx)
		sig := table[idx]*(1-frac) + table[(idx+1)%tableSize]*frac
		mix += sig * env * v.velocity * waveTrim[v.table]

		v.phase += v.freq * freqMul * tableSize / s.sampleRate
		for v.phase >= tableSize {
			v.phase -= tableSize
		}
	}
	s.frame++

	mix *= gain
	if s.lpfAlpha > 0 {
		s.lpfState += s.lpfAlpha * (mix - s.lpfState)
		mix = s.lpfState
	}
	l, r := s.fx.Process(float32(mix), float32(mix))
	return clamp(l), clamp(r)
}

func (s *Synth) advanceEnv(v *voice) float64 {
	env := 1.0
	if float64(v.age) < s.attack {
		env = float64(v.age) / s.attack
	}
	if v.decay > 0 {
		if float64(v.age) >= v.decay {
			v.active = false
			return 0
		}
		env *= float64(approx.FastExp(float32(-decayK * float64(v.age) / v.decay)))
	}
	if v.stop >= 0 && s.frame >= v.stop {
		v.fade -= s.fadeStep
		if v.fade <= 0 {
			v.active = false
			return 0
		}
		env *= v.fade
	}
	v.age++
	v.env = env
	if v.decay > 0 && float64(v.age) > s.attack && env < silence {
		v.active = false
	}
	return env
}

// stealVoice returns a free slot, or the quietest voice when all are busy.
func (s *Synth) stealVoice() int {
	for i := range s.voices {
		if !s.voices[i].active {
			return i
		}
	}
	quiet := 0
	for i := 1; i < len(s.voices); i++ {
		if s.voices[i].env < s.voices[quiet].env {
			quiet = i
		}
	}
	return quiet
}

func (s *Synth) toFrame(d time.Duration) int64 {
	return int64(math.Round(d.Seconds() * s.sampleRate))
}

func (s *Synth) frameTime(f int64) time.Duration {
	return time.Duration(float64(f) / s.sampleRate * float64(time.Second))
}

func clamp(v float32) float32 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
