// Package effects holds the stereo insert effects on the synth output bus.
package effects

// Effector processes one stereo frame.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain applies effects in order.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

func (c *Chain) Add(e Effector) {
	c.effects = append(c.effects, e)
}

func (c *Chain) Len() int { return len(c.effects) }

// Config selects the bus effects. A zero mix or gain leaves a stage out; the
// limiter is always last.
type Config struct {
	Drive      float32 `json:"drive,omitempty"`
	Bass       float32 `json:"bass,omitempty"`
	Treble     float32 `json:"treble,omitempty"`
	ChorusMix  float32 `json:"chorus_mix,omitempty"`
	DelayMs    float32 `json:"delay_ms,omitempty"`
	DelayMix   float32 `json:"delay_mix,omitempty"`
	ReverbRoom float32 `json:"reverb_room,omitempty"`
	ReverbMix  float32 `json:"reverb_mix,omitempty"`
}

// DefaultConfig is a small room with no other colouring.
func DefaultConfig() Config {
	return Config{ReverbRoom: 0.5, ReverbMix: 0.18}
}

// Build returns the chain described by c.
func Build(sampleRate int, c Config) *Chain {
	chain := NewChain()
	if c.Drive > 0 {
		chain.Add(NewDistortion(sampleRate, 1+c.Drive, 1/(1+c.Drive*0.5), 6000))
	}
	if c.Bass > 0 || c.Treble > 0 {
		bass, treble := c.Bass, c.Treble
		if bass == 0 {
			bass = 1
		}
		if treble == 0 {
			treble = 1
		}
		chain.Add(NewEQ3Band(sampleRate, bass, 1, treble, 250, 3500))
	}
	if c.ChorusMix > 0 {
		chain.Add(NewChorus(sampleRate, 12, 3, 0.8, c.ChorusMix))
	}
	if c.DelayMix > 0 && c.DelayMs > 0 {
		chain.Add(NewDelay(sampleRate, float64(c.DelayMs), 0.35, 0.3, c.DelayMix))
	}
	if c.ReverbMix > 0 {
		room := c.ReverbRoom
		if room <= 0 {
			room = 0.5
		}
		chain.Add(NewReverb(sampleRate, room, 0.72, c.ReverbMix))
	}
	chain.Add(NewLimiter(sampleRate))
	return chain
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
