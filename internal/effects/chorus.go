package effects

import "math"

// Chorus mixes in a copy of the signal read through a slowly swept delay.
// The right channel sweeps in quadrature for width.
type Chorus struct {
	l, r  ring
	base  float32
	depth float32
	step  float64
	phase float64
	wet   float32
}

// NewChorus returns a chorus around delayMs, swept by depthMs at rateHz.
func NewChorus(sampleRate int, delayMs, depthMs, rateHz, wet float32) *Chorus {
	perMs := float32(sampleRate) / 1000
	base, depth := delayMs*perMs, depthMs*perMs
	n := int(base+depth) + 2
	return &Chorus{
		l:     newRing(n),
		r:     newRing(n),
		base:  base,
		depth: depth,
		step:  2 * math.Pi * float64(rateHz) / float64(sampleRate),
		wet:   clamp(wet, 0, 1),
	}
}

func (c *Chorus) Process(l, r float32) (float32, float32) {
	c.l.write(l)
	c.r.write(r)
	sl := float32(math.Sin(c.phase))
	sr := float32(math.Cos(c.phase))
	c.phase += c.step
	if c.phase > 2*math.Pi {
		c.phase -= 2 * math.Pi
	}
	wl := c.l.tap(c.base + sl*c.depth)
	wr := c.r.tap(c.base + sr*c.depth)
	return l*(1-c.wet) + wl*c.wet, r*(1-c.wet) + wr*c.wet
}

func (c *Chorus) Reset() {
	c.l.clear()
	c.r.clear()
	c.phase = 0
}
