package effects

import "math"

// Compressor reduces gain above a threshold. Both channels share one
// envelope so the stereo image does not shift.
type Compressor struct {
	threshold float32
	ratio     float32
	attack    float32
	release   float32
	makeup    float32
	env       float32
}

// NewCompressor returns a compressor. Times are in milliseconds, levels in dB.
func NewCompressor(sampleRate int, thresholdDB, ratio, attackMs, releaseMs, makeupDB float32) *Compressor {
	if ratio < 1 {
		ratio = 1
	}
	return &Compressor{
		threshold: dbToGain(thresholdDB),
		ratio:     ratio,
		attack:    smoothing(sampleRate, attackMs),
		release:   smoothing(sampleRate, releaseMs),
		makeup:    dbToGain(makeupDB),
	}
}

// NewLimiter is a fast, high-ratio compressor that keeps overlapping voices
// out of clipping.
func NewLimiter(sampleRate int) *Compressor {
	return NewCompressor(sampleRate, -3, 20, 0.5, 80, 0)
}

func (c *Compressor) Process(l, r float32) (float32, float32) {
	peak := float32(math.Max(math.Abs(float64(l)), math.Abs(float64(r))))
	coef := c.release
	if peak > c.env {
		coef = c.attack
	}
	c.env += coef * (peak - c.env)
	g := c.gain() * c.makeup
	return l * g, r * g
}

func (c *Compressor) gain() float32 {
	if c.env <= c.threshold {
		return 1
	}
	over := float64(c.env / c.threshold)
	return float32(math.Pow(over, float64(1/c.ratio-1)))
}

func (c *Compressor) Reset() { c.env = 0 }

func dbToGain(db float32) float32 {
	return float32(math.Pow(10, float64(db)/20))
}

func smoothing(sampleRate int, ms float32) float32 {
	frames := float64(ms) * float64(sampleRate) / 1000
	if frames <= 0 {
		return 1
	}
	return float32(1 - math.Exp(-1/frames))
}
