package effects

import "math"

// Distortion is tanh soft clipping followed by a one-pole lowpass that tames
// the added harmonics.
type Distortion struct {
	pre, post float32
	alpha     float32
	zl, zr    float32
}

// NewDistortion returns a distortion with input gain pre, output gain post
// and a lowpass at cutoff Hz (0 disables it).
func NewDistortion(sampleRate int, pre, post, cutoff float32) *Distortion {
	return &Distortion{pre: pre, post: post, alpha: onePole(sampleRate, cutoff)}
}

func (d *Distortion) Process(l, r float32) (float32, float32) {
	l = float32(math.Tanh(float64(l*d.pre))) * d.post
	r = float32(math.Tanh(float64(r*d.pre))) * d.post
	if d.alpha == 0 {
		return l, r
	}
	d.zl += d.alpha * (l - d.zl)
	d.zr += d.alpha * (r - d.zr)
	return d.zl, d.zr
}

func (d *Distortion) Reset() { d.zl, d.zr = 0, 0 }

// onePole returns the smoothing coefficient of an RC lowpass at cutoff.
func onePole(sampleRate int, cutoff float32) float32 {
	if cutoff <= 0 || cutoff >= float32(sampleRate)/2 {
		return 0
	}
	rc := 1 / (2 * math.Pi * float64(cutoff))
	dt := 1 / float64(sampleRate)
	return float32(dt / (rc + dt))
}
