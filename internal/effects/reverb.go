package effects

// Reverb is a Schroeder reverb: four parallel combs into two allpasses.
type Reverb struct {
	combs   [4]ring
	allpass [2]ring
	fb      float32
	wet     float32
}

// Comb lengths relative to the base length, chosen to avoid common factors.
var (
	combRatios    = [4]int{1000, 1117, 1271, 1437}
	allpassRatios = [2]int{347, 213}
)

// NewReverb returns a reverb. room (0..1) scales the delay lengths, feedback
// (0..0.95) sets the tail, wet is the mix.
func NewReverb(sampleRate int, room, feedback, wet float32) *Reverb {
	base := int(float32(sampleRate) * clamp(room, 0, 1) * 0.05)
	if base < 10 {
		base = 10
	}
	r := &Reverb{fb: clamp(feedback, 0, 0.95), wet: clamp(wet, 0, 1)}
	for i, ratio := range combRatios {
		r.combs[i] = newRing(base * ratio / 1000)
	}
	for i, ratio := range allpassRatios {
		r.allpass[i] = newRing(base * ratio / 1000)
	}
	return r
}

func (r *Reverb) Process(l, rt float32) (float32, float32) {
	in := (l + rt) * 0.5
	var out float32
	for i := range r.combs {
		c := &r.combs[i]
		y := c.read()
		c.write(in + y*r.fb)
		out += y
	}
	out *= 0.25
	for i := range r.allpass {
		a := &r.allpass[i]
		y := a.read()
		a.write(out + y*0.5)
		out = y - out
	}
	return l*(1-r.wet) + out*r.wet, rt*(1-r.wet) + out*r.wet
}

func (r *Reverb) Reset() {
	for i := range r.combs {
		r.combs[i].clear()
	}
	for i := range r.allpass {
		r.allpass[i].clear()
	}
}
