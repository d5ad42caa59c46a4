package effects

// Delay is a stereo echo whose repeats can bounce between channels.
type Delay struct {
	l, r     ring
	feedback float32
	cross    float32
	wet      float32
}

// NewDelay returns a delay of delayMs with feedback (0..0.95), cross-channel
// feedback share (0..1) and wet mix.
func NewDelay(sampleRate int, delayMs float64, feedback, cross, wet float32) *Delay {
	n := int(delayMs * float64(sampleRate) / 1000)
	return &Delay{
		l:        newRing(n),
		r:        newRing(n),
		feedback: clamp(feedback, 0, 0.95),
		cross:    clamp(cross, 0, 1),
		wet:      clamp(wet, 0, 1),
	}
}

func (d *Delay) Process(l, r float32) (float32, float32) {
	dl, dr := d.l.read(), d.r.read()
	straight, swapped := d.feedback*(1-d.cross), d.feedback*d.cross
	d.l.write(l + dl*straight + dr*swapped)
	d.r.write(r + dr*straight + dl*swapped)
	return l*(1-d.wet) + dl*d.wet, r*(1-d.wet) + dr*d.wet
}

func (d *Delay) Reset() {
	d.l.clear()
	d.r.clear()
}
