package effects

// ring is a fixed-length delay line. read returns the sample written len
// frames ago.
type ring struct {
	buf []float32
	pos int
}

func newRing(n int) ring {
	if n < 1 {
		n = 1
	}
	return ring{buf: make([]float32, n)}
}

func (r *ring) read() float32 { return r.buf[r.pos] }

func (r *ring) write(v float32) {
	r.buf[r.pos] = v
	r.pos++
	if r.pos == len(r.buf) {
		r.pos = 0
	}
}

// tap reads delay frames behind the last written sample, interpolating
// between neighbours.
func (r *ring) tap(delay float32) float32 {
	n := len(r.buf)
	p := float32(r.pos-1) - delay
	for p < 0 {
		p += float32(n)
	}
	i := int(p) % n
	frac := p - float32(int(p))
	j := i + 1
	if j == n {
		j = 0
	}
	return r.buf[i]*(1-frac) + r.buf[j]*frac
}

func (r *ring) clear() {
	clear(r.buf)
	r.pos = 0
}
