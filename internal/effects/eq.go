package effects

// EQ3Band splits the signal at two crossovers and scales each band.
type EQ3Band struct {
	low, mid, high float32
	loAlpha        float32
	hiAlpha        float32
	loL, loR       float32
	hiL, hiR       float32
}

// NewEQ3Band returns an equaliser with unity at gain 1. lowFreq and highFreq
// are the crossover points in Hz.
func NewEQ3Band(sampleRate int, low, mid, high, lowFreq, highFreq float32) *EQ3Band {
	return &EQ3Band{
		low:     low,
		mid:     mid,
		high:    high,
		loAlpha: onePole(sampleRate, lowFreq),
		hiAlpha: onePole(sampleRate, highFreq),
	}
}

func (eq *EQ3Band) Process(l, r float32) (float32, float32) {
	return eq.band(l, &eq.loL, &eq.hiL), eq.band(r, &eq.loR, &eq.hiR)
}

func (eq *EQ3Band) band(x float32, lo, hi *float32) float32 {
	*lo += eq.loAlpha * (x - *lo)
	*hi += eq.hiAlpha * (x - *hi)
	lowBand := *lo
	highBand := x - *hi
	midBand := x - lowBand - highBand
	return lowBand*eq.low + midBand*eq.mid + highBand*eq.high
}

func (eq *EQ3Band) Reset() {
	eq.loL, eq.loR = 0, 0
	eq.hiL, eq.hiR = 0, 0
}
