// Package audio streams rendered samples to the sound card.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
)

// SampleSource fills dst with interleaved stereo float32 frames.
type SampleSource interface {
	Process(dst []float32)
}

// SourceFunc adapts a function to SampleSource.
type SourceFunc func(dst []float32)

func (f SourceFunc) Process(dst []float32) { f(dst) }

// StreamReader turns a SampleSource into an io.Reader of little-endian
// float32 stereo frames (8 bytes per frame).
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
	closed bool
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, io.EOF
	}
	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i, v := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	return frames * 8, nil
}

// Close makes further reads return io.EOF.
func (r *StreamReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Backend names an audio output library.
type Backend string

const (
	BackendEbiten Backend = "ebiten"
	BackendOto    Backend = "oto"
	// BackendNone renders nothing to a device; the caller drives the clock.
	BackendNone Backend = "none"
)

func (b Backend) String() string { return string(b) }

// ParseBackend accepts the backend names used on the command line.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendEbiten, BackendOto, BackendNone:
		return b, nil
	}
	return "", fmt.Errorf("unknown audio backend %q", s)
}

// Output is a running audio stream.
type Output interface {
	Play()
	Pause()
	Close() error
}

// Open starts streaming source through backend at sampleRate. The stream is
// paused until Play is called.
func Open(backend Backend, sampleRate int, source SampleSource) (Output, error) {
	switch backend {
	case BackendEbiten, "":
		return NewEbitenPlayer(sampleRate, source)
	case BackendOto:
		return NewOtoPlayer(sampleRate, source)
	default:
		return nil, fmt.Errorf("unknown audio backend %q", backend)
	}
}
