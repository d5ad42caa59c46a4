package audio

import (
	"encoding/binary"
	"io"
	"math"
	"testing"
)

func TestStreamReaderEncodesFrames(t *testing.T) {
	n := 0
	r := NewStreamReader(SourceFunc(func(dst []float32) {
		for i := range dst {
			dst[i] = float32(n) * 0.25
			n++
		}
	}))
	p := make([]byte, 8*3+5)
	got, err := r.Read(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != 24 {
		t.Fatalf("read %d bytes, want whole frames only (24)", got)
	}
	for i := 0; i < 6; i++ {
		v := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
		if v != float32(i)*0.25 {
			t.Fatalf("sample %d = %v, want %v", i, v, float32(i)*0.25)
		}
	}
	if got, _ := r.Read(make([]byte, 7)); got != 0 {
		t.Fatalf("partial frame read returned %d bytes", got)
	}
}

func TestStreamReaderClose(t *testing.T) {
	r := NewStreamReader(SourceFunc(func([]float32) {}))
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := r.Read(make([]byte, 8)); err != io.EOF {
		t.Fatalf("read after close = %v, want EOF", err)
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	if _, err := Open("alsa", 48000, SourceFunc(func([]float32) {})); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestParseBackend(t *testing.T) {
	for in, want := range map[string]Backend{"ebiten": BackendEbiten, " OTO ": BackendOto, "none": BackendNone} {
		got, err := ParseBackend(in)
		if err != nil || got != want {
			t.Errorf("ParseBackend(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseBackend("alsa"); err == nil {
		t.Error("expected error for unknown backend")
	}
}
