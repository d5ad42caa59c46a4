package keywave

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRenderTextWritesWAV(t *testing.T) {
	opts := DefaultRenderOptions()
	opts.Speed = 4
	r, err := RenderText("hello", opts)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if r.Stats.Dispatched != 5 {
		t.Fatalf("dispatched = %d, want 5", r.Stats.Dispatched)
	}
	// five steps at 37.5ms plus a 1.5s decay
	if d := r.Duration(); d < 1500*time.Millisecond || d > 4*time.Second {
		t.Fatalf("duration = %v", d)
	}

	dir := t.TempDir()
	wavPath := filepath.Join(dir, "hello.wav")
	if err := r.WriteWAV(wavPath); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	data, sr, ch, err := ReadWAV(wavPath)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if sr != 48000 || ch != 2 {
		t.Fatalf("format = %d Hz x %d", sr, ch)
	}
	if len(data) != len(r.Samples) {
		t.Fatalf("decoded %d samples, want %d", len(data), len(r.Samples))
	}
	nonZero := false
	for _, v := range data {
		if v != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatal("decoded audio is silent")
	}

	midPath := filepath.Join(dir, "hello.mid")
	if err := r.WriteMIDI(midPath); err != nil {
		t.Fatalf("write midi: %v", err)
	}
	if fi, err := os.Stat(midPath); err != nil || fi.Size() == 0 {
		t.Fatalf("midi file missing: %v", err)
	}
}

func TestRenderTextRejectsBadRate(t *testing.T) {
	opts := DefaultRenderOptions()
	opts.SampleRate = 0
	if _, err := RenderText("a", opts); err == nil {
		t.Fatal("expected error")
	}
}

func TestRenderTextStopsAtMaxDuration(t *testing.T) {
	opts := DefaultRenderOptions()
	opts.MaxDuration = 100 * time.Millisecond
	r, err := RenderText("a long line of text", opts)
	if err != nil {
		t.Fatal(err)
	}
	if d := r.Duration(); d > 110*time.Millisecond {
		t.Fatalf("duration = %v, want <= max", d)
	}
}
