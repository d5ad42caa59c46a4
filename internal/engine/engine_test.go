package engine

import (
	"io"
	"log/slog"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/cbegin/keywave/internal/music"
	"github.com/cbegin/keywave/internal/quantize"
	"github.com/cbegin/keywave/internal/voice"
)

const ms = time.Millisecond

type fakeRenderer struct {
	next  voice.Handle
	tones []voice.Tone
	stops []voice.Handle
}

func (r *fakeRenderer) PlayTone(t voice.Tone) voice.Handle {
	r.next++
	r.tones = append(r.tones, t)
	return r.next
}

func (r *fakeRenderer) StopTone(h voice.Handle, _ time.Duration) {
	r.stops = append(r.stops, h)
}

func (r *fakeRenderer) starts() []time.Duration {
	out := make([]time.Duration, len(r.tones))
	for i, t := range r.tones {
		out[i] = t.Start
	}
	return out
}

type fakeSink struct {
	notes []Dispatch
	ended int
}

func (s *fakeSink) NoteDispatched(d Dispatch)   { s.notes = append(s.notes, d) }
func (s *fakeSink) PlaybackEnded(time.Duration) { s.ended++ }

func ptr[T any](v T) *T { return &v }

func newTestEngine(t *testing.T, p Patch) (*Engine, *fakeRenderer, *fakeSink) {
	t.Helper()
	r := &fakeRenderer{}
	sink := &fakeSink{}
	e, err := New(r,
		WithSink(sink),
		WithRand(rand.New(rand.NewSource(1))),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := e.UpdateSettings(0, p); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	return e, r, sink
}

func runUntil(e *Engine, end time.Duration) {
	for now := e.Now(); now <= end; now += ms {
		e.Advance(now)
	}
}

func TestImmediateDispatch(t *testing.T) {
	e, r, sink := newTestEngine(t, Patch{})
	e.HandleTrigger(0, "e", music.Modifiers{}, -1)
	if len(r.tones) != 1 {
		t.Fatalf("tones = %d, want 1", len(r.tones))
	}
	tone := r.tones[0]
	if tone.Start != 0 || tone.Frequency != music.C4 || tone.Waveform != voice.Sine {
		t.Fatalf("tone = %+v", tone)
	}
	if tone.Decay != DefaultSettings().Decay || tone.Sustain {
		t.Fatalf("tone envelope = %+v", tone)
	}
	if len(sink.notes) != 1 || sink.notes[0].Symbol != "e" || sink.notes[0].SourceIndex != -1 {
		t.Fatalf("sink = %+v", sink.notes)
	}
}

func TestSnapQuantizeScenario(t *testing.T) {
	e, r, _ := newTestEngine(t, Patch{
		Quantize:     ptr(true),
		QuantizeMode: ptr(quantize.ModeSnap),
		Tempo:        ptr(120.0),
		Grid:         ptr(quantize.GridEighth),
	})
	e.HandleTrigger(100*ms, "e", music.Modifiers{}, -1)
	if len(r.tones) != 0 {
		t.Fatalf("snapped note dispatched early")
	}
	e.HandleTrigger(150*ms, "t", music.Modifiers{}, -1)
	e.Advance(250 * ms)
	if got := r.starts(); !reflect.DeepEqual(got, []time.Duration{250 * ms}) {
		t.Fatalf("starts = %v, want [250ms]", got)
	}
	if st := e.Stats(); st.SnapDrops != 1 {
		t.Fatalf("snap drops = %d, want 1", st.SnapDrops)
	}
}

func TestSnapBoundaryAfterSnappedTrigger(t *testing.T) {
	e, r, _ := newTestEngine(t, Patch{
		Quantize:     ptr(true),
		QuantizeMode: ptr(quantize.ModeSnap),
		Tempo:        ptr(120.0),
		Grid:         ptr(quantize.GridEighth),
	})
	e.HandleTrigger(100*ms, "e", music.Modifiers{}, -1)
	e.HandleTrigger(250*ms, "t", music.Modifiers{}, -1)
	runUntil(e, time.Second)
	if got := r.starts(); !reflect.DeepEqual(got, []time.Duration{250 * ms}) {
		t.Fatalf("starts = %v, want [250ms]", got)
	}
	if st := e.Stats(); st.SnapDrops != 1 {
		t.Fatalf("snap drops = %d, want 1", st.SnapDrops)
	}
}

func TestSnapPlaybackOneStartPerCell(t *testing.T) {
	e, r, _ := newTestEngine(t, Patch{
		Quantize:     ptr(true),
		QuantizeMode: ptr(quantize.ModeSnap),
		Tempo:        ptr(120.0),
		Grid:         ptr(quantize.GridEighth),
	})
	if !e.StartPlayback(0, "etaoinsh", 1, false) {
		t.Fatalf("playback refused")
	}
	runUntil(e, 2*time.Second)
	want := []time.Duration{0, 500 * ms, 750 * ms, 1250 * ms}
	if got := r.starts(); !reflect.DeepEqual(got, want) {
		t.Fatalf("starts = %v, want %v", got, want)
	}
}

func TestArpeggioScenario(t *testing.T) {
	e, r, sink := newTestEngine(t, Patch{
		Arpeggiator: ptr(true),
		ArpOctaves:  ptr(1),
		Tempo:       ptr(120.0),
	})
	e.HandleTrigger(0, "e", music.Modifiers{}, -1)
	runUntil(e, time.Second)
	wantStarts := []time.Duration{0, 125 * ms, 250 * ms, 375 * ms}
	if got := r.starts(); !reflect.DeepEqual(got, wantStarts) {
		t.Fatalf("starts = %v, want %v", got, wantStarts)
	}
	wantFreq := []float64{music.Frequency(0, 4), music.Frequency(4, 4), music.Frequency(7, 4), music.Frequency(0, 5)}
	for i, tone := range r.tones {
		if tone.Frequency != wantFreq[i] {
			t.Fatalf("tone %d freq = %v, want %v", i, tone.Frequency, wantFreq[i])
		}
	}
	if len(sink.notes) != 4 {
		t.Fatalf("sink saw %d notes", len(sink.notes))
	}
}

func TestPlaybackScenario(t *testing.T) {
	e, _, sink := newTestEngine(t, Patch{})
	if !e.StartPlayback(0, "ab", 1, false) {
		t.Fatalf("playback refused")
	}
	runUntil(e, time.Second)
	if len(sink.notes) != 2 {
		t.Fatalf("dispatched %d notes, want 2", len(sink.notes))
	}
	a, b := sink.notes[0], sink.notes[1]
	if a.Symbol != "a" || a.Start != 0 || a.SourceIndex != 0 {
		t.Fatalf("first = %+v", a)
	}
	if b.Symbol != "b" || b.Start != 150*ms || b.SourceIndex != 1 {
		t.Fatalf("second = %+v", b)
	}
	if e.Playing() || sink.ended != 1 {
		t.Fatalf("playing = %v ended = %d", e.Playing(), sink.ended)
	}
	if !e.Idle() {
		t.Fatalf("engine not idle after playback: %+v", e.Stats())
	}
}

func TestStopPlaybackCancelsPendingNotes(t *testing.T) {
	e, _, sink := newTestEngine(t, Patch{DoubleTap: ptr(true)})
	e.StartPlayback(0, "abc", 1, true)
	runUntil(e, 200*ms)
	e.StopPlayback(200 * ms)
	runUntil(e, time.Second)
	// a, a echo, b; b's echo at 230ms is cancelled
	if len(sink.notes) != 3 {
		t.Fatalf("dispatched %d notes, want 3: %+v", len(sink.notes), sink.notes)
	}
	if e.PlaybackCursor() != 0 || e.Playing() {
		t.Fatalf("playback not rewound")
	}
}

func TestEmptyStartPlaybackLeavesPlaybackRunning(t *testing.T) {
	e, _, sink := newTestEngine(t, Patch{})
	if !e.StartPlayback(0, "abcd", 1, false) {
		t.Fatalf("playback refused")
	}
	runUntil(e, 200*ms)
	if e.StartPlayback(200*ms, "", 1, false) {
		t.Fatalf("empty text started playback")
	}
	if !e.Playing() {
		t.Fatalf("empty text stopped the running playback")
	}
	runUntil(e, time.Second)
	if len(sink.notes) != 4 || sink.ended != 1 {
		t.Fatalf("dispatched %d notes, ended %d; want 4, 1", len(sink.notes), sink.ended)
	}
}

func TestBufferModeReleasesOnePerCell(t *testing.T) {
	e, r, sink := newTestEngine(t, Patch{
		Quantize:     ptr(true),
		QuantizeMode: ptr(quantize.ModeBuffer),
		Grid:         ptr(quantize.GridEighth),
	})
	for _, sym := range []string{"a", "s", "d"} {
		e.HandleTrigger(0, sym, music.Modifiers{}, -1)
	}
	runUntil(e, time.Second)
	want := []time.Duration{250 * ms, 500 * ms, 750 * ms}
	if got := r.starts(); !reflect.DeepEqual(got, want) {
		t.Fatalf("starts = %v, want %v", got, want)
	}
	for i, sym := range []string{"a", "s", "d"} {
		if sink.notes[i].Symbol != sym {
			t.Fatalf("order: got %s at %d, want %s", sink.notes[i].Symbol, i, sym)
		}
	}
}

func TestBufferOverflowDropsOldest(t *testing.T) {
	e, _, sink := newTestEngine(t, Patch{
		Quantize:     ptr(true),
		QuantizeMode: ptr(quantize.ModeBuffer),
	})
	for i := 0; i < 30; i++ {
		e.HandleTrigger(0, "a", music.Modifiers{}, i)
	}
	st := e.Stats()
	if st.Buffered != quantize.MaxBufferSize || st.Overflows != 30-quantize.MaxBufferSize {
		t.Fatalf("stats = %+v", st)
	}
	e.Advance(250 * ms)
	if len(sink.notes) != 1 || sink.notes[0].SourceIndex != 6 {
		t.Fatalf("first released = %+v, want index 6", sink.notes)
	}
}

func TestVoicePoolLimit(t *testing.T) {
	e, r, _ := newTestEngine(t, Patch{})
	syms := "etaoinshrdlucmwfgypb"
	for i, c := range syms {
		e.HandleTrigger(time.Duration(i)*ms, string(c), music.Modifiers{}, -1)
		if v := e.Stats().Voices; v > voice.MaxVoices {
			t.Fatalf("voices = %d", v)
		}
	}
	if len(r.stops) != len(syms)-voice.MaxVoices {
		t.Fatalf("evicted %d, want %d", len(r.stops), len(syms)-voice.MaxVoices)
	}
}

func TestPanicRestoresColdStart(t *testing.T) {
	patch := Patch{Arpeggiator: ptr(true)}
	cold, coldR, _ := newTestEngine(t, patch)
	cold.HandleTrigger(0, "e", music.Modifiers{}, -1)
	runUntil(cold, time.Second)

	e, r, _ := newTestEngine(t, patch)
	e.HandleTrigger(0, "e", music.Modifiers{}, -1)
	e.Panic(60 * ms)
	st := e.Stats()
	if st.Voices != 0 || st.Buffered != 0 || st.Pending != 0 {
		t.Fatalf("state after panic = %+v", st)
	}
	e.HandleTrigger(60*ms, "e", music.Modifiers{}, -1)
	runUntil(e, time.Second+60*ms)

	after := r.tones[1:]
	if len(after) != len(coldR.tones) {
		t.Fatalf("after panic %d tones, cold start %d", len(after), len(coldR.tones))
	}
	for i := range after {
		if after[i].Start-60*ms != coldR.tones[i].Start || after[i].Frequency != coldR.tones[i].Frequency {
			t.Fatalf("tone %d: %+v vs cold %+v", i, after[i], coldR.tones[i])
		}
	}
}

func TestDisablingQuantizeCancelsPending(t *testing.T) {
	e, r, _ := newTestEngine(t, Patch{Quantize: ptr(true)})
	e.HandleTrigger(100*ms, "e", music.Modifiers{}, -1)
	if err := e.UpdateSettings(120*ms, Patch{Quantize: ptr(false)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	runUntil(e, time.Second)
	if len(r.tones) != 0 {
		t.Fatalf("cancelled note still played: %+v", r.tones)
	}
}

func TestRepeatsRestsAndCmdIgnored(t *testing.T) {
	e, r, _ := newTestEngine(t, Patch{})
	e.HandleKey(0, music.KeyEvent{Kind: music.KeyDown, Symbol: "a", Repeat: true})
	e.HandleKey(0, music.KeyEvent{Kind: music.KeyDown, Symbol: "space"})
	e.HandleKey(0, music.KeyEvent{Kind: music.KeyDown, Symbol: "a", Modifiers: music.Modifiers{Cmd: true}})
	e.HandleKey(0, music.KeyEvent{Kind: music.KeyUp, Symbol: "a"})
	if len(r.tones) != 0 {
		t.Fatalf("ignored events produced %d tones", len(r.tones))
	}
	e.HandleKey(0, music.KeyEvent{Kind: music.KeyDown, Symbol: "a"})
	if len(r.tones) != 1 {
		t.Fatalf("key down produced %d tones", len(r.tones))
	}
}

func TestControlSymbols(t *testing.T) {
	e, r, _ := newTestEngine(t, Patch{})
	for _, sym := range []string{"right", "tab", "up", "f1", "f2", "f3", "f9"} {
		e.HandleTrigger(0, sym, music.Modifiers{}, -1)
	}
	s := e.Settings()
	if s.Scale != music.StepScale(music.DefaultScale, 1).ID {
		t.Fatalf("scale = %s", s.Scale)
	}
	if !s.Arpeggiator || s.Transpose != 1 || s.Octave() != 5 {
		t.Fatalf("settings = %+v", s)
	}
	if !s.Quantize || s.QuantizeMode != quantize.ModeBuffer || s.Grid != quantize.GridSixteenth {
		t.Fatalf("quantize settings = %+v", s)
	}
	if len(r.tones) != 0 {
		t.Fatalf("control symbols produced tones")
	}
	for i := 0; i < 10; i++ {
		e.HandleTrigger(0, "up", music.Modifiers{}, -1)
	}
	if got := e.Settings().Octave(); got != MaxOctave {
		t.Fatalf("octave = %d, want %d", got, MaxOctave)
	}
}

func TestCtrlAccentAndShiftChord(t *testing.T) {
	e, r, _ := newTestEngine(t, Patch{Velocity: ptr(0.5)})
	e.HandleTrigger(0, "e", music.Modifiers{Ctrl: true}, -1)
	if got := r.tones[0].Velocity; got != 0.5*AccentGain {
		t.Fatalf("accented velocity = %v", got)
	}
	e.HandleTrigger(ms, "1", music.Modifiers{Shift: true}, -1)
	runUntil(e, 100*ms)
	if got := r.tones[1].Frequency; got != music.Frequency(0, 5) {
		t.Fatalf("shifted chord root = %v, want C5", got)
	}
	if len(r.tones) != 4 {
		t.Fatalf("chord produced %d tones, want 3", len(r.tones)-1)
	}
}

func TestCapsLockSustain(t *testing.T) {
	e, r, _ := newTestEngine(t, Patch{})
	caps := music.Modifiers{CapsLock: true}
	e.HandleKey(0, music.KeyEvent{Kind: music.ModifierChange, Modifiers: caps})
	e.HandleKey(0, music.KeyEvent{Kind: music.KeyDown, Symbol: "e", Modifiers: caps})
	if !r.tones[0].Sustain {
		t.Fatalf("tone not sustained")
	}
	e.HandleKey(10*ms, music.KeyEvent{Kind: music.ModifierChange})
	if len(r.stops) != 1 {
		t.Fatalf("sustain release stopped %d tones", len(r.stops))
	}
}

func TestPowerOff(t *testing.T) {
	e, r, _ := newTestEngine(t, Patch{})
	e.SetPower(0, false)
	e.HandleTrigger(0, "e", music.Modifiers{}, -1)
	if e.StartPlayback(0, "abc", 1, false) {
		t.Fatalf("playback started while off")
	}
	if len(r.tones) != 0 {
		t.Fatalf("powered-off engine played")
	}
	e.SetPower(0, true)
	e.HandleTrigger(0, "e", music.Modifiers{}, -1)
	if len(r.tones) != 1 {
		t.Fatalf("engine silent after power on")
	}
}

func TestUpdateSettingsValidation(t *testing.T) {
	e, _, _ := newTestEngine(t, Patch{})
	if err := e.UpdateSettings(0, Patch{Tempo: ptr(0.0)}); err == nil {
		t.Fatalf("tempo 0 accepted")
	}
	if err := e.UpdateSettings(0, Patch{Scale: ptr("nope")}); err == nil {
		t.Fatalf("unknown scale accepted")
	}
	if e.Settings().Tempo != 120 || e.Settings().Scale != music.DefaultScale {
		t.Fatalf("failed update changed settings: %+v", e.Settings())
	}
}
