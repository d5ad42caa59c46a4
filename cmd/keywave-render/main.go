package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/cbegin/keywave"
	"github.com/cbegin/keywave/internal/config"
)

const defaultText = "hello keywave"

var logger = slog.Default()

func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level, AddSource: debug}))
	slog.SetDefault(logger)
}

func main() {
	var (
		configPath = flag.String("config", "", "settings file (JSON)")
		sampleRate = flag.Int("sample-rate", 48000, "render sample rate")
		text       = flag.String("text", "", "text to type")
		textPath   = flag.String("file", "", "read the text from this file")
		speed      = flag.Float64("speed", 1, "playback speed multiplier")
		tail       = flag.Duration("tail", 250*time.Millisecond, "silence kept after the last note")
		maxDur     = flag.Duration("max-duration", 5*time.Minute, "stop rendering after this long")
		output     = flag.String("output", "output.wav", "output WAV file path")
		midiOut    = flag.String("midi", "", "also write the notes to this MIDI file")
		debug      = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()
	initLogger(*debug)

	input, err := resolveText(*text, *textPath)
	if err != nil {
		fatal(err)
	}
	cfg := config.Default()
	if *configPath != "" {
		if cfg, err = config.Load(*configPath); err != nil {
			fatal(err)
		}
	}

	opts := keywave.DefaultRenderOptions()
	opts.SampleRate = *sampleRate
	opts.Settings = cfg.Settings
	opts.Synth = cfg.Synth
	opts.Speed = *speed
	opts.Tail = *tail
	opts.MaxDuration = *maxDur

	r, err := keywave.RenderText(input, opts)
	if err != nil {
		fatal(err)
	}
	if err := r.WriteWAV(*output); err != nil {
		fatal(fmt.Errorf("write %s: %w", *output, err))
	}
	if *midiOut != "" {
		if err := r.WriteMIDI(*midiOut); err != nil {
			fatal(fmt.Errorf("write %s: %w", *midiOut, err))
		}
	}
	size := int64(0)
	if fi, err := os.Stat(*output); err == nil {
		size = fi.Size()
	}
	logger.Info("rendered",
		"output", *output,
		"duration", r.Duration().Round(time.Millisecond),
		"size", humanize.Bytes(uint64(size)),
		"notes", r.Stats.Dispatched,
	)
}

func resolveText(inline, path string) (string, error) {
	if strings.TrimSpace(inline) != "" {
		return inline, nil
	}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return defaultText, nil
}

func fatal(err error) {
	logger.Error("keywave-render", "err", err)
	os.Exit(1)
}
