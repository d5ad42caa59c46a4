package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"golang.design/x/clipboard"

	"github.com/cbegin/keywave"
	intaudio "github.com/cbegin/keywave/internal/audio"
	"github.com/cbegin/keywave/internal/config"
	"github.com/cbegin/keywave/internal/keysource"
	"github.com/cbegin/keywave/internal/midiout"
	"github.com/cbegin/keywave/internal/sf2"
	intvoice "github.com/cbegin/keywave/internal/voice"
)

// logger is the package-wide structured logger. Safe to use before initLogger
// is called; defaults to slog.Default().
var logger = slog.Default()

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the stdlib log package also routes through the same handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

var shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")

func main() {
	var (
		configPath = flag.String("config", "", "settings file (JSON)")
		saveConfig = flag.String("save-config", "", "write the final settings to this file on exit")
		sampleRate = flag.Int("sample-rate", 48000, "output sample rate")
		backend    = flag.String("backend", "", "audio backend: ebiten|oto")
		soundFont  = flag.String("soundfont", "", "render with this SoundFont instead of the built-in synth")
		program    = flag.Int("program", -1, "SoundFont program (0-127)")
		midiPort   = flag.String("midi-port", "", "send notes to the MIDI output whose name contains this")
		record     = flag.String("record", "", "save the session as a MIDI file")
		source     = flag.String("source", "terminal", "key source: terminal|ws|none")
		wsURL      = flag.String("ws-url", keysource.DefaultURL, "key capture server for -source ws")
		playText   = flag.String("play", "", "type this text through the playback sequencer")
		playFile   = flag.String("file", "", "type the contents of this file")
		fromClip   = flag.Bool("clipboard", false, "type the clipboard text")
		speed      = flag.Float64("speed", 1, "playback speed multiplier")
		loop       = flag.Bool("loop", false, "loop playback until interrupted")
		debug      = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()
	initLogger(*debug)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fatal(err)
		}
	}
	if *backend != "" {
		b, err := intaudio.ParseBackend(*backend)
		if err != nil {
			fatal(err)
		}
		cfg.Backend = b
	}
	if *soundFont != "" {
		cfg.SoundFont = *soundFont
	}
	if *program >= 0 {
		cfg.Program = *program
	}
	if *midiPort != "" {
		cfg.MIDIPort = *midiPort
	}

	text, err := resolvePlayText(*playText, *playFile, *fromClip)
	if err != nil {
		fatal(err)
	}

	renderer, err := openRenderer(cfg, *sampleRate)
	if err != nil {
		fatal(err)
	}
	opts := []keywave.PlayerOption{
		keywave.WithBackend(cfg.Backend),
		keywave.WithSettings(cfg.Settings),
		keywave.WithSynthParams(cfg.Synth),
		keywave.WithLogger(logger),
		keywave.WithRecording(*record != ""),
	}
	if renderer != nil {
		opts = append(opts, keywave.WithRenderer(renderer))
	}
	pl, err := keywave.NewPlayer(*sampleRate, opts...)
	if err != nil {
		fatal(err)
	}
	if err := pl.Start(); err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := pl.Watch()
	go func() {
		for ev := range events {
			switch ev.Kind {
			case keywave.EventNote:
				logger.Debug("note", "symbol", ev.Symbol, "note", ev.Note.String(),
					"hz", fmt.Sprintf("%.2f", ev.Note.Frequency), "origin", ev.Origin.String(), "at", ev.Start)
			case keywave.EventPlaybackEnded:
				logger.Info("playback ended")
			}
		}
	}()

	logger.Info("keywave starting",
		"scale", cfg.Settings.Scale,
		"octave", cfg.Settings.Octave(),
		"wave", cfg.Settings.Wave,
		"quantize", cfg.Settings.Quantize,
		"source", *source,
	)
	started := time.Now()

	if text != "" {
		if err := pl.StartPlayback(text, *speed, *loop); err != nil {
			fatal(err)
		}
	}
	if err := runSource(ctx, pl, *source, *wsURL, text != ""); err != nil {
		logger.Error("key source stopped", "err", err)
	}

	if *record != "" {
		if err := pl.WriteMIDI(*record); err != nil {
			logger.Error("write midi", "path", *record, "err", err)
		} else {
			logger.Info("recorded session", "path", *record)
		}
	}
	if *saveConfig != "" {
		cfg.Settings = pl.Settings()
		if err := config.Save(*saveConfig, cfg); err != nil {
			logger.Error("save config", "path", *saveConfig, "err", err)
		}
	}
	st := pl.Stats()
	if err := pl.Close(); err != nil {
		logger.Warn("close", "err", err)
	}
	fmt.Fprintf(os.Stderr, "\r\n%s notes from %s triggers in %s (%s snap drops, %s overflows, %s evictions)\r\n",
		humanize.Comma(int64(st.Dispatched)),
		humanize.Comma(int64(st.Triggers)),
		durafmt.Parse(time.Since(started)).LimitFirstN(2).Format(shortUnits),
		humanize.Comma(int64(st.SnapDrops)),
		humanize.Comma(int64(st.Overflows)),
		humanize.Comma(int64(st.Evictions)),
	)
}

func openRenderer(cfg config.Config, sampleRate int) (intvoice.Renderer, error) {
	switch {
	case cfg.MIDIPort != "":
		r, err := midiout.Open(cfg.MIDIPort, 0)
		if err != nil {
			return nil, err
		}
		logger.Info("midi output", "port", cfg.MIDIPort)
		return r, nil
	case cfg.SoundFont != "":
		r, err := sf2.Load(cfg.SoundFont, sampleRate, cfg.Program)
		if err != nil {
			return nil, err
		}
		logger.Info("soundfont loaded", "path", cfg.SoundFont, "program", cfg.Program)
		return r, nil
	}
	return nil, nil
}

func runSource(ctx context.Context, pl *keywave.Player, name, url string, playing bool) error {
	switch strings.ToLower(name) {
	case "terminal":
		fmt.Fprintln(os.Stderr, "type to play; esc panics, ctrl-c quits")
		err := (&keysource.Terminal{}).Run(ctx, pl.HandleKey)
		if errors.Is(err, keysource.ErrNotTerminal) && playing {
			return pl.WaitPlayback(ctx)
		}
		return err
	case "ws":
		return (&keysource.WebSocket{URL: url, Logger: logger}).Run(ctx, pl.HandleKey)
	case "none":
		if !playing {
			return errors.New("-source none needs -play, -file or -clipboard")
		}
		if err := pl.WaitPlayback(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		// let the last notes ring
		select {
		case <-ctx.Done():
		case <-time.After(pl.Settings().Decay):
		}
		return nil
	}
	return fmt.Errorf("invalid -source %q (expected terminal|ws|none)", name)
}

func resolvePlayText(inline, path string, fromClipboard bool) (string, error) {
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
	if fromClipboard {
		if err := clipboard.Init(); err != nil {
			return "", fmt.Errorf("clipboard: %w", err)
		}
		return string(clipboard.Read(clipboard.FmtText)), nil
	}
	return "", nil
}

func fatal(err error) {
	logger.Error("keywave", "err", err)
	os.Exit(1)
}
