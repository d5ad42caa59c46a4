package keysource

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/cbegin/keywave/internal/music"
)

// RepeatWindow is the longest gap between identical bytes that still counts
// as terminal auto-repeat.
const RepeatWindow = 50 * time.Millisecond

// ErrNotTerminal is returned when the input is not a terminal.
var ErrNotTerminal = errors.New("input is not a terminal")

// Terminal reads keys from a raw-mode terminal. Terminals report no key
// releases, so only KeyDown events are produced. Ctrl-C ends Run.
type Terminal struct {
	In *os.File
}

func (t *Terminal) Run(ctx context.Context, handle func(music.KeyEvent)) error {
	in := t.In
	if in == nil {
		in = os.Stdin
	}
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return ErrNotTerminal
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer func() { _ = term.Restore(fd, old) }()
	return readKeys(ctx, in, handle)
}

// keyReader is an input that can be interrupted with a read deadline.
type keyReader interface {
	Read(p []byte) (int, error)
	SetReadDeadline(t time.Time) error
}

// readKeys translates input until ctx is done or Ctrl-C. On return the
// pending read is interrupted with a deadline so no later byte is consumed.
// Inputs without deadline support leave the reader blocked until the next
// byte arrives, which is then discarded.
func readKeys(ctx context.Context, in keyReader, handle func(music.KeyEvent)) error {
	chunks := make(chan []byte)
	errc := make(chan error, 1)
	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		buf := make([]byte, 64)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				b := append([]byte(nil), buf[:n]...)
				select {
				case chunks <- b:
				case <-stop:
					return
				}
			}
			if err != nil {
				errc <- err
				return
			}
		}
	}()
	defer func() {
		close(stop)
		if in.SetReadDeadline(time.Now()) == nil {
			<-readerDone
			_ = in.SetReadDeadline(time.Time{})
		}
	}()

	var tr Translator
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case b := <-chunks:
			events, quit := tr.Feed(b, time.Now())
			for _, ev := range events {
				handle(ev)
			}
			if quit {
				return nil
			}
		}
	}
}

// Translator converts raw terminal bytes into key events.
type Translator struct {
	last   string
	lastAt time.Time
}

// Feed translates one read. quit is set when Ctrl-C was pressed; events
// before it are still returned.
func (t *Translator) Feed(b []byte, at time.Time) (events []music.KeyEvent, quit bool) {
	for len(b) > 0 {
		sym, mods, n := parseKey(b)
		b = b[n:]
		if sym == "" {
			continue
		}
		if sym == "\x03" {
			return events, true
		}
		ev := music.KeyEvent{Kind: music.KeyDown, Symbol: sym, Modifiers: mods}
		ev.Repeat = sym == t.last && at.Sub(t.lastAt) < RepeatWindow
		t.last, t.lastAt = sym, at
		events = append(events, ev)
	}
	return events, false
}

var csiTilde = map[string]string{
	"3":  music.SymbolDelete,
	"11": "f1", "12": "f2", "13": "f3", "14": "f4",
	"15": "f5", "17": "f6", "18": "f7", "19": "f8",
	"20": "f9", "21": "f10", "23": "f11", "24": "f12",
}

// parseKey reads one key from the front of b and returns how many bytes it
// used. An empty symbol means the bytes were not a key.
func parseKey(b []byte) (string, music.Modifiers, int) {
	var mods music.Modifiers
	c := b[0]
	switch {
	case c == 0x1b:
		return parseEscape(b)
	case c == 0x03:
		return "\x03", mods, 1
	case c == '\r' || c == '\n':
		return music.SymbolEnter, mods, 1
	case c == 0x7f || c == 0x08:
		return music.SymbolBackspace, mods, 1
	case c == '\t':
		return music.SymbolTab, mods, 1
	case c == ' ':
		return music.SymbolSpace, mods, 1
	case c >= 0x01 && c <= 0x1a:
		mods.Ctrl = true
		return string(rune('a' + c - 1)), mods, 1
	case c < 0x20:
		return "", mods, 1
	}
	r, n := utf8.DecodeRune(b)
	if r == utf8.RuneError {
		return "", mods, n
	}
	if unicode.IsUpper(r) {
		mods.Shift = true
		r = unicode.ToLower(r)
	}
	return string(r), mods, n
}

func parseEscape(b []byte) (string, music.Modifiers, int) {
	var mods music.Modifiers
	if len(b) == 1 {
		return music.SymbolEscape, mods, 1
	}
	switch b[1] {
	case '[':
		if len(b) >= 3 {
			switch b[2] {
			case 'A':
				return music.SymbolUp, mods, 3
			case 'B':
				return music.SymbolDown, mods, 3
			case 'C':
				return music.SymbolRight, mods, 3
			case 'D':
				return music.SymbolLeft, mods, 3
			}
		}
		end := 2
		for end < len(b) && b[end] >= '0' && b[end] <= '9' {
			end++
		}
		if end < len(b) && b[end] == '~' {
			if sym, ok := csiTilde[string(b[2:end])]; ok {
				return sym, mods, end + 1
			}
			return "", mods, end + 1
		}
		return "", mods, min(end+1, len(b))
	case 'O':
		if len(b) >= 3 && b[2] >= 'P' && b[2] <= 'S' {
			return "f" + string(rune('1'+b[2]-'P')), mods, 3
		}
		return "", mods, min(3, len(b))
	case 0x1b:
		return music.SymbolEscape, mods, 1
	}
	sym, inner, n := parseKey(b[1:])
	if sym == "" || sym == "\x03" {
		return music.SymbolEscape, mods, 1
	}
	inner.Alt = true
	return strings.ToLower(sym), inner, n + 1
}
