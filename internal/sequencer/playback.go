package sequencer

import (
	"strings"
	"time"
)

// BaseInterval is the step between characters at speed 1.
const BaseInterval = 150 * time.Millisecond

type State int

const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "idle"
}

// FeedFunc receives one playback step: the symbol for the character and its
// index in the text.
type FeedFunc func(at time.Duration, symbol string, index int)

// Playback walks a text and feeds one symbol per step through a Queue.
type Playback struct {
	queue    *Queue
	feed     FeedFunc
	ended    func(at time.Duration)
	text     []rune
	cursor   int
	loop     bool
	interval time.Duration
	state    State
	timer    ID
}

// NewPlayback returns an idle playback bound to q. ended, when non-nil, is
// called when a non-looping text runs out.
func NewPlayback(q *Queue, feed FeedFunc, ended func(at time.Duration)) *Playback {
	return &Playback{queue: q, feed: feed, ended: ended}
}

// Symbol converts a text character to the symbol fed to the engine.
func Symbol(r rune) string {
	switch r {
	case ' ':
		return "space"
	case '\n':
		return "enter"
	}
	return strings.ToLower(string(r))
}

// Interval returns the step duration for speed. Non-positive speeds use 1.
func Interval(speed float64) time.Duration {
	if speed <= 0 {
		speed = 1
	}
	return time.Duration(float64(BaseInterval) / speed)
}

// Start begins playing text at now, replacing any current playback. Empty
// text is ignored and reported as false.
func (p *Playback) Start(now time.Duration, text string, speed float64, loop bool) bool {
	if text == "" {
		return false
	}
	p.Stop()
	p.text = []rune(text)
	p.loop = loop
	p.interval = Interval(speed)
	p.state = Playing
	p.step(now)
	return true
}

// Stop cancels the pending step and rewinds. It is safe in any state.
func (p *Playback) Stop() {
	if p.timer != 0 {
		p.queue.Cancel(p.timer)
		p.timer = 0
	}
	p.cursor = 0
	p.state = Idle
}

func (p *Playback) State() State { return p.state }
func (p *Playback) Cursor() int  { return p.cursor }
func (p *Playback) Loop() bool   { return p.loop }

func (p *Playback) step(at time.Duration) {
	p.timer = 0
	if p.state != Playing {
		return
	}
	if p.cursor >= len(p.text) {
		if !p.loop {
			p.cursor = 0
			p.state = Idle
			if p.ended != nil {
				p.ended(at)
			}
			return
		}
		p.cursor = 0
	}
	i := p.cursor
	p.cursor++
	p.feed(at, Symbol(p.text[i]), i)
	if p.state != Playing {
		return
	}
	p.timer = p.queue.Schedule(at+p.interval, TagPlayback, p.step)
}
