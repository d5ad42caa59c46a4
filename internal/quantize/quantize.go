// Package quantize aligns trigger times to a tempo grid.
//
// Snap mode moves each trigger to the next cell boundary and drops further
// triggers in a cell that already has one. Buffer mode queues triggers and
// releases one per cell from a periodic tick.
package quantize

import (
	"fmt"
	"strings"
	"time"

	"github.com/cbegin/keywave/internal/music"
	"github.com/cbegin/keywave/internal/trigger"
)

const (
	MaxBufferSize = 24
	TickInterval  = 10 * time.Millisecond
)

type Mode int

const (
	ModeSnap Mode = iota
	ModeBuffer
)

func (m Mode) String() string {
	switch m {
	case ModeSnap:
		return "snap"
	case ModeBuffer:
		return "buffer"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "snap":
		return ModeSnap, nil
	case "buffer":
		return ModeBuffer, nil
	}
	return 0, fmt.Errorf("unknown quantize mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Grid is the cell resolution in notes per beat.
type Grid int

const (
	GridQuarter Grid = iota
	GridEighth
	GridSixteenth
)

var gridNames = [...]string{"1/4", "1/8", "1/16"}

// Divisor is the number of cells per beat.
func (g Grid) Divisor() int {
	switch g {
	case GridEighth:
		return 2
	case GridSixteenth:
		return 4
	default:
		return 1
	}
}

func (g Grid) String() string {
	if g >= 0 && int(g) < len(gridNames) {
		return gridNames[g]
	}
	return fmt.Sprintf("Grid(%d)", int(g))
}

func (g Grid) Next() Grid {
	return Grid((int(g) + 1) % len(gridNames))
}

func ParseGrid(s string) (Grid, error) {
	s = strings.TrimSpace(s)
	for i, name := range gridNames {
		if s == name {
			return Grid(i), nil
		}
	}
	return 0, fmt.Errorf("unknown grid %q (want 1/4, 1/8 or 1/16)", s)
}

func (g Grid) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

func (g *Grid) UnmarshalText(b []byte) error {
	v, err := ParseGrid(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// CellDuration is 60/tempo seconds divided by the grid divisor.
func CellDuration(tempo float64, g Grid) time.Duration {
	if tempo <= 0 {
		return 0
	}
	return time.Duration(60 / tempo / float64(g.Divisor()) * float64(time.Second))
}

// Entry is one buffered trigger.
type Entry struct {
	Symbol      string
	Note        music.Note
	Events      []trigger.Event
	SourceIndex int // position in the playback text, -1 for live input
	Playback    bool
}

// Quantizer holds the grid origin, cell bookkeeping and the buffer. It is not
// safe for concurrent use.
type Quantizer struct {
	mode     Mode
	cell     time.Duration
	origin   time.Duration
	snapCell int64
	tickCell int64
	queue    []Entry
}

func New() *Quantizer {
	return &Quantizer{snapCell: -1, tickCell: -1, queue: make([]Entry, 0, MaxBufferSize)}
}

// Arm fixes a new grid origin at now and clears all cell tracking and the
// buffer.
func (q *Quantizer) Arm(now time.Duration, mode Mode, grid Grid, tempo float64) {
	q.mode = mode
	q.cell = CellDuration(tempo, grid)
	if q.cell <= 0 {
		q.cell = CellDuration(120, grid)
	}
	if now < q.origin {
		now = q.origin
	}
	q.origin = now
	q.Reset()
}

// Reset clears cell tracking and the buffer. The origin is kept.
func (q *Quantizer) Reset() {
	q.snapCell = -1
	q.tickCell = -1
	q.queue = q.queue[:0]
}

func (q *Quantizer) Mode() Mode            { return q.mode }
func (q *Quantizer) Cell() time.Duration   { return q.cell }
func (q *Quantizer) Origin() time.Duration { return q.origin }
func (q *Quantizer) Len() int              { return len(q.queue) }

// CellIndex returns the cell containing now.
func (q *Quantizer) CellIndex(now time.Duration) int64 {
	if q.cell <= 0 || now <= q.origin {
		return 0
	}
	return int64((now - q.origin) / q.cell)
}

// Snap returns the start time for a trigger at now, or false when a note
// already starts in the current cell. The cell the note lands in is marked
// used, so a later trigger exactly on that boundary is dropped too.
func (q *Quantizer) Snap(now time.Duration) (time.Duration, bool) {
	if now < q.origin {
		now = q.origin
	}
	idx := q.CellIndex(now)
	if idx <= q.snapCell {
		return 0, false
	}
	if q.cell <= 0 || (now-q.origin)%q.cell == 0 {
		q.snapCell = idx
		return now, true
	}
	q.snapCell = idx + 1
	return q.origin + time.Duration(idx+1)*q.cell, true
}

// Enqueue appends e to the buffer. When the buffer is full the oldest entry is
// removed and returned.
func (q *Quantizer) Enqueue(e Entry) (Entry, bool) {
	var dropped Entry
	overflow := false
	if len(q.queue) >= MaxBufferSize {
		dropped = q.queue[0]
		q.pop()
		overflow = true
	}
	q.queue = append(q.queue, e)
	return dropped, overflow
}

// Tick releases at most one entry per cell. The first tick inside a cell
// consumes the cell even if the buffer is empty.
func (q *Quantizer) Tick(now time.Duration) (Entry, bool) {
	idx := q.CellIndex(now)
	if idx == q.tickCell {
		return Entry{}, false
	}
	q.tickCell = idx
	if len(q.queue) == 0 {
		return Entry{}, false
	}
	e := q.queue[0]
	q.pop()
	return e, true
}

// Purge removes every buffered entry matching drop and returns how many went.
func (q *Quantizer) Purge(drop func(Entry) bool) int {
	kept := q.queue[:0]
	n := 0
	for _, e := range q.queue {
		if drop(e) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.queue); i++ {
		q.queue[i] = Entry{}
	}
	q.queue = kept
	return n
}

// Pending returns a copy of the buffer in delivery order.
func (q *Quantizer) Pending() []Entry {
	out := make([]Entry, len(q.queue))
	copy(out, q.queue)
	return out
}

func (q *Quantizer) pop() {
	copy(q.queue, q.queue[1:])
	q.queue[len(q.queue)-1] = Entry{}
	q.queue = q.queue[:len(q.queue)-1]
}
