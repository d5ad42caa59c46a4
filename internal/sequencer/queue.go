// Package sequencer runs deferred actions in time order and drives text
// playback through them.
package sequencer

import (
	"container/heap"
	"time"
)

// Tag groups queue entries so a whole mode can be cancelled at once.
type Tag uint8

const (
	TagLive Tag = 1 << iota
	TagQuantize
	TagPlayback

	TagAll = TagLive | TagQuantize | TagPlayback
)

// ID identifies a scheduled entry.
type ID uint64

type entry struct {
	at    time.Duration
	seq   uint64
	id    ID
	tag   Tag
	fn    func(at time.Duration)
	index int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is a time-ordered list of pending actions. Entries due at the same
// time run in scheduling order. It is not safe for concurrent use.
type Queue struct {
	h    entryHeap
	byID map[ID]*entry
	seq  uint64
}

func NewQueue() *Queue {
	return &Queue{byID: make(map[ID]*entry)}
}

// Schedule runs fn once the queue is advanced to at. fn receives the time
// it was scheduled for.
func (q *Queue) Schedule(at time.Duration, tag Tag, fn func(at time.Duration)) ID {
	q.seq++
	e := &entry{at: at, seq: q.seq, id: ID(q.seq), tag: tag, fn: fn}
	heap.Push(&q.h, e)
	q.byID[e.id] = e
	return e.id
}

// Cancel removes one entry. It reports false if the entry already ran or
// was cancelled.
func (q *Queue) Cancel(id ID) bool {
	e, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.h, e.index)
	delete(q.byID, id)
	return true
}

// CancelTag removes every entry sharing a bit with mask.
func (q *Queue) CancelTag(mask Tag) int {
	kept := q.h[:0]
	n := 0
	for _, e := range q.h {
		if e.tag&mask != 0 {
			delete(q.byID, e.id)
			n++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.h); i++ {
		q.h[i] = nil
	}
	q.h = kept
	for i, e := range q.h {
		e.index = i
	}
	heap.Init(&q.h)
	return n
}

// RunDue runs every entry due at or before now, including entries that
// running actions schedule inside the window.
func (q *Queue) RunDue(now time.Duration) int {
	ran := 0
	for len(q.h) > 0 && q.h[0].at <= now {
		e := heap.Pop(&q.h).(*entry)
		delete(q.byID, e.id)
		e.fn(e.at)
		ran++
	}
	return ran
}

// Next returns the time of the earliest pending entry.
func (q *Queue) Next() (time.Duration, bool) {
	if len(q.h) == 0 {
		return 0, false
	}
	return q.h[0].at, true
}

func (q *Queue) Len() int { return len(q.h) }

// Count returns the number of pending entries sharing a bit with mask.
func (q *Queue) Count(mask Tag) int {
	n := 0
	for _, e := range q.h {
		if e.tag&mask != 0 {
			n++
		}
	}
	return n
}
