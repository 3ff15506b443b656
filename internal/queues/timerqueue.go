// Package queues holds the scheduler's three event queues: a sorted timer
// queue and two unordered queues (device, main-loop), adapted from a
// single per-tag in-flight bookkeeping queue into the ordered/unordered
// split spec.md's three queues need; here the "in-flight" set is the set
// of entries currently attached to a queue.
package queues

import (
	"github.com/tjamet/go-pollsched/internal/entry"
	"github.com/tjamet/go-pollsched/internal/types"
)

// TimerQueue is a sorted singly-linked list of TIMER entries in ascending
// FireTime order, per spec.md §4.4. Insertion is linear by design: the
// expected number of active timers is small, the queue is touched from one
// thread, and the dispatcher that walks it to fire entries also relies on
// the sort order.
type TimerQueue struct {
	head *entry.Entry
}

// NewTimerQueue returns an empty timer queue.
func NewTimerQueue() *TimerQueue { return &TimerQueue{} }

// Insert attaches e to the queue in ascending FireTime order. Ties are
// broken by insertion order: a tied entry is placed after every existing
// entry with an equal or earlier FireTime, so first-inserted fires first
// (spec.md §5 ordering guarantees).
func (q *TimerQueue) Insert(e *entry.Entry) {
	e.SetOnQueue(true)
	if q.head == nil || e.FireTime < q.head.FireTime {
		e.Next = q.head
		q.head = e
		return
	}
	prev := q.head
	for prev.Next != nil && prev.Next.FireTime <= e.FireTime {
		prev = prev.Next
	}
	e.Next = prev.Next
	prev.Next = e
}

// Remove detaches e from the queue by identity, returning true if e was
// found. It is the caller's responsibility to then Unref/free e.
func (q *TimerQueue) Remove(e *entry.Entry) bool {
	if q.head == e {
		q.head = e.Next
		e.Next = nil
		e.SetOnQueue(false)
		return true
	}
	prev := q.head
	for prev != nil && prev.Next != e {
		prev = prev.Next
	}
	if prev == nil {
		return false
	}
	prev.Next = e.Next
	e.Next = nil
	e.SetOnQueue(false)
	return true
}

// NextDue returns the fire time of the earliest entry whose class set
// contains c, or (0, false) if no such entry is queued.
func (q *TimerQueue) NextDue(c types.Class) (int64, bool) {
	for e := q.head; e != nil; e = e.Next {
		if e.ClassSet.Has(c) {
			return e.FireTime, true
		}
	}
	return 0, false
}

// FindDue walks from the head while entry.FireTime <= now+slop (the bound
// that keeps this a cheap scan rather than a full traversal) and returns
// the first entry in that prefix whose class set contains c and which is
// actually fireable: FireTime <= now, or the entry is periodic (periodic
// entries may fire up to slop early, which is what absorbs host-tick
// quantization drift per spec.md §4.5). It does not detach the entry;
// callers that intend to fire it must call Remove themselves so a
// reentrant Loop call sees consistent queue state.
func (q *TimerQueue) FindDue(now, slop int64, c types.Class) *entry.Entry {
	for e := q.head; e != nil && e.FireTime <= now+slop; e = e.Next {
		if !e.ClassSet.Has(c) {
			continue
		}
		if e.FireTime <= now || e.Flags&types.FlagPeriodic != 0 {
			return e
		}
	}
	return nil
}

// Len returns the number of queued timer entries (test/diagnostic use).
func (q *TimerQueue) Len() int {
	n := 0
	for e := q.head; e != nil; e = e.Next {
		n++
	}
	return n
}

// FindMatch walks the queue for the first entry whose four-tuple matches
// per entry.Entry.Matches, for Remove (spec.md §4.3: "finds the first queue
// entry whose four-tuple matches exactly").
func (q *TimerQueue) FindMatch(classSet types.ClassSet, flags types.Flags, fn types.Function, data any, typ types.EventType) *entry.Entry {
	for e := q.head; e != nil; e = e.Next {
		if e.Matches(classSet, flags, fn, data, typ) {
			return e
		}
	}
	return nil
}
