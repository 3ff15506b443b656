// Package entry defines the scheduler's per-callback record and the
// per-scheduler free list that recycles its storage: a single
// sync.Pool-backed reuse discipline that keeps hot paths allocation-free.
package entry

import (
	"sync"
	"sync/atomic"

	"github.com/tjamet/go-pollsched/internal/types"
)

// Entry is the scheduler's internal record for one registered callback. It
// is immutable-after-registration except for the bookkeeping fields noted
// below (spec.md §3).
type Entry struct {
	// Immutable once registered.
	ClassSet types.ClassSet
	Flags    types.Flags
	Function types.Function
	ClientData any
	Type     types.EventType
	Info     int64 // period-µs for TIMER, fd/handle for DEVICE, unused for MAIN_LOOP
	Lock     sync.Locker // optional, held only around this entry's own firing

	// Mutable bookkeeping.
	FireTime int64 // absolute host-timer µs; TIMER only
	Period   int64 // re-arm interval; TIMER + FlagPeriodic only
	onQueue  atomic.Bool
	refCount atomic.Int32

	// next is used by queues/timerqueue.go for intrusive list membership,
	// and left alone by every other package.
	Next *Entry
}

// OnQueue reports whether the entry is currently attached to a queue.
func (e *Entry) OnQueue() bool { return e.onQueue.Load() }

// SetOnQueue updates the on-queue bookkeeping bit. The queues call it, and
// so do the code paths that attach or detach an entry without a queue
// (dispatch's readiness firing, RunLoopBackend's registration and firing).
func (e *Entry) SetOnQueue(v bool) { e.onQueue.Store(v) }

// RefCount returns the current reference count.
func (e *Entry) RefCount() int32 { return e.refCount.Load() }

// Ref bumps the reference count. Callers must bump before handing the
// Entry to code that might fire it or otherwise retain it past a single
// synchronous use (spec.md §4.5 "Firing invariant").
func (e *Entry) Ref() { e.refCount.Add(1) }

// Unref drops the reference count and returns true if it reached zero,
// meaning the Entry is no longer reachable and may be returned to the free
// list.
func (e *Entry) Unref() bool {
	return e.refCount.Add(-1) == 0
}

// Matches reports whether the four-tuple (class-set identity, flags
// identity, function pointer identity, data pointer identity) used by
// Remove (spec.md §4.3) identifies this entry. Function identity is
// compared by pointer since Go funcs aren't comparable; ClientData by
// identity via == on the interface value, matching the original's pointer
// comparison.
func (e *Entry) Matches(classSet types.ClassSet, flags types.Flags, fn types.Function, data any, typ types.EventType) bool {
	if e.ClassSet != classSet || e.Flags != flags || e.Type != typ {
		return false
	}
	if !sameFunction(e.Function, fn) {
		return false
	}
	return e.ClientData == data
}

// Pool is a per-scheduler free list of Entry storage. A fresh Pool must be
// used per scheduler instance so that Exit() can assert no entries are
// leaked outside it (spec.md §6 Exit()).
type Pool struct {
	sp sync.Pool
}

// NewPool creates an empty free list.
func NewPool() *Pool {
	p := &Pool{}
	p.sp.New = func() any { return new(Entry) }
	return p
}

// Get returns a recycled Entry if one is available, otherwise allocates a
// new one. The returned Entry is zeroed of all fields set below (refCount,
// onQueue, Next); callers fill in the rest.
func (p *Pool) Get() *Entry {
	e := p.sp.Get().(*Entry)
	*e = Entry{}
	return e
}

// Put returns an Entry to the free list. Callers must not touch e after
// calling Put; the free list may hand it to an unrelated registration at
// any time.
func (p *Pool) Put(e *Entry) {
	p.sp.Put(e)
}
