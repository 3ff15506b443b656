// Package dispatch implements the fire algorithm of spec.md §4.5, shared by
// every backend. It is deliberately backend-agnostic: it consumes the
// entry/queues/readiness packages plus a small Waiter interface the backend
// supplies, and knows nothing about epoll, kqueue, or an external main
// loop. This is the one place that actually drains queued work and fires
// callbacks, while every other package only manages bookkeeping.
package dispatch

import (
	"github.com/tjamet/go-pollsched/internal/entry"
	"github.com/tjamet/go-pollsched/internal/logging"
	"github.com/tjamet/go-pollsched/internal/queues"
	"github.com/tjamet/go-pollsched/internal/readiness"
	"github.com/tjamet/go-pollsched/internal/types"
)

// Clock supplies the host-timer clock in microseconds. Backends pass a real
// monotonic clock; this package's tests pass a local fake clock so timer
// tests run without wall-clock sleeps.
type Clock interface {
	NowMicros() int64
}

// Observer receives the fire/wait/error events a pass produces, mirroring
// the root package's Observer (which satisfies this interface structurally,
// so a *pollsched.MetricsObserver can be passed straight through from the
// facade without this package importing the root one). Backends default to
// noopObserver when none is set, so call sites never need a nil check.
type Observer interface {
	ObserveMainLoopFire()
	ObserveTimerFire(rearmed bool)
	ObserveDeviceFire()
	ObserveWait(latencyNs uint64)
	ObservePlatformTransient()
	ObservePlatformFatal()
}

type noopObserver struct{}

func (noopObserver) ObserveMainLoopFire()      {}
func (noopObserver) ObserveTimerFire(bool)     {}
func (noopObserver) ObserveDeviceFire()        {}
func (noopObserver) ObserveWait(uint64)        {}
func (noopObserver) ObservePlatformTransient() {}
func (noopObserver) ObservePlatformFatal()     {}

// ReadyWaitable is one element of a Waiter's result: a waitable the backend
// observed as ready, with hang-up/error already folded into both Read and
// Write per spec.md §4.5 step 4 ("Treat hang-up or error ... as both
// read-ready and write-ready").
type ReadyWaitable struct {
	Waitable int64
	Read     bool
	Write    bool
}

// Waiter is the one blocking operation the dispatcher performs (spec.md §5
// "the only blocking call is the backend's wait primitive"). It waits at
// most waitMicros for readiness across every slot in index, or returns
// early if something becomes ready sooner.
type Waiter interface {
	Wait(index *readiness.Index, waitMicros int64) ([]ReadyWaitable, error)
}

// waitErrorKind tells the dispatcher which branch of spec.md §7 a wait
// error belongs to. A Waiter that returns a plain error (not *WaitError) is
// always treated as platform-fatal.
type waitErrorKind int

const (
	waitErrorFatal waitErrorKind = iota
	waitErrorTransient
)

// WaitError lets a Waiter classify a wait-primitive failure per spec.md §7.
type WaitError struct {
	Transient bool
	Err       error
}

func (e *WaitError) Error() string { return e.Err.Error() }
func (e *WaitError) Unwrap() error { return e.Err }

func classify(err error) waitErrorKind {
	if we, ok := err.(*WaitError); ok && we.Transient {
		return waitErrorTransient
	}
	return waitErrorFatal
}

// Pass runs one pass of the loop at class c with budget timeoutUs, per
// spec.md §4.5. exitFlag is polled after each phase; if it reports true the
// pass returns immediately without starting the next phase. index returns
// the ReadinessIndex to wait on for c (nil if the backend keeps none, e.g.
// a pass with no DEVICE entries yet registered).
func Pass(
	clock Clock,
	pool *entry.Pool,
	mainLoop *queues.UnorderedQueue,
	timers *queues.TimerQueue,
	index *readiness.Index,
	waiter Waiter,
	slop int64,
	c types.Class,
	timeoutUs int64,
	exitFlag func() bool,
	observer Observer,
) {
	if exitFlag == nil {
		exitFlag = func() bool { return false }
	}
	if observer == nil {
		observer = noopObserver{}
	}

	// Step 1: main-loop queue.
	fireMainLoop(mainLoop, pool, c, observer)
	if exitFlag() {
		return
	}

	// Step 2: timer queue sweep.
	fireDueTimers(clock, timers, pool, slop, c, observer)
	if exitFlag() {
		return
	}

	// Step 3: wait for readiness.
	if waiter == nil || index == nil {
		return
	}
	now := clock.NowMicros()
	waitUs := timeoutUs
	if due, ok := timers.NextDue(c); ok {
		remaining := due - now
		if remaining < 0 {
			remaining = 0
		}
		if remaining < waitUs {
			waitUs = remaining
		}
	}
	waitStart := clock.NowMicros()
	ready, err := waiter.Wait(index, waitUs)
	observer.ObserveWait(uint64(clock.NowMicros()-waitStart) * 1000)
	if err != nil {
		if classify(err) == waitErrorTransient {
			observer.ObservePlatformTransient()
			logging.Default().WithError(err).Debug("dispatch: transient wait error detail")
			logging.WarnHook("dispatch: transient wait error, continuing: %v", err)
		} else {
			observer.ObservePlatformFatal()
			logging.Default().WithError(err).Debug("dispatch: platform-fatal wait error detail")
			logging.PanicHook("dispatch: platform-fatal wait error: %v", err)
		}
		return
	}
	if exitFlag() {
		return
	}

	// Step 4: readiness firing.
	fireReady(index, ready, pool, observer)
}

// fireMainLoop implements step 1: snapshot every MAIN_LOOP entry whose
// class set contains c, then fire them in snapshot order. A non-periodic
// entry is dequeued before it fires; a periodic one stays queued and fires
// again on the next pass.
func fireMainLoop(q *queues.UnorderedQueue, pool *entry.Pool, c types.Class, observer Observer) {
	snap := q.Snapshot()
	for _, e := range snap {
		if !e.ClassSet.Has(c) {
			e.Unref() // drop the snapshot's reference; entry stays queued
			continue
		}
		if e.Flags&types.FlagPeriodic != 0 {
			if !e.OnQueue() {
				// Removed by an earlier callback in this same pass.
				if e.Unref() {
					pool.Put(e)
				}
				continue
			}
		} else if !q.Remove(e) {
			// Already removed by an earlier callback in this same pass
			// (spec.md S4: a reentrant Remove must take effect within the
			// pass, not just on the next one). Drop the snapshot's
			// reference and skip firing; don't touch the owning reference
			// a second time, since release(e) already dropped it when the
			// earlier callback removed it.
			if e.Unref() {
				pool.Put(e)
			}
			continue
		} else {
			e.Unref() // drop the queue's owning reference; not being requeued
		}
		fire(e)
		observer.ObserveMainLoopFire()
		if e.Unref() { // drop the snapshot's reference
			pool.Put(e)
		}
	}
}

// fireDueTimers implements step 2: walk from the head while fire_time <=
// now+slop, firing and (if periodic) re-arming eligible entries, restarting
// from the head after each fire so a reentrant registration or removal is
// always observed.
func fireDueTimers(clock Clock, q *queues.TimerQueue, pool *entry.Pool, slop int64, c types.Class, observer Observer) {
	for {
		now := clock.NowMicros()
		e := q.FindDue(now, slop, c)
		if e == nil {
			return
		}
		q.Remove(e)
		periodic := e.Flags&types.FlagPeriodic != 0
		e.Ref() // bump for firing, per the firing invariant
		if periodic {
			e.FireTime = now + e.Period
			q.Insert(e) // re-attaches using the still-held owning reference
		} else {
			e.Unref() // drop the queue's owning reference; not being requeued
		}
		fire(e)
		observer.ObserveTimerFire(periodic)
		if e.Unref() { // drop the firing reference
			pool.Put(e)
		}
		// restart from the head for reentrancy safety (spec.md §4.5 step 2)
	}
}

// fireReady implements step 4: for each ready waitable, fire the matched
// reader and/or writer. A periodic DEVICE entry stays registered in the
// slot (spec.md's cb_device periodic? parameter, for a source meant to
// level-trigger every pass); a non-periodic one is removed after firing.
func fireReady(index *readiness.Index, ready []ReadyWaitable, pool *entry.Pool, observer Observer) {
	for _, r := range ready {
		slot, ok := index.Slot(r.Waitable)
		if !ok {
			continue
		}
		if r.Read && slot.Reader != nil {
			fireSlotHalf(slot, slot.Reader, true, pool, observer)
		}
		if r.Write && slot.Writer != nil {
			fireSlotHalf(slot, slot.Writer, false, pool, observer)
		}
		index.CompactIfEmpty(r.Waitable)
	}
}

func fireSlotHalf(slot *readiness.Slot, e *entry.Entry, isReader bool, pool *entry.Pool, observer Observer) {
	periodic := e.Flags&types.FlagPeriodic != 0
	e.Ref() // bump for firing, per the firing invariant
	if !periodic {
		if isReader {
			slot.ClearReader()
		} else {
			slot.ClearWriter()
		}
		e.SetOnQueue(false)
		e.Unref() // drop the slot's owning reference; not remaining registered
	}
	fire(e)
	observer.ObserveDeviceFire()
	if e.Unref() { // drop the firing reference
		pool.Put(e)
	}
}

// Fire invokes e's callback, holding its optional lock for the duration
// (spec.md §5's "device-lock parameter" narrow critical section). Exported
// so backends that don't drive Pass (RunLoopBackend, whose dispatch comes
// from an external loop's own callbacks) can still fire with the same
// locking discipline.
func Fire(e *entry.Entry) {
	fire(e)
}

func fire(e *entry.Entry) {
	if e.Lock != nil {
		e.Lock.Lock()
		defer e.Lock.Unlock()
	}
	e.Function(e.ClientData)
}
