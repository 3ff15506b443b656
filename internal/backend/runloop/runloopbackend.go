package runloop

import (
	"sync"
	"time"

	"github.com/tjamet/go-pollsched/internal/backend"
	"github.com/tjamet/go-pollsched/internal/dispatch"
	"github.com/tjamet/go-pollsched/internal/entry"
	"github.com/tjamet/go-pollsched/internal/logging"
	"github.com/tjamet/go-pollsched/internal/types"
)

// exitPollInterval is how often Loop rechecks exitFlag while waiting for
// the external loop (running elsewhere) to signal shutdown.
const exitPollInterval = 10 * time.Millisecond

// deviceWatch is one external-loop I/O watch, possibly shared by several
// entries on the same waitable (spec.md §4.8: re-registering a
// (function, data) pair ORs its flags in rather than PollBackend's
// forbid-on-conflict rule; this rendition keeps that spirit by letting
// every interested entry coexist and unions their conditions for the
// external loop's watch, rather than capping the watch to one reader and
// one writer).
type deviceWatch struct {
	handle  int64
	entries []*entry.Entry
}

func (w *deviceWatch) conditions() (read, write bool) {
	for _, e := range w.entries {
		r, ww := watchConditions(e.Flags)
		read = read || r
		write = write || ww
	}
	return read, write
}

type noopObserver struct{}

func (noopObserver) ObserveMainLoopFire()      {}
func (noopObserver) ObserveTimerFire(bool)     {}
func (noopObserver) ObserveDeviceFire()        {}
func (noopObserver) ObserveWait(uint64)        {}
func (noopObserver) ObservePlatformTransient() {}
func (noopObserver) ObservePlatformFatal()     {}

// RunLoopBackend implements backend.Backend by delegating scheduling to an
// ExternalLoop. Its own Loop is a no-op driver: the external loop is
// expected to be running on some other thread already (spec.md §4.8
// "ignores loop").
type RunLoopBackend struct {
	mu       sync.Mutex
	loop     ExternalLoop
	pool     *entry.Pool
	observer dispatch.Observer

	devices map[int64]*deviceWatch        // keyed by waitable
	timers  map[int64]*entry.Entry        // keyed by the external loop's timer handle
	handles map[*entry.Entry]int64        // reverse lookup for timer/main-loop Remove
}

// New returns an unstarted RunLoopBackend driving loop.
func New(loop ExternalLoop) *RunLoopBackend {
	return &RunLoopBackend{
		loop:     loop,
		pool:     entry.NewPool(),
		observer: noopObserver{},
		devices:  make(map[int64]*deviceWatch),
		timers:   make(map[int64]*entry.Entry),
		handles:  make(map[*entry.Entry]int64),
	}
}

// SetObserver installs the Observer RunLoopBackend reports fire events to;
// call before registering any entry. A nil observer restores the no-op
// default. RunLoopBackend has no wait/slot-table concept of its own (the
// external loop owns blocking and resource limits), so only the fire
// callbacks of dispatch.Observer apply here.
func (b *RunLoopBackend) SetObserver(o dispatch.Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o == nil {
		o = noopObserver{}
	}
	b.observer = o
}

var _ backend.Backend = (*RunLoopBackend)(nil)

func (b *RunLoopBackend) Init() error { return nil }

// Exit warns through the warn hook, as PollBackend's Exit does, if
// entries remain, since an external loop may still hold watches the caller
// forgot to unregister; RunLoopBackend has no queues of its own to prove
// empty.
func (b *RunLoopBackend) Exit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.devices) + len(b.timers); n != 0 {
		logging.WarnHook("runloopbackend: Exit with %d external registrations still active", n)
	}
	return nil
}

// Loop is a no-op driver per spec.md §4.8: the external loop runs
// independently. It blocks until exitFlag reports true when loop is
// requested, so callers that expect Loop to own the "run until told to
// stop" lifecycle still get that behavior; a single pass (loop == false)
// returns immediately since there is no pass of our own to run.
func (b *RunLoopBackend) Loop(loop bool, exitFlag func() bool, c types.Class, timeoutUs int64) error {
	if !loop {
		return nil
	}
	if exitFlag == nil {
		return nil
	}
	for !exitFlag() {
		time.Sleep(exitPollInterval)
	}
	return nil
}

// Register implements spec.md §4.2 and the RunLoopBackend-specific OR rule
// of §4.8.
func (b *RunLoopBackend) Register(classSet types.ClassSet, flags types.Flags, fn types.Function, data any, typ types.EventType, info int64, lock sync.Locker) (types.Status, error) {
	if fn == nil {
		logging.PanicHook("runloopbackend: Register called with a nil function")
		return types.StatusError, nil
	}
	if !classSet.HasUniversal() {
		logging.PanicHook("runloopbackend: class set %s is missing the universal class", classSet)
		return types.StatusError, nil
	}
	if flags&types.FlagRead != 0 && flags&types.FlagWrite != 0 {
		logging.PanicHook("runloopbackend: entry requests both READ and WRITE")
		return types.StatusError, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch typ {
	case types.EventTimer:
		return b.registerTimerLocked(classSet, flags, fn, data, info, lock, false)
	case types.EventMainLoop:
		return b.registerTimerLocked(classSet, flags, fn, data, 0, lock, true)
	case types.EventDevice:
		return b.registerDeviceLocked(classSet, flags, fn, data, info, lock)
	default:
		logging.PanicHook("runloopbackend: unsupported event type %v", typ)
		return types.StatusError, nil
	}
}

func (b *RunLoopBackend) registerTimerLocked(classSet types.ClassSet, flags types.Flags, fn types.Function, data any, infoUs int64, lock sync.Locker, mainLoop bool) (types.Status, error) {
	e := b.pool.Get()
	e.ClassSet = classSet
	e.Flags = flags
	e.Function = fn
	e.ClientData = data
	e.Lock = lock
	if mainLoop {
		e.Type = types.EventMainLoop
	} else {
		e.Type = types.EventTimer
		e.Info = infoUs
	}

	periodMs := infoUs / 1000
	repeat := mainLoop || flags&types.FlagPeriodic != 0
	handle, err := b.loop.AddTimer(periodMs, repeat, func() { b.fireTimer(e) })
	if err != nil {
		b.pool.Put(e)
		return types.StatusInsufficientResources, err
	}
	e.Ref()
	e.SetOnQueue(true)
	b.timers[handle] = e
	b.handles[e] = handle
	return types.StatusSuccess, nil
}

func (b *RunLoopBackend) registerDeviceLocked(classSet types.ClassSet, flags types.Flags, fn types.Function, data any, waitable int64, lock sync.Locker) (types.Status, error) {
	effective := flags
	if effective&(types.FlagRead|types.FlagWrite) == 0 {
		effective |= types.FlagRead
	}

	e := b.pool.Get()
	e.ClassSet = classSet
	e.Flags = effective
	e.Function = fn
	e.ClientData = data
	e.Type = types.EventDevice
	e.Info = waitable
	e.Lock = lock
	e.Ref()
	e.SetOnQueue(true)

	w, ok := b.devices[waitable]
	if !ok {
		w = &deviceWatch{}
		handle, err := b.loop.AddWatch(waitable, effective&types.FlagRead != 0, effective&types.FlagWrite != 0, func(read, write, hangupOrErr bool) {
			b.fireDevice(waitable, read, write, hangupOrErr)
		})
		if err != nil {
			e.Unref()
			b.pool.Put(e)
			return types.StatusInsufficientResources, err
		}
		w.handle = handle
		b.devices[waitable] = w
	} else {
		read, write := w.conditions()
		newRead, newWrite := read || effective&types.FlagRead != 0, write || effective&types.FlagWrite != 0
		if newRead != read || newWrite != write {
			if err := b.loop.ModifyWatch(w.handle, newRead, newWrite); err != nil {
				logging.WarnHook("runloopbackend: modifying watch for %d failed: %v", waitable, err)
			}
		}
	}
	w.entries = append(w.entries, e)
	return types.StatusSuccess, nil
}

// Remove implements spec.md §4.3.
func (b *RunLoopBackend) Remove(classSet types.ClassSet, flags types.Flags, fn types.Function, data any, typ types.EventType) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch typ {
	case types.EventTimer, types.EventMainLoop:
		for handle, e := range b.timers {
			if e.Matches(classSet, flags, fn, data, typ) {
				delete(b.timers, handle)
				delete(b.handles, e)
				if err := b.loop.RemoveTimer(handle); err != nil {
					logging.WarnHook("runloopbackend: removing timer %d failed: %v", handle, err)
				}
				b.release(e)
				return true
			}
		}
		return false
	case types.EventDevice:
		for waitable, w := range b.devices {
			for i, e := range w.entries {
				if !e.Matches(classSet, flags, fn, data, typ) {
					continue
				}
				w.entries = append(w.entries[:i], w.entries[i+1:]...)
				if len(w.entries) == 0 {
					if err := b.loop.RemoveWatch(w.handle); err != nil {
						logging.WarnHook("runloopbackend: removing watch for %d failed: %v", waitable, err)
					}
					delete(b.devices, waitable)
				} else {
					read, write := w.conditions()
					if err := b.loop.ModifyWatch(w.handle, read, write); err != nil {
						logging.WarnHook("runloopbackend: modifying watch for %d failed: %v", waitable, err)
					}
				}
				b.release(e)
				return true
			}
		}
		return false
	default:
		return false
	}
}

// fireTimer is the callback handed to ExternalLoop.AddTimer. It runs on
// whatever thread the external loop dispatches from, so it takes b.mu for
// its own bookkeeping but releases it before invoking the user callback,
// giving the reentrancy the firing invariant (spec.md §4.5) requires
// without a true recursive mutex.
func (b *RunLoopBackend) fireTimer(e *entry.Entry) {
	b.mu.Lock()
	e.Ref() // bump for firing
	isMainLoop := e.Type == types.EventMainLoop
	periodic := isMainLoop || e.Flags&types.FlagPeriodic != 0
	observer := b.observer
	if !periodic {
		if handle, ok := b.handles[e]; ok {
			delete(b.timers, handle)
			delete(b.handles, e)
		}
		e.SetOnQueue(false)
		e.Unref() // drop the owning reference; not remaining registered
	}
	b.mu.Unlock()

	dispatch.Fire(e)
	if isMainLoop {
		observer.ObserveMainLoopFire()
	} else {
		observer.ObserveTimerFire(periodic)
	}

	b.mu.Lock()
	if e.Unref() { // drop the firing reference
		b.pool.Put(e)
	}
	b.mu.Unlock()
}

func (b *RunLoopBackend) fireDevice(waitable int64, read, write, hangupOrErr bool) {
	if hangupOrErr {
		read, write = true, true
	}

	b.mu.Lock()
	w, ok := b.devices[waitable]
	if !ok {
		b.mu.Unlock()
		return
	}
	var toFire []*entry.Entry
	var remaining []*entry.Entry
	for _, e := range w.entries {
		interested := (read && e.Flags&types.FlagRead != 0) || (write && e.Flags&types.FlagWrite != 0)
		if !interested {
			remaining = append(remaining, e)
			continue
		}
		e.Ref() // bump for firing
		toFire = append(toFire, e)
		if e.Flags&types.FlagPeriodic != 0 {
			remaining = append(remaining, e)
		} else {
			e.SetOnQueue(false)
			e.Unref() // drop the watch's owning reference
		}
	}
	w.entries = remaining
	if len(w.entries) == 0 {
		if err := b.loop.RemoveWatch(w.handle); err != nil {
			logging.WarnHook("runloopbackend: removing watch for %d failed: %v", waitable, err)
		}
		delete(b.devices, waitable)
	}
	observer := b.observer
	b.mu.Unlock()

	for _, e := range toFire {
		dispatch.Fire(e)
		observer.ObserveDeviceFire()
		b.mu.Lock()
		if e.Unref() { // drop the firing reference
			b.pool.Put(e)
		}
		b.mu.Unlock()
	}
}

// release drops the owning reference established at registration and
// recycles the entry once its refcount reaches zero.
func (b *RunLoopBackend) release(e *entry.Entry) {
	if e.Unref() {
		b.pool.Put(e)
	}
}
