// Package poll implements PollBackend (spec.md §4.6): a portable scheduler
// backend that waits for readiness on descriptors via the host's
// readiness-poll primitive and uses a host timer for timeouts. The
// primitive itself is OS-specific (poller_linux.go's epoll,
// poller_unix.go's unix.Poll fallback, poller_windows.go's SocketEventMap +
// SlaveThunk); this file holds the PollBackend struct, Init/Exit/Loop and
// the dispatch.Waiter adapter (Register/Remove are in registration.go) — one struct owning a
// kernel resource and exposing the operations a higher layer dispatches
// to.
package poll

import (
	"fmt"
	"sync"
	"time"

	"github.com/tjamet/go-pollsched/internal/backend"
	"github.com/tjamet/go-pollsched/internal/dispatch"
	"github.com/tjamet/go-pollsched/internal/entry"
	"github.com/tjamet/go-pollsched/internal/logging"
	"github.com/tjamet/go-pollsched/internal/queues"
	"github.com/tjamet/go-pollsched/internal/readiness"
	"github.com/tjamet/go-pollsched/internal/types"
)

// DefaultSlop is the grace window spec.md §4.5 calls SLOP; kept here as the
// zero-value default so PollBackend is usable without a Config.
const DefaultSlop = 2_000 // 2ms, microseconds

// Observer receives the events PollBackend produces: everything
// dispatch.Observer covers, plus ObserveSlotTableFull for this backend's own
// resource-exhaustion path (spec.md §7), which Pass itself never triggers.
// A *pollsched.MetricsObserver satisfies this structurally, matching the
// way the facade wires it in without an import cycle.
type Observer interface {
	dispatch.Observer
	ObserveSlotTableFull()
}

type noopObserver struct{}

func (noopObserver) ObserveMainLoopFire()      {}
func (noopObserver) ObserveTimerFire(bool)     {}
func (noopObserver) ObserveDeviceFire()        {}
func (noopObserver) ObserveWait(uint64)        {}
func (noopObserver) ObserveSlotTableFull()     {}
func (noopObserver) ObservePlatformTransient() {}
func (noopObserver) ObservePlatformFatal()     {}

// watch is the backend-wide, poller-level record of interest for one
// waitable, aggregated across every class's ReadinessIndex slot for it (the
// underlying primitive has no notion of "class"; the union of interest
// across classes is what's actually registered with it).
type watch struct {
	readers int
	writers int
	armed   bool
}

// PollBackend implements backend.Backend over the platform poller. One
// TimerQueue and one main-loop UnorderedQueue are shared across all
// classes; a ReadinessIndex is created lazily per class on first DEVICE
// registration in it (spec.md §3 "ReadinessIndex (per class)").
type PollBackend struct {
	mu sync.Mutex

	pool        *entry.Pool
	mainLoop    *queues.UnorderedQueue
	timers      *queues.TimerQueue
	deviceQueue *queues.UnorderedQueue // all DEVICE entries, for Remove + diagnostics
	indexes     map[types.Class]*readiness.Index

	slop int64
	wait poller

	observer Observer

	watches map[int64]*watch

	clockStart  time.Time
	initialized bool
	exited      bool
}

// New returns an unstarted PollBackend. slopMicros <= 0 uses DefaultSlop.
func New(slopMicros int64) *PollBackend {
	if slopMicros <= 0 {
		slopMicros = DefaultSlop
	}
	return &PollBackend{
		pool:        entry.NewPool(),
		mainLoop:    queues.NewUnorderedQueue(),
		timers:      queues.NewTimerQueue(),
		deviceQueue: queues.NewUnorderedQueue(),
		indexes:     make(map[types.Class]*readiness.Index),
		watches:     make(map[int64]*watch),
		slop:        slopMicros,
		wait:        newPoller(),
		observer:    noopObserver{},
	}
}

// SetObserver installs the Observer PollBackend reports fire/wait/error
// events to; call before Init. A nil observer restores the no-op default.
func (p *PollBackend) SetObserver(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if o == nil {
		o = noopObserver{}
	}
	p.observer = o
}

var _ backend.Backend = (*PollBackend)(nil)

func init() {
	backend.Register("poll", func() backend.Backend { return New(0) })
}

// Init opens the underlying poller. Calling Init twice is a programmer
// error (spec.md §7 "double-init").
func (p *PollBackend) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		logging.PanicHook("pollbackend: Init called twice")
		return nil
	}
	if err := p.wait.open(); err != nil {
		return fmt.Errorf("pollbackend: opening poller: %w", err)
	}
	p.clockStart = time.Now()
	p.initialized = true
	return nil
}

// Exit tears down the poller. If any entry is still queued it logs a
// warning through the warn hook with the count; it does not panic, and the
// entries are not released.
func (p *PollBackend) Exit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized || p.exited {
		logging.PanicHook("pollbackend: Exit called before Init or twice")
		return nil
	}
	if n := p.mainLoop.Len() + p.timers.Len() + p.deviceQueue.Len(); n != 0 {
		logging.WarnHook("pollbackend: Exit with %d entries still registered", n)
	}
	err := p.wait.close()
	p.exited = true
	return err
}

func (p *PollBackend) now() int64 {
	return time.Since(p.clockStart).Microseconds()
}

// NowMicros implements dispatch.Clock.
func (p *PollBackend) NowMicros() int64 { return p.now() }

// Loop implements backend.Backend.Loop by repeatedly driving dispatch.Pass.
func (p *PollBackend) Loop(loop bool, exitFlag func() bool, c types.Class, timeoutUs int64) error {
	if exitFlag == nil {
		exitFlag = func() bool { return false }
	}
	for {
		p.mu.Lock()
		index := p.indexes[c]
		if index == nil {
			index = readiness.NewIndex(0)
			p.indexes[c] = index
		}
		observer := p.observer
		p.mu.Unlock()

		dispatch.Pass(p, p.pool, p.mainLoop, p.timers, index, p, p.slop, c, timeoutUs, exitFlag, observer)

		if !loop || exitFlag() {
			return nil
		}
	}
}

// Wait implements dispatch.Waiter over the poller shared by every class.
// Because readiness there is level-triggered and interest is the union of
// every class's registrations, an event not consumed by this class's pass
// remains visible to the next class that waits on it.
func (p *PollBackend) Wait(index *readiness.Index, waitMicros int64) ([]dispatch.ReadyWaitable, error) {
	timeoutMs := -1
	if waitMicros >= 0 {
		timeoutMs = int(waitMicros / 1000)
		if waitMicros > 0 && timeoutMs == 0 {
			timeoutMs = 1
		}
	}

	events, err := p.wait.wait(timeoutMs)
	if err != nil {
		if isBadFD(err) {
			// Usually a race between Remove and this wait (spec.md §7
			// "platform-transient").
			return nil, &dispatch.WaitError{Transient: true, Err: err}
		}
		p.dumpDeviceQueue(err)
		return nil, &dispatch.WaitError{Transient: false, Err: err}
	}

	var ready []dispatch.ReadyWaitable
	for _, ev := range events {
		if _, ok := index.Slot(ev.waitable); !ok {
			continue // ready for a different class than the one waiting
		}
		ready = append(ready, dispatch.ReadyWaitable{Waitable: ev.waitable, Read: ev.read, Write: ev.write})
	}
	return ready, nil
}

// dumpDeviceQueue logs the full DEVICE queue (waitable, flags, refcount)
// before a platform-fatal wait error aborts the process, per spec.md §7 and
// the original_source backends' diagnostic-dump-before-abort behavior
// (SPEC_FULL.md §5).
func (p *PollBackend) dumpDeviceQueue(cause error) {
	p.mu.Lock()
	entries := p.deviceQueue.All()
	dump := make([]string, 0, len(entries))
	for _, e := range entries {
		dump = append(dump, fmt.Sprintf("{waitable=%d flags=%s refcount=%d onqueue=%v}",
			e.Info, e.Flags, e.RefCount(), e.OnQueue()))
	}
	p.mu.Unlock()
	logging.Default().Errorf("pollbackend: platform-fatal wait error %v; device queue: %v", cause, dump)
}
