package pollsched

import (
	"sync"

	"github.com/tjamet/go-pollsched/internal/backend"
	"github.com/tjamet/go-pollsched/internal/backend/poll"
	"github.com/tjamet/go-pollsched/internal/backend/runloop"
	"github.com/tjamet/go-pollsched/internal/logging"
)

// defaultTimeoutUs is LoopDefault's ceiling (spec.md §6): "the 1-second
// ceiling ensures the universal class periodically fires even when idle."
const defaultTimeoutUs = 1_000_000

// These hold the process-default singleton's state. spec.md §9
// ("Global state") allows the façade to expose a process-default singleton
// on top of an otherwise explicit handle; every operation here is a thin
// dispatch to impl, kept behind a package-level mutex so Init*/Exit races
// are themselves well-defined even though the scheduler's own callback
// dispatch is single-threaded per backend.
var (
	defaultMu      sync.Mutex
	defaultImpl    backend.Backend
	defaultMetrics *Metrics
)

// InitDefault initializes the process-default scheduler with a PollBackend
// tuned by cfg.Slop (zero uses PollBackend's built-in default), wired to
// record into the process-default Metrics (DefaultMetrics). A non-empty
// cfg.LogLevel replaces the default logger with one at that level. Calling
// any Init* function twice without an intervening Exit is a programmer error
// (spec.md §7 "double-init").
func InitDefault(cfg Config) error {
	if cfg.LogLevel != "" {
		level := logging.LevelInfo
		switch cfg.LogLevel {
		case "debug":
			level = logging.LevelDebug
		case "warn":
			level = logging.LevelWarn
		case "error":
			level = logging.LevelError
		}
		logging.SetDefault(logging.NewLogger(&logging.Config{Level: level}))
	}
	b := poll.New(int64(cfg.Slop.Microseconds()))
	m := NewMetrics()
	b.SetObserver(NewMetricsObserver(m))
	return initWithImpl(b, m)
}

// InitRunLoop initializes the process-default scheduler with a
// RunLoopBackend driving loop (spec.md §4.8), wired to the process-default
// Metrics the same way InitDefault wires PollBackend.
func InitRunLoop(loop runloop.ExternalLoop) error {
	b := runloop.New(loop)
	m := NewMetrics()
	b.SetObserver(NewMetricsObserver(m))
	return initWithImpl(b, m)
}

// InitWithImpl initializes the process-default scheduler with a
// caller-supplied Backend, for custom or test implementations. DefaultMetrics
// stays nil: a caller-supplied Backend is responsible for its own
// observability if it wants any.
func InitWithImpl(vtable backend.Backend) error {
	return initWithImpl(vtable, nil)
}

func initWithImpl(vtable backend.Backend, metrics *Metrics) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultImpl != nil {
		logging.PanicHook("pollsched: Init called twice without an intervening Exit")
		return nil
	}
	if err := vtable.Init(); err != nil {
		return err
	}
	defaultImpl = vtable
	defaultMetrics = metrics
	return nil
}

// DefaultMetrics snapshots the process-default scheduler's built-in metrics.
// It returns the zero MetricsSnapshot if the default scheduler wasn't
// initialized via InitDefault/InitRunLoop (e.g. a custom InitWithImpl
// backend, or no Init at all).
func DefaultMetrics() MetricsSnapshot {
	defaultMu.Lock()
	m := defaultMetrics
	defaultMu.Unlock()
	if m == nil {
		return MetricsSnapshot{}
	}
	return m.Snapshot()
}

// Exit tears down the process-default scheduler.
func Exit() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultImpl == nil {
		logging.PanicHook("pollsched: Exit called before Init")
		return nil
	}
	err := defaultImpl.Exit()
	if defaultMetrics != nil {
		defaultMetrics.Stop()
	}
	defaultImpl = nil
	defaultMetrics = nil
	return err
}

func current() backend.Backend {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultImpl == nil {
		logging.PanicHook("pollsched: operation called before Init")
		return nil
	}
	return defaultImpl
}

// Loop runs the dispatcher at class c with budget timeoutUs (spec.md §4.5).
// exitFlag may be nil.
func Loop(loop bool, exitFlag func() bool, c Class, timeoutUs int64) error {
	return current().Loop(loop, exitFlag, c, timeoutUs)
}

// LoopDefault is shorthand for Loop(loop, exitFlag, c, 1_000_000) (spec.md
// §6).
func LoopDefault(loop bool, exitFlag func() bool, c Class) error {
	return current().Loop(loop, exitFlag, c, defaultTimeoutUs)
}

// Register attaches a new entry (spec.md §4.2).
func Register(classSet ClassSet, flags Flags, fn Function, data any, typ EventType, info int64, lock sync.Locker) (Status, error) {
	return current().Register(classSet, flags, fn, data, typ, info, lock)
}

// Remove detaches the first entry whose four-tuple matches exactly
// (spec.md §4.3).
func Remove(classSet ClassSet, flags Flags, fn Function, data any, typ EventType) bool {
	return current().Remove(classSet, flags, fn, data, typ)
}

// RegisterDevice is the cb_device convenience wrapper (spec.md §6):
// registers fn/data on waitable, defaulting to read-readiness, tagged
// REMOVE_AT_POWEROFF.
func RegisterDevice(fn Function, data any, waitable int64, periodic bool) (Status, error) {
	flags := FlagRead | FlagRemoveAtPowerOff
	if periodic {
		flags |= FlagPeriodic
	}
	return Register(NewClassSet(), flags, fn, data, EventDevice, waitable, nil)
}

// RemoveDevice is the cb_device_remove convenience wrapper.
func RemoveDevice(fn Function, data any, periodic bool) bool {
	flags := FlagRead | FlagRemoveAtPowerOff
	if periodic {
		flags |= FlagPeriodic
	}
	return Remove(NewClassSet(), flags, fn, data, EventDevice)
}

// RegisterTimer is the cb_rtime convenience wrapper (spec.md §6):
// registers a timer firing delayUs from now, tagged REMOVE_AT_POWEROFF.
func RegisterTimer(fn Function, data any, delayUs int64, periodic bool, lock sync.Locker) (Status, error) {
	flags := Flags(FlagRemoveAtPowerOff)
	if periodic {
		flags |= FlagPeriodic
	}
	return Register(NewClassSet(), flags, fn, data, EventTimer, delayUs, lock)
}

// RemoveTimer is the cb_rtime_remove convenience wrapper. Removal matches
// on the four-tuple (spec.md §4.3), which doesn't include the timer's
// delay, so no delay parameter is needed here.
func RemoveTimer(fn Function, data any, periodic bool) bool {
	flags := Flags(FlagRemoveAtPowerOff)
	if periodic {
		flags |= FlagPeriodic
	}
	return Remove(NewClassSet(), flags, fn, data, EventTimer)
}
