// Package backend defines the five-operation vtable spec.md §4.1 describes
// as the only boundary between the public facade and a concrete scheduler
// implementation, playing the role a single concrete controller struct
// would in a simpler design, except here it is a Go interface so
// PollBackend, RunLoopBackend and a test double can all satisfy it.
package backend

import (
	"sync"

	"github.com/tjamet/go-pollsched/internal/types"
)

// Backend is the pluggable implementation boundary (spec.md §4.1). A
// program hands exactly one Backend to the facade's InitWithImpl; the
// public API is a thin dispatch to it.
type Backend interface {
	// Init performs one-time setup. The facade calls it exactly once;
	// calling it twice is a programmer error (spec.md §7).
	Init() error

	// Exit tears down queues and indexes. PollBackend and RunLoopBackend
	// log a warning through the warn hook if entries are still registered;
	// neither panics on that.
	Exit() error

	// Loop runs the dispatcher (spec.md §4.5) at class c with budget
	// timeoutUs. If loop is false, exactly one pass runs. exitFlag is
	// polled at each phase boundary; when it reports true, Loop returns
	// immediately. Loop never returns an error for callback failures —
	// those are opaque to the scheduler (spec.md §7) — but may return one
	// for backend-level setup problems encountered before the first pass.
	Loop(loop bool, exitFlag func() bool, c types.Class, timeoutUs int64) error

	// Register attaches a new Entry per spec.md §4.2. lock, if non-nil, is
	// held only around this entry's own firing.
	Register(classSet types.ClassSet, flags types.Flags, fn types.Function, data any, typ types.EventType, info int64, lock sync.Locker) (types.Status, error)

	// Remove detaches the first Entry whose four-tuple matches exactly
	// (spec.md §4.3), reporting whether one was found.
	Remove(classSet types.ClassSet, flags types.Flags, fn types.Function, data any, typ types.EventType) bool
}

// Factory builds a fresh, unstarted Backend from a registered name.
type Factory func() Backend

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds name to the backend registry, from an init() in the package
// that implements the backend. Only poll registers itself ("poll"); runloop
// needs an ExternalLoop and does not. The facade does not call Lookup.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Lookup returns the factory registered under name, if any.
func Lookup(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}
