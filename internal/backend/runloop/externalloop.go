// Package runloop implements RunLoopBackend (spec.md §4.8): a backend that
// registers timers and I/O watches on a caller-supplied external main loop
// instead of running its own wait loop. One struct owning a handle to an
// external control plane, in the same spirit as a client wrapping a remote
// controller, except its register/remove must accept calls from arbitrary
// threads (e.g. signal or I/O completion contexts), unlike PollBackend's
// single-loop-thread model.
package runloop

import (
	"github.com/tjamet/go-pollsched/internal/types"
)

// ExternalLoop is the host main loop's watch/timer API that RunLoopBackend
// drives, e.g. GLib's g_timeout_add/g_io_add_watch (grounded on
// original_source/lib/bora/pollGtk/pollGtk.c) or an equivalent event-loop
// binding. Handles are opaque identifiers the external loop assigns and
// RunLoopBackend stores for later removal.
type ExternalLoop interface {
	// AddTimer schedules fire to run every periodMs milliseconds (once if
	// repeat is false; periodMs == 0 with repeat == true means "as soon as
	// possible, every iteration", used for MAIN_LOOP entries).
	AddTimer(periodMs int64, repeat bool, fire func()) (handle int64, err error)
	RemoveTimer(handle int64) error

	// AddWatch registers interest in read and/or write readiness on
	// waitable (e.g. a file descriptor or socket handle known to the
	// external loop). fire reports read and write readiness and, separately,
	// hang-up/error; RunLoopBackend treats hangupOrErr as both read- and
	// write-ready (spec.md §4.5 step 4).
	AddWatch(waitable int64, read, write bool, fire func(read, write, hangupOrErr bool)) (handle int64, err error)
	ModifyWatch(handle int64, read, write bool) error
	RemoveWatch(handle int64) error
}

// watchConditions translates {READ, WRITE} to the external loop's
// condition mask convention, per spec.md §4.8: "I/O watch conditions
// translate {READ→in|pri, WRITE→out}, plus error/hang-up/invalid
// unconditionally." Concrete ExternalLoop implementations are expected to
// always watch for error/hang-up/invalid regardless of what this reports;
// this function only carries the read/write half of that translation.
func watchConditions(flags types.Flags) (read, write bool) {
	return flags&types.FlagRead != 0, flags&types.FlagWrite != 0
}
