// Package constants holds the scheduler's tunable defaults, grounded on
// spec.md §4.5-§4.7 and the Open Question decisions in SPEC_FULL.md §6.
// config.go's DefaultConfig starts from these. Of a loaded Config,
// InitDefault applies only Slop and LogLevel; the other values here are read
// directly by the code that uses them.
package constants

import "time"

const (
	// DefaultSlopMicros is the grace window (spec.md §4.5, §9 bug-smell
	// (b)) by which a periodic timer may fire early to absorb host-tick
	// quantization drift. Kept as a named constant, never auto-tuned.
	DefaultSlopMicros = 2_000 // 2ms

	// DefaultLoopTimeoutMicros is LoopDefault's blocking-wait ceiling
	// (spec.md §6 loop_default; original_source/lib/bora/poll/poll.c's
	// MAX_SLEEP_TIME): the universal class keeps running even when
	// otherwise idle.
	DefaultLoopTimeoutMicros = 1_000_000 // 1s

	// DefaultSlaveWaitLimit is L (spec.md §4.7): the number of objects the
	// wait primitive can attend to in one call on platforms with a capped
	// wait primitive (e.g. WaitForMultipleObjects' MAXIMUM_WAIT_OBJECTS).
	DefaultSlaveWaitLimit = 64

	// DefaultSlaveSlots is S (spec.md §4.7): the number of slave-thunk
	// slots reserved at the tail of the main wait array.
	DefaultSlaveSlots = 3

	// DefaultSlaveSlotCapacity is L-S, the number of real objects the main
	// wait array can hold directly before overflow is handed to a slave.
	DefaultSlaveSlotCapacity = DefaultSlaveWaitLimit - DefaultSlaveSlots
)

// SlaveShutdownTimeout is the grace period a slave thunk is given to
// acknowledge an EXIT control event before the scheduler stops waiting on
// it (spec.md §9 bug-smell (c)). Go has no TerminateThread equivalent, so
// past this timeout the scheduler abandons the goroutine rather than
// forcibly killing it; see SPEC_FULL.md §6 for the documented deviation.
const SlaveShutdownTimeout = 15 * time.Second
