package pollsched

import "github.com/tjamet/go-pollsched/internal/types"

// Re-export the scheduler's vocabulary from internal/types.

type (
	// Class is a small integer tag; see internal/types.Class.
	Class = types.Class
	// ClassSet is a bitmask over Class values with a discriminator bit.
	ClassSet = types.ClassSet
	// Flags is a bit field carried on every Entry.
	Flags = types.Flags
	// EventType is the discriminant of an Entry's payload.
	EventType = types.EventType
	// Status is the result of a Register call.
	Status = types.Status
	// Function is the opaque callback type fired by the dispatcher.
	Function = types.Function
)

const (
	ClassUniversal  = types.ClassUniversal
	ClassUI         = types.ClassUI
	ClassDevicePump = types.ClassDevicePump
	ClassBackground = types.ClassBackground
)

const (
	FlagRead             = types.FlagRead
	FlagWrite            = types.FlagWrite
	FlagPeriodic         = types.FlagPeriodic
	FlagSocket           = types.FlagSocket
	FlagRemoveAtPowerOff = types.FlagRemoveAtPowerOff
)

const (
	EventTimer    = types.EventTimer
	EventDevice   = types.EventDevice
	EventMainLoop = types.EventMainLoop
)

const (
	StatusSuccess               = types.StatusSuccess
	StatusInsufficientResources = types.StatusInsufficientResources
	StatusError                 = types.StatusError
)

// NewClassSet builds a ClassSet containing the given classes plus the
// universal class, which every entry must belong to (spec.md §3 invariant).
func NewClassSet(classes ...Class) ClassSet {
	return types.NewClassSet(classes...)
}
