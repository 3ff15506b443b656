// Package readiness implements the per-class ReadinessIndex (spec.md §3,
// §4.2, §4.3): for each waitable referenced by at least one DEVICE entry in
// a class, a Slot holding the waitable's identity, its interested event
// mask, and at most one reader and one writer Entry. Grounded on the
// common fd-keyed bookkeeping pattern of a per-tag state array indexed by
// descriptor tag; here the key is the waitable itself.
package readiness

import (
	"errors"

	"github.com/tjamet/go-pollsched/internal/entry"
	"github.com/tjamet/go-pollsched/internal/types"
)

// ErrSlotTableFull is returned by GetOrCreate when a class's slot table has
// reached its configured capacity (spec.md §4.2, §7 "resource-exhaustion").
var ErrSlotTableFull = errors.New("readiness: per-class slot table full")

// Slot holds the reader/writer entries for one waitable in one class.
type Slot struct {
	Waitable int64
	Mask     types.Flags // union of FlagRead/FlagWrite currently of interest
	Reader   *entry.Entry
	Writer   *entry.Entry
	index    int // position in Index.slots, maintained for swap-compaction
}

// Empty reports whether neither a reader nor a writer occupies the slot.
func (s *Slot) Empty() bool { return s.Reader == nil && s.Writer == nil }

// Index is the ReadinessIndex for a single class: a dense, optionally
// capacity-bounded table of slots keyed by waitable identity.
type Index struct {
	capacity int // 0 means unbounded
	slots    []*Slot
	byHandle map[int64]*Slot
}

// NewIndex returns an empty index. capacity <= 0 means unbounded;
// PollBackend always passes 0. A positive capacity caps the number of slots
// (spec.md §4.7).
func NewIndex(capacity int) *Index {
	return &Index{
		capacity: capacity,
		byHandle: make(map[int64]*Slot),
	}
}

// Slot returns the existing slot for waitable, if any.
func (ix *Index) Slot(waitable int64) (*Slot, bool) {
	s, ok := ix.byHandle[waitable]
	return s, ok
}

// GetOrCreate returns the slot for waitable, creating one if this is the
// first registration for it in this class. Returns ErrSlotTableFull if the
// table is at capacity and waitable is not already present.
func (ix *Index) GetOrCreate(waitable int64) (*Slot, error) {
	if s, ok := ix.byHandle[waitable]; ok {
		return s, nil
	}
	if ix.capacity > 0 && len(ix.slots) >= ix.capacity {
		return nil, ErrSlotTableFull
	}
	s := &Slot{Waitable: waitable, index: len(ix.slots)}
	ix.slots = append(ix.slots, s)
	ix.byHandle[waitable] = s
	return s, nil
}

// SetReader occupies the slot's reader half with e. Returns false if a
// different reader already occupies it (spec.md §4.2 "registering a second
// reader ... is forbidden" — the caller decides whether that's a
// programmer error (PollBackend) or should be resolved by ORing in the
// caller's own policy (RunLoopBackend)).
func (s *Slot) SetReader(e *entry.Entry, flag types.Flags) bool {
	if s.Reader != nil && s.Reader != e {
		return false
	}
	s.Reader = e
	s.Mask |= flag
	return true
}

// SetWriter occupies the slot's writer half with e, same contract as
// SetReader.
func (s *Slot) SetWriter(e *entry.Entry, flag types.Flags) bool {
	if s.Writer != nil && s.Writer != e {
		return false
	}
	s.Writer = e
	s.Mask |= flag
	return true
}

// ClearReader empties the reader half, dropping the read bit from Mask.
func (s *Slot) ClearReader() {
	s.Reader = nil
	s.Mask &^= types.FlagRead
}

// ClearWriter empties the writer half, dropping the write bit from Mask.
func (s *Slot) ClearWriter() {
	s.Writer = nil
	s.Mask &^= types.FlagWrite
}

// CompactIfEmpty removes the slot for waitable if it has neither a reader
// nor a writer left, using swap-with-last compaction to keep the slot
// array dense (spec.md §4.3, §5).
func (ix *Index) CompactIfEmpty(waitable int64) {
	s, ok := ix.byHandle[waitable]
	if !ok || !s.Empty() {
		return
	}
	last := len(ix.slots) - 1
	ix.slots[s.index] = ix.slots[last]
	ix.slots[s.index].index = s.index
	ix.slots[last] = nil
	ix.slots = ix.slots[:last]
	delete(ix.byHandle, waitable)
}

// All returns the live slot slice, for diagnostic dumps (spec.md §7
// "platform-fatal ... diagnostic dump of the full DEVICE queue") and for
// backends rebuilding their wait set.
func (ix *Index) All() []*Slot { return ix.slots }

// Len returns the number of occupied slots.
func (ix *Index) Len() int { return len(ix.slots) }
