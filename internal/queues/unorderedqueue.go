package queues

import (
	"github.com/tjamet/go-pollsched/internal/entry"
	"github.com/tjamet/go-pollsched/internal/types"
)

// UnorderedQueue holds DEVICE or MAIN_LOOP entries with no ordering
// guarantee beyond "registration order is preserved until something is
// removed", matching spec.md §3 ("other queues are unordered"). Backed by
// a slice rather than entry.Entry.Next, since device/main-loop entries are
// also indexed by descriptor in internal/readiness and don't need intrusive
// list membership.
type UnorderedQueue struct {
	entries []*entry.Entry
}

// NewUnorderedQueue returns an empty queue.
func NewUnorderedQueue() *UnorderedQueue { return &UnorderedQueue{} }

// Add appends e to the queue.
func (q *UnorderedQueue) Add(e *entry.Entry) {
	e.SetOnQueue(true)
	q.entries = append(q.entries, e)
}

// Remove detaches e from the queue by identity using swap-with-last
// compaction (spec.md §4.3, §5 "last-slot-swap compaction"), returning true
// if e was found.
func (q *UnorderedQueue) Remove(e *entry.Entry) bool {
	for i, cand := range q.entries {
		if cand == e {
			last := len(q.entries) - 1
			q.entries[i] = q.entries[last]
			q.entries[last] = nil
			q.entries = q.entries[:last]
			e.SetOnQueue(false)
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the currently queued entries, bumping each
// one's reference count before returning. Dispatch uses this to fire a
// consistent set even if a callback mutates the queue mid-pass (spec.md
// §4.5 step 1, §9 "snapshot-then-drain").
func (q *UnorderedQueue) Snapshot() []*entry.Entry {
	out := make([]*entry.Entry, len(q.entries))
	copy(out, q.entries)
	for _, e := range out {
		e.Ref()
	}
	return out
}

// Len returns the number of queued entries.
func (q *UnorderedQueue) Len() int { return len(q.entries) }

// All returns the live backing slice for read-only iteration without
// bumping refs (PollBackend's device-queue diagnostic dump uses it).
func (q *UnorderedQueue) All() []*entry.Entry { return q.entries }

// FindMatch returns the first queued entry whose four-tuple matches per
// entry.Entry.Matches, for Remove (spec.md §4.3).
func (q *UnorderedQueue) FindMatch(classSet types.ClassSet, flags types.Flags, fn types.Function, data any, typ types.EventType) *entry.Entry {
	for _, e := range q.entries {
		if e.Matches(classSet, flags, fn, data, typ) {
			return e
		}
	}
	return nil
}
