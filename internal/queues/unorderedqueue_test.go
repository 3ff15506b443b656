package queues

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tjamet/go-pollsched/internal/entry"
	"github.com/tjamet/go-pollsched/internal/types"
)

func newMainLoopEntry() *entry.Entry {
	return &entry.Entry{
		ClassSet: types.NewClassSet(),
		Type:     types.EventMainLoop,
	}
}

func TestUnorderedQueueAddRemoveCompaction(t *testing.T) {
	q := NewUnorderedQueue()
	a, b, c := newMainLoopEntry(), newMainLoopEntry(), newMainLoopEntry()
	q.Add(a)
	q.Add(b)
	q.Add(c)
	require.Equal(t, 3, q.Len())

	require.True(t, q.Remove(b))
	require.Equal(t, 2, q.Len())
	require.False(t, b.OnQueue())
	// swap-with-last compaction: c should now occupy b's old slot.
	require.Contains(t, q.All(), c)
	require.Contains(t, q.All(), a)
	require.NotContains(t, q.All(), b)
}

func TestUnorderedQueueSnapshotBumpsRefs(t *testing.T) {
	q := NewUnorderedQueue()
	a := newMainLoopEntry()
	q.Add(a)

	snap := q.Snapshot()
	require.Len(t, snap, 1)
	require.EqualValues(t, 1, snap[0].RefCount())
}

func TestUnorderedQueueRemoveMissingReturnsFalse(t *testing.T) {
	q := NewUnorderedQueue()
	require.False(t, q.Remove(newMainLoopEntry()))
}
