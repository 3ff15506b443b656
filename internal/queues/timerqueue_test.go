package queues

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tjamet/go-pollsched/internal/entry"
	"github.com/tjamet/go-pollsched/internal/types"
)

func newTimerEntry(fireTime int64, periodic bool) *entry.Entry {
	e := &entry.Entry{
		ClassSet: types.NewClassSet(),
		Type:     types.EventTimer,
		FireTime: fireTime,
	}
	if periodic {
		e.Flags |= types.FlagPeriodic
	}
	return e
}

func TestTimerQueueOrdersByFireTime(t *testing.T) {
	q := NewTimerQueue()
	e3 := newTimerEntry(300, false)
	e1 := newTimerEntry(100, false)
	e2 := newTimerEntry(200, false)

	q.Insert(e3)
	q.Insert(e1)
	q.Insert(e2)

	due, ok := q.NextDue(types.ClassUniversal)
	require.True(t, ok)
	require.EqualValues(t, 100, due)
	require.Equal(t, 3, q.Len())
}

func TestTimerQueueTiesBreakByInsertionOrder(t *testing.T) {
	q := NewTimerQueue()
	first := newTimerEntry(100, false)
	second := newTimerEntry(100, false)
	q.Insert(first)
	q.Insert(second)

	got := q.FindDue(100, 0, types.ClassUniversal)
	require.Same(t, first, got, "first-inserted entry with a tied FireTime must be found first")
}

func TestTimerQueueRemove(t *testing.T) {
	q := NewTimerQueue()
	e := newTimerEntry(100, false)
	q.Insert(e)
	require.True(t, e.OnQueue())

	require.True(t, q.Remove(e))
	require.False(t, e.OnQueue())
	require.False(t, q.Remove(e), "removing an already-removed entry must report false")
}

func TestFindDueRespectsSlopOnlyForPeriodic(t *testing.T) {
	q := NewTimerQueue()
	oneShot := newTimerEntry(1000, false)
	periodic := newTimerEntry(1000, true)
	q.Insert(oneShot)
	q.Insert(periodic)

	// now=999, slop=5: within the walk bound (999+5>=1000) but the one-shot
	// must not fire early; only the periodic entry may.
	got := q.FindDue(999, 5, types.ClassUniversal)
	require.Same(t, periodic, got)
}

func TestFindDueIgnoresMismatchedClass(t *testing.T) {
	q := NewTimerQueue()
	e := &entry.Entry{
		ClassSet: types.NewClassSet(types.ClassUI),
		Type:     types.EventTimer,
		FireTime: 10,
	}
	q.Insert(e)

	require.Nil(t, q.FindDue(10, 0, types.ClassBackground))
	require.Same(t, e, q.FindDue(10, 0, types.ClassUI))
}
