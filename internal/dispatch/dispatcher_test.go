package dispatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tjamet/go-pollsched/internal/entry"
	"github.com/tjamet/go-pollsched/internal/queues"
	"github.com/tjamet/go-pollsched/internal/readiness"
	"github.com/tjamet/go-pollsched/internal/types"
)

var errInvalidHandle = errors.New("invalid handle")

type fakeClock struct{ now int64 }

func (c *fakeClock) NowMicros() int64 { return c.now }

type fakeWaiter struct {
	ready []ReadyWaitable
	err   error
	calls int
}

func (w *fakeWaiter) Wait(index *readiness.Index, waitMicros int64) ([]ReadyWaitable, error) {
	w.calls++
	return w.ready, w.err
}

func registerMainLoop(pool *entry.Pool, q *queues.UnorderedQueue, cs types.ClassSet, fn types.Function) *entry.Entry {
	e := pool.Get()
	e.ClassSet = cs
	e.Type = types.EventMainLoop
	e.Function = fn
	e.SetOnQueue(true)
	e.Ref()
	q.Add(e)
	return e
}

func registerTimer(pool *entry.Pool, q *queues.TimerQueue, cs types.ClassSet, fireTime int64, period int64, periodic bool, fn types.Function) *entry.Entry {
	e := pool.Get()
	e.ClassSet = cs
	e.Type = types.EventTimer
	e.FireTime = fireTime
	e.Period = period
	if periodic {
		e.Flags |= types.FlagPeriodic
	}
	e.Function = fn
	e.Ref()
	q.Insert(e)
	return e
}

func TestPassFiresMainLoopBeforeTimersBeforeReadiness(t *testing.T) {
	pool := entry.NewPool()
	mainLoop := queues.NewUnorderedQueue()
	timers := queues.NewTimerQueue()
	index := readiness.NewIndex(0)
	clock := &fakeClock{now: 1000}

	var order []string
	cs := types.NewClassSet()
	registerMainLoop(pool, mainLoop, cs, func(any) { order = append(order, "main") })
	registerTimer(pool, timers, cs, 1000, 0, false, func(any) { order = append(order, "timer") })

	slot, err := index.GetOrCreate(7)
	require.NoError(t, err)
	deviceEntry := pool.Get()
	deviceEntry.ClassSet = cs
	deviceEntry.Type = types.EventDevice
	deviceEntry.Flags = types.FlagRead
	deviceEntry.Function = func(any) { order = append(order, "device") }
	deviceEntry.Ref()
	deviceEntry.SetOnQueue(true)
	slot.SetReader(deviceEntry, types.FlagRead)

	waiter := &fakeWaiter{ready: []ReadyWaitable{{Waitable: 7, Read: true}}}

	Pass(clock, pool, mainLoop, timers, index, waiter, 2, types.ClassUniversal, 1_000_000, nil, nil)

	require.Equal(t, []string{"main", "timer", "device"}, order)
	require.Equal(t, 0, mainLoop.Len())
	require.Equal(t, 0, timers.Len())
	_, stillThere := index.Slot(7)
	require.False(t, stillThere, "non-periodic device entry should be removed after firing")
}

func TestPassExitFlagStopsBeforeLaterPhases(t *testing.T) {
	pool := entry.NewPool()
	mainLoop := queues.NewUnorderedQueue()
	timers := queues.NewTimerQueue()
	index := readiness.NewIndex(0)
	clock := &fakeClock{now: 1000}

	cs := types.NewClassSet()
	exit := false
	registerMainLoop(pool, mainLoop, cs, func(any) { exit = true })
	timerFired := false
	registerTimer(pool, timers, cs, 1000, 0, false, func(any) { timerFired = true })

	waiter := &fakeWaiter{}

	Pass(clock, pool, mainLoop, timers, index, waiter, 2, types.ClassUniversal, 1_000_000, func() bool { return exit }, nil)

	require.False(t, timerFired, "timer phase must not run once the exit flag is observed true")
	require.Equal(t, 0, waiter.calls, "wait phase must not run once the exit flag is observed true")
}

func TestPeriodicTimerRearmsAndReinserts(t *testing.T) {
	pool := entry.NewPool()
	mainLoop := queues.NewUnorderedQueue()
	timers := queues.NewTimerQueue()
	index := readiness.NewIndex(0)
	clock := &fakeClock{now: 1000}

	cs := types.NewClassSet()
	fireCount := 0
	e := registerTimer(pool, timers, cs, 1000, 500, true, func(any) { fireCount++ })

	waiter := &fakeWaiter{}
	Pass(clock, pool, mainLoop, timers, index, waiter, 2, types.ClassUniversal, 1_000_000, nil, nil)

	require.Equal(t, 1, fireCount)
	require.Equal(t, 1, timers.Len(), "periodic entry must be reinserted")
	require.True(t, e.OnQueue())
	require.EqualValues(t, 1500, e.FireTime)
	require.EqualValues(t, 1, e.RefCount(), "only the queue's owning reference should remain")
}

func TestOneShotTimerIsFreedAfterFiring(t *testing.T) {
	pool := entry.NewPool()
	mainLoop := queues.NewUnorderedQueue()
	timers := queues.NewTimerQueue()
	index := readiness.NewIndex(0)
	clock := &fakeClock{now: 1000}

	cs := types.NewClassSet()
	fired := false
	e := registerTimer(pool, timers, cs, 1000, 0, false, func(any) { fired = true })

	Pass(clock, pool, mainLoop, timers, index, &fakeWaiter{}, 2, types.ClassUniversal, 0, nil, nil)

	require.True(t, fired)
	require.Zero(t, timers.Len())
	require.EqualValues(t, 0, e.RefCount())

	recycled := pool.Get()
	require.Same(t, e, recycled, "freed entry should be returned to the pool")
}

func TestDeviceReaderAndWriterBothFireOnHangUp(t *testing.T) {
	pool := entry.NewPool()
	mainLoop := queues.NewUnorderedQueue()
	timers := queues.NewTimerQueue()
	index := readiness.NewIndex(0)
	clock := &fakeClock{now: 0}

	cs := types.NewClassSet()
	slot, err := index.GetOrCreate(3)
	require.NoError(t, err)

	var readFired, writeFired bool
	reader := pool.Get()
	reader.ClassSet, reader.Type, reader.Flags = cs, types.EventDevice, types.FlagRead
	reader.Function = func(any) { readFired = true }
	reader.Ref()
	reader.SetOnQueue(true)
	slot.SetReader(reader, types.FlagRead)

	writer := pool.Get()
	writer.ClassSet, writer.Type, writer.Flags = cs, types.EventDevice, types.FlagWrite
	writer.Function = func(any) { writeFired = true }
	writer.Ref()
	writer.SetOnQueue(true)
	slot.SetWriter(writer, types.FlagWrite)

	// Hang-up/error translation into both read-ready and write-ready is the
	// backend's job; dispatch just trusts ReadyWaitable's bits.
	waiter := &fakeWaiter{ready: []ReadyWaitable{{Waitable: 3, Read: true, Write: true}}}

	Pass(clock, pool, mainLoop, timers, index, waiter, 2, types.ClassUniversal, 0, nil, nil)

	require.True(t, readFired)
	require.True(t, writeFired)
	require.Equal(t, 0, index.Len())
}

func TestPeriodicDeviceEntryStaysRegisteredAfterFiring(t *testing.T) {
	pool := entry.NewPool()
	mainLoop := queues.NewUnorderedQueue()
	timers := queues.NewTimerQueue()
	index := readiness.NewIndex(0)
	clock := &fakeClock{now: 0}

	cs := types.NewClassSet()
	slot, err := index.GetOrCreate(9)
	require.NoError(t, err)

	fireCount := 0
	reader := pool.Get()
	reader.ClassSet, reader.Type = cs, types.EventDevice
	reader.Flags = types.FlagRead | types.FlagPeriodic
	reader.Function = func(any) { fireCount++ }
	reader.Ref()
	reader.SetOnQueue(true)
	slot.SetReader(reader, types.FlagRead)

	waiter := &fakeWaiter{ready: []ReadyWaitable{{Waitable: 9, Read: true}}}
	Pass(clock, pool, mainLoop, timers, index, waiter, 2, types.ClassUniversal, 0, nil, nil)

	require.Equal(t, 1, fireCount)
	got, ok := index.Slot(9)
	require.True(t, ok, "periodic device entry must remain registered")
	require.Same(t, reader, got.Reader)
}

func TestPassClassifiesTransientWaitErrorAndContinues(t *testing.T) {
	pool := entry.NewPool()
	mainLoop := queues.NewUnorderedQueue()
	timers := queues.NewTimerQueue()
	index := readiness.NewIndex(0)
	clock := &fakeClock{now: 0}

	waiter := &fakeWaiter{err: &WaitError{Transient: true, Err: errInvalidHandle}}

	require.NotPanics(t, func() {
		Pass(clock, pool, mainLoop, timers, index, waiter, 2, types.ClassUniversal, 0, nil, nil)
	})
}

// TestReentrantRemoveOfLaterMainLoopEntryTakesEffectThisPass covers spec.md
// S4: if A's callback removes B (a MAIN_LOOP entry later in the same
// snapshot), B's callback must not fire in this pass. It also exercises
// the bookkeeping path when fireMainLoop's own q.Remove(e) then observes
// "already gone": no fire, no leak, and no negative refcount.
func TestReentrantRemoveOfLaterMainLoopEntryTakesEffectThisPass(t *testing.T) {
	pool := entry.NewPool()
	mainLoop := queues.NewUnorderedQueue()
	timers := queues.NewTimerQueue()
	index := readiness.NewIndex(0)
	clock := &fakeClock{now: 0}

	cs := types.NewClassSet()
	bFired := false
	var b *entry.Entry

	aFired := false
	_ = registerMainLoop(pool, mainLoop, cs, func(any) {
		aFired = true
		// Mirrors what a backend's Remove does on a reentrant call: detach
		// from the queue and drop the owning reference.
		require.True(t, mainLoop.Remove(b))
		if b.Unref() {
			pool.Put(b)
		}
	})
	b = registerMainLoop(pool, mainLoop, cs, func(any) { bFired = true })

	Pass(clock, pool, mainLoop, timers, index, &fakeWaiter{}, 2, types.ClassUniversal, 0, nil, nil)

	require.True(t, aFired)
	require.False(t, bFired, "B must not fire in the same pass once A removed it")
	require.Equal(t, 0, mainLoop.Len())
}
