package poll

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tjamet/go-pollsched/internal/types"
)

func pipe(t *testing.T) (r, w *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

func TestPollBackendDeviceReadFires(t *testing.T) {
	p := New(0)
	require.NoError(t, p.Init())
	defer p.Exit()

	r, w := pipe(t)

	var fired bool
	var mu sync.Mutex
	status, err := p.Register(types.NewClassSet(), types.FlagRead, func(data any) {
		mu.Lock()
		fired = true
		mu.Unlock()
	}, nil, types.EventDevice, int64(r.Fd()), nil)
	require.NoError(t, err)
	require.Equal(t, types.StatusSuccess, status)

	_, werr := w.Write([]byte("x"))
	require.NoError(t, werr)

	err = p.Loop(false, nil, types.ClassUniversal, 100_000)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.True(t, fired)
}

func TestPollBackendRemoveStopsFiring(t *testing.T) {
	p := New(0)
	require.NoError(t, p.Init())
	defer p.Exit()

	r, w := pipe(t)

	calls := 0
	fn := func(data any) { calls++ }

	status, err := p.Register(types.NewClassSet(), types.FlagRead, fn, "tag", types.EventDevice, int64(r.Fd()), nil)
	require.NoError(t, err)
	require.Equal(t, types.StatusSuccess, status)

	ok := p.Remove(types.NewClassSet(), types.FlagRead, nil, "tag", types.EventDevice)
	require.False(t, ok, "Remove must match by function identity too")

	ok = p.Remove(types.NewClassSet(), types.FlagRead, fn, "tag", types.EventDevice)
	require.True(t, ok)

	_, werr := w.Write([]byte("x"))
	require.NoError(t, werr)
	err = p.Loop(false, nil, types.ClassUniversal, 50_000)
	require.NoError(t, err)
	require.Equal(t, 0, calls)
}

func TestPollBackendTimerFiresOnce(t *testing.T) {
	p := New(0)
	require.NoError(t, p.Init())
	defer p.Exit()

	done := make(chan struct{})
	status, err := p.Register(types.NewClassSet(), 0, func(data any) { close(done) }, nil, types.EventTimer, 1_000, nil)
	require.NoError(t, err)
	require.Equal(t, types.StatusSuccess, status)

	// Let the timer come due: a pass sweeps due timers before it waits.
	time.Sleep(2 * time.Millisecond)
	err = p.Loop(false, nil, types.ClassUniversal, 500_000)
	require.NoError(t, err)

	select {
	case <-done:
	default:
		t.Fatal("timer did not fire within the loop pass")
	}
}

func TestPollBackendMainLoopFiresEveryPass(t *testing.T) {
	p := New(0)
	require.NoError(t, p.Init())
	defer p.Exit()

	var calls int
	status, err := p.Register(types.NewClassSet(), types.FlagPeriodic, func(data any) { calls++ }, nil, types.EventMainLoop, 0, nil)
	require.NoError(t, err)
	require.Equal(t, types.StatusSuccess, status)

	require.NoError(t, p.Loop(false, nil, types.ClassUniversal, 10_000))
	require.NoError(t, p.Loop(false, nil, types.ClassUniversal, 10_000))
	require.Equal(t, 2, calls)
}

func TestPollBackendRegisterRejectsBothReadAndWrite(t *testing.T) {
	p := New(0)
	require.NoError(t, p.Init())
	defer p.Exit()

	paniced := false
	func() {
		defer func() {
			if recover() != nil {
				paniced = true
			}
		}()
		_, _ = p.Register(types.NewClassSet(), types.FlagRead|types.FlagWrite, func(any) {}, nil, types.EventDevice, 0, nil)
	}()
	require.True(t, paniced)
}

func TestPollBackendConflictingReaderIsProgrammerError(t *testing.T) {
	p := New(0)
	require.NoError(t, p.Init())
	defer p.Exit()

	r, _ := pipe(t)

	_, err := p.Register(types.NewClassSet(), types.FlagRead, func(any) {}, "a", types.EventDevice, int64(r.Fd()), nil)
	require.NoError(t, err)

	paniced := false
	func() {
		defer func() {
			if recover() != nil {
				paniced = true
			}
		}()
		_, _ = p.Register(types.NewClassSet(), types.FlagRead, func(any) {}, "b", types.EventDevice, int64(r.Fd()), nil)
	}()
	require.True(t, paniced)
}

func TestPollBackendNowMicrosMonotonic(t *testing.T) {
	p := New(0)
	require.NoError(t, p.Init())
	defer p.Exit()

	a := p.NowMicros()
	time.Sleep(time.Millisecond)
	b := p.NowMicros()
	require.Greater(t, b, a)
}
