//go:build windows

package poll

import (
	"sync"

	"golang.org/x/sys/windows"

	"github.com/tjamet/go-pollsched/internal/constants"
	"github.com/tjamet/go-pollsched/internal/logging"
)

// SlaveThunk extends a capped wait primitive (WaitForMultipleObjects,
// limited to MAXIMUM_WAIT_OBJECTS) past its object limit, per spec.md §4.7.
// It owns a worker goroutine waiting on up to constants.DefaultSlaveWaitLimit
// real objects plus three control events (RESUME, UPDATE, EXIT). When one
// of its real objects fires, the goroutine records the index, signals its
// paired main-array event, and suspends itself (waits only on control
// events) until the main scheduler handles the firing and signals RESUME.
type SlaveThunk struct {
	mu      sync.Mutex
	objects []windows.Handle // real objects this slave owns
	mainSignal windows.Handle // event the main wait array includes for this slave
	resume  windows.Handle
	update  windows.Handle
	exit    windows.Handle

	firedIndex int // index into objects that caused the last wakeup, -1 if none
	done       chan struct{}
}

// NewSlaveThunk creates a slave thunk with its own control events and
// starts its worker goroutine.
func NewSlaveThunk() (*SlaveThunk, error) {
	mainSignal, err := windows.CreateEvent(nil, 1 /* manual reset */, 0, nil)
	if err != nil {
		return nil, err
	}
	resume, err := windows.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		return nil, err
	}
	update, err := windows.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		return nil, err
	}
	exitEvent, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return nil, err
	}
	s := &SlaveThunk{
		mainSignal: mainSignal,
		resume:     resume,
		update:     update,
		exit:       exitEvent,
		firedIndex: -1,
		done:       make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// MainSignal is the event the main wait array watches for this slave.
func (s *SlaveThunk) MainSignal() windows.Handle { return s.mainSignal }

// Add registers one more object on this slave's list, up to
// constants.DefaultSlaveWaitLimit. Returns false if the slave is full.
func (s *SlaveThunk) Add(h windows.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.objects) >= constants.DefaultSlaveWaitLimit {
		return false
	}
	s.objects = append(s.objects, h)
	windows.SetEvent(s.update)
	return true
}

// Remove detaches h from this slave's list. Tolerates the object not being
// present (a registration racing a removal, spec.md §4.7 "tolerating
// transient 'invalid handle' errors").
func (s *SlaveThunk) Remove(h windows.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cand := range s.objects {
		if cand == h {
			s.objects = append(s.objects[:i], s.objects[i+1:]...)
			break
		}
	}
	windows.SetEvent(s.update)
}

// FiredObject returns the object that caused the slave's last wakeup, if
// any, for the main scheduler to dispatch after seeing mainSignal fire.
func (s *SlaveThunk) FiredObject() (windows.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firedIndex < 0 || s.firedIndex >= len(s.objects) {
		return 0, false
	}
	return s.objects[s.firedIndex], true
}

// Resume signals the slave to clear its firing state and resume waiting on
// its real objects, once the main scheduler has handled the fired one.
func (s *SlaveThunk) Resume() {
	s.mu.Lock()
	s.firedIndex = -1
	s.mu.Unlock()
	windows.ResetEvent(s.mainSignal)
	windows.SetEvent(s.resume)
}

// Exit signals the worker goroutine to terminate, then waits up to
// constants.SlaveShutdownTimeout for a clean acknowledgement before giving
// up (spec.md §9 bug-smell (c); Go has no TerminateThread equivalent, so
// past the timeout this just stops waiting and lets the goroutine exit on
// its own next wakeup — documented in SPEC_FULL.md §6 as a deviation).
func (s *SlaveThunk) Exit() {
	windows.SetEvent(s.exit)
	select {
	case <-s.done:
	case <-afterDuration(constants.SlaveShutdownTimeout):
		logging.WarnHook("slavethunk: worker did not exit within %s; abandoning it", constants.SlaveShutdownTimeout)
	}
}

func (s *SlaveThunk) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		handles := append([]windows.Handle{s.resume, s.update, s.exit}, s.objects...)
		s.mu.Unlock()

		idx, err := waitForMultiple(handles, false, windows.INFINITE)
		if err != nil {
			logging.WarnHook("slavethunk: wait failed: %v", err)
			return
		}
		switch idx {
		case 0: // RESUME: loop and rebuild the handle list
			continue
		case 1: // UPDATE: object list changed, rebuild and rewait
			continue
		case 2: // EXIT
			return
		default:
			realIdx := idx - 3
			s.mu.Lock()
			s.firedIndex = realIdx
			s.mu.Unlock()
			logging.Default().WithQueue(realIdx).Debug("slavethunk: slot fired")
			windows.SetEvent(s.mainSignal)
			// Suspend on control events only until Resume is called.
			s.waitControlOnly()
		}
	}
}

// waitControlOnly blocks on just the three control events, the "suspends
// itself" behavior of spec.md §4.7 while the main scheduler handles the
// fired object.
func (s *SlaveThunk) waitControlOnly() {
	for {
		idx, err := waitForMultiple([]windows.Handle{s.resume, s.update, s.exit}, false, windows.INFINITE)
		if err != nil {
			return
		}
		if idx == 0 || idx == 2 {
			return
		}
		// UPDATE while suspended: nothing to do until resumed.
	}
}
