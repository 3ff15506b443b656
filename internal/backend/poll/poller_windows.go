//go:build windows

package poll

import (
	"fmt"
	"time"

	"golang.org/x/sys/windows"

	"github.com/tjamet/go-pollsched/internal/constants"
)

// waitForMultiple wraps windows.WaitForMultipleObjects, returning the index
// of the handle that fired. Grounded on original_source's pollDefault.c
// WaitForMultipleObjectsEx loop (SPEC_FULL.md §5).
func waitForMultiple(handles []windows.Handle, waitAll bool, timeoutMs uint32) (int, error) {
	event, err := windows.WaitForMultipleObjects(handles, waitAll, timeoutMs)
	if err != nil {
		return 0, err
	}
	idx := int(event) - int(windows.WAIT_OBJECT_0)
	if idx < 0 || idx >= len(handles) {
		return 0, fmt.Errorf("poll: unexpected wait result %d for %d handles", event, len(handles))
	}
	return idx, nil
}

// afterDuration is a small indirection around time.After so tests can stub
// shutdown waits without depending on wall-clock time.
var afterDuration = func(d time.Duration) <-chan time.Time { return time.After(d) }

// windowsPoller implements poller on top of SocketEventMap (socket ->
// OS event handle translation) and a pool of SlaveThunk workers extending
// past WaitForMultipleObjects' object cap, per spec.md §4.6-§4.7.
//
// windows.WaitForMultipleObjects accepts at most MAXIMUM_WAIT_OBJECTS (64)
// handles. constants.DefaultSlaveSlots of those slots are reserved for
// slave thunks; the rest (constants.DefaultSlaveSlotCapacity) are direct
// sockets waited on by the main thread itself.
type windowsPoller struct {
	sockets *SocketEventMap
	slaves  []*SlaveThunk

	direct map[windows.Handle]int64 // event -> waitable, for sockets waited directly
	owner  map[int64]*SlaveThunk    // waitable -> slave thunk it was delegated to, if any
}

func newPoller() poller {
	return &windowsPoller{
		sockets: NewSocketEventMap(),
		direct:  make(map[windows.Handle]int64),
		owner:   make(map[int64]*SlaveThunk),
	}
}

func (p *windowsPoller) open() error  { return nil }
func (p *windowsPoller) close() error {
	for _, s := range p.slaves {
		s.Exit()
	}
	p.slaves = nil
	return nil
}

func (p *windowsPoller) add(waitable int64, read, write bool) error {
	ev, err := p.sockets.Bind(windows.Handle(waitable), read, write)
	if err != nil {
		return err
	}
	if len(p.direct) < constants.DefaultSlaveSlotCapacity {
		p.direct[ev] = waitable
		return nil
	}
	s := p.slaveFor(waitable)
	if !s.Add(ev) {
		return fmt.Errorf("poll: no slave thunk capacity for waitable %d", waitable)
	}
	p.owner[waitable] = s
	return nil
}

func (p *windowsPoller) mod(waitable int64, read, write bool) error {
	_, err := p.sockets.Bind(windows.Handle(waitable), read, write)
	return err
}

func (p *windowsPoller) del(waitable int64) error {
	ev, ok := p.sockets.EventFor(windows.Handle(waitable))
	if ok {
		if s, owned := p.owner[waitable]; owned {
			s.Remove(ev)
			delete(p.owner, waitable)
		} else {
			delete(p.direct, ev)
		}
	}
	p.sockets.Unbind(windows.Handle(waitable), true, true)
	return nil
}

// slaveFor returns a slave thunk with spare capacity, creating one if every
// existing one (up to constants.DefaultSlaveSlots) is full.
func (p *windowsPoller) slaveFor(waitable int64) *SlaveThunk {
	for _, s := range p.slaves {
		if len(s.objects) < constants.DefaultSlaveWaitLimit {
			return s
		}
	}
	s, err := NewSlaveThunk()
	if err != nil || len(p.slaves) >= constants.DefaultSlaveSlots {
		// Out of slave capacity; caller's Add will fail and surface the
		// exhaustion as a resource error rather than panicking here.
		if s != nil {
			s.Exit()
		}
		// deliberately full: Add always returns false
		return &SlaveThunk{objects: make([]windows.Handle, constants.DefaultSlaveWaitLimit)}
	}
	p.slaves = append(p.slaves, s)
	return s
}

// wait assembles the direct sockets plus each slave's mainSignal into one
// WaitForMultipleObjects call, per spec.md §4.7's "main array" design.
func (p *windowsPoller) wait(timeoutMs int) ([]pollerEvent, error) {
	handles := make([]windows.Handle, 0, len(p.direct)+len(p.slaves))
	directEvents := make([]windows.Handle, 0, len(p.direct))
	for ev := range p.direct {
		handles = append(handles, ev)
		directEvents = append(directEvents, ev)
	}
	for _, s := range p.slaves {
		handles = append(handles, s.MainSignal())
	}
	if len(handles) == 0 {
		return nil, nil
	}

	timeout := uint32(windows.INFINITE)
	if timeoutMs >= 0 {
		timeout = uint32(timeoutMs)
	}

	idx, err := waitForMultiple(handles, false, timeout)
	if err != nil {
		if err == windows.WAIT_TIMEOUT {
			return nil, nil
		}
		return nil, err
	}

	if idx < len(directEvents) {
		return p.eventFor(directEvents[idx])
	}
	s := p.slaves[idx-len(directEvents)]
	defer s.Resume()
	ev, ok := s.FiredObject()
	if !ok {
		return nil, nil
	}
	return p.eventFor(ev)
}

func (p *windowsPoller) eventFor(ev windows.Handle) ([]pollerEvent, error) {
	socket, ok := p.sockets.SocketFor(ev)
	if !ok {
		return nil, nil
	}
	read, write, hangupOrErr, err := p.sockets.NetworkEvents(socket)
	if err != nil {
		return nil, err
	}
	if hangupOrErr {
		read, write = true, true
	}
	if !read && !write {
		return nil, nil
	}
	return []pollerEvent{{waitable: int64(socket), read: read, write: write}}, nil
}

func isBadFD(err error) bool {
	return err == windows.ERROR_INVALID_HANDLE
}
