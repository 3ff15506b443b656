//go:build !linux && !windows

package poll

import (
	"sync"

	"golang.org/x/sys/unix"
)

// pollPoller implements poller via unix.Poll for platforms without epoll
// (darwin, the BSDs). Unlike epoll it has no persistent kernel-side
// interest set, so the full fd list is rebuilt on every wait call, the
// same portability tradeoff made for platforms lacking the fast-path
// primitive's prerequisites.
type pollPoller struct {
	mu      sync.Mutex
	entries map[int64]*unix.PollFd
}

func newPoller() poller { return &pollPoller{entries: make(map[int64]*unix.PollFd)} }

func (p *pollPoller) open() error  { return nil }
func (p *pollPoller) close() error { return nil }

func (p *pollPoller) add(waitable int64, read, write bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[waitable] = &unix.PollFd{Fd: int32(waitable), Events: pollEventsFor(read, write)}
	return nil
}

func (p *pollPoller) mod(waitable int64, read, write bool) error {
	return p.add(waitable, read, write)
}

func (p *pollPoller) del(waitable int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, waitable)
	return nil
}

func pollEventsFor(read, write bool) int16 {
	var ev int16
	if read {
		ev |= unix.POLLIN
	}
	if write {
		ev |= unix.POLLOUT
	}
	return ev
}

func (p *pollPoller) wait(timeoutMs int) ([]pollerEvent, error) {
	p.mu.Lock()
	fds := make([]unix.PollFd, 0, len(p.entries))
	for _, e := range p.entries {
		fds = append(fds, *e)
	}
	p.mu.Unlock()

	if len(fds) == 0 {
		// unix.Poll with an empty slice still blocks for timeoutMs, which
		// is the behavior a watch-less wait should have (e.g. a pure-timer
		// class).
	}
	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]pollerEvent, 0, n)
	for _, fd := range fds {
		if fd.Revents == 0 {
			continue
		}
		e := pollerEvent{waitable: int64(fd.Fd)}
		if fd.Revents&unix.POLLIN != 0 {
			e.read = true
		}
		if fd.Revents&unix.POLLOUT != 0 {
			e.write = true
		}
		if fd.Revents&(unix.POLLHUP|unix.POLLERR) != 0 {
			e.read = true
			e.write = true
		}
		out = append(out, e)
	}
	return out, nil
}

func isBadFD(err error) bool { return err == unix.EBADF }
