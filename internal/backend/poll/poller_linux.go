//go:build linux

package poll

import "golang.org/x/sys/unix"

// epollPoller implements poller over Linux epoll, grounded on
// joeycumines-go-utilpkg/eventloop/poller_linux.go's FastPoller
// (EpollCreate1/EpollCtl/EpollWait wiring, EPOLLIN/OUT/HUP/ERR translation).
type epollPoller struct {
	fd int
}

func newPoller() poller { return &epollPoller{} }

func (p *epollPoller) open() error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.fd = fd
	return nil
}

func (p *epollPoller) close() error { return unix.Close(p.fd) }

func eventsFor(read, write bool) uint32 {
	var ev uint32
	if read {
		ev |= unix.EPOLLIN
	}
	if write {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) add(waitable int64, read, write bool) error {
	ev := &unix.EpollEvent{Events: eventsFor(read, write), Fd: int32(waitable)}
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, int(waitable), ev)
}

func (p *epollPoller) mod(waitable int64, read, write bool) error {
	ev := &unix.EpollEvent{Events: eventsFor(read, write), Fd: int32(waitable)}
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, int(waitable), ev)
}

func (p *epollPoller) del(waitable int64) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, int(waitable), nil)
}

func (p *epollPoller) wait(timeoutMs int) ([]pollerEvent, error) {
	var raw [64]unix.EpollEvent
	n, err := unix.EpollWait(p.fd, raw[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]pollerEvent, 0, n)
	for i := 0; i < n; i++ {
		mask := raw[i].Events
		e := pollerEvent{waitable: int64(raw[i].Fd)}
		if mask&unix.EPOLLIN != 0 {
			e.read = true
		}
		if mask&unix.EPOLLOUT != 0 {
			e.write = true
		}
		if mask&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			e.read = true
			e.write = true
		}
		out = append(out, e)
	}
	return out, nil
}

// isBadFD reports whether err is the "invalid handle" condition spec.md §7
// classifies as platform-transient (usually a race between unregister and
// wait).
func isBadFD(err error) bool { return err == unix.EBADF }
