package poll

// pollerEvent is one readiness event reported by a poller implementation,
// already translated to the read/write/both-on-hangup shape spec.md §4.5
// step 4 requires.
type pollerEvent struct {
	waitable int64
	read     bool
	write    bool
}

// poller is the OS-specific readiness-wait primitive PollBackend drives.
// Three implementations exist: an epoll-backed one for Linux (poller_linux.go,
// grounded on joeycumines-go-utilpkg/eventloop's FastPoller), a
// unix.Poll-backed one for every other unix (poller_unix.go) that rebuilds
// its interest list each call (the same portability fallback used for
// platforms without the fast-path primitive's prerequisites), and a Windows
// one (poller_windows.go)
// built on SocketEventMap and SlaveThunk.
type poller interface {
	open() error
	close() error
	add(waitable int64, read, write bool) error
	mod(waitable int64, read, write bool) error
	del(waitable int64) error
	wait(timeoutMs int) ([]pollerEvent, error)
}
