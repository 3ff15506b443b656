//go:build windows

package poll

import (
	"golang.org/x/sys/windows"
)

// socketBinding is one socket's entry in a SocketEventMap: the OS event
// handle it is bound to and which network events are currently of
// interest, as a refcount per bit so overlapping read/write registrations
// on the same socket share one binding (spec.md §5 "sockets-to-event
// bindings in PollBackend are refcounted by the number of interested flag
// bits still set").
type socketBinding struct {
	event   windows.Handle
	readers int
	writers int
}

func (b *socketBinding) networkEvents() uint32 {
	var ev uint32
	if b.readers > 0 {
		ev |= windows.FD_READ | windows.FD_ACCEPT
	}
	if b.writers > 0 {
		ev |= windows.FD_WRITE | windows.FD_CONNECT
	}
	ev |= windows.FD_CLOSE
	return ev
}

// SocketEventMap is the side table spec.md §4.6 describes for platforms
// whose wait primitive operates on OS event handles rather than socket
// handles directly: it binds a socket to an event via WSAEventSelect on
// first registration, and OR-in/clears interest bits as entries are
// added/removed.
type SocketEventMap struct {
	bindings map[windows.Handle]*socketBinding
	byEvent  map[windows.Handle]windows.Handle // event -> socket
}

// NewSocketEventMap returns an empty map.
func NewSocketEventMap() *SocketEventMap {
	return &SocketEventMap{
		bindings: make(map[windows.Handle]*socketBinding),
		byEvent:  make(map[windows.Handle]windows.Handle),
	}
}

// Bind registers one more interested entry (read and/or write) for socket,
// creating its event binding on first use, per spec.md §4.6.
func (m *SocketEventMap) Bind(socket windows.Handle, read, write bool) (windows.Handle, error) {
	b, ok := m.bindings[socket]
	if !ok {
		ev, err := windows.WSACreateEvent()
		if err != nil {
			return 0, err
		}
		b = &socketBinding{event: ev}
		m.bindings[socket] = b
		m.byEvent[ev] = socket
	}
	if read {
		b.readers++
	}
	if write {
		b.writers++
	}
	if err := windows.WSAEventSelect(socket, b.event, b.networkEvents()); err != nil {
		return 0, err
	}
	return b.event, nil
}

// Unbind removes one interested entry. When neither read nor write
// interest remains (only FD_CLOSE), the binding is torn down and the
// mapping is removed, per spec.md §4.6 "when only 'close' remains, the
// binding is torn down and the mapping removed".
func (m *SocketEventMap) Unbind(socket windows.Handle, read, write bool) {
	b, ok := m.bindings[socket]
	if !ok {
		return
	}
	if read && b.readers > 0 {
		b.readers--
	}
	if write && b.writers > 0 {
		b.writers--
	}
	if b.readers == 0 && b.writers == 0 {
		windows.WSAEventSelect(socket, b.event, 0)
		windows.WSACloseEvent(b.event)
		delete(m.byEvent, b.event)
		delete(m.bindings, socket)
		return
	}
	windows.WSAEventSelect(socket, b.event, b.networkEvents())
}

// EventFor returns the OS event handle bound to socket, if any.
func (m *SocketEventMap) EventFor(socket windows.Handle) (windows.Handle, bool) {
	b, ok := m.bindings[socket]
	if !ok {
		return 0, false
	}
	return b.event, true
}

// SocketFor returns the socket bound to ev, the reverse lookup a signaled
// wait result needs.
func (m *SocketEventMap) SocketFor(ev windows.Handle) (windows.Handle, bool) {
	s, ok := m.byEvent[ev]
	return s, ok
}

// Events returns every currently-bound event handle, for building the main
// WaitForMultipleObjects array.
func (m *SocketEventMap) Events() []windows.Handle {
	out := make([]windows.Handle, 0, len(m.byEvent))
	for ev := range m.byEvent {
		out = append(out, ev)
	}
	return out
}

// NetworkEvents queries and resets the pending FD_* bits for socket after
// its event fires, per spec.md §4.6 "the backend queries the pending
// network events from the OS, resets the event, and decides read/write
// firing from the reported bits".
func (m *SocketEventMap) NetworkEvents(socket windows.Handle) (read, write, hangupOrErr bool, err error) {
	b, ok := m.bindings[socket]
	if !ok {
		return false, false, false, nil
	}
	var ne windows.WSANetworkEvents
	if err := windows.WSAEnumNetworkEvents(socket, b.event, &ne); err != nil {
		return false, false, false, err
	}
	if ne.Events&(windows.FD_READ|windows.FD_ACCEPT) != 0 {
		read = true
	}
	if ne.Events&(windows.FD_WRITE|windows.FD_CONNECT) != 0 {
		write = true
	}
	if ne.Events&windows.FD_CLOSE != 0 {
		hangupOrErr = true
	}
	return read, write, hangupOrErr, nil
}
