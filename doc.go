// Package pollsched implements an event-driven callback dispatcher that
// multiplexes real-time timers, readiness events on file descriptors or OS
// handles, and zero-delay main-loop work onto a single thread's run loop.
//
// A program selects a Backend — PollBackend for a self-contained readiness
// loop, RunLoopBackend to integrate with an external main loop, or a custom
// implementation — via one of the Init* functions, then registers timers,
// device watches, and main-loop callbacks with Register and drives them
// with Loop or LoopDefault.
package pollsched
