// Package daemon coordinates the long-running pulsecam process.
//
// It enforces single-instance execution with a flock, gates startup on the
// message-bus handshake and the object-store probe, then runs the capture
// and eviction workers against one shared resource lock until the context
// is cancelled. Shutdown waits for in-flight critical sections, disconnects
// the bus and releases the instance lock.
//
// Keep orchestration logic here: cycle behaviour lives in the capture and
// eviction packages while the daemon focuses on startup, shutdown, and
// status reporting.
package daemon
