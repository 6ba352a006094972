// Package enginetest provides an in-memory loopback implementation of the
// engine contract.
//
// The loopback engine has no transport: client-side calls (Search, Connect,
// Get, Put, Monitor) enqueue requests that the next Process call dispatches
// through the registered adapters, exactly as a real engine would from its
// io loop. Replies are futures resolved during Process, or later for writes
// a handler defers.
package enginetest
