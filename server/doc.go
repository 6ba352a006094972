// Package server provides a high-level threaded channel access server on top
// of the bridge adapters.
//
// # PVs
//
// A PV owns a thread-safe attribute store. Value updates are constrained to
// the control limits, alarm status and severity are derived from the warning
// and alarm limits, and changes are published as subscription events gated by
// the value and archive deadbands. Writes from clients can be intercepted
// with a WriteHandler, which may accept, reject, replace or defer the write.
//
// # Server
//
// Server runs the engine's process loop on its own goroutine and answers
// existence and attach requests from a name registry. The registry holds
// weak references only: a PV stays reachable through the server exactly as
// long as the creating code keeps it alive.
package server
