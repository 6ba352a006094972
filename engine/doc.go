// Package engine defines the contract of the native Channel Access server
// engine consumed by the bridge.
//
// The engine is a black box: it owns the wire protocol, the transport and the
// event demultiplexer. This package only names the surface the bridge needs:
//
//   - Engine: io processing, event posting and async completion delivery.
//   - Server: the server-wide virtual interface the engine drives to discover
//     PVs (existence test, attach).
//   - PV: the per-variable virtual interface the engine drives for the
//     lifetime of an attached PV.
//
// The bridge package implements Server and PV on top of hosted handlers; an
// engine implementation calls them from its own processing goroutines. The
// enginetest subpackage provides an in-memory loopback engine for tests and
// demos.
package engine
