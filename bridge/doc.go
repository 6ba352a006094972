// Package bridge is the adapter layer between the native Channel Access
// server engine and hosted handler objects.
//
// The engine drives fixed virtual interfaces (engine.Server, engine.PV) from
// its own processing goroutines; handlers are ordinary Go objects guarded by
// a single hosted execution lock. The bridge gives the engine a stable
// adapter for every handler, translates each native callback into a handler
// dispatch, and mirrors the engine's logical reference on the hosted side so
// a handler stays alive exactly as long as the engine knows about it.
//
// # Adapters
//
//	ServerAdapter  implements engine.Server; entry point for discovery
//	PVAdapter      implements engine.PV; one per hosted PV, same lifetime
//	AsyncWrite     deferred completion handle for one write
//
// # Fail-safe dispatch
//
// Every engine-facing operation has a conservative default: a handler that
// returns an error (or an unrecognized value) degrades its PV to
// "unsupported" or "not found" instead of faulting the engine. Such failures
// are reported to the package logger and cleared, never propagated. Calls
// made from hosted code (PostEvent, Complete, Fail) run in a real caller
// context, so their failures are returned as errors instead.
//
// # Lock discipline
//
// EnterHosted acquires the hosted execution lock and marks the context so
// nested crossings are no-ops; YieldHosted releases it around blocking engine
// calls. Adapter construction itself needs no lock since it touches no hosted
// state.
package bridge
