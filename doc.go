// Package casbridge bridges a native Channel Access server engine with
// hosted PV handler objects.
//
// The native engine drives a fixed virtual interface: existence tests,
// attaches, reads, writes, interest registration and teardown. Hosted
// handlers are plain Go objects with optional capabilities. The bridge
// sits between the two, entering the hosted execution lock around every
// dispatch, translating handler answers into engine status codes, and
// falling back to conservative defaults whenever a handler fails. Handler
// errors never unwind into the engine.
//
// # Architecture Overview
//
// The module is organized into several packages with distinct
// responsibilities:
//
//	cas-bridge/          Root package documentation
//	├── ca/              Channel Access domain types: data types, alarms, events, timestamps
//	├── engine/          The native engine contract and typed value buffers
//	│   └── enginetest/  In-memory loopback engine for tests and the demo daemon
//	├── codec/           Attribute set to typed buffer conversion
//	├── bridge/          Adapter core: exec lock, ownership mirror, PV and server adapters, async writes
//	├── server/          High-level server with attribute-store PVs and write handlers
//	├── errors/          Structured error types for diagnostics
//	└── cmd/casd/        Demo daemon serving PVs from a yaml definition file
//
// # Quick Start
//
// Serve a PV over an engine:
//
//	eng := enginetest.NewLoopback()
//	srv, err := server.NewServer(eng, codec.Std{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Shutdown(ctx)
//
//	pv, err := srv.CreatePV("TEMP1", ca.TypeDouble,
//	    server.WithInitial(ca.Attributes{Value: 23.5}, ca.FieldValue))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pv.SetValue(ctx, 24.0)
//
// # Ownership
//
// When a PV attaches, the engine takes a logical reference that the bridge
// mirrors with exactly one extra count on the PV's shared reference handle.
// The mirror is released exactly once, on the first destroy callback, no
// matter how often the engine repeats either side. Deferred writes follow
// the same discipline through their own handles.
//
// # Thread Safety
//
// All adapter entry points are safe for concurrent use. Handler dispatches
// are serialized by the hosted execution lock; the lock region travels on
// the context, so handlers may call back into the bridge without
// deadlocking.
package casbridge
