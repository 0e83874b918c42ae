// Package graph provides the token/pool graph built from a trace and the
// builder that fills it.
//
// # Ownership Model
//
// A Graph is owned by exactly one Builder while a trace is processed. Once
// Build returns, the graph and its statistics are handed to sinks through
// the Reader interface; sinks must not mutate them. Nothing enforces this
// beyond the read-only interface.
//
// # Thread Safety
//
// Graph is NOT safe for concurrent mutation. Concurrent reads after the
// build has finished are fine.
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrNodeNotFound is returned when an edge references a non-existent node.
	// Both endpoints must exist before an edge can be created.
	ErrNodeNotFound = errors.New("node not found")

	// ErrTraceSource is returned when the trace source cannot be opened or read.
	// It is distinct from a trace with no matching lines, which yields an empty
	// graph and no error.
	ErrTraceSource = errors.New("trace source unavailable")
)
