// Package engine implements the plan execution engine: it traverses a
// resolved plan's graph, issues HTTP requests, evaluates assertions, and
// emits ordered execution events.
package engine

import "fmt"

// ValidationError is a malformed-plan error found while the plan's graph
// is built (duplicate or unknown node ID, bad sentinel edges, a cycle).
// Fatal: it aborts the run before any node executes. An unsupported
// response format is not a ValidationError: it fails only its own node.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("engine: validation: %s", e.Message) }

// TransportError records an HTTP failure reaching the target under test.
// It is attached to a NodeResult; it never aborts the run.
type TransportError struct {
	NodeID string
	Cause  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("engine: transport error on node %q: %v", e.NodeID, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// SecretResolutionError means a secret provider was missing or a
// resolver call failed. Fatal: aborts the run before any node executes.
type SecretResolutionError struct {
	Provider string
	Ref      string
	Cause    error
}

func (e *SecretResolutionError) Error() string {
	return fmt.Sprintf("engine: secret resolution failed for %s:%s: %v", e.Provider, e.Ref, e.Cause)
}

func (e *SecretResolutionError) Unwrap() error { return e.Cause }

// AssertionFailure is captured as a node error; it never aborts traversal.
type AssertionFailure struct {
	NodeID  string
	Message string
}

func (e *AssertionFailure) Error() string {
	return fmt.Sprintf("%s: %s", e.NodeID, e.Message)
}

// InternalError wraps a panic or other unexpected failure inside the
// engine. The run is marked failed and an ERROR event is emitted.
type InternalError struct {
	Cause any
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("engine: internal error: %v", e.Cause)
}
