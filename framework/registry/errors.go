package registry

import (
	"errors"
	"fmt"
)

// ── Error taxonomy ────────────────────────────────────────────────────────────

// CycleError reports an unresolvable circular reference: the named component
// was requested for full construction while it was already in creation.
// Property-style cycles are resolved through early references; a CycleError
// means the cycle runs through construction-time arguments and cannot be
// broken by the registry.
type CycleError struct {
	// Name is the first re-entered component name.
	Name string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("registry: component %q is currently in creation — unresolvable circular reference", e.Name)
}

// CreationError wraps an error returned (or panicked) by a builder or
// producer callback. Errors suppressed during the same construction attempt
// are attached as related causes, capped at the suppression limit.
type CreationError struct {
	Name  string
	Cause error

	// Suppressed holds errors observed incidentally while this construction
	// was in flight (at most suppressedLimit entries).
	Suppressed []error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("registry: creation of component %q failed: %v", e.Name, e.Cause)
}

func (e *CreationError) Unwrap() error { return e.Cause }

// NotAllowedError reports a construction attempt while the registry is
// tearing all components down. Do not request components from inside a
// teardown callback.
type NotAllowedError struct {
	Name string
}

func (e *NotAllowedError) Error() string {
	return fmt.Sprintf("registry: creation of component %q not allowed while the registry is in destruction", e.Name)
}

// ConsistencyError reports a broken internal invariant — for example
// unmarking a component that was never marked in creation. It indicates a
// programming error in the caller or the registry itself and is never
// retried.
type ConsistencyError struct {
	Op   string
	Name string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("registry: %s: inconsistent state for component %q", e.Op, e.Name)
}

// ── Classification helpers ────────────────────────────────────────────────────

// IsCycle reports whether err is (or wraps) a CycleError.
func IsCycle(err error) bool {
	var ce *CycleError
	return errors.As(err, &ce)
}

// IsNotAllowed reports whether err is (or wraps) a NotAllowedError.
func IsNotAllowed(err error) bool {
	var ne *NotAllowedError
	return errors.As(err, &ne)
}
