package ingest

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is classification.
var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrDependencyUnavailable matches a *DependencyError raised because a
	// collaborator was not ready, or lost its connection during the call.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrDependencyFailed matches a *DependencyError raised because a ready
	// collaborator returned an error.
	ErrDependencyFailed = errors.New("dependency operation failed")
)

// ValidationError is returned when a submitted index is rejected.
// No side effect has happened when it is returned.
type ValidationError struct {
	// Input is the raw submitted value
	Input string

	// Max is the configured upper bound
	Max int

	// Cause is one of fib.ErrNotInteger, fib.ErrNegative, fib.ErrTooHigh
	Cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid index %q: %v", e.Input, e.Cause)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// DependencyError reports a failed cache, channel or store call.
type DependencyError struct {
	// Dependency is "cache", "channel" or "store"
	Dependency string

	// Op is the operation attempted
	Op string

	// Unavailable is true when the call was refused because the
	// collaborator was not ready or the failed call left it not ready,
	// false when a reachable collaborator returned an error.
	Unavailable bool

	Cause error
}

func (e *DependencyError) Error() string {
	if e.Unavailable {
		if e.Cause != nil {
			return fmt.Sprintf("%s unavailable (%s): %v", e.Dependency, e.Op, e.Cause)
		}
		return fmt.Sprintf("%s unavailable (%s)", e.Dependency, e.Op)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Dependency, e.Op, e.Cause)
}

func (e *DependencyError) Is(target error) bool {
	if e.Unavailable {
		return target == ErrDependencyUnavailable
	}
	return target == ErrDependencyFailed
}

func (e *DependencyError) Unwrap() error {
	return e.Cause
}

func unavailable(dep, op string) *DependencyError {
	return &DependencyError{Dependency: dep, Op: op, Unavailable: true}
}

func isValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func isUnavailable(err error) bool {
	return errors.Is(err, ErrDependencyUnavailable)
}
