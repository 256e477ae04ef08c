package medusa

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine. Use errors.Is to test for them;
// wrapped variants carry additional context.
var (
	// ErrInvalidSpec indicates a malformed BranchSpec. It is raised during
	// engine construction or at the start of a generation call, never
	// mid-stream.
	ErrInvalidSpec = errors.New("invalid branch spec")

	// ErrEngineClosed is returned by all methods after Close().
	ErrEngineClosed = errors.New("engine is closed")

	// ErrEmptyAcceptance indicates the posterior evaluator returned an
	// accept length below one. This violates the acceptance floor and is
	// surfaced rather than corrected; treat it as a bug report.
	ErrEmptyAcceptance = errors.New("posterior returned empty acceptance")

	// ErrBatchSize is returned when a caller submits more than one sequence.
	// All buffers assume a single active sequence; run independent engines
	// for parallel streams.
	ErrBatchSize = errors.New("batch size greater than one is not supported")
)

// SpecError describes why a BranchSpec failed validation. It wraps
// ErrInvalidSpec so callers can test with errors.Is.
type SpecError struct {
	Depth  int    // zero-based index of the offending entry, -1 if structural
	Reason string
}

func (e *SpecError) Error() string {
	if e.Depth < 0 {
		return fmt.Sprintf("invalid branch spec: %s", e.Reason)
	}
	return fmt.Sprintf("invalid branch spec: entry %d: %s", e.Depth, e.Reason)
}

func (e *SpecError) Unwrap() error { return ErrInvalidSpec }

// VerificationError wraps a failure reported by the sequence model during
// tree verification. The generation call aborts: the cache may be in an
// inconsistent state, so the step is never retried.
type VerificationError struct {
	Step int // zero-based decoding step, -1 during prefill
	Err  error
}

func (e *VerificationError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("verification failed during prefill: %v", e.Err)
	}
	return fmt.Sprintf("verification failed at step %d: %v", e.Step, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }
