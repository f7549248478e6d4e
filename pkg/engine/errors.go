package engine

import (
	"errors"
	"fmt"

	"github.com/qubitflow/qubitflow/pkg/domain"
)

// Chain errors. All of them are raised synchronously to the caller of the
// client-facing operation that triggered them; nothing is swallowed.
var (
	// ErrFilterRejected reports an instruction a filter refused to forward
	// with no decomposition stage configured to intercept the rejection.
	ErrFilterRejected = errors.New("instruction rejected by filter")

	// ErrNoDecomposition reports an unsupported instruction no registered
	// rule matches.
	ErrNoDecomposition = errors.New("no decomposition rule matches")

	// ErrNonConvergent reports a rule set that kept regenerating unsupported
	// instructions until the recursion bound was hit. It signals a rule-set
	// defect, not a missing rule.
	ErrNonConvergent = errors.New("decomposition did not converge")

	// ErrEngineClosed reports use of an engine after Close.
	ErrEngineClosed = errors.New("engine is closed")
)

// FilterError carries the instruction a filter rejected.
type FilterError struct {
	Instruction domain.Instruction
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("%v: %s", ErrFilterRejected, e.Instruction)
}

func (e *FilterError) Unwrap() error {
	return ErrFilterRejected
}

// DecompositionError names the gate and instruction that blocked
// decomposition, wrapping either ErrNoDecomposition or ErrNonConvergent.
type DecompositionError struct {
	Err         error
	Instruction domain.Instruction
	Depth       int
}

func (e *DecompositionError) Error() string {
	if errors.Is(e.Err, ErrNonConvergent) {
		return fmt.Sprintf("%v: gate %s in %q at depth %d", e.Err, e.Instruction.Gate, e.Instruction, e.Depth)
	}
	return fmt.Sprintf("%v: gate %s in %q", e.Err, e.Instruction.Gate, e.Instruction)
}

func (e *DecompositionError) Unwrap() error {
	return e.Err
}
