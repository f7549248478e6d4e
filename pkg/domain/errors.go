package domain

import (
	"errors"
	"fmt"
)

// Domain errors raised before an instruction ever enters the chain.
var (
	ErrEmptyTargets     = errors.New("instruction requires at least one target qubit")
	ErrDuplicateOperand = errors.New("instruction references the same qubit twice")
	ErrOperandOverlap   = errors.New("control and target qubits overlap")
	ErrInvalidHandle    = errors.New("qubit handle is not allocated")
)

// InstructionError wraps a sentinel error with the instruction that
// triggered it, so callers can name the offending gate without parsing
// message strings.
type InstructionError struct {
	Err         error
	Instruction Instruction
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Instruction)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}
