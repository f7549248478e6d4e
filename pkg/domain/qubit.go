package domain

import (
	"fmt"
	"strings"
)

// Qubit is an opaque handle for a logical qubit. The ID indexes into the
// liveness table of the engine that allocated it; the handle itself carries
// no ownership and stays cheap to copy and compare. A handle is valid exactly
// between its Allocate and Deallocate instructions.
type Qubit struct {
	ID uint64
}

func (q Qubit) String() string {
	return fmt.Sprintf("q%d", q.ID)
}

// Register is an ordered, fixed-length sequence of qubit handles used as a
// single target operand. A register of size 1 is interchangeable with a bare
// qubit handle for arity checks.
type Register []Qubit

// Reg wraps a single qubit as a one-element register.
func Reg(q Qubit) Register {
	return Register{q}
}

func (r Register) String() string {
	parts := make([]string, len(r))
	for i, q := range r {
		parts[i] = q.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Tag is a metadata marker attached to an instruction. Tags form an unordered
// set; decomposition propagates a parent's tags onto generated instructions.
type Tag string

// Markers for compute/uncompute brackets and borrowed scratch qubits.
const (
	TagCompute   Tag = "compute"
	TagUncompute Tag = "uncompute"
	TagDirty     Tag = "dirty"
)

// MergeTags unions two tag sets, preserving first-seen order and dropping
// duplicates. The inputs are not modified.
func MergeTags(a, b []Tag) []Tag {
	if len(b) == 0 {
		return a
	}
	seen := make(map[Tag]struct{}, len(a)+len(b))
	merged := make([]Tag, 0, len(a)+len(b))
	for _, set := range [2][]Tag{a, b} {
		for _, tag := range set {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			merged = append(merged, tag)
		}
	}
	return merged
}
