package domain

import (
	"fmt"
	"strings"
)

// Instruction is one gate application: the gate, its ordered target
// registers, optional control qubits, and metadata tags. Instructions are
// immutable values; every mutation-shaped helper returns a copy.
//
// Construction enforces the operand invariants up front: at least one
// non-empty target (Flush, a pure barrier, is the single exemption), no
// handle referenced twice, and control/target disjointness. An instruction
// that violates them is rejected here, before it ever enters a chain.
type Instruction struct {
	Gate     Gate
	Targets  []Register
	Controls []Qubit
	Tags     []Tag
}

// NewInstruction validates and builds an instruction. Operand slices are
// copied, so the caller keeps ownership of its arguments.
func NewInstruction(gate Gate, targets []Register, controls []Qubit, tags ...Tag) (Instruction, error) {
	inst := Instruction{Gate: gate}
	if len(targets) > 0 {
		inst.Targets = make([]Register, len(targets))
		for i, reg := range targets {
			inst.Targets[i] = append(Register(nil), reg...)
		}
	}
	if len(controls) > 0 {
		inst.Controls = append([]Qubit(nil), controls...)
	}
	if len(tags) > 0 {
		inst.Tags = append([]Tag(nil), tags...)
	}

	targetCount := 0
	seen := make(map[uint64]struct{})
	for _, reg := range inst.Targets {
		for _, q := range reg {
			targetCount++
			if _, dup := seen[q.ID]; dup {
				return Instruction{}, &InstructionError{Err: ErrDuplicateOperand, Instruction: inst}
			}
			seen[q.ID] = struct{}{}
		}
	}
	if targetCount == 0 && gate.Kind != KindFlush {
		return Instruction{}, &InstructionError{Err: ErrEmptyTargets, Instruction: inst}
	}

	controlSeen := make(map[uint64]struct{}, len(inst.Controls))
	for _, q := range inst.Controls {
		if _, overlap := seen[q.ID]; overlap {
			return Instruction{}, &InstructionError{Err: ErrOperandOverlap, Instruction: inst}
		}
		if _, dup := controlSeen[q.ID]; dup {
			return Instruction{}, &InstructionError{Err: ErrDuplicateOperand, Instruction: inst}
		}
		controlSeen[q.ID] = struct{}{}
	}

	return inst, nil
}

// MustInstruction is NewInstruction for statically correct operands, such as
// decomposition rule bodies operating on already-validated instructions.
func MustInstruction(gate Gate, targets []Register, controls []Qubit, tags ...Tag) Instruction {
	inst, err := NewInstruction(gate, targets, controls, tags...)
	if err != nil {
		panic(err)
	}
	return inst
}

// Apply builds an uncontrolled instruction over single-qubit targets.
func Apply(gate Gate, targets ...Qubit) (Instruction, error) {
	regs := make([]Register, len(targets))
	for i, q := range targets {
		regs[i] = Reg(q)
	}
	return NewInstruction(gate, regs, nil)
}

// IsClassical reports whether the instruction belongs to the classical
// subset that bypasses filters and decomposition.
func (inst Instruction) IsClassical() bool {
	return inst.Gate.Kind.Classical()
}

// ControlCount returns the number of control qubits.
func (inst Instruction) ControlCount() int {
	return len(inst.Controls)
}

// Qubits returns every handle the instruction references, targets first in
// register order, then controls.
func (inst Instruction) Qubits() []Qubit {
	all := make([]Qubit, 0, len(inst.Controls)+len(inst.Targets))
	for _, reg := range inst.Targets {
		all = append(all, reg...)
	}
	all = append(all, inst.Controls...)
	return all
}

// TargetQubitCount returns the total number of target handles across all
// target registers, so arity predicates treat a size-1 register exactly
// like a bare qubit.
func (inst Instruction) TargetQubitCount() int {
	n := 0
	for _, reg := range inst.Targets {
		n += len(reg)
	}
	return n
}

// HasTag reports whether the tag set contains tag.
func (inst Instruction) HasTag(tag Tag) bool {
	for _, t := range inst.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// WithTags returns a copy whose tag set is the union of the instruction's
// tags and the given ones.
func (inst Instruction) WithTags(tags ...Tag) Instruction {
	out := inst
	out.Tags = MergeTags(inst.Tags, tags)
	return out
}

// Touches reports whether the instruction references the given handle as a
// target or control.
func (inst Instruction) Touches(q Qubit) bool {
	for _, reg := range inst.Targets {
		for _, t := range reg {
			if t.ID == q.ID {
				return true
			}
		}
	}
	for _, c := range inst.Controls {
		if c.ID == q.ID {
			return true
		}
	}
	return false
}

func (inst Instruction) String() string {
	var b strings.Builder
	b.WriteString(inst.Gate.String())
	for _, reg := range inst.Targets {
		b.WriteByte(' ')
		if len(reg) == 1 {
			b.WriteString(reg[0].String())
		} else {
			b.WriteString(reg.String())
		}
	}
	if len(inst.Controls) > 0 {
		parts := make([]string, len(inst.Controls))
		for i, c := range inst.Controls {
			parts[i] = c.String()
		}
		fmt.Fprintf(&b, " ctrl %s", strings.Join(parts, " "))
	}
	if len(inst.Tags) > 0 {
		parts := make([]string, len(inst.Tags))
		for i, t := range inst.Tags {
			parts[i] = string(t)
		}
		fmt.Fprintf(&b, " #%s", strings.Join(parts, ","))
	}
	return b.String()
}
