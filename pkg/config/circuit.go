package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/qubitflow/qubitflow/pkg/domain"
)

// Circuit is a program description: a register size and an ordered list of
// operations over qubit indices. Allocation, deallocation, and the final
// barrier are the engine's duty and never appear as ops.
type Circuit struct {
	Name   string `yaml:"name"`
	Qubits int    `yaml:"qubits"`
	Ops    []Op   `yaml:"ops"`
}

// Op is one gate application in a circuit file. Targets index into the
// circuit's register; AsRegister groups them into a single register operand
// (the QFT form) instead of one single-qubit target each.
type Op struct {
	Gate       string  `yaml:"gate"`
	Targets    []int   `yaml:"targets"`
	Controls   []int   `yaml:"controls"`
	Angle      float64 `yaml:"angle"`
	AsRegister bool    `yaml:"as_register"`
}

// LoadCircuit reads and validates a circuit file.
func LoadCircuit(path string) (Circuit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Circuit{}, fmt.Errorf("read circuit: %w", err)
	}
	var circuit Circuit
	if err := yaml.Unmarshal(data, &circuit); err != nil {
		return Circuit{}, fmt.Errorf("parse circuit: %w", err)
	}
	if err := circuit.Validate(); err != nil {
		return Circuit{}, err
	}
	return circuit, nil
}

// Validate checks gate names, index ranges, and arity basics. Operand
// disjointness is enforced again at instruction construction.
func (c Circuit) Validate() error {
	if c.Qubits <= 0 {
		return fmt.Errorf("circuit needs a positive qubit count, got %d", c.Qubits)
	}
	for i, op := range c.Ops {
		kind, ok := domain.KindByName(op.Gate)
		if !ok {
			return fmt.Errorf("op %d: unknown gate %q", i, op.Gate)
		}
		if kind.Classical() && kind != domain.KindMeasure {
			return fmt.Errorf("op %d: gate %q is managed by the engine, not the circuit", i, op.Gate)
		}
		if len(op.Targets) == 0 {
			return fmt.Errorf("op %d: gate %q has no targets", i, op.Gate)
		}
		for _, idx := range append(append([]int{}, op.Targets...), op.Controls...) {
			if idx < 0 || idx >= c.Qubits {
				return fmt.Errorf("op %d: qubit index %d out of range [0,%d)", i, idx, c.Qubits)
			}
		}
	}
	return nil
}

// Instruction resolves the op against an allocated register.
func (op Op) Instruction(register domain.Register) (domain.Instruction, error) {
	kind, ok := domain.KindByName(op.Gate)
	if !ok {
		return domain.Instruction{}, fmt.Errorf("unknown gate %q", op.Gate)
	}

	var gate domain.Gate
	if kind.Parameterized() {
		gate = domain.NewRotation(kind, op.Angle)
	} else {
		gate = domain.NewGate(kind)
	}

	var targets []domain.Register
	if op.AsRegister {
		reg := make(domain.Register, len(op.Targets))
		for i, idx := range op.Targets {
			reg[i] = register[idx]
		}
		targets = []domain.Register{reg}
	} else {
		targets = make([]domain.Register, len(op.Targets))
		for i, idx := range op.Targets {
			targets[i] = domain.Reg(register[idx])
		}
	}

	controls := make([]domain.Qubit, len(op.Controls))
	for i, idx := range op.Controls {
		controls[i] = register[idx]
	}

	return domain.NewInstruction(gate, targets, controls)
}
