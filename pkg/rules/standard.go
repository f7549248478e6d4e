package rules

import (
	"fmt"
	"math"

	"github.com/qubitflow/qubitflow/pkg/domain"
)

// Standard returns a registry preloaded with the stock decomposition
// library. The expansions bottom out in single-qubit gates and CNOTs;
// intermediate gates a rule emits (Swap from the QFT ladder, controlled
// Phase) are themselves covered, so recursive rewriting converges.
func Standard() *Registry {
	reg := NewRegistry()
	reg.MustRegister(Rule{Name: "qft-to-h-and-cphase", Kind: domain.KindQFT, Controls: 0, Generate: expandQFT})
	reg.MustRegister(Rule{Name: "swap-to-cnot", Kind: domain.KindSwap, Controls: 0, Generate: expandSwap})
	reg.MustRegister(Rule{Name: "toffoli-to-clifford-t", Kind: domain.KindX, Controls: 2, Generate: expandToffoli})
	reg.MustRegister(Rule{Name: "crz-to-rz-and-cnot", Kind: domain.KindRz, Controls: 1, Generate: expandControlledRz})
	reg.MustRegister(Rule{Name: "cphase-to-phase-and-cnot", Kind: domain.KindPhase, Controls: 1, Generate: expandControlledPhase})
	return reg
}

func single(gate domain.Gate, q domain.Qubit) domain.Instruction {
	return domain.MustInstruction(gate, []domain.Register{domain.Reg(q)}, nil)
}

func cnot(control, target domain.Qubit) domain.Instruction {
	return domain.MustInstruction(domain.X(), []domain.Register{domain.Reg(target)}, []domain.Qubit{control})
}

func cphase(angle float64, control, target domain.Qubit) domain.Instruction {
	return domain.MustInstruction(domain.Phase(angle), []domain.Register{domain.Reg(target)}, []domain.Qubit{control})
}

func flatten(inst domain.Instruction) []domain.Qubit {
	qs := make([]domain.Qubit, 0, inst.TargetQubitCount())
	for _, reg := range inst.Targets {
		qs = append(qs, reg...)
	}
	return qs
}

// expandSwap rewrites SWAP(a,b) as three alternating CNOTs.
func expandSwap(inst domain.Instruction) ([]domain.Instruction, error) {
	qs := flatten(inst)
	if len(qs) != 2 {
		return nil, fmt.Errorf("swap expects 2 target qubits, got %d", len(qs))
	}
	a, b := qs[0], qs[1]
	return []domain.Instruction{cnot(a, b), cnot(b, a), cnot(a, b)}, nil
}

// expandToffoli rewrites a doubly-controlled X into the standard
// Clifford+T network (six CNOTs, seven T-layer gates, two Hadamards).
func expandToffoli(inst domain.Instruction) ([]domain.Instruction, error) {
	qs := flatten(inst)
	if len(qs) != 1 {
		return nil, fmt.Errorf("toffoli expects 1 target qubit, got %d", len(qs))
	}
	t := qs[0]
	a, b := inst.Controls[0], inst.Controls[1]
	return []domain.Instruction{
		single(domain.H(), t),
		cnot(b, t),
		single(domain.Tdg(), t),
		cnot(a, t),
		single(domain.T(), t),
		cnot(b, t),
		single(domain.Tdg(), t),
		cnot(a, t),
		single(domain.T(), b),
		single(domain.T(), t),
		single(domain.H(), t),
		cnot(a, b),
		single(domain.T(), a),
		single(domain.Tdg(), b),
		cnot(a, b),
	}, nil
}

// expandControlledRz splits a controlled Rz(θ) into two half-angle
// rotations interleaved with CNOTs.
func expandControlledRz(inst domain.Instruction) ([]domain.Instruction, error) {
	qs := flatten(inst)
	if len(qs) != 1 {
		return nil, fmt.Errorf("controlled rz expects 1 target qubit, got %d", len(qs))
	}
	t := qs[0]
	c := inst.Controls[0]
	theta := inst.Gate.Angle
	return []domain.Instruction{
		single(domain.Rz(theta/2), t),
		cnot(c, t),
		single(domain.Rz(-theta/2), t),
		cnot(c, t),
	}, nil
}

// expandControlledPhase splits a controlled Phase(θ) into uncontrolled
// half-angle phases and CNOTs.
func expandControlledPhase(inst domain.Instruction) ([]domain.Instruction, error) {
	qs := flatten(inst)
	if len(qs) != 1 {
		return nil, fmt.Errorf("controlled phase expects 1 target qubit, got %d", len(qs))
	}
	t := qs[0]
	c := inst.Controls[0]
	theta := inst.Gate.Angle
	return []domain.Instruction{
		single(domain.Phase(theta/2), c),
		single(domain.Phase(theta/2), t),
		cnot(c, t),
		single(domain.Phase(-theta/2), t),
		cnot(c, t),
	}, nil
}

// expandQFT emits the textbook Fourier ladder over the target register:
// per qubit a Hadamard followed by controlled phases shrinking by powers
// of two, then the final reversal swaps. Controlled phases and swaps are
// left for further decomposition when the backend rejects them.
func expandQFT(inst domain.Instruction) ([]domain.Instruction, error) {
	qs := flatten(inst)
	if len(qs) == 0 {
		return nil, fmt.Errorf("qft expects a non-empty target register")
	}
	out := make([]domain.Instruction, 0, len(qs)*(len(qs)+3)/2)
	for i := len(qs) - 1; i >= 0; i-- {
		out = append(out, single(domain.H(), qs[i]))
		for j := i - 1; j >= 0; j-- {
			// Exp2 keeps wide registers exact where a shift would overflow
			// past 64 positions.
			angle := math.Pi * math.Exp2(float64(j-i))
			out = append(out, cphase(angle, qs[j], qs[i]))
		}
	}
	for i := 0; i < len(qs)/2; i++ {
		swap := domain.MustInstruction(domain.Swap(),
			[]domain.Register{domain.Reg(qs[i]), domain.Reg(qs[len(qs)-1-i])}, nil)
		out = append(out, swap)
	}
	return out, nil
}
