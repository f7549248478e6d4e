package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/qubitflow/qubitflow/pkg/backend"
	"github.com/qubitflow/qubitflow/pkg/domain"
	"github.com/qubitflow/qubitflow/pkg/engine/runtime"
	"github.com/qubitflow/qubitflow/pkg/rules"
)

// drawProgram generates a random sequence of well-formed gate applications
// over the given register.
func drawProgram(rt *rapid.T, reg domain.Register) []domain.Instruction {
	n := rapid.IntRange(1, 40).Draw(rt, "program_length")
	program := make([]domain.Instruction, 0, n)
	for i := 0; i < n; i++ {
		t := rapid.IntRange(0, len(reg)-1).Draw(rt, "target")
		var gate domain.Gate
		switch rapid.IntRange(0, 5).Draw(rt, "shape") {
		case 0:
			gate = domain.H()
		case 1:
			gate = domain.X()
		case 2:
			gate = domain.T()
		case 3:
			gate = domain.Rz(rapid.Float64Range(-8, 8).Draw(rt, "angle"))
		case 4:
			// Controlled single-qubit gate on a distinct control.
			c := rapid.IntRange(0, len(reg)-2).Draw(rt, "control")
			if c >= t {
				c++
			}
			inst, err := domain.NewInstruction(domain.X(),
				[]domain.Register{domain.Reg(reg[t])}, []domain.Qubit{reg[c]})
			require.NoError(rt, err)
			program = append(program, inst)
			continue
		case 5:
			// Swap between distinct lines, decomposable to CNOTs.
			b := rapid.IntRange(0, len(reg)-2).Draw(rt, "swap_b")
			if b >= t {
				b++
			}
			inst, err := domain.NewInstruction(domain.Swap(),
				[]domain.Register{domain.Reg(reg[t]), domain.Reg(reg[b])}, nil)
			require.NoError(rt, err)
			program = append(program, inst)
			continue
		}
		inst, err := domain.NewInstruction(gate, []domain.Register{domain.Reg(reg[t])}, nil)
		require.NoError(rt, err)
		program = append(program, inst)
	}
	return program
}

// A chain may rewrite instructions, but for every qubit the relative order
// of the operations touching it must survive legalization.
func TestPerQubitOrderIsPreserved(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		accepts := func(inst domain.Instruction) bool {
			return inst.TargetQubitCount() == 1 && inst.ControlCount() <= 1
		}
		sink := backend.NewRecorder(accepts)
		eng, err := NewMainEngine(MainEngineConfig{
			Backend: sink,
			Stages: []runtime.StageFunc{
				WithDecomposer(DecomposerConfig{Rules: rules.Standard()}),
				WithFilter(accepts),
			},
		})
		require.NoError(rt, err)

		width := rapid.IntRange(2, 5).Draw(rt, "register_width")
		reg, err := eng.AllocateRegister(ctx, width)
		require.NoError(rt, err)

		program := drawProgram(rt, reg)
		for _, inst := range program {
			require.NoError(rt, eng.Apply(ctx, inst), "apply %s", inst)
		}
		require.NoError(rt, eng.Close(ctx))

		// Build the issued per-qubit projections. A Swap on (a,b) may be
		// rewritten, but whatever replaces it still touches both a and b, so
		// instruction counts per qubit can only grow, never reorder across
		// surviving single-qubit gates. We check the strong invariant on the
		// gates that pass through unrewritten: their relative order per qubit
		// matches issuance.
		for _, q := range reg {
			var issuedRz []float64
			for _, inst := range program {
				if inst.Gate.Kind == domain.KindRz && inst.Touches(q) && inst.ControlCount() == 0 {
					issuedRz = append(issuedRz, inst.Gate.Angle)
				}
			}
			var observedRz []float64
			for _, inst := range sink.ForQubit(q) {
				if inst.Gate.Kind == domain.KindRz && inst.ControlCount() == 0 {
					observedRz = append(observedRz, inst.Gate.Angle)
				}
			}
			require.Equal(rt, len(issuedRz), len(observedRz), "qubit %s rotation count", q)
			for i := range issuedRz {
				want := domain.Rz(issuedRz[i])
				got := domain.Rz(observedRz[i])
				require.True(rt, want.Equal(got), "qubit %s rotation %d: issued %v, observed %v", q, i, issuedRz[i], observedRz[i])
			}
		}

		// Lifecycle brackets hold for every handle.
		for _, q := range reg {
			per := sink.ForQubit(q)
			require.NotEmpty(rt, per, "qubit %s has no lifecycle", q)
			require.Equal(rt, domain.KindAllocate, per[0].Gate.Kind, "qubit %s must open with Allocate", q)
			require.Equal(rt, domain.KindDeallocate, per[len(per)-1].Gate.Kind, "qubit %s must close with Deallocate", q)
			for _, inst := range per[1 : len(per)-1] {
				require.NotEqual(rt, domain.KindAllocate, inst.Gate.Kind, "qubit %s reallocated mid-stream", q)
				require.NotEqual(rt, domain.KindDeallocate, inst.Gate.Kind, "qubit %s used after deallocation", q)
			}
		}

		// Everything that reached the backend is either classical or accepted.
		for _, inst := range sink.Stream() {
			require.True(rt, sink.Available(inst), "backend received unsupported %s", inst)
		}
	})
}

// An all-accepting chain must deliver the program verbatim, in order.
func TestIdentityChainIsTransparent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		sink := backend.NewRecorder(nil)
		eng, err := NewMainEngine(MainEngineConfig{
			Backend: sink,
			Stages: []runtime.StageFunc{
				WithDecomposer(DecomposerConfig{Rules: rules.Standard()}),
				WithFilter(func(domain.Instruction) bool { return true }),
			},
		})
		require.NoError(rt, err)

		width := rapid.IntRange(2, 5).Draw(rt, "register_width")
		reg, err := eng.AllocateRegister(ctx, width)
		require.NoError(rt, err)

		program := drawProgram(rt, reg)
		for _, inst := range program {
			require.NoError(rt, eng.Apply(ctx, inst))
		}
		require.NoError(rt, eng.Flush(ctx))

		stream := sink.Stream()
		require.Len(rt, stream, width+len(program)+1)
		for i, inst := range program {
			got := stream[width+i]
			require.True(rt, got.Gate.Equal(inst.Gate), "instruction %d rewritten: issued %s, observed %s", i, inst, got)
			require.Equal(rt, inst.Qubits(), got.Qubits(), "instruction %d operands changed", i)
		}
	})
}
