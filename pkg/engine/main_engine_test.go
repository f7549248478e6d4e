package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/qubitflow/qubitflow/pkg/backend"
	"github.com/qubitflow/qubitflow/pkg/domain"
	"github.com/qubitflow/qubitflow/pkg/engine/runtime"
	"github.com/qubitflow/qubitflow/pkg/rules"
)

func newTestEngine(t *testing.T, sink runtime.Backend, stages ...runtime.StageFunc) *MainEngine {
	t.Helper()
	eng, err := NewMainEngine(MainEngineConfig{Backend: sink, Stages: stages})
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	return eng
}

func TestPassThroughIdempotence(t *testing.T) {
	// A backend accepting everything observes exactly the issued stream.
	ctx := context.Background()
	sink := backend.NewRecorder(nil)
	eng := newTestEngine(t, sink)

	q0, err := eng.AllocateQubit(ctx)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	q1, err := eng.AllocateQubit(ctx)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	issued := []domain.Instruction{
		domain.MustInstruction(domain.H(), []domain.Register{domain.Reg(q0)}, nil),
		domain.MustInstruction(domain.X(), []domain.Register{domain.Reg(q1)}, []domain.Qubit{q0}),
		domain.MustInstruction(domain.Rz(1.25), []domain.Register{domain.Reg(q1)}, nil),
	}
	for _, inst := range issued {
		if err := eng.Apply(ctx, inst); err != nil {
			t.Fatalf("apply %s: %v", inst, err)
		}
	}
	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	stream := sink.Stream()
	// allocate, allocate, 3 gates, flush
	if len(stream) != 6 {
		t.Fatalf("expected 6 instructions, got %d: %v", len(stream), stream)
	}
	for i, inst := range issued {
		got := stream[2+i]
		if !got.Gate.Equal(inst.Gate) {
			t.Fatalf("instruction %d changed in flight: issued %s, observed %s", i, inst, got)
		}
	}
	if stream[5].Gate.Kind != domain.KindFlush {
		t.Fatalf("expected trailing barrier, got %s", stream[5])
	}
}

func TestDoubleDeallocateRaisesAndEmitsOnce(t *testing.T) {
	ctx := context.Background()
	sink := backend.NewRecorder(nil)
	eng := newTestEngine(t, sink)

	q, err := eng.AllocateQubit(ctx)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := eng.Deallocate(ctx, q); err != nil {
		t.Fatalf("first deallocate: %v", err)
	}
	if err := eng.Deallocate(ctx, q); !errors.Is(err, domain.ErrInvalidHandle) {
		t.Fatalf("expected ErrInvalidHandle on double deallocate, got %v", err)
	}

	deallocs := 0
	for _, inst := range sink.Stream() {
		if inst.Gate.Kind == domain.KindDeallocate {
			deallocs++
		}
	}
	if deallocs != 1 {
		t.Fatalf("expected exactly one Deallocate in the stream, got %d", deallocs)
	}
}

func TestUseAfterDeallocateIsImmediateAndRecoverable(t *testing.T) {
	ctx := context.Background()
	sink := backend.NewRecorder(nil)
	eng := newTestEngine(t, sink)

	q0, _ := eng.AllocateQubit(ctx)
	q1, _ := eng.AllocateQubit(ctx)
	if err := eng.Deallocate(ctx, q0); err != nil {
		t.Fatalf("deallocate: %v", err)
	}

	h := domain.MustInstruction(domain.H(), []domain.Register{domain.Reg(q0)}, nil)
	if err := eng.Apply(ctx, h); !errors.Is(err, domain.ErrInvalidHandle) {
		t.Fatalf("expected ErrInvalidHandle, got %v", err)
	}

	// The chain stays usable after the error.
	h1 := domain.MustInstruction(domain.H(), []domain.Register{domain.Reg(q1)}, nil)
	if err := eng.Apply(ctx, h1); err != nil {
		t.Fatalf("chain must stay usable, got %v", err)
	}
}

func TestApplyRejectsUnallocatedHandle(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, backend.NewRecorder(nil))

	ghost := domain.Qubit{ID: 404}
	h := domain.MustInstruction(domain.H(), []domain.Register{domain.Reg(ghost)}, nil)
	if err := eng.Apply(ctx, h); !errors.Is(err, domain.ErrInvalidHandle) {
		t.Fatalf("expected ErrInvalidHandle, got %v", err)
	}
}

func TestApplyRejectsLifecycleGates(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, backend.NewRecorder(nil))

	q, _ := eng.AllocateQubit(ctx)
	alloc := domain.MustInstruction(domain.Allocate(), []domain.Register{domain.Reg(q)}, nil)
	if err := eng.Apply(ctx, alloc); err == nil {
		t.Fatalf("Allocate must be issued through AllocateQubit")
	}
}

func TestCloseDeallocatesInReverseAllocationOrder(t *testing.T) {
	ctx := context.Background()
	sink := backend.NewRecorder(nil)
	eng := newTestEngine(t, sink)

	reg, err := eng.AllocateRegister(ctx, 3)
	if err != nil {
		t.Fatalf("allocate register: %v", err)
	}
	if err := eng.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	var deallocOrder []uint64
	for _, inst := range sink.Stream() {
		if inst.Gate.Kind == domain.KindDeallocate {
			deallocOrder = append(deallocOrder, inst.Targets[0][0].ID)
		}
	}
	if len(deallocOrder) != 3 {
		t.Fatalf("expected 3 deallocations, got %d", len(deallocOrder))
	}
	for i := range deallocOrder {
		want := reg[len(reg)-1-i].ID
		if deallocOrder[i] != want {
			t.Fatalf("deallocation %d: expected q%d, got q%d", i, want, deallocOrder[i])
		}
	}
	if sink.Flushes() != 1 {
		t.Fatalf("close must forward a final barrier, saw %d", sink.Flushes())
	}

	// Close is idempotent and the engine refuses further work.
	if err := eng.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := eng.AllocateQubit(ctx); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("expected ErrEngineClosed, got %v", err)
	}
}

func TestConsecutiveBarriersCoalesce(t *testing.T) {
	ctx := context.Background()
	sink := backend.NewRecorder(nil)
	eng := newTestEngine(t, sink)

	q, _ := eng.AllocateQubit(ctx)
	h := domain.MustInstruction(domain.H(), []domain.Register{domain.Reg(q)}, nil)
	if err := eng.Apply(ctx, h); err != nil {
		t.Fatalf("apply: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := eng.Flush(ctx); err != nil {
			t.Fatalf("flush %d: %v", i, err)
		}
	}
	if sink.Flushes() != 1 {
		t.Fatalf("redundant consecutive barriers must coalesce, saw %d", sink.Flushes())
	}

	// New work re-arms the barrier.
	if err := eng.Apply(ctx, h); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if sink.Flushes() != 2 {
		t.Fatalf("expected a second barrier after new work, saw %d", sink.Flushes())
	}
}

func TestFlushNotCoalescedAfterPartialDecomposition(t *testing.T) {
	ctx := context.Background()
	accepts := func(inst domain.Instruction) bool {
		return inst.Gate.Kind == domain.KindX && inst.ControlCount() == 1
	}
	sink := backend.NewRecorder(accepts)

	// The rule forwards a supported CNOT before producing a gate nothing
	// downstream takes, so the failing Apply leaves an instruction at the
	// backend.
	reg := rules.NewRegistry()
	reg.MustRegister(rules.Rule{
		Name: "swap-partial", Kind: domain.KindSwap, Controls: 0,
		Generate: func(inst domain.Instruction) ([]domain.Instruction, error) {
			qs := inst.Qubits()
			cnot := domain.MustInstruction(domain.X(), []domain.Register{domain.Reg(qs[1])}, []domain.Qubit{qs[0]})
			h := domain.MustInstruction(domain.H(), []domain.Register{domain.Reg(qs[0])}, nil)
			return []domain.Instruction{cnot, h}, nil
		},
	})

	eng := newTestEngine(t, sink,
		WithDecomposer(DecomposerConfig{Rules: reg}),
		WithFilter(accepts),
	)

	handles, err := eng.AllocateRegister(ctx, 2)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if sink.Flushes() != 1 {
		t.Fatalf("expected 1 barrier before the failure, saw %d", sink.Flushes())
	}

	swap := domain.MustInstruction(domain.Swap(), []domain.Register{domain.Reg(handles[0]), domain.Reg(handles[1])}, nil)
	if err := eng.Apply(ctx, swap); !errors.Is(err, ErrNoDecomposition) {
		t.Fatalf("expected ErrNoDecomposition, got %v", err)
	}

	cnots := 0
	for _, inst := range sink.Stream() {
		if inst.Gate.Kind == domain.KindX {
			cnots++
		}
	}
	if cnots != 1 {
		t.Fatalf("expected the partial expansion at the backend, got %d CNOTs", cnots)
	}

	// The backend consumed an instruction since the last barrier, so this
	// one must be forwarded, not coalesced.
	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("flush after failed apply: %v", err)
	}
	if sink.Flushes() != 2 {
		t.Fatalf("barrier after a partial expansion must reach the backend, saw %d", sink.Flushes())
	}
}

func TestMeasureFlowsThroughRejectAllFilter(t *testing.T) {
	ctx := context.Background()
	sink := backend.NewRecorder(nil)
	eng := newTestEngine(t, sink, WithFilter(func(domain.Instruction) bool { return false }))

	reg, err := eng.AllocateRegister(ctx, 2)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := eng.Measure(ctx, reg); err != nil {
		t.Fatalf("measure: %v", err)
	}
	if err := eng.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	measured := 0
	for _, inst := range sink.Stream() {
		if inst.Gate.Kind == domain.KindMeasure {
			measured++
		}
	}
	if measured != 1 {
		t.Fatalf("expected one Measure instruction, got %d", measured)
	}
}

// The chain from the design brief: decomposer, then a filter accepting only
// single-qubit gates and single-control two-qubit gates, then a matching
// backend. One 3-qubit transform must legalize completely.
func TestQFTLegalizationScenario(t *testing.T) {
	ctx := context.Background()
	accepts := func(inst domain.Instruction) bool {
		if inst.TargetQubitCount() == 1 && inst.ControlCount() == 0 {
			return true
		}
		return inst.TargetQubitCount() == 1 && inst.ControlCount() == 1
	}
	sink := backend.NewRecorder(accepts)
	eng := newTestEngine(t, sink,
		WithDecomposer(DecomposerConfig{Rules: rules.Standard()}),
		WithFilter(accepts),
	)

	reg, err := eng.AllocateRegister(ctx, 3)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	qft := domain.MustInstruction(domain.QFT(), []domain.Register{reg}, nil)
	if err := eng.Apply(ctx, qft); err != nil {
		t.Fatalf("apply qft: %v", err)
	}
	if err := eng.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	stream := sink.Stream()
	allocsSeen := 0
	gateSeen := false
	for _, inst := range stream {
		switch inst.Gate.Kind {
		case domain.KindAllocate:
			if gateSeen {
				t.Fatalf("allocations must precede every gate, got %s late", inst)
			}
			allocsSeen++
		case domain.KindDeallocate, domain.KindFlush:
		default:
			gateSeen = true
			if !accepts(inst) {
				t.Fatalf("backend received unsupported instruction: %s", inst)
			}
			if inst.ControlCount() > 1 {
				t.Fatalf("multi-control gate leaked: %s", inst)
			}
		}
	}
	if allocsSeen != 3 {
		t.Fatalf("expected 3 allocations before the gates, got %d", allocsSeen)
	}
	if !gateSeen {
		t.Fatalf("expected a legalized expansion, stream was %v", stream)
	}

	// Lifecycle well-formedness per handle.
	for _, q := range reg {
		per := sink.ForQubit(q)
		if len(per) < 2 {
			t.Fatalf("qubit %s missing lifecycle brackets", q)
		}
		if per[0].Gate.Kind != domain.KindAllocate {
			t.Fatalf("qubit %s: first instruction is %s, not Allocate", q, per[0])
		}
		if per[len(per)-1].Gate.Kind != domain.KindDeallocate {
			t.Fatalf("qubit %s: last instruction is %s, not Deallocate", q, per[len(per)-1])
		}
	}
}

func TestRejectionWithoutRulesIsAnErrorNotADrop(t *testing.T) {
	ctx := context.Background()
	accepts := func(inst domain.Instruction) bool { return inst.Gate.Kind != domain.KindSwap }
	sink := backend.NewRecorder(accepts)
	eng := newTestEngine(t, sink,
		WithDecomposer(DecomposerConfig{Rules: rules.NewRegistry()}),
		WithFilter(accepts),
	)

	reg, err := eng.AllocateRegister(ctx, 2)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	before := len(sink.Stream())

	swap := domain.MustInstruction(domain.Swap(), []domain.Register{domain.Reg(reg[0]), domain.Reg(reg[1])}, nil)
	if err := eng.Apply(ctx, swap); !errors.Is(err, ErrNoDecomposition) {
		t.Fatalf("expected ErrNoDecomposition, got %v", err)
	}
	if got := len(sink.Stream()); got != before {
		t.Fatalf("a failed instruction must not be partially forwarded: %d -> %d", before, got)
	}
}

func TestNewMainEngineRequiresBackend(t *testing.T) {
	if _, err := NewMainEngine(MainEngineConfig{}); err == nil {
		t.Fatalf("expected an error without a backend")
	}
}
