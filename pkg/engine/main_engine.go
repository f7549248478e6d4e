package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/qubitflow/qubitflow/pkg/domain"
	"github.com/qubitflow/qubitflow/pkg/engine/runtime"
	"github.com/qubitflow/qubitflow/pkg/telemetry"
)

// MainEngineConfig holds the dependencies for building a chain.
type MainEngineConfig struct {
	// Backend is the terminal stage. Required.
	Backend runtime.Backend
	// Stages are applied right to left onto the backend, so Stages[0]
	// becomes the first stage an instruction reaches.
	Stages []runtime.StageFunc
	Logger *slog.Logger
}

// MainEngine is the chain entry point. It mints qubit handles, keeps the
// liveness table, submits every instruction into the first chain stage, and
// exposes the synchronization barrier.
//
// A MainEngine is owned by exactly one logical program thread at a time;
// concurrent use must be serialized by the caller.
type MainEngine struct {
	id      string
	head    runtime.Stage
	backend runtime.Backend
	logger  *slog.Logger
	tracer  trace.Tracer

	nextID uint64
	live   map[uint64]struct{}
	order  []domain.Qubit

	dirty   bool // instruction forwarded since the last barrier
	flushed bool // at least one barrier already forwarded
	closed  bool
}

// NewMainEngine assembles the chain and returns its entry point. The chain
// linkage is immutable from here on.
func NewMainEngine(cfg MainEngineConfig) (*MainEngine, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("main engine requires a backend")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	head := runtime.Stage(cfg.Backend)
	for i := len(cfg.Stages) - 1; i >= 0; i-- {
		head = cfg.Stages[i](head)
	}

	eng := &MainEngine{
		id:      uuid.NewString(),
		head:    head,
		backend: cfg.Backend,
		logger:  logger,
		tracer:  otel.Tracer("qubitflow.chain"),
		live:    make(map[uint64]struct{}),
	}
	logger.Debug("chain assembled", "engine_id", eng.id, "stages", len(cfg.Stages))
	return eng, nil
}

// ID returns the engine's unique identifier, as attached to logs and spans.
func (m *MainEngine) ID() string {
	return m.id
}

// Available reports whether the chain can ultimately accept the instruction.
func (m *MainEngine) Available(inst domain.Instruction) bool {
	return m.head.Available(inst)
}

// AllocateQubit mints a fresh handle, records it live, and submits its
// Allocate instruction through the chain.
func (m *MainEngine) AllocateQubit(ctx context.Context) (domain.Qubit, error) {
	if m.closed {
		return domain.Qubit{}, ErrEngineClosed
	}
	q := domain.Qubit{ID: m.nextID}
	m.nextID++

	inst := domain.MustInstruction(domain.Allocate(), []domain.Register{domain.Reg(q)}, nil)
	if err := m.submit(ctx, inst); err != nil {
		return domain.Qubit{}, err
	}
	m.live[q.ID] = struct{}{}
	m.order = append(m.order, q)
	telemetry.RecordQubitDelta(ctx, m.id, 1)
	return q, nil
}

// AllocateRegister performs n individual allocations and returns the handles
// in allocation order. On error, handles allocated so far stay live and are
// reclaimed by Close.
func (m *MainEngine) AllocateRegister(ctx context.Context, n int) (domain.Register, error) {
	if n <= 0 {
		return nil, fmt.Errorf("register size must be positive, got %d", n)
	}
	reg := make(domain.Register, 0, n)
	for i := 0; i < n; i++ {
		q, err := m.AllocateQubit(ctx)
		if err != nil {
			return nil, err
		}
		reg = append(reg, q)
	}
	return reg, nil
}

// Deallocate submits the handle's Deallocate instruction and invalidates it.
// Referencing the handle afterward is a programming error reported
// immediately; the chain stays usable.
func (m *MainEngine) Deallocate(ctx context.Context, q domain.Qubit) error {
	if m.closed {
		return ErrEngineClosed
	}
	if _, ok := m.live[q.ID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrInvalidHandle, q)
	}

	inst := domain.MustInstruction(domain.Deallocate(), []domain.Register{domain.Reg(q)}, nil)
	if err := m.submit(ctx, inst); err != nil {
		return err
	}
	delete(m.live, q.ID)
	telemetry.RecordQubitDelta(ctx, m.id, -1)
	return nil
}

// Apply issues one gate application into the chain. Lifecycle instructions
// go through the dedicated operations instead: AllocateQubit, Deallocate,
// Measure, Flush.
func (m *MainEngine) Apply(ctx context.Context, inst domain.Instruction) error {
	if m.closed {
		return ErrEngineClosed
	}
	switch inst.Gate.Kind {
	case domain.KindAllocate, domain.KindDeallocate, domain.KindFlush:
		return fmt.Errorf("gate %s must be issued through its engine operation", inst.Gate.Kind)
	}
	if err := m.ensureLive(inst); err != nil {
		return err
	}
	return m.submit(ctx, inst)
}

// Measure submits one Measure instruction per register. Results are only
// guaranteed readable at the backend after a subsequent Flush.
func (m *MainEngine) Measure(ctx context.Context, registers ...domain.Register) error {
	if m.closed {
		return ErrEngineClosed
	}
	for _, reg := range registers {
		inst, err := domain.NewInstruction(domain.Measure(), []domain.Register{reg}, nil)
		if err != nil {
			return err
		}
		if err := m.ensureLive(inst); err != nil {
			return err
		}
		if err := m.submit(ctx, inst); err != nil {
			return err
		}
	}
	return nil
}

// Flush submits a barrier through the chain and returns once every stage,
// backend included, has fully processed everything submitted before it.
// Consecutive barriers with nothing in between are coalesced; that is the
// only instruction the chain ever drops.
func (m *MainEngine) Flush(ctx context.Context) error {
	if m.closed {
		return ErrEngineClosed
	}
	if !m.dirty && m.flushed {
		m.logger.Debug("coalesced redundant barrier", "engine_id", m.id)
		return nil
	}

	ctx, span := m.tracer.Start(ctx, "chain.flush", trace.WithAttributes(
		attribute.String("engine.id", m.id),
		attribute.Int("qubits.live", len(m.live)),
	))
	defer span.End()

	inst := domain.MustInstruction(domain.Flush(), nil, nil)
	if err := m.submit(ctx, inst); err != nil {
		span.RecordError(err)
		return err
	}
	m.dirty = false
	m.flushed = true
	telemetry.RecordFlush(ctx, m.id)
	return nil
}

// Close deallocates every remaining live handle in reverse allocation
// order, forwards a final barrier, and retires the engine. It runs on both
// normal exit and error unwind so backends never observe orphaned
// allocations; callers defer it right after construction. Close is
// idempotent.
func (m *MainEngine) Close(ctx context.Context) error {
	if m.closed {
		return nil
	}

	var errs []error
	for i := len(m.order) - 1; i >= 0; i-- {
		q := m.order[i]
		if _, ok := m.live[q.ID]; !ok {
			continue
		}
		if err := m.Deallocate(ctx, q); err != nil {
			errs = append(errs, err)
		}
	}
	if m.dirty || !m.flushed {
		if err := m.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	m.closed = true
	m.logger.Debug("engine closed", "engine_id", m.id)
	return errors.Join(errs...)
}

// ensureLive verifies every handle the instruction references is currently
// allocated at this engine.
func (m *MainEngine) ensureLive(inst domain.Instruction) error {
	for _, q := range inst.Qubits() {
		if _, ok := m.live[q.ID]; !ok {
			return fmt.Errorf("%w: %s in %q", domain.ErrInvalidHandle, q, inst)
		}
	}
	return nil
}

func (m *MainEngine) submit(ctx context.Context, inst domain.Instruction) error {
	// Marked before Receive: a stage may forward part of an expansion and
	// then fail, and the next barrier must not coalesce over those
	// instructions.
	if inst.Gate.Kind != domain.KindFlush {
		m.dirty = true
	}
	if err := m.head.Receive(ctx, []domain.Instruction{inst}); err != nil {
		return err
	}
	telemetry.RecordInstruction(ctx, telemetry.InstructionMetrics{
		EngineID: m.id,
		Gate:     inst.Gate.Kind.String(),
		Controls: inst.ControlCount(),
	})
	return nil
}
