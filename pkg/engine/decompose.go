package engine

import (
	"context"
	"log/slog"

	"github.com/qubitflow/qubitflow/pkg/domain"
	"github.com/qubitflow/qubitflow/pkg/engine/runtime"
	"github.com/qubitflow/qubitflow/pkg/rules"
	"github.com/qubitflow/qubitflow/pkg/telemetry"
)

// DefaultMaxDepth bounds recursive rule application. A well-formed rule set
// bottoms out far earlier; hitting the bound means a rule regenerated its
// own unsupported category without progress.
const DefaultMaxDepth = 64

// DecomposerConfig holds the dependencies for creating a Decomposer.
type DecomposerConfig struct {
	Rules    *rules.Registry
	MaxDepth int
	Logger   *slog.Logger
}

// Decomposer is a chain stage that rewrites instructions the next stage
// cannot accept into sequences it can, using the rule registry. Each Receive
// call is processed to completion in issuance order; the stage holds no
// instruction buffer across calls.
type Decomposer struct {
	next     runtime.Stage
	rules    *rules.Registry
	maxDepth int
	logger   *slog.Logger
}

// NewDecomposer creates a decomposition stage wired to next. The rule
// registry is frozen here: chain construction is the point after which
// rules are read-only and shareable.
func NewDecomposer(next runtime.Stage, cfg DecomposerConfig) *Decomposer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	registry := cfg.Rules
	if registry == nil {
		registry = rules.NewRegistry()
	}
	registry.Freeze()
	return &Decomposer{next: next, rules: registry, maxDepth: maxDepth, logger: logger}
}

// WithDecomposer returns a StageFunc installing a decomposition stage at
// that position in the chain.
func WithDecomposer(cfg DecomposerConfig) runtime.StageFunc {
	return func(next runtime.Stage) runtime.Stage {
		return NewDecomposer(next, cfg)
	}
}

// Available reports whether the instruction can ultimately be accepted:
// either downstream takes it as-is, or a rule exists to rewrite it.
func (d *Decomposer) Available(inst domain.Instruction) bool {
	if inst.IsClassical() || d.next.Available(inst) {
		return true
	}
	_, ok := d.rules.Match(inst)
	return ok
}

// workItem carries an instruction plus its rewrite depth through the
// explicit work list, so non-convergence surfaces as a testable error
// instead of stack exhaustion.
type workItem struct {
	inst  domain.Instruction
	depth int
}

// Receive forwards already-supported instructions untouched and expands the
// rest rule by rule until everything produced is accepted downstream.
func (d *Decomposer) Receive(ctx context.Context, batch []domain.Instruction) error {
	for _, inst := range batch {
		if err := d.process(ctx, inst); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decomposer) process(ctx context.Context, root domain.Instruction) error {
	stack := []workItem{{inst: root}}
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		inst := item.inst

		// Supported instructions never pay a rule lookup.
		if inst.IsClassical() || d.next.Available(inst) {
			if err := d.next.Receive(ctx, []domain.Instruction{inst}); err != nil {
				return err
			}
			continue
		}

		if item.depth >= d.maxDepth {
			return &DecompositionError{Err: ErrNonConvergent, Instruction: inst, Depth: item.depth}
		}

		rule, ok := d.rules.Match(inst)
		if !ok {
			return &DecompositionError{Err: ErrNoDecomposition, Instruction: inst}
		}

		replacement, err := rule.Generate(inst)
		if err != nil {
			return &DecompositionError{Err: err, Instruction: inst}
		}

		d.logger.Debug("decomposed instruction",
			"rule", rule.Name,
			"gate", inst.Gate.String(),
			"depth", item.depth,
			"expansion", len(replacement),
		)
		telemetry.RecordDecomposition(ctx, telemetry.DecompositionMetrics{
			Rule:      rule.Name,
			Gate:      inst.Gate.Kind.String(),
			Depth:     item.depth,
			Expansion: len(replacement),
		})

		// Push in reverse so replacements are processed in issuance order,
		// each inheriting the parent's tags.
		for i := len(replacement) - 1; i >= 0; i-- {
			child := replacement[i].WithTags(inst.Tags...)
			stack = append(stack, workItem{inst: child, depth: item.depth + 1})
		}
	}
	return nil
}
