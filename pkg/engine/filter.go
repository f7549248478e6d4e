package engine

import (
	"context"
	"log/slog"

	"github.com/qubitflow/qubitflow/pkg/domain"
	"github.com/qubitflow/qubitflow/pkg/engine/runtime"
)

// Predicate decides whether a stage accepts an instruction. It must be a
// pure function of the instruction's fields so Available stays safe to call
// speculatively.
type Predicate func(inst domain.Instruction) bool

// Filter is a chain stage that forwards instructions its predicate accepts
// and refuses the rest. It performs no rewriting; a decomposition stage is
// normally placed immediately upstream so rejections become expansions
// instead of errors.
type Filter struct {
	next    runtime.Stage
	accepts Predicate
	logger  *slog.Logger
}

// NewFilter creates a filter stage wired to next.
func NewFilter(next runtime.Stage, accepts Predicate, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{next: next, accepts: accepts, logger: logger}
}

// WithFilter returns a StageFunc installing a filter with the given
// predicate at that position in the chain.
func WithFilter(accepts Predicate) runtime.StageFunc {
	return func(next runtime.Stage) runtime.Stage {
		return NewFilter(next, accepts, nil)
	}
}

// Available returns the predicate's verdict; classical instructions always
// pass.
func (f *Filter) Available(inst domain.Instruction) bool {
	return inst.IsClassical() || f.accepts(inst)
}

// Receive forwards every accepted instruction in order and fails on the
// first rejection. Instructions forwarded before the rejection stay
// forwarded; nothing after it is.
func (f *Filter) Receive(ctx context.Context, batch []domain.Instruction) error {
	for _, inst := range batch {
		if !f.Available(inst) {
			f.logger.Debug("filter rejected instruction", "instruction", inst.String())
			return &FilterError{Instruction: inst}
		}
		if err := f.next.Receive(ctx, []domain.Instruction{inst}); err != nil {
			return err
		}
	}
	return nil
}
