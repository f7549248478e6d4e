// Package runtime defines the core contracts shared by chain stages and
// backends, keeping instruction semantics decoupled from chain mechanics.
package runtime

import (
	"context"

	"github.com/qubitflow/qubitflow/pkg/domain"
)

// Stage is one link in the legalization chain. Stages are assembled once
// into a linear chain before any instruction flows and must not be rewired
// while instructions are in flight.
//
// Receive processes a batch in order; each instruction is either forwarded
// to the next stage, substituted by a replacement sequence that re-enters
// the same contract, or refused with an error. Nested Receive calls complete
// before control returns, so a single engine instance is owned by exactly
// one logical program thread at a time.
//
// Available reports whether this stage, and transitively everything
// downstream of it, can ultimately accept the instruction without a
// terminal failure. It must be free of observable side effects so callers
// can query it speculatively.
type Stage interface {
	Receive(ctx context.Context, batch []domain.Instruction) error
	Available(inst domain.Instruction) bool
}

// Backend is the terminal stage. It gives instructions their real effect
// (execution, counting, or display) and must treat Flush as a hard
// synchronization point: once Receive returns for a batch containing a
// Flush, every instruction submitted before the barrier has had its
// backend-visible effect.
type Backend interface {
	Stage
}

// StageFunc builds one chain stage wired to its downstream neighbor. The
// chain constructor applies StageFuncs right to left onto the backend, so
// the resulting linkage is immutable once built.
type StageFunc func(next Stage) Stage
