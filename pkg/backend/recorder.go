package backend

import (
	"context"

	"github.com/qubitflow/qubitflow/pkg/domain"
)

// Recorder is a backend that appends every consumed instruction to an
// in-memory stream. Tests use it to assert exactly what a chain delivered
// and in what order.
type Recorder struct {
	accepts func(domain.Instruction) bool
	stream  []domain.Instruction
	flushes int
}

// NewRecorder creates a recorder accepting every instruction. Pass a
// predicate to model a backend with a restricted instruction set.
func NewRecorder(accepts func(domain.Instruction) bool) *Recorder {
	return &Recorder{accepts: accepts}
}

// Available reports the backend's acceptance verdict; classical
// instructions are always accepted.
func (r *Recorder) Available(inst domain.Instruction) bool {
	if inst.IsClassical() || r.accepts == nil {
		return true
	}
	return r.accepts(inst)
}

// Receive consumes the batch. Flush marks a barrier: by the time Receive
// returns, every prior instruction is visible in the stream.
func (r *Recorder) Receive(_ context.Context, batch []domain.Instruction) error {
	for _, inst := range batch {
		if inst.Gate.Kind == domain.KindFlush {
			r.flushes++
		}
		r.stream = append(r.stream, inst)
	}
	return nil
}

// Stream returns a copy of the consumed instructions in arrival order.
func (r *Recorder) Stream() []domain.Instruction {
	out := make([]domain.Instruction, len(r.stream))
	copy(out, r.stream)
	return out
}

// ForQubit projects the stream onto the instructions touching q,
// preserving arrival order.
func (r *Recorder) ForQubit(q domain.Qubit) []domain.Instruction {
	var out []domain.Instruction
	for _, inst := range r.stream {
		if inst.Touches(q) {
			out = append(out, inst)
		}
	}
	return out
}

// Flushes returns the number of barriers observed.
func (r *Recorder) Flushes() int {
	return r.flushes
}

// Reset clears the stream.
func (r *Recorder) Reset() {
	r.stream = nil
	r.flushes = 0
}
