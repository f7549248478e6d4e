package backend

import (
	"context"
	"fmt"
	"io"

	"github.com/qubitflow/qubitflow/pkg/domain"
)

// Printer is a backend that renders one line per instruction to a writer.
// It accepts everything; place a filter upstream to constrain the printed
// vocabulary.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a printer backend writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Available always reports true.
func (p *Printer) Available(domain.Instruction) bool {
	return true
}

// Receive writes the batch. Write errors propagate so a failed sink aborts
// the in-flight operation instead of silently losing instructions.
func (p *Printer) Receive(_ context.Context, batch []domain.Instruction) error {
	for _, inst := range batch {
		if inst.Gate.Kind == domain.KindFlush {
			if _, err := fmt.Fprintln(p.w, "-- flush --"); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintln(p.w, inst.String()); err != nil {
			return err
		}
	}
	return nil
}
