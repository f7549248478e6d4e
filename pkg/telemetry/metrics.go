package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce          sync.Once
	metricsInitErr       error
	instructionCounter   metric.Int64Counter
	decompositionCounter metric.Int64Counter
	depthHistogram       metric.Int64Histogram
	flushCounter         metric.Int64Counter
	activeQubitCounter   metric.Int64UpDownCounter
)

// InstructionMetrics captures the fields recorded for every instruction the
// entry point submits into the chain.
type InstructionMetrics struct {
	EngineID string
	Gate     string
	Controls int
}

// RecordInstruction emits the per-instruction counter.
func RecordInstruction(ctx context.Context, m InstructionMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}
	instructionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("engine.id", m.EngineID),
		attribute.String("gate.kind", m.Gate),
		attribute.Int("gate.controls", m.Controls),
	))
}

// DecompositionMetrics captures one rule application inside the decomposer.
type DecompositionMetrics struct {
	Rule      string
	Gate      string
	Depth     int
	Expansion int
}

// RecordDecomposition emits the decomposition counter and depth histogram.
func RecordDecomposition(ctx context.Context, m DecompositionMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("rule.name", m.Rule),
		attribute.String("gate.kind", m.Gate),
	)
	decompositionCounter.Add(ctx, 1, attrs)
	depthHistogram.Record(ctx, int64(m.Depth), attrs)
}

// RecordFlush emits the barrier counter.
func RecordFlush(ctx context.Context, engineID string) {
	if err := ensureMetrics(); err != nil {
		return
	}
	flushCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("engine.id", engineID)))
}

// RecordQubitDelta tracks the live-qubit gauge; +1 on allocation, -1 on
// deallocation.
func RecordQubitDelta(ctx context.Context, engineID string, delta int64) {
	if err := ensureMetrics(); err != nil {
		return
	}
	activeQubitCounter.Add(ctx, delta, metric.WithAttributes(attribute.String("engine.id", engineID)))
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("qubitflow.chain")

		instructionCounter, metricsInitErr = meter.Int64Counter(
			"qubitflow.instructions_total",
			metric.WithDescription("Instructions submitted into the chain, partitioned by gate kind"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		decompositionCounter, metricsInitErr = meter.Int64Counter(
			"qubitflow.decompositions_total",
			metric.WithDescription("Rule applications performed by decomposition stages"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		depthHistogram, metricsInitErr = meter.Int64Histogram(
			"qubitflow.decomposition_depth",
			metric.WithDescription("Rewrite depth at which rules were applied"),
			metric.WithUnit("{level}"),
		)
		if metricsInitErr != nil {
			return
		}

		flushCounter, metricsInitErr = meter.Int64Counter(
			"qubitflow.flushes_total",
			metric.WithDescription("Synchronization barriers forwarded through the chain"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		activeQubitCounter, metricsInitErr = meter.Int64UpDownCounter(
			"qubitflow.qubits_active",
			metric.WithDescription("Currently allocated qubit handles"),
			metric.WithUnit("{qubit}"),
		)
	})
	return metricsInitErr
}
