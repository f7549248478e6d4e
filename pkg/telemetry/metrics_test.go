package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectMetrics(t *testing.T, ctx context.Context, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}
	return metrics
}

func TestRecordChainMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
	})

	ResetMetricsForTest()

	RecordInstruction(ctx, InstructionMetrics{
		EngineID: "engine-1",
		Gate:     "x",
		Controls: 1,
	})
	RecordDecomposition(ctx, DecompositionMetrics{
		Rule:      "swap.cnot",
		Gate:      "swap",
		Depth:     2,
		Expansion: 3,
	})
	RecordFlush(ctx, "engine-1")
	RecordQubitDelta(ctx, "engine-1", 1)
	RecordQubitDelta(ctx, "engine-1", 1)
	RecordQubitDelta(ctx, "engine-1", -1)

	metrics := collectMetrics(t, ctx, reader)

	instr, ok := metrics["qubitflow.instructions_total"]
	if !ok {
		t.Fatalf("missing instructions metric")
	}
	instrData, ok := instr.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type for instructions metric")
	}
	if len(instrData.DataPoints) != 1 {
		t.Fatalf("expected 1 datapoint, got %d", len(instrData.DataPoints))
	}
	if instrData.DataPoints[0].Value != 1 {
		t.Fatalf("expected instruction count 1, got %d", instrData.DataPoints[0].Value)
	}
	if value, ok := instrData.DataPoints[0].Attributes.Value(attribute.Key("gate.kind")); !ok || value.AsString() != "x" {
		t.Fatalf("expected gate.kind attribute x, got %v", value)
	}
	if value, ok := instrData.DataPoints[0].Attributes.Value(attribute.Key("gate.controls")); !ok || value.AsInt64() != 1 {
		t.Fatalf("expected gate.controls attribute 1, got %v", value)
	}

	decomp, ok := metrics["qubitflow.decompositions_total"]
	if !ok {
		t.Fatalf("missing decompositions metric")
	}
	decompData := decomp.Data.(metricdata.Sum[int64])
	if decompData.DataPoints[0].Value != 1 {
		t.Fatalf("expected decomposition count 1, got %d", decompData.DataPoints[0].Value)
	}
	if value, ok := decompData.DataPoints[0].Attributes.Value(attribute.Key("rule.name")); !ok || value.AsString() != "swap.cnot" {
		t.Fatalf("expected rule.name swap.cnot, got %v", value)
	}

	depth, ok := metrics["qubitflow.decomposition_depth"]
	if !ok {
		t.Fatalf("missing decomposition depth metric")
	}
	depthData := depth.Data.(metricdata.Histogram[int64])
	if depthData.DataPoints[0].Count != 1 {
		t.Fatalf("expected histogram count 1, got %d", depthData.DataPoints[0].Count)
	}
	if depthData.DataPoints[0].Sum != 2 {
		t.Fatalf("expected histogram sum 2, got %v", depthData.DataPoints[0].Sum)
	}

	flushes, ok := metrics["qubitflow.flushes_total"]
	if !ok {
		t.Fatalf("missing flushes metric")
	}
	flushData := flushes.Data.(metricdata.Sum[int64])
	if flushData.DataPoints[0].Value != 1 {
		t.Fatalf("expected flush count 1, got %d", flushData.DataPoints[0].Value)
	}

	active, ok := metrics["qubitflow.qubits_active"]
	if !ok {
		t.Fatalf("missing active qubits metric")
	}
	activeData := active.Data.(metricdata.Sum[int64])
	if activeData.DataPoints[0].Value != 1 {
		t.Fatalf("expected 1 live qubit, got %d", activeData.DataPoints[0].Value)
	}
}
