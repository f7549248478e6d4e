// Package main is the entry point for the qubitflow binary.
// It runs circuit files through a legalization chain and prints, records,
// or counts the instruction stream a backend would receive.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/qubitflow/qubitflow/pkg/backend"
	"github.com/qubitflow/qubitflow/pkg/config"
	"github.com/qubitflow/qubitflow/pkg/domain"
	"github.com/qubitflow/qubitflow/pkg/engine"
	"github.com/qubitflow/qubitflow/pkg/engine/runtime"
	"github.com/qubitflow/qubitflow/pkg/logging"
	"github.com/qubitflow/qubitflow/pkg/rules"
	"github.com/qubitflow/qubitflow/pkg/telemetry"
)

const defaultLogLevel = "info"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for qubitflow.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "qubitflow",
		Short: "Gate legalization pipeline for quantum circuits",
		Long: `qubitflow compiles a stream of abstract gate applications into an
equivalent stream restricted to a declared target gate set, preserving
per-qubit ordering, qubit lifetimes, and synchronization barriers.

Example:
  qubitflow run circuit.yaml --config chain.yaml --backend printer`,
	}
	rootCmd.AddCommand(newRunCmd())
	return rootCmd
}

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [circuit.yaml]",
		Short: "Run a circuit file through the legalization chain",
		Args:  cobra.ExactArgs(1),
		RunE:  runCircuit,
	}
	runCmd.Flags().StringP("config", "c", "", "Path to chain configuration file (YAML)")
	runCmd.Flags().StringP("log-level", "l", defaultLogLevel, "Log level (debug, info, warn, error)")
	runCmd.Flags().Bool("pretty", false, "Human-readable log output")
	runCmd.Flags().StringP("backend", "b", "", "Backend override (printer, recorder, counter)")
	runCmd.Flags().BoolP("watch", "w", false, "Re-run when the circuit file changes")
	runCmd.Flags().String("otlp-endpoint", "", "OTLP gRPC endpoint for trace export")
	runCmd.Flags().Bool("otlp-insecure", false, "Export traces without TLS")
	return runCmd
}

func runCircuit(cmd *cobra.Command, args []string) error {
	circuitPath := args[0]

	configPath, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")
	pretty, _ := cmd.Flags().GetBool("pretty")
	backendName, _ := cmd.Flags().GetString("backend")
	watch, _ := cmd.Flags().GetBool("watch")
	otlpEndpoint, _ := cmd.Flags().GetString("otlp-endpoint")
	otlpInsecure, _ := cmd.Flags().GetBool("otlp-insecure")

	logger := logging.NewLogger(logging.Config{Level: logLevel, Pretty: pretty})
	slog.SetDefault(logger)

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadChainConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if backendName != "" {
		cfg.Backend = backendName
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if otlpEndpoint != "" {
		shutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
			ServiceName: "qubitflow",
			Endpoint:    otlpEndpoint,
			Insecure:    otlpInsecure,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", "error", err)
			}
		}()
	}

	if err := execute(ctx, circuitPath, cfg, logger); err != nil {
		return err
	}
	if !watch {
		return nil
	}

	watcher, err := config.NewWatcher(circuitPath, func(path string) error {
		return execute(ctx, path, cfg, logger)
	}, logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := watcher.Stop(); err != nil {
			logger.Error("watcher stop failed", "error", err)
		}
	}()

	<-ctx.Done()
	return nil
}

// execute runs one circuit file through a freshly assembled chain.
func execute(ctx context.Context, circuitPath string, cfg config.ChainConfig, logger *slog.Logger) error {
	circuit, err := config.LoadCircuit(circuitPath)
	if err != nil {
		return err
	}

	sink, report, err := buildBackend(cfg, logger)
	if err != nil {
		return err
	}

	eng, err := engine.NewMainEngine(engine.MainEngineConfig{
		Backend: sink,
		Stages: []runtime.StageFunc{
			engine.WithDecomposer(engine.DecomposerConfig{
				Rules:    rules.Standard(),
				MaxDepth: cfg.MaxDepth,
				Logger:   logger,
			}),
			engine.WithFilter(cfg.Predicate()),
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eng.Close(closeCtx); err != nil {
			logger.Error("engine close failed", "error", err)
		}
	}()

	logger.Info("running circuit", "name", circuit.Name, "qubits", circuit.Qubits, "ops", len(circuit.Ops))

	register, err := eng.AllocateRegister(ctx, circuit.Qubits)
	if err != nil {
		return err
	}
	for i, op := range circuit.Ops {
		inst, err := op.Instruction(register)
		if err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
		if err := eng.Apply(ctx, inst); err != nil {
			return fmt.Errorf("op %d (%s): %w", i, inst, err)
		}
	}
	if err := eng.Flush(ctx); err != nil {
		return err
	}

	report()
	return nil
}

// buildBackend resolves the configured sink plus a post-run report hook.
func buildBackend(cfg config.ChainConfig, logger *slog.Logger) (runtime.Backend, func(), error) {
	switch cfg.Backend {
	case config.BackendPrinter:
		return backend.NewPrinter(os.Stdout), func() {}, nil
	case config.BackendRecorder:
		rec := backend.NewRecorder(nil)
		return rec, func() {
			logger.Info("recorded stream", "instructions", len(rec.Stream()), "flushes", rec.Flushes())
		}, nil
	case config.BackendCounter:
		counter, err := backend.NewResourceCounter(prometheus.NewRegistry())
		if err != nil {
			return nil, nil, err
		}
		return counter, func() {
			logger.Info("resource counts",
				"max_active_qubits", counter.MaxActiveQubits(),
				"cnots", counter.GateCount(domain.KindX, 1),
			)
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
