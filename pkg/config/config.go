// Package config loads chain and circuit descriptions from YAML and
// compiles the declared gate set into the filter predicate.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/qubitflow/qubitflow/pkg/domain"
)

// Backend names accepted by ChainConfig.
const (
	BackendPrinter  = "printer"
	BackendRecorder = "recorder"
	BackendCounter  = "counter"
)

// ChainConfig describes how to assemble a legalization chain.
type ChainConfig struct {
	LogLevel string     `yaml:"log_level"`
	Pretty   bool       `yaml:"pretty"`
	Backend  string     `yaml:"backend"`
	MaxDepth int        `yaml:"max_depth"`
	GateSet  []GateSpec `yaml:"gateset"`
}

// GateSpec names one accepted gate category. A nil Controls matches any
// control count; otherwise the count must match exactly.
type GateSpec struct {
	Gate     string `yaml:"gate"`
	Controls *int   `yaml:"controls"`
}

// Default returns the chain configuration used when no file is supplied:
// a printer backend accepting single-qubit gates and CNOT.
func Default() ChainConfig {
	one := 1
	zero := 0
	return ChainConfig{
		LogLevel: "info",
		Backend:  BackendPrinter,
		GateSet: []GateSpec{
			{Gate: "h", Controls: &zero},
			{Gate: "x"},
			{Gate: "y", Controls: &zero},
			{Gate: "z", Controls: &zero},
			{Gate: "s", Controls: &zero},
			{Gate: "sdg", Controls: &zero},
			{Gate: "t", Controls: &zero},
			{Gate: "tdg", Controls: &zero},
			{Gate: "rx", Controls: &zero},
			{Gate: "ry", Controls: &zero},
			{Gate: "rz", Controls: &zero},
			{Gate: "phase", Controls: &zero},
			{Gate: "x", Controls: &one},
		},
	}
}

// LoadChainConfig reads and validates a chain configuration file.
func LoadChainConfig(path string) (ChainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ChainConfig{}, fmt.Errorf("read chain config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ChainConfig{}, fmt.Errorf("parse chain config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ChainConfig{}, err
	}
	return cfg, nil
}

// Validate checks backend and gate set names.
func (c ChainConfig) Validate() error {
	switch c.Backend {
	case BackendPrinter, BackendRecorder, BackendCounter:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative, got %d", c.MaxDepth)
	}
	if len(c.GateSet) == 0 {
		return fmt.Errorf("gateset must name at least one accepted gate")
	}
	for _, spec := range c.GateSet {
		kind, ok := domain.KindByName(spec.Gate)
		if !ok {
			return fmt.Errorf("unknown gate %q in gateset", spec.Gate)
		}
		if kind.Classical() {
			return fmt.Errorf("classical gate %q has no place in a gateset; it always passes", spec.Gate)
		}
		if spec.Controls != nil && *spec.Controls < 0 {
			return fmt.Errorf("gate %q has negative control count", spec.Gate)
		}
	}
	return nil
}

// Predicate compiles the gate set into a pure acceptance predicate over
// instructions, suitable for the chain's filter stage.
func (c ChainConfig) Predicate() func(domain.Instruction) bool {
	exact := make(map[gateArity]struct{})
	any := make(map[domain.Kind]struct{})
	for _, spec := range c.GateSet {
		kind, ok := domain.KindByName(spec.Gate)
		if !ok {
			continue
		}
		if spec.Controls == nil {
			any[kind] = struct{}{}
			continue
		}
		exact[gateArity{kind: kind, controls: *spec.Controls}] = struct{}{}
	}
	return func(inst domain.Instruction) bool {
		if _, ok := any[inst.Gate.Kind]; ok {
			return true
		}
		_, ok := exact[gateArity{kind: inst.Gate.Kind, controls: inst.ControlCount()}]
		return ok
	}
}

type gateArity struct {
	kind     domain.Kind
	controls int
}
