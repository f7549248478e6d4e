// Package rules holds the decomposition rule registry and the standard rule
// library. Rules are registered during setup, before any chain is built; a
// registry is read-only afterward and may be shared across independent
// chains without synchronization.
package rules

import (
	"fmt"

	"github.com/qubitflow/qubitflow/pkg/domain"
)

// AnyControls marks a rule that applies regardless of control count.
const AnyControls = -1

// Generator expands one instruction of the rule's category into an ordered
// replacement sequence that is logically equivalent to the original.
type Generator func(inst domain.Instruction) ([]domain.Instruction, error)

// Rule maps a gate category to its generator. A category is a gate kind
// plus, for control-count-specific rules, the exact number of controls.
type Rule struct {
	Name     string
	Kind     domain.Kind
	Controls int
	Generate Generator
}

func (r Rule) matches(inst domain.Instruction) bool {
	if r.Kind != inst.Gate.Kind {
		return false
	}
	return r.Controls == AnyControls || r.Controls == inst.ControlCount()
}

// Registry keys rules by gate kind. Lookup precedence is explicit rather
// than an accident of iteration order: a control-count-specific rule always
// beats an AnyControls rule, and within the same specificity class the
// first-registered rule wins.
type Registry struct {
	byKind map[domain.Kind][]Rule
	frozen bool
}

// NewRegistry returns an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[domain.Kind][]Rule)}
}

// Register adds a rule. It fails on malformed rules and on registries
// already frozen by chain construction.
func (reg *Registry) Register(rule Rule) error {
	if reg.frozen {
		return fmt.Errorf("registry is frozen: rule %q registered after chain construction", rule.Name)
	}
	if rule.Name == "" {
		return fmt.Errorf("rule has no name")
	}
	if rule.Generate == nil {
		return fmt.Errorf("rule %q has no generator", rule.Name)
	}
	if rule.Kind == domain.KindInvalid || rule.Kind.Classical() {
		return fmt.Errorf("rule %q targets non-decomposable kind %s", rule.Name, rule.Kind)
	}
	if rule.Controls < AnyControls {
		return fmt.Errorf("rule %q has invalid control count %d", rule.Name, rule.Controls)
	}
	reg.byKind[rule.Kind] = append(reg.byKind[rule.Kind], rule)
	return nil
}

// MustRegister is Register for statically correct rule tables.
func (reg *Registry) MustRegister(rule Rule) {
	if err := reg.Register(rule); err != nil {
		panic(err)
	}
}

// Freeze marks the registry read-only. Called once by chain construction;
// further Register calls fail.
func (reg *Registry) Freeze() {
	reg.frozen = true
}

// Match returns the rule that applies to the instruction, if any.
func (reg *Registry) Match(inst domain.Instruction) (Rule, bool) {
	candidates := reg.byKind[inst.Gate.Kind]
	for _, rule := range candidates {
		if rule.Controls == inst.ControlCount() {
			return rule, true
		}
	}
	for _, rule := range candidates {
		if rule.Controls == AnyControls && rule.matches(inst) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Len returns the number of registered rules.
func (reg *Registry) Len() int {
	n := 0
	for _, rules := range reg.byKind {
		n += len(rules)
	}
	return n
}
