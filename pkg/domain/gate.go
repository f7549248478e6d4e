package domain

import (
	"fmt"
	"math"
)

// Kind identifies a gate category. The set is closed: rule lookup and filter
// predicates dispatch on the tag, never on open-ended type inspection.
type Kind uint8

const (
	// KindInvalid is the zero Kind and never names a real gate.
	KindInvalid Kind = iota

	// Classical instructions. They always pass instruction filters and are
	// never subject to decomposition.
	KindAllocate
	KindDeallocate
	KindMeasure
	KindFlush

	// Elementary single-qubit gates.
	KindH
	KindX
	KindY
	KindZ
	KindS
	KindSdg
	KindT
	KindTdg

	// Parameterized rotations. Angle is periodic in 4π (global phase aside),
	// except Phase which is periodic in 2π.
	KindRx
	KindRy
	KindRz
	KindPhase

	// Multi-qubit gates.
	KindSwap
	KindQFT
)

var kindNames = map[Kind]string{
	KindAllocate:   "allocate",
	KindDeallocate: "deallocate",
	KindMeasure:    "measure",
	KindFlush:      "flush",
	KindH:          "h",
	KindX:          "x",
	KindY:          "y",
	KindZ:          "z",
	KindS:          "s",
	KindSdg:        "sdg",
	KindT:          "t",
	KindTdg:        "tdg",
	KindRx:         "rx",
	KindRy:         "ry",
	KindRz:         "rz",
	KindPhase:      "phase",
	KindSwap:       "swap",
	KindQFT:        "qft",
}

// KindByName returns the Kind with the given lowercase name.
func KindByName(name string) (Kind, bool) {
	for kind, kindName := range kindNames {
		if kindName == name {
			return kind, true
		}
	}
	return KindInvalid, false
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Classical reports whether the kind belongs to the distinguished classical
// subset (Allocate, Deallocate, Measure, Flush).
func (k Kind) Classical() bool {
	switch k {
	case KindAllocate, KindDeallocate, KindMeasure, KindFlush:
		return true
	default:
		return false
	}
}

// Parameterized reports whether gates of this kind carry a rotation angle.
func (k Kind) Parameterized() bool {
	switch k {
	case KindRx, KindRy, KindRz, KindPhase:
		return true
	default:
		return false
	}
}

// anglePeriod returns the equality period for a parameterized kind.
func (k Kind) anglePeriod() float64 {
	if k == KindPhase {
		return 2 * math.Pi
	}
	return 4 * math.Pi
}

// Gate identifies an operation kind together with its numeric parameters.
// Gates are compared by kind and normalized angle, so degenerate identity
// forms (e.g. Rz(0) and Rz(4π)) compare equal.
type Gate struct {
	Kind  Kind
	Angle float64
}

// NewGate builds a gate of a non-parameterized kind.
func NewGate(kind Kind) Gate {
	return Gate{Kind: kind}
}

// NewRotation builds a parameterized gate with its angle normalized into
// [0, period).
func NewRotation(kind Kind, angle float64) Gate {
	return Gate{Kind: kind, Angle: normalizeAngle(angle, kind.anglePeriod())}
}

func normalizeAngle(angle, period float64) float64 {
	normalized := math.Mod(angle, period)
	if normalized < 0 {
		normalized += period
	}
	// Mod can round back up to the period itself for tiny negative inputs.
	if normalized >= period {
		normalized = 0
	}
	return normalized
}

// Equal reports gate equality under the kind's own equality rule.
func (g Gate) Equal(other Gate) bool {
	if g.Kind != other.Kind {
		return false
	}
	if !g.Kind.Parameterized() {
		return true
	}
	period := g.Kind.anglePeriod()
	a := normalizeAngle(g.Angle, period)
	b := normalizeAngle(other.Angle, period)
	if a == b {
		return true
	}
	// Angles an epsilon apart across the period boundary are the same gate.
	diff := math.Abs(a - b)
	return math.Min(diff, period-diff) < 1e-12
}

func (g Gate) String() string {
	if g.Kind.Parameterized() {
		return fmt.Sprintf("%s(%g)", g.Kind, g.Angle)
	}
	return g.Kind.String()
}

// Convenience constructors for the fixed gate vocabulary.

// H returns a Hadamard gate.
func H() Gate { return NewGate(KindH) }

// X returns a Pauli-X gate. With one control it is a CNOT, with two a Toffoli.
func X() Gate { return NewGate(KindX) }

// Y returns a Pauli-Y gate.
func Y() Gate { return NewGate(KindY) }

// Z returns a Pauli-Z gate.
func Z() Gate { return NewGate(KindZ) }

// S returns the S phase gate.
func S() Gate { return NewGate(KindS) }

// Sdg returns the adjoint of S.
func Sdg() Gate { return NewGate(KindSdg) }

// T returns the T phase gate.
func T() Gate { return NewGate(KindT) }

// Tdg returns the adjoint of T.
func Tdg() Gate { return NewGate(KindTdg) }

// Rx returns an X-axis rotation by angle.
func Rx(angle float64) Gate { return NewRotation(KindRx, angle) }

// Ry returns a Y-axis rotation by angle.
func Ry(angle float64) Gate { return NewRotation(KindRy, angle) }

// Rz returns a Z-axis rotation by angle.
func Rz(angle float64) Gate { return NewRotation(KindRz, angle) }

// Phase returns a diag(1, e^iθ) phase gate.
func Phase(angle float64) Gate { return NewRotation(KindPhase, angle) }

// Swap returns the two-qubit SWAP gate.
func Swap() Gate { return NewGate(KindSwap) }

// QFT returns the quantum Fourier transform over one register target.
func QFT() Gate { return NewGate(KindQFT) }

// Allocate returns the classical allocation marker gate.
func Allocate() Gate { return NewGate(KindAllocate) }

// Deallocate returns the classical deallocation marker gate.
func Deallocate() Gate { return NewGate(KindDeallocate) }

// Measure returns the classical measurement gate.
func Measure() Gate { return NewGate(KindMeasure) }

// Flush returns the synchronization barrier gate.
func Flush() Gate { return NewGate(KindFlush) }
