// Package engine implements the legalization chain that instructions flow
// through on their way from client code to a backend.
//
// Architecture:
//
// main_engine.go - Chain entry point (qubit lifecycle, barrier, chain assembly)
// filter.go      - Predicate-based instruction filter stage
// decompose.go   - Rule-driven recursive decomposition stage
// errors.go      - Chain error kinds (rejection, exhaustion, non-convergence)
//
// The engine package is responsible for routing every issued instruction
// through the configured stages so that everything reaching the backend is
// an instruction it accepts, while preserving per-qubit ordering and
// allocation/deallocation consistency.
package engine
