// Package domain defines the core value types of the gate legalization
// pipeline: gates, instructions, qubit handles, registers, and tags.
//
// This package contains pure domain logic with ZERO external dependencies
// outside the Go standard library. All types in this package are:
//
// - Independent of infrastructure (no transport, no telemetry, no rendering)
// - Immutable values once constructed
// - Testable in isolation without mocks
//
// Other packages (engine, rules, backend) operate on these types and depend
// on this package. The dependency direction is always:
//
//	Infrastructure → Domain (CORRECT)
//	Domain → Infrastructure (FORBIDDEN)
package domain
