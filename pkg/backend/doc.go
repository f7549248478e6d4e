// Package backend provides terminal chain stages: a recorder for tests and
// programmatic inspection, a printer for textual output, and a resource
// counter exporting prometheus metrics. Backends are external collaborators
// to the chain; they only implement the runtime.Backend contract and treat
// Flush as a hard synchronization point.
//
// A backend instance belongs to a single chain and inherits its
// single-threaded ownership model, so none of these sinks carry locks.
package backend
