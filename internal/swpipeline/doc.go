// Package swpipeline implements software pipelining of a structured
// counted loop: given a body whose operations have been pre-assigned to
// integer pipeline stages by an external scheduler, it rewrites the loop
// into a prologue, a shorter steady-state kernel, and either an epilogue
// or a predicated tail, so that on each kernel iteration stage k of
// iteration i-k executes alongside stage 0 of iteration i.
//
// The package never touches a concrete IR. It is coded entirely against
// the capability interfaces in types.go (Value, Op, Block, Loop,
// Rewriter); a host compiler wires its own SSA representation against
// them. internal/toyir is one such wiring, used by this package's own
// tests.
package swpipeline
