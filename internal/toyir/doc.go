// Package toyir is a minimal arithmetic SSA IR that implements every
// capability interface internal/swpipeline requires (Value, Op, ConstOp,
// Block, Loop, Rewriter). It exists so internal/swpipeline's own tests,
// and the two swpipeline-demo/swpipeline-bench commands, have a concrete
// IR to pipeline without internal/swpipeline ever depending on one.
//
// A program is a single Function: a flat parameter list, a top-level
// block, and a list of result values. The only structured control flow
// is the counted loop built by Builder.BeginCountedLoop /
// FinishCountedLoop — the same pair of calls Builder uses both to author
// a test program's original loop and, playing the role of
// swpipeline.Rewriter, to construct the pipelined kernel loop.
package toyir
