package toyir

import (
	"testing"

	"github.com/tinyrange/swpipeline/internal/swpipeline"
)

func TestInterpMemoryAndSelect(t *testing.T) {
	b := NewBuilder()
	addr := b.Const(42)
	val := b.Const(7)
	b.Store(addr, val)
	loaded := b.Load(addr)

	threshold := b.Const(5)
	cond := b.CompareLT(threshold, loaded) // 5 < 7 -> true
	chosen := b.Select(cond, loaded, threshold)

	fn := b.Finish(chosen)

	in := NewInterp()
	out, err := in.Run(fn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out[0] != 7 {
		t.Fatalf("expected 7, got %d", out[0])
	}
}

func TestInterpSelectFalseBranch(t *testing.T) {
	b := NewBuilder()
	cond := b.Const(0)
	a := b.Const(1)
	c := b.Const(2)
	chosen := b.Select(cond, a, c)
	fn := b.Finish(chosen)

	out, err := NewInterp().Run(fn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out[0] != 2 {
		t.Fatalf("expected 2, got %d", out[0])
	}
}

func TestInterpParams(t *testing.T) {
	b := NewBuilder()
	p := b.AddParam()
	one := b.Const(1)
	sum := b.AddOp(p, one)
	fn := b.Finish(sum)

	out, err := NewInterp().Run(fn, 41)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out[0] != 42 {
		t.Fatalf("expected 42, got %d", out[0])
	}

	if _, err := NewInterp().Run(fn); err == nil {
		t.Fatal("expected an error when argument count mismatches params")
	}
}

func TestReplaceAllUsesRewritesResultsAndOperands(t *testing.T) {
	b := NewBuilder()
	a := b.Const(1)
	c := b.Const(2)
	sum := b.AddOp(a, c)
	user := b.AddOp(sum, a)
	fn := b.Finish(sum)

	replacement := b.Const(99)
	b.ReplaceAllUses(sum, replacement)

	if fn.Results[0] != replacement.(*val) {
		t.Fatal("ReplaceAllUses did not update the function's declared results")
	}
	if b.DefiningOp(user).(*node).operands[0] != replacement.(*val) {
		t.Fatal("ReplaceAllUses did not rewrite an operand use")
	}
}

func TestEraseOpRemovesDeadOp(t *testing.T) {
	b := NewBuilder()
	dead := b.Const(123)
	kept := b.Const(1)
	fn := b.Finish(kept)

	deadNode, ok := dead.(*val)
	if !ok {
		t.Fatal("expected *val")
	}
	op := b.defOf[deadNode]
	b.EraseOp(op)

	if len(fn.Block.ops) != 1 {
		t.Fatalf("expected 1 remaining op after erase, got %d", len(fn.Block.ops))
	}
}

var _ swpipeline.Rewriter = (*Builder)(nil)
