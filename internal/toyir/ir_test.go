package toyir

import (
	"testing"

	"github.com/tinyrange/swpipeline/internal/swpipeline"
)

// buildSum builds: acc := 0; for iv in [0,n) step 1 { acc = acc + iv };
// return acc.
func buildSum(n int64) *Function {
	b := NewBuilder()
	lb := b.Const(0)
	ub := b.Const(n)
	step := b.Const(1)
	acc0 := b.Const(0)

	loop, iv, iterArgs := b.BeginCountedLoop(lb, ub, step, []swpipeline.Value{acc0})
	acc := iterArgs[0]
	next := b.AddOp(acc, iv)
	b.FinishCountedLoop(loop, []swpipeline.Value{next})

	return b.Finish(loop.Results()[0])
}

func TestBuilderRoundTrip(t *testing.T) {
	fn := buildSum(5)

	if got := len(fn.Params); got != 0 {
		t.Fatalf("expected 0 params, got %d", got)
	}
	if got := len(fn.Results); got != 1 {
		t.Fatalf("expected 1 result, got %d", got)
	}

	loopOps := fn.Block.Ops()
	if len(loopOps) != 5 {
		t.Fatalf("expected 5 top-level ops (0, n, 1, 0, loop), got %d", len(loopOps))
	}
	lo, ok := loopOps[4].(*loopOp)
	if !ok {
		t.Fatalf("expected last op to be a loop, got %T", loopOps[4])
	}

	body := lo.Body().Ops()
	if len(body) != 1 {
		t.Fatalf("expected 1 body op (the add), got %d", len(body))
	}
	if n := body[0].(*node); n.kind != kAdd {
		t.Fatalf("expected body op to be add, got %v", n.kind)
	}

	yield := lo.Body().Yield()
	if yield == nil {
		t.Fatal("expected a yield terminator")
	}
}

func TestInterpRunsSum(t *testing.T) {
	fn := buildSum(5)
	in := NewInterp()

	out, err := in.Run(fn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out))
	}
	if out[0] != 10 { // 0+1+2+3+4
		t.Fatalf("expected 10, got %d", out[0])
	}
}

func TestInterpRunsZeroTripLoop(t *testing.T) {
	fn := buildSum(0)
	in := NewInterp()

	out, err := in.Run(fn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out[0] != 0 {
		t.Fatalf("expected 0, got %d", out[0])
	}
}

func TestClonePreservesKindAndOperands(t *testing.T) {
	b := NewBuilder()
	c1 := b.Const(3)
	c2 := b.Const(4)
	sum := b.emit(kAdd, 0, 1, c1, c2)

	clone := sum.Clone(b).(*node)
	if clone == sum {
		t.Fatal("Clone returned the same node")
	}
	if clone.kind != sum.kind {
		t.Fatalf("clone kind %v != original %v", clone.kind, sum.kind)
	}
	if len(clone.results) != 1 || clone.results[0] == sum.results[0] {
		t.Fatal("clone did not get a fresh result identity")
	}
	if len(clone.operands) != 2 || clone.operands[0] != c1.(*val) || clone.operands[1] != c2.(*val) {
		t.Fatalf("clone operands %v != original %v", clone.operands, sum.operands)
	}
}

func TestWalkOperandsCanRewrite(t *testing.T) {
	b := NewBuilder()
	c1 := b.Const(3)
	c2 := b.Const(4)
	c3 := b.Const(9)
	sum := b.emit(kAdd, 0, 1, c1, c2)

	sum.WalkOperands(func(ref swpipeline.OperandRef) {
		if ref.Value() == c2 {
			ref.SetValue(c3)
		}
	})

	if sum.operands[1] != c3.(*val) {
		t.Fatal("WalkOperands did not rewrite the operand in place")
	}
}
