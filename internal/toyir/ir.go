package toyir

import (
	"fmt"

	"github.com/tinyrange/swpipeline/internal/swpipeline"
)

// val is the identity behind every swpipeline.Value this package hands
// out: a fresh *val per definition, compared by pointer.
type val struct {
	id int
}

func (v *val) String() string { return fmt.Sprintf("%%v%d", v.id) }

// Kind reports the op-kind name ("add", "store", "const", ...) of a
// non-loop op, or "" for a loop op or any foreign Op. Exported so a
// PredicateFn built against this package can single out effectful ops
// (stores) without reaching into unexported fields.
func Kind(op swpipeline.Op) string {
	if n, ok := op.(*node); ok {
		return n.kind.String()
	}
	return ""
}

func valsToValues(vs []*val) []swpipeline.Value {
	out := make([]swpipeline.Value, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func toVals(vs []swpipeline.Value) []*val {
	out := make([]*val, len(vs))
	for i, v := range vs {
		vv, ok := v.(*val)
		if !ok {
			panic(fmt.Sprintf("toyir: %v is not a toyir value", v))
		}
		out[i] = vv
	}
	return out
}

type opKind int

const (
	kConst opKind = iota
	kAdd
	kSub
	kMul
	kCompareLT
	kSelect
	kLoad
	kStore
	kYield
)

func (k opKind) String() string {
	switch k {
	case kConst:
		return "const"
	case kAdd:
		return "add"
	case kSub:
		return "sub"
	case kMul:
		return "mul"
	case kCompareLT:
		return "cmplt"
	case kSelect:
		return "select"
	case kLoad:
		return "load"
	case kStore:
		return "store"
	case kYield:
		return "yield"
	default:
		return "unknown"
	}
}

// node is every non-loop operation: constants, arithmetic, compare,
// select, load/store, and a loop body's yield terminator.
type node struct {
	kind     opKind
	constVal int64
	operands []*val
	results  []*val
	block    *block
}

func (n *node) String() string { return fmt.Sprintf("%s@%p", n.kind, n) }

func (n *node) Block() swpipeline.Block { return n.block }

func (n *node) Results() []swpipeline.Value { return valsToValues(n.results) }

// ConstInt reports the op's constant value; meaningful only when the op
// is actually a kConst (the only case internal/swpipeline ever calls
// this through LowerBound/UpperBound/Step, which only ever name const
// ops).
func (n *node) ConstInt() (int64, bool) {
	return n.constVal, n.kind == kConst
}

func (n *node) Clone(r swpipeline.Rewriter) swpipeline.Op {
	b, ok := r.(*Builder)
	if !ok {
		panic("toyir: Clone called with a foreign Rewriter")
	}
	nn := &node{
		kind:     n.kind,
		constVal: n.constVal,
		operands: append([]*val(nil), n.operands...),
	}
	nn.results = make([]*val, len(n.results))
	for i := range n.results {
		nn.results[i] = b.newVal()
	}
	b.insert(nn)
	return nn
}

func (n *node) WalkOperands(visit func(swpipeline.OperandRef)) {
	for i := range n.operands {
		i := i
		visit(swpipeline.FuncOperandRef{
			Get: func() swpipeline.Value { return n.operands[i] },
			Set: func(v swpipeline.Value) { n.operands[i] = v.(*val) },
		})
	}
}

// loopOp is the counted-loop operation: constant lower/upper/step bounds
// (themselves node values of kind kConst), an induction value, a list of
// loop-carried iter-args, a body block, and the loop's own results.
type loopOp struct {
	block        *block
	lb, ub, step *node
	operands     []*val // initArgs, one per iter-arg
	iv           *val
	iterArgs     []*val
	results      []*val
	body         *block
}

func (l *loopOp) String() string { return fmt.Sprintf("loop@%p", l) }

// Op-interface methods: a loopOp is its own Op, so Loop.Op() can just
// return the receiver.
func (l *loopOp) Block() swpipeline.Block   { return l.block }
func (l *loopOp) Results() []swpipeline.Value { return valsToValues(l.results) }

func (l *loopOp) Clone(r swpipeline.Rewriter) swpipeline.Op {
	panic("toyir: cloning a counted loop op is not supported; build a replacement via Builder.BeginCountedLoop/FinishCountedLoop")
}

func (l *loopOp) WalkOperands(visit func(swpipeline.OperandRef)) {
	for i := range l.operands {
		i := i
		visit(swpipeline.FuncOperandRef{
			Get: func() swpipeline.Value { return l.operands[i] },
			Set: func(v swpipeline.Value) { l.operands[i] = v.(*val) },
		})
	}
}

// Loop-interface methods.
func (l *loopOp) Op() swpipeline.Op            { return l }
func (l *loopOp) LowerBound() swpipeline.ConstOp { return l.lb }
func (l *loopOp) UpperBound() swpipeline.ConstOp { return l.ub }
func (l *loopOp) Step() swpipeline.ConstOp       { return l.step }
func (l *loopOp) IV() swpipeline.Value           { return l.iv }
func (l *loopOp) IterArgs() []swpipeline.Value   { return valsToValues(l.iterArgs) }
func (l *loopOp) InitArgs() []swpipeline.Value   { return valsToValues(l.operands) }
func (l *loopOp) Body() swpipeline.Block         { return l.body }

func (l *loopOp) ResultUsedOutside(p int) bool {
	target := l.results[p]
	found := false
	walkOpsSkipping(l.block.fn.Block, l.body, func(o swpipeline.Op) {
		o.WalkOperands(func(ref swpipeline.OperandRef) {
			if rv, ok := ref.Value().(*val); ok && rv == target {
				found = true
			}
		})
	})
	for _, r := range l.block.fn.Results {
		if r == target {
			found = true
		}
	}
	return found
}

// block is both a loop body and the function's single top-level block.
// fn lets a loop op answer ResultUsedOutside without threading a
// separate program handle through every Rewriter call.
type block struct {
	fn    *Function
	ops   []swpipeline.Op
	yield swpipeline.Op // nil for the function's top-level block
}

func (b *block) Ops() []swpipeline.Op { return b.ops }
func (b *block) Yield() swpipeline.Op { return b.yield }

// Function is one compiled program: parameters, a top-level block of
// operations (which may include counted loops), and the values it
// returns.
type Function struct {
	Params  []*val
	Block   *block
	Results []*val
}

func opBlock(o swpipeline.Op) *block {
	switch n := o.(type) {
	case *node:
		return n.block
	case *loopOp:
		return n.block
	default:
		panic(fmt.Sprintf("toyir: unknown op type %T", o))
	}
}

func setOpBlock(o swpipeline.Op, b *block) {
	switch n := o.(type) {
	case *node:
		n.block = b
	case *loopOp:
		n.block = b
	default:
		panic(fmt.Sprintf("toyir: unknown op type %T", o))
	}
}

func opResults(o swpipeline.Op) []*val {
	switch n := o.(type) {
	case *node:
		return n.results
	case *loopOp:
		return n.results
	default:
		return nil
	}
}

func indexOfOp(ops []swpipeline.Op, target swpipeline.Op) int {
	for i, o := range ops {
		if o == target {
			return i
		}
	}
	return -1
}

// walkOps visits every op in b, recursing into nested loop bodies,
// including each block's yield terminator.
func walkOps(b *block, visit func(swpipeline.Op)) {
	walkOpsSkipping(b, nil, visit)
}

// walkOpsSkipping is walkOps but never recurses into skip, used to ask
// "is this value used outside this one loop's own body."
func walkOpsSkipping(b, skip *block, visit func(swpipeline.Op)) {
	if b == nil || b == skip {
		return
	}
	for _, o := range b.ops {
		visit(o)
		if lo, ok := o.(*loopOp); ok {
			walkOpsSkipping(lo.body, skip, visit)
		}
	}
	if b.yield != nil {
		visit(b.yield)
	}
}
