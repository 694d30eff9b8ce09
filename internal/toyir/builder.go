package toyir

import (
	"fmt"

	"github.com/tinyrange/swpipeline/internal/swpipeline"
)

// Builder is both the way a test or fixture authors an original program
// and, handed to swpipeline.PipelineLoop unchanged, the Rewriter that
// constructs the pipelined replacement. Ops are always inserted at the
// current (block, cursor) position; BeginCountedLoop/FinishCountedLoop
// push/pop that position the way entering and leaving a nested scope
// would.
type Builder struct {
	fn       *Function
	curBlock *block
	cursor   int
	nextID   int
	defOf    map[*val]*node
	stack    []frame
}

type frame struct {
	block  *block
	cursor int
}

// NewBuilder starts a fresh, empty Function.
func NewBuilder() *Builder {
	fn := &Function{}
	fn.Block = &block{}
	fn.Block.fn = fn
	b := &Builder{
		fn:       fn,
		curBlock: fn.Block,
		defOf:    make(map[*val]*node),
	}
	return b
}

// AddParam declares a new function parameter and returns its value.
func (b *Builder) AddParam() swpipeline.Value {
	v := b.newVal()
	b.fn.Params = append(b.fn.Params, v)
	return v
}

// Finish records results and returns the completed Function. Builder
// must be back at the top-level block (every BeginCountedLoop matched
// by a FinishCountedLoop) when this is called.
func (b *Builder) Finish(results ...swpipeline.Value) *Function {
	assertf(len(b.stack) == 0, "Finish called with %d unmatched BeginCountedLoop call(s)", len(b.stack))
	b.fn.Results = toVals(results)
	return b.fn
}

func (b *Builder) newVal() *val {
	b.nextID++
	return &val{id: b.nextID}
}

func (b *Builder) insert(o swpipeline.Op) {
	setOpBlock(o, b.curBlock)
	blk := b.curBlock
	blk.ops = append(blk.ops, nil)
	copy(blk.ops[b.cursor+1:], blk.ops[b.cursor:])
	blk.ops[b.cursor] = o
	b.cursor++

	if n, ok := o.(*node); ok {
		for _, r := range n.results {
			b.defOf[r] = n
		}
	}
}

func (b *Builder) emit(kind opKind, constVal int64, nresults int, operands ...swpipeline.Value) *node {
	n := &node{kind: kind, constVal: constVal, operands: toVals(operands)}
	n.results = make([]*val, nresults)
	for i := range n.results {
		n.results[i] = b.newVal()
	}
	b.insert(n)
	return n
}

// Construction convenience, used both by fixture/test authors building
// an original program and internally by the Rewriter methods below.

func (b *Builder) Const(value int64) swpipeline.Value { return b.ConstInt(value, nil) }
func (b *Builder) AddOp(a, c swpipeline.Value) swpipeline.Value {
	return b.emit(kAdd, 0, 1, a, c).results[0]
}
func (b *Builder) Sub(a, c swpipeline.Value) swpipeline.Value {
	return b.emit(kSub, 0, 1, a, c).results[0]
}
func (b *Builder) Mul(a, c swpipeline.Value) swpipeline.Value {
	return b.emit(kMul, 0, 1, a, c).results[0]
}
func (b *Builder) Load(addr swpipeline.Value) swpipeline.Value {
	return b.emit(kLoad, 0, 1, addr).results[0]
}
func (b *Builder) Store(addr, v swpipeline.Value) {
	b.emit(kStore, 0, 0, addr, v)
}

// StoreOp is Store but returns the op handle, for callers (such as a
// PredicateFn) that need to erase or replace it.
func (b *Builder) StoreOp(addr, v swpipeline.Value) swpipeline.Op {
	return b.emit(kStore, 0, 0, addr, v)
}

// --- swpipeline.Rewriter ---

func (b *Builder) SaveInsertionPoint() swpipeline.InsertionPoint {
	var after swpipeline.Op
	if b.cursor > 0 {
		after = b.curBlock.ops[b.cursor-1]
	}
	return insertionPoint{block: b.curBlock, after: after}
}

// insertionPoint remembers the op the cursor follows (nil for the start
// of the block) rather than a raw index, so ops inserted earlier in the
// block in the meantime don't shift where Restore puts the cursor.
type insertionPoint struct {
	block *block
	after swpipeline.Op
}

func (b *Builder) RestoreInsertionPoint(ip swpipeline.InsertionPoint) {
	p, ok := ip.(insertionPoint)
	assertf(ok, "foreign InsertionPoint")
	b.curBlock, b.cursor = p.block, 0
	if p.after != nil {
		idx := indexOfOp(p.block.ops, p.after)
		assertf(idx >= 0, "saved insertion point's op is no longer in its block")
		b.cursor = idx + 1
	}
}

func (b *Builder) SetInsertionPointBefore(op swpipeline.Op) {
	blk := opBlock(op)
	idx := indexOfOp(blk.ops, op)
	assertf(idx >= 0, "op not found in its recorded block")
	b.curBlock, b.cursor = blk, idx
}

func (b *Builder) ConstInt(value int64, like swpipeline.Value) swpipeline.Value {
	return b.emit(kConst, value, 1).results[0]
}

func (b *Builder) Add(a, c swpipeline.Value) swpipeline.Value { return b.AddOp(a, c) }

func (b *Builder) CompareLT(a, c swpipeline.Value) swpipeline.Value {
	return b.emit(kCompareLT, 0, 1, a, c).results[0]
}

func (b *Builder) Select(cond, ifTrue, ifFalse swpipeline.Value) swpipeline.Value {
	return b.emit(kSelect, 0, 1, cond, ifTrue, ifFalse).results[0]
}

// DefiningOp returns the op that produced v, for callers (fixture and
// test code building a schedule) that have a Value and need the Op
// handle ScheduleEntry requires.
func (b *Builder) DefiningOp(v swpipeline.Value) swpipeline.Op {
	vv, ok := v.(*val)
	assertf(ok, "value is not a toyir value")
	n, ok := b.defOf[vv]
	assertf(ok, "value %v has no recorded definition", vv)
	return n
}

func (b *Builder) constNodeOf(v swpipeline.Value) *node {
	vv, ok := v.(*val)
	assertf(ok, "loop bound must be a toyir value")
	n, ok := b.defOf[vv]
	assertf(ok && n.kind == kConst, "loop bound must be produced by a constant op")
	return n
}

func (b *Builder) BeginCountedLoop(lb, ub, step swpipeline.Value, initArgs []swpipeline.Value) (swpipeline.Loop, swpipeline.Value, []swpipeline.Value) {
	l := &loopOp{
		lb:       b.constNodeOf(lb),
		ub:       b.constNodeOf(ub),
		step:     b.constNodeOf(step),
		operands: toVals(initArgs),
	}
	l.iv = b.newVal()
	l.iterArgs = make([]*val, len(initArgs))
	l.results = make([]*val, len(initArgs))
	for i := range initArgs {
		l.iterArgs[i] = b.newVal()
		l.results[i] = b.newVal()
	}
	l.body = &block{fn: b.fn}

	b.insert(l)

	b.stack = append(b.stack, frame{block: b.curBlock, cursor: b.cursor})
	b.curBlock = l.body
	b.cursor = 0

	return l, l.iv, valsToValues(l.iterArgs)
}

func (b *Builder) FinishCountedLoop(loop swpipeline.Loop, yieldOperands []swpipeline.Value) {
	l, ok := loop.(*loopOp)
	assertf(ok, "FinishCountedLoop called with a foreign Loop")
	y := &node{kind: kYield, operands: toVals(yieldOperands), block: l.body}
	l.body.yield = y

	assertf(len(b.stack) > 0, "FinishCountedLoop with no matching BeginCountedLoop")
	top := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	b.curBlock, b.cursor = top.block, top.cursor
}

func (b *Builder) EraseOp(op swpipeline.Op) {
	blk := opBlock(op)
	idx := indexOfOp(blk.ops, op)
	assertf(idx >= 0, "erasing op not found in its recorded block")
	for _, r := range opResults(op) {
		assertf(!b.valueUsedAnywhere(r), "erasing op with remaining uses of a result")
	}
	blk.ops = append(blk.ops[:idx], blk.ops[idx+1:]...)
	if blk == b.curBlock && idx < b.cursor {
		b.cursor--
	}
}

func (b *Builder) ReplaceAllUses(old, new swpipeline.Value) {
	oldV, ok := old.(*val)
	if !ok {
		return
	}
	walkOps(b.fn.Block, func(o swpipeline.Op) {
		o.WalkOperands(func(ref swpipeline.OperandRef) {
			if rv, ok := ref.Value().(*val); ok && rv == oldV {
				ref.SetValue(new)
			}
		})
	})
	for i, r := range b.fn.Results {
		if r == oldV {
			b.fn.Results[i] = new.(*val)
		}
	}
}

func (b *Builder) valueUsedAnywhere(v *val) bool {
	found := false
	walkOps(b.fn.Block, func(o swpipeline.Op) {
		o.WalkOperands(func(ref swpipeline.OperandRef) {
			if rv, ok := ref.Value().(*val); ok && rv == v {
				found = true
			}
		})
	})
	for _, r := range b.fn.Results {
		if r == v {
			found = true
		}
	}
	return found
}

func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("toyir: "+format, args...))
	}
}
