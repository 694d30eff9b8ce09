package toyir

import (
	"fmt"

	"github.com/tinyrange/swpipeline/internal/swpipeline"
)

// Interp tree-walks a Function. Every value is a plain int64; memory is
// a flat address space keyed by int64, addresses and data sharing the
// same numeric domain the way a minimal toy machine would.
type Interp struct {
	Mem map[int64]int64
}

// NewInterp returns an Interp with fresh, empty memory.
func NewInterp() *Interp {
	return &Interp{Mem: make(map[int64]int64)}
}

// Run executes fn with the given argument values and returns its
// declared Results, in order.
func (in *Interp) Run(fn *Function, args ...int64) ([]int64, error) {
	if len(args) != len(fn.Params) {
		return nil, fmt.Errorf("toyir: expected %d arguments, got %d", len(fn.Params), len(args))
	}
	env := make(map[*val]int64, len(fn.Params))
	for i, p := range fn.Params {
		env[p] = args[i]
	}
	in.execBlock(fn.Block, env)

	out := make([]int64, len(fn.Results))
	for i, r := range fn.Results {
		out[i] = env[r]
	}
	return out, nil
}

func (in *Interp) execBlock(b *block, env map[*val]int64) {
	for _, o := range b.ops {
		in.execOp(o, env)
	}
}

func (in *Interp) execOp(o swpipeline.Op, env map[*val]int64) {
	switch n := o.(type) {
	case *node:
		in.execNode(n, env)
	case *loopOp:
		in.execLoop(n, env)
	default:
		panic(fmt.Sprintf("toyir: unknown op type %T", o))
	}
}

func (in *Interp) execNode(n *node, env map[*val]int64) {
	operand := func(i int) int64 { return env[n.operands[i]] }

	switch n.kind {
	case kConst:
		env[n.results[0]] = n.constVal
	case kAdd:
		env[n.results[0]] = operand(0) + operand(1)
	case kSub:
		env[n.results[0]] = operand(0) - operand(1)
	case kMul:
		env[n.results[0]] = operand(0) * operand(1)
	case kCompareLT:
		if operand(0) < operand(1) {
			env[n.results[0]] = 1
		} else {
			env[n.results[0]] = 0
		}
	case kSelect:
		if operand(0) != 0 {
			env[n.results[0]] = operand(1)
		} else {
			env[n.results[0]] = operand(2)
		}
	case kLoad:
		env[n.results[0]] = in.Mem[operand(0)]
	case kStore:
		in.Mem[operand(0)] = operand(1)
	case kYield:
		// Handled by execLoop, which reads n.operands directly; nothing
		// to do here when walked as a plain op (only reachable via
		// walkOps, never via execBlock).
	default:
		panic(fmt.Sprintf("toyir: unhandled op kind %v", n.kind))
	}
}

func (in *Interp) execLoop(l *loopOp, env map[*val]int64) {
	lb, _ := l.lb.ConstInt()
	ub, _ := l.ub.ConstInt()
	step, _ := l.step.ConstInt()

	carry := make([]int64, len(l.operands))
	for i, a := range l.operands {
		carry[i] = env[a]
	}

	for iv := lb; (step > 0 && iv < ub) || (step < 0 && iv > ub); iv += step {
		env[l.iv] = iv
		for i, a := range l.iterArgs {
			env[a] = carry[i]
		}

		in.execBlock(l.body, env)

		yield := l.body.yield.(*node)
		for i, y := range yield.operands {
			carry[i] = env[y]
		}
	}

	for i, r := range l.results {
		env[r] = carry[i]
	}
}
