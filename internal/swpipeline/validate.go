package swpipeline

// setup is the output of phase 4.1: everything phases 4.2-4.6 need about
// the loop's static shape. It is private to one PipelineLoop invocation
// and discarded on return.
type setup struct {
	loop Loop

	lb, ub, step int64
	n            int64 // trip count N = ceil((ub-lb)/step)
	s            int   // S = max(stage)

	stages  map[Op]int
	opOrder []ScheduleEntry

	// valueDefOp maps a value produced inside the body to the op that
	// produced it (one entry per op result).
	valueDefOp map[Value]Op
	// iterArgIndex maps an iter-arg region argument to its position.
	iterArgIndex map[Value]int
	// yieldOperands is a snapshot of the body's yield operands, taken once
	// during validation; they don't change across phases.
	yieldOperands []Value
	// yieldPositions maps a value to the yield-operand positions it
	// occupies (almost always zero or one), so any phase can ask "does
	// this result feed the loop carry, and at which iter-arg index?"
	yieldPositions map[Value][]int
}

// validateAndSetup implements spec.md §4.1. ok=false with err=nil is a
// soft refusal; ok=false with err!=nil is a diagnostic failure.
func validateAndSetup(loop Loop, opts Options) (*setup, bool, error) {
	lb, ok := loop.LowerBound().ConstInt()
	if !ok {
		return nil, false, nil
	}
	ub, ok := loop.UpperBound().ConstInt()
	if !ok {
		return nil, false, nil
	}
	step, ok := loop.Step().ConstInt()
	if !ok || step == 0 {
		return nil, false, nil
	}

	schedule := opts.GetSchedule(loop)
	if len(schedule) == 0 {
		return nil, false, nil
	}

	stages := make(map[Op]int, len(schedule))
	s := 0
	for _, e := range schedule {
		stages[e.Op] = e.Stage
		if e.Stage > s {
			s = e.Stage
		}
	}

	n := tripCount(lb, ub, step)
	if n <= int64(s) {
		return nil, false, nil
	}

	body := loop.Body()
	bodyOps := body.Ops()

	// 5: every non-terminator body op must have a stage.
	for _, op := range bodyOps {
		if _, ok := stages[op]; !ok {
			return nil, false, diagnostic(op, "operation has no assigned pipeline stage")
		}
	}

	// 6: the terminator must not be staged, and every staged op's parent
	// must be the body block.
	yield := body.Yield()
	if _, ok := stages[yield]; ok {
		return nil, false, diagnostic(yield, "loop terminator must not carry a pipeline stage")
	}
	for _, e := range schedule {
		if e.Op.Block() != body {
			return nil, false, diagnostic(e.Op, "scheduled operation is not a direct child of the loop body")
		}
	}

	valueDefOp := make(map[Value]Op)
	for _, op := range bodyOps {
		for _, r := range op.Results() {
			valueDefOp[r] = op
		}
	}

	iterArgIndex := make(map[Value]int)
	for i, a := range loop.IterArgs() {
		iterArgIndex[a] = i
	}

	// 7: every yield operand must be defined by a staged op.
	yieldOperands := readOperands(yield)
	for _, y := range yieldOperands {
		if _, ok := valueDefOp[y]; !ok {
			return nil, false, nil
		}
	}

	// 8: peeling or a predicate function, at least one.
	if !opts.PeelEpilogue && opts.PredicateFn == nil {
		return nil, false, nil
	}

	yieldPositions := make(map[Value][]int, len(yieldOperands))
	for p, y := range yieldOperands {
		yieldPositions[y] = append(yieldPositions[y], p)
	}

	return &setup{
		loop:           loop,
		lb:             lb,
		ub:             ub,
		step:           step,
		n:              n,
		s:              s,
		stages:         stages,
		opOrder:        schedule,
		valueDefOp:     valueDefOp,
		iterArgIndex:   iterArgIndex,
		yieldOperands:  yieldOperands,
		yieldPositions: yieldPositions,
	}, true, nil
}

func tripCount(lb, ub, step int64) int64 {
	diff := ub - lb
	if diff <= 0 {
		return 0
	}
	n := diff / step
	if diff%step != 0 {
		n++
	}
	return n
}

// readOperands snapshots every operand value op.WalkOperands visits
// (including those of nested ops), in order, without mutating anything.
func readOperands(op Op) []Value {
	var vals []Value
	op.WalkOperands(func(ref OperandRef) {
		vals = append(vals, ref.Value())
	})
	return vals
}
