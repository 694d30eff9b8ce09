package swpipeline

import "fmt"

// lKey is L from spec.md §3: (v, k) -> position of the version of v that
// is k kernel-iterations old, in the new loop's iter-arg list.
type lKey struct {
	v Value
	k int
}

// kernelBuilder holds the state phase 4.4 threads through one clone of
// the loop body: the value-mapping M, the loop-arg mapping L, and the new
// loop's induction/iter-arg values.
type kernelBuilder struct {
	r Rewriter
	s *setup

	l map[lKey]int
	m map[Value]Value

	ivPrime       Value
	iterArgsPrime []Value

	curStage int
}

// buildKernel implements spec.md §4.4: build the new counted loop with
// extended iter-args, clone the body in opOrder with stage-aware operand
// remapping and optional predication, and wire the new yield. It mutates
// v with the freshest versions the epilogue (or trailing-tail select
// wiring) needs.
func buildKernel(r Rewriter, s *setup, v *versionMap, x *crossStageTable, opts Options) (Loop, error) {
	iterArgs := s.loop.IterArgs()

	// --- Extend iter-args: initial values. ---
	initArgs := make([]Value, 0, len(iterArgs)+totalXSlots(x))
	for p, a := range iterArgs {
		dp := stageOf(s, s.yieldOperands[p])
		initArgs = append(initArgs, v.get(a, s.s-dp))
	}

	l := make(map[lKey]int)
	xPositions := make(map[Value][]int, len(x.order))
	for _, val := range x.order {
		e := x.entries[val]
		numSlots := e.lastUseStage - e.defStage
		positions := make([]int, numSlots)
		for stageIdx := 0; stageIdx < numSlots; stageIdx++ {
			initArgs = append(initArgs, v.get(val, s.s-e.lastUseStage+stageIdx))
			pos := len(initArgs) - 1
			k := numSlots - stageIdx
			l[lKey{val, k}] = pos
			positions[stageIdx] = pos
		}
		xPositions[val] = positions
	}

	// --- Create the new loop. ---
	lbVal := boundValue(s.loop.LowerBound())
	ubVal := boundValue(s.loop.UpperBound())
	stepVal := boundValue(s.loop.Step())

	newUB := ubVal
	if opts.PeelEpilogue {
		newUB = r.ConstInt(s.ub-int64(s.s)*s.step, ubVal)
	}

	newLoop, ivPrime, iterArgsPrime := r.BeginCountedLoop(lbVal, newUB, stepVal, initArgs)

	// --- Predicate computation (trailing-tail mode only). ---
	var preds []Value
	if !opts.PeelEpilogue {
		preds = make([]Value, s.s)
		for i := 0; i < s.s; i++ {
			offset := r.ConstInt(-(int64(s.s-i) * s.step), ivPrime)
			bound := r.Add(ubVal, offset)
			preds[i] = r.CompareLT(ivPrime, bound)
		}
	}

	kb := &kernelBuilder{
		r:             r,
		s:             s,
		l:             l,
		m:             make(map[Value]Value, len(s.valueDefOp)+len(iterArgs)+1),
		ivPrime:       ivPrime,
		iterArgsPrime: iterArgsPrime,
	}
	kb.m[s.loop.IV()] = ivPrime
	for j, a := range iterArgs {
		kb.m[a] = iterArgsPrime[j]
	}

	// --- Clone the body in opOrder. ---
	for _, entry := range s.opOrder {
		kb.curStage = entry.Stage
		clone := entry.Op.Clone(r)
		clone.WalkOperands(func(ref OperandRef) { kb.remapOperand(clone, ref) })

		final := clone
		if !opts.PeelEpilogue && entry.Stage < s.s {
			predicated, ok := opts.PredicateFn(clone, preds[entry.Stage])
			if !ok {
				return nil, fmt.Errorf("clone of %v in stage %d: %w", entry.Op, entry.Stage, ErrPredicationRefused)
			}
			final = predicated
		}

		origResults := entry.Op.Results()
		finalResults := final.Results()
		assertf(len(origResults) == len(finalResults), "clone changed result arity for stage %d op", entry.Stage)
		for k, orig := range origResults {
			kb.m[orig] = finalResults[k]
		}

		if opts.AnnotateFn != nil {
			opts.AnnotateFn(final, Kernel, 0)
		}
	}

	// --- Build the new yield. ---
	yieldVals := make([]Value, 0, len(initArgs))
	for p, y := range s.yieldOperands {
		val := kb.m[y]
		if !opts.PeelEpilogue {
			dy := stageOf(s, y)
			if dy < s.s && s.loop.ResultUsedOutside(p) {
				val = r.Select(preds[dy], kb.m[y], iterArgsPrime[p])
			}
		}
		yieldVals = append(yieldVals, val)
	}
	for _, val := range x.order {
		e := x.entries[val]
		numSlots := e.lastUseStage - e.defStage
		positions := xPositions[val]
		startVersion := s.s - e.lastUseStage + 1
		for i := 0; i < numSlots; i++ {
			var nv Value
			if i < numSlots-1 {
				nv = iterArgsPrime[positions[i+1]]
			} else {
				nv = kb.m[val]
			}
			yieldVals = append(yieldVals, nv)
			v.set(val, startVersion+i, nv)
		}
	}

	r.FinishCountedLoop(newLoop, yieldVals)

	// Record the freshest carried version of every reseeded iter-arg for
	// the epilogue to pick up.
	for p, a := range iterArgs {
		dp := stageOf(s, s.yieldOperands[p])
		if dp > 0 {
			v.set(a, s.s-dp+1, newLoop.Results()[p])
		}
	}

	return newLoop, nil
}

// remapOperand implements the stage-aware substitution rules of
// spec.md §4.4 step 2, collapsed into a single pass over the clone's
// (still-original) operands rather than the spec's textual two-pass
// split — see DESIGN.md for why: a literal two-pass reading is
// internally inconsistent about which values step 1's "remapping via M"
// has already applied by the time step 2's checks run.
func (kb *kernelBuilder) remapOperand(clone Op, ref OperandRef) {
	w := ref.Value()

	if w == kb.s.loop.IV() {
		ref.SetValue(kb.shiftedIV(clone))
		return
	}

	if j, ok := kb.s.iterArgIndex[w]; ok {
		ret := kb.s.yieldOperands[j]
		stageRet := kb.s.stages[kb.s.valueDefOp[ret]]
		switch {
		case stageRet == kb.curStage:
			// Same-stage carry: the new loop's region argument already
			// holds the right value.
			ref.SetValue(kb.m[w])
		case stageRet == kb.curStage+1:
			// Direct forward: the producer's clone this same kernel pass
			// computed exactly the iteration this consumer needs.
			mv, ok := kb.m[ret]
			assertf(ok, "missing same-pass kernel mapping for %v", ret)
			ref.SetValue(mv)
		default:
			kb.remapBodyValue(ref, ret, stageRet)
		}
		return
	}

	if defOp, ok := kb.s.valueDefOp[w]; ok {
		kb.remapBodyValue(ref, w, kb.s.stages[defOp])
	}
	// Else: not body-local — loop-invariant or externally defined, leave
	// unchanged.
}

func (kb *kernelBuilder) shiftedIV(clone Op) Value {
	offsetStages := kb.s.s - kb.curStage
	if offsetStages == 0 {
		return kb.ivPrime
	}
	saved := kb.r.SaveInsertionPoint()
	kb.r.SetInsertionPointBefore(clone)
	offset := kb.r.ConstInt(int64(offsetStages)*kb.s.step, kb.ivPrime)
	shifted := kb.r.Add(kb.ivPrime, offset)
	kb.r.RestoreInsertionPoint(saved)
	return shifted
}

func (kb *kernelBuilder) remapBodyValue(ref OperandRef, w Value, sd int) {
	if sd == kb.curStage {
		mv, ok := kb.m[w]
		assertf(ok, "missing same-stage kernel mapping for %v", w)
		ref.SetValue(mv)
		return
	}
	pos, ok := kb.l[lKey{w, kb.curStage - sd}]
	assertf(ok, "missing loop-arg mapping for %v at distance %d", w, kb.curStage-sd)
	ref.SetValue(kb.iterArgsPrime[pos])
}

func stageOf(s *setup, val Value) int {
	op, ok := s.valueDefOp[val]
	assertf(ok, "value %v has no body-local definition", val)
	return s.stages[op]
}

func boundValue(op ConstOp) Value {
	results := op.Results()
	assertf(len(results) == 1, "bound op must have exactly one result")
	return results[0]
}

func totalXSlots(x *crossStageTable) int {
	total := 0
	for _, e := range x.entries {
		total += e.lastUseStage - e.defStage
	}
	return total
}
