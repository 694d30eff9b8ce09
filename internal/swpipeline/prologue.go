package swpipeline

// emitPrologue implements spec.md §4.2: S peeled warm-up iterations,
// labeled i = 0..S-1, iteration i executing every op whose stage <= i.
func emitPrologue(r Rewriter, s *setup, opts Options) *versionMap {
	v := newVersionMap(s.s + 1)
	iv := s.loop.IV()
	iterArgs := s.loop.IterArgs()
	initArgs := s.loop.InitArgs()

	for j, a := range iterArgs {
		v.set(a, 0, initArgs[j])
	}

	for i := 0; i < s.s; i++ {
		ivi := r.ConstInt(s.lb+int64(i)*s.step, iv)
		v.set(iv, i, ivi)

		for _, entry := range s.opOrder {
			if entry.Stage > i {
				continue
			}
			clone := entry.Op.Clone(r)
			idx := i - entry.Stage
			substituteFromVersions(clone, v, idx)
			recordResultVersions(s, v, entry.Op, clone, idx)
			if opts.AnnotateFn != nil {
				opts.AnnotateFn(clone, Prologue, i)
			}
		}
	}

	return v
}

// substituteFromVersions rewrites every operand of clone that has a
// recorded version at idx; operands with no recorded version are left
// untouched because they are loop-invariant.
func substituteFromVersions(clone Op, v *versionMap, idx int) {
	clone.WalkOperands(func(ref OperandRef) {
		w := ref.Value()
		if v.has(w, idx) {
			ref.SetValue(v.get(w, idx))
		}
	})
}

// recordResultVersions records, for every result of orig's clone, its
// version at idx, and propagates it to the corresponding iter-arg's
// version at idx+1 when the original result feeds the loop's yield.
func recordResultVersions(s *setup, v *versionMap, orig, clone Op, idx int) {
	origResults := orig.Results()
	cloneResults := clone.Results()
	for k, r := range origResults {
		v.set(r, idx, cloneResults[k])
		for _, p := range s.yieldPositions[r] {
			v.set(s.loop.IterArgs()[p], idx+1, cloneResults[k])
		}
	}
}
