package swpipeline

// epilogueResult is the outcome of phase 4.5: the final SSA value for
// each of the original loop's results, where recovered. A position left
// unfilled means the value never needed draining — the kernel's own
// result at that position (spec.md §4.4's last-kernel-pass computation
// for a stage-0 producer, whose "S-s" offset already reaches the true
// final iteration) is already the answer; the driver falls back to it.
type epilogueResult struct {
	values []Value
	filled []bool
}

// emitEpilogue implements spec.md §4.5: S drain iterations, labeled
// i = 1..S, iteration i executing every op with stage >= i in opOrder.
// Only called in peeled mode.
func emitEpilogue(r Rewriter, s *setup, v *versionMap, opts Options) epilogueResult {
	iterArgs := s.loop.IterArgs()
	res := epilogueResult{
		values: make([]Value, len(iterArgs)),
		filled: make([]bool, len(iterArgs)),
	}

	iv := s.loop.IV()
	lastReal := (s.ub - 1 - s.lb) / s.step
	for i := 0; i < s.s; i++ {
		iterIdx := lastReal - int64(i)
		c := r.ConstInt(s.lb+s.step*iterIdx, iv)
		v.set(iv, s.s-i, c)
	}

	for i := 1; i <= s.s; i++ {
		for _, entry := range s.opOrder {
			if entry.Stage < i {
				continue
			}
			clone := entry.Op.Clone(r)
			idx := s.s - entry.Stage + i
			substituteFromVersions(clone, v, idx)
			if opts.AnnotateFn != nil {
				opts.AnnotateFn(clone, Epilogue, i-1)
			}
			recordEpilogueResults(s, v, entry.Op, clone, idx, res)
		}
	}

	return res
}

func recordEpilogueResults(s *setup, v *versionMap, orig, clone Op, idx int, res epilogueResult) {
	origResults := orig.Results()
	cloneResults := clone.Results()
	for k, r0 := range origResults {
		cr := cloneResults[k]
		v.set(r0, idx, cr)
		for _, p := range s.yieldPositions[r0] {
			version := idx + 1
			if version > s.s {
				res.values[p] = cr
				res.filled[p] = true
				continue
			}
			v.set(s.loop.IterArgs()[p], version, cr)
		}
	}
}
