package swpipeline

// crossStageEntry is one row of X from spec.md §3: a value v is defined
// at defStage and has some use at lastUseStage > defStage within the same
// logical iteration. lastUseStage-defStage versions of v must be threaded
// through the kernel as iter-args.
type crossStageEntry struct {
	defStage, lastUseStage int
}

// crossStageTable is X, keyed by the body-local value that is actually
// *defined* by a staged op (spec.md §3: "defined by op d in the body") —
// when a cross-stage use arises through an existing distance-1 loop
// carry, this is the op feeding the iter-arg's yield slot, not the
// iter-arg region argument itself; the kernel-construction fallthrough
// for that case (spec.md §4.4: "set o to ret and fall through") looks L
// up by that same underlying value, so recording and lookup must agree.
// order preserves first-discovered order so kernel construction appends
// new iter-args deterministically.
type crossStageTable struct {
	entries map[Value]*crossStageEntry
	order   []Value
}

func newCrossStageTable() *crossStageTable {
	return &crossStageTable{entries: make(map[Value]*crossStageEntry)}
}

func (t *crossStageTable) record(v Value, defStage, useStage int) {
	e, ok := t.entries[v]
	if !ok {
		t.entries[v] = &crossStageEntry{defStage: defStage, lastUseStage: useStage}
		t.order = append(t.order, v)
		return
	}
	if useStage > e.lastUseStage {
		e.lastUseStage = useStage
	}
}

// analyzeCrossStage implements spec.md §4.3.
func analyzeCrossStage(s *setup) *crossStageTable {
	x := newCrossStageTable()
	iv := s.loop.IV()

	for _, entry := range s.opOrder {
		u := entry.Stage
		for _, w := range readOperands(entry.Op) {
			if w == iv {
				continue
			}

			var defValue Value
			distance := 0
			if idx, ok := s.iterArgIndex[w]; ok {
				defValue = s.yieldOperands[idx]
				distance = 1
			} else if _, ok := s.valueDefOp[w]; ok {
				defValue = w
				distance = 0
			} else {
				continue // not body-local: loop-invariant, skip.
			}

			defOp, ok := s.valueDefOp[defValue]
			if !ok {
				continue
			}
			d := s.stages[defOp]

			// Same stage: trivial same-pass dataflow, no threading needed.
			// One stage ahead on a distance-1 carry: the producer's clone
			// in *this* kernel pass already computes the exact iteration
			// the consumer needs (spec.md §4.4's "direct forward within
			// this kernel iteration" case) — also no threading needed.
			// (This restates spec.md §4.3's "defStage+distance==useStage"
			// guard in the form that agrees with §4.4's fully-enumerated
			// cases; see DESIGN.md for the reconciliation of the two.)
			if d == u || (distance == 1 && d == u+1) {
				continue
			}

			x.record(defValue, d, u)
		}
	}

	return x
}
