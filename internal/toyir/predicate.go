package toyir

import "github.com/tinyrange/swpipeline/internal/swpipeline"

// GuardStorePredicate returns a swpipeline.PredicateFn that guards this
// IR's one effectful op kind (store) with a select, leaving every other
// op to execute unconditionally — a pure op computing a value for an
// iteration that never existed is harmless as long as nothing
// downstream yields it.
func GuardStorePredicate(b *Builder) swpipeline.PredicateFn {
	return func(op swpipeline.Op, pred swpipeline.Value) (swpipeline.Op, bool) {
		if Kind(op) != "store" {
			return op, true
		}
		var addr, newVal swpipeline.Value
		i := 0
		op.WalkOperands(func(ref swpipeline.OperandRef) {
			if i == 0 {
				addr = ref.Value()
			} else {
				newVal = ref.Value()
			}
			i++
		})
		old := b.Load(addr)
		guarded := b.Select(pred, newVal, old)
		replacement := b.StoreOp(addr, guarded)
		b.EraseOp(op)
		return replacement, true
	}
}
