package toyir

import (
	"fmt"
	"strings"
)

// Dump renders fn as indented pseudo-assembly, for the demo CLI's
// before/after printout and for debugging test failures by eye.
func Dump(fn *Function) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "func(%s):\n", joinVals(fn.Params))
	dumpBlock(&sb, fn.Block, "  ")
	fmt.Fprintf(&sb, "  return %s\n", joinVals(fn.Results))
	return sb.String()
}

func dumpBlock(sb *strings.Builder, b *block, indent string) {
	for _, o := range b.ops {
		switch n := o.(type) {
		case *node:
			dumpNode(sb, n, indent)
		case *loopOp:
			dumpLoop(sb, n, indent)
		}
	}
	if b.yield != nil {
		y := b.yield.(*node)
		fmt.Fprintf(sb, "%syield %s\n", indent, joinVals(y.operands))
	}
}

func dumpNode(sb *strings.Builder, n *node, indent string) {
	lhs := ""
	if len(n.results) > 0 {
		lhs = joinVals(n.results) + " = "
	}
	if n.kind == kConst {
		fmt.Fprintf(sb, "%s%sconst %d\n", indent, lhs, n.constVal)
		return
	}
	fmt.Fprintf(sb, "%s%s%s %s\n", indent, lhs, n.kind, joinVals(n.operands))
}

func dumpLoop(sb *strings.Builder, l *loopOp, indent string) {
	fmt.Fprintf(sb, "%sfor %s = %d to %d step %d with %s:\n",
		indent, l.iv, l.lb.constVal, l.ub.constVal, l.step.constVal, joinVals(l.iterArgs))
	dumpBlock(sb, l.body, indent+"  ")
	fmt.Fprintf(sb, "%sresults %s\n", indent, joinVals(l.results))
}

func joinVals(vs []*val) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}
