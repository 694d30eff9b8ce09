package swpipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidInput wraps diagnostic failures: the schedule or IR shape
// violates an invariant the transformation requires (spec.md §7
// "Invalid input"). The original IR is left untouched.
var ErrInvalidInput = errors.New("swpipeline: invalid input")

// ErrPredicationRefused wraps hard failures: PredicateFn returned ok=false
// for some op (spec.md §7 "Predication refusal"). The caller must treat
// this as a compile error; the IR may already be partially mutated.
var ErrPredicationRefused = errors.New("swpipeline: predication refused")

// Diagnostic carries the offending op and message for an ErrInvalidInput
// failure. Use errors.As to recover it from the error PipelineLoop
// returns.
type Diagnostic struct {
	Op      Op
	Message string
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("swpipeline: %s", d.Message)
}

func (d *Diagnostic) Unwrap() error {
	return ErrInvalidInput
}

func diagnostic(op Op, format string, args ...any) error {
	return &Diagnostic{Op: op, Message: fmt.Sprintf(format, args...)}
}

// assertf panics with a "swpipeline: "-prefixed message. It guards
// invariants whose violation indicates a bug in this package itself (an
// empty version-map slot being read, a missing loop-arg mapping) rather
// than a malformed input — those are reported through errors instead.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("swpipeline: "+format, args...))
	}
}
