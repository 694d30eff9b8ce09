package swpipeline

import (
	"context"
	"fmt"
)

// PipelineLoop implements spec.md §4.6, the driver tying together
// validation (4.1), prologue emission (4.2), cross-stage analysis (4.3),
// kernel construction (4.4), and epilogue emission (4.5).
//
// r is the borrowed IR-construction surface the new prologue/kernel/
// epilogue ops are emitted through; loop is left untouched until every
// phase has succeeded, at which point its results are rewired to the
// replacement values and the original loop op is erased.
func PipelineLoop(ctx context.Context, loop Loop, r Rewriter, opts Options) (Result, error) {
	log := logger(opts.Logger)

	s, ok, err := validateAndSetup(loop, opts)
	if err != nil {
		log.Warn("swpipeline: rejecting invalid input", "error", err)
		return Result{}, err
	}
	if !ok {
		log.Debug("swpipeline: loop not applicable for pipelining")
		return Result{Applicable: false}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	log.Debug("swpipeline: validated loop", "stages", s.s+1, "tripCount", s.n)

	v := emitPrologue(r, s, opts)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	x := analyzeCrossStage(s)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	newLoop, err := buildKernel(r, s, v, x, opts)
	if err != nil {
		log.Warn("swpipeline: predication refused", "error", err)
		return Result{}, fmt.Errorf("swpipeline: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	iterArgs := s.loop.IterArgs()
	returnValues := newLoop.Results()
	if opts.PeelEpilogue {
		epi := emitEpilogue(r, s, v, opts)
		returnValues = make([]Value, len(iterArgs))
		for p := range returnValues {
			if epi.filled[p] {
				returnValues[p] = epi.values[p]
			} else {
				returnValues[p] = newLoop.Results()[p]
			}
		}
	}

	for p, old := range s.loop.Results() {
		r.ReplaceAllUses(old, returnValues[p])
	}
	r.EraseOp(s.loop.Op())

	kernelTrips := s.n
	if opts.PeelEpilogue {
		kernelTrips -= int64(s.s)
	}
	log.Debug("swpipeline: pipelined loop", "stages", s.s+1, "kernelTripCount", kernelTrips)
	return Result{NewLoop: newLoop, Applicable: true}, nil
}
