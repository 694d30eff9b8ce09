package swpipeline_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/tinyrange/swpipeline/internal/swpipeline"
	"github.com/tinyrange/swpipeline/internal/toyir"
)

// --- Scenario 1: single-stage, everything stays stage 0. ---

// buildSingleStage builds: acc := 0; for iv in [0,n) { acc += iv }; return acc.
func buildSingleStage(n int64) (*toyir.Builder, *toyir.Function, swpipeline.Loop, swpipeline.GetScheduleFn) {
	b := toyir.NewBuilder()
	lb := b.Const(0)
	ub := b.Const(n)
	step := b.Const(1)
	acc0 := b.Const(0)

	loop, iv, iterArgs := b.BeginCountedLoop(lb, ub, step, []swpipeline.Value{acc0})
	next := b.AddOp(iterArgs[0], iv)
	b.FinishCountedLoop(loop, []swpipeline.Value{next})
	fn := b.Finish(loop.Results()[0])

	addOp := b.DefiningOp(next)
	sched := func(swpipeline.Loop) []swpipeline.ScheduleEntry {
		return []swpipeline.ScheduleEntry{{Op: addOp, Stage: 0}}
	}
	return b, fn, loop, sched
}

func TestSingleStagePeeledMatchesOriginal(t *testing.T) {
	for _, n := range []int64{0, 1, 5, 8} {
		_, refFn, _, _ := buildSingleStage(n)
		want, err := toyir.NewInterp().Run(refFn)
		if err != nil {
			t.Fatalf("n=%d: reference Run: %v", n, err)
		}

		b, fn, loop, sched := buildSingleStage(n)
		res, err := swpipeline.PipelineLoop(context.Background(), loop, b, swpipeline.Options{
			GetSchedule:  sched,
			PeelEpilogue: true,
		})
		if err != nil {
			t.Fatalf("n=%d: PipelineLoop: %v", n, err)
		}
		if n == 0 {
			if res.Applicable {
				t.Fatalf("n=%d: expected refusal for an empty trip count", n)
			}
			continue
		}
		if !res.Applicable {
			t.Fatalf("n=%d: expected the transform to apply", n)
		}

		got, err := toyir.NewInterp().Run(fn)
		if err != nil {
			t.Fatalf("n=%d: pipelined Run: %v", n, err)
		}
		if got[0] != want[0] {
			t.Fatalf("n=%d: pipelined result %v != original %v", n, got, want)
		}
	}
}

// --- Scenario 2: two stages, a cross-stage value threaded through the
// kernel (stage 0 computes tmp=iv*iv, stage 1 folds it into acc). ---

func buildTwoStage(n int64) (*toyir.Builder, *toyir.Function, swpipeline.Loop, swpipeline.GetScheduleFn) {
	b := toyir.NewBuilder()
	lb := b.Const(0)
	ub := b.Const(n)
	step := b.Const(1)
	acc0 := b.Const(0)

	loop, iv, iterArgs := b.BeginCountedLoop(lb, ub, step, []swpipeline.Value{acc0})
	tmp := b.Mul(iv, iv)
	next := b.AddOp(iterArgs[0], tmp)
	b.FinishCountedLoop(loop, []swpipeline.Value{next})
	fn := b.Finish(loop.Results()[0])

	mulOp := b.DefiningOp(tmp)
	addOp := b.DefiningOp(next)
	sched := func(swpipeline.Loop) []swpipeline.ScheduleEntry {
		return []swpipeline.ScheduleEntry{
			{Op: mulOp, Stage: 0},
			{Op: addOp, Stage: 1},
		}
	}
	return b, fn, loop, sched
}

func TestTwoStagePeeledMatchesOriginal(t *testing.T) {
	for _, n := range []int64{2, 3, 9, 20} {
		_, refFn, _, _ := buildTwoStage(n)
		want, err := toyir.NewInterp().Run(refFn)
		if err != nil {
			t.Fatalf("n=%d: reference Run: %v", n, err)
		}

		b, fn, loop, sched := buildTwoStage(n)
		res, err := swpipeline.PipelineLoop(context.Background(), loop, b, swpipeline.Options{
			GetSchedule:  sched,
			PeelEpilogue: true,
		})
		if err != nil {
			t.Fatalf("n=%d: PipelineLoop: %v", n, err)
		}
		if !res.Applicable {
			t.Fatalf("n=%d: expected the transform to apply", n)
		}

		got, err := toyir.NewInterp().Run(fn)
		if err != nil {
			t.Fatalf("n=%d: pipelined Run: %v", n, err)
		}
		if got[0] != want[0] {
			t.Fatalf("n=%d: pipelined result %v != original %v", n, got, want)
		}
	}
}

// --- Scenario 3: trailing-tail predication guards an effectful store
// at a non-final stage. ---

func buildPredicatedStore(n int64) (*toyir.Builder, *toyir.Function, swpipeline.Loop, swpipeline.GetScheduleFn) {
	b := toyir.NewBuilder()
	lb := b.Const(0)
	ub := b.Const(n)
	step := b.Const(1)
	two := b.Const(2)

	loop, iv, _ := b.BeginCountedLoop(lb, ub, step, nil)
	tmp := b.Mul(iv, two)
	storeOp := b.StoreOp(iv, tmp)
	dummy := b.AddOp(iv, iv)
	b.FinishCountedLoop(loop, nil)
	fn := b.Finish()

	mulOp := b.DefiningOp(tmp)
	dummyOp := b.DefiningOp(dummy)
	sched := func(swpipeline.Loop) []swpipeline.ScheduleEntry {
		return []swpipeline.ScheduleEntry{
			{Op: mulOp, Stage: 0},
			{Op: storeOp, Stage: 1},
			{Op: dummyOp, Stage: 2},
		}
	}
	return b, fn, loop, sched
}

func TestTrailingTailPredicatedStoreMatchesOriginal(t *testing.T) {
	for _, n := range []int64{3, 4, 7, 15} {
		_, refFn, _, _ := buildPredicatedStore(n)
		refInterp := toyir.NewInterp()
		if _, err := refInterp.Run(refFn); err != nil {
			t.Fatalf("n=%d: reference Run: %v", n, err)
		}

		b, fn, loop, sched := buildPredicatedStore(n)
		res, err := swpipeline.PipelineLoop(context.Background(), loop, b, swpipeline.Options{
			GetSchedule: sched,
			PredicateFn: toyir.GuardStorePredicate(b),
		})
		if err != nil {
			t.Fatalf("n=%d: PipelineLoop: %v", n, err)
		}
		if !res.Applicable {
			t.Fatalf("n=%d: expected the transform to apply", n)
		}

		interp := toyir.NewInterp()
		if _, err := interp.Run(fn); err != nil {
			t.Fatalf("n=%d: pipelined Run: %v", n, err)
		}

		for iv := int64(0); iv < n; iv++ {
			want := refInterp.Mem[iv]
			got := interp.Mem[iv]
			if got != want {
				t.Fatalf("n=%d: mem[%d] = %d, want %d", n, iv, got, want)
			}
		}
	}
}

// --- Scenario 4: three stages, with two cross-stage values threaded
// through the kernel in a chain (base from stage 0 to 1, scaled from
// stage 1 to 2), one new iter-arg each. ---

func buildLongLiveRange(n int64) (*toyir.Builder, *toyir.Function, swpipeline.Loop, swpipeline.GetScheduleFn) {
	b := toyir.NewBuilder()
	lb := b.Const(0)
	ub := b.Const(n)
	step := b.Const(1)
	acc0 := b.Const(0)

	loop, iv, iterArgs := b.BeginCountedLoop(lb, ub, step, []swpipeline.Value{acc0})
	base := b.AddOp(iv, iv)              // stage 0
	scaled := b.Mul(base, base)          // stage 1, consumes a stage-0 value
	next := b.AddOp(iterArgs[0], scaled) // stage 2, consumes a stage-1 value
	b.FinishCountedLoop(loop, []swpipeline.Value{next})
	fn := b.Finish(loop.Results()[0])

	baseOp := b.DefiningOp(base)
	scaledOp := b.DefiningOp(scaled)
	nextOp := b.DefiningOp(next)
	sched := func(swpipeline.Loop) []swpipeline.ScheduleEntry {
		return []swpipeline.ScheduleEntry{
			{Op: baseOp, Stage: 0},
			{Op: scaledOp, Stage: 1},
			{Op: nextOp, Stage: 2},
		}
	}
	return b, fn, loop, sched
}

func TestThreeStageLongLiveRangeMatchesOriginal(t *testing.T) {
	for _, n := range []int64{3, 4, 10, 23} {
		_, refFn, _, _ := buildLongLiveRange(n)
		want, err := toyir.NewInterp().Run(refFn)
		if err != nil {
			t.Fatalf("n=%d: reference Run: %v", n, err)
		}

		b, fn, loop, sched := buildLongLiveRange(n)
		res, err := swpipeline.PipelineLoop(context.Background(), loop, b, swpipeline.Options{
			GetSchedule:  sched,
			PeelEpilogue: true,
		})
		if err != nil {
			t.Fatalf("n=%d: PipelineLoop: %v", n, err)
		}
		if !res.Applicable {
			t.Fatalf("n=%d: expected the transform to apply", n)
		}

		got, err := toyir.NewInterp().Run(fn)
		if err != nil {
			t.Fatalf("n=%d: pipelined Run: %v", n, err)
		}
		if got[0] != want[0] {
			t.Fatalf("n=%d: pipelined result %v != original %v", n, got, want)
		}
	}
}

// --- Scenario 5: refuse when the trip count can't fill the pipeline. ---

func TestRefusesWhenTripCountTooShort(t *testing.T) {
	b, _, loop, sched := buildTwoStage(1) // N=1 <= S=1
	res, err := swpipeline.PipelineLoop(context.Background(), loop, b, swpipeline.Options{
		GetSchedule:  sched,
		PeelEpilogue: true,
	})
	if err != nil {
		t.Fatalf("expected a soft refusal, got error: %v", err)
	}
	if res.Applicable {
		t.Fatal("expected Applicable=false when N <= S")
	}
}

// --- Scenario 6: diagnostic when a body op has no assigned stage. ---

func TestDiagnosticOnMissingStage(t *testing.T) {
	b := toyir.NewBuilder()
	lb := b.Const(0)
	ub := b.Const(10)
	step := b.Const(1)
	acc0 := b.Const(0)

	loop, iv, iterArgs := b.BeginCountedLoop(lb, ub, step, []swpipeline.Value{acc0})
	tmp := b.Mul(iv, iv)
	next := b.AddOp(iterArgs[0], tmp)
	b.FinishCountedLoop(loop, []swpipeline.Value{next})
	b.Finish(loop.Results()[0])

	mulOp := b.DefiningOp(tmp)
	// addOp is deliberately left unscheduled.
	sched := func(swpipeline.Loop) []swpipeline.ScheduleEntry {
		return []swpipeline.ScheduleEntry{{Op: mulOp, Stage: 0}}
	}

	_, err := swpipeline.PipelineLoop(context.Background(), loop, b, swpipeline.Options{
		GetSchedule:  sched,
		PeelEpilogue: true,
	})
	if err == nil {
		t.Fatal("expected an error when a body op has no assigned stage")
	}
	var diag *swpipeline.Diagnostic
	if !errors.As(err, &diag) {
		t.Fatalf("expected a *Diagnostic, got %T: %v", err, err)
	}
	if !errors.Is(err, swpipeline.ErrInvalidInput) {
		t.Fatalf("expected errors.Is(err, ErrInvalidInput), got %v", err)
	}
}

// --- Property-style coverage: spec.md §8 claims external semantics
// are preserved for any trip count, not just the handful of values the
// scenario tests above pick by hand. Sweep a fixed-seed random sample
// of N, the way internal/term/grid_benchmark_test.go seeds its own
// randomized cases with rand.New(rand.NewSource(42)).

func TestPipeliningPreservesSemanticsForRandomTripCounts(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	cases := []struct {
		name      string
		build     func(n int64) (*toyir.Builder, *toyir.Function, swpipeline.Loop, swpipeline.GetScheduleFn)
		minTrip   int64
		tripRange int64
	}{
		{"twoStage", buildTwoStage, 2, 200},
		{"longLiveRange", buildLongLiveRange, 3, 200},
	}

	for _, c := range cases {
		for i := 0; i < 50; i++ {
			n := c.minTrip + 1 + rng.Int63n(c.tripRange)

			_, refFn, _, _ := c.build(n)
			want, err := toyir.NewInterp().Run(refFn)
			if err != nil {
				t.Fatalf("%s n=%d: reference Run: %v", c.name, n, err)
			}

			b, fn, loop, sched := c.build(n)
			res, err := swpipeline.PipelineLoop(context.Background(), loop, b, swpipeline.Options{
				GetSchedule:  sched,
				PeelEpilogue: true,
			})
			if err != nil {
				t.Fatalf("%s n=%d: PipelineLoop: %v", c.name, n, err)
			}
			if !res.Applicable {
				t.Fatalf("%s n=%d: expected the transform to apply", c.name, n)
			}

			got, err := toyir.NewInterp().Run(fn)
			if err != nil {
				t.Fatalf("%s n=%d: pipelined Run: %v", c.name, n, err)
			}
			if got[0] != want[0] {
				t.Fatalf("%s n=%d: pipelined result %v != original %v", c.name, n, got, want)
			}
		}
	}
}

func TestPredicationRefusalIsReported(t *testing.T) {
	b, _, loop, sched := buildPredicatedStore(5)
	refuseAll := func(op swpipeline.Op, pred swpipeline.Value) (swpipeline.Op, bool) {
		return op, false
	}

	_, err := swpipeline.PipelineLoop(context.Background(), loop, b, swpipeline.Options{
		GetSchedule: sched,
		PredicateFn: refuseAll,
	})
	if err == nil {
		t.Fatal("expected an error when PredicateFn refuses")
	}
	if !errors.Is(err, swpipeline.ErrPredicationRefused) {
		t.Fatalf("expected errors.Is(err, ErrPredicationRefused), got %v", err)
	}
}
