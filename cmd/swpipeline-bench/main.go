// Command swpipeline-bench loads every YAML loop fixture in a
// directory, pipelines each one, interprets the original and pipelined
// programs, and asserts their results and memory effects agree.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/tinyrange/swpipeline/internal/swpipeline"
	"github.com/tinyrange/swpipeline/internal/toyir"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "swpipeline-bench: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("swpipeline-bench", flag.ContinueOnError)
	dir := fs.String("dir", "internal/toyir/testdata", "directory of YAML loop fixtures")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: swpipeline-bench [-dir PATH]\n\n")
		fmt.Fprintf(fs.Output(), "Pipelines every fixture in a directory and checks original vs.\n")
		fmt.Fprintf(fs.Output(), "pipelined programs produce identical results and memory effects.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	fixtures, err := toyir.LoadFixtureDir(*dir)
	if err != nil {
		return fmt.Errorf("loading fixtures from %q: %w", *dir, err)
	}
	if len(fixtures) == 0 {
		return fmt.Errorf("no fixtures found in %q", *dir)
	}

	pb := progressbar.Default(int64(len(fixtures)))
	defer pb.Close()

	var failed []string
	for _, f := range fixtures {
		if err := checkFixture(f, logger); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", f.Name, err))
		}
		pb.Add(1)
	}

	fmt.Printf("%d/%d fixtures pipelined correctly\n", len(fixtures)-len(failed), len(fixtures))
	for _, msg := range failed {
		fmt.Fprintf(os.Stderr, "FAIL %s\n", msg)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d fixture(s) failed", len(failed))
	}
	return nil
}

func checkFixture(f *toyir.Fixture, logger *slog.Logger) error {
	refBuilt, err := f.Build()
	if err != nil {
		return fmt.Errorf("building reference program: %w", err)
	}
	refInterp := toyir.NewInterp()
	want, err := refInterp.Run(refBuilt.Function)
	if err != nil {
		return fmt.Errorf("running reference program: %w", err)
	}

	built, err := f.Build()
	if err != nil {
		return fmt.Errorf("building program to pipeline: %w", err)
	}

	var loop swpipeline.Loop
	for _, op := range built.Function.Block.Ops() {
		if l, ok := op.(swpipeline.Loop); ok {
			loop = l
		}
	}
	if loop == nil {
		return fmt.Errorf("no counted loop found")
	}

	opts := swpipeline.Options{
		GetSchedule:  built.GetSchedule,
		PeelEpilogue: f.PeelEpilogue,
		Logger:       logger,
	}
	if !f.PeelEpilogue {
		opts.PredicateFn = toyir.GuardStorePredicate(built.Builder)
	}

	res, err := swpipeline.PipelineLoop(context.Background(), loop, built.Builder, opts)
	if err != nil {
		return fmt.Errorf("pipelining: %w", err)
	}
	if !res.Applicable {
		return nil // not every fixture need be applicable; a refusal isn't a failure.
	}

	interp := toyir.NewInterp()
	got, err := interp.Run(built.Function)
	if err != nil {
		return fmt.Errorf("running pipelined program: %w", err)
	}

	if len(got) != len(want) {
		return fmt.Errorf("result arity mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("result[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	for addr, wantVal := range refInterp.Mem {
		if gotVal := interp.Mem[addr]; gotVal != wantVal {
			return fmt.Errorf("mem[%d] = %d, want %d", addr, gotVal, wantVal)
		}
	}

	return nil
}
