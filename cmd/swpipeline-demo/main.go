// Command swpipeline-demo loads one YAML loop fixture, pipelines it,
// and prints the loop before and after, plus the interpreted result of
// both versions so a reader can see the transform preserves semantics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/swpipeline/internal/swpipeline"
	"github.com/tinyrange/swpipeline/internal/toyir"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		var diag *swpipeline.Diagnostic
		if errors.As(err, &diag) {
			fmt.Fprintf(os.Stderr, "swpipeline-demo: %s (op %v)\n", diag.Message, diag.Op)
		} else {
			fmt.Fprintf(os.Stderr, "swpipeline-demo: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("swpipeline-demo", flag.ContinueOnError)
	fixturePath := fs.String("fixture", "", "path to a YAML loop fixture")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: swpipeline-demo -fixture PATH\n\n")
		fmt.Fprintf(fs.Output(), "Pretty-prints a toy loop before and after software pipelining.\n\n")
		fmt.Fprintf(fs.Output(), "Examples:\n")
		fmt.Fprintf(fs.Output(), "  swpipeline-demo -fixture internal/toyir/testdata/sum_of_squares.yaml\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *fixturePath == "" {
		fs.Usage()
		return fmt.Errorf("swpipeline-demo: -fixture is required")
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	f, err := toyir.LoadFixture(*fixturePath)
	if err != nil {
		return fmt.Errorf("loading fixture: %w", err)
	}

	built, err := f.Build()
	if err != nil {
		return fmt.Errorf("building fixture %q: %w", f.Name, err)
	}

	fmt.Printf("=== %s (before) ===\n", f.Name)
	fmt.Print(toyir.Dump(built.Function))

	before, err := toyir.NewInterp().Run(built.Function)
	if err != nil {
		return fmt.Errorf("running original program: %w", err)
	}
	fmt.Printf("result: %v\n\n", before)

	var loop swpipeline.Loop
	for _, op := range built.Function.Block.Ops() {
		if l, ok := op.(swpipeline.Loop); ok {
			loop = l
		}
	}
	if loop == nil {
		return fmt.Errorf("fixture %q has no counted loop to pipeline", f.Name)
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
		return fmt.Errorf("pipelining %q: %w", f.Name, err)
	}
	if !res.Applicable {
		fmt.Printf("%s: not applicable for pipelining (e.g. trip count too short, or empty schedule)\n", f.Name)
		return nil
	}

	fmt.Printf("=== %s (after) ===\n", f.Name)
	fmt.Print(toyir.Dump(built.Function))

	after, err := toyir.NewInterp().Run(built.Function)
	if err != nil {
		return fmt.Errorf("running pipelined program: %w", err)
	}
	fmt.Printf("result: %v\n", after)

	return nil
}
