package toyir

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/tinyrange/swpipeline/internal/swpipeline"
)

// Fixture describes one test loop program in YAML: the loop's constant
// bounds, its body as a sequence of named operations, and the pipeline
// schedule to run against it. Used by cmd/swpipeline-demo and
// cmd/swpipeline-bench.
type Fixture struct {
	Name string `yaml:"name"`
	// LowerBound, UpperBound, Step define the counted loop's trip range.
	LowerBound int64 `yaml:"lower_bound"`
	UpperBound int64 `yaml:"upper_bound"`
	Step       int64 `yaml:"step"`
	// Params are the function's arguments, by name.
	Params   []string     `yaml:"params"`
	IterArgs []FixtureArg `yaml:"iter_args"`
	Ops      []FixtureOp  `yaml:"ops"`
	// Yield names, in IterArgs order, the value each iter-arg carries
	// into the next iteration.
	Yield []string `yaml:"yield"`
	// Schedule assigns a pipeline stage to each named op.
	Schedule []FixtureScheduleEntry `yaml:"schedule"`
	// PeelEpilogue selects peeled vs. trailing-tail-predicated mode.
	PeelEpilogue bool `yaml:"peel_epilogue"`
}

// FixtureArg is one loop-carried iter-arg: its name (how ops and Yield
// refer to it) and its initial value.
type FixtureArg struct {
	Name string   `yaml:"name"`
	Init ValueRef `yaml:"init"`
}

// FixtureOp is one body operation. Name identifies it for Schedule;
// Result additionally binds its (single) output to a name later ops and
// Yield can reference. A store op has no Result.
type FixtureOp struct {
	Name     string     `yaml:"name"`
	Result   string     `yaml:"result"`
	Kind     string     `yaml:"kind"`
	Operands []ValueRef `yaml:"operands"`
}

func (fo FixtureOp) key() string {
	if fo.Name != "" {
		return fo.Name
	}
	return fo.Result
}

// FixtureScheduleEntry assigns a stage to one named op.
type FixtureScheduleEntry struct {
	Op    string `yaml:"op"`
	Stage int    `yaml:"stage"`
}

// ValueRef names a value: "iv" for the induction variable, a param,
// iter-arg, or op-result name, or a decimal integer literal.
type ValueRef string

// LoadFixture reads and parses one fixture from a YAML file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("toyir: reading fixture file: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("toyir: parsing fixture file: %w", err)
	}
	if f.Step == 0 {
		f.Step = 1
	}
	return &f, nil
}

// LoadFixtureDir reads every *.yaml file directly under dir as a
// Fixture, sorted by filename.
func LoadFixtureDir(dir string) ([]*Fixture, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("toyir: reading fixture directory: %w", err)
	}
	var fixtures []*Fixture
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) < 5 || name[len(name)-5:] != ".yaml" {
			continue
		}
		f, err := LoadFixture(dir + "/" + name)
		if err != nil {
			return nil, fmt.Errorf("toyir: %s: %w", name, err)
		}
		fixtures = append(fixtures, f)
	}
	return fixtures, nil
}

// scope resolves ValueRefs while building a fixture. literals holds
// every integer-literal operand, pre-materialized as a top-level const
// before the loop body is opened — a literal resolved lazily from
// inside the body would become an unscheduled body-local op and the
// transform would reject it.
type scope struct {
	b        *Builder
	iv       swpipeline.Value
	params   map[string]swpipeline.Value
	args     map[string]swpipeline.Value
	ops      map[string]swpipeline.Value
	literals map[string]swpipeline.Value
}

func (s *scope) resolve(ref ValueRef) (swpipeline.Value, error) {
	name := string(ref)
	switch {
	case name == "iv":
		return s.iv, nil
	case s.params[name] != nil:
		return s.params[name], nil
	case s.args[name] != nil:
		return s.args[name], nil
	case s.ops[name] != nil:
		return s.ops[name], nil
	case s.literals[name] != nil:
		return s.literals[name], nil
	}
	return nil, fmt.Errorf("toyir: fixture references unknown value %q", name)
}

// literalRefs collects every ValueRef appearing anywhere in f, so
// Build can pre-materialize the integer-literal ones before opening the
// loop body.
func (f *Fixture) literalRefs() []string {
	var refs []string
	for _, a := range f.IterArgs {
		refs = append(refs, string(a.Init))
	}
	for _, o := range f.Ops {
		for _, opnd := range o.Operands {
			refs = append(refs, string(opnd))
		}
	}
	refs = append(refs, f.Yield...)
	return refs
}

func buildOp(b *Builder, kind string, operands []swpipeline.Value) (swpipeline.Value, swpipeline.Op, error) {
	var k opKind
	nresults := 1
	switch kind {
	case "add":
		k = kAdd
	case "sub":
		k = kSub
	case "mul":
		k = kMul
	case "cmplt":
		k = kCompareLT
	case "select":
		k = kSelect
	case "load":
		k = kLoad
	case "store":
		k = kStore
		nresults = 0
	default:
		return nil, nil, fmt.Errorf("toyir: unknown fixture op kind %q", kind)
	}
	n := b.emit(k, 0, nresults, operands...)
	if nresults == 0 {
		return nil, n, nil
	}
	return n.results[0], n, nil
}

// Built is the product of compiling a Fixture: the Function plus a
// ready-to-use GetScheduleFn.
type Built struct {
	Builder     *Builder
	Function    *Function
	GetSchedule swpipeline.GetScheduleFn
}

// Build constructs a Function and its pipeline schedule from f.
func (f *Fixture) Build() (*Built, error) {
	b := NewBuilder()
	s := &scope{
		b:        b,
		params:   make(map[string]swpipeline.Value),
		args:     make(map[string]swpipeline.Value),
		ops:      make(map[string]swpipeline.Value),
		literals: make(map[string]swpipeline.Value),
	}
	for _, p := range f.Params {
		s.params[p] = b.AddParam()
	}

	lb := b.Const(f.LowerBound)
	ub := b.Const(f.UpperBound)
	step := b.Const(f.Step)

	for _, name := range f.literalRefs() {
		if _, ok := s.literals[name]; ok {
			continue
		}
		n, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			continue
		}
		s.literals[name] = b.Const(n)
	}

	initArgs := make([]swpipeline.Value, len(f.IterArgs))
	for i, a := range f.IterArgs {
		v, err := s.resolve(a.Init)
		if err != nil {
			return nil, err
		}
		initArgs[i] = v
	}

	loop, iv, iterArgs := b.BeginCountedLoop(lb, ub, step, initArgs)
	s.iv = iv
	for i, a := range f.IterArgs {
		s.args[a.Name] = iterArgs[i]
	}

	namedOps := make(map[string]swpipeline.Op, len(f.Ops))
	for _, fo := range f.Ops {
		operands := make([]swpipeline.Value, len(fo.Operands))
		for i, ref := range fo.Operands {
			v, err := s.resolve(ref)
			if err != nil {
				return nil, err
			}
			operands[i] = v
		}
		result, opHandle, err := buildOp(b, fo.Kind, operands)
		if err != nil {
			return nil, err
		}
		if fo.Result != "" {
			s.ops[fo.Result] = result
		}
		if key := fo.key(); key != "" {
			namedOps[key] = opHandle
		}
	}

	yieldVals := make([]swpipeline.Value, len(f.Yield))
	for i, name := range f.Yield {
		v, err := s.resolve(ValueRef(name))
		if err != nil {
			return nil, err
		}
		yieldVals[i] = v
	}
	b.FinishCountedLoop(loop, yieldVals)

	fn := b.Finish(loop.Results()...)

	entries := make([]swpipeline.ScheduleEntry, 0, len(f.Schedule))
	for _, se := range f.Schedule {
		op, ok := namedOps[se.Op]
		if !ok {
			return nil, fmt.Errorf("toyir: schedule references unknown op %q", se.Op)
		}
		entries = append(entries, swpipeline.ScheduleEntry{Op: op, Stage: se.Stage})
	}

	return &Built{
		Builder:  b,
		Function: fn,
		GetSchedule: func(swpipeline.Loop) []swpipeline.ScheduleEntry {
			return entries
		},
	}, nil
}
