package toyir

import (
	"os"
	"path/filepath"
	"testing"
)

const sumFixtureYAML = `
name: sum
lower_bound: 0
upper_bound: 8
step: 1
iter_args:
  - name: acc
    init: "0"
ops:
  - name: add1
    result: next
    kind: add
    operands: ["acc", "iv"]
yield: ["next"]
schedule:
  - op: add1
    stage: 0
`

func writeFixture(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sum.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestLoadFixtureAndBuild(t *testing.T) {
	path := writeFixture(t, sumFixtureYAML)

	f, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if f.Name != "sum" {
		t.Fatalf("expected name %q, got %q", "sum", f.Name)
	}

	built, err := f.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	in := NewInterp()
	out, err := in.Run(built.Function)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != 1 || out[0] != 28 { // 0+1+...+7
		t.Fatalf("expected [28], got %v", out)
	}

	entries := built.GetSchedule(nil)
	if len(entries) != 1 || entries[0].Stage != 0 {
		t.Fatalf("unexpected schedule: %+v", entries)
	}
}

func TestLoadFixtureDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sum.yaml"), []byte(sumFixtureYAML), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("writing stray file: %v", err)
	}

	fixtures, err := LoadFixtureDir(dir)
	if err != nil {
		t.Fatalf("LoadFixtureDir: %v", err)
	}
	if len(fixtures) != 1 {
		t.Fatalf("expected 1 fixture, got %d", len(fixtures))
	}
}

func TestBuildRejectsUnknownScheduleOp(t *testing.T) {
	bad := sumFixtureYAML + "\n" // valid base
	f, err := LoadFixture(writeFixture(t, bad))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	f.Schedule[0].Op = "does-not-exist"

	if _, err := f.Build(); err == nil {
		t.Fatal("expected Build to fail on an unknown schedule op name")
	}
}
