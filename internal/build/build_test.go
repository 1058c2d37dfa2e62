package build

import (
	"os"
	"path/filepath"
	"testing"
)

// S1: create a single file.
func TestApplyCreateSingleFile(t *testing.T) {
	root := t.TempDir()
	e := NewEngine(root, root, None, nil)

	plan := NewBuildPlan("add readme", "", []FileOperation{
		{Kind: Create, Path: "README.md", Content: "hello"},
	}, root)

	result, err := e.Apply(plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OperationsCompleted != 1 {
		t.Errorf("got %d operations completed, want 1", result.OperationsCompleted)
	}
	got, err := os.ReadFile(filepath.Join(root, "README.md"))
	if err != nil || string(got) != "hello" {
		t.Errorf("file content = %q, err=%v", got, err)
	}
}

// S2: update whose pre-image no longer matches must fail and roll back.
func TestApplyUpdatePreimageMismatchRollsBack(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "main.go")
	if err := os.WriteFile(path, []byte("package main\n// changed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	e := NewEngine(root, root, None, nil)

	plan := NewBuildPlan("rewrite main", "", []FileOperation{
		{Kind: Update, Path: "main.go", OldContent: "package main\n", Content: "package main\n\nfunc main() {}\n"},
	}, root)

	result, err := e.Apply(plan)
	if err == nil {
		t.Fatal("expected pre-image mismatch to fail")
	}
	if !result.RolledBack {
		t.Error("expected rollback to have occurred")
	}
	got, _ := os.ReadFile(path)
	if string(got) != "package main\n// changed\n" {
		t.Errorf("file content changed despite rollback: %q", got)
	}
}

// S3: an operation whose path escapes the project root is dropped, never
// committed, even under ConfirmAll / None.
func TestEnforceProjectScopeRejectsEscape(t *testing.T) {
	root := t.TempDir()
	e := NewEngine(root, root, None, nil)

	ops := []FileOperation{
		{Kind: Create, Path: "ok.txt", Content: "fine"},
		{Kind: Create, Path: "../outside.txt", Content: "escape"},
	}
	sanitized, warnings := e.EnforceProjectScope(ops)
	if len(sanitized) != 1 || sanitized[0].Path != "ok.txt" {
		t.Errorf("sanitized = %+v, want only ok.txt", sanitized)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want exactly one", warnings)
	}

	plan := NewBuildPlan("escape attempt", "", ops, root)
	if plan.EstimatedRisk != Critical {
		t.Errorf("risk = %v, want Critical for an escaping operation", plan.EstimatedRisk)
	}

	result, err := e.Apply(plan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OperationsCompleted != 1 {
		t.Errorf("completed = %d, want 1 (only the in-scope op)", result.OperationsCompleted)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "outside.txt")); err == nil {
		t.Error("escaping operation must never be written to disk")
	}
}

// S4: a cyclic ComplexOperation graph must fail validation, not hang.
func TestOperationGraphDetectsCycle(t *testing.T) {
	g := NewOperationGraph()
	g.AddOperation(ComplexOperation{Name: "a", Dependencies: []string{"b"}})
	g.AddOperation(ComplexOperation{Name: "b", Dependencies: []string{"a"}})

	if err := g.ValidateAndOrder(t.TempDir()); err == nil {
		t.Fatal("expected cycle detection to fail validation")
	}
	if _, err := g.Order(); err == nil {
		t.Fatal("Order must refuse to return anything for an unvalidated graph")
	}
}

func TestOperationGraphTopologicalOrder(t *testing.T) {
	root := t.TempDir()
	g := NewOperationGraph()
	g.AddOperation(ComplexOperation{Name: "init", FileOperations: []FileOperation{
		{Kind: Create, Path: "go.mod", Content: "module x\n"},
	}})
	g.AddOperation(ComplexOperation{Name: "add-main", Dependencies: []string{"init"},
		FileOperations: []FileOperation{{Kind: Create, Path: "main.go", Content: "package main\n"}},
	})

	if err := g.ValidateAndOrder(root); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	order, err := g.Order()
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "init" || order[1] != "add-main" {
		t.Errorf("order = %v, want [init add-main]", order)
	}
}

func TestAssessRiskRules(t *testing.T) {
	root := "/workspace/project"
	cases := []struct {
		op   FileOperation
		want RiskLevel
	}{
		{FileOperation{Kind: Create, Path: "notes.txt"}, Low},
		{FileOperation{Kind: Read, Path: "notes.txt"}, Low},
		{FileOperation{Kind: Update, Path: "notes.txt"}, Medium},
		{FileOperation{Kind: Delete, Path: "notes.txt"}, High},
		{FileOperation{Kind: Update, Path: "go.mod"}, Critical},
		{FileOperation{Kind: Create, Path: "go.mod"}, High},
		{FileOperation{Kind: Create, Path: "../../etc/passwd"}, Critical},
	}
	for _, c := range cases {
		if got := AssessRisk(c.op, root); got != c.want {
			t.Errorf("AssessRisk(%+v) = %v, want %v", c.op, got, c.want)
		}
	}
}

// S10: the build-plan fence format round-trips through extraction.
func TestParseFencesRoundTrip(t *testing.T) {
	content := "package main\n\nfunc main() {}\n"
	fence := FormatFence("cmd/app/main.go", Create, content)

	ops := ParseFences(fence)
	if len(ops) != 1 {
		t.Fatalf("got %d fences, want 1", len(ops))
	}
	got := ops[0]
	if got.Path != "cmd/app/main.go" || got.Kind != Create || got.Content != content {
		t.Errorf("ParseFences(FormatFence(...)) = %+v, want path=cmd/app/main.go kind=create content=%q", got, content)
	}
}

func TestParseFencesMultipleInOneResponse(t *testing.T) {
	text := FormatFence("a.go", Create, "package a\n") + FormatFence("b.go", Update, "package b\n")
	ops := ParseFences(text)
	if len(ops) != 2 {
		t.Fatalf("got %d fences, want 2", len(ops))
	}
	if ops[0].Path != "a.go" || ops[0].Content != "package a\n" {
		t.Errorf("first fence = %+v", ops[0])
	}
	if ops[1].Path != "b.go" || ops[1].Kind != Update || ops[1].Content != "package b\n" {
		t.Errorf("second fence = %+v", ops[1])
	}
}

func TestParseFencesIgnoresHeaderWithoutPath(t *testing.T) {
	text := "file:path=;action=create\nshould not be treated as a fence\n"
	if ops := ParseFences(text); ops != nil {
		t.Errorf("ParseFences(%q) = %+v, want nil", text, ops)
	}
}

// A failing node must roll back every earlier node's mutations in the same
// graph run too, not just its own — the whole graph commits as one
// transaction.
func TestExecuteGraphRollsBackEarlierNodesOnLaterFailure(t *testing.T) {
	root := t.TempDir()
	e := NewEngine(root, root, None, nil)

	e.Graph.AddOperation(ComplexOperation{
		Name:           "create-a",
		FileOperations: []FileOperation{{Kind: Create, Path: "a.txt", Content: "a"}},
	})
	e.Graph.AddOperation(ComplexOperation{
		Name:           "create-b",
		Dependencies:   []string{"create-a"},
		FileOperations: []FileOperation{{Kind: Create, Path: "b.txt", Content: "b"}},
	})
	e.Graph.AddOperation(ComplexOperation{
		Name:         "bad-update",
		Dependencies: []string{"create-b"},
		FileOperations: []FileOperation{
			{Kind: Update, Path: "a.txt", OldContent: "not-what-create-a-wrote", Content: "a2"},
		},
	})

	result, err := e.ExecuteGraph()
	if err == nil {
		t.Fatal("expected the bad-update node to fail")
	}
	if !result.RolledBack {
		t.Error("expected rollback to have occurred")
	}
	if _, statErr := os.Stat(filepath.Join(root, "a.txt")); statErr == nil {
		t.Error("create-a's mutation must be rolled back when a later node in the same graph fails")
	}
	if _, statErr := os.Stat(filepath.Join(root, "b.txt")); statErr == nil {
		t.Error("create-b's mutation must be rolled back when a later node in the same graph fails")
	}
}

func TestExecuteOperationOnceDeleteRequiresExistence(t *testing.T) {
	root := t.TempDir()
	e := NewEngine(root, root, None, nil)

	_, err := e.ExecuteOperationOnce(FileOperation{Kind: Delete, Path: "missing.txt"})
	if err == nil {
		t.Fatal("expected delete of a nonexistent file to fail")
	}
}
