package planner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vibecli/vibe-core/internal/build"
	"github.com/vibecli/vibe-core/internal/llm"
)

// scriptedProvider returns responses in order, one per CallLLM call.
type scriptedProvider struct {
	responses []string
	calls     int
}

func (s *scriptedProvider) CallLLM(_ context.Context, _ []llm.Message) (llm.Message, error) {
	if s.calls >= len(s.responses) {
		return llm.Message{}, nil
	}
	resp := s.responses[s.calls]
	s.calls++
	return llm.Message{Role: llm.RoleAssistant, Content: resp}, nil
}

func (s *scriptedProvider) CallLLMStream(ctx context.Context, msgs []llm.Message, cb llm.StreamCallback) (llm.Message, error) {
	return s.CallLLM(ctx, msgs)
}

func (s *scriptedProvider) GetName() string { return "scripted" }

func TestPlannerCreatesNewFile(t *testing.T) {
	root := t.TempDir()
	provider := &scriptedProvider{responses: []string{
		"This goal requires adding a small greeting utility.",
		"FILE: greet.go\nACTION: create\nREASON: new helper file\n",
		"```go\npackage greet\n\nfunc Hello() string { return \"hi\" }\n```",
	}}
	p := New(provider, root)

	result, err := p.Run(context.Background(), "add a greeting helper in greet.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EndState != Complete {
		t.Errorf("end state = %v, want Complete", result.EndState)
	}
	if len(result.Operations) != 1 || result.Operations[0].Kind != build.Create {
		t.Fatalf("operations = %+v, want single Create", result.Operations)
	}
	if strings.Contains(result.Operations[0].Content, "```") {
		t.Error("generated content still contains a markdown fence")
	}
}

func TestPlannerCorrectsUpdateToCreateWhenFileMissing(t *testing.T) {
	root := t.TempDir()
	provider := &scriptedProvider{responses: []string{
		"Analysis.",
		"FILE: missing.go\nACTION: update\nREASON: thought it existed\n",
		"```go\npackage main\n```",
	}}
	p := New(provider, root)

	result, err := p.Run(context.Background(), "update missing.go to add a header")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Operations) != 1 || result.Operations[0].Kind != build.Create {
		t.Fatalf("expected correction to Create, got %+v", result.Operations)
	}
}

func TestApplyDiffDirectivesReplace(t *testing.T) {
	original := "line1\nline2\nline3\n"
	response := "REPLACE lines 2-2 with:\nreplaced\n"
	got := ApplyDiffDirectives(original, response)
	want := "line1\nreplaced\nline3\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApplyDiffDirectivesNoChanges(t *testing.T) {
	original := "unchanged\n"
	if got := ApplyDiffDirectives(original, "NO CHANGES REQUIRED"); got != original {
		t.Errorf("got %q, want original unchanged", got)
	}
}

func TestApplyDiffDirectivesOutOfRangeIgnored(t *testing.T) {
	original := "only\n"
	got := ApplyDiffDirectives(original, "REPLACE lines 5-6 with:\nnope\n")
	if got != original {
		t.Errorf("out-of-range directive should be ignored, got %q", got)
	}
}

func TestExtractExplicitPathsFiltersFalsePositives(t *testing.T) {
	goal := "fix the bug in internal/tool/builtin/file.go, e.g. not in main.exe"
	paths := ExtractExplicitPaths(goal)
	found := map[string]bool{}
	for _, p := range paths {
		found[p] = true
	}
	if !found["internal/tool/builtin/file.go"] {
		t.Errorf("expected to find file.go path, got %v", paths)
	}
	if found["e.g"] {
		t.Error("e.g. (extracted as \"e.g\") should be filtered as a false positive")
	}
}

func TestBuildContextSummaryRespectsBudget(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "small.txt"), []byte("tiny"), 0o644); err != nil {
		t.Fatal(err)
	}
	summary := BuildContextSummary([]string{"small.txt", "absent.txt"}, root, 1000)
	if !strings.Contains(summary, "small.txt") {
		t.Errorf("summary missing small.txt: %q", summary)
	}
	if !strings.Contains(summary, "does not exist yet") {
		t.Errorf("summary missing absent-file marker: %q", summary)
	}
}
