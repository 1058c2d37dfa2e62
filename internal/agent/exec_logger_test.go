package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExecLoggerWritesMarkdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.md")
	l, err := NewExecLogger(path)
	if err != nil {
		t.Fatalf("NewExecLogger: %v", err)
	}
	l.StartRun("add a health check endpoint")
	l.LogIteration(IterationRecord{
		IterationNumber: 1,
		ReasoningSteps:  []string{"inspect router", "add handler"},
		ToolCalls:       []ToolCall{{Name: "file_write", Reasoning: "create handler file"}},
		VerificationResult: &VerificationResult{
			Status:     VerificationPassed,
			Confidence: 0.8,
		},
	})
	l.EndRun(&AgentResult{FinalResponse: "done", ConfidenceScore: 0.8, History: []IterationRecord{{}}})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	text := string(content)
	for _, want := range []string{"add a health check endpoint", "Iteration 1", "file_write", "passed"} {
		if !strings.Contains(text, want) {
			t.Errorf("log missing %q, got:\n%s", want, text)
		}
	}
}

func TestExecLoggerNilIsNoOp(t *testing.T) {
	var l *ExecLogger
	l.StartRun("goal")
	l.LogIteration(IterationRecord{})
	l.EndRun(&AgentResult{})
	if err := l.Close(); err != nil {
		t.Errorf("Close on nil logger should not error, got %v", err)
	}
}
