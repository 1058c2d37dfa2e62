package agent

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// ExecLogger writes a controller run's iteration history to a markdown
// file for local debugging. Thread-safe; NewExecLogger creates or
// truncates the file, and StartRun only writes the run header. A nil *ExecLogger is valid and every method on it is a no-op,
// so wiring it into Controller never requires a nil check at call sites.
type ExecLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewExecLogger creates a logger writing to path, creating or truncating
// it immediately. Failures to create the log are non-fatal: callers that
// get a nil logger and non-nil error should log the error and proceed
// with a nil *ExecLogger.
func NewExecLogger(path string) (*ExecLogger, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cannot create exec log: %w", err)
	}
	return &ExecLogger{file: f}, nil
}

// StartRun writes a session header with the goal.
func (l *ExecLogger) StartRun(goal string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writef("# Agent execution log\n\n")
	l.writef("**time**: %s  \n", time.Now().Format("2006-01-02 15:04:05"))
	l.writef("**goal**: %s\n\n---\n\n", goal)
}

// LogIteration writes one iteration's reasoning, tool calls and
// verification outcome as a markdown section.
func (l *ExecLogger) LogIteration(rec IterationRecord) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writef("## Iteration %d\n\n", rec.IterationNumber)
	for _, step := range rec.ReasoningSteps {
		l.writef("- %s\n", step)
	}
	for _, call := range rec.ToolCalls {
		l.writef("\n**tool**: `%s` — %s\n", call.Name, call.Reasoning)
	}
	if rec.VerificationResult != nil {
		status := "passed"
		if rec.VerificationResult.Status == VerificationFailed {
			status = "failed: " + rec.VerificationResult.Reason
		}
		l.writef("\n**verification**: %s (confidence %.2f)\n", status, rec.VerificationResult.Confidence)
	}
	l.writef("\n---\n\n")
}

// EndRun writes the final summary.
func (l *ExecLogger) EndRun(result *AgentResult) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writef("## Result\n\n")
	l.writef("- **iterations**: %d\n", len(result.History))
	l.writef("- **confidence**: %.2f\n", result.ConfidenceScore)
	l.writef("- **finished**: %s\n", time.Now().Format("2006-01-02 15:04:05"))
}

// Close closes the underlying file. Safe to call on a nil *ExecLogger.
func (l *ExecLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *ExecLogger) writef(format string, args ...any) {
	fmt.Fprintf(l.file, format, args...)
}
