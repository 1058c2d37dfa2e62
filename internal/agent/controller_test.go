package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vibecli/vibe-core/internal/vibeerr"
)

// scriptedExecutor returns one IterationOutput per call, in order.
type scriptedExecutor struct {
	outputs []IterationOutput
	calls   int
}

func (s *scriptedExecutor) RunIteration(_ context.Context, _ IterationInput) (IterationOutput, error) {
	if s.calls >= len(s.outputs) {
		return IterationOutput{ReasoningSteps: []string{"done", "nothing left"}, Response: "final"}, nil
	}
	out := s.outputs[s.calls]
	s.calls++
	return out, nil
}

// S6: steadily high confidence across iterations converges. The first
// iteration's grep_search call keeps the loop going; the second iteration
// meets all three convergence thresholds and completes.
func TestControllerConvergesAndCompletes(t *testing.T) {
	exec := &scriptedExecutor{outputs: []IterationOutput{
		{ReasoningSteps: []string{"step one", "step two", "step three"}, ToolCalls: []ToolCall{{Name: "grep_search"}, {Name: "file_read"}}, Response: "partial", SelfConfidence: 0.85},
		{ReasoningSteps: []string{"step four", "step five", "step six"}, ToolCalls: []ToolCall{{Name: "grep_search"}, {Name: "file_read"}}, Response: "final answer", SelfConfidence: 0.87},
	}}
	c := &Controller{
		Executor:                exec,
		MaxIterationsAllowed:    10,
		MaxToolsPerIteration:    2,
		MaxExecutionTime:        time.Minute,
		TimeBoundsPerIteration:  time.Second,
		ConvergenceThreshold:    0.8,
		AllowIterationOnFailure: true,
	}

	result, err := c.Run(context.Background(), "answer the question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FinalResponse == "" {
		t.Error("expected a non-empty final response")
	}
	if result.ConfidenceScore <= 0 {
		t.Errorf("confidence score = %v, want > 0", result.ConfidenceScore)
	}
	if len(result.History) == 0 {
		t.Error("expected non-empty iteration history")
	}
	if len(result.History) != 2 {
		t.Fatalf("iterations = %d, want 2", len(result.History))
	}
	if result.FinalResponse != "final answer" {
		t.Errorf("final response = %q, want %q", result.FinalResponse, "final answer")
	}
	if last := result.History[1].ConvergenceIndicators; !HasConverged(last, 0.8) {
		t.Errorf("last iteration's metrics %+v do not meet the convergence thresholds", last)
	}
}

// S5: an iteration that never returns trips the per-iteration deadline.
func TestControllerIterationTimeout(t *testing.T) {
	c := &Controller{
		Executor: iterationExecutorFunc(func(ctx context.Context, _ IterationInput) (IterationOutput, error) {
			<-ctx.Done()
			return IterationOutput{}, ctx.Err()
		}),
		MaxIterationsAllowed:   3,
		TimeBoundsPerIteration: 20 * time.Millisecond,
		MaxExecutionTime:       time.Minute,
	}

	_, err := c.Run(context.Background(), "goal")
	if vibeerr.KindOf(err) != vibeerr.KindTimeout {
		t.Fatalf("expected KindTimeout, got %v (%v)", vibeerr.KindOf(err), err)
	}
}

func TestControllerTooManyToolsRejected(t *testing.T) {
	exec := &scriptedExecutor{outputs: []IterationOutput{
		{ReasoningSteps: []string{"a", "b"}, ToolCalls: []ToolCall{{Name: "t1"}, {Name: "t2"}, {Name: "t3"}}},
	}}
	c := &Controller{
		Executor:               exec,
		MaxIterationsAllowed:   5,
		MaxToolsPerIteration:   2,
		TimeBoundsPerIteration: time.Second,
		MaxExecutionTime:       time.Minute,
	}

	_, err := c.Run(context.Background(), "goal")
	if vibeerr.KindOf(err) != vibeerr.KindResource {
		t.Fatalf("expected KindResource, got %v", vibeerr.KindOf(err))
	}
}

func TestVerifyFailsOnInsufficientReasoning(t *testing.T) {
	state := &AgentExecutionState{}
	v := Verify([]string{"only one step"}, nil, state, 0.5)
	if v.Status != VerificationFailed {
		t.Fatalf("expected failure for single reasoning step, got %+v", v)
	}
}

func TestVerifyPassesWithGoodIteration(t *testing.T) {
	state := &AgentExecutionState{}
	v := Verify([]string{"step one", "step two"}, []ToolCall{{Name: "file_read"}}, state, 0.9)
	if v.Status != VerificationPassed {
		t.Fatalf("expected pass, got %+v", v)
	}
	if v.Confidence <= 0.5 || v.Confidence > 1 {
		t.Errorf("confidence = %v, want in (0.5, 1]", v.Confidence)
	}
}

func TestHasConvergedRequiresAllThreeThresholds(t *testing.T) {
	m := ConvergenceMetrics{IterationStability: 0.9, ConfidenceTrend: 0.9, GoalProgressScore: 0.5}
	if HasConverged(m, 0.8) {
		t.Error("goal progress below 0.7 should not converge")
	}
	m.GoalProgressScore = 0.8
	if !HasConverged(m, 0.8) {
		t.Error("all three thresholds met should converge")
	}
}

func TestSafeRunRetriesTimeoutThenSucceeds(t *testing.T) {
	attempts := 0
	err := SafeRun(context.Background(), RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, BackoffMultiple: 1.0}, func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return vibeerr.New(vibeerr.KindTimeout, "test", errors.New("slow"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestSafeRunDoesNotRetryValidationErrors(t *testing.T) {
	attempts := 0
	err := SafeRun(context.Background(), DefaultRetryConfig(), func(ctx context.Context) error {
		attempts++
		return vibeerr.New(vibeerr.KindValidation, "test", errors.New("bad input"))
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry for validation errors)", attempts)
	}
}

// iterationExecutorFunc adapts a function to the IterationExecutor interface.
type iterationExecutorFunc func(ctx context.Context, in IterationInput) (IterationOutput, error)

func (f iterationExecutorFunc) RunIteration(ctx context.Context, in IterationInput) (IterationOutput, error) {
	return f(ctx, in)
}
