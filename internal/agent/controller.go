package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/vibecli/vibe-core/internal/tool"
	"github.com/vibecli/vibe-core/internal/vibeerr"
)

// compactKeepRecords bounds how much iteration history survives an
// auto-compact triggered by ContextCritical.
const compactKeepRecords = 5

// IterationInput is what the controller hands an IterationExecutor for
// one pass of the loop.
type IterationInput struct {
	IterationNumber int
	Goal            string
	History         []IterationRecord
}

// IterationOutput is what an IterationExecutor reports back. Response is
// the iteration's candidate answer, used as the final response if the
// loop completes on this iteration; SelfConfidence is the executor's own
// estimate, folded into Verify's confidence formula.
type IterationOutput struct {
	ReasoningSteps  []string
	ToolCalls       []ToolCall
	ToolResults     []ToolResult
	Response        string
	SelfConfidence  float64
	MemoryPeakBytes int64
	ResourceUsage   tool.ResourceUsage
}

// IterationExecutor runs one iteration of reasoning/tool-use for a goal.
// The production implementation drives an llm.LLMProvider through the
// registry; tests substitute a scripted executor.
type IterationExecutor interface {
	RunIteration(ctx context.Context, in IterationInput) (IterationOutput, error)
}

// Controller is C5: the bounded agent controller. It runs Executor inside
// a loop bounded by three layered deadlines (per-invocation, per-iteration
// implicitly via TimeBoundsPerIteration, and per-tool-call left to the
// registry's own Enforcer), verifying and scoring convergence after every
// iteration.
// MaxTokenBudget and ContextWindowTokens are optional, additional bounds
// layered on top of the required spec §4.5 limits above: a 0 value
// disables the corresponding guard.
type Controller struct {
	Executor                IterationExecutor
	MaxIterationsAllowed    int
	MaxToolsPerIteration    int
	MaxExecutionTime        time.Duration
	TimeBoundsPerIteration  time.Duration
	ConvergenceThreshold    float64
	AllowIterationOnFailure bool
	MaxTokenBudget          int64
	ContextWindowTokens     int

	// Log is optional; a nil Log disables execution logging entirely.
	Log *ExecLogger
}

// Run drives the full loop skeleton from spec §4.5 for goal, returning the
// assembled AgentResult on Complete, or an error classified via vibeerr on
// Timeout/TooManyTools/ExecutionFailed.
func (c *Controller) Run(ctx context.Context, goal string) (*AgentResult, error) {
	state := &AgentExecutionState{
		StartTime:              time.Now(),
		MaxIterationsAllowed:   c.MaxIterationsAllowed,
		ConvergenceThreshold:   c.ConvergenceThreshold,
		TimeBoundsPerIteration: c.TimeBoundsPerIteration,
	}
	currentGoal := goal
	var lastResponse string

	c.Log.StartRun(goal)
	costGuard := NewCostGuard(c.MaxTokenBudget, 0)
	contextGuard := NewContextGuard(c.ContextWindowTokens)
	var cumulativeTokens int

	for state.IterationCount < state.MaxIterationsAllowed {
		if c.MaxExecutionTime > 0 && time.Since(state.StartTime) > c.MaxExecutionTime {
			return nil, vibeerr.Newf(vibeerr.KindTimeout, "agent.controller", "cumulative execution time exceeded").WithBound("max_execution_time")
		}

		iterCtx := ctx
		var cancel context.CancelFunc
		if c.TimeBoundsPerIteration > 0 {
			iterCtx, cancel = context.WithTimeout(ctx, c.TimeBoundsPerIteration)
		}
		start := time.Now()
		out, err := c.Executor.RunIteration(iterCtx, IterationInput{
			IterationNumber: state.IterationCount + 1,
			Goal:            currentGoal,
			History:         state.ExecutionHistory,
		})
		elapsed := time.Since(start)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			if iterCtx.Err() == context.DeadlineExceeded {
				return nil, vibeerr.Newf(vibeerr.KindTimeout, "agent.controller", "iteration %d exceeded its time bound", state.IterationCount+1).WithBound("time_bounds_per_iteration")
			}
			return nil, vibeerr.New(vibeerr.KindExecution, "agent.controller", err)
		}

		if c.MaxToolsPerIteration > 0 && len(out.ToolCalls) > c.MaxToolsPerIteration {
			return nil, vibeerr.Newf(vibeerr.KindResource, "agent.controller", "iteration %d requested %d tool calls, limit %d",
				state.IterationCount+1, len(out.ToolCalls), c.MaxToolsPerIteration).WithBound("max_tools_per_iteration")
		}

		iterationTokens := estimateTokens(strings.Join(out.ReasoningSteps, " ") + " " + out.Response)
		if err := costGuard.RecordTokens(iterationTokens); err != nil {
			return nil, vibeerr.New(vibeerr.KindResource, "agent.controller", err).WithBound("max_token_budget")
		}
		cumulativeTokens += iterationTokens
		if status := contextGuard.CheckTokens(cumulativeTokens); status == ContextCritical && len(state.ExecutionHistory) > compactKeepRecords {
			log.Printf("agent.controller: context window critical at iteration %d, compacting history to last %d records", state.IterationCount+1, compactKeepRecords)
			state.ExecutionHistory = state.ExecutionHistory[len(state.ExecutionHistory)-compactKeepRecords:]
		}

		verification := Verify(out.ReasoningSteps, out.ToolCalls, state, out.SelfConfidence)

		confidence := 0.0
		success := verification.Status == VerificationPassed
		if success {
			confidence = verification.Confidence
		}

		record := IterationRecord{
			IterationNumber:    state.IterationCount + 1,
			ReasoningSteps:     out.ReasoningSteps,
			ToolCalls:          out.ToolCalls,
			ToolResults:        out.ToolResults,
			VerificationResult: &verification,
			ExecutionTime:      elapsed,
			Success:            success,
			MemoryPeakBytes:    out.MemoryPeakBytes,
			ConfidenceScore:    confidence,
			ResourceUsage:      out.ResourceUsage,
		}
		state.ExecutionHistory = append(state.ExecutionHistory, record)
		c.Log.LogIteration(record)
		state.IterationCount++
		state.TotalToolsExecuted += len(out.ToolCalls)
		state.ResourceUsageStats = addResourceUsage(state.ResourceUsageStats, out.ResourceUsage)

		UpdateConvergenceMetrics(state, confidence, len(out.ToolCalls), len(out.ReasoningSteps), c.MaxToolsPerIteration)
		state.ExecutionHistory[len(state.ExecutionHistory)-1].ConvergenceIndicators = state.ConvergenceMetrics
		lastResponse = out.Response

		decision := c.decide(state, verification, out)
		switch decision.kind {
		case continueFail:
			if !c.AllowIterationOnFailure || state.FailureCount >= 3 {
				return nil, vibeerr.Newf(vibeerr.KindExecution, "agent.controller", "execution failed: %s", verification.Reason)
			}
			state.FailureCount++
			state.RecoveryAttempts++
			currentGoal = fmt.Sprintf("%s (Recovery attempt %d)", goal, state.RecoveryAttempts)
			continue

		case continueLoop:
			currentGoal = decision.nextGoal
			continue

		case continueComplete:
			result := assembleResult(lastResponse, state)
			c.Log.EndRun(result)
			return result, nil
		}
	}

	result := assembleResult(lastResponse, state)
	c.Log.EndRun(result)
	return result, nil
}

type continueKind int

const (
	continueComplete continueKind = iota
	continueLoop
	continueFail
)

type continueDecision struct {
	kind     continueKind
	nextGoal string
}

// searchKeywords mark a tool call as suggesting there's more to look up,
// which can justify continuing even after a passing verification.
var searchKeywords = []string{"search", "lookup", "check"}

// decide implements should_continue_iterating's decision tree exactly as
// specified: Fail short-circuits everything else, Complete takes priority
// over Continue once convergence or the iteration limit is reached.
func (c *Controller) decide(state *AgentExecutionState, verification VerificationResult, out IterationOutput) continueDecision {
	if verification.Status == VerificationFailed {
		return continueDecision{kind: continueFail}
	}

	atLimit := state.IterationCount >= state.MaxIterationsAllowed
	highConfidenceEarlyExit := verification.Confidence > 0.8 && state.IterationCount >= 2
	if HasConverged(state.ConvergenceMetrics, state.ConvergenceThreshold) || highConfidenceEarlyExit || atLimit {
		return continueDecision{kind: continueComplete}
	}

	if !atLimit && mentionsSearchIntent(out.ToolCalls) {
		return continueDecision{kind: continueLoop, nextGoal: out.Response}
	}

	return continueDecision{kind: continueComplete}
}

func mentionsSearchIntent(calls []ToolCall) bool {
	for _, c := range calls {
		lower := strings.ToLower(c.Name + " " + c.Reasoning)
		for _, kw := range searchKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

func assembleResult(response string, state *AgentExecutionState) *AgentResult {
	sum, n := 0.0, 0
	for _, rec := range state.ExecutionHistory {
		if rec.VerificationResult != nil && rec.VerificationResult.Status == VerificationPassed {
			sum += rec.VerificationResult.Confidence
			n++
		}
	}
	confidence := 0.3
	if n > 0 {
		confidence = sum / float64(n)
	}
	return &AgentResult{FinalResponse: response, ConfidenceScore: confidence, History: state.ExecutionHistory}
}

func addResourceUsage(a, b tool.ResourceUsage) tool.ResourceUsage {
	return tool.ResourceUsage{
		OutputSize:     a.OutputSize + b.OutputSize,
		ProcessCount:   a.ProcessCount + b.ProcessCount,
		NetworkCalls:   a.NetworkCalls + b.NetworkCalls,
		ExecutionTime:  a.ExecutionTime + b.ExecutionTime,
		TruncatedBytes: a.TruncatedBytes + b.TruncatedBytes,
	}
}
