package agent

// maxToolsExecutedBudget is the resource_usage check's ceiling on
// total tools executed across the whole run (spec §4.5).
const maxToolsExecutedBudget = 20

// Verify runs the four automated checks against one iteration's output
// and the state accumulated so far, returning Passed with a confidence
// score or Failed with the reasons. Any single failing check fails the
// whole verification — the checks are not independently scored.
func Verify(reasoningSteps []string, toolCalls []ToolCall, state *AgentExecutionState, selfConfidence float64) VerificationResult {
	var failed []string

	if !reasoningQualityOK(reasoningSteps) {
		failed = append(failed, "reasoning_quality")
	}
	if !toolCallValidityOK(toolCalls) {
		failed = append(failed, "tool_call_validity")
	}
	if !progressCheckOK(state) {
		failed = append(failed, "progress_check")
	}
	if !resourceUsageOK(state) {
		failed = append(failed, "resource_usage")
	}

	if len(failed) > 0 {
		reason := "verification failed: " + joinChecks(failed)
		if containsCheck(failed, "progress_check") {
			reason = "appears to be looping: " + joinChecks(failed)
		}
		return VerificationResult{Status: VerificationFailed, Reason: reason, FailedChecks: failed}
	}

	confidence := 0.5
	confidence += minF(0.2, float64(len(reasoningSteps))*0.1)
	if n := len(toolCalls); n >= 1 && n <= 3 {
		confidence += 0.2
	}
	confidence += minF(0.3, selfConfidence*0.3)
	if confidence > 1 {
		confidence = 1
	}

	return VerificationResult{
		Status:     VerificationPassed,
		Confidence: confidence,
		Checks:     []string{"reasoning_quality", "tool_call_validity", "progress_check", "resource_usage"},
	}
}

func reasoningQualityOK(steps []string) bool {
	if len(steps) < 2 {
		return false
	}
	for _, s := range steps {
		if s == "" {
			return false
		}
	}
	return true
}

func toolCallValidityOK(calls []ToolCall) bool {
	for _, c := range calls {
		if c.Name == "" {
			return false
		}
	}
	return true
}

// loopSameToolLimit bounds how many times the same tool name may recur
// across the inspected window before progressCheckOK treats it as a loop.
const loopSameToolLimit = 3

// loopConsecutiveFailureLimit is how many trailing iterations must each
// report an all-failed tool batch before progressCheckOK flags it.
const loopConsecutiveFailureLimit = 2

// progressCheckOK inspects the last ≤3 iterations already recorded (the
// current iteration is not yet appended when Verify runs) for three signs
// of a stalled agent, mirroring the teacher's tool-call-level loop
// detector scaled to this controller's iteration-level granularity:
//
//  1. identical reasoning-step sequences recurring across iterations
//  2. any single tool name called at or above loopSameToolLimit times
//     in the window
//  3. the trailing loopConsecutiveFailureLimit iterations each reporting
//     at least one tool call and none of them succeeding
func progressCheckOK(state *AgentExecutionState) bool {
	history := state.ExecutionHistory
	n := len(history)
	if n > 3 {
		history = history[n-3:]
	}

	reasoningCounts := make(map[string]int)
	toolNameCounts := make(map[string]int)
	for _, rec := range history {
		if key := joinChecks(rec.ReasoningSteps); key != "" {
			reasoningCounts[key]++
			if reasoningCounts[key] >= 2 {
				return false
			}
		}
		for _, call := range rec.ToolCalls {
			toolNameCounts[call.Name]++
			if toolNameCounts[call.Name] >= loopSameToolLimit {
				return false
			}
		}
	}

	if consecutiveIterationsAllFailed(history, loopConsecutiveFailureLimit) {
		return false
	}
	return true
}

// consecutiveIterationsAllFailed reports whether the trailing n records
// each had at least one tool result and every one of them failed.
func consecutiveIterationsAllFailed(history []IterationRecord, n int) bool {
	if len(history) < n {
		return false
	}
	tail := history[len(history)-n:]
	for _, rec := range tail {
		if len(rec.ToolResults) == 0 {
			return false
		}
		for _, r := range rec.ToolResults {
			if r.Success {
				return false
			}
		}
	}
	return true
}

func resourceUsageOK(state *AgentExecutionState) bool {
	return state.TotalToolsExecuted <= maxToolsExecutedBudget
}

func joinChecks(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

func containsCheck(items []string, target string) bool {
	for _, s := range items {
		if s == target {
			return true
		}
	}
	return false
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
