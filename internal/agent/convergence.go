package agent

// UpdateConvergenceMetrics recomputes state.ConvergenceMetrics from the
// just-completed iteration's confidence and the execution history
// (which already includes this iteration — call after appending the
// IterationRecord), per the exact formulas in spec §4.5.
func UpdateConvergenceMetrics(state *AgentExecutionState, thisConfidence float64, toolsThisIteration, reasoningStepsThisIteration int, maxToolsPerIteration int) {
	history := state.ExecutionHistory
	n := len(history)

	stability := 0.5
	if n >= 2 {
		prev := history[n-2].ConfidenceScore
		delta := thisConfidence - prev
		if delta < 0 {
			delta = -delta
		}
		stability = 1 - delta
		if stability < 0 {
			stability = 0
		}
	}

	window := history
	if n > 3 {
		window = history[n-3:]
	}
	sum := 0.0
	for _, rec := range window {
		sum += rec.ConfidenceScore
	}
	trend := 0.0
	if len(window) > 0 {
		trend = sum / float64(len(window))
	}

	toolRatio := 0.0
	if maxToolsPerIteration > 0 {
		toolRatio = float64(toolsThisIteration) / float64(maxToolsPerIteration)
		if toolRatio > 1 {
			toolRatio = 1
		}
	}
	reasoningRatio := minF(float64(reasoningStepsThisIteration)/5, 1)
	goalProgress := 0.3*toolRatio + 0.3*reasoningRatio + 0.4*thisConfidence

	state.ConvergenceMetrics = ConvergenceMetrics{
		IterationStability: stability,
		ConfidenceTrend:    trend,
		GoalProgressScore:  goalProgress,
	}
}

// HasConverged reports whether the accumulated convergence metrics meet
// all three thresholds the spec requires simultaneously.
func HasConverged(m ConvergenceMetrics, convergenceThreshold float64) bool {
	return m.IterationStability >= 0.8 && m.ConfidenceTrend >= convergenceThreshold && m.GoalProgressScore >= 0.7
}
