package main

import (
	"context"
	"fmt"

	"github.com/vibecli/vibe-core/internal/agent"
	"github.com/vibecli/vibe-core/internal/build"
	"github.com/vibecli/vibe-core/internal/planner"
	"github.com/vibecli/vibe-core/internal/tool"
)

// goalExecutor bridges the incremental planner and the transactional
// build engine into the agent.IterationExecutor the bounded controller
// drives: each iteration plans the current goal into file operations and
// applies them, reporting back the planner's reasoning and confidence so
// the controller's verification/convergence machinery has something real
// to work with.
type goalExecutor struct {
	planner  *planner.Planner
	engine   *build.Engine
	registry *tool.Registry
}

func newGoalExecutor(p *planner.Planner, e *build.Engine, r *tool.Registry) *goalExecutor {
	return &goalExecutor{planner: p, engine: e, registry: r}
}

func (g *goalExecutor) RunIteration(ctx context.Context, in agent.IterationInput) (agent.IterationOutput, error) {
	planResult, err := g.planner.Run(ctx, in.Goal)
	if err != nil {
		return agent.IterationOutput{}, err
	}

	var reasoningSteps []string
	var toolCalls []agent.ToolCall
	confidenceSum, confidenceCount := 0.0, 0
	for _, step := range planResult.Steps {
		if step.Reasoning != "" {
			reasoningSteps = append(reasoningSteps, step.Reasoning)
		}
		if step.Confidence != nil {
			confidenceSum += *step.Confidence
			confidenceCount++
		}
		if step.FilePath != "" {
			toolCalls = append(toolCalls, agent.ToolCall{
				Name:      fileOperationToolName(step.OperationType),
				Reasoning: step.Description,
				Parameters: map[string]string{
					"path": step.FilePath,
				},
			})
		}
	}
	if len(reasoningSteps) < 2 {
		reasoningSteps = append(reasoningSteps, fmt.Sprintf("planned %d file operation(s) for %q", len(planResult.Operations), in.Goal))
	}

	selfConfidence := 0.7
	if confidenceCount > 0 {
		selfConfidence = confidenceSum / float64(confidenceCount)
	}

	plan := build.NewBuildPlan(in.Goal, "incremental build plan", planResult.Operations, g.engine.ProjectRoot)
	buildResult, applyErr := g.engine.Apply(plan)

	completed := 0
	if buildResult != nil {
		completed = buildResult.OperationsCompleted
	}
	response := fmt.Sprintf("applied %d/%d planned file operation(s) for %q", completed, len(planResult.Operations), in.Goal)
	if applyErr != nil {
		return agent.IterationOutput{
			ReasoningSteps: reasoningSteps,
			ToolCalls:      toolCalls,
			Response:       response,
			SelfConfidence: selfConfidence,
		}, applyErr
	}

	return agent.IterationOutput{
		ReasoningSteps: reasoningSteps,
		ToolCalls:      toolCalls,
		Response:       response,
		SelfConfidence: selfConfidence,
	}, nil
}

// fileOperationToolName maps a planner operation kind to the closest
// registered tool name, purely for the agent controller's telemetry —
// the build engine itself performs the filesystem mutation directly, not
// through the tool registry.
func fileOperationToolName(kind build.OperationKind) string {
	switch kind {
	case build.Create, build.Update:
		return "file_write"
	case build.Delete:
		return "file_write"
	case build.Read:
		return "file_read"
	default:
		return "file_write"
	}
}
