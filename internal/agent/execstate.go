package agent

import (
	"time"

	"github.com/vibecli/vibe-core/internal/llm"
	"github.com/vibecli/vibe-core/internal/tool"
)

// AgentContext is the bounded-agent-controller's view of the world for one
// invocation: which tools it may call, the conversation so far, and a
// scratch space for anything an IterationExecutor wants to carry between
// iterations without threading it through every return value.
type AgentContext struct {
	AvailableTools      []string
	ConversationHistory []llm.Message
	WorkingMemory       map[string]any
}

// NewAgentContext returns an AgentContext with an initialized WorkingMemory
// map, ready to receive entries.
func NewAgentContext(availableTools []string) *AgentContext {
	return &AgentContext{AvailableTools: availableTools, WorkingMemory: make(map[string]any)}
}

// ToolCall is one tool invocation an iteration decided to make, including
// the reasoning that led to it (kept distinct from llm.ToolCall, whose
// Arguments are raw JSON for the wire format — this is the controller's
// post-decision record).
type ToolCall struct {
	ID         string
	Name       string
	Parameters map[string]string
	Reasoning  string
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	ToolCallID string
	Success    bool
	ResultValue string
	Error      string
}

// VerificationStatus is the closed tag for VerificationResult.
type VerificationStatus int

const (
	VerificationPassed VerificationStatus = iota
	VerificationFailed
	VerificationInconclusive
)

// VerificationResult is the tagged variant from the data model. Only the
// fields relevant to Status are meaningful; the others are zero.
type VerificationResult struct {
	Status       VerificationStatus
	Confidence   float64  // Passed
	Checks       []string // Passed: which checks ran
	Reason       string   // Failed, Inconclusive
	FailedChecks []string // Failed
}

// ConvergenceMetrics summarizes how an agent run is trending across
// iterations, per the exact formulas in spec §4.5.
type ConvergenceMetrics struct {
	IterationStability float64 // 1 - |Δconfidence| between the last two iterations
	ConfidenceTrend     float64 // mean confidence of the last ≤3 iterations
	GoalProgressScore   float64 // weighted blend of tool/reasoning/confidence signals
}

// IterationRecord is the full record of one loop iteration, appended to
// AgentExecutionState.ExecutionHistory regardless of outcome.
type IterationRecord struct {
	IterationNumber       int
	ReasoningSteps        []string
	ToolCalls             []ToolCall
	ToolResults           []ToolResult
	VerificationResult    *VerificationResult
	ExecutionTime         time.Duration
	Success               bool
	MemoryPeakBytes       int64
	ConfidenceScore       float64
	ConvergenceIndicators ConvergenceMetrics
	ResourceUsage         tool.ResourceUsage
}

// AgentExecutionState is the controller's running state for one invocation
// of the bounded agent loop (spec §4.5). All fields are touched only from
// the single goroutine driving Run.
type AgentExecutionState struct {
	IterationCount      int
	TotalToolsExecuted  int
	StartTime           time.Time
	ExecutionHistory    []IterationRecord
	FailureCount        int
	RecoveryAttempts    int
	ResourceUsageStats  tool.ResourceUsage
	ConvergenceMetrics  ConvergenceMetrics

	MaxIterationsAllowed   int
	ConvergenceThreshold   float64
	TimeBoundsPerIteration time.Duration
}

// AgentResult is the final output of a bounded agent run.
type AgentResult struct {
	FinalResponse   string
	ConfidenceScore float64
	History         []IterationRecord
}
