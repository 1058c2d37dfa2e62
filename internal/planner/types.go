// Package planner implements C4: the incremental build planner. It turns a
// free-form goal into a sequence of IncrementalPlanSteps and buffered
// build.FileOperations by walking a small state machine — Analyzing,
// PlanningOperations, GeneratingCode (one file at a time), Finalizing,
// Complete — driven by an llm.LLMProvider collaborator.
package planner

import (
	"github.com/vibecli/vibe-core/internal/build"
)

// State is the closed set of planner states (spec §4.4).
type State int

const (
	Initial State = iota
	Analyzing
	PlanningOperations
	GeneratingCode
	Finalizing
	Complete
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case Analyzing:
		return "analyzing"
	case PlanningOperations:
		return "planning_operations"
	case GeneratingCode:
		return "generating_code"
	case Finalizing:
		return "finalizing"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// IncrementalPlanStep is one unit of planner output, emitted as the state
// machine advances. Not every field is populated at every state: code_chunk
// and file_path only appear once GeneratingCode starts producing files.
type IncrementalPlanStep struct {
	StepNumber    int
	Description   string
	Reasoning     string
	CodeChunk     string // full file content for this step, if any
	FilePath      string
	OperationType build.OperationKind
	Confidence    *float64
}

// FileAction is a planner-discovered (path, action) pair for GeneratingCode,
// before the action has been corrected against the live filesystem.
type FileAction struct {
	Path   string
	Action build.OperationKind
}

// Result is the complete output of a run: every step emitted, the buffered
// file operations ready for build.Engine, and the state the machine ended
// in (always Complete on success).
type Result struct {
	Steps      []IncrementalPlanStep
	Operations []build.FileOperation
	EndState   State
}
