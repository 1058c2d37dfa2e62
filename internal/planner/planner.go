package planner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/vibecli/vibe-core/internal/build"
	"github.com/vibecli/vibe-core/internal/config"
	"github.com/vibecli/vibe-core/internal/llm"
	"github.com/vibecli/vibe-core/internal/vibeerr"
)

// defaultMaxFilesInContext caps how many files' previews go into the
// Analyzing prompt.
const defaultMaxFilesInContext = 12

// defaultTokenBudget bounds BuildContextSummary's output.
const defaultTokenBudget = 4000

// inspectionVerbs mark a goal as wanting to look at existing code, not
// just write new files — file content is only loaded into context when
// one of these appears.
var inspectionVerbPattern = regexp.MustCompile(`(?i)\b(read|show|debug|trace|fix|search|analyze|inspect|review|explain)\b`)

// Planner drives the Initial -> Analyzing -> PlanningOperations ->
// GeneratingCode -> Finalizing -> Complete state machine for one goal.
type Planner struct {
	LLM                 llm.LLMProvider
	WorkspaceRoot       string
	MaxFilesInContext   int
	MaxFilePreviewLines int
	// SystemContext is folded into the Analyzing prompt so the LLM grounds
	// its analysis in the actual host instead of guessing. Zero value is
	// fine — Compact() on a zero SystemContext renders the field names with
	// empty values, which still beats silently omitting the line.
	SystemContext config.SystemContext
	state         State
}

// New constructs a Planner bound to workspaceRoot, using provider as the
// external inference collaborator (spec §6's generate/generate_streaming).
func New(provider llm.LLMProvider, workspaceRoot string) *Planner {
	return &Planner{
		LLM:                 provider,
		WorkspaceRoot:       workspaceRoot,
		MaxFilesInContext:   defaultMaxFilesInContext,
		MaxFilePreviewLines: 200,
		SystemContext:       config.GatherSystemContext(),
		state:               Initial,
	}
}

// State returns the planner's current state.
func (p *Planner) State() State { return p.state }

// Run drives the full state machine for goal and returns every emitted
// step plus the buffered file operations.
func (p *Planner) Run(ctx context.Context, goal string) (*Result, error) {
	result := &Result{}
	step := 1

	p.state = Analyzing
	relevant := p.discoverRelevantFiles(ctx, goal)
	analysis, confidence, err := p.analyze(ctx, goal, relevant)
	if err != nil {
		return nil, vibeerr.New(vibeerr.KindExecution, "planner.analyze", err)
	}
	result.Steps = append(result.Steps, IncrementalPlanStep{
		StepNumber: step, Description: "analyze goal", Reasoning: analysis, Confidence: &confidence,
	})
	step++

	p.state = PlanningOperations
	actions, planConfidence, err := p.planOperations(ctx, goal, analysis, relevant)
	if err != nil {
		return nil, vibeerr.New(vibeerr.KindExecution, "planner.plan_operations", err)
	}
	result.Steps = append(result.Steps, IncrementalPlanStep{
		StepNumber: step, Description: "plan file operations", Reasoning: summarizeActions(actions), Confidence: &planConfidence,
	})
	step++

	p.state = GeneratingCode
	actions = p.correctActions(actions)
	if len(actions) == 0 {
		actions, err = p.fallbackDiscovery(ctx, goal)
		if err != nil {
			return nil, vibeerr.New(vibeerr.KindExecution, "planner.fallback_discovery", err)
		}
	}

	for _, action := range actions {
		genStep, op, err := p.generateFile(ctx, goal, action, step)
		if err != nil {
			return nil, vibeerr.New(vibeerr.KindExecution, "planner.generate_file:"+action.Path, err)
		}
		result.Steps = append(result.Steps, genStep)
		result.Operations = append(result.Operations, op)
		step++
	}

	p.state = Finalizing
	result.Steps = append(result.Steps, IncrementalPlanStep{
		StepNumber:  step,
		Description: fmt.Sprintf("finalized plan for %q: %d file operation(s)", goal, len(result.Operations)),
	})
	p.state = Complete
	result.EndState = Complete
	return result, nil
}

// discoverRelevantFiles combines explicit-path extraction, keyword search
// and (if nothing else fires) the fallback entry-point scan, capped at
// MaxFilesInContext, and only returns anything when the goal contains an
// inspection verb — a pure "create X" goal needs no existing context.
func (p *Planner) discoverRelevantFiles(ctx context.Context, goal string) []string {
	if !inspectionVerbPattern.MatchString(goal) {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	add := func(paths []string) {
		for _, path := range paths {
			if len(out) >= p.MaxFilesInContext {
				return
			}
			if seen[path] {
				continue
			}
			seen[path] = true
			out = append(out, path)
		}
	}
	add(ExtractExplicitPaths(goal))
	add(KeywordSearch(ctx, p.WorkspaceRoot, goal))
	return out
}

// analyze asks the LLM for a short analysis of the goal given the
// discovered file context, returning a base-0.8 confidence per spec.
func (p *Planner) analyze(ctx context.Context, goal string, relevant []string) (string, float64, error) {
	contextSummary := BuildContextSummary(relevant, p.WorkspaceRoot, defaultTokenBudget)
	prompt := fmt.Sprintf(
		"System: %s\n\nGoal: %s\n\nRelevant files:\n%s\nIn 2-3 sentences, analyze what this goal requires.",
		p.SystemContext.Compact(), goal, orNone(contextSummary),
	)
	msg, err := p.LLM.CallLLM(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return "", 0, err
	}
	return strings.TrimSpace(msg.Content), 0.8, nil
}

// planOperations asks the LLM for a fixed FILE:/ACTION:/REASON: response
// and parses it into FileActions, with base-0.7 confidence per spec.
func (p *Planner) planOperations(ctx context.Context, goal, analysis string, relevant []string) ([]FileAction, float64, error) {
	prompt := fmt.Sprintf(
		"Goal: %s\nAnalysis: %s\n\nList the file operations needed, one per line, in this exact format:\n"+
			"FILE: <relative path>\nACTION: create|update|delete\nREASON: <short reason>\n",
		goal, analysis,
	)
	msg, err := p.LLM.CallLLM(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return nil, 0, err
	}
	return parseFileActions(msg.Content), 0.7, nil
}

var (
	fileLinePattern   = regexp.MustCompile(`(?i)^FILE:\s*(.+)$`)
	actionLinePattern = regexp.MustCompile(`(?i)^ACTION:\s*(create|update|delete)\s*$`)
)

// parseFileActions reads the fixed FILE:/ACTION:/REASON: format, ignoring
// REASON lines and tolerating unknown/garbled ACTION lines by skipping
// that FILE entry.
func parseFileActions(response string) []FileAction {
	var out []FileAction
	var pendingPath string
	for _, line := range strings.Split(response, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := fileLinePattern.FindStringSubmatch(trimmed); m != nil {
			pendingPath = strings.TrimSpace(m[1])
			continue
		}
		if m := actionLinePattern.FindStringSubmatch(trimmed); m != nil && pendingPath != "" {
			out = append(out, FileAction{Path: pendingPath, Action: build.OperationKind(strings.ToLower(m[1]))})
			pendingPath = ""
		}
	}
	return out
}

func summarizeActions(actions []FileAction) string {
	if len(actions) == 0 {
		return "no file operations discovered"
	}
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = fmt.Sprintf("%s %s", a.Action, a.Path)
	}
	return strings.Join(parts, "; ")
}

// correctActions checks each discovered action against the live
// filesystem: update against an absent file becomes create, and create
// against an existing file becomes update. Unknown action kinds are
// dropped.
func (p *Planner) correctActions(actions []FileAction) []FileAction {
	var out []FileAction
	for _, a := range actions {
		switch a.Action {
		case build.Create, build.Update, build.Delete:
		default:
			continue // unknown action, drop with implicit warning (logged by caller if desired)
		}
		exists := fileExistsUnder(p.WorkspaceRoot, a.Path)
		switch {
		case a.Action == build.Update && !exists:
			a.Action = build.Create
		case a.Action == build.Create && exists:
			a.Action = build.Update
		}
		out = append(out, a)
	}
	return out
}

func fileExistsUnder(root, rel string) bool {
	info, err := os.Stat(filepath.Join(root, rel))
	return err == nil && !info.IsDir()
}

// fallbackDiscovery is used when planOperations discovers nothing at all:
// it asks the LLM to infer the minimal runnable set of files for goal,
// treating every result as a Create (there is nothing to update, by
// definition, if no file was otherwise named).
func (p *Planner) fallbackDiscovery(ctx context.Context, goal string) ([]FileAction, error) {
	prompt := fmt.Sprintf(
		"Goal: %s\n\nNo existing files were found relevant to this goal. "+
			"List the minimal set of new files needed to accomplish it, one per line, as:\nFILE: <relative path>\n",
		goal,
	)
	msg, err := p.LLM.CallLLM(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return nil, err
	}
	var out []FileAction
	for _, line := range strings.Split(msg.Content, "\n") {
		if m := fileLinePattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			out = append(out, FileAction{Path: strings.TrimSpace(m[1]), Action: build.Create})
		}
	}
	return out, nil
}

// generateFile asks the LLM for a file's content (full content for
// Create, a diff-format rewrite for Update applied via
// ApplyDiffDirectives) and returns the resulting plan step and buffered
// FileOperation.
func (p *Planner) generateFile(ctx context.Context, goal string, action FileAction, stepNumber int) (IncrementalPlanStep, build.FileOperation, error) {
	switch action.Action {
	case build.Create:
		prompt := fmt.Sprintf("Goal: %s\n\nWrite the full content of new file %q.", goal, action.Path)
		msg, err := p.LLM.CallLLM(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
		if err != nil {
			return IncrementalPlanStep{}, build.FileOperation{}, err
		}
		content := extractFileContent(msg.Content, action.Path)
		step := IncrementalPlanStep{
			StepNumber: stepNumber, Description: "create " + action.Path,
			CodeChunk: content, FilePath: action.Path, OperationType: build.Create,
		}
		return step, build.FileOperation{Kind: build.Create, Path: action.Path, Content: content}, nil

	case build.Update:
		original := readFileOrEmpty(filepath.Join(p.WorkspaceRoot, action.Path))
		prompt := fmt.Sprintf(
			"Goal: %s\n\nCurrent content of %q (line-numbered not shown, 1-indexed):\n%s\n\n"+
				"Respond with either \"NO CHANGES REQUIRED\" or one or more directives of the form:\n"+
				"REPLACE lines X-Y with:\n<content>\n\nINSERT after line Z:\n<content>\n\nDELETE lines A-B\n",
			goal, action.Path, original,
		)
		msg, err := p.LLM.CallLLM(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
		if err != nil {
			return IncrementalPlanStep{}, build.FileOperation{}, err
		}
		updated := ApplyDiffDirectives(original, msg.Content)
		step := IncrementalPlanStep{
			StepNumber: stepNumber, Description: "update " + action.Path,
			CodeChunk: updated, FilePath: action.Path, OperationType: build.Update,
		}
		return step, build.FileOperation{Kind: build.Update, Path: action.Path, Content: updated, OldContent: original}, nil

	case build.Delete:
		step := IncrementalPlanStep{
			StepNumber: stepNumber, Description: "delete " + action.Path,
			FilePath: action.Path, OperationType: build.Delete,
		}
		return step, build.FileOperation{Kind: build.Delete, Path: action.Path}, nil

	default:
		return IncrementalPlanStep{}, build.FileOperation{}, fmt.Errorf("unsupported action %q for %s", action.Action, action.Path)
	}
}

func readFileOrEmpty(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(content)
}

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z0-9_+-]*\\n(.*)\\n```\\s*$")

// stripFences removes a single enclosing markdown code fence, if present.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return trimmed
}

// extractFileContent prefers a build-plan fence addressed to path (the
// file:path=...;action=... format from §6, which disambiguates path and
// action instead of assuming the whole response is one file) and falls
// back to stripping a generic markdown code fence when the response
// doesn't use that format.
func extractFileContent(response, path string) string {
	for _, op := range build.ParseFences(response) {
		if op.Path == path {
			return op.Content
		}
	}
	return stripFences(response)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

// confidenceString formats a *float64 confidence for logging; unused
// fields print as "n/a".
func confidenceString(c *float64) string {
	if c == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*c, 'f', 2, 64)
}
