package build

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/vibecli/vibe-core/internal/vibeerr"
)

// ConfirmationMode selects how the engine gates a plan before executing it.
type ConfirmationMode string

const (
	// Interactive confirms each operation individually; the default
	// answer is yes when the operation's risk is Medium or lower.
	Interactive ConfirmationMode = "interactive"
	// ConfirmAll asks once for the whole plan.
	ConfirmAll ConfirmationMode = "confirm_all"
	// None skips confirmation entirely (e.g. CI or --yes runs).
	None ConfirmationMode = "none"
)

// Confirmer is the external collaborator that turns a prompt into a
// yes/no decision. The CLI's terminal prompt is the production
// implementation; AutoConfirmer below is the fallback when none is given.
type Confirmer interface {
	Confirm(prompt string, defaultYes bool) bool
}

// AutoConfirmer always returns Answer, without prompting anyone. NewEngine
// uses it (answering no) when no Confirmer is supplied; ConfirmationMode
// None never consults a Confirmer at all.
type AutoConfirmer struct{ Answer bool }

func (a AutoConfirmer) Confirm(string, bool) bool { return a.Answer }

// Result summarizes what Apply / ExecuteOperationOnce / ExecuteGraph did.
// CommitHash is set only when AutoCommit is enabled and the commit
// succeeded (spec §7: "optional VCS commit hash" in the success summary).
type Result struct {
	OperationsCompleted int
	RolledBack          bool
	Errors              []string
	CommitHash          string
}

// Engine is C3, the transactional build engine. One Engine is bound to a
// single workspace/project root pair for its lifetime.
type Engine struct {
	WorkspaceRoot string
	ProjectRoot   string
	DryRun        bool
	ConfirmMode   ConfirmationMode
	DiffPreview   bool
	Verbose       bool

	// AutoCommit, when set, commits every successful Apply/ExecuteGraph run
	// to the local git repository rooted at WorkspaceRoot with a
	// synthesized message (spec §4.3 step 4). Disabled by default: the
	// spec names this step optional, and committing on every run surprises
	// anyone driving the engine from a repo they're actively working in.
	AutoCommit bool

	Pending []FileOperation
	Graph   *OperationGraph

	confirmer Confirmer
}

// NewEngine constructs an Engine. confirmer may be nil, in which case
// ConfirmationMode Interactive/ConfirmAll fall back to auto-deny (the
// safest default when no one is there to ask).
func NewEngine(workspaceRoot, projectRoot string, mode ConfirmationMode, confirmer Confirmer) *Engine {
	if confirmer == nil {
		confirmer = AutoConfirmer{Answer: false}
	}
	return &Engine{
		WorkspaceRoot: workspaceRoot,
		ProjectRoot:   projectRoot,
		ConfirmMode:   mode,
		Graph:         NewOperationGraph(),
		confirmer:     confirmer,
	}
}

// EnforceProjectScope filters out every operation whose path escapes
// ProjectRoot (risk Critical-by-escape), returning the sanitized list and
// a human-readable warning per dropped operation. It never mutates ops.
func (e *Engine) EnforceProjectScope(ops []FileOperation) (sanitized []FileOperation, warnings []string) {
	for _, op := range ops {
		if escapesRoot(op.Path, e.ProjectRoot) {
			warnings = append(warnings, fmt.Sprintf("dropped %s: path escapes project root", op))
			continue
		}
		sanitized = append(sanitized, op)
	}
	return sanitized, warnings
}

// PreviewPlan renders a human-readable summary of plan: one line per
// operation (risk + kind + path), with a truncated content preview and
// line-count diff for Updates when e.DiffPreview is set.
func (e *Engine) PreviewPlan(plan *BuildPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "plan %q (risk: %s, %d operations)\n", plan.Goal, plan.EstimatedRisk, len(plan.Operations))
	for _, op := range plan.Operations {
		risk := AssessRisk(op, e.ProjectRoot)
		fmt.Fprintf(&b, "  [%s] %s %s\n", risk, op.Kind, op.Path)
		if e.DiffPreview {
			switch op.Kind {
			case Create:
				fmt.Fprintf(&b, "      + %s\n", previewContent(op.Content))
			case Update:
				fmt.Fprintf(&b, "      %s\n", lineDiffSummary(op.OldContent, op.Content))
			}
		}
	}
	return b.String()
}

// previewContent strips fenced-code markers and truncates to 200 runes,
// matching the plan-preview truncation the spec calls for.
func previewContent(content string) string {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 && strings.HasPrefix(content, "```") {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	r := []rune(trimmed)
	if len(r) > 200 {
		return string(r[:200]) + "…"
	}
	return trimmed
}

// lineDiffSummary reports how many lines an update adds/removes, without
// computing a full diff.
func lineDiffSummary(oldContent, newContent string) string {
	oldLines := strings.Count(oldContent, "\n") + 1
	newLines := strings.Count(newContent, "\n") + 1
	delta := newLines - oldLines
	switch {
	case delta > 0:
		return fmt.Sprintf("~ %d -> %d lines (+%d)", oldLines, newLines, delta)
	case delta < 0:
		return fmt.Sprintf("~ %d -> %d lines (%d)", oldLines, newLines, delta)
	default:
		return fmt.Sprintf("~ %d lines, no line-count change", oldLines)
	}
}

// ConfirmPlan consults e.confirmer per e.ConfirmMode. Interactive asks
// once per operation, defaulting to yes when that operation's risk is
// Medium or lower; ConfirmAll asks once for the whole plan; None always
// proceeds.
func (e *Engine) ConfirmPlan(plan *BuildPlan) bool {
	switch e.ConfirmMode {
	case None:
		return true
	case ConfirmAll:
		return e.confirmer.Confirm(fmt.Sprintf("apply plan %q (%d operations, risk %s)?", plan.Goal, len(plan.Operations), plan.EstimatedRisk), plan.EstimatedRisk <= Medium)
	case Interactive:
		for _, op := range plan.Operations {
			risk := AssessRisk(op, e.ProjectRoot)
			if !e.confirmer.Confirm(fmt.Sprintf("[%s] %s %s?", risk, op.Kind, op.Path), risk <= Medium) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Apply runs the two-phase commit protocol for a whole plan: every
// operation is validated and applied to a single Transaction; the first
// failure triggers a full rollback and an error result; success commits
// the transaction once, for every operation in the plan.
func (e *Engine) Apply(plan *BuildPlan) (*Result, error) {
	tx := NewTransaction(e.WorkspaceRoot)
	result, scoped, err := e.applyPlan(tx, plan)
	if err != nil {
		return result, err
	}
	if e.DryRun {
		return result, nil
	}
	tx.Commit()
	e.autoCommit(scoped, result)
	return result, nil
}

// applyPlan sanitizes and confirms plan, then stages its operations onto
// tx without committing or rolling it back on success — the caller
// decides when the transaction as a whole is done. On the first failed
// operation it rolls tx back immediately (undoing every operation staged
// on it so far, from this plan or an earlier one sharing the same tx) and
// returns the error. Returns the scoped plan alongside the result so
// callers can synthesize a commit message from what actually ran.
func (e *Engine) applyPlan(tx *Transaction, plan *BuildPlan) (*Result, *BuildPlan, error) {
	sanitized, warnings := e.EnforceProjectScope(plan.Operations)
	for _, w := range warnings {
		log.Printf("[build] %s", w)
	}
	scoped := NewBuildPlan(plan.Goal, plan.Description, sanitized, e.ProjectRoot)

	if e.DryRun {
		return &Result{OperationsCompleted: 0}, scoped, nil
	}
	if !e.ConfirmPlan(scoped) {
		return nil, scoped, vibeerr.Newf(vibeerr.KindSecurity, "build.apply", "plan not confirmed")
	}

	result := &Result{}
	for _, op := range sanitized {
		if err := tx.Apply(op); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				result.Errors = append(result.Errors, rbErr.Error())
			}
			result.RolledBack = true
			result.Errors = append(result.Errors, err.Error())
			return result, scoped, vibeerr.New(vibeerr.KindExecution, "build.apply", err)
		}
		result.OperationsCompleted++
	}
	return result, scoped, nil
}

// ExecuteOperationOnce applies a single FileOperation under its own
// transaction, independent of any pending plan or graph.
func (e *Engine) ExecuteOperationOnce(op FileOperation) (*Result, error) {
	return e.Apply(NewBuildPlan("single operation", op.String(), []FileOperation{op}, e.ProjectRoot))
}

// ExecuteGraph validates e.Graph, then stages every node's file operations
// in topological order onto one Transaction shared across the whole run.
// A failure at any node rolls that single Transaction back, which undoes
// every earlier node's mutations too — the graph run commits atomically,
// as one build, matching §4.3's "wrap every complex op's file operations
// in the same transaction" and the atomic-rollback invariant (§8.ii).
func (e *Engine) ExecuteGraph() (*Result, error) {
	if err := e.Graph.ValidateAndOrder(e.WorkspaceRoot); err != nil {
		return nil, err
	}
	order, err := e.Graph.Order()
	if err != nil {
		return nil, err
	}

	tx := NewTransaction(e.WorkspaceRoot)
	result := &Result{}
	var allOps []FileOperation
	for _, name := range order {
		node, _ := e.Graph.Get(name)
		plan := NewBuildPlan(node.Name, node.Description, node.FileOperations, e.ProjectRoot)
		nodeResult, scoped, err := e.applyPlan(tx, plan)
		if nodeResult != nil {
			result.OperationsCompleted += nodeResult.OperationsCompleted
			result.Errors = append(result.Errors, nodeResult.Errors...)
			result.RolledBack = result.RolledBack || nodeResult.RolledBack
		}
		if err != nil {
			return result, vibeerr.New(vibeerr.KindExecution, "build.graph:"+name, err)
		}
		if scoped != nil {
			allOps = append(allOps, scoped.Operations...)
		}
	}
	if e.DryRun {
		return result, nil
	}
	tx.Commit()
	e.autoCommit(NewBuildPlan("graph execution", fmt.Sprintf("%d nodes", len(order)), allOps, e.ProjectRoot), result)
	return result, nil
}

// vcsCommitTimeout bounds how long an auto-commit's git invocations may run.
const vcsCommitTimeout = 10 * time.Second

// CommitMessage synthesizes the commit message for plan, in the same
// shape the original build service used: a one-line summary followed by
// the operation list, one per line.
func CommitMessage(plan *BuildPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "build: %s\n\napplied %d operation", plan.Goal, len(plan.Operations))
	if len(plan.Operations) != 1 {
		b.WriteByte('s')
	}
	b.WriteString(" via vibe_cli\n\n")
	for _, op := range plan.Operations {
		fmt.Fprintf(&b, "- %s\n", op)
	}
	return b.String()
}

// autoCommit runs the optional local-VCS commit step for a successful
// apply, logging (never failing the build) on any error: a git problem
// must never undo mutations that already landed on disk.
func (e *Engine) autoCommit(plan *BuildPlan, result *Result) {
	if !e.AutoCommit || result == nil || len(plan.Operations) == 0 {
		return
	}
	hash, err := e.commitToVCS(plan)
	if err != nil {
		log.Printf("[build] vcs commit skipped: %v", err)
		return
	}
	result.CommitHash = hash
}

// commitToVCS stages the working tree and commits it to the local git
// repository rooted at WorkspaceRoot, if one exists, returning the new
// commit's hash. Not finding a .git directory is not an error: it just
// means there is nothing to commit to.
func (e *Engine) commitToVCS(plan *BuildPlan) (string, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return "", fmt.Errorf("git not available: %w", err)
	}
	gitDir := filepath.Join(e.WorkspaceRoot, ".git")
	if _, err := os.Stat(gitDir); err != nil {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), vcsCommitTimeout)
	defer cancel()

	add := exec.CommandContext(ctx, "git", "add", "-A")
	add.Dir = e.WorkspaceRoot
	if out, err := add.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git add: %w (%s)", err, strings.TrimSpace(string(out)))
	}

	commit := exec.CommandContext(ctx, "git", "commit", "--no-gpg-sign",
		"--author", "vibe_cli <agent@vibe.local>", "-m", CommitMessage(plan))
	commit.Dir = e.WorkspaceRoot
	if out, err := commit.CombinedOutput(); err != nil {
		if strings.Contains(string(out), "nothing to commit") {
			return "", nil
		}
		return "", fmt.Errorf("git commit: %w (%s)", err, strings.TrimSpace(string(out)))
	}

	rev := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	rev.Dir = e.WorkspaceRoot
	out, err := rev.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
