package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vibecli/vibe-core/internal/tool"
)

// dangerousGitArgs blocks git-level write/escape flags. Shell metacharacters
// are not listed: the enforcer runs git via exec.Command without a shell, so
// they are passed as literal argv entries and pose no injection risk.
var dangerousGitArgs = []string{
	"--exec", "--upload-pack", "--receive-pack",
	"--output", "--output-directory",
	"--no-index", "--work-tree", "--git-dir",
}

func isDangerousGitArg(token string) bool {
	lower := strings.ToLower(token)
	if strings.HasPrefix(lower, "-c") && !strings.HasPrefix(lower, "--") {
		return true
	}
	for _, bad := range dangerousGitArgs {
		if lower == bad || strings.HasPrefix(lower, bad+"=") {
			return true
		}
	}
	return false
}

func splitGitArgs(args string) []string {
	trimmed := strings.TrimSpace(args)
	if trimmed == "" {
		return nil
	}
	return strings.Fields(trimmed)
}

func runGit(ctx context.Context, enforcer *tool.Enforcer, workspaceDir string, cmdArgs []string) (tool.ToolOutput, error) {
	res, err := enforcer.Run(ctx, tool.ResourceLimits{MaxExecutionTime: 10 * time.Second, MaxOutputSize: 256 << 10, MaxProcesses: 1}, tool.CommandSpec{
		Name: "git",
		Args: cmdArgs,
		Dir:  workspaceDir,
		Env:  tool.HostEnv(),
	})
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: err.Error()}, err
	}
	exit := res.ExitCode
	return tool.ToolOutput{Success: res.ExitCode == 0, Stdout: res.Stdout, ExitCode: &exit}, nil
}

func gitSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "path", Type: "string", Description: "Optional: scope the command to this path (e.g. internal/agent/)", Required: false},
		tool.SchemaParam{Name: "args", Type: "string", Description: "Optional: additional whitespace-separated arguments", Required: false},
	)
}

func validateGitArgs(args tool.ToolArgs) error {
	for _, token := range splitGitArgs(args.GetOr("args", "")) {
		if isDangerousGitArg(token) {
			return fmt.Errorf("argument %q is blocked", token)
		}
	}
	return nil
}

// ── git_status ──

type GitStatusTool struct {
	workspaceDir string
	enforcer     *tool.Enforcer
}

func NewGitStatusTool(workspaceDir string, enforcer *tool.Enforcer) *GitStatusTool {
	return &GitStatusTool{workspaceDir: workspaceDir, enforcer: enforcer}
}

func (t *GitStatusTool) Name() string                    { return "git_status" }
func (t *GitStatusTool) Description() string              { return "Show the working tree status (git status --short)." }
func (t *GitStatusTool) InputSchema() json.RawMessage     { return gitSchema() }
func (t *GitStatusTool) Init(_ context.Context) error     { return nil }
func (t *GitStatusTool) Close() error                     { return nil }
func (t *GitStatusTool) Validate(args tool.ToolArgs) error { return validateGitArgs(args) }
func (t *GitStatusTool) ResourceLimits() tool.ResourceLimits {
	return tool.ResourceLimits{MaxExecutionTime: 10 * time.Second, MaxOutputSize: 256 << 10, MaxProcesses: 1}
}

func (t *GitStatusTool) Execute(ctx context.Context, args tool.ToolArgs) (tool.ToolOutput, error) {
	userArgs := splitGitArgs(args.GetOr("args", ""))
	var cmdArgs []string
	if len(userArgs) > 0 {
		cmdArgs = append([]string{"status"}, userArgs...)
	} else {
		cmdArgs = []string{"status", "--short"}
	}
	if p := strings.TrimSpace(args.GetOr("path", "")); p != "" {
		cmdArgs = append(cmdArgs, "--", p)
	}
	return runGit(ctx, t.enforcer, t.workspaceDir, cmdArgs)
}

// ── git_diff ──

type GitDiffTool struct {
	workspaceDir string
	enforcer     *tool.Enforcer
}

func NewGitDiffTool(workspaceDir string, enforcer *tool.Enforcer) *GitDiffTool {
	return &GitDiffTool{workspaceDir: workspaceDir, enforcer: enforcer}
}

func (t *GitDiffTool) Name() string                    { return "git_diff" }
func (t *GitDiffTool) Description() string              { return "Show changes between commits, the working tree, and the index." }
func (t *GitDiffTool) InputSchema() json.RawMessage     { return gitSchema() }
func (t *GitDiffTool) Init(_ context.Context) error     { return nil }
func (t *GitDiffTool) Close() error                     { return nil }
func (t *GitDiffTool) Validate(args tool.ToolArgs) error { return validateGitArgs(args) }
func (t *GitDiffTool) ResourceLimits() tool.ResourceLimits {
	return tool.ResourceLimits{MaxExecutionTime: 10 * time.Second, MaxOutputSize: 256 << 10, MaxProcesses: 1}
}

func (t *GitDiffTool) Execute(ctx context.Context, args tool.ToolArgs) (tool.ToolOutput, error) {
	userArgs := splitGitArgs(args.GetOr("args", ""))
	var cmdArgs []string
	if len(userArgs) > 0 {
		cmdArgs = append([]string{"diff"}, userArgs...)
	} else {
		cmdArgs = []string{"diff", "--stat"}
	}
	if p := strings.TrimSpace(args.GetOr("path", "")); p != "" {
		cmdArgs = append(cmdArgs, "--", p)
	}
	return runGit(ctx, t.enforcer, t.workspaceDir, cmdArgs)
}

// ── git_log ──

type GitLogTool struct {
	workspaceDir string
	enforcer     *tool.Enforcer
}

func NewGitLogTool(workspaceDir string, enforcer *tool.Enforcer) *GitLogTool {
	return &GitLogTool{workspaceDir: workspaceDir, enforcer: enforcer}
}

func (t *GitLogTool) Name() string                    { return "git_log" }
func (t *GitLogTool) Description() string              { return "Show commit history (git log --oneline)." }
func (t *GitLogTool) InputSchema() json.RawMessage     { return gitSchema() }
func (t *GitLogTool) Init(_ context.Context) error     { return nil }
func (t *GitLogTool) Close() error                     { return nil }
func (t *GitLogTool) Validate(args tool.ToolArgs) error { return validateGitArgs(args) }
func (t *GitLogTool) ResourceLimits() tool.ResourceLimits {
	return tool.ResourceLimits{MaxExecutionTime: 10 * time.Second, MaxOutputSize: 256 << 10, MaxProcesses: 1}
}

func (t *GitLogTool) Execute(ctx context.Context, args tool.ToolArgs) (tool.ToolOutput, error) {
	userArgs := splitGitArgs(args.GetOr("args", ""))
	var cmdArgs []string
	if len(userArgs) > 0 {
		cmdArgs = append([]string{"log"}, userArgs...)
	} else {
		cmdArgs = []string{"log", "--oneline", "-20"}
	}
	if p := strings.TrimSpace(args.GetOr("path", "")); p != "" {
		cmdArgs = append(cmdArgs, "--", p)
	}
	return runGit(ctx, t.enforcer, t.workspaceDir, cmdArgs)
}
