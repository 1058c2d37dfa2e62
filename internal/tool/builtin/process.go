package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vibecli/vibe-core/internal/tool"
)

// ProcessListTool shells out to ps to report running processes, scoped to
// the current user by default (-ef is never used, it leaks every user's
// process table on a shared host).
type ProcessListTool struct {
	enforcer *tool.Enforcer
}

func NewProcessListTool(enforcer *tool.Enforcer) *ProcessListTool {
	return &ProcessListTool{enforcer: enforcer}
}

func (t *ProcessListTool) Name() string        { return "process_list" }
func (t *ProcessListTool) Description() string { return "List running processes for the current user." }

func (t *ProcessListTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "filter", Type: "string", Description: "Optional substring to filter the process command line", Required: false},
	)
}

func (t *ProcessListTool) Init(_ context.Context) error { return nil }
func (t *ProcessListTool) Close() error                 { return nil }

func (t *ProcessListTool) ResourceLimits() tool.ResourceLimits {
	return tool.ResourceLimits{MaxExecutionTime: 10 * time.Second, MaxOutputSize: 128 << 10, MaxProcesses: 1}
}

func (t *ProcessListTool) Validate(_ tool.ToolArgs) error { return nil }

func (t *ProcessListTool) Execute(ctx context.Context, args tool.ToolArgs) (tool.ToolOutput, error) {
	res, err := t.enforcer.Run(ctx, t.ResourceLimits(), tool.CommandSpec{
		Name: "ps",
		Args: []string{"-u", "-x"},
		Env:  tool.HostEnv(),
	})
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: err.Error()}, err
	}

	out := res.Stdout
	if filter := args.GetOr("filter", ""); filter != "" {
		var kept []string
		for i, line := range strings.Split(out, "\n") {
			if i == 0 || strings.Contains(line, filter) {
				kept = append(kept, line)
			}
		}
		out = strings.Join(kept, "\n")
	}

	exit := res.ExitCode
	return tool.ToolOutput{
		Success:       res.ExitCode == 0,
		Stdout:        out,
		ExitCode:      &exit,
		ResourcesUsed: tool.ResourceUsage{TruncatedBytes: boolToInt64(res.Truncated)},
	}, nil
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// ── sed_replace ──

// SedReplaceTool wraps the system sed binary for scripted in-place or
// stdout-preview text substitution, bounded to files inside the workspace.
type SedReplaceTool struct {
	workspaceDir string
	enforcer     *tool.Enforcer
}

func NewSedReplaceTool(workspaceDir string, enforcer *tool.Enforcer) *SedReplaceTool {
	return &SedReplaceTool{workspaceDir: workspaceDir, enforcer: enforcer}
}

func (t *SedReplaceTool) Name() string { return "sed_replace" }
func (t *SedReplaceTool) Description() string {
	return "Apply a sed substitution expression to a file within the workspace and return the result."
}

func (t *SedReplaceTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "path", Type: "string", Description: "File path within the workspace", Required: true},
		tool.SchemaParam{Name: "expression", Type: "string", Description: "sed expression, e.g. s/foo/bar/g", Required: true},
		tool.SchemaParam{Name: "in_place", Type: "boolean", Description: "Write the result back to the file instead of returning a preview (default false)", Required: false},
	)
}

func (t *SedReplaceTool) Init(_ context.Context) error { return nil }
func (t *SedReplaceTool) Close() error                 { return nil }

func (t *SedReplaceTool) ResourceLimits() tool.ResourceLimits {
	return tool.ResourceLimits{MaxExecutionTime: 10 * time.Second, MaxOutputSize: maxFileSize, MaxProcesses: 1}
}

var dangerousSedExpr = []string{"e ", "e\t", "w ", "r ", "R ", "W "}

func (t *SedReplaceTool) Validate(args tool.ToolArgs) error {
	if strings.TrimSpace(args.GetOr("path", "")) == "" {
		return fmt.Errorf("path is required")
	}
	expr := args.GetOr("expression", "")
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("expression is required")
	}
	for _, bad := range dangerousSedExpr {
		if strings.Contains(expr, bad) {
			return fmt.Errorf("expression uses the disallowed sed command %q (file/exec side effects)", strings.TrimSpace(bad))
		}
	}
	return nil
}

func (t *SedReplaceTool) Execute(ctx context.Context, args tool.ToolArgs) (tool.ToolOutput, error) {
	path, err := safeResolvePath(args.GetOr("path", ""), t.workspaceDir)
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: err.Error()}, nil
	}

	sedArgs := []string{}
	inPlace := args.GetOr("in_place", "") == "true"
	if inPlace {
		sedArgs = append(sedArgs, "-i")
	}
	sedArgs = append(sedArgs, args.GetOr("expression", ""), path)

	res, err := t.enforcer.Run(ctx, t.ResourceLimits(), tool.CommandSpec{
		Name: "sed",
		Args: sedArgs,
		Dir:  t.workspaceDir,
		Env:  tool.HostEnv(),
	})
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: err.Error()}, err
	}

	out := res.Stdout
	if inPlace {
		out = fmt.Sprintf("applied %q to %s", args.GetOr("expression", ""), path)
	}

	exit := res.ExitCode
	return tool.ToolOutput{Success: res.ExitCode == 0, Stdout: out, ExitCode: &exit}, nil
}

// ── awk_extract ──

// AwkExtractTool wraps the system awk binary for field/pattern extraction
// over a workspace file.
type AwkExtractTool struct {
	workspaceDir string
	enforcer     *tool.Enforcer
}

func NewAwkExtractTool(workspaceDir string, enforcer *tool.Enforcer) *AwkExtractTool {
	return &AwkExtractTool{workspaceDir: workspaceDir, enforcer: enforcer}
}

func (t *AwkExtractTool) Name() string { return "awk_extract" }
func (t *AwkExtractTool) Description() string {
	return "Run an awk program against a file within the workspace and return its output."
}

func (t *AwkExtractTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "path", Type: "string", Description: "File path within the workspace", Required: true},
		tool.SchemaParam{Name: "program", Type: "string", Description: "awk program, e.g. '{print $1}'", Required: true},
		tool.SchemaParam{Name: "field_separator", Type: "string", Description: "Optional field separator (-F)", Required: false},
	)
}

func (t *AwkExtractTool) Init(_ context.Context) error { return nil }
func (t *AwkExtractTool) Close() error                 { return nil }

func (t *AwkExtractTool) ResourceLimits() tool.ResourceLimits {
	return tool.ResourceLimits{MaxExecutionTime: 10 * time.Second, MaxOutputSize: maxFileSize, MaxProcesses: 1}
}

var dangerousAwkSubstrings = []string{"system(", "\"cmd\"|", "| \"", "getline <", "print >", "printf >"}

func (t *AwkExtractTool) Validate(args tool.ToolArgs) error {
	if strings.TrimSpace(args.GetOr("path", "")) == "" {
		return fmt.Errorf("path is required")
	}
	program := args.GetOr("program", "")
	if strings.TrimSpace(program) == "" {
		return fmt.Errorf("program is required")
	}
	lower := strings.ToLower(program)
	for _, bad := range dangerousAwkSubstrings {
		if strings.Contains(lower, strings.ToLower(bad)) {
			return fmt.Errorf("program uses the disallowed construct %q (process/file side effects)", bad)
		}
	}
	return nil
}

func (t *AwkExtractTool) Execute(ctx context.Context, args tool.ToolArgs) (tool.ToolOutput, error) {
	path, err := safeResolvePath(args.GetOr("path", ""), t.workspaceDir)
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: err.Error()}, nil
	}

	awkArgs := []string{}
	if fs := args.GetOr("field_separator", ""); fs != "" {
		awkArgs = append(awkArgs, "-F", fs)
	}
	awkArgs = append(awkArgs, args.GetOr("program", ""), path)

	res, err := t.enforcer.Run(ctx, t.ResourceLimits(), tool.CommandSpec{
		Name: "awk",
		Args: awkArgs,
		Dir:  t.workspaceDir,
		Env:  tool.HostEnv(),
	})
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: err.Error()}, err
	}

	exit := res.ExitCode
	return tool.ToolOutput{Success: res.ExitCode == 0, Stdout: res.Stdout, ExitCode: &exit}, nil
}
