package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vibecli/vibe-core/internal/tool"
)

const (
	maxFileSize    = 1 << 20 // 1MB — read limit
	maxWriteSize   = 1 << 20 // 1MB — reject oversized content before filesystem access
	maxListItems   = 100
	maxFindResults = 50
)

// ── file_read ──

type FileReadTool struct {
	workspaceDir string
}

func NewFileReadTool(workspaceDir string) *FileReadTool {
	return &FileReadTool{workspaceDir: workspaceDir}
}

func (t *FileReadTool) Name() string        { return "file_read" }
func (t *FileReadTool) Description() string { return "Read the contents of a file within the workspace." }

func (t *FileReadTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "path", Type: "string", Description: "File path, relative to the workspace or absolute", Required: true},
	)
}

func (t *FileReadTool) Init(_ context.Context) error { return nil }
func (t *FileReadTool) Close() error                 { return nil }

func (t *FileReadTool) ResourceLimits() tool.ResourceLimits {
	return tool.ResourceLimits{MaxExecutionTime: 5 * time.Second, MaxOutputSize: maxFileSize}
}

func (t *FileReadTool) Validate(args tool.ToolArgs) error {
	if strings.TrimSpace(args.GetOr("path", "")) == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

func (t *FileReadTool) Execute(_ context.Context, args tool.ToolArgs) (tool.ToolOutput, error) {
	path, err := safeResolvePath(args.GetOr("path", ""), t.workspaceDir)
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: err.Error()}, nil
	}

	// Open first, then stat — avoids a TOCTOU race between os.Stat and
	// os.ReadFile where the underlying file could be replaced in between.
	f, err := os.Open(path)
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("file does not exist: %s", path)}, nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("stat failed: %v", err)}, nil
	}
	if info.IsDir() {
		return tool.ToolOutput{Success: false, Stderr: "path is a directory, use directory_list instead"}, nil
	}
	if info.Size() > maxFileSize {
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("file too large (%d bytes), max %d bytes", info.Size(), maxFileSize)}, nil
	}

	data, err := io.ReadAll(io.LimitReader(f, maxFileSize))
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("read failed: %v", err)}, nil
	}

	return tool.ToolOutput{Success: true, Stdout: string(data)}, nil
}

// ── file_write ──

type FileWriteTool struct {
	workspaceDir string
}

func NewFileWriteTool(workspaceDir string) *FileWriteTool {
	return &FileWriteTool{workspaceDir: workspaceDir}
}

func (t *FileWriteTool) Name() string { return "file_write" }
func (t *FileWriteTool) Description() string {
	return "Write content to a file within the workspace, creating or overwriting it."
}

func (t *FileWriteTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "path", Type: "string", Description: "File path, relative to the workspace or absolute", Required: true},
		tool.SchemaParam{Name: "content", Type: "string", Description: "Content to write", Required: true},
	)
}

func (t *FileWriteTool) Init(_ context.Context) error { return nil }
func (t *FileWriteTool) Close() error                 { return nil }

func (t *FileWriteTool) ResourceLimits() tool.ResourceLimits {
	return tool.ResourceLimits{MaxExecutionTime: 5 * time.Second, MaxOutputSize: maxWriteSize}
}

func (t *FileWriteTool) Validate(args tool.ToolArgs) error {
	if strings.TrimSpace(args.GetOr("path", "")) == "" {
		return fmt.Errorf("path is required")
	}
	if len(args.GetOr("content", "")) > maxWriteSize {
		return fmt.Errorf("content too large (%d bytes), max %d bytes", len(args.GetOr("content", "")), maxWriteSize)
	}
	return nil
}

func (t *FileWriteTool) Execute(_ context.Context, args tool.ToolArgs) (tool.ToolOutput, error) {
	content := args.GetOr("content", "")

	path, err := safeResolvePath(args.GetOr("path", ""), t.workspaceDir)
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: err.Error()}, nil
	}

	if msg := checkProtectedFile(path, t.workspaceDir); msg != "" {
		return tool.ToolOutput{Success: false, Stderr: msg}, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("create directory failed: %v", err)}, nil
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("write failed: %v", err)}, nil
	}

	return tool.ToolOutput{Success: true, Stdout: fmt.Sprintf("wrote %s (%d bytes)", path, len(content))}, nil
}

// ── directory_list ──

type DirectoryListTool struct {
	workspaceDir string
}

func NewDirectoryListTool(workspaceDir string) *DirectoryListTool {
	return &DirectoryListTool{workspaceDir: workspaceDir}
}

func (t *DirectoryListTool) Name() string        { return "directory_list" }
func (t *DirectoryListTool) Description() string { return "List files and subdirectories under a directory." }

func (t *DirectoryListTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "path", Type: "string", Description: "Directory path", Required: true},
	)
}

func (t *DirectoryListTool) Init(_ context.Context) error { return nil }
func (t *DirectoryListTool) Close() error                 { return nil }

func (t *DirectoryListTool) ResourceLimits() tool.ResourceLimits {
	return tool.ResourceLimits{MaxExecutionTime: 5 * time.Second, MaxOutputSize: 64 << 10}
}

func (t *DirectoryListTool) Validate(args tool.ToolArgs) error {
	if strings.TrimSpace(args.GetOr("path", "")) == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

func (t *DirectoryListTool) Execute(_ context.Context, args tool.ToolArgs) (tool.ToolOutput, error) {
	path, err := safeResolvePath(args.GetOr("path", ""), t.workspaceDir)
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: err.Error()}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("directory does not exist: %s", path)}, nil
	}

	var sb strings.Builder
	count := 0
	for _, entry := range entries {
		if count >= maxListItems {
			sb.WriteString(fmt.Sprintf("... (%d entries total, showing first %d)\n", len(entries), maxListItems))
			break
		}

		info, _ := entry.Info()
		kind := "file"
		sizeStr := ""
		if entry.IsDir() {
			kind = "dir"
		} else if info != nil {
			sizeStr = fmt.Sprintf(" (%d bytes)", info.Size())
		} else {
			sizeStr = " (size unknown)"
		}

		sb.WriteString(fmt.Sprintf("%s  %s%s\n", kind, entry.Name(), sizeStr))
		count++
	}

	if count == 0 {
		return tool.ToolOutput{Success: true, Stdout: "(empty directory)"}, nil
	}

	return tool.ToolOutput{Success: true, Stdout: sb.String()}, nil
}

// ── find_files ──

type FindFilesTool struct {
	workspaceDir string
}

func NewFindFilesTool(workspaceDir string) *FindFilesTool {
	return &FindFilesTool{workspaceDir: workspaceDir}
}

func (t *FindFilesTool) Name() string { return "find_files" }
func (t *FindFilesTool) Description() string {
	return "Recursively search the workspace for files and directories matching a name or glob pattern."
}

func (t *FindFilesTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "pattern", Type: "string", Description: "Search keyword or glob, e.g. 'config' or '*.go'", Required: true},
	)
}

func (t *FindFilesTool) Init(_ context.Context) error { return nil }
func (t *FindFilesTool) Close() error                 { return nil }

func (t *FindFilesTool) ResourceLimits() tool.ResourceLimits {
	return tool.ResourceLimits{MaxExecutionTime: 15 * time.Second, MaxOutputSize: 64 << 10}
}

func (t *FindFilesTool) Validate(args tool.ToolArgs) error {
	if strings.TrimSpace(args.GetOr("pattern", "")) == "" {
		return fmt.Errorf("pattern is required")
	}
	return nil
}

func (t *FindFilesTool) Execute(ctx context.Context, args tool.ToolArgs) (tool.ToolOutput, error) {
	pattern := strings.TrimSpace(args.GetOr("pattern", ""))

	root := t.workspaceDir
	if root == "" {
		return tool.ToolOutput{Success: false, Stderr: "workspace directory not set"}, nil
	}

	var results []string
	lowerPattern := strings.ToLower(pattern)
	isGlob := strings.ContainsAny(pattern, "*?[")

	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil
		}

		if d.IsDir() && skipDirs[d.Name()] {
			return filepath.SkipDir
		}

		name := d.Name()
		matched := false
		if isGlob {
			matched, _ = filepath.Match(lowerPattern, strings.ToLower(name))
		} else {
			matched = strings.Contains(strings.ToLower(name), lowerPattern)
		}

		if matched {
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				rel = path
			}
			prefix := "file  "
			if d.IsDir() {
				prefix = "dir   "
			}
			results = append(results, prefix+rel)
			if len(results) >= maxFindResults {
				return fmt.Errorf("limit reached")
			}
		}
		return nil
	})

	if len(results) == 0 {
		return tool.ToolOutput{Success: true, Stdout: fmt.Sprintf("no files or directories matched %q", pattern)}, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d matches:\n", len(results)))
	for _, r := range results {
		sb.WriteString(r + "\n")
	}
	if len(results) >= maxFindResults {
		sb.WriteString(fmt.Sprintf("(truncated at %d results)\n", maxFindResults))
	}

	return tool.ToolOutput{Success: true, Stdout: sb.String()}, nil
}
