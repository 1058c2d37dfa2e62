package builtin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vibecli/vibe-core/internal/tool"
)

const (
	grepDefaultMax      = 50
	grepHardMax         = 200
	grepMaxLineLen      = 200
	grepMaxContextLines = 3
)

// ── grep_search ──

type GrepSearchTool struct {
	workspaceDir string
}

func NewGrepSearchTool(workspaceDir string) *GrepSearchTool {
	return &GrepSearchTool{workspaceDir: workspaceDir}
}

func (t *GrepSearchTool) Name() string { return "grep_search" }
func (t *GrepSearchTool) Description() string {
	return "Search file contents within the workspace by regex or literal pattern, returning file, line number and matched line, with optional context lines and filename filtering."
}

func (t *GrepSearchTool) InputSchema() json.RawMessage {
	return tool.BuildSchema(
		tool.SchemaParam{Name: "pattern", Type: "string", Description: "Search pattern (regex)", Required: true},
		tool.SchemaParam{Name: "path", Type: "string", Description: "Directory or file to search, defaults to the workspace root", Required: false},
		tool.SchemaParam{Name: "case_sensitive", Type: "boolean", Description: "Case-sensitive match (default false)", Required: false},
		tool.SchemaParam{Name: "file_glob", Type: "string", Description: "Filename filter, e.g. *.go or *.{ts,tsx}", Required: false},
		tool.SchemaParam{Name: "context_lines", Type: "integer", Description: "Lines of context before/after a match (default 0, max 3)", Required: false},
		tool.SchemaParam{Name: "max_results", Type: "integer", Description: "Maximum matches to return (default 50, max 200)", Required: false},
	)
}

func (t *GrepSearchTool) Init(_ context.Context) error { return nil }
func (t *GrepSearchTool) Close() error                 { return nil }

func (t *GrepSearchTool) ResourceLimits() tool.ResourceLimits {
	return tool.ResourceLimits{MaxExecutionTime: 15 * time.Second, MaxOutputSize: 256 << 10, MaxProcesses: 1}
}

func (t *GrepSearchTool) Validate(args tool.ToolArgs) error {
	if strings.TrimSpace(args.GetOr("pattern", "")) == "" {
		return fmt.Errorf("pattern is required")
	}
	if _, err := buildGrepRegexp(args.GetOr("pattern", ""), args.GetOr("case_sensitive", "") == "true"); err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}

type grepMatch struct {
	File        string
	LineNum     int
	Line        string
	BeforeStart int
	Before      []string
	After       []string
}

func (t *GrepSearchTool) Execute(ctx context.Context, args tool.ToolArgs) (tool.ToolOutput, error) {
	pattern := args.GetOr("pattern", "")
	contextLines := clamp(atoiOr(args.GetOr("context_lines", "0"), 0), 0, grepMaxContextLines)
	maxResults := atoiOr(args.GetOr("max_results", "0"), 0)
	if maxResults <= 0 {
		maxResults = grepDefaultMax
	}
	if maxResults > grepHardMax {
		maxResults = grepHardMax
	}

	re, err := buildGrepRegexp(pattern, args.GetOr("case_sensitive", "") == "true")
	if err != nil {
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("invalid regex: %v", err)}, nil
	}

	searchRoot := t.workspaceDir
	if p := args.GetOr("path", ""); p != "" {
		resolved, err := safeResolvePath(p, t.workspaceDir)
		if err != nil {
			return tool.ToolOutput{Success: false, Stderr: err.Error()}, nil
		}
		searchRoot = resolved
	}

	walkCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if _, err := os.Stat(searchRoot); err != nil {
		return tool.ToolOutput{Success: false, Stderr: fmt.Sprintf("search path does not exist: %s", searchRoot)}, nil
	}

	var matches []grepMatch
	limitReached := false
	fileGlob := args.GetOr("file_glob", "")

	_ = filepath.WalkDir(searchRoot, func(path string, d os.DirEntry, err error) error {
		select {
		case <-walkCtx.Done():
			return walkCtx.Err()
		default:
		}
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if fileGlob != "" {
			matched, _ := matchFileGlob(fileGlob, d.Name())
			if !matched {
				return nil
			}
		}
		fileMatches, err := searchInFile(walkCtx, path, re, contextLines)
		if err != nil {
			return nil
		}
		for _, m := range fileMatches {
			if len(matches) >= maxResults {
				limitReached = true
				return fmt.Errorf("limit reached")
			}
			matches = append(matches, m)
		}
		return nil
	})

	if len(matches) == 0 {
		return tool.ToolOutput{Success: true, Stdout: "no matches found"}, nil
	}

	return tool.ToolOutput{Success: true, Stdout: formatGrepResults(matches, t.workspaceDir, limitReached, maxResults)}, nil
}

func buildGrepRegexp(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	prefix := "(?i)"
	if caseSensitive {
		prefix = ""
	}
	return regexp.Compile(prefix + pattern)
}

func searchInFile(ctx context.Context, path string, re *regexp.Regexp, contextLines int) ([]grepMatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > 10<<20 {
		return nil, nil
	}

	sample := make([]byte, 512)
	n, err := f.Read(sample)
	if err != nil && n == 0 {
		return nil, err
	}
	if isGrepBinary(sample[:n]) {
		return nil, nil
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var matches []grepMatch
	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		m := grepMatch{File: path, LineNum: i + 1, Line: truncateLine(line, grepMaxLineLen)}
		if contextLines > 0 {
			beforeStart := i - contextLines
			if beforeStart < 0 {
				beforeStart = 0
			}
			m.BeforeStart = beforeStart + 1
			for j := beforeStart; j < i; j++ {
				m.Before = append(m.Before, truncateLine(lines[j], grepMaxLineLen))
			}
			end := i + contextLines + 1
			if end > len(lines) {
				end = len(lines)
			}
			for j := i + 1; j < end; j++ {
				m.After = append(m.After, truncateLine(lines[j], grepMaxLineLen))
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func isGrepBinary(data []byte) bool {
	if bytes.IndexByte(data, 0) >= 0 {
		return true
	}
	if utf8.Valid(data) {
		return false
	}
	nonPrintable := 0
	for _, b := range data {
		if b < 0x08 || (b >= 0x0E && b < 0x20 && b != 0x1B) {
			nonPrintable++
		}
	}
	return len(data) > 0 && nonPrintable*10 > len(data)
}

func truncateLine(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

func formatGrepResults(matches []grepMatch, workspaceDir string, limitReached bool, maxResults int) string {
	var sb strings.Builder
	currentFile := ""
	fileCount := 0
	totalMatches := 0

	for _, m := range matches {
		relFile := m.File
		if rel, err := filepath.Rel(workspaceDir, m.File); err == nil {
			relFile = rel
		}
		if relFile != currentFile {
			if currentFile != "" {
				sb.WriteString("\n")
			}
			sb.WriteString(fmt.Sprintf("file: %s\n", relFile))
			currentFile = relFile
			fileCount++
		}
		for i, line := range m.Before {
			sb.WriteString(fmt.Sprintf("  %d:   %s\n", m.BeforeStart+i, line))
		}
		sb.WriteString(fmt.Sprintf("  %d: > %s\n", m.LineNum, m.Line))
		for i, line := range m.After {
			sb.WriteString(fmt.Sprintf("  %d:   %s\n", m.LineNum+1+i, line))
		}
		totalMatches++
	}

	suffix := ""
	if limitReached {
		suffix = fmt.Sprintf(" (capped at %d)", maxResults)
	}
	sb.WriteString(fmt.Sprintf("---\n%d files, %d matches%s\n", fileCount, totalMatches, suffix))
	return sb.String()
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
