// Package builtin implements the closed enumeration of safe tools wired
// into the registry: file_read, file_write, directory_list, process_list,
// grep_search, find_files, sed_replace, awk_extract, curl_fetch, web_search,
// git_status, git_diff, git_log.
package builtin

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// skipDirs contains directory names to skip during recursive filesystem walks.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, ".idea": true, ".vscode": true,
	"vendor": true, "__pycache__": true, ".cache": true,
}

// protectedFiles maps workspace-relative filenames to a note saying how they
// should be edited instead. Writes to these files via file_write are blocked at the code
// level to prevent accidental corruption by the agent.
var protectedFiles = map[string]string{
	"vibe.yaml": "project configuration — edit by hand, not via file_write",
}

// safeResolvePath resolves a file path and validates it stays within the
// workspace. Prevents path traversal (../../etc/passwd), prefix collisions
// (workspace="/project", path="/project-evil/attack.txt"), and
// symlink-escape attacks where a symlink inside the workspace points to a
// target outside it.
func safeResolvePath(path, workspaceDir string) (string, error) {
	var resolved string
	if filepath.IsAbs(path) {
		resolved = filepath.Clean(path)
	} else if workspaceDir != "" {
		resolved = filepath.Clean(filepath.Join(workspaceDir, path))
	} else {
		resolved = filepath.Clean(path)
	}

	if workspaceDir == "" {
		return resolved, nil
	}

	absWorkspace, err := filepath.Abs(workspaceDir)
	if err != nil {
		return "", fmt.Errorf("resolve workspace dir: %w", err)
	}
	realWorkspace, err := filepath.EvalSymlinks(absWorkspace)
	if err != nil {
		realWorkspace = absWorkspace
	}

	absResolved, err := filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("resolve target path: %w", err)
	}
	realResolved, _ := resolveExisting(absResolved)

	if runtime.GOOS == "windows" {
		realWorkspace = strings.ToLower(realWorkspace)
		realResolved = strings.ToLower(realResolved)
	}

	if realResolved != realWorkspace &&
		!strings.HasPrefix(realResolved, realWorkspace+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q lies outside the project root %q", path, workspaceDir)
	}

	return resolved, nil
}

// resolveExisting resolves symlinks for an existing path, or for its parent
// directory if the path itself does not yet exist (e.g. a new file to write).
func resolveExisting(path string) (string, error) {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real, nil
	}
	if real, err := filepath.EvalSymlinks(filepath.Dir(path)); err == nil {
		return filepath.Join(real, filepath.Base(path)), nil
	}
	return path, nil
}

// checkProtectedFile returns a non-empty error message if resolvedPath points
// to a protected file that must not be modified by file_write.
func checkProtectedFile(resolvedPath, workspaceDir string) string {
	if workspaceDir == "" {
		return ""
	}
	base := filepath.Base(resolvedPath)
	dir := filepath.Dir(resolvedPath)
	absWorkspace, _ := filepath.Abs(workspaceDir)

	if runtime.GOOS == "windows" {
		dir = strings.ToLower(dir)
		absWorkspace = strings.ToLower(absWorkspace)
		base = strings.ToLower(base)
	}

	if dir != absWorkspace {
		return ""
	}
	if note, ok := protectedFiles[base]; ok {
		return fmt.Sprintf("refusing to overwrite %s directly: %s", base, note)
	}
	return ""
}

// matchFileGlob supports simple glob patterns and brace expansion like *.{ts,tsx}.
func matchFileGlob(pattern, name string) (bool, error) {
	if strings.Contains(pattern, "{") && strings.Contains(pattern, "}") {
		start := strings.Index(pattern, "{")
		end := strings.Index(pattern, "}")
		if start < end {
			prefix := pattern[:start]
			suffix := pattern[end+1:]
			alternatives := strings.Split(pattern[start+1:end], ",")
			for _, alt := range alternatives {
				m, err := filepath.Match(prefix+strings.TrimSpace(alt)+suffix, name)
				if err != nil {
					return false, err
				}
				if m {
					return true, nil
				}
			}
			return false, nil
		}
	}
	return filepath.Match(pattern, name)
}

// clamp returns v clamped to [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
