package planner

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// explicitPathPattern matches token-like substrings that look like a
// relative file path: path characters (letters, digits, _ . / -) ending in
// a dotted extension of 1-8 letters or digits, no whitespace.
var explicitPathPattern = regexp.MustCompile(`[A-Za-z0-9_./\-]+\.[A-Za-z0-9]{1,8}`)

// knownExtensions is the allowlist of extensions an extracted path must
// carry to be trusted as a real file reference rather than a stray token
// like "e.g." or "v2.0" from the goal text.
var knownExtensions = map[string]bool{
	".go": true, ".mod": true, ".sum": true, ".json": true, ".yaml": true, ".yml": true,
	".toml": true, ".md": true, ".txt": true, ".py": true, ".js": true, ".ts": true,
	".tsx": true, ".jsx": true, ".rs": true, ".java": true, ".c": true, ".h": true,
	".cpp": true, ".hpp": true, ".sh": true, ".sql": true, ".html": true, ".css": true,
}

// commonWordFalsePositives are abbreviations that are virtually never real
// paths in this context. The path pattern never ends a token with a dot, so
// these entries never match: "e.g." in a goal is extracted as "e.g" and is
// rejected by knownExtensions instead.
var commonWordFalsePositives = map[string]bool{
	"e.g.": true, "i.e.": true, "etc.": true,
}

// ExtractExplicitPaths scans goal for substrings that look like file
// paths, rejecting traversal, shell metacharacters, overlong tokens and
// tokens with an unrecognized or no extension.
func ExtractExplicitPaths(goal string) []string {
	var out []string
	seen := map[string]bool{}
	for _, tok := range explicitPathPattern.FindAllString(goal, -1) {
		if len(tok) > 200 {
			continue
		}
		if strings.Contains(tok, "..") {
			continue
		}
		if strings.ContainsAny(tok, "|><&;$`") {
			continue
		}
		if commonWordFalsePositives[strings.ToLower(tok)] {
			continue
		}
		ext := strings.ToLower(filepath.Ext(tok))
		if !knownExtensions[ext] {
			continue
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// stopWords are filtered out of the goal before it's used as a keyword
// search query, leaving only the content words likely to appear near
// relevant code.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "in": true, "on": true,
	"for": true, "and": true, "or": true, "is": true, "are": true, "be": true, "this": true,
	"that": true, "with": true, "it": true, "its": true, "as": true, "at": true, "by": true,
	"from": true, "into": true, "please": true, "should": true, "would": true, "could": true,
}

// keywordsFromGoal extracts lowercase content words from goal, suitable as
// a ripgrep/grep search query.
func keywordsFromGoal(goal string) []string {
	fields := strings.FieldsFunc(goal, func(r rune) bool {
		return !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	})
	var out []string
	for _, f := range fields {
		lower := strings.ToLower(f)
		if len(lower) < 3 || stopWords[lower] {
			continue
		}
		out = append(out, lower)
	}
	return out
}

// skipScanDirs are excluded from both the keyword search and the fallback
// entry-point scan.
var skipScanDirs = map[string]bool{
	"node_modules": true, "target": true, "dist": true, "build": true,
	"vendor": true, "__pycache__": true, ".git": true,
}

// KeywordSearch looks for goal's content words in workspaceRoot, preferring
// ripgrep when available and falling back to find+grep. Returns the set of
// matching relative paths, deduplicated, in discovery order.
func KeywordSearch(ctx context.Context, workspaceRoot, goal string) []string {
	keywords := keywordsFromGoal(goal)
	if len(keywords) == 0 {
		return nil
	}
	if paths, ok := ripgrepSearch(ctx, workspaceRoot, keywords); ok {
		if len(paths) == 0 {
			return fallbackEntryPointScan(workspaceRoot)
		}
		return paths
	}
	return findGrepSearch(ctx, workspaceRoot, keywords)
}

func ripgrepSearch(ctx context.Context, root string, keywords []string) ([]string, bool) {
	if _, err := exec.LookPath("rg"); err != nil {
		return nil, false
	}
	pattern := strings.Join(keywords, "|")
	cmd := exec.CommandContext(ctx, "rg", "-l", "-i", pattern, root)
	out, _ := cmd.Output() // non-zero exit (no matches) is not an error here
	return parseRelativeLines(out, root), true
}

func findGrepSearch(ctx context.Context, root string, keywords []string) []string {
	if _, err := exec.LookPath("grep"); err != nil {
		return fallbackEntryPointScan(root)
	}
	pattern := strings.Join(keywords, "|")
	cmd := exec.CommandContext(ctx, "grep", "-rIli", "-E", pattern, root)
	out, _ := cmd.Output()
	paths := parseRelativeLines(out, root)
	if len(paths) == 0 {
		return fallbackEntryPointScan(root)
	}
	return paths
}

func parseRelativeLines(out []byte, root string) []string {
	var paths []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rel, err := filepath.Rel(root, line)
		if err != nil {
			rel = line
		}
		paths = append(paths, rel)
	}
	return paths
}

// likelyEntryPoints are basenames that commonly mark where a project
// starts, used by the fallback scan when keyword search turns up nothing.
var likelyEntryPoints = map[string]bool{
	"main.go": true, "main.py": true, "index.js": true, "index.ts": true,
	"app.py": true, "server.go": true, "cmd": true,
}

const fallbackScanMaxDepth = 4

// fallbackEntryPointScan walks workspaceRoot (depth-limited, skipping
// vendor-style directories) looking for conventional entry-point files,
// used when neither ripgrep nor grep find anything relevant.
func fallbackEntryPointScan(root string) []string {
	var out []string
	rootDepth := strings.Count(filepath.Clean(root), string(filepath.Separator))
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		depth := strings.Count(filepath.Clean(path), string(filepath.Separator)) - rootDepth
		if info.IsDir() {
			if skipScanDirs[info.Name()] {
				return filepath.SkipDir
			}
			if depth > fallbackScanMaxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if likelyEntryPoints[info.Name()] {
			if rel, err := filepath.Rel(root, path); err == nil {
				out = append(out, rel)
			}
		}
		return nil
	})
	return out
}
