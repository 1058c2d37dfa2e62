package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// charsPerToken approximates the tokens-per-character ratio used to turn a
// byte budget into a token estimate, matching the rough heuristic the
// rest of the core uses rather than loading a real tokenizer.
const charsPerToken = 4

// estimateTokens converts a character count into an estimated token count.
func estimateTokens(chars int) int {
	return chars / charsPerToken
}

// fileCandidate is one file considered for inclusion in a context summary.
type fileCandidate struct {
	Path   string
	Exists bool
	Size   int64
}

// headTailLines is how many lines to sample from the start and end of a
// file whose full content would blow the per-file budget.
const headTailLines = 12

// maxPreviewChars caps a single file's preview regardless of line count.
const maxPreviewChars = 2000

// BuildContextSummary renders a token-budgeted summary of candidate files
// under workspaceRoot: existing files are listed before absent ones
// (absent files only matter as "this path doesn't exist yet"), and within
// each group smaller files sort first so the budget is spent on files
// likely to fit whole. Iteration stops as soon as the next file would
// exceed tokenBudget.
func BuildContextSummary(paths []string, workspaceRoot string, tokenBudget int) string {
	candidates := make([]fileCandidate, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(filepath.Join(workspaceRoot, p))
		if err != nil {
			candidates = append(candidates, fileCandidate{Path: p, Exists: false})
			continue
		}
		candidates = append(candidates, fileCandidate{Path: p, Exists: true, Size: info.Size()})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Exists != candidates[j].Exists {
			return candidates[i].Exists // existing first
		}
		return candidates[i].Size < candidates[j].Size
	})

	var b strings.Builder
	spent := 0
	for _, c := range candidates {
		if !c.Exists {
			entry := fmt.Sprintf("- %s (does not exist yet)\n", c.Path)
			if spent+estimateTokens(len(entry)) > tokenBudget {
				break
			}
			b.WriteString(entry)
			spent += estimateTokens(len(entry))
			continue
		}

		preview := previewFile(filepath.Join(workspaceRoot, c.Path), c.Size)
		entry := fmt.Sprintf("--- %s (%d bytes) ---\n%s\n", c.Path, c.Size, preview)
		cost := estimateTokens(len(entry))
		if spent+cost > tokenBudget {
			if spent == 0 {
				// Always include at least a header for the very first file,
				// so a tiny budget doesn't produce an empty summary.
				b.WriteString(fmt.Sprintf("- %s (%d bytes, omitted: over budget)\n", c.Path, c.Size))
			}
			break
		}
		b.WriteString(entry)
		spent += cost
	}
	return b.String()
}

// previewFile returns the file's full content if it's small, otherwise a
// head-and-tail sample within headTailLines/maxPreviewChars.
func previewFile(path string, size int64) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("(unreadable: %v)", err)
	}
	if len(content) <= maxPreviewChars {
		return string(content)
	}

	lines := strings.Split(string(content), "\n")
	if len(lines) <= headTailLines*2 {
		truncated := string(content[:maxPreviewChars])
		return truncated + "\n… (truncated)"
	}

	head := strings.Join(lines[:headTailLines], "\n")
	tail := strings.Join(lines[len(lines)-headTailLines:], "\n")
	sample := fmt.Sprintf("%s\n… (%d lines omitted) …\n%s", head, len(lines)-2*headTailLines, tail)
	if len(sample) > maxPreviewChars {
		sample = sample[:maxPreviewChars] + "\n… (truncated)"
	}
	return sample
}
