package planner

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	replacePattern = regexp.MustCompile(`^REPLACE lines (\d+)-(\d+) with:$`)
	insertPattern  = regexp.MustCompile(`^INSERT after line (\d+):$`)
	deletePattern  = regexp.MustCompile(`^DELETE lines (\d+)-(\d+)$`)
	noChangesLine  = "NO CHANGES REQUIRED"
)

type directiveKind int

const (
	dirReplace directiveKind = iota
	dirInsert
	dirDelete
)

type directive struct {
	kind       directiveKind
	start, end int // 1-indexed, inclusive; end unused for insert
	content    []string
}

// parseDiffDirectives splits an LLM's diff-format response into an ordered
// list of directives. A directive's content block runs until a blank line
// or the start of the next recognized directive header.
func parseDiffDirectives(response string) []directive {
	lines := strings.Split(response, "\n")
	var out []directive
	i := 0
	for i < len(lines) {
		line := strings.TrimRight(lines[i], "\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == noChangesLine:
			return nil

		case replacePattern.MatchString(trimmed):
			m := replacePattern.FindStringSubmatch(trimmed)
			start, _ := strconv.Atoi(m[1])
			end, _ := strconv.Atoi(m[2])
			content, next := collectBlock(lines, i+1)
			out = append(out, directive{kind: dirReplace, start: start, end: end, content: content})
			i = next

		case insertPattern.MatchString(trimmed):
			m := insertPattern.FindStringSubmatch(trimmed)
			after, _ := strconv.Atoi(m[1])
			content, next := collectBlock(lines, i+1)
			out = append(out, directive{kind: dirInsert, start: after, content: content})
			i = next

		case deletePattern.MatchString(trimmed):
			m := deletePattern.FindStringSubmatch(trimmed)
			start, _ := strconv.Atoi(m[1])
			end, _ := strconv.Atoi(m[2])
			out = append(out, directive{kind: dirDelete, start: start, end: end})
			i++

		default:
			i++
		}
	}
	return out
}

// collectBlock reads content lines starting at i until a blank line or
// the start of the next recognized directive header, returning the
// collected lines and the index to resume scanning from.
func collectBlock(lines []string, i int) ([]string, int) {
	var block []string
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			return block, i + 1
		}
		if replacePattern.MatchString(trimmed) || insertPattern.MatchString(trimmed) ||
			deletePattern.MatchString(trimmed) || trimmed == noChangesLine {
			return block, i
		}
		block = append(block, lines[i])
		i++
	}
	return block, i
}

// ApplyDiffDirectives applies an LLM's diff-format response to original's
// content and returns the resulting file content. Directives are applied
// against the ORIGINAL line numbering (not renumbered after each edit), so
// line offsets from earlier directives don't shift later ones — matching
// how a single coherent diff response names line numbers. A directive
// whose range falls outside the original file is ignored rather than
// applied partially. A literal "NO CHANGES REQUIRED" response is a no-op.
func ApplyDiffDirectives(original, response string) string {
	directives := parseDiffDirectives(response)
	if directives == nil {
		return original
	}

	origLines := strings.Split(original, "\n")
	n := len(origLines)

	// deleted/replaced marks lines from the original to drop; inserted
	// holds content to splice in after a given original line index (0 =
	// before the first line).
	deleted := make([]bool, n+1)
	replacement := make(map[int][]string) // start line -> replacement content
	inserted := make(map[int][]string)    // after line -> inserted content

	for _, d := range directives {
		switch d.kind {
		case dirReplace:
			if d.start < 1 || d.end > n || d.start > d.end {
				continue
			}
			for l := d.start; l <= d.end; l++ {
				deleted[l] = true
			}
			replacement[d.start] = d.content
		case dirDelete:
			if d.start < 1 || d.end > n || d.start > d.end {
				continue
			}
			for l := d.start; l <= d.end; l++ {
				deleted[l] = true
			}
		case dirInsert:
			if d.start < 0 || d.start > n {
				continue
			}
			inserted[d.start] = append(inserted[d.start], d.content...)
		}
	}

	var out []string
	out = append(out, inserted[0]...)
	for l := 1; l <= n; l++ {
		if deleted[l] {
			if rep, ok := replacement[l]; ok {
				out = append(out, rep...)
			}
		} else {
			out = append(out, origLines[l-1])
		}
		out = append(out, inserted[l]...)
	}
	return strings.Join(out, "\n")
}
