package build

import (
	"fmt"
	"regexp"
	"strings"
)

// fenceHeaderPattern matches a build-plan fence header line:
// file:path=RELATIVE;action=create|update|delete
var fenceHeaderPattern = regexp.MustCompile(`(?m)^file:path=([^;\n]+);action=(create|update|delete)$`)

// FormatFence renders a single build-plan fence: the header line followed
// by content and a closing newline. The inverse of ParseFences for one
// entry — ParseFences(FormatFence(p, a, c))[0].Content recovers c.
func FormatFence(path string, action OperationKind, content string) string {
	return fmt.Sprintf("file:path=%s;action=%s\n%s\n", path, action, content)
}

// ParseFences extracts every build-plan fence embedded in text: a header
// line "file:path=RELATIVE;action=create|update|delete" followed by its
// content, up to the next header or the end of text. A fence's content is
// exactly what FormatFence wrote for it, with the single trailing newline
// FormatFence appends removed again. Lines that don't match the header
// pattern — including a header with no path — are never treated as a
// fence boundary and are left as content of whatever fence (if any)
// precedes them.
func ParseFences(text string) []FileOperation {
	matches := fenceHeaderPattern.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return nil
	}

	ops := make([]FileOperation, 0, len(matches))
	for i, m := range matches {
		path := text[m[2]:m[3]]
		action := text[m[4]:m[5]]

		contentStart := m[1]
		if contentStart < len(text) && text[contentStart] == '\n' {
			contentStart++
		}
		contentEnd := len(text)
		if i+1 < len(matches) {
			contentEnd = matches[i+1][0]
		}
		content := strings.TrimSuffix(text[contentStart:contentEnd], "\n")

		ops = append(ops, FileOperation{Path: path, Kind: OperationKind(action), Content: content})
	}
	return ops
}
