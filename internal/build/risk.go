package build

import (
	"path/filepath"
	"strings"
)

// criticalBasenames are files whose update/deletion can break the project
// as a whole (build manifests, VCS metadata, container/build definitions)
// rather than just one module.
var criticalBasenames = map[string]bool{
	"go.mod":         true,
	"go.sum":         true,
	"Cargo.toml":     true,
	"package.json":   true,
	"pyproject.toml": true,
	"Dockerfile":     true,
	"Makefile":       true,
	".env":           true,
}

// criticalDirs are path components that mark a subtree as critical
// regardless of basename (VCS internals; OS-level system paths are covered
// by systemPrefixes instead).
var criticalDirs = map[string]bool{
	".git": true,
}

var systemPrefixes = []string{"/etc/", "/sys/", "/proc/", "/dev/"}

// isCriticalPath reports whether rel (a path relative to the project root,
// using forward slashes) names a file whose mutation has project-wide
// blast radius.
func isCriticalPath(rel string) bool {
	clean := filepath.ToSlash(filepath.Clean(rel))
	for _, prefix := range systemPrefixes {
		if strings.HasPrefix("/"+clean, prefix) {
			return true
		}
	}
	parts := strings.Split(clean, "/")
	for _, part := range parts {
		if criticalDirs[part] {
			return true
		}
	}
	if criticalBasenames[parts[len(parts)-1]] {
		return true
	}
	return false
}

// escapesRoot reports whether path, resolved against projectRoot, lands
// outside projectRoot.
func escapesRoot(path, projectRoot string) bool {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		root = projectRoot
	}
	var abs string
	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
	} else {
		abs = filepath.Clean(filepath.Join(root, path))
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return true
	}
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// AssessRisk classifies a single FileOperation per the data model's rules:
//
//   - any path that escapes projectRoot is Critical, full stop.
//   - Create/Read of a critical path is High; of an ordinary path, Low.
//   - Update of a critical path is Critical; of an ordinary path, Medium.
//   - Delete is High for ordinary paths; a delete of a critical path is
//     escalated to Critical (deleting a build manifest is strictly worse
//     than updating it, so it cannot rank below Update's Critical case).
func AssessRisk(op FileOperation, projectRoot string) RiskLevel {
	if escapesRoot(op.Path, projectRoot) {
		return Critical
	}
	critical := isCriticalPath(op.Path)

	switch op.Kind {
	case Create, Read:
		if critical {
			return High
		}
		return Low
	case Update:
		if critical {
			return Critical
		}
		return Medium
	case Delete:
		if critical {
			return Critical
		}
		return High
	default:
		return High
	}
}
