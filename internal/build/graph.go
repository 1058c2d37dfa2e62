package build

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vibecli/vibe-core/internal/vibeerr"
)

// OperationGraph is a named collection of ComplexOperations plus the
// validated execution order ValidateAndOrder derives from their Dependencies.
// Order() refuses to return anything until ValidateAndOrder has succeeded, so a
// caller can never accidentally execute an unordered (or cyclic) graph.
type OperationGraph struct {
	ops       map[string]*ComplexOperation
	names     []string // insertion order, for stable iteration before validation
	order     []string
	validated bool
}

// NewOperationGraph returns an empty graph.
func NewOperationGraph() *OperationGraph {
	return &OperationGraph{ops: make(map[string]*ComplexOperation)}
}

// AddOperation registers op under op.Name, invalidating any prior
// validation. Re-adding an existing name overwrites it.
func (g *OperationGraph) AddOperation(op ComplexOperation) error {
	if op.Name == "" {
		return vibeerr.Newf(vibeerr.KindValidation, "build.graph", "operation name must not be empty")
	}
	if _, exists := g.ops[op.Name]; !exists {
		g.names = append(g.names, op.Name)
	}
	g.ops[op.Name] = &op
	g.validated = false
	g.order = nil
	return nil
}

// Get returns the named operation, or false if it is not in the graph.
func (g *OperationGraph) Get(name string) (*ComplexOperation, bool) {
	op, ok := g.ops[name]
	return op, ok
}

// ValidateAndOrder checks the graph for dependency cycles, evaluates every
// operation's ValidationRules against workspaceRoot, and derives a
// topological execution order via Kahn's algorithm. Dependencies naming an
// operation outside the graph are ignored for in-degree purposes — they
// can never be satisfied by HasDependency, so any rule requiring one fails
// validation rather than silently passing.
func (g *OperationGraph) ValidateAndOrder(workspaceRoot string) error {
	if err := g.detectCycle(); err != nil {
		return err
	}
	for _, name := range g.names {
		op := g.ops[name]
		for _, rule := range op.ValidationRules {
			if err := g.evaluateRule(rule, workspaceRoot); err != nil {
				return vibeerr.New(vibeerr.KindValidation, "build.graph:"+name, err)
			}
		}
	}
	order, err := g.topologicalOrder()
	if err != nil {
		return err
	}
	g.order = order
	g.validated = true
	return nil
}

// Order returns the validated topological execution order. Returns an
// error if ValidateAndOrder has not yet succeeded.
func (g *OperationGraph) Order() ([]string, error) {
	if !g.validated {
		return nil, vibeerr.Newf(vibeerr.KindInternal, "build.graph", "graph has not been validated")
	}
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out, nil
}

// detectCycle runs a three-color DFS over the dependency edges, reporting
// the first cycle found as an error with the path that closes it.
func (g *OperationGraph) detectCycle() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.names))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		color[name] = gray
		path = append(path, name)
		op, ok := g.ops[name]
		if ok {
			for _, dep := range op.Dependencies {
				if _, exists := g.ops[dep]; !exists {
					continue // unknown dependency: no edge, nothing to cycle through
				}
				switch color[dep] {
				case white:
					if err := visit(dep); err != nil {
						return err
					}
				case gray:
					cycle := append(append([]string{}, path...), dep)
					return vibeerr.Newf(vibeerr.KindValidation, "build.graph",
						"dependency cycle: %s", strings.Join(cycle, " -> "))
				}
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return nil
	}

	for _, name := range g.names {
		if color[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// topologicalOrder runs Kahn's algorithm over the dependency edges (an
// edge dep->name exists for every dep in name's Dependencies that is
// itself a node of the graph). detectCycle must have already passed.
func (g *OperationGraph) topologicalOrder() ([]string, error) {
	indegree := make(map[string]int, len(g.names))
	dependents := make(map[string][]string, len(g.names))
	for _, name := range g.names {
		indegree[name] = 0
	}
	for _, name := range g.names {
		op := g.ops[name]
		for _, dep := range op.Dependencies {
			if _, exists := g.ops[dep]; !exists {
				continue
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for _, name := range g.names {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var order []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, dependent := range dependents[n] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(g.names) {
		return nil, vibeerr.Newf(vibeerr.KindValidation, "build.graph", "dependency cycle prevented a full ordering")
	}
	return order, nil
}

// evaluateRule checks a single ValidationRule against the live filesystem
// (for the *Exists/ContentContains kinds) or against graph membership (for
// HasDependency — satisfied if the named operation exists anywhere in the
// graph, not only as a direct dependency of the current operation).
func (g *OperationGraph) evaluateRule(rule ValidationRule, workspaceRoot string) error {
	switch rule.Kind {
	case FileExists:
		if !fileExists(workspaceRoot, rule.Path) {
			return fmt.Errorf("required file %q does not exist", rule.Path)
		}
	case FileNotExists:
		if fileExists(workspaceRoot, rule.Path) {
			return fmt.Errorf("file %q must not exist yet", rule.Path)
		}
	case DirectoryExists:
		if !dirExists(workspaceRoot, rule.Path) {
			return fmt.Errorf("required directory %q does not exist", rule.Path)
		}
	case HasDependency:
		if _, ok := g.ops[rule.DependencyName]; !ok {
			return fmt.Errorf("required dependency %q is not part of the graph", rule.DependencyName)
		}
	case ContentContains:
		content, err := os.ReadFile(filepath.Join(workspaceRoot, rule.Path))
		if err != nil {
			return fmt.Errorf("cannot read %q: %w", rule.Path, err)
		}
		if !strings.Contains(string(content), rule.Substring) {
			return fmt.Errorf("file %q does not contain required content", rule.Path)
		}
	default:
		return fmt.Errorf("unknown validation rule kind %q", rule.Kind)
	}
	return nil
}

func fileExists(root, rel string) bool {
	info, err := os.Stat(filepath.Join(root, rel))
	return err == nil && !info.IsDir()
}

func dirExists(root, rel string) bool {
	info, err := os.Stat(filepath.Join(root, rel))
	return err == nil && info.IsDir()
}
