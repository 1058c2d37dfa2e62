package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vibecli/vibe-core/internal/llm"
	"github.com/vibecli/vibe-core/internal/vibeerr"
)

// Registry manages the closed enumeration of safe tools with thread-safe
// access, and is the single place that consults the policy gate before a
// tool runs (spec §4.2). It carries the resource enforcer into its views
// but does not call it; the subprocess and network tools call it themselves.
//
// A Registry can be either a "root" registry (parent == nil) that owns its
// tools map, or a "view" registry (parent != nil) created by WithExtra that
// overlays additional tools on top of a parent.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	parent   *Registry
	policy   *Engine
	enforcer *Enforcer
}

// NewRegistry creates an empty root tool registry bound to policy and
// enforcer (may be nil during tests that only exercise Get/List).
func NewRegistry(policy *Engine, enforcer *Enforcer) *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		policy:   policy,
		enforcer: enforcer,
	}
}

// Register adds a tool to the registry, logging a warning on overwrite.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		log.Printf("[Registry] WARNING: overwriting existing tool %q", t.Name())
	}
	r.tools[t.Name()] = t
}

// Unregister removes a tool from the registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	log.Printf("[Registry] Unregistered tool: %s", name)
}

// Get retrieves a tool by name, delegating to the parent for view registries.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if ok {
		return t, true
	}
	if r.parent != nil {
		return r.parent.Get(name)
	}
	return nil, false
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	if r.parent != nil {
		return r.listView()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

func (r *Registry) listView() []Tool {
	parentTools := r.parent.List()

	r.mu.RLock()
	extras := make(map[string]Tool, len(r.tools))
	for k, v := range r.tools {
		extras[k] = v
	}
	r.mu.RUnlock()

	result := make([]Tool, 0, len(parentTools)+len(extras))
	for _, t := range parentTools {
		if _, overridden := extras[t.Name()]; !overridden {
			result = append(result, t)
		}
	}
	for _, t := range extras {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// GenerateToolsPrompt creates a description of all tools for prompt injection.
func (r *Registry) GenerateToolsPrompt() string {
	tools := r.List()
	if len(tools) == 0 {
		return "(no tools available)"
	}
	var sb strings.Builder
	sb.WriteString("Available tools:\n")
	for _, t := range tools {
		sb.WriteString(fmt.Sprintf("\n### %s\n%s\n", t.Name(), t.Description()))
		if schema := t.InputSchema(); len(schema) > 0 {
			sb.WriteString(fmt.Sprintf("Parameter schema: %s\n", string(schema)))
		}
	}
	return sb.String()
}

// GenerateToolDefinitions creates function-calling tool definitions.
func (r *Registry) GenerateToolDefinitions() []llm.ToolDefinition {
	tools := r.List()
	defs := make([]llm.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.InputSchema(),
		}
	}
	return defs
}

// InitAll initializes all registered tools.
func (r *Registry) InitAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, t := range r.tools {
		if err := t.Init(ctx); err != nil {
			return fmt.Errorf("init tool %q: %w", name, err)
		}
	}
	log.Printf("[Registry] Initialized %d tools", len(r.tools))
	return nil
}

// CloseAll closes all registered tools, logging errors but not failing.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, t := range r.tools {
		if err := t.Close(); err != nil {
			log.Printf("[Registry] Error closing tool %s: %v", name, err)
		}
	}
}

// WithExtra returns a view of this Registry with additional tools overlaid.
func (r *Registry) WithExtra(extras ...Tool) *Registry {
	extrasMap := make(map[string]Tool, len(extras))
	for _, t := range extras {
		extrasMap[t.Name()] = t
	}
	return &Registry{
		parent:   r,
		policy:   r.policy,
		enforcer: r.enforcer,
		tools:    extrasMap,
	}
}

// Invoke is the single entry point the agent controller uses to run a tool:
// Validate → policy gate → Execute. Execute is timed and its duration and
// outcome logged; a policy refusal or a LogOnly decision is logged as a
// security event.
func (r *Registry) Invoke(ctx context.Context, name string, args ToolArgs) (ToolOutput, error) {
	t, ok := r.Get(name)
	if !ok {
		return ToolOutput{}, vibeerr.Newf(vibeerr.KindValidation, name, "unknown tool %q", name)
	}

	if err := t.Validate(args); err != nil {
		return ToolOutput{}, vibeerr.New(vibeerr.KindValidation, name, err)
	}

	if r.policy != nil {
		req := buildPolicyRequest(name, args)
		decision := r.policy.Evaluate(req)
		if !decision.Proceeds() {
			LogSecurityEvent(name, decision)
			return ToolOutput{}, vibeerr.Newf(vibeerr.KindSecurity, name, "%s: %s", decision.Outcome, decision.Reason)
		}
		if decision.Outcome == LogOnly {
			LogSecurityEvent(name, decision)
		}
	}

	start := time.Now()
	out, err := t.Execute(ctx, args)
	elapsed := time.Since(start)
	out.ExecutionTime = elapsed
	out.ResourcesUsed.ExecutionTime = elapsed
	out.ResourcesUsed.OutputSize = int64(len(out.Stdout) + len(out.Stderr))

	if err != nil {
		log.Printf("[Registry] tool %q failed after %v: %v", name, elapsed, err)
		return out, err
	}
	log.Printf("[Registry] tool %q succeeded in %v (output %d bytes)", name, elapsed, out.ResourcesUsed.OutputSize)
	return out, nil
}

// buildPolicyRequest extracts the policy-relevant signals from args that
// the gate can't derive from Parameters alone: implied network access and
// filesystem paths. Content sanitization (secrets, prompt/SQL injection,
// MIME, length) is evaluated directly against req.Parameters by the gate.
func buildPolicyRequest(name string, args ToolArgs) Request {
	req := Request{ToolName: name, Parameters: args.Parameters}
	for k, v := range args.Parameters {
		if k == "url" {
			req.ImpliesNetwork = true
		}
		if k == "path" || k == "source" || k == "destination" {
			req.Paths = append(req.Paths, v)
		}
	}
	return req
}

// ArgsFromJSON converts a raw JSON object (as produced by function calling)
// into the flat ToolArgs.Parameters map, stringifying non-string leaf
// values so every tool can rely on a uniform map[string]string contract.
func ArgsFromJSON(raw json.RawMessage) (ToolArgs, error) {
	if len(raw) == 0 {
		return ToolArgs{Parameters: map[string]string{}}, nil
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return ToolArgs{}, fmt.Errorf("parse tool arguments: %w", err)
	}
	params := make(map[string]string, len(generic))
	for k, v := range generic {
		params[k] = stringifyParam(v)
	}
	return ToolArgs{Parameters: params}, nil
}

func stringifyParam(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	}
}

